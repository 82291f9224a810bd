// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package dotnet

import (
	"bytes"
	"cmp"
	"debug/pe"
	"encoding/binary"
	"errors"
	"io"
	"slices"

	"fortio.org/safecast"
	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/consensys/go-publicizer/pkg/peimage"
	log "github.com/sirupsen/logrus"
)

// SectionName is the name of the section holding rewritten metadata and new
// method bodies.
const SectionName = ".pubmeta"

// Write encodes this module and writes the resulting image.
func (m *Module) Write(w io.Writer) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	//
	_, err = w.Write(data)
	//
	return err
}

// Bytes encodes this module as a complete image.  Rows read from the image
// keep their positions, hence every existing token remains valid; new rows are
// appended.  New method bodies and the rewritten metadata are placed in a new
// section, and the CLI header is redirected to it.  Since this invalidates any
// strong name signature, the corresponding flag is cleared.  The module itself
// is not modified, except for the assignment of tokens to new definitions.
func (m *Module) Bytes() ([]byte, error) {
	if m.image == nil || m.tables == nil {
		return nil, serializationError("module has no backing image")
	}
	//
	w := writer{
		module:  m,
		tables:  m.tables.Clone(),
		strings: metadata.NewStringHeapBuilder(m.root.Stream(metadata.StringsStreamName).Bytes()),
		blobs:   metadata.NewBlobHeapBuilder(m.root.Stream(metadata.BlobStreamName).Bytes()),
		tokens:  make(map[any]metadata.Token),
		rvas:    make(map[*MethodDefinition]uint32),
	}
	//
	data, err := w.write()
	//
	var serialErr *SerializationError
	if err != nil && !errors.As(err, &serialErr) {
		return nil, &SerializationError{Reason: "encoding failed", Err: err}
	}
	//
	return data, err
}

// writer holds the state needed whilst encoding a module.
type writer struct {
	module  *Module
	tables  *metadata.Tables
	strings *metadata.StringHeapBuilder
	blobs   *metadata.BlobHeapBuilder
	// Token of every definition and reference in the module.
	tokens map[any]metadata.Token
	// All fields and methods, in row order.
	fields  []*FieldDefinition
	methods []*MethodDefinition
	// RVA of every method body.
	rvas map[*MethodDefinition]uint32
}

func (w *writer) write() ([]byte, error) {
	var (
		m   = w.module
		img = m.image.Clone()
		cli = m.cli
	)
	//
	if err := w.assignTokens(); err != nil {
		return nil, err
	}
	// Method bodies go first, since their RVAs are recorded in the metadata.
	base := img.NextVirtualAddress()
	//
	section, err := w.encodeBodies(base)
	if err != nil {
		return nil, err
	}
	//
	steps := []func() error{w.patchRows, w.appendReferences, w.appendTypes, w.rebuildAttributes}
	//
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	//
	md, err := w.encodeMetadata()
	if err != nil {
		return nil, err
	}
	//
	offset, err := safecast.Conv[uint32](len(section))
	if err != nil {
		return nil, err
	}
	//
	size, err := safecast.Conv[uint32](len(md))
	if err != nil {
		return nil, err
	}
	//
	section = append(section, md...)
	//
	if _, err := img.AddSection(SectionName, section, peimage.SectionInitializedData|peimage.SectionMemRead); err != nil {
		return nil, err
	}
	// Redirect CLI header
	cli.MetaData = pe.DataDirectory{VirtualAddress: base + offset, Size: size}
	cli.Flags &^= metadata.ComImageStrongNameSigned
	//
	var header bytes.Buffer
	//
	_ = binary.Write(&header, binary.LittleEndian, &cli)
	//
	if err := img.WriteAt(m.cliRVA, header.Bytes()); err != nil {
		return nil, err
	}
	//
	log.Debugf("wrote module %q (%d bytes of metadata, %d bytes of new code)", m.Name, size, offset)
	//
	return img.Bytes()
}

// ============================================================================
// Token assignment
// ============================================================================

// Assign tokens to every definition and reference.  Definitions read from the
// image must remain where they were, whilst new definitions can only be added
// to new types (since rows owned by a type must be contiguous).
func (w *writer) assignTokens() error {
	var (
		m             = w.module
		originalTypes = int(w.tables.Count(metadata.TypeDef))
	)
	//
	w.tokens[m] = metadata.NewToken(metadata.Module, 1)
	//
	if len(m.Types) < originalTypes {
		return serializationError("%d types removed from module", originalTypes-len(m.Types))
	}
	//
	for i, t := range m.Types {
		if t.module != m {
			return serializationError("type %s belongs to another module", t.FullName())
		} else if t.original != (i < originalTypes) || (t.original && t.rid != uint32(i+1)) {
			return serializationError("type %s has been moved", t.FullName())
		}
		//
		t.rid = uint32(i + 1)
		w.tokens[t] = metadata.NewToken(metadata.TypeDef, t.rid)
	}
	//
	if err := w.assignOriginalMembers(m.Types[:originalTypes]); err != nil {
		return err
	} else if err := w.assignNewMembers(m.Types[originalTypes:]); err != nil {
		return err
	}
	//
	if err := assignReferences(w, metadata.TypeRef, m.TypeReferences, true); err != nil {
		return err
	} else if err := assignReferences(w, metadata.MemberRef, m.MemberReferences, true); err != nil {
		return err
	} else if err := assignReferences(w, metadata.TypeSpec, m.TypeSpecifications, false); err != nil {
		return err
	}
	//
	return assignReferences(w, metadata.AssemblyRef, m.AssemblyReferences, false)
}

func (w *writer) assignOriginalMembers(types []*TypeDefinition) error {
	var (
		fields  = int(w.tables.Count(metadata.Field))
		methods = int(w.tables.Count(metadata.MethodDef))
	)
	//
	w.fields = make([]*FieldDefinition, fields)
	w.methods = make([]*MethodDefinition, methods)
	//
	for _, t := range types {
		for _, f := range t.Fields {
			if !f.original {
				return serializationError("field %s added to existing type %s", f.Name, t.FullName())
			} else if f.DeclaringType != t || w.fields[f.rid-1] != nil {
				return serializationError("field %s has been moved", f.FullName())
			}
			//
			w.fields[f.rid-1] = f
			w.tokens[f] = metadata.NewToken(metadata.Field, f.rid)
		}
		//
		for _, method := range t.Methods {
			if !method.original {
				return serializationError("method %s added to existing type %s", method.Name, t.FullName())
			} else if method.DeclaringType != t || w.methods[method.rid-1] != nil {
				return serializationError("method %s has been moved", method.FullName())
			}
			//
			w.methods[method.rid-1] = method
			w.tokens[method] = metadata.NewToken(metadata.MethodDef, method.rid)
		}
	}
	// Check nothing was removed
	if slices.Contains(w.fields, nil) {
		return serializationError("field removed from module")
	} else if slices.Contains(w.methods, nil) {
		return serializationError("method removed from module")
	}
	//
	return nil
}

func (w *writer) assignNewMembers(types []*TypeDefinition) error {
	for _, t := range types {
		if len(t.Properties) > 0 || len(t.Events) > 0 {
			return serializationError("properties and events of new type %s not supported", t.FullName())
		}
		//
		for _, f := range t.Fields {
			if f.original || f.DeclaringType != t {
				return serializationError("field %s has been moved", f.FullName())
			}
			//
			w.fields = append(w.fields, f)
			f.rid = uint32(len(w.fields))
			w.tokens[f] = metadata.NewToken(metadata.Field, f.rid)
		}
		//
		for _, method := range t.Methods {
			if method.original || method.DeclaringType != t {
				return serializationError("method %s has been moved", method.FullName())
			}
			//
			w.methods = append(w.methods, method)
			method.rid = uint32(len(w.methods))
			w.tokens[method] = metadata.NewToken(metadata.MethodDef, method.rid)
		}
	}
	//
	return nil
}

// References are tokenised by position.  Where growth is permitted, new
// references follow those read from the image.
func assignReferences[T any](w *writer, table metadata.TableIndex, refs []*T, growable bool) error {
	var original = int(w.tables.Count(table))
	//
	if len(refs) < original || (!growable && len(refs) != original) {
		return serializationError("%s table cannot change from %d to %d rows", table, original, len(refs))
	}
	//
	for i, ref := range refs {
		w.tokens[ref] = metadata.NewToken(table, uint32(i+1))
	}
	//
	return nil
}

// Determine the token for an entity (or raw token) referred to by some
// definition or instruction.
func (w *writer) tokenOf(operand any) (metadata.Token, error) {
	switch e := operand.(type) {
	case metadata.Token:
		return e, nil
	case rawEntity:
		return e.token, nil
	case nil:
		return 0, serializationError("missing reference")
	}
	//
	if token, ok := w.tokens[operand]; ok {
		return token, nil
	} else if entity, ok := operand.(Entity); ok {
		return 0, serializationError("%s is not part of module %s", entity.FullName(), w.module.Name)
	}
	//
	return 0, serializationError("operand %v cannot be referenced by token", operand)
}

func (w *writer) codedTokenOf(coded metadata.CodedIndex, operand any) (uint32, error) {
	token, err := w.tokenOf(operand)
	if err != nil {
		return 0, err
	}
	//
	value, err := coded.Encode(token)
	if err != nil {
		return 0, &SerializationError{Reason: "invalid reference", Err: err}
	}
	//
	return value, nil
}

// ============================================================================
// Bodies and rows
// ============================================================================

// Encode every replacement body, recording its RVA.  Bodies are aligned on
// four byte boundaries, as required for fat headers.
func (w *writer) encodeBodies(base uint32) ([]byte, error) {
	var section []byte
	//
	for _, method := range w.methods {
		if method.Body == nil {
			w.rvas[method] = method.rva
			continue
		}
		//
		section = alignTo4(section)
		//
		offset, err := safecast.Conv[uint32](len(section))
		if err != nil {
			return nil, err
		}
		//
		body, err := method.Body.encode(w.tokenOf)
		if err != nil {
			return nil, err
		}
		//
		w.rvas[method] = base + offset
		section = append(section, body...)
	}
	//
	return alignTo4(section), nil
}

// Update the flags (and body RVAs) of rows read from the image.
func (w *writer) patchRows() error {
	var (
		m             = w.module
		originalTypes = w.tables.Count(metadata.TypeDef)
	)
	//
	for _, t := range m.Types[:originalTypes] {
		w.tables.Rows[metadata.TypeDef][t.rid-1][metadata.TypeDefFlags] = uint32(t.Attributes)
	}
	//
	for _, f := range w.fields[:w.tables.Count(metadata.Field)] {
		w.tables.Rows[metadata.Field][f.rid-1][metadata.FieldFlags] = uint32(f.Attributes)
	}
	//
	for _, method := range w.methods[:w.tables.Count(metadata.MethodDef)] {
		row := w.tables.Rows[metadata.MethodDef][method.rid-1]
		row[metadata.MethodDefFlags] = uint32(method.Attributes)
		row[metadata.MethodDefImplFlags] = uint32(method.ImplAttributes)
		row[metadata.MethodDefRVA] = w.rvas[method]
	}
	//
	return nil
}

func (w *writer) appendReferences() error {
	var m = w.module
	//
	for _, ref := range m.TypeReferences[w.tables.Count(metadata.TypeRef):] {
		var (
			scope uint32
			err   error
		)
		//
		if ref.Scope != nil {
			if scope, err = w.codedTokenOf(metadata.ResolutionScope, ref.Scope); err != nil {
				return err
			}
		}
		//
		name, err := w.strings.Add(ref.Name)
		if err != nil {
			return err
		}
		//
		namespace, err := w.strings.Add(ref.Namespace)
		if err != nil {
			return err
		}
		//
		w.tables.Append(metadata.TypeRef, metadata.Row{scope, name, namespace})
	}
	//
	for _, ref := range m.MemberReferences[w.tables.Count(metadata.MemberRef):] {
		parent, err := w.codedTokenOf(metadata.MemberRefParent, ref.Parent)
		if err != nil {
			return err
		}
		//
		name, err := w.strings.Add(ref.Name)
		if err != nil {
			return err
		}
		//
		signature, err := w.blobs.Add(ref.Signature)
		if err != nil {
			return err
		}
		//
		w.tables.Append(metadata.MemberRef, metadata.Row{parent, name, signature})
	}
	//
	return nil
}

// Append rows for new types, along with their members and nesting.
func (w *writer) appendTypes() error {
	var (
		m             = w.module
		originalTypes = w.tables.Count(metadata.TypeDef)
	)
	//
	for _, t := range m.Types[originalTypes:] {
		var (
			extends uint32
			err     error
		)
		//
		if t.BaseType != nil {
			if extends, err = w.codedTokenOf(metadata.TypeDefOrRef, t.BaseType); err != nil {
				return err
			}
		}
		//
		name, err := w.strings.Add(t.Name)
		if err != nil {
			return err
		}
		//
		namespace, err := w.strings.Add(t.Namespace)
		if err != nil {
			return err
		}
		//
		w.tables.Append(metadata.TypeDef, metadata.Row{uint32(t.Attributes), name, namespace, extends,
			w.tables.Count(metadata.Field) + 1, w.tables.Count(metadata.MethodDef) + 1})
		//
		for _, f := range t.Fields {
			if err := w.appendField(f); err != nil {
				return err
			}
		}
		//
		for _, method := range t.Methods {
			if err := w.appendMethod(method); err != nil {
				return err
			}
		}
		//
		if t.DeclaringType != nil {
			enclosing, err := w.tokenOf(t.DeclaringType)
			if err != nil {
				return err
			}
			//
			w.tables.Append(metadata.NestedClass, metadata.Row{t.rid, enclosing.RID()})
		}
	}
	//
	return nil
}

func (w *writer) appendField(f *FieldDefinition) error {
	name, err := w.strings.Add(f.Name)
	if err != nil {
		return err
	}
	//
	signature, err := w.blobs.Add(f.Signature)
	if err != nil {
		return err
	}
	//
	if rid := w.tables.Append(metadata.Field, metadata.Row{uint32(f.Attributes), name, signature}); rid != f.rid {
		return serializationError("field %s written out of order", f.Name)
	}
	//
	return nil
}

func (w *writer) appendMethod(method *MethodDefinition) error {
	name, err := w.strings.Add(method.Name)
	if err != nil {
		return err
	}
	//
	signature, err := w.blobs.Add(method.Signature)
	if err != nil {
		return err
	}
	//
	row := metadata.Row{w.rvas[method], uint32(method.ImplAttributes), uint32(method.Attributes), name, signature,
		w.tables.Count(metadata.Param) + 1}
	//
	if rid := w.tables.Append(metadata.MethodDef, row); rid != method.rid {
		return serializationError("method %s written out of order", method.Name)
	}
	//
	for _, param := range method.Parameters {
		name, err := w.strings.Add(param.Name)
		if err != nil {
			return err
		}
		//
		w.tables.Append(metadata.Param, metadata.Row{uint32(param.Attributes), uint32(param.Sequence), name})
	}
	//
	return nil
}

// Rebuild the custom attribute table from the model, together with those rows
// whose parents are not modelled.  The table must be sorted by parent.
func (w *writer) rebuildAttributes() error {
	var (
		m    = w.module
		rows = make([]metadata.Row, 0, len(m.otherAttributes))
	)
	//
	for _, row := range m.otherAttributes {
		rows = append(rows, slices.Clone(row))
	}
	//
	add := func(owner any, attributes []*CustomAttribute) error {
		if len(attributes) == 0 {
			return nil
		}
		//
		parent, err := w.codedTokenOf(metadata.HasCustomAttribute, owner)
		if err != nil {
			return err
		}
		//
		for _, attribute := range attributes {
			ctor, err := w.codedTokenOf(metadata.CustomAttributeType, attribute.Constructor)
			if err != nil {
				return err
			}
			//
			blob, err := attribute.Value()
			if err != nil {
				return &SerializationError{Reason: "invalid attribute value", Err: err}
			}
			//
			value, err := w.blobs.Add(blob)
			if err != nil {
				return err
			}
			//
			rows = append(rows, metadata.Row{parent, ctor, value})
		}
		//
		return nil
	}
	//
	for _, t := range m.Types {
		if err := add(t, t.CustomAttributes); err != nil {
			return err
		}
	}
	//
	for _, method := range w.methods {
		if err := add(method, method.CustomAttributes); err != nil {
			return err
		}
	}
	//
	for _, f := range w.fields {
		if err := add(f, f.CustomAttributes); err != nil {
			return err
		}
	}
	//
	slices.SortStableFunc(rows, func(a, b metadata.Row) int {
		return cmp.Compare(a[metadata.AttributeParent], b[metadata.AttributeParent])
	})
	//
	w.tables.Rows[metadata.CustomAttribute] = rows
	//
	return nil
}

// Encode the metadata root, with rewritten tables, strings and blobs.  All
// other streams are carried over unchanged.
func (w *writer) encodeMetadata() ([]byte, error) {
	var (
		root    = *w.module.root
		strings = w.strings.Bytes()
		blobs   = w.blobs.Bytes()
	)
	//
	root.Streams = make([]*metadata.Stream, len(w.module.root.Streams))
	//
	for i, s := range w.module.root.Streams {
		root.Streams[i] = &metadata.Stream{Name: s.Name, Data: s.Data}
	}
	//
	tables, err := w.tables.MarshalBinary(metadata.HeapSizes{
		Strings: len(strings),
		Guid:    len(root.Stream(metadata.GuidStreamName).Bytes()),
		Blob:    len(blobs),
	})
	//
	if err != nil {
		return nil, err
	}
	//
	root.SetStream(metadata.TablesStreamName, tables)
	root.SetStream(metadata.StringsStreamName, strings)
	root.SetStream(metadata.BlobStreamName, blobs)
	//
	return root.MarshalBinary()
}

func alignTo4(data []byte) []byte {
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	//
	return data
}
