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
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/consensys/go-publicizer/pkg/peimage"
	log "github.com/sirupsen/logrus"
)

// ReadModule parses a module from the bytes of a PE image.  The returned
// module uses NoopResolver, such that no other assemblies are ever loaded.
// Any structural problem with the image is reported as a *FormatError.
func ReadModule(data []byte) (*Module, error) {
	img, err := peimage.Read(data)
	if err != nil {
		return nil, &FormatError{err}
	}
	//
	r := reader{module: &Module{Resolver: NoopResolver, image: img}}
	//
	if err := r.read(); err != nil {
		var formatErr *FormatError
		//
		if errors.As(err, &formatErr) {
			return nil, formatErr
		}
		//
		return nil, &FormatError{err}
	}
	//
	log.Debugf("read module %q (%d types, %d methods, %d fields)", r.module.Name, len(r.module.Types),
		len(r.methods), len(r.fields))
	//
	return r.module, nil
}

// reader holds the state needed whilst constructing a module from its
// metadata tables.
type reader struct {
	module     *Module
	tables     *metadata.Tables
	strings    *metadata.StringHeap
	blobs      *metadata.BlobHeap
	guids      *metadata.GuidHeap
	methods    []*MethodDefinition
	fields     []*FieldDefinition
	properties []*PropertyDefinition
	events     []*EventDefinition
}

func (r *reader) read() error {
	var m = r.module
	//
	if err := r.readHeaders(); err != nil {
		return err
	}
	// Order matters here, since later tables refer to earlier ones.
	steps := []func() error{
		r.readModuleAndAssembly,
		r.readAssemblyReferences,
		r.readTypeReferences,
		r.readTypeDefinitions,
		r.readTypeSpecifications,
		r.resolveTypeReferenceScopes,
		r.readMembers,
		r.readBaseTypes,
		r.readNestedClasses,
		r.readMemberReferences,
		r.readProperties,
		r.readEvents,
		r.readMethodSemantics,
		r.readCustomAttributes,
	}
	//
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	//
	m.tables = r.tables
	m.strings = r.strings
	m.blobs = r.blobs
	//
	return nil
}

// Locate the CLI header, the metadata root and its streams.
func (r *reader) readHeaders() error {
	var (
		m   = r.module
		dir = m.image.DataDirectory(peimage.DirectoryCLR)
	)
	//
	if dir.VirtualAddress == 0 || dir.Size < cliHeaderSize {
		return fmt.Errorf("%w: image has no CLI header", metadata.ErrMalformed)
	}
	//
	header, err := m.image.Slice(dir.VirtualAddress, cliHeaderSize)
	if err != nil {
		return err
	} else if err := binary.Read(bytes.NewReader(header), binary.LittleEndian, &m.cli); err != nil {
		return fmt.Errorf("%w: truncated CLI header", metadata.ErrMalformed)
	}
	//
	m.cliRVA = dir.VirtualAddress
	//
	data, err := m.image.Slice(m.cli.MetaData.VirtualAddress, m.cli.MetaData.Size)
	if err != nil {
		return err
	}
	//
	if m.root, err = metadata.ReadRoot(data); err != nil {
		return err
	} else if m.root.Stream(metadata.UncompressedTablesStreamName) != nil {
		return fmt.Errorf("%w: uncompressed tables stream", metadata.ErrUnsupported)
	}
	//
	tables := m.root.Stream(metadata.TablesStreamName)
	if tables == nil {
		return fmt.Errorf("%w: missing tables stream", metadata.ErrMalformed)
	}
	//
	if r.tables, err = metadata.ReadTables(tables.Data); err != nil {
		return err
	}
	//
	r.strings = metadata.NewStringHeap(r.streamData(metadata.StringsStreamName))
	r.blobs = metadata.NewBlobHeap(r.streamData(metadata.BlobStreamName))
	r.guids = metadata.NewGuidHeap(r.streamData(metadata.GuidStreamName))
	//
	return nil
}

func (r *reader) streamData(name string) []byte {
	if s := r.module.root.Stream(name); s != nil {
		return s.Data
	}
	//
	return nil
}

func (r *reader) readModuleAndAssembly() error {
	var (
		m   = r.module
		err error
	)
	//
	if r.tables.Count(metadata.Module) > 0 {
		row := r.tables.Rows[metadata.Module][0]
		//
		if m.Name, err = r.strings.Get(row[metadata.ModuleName]); err != nil {
			return err
		} else if m.Mvid, err = r.guids.Get(row[metadata.ModuleMvid]); err != nil {
			return err
		}
	}
	//
	if r.tables.Count(metadata.Assembly) > 0 {
		var (
			row      = r.tables.Rows[metadata.Assembly][0]
			assembly AssemblyDefinition
		)
		//
		if assembly.Name, err = r.strings.Get(row[metadata.AssemblyName]); err != nil {
			return err
		}
		//
		for i := range assembly.Version {
			assembly.Version[i] = uint16(row[metadata.AssemblyMajorVersion+i])
		}
		//
		m.Assembly = &assembly
	}
	//
	return nil
}

func (r *reader) readAssemblyReferences() error {
	for _, row := range r.tables.Rows[metadata.AssemblyRef] {
		var ref AssemblyReference
		//
		name, err := r.strings.Get(row[metadata.AssemblyRefName])
		if err != nil {
			return err
		}
		//
		ref.Name = name
		//
		for i := range ref.Version {
			ref.Version[i] = uint16(row[metadata.AssemblyRefMajorVersion+i])
		}
		//
		r.module.AssemblyReferences = append(r.module.AssemblyReferences, &ref)
	}
	//
	return nil
}

func (r *reader) readTypeReferences() error {
	for _, row := range r.tables.Rows[metadata.TypeRef] {
		name, err := r.strings.Get(row[metadata.TypeRefName])
		if err != nil {
			return err
		}
		//
		namespace, err := r.strings.Get(row[metadata.TypeRefNamespace])
		if err != nil {
			return err
		}
		//
		ref := &TypeReference{Namespace: namespace, Name: name, module: r.module}
		r.module.TypeReferences = append(r.module.TypeReferences, ref)
	}
	//
	return nil
}

// Scopes can refer to other type references, hence are resolved once all
// references exist.
func (r *reader) resolveTypeReferenceScopes() error {
	for i, row := range r.tables.Rows[metadata.TypeRef] {
		// Null scopes are resolved through the exported types
		if row[metadata.TypeRefResolutionScope] == 0 {
			continue
		}
		//
		scope, err := r.lookupCoded(metadata.ResolutionScope, row[metadata.TypeRefResolutionScope])
		if err != nil {
			return err
		}
		//
		r.module.TypeReferences[i].Scope = scope
	}
	//
	return nil
}

func (r *reader) readTypeDefinitions() error {
	for i, row := range r.tables.Rows[metadata.TypeDef] {
		name, err := r.strings.Get(row[metadata.TypeDefName])
		if err != nil {
			return err
		}
		//
		namespace, err := r.strings.Get(row[metadata.TypeDefNamespace])
		if err != nil {
			return err
		}
		//
		r.module.Types = append(r.module.Types, &TypeDefinition{
			Namespace:  namespace,
			Name:       name,
			Attributes: metadata.TypeAttributes(row[metadata.TypeDefFlags]),
			module:     r.module,
			rid:        uint32(i + 1),
			original:   true,
		})
	}
	//
	return nil
}

func (r *reader) readTypeSpecifications() error {
	for _, row := range r.tables.Rows[metadata.TypeSpec] {
		signature, err := r.blob(row[metadata.TypeSpecSignature])
		if err != nil {
			return err
		}
		//
		r.module.TypeSpecifications = append(r.module.TypeSpecifications,
			&TypeSpecification{Signature: signature, module: r.module})
	}
	//
	return nil
}

// Read every field and method, then distribute them amongst their declaring
// types according to the FieldList and MethodList columns.
func (r *reader) readMembers() error {
	for i, row := range r.tables.Rows[metadata.Field] {
		name, err := r.strings.Get(row[metadata.FieldName])
		if err != nil {
			return err
		}
		//
		signature, err := r.blob(row[metadata.FieldSignature])
		if err != nil {
			return err
		}
		//
		r.fields = append(r.fields, &FieldDefinition{
			Name:       name,
			Attributes: metadata.FieldAttributes(row[metadata.FieldFlags]),
			Signature:  signature,
			rid:        uint32(i + 1),
			original:   true,
		})
	}
	//
	for i, row := range r.tables.Rows[metadata.MethodDef] {
		name, err := r.strings.Get(row[metadata.MethodDefName])
		if err != nil {
			return err
		}
		//
		signature, err := r.blob(row[metadata.MethodDefSignature])
		if err != nil {
			return err
		}
		//
		r.methods = append(r.methods, &MethodDefinition{
			Name:           name,
			Attributes:     metadata.MethodAttributes(row[metadata.MethodDefFlags]),
			ImplAttributes: metadata.MethodImplAttributes(row[metadata.MethodDefImplFlags]),
			Signature:      signature,
			rva:            row[metadata.MethodDefRVA],
			rid:            uint32(i + 1),
			original:       true,
		})
	}
	//
	for i, t := range r.module.Types {
		start, end, err := r.listRange(metadata.TypeDef, i, metadata.TypeDefFieldList, metadata.Field)
		if err != nil {
			return err
		}
		//
		for _, f := range r.fields[start:end] {
			t.AddField(f)
		}
		//
		if start, end, err = r.listRange(metadata.TypeDef, i, metadata.TypeDefMethodList, metadata.MethodDef); err != nil {
			return err
		}
		//
		for _, m := range r.methods[start:end] {
			t.AddMethod(m)
		}
	}
	//
	return nil
}

func (r *reader) readBaseTypes() error {
	for i, row := range r.tables.Rows[metadata.TypeDef] {
		if row[metadata.TypeDefExtends] == 0 {
			continue
		}
		//
		base, err := r.lookupType(metadata.TypeDefOrRef, row[metadata.TypeDefExtends])
		if err != nil {
			return err
		}
		//
		r.module.Types[i].BaseType = base
	}
	//
	return nil
}

func (r *reader) readNestedClasses() error {
	for _, row := range r.tables.Rows[metadata.NestedClass] {
		nested, err := r.typeByRID(row[metadata.NestedClassNested])
		if err != nil {
			return err
		}
		//
		enclosing, err := r.typeByRID(row[metadata.NestedClassEnclosing])
		if err != nil {
			return err
		} else if nested == enclosing || nested.DeclaringType != nil {
			return fmt.Errorf("%w: invalid nesting of type %s", metadata.ErrMalformed, nested.Name)
		}
		//
		nested.DeclaringType = enclosing
		enclosing.NestedTypes = append(enclosing.NestedTypes, nested)
	}
	//
	return nil
}

func (r *reader) readMemberReferences() error {
	for _, row := range r.tables.Rows[metadata.MemberRef] {
		parent, err := r.lookupCoded(metadata.MemberRefParent, row[metadata.MemberRefClass])
		if err != nil {
			return err
		}
		//
		name, err := r.strings.Get(row[metadata.MemberRefName])
		if err != nil {
			return err
		}
		//
		signature, err := r.blob(row[metadata.MemberRefSignature])
		if err != nil {
			return err
		}
		//
		r.module.MemberReferences = append(r.module.MemberReferences,
			&MemberReference{Parent: parent, Name: name, Signature: signature, module: r.module})
	}
	//
	return nil
}

func (r *reader) readProperties() error {
	for _, row := range r.tables.Rows[metadata.Property] {
		name, err := r.strings.Get(row[metadata.PropertyName])
		if err != nil {
			return err
		}
		//
		signature, err := r.blob(row[metadata.PropertyType])
		if err != nil {
			return err
		}
		//
		r.properties = append(r.properties, &PropertyDefinition{
			Name:       name,
			Attributes: uint16(row[metadata.PropertyFlags]),
			Signature:  signature,
		})
	}
	//
	for i, row := range r.tables.Rows[metadata.PropertyMap] {
		parent, err := r.typeByRID(row[metadata.MapParent])
		if err != nil {
			return err
		}
		//
		start, end, err := r.listRange(metadata.PropertyMap, i, metadata.MapList, metadata.Property)
		if err != nil {
			return err
		}
		//
		parent.Properties = append(parent.Properties, r.properties[start:end]...)
	}
	//
	return nil
}

func (r *reader) readEvents() error {
	for _, row := range r.tables.Rows[metadata.Event] {
		name, err := r.strings.Get(row[metadata.EventName])
		if err != nil {
			return err
		}
		//
		event := &EventDefinition{Name: name, Attributes: uint16(row[metadata.EventFlags])}
		//
		if row[metadata.EventType] != 0 {
			if event.EventType, err = r.lookupType(metadata.TypeDefOrRef, row[metadata.EventType]); err != nil {
				return err
			}
		}
		//
		r.events = append(r.events, event)
	}
	//
	for i, row := range r.tables.Rows[metadata.EventMap] {
		parent, err := r.typeByRID(row[metadata.MapParent])
		if err != nil {
			return err
		}
		//
		start, end, err := r.listRange(metadata.EventMap, i, metadata.MapList, metadata.Event)
		if err != nil {
			return err
		}
		//
		parent.Events = append(parent.Events, r.events[start:end]...)
	}
	//
	return nil
}

func (r *reader) readMethodSemantics() error {
	for _, row := range r.tables.Rows[metadata.MethodSemantics] {
		var (
			semantics = metadata.MethodSemanticsAttributes(row[metadata.MethodSemanticsSemantics])
			index     = int(row[metadata.MethodSemanticsMethod]) - 1
		)
		//
		if index < 0 || index >= len(r.methods) {
			return fmt.Errorf("%w: semantics method %d out of range", metadata.ErrMalformed, index+1)
		}
		//
		method := r.methods[index]
		//
		association, err := r.lookupCoded(metadata.HasSemantics, row[metadata.MethodSemanticsAssociation])
		if err != nil {
			return err
		}
		//
		switch owner := association.(type) {
		case *PropertyDefinition:
			switch semantics {
			case metadata.SemanticsGetter:
				owner.GetMethod = method
			case metadata.SemanticsSetter:
				owner.SetMethod = method
			default:
				owner.OtherMethods = append(owner.OtherMethods, method)
			}
		case *EventDefinition:
			switch semantics {
			case metadata.SemanticsAddOn:
				owner.AddMethod = method
			case metadata.SemanticsRemoveOn:
				owner.RemoveMethod = method
			case metadata.SemanticsFire:
				owner.FireMethod = method
			default:
				owner.OtherMethods = append(owner.OtherMethods, method)
			}
		}
	}
	//
	return nil
}

// Attributes of types, methods and fields are modelled.  All others are
// retained verbatim.
func (r *reader) readCustomAttributes() error {
	for _, row := range r.tables.Rows[metadata.CustomAttribute] {
		parent, err := metadata.HasCustomAttribute.Decode(row[metadata.AttributeParent])
		if err != nil {
			return err
		}
		//
		switch parent.Table() {
		case metadata.TypeDef, metadata.MethodDef, metadata.Field:
		default:
			r.module.otherAttributes = append(r.module.otherAttributes, slices.Clone(row))
			continue
		}
		//
		owner, err := r.lookup(parent)
		if err != nil {
			return err
		}
		//
		ctor, err := r.lookupCoded(metadata.CustomAttributeType, row[metadata.AttributeType])
		if err != nil {
			return err
		}
		//
		value, err := r.blob(row[metadata.AttributeValue])
		if err != nil {
			return err
		}
		//
		attribute := &CustomAttribute{Constructor: ctor, value: value}
		//
		switch owner := owner.(type) {
		case *TypeDefinition:
			owner.CustomAttributes = append(owner.CustomAttributes, attribute)
		case *MethodDefinition:
			owner.CustomAttributes = append(owner.CustomAttributes, attribute)
		case *FieldDefinition:
			owner.CustomAttributes = append(owner.CustomAttributes, attribute)
		}
	}
	//
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (r *reader) blob(index uint32) ([]byte, error) {
	blob, err := r.blobs.Get(index)
	//
	return bytes.Clone(blob), err
}

// Determine the (zero-based, half open) range of rows in a target table owned
// by the given row of an owning table.  Each owner's run extends to the start of
// the next owner's run, or to the end of the target table.
func (r *reader) listRange(owner metadata.TableIndex, index int, column int, target metadata.TableIndex) (int,
	int, error) {
	var (
		rows  = r.tables.Rows[owner]
		count = int(r.tables.Count(target))
		start = int(rows[index][column])
		end   = count + 1
	)
	//
	if index+1 < len(rows) {
		end = int(rows[index+1][column])
	}
	//
	if start < 1 || start > end || end > count+1 {
		return 0, 0, fmt.Errorf("%w: row %d of %s table has invalid %s list", metadata.ErrMalformed, index+1, owner,
			target)
	}
	//
	return start - 1, end - 1, nil
}

func (r *reader) typeByRID(rid uint32) (*TypeDefinition, error) {
	if rid == 0 || int(rid) > len(r.module.Types) {
		return nil, fmt.Errorf("%w: type %d out of range", metadata.ErrMalformed, rid)
	}
	//
	return r.module.Types[rid-1], nil
}

func (r *reader) lookupType(coded metadata.CodedIndex, value uint32) (TypeDefOrRef, error) {
	entity, err := r.lookupCoded(coded, value)
	if err != nil {
		return nil, err
	} else if t, ok := entity.(TypeDefOrRef); ok {
		return t, nil
	}
	//
	return nil, fmt.Errorf("%w: %s is not a type", metadata.ErrMalformed, entity.FullName())
}

func (r *reader) lookupCoded(coded metadata.CodedIndex, value uint32) (Entity, error) {
	token, err := coded.Decode(value)
	if err != nil {
		return nil, err
	}
	//
	return r.lookup(token)
}

// Map a token onto the entity it refers to.  Tokens into tables which are not
// modelled are carried as raw entities.
func (r *reader) lookup(token metadata.Token) (Entity, error) {
	var (
		m     = r.module
		index = int(token.RID()) - 1
	)
	//
	if index < 0 {
		return nil, fmt.Errorf("%w: nil %s reference", metadata.ErrMalformed, token.Table())
	}
	//
	switch token.Table() {
	case metadata.Module:
		return m, nil
	case metadata.TypeDef:
		if index < len(m.Types) {
			return m.Types[index], nil
		}
	case metadata.TypeRef:
		if index < len(m.TypeReferences) {
			return m.TypeReferences[index], nil
		}
	case metadata.TypeSpec:
		if index < len(m.TypeSpecifications) {
			return m.TypeSpecifications[index], nil
		}
	case metadata.MemberRef:
		if index < len(m.MemberReferences) {
			return m.MemberReferences[index], nil
		}
	case metadata.AssemblyRef:
		if index < len(m.AssemblyReferences) {
			return m.AssemblyReferences[index], nil
		}
	case metadata.Field:
		if index < len(r.fields) {
			return r.fields[index], nil
		}
	case metadata.MethodDef:
		if index < len(r.methods) {
			return r.methods[index], nil
		}
	case metadata.Property:
		if index < len(r.properties) {
			return r.properties[index], nil
		}
	case metadata.Event:
		if index < len(r.events) {
			return r.events[index], nil
		}
	default:
		if index < int(r.tables.Count(token.Table())) {
			return rawEntity{token}, nil
		}
	}
	//
	return nil, fmt.Errorf("%w: %s row %d out of range", metadata.ErrMalformed, token.Table(), index+1)
}
