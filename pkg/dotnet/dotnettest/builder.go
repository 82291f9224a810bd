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
package dotnettest

import (
	"bytes"
	"cmp"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/consensys/go-publicizer/pkg/peimage"
)

// TextRVA is the address at which the single section of a built image is
// mapped.  The CLI header sits at its start, followed by method bodies and
// then the metadata.
const TextRVA uint32 = 0x2000

const cliHeaderSize = 72

// Builder assembles a minimal managed DLL row by row.  Rows are appended in
// the order given, hence members must be added immediately after their
// declaring type.
type Builder struct {
	// Name of the metadata stream holding the tables.  Setting this to "#-"
	// produces an image with uncompressed tables.
	TablesStreamName string
	// Runtime version string of the metadata root.
	Version string
	// Sets the strong name signed flag in the CLI header.
	StrongNameSigned bool
	//
	tables  *metadata.Tables
	strings *metadata.StringHeapBuilder
	blobs   *metadata.BlobHeapBuilder
	guids   []byte
	code    []byte
	err     error
}

// NewBuilder constructs a builder for a module with the given name, which
// defines an assembly of the same name (less any extension).
func NewBuilder(module string, assembly string) *Builder {
	b := &Builder{
		TablesStreamName: metadata.TablesStreamName,
		Version:          metadata.DefaultVersion,
		tables:           metadata.NewTables(),
		strings:          metadata.NewStringHeapBuilder(nil),
		blobs:            metadata.NewBlobHeapBuilder(nil),
		guids:            []byte("0123456789abcdef"),
	}
	//
	b.tables.Append(metadata.Module, metadata.Row{0, b.str(module), 1, 0, 0})
	//
	if assembly != "" {
		b.tables.Append(metadata.Assembly, metadata.Row{0x8004, 1, 0, 0, 0, 0, 0, b.str(assembly), 0})
	}
	//
	return b
}

// AssemblyRef appends a reference to the named assembly (version 4.0.0.0).
func (b *Builder) AssemblyRef(name string) metadata.Token {
	rid := b.tables.Append(metadata.AssemblyRef, metadata.Row{4, 0, 0, 0, 0, 0, b.str(name), 0, 0})
	//
	return metadata.NewToken(metadata.AssemblyRef, rid)
}

// TypeRef appends a reference to a type within the given resolution scope.
func (b *Builder) TypeRef(scope metadata.Token, namespace string, name string) metadata.Token {
	rid := b.tables.Append(metadata.TypeRef, metadata.Row{b.coded(metadata.ResolutionScope, scope), b.str(name),
		b.str(namespace)})
	//
	return metadata.NewToken(metadata.TypeRef, rid)
}

// TypeSpec appends a type specification.
func (b *Builder) TypeSpec(signature []byte) metadata.Token {
	rid := b.tables.Append(metadata.TypeSpec, metadata.Row{b.blob(signature)})
	//
	return metadata.NewToken(metadata.TypeSpec, rid)
}

// TypeDef appends a type definition.  A nil extends token indicates no base
// type.
func (b *Builder) TypeDef(flags metadata.TypeAttributes, namespace string, name string,
	extends metadata.Token) metadata.Token {
	var base uint32
	//
	if !extends.IsNil() {
		base = b.coded(metadata.TypeDefOrRef, extends)
	}
	//
	rid := b.tables.Append(metadata.TypeDef, metadata.Row{uint32(flags), b.str(name), b.str(namespace), base,
		b.tables.Count(metadata.Field) + 1, b.tables.Count(metadata.MethodDef) + 1})
	//
	return metadata.NewToken(metadata.TypeDef, rid)
}

// Nested records that one type is nested within another.
func (b *Builder) Nested(nested metadata.Token, enclosing metadata.Token) {
	b.tables.Append(metadata.NestedClass, metadata.Row{nested.RID(), enclosing.RID()})
}

// Field appends a field to the most recently added type.
func (b *Builder) Field(flags metadata.FieldAttributes, name string, signature []byte) metadata.Token {
	rid := b.tables.Append(metadata.Field, metadata.Row{uint32(flags), b.str(name), b.blob(signature)})
	//
	return metadata.NewToken(metadata.Field, rid)
}

// Method appends a method to the most recently added type.  The body holds an
// encoded method body (header included), or is nil for methods without one.
func (b *Builder) Method(flags metadata.MethodAttributes, impl metadata.MethodImplAttributes, name string,
	signature []byte, body []byte) metadata.Token {
	var rva uint32
	//
	if body != nil {
		for len(b.code)%4 != 0 {
			b.code = append(b.code, 0)
		}
		//
		rva = TextRVA + cliHeaderSize + uint32(len(b.code))
		b.code = append(b.code, body...)
	}
	//
	rid := b.tables.Append(metadata.MethodDef, metadata.Row{rva, uint32(impl), uint32(flags), b.str(name),
		b.blob(signature), b.tables.Count(metadata.Param) + 1})
	//
	return metadata.NewToken(metadata.MethodDef, rid)
}

// Param appends a parameter to the most recently added method.
func (b *Builder) Param(sequence uint16, name string) {
	b.tables.Append(metadata.Param, metadata.Row{0, uint32(sequence), b.str(name)})
}

// MemberRef appends a reference to a member of the given parent.
func (b *Builder) MemberRef(parent metadata.Token, name string, signature []byte) metadata.Token {
	rid := b.tables.Append(metadata.MemberRef, metadata.Row{b.coded(metadata.MemberRefParent, parent), b.str(name),
		b.blob(signature)})
	//
	return metadata.NewToken(metadata.MemberRef, rid)
}

// Attribute applies a custom attribute to the given parent.
func (b *Builder) Attribute(parent metadata.Token, constructor metadata.Token, value []byte) {
	b.tables.Append(metadata.CustomAttribute, metadata.Row{b.coded(metadata.HasCustomAttribute, parent),
		b.coded(metadata.CustomAttributeType, constructor), b.blob(value)})
}

// Property appends a property of the given type, along with the semantics of
// its accessors.  Nil accessor tokens are omitted.
func (b *Builder) Property(owner metadata.Token, name string, signature []byte, getter metadata.Token,
	setter metadata.Token) metadata.Token {
	rid := b.tables.Append(metadata.Property, metadata.Row{0, b.str(name), b.blob(signature)})
	token := metadata.NewToken(metadata.Property, rid)
	//
	b.mapRow(metadata.PropertyMap, owner, rid)
	b.semantics(metadata.SemanticsGetter, getter, token)
	b.semantics(metadata.SemanticsSetter, setter, token)
	//
	return token
}

// Event appends an event of the given type, along with the semantics of its
// accessors.  Nil accessor tokens are omitted.
func (b *Builder) Event(owner metadata.Token, name string, eventType metadata.Token, add metadata.Token,
	remove metadata.Token) metadata.Token {
	rid := b.tables.Append(metadata.Event, metadata.Row{0, b.str(name), b.coded(metadata.TypeDefOrRef, eventType)})
	token := metadata.NewToken(metadata.Event, rid)
	//
	b.mapRow(metadata.EventMap, owner, rid)
	b.semantics(metadata.SemanticsAddOn, add, token)
	b.semantics(metadata.SemanticsRemoveOn, remove, token)
	//
	return token
}

// Build encodes the image.
func (b *Builder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	// Sorted tables
	sortBy(b.tables.Rows[metadata.CustomAttribute], metadata.AttributeParent)
	sortBy(b.tables.Rows[metadata.NestedClass], metadata.NestedClassNested)
	sortBy(b.tables.Rows[metadata.MethodSemantics], metadata.MethodSemanticsAssociation)
	//
	var (
		strings = b.strings.Bytes()
		blobs   = b.blobs.Bytes()
		root    = metadata.NewRoot(b.Version)
	)
	//
	tables, err := b.tables.MarshalBinary(metadata.HeapSizes{Strings: len(strings), Guid: len(b.guids),
		Blob: len(blobs)})
	if err != nil {
		return nil, err
	}
	//
	root.SetStream(b.TablesStreamName, tables)
	root.SetStream(metadata.StringsStreamName, strings)
	root.SetStream(metadata.UserStringsStreamName, []byte{0})
	root.SetStream(metadata.GuidStreamName, b.guids)
	root.SetStream(metadata.BlobStreamName, blobs)
	//
	md, err := root.MarshalBinary()
	if err != nil {
		return nil, err
	}
	//
	var (
		section = make([]byte, cliHeaderSize, cliHeaderSize+len(b.code)+len(md)+4)
		flags   = metadata.ComImageILOnly
	)
	//
	section = append(section, b.code...)
	for len(section)%4 != 0 {
		section = append(section, 0)
	}
	//
	if b.StrongNameSigned {
		flags |= metadata.ComImageStrongNameSigned
	}
	//
	header := []any{uint32(cliHeaderSize), uint16(2), uint16(5),
		pe.DataDirectory{VirtualAddress: TextRVA + uint32(len(section)), Size: uint32(len(md))}, flags}
	//
	var buffer bytes.Buffer
	for _, field := range header {
		_ = binary.Write(&buffer, binary.LittleEndian, field)
	}
	//
	copy(section, buffer.Bytes())
	section = append(section, md...)
	//
	img := peimage.New(pe.IMAGE_FILE_MACHINE_I386, pe.IMAGE_FILE_EXECUTABLE_IMAGE|pe.IMAGE_FILE_DLL)
	//
	if img.NextVirtualAddress() != TextRVA {
		return nil, fmt.Errorf("unexpected section address 0x%x", img.NextVirtualAddress())
	}
	//
	chars := peimage.SectionCode | peimage.SectionMemExecute | peimage.SectionMemRead
	if _, err := img.AddSection(".text", section, chars); err != nil {
		return nil, err
	}
	//
	img.SetDataDirectory(peimage.DirectoryCLR, pe.DataDirectory{VirtualAddress: TextRVA, Size: cliHeaderSize})
	//
	return img.Bytes()
}

// ============================================================================
// Helpers
// ============================================================================

// Append a property or event map row, unless the owner already has one (in
// which case its list already covers the new row).
func (b *Builder) mapRow(table metadata.TableIndex, owner metadata.Token, rid uint32) {
	rows := b.tables.Rows[table]
	//
	if len(rows) > 0 && rows[len(rows)-1][metadata.MapParent] == owner.RID() {
		return
	}
	//
	b.tables.Append(table, metadata.Row{owner.RID(), rid})
}

func (b *Builder) semantics(semantics metadata.MethodSemanticsAttributes, method metadata.Token,
	association metadata.Token) {
	if method.IsNil() {
		return
	}
	//
	b.tables.Append(metadata.MethodSemantics, metadata.Row{uint32(semantics), method.RID(),
		b.coded(metadata.HasSemantics, association)})
}

func (b *Builder) str(s string) uint32 {
	index, err := b.strings.Add(s)
	b.record(err)
	//
	return index
}

func (b *Builder) blob(data []byte) uint32 {
	index, err := b.blobs.Add(data)
	b.record(err)
	//
	return index
}

func (b *Builder) coded(coded metadata.CodedIndex, token metadata.Token) uint32 {
	value, err := coded.Encode(token)
	b.record(err)
	//
	return value
}

func (b *Builder) record(err error) {
	if b.err == nil {
		b.err = err
	}
}

func sortBy(rows []metadata.Row, column int) {
	slices.SortStableFunc(rows, func(x, y metadata.Row) int {
		return cmp.Compare(x[column], y[column])
	})
}
