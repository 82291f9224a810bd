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
package metadata

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned (wrapped) whenever metadata cannot be decoded.
var ErrMalformed = errors.New("malformed metadata")

// ErrUnsupported is returned (wrapped) for valid metadata using features which
// are not handled.
var ErrUnsupported = errors.New("unsupported metadata")

// TableIndex identifies one of the metadata tables.
type TableIndex uint8

// Metadata tables, in the order in which they appear in the tables stream.
const (
	Module TableIndex = iota
	TypeRef
	TypeDef
	FieldPtr
	Field
	MethodPtr
	MethodDef
	ParamPtr
	Param
	InterfaceImpl
	MemberRef
	Constant
	CustomAttribute
	FieldMarshal
	DeclSecurity
	ClassLayout
	FieldLayout
	StandAloneSig
	EventMap
	EventPtr
	Event
	PropertyMap
	PropertyPtr
	Property
	MethodSemantics
	MethodImpl
	ModuleRef
	TypeSpec
	ImplMap
	FieldRVA
	ENCLog
	ENCMap
	Assembly
	AssemblyProcessor
	AssemblyOS
	AssemblyRef
	AssemblyRefProcessor
	AssemblyRefOS
	File
	ExportedType
	ManifestResource
	NestedClass
	GenericParam
	MethodSpec
	GenericParamConstraint
	// NumTables is the number of tables known.
	NumTables
)

// Placeholder for unused tags in a coded index.
const unusedTable TableIndex = 0xFF

// String returns the name of this table.
func (t TableIndex) String() string {
	if t < NumTables {
		return schemas[t].Name
	}
	//
	return fmt.Sprintf("table(0x%02x)", uint8(t))
}

// Token is a metadata token, combining a table index (upper byte) with a one
// based row identifier (lower three bytes).
type Token uint32

// NewToken constructs a token from a table and row identifier.
func NewToken(table TableIndex, rid uint32) Token {
	return Token(uint32(table)<<24 | rid&0xFFFFFF)
}

// Table returns the table identified by this token.
func (t Token) Table() TableIndex {
	return TableIndex(t >> 24)
}

// RID returns the row identifier of this token.
func (t Token) RID() uint32 {
	return uint32(t) & 0xFFFFFF
}

// IsNil checks whether this token refers to no row.
func (t Token) IsNil() bool {
	return t.RID() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}
