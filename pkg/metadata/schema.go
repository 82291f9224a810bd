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

import "fmt"

// ColumnKind determines how a column is encoded.
type ColumnKind uint8

// Column kinds
const (
	// Two byte constant
	ColUint16 ColumnKind = iota
	// Four byte constant
	ColUint32
	// Index into the #Strings heap
	ColString
	// Index into the #GUID heap
	ColGuid
	// Index into the #Blob heap
	ColBlob
	// Index into a single table
	ColTable
	// Coded index into one of several tables
	ColCoded
)

// Column describes a single column of a metadata table.
type Column struct {
	Name  string
	Kind  ColumnKind
	Table TableIndex
	Coded CodedIndex
}

// Schema describes the layout of a metadata table.
type Schema struct {
	Name    string
	Columns []Column
}

// GetSchema returns the schema for a given table.
func GetSchema(table TableIndex) *Schema {
	return &schemas[table]
}

// ============================================================================
// Coded indices
// ============================================================================

// CodedIndex identifies one of the coded index kinds, which combine a tag
// selecting a table with a row identifier.
type CodedIndex uint8

// Coded index kinds
const (
	TypeDefOrRef CodedIndex = iota
	HasConstant
	HasCustomAttribute
	HasFieldMarshal
	HasDeclSecurity
	MemberRefParent
	HasSemantics
	MethodDefOrRef
	MemberForwarded
	Implementation
	CustomAttributeType
	ResolutionScope
	TypeOrMethodDef
)

type codedIndexInfo struct {
	bits   uint
	tables []TableIndex
}

var codedIndices = [...]codedIndexInfo{
	TypeDefOrRef:    {2, []TableIndex{TypeDef, TypeRef, TypeSpec}},
	HasConstant:     {2, []TableIndex{Field, Param, Property}},
	HasCustomAttribute: {5, []TableIndex{MethodDef, Field, TypeRef, TypeDef, Param, InterfaceImpl, MemberRef,
		Module, DeclSecurity, Property, Event, StandAloneSig, ModuleRef, TypeSpec, Assembly, AssemblyRef, File,
		ExportedType, ManifestResource, GenericParam, GenericParamConstraint, MethodSpec}},
	HasFieldMarshal:     {1, []TableIndex{Field, Param}},
	HasDeclSecurity:     {2, []TableIndex{TypeDef, MethodDef, Assembly}},
	MemberRefParent:     {3, []TableIndex{TypeDef, TypeRef, ModuleRef, MethodDef, TypeSpec}},
	HasSemantics:        {1, []TableIndex{Event, Property}},
	MethodDefOrRef:      {1, []TableIndex{MethodDef, MemberRef}},
	MemberForwarded:     {1, []TableIndex{Field, MethodDef}},
	Implementation:      {2, []TableIndex{File, AssemblyRef, ExportedType}},
	CustomAttributeType: {3, []TableIndex{unusedTable, unusedTable, MethodDef, MemberRef, unusedTable}},
	ResolutionScope:     {2, []TableIndex{Module, ModuleRef, AssemblyRef, TypeRef}},
	TypeOrMethodDef:     {1, []TableIndex{TypeDef, MethodDef}},
}

// Decode a coded index value into a token.
func (c CodedIndex) Decode(value uint32) (Token, error) {
	var (
		info = &codedIndices[c]
		tag  = value & (1<<info.bits - 1)
	)
	//
	if tag >= uint32(len(info.tables)) || info.tables[tag] == unusedTable {
		return 0, fmt.Errorf("%w: invalid tag %d for coded index", ErrMalformed, tag)
	}
	//
	return NewToken(info.tables[tag], value>>info.bits), nil
}

// Encode a token as a coded index value.
func (c CodedIndex) Encode(token Token) (uint32, error) {
	info := &codedIndices[c]
	//
	for tag, table := range info.tables {
		if table == token.Table() {
			return token.RID()<<info.bits | uint32(tag), nil
		}
	}
	//
	return 0, fmt.Errorf("token %s cannot be encoded as this coded index", token)
}

// ============================================================================
// Schemas
// ============================================================================

func fixed16(name string) Column                { return Column{Name: name, Kind: ColUint16} }
func fixed32(name string) Column                { return Column{Name: name, Kind: ColUint32} }
func strCol(name string) Column                 { return Column{Name: name, Kind: ColString} }
func guidCol(name string) Column                { return Column{Name: name, Kind: ColGuid} }
func blobCol(name string) Column                { return Column{Name: name, Kind: ColBlob} }
func tableCol(name string, t TableIndex) Column { return Column{Name: name, Kind: ColTable, Table: t} }
func codedCol(name string, c CodedIndex) Column { return Column{Name: name, Kind: ColCoded, Coded: c} }

var schemas = [NumTables]Schema{
	Module:    {"Module", []Column{fixed16("Generation"), strCol("Name"), guidCol("Mvid"), guidCol("EncId"), guidCol("EncBaseId")}},
	TypeRef:   {"TypeRef", []Column{codedCol("ResolutionScope", ResolutionScope), strCol("TypeName"), strCol("TypeNamespace")}},
	TypeDef: {"TypeDef", []Column{fixed32("Flags"), strCol("TypeName"), strCol("TypeNamespace"), codedCol("Extends", TypeDefOrRef),
		tableCol("FieldList", Field), tableCol("MethodList", MethodDef)}},
	FieldPtr:  {"FieldPtr", []Column{tableCol("Field", Field)}},
	Field:     {"Field", []Column{fixed16("Flags"), strCol("Name"), blobCol("Signature")}},
	MethodPtr: {"MethodPtr", []Column{tableCol("Method", MethodDef)}},
	MethodDef: {"MethodDef", []Column{fixed32("RVA"), fixed16("ImplFlags"), fixed16("Flags"), strCol("Name"), blobCol("Signature"),
		tableCol("ParamList", Param)}},
	ParamPtr:        {"ParamPtr", []Column{tableCol("Param", Param)}},
	Param:           {"Param", []Column{fixed16("Flags"), fixed16("Sequence"), strCol("Name")}},
	InterfaceImpl:   {"InterfaceImpl", []Column{tableCol("Class", TypeDef), codedCol("Interface", TypeDefOrRef)}},
	MemberRef:       {"MemberRef", []Column{codedCol("Class", MemberRefParent), strCol("Name"), blobCol("Signature")}},
	Constant:        {"Constant", []Column{fixed16("Type"), codedCol("Parent", HasConstant), blobCol("Value")}},
	CustomAttribute: {"CustomAttribute", []Column{codedCol("Parent", HasCustomAttribute), codedCol("Type", CustomAttributeType), blobCol("Value")}},
	FieldMarshal:    {"FieldMarshal", []Column{codedCol("Parent", HasFieldMarshal), blobCol("NativeType")}},
	DeclSecurity:    {"DeclSecurity", []Column{fixed16("Action"), codedCol("Parent", HasDeclSecurity), blobCol("PermissionSet")}},
	ClassLayout:     {"ClassLayout", []Column{fixed16("PackingSize"), fixed32("ClassSize"), tableCol("Parent", TypeDef)}},
	FieldLayout:     {"FieldLayout", []Column{fixed32("Offset"), tableCol("Field", Field)}},
	StandAloneSig:   {"StandAloneSig", []Column{blobCol("Signature")}},
	EventMap:        {"EventMap", []Column{tableCol("Parent", TypeDef), tableCol("EventList", Event)}},
	EventPtr:        {"EventPtr", []Column{tableCol("Event", Event)}},
	Event:           {"Event", []Column{fixed16("EventFlags"), strCol("Name"), codedCol("EventType", TypeDefOrRef)}},
	PropertyMap:     {"PropertyMap", []Column{tableCol("Parent", TypeDef), tableCol("PropertyList", Property)}},
	PropertyPtr:     {"PropertyPtr", []Column{tableCol("Property", Property)}},
	Property:        {"Property", []Column{fixed16("Flags"), strCol("Name"), blobCol("Type")}},
	MethodSemantics: {"MethodSemantics", []Column{fixed16("Semantics"), tableCol("Method", MethodDef), codedCol("Association", HasSemantics)}},
	MethodImpl: {"MethodImpl", []Column{tableCol("Class", TypeDef), codedCol("MethodBody", MethodDefOrRef),
		codedCol("MethodDeclaration", MethodDefOrRef)}},
	ModuleRef: {"ModuleRef", []Column{strCol("Name")}},
	TypeSpec:  {"TypeSpec", []Column{blobCol("Signature")}},
	ImplMap: {"ImplMap", []Column{fixed16("MappingFlags"), codedCol("MemberForwarded", MemberForwarded), strCol("ImportName"),
		tableCol("ImportScope", ModuleRef)}},
	FieldRVA: {"FieldRVA", []Column{fixed32("RVA"), tableCol("Field", Field)}},
	ENCLog:   {"ENCLog", []Column{fixed32("Token"), fixed32("FuncCode")}},
	ENCMap:   {"ENCMap", []Column{fixed32("Token")}},
	Assembly: {"Assembly", []Column{fixed32("HashAlgId"), fixed16("MajorVersion"), fixed16("MinorVersion"), fixed16("BuildNumber"),
		fixed16("RevisionNumber"), fixed32("Flags"), blobCol("PublicKey"), strCol("Name"), strCol("Culture")}},
	AssemblyProcessor: {"AssemblyProcessor", []Column{fixed32("Processor")}},
	AssemblyOS:        {"AssemblyOS", []Column{fixed32("OSPlatformID"), fixed32("OSMajorVersion"), fixed32("OSMinorVersion")}},
	AssemblyRef: {"AssemblyRef", []Column{fixed16("MajorVersion"), fixed16("MinorVersion"), fixed16("BuildNumber"),
		fixed16("RevisionNumber"), fixed32("Flags"), blobCol("PublicKeyOrToken"), strCol("Name"), strCol("Culture"), blobCol("HashValue")}},
	AssemblyRefProcessor: {"AssemblyRefProcessor", []Column{fixed32("Processor"), tableCol("AssemblyRef", AssemblyRef)}},
	AssemblyRefOS: {"AssemblyRefOS", []Column{fixed32("OSPlatformId"), fixed32("OSMajorVersion"), fixed32("OSMinorVersion"),
		tableCol("AssemblyRef", AssemblyRef)}},
	File: {"File", []Column{fixed32("Flags"), strCol("Name"), blobCol("HashValue")}},
	ExportedType: {"ExportedType", []Column{fixed32("Flags"), fixed32("TypeDefId"), strCol("TypeName"), strCol("TypeNamespace"),
		codedCol("Implementation", Implementation)}},
	ManifestResource: {"ManifestResource", []Column{fixed32("Offset"), fixed32("Flags"), strCol("Name"),
		codedCol("Implementation", Implementation)}},
	NestedClass:            {"NestedClass", []Column{tableCol("NestedClass", TypeDef), tableCol("EnclosingClass", TypeDef)}},
	GenericParam:           {"GenericParam", []Column{fixed16("Number"), fixed16("Flags"), codedCol("Owner", TypeOrMethodDef), strCol("Name")}},
	MethodSpec:             {"MethodSpec", []Column{codedCol("Method", MethodDefOrRef), blobCol("Instantiation")}},
	GenericParamConstraint: {"GenericParamConstraint", []Column{tableCol("Owner", GenericParam), codedCol("Constraint", TypeDefOrRef)}},
}

// Column positions for the tables accessed by name.
const (
	ModuleGeneration = 0
	ModuleName       = 1
	ModuleMvid       = 2
)

// TypeRef columns
const (
	TypeRefResolutionScope = 0
	TypeRefName            = 1
	TypeRefNamespace       = 2
)

// TypeDef columns
const (
	TypeDefFlags      = 0
	TypeDefName       = 1
	TypeDefNamespace  = 2
	TypeDefExtends    = 3
	TypeDefFieldList  = 4
	TypeDefMethodList = 5
)

// Field columns
const (
	FieldFlags     = 0
	FieldName      = 1
	FieldSignature = 2
)

// MethodDef columns
const (
	MethodDefRVA       = 0
	MethodDefImplFlags = 1
	MethodDefFlags     = 2
	MethodDefName      = 3
	MethodDefSignature = 4
	MethodDefParamList = 5
)

// Param columns
const (
	ParamFlags    = 0
	ParamSequence = 1
	ParamName     = 2
)

// MemberRef columns
const (
	MemberRefClass     = 0
	MemberRefName      = 1
	MemberRefSignature = 2
)

// CustomAttribute columns
const (
	AttributeParent = 0
	AttributeType   = 1
	AttributeValue  = 2
)

// EventMap and PropertyMap columns
const (
	MapParent = 0
	MapList   = 1
)

// Event columns
const (
	EventFlags = 0
	EventName  = 1
	EventType  = 2
)

// Property columns
const (
	PropertyFlags = 0
	PropertyName  = 1
	PropertyType  = 2
)

// MethodSemantics columns
const (
	MethodSemanticsSemantics   = 0
	MethodSemanticsMethod      = 1
	MethodSemanticsAssociation = 2
)

// NestedClass columns
const (
	NestedClassNested    = 0
	NestedClassEnclosing = 1
)

// TypeSpec columns
const (
	TypeSpecSignature = 0
)

// Assembly columns
const (
	AssemblyMajorVersion = 1
	AssemblyName         = 7
)

// AssemblyRef columns
const (
	AssemblyRefMajorVersion = 0
	AssemblyRefName         = 6
)
