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

// ============================================================================
// Type attributes (ECMA-335 II.23.1.15)
// ============================================================================

// TypeAttributes holds the flags of a TypeDef row.
type TypeAttributes uint32

// Visibility sub-mask and its values.  Exactly one value applies.
const (
	TypeVisibilityMask    TypeAttributes = 0x00000007
	TypeNotPublic         TypeAttributes = 0x00000000
	TypePublic            TypeAttributes = 0x00000001
	TypeNestedPublic      TypeAttributes = 0x00000002
	TypeNestedPrivate     TypeAttributes = 0x00000003
	TypeNestedFamily      TypeAttributes = 0x00000004
	TypeNestedAssembly    TypeAttributes = 0x00000005
	TypeNestedFamANDAssem TypeAttributes = 0x00000006
	TypeNestedFamORAssem  TypeAttributes = 0x00000007
)

// Remaining type attributes.
const (
	TypeLayoutMask         TypeAttributes = 0x00000018
	TypeClassSemanticsMask TypeAttributes = 0x00000020
	TypeInterface          TypeAttributes = 0x00000020
	TypeAbstract           TypeAttributes = 0x00000080
	TypeSealed             TypeAttributes = 0x00000100
	TypeSpecialName        TypeAttributes = 0x00000400
	TypeRTSpecialName      TypeAttributes = 0x00000800
	TypeImport             TypeAttributes = 0x00001000
	TypeSerializable       TypeAttributes = 0x00002000
	TypeHasSecurity        TypeAttributes = 0x00040000
	TypeBeforeFieldInit    TypeAttributes = 0x00100000
)

// Visibility returns the visibility sub-mask of these attributes.
func (a TypeAttributes) Visibility() TypeAttributes {
	return a & TypeVisibilityMask
}

// WithVisibility returns these attributes with the visibility sub-mask
// replaced, leaving every other bit unchanged.
func (a TypeAttributes) WithVisibility(visibility TypeAttributes) TypeAttributes {
	return a&^TypeVisibilityMask | visibility&TypeVisibilityMask
}

// VisibilityString returns a human-readable form of the visibility sub-mask.
func (a TypeAttributes) VisibilityString() string {
	return [...]string{"internal", "public", "nested public", "nested private", "nested protected",
		"nested internal", "nested private protected", "nested protected internal"}[a.Visibility()]
}

// ============================================================================
// Method attributes (ECMA-335 II.23.1.10)
// ============================================================================

// MethodAttributes holds the flags of a MethodDef row.
type MethodAttributes uint16

// Member access sub-mask and its values.
const (
	MethodMemberAccessMask   MethodAttributes = 0x0007
	MethodCompilerControlled MethodAttributes = 0x0000
	MethodPrivate            MethodAttributes = 0x0001
	MethodFamANDAssem        MethodAttributes = 0x0002
	MethodAssembly           MethodAttributes = 0x0003
	MethodFamily             MethodAttributes = 0x0004
	MethodFamORAssem         MethodAttributes = 0x0005
	MethodPublic             MethodAttributes = 0x0006
)

// Remaining method attributes.
const (
	MethodStatic        MethodAttributes = 0x0010
	MethodFinal         MethodAttributes = 0x0020
	MethodVirtual       MethodAttributes = 0x0040
	MethodHideBySig     MethodAttributes = 0x0080
	MethodNewSlot       MethodAttributes = 0x0100
	MethodStrict        MethodAttributes = 0x0200
	MethodAbstract      MethodAttributes = 0x0400
	MethodSpecialName   MethodAttributes = 0x0800
	MethodRTSpecialName MethodAttributes = 0x1000
	MethodPinvokeImpl   MethodAttributes = 0x2000
	MethodHasSecurity   MethodAttributes = 0x4000
)

// Access returns the member access sub-mask of these attributes.
func (a MethodAttributes) Access() MethodAttributes {
	return a & MethodMemberAccessMask
}

// WithAccess returns these attributes with the member access sub-mask
// replaced, leaving every other bit unchanged.
func (a MethodAttributes) WithAccess(access MethodAttributes) MethodAttributes {
	return a&^MethodMemberAccessMask | access&MethodMemberAccessMask
}

// AccessString returns a human-readable form of the member access sub-mask.
func (a MethodAttributes) AccessString() string {
	return accessNames[a.Access()]
}

// MethodImplAttributes holds the implementation flags of a MethodDef row.
type MethodImplAttributes uint16

// Method implementation attributes.
const (
	MethodImplCodeTypeMask       MethodImplAttributes = 0x0003
	MethodImplIL                 MethodImplAttributes = 0x0000
	MethodImplNative             MethodImplAttributes = 0x0001
	MethodImplOPTIL              MethodImplAttributes = 0x0002
	MethodImplRuntime            MethodImplAttributes = 0x0003
	MethodImplUnmanaged          MethodImplAttributes = 0x0004
	MethodImplNoInlining         MethodImplAttributes = 0x0008
	MethodImplForwardRef         MethodImplAttributes = 0x0010
	MethodImplSynchronized       MethodImplAttributes = 0x0020
	MethodImplNoOptimization     MethodImplAttributes = 0x0040
	MethodImplPreserveSig        MethodImplAttributes = 0x0080
	MethodImplAggressiveInlining MethodImplAttributes = 0x0100
	MethodImplInternalCall       MethodImplAttributes = 0x1000
)

// ============================================================================
// Field attributes (ECMA-335 II.23.1.5)
// ============================================================================

// FieldAttributes holds the flags of a Field row.
type FieldAttributes uint16

// Field access sub-mask and its values.
const (
	FieldAccessMask   FieldAttributes = 0x0007
	FieldPrivateScope FieldAttributes = 0x0000
	FieldPrivate      FieldAttributes = 0x0001
	FieldFamANDAssem  FieldAttributes = 0x0002
	FieldAssembly     FieldAttributes = 0x0003
	FieldFamily       FieldAttributes = 0x0004
	FieldFamORAssem   FieldAttributes = 0x0005
	FieldPublic       FieldAttributes = 0x0006
)

// Remaining field attributes.
const (
	FieldStatic          FieldAttributes = 0x0010
	FieldInitOnly        FieldAttributes = 0x0020
	FieldLiteral         FieldAttributes = 0x0040
	FieldNotSerialized   FieldAttributes = 0x0080
	FieldHasFieldRVA     FieldAttributes = 0x0100
	FieldSpecialName     FieldAttributes = 0x0200
	FieldRTSpecialName   FieldAttributes = 0x0400
	FieldHasFieldMarshal FieldAttributes = 0x1000
	FieldPinvokeImpl     FieldAttributes = 0x2000
	FieldHasDefault      FieldAttributes = 0x8000
)

// Access returns the field access sub-mask of these attributes.
func (a FieldAttributes) Access() FieldAttributes {
	return a & FieldAccessMask
}

// WithAccess returns these attributes with the field access sub-mask
// replaced, leaving every other bit unchanged.
func (a FieldAttributes) WithAccess(access FieldAttributes) FieldAttributes {
	return a&^FieldAccessMask | access&FieldAccessMask
}

// AccessString returns a human-readable form of the field access sub-mask.
func (a FieldAttributes) AccessString() string {
	return accessNames[a.Access()]
}

var accessNames = [...]string{"compiler-controlled", "private", "private protected", "internal", "protected",
	"protected internal", "public", "invalid"}

// ============================================================================
// Method semantics (ECMA-335 II.23.1.12)
// ============================================================================

// MethodSemanticsAttributes holds the flags of a MethodSemantics row.
type MethodSemanticsAttributes uint16

// Method semantics
const (
	SemanticsSetter   MethodSemanticsAttributes = 0x0001
	SemanticsGetter   MethodSemanticsAttributes = 0x0002
	SemanticsOther    MethodSemanticsAttributes = 0x0004
	SemanticsAddOn    MethodSemanticsAttributes = 0x0008
	SemanticsRemoveOn MethodSemanticsAttributes = 0x0010
	SemanticsFire     MethodSemanticsAttributes = 0x0020
)

// ============================================================================
// CLI header flags (ECMA-335 II.25.3.3.1)
// ============================================================================

// Runtime flags of the CLI header.
const (
	ComImageILOnly           uint32 = 0x00000001
	ComImage32BitRequired    uint32 = 0x00000002
	ComImageStrongNameSigned uint32 = 0x00000008
	ComImageNativeEntryPoint uint32 = 0x00000010
	ComImage32BitPreferred   uint32 = 0x00020000
)
