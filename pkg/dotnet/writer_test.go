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
	"errors"
	"testing"

	"github.com/consensys/go-publicizer/pkg/dotnet/dotnettest"
	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================================================================
// Round trips
// ===================================================================

func Test_Write_00(t *testing.T) {
	original := readSample(t)
	m := checkRoundTrip(t, original)
	//
	require.Len(t, m.Types, len(original.Types))
	//
	for i, typ := range original.Types {
		other := m.Types[i]
		assert.Equal(t, typ.FullName(), other.FullName())
		assert.Equal(t, typ.Attributes, other.Attributes)
		assert.Len(t, other.Methods, len(typ.Methods))
		assert.Len(t, other.Fields, len(typ.Fields))
		assert.Len(t, other.CustomAttributes, len(typ.CustomAttributes))
	}
	//
	assert.Len(t, m.otherAttributes, 1)
	assert.Equal(t, original.Mvid, m.Mvid)
	assert.Equal(t, original.RuntimeVersion(), m.RuntimeVersion())
}

func Test_Write_01(t *testing.T) {
	m := readSample(t)
	//
	first, err := m.Bytes()
	require.NoError(t, err)
	//
	second, err := m.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
	//
	var buffer bytes.Buffer
	require.NoError(t, m.Write(&buffer))
	assert.True(t, bytes.Equal(first, buffer.Bytes()))
}

// ===================================================================
// Modifications
// ===================================================================

func Test_Write_02(t *testing.T) {
	var (
		m     = readSample(t)
		foo   = findType(t, m, dotnettest.Foo)
		inner = findType(t, m, dotnettest.FooInner)
		bar   = findMethod(t, foo, "Bar")
		x     = findField(t, foo, "_x")
	)
	//
	foo.Attributes = foo.Attributes.WithVisibility(metadata.TypePublic)
	inner.Attributes = inner.Attributes.WithVisibility(metadata.TypeNestedPublic)
	bar.Attributes = bar.Attributes.WithAccess(metadata.MethodPublic)
	bar.ImplAttributes |= metadata.MethodImplNoInlining
	x.Attributes = x.Attributes.WithAccess(metadata.FieldPublic)
	//
	m = checkRoundTrip(t, m)
	foo = findType(t, m, dotnettest.Foo)
	bar = findMethod(t, foo, "Bar")
	//
	assert.Equal(t, metadata.TypePublic|metadata.TypeBeforeFieldInit, foo.Attributes)
	assert.True(t, findType(t, m, dotnettest.FooInner).IsPublic())
	assert.Equal(t, metadata.MethodPublic|metadata.MethodHideBySig, bar.Attributes)
	assert.Equal(t, metadata.MethodImplNoInlining, bar.ImplAttributes)
	assert.True(t, findField(t, foo, "_x").IsPublic())
	// Body is retained
	body, err := bar.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, "ldarg.1; ret", body.String())
}

func Test_Write_03(t *testing.T) {
	var (
		m      = readSample(t)
		foo    = findType(t, m, dotnettest.Foo)
		getter = findMethod(t, foo, "get_Value")
	)
	//
	getter.Body = NewThrowNullBody()
	//
	m = checkRoundTrip(t, m)
	getter = findMethod(t, findType(t, m, dotnettest.Foo), "get_Value")
	//
	body, err := getter.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, "ldnull; throw", body.String())
	// Other bodies unaffected
	body, err = findMethod(t, findType(t, m, dotnettest.Foo), "set_Value").ReadBody()
	require.NoError(t, err)
	assert.Len(t, body.Instructions, 4)
}

func Test_Write_04(t *testing.T) {
	var (
		m        = readSample(t)
		foo      = findType(t, m, dotnettest.Foo)
		object   = m.TypeReferences[0]
		baseCtor = m.ImportMember(object, ".ctor", dotnettest.VoidMethod)
	)
	// New type with a field and constructor
	typ := &TypeDefinition{Namespace: "Sample", Name: "Added", Attributes: metadata.TypeNotPublic, BaseType: object}
	m.AddType(typ)
	//
	field := &FieldDefinition{Name: "value", Attributes: metadata.FieldPrivate, Signature: dotnettest.Int32Field}
	typ.AddField(field)
	//
	ctor := &MethodDefinition{
		Name:       ".ctor",
		Attributes: metadata.MethodPublic | metadata.MethodSpecialName | metadata.MethodRTSpecialName,
		Signature:  dotnettest.Int32Setter,
		Parameters: []*ParameterDefinition{{Sequence: 1, Name: "value"}},
		Body: &MethodBody{MaxStack: 8, Instructions: []Instruction{
			{Ldarg0, nil}, {Call, baseCtor}, {Ldarg0, nil}, {Ldarg1, nil}, {Stfld, field}, {Ret, nil},
		}},
	}
	typ.AddMethod(ctor)
	// Nested within an existing type
	nested := &TypeDefinition{Name: "Nested", Attributes: metadata.TypeNestedPrivate, BaseType: object,
		DeclaringType: foo}
	m.AddType(nested)
	//
	m = checkRoundTrip(t, m)
	typ = findType(t, m, "Sample.Added")
	//
	require.Len(t, typ.Fields, 1)
	require.Len(t, typ.Methods, 1)
	assert.Equal(t, "System.Int32 Sample.Added::value", typ.Fields[0].FullName())
	assert.Equal(t, "System.Void Sample.Added::.ctor(System.Int32)", typ.Methods[0].FullName())
	assert.Equal(t, "System.Object", typ.BaseType.FullName())
	//
	body, err := typ.Methods[0].ReadBody()
	require.NoError(t, err)
	require.Len(t, body.Instructions, 6)
	//
	token, ok := body.Instructions[1].Operand.(metadata.Token)
	require.True(t, ok)
	// Existing reference to System.Object::.ctor() is reused
	assert.Equal(t, metadata.NewToken(metadata.MemberRef, 1), token)
	// New field follows the seven existing ones
	assert.Equal(t, metadata.NewToken(metadata.Field, 8), body.Instructions[4].Operand)
	// Nesting
	nested = findType(t, m, "Sample.Foo+Nested")
	assert.Same(t, findType(t, m, dotnettest.Foo), nested.DeclaringType)
	// Existing members unaffected
	assert.Len(t, findType(t, m, dotnettest.Foo).Methods, 7)
}

func Test_Write_05(t *testing.T) {
	var (
		m         = readSample(t)
		api       = findType(t, m, dotnettest.Api)
		protected = findMethod(t, api, "Protected")
		scope, _  = m.CorLibScope()
		attribute = m.ImportType(scope, "System", "ObsoleteAttribute")
		ctor      = m.ImportMember(attribute, ".ctor", []byte{0x20, 0x02, 0x01, 0x0E, 0x08})
	)
	//
	protected.CustomAttributes = append(protected.CustomAttributes, NewCustomAttribute(ctor,
		&CustomAttributeSignature{FixedArguments: []FixedArgument{
			{metadata.ElementString, "gone"}, {metadata.ElementI4, int32(4)},
		}}))
	//
	m = checkRoundTrip(t, m)
	protected = findMethod(t, findType(t, m, dotnettest.Api), "Protected")
	//
	require.Len(t, protected.CustomAttributes, 1)
	assert.Equal(t, "System.ObsoleteAttribute", protected.CustomAttributes[0].TypeFullName())
	//
	args, err := protected.CustomAttributes[0].Arguments()
	require.NoError(t, err)
	assert.Equal(t, []FixedArgument{{metadata.ElementString, "gone"}, {metadata.ElementI4, int32(4)}},
		args.FixedArguments)
	// Attributes elsewhere are unaffected
	assert.Len(t, findMethod(t, findType(t, m, dotnettest.Api), "Helper").CustomAttributes, 1)
}

func Test_Write_06(t *testing.T) {
	b := dotnettest.NewBuilder("Signed.dll", "Signed")
	b.StrongNameSigned = true
	b.TypeDef(0, "", "<Module>", 0)
	//
	data, err := b.Build()
	require.NoError(t, err)
	//
	m, err := ReadModule(data)
	require.NoError(t, err)
	assert.True(t, m.IsStrongNameSigned())
	//
	m = checkRoundTrip(t, m)
	assert.False(t, m.IsStrongNameSigned())
}

// ===================================================================
// Errors
// ===================================================================

func Test_Write_07(t *testing.T) {
	var (
		m     = readSample(t)
		other = readSample(t)
		foo   = findType(t, m, dotnettest.Foo)
	)
	// Instruction refers to a field of another module
	findMethod(t, foo, "Bar").Body = &MethodBody{Instructions: []Instruction{
		{Ldarg0, nil}, {Ldfld, findField(t, findType(t, other, dotnettest.Foo), "_x")}, {Ret, nil},
	}}
	//
	checkSerializationError(t, m)
}

func Test_Write_08(t *testing.T) {
	var (
		m     = readSample(t)
		other = readSample(t)
		api   = findType(t, m, dotnettest.Api)
	)
	// Attribute constructor from another module
	api.CustomAttributes = append(api.CustomAttributes,
		NewCustomAttribute(other.MemberReferences[1], &CustomAttributeSignature{}))
	//
	checkSerializationError(t, m)
}

func Test_Write_09(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
	)
	// Members cannot be added to existing types
	foo.AddMethod(&MethodDefinition{Name: "Extra", Signature: dotnettest.VoidMethod, Body: NewThrowNullBody()})
	//
	checkSerializationError(t, m)
}

func Test_Write_10(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
	)
	// Nor can they be removed
	foo.Fields = foo.Fields[1:]
	//
	checkSerializationError(t, m)
}

func Test_Write_11(t *testing.T) {
	var (
		m     = readSample(t)
		other = readSample(t)
	)
	// Types cannot be shared between modules
	m.Types = append(m.Types, findType(t, other, dotnettest.Foo))
	//
	checkSerializationError(t, m)
}

// ===================================================================
// Test Helpers
// ===================================================================

// Write a module and read it back.
func checkRoundTrip(t *testing.T, m *Module) *Module {
	t.Helper()
	//
	data, err := m.Bytes()
	require.NoError(t, err)
	//
	result, err := ReadModule(data)
	require.NoError(t, err)
	// Metadata now lives in its own section
	section := result.image.Section(result.cli.MetaData.VirtualAddress)
	require.NotNil(t, section)
	assert.Equal(t, SectionName, section.Name())
	//
	return result
}

func checkSerializationError(t *testing.T, m *Module) {
	t.Helper()
	//
	var serialErr *SerializationError
	//
	_, err := m.Bytes()
	require.Error(t, err)
	assert.True(t, errors.As(err, &serialErr), "expected serialization error, got %v", err)
}
