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
package publicizer

import (
	"errors"
	"testing"

	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/dotnet/dotnettest"
	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const originalAttributesType = OriginalAttributesNamespace + "." + OriginalAttributesName

// ===================================================================
// Default options
// ===================================================================

func Test_Publicize_00(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
		bar = findMethod(t, foo, "Bar")
		x   = findField(t, foo, "_x")
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	//
	assert.True(t, foo.IsPublic())
	assert.True(t, bar.IsPublic())
	assert.True(t, x.IsPublic())
	//
	assert.Equal(t, []int32{int32(metadata.TypeNotPublic)}, originalValues(t, foo.CustomAttributes))
	assert.Equal(t, []int32{int32(metadata.MethodPrivate)}, originalValues(t, bar.CustomAttributes))
	assert.Equal(t, []int32{int32(metadata.FieldPrivate)}, originalValues(t, x.CustomAttributes))
}

func Test_Publicize_01(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
		bar = findMethod(t, foo, "Bar")
		x   = findField(t, foo, "_x")
	)
	// Everything but the visibility is retained
	typeFlags := foo.Attributes &^ metadata.TypeVisibilityMask
	methodFlags := bar.Attributes &^ metadata.MethodMemberAccessMask
	implFlags := bar.ImplAttributes
	fieldFlags := x.Attributes &^ metadata.FieldAccessMask
	//
	checkPublicize(t, m, nil, DefaultOptions())
	//
	assert.Equal(t, typeFlags|metadata.TypePublic, foo.Attributes)
	assert.Equal(t, methodFlags|metadata.MethodPublic, bar.Attributes)
	assert.Equal(t, implFlags, bar.ImplAttributes)
	assert.Equal(t, fieldFlags|metadata.FieldPublic, x.Attributes)
}

func Test_Publicize_02(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	// Event backing fields are never publicized
	assert.False(t, findField(t, foo, "Changed").IsPublic())
	assert.Empty(t, originalValues(t, findField(t, foo, "Changed").CustomAttributes))
	// Nor are compiler generated fields
	assert.False(t, findField(t, foo, "<Value>k__BackingField").IsPublic())
	// Auto-property accessors are, despite being compiler generated
	assert.True(t, findMethod(t, foo, "get_Value").IsPublic())
	assert.True(t, findMethod(t, foo, "set_Value").IsPublic())
	assert.Len(t, originalValues(t, findMethod(t, foo, "get_Value").CustomAttributes), 1)
	// Event accessors are ordinary methods
	assert.True(t, findMethod(t, foo, "add_Changed").IsPublic())
	assert.True(t, findMethod(t, foo, "remove_Changed").IsPublic())
	// Methods without bodies are publicized too
	assert.True(t, findMethod(t, foo, "Intrinsic").IsPublic())
}

func Test_Publicize_03(t *testing.T) {
	var (
		m       = readSample(t)
		api     = findType(t, m, dotnettest.Api)
		details = findType(t, m, dotnettest.Details)
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	// Compiler generated methods and types are skipped
	assert.False(t, findMethod(t, api, "Helper").IsPublic())
	assert.False(t, details.IsPublic())
	assert.Equal(t, metadata.FieldAssembly, findField(t, details, "Data").Attributes.Access())
	// Protected members record their original access
	protected := findMethod(t, api, "Protected")
	assert.True(t, protected.IsPublic())
	assert.Equal(t, []int32{int32(metadata.MethodFamily)}, originalValues(t, protected.CustomAttributes))
	// Public types carry no attribute
	assert.Empty(t, originalValues(t, api.CustomAttributes))
}

func Test_Publicize_04(t *testing.T) {
	var (
		m     = readSample(t)
		inner = findType(t, m, dotnettest.FooInner)
		color = findType(t, m, dotnettest.Color)
		shape = findType(t, m, dotnettest.Shape)
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	//
	assert.Equal(t, metadata.TypeNestedPublic, inner.Attributes.Visibility())
	assert.Equal(t, []int32{int32(metadata.TypeNestedPrivate)}, originalValues(t, inner.CustomAttributes))
	assert.True(t, findField(t, inner, "secret").IsPublic())
	assert.True(t, color.IsPublic())
	assert.True(t, shape.IsPublic())
	// Already public members are untouched
	assert.Empty(t, findField(t, color, "Red").CustomAttributes)
	assert.Empty(t, findMethod(t, shape, "Area").CustomAttributes)
}

func Test_Publicize_05(t *testing.T) {
	var (
		m      = readSample(t)
		report = &Report{}
		opts   = DefaultOptions()
	)
	//
	opts.Report = report
	checkPublicize(t, m, nil, opts)
	//
	attribute, ok := m.FindType(originalAttributesType)
	require.True(t, ok)
	// The attribute type is never publicized
	assert.False(t, attribute.IsPublic())
	assert.Equal(t, metadata.TypeSealed, attribute.Attributes&metadata.TypeSealed)
	assert.Empty(t, attribute.CustomAttributes)
	assert.Equal(t, "System.Attribute", attribute.BaseType.FullName())
	assert.False(t, findField(t, attribute, "attributes").IsPublic())
	//
	ctor := findMethod(t, attribute, ".ctor")
	assert.True(t, ctor.IsPublic())
	require.NotNil(t, ctor.Body)
	assert.Len(t, ctor.Body.Instructions, 6)
	//
	assert.Equal(t, dotnettest.SampleModule, report.Module)
	assert.Equal(t, 5, report.Count(KindType, ActionPublicize))
	assert.Equal(t, 7, report.Count(KindMethod, ActionPublicize))
	assert.Equal(t, 2, report.Count(KindField, ActionPublicize))
	assert.Equal(t, 0, report.Count(KindMethod, ActionStrip))
	assert.Equal(t, 14, countAttributes(m))
}

// ===================================================================
// Idempotence
// ===================================================================

func Test_Publicize_06(t *testing.T) {
	var (
		m      = readSample(t)
		report = &Report{}
		opts   = DefaultOptions()
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	//
	before := snapshotFlags(m)
	count := len(m.Types)
	// Second run
	opts.Report = report
	checkPublicize(t, m, nil, opts)
	//
	assert.Equal(t, before, snapshotFlags(m))
	assert.Len(t, m.Types, count)
	assert.Empty(t, report.Changes)
	assert.Equal(t, 14, countAttributes(m))
}

func Test_Publicize_07(t *testing.T) {
	var (
		m      = readSample(t)
		report = &Report{}
		opts   = DefaultOptions()
	)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	// Publicize the written assembly again
	m = checkRoundTrip(t, m)
	before := snapshotFlags(m)
	count := len(m.Types)
	//
	opts.Report = report
	checkPublicize(t, m, nil, opts)
	//
	assert.Equal(t, before, snapshotFlags(m))
	assert.Len(t, m.Types, count)
	assert.Empty(t, report.Changes)
}

// ===================================================================
// Options
// ===================================================================

func Test_Publicize_08(t *testing.T) {
	var (
		m       = readSample(t)
		foo     = findType(t, m, dotnettest.Foo)
		api     = findType(t, m, dotnettest.Api)
		details = findType(t, m, dotnettest.Details)
		opts    = DefaultOptions()
	)
	//
	opts.PublicizeCompilerGenerated = true
	checkPublicize(t, m, nil, opts)
	//
	assert.True(t, findField(t, foo, "<Value>k__BackingField").IsPublic())
	assert.True(t, findMethod(t, api, "Helper").IsPublic())
	assert.True(t, details.IsPublic())
	assert.True(t, findField(t, details, "Data").IsPublic())
	// Still not event backing fields
	assert.False(t, findField(t, foo, "Changed").IsPublic())
}

func Test_Publicize_09(t *testing.T) {
	var (
		m    = readSample(t)
		foo  = findType(t, m, dotnettest.Foo)
		opts = DefaultOptions()
	)
	//
	opts.IncludeOriginalAttributesAttribute = false
	checkPublicize(t, m, nil, opts)
	//
	assert.True(t, foo.IsPublic())
	assert.True(t, findMethod(t, foo, "Bar").IsPublic())
	assert.Empty(t, foo.CustomAttributes)
	assert.Equal(t, 0, countAttributes(m))
	//
	_, ok := m.FindType(originalAttributesType)
	assert.False(t, ok)
}

func Test_Publicize_10(t *testing.T) {
	var (
		m    = readSample(t)
		foo  = findType(t, m, dotnettest.Foo)
		opts = DefaultOptions()
	)
	//
	opts.Targets = TargetTypes
	checkPublicize(t, m, nil, opts)
	//
	assert.True(t, foo.IsPublic())
	assert.False(t, findMethod(t, foo, "Bar").IsPublic())
	assert.False(t, findMethod(t, foo, "get_Value").IsPublic())
	assert.False(t, findField(t, foo, "_x").IsPublic())
}

func Test_Publicize_11(t *testing.T) {
	var (
		m    = readSample(t)
		foo  = findType(t, m, dotnettest.Foo)
		opts = DefaultOptions()
	)
	//
	opts.Targets = TargetMethods | TargetFields
	checkPublicize(t, m, nil, opts)
	//
	assert.False(t, foo.IsPublic())
	assert.True(t, findMethod(t, foo, "Bar").IsPublic())
	assert.True(t, findField(t, foo, "_x").IsPublic())
}

func Test_Publicize_12(t *testing.T) {
	var (
		m       = readSample(t)
		foo     = findType(t, m, dotnettest.Foo)
		details = findType(t, m, dotnettest.Details)
		opts    = DefaultOptions()
	)
	// Custom predicate
	opts.IsCompilerGenerated = func(definition dotnet.Entity) bool {
		return definition.FullName() == dotnettest.Foo
	}
	checkPublicize(t, m, nil, opts)
	//
	assert.False(t, foo.IsPublic())
	assert.False(t, findMethod(t, foo, "Bar").IsPublic())
	assert.True(t, details.IsPublic())
}

func Test_Publicize_13(t *testing.T) {
	m := readSample(t)
	//
	assert.True(t, HasCompilerGeneratedAttribute(findType(t, m, dotnettest.Details)))
	assert.True(t, HasCompilerGeneratedAttribute(findMethod(t, findType(t, m, dotnettest.Api), "Helper")))
	assert.False(t, HasCompilerGeneratedAttribute(findType(t, m, dotnettest.Foo)))
	assert.False(t, HasCompilerGeneratedAttribute(m))
}

// ===================================================================
// Stripping
// ===================================================================

func Test_Publicize_14(t *testing.T) {
	var (
		m      = readSample(t)
		foo    = findType(t, m, dotnettest.Foo)
		report = &Report{}
		opts   = DefaultOptions()
	)
	//
	opts.Strip = true
	opts.Report = report
	checkPublicize(t, m, nil, opts)
	//
	for _, name := range []string{".ctor", "Bar", "get_Value", "add_Changed"} {
		method := findMethod(t, foo, name)
		require.NotNil(t, method.Body, name)
		assert.Equal(t, []dotnet.Instruction{{OpCode: dotnet.Ldnull}, {OpCode: dotnet.Throw}},
			method.Body.Instructions, name)
		assert.Equal(t, metadata.MethodImplNoInlining, method.ImplAttributes&metadata.MethodImplNoInlining, name)
	}
	// Methods without bodies stay that way
	intrinsic := findMethod(t, foo, "Intrinsic")
	assert.Nil(t, intrinsic.Body)
	assert.Zero(t, intrinsic.ImplAttributes&metadata.MethodImplNoInlining)
	// Compiler generated methods are stripped too
	assert.NotNil(t, findMethod(t, findType(t, m, dotnettest.Api), "Helper").Body)
	assert.Equal(t, 8, report.Count(KindMethod, ActionStrip))
	// Though not the attribute constructor
	attribute, ok := m.FindType(originalAttributesType)
	require.True(t, ok)
	assert.Len(t, findMethod(t, attribute, ".ctor").Body.Instructions, 6)
}

func Test_Publicize_15(t *testing.T) {
	var (
		m    = readSample(t)
		opts = DefaultOptions()
	)
	//
	opts.Strip = true
	checkPublicize(t, m, nil, opts)
	//
	m = checkRoundTrip(t, m)
	body, err := findMethod(t, findType(t, m, dotnettest.Foo), "Bar").ReadBody()
	require.NoError(t, err)
	assert.Equal(t, []dotnet.Instruction{{OpCode: dotnet.Ldnull}, {OpCode: dotnet.Throw}}, body.Instructions)
}

// ===================================================================
// Masks
// ===================================================================

func Test_Publicize_16(t *testing.T) {
	var (
		m      = readSample(t)
		report = &Report{}
		opts   = DefaultOptions()
	)
	// No type in common
	b := dotnettest.NewBuilder("Mask.dll", "Mask")
	b.TypeDef(metadata.TypePublic, "Other", "Type", 0)
	mask := buildModule(t, b)
	//
	before := snapshotFlags(m)
	opts.Strip = true
	opts.Report = report
	checkPublicize(t, m, mask, opts)
	//
	assert.Equal(t, before, snapshotFlags(m))
	assert.Empty(t, report.Changes)
	assert.Nil(t, findMethod(t, findType(t, m, dotnettest.Foo), "Bar").Body)
	//
	_, ok := m.FindType(originalAttributesType)
	assert.False(t, ok)
}

func Test_Publicize_17(t *testing.T) {
	var (
		m     = readSample(t)
		foo   = findType(t, m, dotnettest.Foo)
		inner = findType(t, m, dotnettest.FooInner)
	)
	// Mask has type Foo, but none of its members
	b := dotnettest.NewBuilder("Mask.dll", "Mask")
	b.TypeDef(metadata.TypePublic, "Sample", "Foo", 0)
	mask := buildModule(t, b)
	//
	checkPublicize(t, m, mask, DefaultOptions())
	//
	assert.True(t, foo.IsPublic())
	assert.False(t, findMethod(t, foo, "Bar").IsPublic())
	assert.False(t, findField(t, foo, "_x").IsPublic())
	assert.False(t, inner.IsPublic())
	assert.Empty(t, inner.CustomAttributes)
}

func Test_Publicize_18(t *testing.T) {
	var (
		m   = readSample(t)
		foo = findType(t, m, dotnettest.Foo)
	)
	// Mask has Foo::Bar, but not Foo::_x
	b := dotnettest.NewBuilder("Mask.dll", "Mask")
	b.TypeDef(metadata.TypePublic, "Sample", "Foo", 0)
	b.Method(metadata.MethodPublic, 0, "Bar", dotnettest.Int32ToInt32, dotnettest.TinyBody(0x2A))
	b.Field(metadata.FieldPublic, "secret", dotnettest.Int32Field)
	mask := buildModule(t, b)
	//
	checkPublicize(t, m, mask, DefaultOptions())
	//
	assert.True(t, findMethod(t, foo, "Bar").IsPublic())
	assert.False(t, findMethod(t, foo, "add_Changed").IsPublic())
	assert.False(t, findField(t, foo, "_x").IsPublic())
}

func Test_Publicize_19(t *testing.T) {
	var m = readSample(t)
	// Mask defining the same type twice
	b := dotnettest.NewBuilder("Mask.dll", "Mask")
	b.TypeDef(metadata.TypePublic, "Sample", "Foo", 0)
	b.TypeDef(metadata.TypePublic, "Sample", "Foo", 0)
	mask := buildModule(t, b)
	//
	_, err := Publicize(m, mask, DefaultOptions())
	assert.True(t, errors.Is(err, ErrAmbiguousMask), "unexpected error %v", err)
}

// ===================================================================
// Failures
// ===================================================================

func Test_Publicize_20(t *testing.T) {
	// No reference to a core library
	b := dotnettest.NewBuilder("Core.dll", "Lib")
	b.TypeDef(metadata.TypeNotPublic, "Lib", "Thing", 0)
	m := buildModule(t, b)
	//
	_, err := Publicize(m, nil, DefaultOptions())
	assert.True(t, errors.Is(err, ErrNoCoreLibrary), "unexpected error %v", err)
	// Which is fine, if no attribute is needed
	opts := DefaultOptions()
	opts.IncludeOriginalAttributesAttribute = false
	checkPublicize(t, m, nil, opts)
	assert.True(t, findType(t, m, "Lib.Thing").IsPublic())
}

func Test_Publicize_21(t *testing.T) {
	var m = readSample(t)
	// Nil options are the defaults
	checkPublicize(t, m, nil, nil)
	//
	assert.True(t, findType(t, m, dotnettest.Foo).IsPublic())
	assert.Equal(t, 14, countAttributes(m))
}

// ===================================================================
// Round trip
// ===================================================================

func Test_Publicize_22(t *testing.T) {
	var m = readSample(t)
	//
	checkPublicize(t, m, nil, DefaultOptions())
	//
	m = checkRoundTrip(t, m)
	foo := findType(t, m, dotnettest.Foo)
	//
	assert.True(t, foo.IsPublic())
	assert.True(t, findMethod(t, foo, "Bar").IsPublic())
	assert.Equal(t, []int32{int32(metadata.TypeNotPublic)}, originalValues(t, foo.CustomAttributes))
	assert.Equal(t, []int32{int32(metadata.MethodPrivate)},
		originalValues(t, findMethod(t, foo, "Bar").CustomAttributes))
	assert.Equal(t, 14, countAttributes(m))
	//
	_, ok := m.FindType(originalAttributesType)
	assert.True(t, ok)
}

// ===================================================================
// Targets
// ===================================================================

func Test_ParseTargets_00(t *testing.T) {
	targets, err := ParseTargets([]string{"types", " Methods"})
	require.NoError(t, err)
	assert.Equal(t, TargetTypes|TargetMethods, targets)
	assert.Equal(t, "types,methods", targets.String())
}

func Test_ParseTargets_01(t *testing.T) {
	targets, err := ParseTargets([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, TargetAll, targets)
	assert.Equal(t, "types,methods,fields", targets.String())
	assert.Equal(t, "none", Target(0).String())
}

func Test_ParseTargets_02(t *testing.T) {
	_, err := ParseTargets([]string{"fields", "properties"})
	assert.Error(t, err)
}

// ===================================================================
// Helpers
// ===================================================================

func readSample(t *testing.T) *dotnet.Module {
	t.Helper()
	//
	m, err := dotnet.ReadModule(dotnettest.MustSample(t))
	require.NoError(t, err)
	//
	return m
}

func buildModule(t *testing.T, b *dotnettest.Builder) *dotnet.Module {
	t.Helper()
	//
	data, err := b.Build()
	require.NoError(t, err)
	//
	m, err := dotnet.ReadModule(data)
	require.NoError(t, err)
	//
	return m
}

func checkPublicize(t *testing.T, m *dotnet.Module, mask *dotnet.Module, opts *Options) {
	t.Helper()
	//
	result, err := Publicize(m, mask, opts)
	require.NoError(t, err)
	require.Same(t, m, result)
}

func checkRoundTrip(t *testing.T, m *dotnet.Module) *dotnet.Module {
	t.Helper()
	//
	data, err := m.Bytes()
	require.NoError(t, err)
	//
	other, err := dotnet.ReadModule(data)
	require.NoError(t, err)
	//
	return other
}

func findType(t *testing.T, m *dotnet.Module, name string) *dotnet.TypeDefinition {
	t.Helper()
	//
	typ, ok := m.FindType(name)
	require.True(t, ok, "missing type %s", name)
	//
	return typ
}

func findMethod(t *testing.T, typ *dotnet.TypeDefinition, name string) *dotnet.MethodDefinition {
	t.Helper()
	//
	method, ok := typ.FindMethod(name)
	require.True(t, ok, "missing method %s", name)
	//
	return method
}

func findField(t *testing.T, typ *dotnet.TypeDefinition, name string) *dotnet.FieldDefinition {
	t.Helper()
	//
	field, ok := typ.FindField(name)
	require.True(t, ok, "missing field %s", name)
	//
	return field
}

// Extract the values recorded by original attributes.
func originalValues(t *testing.T, attributes []*dotnet.CustomAttribute) []int32 {
	t.Helper()
	//
	var values []int32
	//
	for _, attribute := range attributes {
		if attribute.TypeFullName() != originalAttributesType {
			continue
		}
		//
		args, err := attribute.Arguments()
		require.NoError(t, err)
		require.Len(t, args.FixedArguments, 1)
		//
		value, ok := args.FixedArguments[0].Value.(int32)
		require.True(t, ok)
		//
		values = append(values, value)
	}
	//
	return values
}

func countAttributes(m *dotnet.Module) int {
	var count int
	//
	check := func(attributes []*dotnet.CustomAttribute) {
		for _, attribute := range attributes {
			if attribute.TypeFullName() == originalAttributesType {
				count++
			}
		}
	}
	//
	for _, typ := range m.Types {
		check(typ.CustomAttributes)
		//
		for _, method := range typ.Methods {
			check(method.CustomAttributes)
		}
		//
		for _, field := range typ.Fields {
			check(field.CustomAttributes)
		}
	}
	//
	return count
}

// Record the flags of every definition by full name.
func snapshotFlags(m *dotnet.Module) map[string]uint32 {
	var flags = make(map[string]uint32)
	//
	for _, typ := range m.Types {
		flags[typ.FullName()] = uint32(typ.Attributes)
		//
		for _, method := range typ.Methods {
			flags[method.FullName()] = uint32(method.Attributes)
		}
		//
		for _, field := range typ.Fields {
			flags[field.FullName()] = uint32(field.Attributes)
		}
	}
	//
	return flags
}
