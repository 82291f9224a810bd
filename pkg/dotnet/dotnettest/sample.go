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
	"encoding/binary"
	"testing"

	"github.com/consensys/go-publicizer/pkg/metadata"
)

// Names of the types defined by the sample module.
const (
	SampleModule   = "Sample.dll"
	SampleAssembly = "Sample"
	Foo            = "Sample.Foo"
	FooInner       = "Sample.Foo+Inner"
	Color          = "Sample.Color"
	Shape          = "Sample.IShape"
	Api            = "Sample.Api"
	Details        = "<PrivateImplementationDetails>"
)

// Common signatures
var (
	VoidMethod   = []byte{0x20, 0x00, 0x01}
	StaticVoid   = []byte{0x00, 0x00, 0x01}
	Int32Field   = []byte{0x06, 0x08}
	Int32Getter  = []byte{0x20, 0x00, 0x08}
	Int32Setter  = []byte{0x20, 0x01, 0x01, 0x08}
	Int32ToInt32 = []byte{0x20, 0x01, 0x08, 0x08}
)

// Opcodes used by sample bodies.
const (
	opLdarg0 = 0x02
	opLdarg1 = 0x03
	opCall   = 0x28
	opRet    = 0x2A
	opLdfld  = 0x7B
	opStfld  = 0x7D
)

// TinyBody encodes code with a tiny method header.
func TinyBody(code ...byte) []byte {
	return append([]byte{byte(len(code))<<2 | 0x2}, code...)
}

// Op encodes an instruction with a token operand.
func Op(opcode byte, token metadata.Token) []byte {
	return binary.LittleEndian.AppendUint32([]byte{opcode}, uint32(token))
}

// Sample builds a module exercising most of what can appear in a class library:
//
//	internal class Sample.Foo {
//	    private int _x;
//	    private int Bar(int value);
//	    private int Value { get; set; }         // auto-property
//	    private event EventHandler Changed;    // field-like event
//	    private static extern void Intrinsic(); // internal call
//	    private class Inner { private int secret; }
//	}
//	internal enum Sample.Color { Red }
//	internal interface Sample.IShape { double Area(); }
//	public class Sample.Api { protected void Protected(); [CompilerGenerated] private void Helper(); }
//	[CompilerGenerated] internal class <PrivateImplementationDetails> { internal static int Data; }
//
// The module itself also carries an attribute.
func Sample() ([]byte, error) {
	b := NewBuilder(SampleModule, SampleAssembly)
	//
	mscorlib := b.AssemblyRef("mscorlib")
	object := b.TypeRef(mscorlib, "System", "Object")
	enum := b.TypeRef(mscorlib, "System", "Enum")
	handler := b.TypeRef(mscorlib, "System", "EventHandler")
	generated := b.TypeRef(mscorlib, "System.Runtime.CompilerServices", "CompilerGeneratedAttribute")
	objectCtor := b.MemberRef(object, ".ctor", VoidMethod)
	generatedCtor := b.MemberRef(generated, ".ctor", VoidMethod)
	noArgs := []byte{0x01, 0x00, 0x00, 0x00}
	//
	handlerField, _ := metadata.AppendTypeDefOrRef([]byte{0x06, 0x12}, handler)
	handlerParam, _ := metadata.AppendTypeDefOrRef([]byte{0x20, 0x01, 0x01, 0x12}, handler)
	//
	b.TypeDef(0, "", "<Module>", 0)
	// Foo
	foo := b.TypeDef(metadata.TypeNotPublic|metadata.TypeBeforeFieldInit, "Sample", "Foo", object)
	b.Field(metadata.FieldPrivate, "_x", Int32Field)
	backing := b.Field(metadata.FieldPrivate, "<Value>k__BackingField", Int32Field)
	b.Attribute(backing, generatedCtor, noArgs)
	changed := b.Field(metadata.FieldPrivate, "Changed", handlerField)
	b.Attribute(changed, generatedCtor, noArgs)
	//
	ctorFlags := metadata.MethodPublic | metadata.MethodHideBySig | metadata.MethodSpecialName |
		metadata.MethodRTSpecialName
	accessor := metadata.MethodPrivate | metadata.MethodHideBySig | metadata.MethodSpecialName
	//
	b.Method(ctorFlags, 0, ".ctor", VoidMethod, TinyBody(cat([]byte{opLdarg0}, Op(opCall, objectCtor), []byte{opRet})...))
	b.Method(metadata.MethodPrivate|metadata.MethodHideBySig, 0, "Bar", Int32ToInt32, TinyBody(opLdarg1, opRet))
	b.Param(1, "value")
	getter := b.Method(accessor, 0, "get_Value", Int32Getter,
		TinyBody(cat([]byte{opLdarg0}, Op(opLdfld, backing), []byte{opRet})...))
	b.Attribute(getter, generatedCtor, noArgs)
	setter := b.Method(accessor, 0, "set_Value", Int32Setter,
		TinyBody(cat([]byte{opLdarg0, opLdarg1}, Op(opStfld, backing), []byte{opRet})...))
	b.Attribute(setter, generatedCtor, noArgs)
	b.Param(1, "value")
	add := b.Method(accessor, 0, "add_Changed", handlerParam, TinyBody(opRet))
	remove := b.Method(accessor, 0, "remove_Changed", handlerParam, TinyBody(opRet))
	b.Method(metadata.MethodPrivate|metadata.MethodStatic, metadata.MethodImplInternalCall, "Intrinsic", StaticVoid,
		nil)
	b.Property(foo, "Value", []byte{0x28, 0x00, 0x08}, getter, setter)
	b.Event(foo, "Changed", handler, add, remove)
	// Foo+Inner
	inner := b.TypeDef(metadata.TypeNestedPrivate, "", "Inner", object)
	b.Field(metadata.FieldPrivate, "secret", Int32Field)
	b.Nested(inner, foo)
	// Color
	color := b.TypeDef(metadata.TypeNotPublic|metadata.TypeSealed, "Sample", "Color", enum)
	b.Field(metadata.FieldPublic|metadata.FieldSpecialName|metadata.FieldRTSpecialName, "value__", Int32Field)
	//
	colorField, _ := metadata.AppendTypeDefOrRef([]byte{0x06, 0x11}, color)
	b.Field(metadata.FieldPublic|metadata.FieldStatic|metadata.FieldLiteral|metadata.FieldHasDefault, "Red",
		colorField)
	// IShape
	b.TypeDef(metadata.TypeNotPublic|metadata.TypeInterface|metadata.TypeAbstract, "Sample", "IShape", 0)
	b.Method(metadata.MethodPublic|metadata.MethodVirtual|metadata.MethodAbstract|metadata.MethodNewSlot|
		metadata.MethodHideBySig, 0, "Area", []byte{0x20, 0x00, 0x0D}, nil)
	// Api
	b.TypeDef(metadata.TypePublic, "Sample", "Api", object)
	b.Method(metadata.MethodFamily|metadata.MethodHideBySig, 0, "Protected", VoidMethod, TinyBody(opRet))
	helper := b.Method(metadata.MethodPrivate|metadata.MethodHideBySig, 0, "Helper", VoidMethod, TinyBody(opRet))
	b.Attribute(helper, generatedCtor, noArgs)
	// <PrivateImplementationDetails>
	details := b.TypeDef(metadata.TypeNotPublic|metadata.TypeSealed, "", "<PrivateImplementationDetails>", object)
	b.Field(metadata.FieldAssembly|metadata.FieldStatic, "Data", Int32Field)
	b.Attribute(details, generatedCtor, noArgs)
	// Module level
	b.Attribute(metadata.NewToken(metadata.Module, 1), generatedCtor, noArgs)
	//
	return b.Build()
}

// MustSample builds the sample module, failing the test on error.
func MustSample(t testing.TB) []byte {
	t.Helper()
	//
	data, err := Sample()
	if err != nil {
		t.Fatal(err)
	}
	//
	return data
}

func cat(parts ...[]byte) []byte {
	var result []byte
	//
	for _, part := range parts {
		result = append(result, part...)
	}
	//
	return result
}
