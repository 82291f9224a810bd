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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================================================================
// Compressed Integers
// ===================================================================

func Test_Compressed_00(t *testing.T) {
	checkCompressed(t, 0, []byte{0x00})
	checkCompressed(t, 3, []byte{0x03})
	checkCompressed(t, 0x7F, []byte{0x7F})
}

func Test_Compressed_01(t *testing.T) {
	checkCompressed(t, 0x80, []byte{0x80, 0x80})
	checkCompressed(t, 0x2E57, []byte{0xAE, 0x57})
	checkCompressed(t, 0x3FFF, []byte{0xBF, 0xFF})
}

func Test_Compressed_02(t *testing.T) {
	checkCompressed(t, 0x4000, []byte{0xC0, 0x00, 0x40, 0x00})
	checkCompressed(t, MaxCompressedUint, []byte{0xDF, 0xFF, 0xFF, 0xFF})
}

func Test_Compressed_03(t *testing.T) {
	_, err := AppendCompressedUint(nil, MaxCompressedUint+1)
	assert.Error(t, err)
	//
	_, _, err = DecodeCompressedUint([]byte{0xC0, 0x00})
	assert.True(t, errors.Is(err, ErrMalformed))
	//
	_, _, err = DecodeCompressedUint([]byte{0xFF})
	assert.True(t, errors.Is(err, ErrMalformed))
}

// ===================================================================
// Heaps
// ===================================================================

func Test_StringHeap_00(t *testing.T) {
	builder := NewStringHeapBuilder([]byte("\x00Foo\x00Bar\x00"))
	// Existing strings are found
	index, err := builder.Add("Bar")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), index)
	// New strings are appended once
	index, err = builder.Add("Baz")
	require.NoError(t, err)
	assert.Equal(t, uint32(9), index)
	again, err := builder.Add("Baz")
	require.NoError(t, err)
	assert.Equal(t, index, again)
	//
	heap := NewStringHeap(builder.Bytes())
	str, err := heap.Get(9)
	require.NoError(t, err)
	assert.Equal(t, "Baz", str)
	assert.Zero(t, heap.Len()%4)
}

func Test_StringHeap_01(t *testing.T) {
	heap := NewStringHeap([]byte("\x00Foo"))
	//
	_, err := heap.Get(1)
	assert.True(t, errors.Is(err, ErrMalformed))
	_, err = heap.Get(100)
	assert.True(t, errors.Is(err, ErrMalformed))
	//
	str, err := heap.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "", str)
}

func Test_StringHeap_02(t *testing.T) {
	builder := NewStringHeapBuilder(nil)
	_, err := builder.Add("bad\x00name")
	assert.Error(t, err)
}

func Test_BlobHeap_00(t *testing.T) {
	builder := NewBlobHeapBuilder([]byte{0x00, 0x03, 0x20, 0x00, 0x01})
	// Existing blob
	index, err := builder.Add([]byte{0x20, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), index)
	// New blob
	index, err = builder.Add([]byte{0x06, 0x08})
	require.NoError(t, err)
	assert.Equal(t, uint32(5), index)
	//
	heap := NewBlobHeap(builder.Bytes())
	blob, err := heap.Get(index)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x08}, blob)
}

func Test_BlobHeap_01(t *testing.T) {
	heap := NewBlobHeap([]byte{0x00, 0x05, 0x01})
	_, err := heap.Get(1)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func Test_GuidHeap_00(t *testing.T) {
	var data = make([]byte, 32)
	//
	data[16] = 0xAB
	heap := NewGuidHeap(data)
	guid, err := heap.Get(2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), guid[0])
	//
	_, err = heap.Get(3)
	assert.True(t, errors.Is(err, ErrMalformed))
}

// ===================================================================
// Coded Indices
// ===================================================================

func Test_CodedIndex_00(t *testing.T) {
	checkCodedIndex(t, TypeDefOrRef, NewToken(TypeRef, 5), 5<<2|1)
	checkCodedIndex(t, HasCustomAttribute, NewToken(Field, 3), 3<<5|1)
	checkCodedIndex(t, CustomAttributeType, NewToken(MemberRef, 7), 7<<3|3)
	checkCodedIndex(t, ResolutionScope, NewToken(AssemblyRef, 1), 1<<2|2)
}

func Test_CodedIndex_01(t *testing.T) {
	_, err := CustomAttributeType.Decode(1 << 3)
	assert.True(t, errors.Is(err, ErrMalformed))
	//
	_, err = TypeDefOrRef.Encode(NewToken(MethodDef, 1))
	assert.Error(t, err)
}

func Test_Token_00(t *testing.T) {
	token := NewToken(MethodDef, 0x1234)
	assert.Equal(t, MethodDef, token.Table())
	assert.Equal(t, uint32(0x1234), token.RID())
	assert.Equal(t, "0x06001234", token.String())
	assert.True(t, NewToken(TypeDef, 0).IsNil())
	assert.Equal(t, "MethodDef", MethodDef.String())
}

// ===================================================================
// Tables & Root
// ===================================================================

func Test_Tables_00(t *testing.T) {
	tables := NewTables()
	tables.Append(Module, Row{0, 1, 1, 0, 0})
	tables.Append(TypeRef, Row{6, 5, 10})
	tables.Append(TypeDef, Row{0, 20, 0, 0, 1, 1})
	tables.Append(TypeDef, Row{0x100001, 24, 28, 5, 1, 1})
	tables.Append(MethodDef, Row{0x2050, 0, 0x86, 30, 1, 1})
	//
	checkTablesRoundTrip(t, tables, HeapSizes{})
}

func Test_Tables_01(t *testing.T) {
	tables := NewTables()
	tables.Append(Module, Row{0, 0x12345, 1, 0, 0})
	tables.Append(Field, Row{1, 0x10000, 0x10002})
	// Wide heaps
	checkTablesRoundTrip(t, tables, HeapSizes{Strings: 0x20000, Guid: 16, Blob: 0x20000})
}

func Test_Tables_02(t *testing.T) {
	tables := NewTables()
	// Enough fields to widen the Field column of TypeDef.
	for i := range 0x10000 {
		tables.Append(Field, Row{1, uint32(i % 100), 1})
	}
	//
	tables.Append(TypeDef, Row{0, 1, 0, 0, 0x10000, 1})
	checkTablesRoundTrip(t, tables, HeapSizes{})
}

func Test_Tables_03(t *testing.T) {
	tables := NewTables()
	tables.Append(Field, Row{1, 0x10000, 1})
	// Narrow heaps cannot hold a wide index
	_, err := tables.MarshalBinary(HeapSizes{})
	assert.Error(t, err)
}

func Test_Tables_04(t *testing.T) {
	tables := NewTables()
	tables.Append(TypeDef, Row{0, 1, 0, 0, 1, 1})
	//
	clone := tables.Clone()
	clone.Rows[TypeDef][0][TypeDefFlags] = 1
	assert.Equal(t, uint32(0), tables.Rows[TypeDef][0][TypeDefFlags])
	//
	_, err := tables.Get(TypeDef, 2)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func Test_Root_00(t *testing.T) {
	root := NewRoot(DefaultVersion)
	root.SetStream(TablesStreamName, []byte{1, 2, 3, 4})
	root.SetStream(StringsStreamName, []byte{0, 'A', 0})
	root.SetStream(BlobStreamName, []byte{0})
	root.SetStream(StringsStreamName, []byte{0, 'B', 0})
	//
	data, err := root.MarshalBinary()
	require.NoError(t, err)
	parsed, err := ReadRoot(data)
	require.NoError(t, err)
	//
	assert.Equal(t, DefaultVersion, parsed.Version)
	require.Len(t, parsed.Streams, 3)
	assert.Equal(t, []byte{1, 2, 3, 4}, parsed.Stream(TablesStreamName).Data)
	// Streams are padded
	assert.Equal(t, []byte{0, 'B', 0, 0}, parsed.Stream(StringsStreamName).Data)
	assert.Nil(t, parsed.Stream(UserStringsStreamName))
}

func Test_Root_01(t *testing.T) {
	_, err := ReadRoot([]byte("BSJA............"))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func Test_Signature_00(t *testing.T) {
	sig, err := AppendTypeDefOrRef([]byte{byte(ElementClass)}, NewToken(TypeRef, 2))
	require.NoError(t, err)
	//
	reader := NewSignatureReader(sig)
	b, err := reader.Byte()
	require.NoError(t, err)
	assert.Equal(t, ElementClass, ElementType(b))
	token, err := reader.TypeDefOrRef()
	require.NoError(t, err)
	assert.Equal(t, NewToken(TypeRef, 2), token)
	assert.True(t, reader.Done())
	//
	_, err = reader.Byte()
	assert.True(t, errors.Is(err, ErrMalformed))
}

func Test_Flags_00(t *testing.T) {
	flags := TypeNestedPrivate | TypeSealed | TypeBeforeFieldInit
	updated := flags.WithVisibility(TypeNestedPublic)
	assert.Equal(t, TypeNestedPublic, updated.Visibility())
	assert.Equal(t, flags&^TypeVisibilityMask, updated&^TypeVisibilityMask)
	//
	method := MethodAssembly | MethodHideBySig | MethodStatic
	assert.Equal(t, MethodPublic|MethodHideBySig|MethodStatic, method.WithAccess(MethodPublic))
	assert.Equal(t, "internal", method.AccessString())
	//
	field := FieldPrivate | FieldInitOnly
	assert.Equal(t, FieldPublic|FieldInitOnly, field.WithAccess(FieldPublic))
}

// ===================================================================
// Test Helpers
// ===================================================================

func checkCompressed(t *testing.T, value uint32, encoding []byte) {
	bytes, err := AppendCompressedUint(nil, value)
	require.NoError(t, err)
	assert.Equal(t, encoding, bytes)
	//
	decoded, n, err := DecodeCompressedUint(append(bytes, 0xFF))
	require.NoError(t, err)
	assert.Equal(t, value, decoded)
	assert.Equal(t, len(encoding), n)
}

func checkCodedIndex(t *testing.T, coded CodedIndex, token Token, value uint32) {
	encoded, err := coded.Encode(token)
	require.NoError(t, err)
	assert.Equal(t, value, encoded)
	//
	decoded, err := coded.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, token, decoded)
}

func checkTablesRoundTrip(t *testing.T, tables *Tables, heaps HeapSizes) {
	data, err := tables.MarshalBinary(heaps)
	require.NoError(t, err)
	parsed, err := ReadTables(data)
	require.NoError(t, err)
	//
	for i := range NumTables {
		require.Equal(t, tables.Count(i), parsed.Count(i), "row count of %s", i)
		//
		for r, row := range tables.Rows[i] {
			assert.Equal(t, row, parsed.Rows[i][r], "row %d of %s", r+1, i)
		}
	}
	//
	assert.Equal(t, tables.Sorted, parsed.Sorted)
}
