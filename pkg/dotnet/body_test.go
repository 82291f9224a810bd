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
	"errors"
	"testing"

	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================================================================
// Method Bodies
// ===================================================================

func Test_Body_00(t *testing.T) {
	bytes, err := NewThrowNullBody().Bytes()
	require.NoError(t, err)
	// Tiny header, then ldnull; throw
	assert.Equal(t, []byte{0x0A, 0x14, 0x7A}, bytes)
}

func Test_Body_01(t *testing.T) {
	body := &MethodBody{
		MaxStack:    16,
		InitLocals:  true,
		LocalVarSig: metadata.NewToken(metadata.StandAloneSig, 1),
		Instructions: []Instruction{
			{LdcI4, int32(-5)}, {Ldstr, metadata.Token(0x70000001)}, {Call, metadata.NewToken(metadata.MemberRef, 2)},
			{Rethrow, nil}, {Ret, nil},
		},
	}
	//
	bytes, err := body.Bytes()
	require.NoError(t, err)
	// Fat header
	assert.Equal(t, []byte{0x13, 0x30, 0x10, 0x00}, bytes[:4])
	//
	decoded, err := DecodeMethodBody(bytes)
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func Test_Body_02(t *testing.T) {
	ldcI4S, _ := LookupOpCode(0x1F)
	br, _ := LookupOpCode(0x38)
	ldloc, _ := LookupOpCode(0xFE0C)
	sw, _ := LookupOpCode(0x45)
	ldcR8, _ := LookupOpCode(0x23)
	//
	body := &MethodBody{MaxStack: 8, Instructions: []Instruction{
		{ldcI4S, int8(-1)}, {br, int32(3)}, {ldloc, uint16(300)}, {sw, []int32{1, -2}}, {ldcR8, 1.5}, {Ret, nil},
	}}
	//
	bytes, err := body.Bytes()
	require.NoError(t, err)
	//
	decoded, err := DecodeMethodBody(bytes)
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func Test_Body_03(t *testing.T) {
	ldcI4S, _ := LookupOpCode(0x1F)
	// Operand out of range
	_, err := (&MethodBody{Instructions: []Instruction{{ldcI4S, 1000}}}).Bytes()
	assert.Error(t, err)
	// Operand of wrong kind
	_, err = (&MethodBody{Instructions: []Instruction{{LdcI4, "one"}}}).Bytes()
	assert.Error(t, err)
	// Entities need a module
	_, err = (&MethodBody{Instructions: []Instruction{{Ldfld, &FieldDefinition{Name: "x"}}}}).Bytes()
	assert.Error(t, err)
}

func Test_Body_04(t *testing.T) {
	for _, data := range [][]byte{{}, {0x0E, 0x14}, {0x00}, {0x06, 0xFE}, {0x06, 0x24}, {0x0A, 0x20, 0x00}} {
		_, err := DecodeMethodBody(data)
		assert.True(t, errors.Is(err, metadata.ErrMalformed), "decoding % x", data)
	}
}

func Test_OpCode_00(t *testing.T) {
	for _, op := range opcodes {
		found, ok := LookupOpCode(op.Value)
		require.True(t, ok)
		assert.Equal(t, op.Name, found.Name)
	}
	//
	assert.Equal(t, 1, Ret.Size())
	assert.Equal(t, 2, Rethrow.Size())
	assert.Equal(t, "ldnull", Ldnull.String())
}

// ===================================================================
// Custom Attributes
// ===================================================================

func Test_Attribute_00(t *testing.T) {
	signature := &CustomAttributeSignature{FixedArguments: []FixedArgument{
		{metadata.ElementI4, int32(6)},
	}}
	//
	blob, err := signature.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x06, 0x00, 0x00, 0x00, 0x00, 0x00}, blob)
}

func Test_Attribute_01(t *testing.T) {
	args := []FixedArgument{
		{metadata.ElementBoolean, true}, {metadata.ElementU1, uint8(7)}, {metadata.ElementI2, int16(-2)},
		{metadata.ElementChar, uint16('x')}, {metadata.ElementU8, uint64(1 << 40)}, {metadata.ElementR4, float32(0.5)},
		{metadata.ElementString, "hello"}, {metadata.ElementString, nil},
	}
	//
	blob, err := (&CustomAttributeSignature{args}).Bytes()
	require.NoError(t, err)
	//
	types := make([]metadata.ElementType, len(args))
	for i, arg := range args {
		types[i] = arg.Type
	}
	//
	decoded, err := DecodeCustomAttributeSignature(blob, types)
	require.NoError(t, err)
	assert.Equal(t, args, decoded.FixedArguments)
}

func Test_Attribute_02(t *testing.T) {
	// Value does not match type
	_, err := (&CustomAttributeSignature{[]FixedArgument{{metadata.ElementI4, "six"}}}).Bytes()
	assert.Error(t, err)
	// Unsupported type
	_, err = (&CustomAttributeSignature{[]FixedArgument{{metadata.ElementClass, nil}}}).Bytes()
	assert.True(t, errors.Is(err, metadata.ErrUnsupported))
	// Missing prolog
	_, err = DecodeCustomAttributeSignature([]byte{0x00, 0x00}, nil)
	assert.True(t, errors.Is(err, metadata.ErrMalformed))
	// Truncated argument
	_, err = DecodeCustomAttributeSignature([]byte{0x01, 0x00, 0x06}, []metadata.ElementType{metadata.ElementI4})
	assert.True(t, errors.Is(err, metadata.ErrMalformed))
	// Truncated string
	_, err = DecodeCustomAttributeSignature([]byte{0x01, 0x00, 0x05, 'a'}, []metadata.ElementType{metadata.ElementString})
	assert.True(t, errors.Is(err, metadata.ErrMalformed))
}
