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

// ElementType identifies the type of a value within a signature (ECMA-335
// II.23.1.16).
type ElementType uint8

// Element types
const (
	ElementEnd         ElementType = 0x00
	ElementVoid        ElementType = 0x01
	ElementBoolean     ElementType = 0x02
	ElementChar        ElementType = 0x03
	ElementI1          ElementType = 0x04
	ElementU1          ElementType = 0x05
	ElementI2          ElementType = 0x06
	ElementU2          ElementType = 0x07
	ElementI4          ElementType = 0x08
	ElementU4          ElementType = 0x09
	ElementI8          ElementType = 0x0A
	ElementU8          ElementType = 0x0B
	ElementR4          ElementType = 0x0C
	ElementR8          ElementType = 0x0D
	ElementString      ElementType = 0x0E
	ElementPtr         ElementType = 0x0F
	ElementByRef       ElementType = 0x10
	ElementValueType   ElementType = 0x11
	ElementClass       ElementType = 0x12
	ElementVar         ElementType = 0x13
	ElementArray       ElementType = 0x14
	ElementGenericInst ElementType = 0x15
	ElementTypedByRef  ElementType = 0x16
	ElementI           ElementType = 0x18
	ElementU           ElementType = 0x19
	ElementFnPtr       ElementType = 0x1B
	ElementObject      ElementType = 0x1C
	ElementSzArray     ElementType = 0x1D
	ElementMVar        ElementType = 0x1E
	ElementCModReqd    ElementType = 0x1F
	ElementCModOpt     ElementType = 0x20
	ElementInternal    ElementType = 0x21
	ElementModifier    ElementType = 0x40
	ElementSentinel    ElementType = 0x41
	ElementPinned      ElementType = 0x45
)

var primitiveNames = map[ElementType]string{
	ElementVoid:       "System.Void",
	ElementBoolean:    "System.Boolean",
	ElementChar:       "System.Char",
	ElementI1:         "System.SByte",
	ElementU1:         "System.Byte",
	ElementI2:         "System.Int16",
	ElementU2:         "System.UInt16",
	ElementI4:         "System.Int32",
	ElementU4:         "System.UInt32",
	ElementI8:         "System.Int64",
	ElementU8:         "System.UInt64",
	ElementR4:         "System.Single",
	ElementR8:         "System.Double",
	ElementString:     "System.String",
	ElementTypedByRef: "System.TypedReference",
	ElementI:          "System.IntPtr",
	ElementU:          "System.UIntPtr",
	ElementObject:     "System.Object",
}

// PrimitiveName returns the full name of the corlib type corresponding to a
// primitive element type, or false if the element type is not primitive.
func (e ElementType) PrimitiveName() (string, bool) {
	name, ok := primitiveNames[e]
	return name, ok
}

// Calling convention bits of method, field and property signatures.
const (
	SigDefault      uint8 = 0x00
	SigVarArg       uint8 = 0x05
	SigField        uint8 = 0x06
	SigLocal        uint8 = 0x07
	SigProperty     uint8 = 0x08
	SigKindMask     uint8 = 0x0F
	SigGeneric      uint8 = 0x10
	SigHasThis      uint8 = 0x20
	SigExplicitThis uint8 = 0x40
)

// SignatureReader provides sequential decoding of a signature blob.
type SignatureReader struct {
	data []byte
	pos  int
}

// NewSignatureReader constructs a reader over the given blob.
func NewSignatureReader(data []byte) *SignatureReader {
	return &SignatureReader{data, 0}
}

// Done checks whether the entire blob has been consumed.
func (r *SignatureReader) Done() bool {
	return r.pos >= len(r.data)
}

// Byte reads a single byte.
func (r *SignatureReader) Byte() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated signature", ErrMalformed)
	}
	//
	r.pos++
	//
	return r.data[r.pos-1], nil
}

// Peek returns the next byte without consuming it.
func (r *SignatureReader) Peek() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated signature", ErrMalformed)
	}
	//
	return r.data[r.pos], nil
}

// Uint reads a compressed unsigned integer.
func (r *SignatureReader) Uint() (uint32, error) {
	value, n, err := DecodeCompressedUint(r.data[r.pos:])
	r.pos += n
	//
	return value, err
}

// TypeDefOrRef reads a TypeDefOrRefOrSpecEncoded token (ECMA-335 II.23.2.8).
func (r *SignatureReader) TypeDefOrRef() (Token, error) {
	value, err := r.Uint()
	if err != nil {
		return 0, err
	}
	//
	return TypeDefOrRef.Decode(value)
}

// AppendTypeDefOrRef appends the compressed TypeDefOrRefOrSpecEncoded form of
// a token to a signature.
func AppendTypeDefOrRef(dst []byte, token Token) ([]byte, error) {
	value, err := TypeDefOrRef.Encode(token)
	if err != nil {
		return dst, err
	}
	//
	return AppendCompressedUint(dst, value)
}
