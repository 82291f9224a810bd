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

// MaxCompressedUint is the largest value representable as a compressed
// unsigned integer.
const MaxCompressedUint uint32 = 0x1FFFFFFF

// DecodeCompressedUint decodes a compressed unsigned integer (ECMA-335
// II.23.2) from the start of the given bytes, returning its value and the
// number of bytes it occupied.
func DecodeCompressedUint(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated compressed integer", ErrMalformed)
	}
	//
	switch b := data[0]; {
	case b&0x80 == 0:
		return uint32(b), 1, nil
	case b&0xC0 == 0x80:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", ErrMalformed)
		}
		//
		return uint32(b&0x3F)<<8 | uint32(data[1]), 2, nil
	case b&0xE0 == 0xC0:
		if len(data) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", ErrMalformed)
		}
		//
		return uint32(b&0x1F)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]), 4, nil
	default:
		return 0, 0, fmt.Errorf("%w: invalid compressed integer prefix 0x%02x", ErrMalformed, b)
	}
}

// AppendCompressedUint appends the compressed encoding of a given value.
func AppendCompressedUint(dst []byte, value uint32) ([]byte, error) {
	switch {
	case value <= 0x7F:
		return append(dst, byte(value)), nil
	case value <= 0x3FFF:
		return append(dst, byte(value>>8)|0x80, byte(value)), nil
	case value <= MaxCompressedUint:
		return append(dst, byte(value>>24)|0xC0, byte(value>>16), byte(value>>8), byte(value)), nil
	default:
		return dst, fmt.Errorf("value 0x%x too large to compress", value)
	}
}
