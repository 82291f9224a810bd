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
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"fortio.org/safecast"
	"github.com/consensys/go-publicizer/pkg/metadata"
)

// Method body header flags (ECMA-335 II.25.4)
const (
	tinyFormat     uint8  = 0x2
	fatFormat      uint16 = 0x3
	fatInitLocals  uint16 = 0x10
	fatHeaderWords uint16 = 3
	tinyMaxCode           = 64
	tinyMaxStack          = 8
)

// Instruction is a single CIL instruction.  Operands are held as follows:
// branch offsets and integers as int8, int32 or int64 (according to their
// encoding); variable indices as uint8 or uint16; floats as float32 or
// float64; switch tables as []int32.  Token operands are either a raw
// metadata.Token or an entity of the enclosing module (e.g. a
// *FieldDefinition), which is assigned its token when the module is written.
type Instruction struct {
	OpCode  *OpCode
	Operand any
}

func (i Instruction) String() string {
	if i.Operand == nil {
		return i.OpCode.Name
	} else if entity, ok := i.Operand.(Entity); ok {
		return fmt.Sprintf("%s %s", i.OpCode.Name, entity.FullName())
	}
	//
	return fmt.Sprintf("%s %v", i.OpCode.Name, i.Operand)
}

// MethodBody is the CIL body of a method.  Exception handling sections are not
// modelled.
type MethodBody struct {
	MaxStack     uint16
	InitLocals   bool
	LocalVarSig  metadata.Token
	Instructions []Instruction
}

// NewThrowNullBody constructs the body "ldnull; throw".
func NewThrowNullBody() *MethodBody {
	return &MethodBody{
		MaxStack:     tinyMaxStack,
		Instructions: []Instruction{{Ldnull, nil}, {Throw, nil}},
	}
}

func (b *MethodBody) String() string {
	var lines = make([]string, len(b.Instructions))
	//
	for i, insn := range b.Instructions {
		lines[i] = insn.String()
	}
	//
	return strings.Join(lines, "; ")
}

// Bytes encodes this body, including its header.  Token operands must be raw
// tokens.
func (b *MethodBody) Bytes() ([]byte, error) {
	return b.encode(func(operand any) (metadata.Token, error) {
		if token, ok := operand.(metadata.Token); ok {
			return token, nil
		}
		//
		return 0, fmt.Errorf("operand %v has no token", operand)
	})
}

// Encode this body, using a given function to determine the token for each
// token operand.  The tiny header is used whenever possible.
func (b *MethodBody) encode(tokenOf func(any) (metadata.Token, error)) ([]byte, error) {
	var code []byte
	//
	for _, insn := range b.Instructions {
		var err error
		//
		if code, err = appendInstruction(code, insn, tokenOf); err != nil {
			return nil, err
		}
	}
	//
	if len(code) < tinyMaxCode && b.MaxStack <= tinyMaxStack && !b.InitLocals && b.LocalVarSig.IsNil() {
		return append([]byte{byte(len(code))<<2 | tinyFormat}, code...), nil
	}
	//
	size, err := safecast.Conv[uint32](len(code))
	if err != nil {
		return nil, err
	}
	//
	flags := fatFormat | fatHeaderWords<<12
	if b.InitLocals {
		flags |= fatInitLocals
	}
	//
	header := make([]byte, 12, 12+len(code))
	binary.LittleEndian.PutUint16(header, flags)
	binary.LittleEndian.PutUint16(header[2:], b.MaxStack)
	binary.LittleEndian.PutUint32(header[4:], size)
	binary.LittleEndian.PutUint32(header[8:], uint32(b.LocalVarSig))
	//
	return append(header, code...), nil
}

func appendInstruction(code []byte, insn Instruction, tokenOf func(any) (metadata.Token, error)) ([]byte, error) {
	var op = insn.OpCode
	//
	if op.Value > 0xFF {
		code = append(code, byte(op.Value>>8), byte(op.Value))
	} else {
		code = append(code, byte(op.Value))
	}
	//
	switch op.Operand {
	case InlineNone:
		return code, nil
	case ShortInlineBrTarget, ShortInlineI:
		v, err := operandInt[int8](insn)
		return append(code, byte(v)), err
	case ShortInlineVar:
		v, err := operandInt[uint8](insn)
		return append(code, v), err
	case InlineVar:
		v, err := operandInt[uint16](insn)
		return binary.LittleEndian.AppendUint16(code, v), err
	case InlineI, InlineBrTarget:
		v, err := operandInt[int32](insn)
		return binary.LittleEndian.AppendUint32(code, uint32(v)), err
	case InlineI8:
		v, err := operandInt[int64](insn)
		return binary.LittleEndian.AppendUint64(code, uint64(v)), err
	case ShortInlineR:
		v, ok := insn.Operand.(float32)
		if !ok {
			return nil, fmt.Errorf("%s expects a float32 operand", op.Name)
		}
		//
		return binary.LittleEndian.AppendUint32(code, math.Float32bits(v)), nil
	case InlineR:
		v, ok := insn.Operand.(float64)
		if !ok {
			return nil, fmt.Errorf("%s expects a float64 operand", op.Name)
		}
		//
		return binary.LittleEndian.AppendUint64(code, math.Float64bits(v)), nil
	case InlineToken:
		token, err := tokenOf(insn.Operand)
		if err != nil {
			return nil, err
		}
		//
		return binary.LittleEndian.AppendUint32(code, uint32(token)), nil
	case InlineSwitch:
		targets, ok := insn.Operand.([]int32)
		if !ok {
			return nil, fmt.Errorf("switch expects an []int32 operand")
		}
		//
		code = binary.LittleEndian.AppendUint32(code, uint32(len(targets)))
		//
		for _, t := range targets {
			code = binary.LittleEndian.AppendUint32(code, uint32(t))
		}
		//
		return code, nil
	}
	//
	return nil, fmt.Errorf("unknown operand type for %s", op.Name)
}

// Extract an integer operand, checking it fits the encoding.
func operandInt[T int8 | uint8 | uint16 | int32 | int64](insn Instruction) (T, error) {
	var (
		value T
		err   error
	)
	//
	switch v := insn.Operand.(type) {
	case int:
		value, err = safecast.Conv[T](v)
	case int8:
		value, err = safecast.Conv[T](v)
	case uint8:
		value, err = safecast.Conv[T](v)
	case int16:
		value, err = safecast.Conv[T](v)
	case uint16:
		value, err = safecast.Conv[T](v)
	case int32:
		value, err = safecast.Conv[T](v)
	case uint32:
		value, err = safecast.Conv[T](v)
	case int64:
		value, err = safecast.Conv[T](v)
	default:
		return 0, fmt.Errorf("%s expects an integer operand (got %T)", insn.OpCode.Name, insn.Operand)
	}
	//
	if err != nil {
		return 0, fmt.Errorf("operand of %s: %w", insn.OpCode.Name, err)
	}
	//
	return value, nil
}

// DecodeMethodBody decodes a method body (header and instructions) from the
// start of the given bytes.
func DecodeMethodBody(data []byte) (*MethodBody, error) {
	var body MethodBody
	//
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty method body", metadata.ErrMalformed)
	}
	//
	var code []byte
	//
	if data[0]&0x3 == tinyFormat {
		size := int(data[0] >> 2)
		if 1+size > len(data) {
			return nil, fmt.Errorf("%w: truncated method body", metadata.ErrMalformed)
		}
		//
		body.MaxStack = tinyMaxStack
		code = data[1 : 1+size]
	} else if len(data) >= 12 && binary.LittleEndian.Uint16(data)&0x3 == fatFormat {
		var (
			flags      = binary.LittleEndian.Uint16(data)
			headerSize = int(flags>>12) * 4
			size       = uint64(binary.LittleEndian.Uint32(data[4:]))
		)
		//
		if headerSize < 12 || uint64(headerSize)+size > uint64(len(data)) {
			return nil, fmt.Errorf("%w: truncated method body", metadata.ErrMalformed)
		}
		//
		body.MaxStack = binary.LittleEndian.Uint16(data[2:])
		body.InitLocals = flags&fatInitLocals != 0
		body.LocalVarSig = metadata.Token(binary.LittleEndian.Uint32(data[8:]))
		code = data[headerSize : uint64(headerSize)+size]
	} else {
		return nil, fmt.Errorf("%w: invalid method body header 0x%02x", metadata.ErrMalformed, data[0])
	}
	//
	instructions, err := DecodeInstructions(code)
	if err != nil {
		return nil, err
	}
	//
	body.Instructions = instructions
	//
	return &body, nil
}

// DecodeInstructions decodes a sequence of CIL instructions.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	var instructions []Instruction
	//
	for pos := 0; pos < len(code); {
		value := uint16(code[pos])
		pos++
		//
		if value == 0xFE {
			if pos >= len(code) {
				return nil, fmt.Errorf("%w: truncated instruction", metadata.ErrMalformed)
			}
			//
			value = 0xFE00 | uint16(code[pos])
			pos++
		}
		//
		op, ok := LookupOpCode(value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown opcode 0x%x", metadata.ErrMalformed, value)
		}
		//
		operand, n, err := decodeOperand(op, code[pos:])
		if err != nil {
			return nil, err
		}
		//
		pos += n
		instructions = append(instructions, Instruction{op, operand})
	}
	//
	return instructions, nil
}

func decodeOperand(op *OpCode, data []byte) (any, int, error) {
	var size int
	//
	switch op.Operand {
	case InlineNone:
		return nil, 0, nil
	case ShortInlineBrTarget, ShortInlineI, ShortInlineVar:
		size = 1
	case InlineVar:
		size = 2
	case InlineI, InlineBrTarget, ShortInlineR, InlineToken, InlineSwitch:
		size = 4
	case InlineI8, InlineR:
		size = 8
	}
	//
	if size > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated operand of %s", metadata.ErrMalformed, op.Name)
	}
	//
	switch op.Operand {
	case ShortInlineBrTarget, ShortInlineI:
		return int8(data[0]), 1, nil
	case ShortInlineVar:
		return data[0], 1, nil
	case InlineVar:
		return binary.LittleEndian.Uint16(data), 2, nil
	case InlineI, InlineBrTarget:
		return int32(binary.LittleEndian.Uint32(data)), 4, nil
	case ShortInlineR:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4, nil
	case InlineToken:
		return metadata.Token(binary.LittleEndian.Uint32(data)), 4, nil
	case InlineI8:
		return int64(binary.LittleEndian.Uint64(data)), 8, nil
	case InlineR:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
	}
	// Switch
	count := uint64(binary.LittleEndian.Uint32(data))
	if 4+4*count > uint64(len(data)) {
		return nil, 0, fmt.Errorf("%w: truncated switch table", metadata.ErrMalformed)
	}
	//
	targets := make([]int32, count)
	for i := range targets {
		targets[i] = int32(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	//
	return targets, 4 + 4*int(count), nil
}
