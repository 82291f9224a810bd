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

// OperandType determines the encoding of an instruction's operand.
type OperandType uint8

// Operand types (ECMA-335 VI.C.2)
const (
	// No operand
	InlineNone OperandType = iota
	// Signed 8bit branch offset
	ShortInlineBrTarget
	// Signed 8bit integer
	ShortInlineI
	// Unsigned 8bit argument or local index
	ShortInlineVar
	// Unsigned 16bit argument or local index
	InlineVar
	// Signed 32bit integer
	InlineI
	// Signed 32bit branch offset
	InlineBrTarget
	// Signed 64bit integer
	InlineI8
	// 32bit float
	ShortInlineR
	// 64bit float
	InlineR
	// Metadata token (field, method, type, string or signature)
	InlineToken
	// Jump table
	InlineSwitch
)

// OpCode describes a single CIL instruction kind.
type OpCode struct {
	Name string
	// Encoded value, where two byte opcodes have 0xFE in the upper byte.
	Value   uint16
	Operand OperandType
}

// Size returns the number of bytes used to encode this opcode (excluding its
// operand).
func (o *OpCode) Size() int {
	if o.Value > 0xFF {
		return 2
	}
	//
	return 1
}

func (o *OpCode) String() string {
	return o.Name
}

var opcodes = []OpCode{
	{"nop", 0x00, InlineNone}, {"break", 0x01, InlineNone},
	{"ldarg.0", 0x02, InlineNone}, {"ldarg.1", 0x03, InlineNone}, {"ldarg.2", 0x04, InlineNone},
	{"ldarg.3", 0x05, InlineNone}, {"ldloc.0", 0x06, InlineNone}, {"ldloc.1", 0x07, InlineNone},
	{"ldloc.2", 0x08, InlineNone}, {"ldloc.3", 0x09, InlineNone}, {"stloc.0", 0x0A, InlineNone},
	{"stloc.1", 0x0B, InlineNone}, {"stloc.2", 0x0C, InlineNone}, {"stloc.3", 0x0D, InlineNone},
	{"ldarg.s", 0x0E, ShortInlineVar}, {"ldarga.s", 0x0F, ShortInlineVar}, {"starg.s", 0x10, ShortInlineVar},
	{"ldloc.s", 0x11, ShortInlineVar}, {"ldloca.s", 0x12, ShortInlineVar}, {"stloc.s", 0x13, ShortInlineVar},
	{"ldnull", 0x14, InlineNone}, {"ldc.i4.m1", 0x15, InlineNone}, {"ldc.i4.0", 0x16, InlineNone},
	{"ldc.i4.1", 0x17, InlineNone}, {"ldc.i4.2", 0x18, InlineNone}, {"ldc.i4.3", 0x19, InlineNone},
	{"ldc.i4.4", 0x1A, InlineNone}, {"ldc.i4.5", 0x1B, InlineNone}, {"ldc.i4.6", 0x1C, InlineNone},
	{"ldc.i4.7", 0x1D, InlineNone}, {"ldc.i4.8", 0x1E, InlineNone}, {"ldc.i4.s", 0x1F, ShortInlineI},
	{"ldc.i4", 0x20, InlineI}, {"ldc.i8", 0x21, InlineI8}, {"ldc.r4", 0x22, ShortInlineR},
	{"ldc.r8", 0x23, InlineR}, {"dup", 0x25, InlineNone}, {"pop", 0x26, InlineNone},
	{"jmp", 0x27, InlineToken}, {"call", 0x28, InlineToken}, {"calli", 0x29, InlineToken},
	{"ret", 0x2A, InlineNone}, {"br.s", 0x2B, ShortInlineBrTarget}, {"brfalse.s", 0x2C, ShortInlineBrTarget},
	{"brtrue.s", 0x2D, ShortInlineBrTarget}, {"beq.s", 0x2E, ShortInlineBrTarget}, {"bge.s", 0x2F, ShortInlineBrTarget},
	{"bgt.s", 0x30, ShortInlineBrTarget}, {"ble.s", 0x31, ShortInlineBrTarget}, {"blt.s", 0x32, ShortInlineBrTarget},
	{"bne.un.s", 0x33, ShortInlineBrTarget}, {"bge.un.s", 0x34, ShortInlineBrTarget},
	{"bgt.un.s", 0x35, ShortInlineBrTarget}, {"ble.un.s", 0x36, ShortInlineBrTarget},
	{"blt.un.s", 0x37, ShortInlineBrTarget}, {"br", 0x38, InlineBrTarget}, {"brfalse", 0x39, InlineBrTarget},
	{"brtrue", 0x3A, InlineBrTarget}, {"beq", 0x3B, InlineBrTarget}, {"bge", 0x3C, InlineBrTarget},
	{"bgt", 0x3D, InlineBrTarget}, {"ble", 0x3E, InlineBrTarget}, {"blt", 0x3F, InlineBrTarget},
	{"bne.un", 0x40, InlineBrTarget}, {"bge.un", 0x41, InlineBrTarget}, {"bgt.un", 0x42, InlineBrTarget},
	{"ble.un", 0x43, InlineBrTarget}, {"blt.un", 0x44, InlineBrTarget}, {"switch", 0x45, InlineSwitch},
	{"ldind.i1", 0x46, InlineNone}, {"ldind.u1", 0x47, InlineNone}, {"ldind.i2", 0x48, InlineNone},
	{"ldind.u2", 0x49, InlineNone}, {"ldind.i4", 0x4A, InlineNone}, {"ldind.u4", 0x4B, InlineNone},
	{"ldind.i8", 0x4C, InlineNone}, {"ldind.i", 0x4D, InlineNone}, {"ldind.r4", 0x4E, InlineNone},
	{"ldind.r8", 0x4F, InlineNone}, {"ldind.ref", 0x50, InlineNone}, {"stind.ref", 0x51, InlineNone},
	{"stind.i1", 0x52, InlineNone}, {"stind.i2", 0x53, InlineNone}, {"stind.i4", 0x54, InlineNone},
	{"stind.i8", 0x55, InlineNone}, {"stind.r4", 0x56, InlineNone}, {"stind.r8", 0x57, InlineNone},
	{"add", 0x58, InlineNone}, {"sub", 0x59, InlineNone}, {"mul", 0x5A, InlineNone},
	{"div", 0x5B, InlineNone}, {"div.un", 0x5C, InlineNone}, {"rem", 0x5D, InlineNone},
	{"rem.un", 0x5E, InlineNone}, {"and", 0x5F, InlineNone}, {"or", 0x60, InlineNone},
	{"xor", 0x61, InlineNone}, {"shl", 0x62, InlineNone}, {"shr", 0x63, InlineNone},
	{"shr.un", 0x64, InlineNone}, {"neg", 0x65, InlineNone}, {"not", 0x66, InlineNone},
	{"conv.i1", 0x67, InlineNone}, {"conv.i2", 0x68, InlineNone}, {"conv.i4", 0x69, InlineNone},
	{"conv.i8", 0x6A, InlineNone}, {"conv.r4", 0x6B, InlineNone}, {"conv.r8", 0x6C, InlineNone},
	{"conv.u4", 0x6D, InlineNone}, {"conv.u8", 0x6E, InlineNone}, {"callvirt", 0x6F, InlineToken},
	{"cpobj", 0x70, InlineToken}, {"ldobj", 0x71, InlineToken}, {"ldstr", 0x72, InlineToken},
	{"newobj", 0x73, InlineToken}, {"castclass", 0x74, InlineToken}, {"isinst", 0x75, InlineToken},
	{"conv.r.un", 0x76, InlineNone}, {"unbox", 0x79, InlineToken}, {"throw", 0x7A, InlineNone},
	{"ldfld", 0x7B, InlineToken}, {"ldflda", 0x7C, InlineToken}, {"stfld", 0x7D, InlineToken},
	{"ldsfld", 0x7E, InlineToken}, {"ldsflda", 0x7F, InlineToken}, {"stsfld", 0x80, InlineToken},
	{"stobj", 0x81, InlineToken}, {"conv.ovf.i1.un", 0x82, InlineNone}, {"conv.ovf.i2.un", 0x83, InlineNone},
	{"conv.ovf.i4.un", 0x84, InlineNone}, {"conv.ovf.i8.un", 0x85, InlineNone},
	{"conv.ovf.u1.un", 0x86, InlineNone}, {"conv.ovf.u2.un", 0x87, InlineNone},
	{"conv.ovf.u4.un", 0x88, InlineNone}, {"conv.ovf.u8.un", 0x89, InlineNone},
	{"conv.ovf.i.un", 0x8A, InlineNone}, {"conv.ovf.u.un", 0x8B, InlineNone}, {"box", 0x8C, InlineToken},
	{"newarr", 0x8D, InlineToken}, {"ldlen", 0x8E, InlineNone}, {"ldelema", 0x8F, InlineToken},
	{"ldelem.i1", 0x90, InlineNone}, {"ldelem.u1", 0x91, InlineNone}, {"ldelem.i2", 0x92, InlineNone},
	{"ldelem.u2", 0x93, InlineNone}, {"ldelem.i4", 0x94, InlineNone}, {"ldelem.u4", 0x95, InlineNone},
	{"ldelem.i8", 0x96, InlineNone}, {"ldelem.i", 0x97, InlineNone}, {"ldelem.r4", 0x98, InlineNone},
	{"ldelem.r8", 0x99, InlineNone}, {"ldelem.ref", 0x9A, InlineNone}, {"stelem.i", 0x9B, InlineNone},
	{"stelem.i1", 0x9C, InlineNone}, {"stelem.i2", 0x9D, InlineNone}, {"stelem.i4", 0x9E, InlineNone},
	{"stelem.i8", 0x9F, InlineNone}, {"stelem.r4", 0xA0, InlineNone}, {"stelem.r8", 0xA1, InlineNone},
	{"stelem.ref", 0xA2, InlineNone}, {"ldelem", 0xA3, InlineToken}, {"stelem", 0xA4, InlineToken},
	{"unbox.any", 0xA5, InlineToken}, {"conv.ovf.i1", 0xB3, InlineNone}, {"conv.ovf.u1", 0xB4, InlineNone},
	{"conv.ovf.i2", 0xB5, InlineNone}, {"conv.ovf.u2", 0xB6, InlineNone}, {"conv.ovf.i4", 0xB7, InlineNone},
	{"conv.ovf.u4", 0xB8, InlineNone}, {"conv.ovf.i8", 0xB9, InlineNone}, {"conv.ovf.u8", 0xBA, InlineNone},
	{"refanyval", 0xC2, InlineToken}, {"ckfinite", 0xC3, InlineNone}, {"mkrefany", 0xC6, InlineToken},
	{"ldtoken", 0xD0, InlineToken}, {"conv.u2", 0xD1, InlineNone}, {"conv.u1", 0xD2, InlineNone},
	{"conv.i", 0xD3, InlineNone}, {"conv.ovf.i", 0xD4, InlineNone}, {"conv.ovf.u", 0xD5, InlineNone},
	{"add.ovf", 0xD6, InlineNone}, {"add.ovf.un", 0xD7, InlineNone}, {"mul.ovf", 0xD8, InlineNone},
	{"mul.ovf.un", 0xD9, InlineNone}, {"sub.ovf", 0xDA, InlineNone}, {"sub.ovf.un", 0xDB, InlineNone},
	{"endfinally", 0xDC, InlineNone}, {"leave", 0xDD, InlineBrTarget}, {"leave.s", 0xDE, ShortInlineBrTarget},
	{"stind.i", 0xDF, InlineNone}, {"conv.u", 0xE0, InlineNone},
	// Two byte opcodes
	{"arglist", 0xFE00, InlineNone}, {"ceq", 0xFE01, InlineNone}, {"cgt", 0xFE02, InlineNone},
	{"cgt.un", 0xFE03, InlineNone}, {"clt", 0xFE04, InlineNone}, {"clt.un", 0xFE05, InlineNone},
	{"ldftn", 0xFE06, InlineToken}, {"ldvirtftn", 0xFE07, InlineToken}, {"ldarg", 0xFE09, InlineVar},
	{"ldarga", 0xFE0A, InlineVar}, {"starg", 0xFE0B, InlineVar}, {"ldloc", 0xFE0C, InlineVar},
	{"ldloca", 0xFE0D, InlineVar}, {"stloc", 0xFE0E, InlineVar}, {"localloc", 0xFE0F, InlineNone},
	{"endfilter", 0xFE11, InlineNone}, {"unaligned.", 0xFE12, ShortInlineVar}, {"volatile.", 0xFE13, InlineNone},
	{"tail.", 0xFE14, InlineNone}, {"initobj", 0xFE15, InlineToken}, {"constrained.", 0xFE16, InlineToken},
	{"cpblk", 0xFE17, InlineNone}, {"initblk", 0xFE18, InlineNone}, {"no.", 0xFE19, ShortInlineVar},
	{"rethrow", 0xFE1A, InlineNone}, {"sizeof", 0xFE1C, InlineToken}, {"refanytype", 0xFE1D, InlineNone},
	{"readonly.", 0xFE1E, InlineNone},
}

var opcodeIndex = indexOpCodes()

// Frequently constructed opcodes.
var (
	Nop     = mustOpCode(0x00)
	Ldarg0  = mustOpCode(0x02)
	Ldarg1  = mustOpCode(0x03)
	Ldnull  = mustOpCode(0x14)
	LdcI4   = mustOpCode(0x20)
	Call    = mustOpCode(0x28)
	Ret     = mustOpCode(0x2A)
	Ldstr   = mustOpCode(0x72)
	Newobj  = mustOpCode(0x73)
	Throw   = mustOpCode(0x7A)
	Ldfld   = mustOpCode(0x7B)
	Stfld   = mustOpCode(0x7D)
	Rethrow = mustOpCode(0xFE1A)
)

// LookupOpCode returns the opcode with the given encoded value.
func LookupOpCode(value uint16) (*OpCode, bool) {
	opcode, ok := opcodeIndex[value]
	return opcode, ok
}

func indexOpCodes() map[uint16]*OpCode {
	index := make(map[uint16]*OpCode, len(opcodes))
	//
	for i := range opcodes {
		index[opcodes[i].Value] = &opcodes[i]
	}
	//
	return index
}

func mustOpCode(value uint16) *OpCode {
	for i := range opcodes {
		if opcodes[i].Value == value {
			return &opcodes[i]
		}
	}
	//
	panic("unknown opcode")
}
