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
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"fortio.org/safecast"
	"github.com/consensys/go-publicizer/pkg/metadata"
)

// attributeProlog begins every custom attribute blob (ECMA-335 II.23.3).
const attributeProlog uint16 = 0x0001

// CustomAttribute is an application of an attribute to some definition.
type CustomAttribute struct {
	// Attribute constructor, either a *MethodDefinition or a
	// *MemberReference.
	Constructor Entity
	// Arguments for a newly constructed attribute.  When nil, the value read
	// from the image is retained.
	Signature *CustomAttributeSignature
	// Value blob as read
	value []byte
}

// NewCustomAttribute constructs an attribute from its constructor and
// arguments.
func NewCustomAttribute(constructor Entity, signature *CustomAttributeSignature) *CustomAttribute {
	return &CustomAttribute{Constructor: constructor, Signature: signature}
}

// Value returns the encoded value blob of this attribute.
func (a *CustomAttribute) Value() ([]byte, error) {
	if a.Signature != nil {
		return a.Signature.Bytes()
	}
	//
	return a.value, nil
}

// TypeFullName returns the full name of the attribute type, as determined from
// its constructor.
func (a *CustomAttribute) TypeFullName() string {
	switch ctor := a.Constructor.(type) {
	case *MethodDefinition:
		if ctor.DeclaringType != nil {
			return ctor.DeclaringType.FullName()
		}
	case *MemberReference:
		if ctor.Parent != nil {
			return ctor.Parent.FullName()
		}
	}
	//
	return ""
}

// Arguments decodes the fixed arguments of this attribute, using the parameter
// types of its constructor.  Only primitive and string parameters are
// supported.
func (a *CustomAttribute) Arguments() (*CustomAttributeSignature, error) {
	var signature []byte
	//
	if a.Signature != nil {
		return a.Signature, nil
	}
	//
	switch ctor := a.Constructor.(type) {
	case *MethodDefinition:
		signature = ctor.Signature
	case *MemberReference:
		signature = ctor.Signature
	default:
		return nil, fmt.Errorf("attribute has no constructor")
	}
	//
	types, err := parameterElementTypes(signature)
	if err != nil {
		return nil, err
	}
	//
	return DecodeCustomAttributeSignature(a.value, types)
}

// FixedArgument is a single positional argument of an attribute.  Value holds
// the Go type corresponding to the element type (e.g. int32 for I4).
type FixedArgument struct {
	Type  metadata.ElementType
	Value any
}

// CustomAttributeSignature holds the arguments of an attribute.  Named
// arguments are not supported.
type CustomAttributeSignature struct {
	FixedArguments []FixedArgument
}

// Bytes encodes this signature as a value blob.
func (s *CustomAttributeSignature) Bytes() ([]byte, error) {
	var buffer = binary.LittleEndian.AppendUint16(nil, attributeProlog)
	//
	for i, arg := range s.FixedArguments {
		var err error
		//
		if buffer, err = appendFixedArgument(buffer, arg); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	// No named arguments
	return binary.LittleEndian.AppendUint16(buffer, 0), nil
}

func appendFixedArgument(buffer []byte, arg FixedArgument) ([]byte, error) {
	var ok bool
	//
	switch arg.Type {
	case metadata.ElementBoolean:
		var v bool
		if v, ok = arg.Value.(bool); ok && v {
			return append(buffer, 1), nil
		} else if ok {
			return append(buffer, 0), nil
		}
	case metadata.ElementI1:
		var v int8
		if v, ok = arg.Value.(int8); ok {
			return append(buffer, byte(v)), nil
		}
	case metadata.ElementU1:
		var v uint8
		if v, ok = arg.Value.(uint8); ok {
			return append(buffer, v), nil
		}
	case metadata.ElementI2:
		var v int16
		if v, ok = arg.Value.(int16); ok {
			return binary.LittleEndian.AppendUint16(buffer, uint16(v)), nil
		}
	case metadata.ElementU2, metadata.ElementChar:
		var v uint16
		if v, ok = arg.Value.(uint16); ok {
			return binary.LittleEndian.AppendUint16(buffer, v), nil
		}
	case metadata.ElementI4:
		var v int32
		if v, ok = arg.Value.(int32); ok {
			return binary.LittleEndian.AppendUint32(buffer, uint32(v)), nil
		}
	case metadata.ElementU4:
		var v uint32
		if v, ok = arg.Value.(uint32); ok {
			return binary.LittleEndian.AppendUint32(buffer, v), nil
		}
	case metadata.ElementI8:
		var v int64
		if v, ok = arg.Value.(int64); ok {
			return binary.LittleEndian.AppendUint64(buffer, uint64(v)), nil
		}
	case metadata.ElementU8:
		var v uint64
		if v, ok = arg.Value.(uint64); ok {
			return binary.LittleEndian.AppendUint64(buffer, v), nil
		}
	case metadata.ElementR4:
		var v float32
		if v, ok = arg.Value.(float32); ok {
			return binary.LittleEndian.AppendUint32(buffer, math.Float32bits(v)), nil
		}
	case metadata.ElementR8:
		var v float64
		if v, ok = arg.Value.(float64); ok {
			return binary.LittleEndian.AppendUint64(buffer, math.Float64bits(v)), nil
		}
	case metadata.ElementString:
		if arg.Value == nil {
			// Null string
			return append(buffer, 0xFF), nil
		}
		//
		var v string
		if v, ok = arg.Value.(string); ok {
			n, err := safecast.Conv[uint32](len(v))
			if err != nil {
				return nil, err
			}
			//
			if buffer, err = metadata.AppendCompressedUint(buffer, n); err != nil {
				return nil, err
			}
			//
			return append(buffer, v...), nil
		}
	default:
		return nil, fmt.Errorf("%w: argument of element type 0x%02x", metadata.ErrUnsupported, uint8(arg.Type))
	}
	//
	return nil, fmt.Errorf("value %v (%T) does not match element type 0x%02x", arg.Value, arg.Value, uint8(arg.Type))
}

// DecodeCustomAttributeSignature decodes the fixed arguments of a value blob,
// given their element types.
func DecodeCustomAttributeSignature(blob []byte, types []metadata.ElementType) (*CustomAttributeSignature, error) {
	var (
		signature CustomAttributeSignature
		reader    = bytes.NewReader(blob)
		prolog    uint16
	)
	//
	if err := binary.Read(reader, binary.LittleEndian, &prolog); err != nil || prolog != attributeProlog {
		return nil, fmt.Errorf("%w: missing custom attribute prolog", metadata.ErrMalformed)
	}
	//
	for _, t := range types {
		value, err := readFixedArgument(reader, t)
		if err != nil {
			return nil, err
		}
		//
		signature.FixedArguments = append(signature.FixedArguments, FixedArgument{t, value})
	}
	//
	return &signature, nil
}

func readFixedArgument(reader *bytes.Reader, t metadata.ElementType) (any, error) {
	var value any
	//
	switch t {
	case metadata.ElementBoolean:
		b, err := reader.ReadByte()
		return b != 0, truncated(err)
	case metadata.ElementI1:
		value = new(int8)
	case metadata.ElementU1:
		value = new(uint8)
	case metadata.ElementI2:
		value = new(int16)
	case metadata.ElementU2, metadata.ElementChar:
		value = new(uint16)
	case metadata.ElementI4:
		value = new(int32)
	case metadata.ElementU4:
		value = new(uint32)
	case metadata.ElementI8:
		value = new(int64)
	case metadata.ElementU8:
		value = new(uint64)
	case metadata.ElementR4:
		value = new(float32)
	case metadata.ElementR8:
		value = new(float64)
	case metadata.ElementString:
		return readSerString(reader)
	default:
		return nil, fmt.Errorf("%w: argument of element type 0x%02x", metadata.ErrUnsupported, uint8(t))
	}
	//
	if err := binary.Read(reader, binary.LittleEndian, value); err != nil {
		return nil, truncated(err)
	}
	// Dereference
	switch v := value.(type) {
	case *int8:
		return *v, nil
	case *uint8:
		return *v, nil
	case *int16:
		return *v, nil
	case *uint16:
		return *v, nil
	case *int32:
		return *v, nil
	case *uint32:
		return *v, nil
	case *int64:
		return *v, nil
	case *uint64:
		return *v, nil
	case *float32:
		return *v, nil
	default:
		return *(v.(*float64)), nil
	}
}

func readSerString(reader *bytes.Reader) (any, error) {
	first, err := reader.ReadByte()
	if err != nil {
		return nil, truncated(err)
	} else if first == 0xFF {
		// Null string
		return nil, nil
	}
	//
	_ = reader.UnreadByte()
	// Length prefix occupies at most four bytes
	offset := reader.Size() - int64(reader.Len())
	header := make([]byte, min(4, reader.Len()))
	_, _ = reader.ReadAt(header, offset)
	//
	length, n, err := metadata.DecodeCompressedUint(header)
	if err != nil {
		return nil, err
	} else if int64(n)+int64(length) > int64(reader.Len()) {
		return nil, fmt.Errorf("%w: truncated string argument", metadata.ErrMalformed)
	}
	//
	str := make([]byte, n+int(length))
	_, _ = io.ReadFull(reader, str)
	//
	return string(str[n:]), nil
}

func truncated(err error) error {
	if err != nil {
		return fmt.Errorf("%w: truncated custom attribute argument", metadata.ErrMalformed)
	}
	//
	return nil
}

// Determine the element types of the parameters of a method signature.  Only
// primitive and string parameters are supported.
func parameterElementTypes(signature []byte) ([]metadata.ElementType, error) {
	var reader = metadata.NewSignatureReader(signature)
	//
	conv, err := reader.Byte()
	if err != nil {
		return nil, err
	} else if conv&metadata.SigGeneric != 0 {
		return nil, fmt.Errorf("%w: generic attribute constructor", metadata.ErrUnsupported)
	}
	//
	count, err := reader.Uint()
	if err != nil {
		return nil, err
	}
	// Return type is void
	if _, err := reader.Byte(); err != nil {
		return nil, err
	}
	//
	types := make([]metadata.ElementType, count)
	//
	for i := range types {
		b, err := reader.Byte()
		if err != nil {
			return nil, err
		}
		//
		types[i] = metadata.ElementType(b)
	}
	//
	return types, nil
}
