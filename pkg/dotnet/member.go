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
	"fmt"

	"github.com/consensys/go-publicizer/pkg/metadata"
)

// MethodDefinition is a method defined by a type.
type MethodDefinition struct {
	Name           string
	Attributes     metadata.MethodAttributes
	ImplAttributes metadata.MethodImplAttributes
	// Method signature blob (ECMA-335 II.23.2.1)
	Signature []byte
	// Replacement body.  When nil, the body read from the image (if any) is
	// retained.
	Body *MethodBody
	// Parameter rows, only written for methods added to a module.
	Parameters []*ParameterDefinition
	// Custom attributes applied to this method.
	CustomAttributes []*CustomAttribute
	DeclaringType    *TypeDefinition
	// RVA of the body as read, or zero.
	rva uint32
	rid uint32
	// Indicates this method was read from the image.
	original bool
}

// FullName returns the signature qualified name of this method, for example
// "System.Void Foo::Bar(System.Int32)".
func (m *MethodDefinition) FullName() string {
	return methodFullName(m.module(), m.declaringEntity(), m.Name, m.Signature)
}

// RVA returns the address of the original body of this method, or zero if it
// has none.
func (m *MethodDefinition) RVA() uint32 {
	return m.rva
}

// HasBody checks whether this method has a CIL body, either a replacement or
// one read from the image.
func (m *MethodDefinition) HasBody() bool {
	if m.Body != nil {
		return true
	}
	//
	return m.rva != 0 && m.ImplAttributes&metadata.MethodImplCodeTypeMask == metadata.MethodImplIL
}

// IsCompilerControlled checks whether this method has compiler-controlled
// accessibility (i.e. cannot be referenced by name).
func (m *MethodDefinition) IsCompilerControlled() bool {
	return m.Attributes.Access() == metadata.MethodCompilerControlled
}

// IsPublic checks whether this method has public accessibility.
func (m *MethodDefinition) IsPublic() bool {
	return m.Attributes.Access() == metadata.MethodPublic
}

// ReadBody returns the body of this method: its replacement body if one is
// set, otherwise the body read from the image.  Methods without a body
// return nil.
func (m *MethodDefinition) ReadBody() (*MethodBody, error) {
	if m.Body != nil {
		return m.Body, nil
	} else if !m.HasBody() {
		return nil, nil
	}
	//
	mod := m.module()
	if mod == nil || mod.image == nil {
		return nil, fmt.Errorf("method %s is not part of a module image", m.Name)
	}
	//
	data, err := mod.image.Tail(m.rva)
	if err != nil {
		return nil, &FormatError{err}
	}
	//
	return DecodeMethodBody(data)
}

func (m *MethodDefinition) module() *Module {
	if m.DeclaringType == nil {
		return nil
	}
	//
	return m.DeclaringType.module
}

func (m *MethodDefinition) declaringEntity() Entity {
	if m.DeclaringType == nil {
		return nil
	}
	//
	return m.DeclaringType
}

func (m *MethodDefinition) String() string {
	return m.FullName()
}

// ParameterDefinition describes a named method parameter.  Sequence zero
// refers to the return value.
type ParameterDefinition struct {
	Sequence   uint16
	Name       string
	Attributes uint16
}

// FieldDefinition is a field defined by a type.
type FieldDefinition struct {
	Name       string
	Attributes metadata.FieldAttributes
	// Field signature blob (ECMA-335 II.23.2.4)
	Signature []byte
	// Custom attributes applied to this field.
	CustomAttributes []*CustomAttribute
	DeclaringType    *TypeDefinition
	//
	rid      uint32
	original bool
}

// FullName returns the type qualified name of this field, for example
// "System.Int32 Foo::_x".
func (f *FieldDefinition) FullName() string {
	var (
		mod   *Module
		owner Entity
	)
	//
	if f.DeclaringType != nil {
		mod, owner = f.DeclaringType.module, f.DeclaringType
	}
	//
	return fieldFullName(mod, owner, f.Name, f.Signature)
}

// IsPrivateScope checks whether this field has compiler-controlled
// accessibility (i.e. cannot be referenced by name).
func (f *FieldDefinition) IsPrivateScope() bool {
	return f.Attributes.Access() == metadata.FieldPrivateScope
}

// IsPublic checks whether this field has public accessibility.
func (f *FieldDefinition) IsPublic() bool {
	return f.Attributes.Access() == metadata.FieldPublic
}

func (f *FieldDefinition) String() string {
	return f.FullName()
}

// PropertyDefinition is a property of a type, which refers to (but does not
// own) its accessor methods.
type PropertyDefinition struct {
	Name       string
	Attributes uint16
	Signature  []byte
	GetMethod  *MethodDefinition
	SetMethod  *MethodDefinition
	// Other methods associated with this property.
	OtherMethods []*MethodDefinition
}

// FullName returns the name of this property.
func (p *PropertyDefinition) FullName() string {
	return p.Name
}

// EventDefinition is an event of a type, which refers to (but does not own)
// its accessor methods.
type EventDefinition struct {
	Name         string
	Attributes   uint16
	EventType    TypeDefOrRef
	AddMethod    *MethodDefinition
	RemoveMethod *MethodDefinition
	FireMethod   *MethodDefinition
	OtherMethods []*MethodDefinition
}

// FullName returns the name of this event.
func (e *EventDefinition) FullName() string {
	return e.Name
}
