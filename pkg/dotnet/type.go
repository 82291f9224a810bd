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

import "github.com/consensys/go-publicizer/pkg/metadata"

// TypeDefinition is a type defined in a module.
type TypeDefinition struct {
	Namespace  string
	Name       string
	Attributes metadata.TypeAttributes
	// Base type, or nil (e.g. for interfaces and <Module>).
	BaseType TypeDefOrRef
	// Enclosing type (for nested types), or nil.
	DeclaringType *TypeDefinition
	NestedTypes   []*TypeDefinition
	// Members in declaration order.
	Methods    []*MethodDefinition
	Fields     []*FieldDefinition
	Properties []*PropertyDefinition
	Events     []*EventDefinition
	// Custom attributes applied to this type.
	CustomAttributes []*CustomAttribute
	//
	module *Module
	// Row identifier in the TypeDef table (zero if not yet written).
	rid uint32
	// Indicates this type was read from the image.
	original bool
}

func (*TypeDefinition) isTypeDefOrRef() {}

// Module returns the module to which this type belongs, or nil.
func (t *TypeDefinition) Module() *Module {
	return t.module
}

// FullName returns the namespace qualified name of this type, using "+" to
// separate nested types from their enclosing type.
func (t *TypeDefinition) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "+" + t.Name
	}
	//
	return qualify(t.Namespace, t.Name)
}

// IsNested checks whether this type is declared within another.
func (t *TypeDefinition) IsNested() bool {
	return t.DeclaringType != nil
}

// IsPublic checks whether this type is visible outside its assembly, according
// to its own visibility only.
func (t *TypeDefinition) IsPublic() bool {
	if t.IsNested() {
		return t.Attributes.Visibility() == metadata.TypeNestedPublic
	}
	//
	return t.Attributes.Visibility() == metadata.TypePublic
}

// IsInterface checks whether this type is an interface.
func (t *TypeDefinition) IsInterface() bool {
	return t.Attributes&metadata.TypeClassSemanticsMask == metadata.TypeInterface
}

// IsEnum checks whether this type derives directly from System.Enum.
func (t *TypeDefinition) IsEnum() bool {
	return t.BaseType != nil && t.BaseType.FullName() == "System.Enum"
}

// AddMethod appends a method to this type.
func (t *TypeDefinition) AddMethod(method *MethodDefinition) {
	method.DeclaringType = t
	t.Methods = append(t.Methods, method)
}

// AddField appends a field to this type.
func (t *TypeDefinition) AddField(field *FieldDefinition) {
	field.DeclaringType = t
	t.Fields = append(t.Fields, field)
}

// FindMethod returns the first method with the given name.
func (t *TypeDefinition) FindMethod(name string) (*MethodDefinition, bool) {
	for _, m := range t.Methods {
		if m.Name == name {
			return m, true
		}
	}
	//
	return nil, false
}

// FindField returns the field with the given name.
func (t *TypeDefinition) FindField(name string) (*FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	//
	return nil, false
}

func (t *TypeDefinition) String() string {
	return t.FullName()
}
