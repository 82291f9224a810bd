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
package publicizer

import (
	"bytes"
	"fmt"

	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/metadata"
	log "github.com/sirupsen/logrus"
)

// Name of the attribute type recording original visibility.
const (
	OriginalAttributesNamespace = "BepInEx.AssemblyPublicizer"
	OriginalAttributesName      = "OriginalAttributesAttribute"
)

var (
	// instance void .ctor()
	attributeBaseCtorSig = []byte{0x20, 0x00, 0x01}
	// instance void .ctor(int32)
	attributeCtorSig = []byte{0x20, 0x01, 0x01, 0x08}
	// int32
	attributeFieldSig = []byte{0x06, 0x08}
)

// originalAttributes synthesizes the attribute type which records the original
// visibility of a definition, along with its applications.  The type is only
// added to the module when the first application is requested.
//
//	internal sealed class OriginalAttributesAttribute : System.Attribute {
//	    private readonly int attributes;
//	    public OriginalAttributesAttribute(int attributes) { this.attributes = attributes; }
//	}
type originalAttributes struct {
	module *dotnet.Module
	typ    *dotnet.TypeDefinition
	ctor   *dotnet.MethodDefinition
}

// Construct the synthesizer for a module.  A module publicized previously
// already defines the attribute type, which is then reused (and so excluded
// from rewriting) rather than defined again.
func newOriginalAttributes(module *dotnet.Module) *originalAttributes {
	var a = &originalAttributes{module: module}
	//
	if t, ok := module.FindType(OriginalAttributesNamespace + "." + OriginalAttributesName); ok {
		for _, m := range t.Methods {
			if m.Name == ".ctor" && bytes.Equal(m.Signature, attributeCtorSig) {
				a.typ, a.ctor = t, m
				break
			}
		}
	}
	//
	return a
}

// Type returns the synthesized type, or nil if it has not been created.
func (a *originalAttributes) Type() *dotnet.TypeDefinition {
	return a.typ
}

// Check whether a type is the synthesized attribute type (by identity, since
// a user type could have the same name).
func (a *originalAttributes) is(t *dotnet.TypeDefinition) bool {
	return a != nil && a.typ != nil && a.typ == t
}

// ToCustomAttribute constructs an application of the attribute carrying the
// given original visibility.
func (a *originalAttributes) ToCustomAttribute(value int32) (*dotnet.CustomAttribute, error) {
	if a.ctor == nil {
		if err := a.synthesize(); err != nil {
			return nil, err
		}
	}
	//
	return dotnet.NewCustomAttribute(a.ctor, &dotnet.CustomAttributeSignature{
		FixedArguments: []dotnet.FixedArgument{{Type: metadata.ElementI4, Value: value}},
	}), nil
}

func (a *originalAttributes) synthesize() error {
	var m = a.module
	//
	scope, ok := m.CorLibScope()
	if !ok {
		return fmt.Errorf("%w: module %s", ErrNoCoreLibrary, m.Name)
	}
	//
	base := m.ImportType(scope, "System", "Attribute")
	baseCtor := m.ImportMember(base, ".ctor", attributeBaseCtorSig)
	//
	a.typ = &dotnet.TypeDefinition{
		Namespace:  OriginalAttributesNamespace,
		Name:       OriginalAttributesName,
		Attributes: metadata.TypeNotPublic | metadata.TypeSealed,
		BaseType:   base,
	}
	m.AddType(a.typ)
	//
	field := &dotnet.FieldDefinition{
		Name:       "attributes",
		Attributes: metadata.FieldPrivate | metadata.FieldInitOnly,
		Signature:  attributeFieldSig,
	}
	a.typ.AddField(field)
	//
	a.ctor = &dotnet.MethodDefinition{
		Name: ".ctor",
		Attributes: metadata.MethodPublic | metadata.MethodHideBySig | metadata.MethodSpecialName |
			metadata.MethodRTSpecialName,
		Signature:  attributeCtorSig,
		Parameters: []*dotnet.ParameterDefinition{{Sequence: 1, Name: "attributes"}},
		Body: &dotnet.MethodBody{
			MaxStack: 8,
			Instructions: []dotnet.Instruction{
				{OpCode: dotnet.Ldarg0},
				{OpCode: dotnet.Call, Operand: baseCtor},
				{OpCode: dotnet.Ldarg0},
				{OpCode: dotnet.Ldarg1},
				{OpCode: dotnet.Stfld, Operand: field},
				{OpCode: dotnet.Ret},
			},
		},
	}
	a.typ.AddMethod(a.ctor)
	//
	log.Debugf("added %s to %s", a.typ.FullName(), m.Name)
	//
	return nil
}
