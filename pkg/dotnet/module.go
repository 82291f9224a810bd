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
	"debug/pe"
	"slices"

	"github.com/consensys/go-publicizer/pkg/metadata"
	"github.com/consensys/go-publicizer/pkg/peimage"
)

// Entity is anything which can be referred to from metadata.
type Entity interface {
	// FullName returns the fully qualified name of this entity.
	FullName() string
}

// TypeDefOrRef is either a type definition, a type reference or a type
// specification.
type TypeDefOrRef interface {
	Entity
	isTypeDefOrRef()
}

// rawEntity is a reference into a table which is not modelled (e.g. a
// ModuleRef).  It is carried through unchanged.
type rawEntity struct {
	token metadata.Token
}

func (e rawEntity) FullName() string {
	return e.token.String()
}

// Module is the in-memory representation of a single .NET module.  Every
// definition is held by pointer and refers to others by pointer; metadata
// tokens for new definitions are only assigned when the module is written.
type Module struct {
	// Name of this module (e.g. "Foo.dll")
	Name string
	// Module version identifier
	Mvid [16]byte
	// Resolver used for references to other assemblies.
	Resolver AssemblyResolver
	// Manifest of the assembly defined by this module, or nil.
	Assembly *AssemblyDefinition
	// All type definitions in table order, including nested types and
	// <Module>.
	Types []*TypeDefinition
	// Type, member and assembly references in table order.
	TypeReferences     []*TypeReference
	MemberReferences   []*MemberReference
	TypeSpecifications []*TypeSpecification
	AssemblyReferences []*AssemblyReference
	// Backing image and metadata as read.
	image   *peimage.Image
	cli     cliHeader
	cliRVA  uint32
	root    *metadata.Root
	tables  *metadata.Tables
	strings *metadata.StringHeap
	blobs   *metadata.BlobHeap
	// Custom attributes on parents which are not modelled, kept verbatim.
	otherAttributes []metadata.Row
}

// cliHeader is the CLI header (ECMA-335 II.25.3.3), located through the CLR
// runtime data directory.
type cliHeader struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                pe.DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               pe.DataDirectory
	StrongNameSignature     pe.DataDirectory
	CodeManagerTable        pe.DataDirectory
	VTableFixups            pe.DataDirectory
	ExportAddressTableJumps pe.DataDirectory
	ManagedNativeHeader     pe.DataDirectory
}

const cliHeaderSize = 72

// FullName returns the name of this module.
func (m *Module) FullName() string {
	return m.Name
}

// HasModuleRow checks whether the module table defines this module.
func (m *Module) HasModuleRow() bool {
	return m.tables != nil && m.tables.Count(metadata.Module) > 0
}

// IsStrongNameSigned checks whether the image was signed.  Signatures do not
// survive rewriting.
func (m *Module) IsStrongNameSigned() bool {
	return m.cli.Flags&metadata.ComImageStrongNameSigned != 0
}

// RuntimeVersion returns the version string of the metadata root.
func (m *Module) RuntimeVersion() string {
	return m.root.Version
}

// AllTypes returns a snapshot of every type in this module, nested types
// included.  Types added whilst iterating over the snapshot are not visited.
func (m *Module) AllTypes() []*TypeDefinition {
	return slices.Clone(m.Types)
}

// TopLevelTypes returns those types which are not nested.
func (m *Module) TopLevelTypes() []*TypeDefinition {
	var types []*TypeDefinition
	//
	for _, t := range m.Types {
		if t.DeclaringType == nil {
			types = append(types, t)
		}
	}
	//
	return types
}

// FindType returns the type with the given full name.
func (m *Module) FindType(fullName string) (*TypeDefinition, bool) {
	for _, t := range m.Types {
		if t.FullName() == fullName {
			return t, true
		}
	}
	//
	return nil, false
}

// AddType appends a new type to this module.  If the type is nested, it is
// also added to its declaring type.
func (m *Module) AddType(t *TypeDefinition) {
	t.module = m
	m.Types = append(m.Types, t)
	//
	if t.DeclaringType != nil {
		t.DeclaringType.NestedTypes = append(t.DeclaringType.NestedTypes, t)
	}
}

// Owns checks whether a given type belongs to this module.
func (m *Module) Owns(t *TypeDefinition) bool {
	return t != nil && t.module == m
}

// Core library assembly names, in order of preference.
var corLibNames = []string{"mscorlib", "System.Runtime", "netstandard", "System.Private.CoreLib"}

// CorLibScope returns the resolution scope for types of the core library.
// This is the scope of an existing reference to System.Object when there is
// one, otherwise a reference to a well known core library assembly.
func (m *Module) CorLibScope() (Entity, bool) {
	for _, ref := range m.TypeReferences {
		if ref.Namespace == "System" && ref.Name == "Object" {
			if _, ok := ref.Scope.(*AssemblyReference); ok {
				return ref.Scope, true
			}
		}
	}
	//
	for _, name := range corLibNames {
		for _, ref := range m.AssemblyReferences {
			if ref.Name == name {
				return ref, true
			}
		}
	}
	// A module can be the core library itself
	if m.Assembly != nil && slices.Contains(corLibNames, m.Assembly.Name) {
		return m, true
	}
	//
	return nil, false
}

// ImportType returns a reference to the named type within the given scope,
// reusing an existing reference where possible.
func (m *Module) ImportType(scope Entity, namespace string, name string) *TypeReference {
	for _, ref := range m.TypeReferences {
		if ref.Scope == scope && ref.Namespace == namespace && ref.Name == name {
			return ref
		}
	}
	//
	ref := &TypeReference{Scope: scope, Namespace: namespace, Name: name, module: m}
	m.TypeReferences = append(m.TypeReferences, ref)
	//
	return ref
}

// ImportMember returns a reference to the named member of a given parent,
// reusing an existing reference with the same signature where possible.
func (m *Module) ImportMember(parent Entity, name string, signature []byte) *MemberReference {
	for _, ref := range m.MemberReferences {
		if ref.Parent == parent && ref.Name == name && bytes.Equal(ref.Signature, signature) {
			return ref
		}
	}
	//
	ref := &MemberReference{Parent: parent, Name: name, Signature: bytes.Clone(signature), module: m}
	m.MemberReferences = append(m.MemberReferences, ref)
	//
	return ref
}

// AssemblyDefinition is the manifest of the assembly defined by a module.
type AssemblyDefinition struct {
	Name    string
	Version [4]uint16
}

// FullName returns the name of this assembly.
func (a *AssemblyDefinition) FullName() string {
	return a.Name
}

// AssemblyReference is a reference to another assembly.
type AssemblyReference struct {
	Name    string
	Version [4]uint16
}

// FullName returns the name of the referenced assembly.
func (a *AssemblyReference) FullName() string {
	return a.Name
}

// TypeReference is a reference to a type, usually one defined in another
// assembly.  Scope is an *AssemblyReference, a *TypeReference (for nested
// types) or the *Module itself.
type TypeReference struct {
	Scope     Entity
	Namespace string
	Name      string
	module    *Module
}

func (*TypeReference) isTypeDefOrRef() {}

// FullName returns the namespace qualified name of the referenced type, using
// "+" to separate nested types from their enclosing type.
func (r *TypeReference) FullName() string {
	if outer, ok := r.Scope.(*TypeReference); ok {
		return outer.FullName() + "+" + r.Name
	}
	//
	return qualify(r.Namespace, r.Name)
}

// MemberReference is a reference to a field or method, usually one defined in
// another assembly.
type MemberReference struct {
	Parent    Entity
	Name      string
	Signature []byte
	module    *Module
}

// IsField checks whether this refers to a field (rather than a method).
func (r *MemberReference) IsField() bool {
	return len(r.Signature) > 0 && r.Signature[0]&metadata.SigKindMask == metadata.SigField
}

// FullName returns the signature qualified name of the referenced member.
func (r *MemberReference) FullName() string {
	if r.IsField() {
		return fieldFullName(r.module, r.Parent, r.Name, r.Signature)
	}
	//
	return methodFullName(r.module, r.Parent, r.Name, r.Signature)
}

// TypeSpecification describes a constructed type (e.g. a generic instance) by
// its signature.
type TypeSpecification struct {
	Signature []byte
	module    *Module
}

func (*TypeSpecification) isTypeDefOrRef() {}

// FullName returns the name of the specified type.
func (s *TypeSpecification) FullName() string {
	name, err := newSignatureFormatter(s.module, s.Signature).typeName()
	if err != nil {
		return "?"
	}
	//
	return name
}

func qualify(namespace string, name string) string {
	if namespace == "" {
		return name
	}
	//
	return namespace + "." + name
}
