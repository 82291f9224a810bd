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

// AssemblyResolver locates the module defining an external assembly.
// Implementations must be safe for concurrent use.
type AssemblyResolver interface {
	// Resolve returns the manifest module of the referenced assembly, or false
	// if it cannot be found.
	Resolve(ref *AssemblyReference) (*Module, bool)
}

// NoopResolver never resolves anything.  It is stateless and shared by every
// module by default, such that reading a module never loads its dependencies.
var NoopResolver AssemblyResolver = noopResolver{}

type noopResolver struct{}

func (noopResolver) Resolve(*AssemblyReference) (*Module, bool) {
	return nil, false
}

// ResolveType attempts to find the definition of a type reference.  References
// to types of this module are resolved locally, whilst references to other
// assemblies are passed to the module's resolver.
func (m *Module) ResolveType(ref *TypeReference) (*TypeDefinition, bool) {
	switch scope := ref.Scope.(type) {
	case *Module:
		return scope.FindType(ref.FullName())
	case *TypeReference:
		outer, ok := m.ResolveType(scope)
		if !ok {
			return nil, false
		}
		//
		for _, nested := range outer.NestedTypes {
			if nested.Name == ref.Name {
				return nested, true
			}
		}
	case *AssemblyReference:
		resolver := m.Resolver
		if resolver == nil {
			resolver = NoopResolver
		}
		//
		if target, ok := resolver.Resolve(scope); ok {
			return target.FindType(ref.FullName())
		}
	}
	//
	return nil, false
}
