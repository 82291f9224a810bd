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
	"fmt"

	"github.com/consensys/go-publicizer/pkg/dotnet"
)

// maskIndex records the full names of every type in a mask assembly, along
// with those of their methods and fields.  A nil index permits everything.
type maskIndex struct {
	types map[string]*maskType
}

type maskType struct {
	methods map[string]struct{}
	fields  map[string]struct{}
}

// Build the index of a mask module, or return nil if there is none.  Types
// with the same full name cannot be told apart, hence are rejected.
func newMaskIndex(mask *dotnet.Module) (*maskIndex, error) {
	if mask == nil {
		return nil, nil
	}
	//
	index := &maskIndex{types: make(map[string]*maskType, len(mask.Types))}
	//
	for _, t := range mask.Types {
		name := t.FullName()
		//
		if _, ok := index.types[name]; ok {
			return nil, fmt.Errorf("%w: type %s defined twice", ErrAmbiguousMask, name)
		}
		//
		entry := &maskType{
			methods: make(map[string]struct{}, len(t.Methods)),
			fields:  make(map[string]struct{}, len(t.Fields)),
		}
		//
		for _, m := range t.Methods {
			entry.methods[m.FullName()] = struct{}{}
		}
		//
		for _, f := range t.Fields {
			entry.fields[f.FullName()] = struct{}{}
		}
		//
		index.types[name] = entry
	}
	//
	return index, nil
}

// Lookup the mask entry for a type.  With no mask, every type is found (with a
// nil entry permitting every member).
func (i *maskIndex) lookup(t *dotnet.TypeDefinition) (*maskType, bool) {
	if i == nil {
		return nil, true
	}
	//
	entry, ok := i.types[t.FullName()]
	//
	return entry, ok
}

func (t *maskType) hasMethod(m *dotnet.MethodDefinition) bool {
	if t == nil {
		return true
	}
	//
	_, ok := t.methods[m.FullName()]
	//
	return ok
}

func (t *maskType) hasField(f *dotnet.FieldDefinition) bool {
	if t == nil {
		return true
	}
	//
	_, ok := t.fields[f.FullName()]
	//
	return ok
}
