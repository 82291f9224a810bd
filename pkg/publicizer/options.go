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
	"strings"

	"github.com/consensys/go-publicizer/pkg/dotnet"
)

// Target identifies a category of definitions to publicize.  Targets are
// combined as a bit set.
type Target uint8

const (
	// TargetTypes publicizes type definitions.
	TargetTypes Target = 1 << iota
	// TargetMethods publicizes methods.
	TargetMethods
	// TargetFields publicizes fields.
	TargetFields
	// TargetAll publicizes everything.
	TargetAll = TargetTypes | TargetMethods | TargetFields
)

var targetNames = []struct {
	target Target
	name   string
}{{TargetTypes, "types"}, {TargetMethods, "methods"}, {TargetFields, "fields"}}

// ParseTargets parses a list of target names (e.g. "types", "methods",
// "fields" or "all").
func ParseTargets(names []string) (Target, error) {
	var targets Target
	//
outer:
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		//
		if name == "all" {
			targets |= TargetAll
			continue
		}
		//
		for _, t := range targetNames {
			if t.name == name {
				targets |= t.target
				continue outer
			}
		}
		//
		return 0, fmt.Errorf("unknown target %q", name)
	}
	//
	return targets, nil
}

func (t Target) String() string {
	var names []string
	//
	for _, n := range targetNames {
		if t&n.target != 0 {
			names = append(names, n.name)
		}
	}
	//
	if len(names) == 0 {
		return "none"
	}
	//
	return strings.Join(names, ",")
}

// CompilerGeneratedPredicate decides whether a type, method or field was
// synthesized by a compiler.
type CompilerGeneratedPredicate func(definition dotnet.Entity) bool

// Options control which definitions are publicized, and how.
type Options struct {
	// Categories of definitions to publicize.
	Targets Target
	// Publicize definitions synthesized by the compiler, such as closure
	// classes and backing fields.
	PublicizeCompilerGenerated bool
	// Record the original visibility of every changed definition using an
	// attribute.
	IncludeOriginalAttributesAttribute bool
	// Replace every method body with "ldnull; throw", producing a reference
	// assembly.
	Strip bool
	// Path of an assembly restricting which definitions are publicized (file
	// entry points only).
	MaskAssembly string
	// Predicate identifying compiler generated definitions.  When nil,
	// HasCompilerGeneratedAttribute is used.
	IsCompilerGenerated CompilerGeneratedPredicate
	// Optional report to which each change is appended.
	Report *Report
}

// DefaultOptions returns the options used when none are given: every target,
// with original attributes recorded.
func DefaultOptions() *Options {
	return &Options{
		Targets:                            TargetAll,
		IncludeOriginalAttributesAttribute: true,
	}
}

// HasTarget checks whether a given category of definitions is publicized.
func (o *Options) HasTarget(target Target) bool {
	return o.Targets&target == target
}

func (o *Options) isCompilerGenerated(definition dotnet.Entity) bool {
	if o.IsCompilerGenerated != nil {
		return o.IsCompilerGenerated(definition)
	}
	//
	return HasCompilerGeneratedAttribute(definition)
}

// CompilerGeneratedAttribute is the full name of the attribute with which
// compilers mark the definitions they synthesize.
const CompilerGeneratedAttribute = "System.Runtime.CompilerServices.CompilerGeneratedAttribute"

// HasCompilerGeneratedAttribute checks whether a type, method or field carries
// the CompilerGenerated attribute.
func HasCompilerGeneratedAttribute(definition dotnet.Entity) bool {
	var attributes []*dotnet.CustomAttribute
	//
	switch d := definition.(type) {
	case *dotnet.TypeDefinition:
		attributes = d.CustomAttributes
	case *dotnet.MethodDefinition:
		attributes = d.CustomAttributes
	case *dotnet.FieldDefinition:
		attributes = d.CustomAttributes
	}
	//
	for _, attribute := range attributes {
		if attribute.TypeFullName() == CompilerGeneratedAttribute {
			return true
		}
	}
	//
	return false
}
