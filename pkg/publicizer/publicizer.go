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
	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/metadata"
	log "github.com/sirupsen/logrus"
)

// Publicize makes the non-public types, methods and fields of a module
// public, modifying it in place.  Only the visibility (or access) bits of each
// definition are changed.  When a mask module is given, only those
// definitions whose full names also appear in the mask are changed.  Nil
// options are equivalent to DefaultOptions().
func Publicize(module *dotnet.Module, mask *dotnet.Module, opts *Options) (*dotnet.Module, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	//
	index, err := newMaskIndex(mask)
	if err != nil {
		return nil, err
	}
	//
	r := rewriter{opts: opts, mask: index}
	//
	if opts.IncludeOriginalAttributesAttribute {
		r.attribute = newOriginalAttributes(module)
	}
	//
	if opts.Report != nil && opts.Report.Module == "" {
		opts.Report.Module = module.Name
	}
	// Types added whilst rewriting (i.e. the attribute type) are not visited.
	for _, t := range module.AllTypes() {
		if err := r.publicizeType(t); err != nil {
			return nil, err
		}
	}
	//
	log.Debugf("publicized %d definitions of %s (%d bodies stripped)", r.changed, module.Name, r.stripped)
	//
	return module, nil
}

// rewriter holds the state of a single run over a module.
type rewriter struct {
	opts *Options
	mask *maskIndex
	// Synthesizer for the original attributes attribute, or nil when these
	// are not recorded.
	attribute *originalAttributes
	changed   int
	stripped  int
}

func (r *rewriter) publicizeType(t *dotnet.TypeDefinition) error {
	// The synthesized attribute type, and types absent from the mask, are
	// never touched.
	entry, ok := r.mask.lookup(t)
	if r.attribute.is(t) || !ok {
		return nil
	}
	// Stripping applies whatever the visibility of the type.
	if r.opts.Strip && !t.IsEnum() && !t.IsInterface() {
		r.strip(t)
	}
	//
	if !r.opts.PublicizeCompilerGenerated && r.opts.isCompilerGenerated(t) {
		return nil
	}
	//
	if r.opts.HasTarget(TargetTypes) && !t.IsPublic() {
		visibility := metadata.TypePublic
		if t.IsNested() {
			visibility = metadata.TypeNestedPublic
		}
		//
		before := t.Attributes.Visibility()
		//
		if err := r.record(&t.CustomAttributes, int32(before)); err != nil {
			return err
		}
		//
		t.Attributes = t.Attributes.WithVisibility(visibility)
		r.changedDefinition(KindType, t.FullName(), uint32(before), uint32(visibility))
	}
	//
	if r.opts.HasTarget(TargetMethods) {
		if err := r.publicizeMethods(t, entry); err != nil {
			return err
		}
	}
	//
	if r.opts.HasTarget(TargetFields) {
		return r.publicizeFields(t, entry)
	}
	//
	return nil
}

// Replace the body of every method which has one.
func (r *rewriter) strip(t *dotnet.TypeDefinition) {
	for _, m := range t.Methods {
		if !m.HasBody() {
			continue
		}
		//
		m.Body = dotnet.NewThrowNullBody()
		m.ImplAttributes |= metadata.MethodImplNoInlining
		r.stripped++
		//
		r.opts.Report.add(Change{Kind: KindMethod, Action: ActionStrip, Name: m.FullName()})
	}
}

func (r *rewriter) publicizeMethods(t *dotnet.TypeDefinition, entry *maskType) error {
	for _, m := range t.Methods {
		if !entry.hasMethod(m) {
			continue
		}
		//
		if err := r.publicizeMethod(m, false); err != nil {
			return err
		}
	}
	// Accessors of auto-properties are compiler generated, but are publicized
	// regardless.
	if r.opts.PublicizeCompilerGenerated {
		return nil
	}
	//
	for _, p := range t.Properties {
		for _, accessor := range []*dotnet.MethodDefinition{p.GetMethod, p.SetMethod} {
			if accessor == nil {
				continue
			}
			//
			if err := r.publicizeMethod(accessor, true); err != nil {
				return err
			}
		}
	}
	//
	return nil
}

func (r *rewriter) publicizeMethod(m *dotnet.MethodDefinition, accessor bool) error {
	if m.IsCompilerControlled() || m.IsPublic() {
		return nil
	} else if !accessor && !r.opts.PublicizeCompilerGenerated && r.opts.isCompilerGenerated(m) {
		return nil
	}
	//
	before := m.Attributes.Access()
	//
	if err := r.record(&m.CustomAttributes, int32(before)); err != nil {
		return err
	}
	//
	m.Attributes = m.Attributes.WithAccess(metadata.MethodPublic)
	r.changedDefinition(KindMethod, m.FullName(), uint32(before), uint32(metadata.MethodPublic))
	//
	return nil
}

func (r *rewriter) publicizeFields(t *dotnet.TypeDefinition, entry *maskType) error {
	var events = make(map[string]struct{}, len(t.Events))
	//
	for _, e := range t.Events {
		events[e.Name] = struct{}{}
	}
	//
	for _, f := range t.Fields {
		if f.IsPrivateScope() || !entry.hasField(f) || f.IsPublic() {
			continue
		}
		// Backing fields of events
		if _, ok := events[f.Name]; ok {
			continue
		} else if !r.opts.PublicizeCompilerGenerated && r.opts.isCompilerGenerated(f) {
			continue
		}
		//
		before := f.Attributes.Access()
		//
		if err := r.record(&f.CustomAttributes, int32(before)); err != nil {
			return err
		}
		//
		f.Attributes = f.Attributes.WithAccess(metadata.FieldPublic)
		r.changedDefinition(KindField, f.FullName(), uint32(before), uint32(metadata.FieldPublic))
	}
	//
	return nil
}

// Attach an attribute recording the original visibility of a definition, if
// these are enabled.
func (r *rewriter) record(attributes *[]*dotnet.CustomAttribute, before int32) error {
	if r.attribute == nil {
		return nil
	}
	//
	attribute, err := r.attribute.ToCustomAttribute(before)
	if err != nil {
		return err
	}
	//
	*attributes = append(*attributes, attribute)
	//
	return nil
}

func (r *rewriter) changedDefinition(kind Kind, name string, before uint32, after uint32) {
	r.changed++
	//
	log.Debugf("%s %s: %d => %d", kind, name, before, after)
	//
	r.opts.Report.add(Change{Kind: kind, Action: ActionPublicize, Name: name, Before: before, After: after})
}
