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
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// reportSchema is incremented whenever the encoding of a report changes.
const reportSchema uint16 = 1

// Kind identifies the category of a changed definition.
type Kind uint8

const (
	// KindType is a type definition.
	KindType Kind = iota
	// KindMethod is a method definition.
	KindMethod
	// KindField is a field definition.
	KindField
)

var kindNames = [...]string{"type", "method", "field"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	//
	return fmt.Sprintf("kind(%d)", k)
}

// Action identifies what was done to a definition.
type Action uint8

const (
	// ActionPublicize changed the visibility of a definition.
	ActionPublicize Action = iota
	// ActionStrip replaced the body of a method.
	ActionStrip
)

func (a Action) String() string {
	if a == ActionStrip {
		return "strip"
	}
	//
	return "publicize"
}

var (
	typeVisibilityNames = [...]string{"internal", "public", "nested public", "nested private", "nested protected",
		"nested internal", "nested private protected", "nested protected internal"}
	memberAccessNames = [...]string{"compiler controlled", "private", "private protected", "internal", "protected",
		"protected internal", "public"}
)

// VisibilityName returns the C# keywords for the visibility (or access) of a
// given kind of definition.
func VisibilityName(kind Kind, value uint32) string {
	switch {
	case kind == KindType && int(value) < len(typeVisibilityNames):
		return typeVisibilityNames[value]
	case kind != KindType && int(value) < len(memberAccessNames):
		return memberAccessNames[value]
	}
	//
	return fmt.Sprintf("visibility(%d)", value)
}

// Change records a single modification of a definition.  For visibility
// changes, Before and After hold the visibility (or access) sub-mask.
type Change struct {
	Kind   Kind   `msgpack:"kind"`
	Action Action `msgpack:"action"`
	Name   string `msgpack:"name"`
	Before uint32 `msgpack:"before"`
	After  uint32 `msgpack:"after"`
}

// Report lists every change made to a module, such that original visibility
// can be recovered without inspecting the rewritten assembly.
type Report struct {
	Schema  uint16   `msgpack:"schema"`
	Module  string   `msgpack:"module"`
	Changes []Change `msgpack:"changes"`
}

// Count returns the number of changes of a given kind and action.
func (r *Report) Count(kind Kind, action Action) int {
	var count int
	//
	for _, c := range r.Changes {
		if c.Kind == kind && c.Action == action {
			count++
		}
	}
	//
	return count
}

func (r *Report) add(change Change) {
	if r != nil {
		r.Changes = append(r.Changes, change)
	}
}

// WriteReport saves a report to the given file.  The file is replaced
// atomically, hence is never left partially written.
func WriteReport(path string, report *Report) error {
	report.Schema = reportSchema
	//
	data, err := msgpack.Marshal(report)
	if err != nil {
		return err
	}
	//
	return writeFileAtomic(path, data)
}

// ReadReport loads a report from the given file.
func ReadReport(path string) (*Report, error) {
	var report Report
	//
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{"read", path, err}
	}
	//
	defer f.Close()
	//
	if err := msgpack.NewDecoder(f).Decode(&report); err != nil {
		return nil, fmt.Errorf("%s: invalid report: %w", path, err)
	} else if report.Schema != reportSchema {
		return nil, fmt.Errorf("%s: unsupported report schema %d", path, report.Schema)
	}
	//
	return &report, nil
}

// Write data to a temporary file in the destination directory, then rename it
// into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".publicizer-*")
	if err != nil {
		return &IOError{"write", path, err}
	}
	//
	if _, err = f.Write(data); err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	//
	if err == nil {
		err = os.Chmod(f.Name(), 0o644)
	}
	//
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	//
	if err != nil {
		_ = os.Remove(f.Name())
		return &IOError{"write", path, err}
	}
	//
	return nil
}
