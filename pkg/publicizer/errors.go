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
	"errors"
	"fmt"
)

// ErrAmbiguousMask indicates that a mask assembly defines two types with the
// same full name, such that it cannot be used to filter by name.
var ErrAmbiguousMask = errors.New("ambiguous mask assembly")

// ErrNoCoreLibrary indicates that a module has no reference to a core library,
// hence the attribute recording original visibility cannot derive from
// System.Attribute.
var ErrNoCoreLibrary = errors.New("no core library reference")

// IOError reports a failure to read or write a file.
type IOError struct {
	// Operation being performed (e.g. "read")
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IOError) Unwrap() error {
	return e.Err
}

// NullStructureError reports that a parsed module lacks a structure which
// every assembly must have (e.g. its manifest).
type NullStructureError struct {
	Path string
	What string
}

func (e *NullStructureError) Error() string {
	return fmt.Sprintf("%s has no %s", e.Path, e.What)
}
