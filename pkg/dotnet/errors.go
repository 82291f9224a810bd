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

import "fmt"

// FormatError indicates that the bytes being read do not describe a valid
// module.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid module: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// SerializationError indicates that a module cannot be encoded because its
// object graph is inconsistent, for example an instruction referring to a
// member of another module.
type SerializationError struct {
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot serialize module: %s: %v", e.Reason, e.Err)
	}
	//
	return fmt.Sprintf("cannot serialize module: %s", e.Reason)
}

// Unwrap returns the underlying cause (if any).
func (e *SerializationError) Unwrap() error {
	return e.Err
}

func serializationError(format string, args ...any) *SerializationError {
	return &SerializationError{Reason: fmt.Sprintf(format, args...)}
}
