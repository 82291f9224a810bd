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
package mmap

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// ErrPageFault indicates that the mapped file could not be read, for example
// because it was truncated whilst mapped.
var ErrPageFault = errors.New("page fault occurred while reading from memory map")

// File represents a read-only memory-mapped file.  The mapping is private, so
// writes to the mapped bytes are never seen by the underlying file.
type File struct {
	Path string
	data []byte
}

// Open maps the given file into memory.
func Open(path string) (*File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	//
	defer unix.Close(fd) //nolint:errcheck
	//
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, &os.PathError{Op: "stat", Path: path, Err: err}
	} else if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, fmt.Errorf("%s: not a regular file", path)
	} else if stat.Size == 0 {
		// Empty files cannot be mapped
		return &File{Path: path}, nil
	}
	//
	size, err := safecast.Conv[int](stat.Size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	//
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}
	//
	return &File{Path: path, data: data}, nil
}

// Len returns the size of the mapped file.
func (f *File) Len() int {
	return len(f.data)
}

// Read passes the contents of the file to a given function, which must not
// retain them beyond its return.  A page fault whilst reading the mapped bytes
// is reported as ErrPageFault rather than crashing.
func (f *File) Read(fn func(data []byte) error) (err error) {
	// Install a page fault handler, so that I/O errors against the memory map
	// (e.g., due to disk failure) don't cause us to crash.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		//
		if r := recover(); r != nil {
			if _, ok := r.(interface{ Addr() uintptr }); !ok {
				panic(r)
			}
			//
			err = fmt.Errorf("%s: %w", f.Path, ErrPageFault)
		}
	}()
	//
	return fn(f.data)
}

// Close unmaps the file.  Closing a file more than once has no effect.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	//
	data := f.data
	f.data = nil
	//
	return unix.Munmap(data)
}
