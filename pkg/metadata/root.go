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
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// RootSignature identifies the start of the metadata root ("BSJB").
const RootSignature uint32 = 0x424A5342

// DefaultVersion is the runtime version string written by mainstream
// compilers.
const DefaultVersion = "v4.0.30319"

// Root is a programmatic representation of the metadata root, which is
// essentially a directory of named streams.
type Root struct {
	MajorVersion uint16
	MinorVersion uint16
	Reserved     uint32
	Version      string
	Flags        uint16
	Streams      []*Stream
}

// Stream is a single named metadata stream.
type Stream struct {
	Name string
	Data []byte
}

// Bytes returns the contents of this stream, or nil if the stream is absent.
func (s *Stream) Bytes() []byte {
	if s == nil {
		return nil
	}
	//
	return s.Data
}

// NewRoot constructs an empty metadata root (version 1.1).
func NewRoot(version string) *Root {
	return &Root{MajorVersion: 1, MinorVersion: 1, Version: version}
}

// Stream returns the stream with a given name, or nil.
func (r *Root) Stream(name string) *Stream {
	for _, s := range r.Streams {
		if s.Name == name {
			return s
		}
	}
	//
	return nil
}

// SetStream replaces the contents of the named stream, appending it if no
// such stream exists.
func (r *Root) SetStream(name string, data []byte) {
	if s := r.Stream(name); s != nil {
		s.Data = data
	} else {
		r.Streams = append(r.Streams, &Stream{name, data})
	}
}

// ReadRoot decodes a metadata root.  Stream contents are views of the given
// bytes.
func ReadRoot(data []byte) (*Root, error) {
	var root Root
	//
	if len(data) < 16 || binary.LittleEndian.Uint32(data) != RootSignature {
		return nil, fmt.Errorf("%w: missing metadata signature", ErrMalformed)
	}
	//
	root.MajorVersion = binary.LittleEndian.Uint16(data[4:])
	root.MinorVersion = binary.LittleEndian.Uint16(data[6:])
	root.Reserved = binary.LittleEndian.Uint32(data[8:])
	length := uint64(binary.LittleEndian.Uint32(data[12:]))
	//
	if 16+length+4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: truncated version string", ErrMalformed)
	}
	//
	root.Version = string(bytes.TrimRight(data[16:16+length], "\x00"))
	pos := 16 + length
	root.Flags = binary.LittleEndian.Uint16(data[pos:])
	count := binary.LittleEndian.Uint16(data[pos+2:])
	pos += 4
	//
	for i := uint16(0); i < count; i++ {
		if pos+8 > uint64(len(data)) {
			return nil, fmt.Errorf("%w: truncated stream header", ErrMalformed)
		}
		//
		offset := uint64(binary.LittleEndian.Uint32(data[pos:]))
		size := uint64(binary.LittleEndian.Uint32(data[pos+4:]))
		pos += 8
		// Name is null terminated, padded to four bytes.
		end := bytes.IndexByte(data[pos:], 0)
		if end < 0 || end > 32 {
			return nil, fmt.Errorf("%w: bad stream name", ErrMalformed)
		}
		//
		name := string(data[pos : pos+uint64(end)])
		pos += (uint64(end) + 4) &^ 3
		//
		if offset+size > uint64(len(data)) {
			return nil, fmt.Errorf("%w: stream %q exceeds metadata", ErrMalformed, name)
		}
		//
		root.Streams = append(root.Streams, &Stream{name, data[offset : offset+size]})
	}
	//
	return &root, nil
}

// MarshalBinary encodes this metadata root, laying out streams in order
// immediately after the stream headers.
func (r *Root) MarshalBinary() ([]byte, error) {
	var (
		buffer  bytes.Buffer
		version = make([]byte, (len(r.Version)+4)&^3)
		offset  = 16 + len(version) + 4
	)
	//
	count, err := safecast.Conv[uint16](len(r.Streams))
	if err != nil {
		return nil, err
	}
	//
	copy(version, r.Version)
	// Determine size of headers
	for _, s := range r.Streams {
		offset += 8 + (len(s.Name)+4)&^3
	}
	//
	_ = binary.Write(&buffer, binary.LittleEndian, RootSignature)
	_ = binary.Write(&buffer, binary.LittleEndian, r.MajorVersion)
	_ = binary.Write(&buffer, binary.LittleEndian, r.MinorVersion)
	_ = binary.Write(&buffer, binary.LittleEndian, r.Reserved)
	_ = binary.Write(&buffer, binary.LittleEndian, uint32(len(version)))
	buffer.Write(version)
	_ = binary.Write(&buffer, binary.LittleEndian, r.Flags)
	_ = binary.Write(&buffer, binary.LittleEndian, count)
	// Stream headers
	for _, s := range r.Streams {
		var (
			name = make([]byte, (len(s.Name)+4)&^3)
			size = (len(s.Data) + 3) &^ 3
		)
		//
		copy(name, s.Name)
		//
		start, err := safecast.Conv[uint32](offset)
		if err != nil {
			return nil, err
		}
		//
		_ = binary.Write(&buffer, binary.LittleEndian, start)
		_ = binary.Write(&buffer, binary.LittleEndian, uint32(size))
		buffer.Write(name)
		offset += size
	}
	// Stream contents
	for _, s := range r.Streams {
		buffer.Write(padded(s.Data))
	}
	//
	return buffer.Bytes(), nil
}
