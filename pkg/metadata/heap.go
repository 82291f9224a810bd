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
	"fmt"

	"fortio.org/safecast"
)

// Standard stream names.
const (
	TablesStreamName             = "#~"
	UncompressedTablesStreamName = "#-"
	StringsStreamName            = "#Strings"
	UserStringsStreamName        = "#US"
	GuidStreamName               = "#GUID"
	BlobStreamName               = "#Blob"
)

// ============================================================================
// #Strings
// ============================================================================

// StringHeap provides read access to the #Strings heap.
type StringHeap struct {
	data []byte
}

// NewStringHeap constructs a string heap over the given bytes.
func NewStringHeap(data []byte) *StringHeap {
	return &StringHeap{data}
}

// Get returns the null-terminated UTF8 string starting at a given index.
func (h *StringHeap) Get(index uint32) (string, error) {
	if index == 0 {
		return "", nil
	} else if uint64(index) >= uint64(len(h.data)) {
		return "", fmt.Errorf("%w: string index 0x%x out of bounds", ErrMalformed, index)
	}
	//
	end := bytes.IndexByte(h.data[index:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at 0x%x", ErrMalformed, index)
	}
	//
	return string(h.data[index : index+uint32(end)]), nil
}

// Len returns the size (in bytes) of this heap.
func (h *StringHeap) Len() int {
	return len(h.data)
}

// StringHeapBuilder extends an existing #Strings heap.  Existing strings keep
// their indices; additions are appended and deduplicated.
type StringHeapBuilder struct {
	data  []byte
	index map[string]uint32
}

// NewStringHeapBuilder constructs a builder seeded with the contents of an
// existing heap (which may be empty).
func NewStringHeapBuilder(original []byte) *StringHeapBuilder {
	var (
		data  = bytes.Clone(original)
		index = make(map[string]uint32)
		start = 0
	)
	//
	if len(data) == 0 {
		data = []byte{0}
	}
	// Index every string beginning immediately after a terminator.
	for i, b := range data {
		if b == 0 {
			if _, ok := index[string(data[start:i])]; !ok && i > start {
				index[string(data[start:i])] = uint32(start)
			}
			//
			start = i + 1
		}
	}
	// Ensure additions start on a fresh string.
	if data[len(data)-1] != 0 {
		data = append(data, 0)
	}
	//
	return &StringHeapBuilder{data, index}
}

// Add returns the index of the given string, appending it when necessary.
func (b *StringHeapBuilder) Add(str string) (uint32, error) {
	if str == "" {
		return 0, nil
	} else if bytes.IndexByte([]byte(str), 0) >= 0 {
		return 0, fmt.Errorf("string %q contains a null character", str)
	} else if index, ok := b.index[str]; ok {
		return index, nil
	}
	//
	index, err := safecast.Conv[uint32](len(b.data))
	if err != nil {
		return 0, err
	}
	//
	b.data = append(b.data, str...)
	b.data = append(b.data, 0)
	b.index[str] = index
	//
	return index, nil
}

// Bytes returns the heap, padded to a four byte boundary.
func (b *StringHeapBuilder) Bytes() []byte {
	return padded(b.data)
}

// ============================================================================
// #Blob
// ============================================================================

// BlobHeap provides read access to the #Blob heap.
type BlobHeap struct {
	data []byte
}

// NewBlobHeap constructs a blob heap over the given bytes.
func NewBlobHeap(data []byte) *BlobHeap {
	return &BlobHeap{data}
}

// Get returns the blob starting at the given index.
func (h *BlobHeap) Get(index uint32) ([]byte, error) {
	if index == 0 {
		return nil, nil
	} else if uint64(index) >= uint64(len(h.data)) {
		return nil, fmt.Errorf("%w: blob index 0x%x out of bounds", ErrMalformed, index)
	}
	//
	length, n, err := DecodeCompressedUint(h.data[index:])
	if err != nil {
		return nil, err
	}
	//
	start := uint64(index) + uint64(n)
	if start+uint64(length) > uint64(len(h.data)) {
		return nil, fmt.Errorf("%w: blob at 0x%x exceeds heap", ErrMalformed, index)
	}
	//
	return h.data[start : start+uint64(length)], nil
}

// Len returns the size (in bytes) of this heap.
func (h *BlobHeap) Len() int {
	return len(h.data)
}

// BlobHeapBuilder extends an existing #Blob heap.  Existing blobs keep their
// indices; additions are appended and deduplicated.
type BlobHeapBuilder struct {
	data  []byte
	index map[string]uint32
}

// NewBlobHeapBuilder constructs a builder seeded with the contents of an
// existing heap (which may be empty).
func NewBlobHeapBuilder(original []byte) *BlobHeapBuilder {
	var (
		data  = bytes.Clone(original)
		index = make(map[string]uint32)
	)
	//
	if len(data) == 0 {
		data = []byte{0}
	}
	// Index existing blobs, stopping at the first thing which does not decode
	// (e.g. trailing padding).
	for offset := 1; offset < len(data); {
		length, n, err := DecodeCompressedUint(data[offset:])
		//
		if err != nil || offset+n+int(length) > len(data) {
			break
		}
		//
		key := string(data[offset+n : offset+n+int(length)])
		if _, ok := index[key]; !ok && length > 0 {
			index[key] = uint32(offset)
		}
		//
		offset += n + int(length)
	}
	//
	return &BlobHeapBuilder{data, index}
}

// Add returns the index of the given blob, appending it when necessary.
func (b *BlobHeapBuilder) Add(blob []byte) (uint32, error) {
	if len(blob) == 0 {
		return 0, nil
	} else if index, ok := b.index[string(blob)]; ok {
		return index, nil
	}
	//
	index, err := safecast.Conv[uint32](len(b.data))
	if err != nil {
		return 0, err
	}
	//
	length, err := safecast.Conv[uint32](len(blob))
	if err != nil {
		return 0, err
	}
	//
	if b.data, err = AppendCompressedUint(b.data, length); err != nil {
		return 0, err
	}
	//
	b.data = append(b.data, blob...)
	b.index[string(blob)] = index
	//
	return index, nil
}

// Bytes returns the heap, padded to a four byte boundary.
func (b *BlobHeapBuilder) Bytes() []byte {
	return padded(b.data)
}

// ============================================================================
// #GUID
// ============================================================================

// GuidHeap provides read access to the #GUID heap.
type GuidHeap struct {
	data []byte
}

// NewGuidHeap constructs a GUID heap over the given bytes.
func NewGuidHeap(data []byte) *GuidHeap {
	return &GuidHeap{data}
}

// Get returns the GUID at a given (one-based) index.
func (h *GuidHeap) Get(index uint32) ([16]byte, error) {
	var guid [16]byte
	//
	if index == 0 {
		return guid, nil
	} else if uint64(index)*16 > uint64(len(h.data)) {
		return guid, fmt.Errorf("%w: GUID index %d out of bounds", ErrMalformed, index)
	}
	//
	copy(guid[:], h.data[(index-1)*16:])
	//
	return guid, nil
}

// Len returns the size (in bytes) of this heap.
func (h *GuidHeap) Len() int {
	return len(h.data)
}

func padded(data []byte) []byte {
	if n := len(data) % 4; n != 0 {
		return append(bytes.Clone(data), make([]byte, 4-n)...)
	}
	//
	return data
}
