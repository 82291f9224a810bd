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
package peimage

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned (wrapped) whenever the bytes being read do not
// describe a structurally valid PE image.
var ErrMalformed = errors.New("malformed PE image")

// ErrUnsupported is returned (wrapped) for valid PE images using features this
// package does not handle.
var ErrUnsupported = errors.New("unsupported PE image")

const (
	dosSignature      uint16 = 0x5A4D
	peSignature       uint32 = 0x00004550
	lfanewOffset             = 0x3C
	sectionHeaderSize        = 40
	fileHeaderSize           = 20
	// Both optional header variants place the checksum at the same offset.
	checksumOffset = 64
)

// Optional header sizes (including all sixteen data directories) and their
// magic numbers.
const (
	OptionalHeader32Size uint16 = 224
	OptionalHeader64Size uint16 = 240
	OptionalHeader32Magic uint16 = 0x10B
	OptionalHeader64Magic uint16 = 0x20B
)

// Data directory slots used by this package and its clients.
const (
	DirectoryExport      = 0
	DirectoryImport      = 1
	DirectoryResource    = 2
	DirectoryException   = 3
	DirectoryCertificate = 4
	DirectoryBaseReloc   = 5
	DirectoryDebug       = 6
	DirectoryCLR         = 14
)

// Section characteristics.
const (
	SectionCode              uint32 = 0x00000020
	SectionInitializedData   uint32 = 0x00000040
	SectionUninitializedData uint32 = 0x00000080
	SectionMemDiscardable    uint32 = 0x02000000
	SectionMemExecute        uint32 = 0x20000000
	SectionMemRead           uint32 = 0x40000000
	SectionMemWrite          uint32 = 0x80000000
)

// Image is a programmatic representation of a PE/COFF image.  Headers are held
// in their decoded form whilst section contents are held as raw bytes, such
// that an image which is read and then written without modification is
// reproduced faithfully.
type Image struct {
	// Everything preceding the PE signature (i.e. DOS header and stub).
	dos []byte
	// COFF file header
	FileHeader pe.FileHeader
	// Exactly one of these is non-nil.
	opt32 *pe.OptionalHeader32
	opt64 *pe.OptionalHeader64
	// Sections in header order.
	Sections []*Section
	// Bytes following the last section's raw data.
	overlay []byte
	// Original size of headers, as reported by the optional header.
	originalSizeOfHeaders uint32
}

// Section is a single section of an image.
type Section struct {
	Header pe.SectionHeader32
	// Raw data of the section as stored in the file.
	Data []byte
}

// Name returns the (trimmed) name of this section.
func (s *Section) Name() string {
	return strings.TrimRight(string(s.Header.Name[:]), "\x00")
}

// Contains determines whether a given RVA lies within the raw data of this
// section.
func (s *Section) Contains(rva uint32) bool {
	return rva >= s.Header.VirtualAddress && uint64(rva) < uint64(s.Header.VirtualAddress)+uint64(len(s.Data))
}

// Read parses a PE image from the given bytes.
func Read(data []byte) (*Image, error) {
	var img Image
	//
	if len(data) < lfanewOffset+4 || binary.LittleEndian.Uint16(data) != dosSignature {
		return nil, fmt.Errorf("%w: missing DOS signature", ErrMalformed)
	}
	//
	lfanew := binary.LittleEndian.Uint32(data[lfanewOffset:])
	if uint64(lfanew)+4+fileHeaderSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: PE header offset 0x%x out of bounds", ErrMalformed, lfanew)
	} else if binary.LittleEndian.Uint32(data[lfanew:]) != peSignature {
		return nil, fmt.Errorf("%w: missing PE signature", ErrMalformed)
	}
	//
	img.dos = bytes.Clone(data[:lfanew])
	reader := bytes.NewReader(data[lfanew+4:])
	// Read COFF header
	if err := binary.Read(reader, binary.LittleEndian, &img.FileHeader); err != nil {
		return nil, fmt.Errorf("%w: truncated file header", ErrMalformed)
	}
	// Read optional header
	switch img.FileHeader.SizeOfOptionalHeader {
	case OptionalHeader32Size:
		img.opt32 = new(pe.OptionalHeader32)
		if err := binary.Read(reader, binary.LittleEndian, img.opt32); err != nil {
			return nil, fmt.Errorf("%w: truncated optional header", ErrMalformed)
		} else if img.opt32.Magic != OptionalHeader32Magic {
			return nil, fmt.Errorf("%w: bad optional header magic 0x%x", ErrMalformed, img.opt32.Magic)
		}
	case OptionalHeader64Size:
		img.opt64 = new(pe.OptionalHeader64)
		if err := binary.Read(reader, binary.LittleEndian, img.opt64); err != nil {
			return nil, fmt.Errorf("%w: truncated optional header", ErrMalformed)
		} else if img.opt64.Magic != OptionalHeader64Magic {
			return nil, fmt.Errorf("%w: bad optional header magic 0x%x", ErrMalformed, img.opt64.Magic)
		}
	default:
		return nil, fmt.Errorf("%w: optional header of %d bytes", ErrUnsupported, img.FileHeader.SizeOfOptionalHeader)
	}
	//
	img.originalSizeOfHeaders = *img.header().sizeOfHeaders
	// Read section table
	var end uint64
	//
	for i := uint16(0); i < img.FileHeader.NumberOfSections; i++ {
		var section Section
		//
		if err := binary.Read(reader, binary.LittleEndian, &section.Header); err != nil {
			return nil, fmt.Errorf("%w: truncated section table", ErrMalformed)
		}
		//
		if section.Header.SizeOfRawData != 0 {
			start := uint64(section.Header.PointerToRawData)
			limit := start + uint64(section.Header.SizeOfRawData)
			//
			if limit > uint64(len(data)) {
				return nil, fmt.Errorf("%w: section %q exceeds file", ErrMalformed, section.Name())
			}
			//
			section.Data = bytes.Clone(data[start:limit])
			end = max(end, limit)
		}
		//
		img.Sections = append(img.Sections, &section)
	}
	//
	if end < uint64(len(data)) && end != 0 {
		img.overlay = bytes.Clone(data[end:])
	}
	//
	return &img, nil
}

// Is64 determines whether this is a PE32+ image.
func (img *Image) Is64() bool {
	return img.opt64 != nil
}

// DataDirectory returns the data directory at the given slot.
func (img *Image) DataDirectory(index int) pe.DataDirectory {
	return img.header().dirs[index]
}

// SetDataDirectory updates the data directory at the given slot.
func (img *Image) SetDataDirectory(index int, dir pe.DataDirectory) {
	img.header().dirs[index] = dir
}

// Section returns the section whose raw data contains the given RVA, or nil.
func (img *Image) Section(rva uint32) *Section {
	for _, s := range img.Sections {
		if s.Contains(rva) {
			return s
		}
	}
	//
	return nil
}

// Slice returns a view of size bytes starting at the given RVA.  Modifying
// the returned slice modifies the image.
func (img *Image) Slice(rva uint32, size uint32) ([]byte, error) {
	section := img.Section(rva)
	//
	if section == nil {
		return nil, fmt.Errorf("%w: RVA 0x%x is not backed by any section", ErrMalformed, rva)
	}
	//
	offset := uint64(rva - section.Header.VirtualAddress)
	if offset+uint64(size) > uint64(len(section.Data)) {
		return nil, fmt.Errorf("%w: %d bytes at RVA 0x%x exceed section %q", ErrMalformed, size, rva, section.Name())
	}
	//
	return section.Data[offset : offset+uint64(size)], nil
}

// Tail returns a view of all raw bytes from the given RVA to the end of its
// enclosing section.
func (img *Image) Tail(rva uint32) ([]byte, error) {
	section := img.Section(rva)
	//
	if section == nil {
		return nil, fmt.Errorf("%w: RVA 0x%x is not backed by any section", ErrMalformed, rva)
	}
	//
	return section.Data[rva-section.Header.VirtualAddress:], nil
}

// WriteAt copies the given bytes into the image at the given RVA.
func (img *Image) WriteAt(rva uint32, data []byte) error {
	view, err := img.Slice(rva, uint32(len(data)))
	//
	if err == nil {
		copy(view, data)
	}
	//
	return err
}

// Clone returns a deep copy of this image.
func (img *Image) Clone() *Image {
	clone := *img
	clone.dos = bytes.Clone(img.dos)
	clone.overlay = bytes.Clone(img.overlay)
	//
	if img.opt32 != nil {
		opt := *img.opt32
		clone.opt32 = &opt
	}
	//
	if img.opt64 != nil {
		opt := *img.opt64
		clone.opt64 = &opt
	}
	//
	clone.Sections = make([]*Section, len(img.Sections))
	//
	for i, s := range img.Sections {
		clone.Sections[i] = &Section{s.Header, bytes.Clone(s.Data)}
	}
	//
	return &clone
}

// headerFields provides uniform access to those optional header fields which
// are common to PE32 and PE32+ images.
type headerFields struct {
	sectionAlignment      *uint32
	fileAlignment         *uint32
	sizeOfImage           *uint32
	sizeOfHeaders         *uint32
	sizeOfInitializedData *uint32
	checkSum              *uint32
	dirs                  *[16]pe.DataDirectory
}

func (img *Image) header() headerFields {
	if img.opt64 != nil {
		h := img.opt64
		//
		return headerFields{&h.SectionAlignment, &h.FileAlignment, &h.SizeOfImage, &h.SizeOfHeaders,
			&h.SizeOfInitializedData, &h.CheckSum, &h.DataDirectory}
	}
	//
	h := img.opt32
	//
	return headerFields{&h.SectionAlignment, &h.FileAlignment, &h.SizeOfImage, &h.SizeOfHeaders,
		&h.SizeOfInitializedData, &h.CheckSum, &h.DataDirectory}
}

func alignUp(value uint64, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	//
	return (value + alignment - 1) / alignment * alignment
}
