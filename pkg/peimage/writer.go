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
	"fmt"

	"fortio.org/safecast"
)

// debugDirectoryEntrySize is the size of an IMAGE_DEBUG_DIRECTORY record.
const debugDirectoryEntrySize = 28

// New constructs an empty PE32 image with conventional alignments and no
// sections.
func New(machine uint16, characteristics uint16) *Image {
	var dos = make([]byte, 0x80)
	// DOS header just needs the signature and the offset to the PE header.
	binary.LittleEndian.PutUint16(dos, dosSignature)
	binary.LittleEndian.PutUint32(dos[lfanewOffset:], uint32(len(dos)))
	//
	return &Image{
		dos: dos,
		FileHeader: pe.FileHeader{
			Machine:              machine,
			SizeOfOptionalHeader: OptionalHeader32Size,
			Characteristics:      characteristics,
		},
		opt32: &pe.OptionalHeader32{
			Magic:                       OptionalHeader32Magic,
			MajorLinkerVersion:          8,
			ImageBase:                   0x10000000,
			SectionAlignment:            0x2000,
			FileAlignment:               0x200,
			MajorOperatingSystemVersion: 4,
			MajorSubsystemVersion:       4,
			SizeOfHeaders:               0x200,
			Subsystem:                   3,
			DllCharacteristics:          0x8540,
			SizeOfStackReserve:          0x100000,
			SizeOfStackCommit:           0x1000,
			SizeOfHeapReserve:           0x100000,
			SizeOfHeapCommit:            0x1000,
			NumberOfRvaAndSizes:         16,
		},
		originalSizeOfHeaders: 0x200,
	}
}

// NextVirtualAddress returns the RVA at which the next section added to this
// image will be mapped.
func (img *Image) NextVirtualAddress() uint32 {
	var (
		h   = img.header()
		end = alignUp(uint64(*h.sizeOfHeaders), uint64(*h.sectionAlignment))
	)
	//
	for _, s := range img.Sections {
		size := max(s.Header.VirtualSize, s.Header.SizeOfRawData)
		end = max(end, uint64(s.Header.VirtualAddress)+uint64(size))
	}
	//
	return uint32(alignUp(end, uint64(*h.sectionAlignment)))
}

// AddSection appends a new section holding the given data, returning it.  The
// section is mapped at NextVirtualAddress().  File offsets are assigned when
// the image is written.
func (img *Image) AddSection(name string, data []byte, characteristics uint32) (*Section, error) {
	var section Section
	//
	if len(name) > len(section.Header.Name) {
		return nil, fmt.Errorf("section name %q too long", name)
	}
	//
	size, err := safecast.Conv[uint32](len(data))
	if err != nil {
		return nil, err
	}
	//
	copy(section.Header.Name[:], name)
	section.Header.VirtualAddress = img.NextVirtualAddress()
	section.Header.VirtualSize = size
	section.Header.Characteristics = characteristics
	section.Data = bytes.Clone(data)
	img.Sections = append(img.Sections, &section)
	//
	if characteristics&SectionInitializedData != 0 {
		h := img.header()
		*h.sizeOfInitializedData += uint32(alignUp(uint64(size), uint64(*h.fileAlignment)))
	}
	//
	return &section, nil
}

// Bytes lays out this image and encodes it.  Section file offsets are
// reassigned sequentially after the headers, which are grown (in units of the
// file alignment) when the section table no longer fits.  Any certificate table
// is dropped, since it cannot remain valid.
func (img *Image) Bytes() ([]byte, error) {
	var (
		h         = img.header()
		fileAlign = uint64(*h.fileAlignment)
		buffer    bytes.Buffer
	)
	//
	count, err := safecast.Conv[uint16](len(img.Sections))
	if err != nil {
		return nil, fmt.Errorf("too many sections: %w", err)
	}
	//
	optOffset := uint64(len(img.dos)) + 4 + fileHeaderSize
	tableEnd := optOffset + uint64(img.FileHeader.SizeOfOptionalHeader) + uint64(len(img.Sections))*sectionHeaderSize
	sizeOfHeaders := max(alignUp(tableEnd, fileAlign), uint64(img.originalSizeOfHeaders))
	// Headers must not overlap the first mapped section
	for _, s := range img.Sections {
		if uint64(s.Header.VirtualAddress) < sizeOfHeaders {
			return nil, fmt.Errorf("%w: no room for section table before section %q", ErrUnsupported, s.Name())
		}
	}
	// Assign file offsets
	offset := sizeOfHeaders
	//
	for _, s := range img.Sections {
		rawSize := alignUp(uint64(len(s.Data)), fileAlign)
		//
		if rawSize == 0 {
			s.Header.PointerToRawData = 0
			s.Header.SizeOfRawData = 0
			//
			continue
		}
		//
		if s.Header.PointerToRawData, err = safecast.Conv[uint32](offset); err != nil {
			return nil, err
		} else if s.Header.SizeOfRawData, err = safecast.Conv[uint32](rawSize); err != nil {
			return nil, err
		}
		//
		offset += rawSize
	}
	// Update optional header
	img.FileHeader.NumberOfSections = count
	*h.sizeOfHeaders = uint32(sizeOfHeaders)
	img.originalSizeOfHeaders = uint32(sizeOfHeaders)
	*h.sizeOfImage = img.NextVirtualAddress()
	// Drop certificate table (which is located by file offset)
	overlay := img.overlay
	//
	if cert := h.dirs[DirectoryCertificate]; cert.VirtualAddress != 0 {
		h.dirs[DirectoryCertificate] = pe.DataDirectory{}
		overlay = nil
	}
	//
	if err := img.relocateDebugDirectory(); err != nil {
		return nil, err
	}
	// Write headers
	buffer.Write(img.dos)
	_ = binary.Write(&buffer, binary.LittleEndian, peSignature)
	_ = binary.Write(&buffer, binary.LittleEndian, &img.FileHeader)
	//
	if img.opt64 != nil {
		_ = binary.Write(&buffer, binary.LittleEndian, img.opt64)
	} else {
		_ = binary.Write(&buffer, binary.LittleEndian, img.opt32)
	}
	//
	for _, s := range img.Sections {
		_ = binary.Write(&buffer, binary.LittleEndian, &s.Header)
	}
	//
	pad(&buffer, sizeOfHeaders)
	// Write sections
	for _, s := range img.Sections {
		if s.Header.SizeOfRawData != 0 {
			buffer.Write(s.Data)
			pad(&buffer, uint64(s.Header.PointerToRawData)+uint64(s.Header.SizeOfRawData))
		}
	}
	//
	buffer.Write(overlay)
	//
	data := buffer.Bytes()
	// Recompute checksum, but only if the original image had one.
	if *h.checkSum != 0 {
		*h.checkSum = Checksum(data, int(optOffset)+checksumOffset)
		binary.LittleEndian.PutUint32(data[optOffset+checksumOffset:], *h.checkSum)
	}
	//
	return data, nil
}

// Debug directory entries carry a file offset alongside their RVA, which must
// follow the section layout.
func (img *Image) relocateDebugDirectory() error {
	dir := img.DataDirectory(DirectoryDebug)
	//
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil
	}
	//
	entries, err := img.Slice(dir.VirtualAddress, dir.Size)
	if err != nil {
		// Leave malformed debug directories as they are.
		return nil
	}
	//
	for i := 0; i+debugDirectoryEntrySize <= len(entries); i += debugDirectoryEntrySize {
		entry := entries[i : i+debugDirectoryEntrySize]
		// AddressOfRawData at offset 20, PointerToRawData at offset 24
		rva := binary.LittleEndian.Uint32(entry[20:])
		//
		if s := img.Section(rva); s != nil && rva != 0 {
			binary.LittleEndian.PutUint32(entry[24:], rva-s.Header.VirtualAddress+s.Header.PointerToRawData)
		}
	}
	//
	return nil
}

// Checksum computes the PE image checksum of the given file contents, treating
// the four bytes at the given offset (i.e. the checksum field itself) as zero.
func Checksum(data []byte, offset int) uint32 {
	var sum uint64
	//
	for i := 0; i+1 < len(data); i += 2 {
		if i == offset || i == offset+2 {
			continue
		}
		//
		sum += uint64(binary.LittleEndian.Uint16(data[i:]))
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	//
	if len(data)%2 == 1 {
		sum += uint64(data[len(data)-1])
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	//
	sum = (sum & 0xFFFF) + (sum >> 16)
	//
	return uint32(sum) + uint32(len(data))
}

// Pad buffer with zeros up to a given length.
func pad(buffer *bytes.Buffer, length uint64) {
	if n := int(length) - buffer.Len(); n > 0 {
		buffer.Write(make([]byte, n))
	}
}
