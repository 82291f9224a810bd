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
	"slices"

	"fortio.org/safecast"
)

// Bits of the HeapSizes field of the tables stream header.
const (
	heapStringsWide uint8 = 0x01
	heapGuidWide    uint8 = 0x02
	heapBlobWide    uint8 = 0x04
	heapExtraData   uint8 = 0x40
)

// DefaultSortedMask is the sorted-tables mask emitted by mainstream compilers.
const DefaultSortedMask uint64 = 0x000016003301FA00

const tablesHeaderSize = 24

// Row is a single row of a metadata table.  Each column is held as a raw
// value (constant, heap index, table index or coded index).
type Row []uint32

// Tables is a programmatic representation of the "#~" stream.
type Tables struct {
	MajorVersion uint8
	MinorVersion uint8
	// Flags other than those determining heap index widths are retained as
	// they were read.
	HeapSizes uint8
	Sorted    uint64
	Rows      [NumTables][]Row
}

// HeapSizes records the size of each heap, which determines the width of
// heap indices within the tables stream.
type HeapSizes struct {
	Strings int
	Guid    int
	Blob    int
}

// NewTables constructs an empty set of tables (version 2.0).
func NewTables() *Tables {
	return &Tables{MajorVersion: 2, Sorted: DefaultSortedMask}
}

// Count returns the number of rows in the given table.
func (t *Tables) Count(table TableIndex) uint32 {
	return uint32(len(t.Rows[table]))
}

// Get returns the row with the given (one-based) identifier, or an error if
// no such row exists.
func (t *Tables) Get(table TableIndex, rid uint32) (Row, error) {
	if rid == 0 || rid > t.Count(table) {
		return nil, fmt.Errorf("%w: no row %d in %s table", ErrMalformed, rid, table)
	}
	//
	return t.Rows[table][rid-1], nil
}

// Append adds a row to the given table, returning its row identifier.
func (t *Tables) Append(table TableIndex, row Row) uint32 {
	t.Rows[table] = append(t.Rows[table], row)
	//
	return t.Count(table)
}

// Clone returns a deep copy of these tables.
func (t *Tables) Clone() *Tables {
	clone := *t
	//
	for i, rows := range t.Rows {
		clone.Rows[i] = make([]Row, len(rows))
		//
		for j, row := range rows {
			clone.Rows[i][j] = slices.Clone(row)
		}
	}
	//
	return &clone
}

// ReadTables decodes a "#~" stream.
func ReadTables(data []byte) (*Tables, error) {
	var (
		tables Tables
		layout tableLayout
		pos    = tablesHeaderSize
	)
	//
	if len(data) < tablesHeaderSize {
		return nil, fmt.Errorf("%w: truncated tables header", ErrMalformed)
	}
	//
	tables.MajorVersion = data[4]
	tables.MinorVersion = data[5]
	tables.HeapSizes = data[6]
	tables.Sorted = binary.LittleEndian.Uint64(data[16:])
	layout.heapSizes = tables.HeapSizes
	valid := binary.LittleEndian.Uint64(data[8:])
	// Read row counts
	for i := range 64 {
		if valid&(1<<i) == 0 {
			continue
		} else if i >= int(NumTables) {
			return nil, fmt.Errorf("%w: table 0x%02x", ErrUnsupported, i)
		} else if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated row counts", ErrMalformed)
		}
		//
		layout.counts[i] = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}
	//
	if tables.HeapSizes&heapExtraData != 0 {
		pos += 4
	}
	// Read rows
	for i := range NumTables {
		var (
			schema  = &schemas[i]
			widths  = layout.widths(schema)
			rowSize = 0
			count   = layout.counts[i]
		)
		//
		for _, w := range widths {
			rowSize += w
		}
		//
		if uint64(pos)+uint64(count)*uint64(rowSize) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s table exceeds stream", ErrMalformed, i)
		}
		//
		rows := make([]Row, count)
		//
		for r := range rows {
			row := make(Row, len(widths))
			//
			for c, w := range widths {
				if w == 2 {
					row[c] = uint32(binary.LittleEndian.Uint16(data[pos:]))
				} else {
					row[c] = binary.LittleEndian.Uint32(data[pos:])
				}
				//
				pos += w
			}
			//
			rows[r] = row
		}
		//
		tables.Rows[i] = rows
	}
	//
	return &tables, nil
}

// MarshalBinary encodes these tables as a "#~" stream.  Index widths are
// determined from the current row counts and the given heap sizes.
func (t *Tables) MarshalBinary(heaps HeapSizes) ([]byte, error) {
	var (
		buffer bytes.Buffer
		layout tableLayout
		valid  uint64
		err    error
	)
	//
	layout.heapSizes = t.HeapSizes &^ (heapStringsWide | heapGuidWide | heapBlobWide | heapExtraData)
	//
	if heaps.Strings > 0xFFFF {
		layout.heapSizes |= heapStringsWide
	}
	//
	if heaps.Guid > 0xFFFF {
		layout.heapSizes |= heapGuidWide
	}
	//
	if heaps.Blob > 0xFFFF {
		layout.heapSizes |= heapBlobWide
	}
	//
	for i := range NumTables {
		if layout.counts[i], err = safecast.Conv[uint32](len(t.Rows[i])); err != nil {
			return nil, err
		} else if layout.counts[i] > 0 {
			valid |= 1 << i
		}
	}
	// Header
	_ = binary.Write(&buffer, binary.LittleEndian, uint32(0))
	buffer.WriteByte(t.MajorVersion)
	buffer.WriteByte(t.MinorVersion)
	buffer.WriteByte(layout.heapSizes)
	buffer.WriteByte(1)
	_ = binary.Write(&buffer, binary.LittleEndian, valid)
	_ = binary.Write(&buffer, binary.LittleEndian, t.Sorted)
	//
	for i := range NumTables {
		if layout.counts[i] > 0 {
			_ = binary.Write(&buffer, binary.LittleEndian, layout.counts[i])
		}
	}
	// Rows
	for i := range NumTables {
		widths := layout.widths(&schemas[i])
		//
		for r, row := range t.Rows[i] {
			if len(row) != len(widths) {
				return nil, fmt.Errorf("row %d of %s table has %d columns (expected %d)", r+1, i, len(row), len(widths))
			}
			//
			for c, w := range widths {
				if w == 4 {
					_ = binary.Write(&buffer, binary.LittleEndian, row[c])
				} else if value, err := safecast.Conv[uint16](row[c]); err != nil {
					return nil, fmt.Errorf("column %s of %s table: %w", schemas[i].Columns[c].Name, i, err)
				} else {
					_ = binary.Write(&buffer, binary.LittleEndian, value)
				}
			}
		}
	}
	//
	return padded(buffer.Bytes()), nil
}

// tableLayout determines the width of each column, given the heap size flags
// and the row count of every table.
type tableLayout struct {
	heapSizes uint8
	counts    [NumTables]uint32
}

func (l *tableLayout) widths(schema *Schema) []int {
	widths := make([]int, len(schema.Columns))
	//
	for i, c := range schema.Columns {
		widths[i] = l.width(c)
	}
	//
	return widths
}

func (l *tableLayout) width(c Column) int {
	switch c.Kind {
	case ColUint16:
		return 2
	case ColUint32:
		return 4
	case ColString:
		return l.heapWidth(heapStringsWide)
	case ColGuid:
		return l.heapWidth(heapGuidWide)
	case ColBlob:
		return l.heapWidth(heapBlobWide)
	case ColTable:
		if l.counts[c.Table] > 0xFFFF {
			return 4
		}
		//
		return 2
	case ColCoded:
		var (
			info = &codedIndices[c.Coded]
			most uint32
		)
		//
		for _, table := range info.tables {
			if table != unusedTable {
				most = max(most, l.counts[table])
			}
		}
		//
		if most >= 1<<(16-info.bits) {
			return 4
		}
		//
		return 2
	}
	//
	panic("unknown column kind")
}

func (l *tableLayout) heapWidth(flag uint8) int {
	if l.heapSizes&flag != 0 {
		return 4
	}
	//
	return 2
}
