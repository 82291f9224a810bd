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
	"os"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_File_00(t *testing.T) {
	path := writeFile(t, []byte("Hello"))
	//
	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())
	//
	err = f.Read(func(data []byte) error {
		assert.Equal(t, []byte("Hello"), data)
		// Private mapping
		data[0] = 'J'
		//
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.Equal(t, 0, f.Len())
	//
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), contents)
}

func Test_File_01(t *testing.T) {
	f, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	//
	assert.Equal(t, 0, f.Len())
	assert.NoError(t, f.Read(func(data []byte) error {
		assert.Empty(t, data)
		return nil
	}))
	assert.NoError(t, f.Close())
}

func Test_File_02(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	//
	_, err = Open(t.TempDir())
	assert.ErrorContains(t, err, "not a regular file")
}

func Test_File_03(t *testing.T) {
	path := writeFile(t, make([]byte, 65536))
	//
	f, err := Open(path)
	require.NoError(t, err)
	//
	defer f.Close()
	// Truncating the file causes reads of the mapping to fault.  The
	// original value of the page fault option is restored afterwards.
	require.NoError(t, os.Truncate(path, 0))
	debug.SetPanicOnFault(false)
	//
	err = f.Read(func(data []byte) error {
		assert.Zero(t, data[len(data)-1])
		return nil
	})
	//
	assert.ErrorIs(t, err, ErrPageFault)
	assert.False(t, debug.SetPanicOnFault(false))
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	//
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	//
	return path
}
