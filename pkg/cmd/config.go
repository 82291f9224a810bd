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
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileConfig is the content of a configuration file, for example:
//
//	targets = ["types", "methods", "fields"]
//	strip = true
//	jobs = 4
//
//	[[assembly]]
//	input = "lib/Game.dll"
//	output = "refs/Game.dll"
//	report = "refs/Game.msgpack"
//
// Relative paths are resolved against the directory of the file.  Any option
// also given on the command line is overridden by it.
type fileConfig struct {
	Targets            []string    `toml:"targets"`
	CompilerGenerated  bool        `toml:"compiler_generated"`
	OriginalAttributes bool        `toml:"original_attributes"`
	Strip              bool        `toml:"strip"`
	Mask               string      `toml:"mask"`
	Jobs               int         `toml:"jobs"`
	Assemblies         []jobConfig `toml:"assembly"`
	// Records which keys were given
	meta toml.MetaData
}

type jobConfig struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
	Report string `toml:"report"`
}

func loadConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	//
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	} else if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	//
	dir := filepath.Dir(path)
	cfg.Mask = resolvePath(dir, cfg.Mask)
	//
	for i := range cfg.Assemblies {
		job := &cfg.Assemblies[i]
		//
		if job.Input == "" {
			return nil, fmt.Errorf("%s: assembly %d has no input", path, i+1)
		}
		//
		job.Input = resolvePath(dir, job.Input)
		job.Output = resolvePath(dir, job.Output)
		job.Report = resolvePath(dir, job.Report)
	}
	//
	cfg.meta = meta
	//
	return &cfg, nil
}

// Check whether a key was given in the file.
func (c *fileConfig) isDefined(key string) bool {
	return c != nil && c.meta.IsDefined(key)
}

func resolvePath(dir string, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	//
	return filepath.Join(dir, path)
}
