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

	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/mmap"
	log "github.com/sirupsen/logrus"
)

// PublicizeFile reads the assembly at input, publicizes it and writes the
// result to output.  The output is only replaced once the rewritten assembly
// has been serialized in full.  Nil options are equivalent to
// DefaultOptions().
func PublicizeFile(input string, output string, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	//
	module, err := ReadAssembly(input)
	if err != nil {
		return err
	}
	//
	var mask *dotnet.Module
	//
	if opts.MaskAssembly != "" {
		if mask, err = ReadAssembly(opts.MaskAssembly); err != nil {
			return err
		}
	}
	//
	if _, err = Publicize(module, mask, opts); err != nil {
		return err
	}
	//
	data, err := module.Bytes()
	if err != nil {
		return err
	}
	//
	if err = writeFileAtomic(output, data); err != nil {
		return err
	}
	//
	log.Infof("publicized %s => %s", input, output)
	//
	return nil
}

// ReadAssembly loads the module at the given path, checking that it defines
// an assembly.  References to other assemblies are never resolved.
func ReadAssembly(path string) (*dotnet.Module, error) {
	var module *dotnet.Module
	//
	f, err := mmap.Open(path)
	if err != nil {
		return nil, &IOError{"read", path, err}
	}
	// Nothing is retained from the mapped bytes once read.
	err = f.Read(func(data []byte) (err error) {
		module, err = dotnet.ReadModule(data)
		return err
	})
	//
	if cerr := f.Close(); err == nil && cerr != nil {
		return nil, &IOError{"read", path, cerr}
	}
	//
	switch {
	case errors.Is(err, mmap.ErrPageFault):
		return nil, &IOError{"read", path, err}
	case err != nil:
		return nil, err
	case !module.HasModuleRow():
		return nil, &NullStructureError{path, "module"}
	case module.Assembly == nil:
		return nil, &NullStructureError{path, "assembly manifest"}
	}
	//
	module.Resolver = dotnet.NoopResolver
	//
	return module, nil
}
