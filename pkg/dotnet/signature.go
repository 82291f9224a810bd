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

import (
	"fmt"
	"strings"

	"github.com/consensys/go-publicizer/pkg/metadata"
)

// signatureFormatter renders the types within a signature blob by name.
// Tokens are resolved against a module, when one is available.
type signatureFormatter struct {
	module *Module
	reader *metadata.SignatureReader
}

func newSignatureFormatter(module *Module, signature []byte) *signatureFormatter {
	return &signatureFormatter{module, metadata.NewSignatureReader(signature)}
}

// Format "Ret Owner::Name(P1,P2)", where generic methods are additionally
// suffixed with their arity (e.g. "Name`1").
func methodFullName(module *Module, owner Entity, name string, signature []byte) string {
	var (
		builder strings.Builder
		f       = newSignatureFormatter(module, signature)
	)
	//
	ret, params, arity, err := f.methodSignature()
	if err != nil {
		return qualifyMember(owner, name) + "(?)"
	}
	//
	builder.WriteString(ret)
	builder.WriteString(" ")
	builder.WriteString(qualifyMember(owner, name))
	//
	if arity > 0 {
		fmt.Fprintf(&builder, "`%d", arity)
	}
	//
	builder.WriteString("(")
	builder.WriteString(strings.Join(params, ","))
	builder.WriteString(")")
	//
	return builder.String()
}

// Format "Type Owner::Name".
func fieldFullName(module *Module, owner Entity, name string, signature []byte) string {
	var f = newSignatureFormatter(module, signature)
	//
	if kind, err := f.reader.Byte(); err != nil || kind&metadata.SigKindMask != metadata.SigField {
		return "? " + qualifyMember(owner, name)
	}
	//
	typeName, err := f.typeName()
	if err != nil {
		typeName = "?"
	}
	//
	return typeName + " " + qualifyMember(owner, name)
}

func qualifyMember(owner Entity, name string) string {
	if owner == nil {
		return name
	}
	//
	return owner.FullName() + "::" + name
}

// Read a method signature, returning the return type, the parameter types and
// the number of generic parameters.
func (f *signatureFormatter) methodSignature() (string, []string, uint32, error) {
	var arity uint32
	//
	conv, err := f.reader.Byte()
	if err != nil {
		return "", nil, 0, err
	} else if conv&metadata.SigGeneric != 0 {
		if arity, err = f.reader.Uint(); err != nil {
			return "", nil, 0, err
		}
	}
	//
	count, err := f.reader.Uint()
	if err != nil {
		return "", nil, 0, err
	}
	//
	ret, err := f.typeName()
	if err != nil {
		return "", nil, 0, err
	}
	//
	params := make([]string, 0, count)
	//
	for range count {
		// Sentinel separates fixed from variable arguments
		if next, err := f.reader.Peek(); err == nil && metadata.ElementType(next) == metadata.ElementSentinel {
			_, _ = f.reader.Byte()
			params = append(params, "...")
		}
		//
		param, err := f.typeName()
		if err != nil {
			return "", nil, 0, err
		}
		//
		params = append(params, param)
	}
	//
	return ret, params, arity, nil
}

// Read a single type from the signature, returning its name.
func (f *signatureFormatter) typeName() (string, error) {
	b, err := f.reader.Byte()
	if err != nil {
		return "", err
	}
	//
	element := metadata.ElementType(b)
	if name, ok := element.PrimitiveName(); ok {
		return name, nil
	}
	//
	switch element {
	case metadata.ElementPtr:
		return f.suffixed("*")
	case metadata.ElementByRef:
		return f.suffixed("&")
	case metadata.ElementSzArray:
		return f.suffixed("[]")
	case metadata.ElementPinned:
		return f.suffixed(" pinned")
	case metadata.ElementClass, metadata.ElementValueType:
		token, err := f.reader.TypeDefOrRef()
		if err != nil {
			return "", err
		}
		//
		return f.tokenName(token), nil
	case metadata.ElementVar, metadata.ElementMVar:
		index, err := f.reader.Uint()
		if err != nil {
			return "", err
		} else if element == metadata.ElementVar {
			return fmt.Sprintf("!%d", index), nil
		}
		//
		return fmt.Sprintf("!!%d", index), nil
	case metadata.ElementCModReqd, metadata.ElementCModOpt:
		return f.modified(element)
	case metadata.ElementArray:
		return f.array()
	case metadata.ElementGenericInst:
		return f.genericInstance()
	case metadata.ElementFnPtr:
		ret, params, _, err := f.methodSignature()
		if err != nil {
			return "", err
		}
		//
		return fmt.Sprintf("method %s *(%s)", ret, strings.Join(params, ",")), nil
	}
	//
	return "", fmt.Errorf("%w: element type 0x%02x in signature", metadata.ErrUnsupported, b)
}

func (f *signatureFormatter) suffixed(suffix string) (string, error) {
	inner, err := f.typeName()
	if err != nil {
		return "", err
	}
	//
	return inner + suffix, nil
}

func (f *signatureFormatter) modified(element metadata.ElementType) (string, error) {
	token, err := f.reader.TypeDefOrRef()
	if err != nil {
		return "", err
	}
	//
	inner, err := f.typeName()
	if err != nil {
		return "", err
	} else if element == metadata.ElementCModReqd {
		return fmt.Sprintf("%s modreq(%s)", inner, f.tokenName(token)), nil
	}
	//
	return fmt.Sprintf("%s modopt(%s)", inner, f.tokenName(token)), nil
}

// Arrays carry a rank, followed by optional sizes and lower bounds.  Only the
// rank is reflected in the name.
func (f *signatureFormatter) array() (string, error) {
	inner, err := f.typeName()
	if err != nil {
		return "", err
	}
	//
	rank, err := f.reader.Uint()
	if err != nil {
		return "", err
	}
	//
	for range 2 {
		// Sizes then lower bounds
		count, err := f.reader.Uint()
		if err != nil {
			return "", err
		}
		//
		for range count {
			if _, err := f.reader.Uint(); err != nil {
				return "", err
			}
		}
	}
	//
	return inner + "[" + strings.Repeat(",", int(max(rank, 1)-1)) + "]", nil
}

func (f *signatureFormatter) genericInstance() (string, error) {
	// Skip CLASS or VALUETYPE
	if _, err := f.reader.Byte(); err != nil {
		return "", err
	}
	//
	token, err := f.reader.TypeDefOrRef()
	if err != nil {
		return "", err
	}
	//
	count, err := f.reader.Uint()
	if err != nil {
		return "", err
	}
	//
	args := make([]string, count)
	//
	for i := range args {
		if args[i], err = f.typeName(); err != nil {
			return "", err
		}
	}
	//
	return fmt.Sprintf("%s<%s>", f.tokenName(token), strings.Join(args, ",")), nil
}

// Determine the name of a TypeDef, TypeRef or TypeSpec token.
func (f *signatureFormatter) tokenName(token metadata.Token) string {
	var (
		m     = f.module
		index = int(token.RID()) - 1
	)
	//
	if m == nil || index < 0 {
		return token.String()
	}
	//
	switch token.Table() {
	case metadata.TypeDef:
		if index < len(m.Types) {
			return m.Types[index].FullName()
		}
	case metadata.TypeRef:
		if index < len(m.TypeReferences) {
			return m.TypeReferences[index].FullName()
		}
	case metadata.TypeSpec:
		if index < len(m.TypeSpecifications) {
			return m.TypeSpecifications[index].FullName()
		}
	}
	//
	return token.String()
}
