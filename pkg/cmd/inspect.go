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
	"io"
	"os"

	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/publicizer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] assembly",
	Short: "list the non-public definitions of an assembly.",
	Long: `List the types, methods and fields of an assembly along with their visibility.
	By default, only non-public definitions (and their enclosing types) are shown.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		//
		module, err := publicizer.ReadAssembly(args[0])
		if err != nil {
			fail(err)
		}
		//
		inspectModule(os.Stdout, module, GetFlag(cmd, "all"))
	},
}

var (
	publicColor    = color.New(color.FgGreen)
	nonPublicColor = color.New(color.FgYellow)
	typeColor      = color.New(color.Bold)
)

// Print the definitions of a module.  Unless all is set, public types whose
// members are all public are omitted, as are public members.
func inspectModule(w io.Writer, module *dotnet.Module, all bool) {
	var shown int
	//
	for _, t := range module.Types {
		public := t.IsPublic()
		members := inspectMembers(t, all)
		//
		if !all && public && len(members) == 0 {
			continue
		}
		//
		fmt.Fprintf(w, "%s %s\n", visibility(publicizer.KindType, uint32(t.Attributes.Visibility()), public),
			typeColor.Sprint(t.FullName()))
		//
		for _, line := range members {
			fmt.Fprintf(w, "    %s\n", line)
		}
		//
		shown++
	}
	//
	fmt.Fprintf(w, "%d of %d types shown\n", shown, len(module.Types))
}

func inspectMembers(t *dotnet.TypeDefinition, all bool) []string {
	var lines []string
	//
	for _, m := range t.Methods {
		if all || !m.IsPublic() {
			access := visibility(publicizer.KindMethod, uint32(m.Attributes.Access()), m.IsPublic())
			lines = append(lines, fmt.Sprintf("%s %s", access, m.FullName()))
		}
	}
	//
	for _, f := range t.Fields {
		if all || !f.IsPublic() {
			access := visibility(publicizer.KindField, uint32(f.Attributes.Access()), f.IsPublic())
			lines = append(lines, fmt.Sprintf("%s %s", access, f.FullName()))
		}
	}
	//
	return lines
}

func visibility(kind publicizer.Kind, value uint32, public bool) string {
	name := publicizer.VisibilityName(kind, value)
	//
	if public {
		return publicColor.Sprint(name)
	}
	//
	return nonPublicColor.Sprint(name)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("all", false, "show public definitions too")
}
