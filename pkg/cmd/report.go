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

	"github.com/consensys/go-publicizer/pkg/publicizer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [flags] report_file",
	Short: "print a report of the changes made to an assembly.",
	Long: `Print a report previously written by "publicize --report", showing the original
	visibility of every publicized definition and which method bodies were stripped.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		//
		report, err := publicizer.ReadReport(args[0])
		if err != nil {
			fail(err)
		}
		//
		printReport(os.Stdout, report)
	},
}

func printReport(w io.Writer, report *publicizer.Report) {
	fmt.Fprintf(w, "%s\n", typeColor.Sprint(report.Module))
	//
	for _, c := range report.Changes {
		switch c.Action {
		case publicizer.ActionStrip:
			fmt.Fprintf(w, "    %s %s %s\n", color.RedString("stripped"), c.Kind, c.Name)
		default:
			fmt.Fprintf(w, "    %s %s %s => %s\n", c.Kind, c.Name,
				nonPublicColor.Sprint(publicizer.VisibilityName(c.Kind, c.Before)),
				publicColor.Sprint(publicizer.VisibilityName(c.Kind, c.After)))
		}
	}
	//
	fmt.Fprintf(w, "%d types, %d methods, %d fields publicized; %d bodies stripped\n",
		report.Count(publicizer.KindType, publicizer.ActionPublicize),
		report.Count(publicizer.KindMethod, publicizer.ActionPublicize),
		report.Count(publicizer.KindField, publicizer.ActionPublicize),
		report.Count(publicizer.KindMethod, publicizer.ActionStrip))
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
