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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/consensys/go-publicizer/pkg/publicizer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var publicizeCmd = &cobra.Command{
	Use:   "publicize [flags] assembly(s)",
	Short: "publicize one or more assemblies.",
	Long: `Publicize the given assemblies, writing each to a new file (by default
	alongside the original with a "-publicized" suffix).  Assemblies can also be
	listed in a TOML configuration file.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := resolveSettings(cmd, args)
		if err != nil {
			fail(err)
		}
		//
		err = publicizer.PublicizeFiles(cmd.Context(), settings.jobs, settings.options, settings.parallelism)
		if err != nil {
			fail(err)
		}
		//
		for _, job := range settings.jobs {
			fmt.Printf("%s %s => %s\n", color.GreenString("publicized"), job.Input, job.Output)
		}
	},
}

// publicizeSettings determines what to publicize, and how.
type publicizeSettings struct {
	options     *publicizer.Options
	jobs        []publicizer.Job
	parallelism int
}

// Combine the command line with the configuration file (if any), such that
// flags given explicitly take precedence.
func resolveSettings(cmd *cobra.Command, args []string) (*publicizeSettings, error) {
	var (
		cfg      = &fileConfig{}
		settings = publicizeSettings{options: publicizer.DefaultOptions()}
		opts     = settings.options
		err      error
	)
	//
	if path := GetString(cmd, "config"); path != "" {
		if cfg, err = loadConfig(path); err != nil {
			return nil, err
		}
	}
	//
	targets := override(cmd, "targets", cfg, "targets", cfg.Targets, GetStringSlice(cmd, "targets"))
	if opts.Targets, err = publicizer.ParseTargets(targets); err != nil {
		return nil, err
	}
	//
	opts.PublicizeCompilerGenerated = override(cmd, "compiler-generated", cfg, "compiler_generated",
		cfg.CompilerGenerated, GetFlag(cmd, "compiler-generated"))
	opts.IncludeOriginalAttributesAttribute = override(cmd, "no-original-attributes", cfg, "original_attributes",
		cfg.OriginalAttributes, !GetFlag(cmd, "no-original-attributes"))
	opts.Strip = override(cmd, "strip", cfg, "strip", cfg.Strip, GetFlag(cmd, "strip"))
	opts.MaskAssembly = override(cmd, "mask", cfg, "mask", cfg.Mask, GetString(cmd, "mask"))
	settings.parallelism = override(cmd, "jobs", cfg, "jobs", cfg.Jobs, GetInt(cmd, "jobs"))
	//
	settings.jobs = argumentJobs(args, GetString(cmd, "output"), GetString(cmd, "report"))
	//
	for _, job := range cfg.Assemblies {
		if job.Output == "" {
			job.Output = defaultOutput(job.Input)
		}
		//
		settings.jobs = append(settings.jobs, publicizer.Job(job))
	}
	//
	if len(settings.jobs) == 0 {
		return nil, errors.New("no assemblies to publicize")
	}
	//
	return &settings, nil
}

// Construct jobs for the assemblies given on the command line.  With a single
// assembly, the output and report are files.  With several, they are
// directories.
func argumentJobs(inputs []string, output string, report string) []publicizer.Job {
	var jobs = make([]publicizer.Job, len(inputs))
	//
	for i, input := range inputs {
		job := publicizer.Job{Input: input, Output: output, Report: report}
		//
		if len(inputs) > 1 && output != "" {
			job.Output = filepath.Join(output, filepath.Base(input))
		}
		//
		if len(inputs) > 1 && report != "" {
			job.Report = filepath.Join(report, stem(input)+".msgpack")
		}
		//
		if job.Output == "" {
			job.Output = defaultOutput(input)
		}
		//
		jobs[i] = job
	}
	//
	return jobs
}

// Determine the default output file for an assembly, e.g. "Foo-publicized.dll"
// for "Foo.dll".
func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	//
	return strings.TrimSuffix(input, ext) + "-publicized" + ext
}

func stem(path string) string {
	base := filepath.Base(path)
	//
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Select the value from the configuration file, unless the flag was given
// explicitly (or the file does not define it).
func override[T any](cmd *cobra.Command, flag string, cfg *fileConfig, key string, fromFile T, fromFlag T) T {
	if !cmd.Flags().Changed(flag) && cfg.isDefined(key) {
		return fromFile
	}
	//
	return fromFlag
}

func addPublicizeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output file (or directory, for several assemblies)")
	cmd.Flags().StringSlice("targets", []string{"all"}, "definitions to publicize (types,methods,fields or all)")
	cmd.Flags().Bool("compiler-generated", false, "publicize compiler generated definitions")
	cmd.Flags().Bool("no-original-attributes", false, "do not record original visibility with an attribute")
	cmd.Flags().Bool("strip", false, "replace method bodies, producing a reference assembly")
	cmd.Flags().String("mask", "", "only publicize definitions also found in this assembly")
	cmd.Flags().String("report", "", "write a report of every change (directory, for several assemblies)")
	cmd.Flags().String("config", "", "read options and assemblies from a TOML file")
	cmd.Flags().IntP("jobs", "j", 0, "number of assemblies to publicize concurrently (0 for all cores)")
}

func init() {
	rootCmd.AddCommand(publicizeCmd)
	addPublicizeFlags(publicizeCmd)
}
