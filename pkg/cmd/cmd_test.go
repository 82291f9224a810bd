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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/go-publicizer/pkg/dotnet"
	"github.com/consensys/go-publicizer/pkg/dotnet/dotnettest"
	"github.com/consensys/go-publicizer/pkg/publicizer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================================================================
// Settings
// ===================================================================

func Test_Settings_00(t *testing.T) {
	settings := checkSettings(t, nil, "Foo.dll")
	//
	assert.Equal(t, []publicizer.Job{{Input: "Foo.dll", Output: "Foo-publicized.dll"}}, settings.jobs)
	assert.Equal(t, publicizer.DefaultOptions(), settings.options)
	assert.Equal(t, 0, settings.parallelism)
}

func Test_Settings_01(t *testing.T) {
	settings := checkSettings(t, []string{"-o", "out.dll", "--report", "foo.msgpack", "--targets", "types,fields",
		"--strip", "--compiler-generated", "--no-original-attributes", "--mask", "Mask.dll", "-j", "3"}, "Foo.dll")
	//
	assert.Equal(t, []publicizer.Job{{Input: "Foo.dll", Output: "out.dll", Report: "foo.msgpack"}}, settings.jobs)
	assert.Equal(t, publicizer.TargetTypes|publicizer.TargetFields, settings.options.Targets)
	assert.True(t, settings.options.Strip)
	assert.True(t, settings.options.PublicizeCompilerGenerated)
	assert.False(t, settings.options.IncludeOriginalAttributesAttribute)
	assert.Equal(t, "Mask.dll", settings.options.MaskAssembly)
	assert.Equal(t, 3, settings.parallelism)
}

func Test_Settings_02(t *testing.T) {
	settings := checkSettings(t, []string{"-o", "out", "--report", "reports"}, "lib/A.dll", "lib/B.dll")
	//
	assert.Equal(t, []publicizer.Job{
		{Input: "lib/A.dll", Output: filepath.Join("out", "A.dll"), Report: filepath.Join("reports", "A.msgpack")},
		{Input: "lib/B.dll", Output: filepath.Join("out", "B.dll"), Report: filepath.Join("reports", "B.msgpack")},
	}, settings.jobs)
}

func Test_Settings_03(t *testing.T) {
	cmd := newPublicizeCmd(t)
	require.NoError(t, cmd.ParseFlags(nil))
	//
	_, err := resolveSettings(cmd, nil)
	assert.ErrorContains(t, err, "no assemblies")
	//
	require.NoError(t, cmd.ParseFlags([]string{"--targets", "properties"}))
	_, err = resolveSettings(cmd, []string{"Foo.dll"})
	assert.ErrorContains(t, err, "unknown target")
}

// ===================================================================
// Configuration files
// ===================================================================

func Test_Config_00(t *testing.T) {
	var dir = t.TempDir()
	//
	path := writeConfig(t, dir, `
targets = ["methods"]
strip = true
original_attributes = false
mask = "Mask.dll"
jobs = 2

[[assembly]]
input = "A.dll"

[[assembly]]
input = "B.dll"
output = "out/B.dll"
report = "/tmp/B.msgpack"
`)
	settings := checkSettings(t, []string{"--config", path})
	//
	assert.Equal(t, publicizer.TargetMethods, settings.options.Targets)
	assert.True(t, settings.options.Strip)
	assert.False(t, settings.options.IncludeOriginalAttributesAttribute)
	assert.False(t, settings.options.PublicizeCompilerGenerated)
	assert.Equal(t, filepath.Join(dir, "Mask.dll"), settings.options.MaskAssembly)
	assert.Equal(t, 2, settings.parallelism)
	assert.Equal(t, []publicizer.Job{
		{Input: filepath.Join(dir, "A.dll"), Output: filepath.Join(dir, "A-publicized.dll")},
		{Input: filepath.Join(dir, "B.dll"), Output: filepath.Join(dir, "out", "B.dll"), Report: "/tmp/B.msgpack"},
	}, settings.jobs)
}

func Test_Config_01(t *testing.T) {
	var dir = t.TempDir()
	// Flags take precedence
	path := writeConfig(t, dir, `
targets = ["methods"]
strip = true
jobs = 2
`)
	settings := checkSettings(t, []string{"--config", path, "--targets", "all", "--strip=false", "-j", "5"}, "Foo.dll")
	//
	assert.Equal(t, publicizer.TargetAll, settings.options.Targets)
	assert.False(t, settings.options.Strip)
	assert.True(t, settings.options.IncludeOriginalAttributesAttribute)
	assert.Equal(t, 5, settings.parallelism)
}

func Test_Config_02(t *testing.T) {
	var dir = t.TempDir()
	//
	_, err := loadConfig(writeConfig(t, dir, `targets = [`))
	assert.ErrorContains(t, err, "failed to parse TOML")
	//
	_, err = loadConfig(writeConfig(t, dir, `colour = "red"`))
	assert.ErrorContains(t, err, "unknown key")
	//
	_, err = loadConfig(writeConfig(t, dir, "[[assembly]]\noutput = \"x.dll\"\n"))
	assert.ErrorContains(t, err, "has no input")
	//
	_, err = loadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

// ===================================================================
// Output
// ===================================================================

func Test_Inspect_00(t *testing.T) {
	var buffer bytes.Buffer
	//
	disableColor(t)
	//
	module := readSample(t)
	inspectModule(&buffer, module, false)
	output := buffer.String()
	//
	assert.Contains(t, output, "internal Sample.Foo\n")
	assert.Contains(t, output, "    private System.Int32 Sample.Foo::Bar(System.Int32)\n")
	assert.Contains(t, output, "    protected System.Void Sample.Api::Protected()\n")
	assert.NotContains(t, output, "Sample.Foo::.ctor")
	assert.Contains(t, output, "nested private Sample.Foo+Inner\n")
	assert.NotContains(t, output, "Sample.Color::Red")
	assert.Contains(t, output, "7 of 7 types shown\n")
	//
	buffer.Reset()
	inspectModule(&buffer, module, true)
	assert.Contains(t, buffer.String(), "    public System.Void Sample.Foo::.ctor()\n")
	assert.Contains(t, buffer.String(), "    public Sample.Color Sample.Color::Red\n")
}

func Test_Report_00(t *testing.T) {
	var buffer bytes.Buffer
	//
	disableColor(t)
	//
	printReport(&buffer, &publicizer.Report{Module: "Foo.dll", Changes: []publicizer.Change{
		{Kind: publicizer.KindType, Name: "Foo", Before: 0, After: 1},
		{Kind: publicizer.KindMethod, Name: "System.Void Foo::Bar()", Before: 1, After: 6},
		{Kind: publicizer.KindMethod, Action: publicizer.ActionStrip, Name: "System.Void Foo::Bar()"},
	}})
	//
	assert.Equal(t, `Foo.dll
    type Foo internal => public
    method System.Void Foo::Bar() private => public
    stripped method System.Void Foo::Bar()
1 types, 1 methods, 0 fields publicized; 1 bodies stripped
`, buffer.String())
}

func Test_Color_00(t *testing.T) {
	disableColor(t)
	//
	require.NoError(t, configureColor("on"))
	assert.False(t, color.NoColor)
	require.NoError(t, configureColor("off"))
	assert.True(t, color.NoColor)
	assert.Error(t, configureColor("sometimes"))
}

// ===================================================================
// Helpers
// ===================================================================

func newPublicizeCmd(t *testing.T) *cobra.Command {
	t.Helper()
	//
	cmd := &cobra.Command{Use: "publicize"}
	addPublicizeFlags(cmd)
	//
	return cmd
}

func checkSettings(t *testing.T, flags []string, args ...string) *publicizeSettings {
	t.Helper()
	//
	cmd := newPublicizeCmd(t)
	require.NoError(t, cmd.ParseFlags(flags))
	//
	settings, err := resolveSettings(cmd, args)
	require.NoError(t, err)
	//
	return settings
}

func writeConfig(t *testing.T, dir string, content string) string {
	t.Helper()
	//
	path := filepath.Join(dir, "publicizer.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	//
	return path
}

func readSample(t *testing.T) *dotnet.Module {
	t.Helper()
	//
	path := filepath.Join(t.TempDir(), dotnettest.SampleModule)
	require.NoError(t, os.WriteFile(path, dotnettest.MustSample(t), 0o644))
	//
	module, err := publicizer.ReadAssembly(path)
	require.NoError(t, err)
	//
	return module
}

// Disable colour for the duration of a test.
func disableColor(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	//
	t.Cleanup(func() { color.NoColor = previous })
}
