// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tools contains utility types shared by every escapec subcommand frontend.
package tools

import (
	"flag"
	"fmt"
	"os"
)

// UnparsedCommonFlags is a flag set pre-populated with the flags every subcommand accepts:
// -config, -verbose, -with-test.
type UnparsedCommonFlags struct {
	FlagSet    *flag.FlagSet
	ConfigPath *string
	Verbose    *bool
	WithTest   *bool
}

// NewUnparsedCommonFlags returns an unparsed flag set with the given subcommand name.
func NewUnparsedCommonFlags(name string) UnparsedCommonFlags {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := cmd.String("config", "", "yaml config file path (see analysis/config.Config)")
	verbose := cmd.Bool("verbose", false, "set the log level to debug regardless of config")
	withTest := cmd.Bool("with-test", false, "load _test.go files as part of the program")
	return UnparsedCommonFlags{FlagSet: cmd, ConfigPath: configPath, Verbose: verbose, WithTest: withTest}
}

// CommonFlags is the parsed form of UnparsedCommonFlags.
type CommonFlags struct {
	FlagSet    *flag.FlagSet
	ConfigPath string
	Verbose    bool
	WithTest   bool
}

// NewCommonFlags parses args against a fresh common flag set named name, with cmdUsage shown
// on -help.
func NewCommonFlags(name string, args []string, cmdUsage string) (CommonFlags, error) {
	flags := NewUnparsedCommonFlags(name)
	SetUsage(flags.FlagSet, cmdUsage)
	if err := flags.FlagSet.Parse(args); err != nil {
		return CommonFlags{}, fmt.Errorf("failed to parse command %s with args %v: %w", name, args, err)
	}
	return CommonFlags{
		FlagSet:    flags.FlagSet,
		ConfigPath: *flags.ConfigPath,
		Verbose:    *flags.Verbose,
		WithTest:   *flags.WithTest,
	}, nil
}

// SetUsage sets cmd's -help output to cmdUsage followed by each flag's documentation.
func SetUsage(cmd *flag.FlagSet, cmdUsage string) {
	cmd.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n", cmdUsage)
		fmt.Fprintf(os.Stderr, "Options:\n")
		cmd.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  -%s: %s (default: %q)\n", f.Name, f.Usage, f.DefValue)
		})
	}
}
