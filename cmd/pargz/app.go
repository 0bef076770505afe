// Copyright 2024 Google LLC
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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"sigs.k8s.io/release-utils/version"

	"github.com/mvarela/pargz"
)

const (
	// ExitCodeSuccess is successful error code.
	ExitCodeSuccess int = iota

	// ExitCodeFlagParseError is the exit code for a flag parsing error.
	ExitCodeFlagParseError

	// ExitCodeUnknownError is the exit code for an unknown error.
	ExitCodeUnknownError = ExitCodeFlagParseError
)

// ErrFlagParse is a flag parsing error.
var ErrFlagParse = errors.New("parsing flags")

// ErrPargz is the base error wrapped by this command's own failures.
var ErrPargz = errors.New("pargz")

func init() {
	// See: github.com/urfave/cli/issues/1809
	cli.HelpFlag = &cli.BoolFlag{
		Name:               "d41d8cd98f00b204e980",
		DisableDefaultText: true,
	}
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// envArgs prepends any flags named by the GZIP environment variable,
// the same pre-supply convention gzip(1) honors.
func envArgs(argv []string) []string {
	env := strings.TrimSpace(os.Getenv("GZIP"))
	if env == "" {
		return argv
	}
	prefix := append([]string{argv[0]}, strings.Fields(env)...)
	return append(prefix, argv[1:]...)
}

func levelFlags() []cli.Flag {
	var flags []cli.Flag
	for i := 0; i <= 9; i++ {
		flags = append(flags, &cli.BoolFlag{
			Name:               strconv.Itoa(i),
			DisableDefaultText: true,
			Hidden:             true,
		})
	}
	return flags
}

// levelFromContext reads whichever of -0..-9 was passed; when several
// were, the highest-numbered one is used. It
// returns nil if none was passed, leaving [pargz.Config.Level] unset so
// [pargz.NewWriterConfig] selects flate's own default level; "-0" is
// returned as a pointer to 0, not remapped to the default, since level 0
// (store, no compression) is a real, distinct level.
func levelFromContext(c *cli.Context) *int {
	var level *int
	for i := 0; i <= 9; i++ {
		if c.Bool(strconv.Itoa(i)) {
			lvl := i
			level = &lvl
		}
	}
	return level
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.IntFlag{Name: "blocksize", Aliases: []string{"b"}, Usage: "block size in KiB", Value: pargz.DefaultBlockSize / 1024},
		&cli.IntFlag{Name: "processes", Aliases: []string{"p"}, Usage: "number of compression threads", Value: runtime.GOMAXPROCS(0)},
		&cli.BoolFlag{Name: "independent", Aliases: []string{"i"}, Usage: "compress blocks independently, for partial-file recovery"},
		&cli.BoolFlag{Name: "decompress", Aliases: []string{"d"}, Usage: "decompress"},
		&cli.BoolFlag{Name: "test", Aliases: []string{"t"}, Usage: "test compressed file integrity"},
		&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "list compressed file contents"},
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "force overwrite, compress regardless of suffix"},
		&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "recurse into directories"},
		&cli.StringFlag{Name: "suffix", Aliases: []string{"s"}, Usage: "use suffix on compressed files", Value: ".gz"},
		&cli.BoolFlag{Name: "zlib", Aliases: []string{"z"}, Usage: "write a zlib stream instead of gzip"},
		&cli.BoolFlag{Name: "zip", Usage: "write a zip entry instead of gzip"},
		&cli.BoolFlag{Name: "keep", Aliases: []string{"k", "K"}, Usage: "keep (don't delete) input files"},
		&cli.BoolFlag{Name: "stdout", Aliases: []string{"c"}, Usage: "write to stdout, keep input files"},
		&cli.BoolFlag{Name: "name", Aliases: []string{"N"}, Usage: "store/restore the file name and timestamp"},
		&cli.BoolFlag{Name: "no-name", Aliases: []string{"n"}, Usage: "do not store the file name or timestamp"},
		&cli.BoolFlag{Name: "no-time", Aliases: []string{"T"}, Usage: "do not store the timestamp"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress warnings"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose mode"},
		&cli.BoolFlag{Name: "version", Aliases: []string{"V"}, Usage: "print version information and exit", DisableDefaultText: true},
		&cli.BoolFlag{Name: "help", Aliases: []string{"h"}, Usage: "print this help text and exit", DisableDefaultText: true},
	}
	flags = append(flags, levelFlags()...)

	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "parallel gzip/zlib/zip compressor and decompressor",
		Description: strings.Join([]string{
			"pargz compresses or decompresses files, splitting the work",
			"across a pool of goroutines while remaining wire-compatible",
			"with gzip, zlib, and single-entry zip.",
		}, "\n"),
		Flags:           flags,
		ArgsUsage:       "[FILE]...",
		Copyright:       "Google LLC",
		HideHelp:        true,
		HideHelpCommand: true,
		Action: func(c *cli.Context) error {
			if c.Bool("help") {
				check(cli.ShowAppHelp(c))
				return nil
			}
			if c.Bool("version") {
				return printVersion(c)
			}

			opts := optionsFromContext(c)

			paths := c.Args().Slice()
			if len(paths) == 0 {
				paths = []string{"-"}
			}
			if opts.recursive {
				var err error
				paths, err = expandRecursive(paths)
				if err != nil {
					return err
				}
			}

			var firstErr error
			for _, path := range paths {
				if err := runOne(opts, path); err != nil {
					if !opts.quiet {
						_ = must(fmt.Fprintf(c.App.ErrWriter, "%s: %s: %v\n", c.App.Name, path, err))
					}
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return firstErr
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			if err == nil {
				return
			}
			if errors.Is(err, ErrFlagParse) {
				_ = must(fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", c.App.Name, err))
				cli.OsExiter(ExitCodeFlagParseError)
				return
			}
			cli.OsExiter(ExitCodeUnknownError)
		},
	}
}

// options bundles the parsed command-line configuration shared by every
// run mode (compress, decompress, test, list).
type options struct {
	decompress  bool
	test        bool
	list        bool
	force       bool
	recursive   bool
	keep        bool
	stdout      bool
	noName      bool
	noTime      bool
	quiet       bool
	verbose     bool
	suffix      string
	cfg         pargz.Config
}

func optionsFromContext(c *cli.Context) options {
	format := pargz.FormatGzip
	switch {
	case c.Bool("zip"):
		format = pargz.FormatZipDescriptor
	case c.Bool("zlib"):
		format = pargz.FormatZlib
	}

	verbosity := 0
	if c.Bool("verbose") {
		verbosity = 2
	}

	return options{
		decompress: c.Bool("decompress"),
		test:       c.Bool("test"),
		list:       c.Bool("list"),
		force:      c.Bool("force"),
		recursive:  c.Bool("recursive"),
		keep:       c.Bool("keep") || c.Bool("stdout"),
		stdout:     c.Bool("stdout"),
		noName:     c.Bool("no-name"),
		noTime:     c.Bool("no-time"),
		quiet:      c.Bool("quiet"),
		verbose:    c.Bool("verbose"),
		suffix:     c.String("suffix"),
		cfg: pargz.Config{
			Format:     format,
			BlockSize:  c.Int("blocksize") * 1024,
			Procs:      c.Int("processes"),
			Level:      levelFromContext(c),
			Dictionary: !c.Bool("independent"),
			Verbosity:  verbosity,
		},
	}
}

func runOne(opts options, path string) error {
	switch {
	case opts.list:
		return (&lister{path: path, verbose: opts.verbose}).Run()
	case opts.test:
		return (&tester{path: path}).Run()
	case opts.decompress:
		return (&decompressor{path: path, opts: opts}).Run()
	default:
		return (&compressor{path: path, opts: opts}).Run()
	}
}
