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
	"fmt"
	"io"
	"os"

	"github.com/mvarela/pargz"
)

// decompressor implements "-d": it decodes each input through a
// multi-format [pargz.Reader] and names the output after the name
// stored in the header or, when there is none, after the input path
// with its recognized suffix stripped.
type decompressor struct {
	path string
	opts options
}

func (d *decompressor) Run() error {
	var src io.Reader = os.Stdin
	if d.path != "-" {
		f, err := os.Open(d.path)
		if err != nil {
			return fmt.Errorf("%w: opening file: %w", ErrPargz, err)
		}
		defer f.Close()
		src = f
	}

	z, err := pargz.NewReader(src)
	if err != nil {
		return fmt.Errorf("%w: reading archive: %w", ErrPargz, err)
	}
	defer z.Close()

	var dst io.Writer
	var dstFile *os.File
	var outPath string
	switch {
	case d.opts.stdout || d.path == "-":
		dst = os.Stdout
	default:
		name := z.Name
		if name == "" {
			var ok bool
			name, ok = stripSuffix(d.path)
			if !ok {
				return fmt.Errorf("%w: %q: unknown suffix, use -c to force", ErrPargz, d.path)
			}
		}
		outPath = name
		flags := os.O_CREATE | os.O_WRONLY
		if !d.opts.force {
			flags |= os.O_EXCL
		}
		f, err := os.OpenFile(outPath, flags, 0o644)
		if err != nil {
			return fmt.Errorf("%w: opening target file: %w", ErrPargz, err)
		}
		dstFile = f
		dst = f
	}
	if dstFile != nil {
		defer dstFile.Close()
	}

	n, err := io.Copy(dst, z)
	if err != nil {
		if dstFile != nil {
			dstFile.Close()
			os.Remove(outPath)
		}
		return fmt.Errorf("%w: decompressing %q: %w", ErrPargz, d.path, err)
	}

	if d.opts.verbose && d.path != "-" {
		fmt.Fprintf(os.Stderr, "%s:\t%d bytes out\n", d.path, n)
	}

	if d.path != "-" && !d.opts.keep {
		if err := os.Remove(d.path); err != nil {
			return fmt.Errorf("%w: removing file: %w", ErrPargz, err)
		}
	}

	return nil
}

// tester implements "-t": decompress to [io.Discard] and report whether
// the stream verifies, without writing any output file.
type tester struct {
	path string
}

func (t *tester) Run() error {
	var src io.Reader = os.Stdin
	if t.path != "-" {
		f, err := os.Open(t.path)
		if err != nil {
			return fmt.Errorf("%w: opening file: %w", ErrPargz, err)
		}
		defer f.Close()
		src = f
	}

	z, err := pargz.NewReader(src)
	if err != nil {
		return fmt.Errorf("%w: reading archive: %w", ErrPargz, err)
	}
	defer z.Close()

	if _, err := io.Copy(io.Discard, z); err != nil {
		return fmt.Errorf("%w: %s: not OK: %w", ErrPargz, t.path, err)
	}
	fmt.Printf("%s: OK\n", t.path)
	return nil
}
