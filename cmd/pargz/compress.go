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
	"path/filepath"

	"github.com/mvarela/pargz"
)

// compressor implements the default (compress) run mode, driving a
// multi-format, multi-process [pargz.Writer].
type compressor struct {
	path string
	opts options
}

func (c *compressor) Run() error {
	var src io.Reader = os.Stdin
	var name string
	var modTime os.FileInfo

	if c.path != "-" {
		f, err := os.Open(c.path)
		if err != nil {
			return fmt.Errorf("%w: opening file: %w", ErrPargz, err)
		}
		defer f.Close()
		src = f

		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("%w: stat %q: %w", ErrPargz, c.path, err)
		}
		modTime = fi
		name = filepath.Base(c.path)
	}

	var dst io.Writer
	var dstFile *os.File
	outPath := c.path + c.opts.suffix
	switch {
	case c.opts.stdout || c.path == "-":
		dst = os.Stdout
	default:
		flags := os.O_CREATE | os.O_WRONLY
		if !c.opts.force {
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

	z, err := pargz.NewWriterConfig(dst, c.opts.cfg)
	if err != nil {
		return fmt.Errorf("%w: creating writer: %w", ErrPargz, err)
	}
	if !c.opts.noName {
		z.Name = name
		if !c.opts.noTime && modTime != nil {
			z.ModTime = modTime.ModTime()
		}
	}

	n, err := io.Copy(z, src)
	if err != nil {
		z.Close()
		return fmt.Errorf("%w: compressing %q: %w", ErrPargz, c.path, err)
	}
	if err := z.Close(); err != nil {
		return fmt.Errorf("%w: closing output: %w", ErrPargz, err)
	}

	if c.opts.verbose && c.path != "-" {
		fmt.Fprintf(os.Stderr, "%s:\t%d bytes in\n", c.path, n)
	}

	if c.path != "-" && !c.opts.keep {
		if err := os.Remove(c.path); err != nil {
			return fmt.Errorf("%w: removing file: %w", ErrPargz, err)
		}
	}

	return nil
}
