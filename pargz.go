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

// Package pargz implements a parallel, streaming compressor and
// decompressor that is wire-compatible with single-stream gzip
// (RFC 1952), zlib (RFC 1950), and single-entry PKWare zip, and that can
// decode the legacy LZW ("compress") format.
//
// Compression partitions the input into fixed-size blocks and deflates
// them concurrently on a pool of worker goroutines while preserving
// cross-block dictionary continuity, then serializes the compressed
// blocks in input order behind a single format header/trailer.
//
// Unless otherwise informed clients should not assume implementations in
// this package are safe for parallel use on the same Writer or Reader.
package pargz

import (
	"errors"
	"fmt"
)

// errPargz is the base error for all pargz errors.
var errPargz = errors.New("pargz")

var (
	// ErrHeader indicates an error with format header or trailer data.
	ErrHeader = fmt.Errorf("%w: invalid header", errPargz)

	// ErrCorrupt indicates the compressed payload or its trailer check did
	// not match the recomputed value.
	ErrCorrupt = fmt.Errorf("%w: corrupt stream", errPargz)

	// ErrConfig indicates an invalid or conflicting configuration value.
	ErrConfig = fmt.Errorf("%w: invalid configuration", errPargz)

	// ErrUnsupported indicates a feature or format is not supported.
	ErrUnsupported = fmt.Errorf("%w: unsupported", errPargz)

	// ErrClosed indicates an operation was attempted on a closed Writer or
	// Reader.
	ErrClosed = fmt.Errorf("%w: use of closed stream", errPargz)
)

func headerErr(err error) error {
	return fmt.Errorf("%w: %w", ErrHeader, err)
}

// Format selects the on-wire framing used by [Writer] and recognized by
// [Reader].
type Format int

const (
	// FormatGzip frames blocks as a single RFC 1952 gzip member. The check
	// algorithm is CRC-32.
	FormatGzip Format = iota

	// FormatZlib frames blocks as a single RFC 1950 zlib stream. The check
	// algorithm is Adler-32.
	FormatZlib

	// FormatZip frames blocks as a single PKWare zip entry. [Writer]
	// writes it exactly as [FormatZipDescriptor]: the local file header
	// carries zeroed sizes and check, and a data descriptor after the data
	// records them. [Reader] decodes zip entries of either layout.
	FormatZip

	// FormatZipDescriptor frames blocks as a single PKWare zip entry whose
	// sizes and check are deferred to a trailing data descriptor, as
	// required when the output is not seekable.
	FormatZipDescriptor
)

// String implements [fmt.Stringer].
func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatZlib:
		return "zlib"
	case FormatZip:
		return "zip"
	case FormatZipDescriptor:
		return "zip (data descriptor)"
	default:
		return "unknown"
	}
}

// usesCRC32 reports whether f's check algorithm is CRC-32 (true) or
// Adler-32 (false).
func (f Format) usesCRC32() bool {
	return f != FormatZlib
}

const (
	// MinBlockSize is the smallest allowed block size: 32 KiB, the DEFLATE
	// window size.
	MinBlockSize = 32 * 1024

	// DefaultBlockSize is the default block size used by [NewWriter].
	DefaultBlockSize = 128 * 1024

	// DefaultProcs is the default worker count used by [NewWriter] when the
	// platform makes concurrency available.
	DefaultProcs = 32

	// windowSize is the DEFLATE history window and the size of a preset
	// dictionary carried across blocks.
	windowSize = 32 * 1024
)

// Config bundles the parallel-pipeline tunables. A Config is immutable
// once passed to [NewWriterConfig]; callers that want to change block size,
// worker count, or level must build a new Writer.
type Config struct {
	// Format selects the wire framing. Zero value is [FormatGzip].
	Format Format

	// BlockSize is the uncompressed size of each pipeline block, in bytes.
	// Zero selects [DefaultBlockSize]. Must be >= [MinBlockSize].
	BlockSize int

	// Procs is the number of concurrent compressor workers. Zero selects
	// [DefaultProcs]. A value of 1 selects the single-threaded path.
	Procs int

	// Level is the DEFLATE compression level, as in [compress/flate]: -2
	// (Huffman-only) through -1 (default) to 9 (best compression),
	// including the legitimate 0 (store, no compression — gzip(1)/pigz's
	// "-0"). nil selects the package default; unlike an int field, nil
	// can't be confused with an explicit 0.
	Level *int

	// Dictionary enables cross-block preset-dictionary priming in the
	// parallel path, and no-flush chaining in the single-threaded path.
	// When false, blocks are compressed independently.
	Dictionary bool

	// Verbosity controls progress reporting. 0 is silent, >=2 emits a "."
	// per completed writer rotation (see [Writer]).
	Verbosity int
}

// withDefaults returns a copy of cfg with zero fields replaced by their
// defaults, and validates the result.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.Procs == 0 {
		cfg.Procs = DefaultProcs
	}
	if cfg.Level == nil {
		lvl := -1 // flate.DefaultCompression
		cfg.Level = &lvl
	}

	if cfg.BlockSize < MinBlockSize {
		return cfg, fmt.Errorf("%w: block size %d below minimum %d", ErrConfig, cfg.BlockSize, MinBlockSize)
	}
	if cfg.Procs < 1 {
		return cfg, fmt.Errorf("%w: procs %d below minimum 1", ErrConfig, cfg.Procs)
	}
	// outSize must fit in an int with margin; reject configurations where
	// the worst-case deflate expansion would overflow.
	expansion := cfg.BlockSize / 2048
	if cfg.BlockSize > (intMax-10-expansion) {
		return cfg, fmt.Errorf("%w: block size %d too large for worst-case expansion", ErrConfig, cfg.BlockSize)
	}

	return cfg, nil
}

// outBufSize returns the worst-case compressed size of a block of n
// uncompressed bytes: n plus deflate's per-block stored-block overhead
// plus a margin for the sync-flush terminator.
func outBufSize(n int) int {
	return n + n/2048 + 10
}
