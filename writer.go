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

package pargz

import (
	"fmt"
	"io"
)

// Writer implements [io.WriteCloser]. Bytes written are compressed and
// framed per [Config.Format] and written to the underlying writer;
// [Writer.Close] must always be called, since it is what flushes the
// final block, the trailer, and (on the parallel path) joins the
// pipeline goroutines.
//
// Writer picks between the parallel ring pipeline and a single-threaded
// fallback based on [Config.Procs]: a Procs of 1 selects the
// single-threaded path; otherwise the parallel ring pipeline is used.
type Writer struct {
	Header

	cfg Config

	single *singleCompressor

	// Parallel path: Write feeds pw, and a background goroutine runs the
	// ring pipeline reading from pr and writing framed output to dst.
	// This lets the pipeline's reader loop pull bytes on its own
	// schedule exactly as it would from a file, without this type
	// needing to duplicate the ring's buffering.
	pw       *io.PipeWriter
	pipeDone chan error

	closed bool
}

// NewWriter returns a new [Writer] using [DefaultBlockSize],
// [DefaultProcs], and the default DEFLATE compression level, writing a
// gzip stream to w.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterConfig(w, Config{})
}

// NewWriterConfig returns a new [Writer] configured by cfg, writing to w.
func NewWriterConfig(w io.Writer, cfg Config) (*Writer, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	z := &Writer{cfg: cfg}
	z.Header.OS = OSUnix

	if cfg.Procs == 1 {
		sc, err := newSingleCompressor(w, &z.Header, cfg)
		if err != nil {
			return nil, err
		}
		z.single = sc
		return z, nil
	}

	pr, pw := io.Pipe()
	z.pw = pw
	z.pipeDone = make(chan error, 1)

	pl, err := newPipeline(cfg, &z.Header)
	if err != nil {
		return nil, err
	}
	go func() {
		_, _, _, err := pl.run(pr, w)
		// Close pr with the pipeline's result so that a Write to pw
		// returns an error instead of blocking once the pipeline has
		// stopped reading.
		pr.CloseWithError(err)
		z.pipeDone <- err
	}()

	return z, nil
}

// Write implements [io.Writer].
func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, ErrClosed
	}
	if z.single != nil {
		return z.single.Write(p)
	}
	return z.pw.Write(p)
}

// Close implements [io.Closer]. It flushes any buffered data, writes the
// trailer, and on the parallel path joins the pipeline goroutine.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true

	if z.single != nil {
		return z.single.Close()
	}

	if err := z.pw.Close(); err != nil {
		return fmt.Errorf("%w: closing pipeline input: %w", errPargz, err)
	}
	return <-z.pipeDone
}
