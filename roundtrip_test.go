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
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testPayload returns deterministic but non-trivial input: compressible
// runs interleaved with pseudo-random bytes, exercising both the
// stored-block and Huffman-coded paths of the DEFLATE engine.
func testPayload(n int) []byte {
	r := rand.New(rand.NewSource(1))
	buf := make([]byte, 0, n)
	for len(buf) < n {
		buf = append(buf, bytes.Repeat([]byte{'a', 'b', 'c'}, 200)...)
		chunk := make([]byte, 512)
		r.Read(chunk)
		buf = append(buf, chunk...)
	}
	return buf[:n]
}

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		cfg   Config
		size  int
	}{
		{"gzip single-threaded", Config{Format: FormatGzip, Procs: 1}, 5000},
		{"gzip parallel small blocks", Config{Format: FormatGzip, BlockSize: MinBlockSize, Procs: 4}, 5 * MinBlockSize},
		{"gzip parallel independent blocks", Config{Format: FormatGzip, BlockSize: MinBlockSize, Procs: 4, Dictionary: false}, 5 * MinBlockSize},
		{"zlib single-threaded", Config{Format: FormatZlib, Procs: 1}, 5000},
		{"zlib parallel", Config{Format: FormatZlib, BlockSize: MinBlockSize, Procs: 3}, 4 * MinBlockSize},
		{"zip with descriptor parallel", Config{Format: FormatZipDescriptor, BlockSize: MinBlockSize, Procs: 2}, 3 * MinBlockSize},
		{"zip with descriptor single-threaded", Config{Format: FormatZipDescriptor, Procs: 1}, 4096},
		{"empty input", Config{Format: FormatGzip, Procs: 2}, 0},
		{"short final block", Config{Format: FormatGzip, BlockSize: MinBlockSize, Procs: 4}, MinBlockSize + 7},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			want := testPayload(tc.size)

			var compressed bytes.Buffer
			w, err := NewWriterConfig(&compressed, tc.cfg)
			if err != nil {
				t.Fatalf("NewWriterConfig: %v", err)
			}
			w.Name = "payload.bin"

			if _, err := w.Write(want); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := NewReader(bytes.NewReader(compressed.Bytes()))
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestBlockBoundaryInvariant verifies that parallel compression at
// different block sizes and worker counts still decodes to the same
// bytes, regardless of where block boundaries fall.
func TestBlockBoundaryInvariant(t *testing.T) {
	t.Parallel()

	want := testPayload(10 * MinBlockSize)

	configs := []Config{
		{Format: FormatGzip, BlockSize: MinBlockSize, Procs: 1},
		{Format: FormatGzip, BlockSize: MinBlockSize, Procs: 3},
		{Format: FormatGzip, BlockSize: 2 * MinBlockSize, Procs: 7},
	}

	for _, cfg := range configs {
		var buf bytes.Buffer
		w, err := NewWriterConfig(&buf, cfg)
		if err != nil {
			t.Fatalf("NewWriterConfig(%+v): %v", cfg, err)
		}
		if _, err := w.Write(want); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		r, err := NewReader(&buf)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("cfg %+v: round trip produced different bytes", cfg)
		}
	}
}

// TestMultistreamConcatenation checks that concatenated gzip members
// decode as a single logical stream.
func TestMultistreamConcatenation(t *testing.T) {
	t.Parallel()

	part1 := testPayload(1000)
	part2 := testPayload(2000)

	var buf bytes.Buffer
	for _, part := range [][]byte{part1, part2} {
		w, err := NewWriterConfig(&buf, Config{Format: FormatGzip, Procs: 1})
		if err != nil {
			t.Fatalf("NewWriterConfig: %v", err)
		}
		if _, err := w.Write(part); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	want := append(append([]byte{}, part1...), part2...)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("multistream mismatch (-want +got):\n%s", diff)
	}
}

// TestCorruptTrailerDetected checks that flipping a trailer byte is
// caught as a check mismatch rather than silently accepted.
func TestCorruptTrailerDetected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriterConfig(&buf, Config{Format: FormatGzip, Procs: 1})
	if err != nil {
		t.Fatalf("NewWriterConfig: %v", err)
	}
	if _, err := w.Write(testPayload(1000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(corrupted))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, err = io.ReadAll(r)
	if err == nil {
		t.Fatal("expected an error decoding a corrupted trailer, got nil")
	}
}
