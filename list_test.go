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
	"testing"
	"time"
)

func TestListGzip(t *testing.T) {
	t.Parallel()

	data := testPayload(6000)

	var buf bytes.Buffer
	w, err := NewWriterConfig(&buf, Config{Format: FormatGzip, Procs: 1})
	if err != nil {
		t.Fatalf("NewWriterConfig: %v", err)
	}
	w.Name = "data.bin"
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e, err := List(bytes.NewReader(buf.Bytes()), "data.bin.gz")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if e.Method != "gzip" {
		t.Errorf("Method = %q, want gzip", e.Method)
	}
	if e.Name != "data.bin" {
		t.Errorf("Name = %q, want data.bin", e.Name)
	}
	if e.Uncompressed != uint64(len(data)) {
		t.Errorf("Uncompressed = %d, want %d", e.Uncompressed, len(data))
	}
	if e.Compressed == 0 || e.Compressed >= e.Uncompressed {
		t.Errorf("Compressed = %d, expected smaller than Uncompressed %d", e.Compressed, e.Uncompressed)
	}
}

func TestAbbreviateName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		max  int
		want string
	}{
		{"short.gz", 48, "short.gz"},
		{"this-is-a-very-long-file-name-that-exceeds-the-width.gz", 16, "this-is-a-ver..."},
		{"exact", 5, "exact"},
	}

	for _, tc := range testCases {
		got := AbbreviateName(tc.name, tc.max)
		if got != tc.want {
			t.Errorf("AbbreviateName(%q, %d) = %q, want %q", tc.name, tc.max, got, tc.want)
		}
	}
}

func TestFormatModTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	sameYear := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	oldYear := time.Date(2019, 3, 1, 9, 30, 0, 0, time.UTC)

	if got := FormatModTime(time.Time{}, now); got != "------------" {
		t.Errorf("zero time = %q, want placeholder", got)
	}
	if got := FormatModTime(sameYear, now); got != sameYear.Format("Jan _2 15:04") {
		t.Errorf("same-year format = %q", got)
	}
	if got := FormatModTime(oldYear, now); got != oldYear.Format("Jan _2  2006") {
		t.Errorf("old-year format = %q", got)
	}
}
