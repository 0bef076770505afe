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
	"hash/adler32"
	"hash/crc32"
	"testing"
)

func TestCombineCRC32MatchesWholeStream(t *testing.T) {
	t.Parallel()

	a := testPayload(3000)
	b := testPayload(4500)

	whole := crc32.ChecksumIEEE(append(append([]byte{}, a...), b...))

	got := CombineCRC32(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(b), int64(len(b)))
	if got != whole {
		t.Errorf("CombineCRC32 = %08x, want %08x", got, whole)
	}
}

func TestCombineCRC32EmptyTail(t *testing.T) {
	t.Parallel()

	a := testPayload(1234)
	want := crc32.ChecksumIEEE(a)
	got := CombineCRC32(want, crc32.ChecksumIEEE(nil), 0)
	if got != want {
		t.Errorf("CombineCRC32 with empty tail = %08x, want %08x", got, want)
	}
}

func TestCombineAdler32MatchesWholeStream(t *testing.T) {
	t.Parallel()

	a := testPayload(2200)
	b := testPayload(3100)

	whole := adler32.Checksum(append(append([]byte{}, a...), b...))

	got := CombineAdler32(adler32.Checksum(a), adler32.Checksum(b), int64(len(b)))
	if got != whole {
		t.Errorf("CombineAdler32 = %08x, want %08x", got, whole)
	}
}

func TestCombineCRC32ThreeWay(t *testing.T) {
	t.Parallel()

	a := testPayload(1000)
	b := testPayload(1000)
	c := testPayload(1000)

	whole := crc32.ChecksumIEEE(append(append(append([]byte{}, a...), b...), c...))

	ab := CombineCRC32(crc32.ChecksumIEEE(a), crc32.ChecksumIEEE(b), int64(len(b)))
	abc := CombineCRC32(ab, crc32.ChecksumIEEE(c), int64(len(c)))

	if abc != whole {
		t.Errorf("three-way CombineCRC32 = %08x, want %08x", abc, whole)
	}
}
