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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// ListEntry summarizes one compressed stream without fully decoding it.
type ListEntry struct {
	Method   string // "gzip", "zlib", "zip", "LZW", ...
	Check    string // formatted stored check, or "--------" when unknown.
	ModTime  time.Time
	Compressed   uint64
	Uncompressed uint64 // 0 when the format does not record it (zlib).
	Name     string
}

// ReductionPercent returns the size reduction as a percentage of
// Uncompressed (negative when Compressed is larger), or 0 if
// Uncompressed is 0.
func (e ListEntry) ReductionPercent() float64 {
	if e.Uncompressed == 0 {
		return 0
	}
	saved := float64(e.Uncompressed) - float64(e.Compressed)
	return saved / float64(e.Uncompressed) * 100
}

// List inspects r and returns a summary without performing a full
// decode. When r implements [io.Seeker], the trailer is read by seeking
// to the end of r. A non-seekable r is not scanned for its trailer: for
// gzip, zlib, and zip entries with a data descriptor, Check stays
// "--------" and the sizes the trailer records stay 0. An LZW stream's
// compressed size is counted by reading it to the end either way.
func List(r io.Reader, name string) (ListEntry, error) {
	br := bufio.NewReader(r)
	method, err := peekHeader(br)
	if err != nil {
		return ListEntry{}, err
	}

	e := ListEntry{Name: name, Check: "--------"}

	switch method {
	case methodLZW:
		e.Method = "LZW"
		if _, err := io.ReadFull(br, make([]byte, 3)); err != nil {
			return e, headerErr(err)
		}
		n, cerr := countRemaining(br, r)
		if cerr != nil {
			return e, cerr
		}
		e.Compressed = n
		return e, nil

	case methodZip:
		h, err := readZipLocalHeader(br)
		if err != nil {
			return e, err
		}
		e.Method = "zip"
		e.Name = h.name
		e.ModTime = fromDOSTime(h.modTime, timeLocal)
		if h.flags&zipFlagDescriptor == 0 {
			e.Check = fmt.Sprintf("%08x", h.crc32)
			e.Compressed = h.clen
			e.Uncompressed = h.ulen
			return e, nil
		}
		// Sizes are in the trailing data descriptor; locate it the cheap
		// way when seekable.
		if seeker, ok := r.(io.ReadSeeker); ok {
			return listZipViaSeek(seeker, e)
		}
		return e, nil

	case methodDeflate:
		b, _ := br.Peek(2)
		if len(b) == 2 && b[0] == hdrGzipID1 && b[1] == hdrGzipID2 {
			h, err := readGzipHeader(br)
			if err != nil {
				return e, err
			}
			e.Method = "gzip"
			if h.Name != "" {
				e.Name = h.Name
			}
			e.ModTime = h.ModTime
			if seeker, ok := r.(io.ReadSeeker); ok {
				// Step back over br's read-ahead so the seeker's offset is
				// the end of the header.
				if _, err := seeker.Seek(-int64(br.Buffered()), io.SeekCurrent); err != nil {
					return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
				}
				return listGzipViaSeek(seeker, e)
			}
			return e, nil
		}

		if _, err := br.Discard(2); err != nil {
			return e, headerErr(err)
		}
		e.Method = "zlib"
		if seeker, ok := r.(io.ReadSeeker); ok {
			if _, err := seeker.Seek(-int64(br.Buffered()), io.SeekCurrent); err != nil {
				return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
			}
			return listZlibViaSeek(seeker, e)
		}
		return e, nil

	default:
		return e, fmt.Errorf("%w: unrecognized stream", ErrUnsupported)
	}
}

// countRemaining drains br (which may have buffered bytes ahead of the
// underlying reader's current position) and reports the total byte
// count, used for formats with no stored compressed-size field.
func countRemaining(br *bufio.Reader, underlying io.Reader) (uint64, error) {
	n, err := io.Copy(io.Discard, br)
	if err != nil {
		return 0, fmt.Errorf("%w: scanning stream: %w", errPargz, err)
	}
	return uint64(n), nil
}

// listGzipViaSeek seeks directly to the fixed 8-byte gzip trailer at the
// end of the file rather than decoding the whole stream. This assumes a
// single, non-concatenated member.
func listGzipViaSeek(r io.ReadSeeker, e ListEntry) (ListEntry, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}
	e.Compressed = uint64(end) - uint64(cur)

	if end < 8 {
		return e, nil
	}
	if _, err := r.Seek(-8, io.SeekEnd); err != nil {
		return e, fmt.Errorf("%w: seeking trailer: %w", errPargz, err)
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return e, headerErr(fmt.Errorf("reading gzip trailer: %w", err))
	}
	e.Check = fmt.Sprintf("%08x", binary.LittleEndian.Uint32(buf[0:4]))
	e.Uncompressed = uint64(binary.LittleEndian.Uint32(buf[4:8]))
	return e, nil
}

// listZlibViaSeek reads the trailing 4-byte Adler-32. Uncompressed size
// is not recorded by zlib framing, so it is left at its 0 sentinel.
func listZlibViaSeek(r io.ReadSeeker, e ListEntry) (ListEntry, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}
	e.Compressed = uint64(end) - uint64(cur)

	if end < 4 {
		return e, nil
	}
	if _, err := r.Seek(-4, io.SeekEnd); err != nil {
		return e, fmt.Errorf("%w: seeking trailer: %w", errPargz, err)
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return e, headerErr(fmt.Errorf("reading zlib trailer: %w", err))
	}
	e.Check = fmt.Sprintf("%08x", binary.BigEndian.Uint32(buf[:]))
	return e, nil
}

// listZipViaSeek reads the 16-byte data descriptor immediately preceding
// the end of the stream. This assumes no Zip64 widening, matching the
// single-stream, non-huge-file scope of the cheap listing path; a
// Zip64-sized entry falls back to reporting sizes as unknown.
func listZipViaSeek(r io.ReadSeeker, e ListEntry) (ListEntry, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return e, fmt.Errorf("%w: seeking: %w", errPargz, err)
	}

	if end-cur < 16 {
		return e, nil
	}
	if _, err := r.Seek(-16, io.SeekEnd); err != nil {
		return e, fmt.Errorf("%w: seeking descriptor: %w", errPargz, err)
	}
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return e, headerErr(fmt.Errorf("reading zip descriptor: %w", err))
	}

	off := 0
	if binary.LittleEndian.Uint32(buf[0:4]) == zipDescriptorSig {
		off = 4
	}
	crc := binary.LittleEndian.Uint32(buf[off : off+4])
	clen := binary.LittleEndian.Uint32(buf[off+4 : off+8])
	ulen := binary.LittleEndian.Uint32(buf[off+8 : off+12])

	e.Check = fmt.Sprintf("%08x", crc)
	e.Compressed = uint64(clen)
	e.Uncompressed = uint64(ulen)
	return e, nil
}

// FormatModTime renders t as a 12-character column, using the
// time-of-day when t falls within the current year and the year
// otherwise, matching the ls(1)/gzip -l convention.
func FormatModTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "------------"
	}
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}
	return t.Format("Jan _2  2006")
}

// AbbreviateName truncates name to max characters, marking truncation
// with a trailing "...". Callers pick a wider max in non-verbose mode
// and a narrower one once per-entry detail crowds the name column.
func AbbreviateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	if max <= 3 {
		return name[:max]
	}
	return name[:max-3] + "..."
}
