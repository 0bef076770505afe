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
	"errors"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// Reader implements [io.ReadCloser], decoding any of the formats
// [peekHeader] recognizes: gzip, zlib, single-entry zip, and (read-only)
// the legacy LZW .Z format. The wire format is detected automatically;
// callers do not select it.
//
// Multistream concatenation is supported for gzip and zlib: Read
// transparently continues into a following member, the way gzip(1)
// does for `zcat a.gz b.gz | zcat`-style inputs. Only the first
// member's [Header] fields are retained.
type Reader struct {
	Header

	br     *bufio.Reader
	format Format
	isLZW  bool

	fr io.ReadCloser // flate.NewReader's return, or an *LZWDecoder.

	digest      hash.Hash32
	ulen        uint64
	multistream bool

	// Async check folding: Read hands completed buffers to a background
	// goroutine that writes them into digest, so hashing overlaps with
	// the caller's next Read instead of serializing after it, the same
	// shape pgzip's Reader uses for its own digest.
	foldCh   chan []byte
	foldDone chan struct{}

	zipDescriptor bool
	zipHeader     *zipLocalHeader

	err error
}

// NewReader returns a new [Reader] reading and decoding r. Concatenated
// gzip or zlib members are decoded transparently; call [Reader.Multistream]
// to disable that.
func NewReader(r io.Reader) (*Reader, error) {
	z := &Reader{
		br:          bufio.NewReader(r),
		multistream: true,
	}
	if err := z.nextStream(true); err != nil {
		return nil, err
	}
	return z, nil
}

// Multistream controls whether gzip/zlib input may be a concatenation of
// independently framed members. Default true.
func (z *Reader) Multistream(ok bool) {
	z.multistream = ok
}

// nextStream parses the next member's header and sets up the DEFLATE (or
// LZW) source for it. save records header fields only for the very first
// member, matching the gzip convention of exposing just the first
// member's metadata.
func (z *Reader) nextStream(save bool) error {
	method, err := peekHeader(z.br)
	if err != nil {
		return err
	}

	switch method {
	case methodLZW:
		dec, err := NewLZWDecoder(z.br)
		if err != nil {
			return err
		}
		z.fr = dec
		z.isLZW = true
		z.format = FormatGzip // unused for LZW; no trailer to verify.
		return nil

	case methodZip:
		h, err := readZipLocalHeader(z.br)
		if err != nil {
			return err
		}
		if h.method == 255 {
			return fmt.Errorf("%w: encrypted zip entry", ErrUnsupported)
		}
		if h.method != zipMethodDeflate {
			return fmt.Errorf("%w: zip method %d", ErrUnsupported, h.method)
		}
		z.zipHeader = h
		z.zipDescriptor = h.flags&zipFlagDescriptor != 0
		if save {
			z.Name = h.name
			z.ModTime = fromDOSTime(h.modTime, timeLocal)
		}
		z.format = FormatZip
		z.fr = flate.NewReader(z.br)
		z.digest = crc32.NewIEEE()
		return z.startFold()

	case methodDeflate:
		b, _ := z.br.Peek(2)
		if len(b) == 2 && b[0] == hdrGzipID1 && b[1] == hdrGzipID2 {
			h, err := readGzipHeader(z.br)
			if err != nil {
				return err
			}
			if save {
				z.Name = h.Name
				z.Comment = h.Comment
				z.ModTime = h.ModTime
				z.OS = h.OS
			}
			z.format = FormatGzip
			z.digest = crc32.NewIEEE()
		} else {
			if _, err := z.br.Discard(2); err != nil {
				return headerErr(fmt.Errorf("reading zlib header: %w", err))
			}
			z.format = FormatZlib
			z.digest = adler32.New()
		}
		z.fr = flate.NewReader(z.br)
		return z.startFold()

	default:
		return fmt.Errorf("%w: unrecognized stream", ErrUnsupported)
	}
}

func (z *Reader) startFold() error {
	z.ulen = 0
	z.foldCh = make(chan []byte, 4)
	z.foldDone = make(chan struct{})
	ch, done, h := z.foldCh, z.foldDone, z.digest
	go func() {
		for b := range ch {
			h.Write(b)
		}
		close(done)
	}()
	return nil
}

// Read implements [io.Reader].
func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}

	n, err := z.fr.Read(p)
	if n > 0 {
		z.ulen += uint64(n)
		if z.foldCh != nil {
			cp := append([]byte(nil), p[:n]...)
			z.foldCh <- cp
		}
	}
	if err == nil {
		return n, nil
	}
	if err != io.EOF {
		z.err = fmt.Errorf("%w: inflating: %w", ErrCorrupt, err)
		return n, z.err
	}

	if verr := z.finishStream(); verr != nil {
		z.err = verr
		return n, z.err
	}

	if z.multistream && !z.isLZW && z.format != FormatZip {
		if _, peekErr := z.br.Peek(1); peekErr == nil {
			if serr := z.nextStream(false); serr != nil {
				if errors.Is(serr, ErrHeader) || errors.Is(serr, ErrUnsupported) {
					// Bytes after a complete member that do not start a
					// valid header are trailing junk: ignored, ending the
					// stream.
					z.err = io.EOF
					return n, io.EOF
				}
				z.err = serr
				return n, z.err
			}
			return n, nil
		}
	}

	z.err = io.EOF
	return n, io.EOF
}

// finishStream closes the current member's inflate source and verifies
// its trailer against the accumulated check and length.
func (z *Reader) finishStream() error {
	if cerr := z.fr.Close(); cerr != nil {
		return fmt.Errorf("%w: closing inflate stream: %w", errPargz, cerr)
	}

	if z.isLZW {
		return nil
	}

	if z.foldCh != nil {
		close(z.foldCh)
		<-z.foldDone
		z.foldCh = nil
	}
	sum := z.digest.Sum32()

	switch z.format {
	case FormatGzip:
		var buf [8]byte
		if _, err := io.ReadFull(z.br, buf[:]); err != nil {
			return headerErr(fmt.Errorf("reading gzip trailer: %w", err))
		}
		wantCRC := le32(buf[0:4])
		wantISize := le32(buf[4:8])
		if wantCRC != sum {
			return fmt.Errorf("%w: gzip CRC mismatch", ErrCorrupt)
		}
		if wantISize != uint32(z.ulen) {
			return fmt.Errorf("%w: gzip length mismatch", ErrCorrupt)
		}
		return nil

	case FormatZlib:
		var buf [4]byte
		if _, err := io.ReadFull(z.br, buf[:]); err != nil {
			return headerErr(fmt.Errorf("reading zlib trailer: %w", err))
		}
		want := be32(buf[:])
		if want != sum {
			return fmt.Errorf("%w: zlib Adler-32 mismatch", ErrCorrupt)
		}
		return nil

	case FormatZip:
		h := z.zipHeader
		crc, clen, ulen := h.crc32, h.clen, h.ulen
		if z.zipDescriptor {
			var err error
			crc, clen, ulen, err = readZipDataDescriptor(z.br, sum, h.zip64)
			if err != nil {
				return err
			}
		}
		_ = clen // compressed length is not independently checkable here.
		if crc != sum {
			return fmt.Errorf("%w: zip CRC mismatch", ErrCorrupt)
		}
		if ulen != z.ulen {
			return fmt.Errorf("%w: zip length mismatch", ErrCorrupt)
		}
		return nil
	}
	return nil
}

// Close implements [io.Closer].
func (z *Reader) Close() error {
	if z.fr == nil {
		return nil
	}
	return z.fr.Close()
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func be32(b []byte) uint32 {
	return uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24
}

// readGzipHeader reads the fixed 10-byte gzip header plus any optional
// extra/name/comment/header-CRC fields, verifying the header CRC when
// present.
func readGzipHeader(r *bufio.Reader) (*Header, error) {
	var buf [10]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, headerErr(fmt.Errorf("reading gzip header: %w", err))
	}
	if buf[0] != hdrGzipID1 || buf[1] != hdrGzipID2 || buf[2] != hdrDeflateCM {
		return nil, headerErr(fmt.Errorf("bad gzip magic"))
	}
	flg := buf[3]
	if flg&flgReserved != 0 {
		return nil, headerErr(fmt.Errorf("reserved flag bits set"))
	}

	hcrc := crc32.NewIEEE()
	hcrc.Write(buf[:])

	h := &Header{OS: buf[9]}
	mtime := le32(buf[4:8])
	if mtime != 0 {
		h.ModTime = fromUnixTime(mtime)
	}

	if flg&flgExtra != 0 {
		var lbuf [2]byte
		if _, err := io.ReadFull(r, lbuf[:]); err != nil {
			return nil, headerErr(fmt.Errorf("reading gzip extra length: %w", err))
		}
		hcrc.Write(lbuf[:])
		n := int(lbuf[0]) | int(lbuf[1])<<8
		extra := make([]byte, n)
		if _, err := io.ReadFull(r, extra); err != nil {
			return nil, headerErr(fmt.Errorf("reading gzip extra field: %w", err))
		}
		hcrc.Write(extra)
	}

	if flg&flgName != 0 {
		s, err := readLatin1StringCRC(r, hcrc)
		if err != nil {
			return nil, err
		}
		h.Name = s
	}

	if flg&flgComment != 0 {
		s, err := readLatin1StringCRC(r, hcrc)
		if err != nil {
			return nil, err
		}
		h.Comment = s
	}

	if flg&flgCRC != 0 {
		var lbuf [2]byte
		if _, err := io.ReadFull(r, lbuf[:]); err != nil {
			return nil, headerErr(fmt.Errorf("reading gzip header CRC: %w", err))
		}
		want := uint16(lbuf[0]) | uint16(lbuf[1])<<8
		if want != uint16(hcrc.Sum32()) {
			return nil, fmt.Errorf("%w: gzip header CRC mismatch", ErrCorrupt)
		}
	}

	return h, nil
}

// readLatin1StringCRC reads a NUL-terminated Latin-1 string, folding the
// bytes read (including the terminator) into hcrc as it goes.
func readLatin1StringCRC(r io.Reader, hcrc hash.Hash32) (string, error) {
	var runes []rune
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return "", headerErr(fmt.Errorf("reading header string: %w", err))
		}
		hcrc.Write(one)
		if one[0] == 0 {
			break
		}
		runes = append(runes, rune(one[0]))
	}
	return string(runes), nil
}
