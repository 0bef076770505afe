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
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Local file header signature bytes, PKZIP APPNOTE.TXT §4.3.7.
const (
	zipLocalSig0 = 'P'
	zipLocalSig1 = 'K'
	zipLocalSig2 = 0x03
	zipLocalSig3 = 0x04
)

const (
	zipLocalSig      uint32 = 0x04034b50
	zipCentralSig    uint32 = 0x02014b50
	zipEOCDSig       uint32 = 0x06054b50
	zipDescriptorSig uint32 = 0x08074b50

	zipVersionNeeded uint16 = 20
	zipVersionMade   uint16 = 63 // version made-by recorded in the central directory: APPNOTE 6.3, host byte 0 (MS-DOS).
	zipMethodDeflate uint16 = 8

	zipFlagDescriptor uint16 = 0x0008

	// Extra field sub-field IDs, per PKZIP APPNOTE.TXT §4.5.2 and the
	// Info-ZIP extensions.
	extraZip64       uint16 = 0x0001
	extraPKWareUnix  uint16 = 0x000d
	extraInfoZipUnix uint16 = 0x5855
	extraExtTime     uint16 = 0x5455
)

// zipLocalHeader holds the fields captured (or promised) in a single-entry
// zip local file header.
type zipLocalHeader struct {
	flags   uint16
	method  uint16
	modTime uint32
	crc32   uint32
	clen    uint64
	ulen    uint64
	name    string
	zip64   bool
}

// writeZipLocalHeader writes the 30-byte local header plus name and the
// "UT" extended-timestamp extra field, using a data descriptor to defer
// sizes and check until after the entry's data has been written. It
// returns the number of bytes written.
func writeZipLocalHeader(w io.Writer, name string, modTime time.Time) (int, error) {
	if name == "" {
		name = "-"
	}
	dt := dosTime(modTime)

	// UT extra field: SI1='U', SI2='T', LEN=5, flags=0x01 (mtime present),
	// 4-byte unix mtime.
	extra := make([]byte, 9)
	extra[0], extra[1] = 'U', 'T'
	binary.LittleEndian.PutUint16(extra[2:4], 5)
	extra[4] = 0x01
	var unixTime uint32
	if !modTime.IsZero() {
		unixTime = uint32(modTime.Unix())
	}
	binary.LittleEndian.PutUint32(extra[5:9], unixTime)

	buf := make([]byte, 30)
	binary.LittleEndian.PutUint32(buf[0:4], zipLocalSig)
	binary.LittleEndian.PutUint16(buf[4:6], zipVersionNeeded)
	binary.LittleEndian.PutUint16(buf[6:8], zipFlagDescriptor)
	binary.LittleEndian.PutUint16(buf[8:10], zipMethodDeflate)
	binary.LittleEndian.PutUint32(buf[10:14], dt)
	// CRC, compressed size, uncompressed size: all zero, promised in the
	// data descriptor.
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(extra)))

	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("%w: writing zip local header: %w", errPargz, err)
	}
	nn, err := io.WriteString(w, name)
	n += nn
	if err != nil {
		return n, fmt.Errorf("%w: writing zip entry name: %w", errPargz, err)
	}
	nn, err = w.Write(extra)
	n += nn
	if err != nil {
		return n, fmt.Errorf("%w: writing zip extra field: %w", errPargz, err)
	}
	return n, nil
}

// writeZipDataDescriptor writes the 12-byte data descriptor (CRC-32,
// compressed size, uncompressed size; the optional signature is
// omitted) that follows entry data when [zipFlagDescriptor] is set.
func writeZipDataDescriptor(w io.Writer, crc uint32, clen, ulen uint64) error {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], crc)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(clen))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(ulen))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: writing zip data descriptor: %w", errPargz, err)
	}
	return nil
}

// writeZipTrailer writes the central directory entry and end-of-central-
// directory record for the single entry.
func writeZipTrailer(w io.Writer, name string, modTime time.Time, crc uint32, clen, ulen uint64, headLen int) error {
	if name == "" {
		name = "-"
	}
	dt := dosTime(modTime)
	centralOffset := uint32(headLen) + uint32(clen) + 12

	buf := make([]byte, 46)
	binary.LittleEndian.PutUint32(buf[0:4], zipCentralSig)
	binary.LittleEndian.PutUint16(buf[4:6], zipVersionMade)
	binary.LittleEndian.PutUint16(buf[6:8], zipVersionNeeded)
	binary.LittleEndian.PutUint16(buf[8:10], zipFlagDescriptor)
	binary.LittleEndian.PutUint16(buf[10:12], zipMethodDeflate)
	binary.LittleEndian.PutUint32(buf[12:16], dt)
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(clen))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(ulen))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(name)))
	// extra length, comment length, disk number, internal/external attrs: 0.
	binary.LittleEndian.PutUint32(buf[42:46], 0) // local header offset = 0.

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: writing zip central directory entry: %w", errPargz, err)
	}
	if _, err := io.WriteString(w, name); err != nil {
		return fmt.Errorf("%w: writing zip central directory name: %w", errPargz, err)
	}
	centralSize := uint32(46 + len(name))

	eocd := make([]byte, 22)
	binary.LittleEndian.PutUint32(eocd[0:4], zipEOCDSig)
	binary.LittleEndian.PutUint16(eocd[4:6], 0) // disk number
	binary.LittleEndian.PutUint16(eocd[6:8], 0) // disk with central dir
	binary.LittleEndian.PutUint16(eocd[8:10], 1)
	binary.LittleEndian.PutUint16(eocd[10:12], 1)
	binary.LittleEndian.PutUint32(eocd[12:16], centralSize)
	binary.LittleEndian.PutUint32(eocd[16:20], centralOffset)
	// comment length: 0.
	if _, err := w.Write(eocd); err != nil {
		return fmt.Errorf("%w: writing zip EOCD: %w", errPargz, err)
	}
	return nil
}

// readZipLocalHeader parses a single-entry zip local header, including
// the Zip64, PKWare-Unix, Info-ZIP-Unix, and Extended-Timestamp
// extra-field sub-fields. An encrypted-flag bit forces method=255,
// signaled through [ErrUnsupported].
func readZipLocalHeader(r io.Reader) (*zipLocalHeader, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, headerErr(fmt.Errorf("zip local header signature: %w", err))
	}
	if binary.LittleEndian.Uint32(sig[:]) != zipLocalSig {
		return nil, headerErr(fmt.Errorf("bad zip local header signature"))
	}

	buf := make([]byte, 26)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, headerErr(fmt.Errorf("zip local header: %w", err))
	}

	flags := binary.LittleEndian.Uint16(buf[2:4])
	method := binary.LittleEndian.Uint16(buf[4:6])
	modTime := binary.LittleEndian.Uint32(buf[6:10])
	crc := binary.LittleEndian.Uint32(buf[10:14])
	clen := uint64(binary.LittleEndian.Uint32(buf[14:18]))
	ulen := uint64(binary.LittleEndian.Uint32(buf[18:22]))
	nameLen := binary.LittleEndian.Uint16(buf[22:24])
	extraLen := binary.LittleEndian.Uint16(buf[24:26])

	if flags > 0x000f {
		return nil, headerErr(fmt.Errorf("unsupported zip flags %#04x", flags))
	}

	const encryptedFlag = 0x0001
	if flags&encryptedFlag != 0 {
		method = 255
	}

	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, headerErr(fmt.Errorf("zip entry name: %w", err))
	}

	extraBuf := make([]byte, extraLen)
	if _, err := io.ReadFull(r, extraBuf); err != nil {
		return nil, headerErr(fmt.Errorf("zip extra field: %w", err))
	}

	h := &zipLocalHeader{
		flags:   flags,
		method:  method,
		modTime: modTime,
		crc32:   crc,
		clen:    clen,
		ulen:    ulen,
		name:    string(nameBuf),
	}

	for i := 0; i+4 <= len(extraBuf); {
		id := binary.LittleEndian.Uint16(extraBuf[i : i+2])
		size := binary.LittleEndian.Uint16(extraBuf[i+2 : i+4])
		i += 4
		if i+int(size) > len(extraBuf) {
			break
		}
		data := extraBuf[i : i+int(size)]
		i += int(size)

		switch id {
		case extraZip64:
			h.zip64 = true
			off := 0
			if h.ulen == 0xffffffff && off+8 <= len(data) {
				h.ulen = binary.LittleEndian.Uint64(data[off : off+8])
				off += 8
			}
			if h.clen == 0xffffffff && off+8 <= len(data) {
				h.clen = binary.LittleEndian.Uint64(data[off : off+8])
				off += 8
			}
		case extraPKWareUnix, extraInfoZipUnix, extraExtTime:
			// Recognized but not otherwise interpreted.
		}
	}

	return h, nil
}

// descriptorLooksLikeInfoZip distinguishes an Info-ZIP data descriptor
// (no signature, CRC first) from a PKWare one (4-byte signature, then
// CRC): if the first 32-bit field does not equal the observed CRC, it
// is read as a signature and discarded. On an accidental match (e.g.
// very short or synthetic inputs) this chooses the Info-ZIP
// interpretation.
func descriptorLooksLikeInfoZip(first uint32, observedCRC uint32) bool {
	return first == observedCRC
}

// readZipDataDescriptor reads the (optionally signed) data descriptor
// fields. zip64 selects the 8-byte size field layout recorded in the
// local header's Zip64 extra field; the caller is expected to pass the
// zip64 flag as possibly upgraded by that extra field, not just the
// local header's own size sentinels.
func readZipDataDescriptor(r io.Reader, observedCRC uint32, zip64 bool) (crc uint32, clen, ulen uint64, err error) {
	var buf [4]byte
	if _, err = io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, 0, headerErr(fmt.Errorf("zip data descriptor: %w", err))
	}
	first := binary.LittleEndian.Uint32(buf[:])

	if !descriptorLooksLikeInfoZip(first, observedCRC) {
		// first was the optional signature; read the real CRC next.
		if _, err = io.ReadFull(r, buf[:]); err != nil {
			return 0, 0, 0, headerErr(fmt.Errorf("zip data descriptor: %w", err))
		}
		crc = binary.LittleEndian.Uint32(buf[:])
	} else {
		crc = first
	}

	if zip64 {
		var sizes [16]byte
		if _, err = io.ReadFull(r, sizes[:]); err != nil {
			return 0, 0, 0, headerErr(fmt.Errorf("zip64 data descriptor: %w", err))
		}
		clen = binary.LittleEndian.Uint64(sizes[0:8])
		ulen = binary.LittleEndian.Uint64(sizes[8:16])
		return crc, clen, ulen, nil
	}

	var sizes [8]byte
	if _, err = io.ReadFull(r, sizes[:]); err != nil {
		return 0, 0, 0, headerErr(fmt.Errorf("zip data descriptor: %w", err))
	}
	clen = uint64(binary.LittleEndian.Uint32(sizes[0:4]))
	ulen = uint64(binary.LittleEndian.Uint32(sizes[4:8]))
	return crc, clen, ulen, nil
}
