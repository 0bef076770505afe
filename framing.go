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

import "io"

// writeHeader emits the format header exactly once, before any
// compressed data, and returns its length.
func writeHeader(w io.Writer, format Format, h Header, level int) (int, error) {
	switch format {
	case FormatGzip:
		return writeGzipHeader(w, h, level, true)
	case FormatZlib:
		return writeZlibHeader(w, level)
	case FormatZip, FormatZipDescriptor:
		return writeZipLocalHeader(w, h.Name, h.ModTime)
	default:
		return 0, ErrUnsupported
	}
}

// writeTrailer emits the format trailer once all data has been written.
func writeTrailer(w io.Writer, format Format, h Header, ulen, clen uint64, check uint32, headLen int) error {
	switch format {
	case FormatGzip:
		return writeGzipTrailer(w, check, ulen)
	case FormatZlib:
		return writeZlibTrailer(w, check)
	case FormatZip, FormatZipDescriptor:
		if err := writeZipDataDescriptor(w, check, clen, ulen); err != nil {
			return err
		}
		return writeZipTrailer(w, h.Name, h.ModTime, check, clen, ulen, headLen)
	default:
		return ErrUnsupported
	}
}
