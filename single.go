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

	"github.com/klauspost/compress/flate"
)

// singleCompressor is the non-threaded path, selected when
// [Config.Procs] is 1: there is no ring to fill, so blocks are
// deflated straight through on the caller's own goroutine.
//
// Framing still follows the block boundaries of [Config.BlockSize] so
// that the header and the whole-stream check of a Procs-1 run match
// those of a parallel run; the DEFLATE bytes between them differ,
// since the flush mode used between blocks differs: there is no ring
// neighbor waiting on a dictionary.
type singleCompressor struct {
	cfg    Config
	header *Header
	dst    io.Writer
	fw     *flate.Writer

	headLen int

	buf     []byte
	bufN    int
	headSet bool

	check uint32
	ulen  uint64
	clen  uint64

	countDst *countingWriter
}

// countingWriter tracks the number of bytes written through it, used to
// learn each flushed block's compressed length.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

func newSingleCompressor(w io.Writer, h *Header, cfg Config) (*singleCompressor, error) {
	cw := &countingWriter{w: w}
	fw, err := flate.NewWriter(cw, *cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: creating deflate writer: %w", errPargz, err)
	}
	return &singleCompressor{
		cfg:      cfg,
		header:   h,
		dst:      w,
		fw:       fw,
		buf:      make([]byte, cfg.BlockSize),
		check:    blockCheck(cfg.Format, nil), // 0 for CRC-32, 1 for Adler-32
		countDst: cw,
	}, nil
}

// Write buffers p in [Config.BlockSize] chunks, flushing a full block to
// the DEFLATE engine each time the buffer fills.
func (s *singleCompressor) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		n := copy(s.buf[s.bufN:], p)
		s.bufN += n
		p = p[n:]

		if s.bufN == len(s.buf) {
			if err := s.flushBlock(false); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// flushBlock deflates the buffered bytes as one block and resets the
// buffer. last marks the final block of the stream, selecting Close
// over Flush so the DEFLATE engine emits its final-block bit.
func (s *singleCompressor) flushBlock(last bool) error {
	if err := s.ensureHeader(); err != nil {
		return err
	}

	block := s.buf[:s.bufN]

	blockCheckVal := blockCheck(s.cfg.Format, block)
	if s.cfg.Format.usesCRC32() {
		s.check = CombineCRC32(s.check, blockCheckVal, int64(len(block)))
	} else {
		s.check = CombineAdler32(s.check, blockCheckVal, int64(len(block)))
	}
	s.ulen += uint64(len(block))

	if len(block) > 0 {
		if _, err := s.fw.Write(block); err != nil {
			return fmt.Errorf("%w: compressing block: %w", errPargz, err)
		}
	}

	var err error
	switch {
	case last:
		err = s.fw.Close()
	case s.cfg.Dictionary:
		err = nil // no-flush: let the engine carry state across the boundary.
	default:
		err = s.fw.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: finishing block: %w", errPargz, err)
	}

	s.bufN = 0
	return nil
}

func (s *singleCompressor) ensureHeader() error {
	if s.headSet {
		return nil
	}
	headLen, err := writeHeader(s.dst, s.cfg.Format, *s.header, *s.cfg.Level)
	if err != nil {
		return err
	}
	s.headLen = headLen
	s.headSet = true
	return nil
}

// Close flushes any partially filled final block and writes the
// trailer.
func (s *singleCompressor) Close() error {
	if err := s.flushBlock(true); err != nil {
		return err
	}

	s.clen = s.countDst.n

	return writeTrailer(s.dst, s.cfg.Format, *s.header, s.ulen, s.clen, s.check, s.headLen)
}
