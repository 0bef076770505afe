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
	"fmt"
	"hash/adler32"
	"hash/crc32"
	"io"
)

// pipeline runs the parallel compression data flow: a reader goroutine
// fills ring slots and dispatches one worker goroutine per slot, and a
// writer goroutine drains slots in strict index order, folding each
// block's check into the running total and finally emitting the
// trailer.
//
// Each worker copies the 32 KiB preset dictionary it needs out of the
// previous slot before doing anything else — flate.Writer.ResetDict
// copies the dictionary into its internal window synchronously, so the
// copy is complete the instant ResetDict returns — then signals
// dictCopied on its own slot. The reader only waits on status(k) and
// dictCopied(next(k)), never on the previous slot's own status. This
// avoids the reader having to wait on a neighboring slot's compression
// to finish just to know its dictionary bytes are settled.
type pipeline struct {
	cfg    Config
	pool   *pool
	header *Header

	ulen  uint64
	clen  uint64
	check uint32
}

func newPipeline(cfg Config, h *Header) (*pipeline, error) {
	p, err := newPool(cfg)
	if err != nil {
		return nil, err
	}
	// The running check starts at the check of empty input: 0 for
	// CRC-32, 1 for Adler-32.
	return &pipeline{cfg: cfg, pool: p, header: h, check: blockCheck(cfg.Format, nil)}, nil
}

// dispatch is what the writer needs to drain a slot: the slot itself and
// a channel the worker reports completion (or failure) on.
type dispatch struct {
	slot *workUnit
	done chan error
}

// run reads src to completion, compressing it in parallel, and writes
// the framed result to dst. It returns the final uncompressed length,
// compressed length, and whole-stream check.
func (pl *pipeline) run(src io.Reader, dst io.Writer) (ulen, clen uint64, check uint32, err error) {
	dispatches := make(chan dispatch, len(pl.pool.slots))
	readErrCh := make(chan error, 1)

	go pl.readLoop(src, dispatches, readErrCh)

	if err := pl.writeLoop(dst, dispatches); err != nil {
		return 0, 0, 0, err
	}
	if err := <-readErrCh; err != nil {
		return 0, 0, 0, err
	}

	return pl.ulen, pl.clen, pl.check, nil
}

// readLoop cycles slot indices 0..N-1, dispatching a worker per block
// until a short read marks the last block.
func (pl *pipeline) readLoop(src io.Reader, dispatches chan<- dispatch, errCh chan<- error) {
	defer close(dispatches)

	k := 0
	for {
		slot := pl.pool.slots[k]
		nextSlot := pl.pool.slots[pl.pool.next(k)]

		if err := slot.init(pl.cfg); err != nil {
			errCh <- err
			return
		}

		// Wait for the writer to have released this slot from its
		// previous occupant, and for the worker relying on this slot's
		// current contents as a preset dictionary to have copied them
		// out already.
		slot.waitStatusNot(slotCompressing)
		nextSlot.waitDictCopied()
		slot.waitStatus(slotIdle)

		n, rerr := io.ReadFull(src, slot.in)
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			rerr = nil
		} else if rerr != nil {
			errCh <- fmt.Errorf("%w: reading input: %w", errPargz, rerr)
			return
		}
		slot.n = n
		slot.last = n < len(slot.in)

		// A worker is about to be dispatched onto this slot; it has not
		// yet copied its dictionary from the prior occupant of slot k.
		slot.setDictCopied(false)
		slot.setStatus(slotCompressing)

		done := make(chan error, 1)
		go pl.compressSlot(slot, pl.pool.prev(k), done)
		dispatches <- dispatch{slot: slot, done: done}

		if slot.last {
			errCh <- nil
			return
		}
		k = pl.pool.next(k)
	}
}

// compressSlot is the worker goroutine body run for one dispatched slot.
func (pl *pipeline) compressSlot(slot *workUnit, prevIdx int, done chan<- error) {
	var dict []byte
	if pl.cfg.Dictionary && slot.n > 0 {
		prev := pl.pool.slots[prevIdx]
		tail := prev.in[:prev.n]
		if len(tail) > windowSize {
			tail = tail[len(tail)-windowSize:]
		}
		slot.dict = append(slot.dict[:0], tail...)
		dict = slot.dict
	}

	buf := bytes.NewBuffer(slot.out[:0])
	if len(dict) > 0 {
		slot.fw.ResetDict(buf, dict)
	} else {
		slot.fw.Reset(buf)
	}
	// The dictionary, if any, has now been copied into the engine's
	// internal window; slot prevIdx's buffer may safely be overwritten.
	slot.setDictCopied(true)

	slot.check = blockCheck(pl.cfg.Format, slot.in[:slot.n])

	if _, err := slot.fw.Write(slot.in[:slot.n]); err != nil {
		done <- fmt.Errorf("%w: compressing block: %w", errPargz, err)
		return
	}

	var err error
	if slot.last {
		err = slot.fw.Close()
	} else {
		err = slot.fw.Flush()
	}
	if err != nil {
		done <- fmt.Errorf("%w: finishing block: %w", errPargz, err)
		return
	}

	slot.out = buf.Bytes()
	slot.outN = len(slot.out)

	done <- nil
}

// writeLoop emits the header once, drains dispatched slots in order,
// accumulates totals, and emits the trailer once the last (short) block
// has been drained.
func (pl *pipeline) writeLoop(dst io.Writer, dispatches <-chan dispatch) error {
	headLen, err := writeHeader(dst, pl.cfg.Format, *pl.header, *pl.cfg.Level)
	if err != nil {
		return err
	}

	count := 0

	for d := range dispatches {
		slot := d.slot

		// Join the worker.
		if err := <-d.done; err != nil {
			return err
		}

		slot.setStatus(slotWritePending)

		if _, err := dst.Write(slot.out[:slot.outN]); err != nil {
			return fmt.Errorf("%w: writing compressed block: %w", errPargz, err)
		}

		pl.ulen += uint64(slot.n)
		pl.clen += uint64(slot.outN)
		if pl.cfg.Format.usesCRC32() {
			pl.check = CombineCRC32(pl.check, slot.check, int64(slot.n))
		} else {
			pl.check = CombineAdler32(pl.check, slot.check, int64(slot.n))
		}

		last := slot.last
		slot.setStatus(slotIdle)

		count++
		if pl.cfg.Verbosity >= 2 && count%len(pl.pool.slots) == 0 {
			fmt.Print(".")
		}

		if last {
			return writeTrailer(dst, pl.cfg.Format, *pl.header, pl.ulen, pl.clen, pl.check, headLen)
		}
	}
	return fmt.Errorf("%w: reader finished without a final block", errPargz)
}

// blockCheck computes the per-block check value for the given format
// over data.
func blockCheck(f Format, data []byte) uint32 {
	if f.usesCRC32() {
		return crc32.ChecksumIEEE(data)
	}
	return adler32.Checksum(data)
}
