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
	"sync"

	"github.com/klauspost/compress/flate"
)

// slotStatus is a ring slot's lifecycle state.
type slotStatus int

const (
	slotIdle slotStatus = iota
	slotCompressing
	slotWritePending
)

// workUnit is one ring slot: a reusable input/output buffer pair and
// DEFLATE engine. Buffers and the engine are allocated lazily on first
// use.
//
// dictCopied avoids a fragile "neighbor not compressing yet" gate: the
// worker that uses this slot's input as its own source copies the
// preset dictionary it needs from the previous slot into its own dict
// buffer before doing anything else, then signals dictCopied. The
// reader only needs to wait for that signal on the *next* slot before
// it is safe to overwrite this slot's input. A freshly allocated slot
// starts with dictCopied true: there is no pending dictionary copy to
// wait for until a worker is actually dispatched onto it, at which
// point the dispatcher clears the flag before handing the slot off.
type workUnit struct {
	mu   sync.Mutex
	cond *sync.Cond

	status slotStatus

	in  []byte // capacity cfg.BlockSize
	n   int    // valid bytes in in; n < cap(in) marks the last block
	out []byte // capacity outBufSize(cfg.BlockSize)
	outN int

	check uint32 // per-block CRC-32 or Adler-32 over in[:n]
	last  bool

	fw *flate.Writer

	dict       []byte // private copy of prev slot's trailing window
	dictCopied bool
	inited     bool
}

func (s *workUnit) init(cfg Config) error {
	if s.inited {
		return nil
	}
	s.in = make([]byte, cfg.BlockSize)
	s.out = make([]byte, outBufSize(cfg.BlockSize))
	s.dict = make([]byte, 0, windowSize)
	fw, err := flate.NewWriter(nil, *cfg.Level)
	if err != nil {
		return err
	}
	s.fw = fw
	s.inited = true
	return nil
}

// waitStatusNot blocks until the slot's status is not want. Caller must
// not hold s.mu.
func (s *workUnit) waitStatusNot(want slotStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.status == want {
		s.cond.Wait()
	}
}

func (s *workUnit) waitStatus(want slotStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.status != want {
		s.cond.Wait()
	}
}

func (s *workUnit) setStatus(v slotStatus) {
	s.mu.Lock()
	s.status = v
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *workUnit) waitDictCopied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.dictCopied {
		s.cond.Wait()
	}
}

func (s *workUnit) setDictCopied(v bool) {
	s.mu.Lock()
	s.dictCopied = v
	s.cond.Broadcast()
	s.mu.Unlock()
}

// pool is a ring of N work units, indexed 0..N-1.
type pool struct {
	cfg   Config
	slots []*workUnit
}

// newPool allocates a ring of cfg.Procs idle work units. Per-slot buffers
// and DEFLATE engines are created lazily on first use.
func newPool(cfg Config) (*pool, error) {
	outSize := outBufSize(cfg.BlockSize)
	if outSize <= 0 {
		return nil, ErrConfig
	}

	p := &pool{cfg: cfg, slots: make([]*workUnit, cfg.Procs)}
	for i := range p.slots {
		s := &workUnit{dictCopied: true}
		s.cond = sync.NewCond(&s.mu)
		p.slots[i] = s
	}
	return p, nil
}

func (p *pool) next(i int) int { return (i + 1) % len(p.slots) }
func (p *pool) prev(i int) int { return (i - 1 + len(p.slots)) % len(p.slots) }

// close tears the pool down in reverse index order. Any in-flight
// workers must have already been joined by the caller.
func (p *pool) close() {
	for i := len(p.slots) - 1; i >= 0; i-- {
		s := p.slots[i]
		s.in = nil
		s.out = nil
		s.dict = nil
		s.fw = nil
		s.inited = false
	}
}
