// Package element holds the per-chip request queues the bus scheduler pulls
// from, and the aggregate that clocks several chips in one transfer.
package element

import (
	"sync"

	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// Source yields the request to transfer on the next tick.
type Source interface {
	Next() operation.SingleRequest
}

// DefaultFunc builds the request sent when nothing is queued. It is called
// for every idle tick so each default request owns a fresh operation.
type DefaultFunc func() operation.SingleRequest

// Element is a FIFO of single-transfer requests for one chip.
type Element struct {
	name string
	def  DefaultFunc

	mu    sync.Mutex
	queue []operation.SingleRequest
}

func New(name string, def DefaultFunc) *Element {
	return &Element{
		name: name,
		def:  def,
	}
}

func (e *Element) Name() string {
	return e.name
}

// Enqueue appends requests in order. Sequences are expanded into their
// single transfers, which land back to back in the queue. The sequence
// callback fires once the last of them has completed.
//
// Enqueue never calls a callback while holding the queue lock, so callbacks
// may enqueue again.
func (e *Element) Enqueue(reqs ...operation.Request) {
	var immediate []func()

	e.mu.Lock()
	for _, r := range reqs {
		switch op := r.Op.(type) {
		case *operation.Single:
			e.queue = append(e.queue, operation.SingleRequest{Op: op, Callback: r.Callback})
		case *operation.Sequence:
			leaves := op.Leaves()
			st := newSequenceState(op, len(leaves), r.Callback)
			if len(leaves) == 0 {
				immediate = append(immediate, st.finish)
				continue
			}
			for _, leaf := range leaves {
				e.queue = append(e.queue, operation.SingleRequest{Op: leaf, Callback: st.leafDone})
			}
		}
	}
	e.mu.Unlock()

	for _, f := range immediate {
		f()
	}
}

// Next pops the oldest request, or returns a fresh default request when the
// queue is empty.
func (e *Element) Next() operation.SingleRequest {
	e.mu.Lock()
	if len(e.queue) > 0 {
		r := e.queue[0]
		e.queue[0] = operation.SingleRequest{}
		e.queue = e.queue[1:]
		e.mu.Unlock()
		return r
	}
	e.mu.Unlock()

	return e.def()
}

// Len reports the number of queued single transfers.
func (e *Element) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// sequenceState tracks one expanded sequence until all its transfers
// have completed.
type sequenceState struct {
	seq        *operation.Sequence
	onComplete operation.Callback

	mu      sync.Mutex
	pending int
	err     error
}

func newSequenceState(seq *operation.Sequence, pending int, cb operation.Callback) *sequenceState {
	return &sequenceState{
		seq:        seq,
		onComplete: cb,
		pending:    pending,
	}
}

func (s *sequenceState) leafDone(_ any, err error) {
	s.mu.Lock()
	if err != nil && s.err == nil {
		s.err = err
	}
	s.pending--
	last := s.pending == 0
	s.mu.Unlock()

	if last {
		s.finish()
	}
}

func (s *sequenceState) finish() {
	if s.onComplete == nil {
		return
	}

	s.mu.Lock()
	err := s.err
	s.mu.Unlock()

	if err != nil {
		s.onComplete(nil, err)
		return
	}
	s.onComplete(s.seq.ParsedResponse())
}
