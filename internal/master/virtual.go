// Package master contains the bus masters the scheduler can drive.
package master

import (
	"errors"
	"sync"
)

var (
	ErrNotInitialized = errors.New("bus master not initialized")
	ErrChipSelect     = errors.New("chip select not supported")
)

// TransferFunc replaces the default behaviour of Virtual.
type TransferFunc func(cs uint8, tx []byte) ([]byte, error)

// Virtual is a bus master without hardware. By default every transfer
// returns a counter that increments per transfer, big-endian in len(tx)
// bytes and wrapping at 2^(8*len(tx)).
type Virtual struct {
	mu       sync.Mutex
	init     bool
	counter  uint64
	transfer TransferFunc
	log      [][]byte
}

func NewVirtual(transfer TransferFunc) *Virtual {
	return &Virtual{transfer: transfer}
}

func (v *Virtual) Init() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.init = true
	return nil
}

func (v *Virtual) Transfer(cs uint8, tx []byte) ([]byte, error) {
	v.mu.Lock()
	if !v.init {
		v.mu.Unlock()
		return nil, ErrNotInitialized
	}
	v.log = append(v.log, append([]byte(nil), tx...))
	n := v.counter
	v.counter++
	fn := v.transfer
	v.mu.Unlock()

	if fn != nil {
		return fn(cs, tx)
	}

	rx := make([]byte, len(tx))
	for i := len(rx) - 1; i >= 0 && n > 0; i-- {
		rx[i] = byte(n)
		n >>= 8
	}
	return rx, nil
}

// Transfers returns a copy of every tx buffer seen so far.
func (v *Virtual) Transfers() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.log))
	copy(out, v.log)
	return out
}

// Count reports the number of transfers so far.
func (v *Virtual) Count() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counter
}

func (v *Virtual) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.init = false
	return nil
}
