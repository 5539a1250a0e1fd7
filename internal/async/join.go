package async

import "sync"

// Join completes once every callback handed out by Add has fired and Seal has
// been called. The first error reported wins.
type Join struct {
	mu      sync.Mutex
	pending int
	sealed  bool
	fired   bool
	err     error
	onDone  func(error)
}

func NewJoin(onDone func(error)) *Join {
	return &Join{onDone: onDone}
}

// Add registers one more expected completion.
func (j *Join) Add() func(any, error) {
	j.mu.Lock()
	j.pending++
	j.mu.Unlock()

	var once sync.Once
	return func(_ any, err error) {
		once.Do(func() { j.done(err) })
	}
}

// Seal marks that no more callbacks will be added.
func (j *Join) Seal() {
	j.mu.Lock()
	j.sealed = true
	j.mu.Unlock()
	j.maybeFire()
}

func (j *Join) done(err error) {
	j.mu.Lock()
	j.pending--
	if err != nil && j.err == nil {
		j.err = err
	}
	j.mu.Unlock()
	j.maybeFire()
}

func (j *Join) maybeFire() {
	j.mu.Lock()
	if j.fired || !j.sealed || j.pending > 0 {
		j.mu.Unlock()
		return
	}
	j.fired = true
	err := j.err
	j.mu.Unlock()

	if j.onDone != nil {
		j.onDone(err)
	}
}
