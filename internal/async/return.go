// Package async provides single-assignment results for operations that
// complete on a scheduler goroutine.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFinished = errors.New("result not available yet")
	ErrResultType  = errors.New("unexpected result type")
)

// Return is a single-assignment future. The first Complete wins; later
// completions are dropped.
type Return[T any] struct {
	once   sync.Once
	done   chan struct{}
	value  T
	err    error
	onDone func(T, error)
}

// New creates a Return. onDone, if set, is called once with the result on
// the completing goroutine.
func New[T any](onDone func(T, error)) *Return[T] {
	return &Return[T]{
		done:   make(chan struct{}),
		onDone: onDone,
	}
}

// Complete stores the result and releases waiters. It reports whether this
// call was the one that completed the Return.
func (r *Return[T]) Complete(v T, err error) bool {
	first := false
	r.once.Do(func() {
		first = true
		r.value, r.err = v, err
		close(r.done)
	})
	if first && r.onDone != nil {
		r.onDone(v, err)
	}
	return first
}

// Callback adapts the Return to an untyped completion callback. A result of
// the wrong type completes the Return with ErrResultType.
func (r *Return[T]) Callback() func(any, error) {
	return func(result any, err error) {
		var zero T
		if err != nil {
			r.Complete(zero, err)
			return
		}
		if result == nil {
			r.Complete(zero, nil)
			return
		}
		v, ok := result.(T)
		if !ok {
			r.Complete(zero, fmt.Errorf("%w: got %T, want %T", ErrResultType, result, zero))
			return
		}
		r.Complete(v, nil)
	}
}

// Wait blocks until the Return completes.
func (r *Return[T]) Wait() (T, error) {
	<-r.done
	return r.value, r.err
}

// WaitContext blocks until the Return completes or ctx is done.
func (r *Return[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the Return completes.
func (r *Return[T]) Done() <-chan struct{} {
	return r.done
}

func (r *Return[T]) IsFinished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the stored result without blocking.
func (r *Return[T]) Result() (T, error) {
	if !r.IsFinished() {
		var zero T
		return zero, ErrNotFinished
	}
	return r.value, r.err
}
