package element

import (
	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// Submit enqueues op on e and returns its typed result.
func Submit[T any](e *Element, op operation.Operation) *async.Return[T] {
	ret := async.New[T](nil)
	e.Enqueue(operation.Request{Op: op, Callback: ret.Callback()})
	return ret
}
