package element

import (
	"fmt"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// Aggregate clocks the commands of several chips through one transfer.
// Child order is the wiring order: child 0 occupies the least significant
// bits of the combined command.
type Aggregate struct {
	name     string
	children []*Element
}

func NewAggregate(name string, children ...*Element) *Aggregate {
	return &Aggregate{
		name:     name,
		children: children,
	}
}

func (a *Aggregate) Name() string {
	return a.name
}

// Child returns the element at position i.
func (a *Aggregate) Child(i int) *Element {
	return a.children[i]
}

func (a *Aggregate) Children() []*Element {
	return a.children
}

// Next takes one request from every child and merges them. The combined
// response is split by each child's command length and delivered to the
// child requests in order.
func (a *Aggregate) Next() operation.SingleRequest {
	reqs := make([]operation.SingleRequest, len(a.children))
	cmds := make([]bits.BitString, len(a.children))
	for i, c := range a.children {
		reqs[i] = c.Next()
		cmds[i] = reqs[i].Op.Command()
	}

	op := operation.NewSingle(a.name, bits.Concat(cmds...), true, nil)
	return operation.SingleRequest{
		Op: op,
		Callback: func(result any, err error) {
			if err != nil {
				for _, r := range reqs {
					operation.Fail(r, err)
				}
				return
			}

			rsp, ok := result.(bits.BitString)
			if !ok {
				err := fmt.Errorf("%s: %w: %T", a.name, operation.ErrResponseLength, result)
				for _, r := range reqs {
					operation.Fail(r, err)
				}
				return
			}

			off := 0
			for _, r := range reqs {
				n := r.Op.Command().Len()
				part, err := rsp.Slice(off, off+n)
				off += n
				if err != nil {
					operation.Fail(r, err)
					continue
				}
				operation.Deliver(r, part)
			}
		},
	}
}
