package operation

import "github.com/KevinKickass/OpenSpiCore/internal/bits"

// Callback receives the parsed response of a request, or the error that
// prevented it. It is called at most once per request.
type Callback func(result any, err error)

// Request pairs an operation with its completion callback.
type Request struct {
	Op       Operation
	Callback Callback
}

// SingleRequest is what a queue holds and what the scheduler executes.
type SingleRequest struct {
	Op       *Single
	Callback Callback
}

func (r SingleRequest) Complete(result any, err error) {
	if r.Callback != nil {
		r.Callback(result, err)
	}
}

// Deliver attaches rsp to the request's operation, parses it and invokes the
// callback with the outcome.
func Deliver(r SingleRequest, rsp bits.BitString) {
	if err := r.Op.SetResponse(rsp); err != nil {
		r.Complete(nil, err)
		return
	}
	r.Complete(r.Op.ParsedResponse())
}

// Fail completes the request with err.
func Fail(r SingleRequest, err error) {
	r.Complete(nil, err)
}
