// Package operation models the units of work sent to an SPI device: single
// bus transfers and ordered sequences of them.
package operation

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
)

var (
	ErrNoResponse     = errors.New("operation has no response yet")
	ErrResponseLength = errors.New("response length differs from command length")
	ErrResponseCount  = errors.New("unexpected number of responses")
	ErrResponseSet    = errors.New("response already set")
)

// Operation is either a *Single or a *Sequence.
type Operation interface {
	Name() string
	operation()
}

// ParseFunc turns the raw response of a single transfer into a typed value.
type ParseFunc func(bits.BitString) (any, error)

// ValidateFunc reduces the parsed responses of a sequence's children into
// the sequence result.
type ValidateFunc func([]any) (any, error)

// Single is one bus transfer.
type Single struct {
	name             string
	command          bits.BitString
	responseRequired bool
	parse            ParseFunc

	response *bits.BitString
}

// NewSingle builds a transfer. With parse == nil and responseRequired set,
// the parsed response is the raw response bit string.
func NewSingle(name string, command bits.BitString, responseRequired bool, parse ParseFunc) *Single {
	return &Single{
		name:             name,
		command:          command,
		responseRequired: responseRequired,
		parse:            parse,
	}
}

func (s *Single) operation() {}

func (s *Single) Name() string { return s.name }

func (s *Single) Command() bits.BitString { return s.command }

func (s *Single) ResponseRequired() bool { return s.responseRequired }

// Response returns the attached response, if any.
func (s *Single) Response() (bits.BitString, bool) {
	if s.response == nil {
		return bits.BitString{}, false
	}
	return *s.response, true
}

// SetResponse attaches the bits clocked in while the command was sent.
// It may be called once.
func (s *Single) SetResponse(rsp bits.BitString) error {
	if s.response != nil {
		return fmt.Errorf("%s: %w", s.name, ErrResponseSet)
	}
	if rsp.Len() != s.command.Len() {
		return fmt.Errorf("%s: %w: got %d bits, want %d", s.name, ErrResponseLength, rsp.Len(), s.command.Len())
	}
	s.response = &rsp
	return nil
}

// ParsedResponse runs the parser over the attached response. Operations
// that do not require a response yield nil.
func (s *Single) ParsedResponse() (any, error) {
	if !s.responseRequired {
		return nil, nil
	}
	if s.response == nil {
		return nil, fmt.Errorf("%s: %w", s.name, ErrNoResponse)
	}
	if s.parse == nil {
		return *s.response, nil
	}

	v, err := s.parse(*s.response)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return v, nil
}

// Sequence is an ordered list of operations executed one per tick on the
// same channel.
type Sequence struct {
	name     string
	children []Operation
	validate ValidateFunc
}

func NewSequence(name string, validate ValidateFunc, children ...Operation) *Sequence {
	return &Sequence{
		name:     name,
		children: children,
		validate: validate,
	}
}

func (s *Sequence) operation() {}

func (s *Sequence) Name() string { return s.name }

func (s *Sequence) Children() []Operation { return s.children }

// Leaves returns the single transfers of the sequence in execution order,
// descending into nested sequences.
func (s *Sequence) Leaves() []*Single {
	var out []*Single
	for _, c := range s.children {
		switch op := c.(type) {
		case *Single:
			out = append(out, op)
		case *Sequence:
			out = append(out, op.Leaves()...)
		}
	}
	return out
}

// ParsedResponse collects the parsed response of every child and hands the
// list to the validator. Without a validator the list itself is returned.
func (s *Sequence) ParsedResponse() (any, error) {
	results := make([]any, 0, len(s.children))
	for _, c := range s.children {
		var (
			v   any
			err error
		)
		switch op := c.(type) {
		case *Single:
			v, err = op.ParsedResponse()
		case *Sequence:
			v, err = op.ParsedResponse()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		results = append(results, v)
	}

	if s.validate == nil {
		return results, nil
	}
	v, err := s.validate(results)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return v, nil
}

// ExpectCount fails with ErrResponseCount unless len(results) == n.
func ExpectCount(results []any, n int) error {
	if len(results) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrResponseCount, len(results), n)
	}
	return nil
}
