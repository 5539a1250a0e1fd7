// Package bits implements the fixed-width bit strings exchanged with SPI
// devices and the small codec built on top of them.
//
// Bit 0 of a BitString is the least significant bit. On the wire a BitString
// is sent most significant bit first, packed big-endian into bytes.
package bits

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWidthMismatch  = errors.New("bit width mismatch")
	ErrLengthMismatch = errors.New("bit length mismatch")
	ErrByteAlignment  = errors.New("bit length is not a multiple of 8")
	ErrParity         = errors.New("parity check failed")
)

// BitString is an immutable fixed-length sequence of bits.
// The zero value is the empty bit string.
type BitString struct {
	b []byte // one entry per bit, 0 or 1
}

// New returns n zero bits.
func New(n int) BitString {
	return BitString{b: make([]byte, n)}
}

// FromUint encodes v into exactly width bits. It fails if v does not fit.
func FromUint(v uint64, width int) (BitString, error) {
	if width < 0 || width > 64 {
		return BitString{}, fmt.Errorf("%w: width %d out of range", ErrWidthMismatch, width)
	}
	if width < 64 && v>>uint(width) != 0 {
		return BitString{}, fmt.Errorf("%w: value 0x%X does not fit %d bits", ErrWidthMismatch, v, width)
	}

	out := New(width)
	for i := 0; i < width; i++ {
		out.b[i] = byte(v>>uint(i)) & 1
	}
	return out, nil
}

// MustFromUint is FromUint for constant tables. It panics on error.
func MustFromUint(v uint64, width int) BitString {
	s, err := FromUint(v, width)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse reads a bit string written most significant bit first, e.g.
// "1101 0010". Spaces and underscores are ignored.
func Parse(s string) (BitString, error) {
	s = strings.NewReplacer(" ", "", "_", "").Replace(s)

	out := New(len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			out.b[len(s)-1-i] = 1
		default:
			return BitString{}, fmt.Errorf("invalid bit %q at position %d", c, i)
		}
	}
	return out, nil
}

// MustParse is Parse for literals. It panics on error.
func MustParse(s string) BitString {
	out, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return out
}

// FromBytes decodes wire bytes (most significant bit first) into a bit string
// of length 8*len(p).
func FromBytes(p []byte) BitString {
	n := len(p) * 8
	out := New(n)
	for i := 0; i < n; i++ {
		// bit i counts from the end of the buffer
		by := p[len(p)-1-i/8]
		out.b[i] = (by >> uint(i%8)) & 1
	}
	return out
}

// Bytes encodes the bit string for the wire, most significant bit first.
func (s BitString) Bytes() ([]byte, error) {
	if len(s.b)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bits", ErrByteAlignment, len(s.b))
	}

	out := make([]byte, len(s.b)/8)
	for i, bit := range s.b {
		if bit == 1 {
			out[len(out)-1-i/8] |= 1 << uint(i%8)
		}
	}
	return out, nil
}

func (s BitString) Len() int {
	return len(s.b)
}

// Bit reports whether bit i is set. It panics if i is out of range.
func (s BitString) Bit(i int) bool {
	return s.b[i] == 1
}

// Slice returns bits [lo, hi) as a new bit string.
func (s BitString) Slice(lo, hi int) (BitString, error) {
	if lo < 0 || hi > len(s.b) || lo > hi {
		return BitString{}, fmt.Errorf("%w: slice [%d:%d] of %d bits", ErrLengthMismatch, lo, hi, len(s.b))
	}

	out := New(hi - lo)
	copy(out.b, s.b[lo:hi])
	return out, nil
}

// Uint decodes the whole bit string as an unsigned integer.
func (s BitString) Uint() (uint64, error) {
	if len(s.b) > 64 {
		return 0, fmt.Errorf("%w: %d bits do not fit uint64", ErrWidthMismatch, len(s.b))
	}

	var v uint64
	for i, bit := range s.b {
		v |= uint64(bit) << uint(i)
	}
	return v, nil
}

// Field decodes bits [lo, hi) as an unsigned integer.
func (s BitString) Field(lo, hi int) (uint64, error) {
	sub, err := s.Slice(lo, hi)
	if err != nil {
		return 0, err
	}
	return sub.Uint()
}

// Ones counts the set bits.
func (s BitString) Ones() int {
	n := 0
	for _, bit := range s.b {
		n += int(bit)
	}
	return n
}

// IsZero reports whether no bit is set.
func (s BitString) IsZero() bool {
	return s.Ones() == 0
}

func (s BitString) Equal(o BitString) bool {
	if len(s.b) != len(o.b) {
		return false
	}
	for i := range s.b {
		if s.b[i] != o.b[i] {
			return false
		}
	}
	return true
}

// String renders the bits most significant first.
func (s BitString) String() string {
	var sb strings.Builder
	sb.Grow(len(s.b))
	for i := len(s.b) - 1; i >= 0; i-- {
		sb.WriteByte('0' + s.b[i])
	}
	return sb.String()
}
