package bits

import "fmt"

// EncodeField encodes value into a field of exactly width bits.
func EncodeField(value uint64, width int) (BitString, error) {
	return FromUint(value, width)
}

// Concat joins parts into one bit string. The first part ends up at the least
// significant end. Nothing is truncated or padded.
func Concat(parts ...BitString) BitString {
	n := 0
	for _, p := range parts {
		n += len(p.b)
	}

	out := BitString{b: make([]byte, 0, n)}
	for _, p := range parts {
		out.b = append(out.b, p.b...)
	}
	return out
}

// CheckParity reports whether the number of set bits in s is even
// (expectedEven) or odd (!expectedEven).
func CheckParity(s BitString, expectedEven bool) bool {
	return (s.Ones()%2 == 0) == expectedEven
}

// ScaleVoltage converts a converter code of fullScaleBits bits into volts:
// (code - offset) * sensitivity.
func ScaleVoltage(code uint64, fullScaleBits int, sensitivity, offset float64) (float64, error) {
	if fullScaleBits <= 0 || fullScaleBits > 63 {
		return 0, fmt.Errorf("%w: full scale of %d bits", ErrWidthMismatch, fullScaleBits)
	}
	if code >= 1<<uint(fullScaleBits) {
		return 0, fmt.Errorf("%w: code 0x%X exceeds %d bits", ErrWidthMismatch, code, fullScaleBits)
	}
	return (float64(code) - offset) * sensitivity, nil
}
