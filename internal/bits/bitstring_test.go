package bits

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromUint(t *testing.T) {
	tests := []struct {
		value uint64
		width int
		want  string
	}{
		{9, 8, "00001001"},
		{12, 4, "1100"},
		{0, 5, "00000"},
		{0x1F, 5, "11111"},
	}

	for _, tt := range tests {
		got, err := FromUint(tt.value, tt.width)
		if err != nil {
			t.Fatalf("FromUint(%d, %d): %v", tt.value, tt.width, err)
		}
		if got.String() != tt.want {
			t.Errorf("FromUint(%d, %d) = %s, want %s", tt.value, tt.width, got, tt.want)
		}
		if got.Bit(0) != (tt.value&1 == 1) {
			t.Errorf("bit 0 of %s is not the least significant bit", got)
		}
	}
}

func TestFromUintWidthMismatch(t *testing.T) {
	if _, err := FromUint(32, 5); !errors.Is(err, ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
	if _, err := EncodeField(1<<16, 16); !errors.Is(err, ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
}

func TestConcatFirstPartIsLeastSignificant(t *testing.T) {
	len4val12 := MustFromUint(12, 4)
	len8val9 := MustFromUint(9, 8)

	if got := Concat(len4val12, len8val9).String(); got != "000010011100" {
		t.Errorf("Concat = %s", got)
	}
	if got := Concat(len8val9, len4val12).String(); got != "110000001001" {
		t.Errorf("Concat = %s", got)
	}
	if got := Concat(len8val9, len4val12).Len(); got != 12 {
		t.Errorf("Concat length = %d, want 12", got)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	s := MustFromUint(0x601234, 24)

	p, err := s.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x60, 0x12, 0x34}, p); diff != "" {
		t.Errorf("Bytes mismatch (-want +got):\n%s", diff)
	}

	back := FromBytes(p)
	if !back.Equal(s) {
		t.Errorf("FromBytes(Bytes()) = %s, want %s", back, s)
	}
}

func TestBytesRequiresWholeBytes(t *testing.T) {
	if _, err := MustFromUint(1, 12).Bytes(); !errors.Is(err, ErrByteAlignment) {
		t.Errorf("expected ErrByteAlignment, got %v", err)
	}
}

func TestSliceAndField(t *testing.T) {
	s := MustParse("1010 1111 0000")

	hi, err := s.Field(8, 12)
	if err != nil {
		t.Fatal(err)
	}
	if hi != 0xA {
		t.Errorf("Field(8, 12) = %X, want A", hi)
	}

	if _, err := s.Slice(4, 13); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("10x1"); err == nil {
		t.Error("expected error for invalid bit")
	}
}

func TestCheckParity(t *testing.T) {
	if !CheckParity(MustParse("1100"), true) {
		t.Error("1100 has even parity")
	}
	if CheckParity(MustParse("1101"), true) {
		t.Error("1101 has odd parity")
	}
	if !CheckParity(MustParse("1101"), false) {
		t.Error("1101 has odd parity")
	}
}

func TestScaleVoltage(t *testing.T) {
	got, err := ScaleVoltage(0xFFF, 12, 0.00125, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-5.11875) > 1e-9 {
		t.Errorf("ScaleVoltage = %v, want 5.11875", got)
	}

	got, err = ScaleVoltage(0xFFF, 12, 0.00125, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.00125*(4095-2048)) > 1e-9 {
		t.Errorf("ScaleVoltage bipolar = %v", got)
	}

	if _, err := ScaleVoltage(0x1000, 12, 0.00125, 0); !errors.Is(err, ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
}
