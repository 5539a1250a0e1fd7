package ad5672

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
)

func TestFrameLayout(t *testing.T) {
	cmd, err := Frame{Opcode: 0b1111, Address: 0b1010, Data: 0b0001_0001_0001}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := bits.MustParse("1111 1010 000100010001 0000")
	if !cmd.Equal(want) {
		t.Errorf("command = %s, want %s", cmd, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, op := range []Opcode{OpWriteInput, OpUpdateDac, OpWriteInputAndDac, OpSetDcEn, OpNop} {
		for _, addr := range []uint8{0, 5, 15} {
			for _, data := range []uint16{0, 0x800, 0xFFF} {
				in := Frame{Opcode: op, Address: addr, Data: data, Fill: 0x9}
				cmd, err := in.Encode()
				if err != nil {
					t.Fatal(err)
				}
				out, err := DecodeFrame(cmd)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(in, out); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			}
		}
	}
}

func TestFrameRejectsWideData(t *testing.T) {
	if _, err := (Frame{Data: 0x1000}).Encode(); !errors.Is(err, bits.ErrWidthMismatch) {
		t.Errorf("expected ErrWidthMismatch, got %v", err)
	}
}

func TestVoltageToCode(t *testing.T) {
	tests := []struct {
		volts float64
		want  uint16
	}{
		{0, 0},
		{5, 4095},
		{5.0 * 0x800 / 0xFFF, 0x800},
		{-1, 0},
		{7.5, 4095},
		{math.NaN(), 0},
		{math.Inf(1), 4095},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		if got := VoltageToCode(tt.volts); got != tt.want {
			t.Errorf("VoltageToCode(%v) = 0x%X, want 0x%X", tt.volts, got, tt.want)
		}
	}
}

func TestWriteStagesInputRegister(t *testing.T) {
	dac := New("dac")
	if _, err := dac.Write(3, 5.0); err != nil {
		t.Fatal(err)
	}

	f, _ := DecodeFrame(dac.Next().Op.Command())
	if diff := cmp.Diff(Frame{Opcode: OpWriteInput, Address: 3, Data: 0xFFF}, f); diff != "" {
		t.Errorf("Write frame mismatch (-want +got):\n%s", diff)
	}

	if _, err := dac.Write(8, 1.0); !errors.Is(err, ErrChannel) {
		t.Errorf("expected ErrChannel, got %v", err)
	}
	if dac.Len() != 0 {
		t.Error("rejected write must not be queued")
	}
}

func TestInitializeOrder(t *testing.T) {
	dac := New("dac")
	ret := dac.Initialize()

	var words []uint64
	for dac.Len() > 0 {
		req := dac.Next()
		w, _ := req.Op.Command().Uint()
		words = append(words, w)
		req.Complete(req.Op.ParsedResponse())
	}

	want := []uint64{0x601234, 0x800001, 0x5000FF, 0x700004}
	if diff := cmp.Diff(want, words); diff != "" {
		t.Errorf("Initialize words mismatch (-want +got):\n%s", diff)
	}
	if _, err := ret.Result(); err != nil {
		t.Errorf("Initialize: %v", err)
	}
}

func TestLoadAllChannels(t *testing.T) {
	dac := New("dac")
	dac.LoadAllChannels()

	w, _ := dac.Next().Op.Command().Uint()
	if w != 0x2000FF {
		t.Errorf("LoadAllChannels = 0x%06X, want 0x2000FF", w)
	}
}

func TestIdleTickIsNop(t *testing.T) {
	w, _ := New("dac").Next().Op.Command().Uint()
	if w != 0xF00000 {
		t.Errorf("idle word = 0x%06X, want 0xF00000", w)
	}
}

func TestPreTransferInitialization(t *testing.T) {
	words := PreTransferInitialization()
	if len(words) != 2 {
		t.Fatalf("got %d words", len(words))
	}
	for i, want := range []uint64{0x601234, 0x800001} {
		if got, _ := words[i].Uint(); got != want {
			t.Errorf("word %d = 0x%06X, want 0x%06X", i, got, want)
		}
	}
}
