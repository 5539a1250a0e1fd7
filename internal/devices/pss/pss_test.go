package pss

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// board answers the combined transfer of a PSS without pipeline delay.
type board struct {
	dacFrames []ad5672.Frame
	adcRegs   [2]map[uint16]uint16
	samples   [2]ads866x.Sample
}

func newBoard() *board {
	return &board{adcRegs: [2]map[uint16]uint16{{}, {}}}
}

func (b *board) adcResponse(t *testing.T, i int, cmd bits.BitString) bits.BitString {
	t.Helper()

	f, err := ads866x.DecodeFrame(cmd)
	if err != nil {
		t.Fatal(err)
	}
	switch f.Opcode {
	case ads866x.OpWriteHword:
		b.adcRegs[i][f.Address] = f.Data
	case ads866x.OpSetHword:
		b.adcRegs[i][f.Address] |= f.Data
	case ads866x.OpClearHword:
		b.adcRegs[i][f.Address] &^= f.Data
	case ads866x.OpReadHword:
		return bits.MustFromUint(uint64(b.adcRegs[i][f.Address])<<16, 32)
	}

	rsp, err := ads866x.EncodeSample(b.samples[i])
	if err != nil {
		t.Fatal(err)
	}
	return rsp
}

func (b *board) tick(t *testing.T, p *PSS) {
	t.Helper()

	req := p.Next()
	cmd := req.Op.Command()
	dacCmd, _ := cmd.Slice(0, 24)
	currCmd, _ := cmd.Slice(24, 56)
	voltCmd, _ := cmd.Slice(56, 88)

	f, _ := ad5672.DecodeFrame(dacCmd)
	if f.Opcode != ad5672.OpNop {
		b.dacFrames = append(b.dacFrames, f)
	}

	rsp := bits.Concat(bits.New(24), b.adcResponse(t, 0, currCmd), b.adcResponse(t, 1, voltCmd))
	operation.Deliver(req, rsp)
}

func (b *board) drain(t *testing.T, p *PSS) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if p.DAC().Len() == 0 && p.CurrentADC().Len() == 0 && p.VoltageADC().Len() == 0 {
			return
		}
		b.tick(t, p)
	}
	t.Fatal("queues did not drain")
}

func TestCombinedCommandLength(t *testing.T) {
	p := New("pss")
	if got := p.Next().Op.Command().Len(); got != 24+32+32 {
		t.Errorf("combined command = %d bits, want 88", got)
	}
}

func TestWriteConfigVoltageTracking(t *testing.T) {
	p := New("pss")
	b := newBoard()

	ret, err := p.WriteConfig(Config{
		TrackingMode:      TrackVoltage,
		TargetVoltage:     Float(3.6),
		UpperCurrentLimit: Float(1.6),
		LowerCurrentLimit: Float(0.05),
	})
	if err != nil {
		t.Fatal(err)
	}
	b.drain(t, p)

	want := []ad5672.Frame{
		{Opcode: ad5672.OpWriteInput, Address: chRefSelect, Data: ad5672.VoltageToCode(0)},
		{Opcode: ad5672.OpWriteInput, Address: chTargetVoltage, Data: ad5672.VoltageToCode(3.6)},
		{Opcode: ad5672.OpWriteInput, Address: chUpperCurrentLimit, Data: ad5672.VoltageToCode((1.6 + 25) * 0.1)},
		{Opcode: ad5672.OpWriteInput, Address: chLowerCurrentLimit, Data: ad5672.VoltageToCode((0.05 + 25) * 0.1)},
		{Opcode: ad5672.OpUpdateDac, Data: 0xF, Fill: 0xF},
	}
	if diff := cmp.Diff(want, b.dacFrames); diff != "" {
		t.Errorf("DAC frames mismatch (-want +got):\n%s", diff)
	}
	if _, err := ret.Result(); err != nil {
		t.Errorf("WriteConfig: %v", err)
	}
}

func TestWriteConfigCurrentTracking(t *testing.T) {
	p := New("pss")
	b := newBoard()

	_, err := p.WriteConfig(Config{
		TrackingMode:      TrackCurrent,
		TargetCurrent:     Float(-30),
		UpperVoltageLimit: Float(4.2),
		LowerVoltageLimit: Float(0),
	})
	if err != nil {
		t.Fatal(err)
	}
	b.drain(t, p)

	if len(b.dacFrames) != 5 {
		t.Fatalf("got %d DAC frames, want 5", len(b.dacFrames))
	}
	if b.dacFrames[0].Data != 0xFFF {
		t.Errorf("refselect code = 0x%X, want 0xFFF", b.dacFrames[0].Data)
	}
	// clamped to -20 A
	if b.dacFrames[1].Data != ad5672.VoltageToCode(0.5) {
		t.Errorf("target current code = 0x%X", b.dacFrames[1].Data)
	}
}

func TestWriteConfigRejectsBeforeEnqueue(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no tracking mode", Config{TargetVoltage: Float(1)}},
		{"voltage without target", Config{TrackingMode: TrackVoltage}},
		{"voltage without limits", Config{TrackingMode: TrackVoltage, TargetVoltage: Float(1), UpperCurrentLimit: Float(1)}},
		{"current without target", Config{TrackingMode: TrackCurrent, UpperVoltageLimit: Float(5), LowerVoltageLimit: Float(0)}},
		{"inverted current limits", Config{
			TrackingMode:      TrackVoltage,
			TargetVoltage:     Float(3.6),
			UpperCurrentLimit: Float(-1),
			LowerCurrentLimit: Float(1),
		}},
		{"inverted voltage limits", Config{
			TrackingMode:      TrackCurrent,
			TargetCurrent:     Float(1),
			UpperVoltageLimit: Float(1),
			LowerVoltageLimit: Float(2),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("pss")
			if _, err := p.WriteConfig(tt.cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
			if n := p.DAC().Len(); n != 0 {
				t.Errorf("%d transfers queued after rejected config", n)
			}
		})
	}
}

func TestOutputConnect(t *testing.T) {
	p := New("pss")
	b := newBoard()

	if _, err := p.OutputConnect(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.OutputDisconnect(); err != nil {
		t.Fatal(err)
	}
	b.drain(t, p)

	want := []ad5672.Frame{
		{Opcode: ad5672.OpWriteInputAndDac, Address: chOutput, Data: 0xFFF},
		{Opcode: ad5672.OpWriteInputAndDac, Address: chOutput, Data: 0},
	}
	if diff := cmp.Diff(want, b.dacFrames); diff != "" {
		t.Errorf("DAC frames mismatch (-want +got):\n%s", diff)
	}
}

func TestReadOutput(t *testing.T) {
	p := New("pss")
	b := newBoard()
	b.samples[0] = ads866x.Sample{Code: 0x800, Range: ads866x.Unipolar5V12}
	b.samples[1] = ads866x.Sample{Code: 0x400, Range: ads866x.Unipolar5V12}

	ret := p.ReadOutput()
	b.tick(t, p)

	out, err := ret.Result()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out.Voltage-1.28) > 1e-9 {
		t.Errorf("voltage = %v, want 1.28", out.Voltage)
	}
	if math.Abs(out.Current-0.6) > 1e-9 {
		t.Errorf("current = %v, want 0.6", out.Current)
	}
}

func TestReadOutputParityError(t *testing.T) {
	p := New("pss")
	ret := p.ReadOutput()

	req := p.Next()
	rsp := bits.Concat(bits.New(24), bits.MustFromUint(1<<20, 32), bits.New(32))
	operation.Deliver(req, rsp)

	if _, err := ret.Result(); !errors.Is(err, bits.ErrParity) {
		t.Errorf("expected ErrParity, got %v", err)
	}
}

func TestInitialize(t *testing.T) {
	p := New("pss")
	b := newBoard()

	ret, err := p.Initialize()
	if err != nil {
		t.Fatal(err)
	}
	b.drain(t, p)

	ok, err := ret.Result()
	if err != nil || !ok {
		t.Fatalf("Initialize = %v, %v", ok, err)
	}

	// chip init, disconnect, refselect + 6 set points, load
	want := []ad5672.Frame{
		{Opcode: ad5672.OpSoftwareReset, Data: 0x123, Fill: 0x4},
		{Opcode: ad5672.OpSetDcEn, Fill: 0x1},
		{Opcode: ad5672.OpWriteLdacMask, Data: 0xF, Fill: 0xF},
		{Opcode: ad5672.OpInternalRef, Fill: 0x4},
		{Opcode: ad5672.OpWriteInputAndDac, Address: chOutput, Data: 0},
		{Opcode: ad5672.OpWriteInput, Address: chRefSelect, Data: ad5672.VoltageToCode(0)},
		{Opcode: ad5672.OpWriteInput, Address: chTargetVoltage, Data: ad5672.VoltageToCode(0)},
		{Opcode: ad5672.OpWriteInput, Address: chTargetCurrent, Data: ad5672.VoltageToCode(25 * 0.1)},
		{Opcode: ad5672.OpWriteInput, Address: chUpperVoltageLimit, Data: ad5672.VoltageToCode(5)},
		{Opcode: ad5672.OpWriteInput, Address: chLowerVoltageLimit, Data: ad5672.VoltageToCode(0)},
		{Opcode: ad5672.OpWriteInput, Address: chUpperCurrentLimit, Data: ad5672.VoltageToCode(45 * 0.1)},
		{Opcode: ad5672.OpWriteInput, Address: chLowerCurrentLimit, Data: ad5672.VoltageToCode(5 * 0.1)},
		{Opcode: ad5672.OpUpdateDac, Data: 0xF, Fill: 0xF},
	}
	if diff := cmp.Diff(want, b.dacFrames); diff != "" {
		t.Errorf("DAC frames mismatch (-want +got):\n%s", diff)
	}
	for i, regs := range b.adcRegs {
		if regs[0x0C]&0x1000 == 0 {
			t.Errorf("adc %d: GPO not set", i)
		}
		if regs[0x14] != uint16(ads866x.Unipolar5V12) {
			t.Errorf("adc %d: RANGE_SEL = 0b%04b", i, regs[0x14])
		}
	}
}

func TestPreTransferInitialization(t *testing.T) {
	words := New("pss").PreTransferInitialization()
	if len(words) != 2 {
		t.Fatalf("got %d words", len(words))
	}
}

func TestVoltageFromResult(t *testing.T) {
	if v, err := voltageFromResult(1.25); err != nil || v != 1.25 {
		t.Errorf("voltageFromResult(1.25) = %v, %v", v, err)
	}
	if _, err := voltageFromResult(uint32(7)); !errors.Is(err, async.ErrResultType) {
		t.Errorf("expected ErrResultType, got %v", err)
	}
	if _, err := voltageFromResult(nil); !errors.Is(err, async.ErrResultType) {
		t.Errorf("expected ErrResultType for nil, got %v", err)
	}
}
