package ads866x

import (
	"fmt"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
)

// Output frame layout as configured by Initialize.
const (
	sampleConvLo   = 20
	sampleDevLo    = 16
	sampleAvddLo   = 14
	sampleInputLo  = 12
	sampleRangeLo  = 8
	sampleADCPar   = 7
	sampleFramePar = 6
)

// Sample is one decoded conversion frame.
type Sample struct {
	Code          uint16
	DeviceAddress uint8
	AvddAlarm     uint8
	InputAlarm    uint8
	Range         InputRange
	Voltage       float64
}

// DecodeSample checks both parity bits and scales the conversion result by
// the range echoed in the frame.
func DecodeSample(rsp bits.BitString) (Sample, error) {
	if rsp.Len() != frameBits {
		return Sample{}, fmt.Errorf("%w: %d bits", ErrFrame, rsp.Len())
	}

	if low, _ := rsp.Slice(0, sampleFramePar); !low.IsZero() {
		return Sample{}, fmt.Errorf("%w: reserved bits set in %s", ErrFrame, rsp)
	}

	conv, _ := rsp.Slice(sampleConvLo, frameBits)
	adcPar, _ := rsp.Slice(sampleADCPar, sampleADCPar+1)
	if !bits.CheckParity(bits.Concat(adcPar, conv), true) {
		return Sample{}, fmt.Errorf("conversion: %w", bits.ErrParity)
	}
	frame, _ := rsp.Slice(sampleFramePar, frameBits)
	if !bits.CheckParity(frame, true) {
		return Sample{}, fmt.Errorf("frame: %w", bits.ErrParity)
	}

	code, _ := conv.Uint()
	dev, _ := rsp.Field(sampleDevLo, sampleConvLo)
	avdd, _ := rsp.Field(sampleAvddLo, sampleDevLo)
	input, _ := rsp.Field(sampleInputLo, sampleAvddLo)
	rng, _ := rsp.Field(sampleRangeLo, sampleInputLo)

	r := InputRange(rng)
	if !r.Valid() {
		return Sample{}, fmt.Errorf("%w: 0b%04b", ErrInputRange, rng)
	}

	v, err := bits.ScaleVoltage(code, convBits, r.Sensitivity(), r.Offset())
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Code:          uint16(code),
		DeviceAddress: uint8(dev),
		AvddAlarm:     uint8(avdd),
		InputAlarm:    uint8(input),
		Range:         r,
		Voltage:       v,
	}, nil
}

// EncodeSample builds the frame DecodeSample accepts, with both parity bits
// set. Voltage is ignored.
func EncodeSample(s Sample) (bits.BitString, error) {
	conv, err := bits.EncodeField(uint64(s.Code), convBits)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("code: %w", err)
	}
	dev, err := bits.EncodeField(uint64(s.DeviceAddress), 4)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("device address: %w", err)
	}
	avdd, err := bits.EncodeField(uint64(s.AvddAlarm), 2)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("avdd alarm: %w", err)
	}
	input, err := bits.EncodeField(uint64(s.InputAlarm), 2)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("input alarm: %w", err)
	}
	rng, err := bits.EncodeField(uint64(s.Range), 4)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("range: %w", err)
	}

	adcPar := parityBit(conv)
	upper := bits.Concat(adcPar, rng, input, avdd, dev, conv)
	framePar := parityBit(upper)

	return bits.Concat(bits.New(sampleFramePar), framePar, upper), nil
}

// parityBit returns the bit that makes s plus the bit even.
func parityBit(s bits.BitString) bits.BitString {
	return bits.MustFromUint(uint64(s.Ones()%2), 1)
}
