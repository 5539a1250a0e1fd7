package ads866x

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

func hword(name string, op Opcode, addr uint16, data uint16, responseRequired bool, parse operation.ParseFunc) (*operation.Single, error) {
	cmd, err := Frame{Opcode: op, Address: addr, Data: data}.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return operation.NewSingle(name, cmd, responseRequired, parse), nil
}

// Nop clocks an all-zero frame. The response carries the previous
// conversion but is not parsed.
func Nop() *operation.Single {
	op, _ := hword("ads866x.Nop", OpNop, 0, 0, false, nil)
	return op
}

func WriteHword(addr, data uint16) (*operation.Single, error) {
	return hword("ads866x.WriteHword", OpWriteHword, addr, data, false, nil)
}

func SetHword(addr, data uint16) (*operation.Single, error) {
	return hword("ads866x.SetHword", OpSetHword, addr, data, false, nil)
}

func ClearHword(addr, data uint16) (*operation.Single, error) {
	return hword("ads866x.ClearHword", OpClearHword, addr, data, false, nil)
}

// ReadHword reads one half word. The register data comes back in bits 16-31
// and bits 0-13 must be zero. The result is a uint16.
func ReadHword(addr uint16) (*operation.Single, error) {
	return hword("ads866x.ReadHword", OpReadHword, addr, 0, true, parseHword)
}

func parseHword(rsp bits.BitString) (any, error) {
	if rsp.Len() != frameBits {
		return nil, fmt.Errorf("%w: %d bits", ErrFrame, rsp.Len())
	}
	if trailing, _ := rsp.Slice(0, 14); !trailing.IsZero() {
		return nil, fmt.Errorf("%w: trailing bits not zero in %s", ErrFrame, rsp)
	}
	v, err := rsp.Field(16, 32)
	if err != nil {
		return nil, err
	}
	return uint16(v), nil
}

func checkWordAddr(addr uint16) error {
	if addr > maxAddr {
		return fmt.Errorf("%w: 0x%X exceeds %d bits", ErrAddressRange, addr, addrBits)
	}
	if addr%4 != 0 {
		return fmt.Errorf("%w: 0x%X", ErrAddressAlignment, addr)
	}
	return nil
}

type hwordFunc func(addr, data uint16) (*operation.Single, error)

// word splits a 32-bit access into the upper half word at addr+2 followed
// by the lower half word at addr.
func word(name string, f hwordFunc, addr uint16, data uint32, validate operation.ValidateFunc) (*operation.Sequence, error) {
	if err := checkWordAddr(addr); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	upper, err := f(addr+2, uint16(data>>16))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	lower, err := f(addr, uint16(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return operation.NewSequence(name, validate, upper, lower), nil
}

func expectTwoNil(results []any) (any, error) {
	if err := operation.ExpectCount(results, 2); err != nil {
		return nil, err
	}
	for _, r := range results {
		if r != nil {
			return nil, fmt.Errorf("%w: unexpected half-word result %v", ErrFrame, r)
		}
	}
	return nil, nil
}

func WriteWord(reg Register, value uint32) (*operation.Sequence, error) {
	return word("ads866x.WriteWord", WriteHword, uint16(reg), value, expectTwoNil)
}

// SetWord sets every bit of reg that is set in mask.
func SetWord(reg Register, mask uint32) (*operation.Sequence, error) {
	return word("ads866x.SetWord", SetHword, uint16(reg), mask, expectTwoNil)
}

// ClearWord clears every bit of reg that is set in mask.
func ClearWord(reg Register, mask uint32) (*operation.Sequence, error) {
	return word("ads866x.ClearWord", ClearHword, uint16(reg), mask, expectTwoNil)
}

// ReadWord reads a register. The result is a uint32.
func ReadWord(reg Register) (*operation.Sequence, error) {
	read := func(addr, _ uint16) (*operation.Single, error) { return ReadHword(addr) }
	return word("ads866x.ReadWord", read, uint16(reg), 0, joinHwords)
}

func joinHwords(results []any) (any, error) {
	if err := operation.ExpectCount(results, 2); err != nil {
		return nil, err
	}
	upper, ok1 := results[0].(uint16)
	lower, ok2 := results[1].(uint16)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: half-word results %T, %T", ErrFrame, results[0], results[1])
	}
	return uint32(upper)<<16 | uint32(lower), nil
}

// WriteVerifyWord writes reg and reads it back. The result is true when the
// read value equals value. A mismatch is not an error.
func WriteVerifyWord(reg Register, value uint32) (*operation.Sequence, error) {
	w, err := WriteWord(reg, value)
	if err != nil {
		return nil, err
	}
	r, err := ReadWord(reg)
	if err != nil {
		return nil, err
	}

	name := "ads866x.WriteVerifyWord(" + reg.String() + ")"
	return operation.NewSequence(name, func(results []any) (any, error) {
		if err := operation.ExpectCount(results, 2); err != nil {
			return nil, err
		}
		if results[0] != nil {
			return nil, fmt.Errorf("%w: write returned %v", ErrFrame, results[0])
		}
		got, ok := results[1].(uint32)
		if !ok {
			return nil, fmt.Errorf("%w: readback %T", ErrFrame, results[1])
		}
		return got == value, nil
	}, w, r), nil
}

// Initialize unlocks the reset register, disables the alarm outputs,
// configures SPI mode and the output frame and selects the input range.
// The result is true once all four configuration registers verify; any
// mismatch fails with ErrVerify naming the registers.
func Initialize(r InputRange) (*operation.Sequence, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: 0b%04b", ErrInputRange, uint8(r))
	}

	verified := []struct {
		reg   Register
		value uint32
	}{
		{RegSdiCtl, 0},
		{RegSdoCtl, 0},
		{RegDataoutCtl, dataoutParEn | dataoutRangeIncl | dataoutInActiveAlarmIncl | dataoutVddActiveAlarmIncl | dataoutDeviceAddrIncl},
		{RegRangeSel, uint32(r)},
	}

	unlock, err := WriteWord(RegRstPwrctl, rstPwrctlKey)
	if err != nil {
		return nil, err
	}
	alarms, err := WriteWord(RegRstPwrctl, rstPwrctlKey|rstPwrctlInAlDis|rstPwrctlVddAlDis)
	if err != nil {
		return nil, err
	}
	children := []operation.Operation{unlock, alarms}
	for _, v := range verified {
		op, err := WriteVerifyWord(v.reg, v.value)
		if err != nil {
			return nil, err
		}
		children = append(children, op)
	}

	return operation.NewSequence("ads866x.Initialize", func(results []any) (any, error) {
		if err := operation.ExpectCount(results, 2+len(verified)); err != nil {
			return nil, err
		}
		if results[0] != nil || results[1] != nil {
			return nil, fmt.Errorf("%w: reset write returned %v, %v", ErrFrame, results[0], results[1])
		}

		var failed []string
		for i, v := range verified {
			ok, isBool := results[2+i].(bool)
			if !isBool {
				return nil, fmt.Errorf("%w: verify result %T", ErrFrame, results[2+i])
			}
			if !ok {
				failed = append(failed, v.reg.String())
			}
		}
		if len(failed) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrVerify, strings.Join(failed, ", "))
		}
		return true, nil
	}, children...), nil
}

// ReadVoltage clocks a no-op frame and decodes the conversion result it
// returns. The result is a float64 in volts.
func ReadVoltage() *operation.Single {
	op, _ := hword("ads866x.ReadVoltage", OpNop, 0, 0, true, func(rsp bits.BitString) (any, error) {
		s, err := DecodeSample(rsp)
		if err != nil {
			return nil, err
		}
		return s.Voltage, nil
	})
	return op
}

// ReadSample is ReadVoltage returning the full decoded Sample.
func ReadSample() *operation.Single {
	op, _ := hword("ads866x.ReadSample", OpNop, 0, 0, true, func(rsp bits.BitString) (any, error) {
		return DecodeSample(rsp)
	})
	return op
}

// WriteGpo drives the GPO pin through SDO_CTL.
func WriteGpo(level GpoLevel) (*operation.Single, error) {
	if level == GpoHigh {
		return SetHword(uint16(RegSdoCtl), uint16(sdoCtlGpoVal))
	}
	return ClearHword(uint16(RegSdoCtl), uint16(sdoCtlGpoVal))
}
