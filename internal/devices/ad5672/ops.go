// Package ad5672 drives the AD5672R octal 12-bit DAC in daisy-chain mode.
package ad5672

import (
	"errors"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

var ErrChannel = errors.New("dac channel out of range")

const (
	frameBits = 24
	Channels  = 8
	maxCode   = 1<<12 - 1

	MinVoltage = 0.0
	MaxVoltage = 5.0

	// AllChannels selects every channel in a mask.
	AllChannels uint8 = 0xFF
)

// Opcode is the 4-bit command field.
type Opcode uint8

const (
	OpWriteInput       Opcode = 0b0001
	OpUpdateDac        Opcode = 0b0010
	OpWriteInputAndDac Opcode = 0b0011
	OpWriteLdacMask    Opcode = 0b0101
	OpSoftwareReset    Opcode = 0b0110
	OpInternalRef      Opcode = 0b0111
	OpSetDcEn          Opcode = 0b1000
	OpNop              Opcode = 0b1111
)

// Frame is a decoded 24-bit command: fill 0-3, data 4-15, address 16-19,
// opcode 20-23.
type Frame struct {
	Opcode  Opcode
	Address uint8
	Data    uint16
	Fill    uint8
}

func (f Frame) Encode() (bits.BitString, error) {
	fill, err := bits.EncodeField(uint64(f.Fill), 4)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("fill: %w", err)
	}
	data, err := bits.EncodeField(uint64(f.Data), 12)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("data: %w", err)
	}
	addr, err := bits.EncodeField(uint64(f.Address), 4)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("address: %w", err)
	}
	op, err := bits.EncodeField(uint64(f.Opcode), 4)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("opcode: %w", err)
	}
	return bits.Concat(fill, data, addr, op), nil
}

func DecodeFrame(b bits.BitString) (Frame, error) {
	if b.Len() != frameBits {
		return Frame{}, fmt.Errorf("%w: %d bits", bits.ErrLengthMismatch, b.Len())
	}
	fill, _ := b.Field(0, 4)
	data, _ := b.Field(4, 16)
	addr, _ := b.Field(16, 20)
	op, _ := b.Field(20, 24)
	return Frame{
		Opcode:  Opcode(op),
		Address: uint8(addr),
		Data:    uint16(data),
		Fill:    uint8(fill),
	}, nil
}

// maskFrame places an 8-bit channel mask across the fill and the low data
// nibble.
func maskFrame(op Opcode, mask uint8) Frame {
	return Frame{Opcode: op, Fill: mask & 0x0F, Data: uint16(mask >> 4)}
}

func single(name string, f Frame) (*operation.Single, error) {
	cmd, err := f.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return operation.NewSingle(name, cmd, false, nil), nil
}

func mustSingle(name string, f Frame) *operation.Single {
	op, err := single(name, f)
	if err != nil {
		panic(err)
	}
	return op
}

func checkChannel(ch uint8) error {
	if ch >= Channels {
		return fmt.Errorf("%w: %d", ErrChannel, ch)
	}
	return nil
}

// VoltageToCode clamps v to [0, 5] V and quantizes it to 12 bits. NaN maps
// to 0 V.
func VoltageToCode(v float64) uint16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Min(math.Max(v, MinVoltage), MaxVoltage)
	return uint16(math.Floor(v / MaxVoltage * maxCode))
}

func Nop() *operation.Single {
	return mustSingle("ad5672.Nop", Frame{Opcode: OpNop})
}

func SoftwareReset() *operation.Single {
	return mustSingle("ad5672.SoftwareReset", Frame{Opcode: OpSoftwareReset, Data: 0x123, Fill: 0x4})
}

func SetDcEnMode() *operation.Single {
	return mustSingle("ad5672.SetDcEnMode", Frame{Opcode: OpSetDcEn, Fill: 0x1})
}

// InternalReferenceSetup enables the internal reference with gain 2.
func InternalReferenceSetup() *operation.Single {
	return mustSingle("ad5672.InternalReferenceSetup", Frame{Opcode: OpInternalRef, Fill: 0x4})
}

// WriteLoadDacMask decouples the masked channels from the LDAC pin.
func WriteLoadDacMask(mask uint8) *operation.Single {
	return mustSingle("ad5672.WriteLoadDacMask", maskFrame(OpWriteLdacMask, mask))
}

// UpdateDacRegisters copies the input registers of the masked channels to
// their outputs.
func UpdateDacRegisters(mask uint8) *operation.Single {
	return mustSingle("ad5672.UpdateDacRegisters", maskFrame(OpUpdateDac, mask))
}

func WriteInputRegister(ch uint8, code uint16) (*operation.Single, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	return single("ad5672.WriteInputRegister", Frame{Opcode: OpWriteInput, Address: ch, Data: code})
}

func WriteInputAndDacRegister(ch uint8, code uint16) (*operation.Single, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}
	return single("ad5672.WriteInputAndDacRegister", Frame{Opcode: OpWriteInputAndDac, Address: ch, Data: code})
}

// Initialize resets the chip, locks in daisy-chain mode, masks LDAC for all
// channels and enables the internal reference, in that order.
func Initialize() *operation.Sequence {
	return operation.NewSequence("ad5672.Initialize", func(results []any) (any, error) {
		if err := operation.ExpectCount(results, 4); err != nil {
			return nil, err
		}
		return nil, nil
	},
		SoftwareReset(),
		SetDcEnMode(),
		WriteLoadDacMask(AllChannels),
		InternalReferenceSetup(),
	)
}

// PreTransferInitialization returns the raw reset and daisy-chain enable
// words sent once before equal-length transfers start.
func PreTransferInitialization() []bits.BitString {
	return []bits.BitString{
		bits.MustFromUint(0x601234, frameBits),
		bits.MustFromUint(0x800001, frameBits),
	}
}
