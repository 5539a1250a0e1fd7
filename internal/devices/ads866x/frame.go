package ads866x

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
)

// Opcode is the 5-bit command field of an input frame.
type Opcode uint8

const (
	OpNop        Opcode = 0b00000
	OpClearHword Opcode = 0b11000
	OpReadHword  Opcode = 0b11001
	OpWriteHword Opcode = 0b11010
	OpSetHword   Opcode = 0b11011
)

// Frame is a decoded 32-bit input frame:
// data 0-15, address 16-24, byte selector 25-26, opcode 27-31.
type Frame struct {
	Opcode       Opcode
	ByteSelector uint8
	Address      uint16
	Data         uint16
}

// Encode validates every field width and builds the wire command. An odd
// half-word address is rounded down with a warning.
func (f Frame) Encode() (bits.BitString, error) {
	if f.Address > maxAddr {
		return bits.BitString{}, fmt.Errorf("%w: 0x%X exceeds %d bits", ErrAddressRange, f.Address, addrBits)
	}
	addr := f.Address
	if addr&1 == 1 {
		logger.Warn("half-word address not aligned, rounding down",
			zap.Uint16("address", addr),
			zap.Uint16("aligned", addr&^1))
		addr &^= 1
	}

	data, err := bits.EncodeField(uint64(f.Data), 16)
	if err != nil {
		return bits.BitString{}, err
	}
	a, err := bits.EncodeField(uint64(addr), addrBits)
	if err != nil {
		return bits.BitString{}, err
	}
	sel, err := bits.EncodeField(uint64(f.ByteSelector), 2)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("byte selector: %w", err)
	}
	op, err := bits.EncodeField(uint64(f.Opcode), 5)
	if err != nil {
		return bits.BitString{}, fmt.Errorf("opcode: %w", err)
	}

	return bits.Concat(data, a, sel, op), nil
}

// DecodeFrame is the inverse of Frame.Encode.
func DecodeFrame(b bits.BitString) (Frame, error) {
	if b.Len() != frameBits {
		return Frame{}, fmt.Errorf("%w: %d bits", ErrFrame, b.Len())
	}

	data, _ := b.Field(0, 16)
	addr, _ := b.Field(16, 25)
	sel, _ := b.Field(25, 27)
	op, _ := b.Field(27, 32)

	return Frame{
		Opcode:       Opcode(op),
		ByteSelector: uint8(sel),
		Address:      uint16(addr),
		Data:         uint16(data),
	}, nil
}
