// Package spi schedules device requests onto a shared SPI bus.
package spi

import (
	"errors"
	"time"

	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/element"
)

var (
	ErrNoChannels      = errors.New("no channels configured")
	ErrRunning         = errors.New("client already running")
	ErrStopped         = errors.New("client stopped before response arrived")
	ErrResponseLength  = errors.New("transport returned wrong response length")
	ErrInvalidInterval = errors.New("transfer interval must be positive")
)

// Transport is a bus master. Transfer clocks tx out with chip select cs
// asserted and returns the bytes clocked in, len(rx) == len(tx). Bytes are
// most significant bit first.
type Transport interface {
	Init() error
	Transfer(cs uint8, tx []byte) ([]byte, error)
	Close() error
}

// Channel is one periodic transfer slot.
type Channel struct {
	Name       string
	Source     element.Source
	Interval   time.Duration
	ChipSelect uint8

	// PreTransfer words are sent once, in order, before the first tick.
	PreTransfer []bits.BitString
}

// PreTransferInitializer is implemented by devices that need out-of-band
// words before equal-length transfers start.
type PreTransferInitializer interface {
	PreTransferInitialization() []bits.BitString
}
