package bench

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/pss"
	"github.com/KevinKickass/OpenSpiCore/internal/element"
	"github.com/KevinKickass/OpenSpiCore/internal/spi"
	"github.com/KevinKickass/OpenSpiCore/internal/types"
)

// Device is one driver on the bus. Exactly one of PSS, ADC and DAC is set.
type Device struct {
	ID         uuid.UUID
	Name       string
	Type       types.DeviceType
	ChipSelect uint8
	Interval   time.Duration
	InputRange ads866x.InputRange

	PSS *pss.PSS
	ADC *ads866x.ADC
	DAC *ad5672.DAC
}

// Source returns the request source the scheduler polls.
func (d *Device) Source() element.Source {
	switch {
	case d.PSS != nil:
		return d.PSS
	case d.ADC != nil:
		return d.ADC
	default:
		return d.DAC
	}
}

func (d *Device) Info(running bool) types.DeviceInfo {
	info := types.DeviceInfo{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		ChipSelect: d.ChipSelect,
		Interval:   d.Interval,
		Running:    running,
	}
	if d.ADC != nil {
		info.InputRange = d.InputRange.String()
	}
	return info
}

// Composer turns profile channels into drivers and scheduler channels.
type Composer struct {
	logger *zap.Logger
}

func NewComposer(logger *zap.Logger) *Composer {
	return &Composer{logger: logger}
}

// ComposeChannel builds the driver of def and the channel that clocks it
func (c *Composer) ComposeChannel(def types.ChannelDefinition) (*Device, spi.Channel, error) {
	if def.IntervalMs <= 0 {
		return nil, spi.Channel{}, fmt.Errorf("channel %s: %w", def.Name, spi.ErrInvalidInterval)
	}

	dev := &Device{
		ID:         uuid.New(),
		Name:       def.Name,
		Type:       def.Device,
		ChipSelect: def.ChipSelect,
		Interval:   time.Duration(def.IntervalMs) * time.Millisecond,
	}

	switch def.Device {
	case types.DeviceTypePSS:
		dev.PSS = pss.New(def.Name)
	case types.DeviceTypeADS866x:
		r := ads866x.Unipolar5V12
		if def.InputRange != "" {
			var err error
			if r, err = ads866x.ParseInputRange(def.InputRange); err != nil {
				return nil, spi.Channel{}, fmt.Errorf("channel %s: %w", def.Name, err)
			}
		}
		dev.ADC = ads866x.New(def.Name)
		dev.InputRange = r
	case types.DeviceTypeAD5672:
		dev.DAC = ad5672.New(def.Name)
	default:
		return nil, spi.Channel{}, fmt.Errorf("channel %s: unknown device type %q", def.Name, def.Device)
	}

	ch := spi.Channel{
		Name:       def.Name,
		Source:     dev.Source(),
		Interval:   dev.Interval,
		ChipSelect: def.ChipSelect,
	}
	if init, ok := ch.Source.(spi.PreTransferInitializer); ok {
		ch.PreTransfer = init.PreTransferInitialization()
	}

	c.logger.Debug("Channel composed",
		zap.String("channel", def.Name),
		zap.String("device", string(def.Device)),
		zap.Uint8("chip_select", def.ChipSelect),
		zap.Int("pre_transfer_words", len(ch.PreTransfer)))

	return dev, ch, nil
}
