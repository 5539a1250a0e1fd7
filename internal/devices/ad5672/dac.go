package ad5672

import (
	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/element"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// DAC is one converter on the bus. Idle ticks clock Nop frames.
type DAC struct {
	*element.Element
}

func New(name string) *DAC {
	return &DAC{
		Element: element.New(name, func() operation.SingleRequest {
			return operation.SingleRequest{Op: Nop()}
		}),
	}
}

func (d *DAC) Initialize() *async.Return[struct{}] {
	return element.Submit[struct{}](d.Element, Initialize())
}

// Write stages volts on ch without changing the output until
// LoadAllChannels.
func (d *DAC) Write(ch uint8, volts float64) (*async.Return[struct{}], error) {
	op, err := WriteInputRegister(ch, VoltageToCode(volts))
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](d.Element, op), nil
}

func (d *DAC) LoadAllChannels() *async.Return[struct{}] {
	return element.Submit[struct{}](d.Element, UpdateDacRegisters(AllChannels))
}

// WriteAndLoad writes ch and updates its output in one transfer.
func (d *DAC) WriteAndLoad(ch uint8, volts float64) (*async.Return[struct{}], error) {
	op, err := WriteInputAndDacRegister(ch, VoltageToCode(volts))
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](d.Element, op), nil
}

func (d *DAC) Nop() *async.Return[struct{}] {
	return element.Submit[struct{}](d.Element, Nop())
}

func (d *DAC) PreTransferInitialization() []bits.BitString {
	return PreTransferInitialization()
}
