package ads866x

import (
	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/element"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

// ADC is one converter on the bus. Idle ticks clock Nop frames.
type ADC struct {
	*element.Element
}

func New(name string) *ADC {
	return &ADC{
		Element: element.New(name, func() operation.SingleRequest {
			return operation.SingleRequest{Op: Nop()}
		}),
	}
}

func (a *ADC) Initialize(r InputRange) (*async.Return[bool], error) {
	op, err := Initialize(r)
	if err != nil {
		return nil, err
	}
	return element.Submit[bool](a.Element, op), nil
}

// ReadVoltage returns the conversion result in volts.
func (a *ADC) ReadVoltage() *async.Return[float64] {
	return element.Submit[float64](a.Element, ReadVoltage())
}

func (a *ADC) ReadSample() *async.Return[Sample] {
	return element.Submit[Sample](a.Element, ReadSample())
}

func (a *ADC) WriteGpo(level GpoLevel) (*async.Return[struct{}], error) {
	op, err := WriteGpo(level)
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](a.Element, op), nil
}

func (a *ADC) ReadRegister(reg Register) (*async.Return[uint32], error) {
	op, err := ReadWord(reg)
	if err != nil {
		return nil, err
	}
	return element.Submit[uint32](a.Element, op), nil
}

func (a *ADC) WriteRegister(reg Register, value uint32) (*async.Return[struct{}], error) {
	op, err := WriteWord(reg, value)
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](a.Element, op), nil
}

// WriteVerifyRegister reports false, not an error, when the readback differs.
func (a *ADC) WriteVerifyRegister(reg Register, value uint32) (*async.Return[bool], error) {
	op, err := WriteVerifyWord(reg, value)
	if err != nil {
		return nil, err
	}
	return element.Submit[bool](a.Element, op), nil
}

func (a *ADC) SetBits(reg Register, mask uint32) (*async.Return[struct{}], error) {
	op, err := SetWord(reg, mask)
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](a.Element, op), nil
}

func (a *ADC) ClearBits(reg Register, mask uint32) (*async.Return[struct{}], error) {
	op, err := ClearWord(reg, mask)
	if err != nil {
		return nil, err
	}
	return element.Submit[struct{}](a.Element, op), nil
}

// Nop occupies one tick. Used to line up chips sharing a transfer.
func (a *ADC) Nop() *async.Return[struct{}] {
	return element.Submit[struct{}](a.Element, Nop())
}
