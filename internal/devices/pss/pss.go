// Package pss drives the power-supply-sink board: one AD5672R holding the
// set points and two ADS866x measuring output current and voltage, clocked
// together on one chip select.
package pss

import (
	"errors"
	"fmt"
	"math"

	"github.com/KevinKickass/OpenSpiCore/internal/async"
	"github.com/KevinKickass/OpenSpiCore/internal/bits"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ad5672"
	"github.com/KevinKickass/OpenSpiCore/internal/devices/ads866x"
	"github.com/KevinKickass/OpenSpiCore/internal/element"
	"github.com/KevinKickass/OpenSpiCore/internal/operation"
)

var ErrConfig = errors.New("invalid pss configuration")

// DAC channels of the configuration DAC.
const (
	chOutput uint8 = iota
	chRefSelect
	chTargetVoltage
	chTargetCurrent
	chLowerVoltageLimit
	chUpperVoltageLimit
	chLowerCurrentLimit
	chUpperCurrentLimit
)

const (
	MinVoltage = 0.0   // V
	MaxVoltage = 5.0   // V
	MinCurrent = -20.0 // A
	MaxCurrent = 20.0  // A

	zeroOffsetCurrent = 25.0 // A
	sensitivity       = 0.1  // V/A
)

// TrackingMode selects the regulated quantity.
type TrackingMode int

const (
	TrackVoltage TrackingMode = iota + 1
	TrackCurrent
)

func (m TrackingMode) String() string {
	switch m {
	case TrackVoltage:
		return "voltage"
	case TrackCurrent:
		return "current"
	default:
		return fmt.Sprintf("TrackingMode(%d)", int(m))
	}
}

// ParseTrackingMode accepts "voltage" or "current".
func ParseTrackingMode(s string) (TrackingMode, error) {
	switch s {
	case "voltage":
		return TrackVoltage, nil
	case "current":
		return TrackCurrent, nil
	}
	return 0, fmt.Errorf("%w: unknown tracking mode %q", ErrConfig, s)
}

// Config is a set point update. Nil fields are left unchanged on the board.
type Config struct {
	TrackingMode      TrackingMode `json:"tracking_mode"`
	TargetVoltage     *float64     `json:"target_voltage,omitempty"`
	TargetCurrent     *float64     `json:"target_current,omitempty"`
	UpperVoltageLimit *float64     `json:"upper_voltage_limit,omitempty"`
	LowerVoltageLimit *float64     `json:"lower_voltage_limit,omitempty"`
	UpperCurrentLimit *float64     `json:"upper_current_limit,omitempty"`
	LowerCurrentLimit *float64     `json:"lower_current_limit,omitempty"`
}

// Float returns a pointer to v, for building a Config.
func Float(v float64) *float64 {
	return &v
}

func (c Config) Validate() error {
	switch c.TrackingMode {
	case TrackVoltage:
		if c.TargetVoltage == nil {
			return fmt.Errorf("%w: target_voltage is required in voltage tracking", ErrConfig)
		}
		if c.UpperCurrentLimit == nil || c.LowerCurrentLimit == nil {
			return fmt.Errorf("%w: upper_current_limit and lower_current_limit are required in voltage tracking", ErrConfig)
		}
	case TrackCurrent:
		if c.TargetCurrent == nil {
			return fmt.Errorf("%w: target_current is required in current tracking", ErrConfig)
		}
		if c.UpperVoltageLimit == nil || c.LowerVoltageLimit == nil {
			return fmt.Errorf("%w: upper_voltage_limit and lower_voltage_limit are required in current tracking", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: tracking_mode is required", ErrConfig)
	}

	if c.UpperVoltageLimit != nil && c.LowerVoltageLimit != nil && *c.UpperVoltageLimit < *c.LowerVoltageLimit {
		return fmt.Errorf("%w: upper_voltage_limit %v is below lower_voltage_limit %v", ErrConfig, *c.UpperVoltageLimit, *c.LowerVoltageLimit)
	}
	if c.UpperCurrentLimit != nil && c.LowerCurrentLimit != nil && *c.UpperCurrentLimit < *c.LowerCurrentLimit {
		return fmt.Errorf("%w: upper_current_limit %v is below lower_current_limit %v", ErrConfig, *c.UpperCurrentLimit, *c.LowerCurrentLimit)
	}
	return nil
}

// Output is one measurement of the board output.
type Output struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func voltageToDac(v float64) float64 {
	return clamp(v, MinVoltage, MaxVoltage)
}

func currentToDac(i float64) float64 {
	return (clamp(i, MinCurrent, MaxCurrent) + zeroOffsetCurrent) * sensitivity
}

func adcToCurrent(v float64) float64 {
	return v/sensitivity - zeroOffsetCurrent
}

// PSS is the board. Its Aggregate is what the bus scheduler pulls from.
type PSS struct {
	*element.Aggregate

	dac  *ad5672.DAC
	curr *ads866x.ADC
	volt *ads866x.ADC
}

func New(name string) *PSS {
	p := &PSS{
		dac:  ad5672.New(name + ".dac"),
		curr: ads866x.New(name + ".current_adc"),
		volt: ads866x.New(name + ".voltage_adc"),
	}
	// schematic order
	p.Aggregate = element.NewAggregate(name, p.dac.Element, p.curr.Element, p.volt.Element)
	return p
}

func (p *PSS) DAC() *ad5672.DAC { return p.dac }

func (p *PSS) CurrentADC() *ads866x.ADC { return p.curr }

func (p *PSS) VoltageADC() *ads866x.ADC { return p.volt }

// PreTransferInitialization puts the DAC into daisy-chain mode before
// equal-length transfers start.
func (p *PSS) PreTransferInitialization() []bits.BitString {
	return p.dac.PreTransferInitialization()
}

// Nop occupies one tick on all three chips.
func (p *PSS) Nop() *async.Return[struct{}] {
	ret := async.New[struct{}](nil)
	j := async.NewJoin(func(err error) { ret.Complete(struct{}{}, err) })
	p.dac.Enqueue(operation.Request{Op: ad5672.Nop(), Callback: j.Add()})
	p.curr.Enqueue(operation.Request{Op: ads866x.Nop(), Callback: j.Add()})
	p.volt.Enqueue(operation.Request{Op: ads866x.Nop(), Callback: j.Add()})
	j.Seal()
	return ret
}

// Initialize resets and configures all three chips, disconnects the output
// and loads a safe configuration. The first failing step fails the result.
func (p *PSS) Initialize() (*async.Return[bool], error) {
	adcInit, err := ads866x.Initialize(ads866x.Unipolar5V12)
	if err != nil {
		return nil, err
	}
	adcInit2, err := ads866x.Initialize(ads866x.Unipolar5V12)
	if err != nil {
		return nil, err
	}
	gpo, err := ads866x.WriteGpo(ads866x.GpoHigh)
	if err != nil {
		return nil, err
	}
	gpo2, err := ads866x.WriteGpo(ads866x.GpoHigh)
	if err != nil {
		return nil, err
	}
	disconnect, err := ad5672.WriteInputAndDacRegister(chOutput, ad5672.VoltageToCode(0))
	if err != nil {
		return nil, err
	}
	safe := Config{
		TrackingMode:      TrackVoltage,
		TargetVoltage:     Float(0),
		TargetCurrent:     Float(0),
		LowerVoltageLimit: Float(MinVoltage),
		UpperVoltageLimit: Float(MaxVoltage),
		LowerCurrentLimit: Float(MinCurrent),
		UpperCurrentLimit: Float(MaxCurrent),
	}
	configOps, err := configOperations(safe)
	if err != nil {
		return nil, err
	}

	ret := async.New[bool](nil)
	j := async.NewJoin(func(err error) { ret.Complete(err == nil, err) })

	// let the DAC reset settle before the ADCs are configured
	for range 3 {
		p.curr.Enqueue(operation.Request{Op: ads866x.Nop()})
		p.volt.Enqueue(operation.Request{Op: ads866x.Nop()})
	}

	p.dac.Enqueue(operation.Request{Op: ad5672.Initialize(), Callback: j.Add()})
	p.curr.Enqueue(
		operation.Request{Op: adcInit, Callback: j.Add()},
		operation.Request{Op: gpo, Callback: j.Add()},
	)
	p.volt.Enqueue(
		operation.Request{Op: adcInit2, Callback: j.Add()},
		operation.Request{Op: gpo2, Callback: j.Add()},
	)
	p.dac.Enqueue(operation.Request{Op: disconnect, Callback: j.Add()})
	p.enqueueConfig(configOps, j.Add())
	j.Seal()

	return ret, nil
}

// configOperations converts cfg into DAC writes followed by one load of all
// channels.
func configOperations(cfg Config) ([]operation.Operation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	type write struct {
		ch    uint8
		volts float64
	}
	var writes []write

	switch cfg.TrackingMode {
	case TrackVoltage:
		writes = append(writes, write{chRefSelect, 0})
	case TrackCurrent:
		writes = append(writes, write{chRefSelect, 5})
	}
	if cfg.TargetVoltage != nil {
		writes = append(writes, write{chTargetVoltage, voltageToDac(*cfg.TargetVoltage)})
	}
	if cfg.TargetCurrent != nil {
		writes = append(writes, write{chTargetCurrent, currentToDac(*cfg.TargetCurrent)})
	}
	if cfg.UpperVoltageLimit != nil {
		writes = append(writes, write{chUpperVoltageLimit, voltageToDac(*cfg.UpperVoltageLimit)})
	}
	if cfg.LowerVoltageLimit != nil {
		writes = append(writes, write{chLowerVoltageLimit, voltageToDac(*cfg.LowerVoltageLimit)})
	}
	if cfg.UpperCurrentLimit != nil {
		writes = append(writes, write{chUpperCurrentLimit, currentToDac(*cfg.UpperCurrentLimit)})
	}
	if cfg.LowerCurrentLimit != nil {
		writes = append(writes, write{chLowerCurrentLimit, currentToDac(*cfg.LowerCurrentLimit)})
	}

	ops := make([]operation.Operation, 0, len(writes)+1)
	for _, w := range writes {
		op, err := ad5672.WriteInputRegister(w.ch, ad5672.VoltageToCode(w.volts))
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return append(ops, ad5672.UpdateDacRegisters(ad5672.AllChannels)), nil
}

// enqueueConfig queues the writes and reports completion once the final
// load has been clocked.
func (p *PSS) enqueueConfig(ops []operation.Operation, cb operation.Callback) {
	reqs := make([]operation.Request, len(ops))
	for i, op := range ops {
		reqs[i] = operation.Request{Op: op}
	}
	reqs[len(reqs)-1].Callback = cb
	p.dac.Enqueue(reqs...)
}

// WriteConfig validates cfg and stages it on the DAC. Nothing is queued
// when validation fails.
func (p *PSS) WriteConfig(cfg Config) (*async.Return[struct{}], error) {
	ops, err := configOperations(cfg)
	if err != nil {
		return nil, err
	}
	ret := async.New[struct{}](nil)
	p.enqueueConfig(ops, ret.Callback())
	return ret, nil
}

func (p *PSS) OutputConnect() (*async.Return[struct{}], error) {
	return p.dac.WriteAndLoad(chOutput, ad5672.MaxVoltage)
}

func (p *PSS) OutputDisconnect() (*async.Return[struct{}], error) {
	return p.dac.WriteAndLoad(chOutput, ad5672.MinVoltage)
}

// ReadOutput samples both ADCs in the same transfer.
func (p *PSS) ReadOutput() *async.Return[Output] {
	ret := async.New[Output](nil)

	var out Output
	j := async.NewJoin(func(err error) {
		if err != nil {
			ret.Complete(Output{}, err)
			return
		}
		ret.Complete(out, nil)
	})

	voltDone := j.Add()
	p.volt.Enqueue(operation.Request{Op: ads866x.ReadVoltage(), Callback: func(result any, err error) {
		if err == nil {
			out.Voltage, err = voltageFromResult(result)
		}
		voltDone(result, err)
	}})

	currDone := j.Add()
	p.curr.Enqueue(operation.Request{Op: ads866x.ReadVoltage(), Callback: func(result any, err error) {
		var v float64
		if err == nil {
			v, err = voltageFromResult(result)
			out.Current = adcToCurrent(v)
		}
		currDone(result, err)
	}})

	j.Seal()
	return ret
}

func voltageFromResult(result any) (float64, error) {
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: got %T, want float64", async.ErrResultType, result)
	}
	return v, nil
}
