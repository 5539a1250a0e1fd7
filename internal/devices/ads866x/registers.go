// Package ads866x drives the TI ADS8661/ADS8665 12-bit SAR ADC.
package ads866x

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrAddressRange     = errors.New("register address out of range")
	ErrAddressAlignment = errors.New("register address not word aligned")
	ErrFrame            = errors.New("malformed response frame")
	ErrVerify           = errors.New("register verification failed")
	ErrInputRange       = errors.New("unknown input range")
)

const (
	frameBits   = 32
	addrBits    = 9
	maxAddr     = 1<<addrBits - 1
	convBits    = 12
	convSpanLSB = 1 << convBits
)

var logger = zap.NewNop()

// SetLogger replaces the package logger used for address realignment warnings.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Register is the byte address of a 32-bit configuration register.
type Register uint16

const (
	RegDeviceID   Register = 0x00
	RegRstPwrctl  Register = 0x04
	RegSdiCtl     Register = 0x08
	RegSdoCtl     Register = 0x0C
	RegDataoutCtl Register = 0x10
	RegRangeSel   Register = 0x14
	RegAlarm      Register = 0x20
	RegAlarmHTh   Register = 0x24
	RegAlarmLTh   Register = 0x28
)

var registerNames = map[Register]string{
	RegDeviceID:   "DEVICE_ID",
	RegRstPwrctl:  "RST_PWRCTL",
	RegSdiCtl:     "SDI_CTL",
	RegSdoCtl:     "SDO_CTL",
	RegDataoutCtl: "DATAOUT_CTL",
	RegRangeSel:   "RANGE_SEL",
	RegAlarm:      "ALARM",
	RegAlarmHTh:   "ALARM_H_TH",
	RegAlarmLTh:   "ALARM_L_TH",
}

func (r Register) String() string {
	if n, ok := registerNames[r]; ok {
		return n
	}
	return fmt.Sprintf("REG_0x%02X", uint16(r))
}

// Bitfields of the configuration registers.
const (
	// RST_PWRCTL
	rstPwrctlKey      uint32 = 0x69 << 8
	rstPwrctlInAlDis  uint32 = 1 << 4
	rstPwrctlVddAlDis uint32 = 1 << 5

	// SDO_CTL
	sdoCtlGpoVal uint32 = 1 << 12

	// DATAOUT_CTL
	dataoutParEn              uint32 = 1 << 3
	dataoutRangeIncl          uint32 = 1 << 8
	dataoutInActiveAlarmIncl  uint32 = 0b11 << 10
	dataoutVddActiveAlarmIncl uint32 = 0b11 << 12
	dataoutDeviceAddrIncl     uint32 = 1 << 14
)

// InputRange is the RANGE_SEL code, echoed in every conversion frame.
type InputRange uint8

const (
	Bipolar12V288  InputRange = 0b0000
	Bipolar10V24   InputRange = 0b0001
	Bipolar6V144   InputRange = 0b0010
	Bipolar5V12    InputRange = 0b0011
	Bipolar2V56    InputRange = 0b0100
	Unipolar12V288 InputRange = 0b1000
	Unipolar10V24  InputRange = 0b1001
	Unipolar6V144  InputRange = 0b1010
	Unipolar5V12   InputRange = 0b1011
)

var inputRanges = map[InputRange]struct {
	name      string
	magnitude float64
}{
	Bipolar12V288:  {"BIPOLAR_12V288", 12.288},
	Bipolar10V24:   {"BIPOLAR_10V24", 10.24},
	Bipolar6V144:   {"BIPOLAR_6V144", 6.144},
	Bipolar5V12:    {"BIPOLAR_5V12", 5.12},
	Bipolar2V56:    {"BIPOLAR_2V56", 2.56},
	Unipolar12V288: {"UNIPOLAR_12V288", 12.288},
	Unipolar10V24:  {"UNIPOLAR_10V24", 10.24},
	Unipolar6V144:  {"UNIPOLAR_6V144", 6.144},
	Unipolar5V12:   {"UNIPOLAR_5V12", 5.12},
}

func (r InputRange) Valid() bool {
	_, ok := inputRanges[r]
	return ok
}

func (r InputRange) Bipolar() bool {
	return r&0b1000 == 0
}

// Sensitivity is volts per LSB.
func (r InputRange) Sensitivity() float64 {
	return inputRanges[r].magnitude / convSpanLSB
}

// Offset is the code representing 0 V.
func (r InputRange) Offset() float64 {
	if r.Bipolar() {
		return convSpanLSB / 2
	}
	return 0
}

func (r InputRange) String() string {
	if v, ok := inputRanges[r]; ok {
		return v.name
	}
	return fmt.Sprintf("RANGE_0b%04b", uint8(r))
}

// ParseInputRange accepts names like "UNIPOLAR_5V12" (case insensitive).
func ParseInputRange(s string) (InputRange, error) {
	for r, v := range inputRanges {
		if strings.EqualFold(v.name, s) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInputRange, s)
}

// GpoLevel is the state of the general purpose output pin.
type GpoLevel bool

const (
	GpoLow  GpoLevel = false
	GpoHigh GpoLevel = true
)
