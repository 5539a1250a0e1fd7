package types

import (
	"time"

	"github.com/google/uuid"
)

// BenchProfile describes the devices on one SPI bus.
type BenchProfile struct {
	Bench    BenchInfo           `json:"bench"`
	Channels []ChannelDefinition `json:"channels"`
}

type BenchInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ChannelDefinition struct {
	Name       string     `json:"name"`
	Device     DeviceType `json:"device"`
	ChipSelect uint8      `json:"chip_select"`
	IntervalMs int        `json:"interval_ms"`
	// InputRange applies to ads866x channels, e.g. "UNIPOLAR_5V12".
	InputRange string `json:"input_range,omitempty"`
}

type DeviceType string

const (
	DeviceTypePSS     DeviceType = "pss"
	DeviceTypeADS866x DeviceType = "ads866x"
	DeviceTypeAD5672  DeviceType = "ad5672"
)

// Device Runtime Info
type DeviceInfo struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Type       DeviceType    `json:"type"`
	ChipSelect uint8         `json:"chip_select"`
	Interval   time.Duration `json:"interval_ns"`
	InputRange string        `json:"input_range,omitempty"`
	Running    bool          `json:"running"`
}
