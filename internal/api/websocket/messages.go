package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeMeasurement MessageType = "measurement"
	MessageTypeDeviceError MessageType = "device_error"
	MessageTypeChargeState MessageType = "charge_state"
	MessageTypeBenchStatus MessageType = "bench_status"
	MessageTypeSubscribed  MessageType = "subscribed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	// Device is empty for bench-wide messages, which reach every client.
	Device string `json:"device,omitempty"`
	Data   any    `json:"data"`
}

// MeasurementData is one output sample of a power supply.
type MeasurementData struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

type DeviceErrorData struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// ChargeStateData represents a charge controller state change
type ChargeStateData struct {
	RunID    string `json:"run_id"`
	State    string `json:"state"`
	Previous string `json:"previous_state"`
	Message  string `json:"message,omitempty"`
}

type BenchStatusData struct {
	Bench   string `json:"bench"`
	Running bool   `json:"running"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, device string, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Device:    device,
		Data:      data,
	}
}

func NewMeasurementMessage(device string, voltage, current float64) Message {
	return NewMessage(MessageTypeMeasurement, device, MeasurementData{
		Voltage: voltage,
		Current: current,
	})
}

func NewDeviceErrorMessage(device, operation string, err error) Message {
	return NewMessage(MessageTypeDeviceError, device, DeviceErrorData{
		Operation: operation,
		Error:     err.Error(),
	})
}

func NewChargeStateMessage(device, runID, state, previous, message string) Message {
	return NewMessage(MessageTypeChargeState, device, ChargeStateData{
		RunID:    runID,
		State:    state,
		Previous: previous,
		Message:  message,
	})
}

func NewBenchStatusMessage(bench string, running bool) Message {
	return NewMessage(MessageTypeBenchStatus, "", BenchStatusData{
		Bench:   bench,
		Running: running,
	})
}
