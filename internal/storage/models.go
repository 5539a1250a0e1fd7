package storage

import (
	"time"

	"github.com/google/uuid"
)

// Measurement is one recorded output sample of a power supply.
type Measurement struct {
	ID         uuid.UUID `json:"id"`
	Device     string    `json:"device"`
	Voltage    float64   `json:"voltage"`
	Current    float64   `json:"current"`
	MeasuredAt time.Time `json:"measured_at"`
}

// MeasurementQuery filters ListMeasurements. Zero values mean no filter;
// Limit defaults to 1000.
type MeasurementQuery struct {
	Device string
	Since  time.Time
	Until  time.Time
	Limit  int
}
