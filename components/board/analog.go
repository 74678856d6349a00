package board

import (
	"context"
)

// AnalogValue contains all info about the analog reading.
// Value represents the reading in bits.
// Min and Max represent the range of raw analog values in volts.
// StepSize is the volts represented by one bit.
type AnalogValue struct {
	Value    int
	Min      float32
	Max      float32
	StepSize float32
}

// Volts converts the raw reading to volts.
func (av AnalogValue) Volts() float64 {
	return float64(av.Value) * float64(av.StepSize)
}

// An Analog represents an analog pin that resides on a board.
type Analog interface {
	// Read reads off the current value.
	Read(ctx context.Context) (AnalogValue, error)

	// Close stops any background reading.
	Close(ctx context.Context) error
}
