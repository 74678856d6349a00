// Package board defines the interfaces to the hardware the wave tank drive writes to and reads
// from: GPIO and PWM pins, the feedback analog and the waveform driver that emits step pulses.
package board

import (
	"context"
)

// FeedbackAnalogName is the name of the analog carrying the actuator position feedback.
const FeedbackAnalogName = "feedback"

// A Board is a handle to the hardware. It is constructed once at startup and handed to every
// consumer.
type Board interface {
	// GPIOPinByName returns a GPIOPin by name.
	GPIOPinByName(name string) (GPIOPin, error)

	// AnalogByName returns an analog by name.
	AnalogByName(name string) (Analog, error)

	// WaveDriver returns the board's waveform transmitter.
	WaveDriver() WaveDriver

	// Close releases every pin and bus the board holds.
	Close(ctx context.Context) error
}
