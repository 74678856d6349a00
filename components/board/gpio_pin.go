package board

import "context"

// A GPIOPin is one output line of the drive: a level for the direction and enable inputs, or a
// PWM signal for the speed, torque and step inputs.
type GPIOPin interface {
	// Set drives the pin low or high. It ends any PWM running on the pin.
	Set(ctx context.Context, high bool) error

	// PWM returns the duty cycle last set, as a fraction in [0, 1].
	PWM(ctx context.Context) (float64, error)

	// SetPWM starts a PWM signal with the given duty cycle fraction. A duty of zero holds the
	// pin low.
	SetPWM(ctx context.Context, duty float64) error

	// SetPWMFreq sets the PWM frequency. 0 uses the board's default.
	SetPWMFreq(ctx context.Context, freqHz uint) error
}

// PinNumber is implemented by pins that know their GPIO line number. Waveforms address pins by
// that number.
type PinNumber interface {
	Number() int
}
