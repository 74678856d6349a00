package control

import (
	"math"
	"time"
)

const gravity = 9.81

// A RegularWave is a single frequency sine trajectory. The actuator holds at zero for
// CenterTime, then the amplitude ramps linearly to Height/2 over RampTime.
type RegularWave struct {
	// Height is the crest to trough height in meters.
	Height float64
	// Steepness is the wavelength over the height.
	Steepness  float64
	RampTime   time.Duration
	CenterTime time.Duration
}

// Period returns the wave period in seconds, sqrt(steepness*height*π/g).
func (w RegularWave) Period() float64 {
	return math.Sqrt(w.Steepness * w.Height * math.Pi / gravity)
}

// At returns the target position and velocity at elapsed time since the wave started.
func (w RegularWave) At(elapsed time.Duration) (z, v float64) {
	if elapsed < w.CenterTime {
		return 0, 0
	}
	period := w.Period()
	if period <= 0 {
		return 0, 0
	}
	t := (elapsed - w.CenterTime).Seconds()
	omega := 2 * math.Pi / period
	amplitude := w.Height / 2

	ramp, rampRate := 1.0, 0.0
	if rampSecs := w.RampTime.Seconds(); rampSecs > 0 && t < rampSecs {
		ramp = t / rampSecs
		rampRate = 1 / rampSecs
	}

	z = amplitude * ramp * math.Sin(omega*t)
	v = amplitude * (ramp*omega*math.Cos(omega*t) + rampRate*math.Sin(omega*t))
	return z, v
}
