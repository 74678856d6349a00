package drive

import (
	"go.uber.org/atomic"

	"go.viam.com/wavetank/config"
)

// State is the live state of the drive. Every field is published atomically by its single
// writer and read by anyone; readers see the latest value without locking.
type State struct {
	FeedbackVolts  atomic.Float64
	ZCur           atomic.Float64
	VelocityFast   atomic.Float64
	VelocityMedium atomic.Float64
	VelocitySlow   atomic.Float64

	// VDemand is what the active mode asked for, VCommand what the governor let through.
	VDemand  atomic.Float64
	VCommand atomic.Float64
	// Direction is the latched sign of the direction pin: -1, 0 before the first move, or 1.
	Direction atomic.Int32
	Enabled   atomic.Bool
	Steps     atomic.Float64

	ZTarget atomic.Float64
	VTarget atomic.Float64

	FailFeedback     atomic.Bool
	FailSpeedControl atomic.Bool
	FailStepControl  atomic.Bool
	FailStop         atomic.Bool
	FailCenter       atomic.Bool
	FailWave         atomic.Bool
}

// ModeFail returns the fault flag of a drive mode.
func (s *State) ModeFail(mode DriveMode) *atomic.Bool {
	switch mode {
	case Center:
		return &s.FailCenter
	case Wave:
		return &s.FailWave
	default:
		return &s.FailStop
	}
}

// resetCommand zeroes the commanded motion and the wave target.
func (s *State) resetCommand() {
	s.VDemand.Store(0)
	s.VCommand.Store(0)
	s.ZTarget.Store(0)
	s.VTarget.Store(0)
}

// Calibration holds the constants derived from the feedback geometry and the calibration
// parameters.
type Calibration struct {
	FullScaleVolts float64
	VoltsPerBit    float64
	VoltsPerMeter  float64
	MetersPerVolt  float64
	// ReferenceVolts is the feedback reading at the center position.
	ReferenceVolts float64
	// LowerVolts and UpperVolts bound the safe band, SafeRange of full scale around mid scale.
	LowerVolts float64
	UpperVolts float64
}

// NewCalibration computes the calibration constants.
func NewCalibration(feedback config.FeedbackConfig, params config.Params) Calibration {
	full := feedback.FullScaleVolts()
	voltsPerMeter := full / params.Stroke
	halfBand := full * params.SafeRange / 2
	return Calibration{
		FullScaleVolts: full,
		VoltsPerBit:    full / float64(feedback.FullScaleReading),
		VoltsPerMeter:  voltsPerMeter,
		MetersPerVolt:  1 / voltsPerMeter,
		ReferenceVolts: full/2 + params.CenterOffset*voltsPerMeter,
		LowerVolts:     full/2 - halfBand,
		UpperVolts:     full/2 + halfBand,
	}
}
