package drive

import (
	"math"

	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/utils"
)

// Governor decides whether a mode may run and limits every velocity demand before it reaches
// the hardware.
type Governor struct {
	state  *State
	calib  func() *Calibration
	params func() *config.Params
	mode   func() DriveMode
}

// IsSafe reports whether mode may drive the actuator. A global output fault vetoes every mode;
// the closed loop modes additionally need working feedback.
func (g *Governor) IsSafe(mode DriveMode) bool {
	return g.Reason(mode) == ""
}

// Reason names the fault that makes mode unsafe, or returns "" when it is safe.
func (g *Governor) Reason(mode DriveMode) string {
	if g.state.ModeFail(mode).Load() {
		return "fail_" + mode.String()
	}
	return g.sharedReason(mode)
}

// sharedReason is Reason without mode's own fault flag: the faults that entering mode again
// does not clear.
func (g *Governor) sharedReason(mode DriveMode) string {
	switch {
	case g.state.FailSpeedControl.Load():
		return "fail_speed_control"
	case g.state.FailStepControl.Load():
		return "fail_step_control"
	case mode != Stop && g.state.FailFeedback.Load():
		return "fail_feedback"
	default:
		return ""
	}
}

// Clamp zeroes v when the feedback voltage is outside the safe band and v would push it
// further out. Moves back toward the band pass unchanged.
func (g *Governor) Clamp(v, volts float64) float64 {
	calib := g.calib()
	if volts >= calib.UpperVolts && v > 0 {
		return 0
	}
	if volts <= calib.LowerVolts && v < 0 {
		return 0
	}
	return v
}

// Limit turns a demand into the command velocity: bounded by max_speed, clamped at the edges
// of the safe band, and zero while stopped or disabled.
func (g *Governor) Limit(demand float64) float64 {
	if g.mode() == Stop || !g.state.Enabled.Load() || math.IsNaN(demand) {
		return 0
	}
	maxSpeed := g.params().MaxSpeed
	v := utils.Sign(demand) * math.Min(maxSpeed, math.Abs(demand))
	return g.Clamp(v, g.state.FeedbackVolts.Load())
}
