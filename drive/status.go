package drive

// Status is a snapshot of the drive for display and remote monitoring.
type Status struct {
	DriveMode string `json:"drive_mode"`
	SpeedMode string `json:"speed_mode"`
	Enabled   bool   `json:"enabled"`

	FeedbackVolts  float64 `json:"feedback_volts"`
	Position       float64 `json:"position"`
	VelocityFast   float64 `json:"velocity_fast"`
	VelocityMedium float64 `json:"velocity_medium"`
	VelocitySlow   float64 `json:"velocity_slow"`
	VDemand        float64 `json:"v_demand"`
	VCommand       float64 `json:"v_command"`
	ZTarget        float64 `json:"z_target"`
	VTarget        float64 `json:"v_target"`
	Integral       float64 `json:"integral"`
	Steps          float64 `json:"steps"`

	ReferenceVolts float64 `json:"reference_volts"`
	SafeLowerVolts float64 `json:"safe_lower_volts"`
	SafeUpperVolts float64 `json:"safe_upper_volts"`

	FailFeedback     bool `json:"fail_feedback"`
	FailSpeedControl bool `json:"fail_speed_control"`
	FailStepControl  bool `json:"fail_step_control"`
	FailStop         bool `json:"fail_stop"`
	FailCenter       bool `json:"fail_center"`
	FailWave         bool `json:"fail_wave"`

	Params map[string]float64 `json:"params"`
}

// Status returns the current state of the drive. Fields are read one by one, so a snapshot
// taken while the loops run may mix values from neighbouring ticks.
func (c *Controller) Status() Status {
	mode := c.modes.Mode()
	calib := c.calib.Load()
	var integral float64
	if pid, ok := c.pids[mode]; ok {
		integral = pid.Integral()
	}
	return Status{
		DriveMode:        mode.String(),
		SpeedMode:        SpeedMode(c.speedMode.Load()).String(),
		Enabled:          c.state.Enabled.Load(),
		FeedbackVolts:    c.state.FeedbackVolts.Load(),
		Position:         c.state.ZCur.Load(),
		VelocityFast:     c.state.VelocityFast.Load(),
		VelocityMedium:   c.state.VelocityMedium.Load(),
		VelocitySlow:     c.state.VelocitySlow.Load(),
		VDemand:          c.state.VDemand.Load(),
		VCommand:         c.state.VCommand.Load(),
		ZTarget:          c.state.ZTarget.Load(),
		VTarget:          c.state.VTarget.Load(),
		Integral:         integral,
		Steps:            c.state.Steps.Load(),
		ReferenceVolts:   calib.ReferenceVolts,
		SafeLowerVolts:   calib.LowerVolts,
		SafeUpperVolts:   calib.UpperVolts,
		FailFeedback:     c.state.FailFeedback.Load(),
		FailSpeedControl: c.state.FailSpeedControl.Load(),
		FailStepControl:  c.state.FailStepControl.Load(),
		FailStop:         c.state.FailStop.Load(),
		FailCenter:       c.state.FailCenter.Load(),
		FailWave:         c.state.FailWave.Load(),
		Params:           c.params.Load().Map(),
	}
}
