package drive

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/control"
	"go.viam.com/wavetank/utils"
)

// StepResult is what one tick of a mode loop tells the loop to do next.
type StepResult int

const (
	// StepContinue keeps the mode running.
	StepContinue StepResult = iota
	// StepUnsafe stops the drive and demotes to Stop.
	StepUnsafe
	// StepFault additionally flags the mode as failed.
	StepFault
)

type stepFunc func(ctx context.Context, dt time.Duration) (StepResult, error)

// modeLoop runs step every control interval while mode is the active, safe drive mode, and
// otherwise sleeps until the mode changes. Stop runs whatever faults are set.
func (c *Controller) modeLoop(ctx context.Context, mode DriveMode, step stepFunc) {
	for {
		active, version, changed := c.modes.Load()
		if active == mode {
			if reason := c.governor.Reason(mode); reason != "" && mode != Stop {
				c.emergencyStop(ctx, mode, reason)
			} else {
				c.runMode(ctx, mode, version, step)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (c *Controller) runMode(ctx context.Context, mode DriveMode, version uint64, step stepFunc) {
	last := c.clock.Now()
	for {
		now := c.clock.Now()
		result, err := step(ctx, now.Sub(last))
		last = now
		if c.modes.Version() != version {
			return
		}
		switch result {
		case StepFault:
			c.fault(ctx, mode, err)
			return
		case StepUnsafe:
			c.emergencyStop(ctx, mode, err.Error())
			return
		case StepContinue:
		}

		if !c.sleep(ctx, c.controlInterval()) || c.modes.Version() != version {
			return
		}
		if mode == Stop {
			continue
		}
		if reason := c.governor.Reason(mode); reason != "" {
			c.emergencyStop(ctx, mode, reason)
			return
		}
	}
}

func (c *Controller) fault(ctx context.Context, mode DriveMode, err error) {
	c.state.ModeFail(mode).Store(true)
	c.modeLogger.Errorw("drive mode failed", "mode", mode, "error", err)
	c.emergencyStop(ctx, mode, "fail_"+mode.String())
}

// emergencyStop zeroes the command, disables the driver and demotes to Stop.
func (c *Controller) emergencyStop(ctx context.Context, mode DriveMode, reason string) {
	c.state.resetCommand()
	if err := c.setEnabled(ctx, false); err != nil {
		c.modeLogger.Errorw("cannot disable driver during emergency stop", "error", err)
	}
	c.modeLogger.Warnw("emergency stop", "mode", mode, "reason", reason)
	c.setMode(Stop, reason)
}

// setEnabled drives the enable pin when the wanted state differs from the current one.
func (c *Controller) setEnabled(ctx context.Context, on bool) error {
	if c.state.Enabled.Load() == on {
		return nil
	}
	if c.pins.enable != nil {
		if err := c.pins.enable.Set(ctx, on); err != nil {
			return errors.Wrap(err, "cannot set enable pin")
		}
	}
	c.state.Enabled.Store(on)
	return nil
}

// demand publishes a velocity demand and the command the governor derives from it.
func (c *Controller) demand(d float64) (StepResult, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return StepUnsafe, errors.Errorf("non finite velocity demand %v", d)
	}
	c.state.VDemand.Store(d)
	c.state.VCommand.Store(c.governor.Limit(d))
	return StepContinue, nil
}

// stopStep holds the command at zero and keeps trying to disable the driver. A failed write
// sets fail_stop until a later tick gets through; Stop never demotes itself.
func (c *Controller) stopStep(ctx context.Context, dt time.Duration) (StepResult, error) {
	c.state.resetCommand()
	if err := c.setEnabled(ctx, false); err != nil {
		c.stopReporter.report(err)
		c.state.FailStop.Store(true)
		return StepContinue, nil
	}
	if c.state.FailStop.Swap(false) {
		c.stopReporter.recovered()
	}
	return StepContinue, nil
}

// centerStep steers back to the reference position with a fraction of full speed.
func (c *Controller) centerStep(ctx context.Context, dt time.Duration) (StepResult, error) {
	if err := c.setEnabled(ctx, true); err != nil {
		return StepFault, err
	}
	params := c.params.Load()
	out := c.pids[Center].UpdateLimited(
		0, c.state.ZCur.Load(), -c.state.VelocityMedium.Load(), dt, params.CenterSpeedFraction)
	return c.demand(out)
}

// waveStep follows the regular wave: the target velocity feeds forward and a PID on the
// position error corrects it, blended in over one wave period.
func (c *Controller) waveStep(ctx context.Context, dt time.Duration) (StepResult, error) {
	if err := c.setEnabled(ctx, true); err != nil {
		return StepFault, err
	}
	wave := waveFromParams(c.params.Load())
	zTarget, vTarget := wave.At(c.clock.Since(c.waveStart.Load()))
	c.state.ZTarget.Store(zTarget)
	c.state.VTarget.Store(vTarget)

	out := c.pids[Wave].Update(zTarget, c.state.ZCur.Load(), vTarget-c.state.VelocityMedium.Load(), dt)
	m := 1.0
	if period := wave.Period(); period > 0 {
		m = utils.Clamp(dt.Seconds()/period, 0, 1)
	}
	corr := c.waveCorr.Load()*(1-m) + out*m
	c.waveCorr.Store(corr)
	return c.demand(vTarget + corr)
}

func waveFromParams(params *config.Params) control.RegularWave {
	return control.RegularWave{
		Height:     params.WaveHeight,
		Steepness:  params.WaveSteepness,
		RampTime:   seconds(params.WaveRampTime),
		CenterTime: seconds(params.CenterTime),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
