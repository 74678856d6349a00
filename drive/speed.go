package drive

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/utils"
)

// A speedBackend turns the command velocity into hardware output. Exactly one runs at a time,
// driven by speedLoop.
type speedBackend interface {
	// cycle drives the output from v, dt after the previous cycle, and returns how long to wait
	// before the next one.
	cycle(ctx context.Context, v float64, dt time.Duration) (time.Duration, error)
	// null puts the output in its no motion state.
	null(ctx context.Context) error
	// failFlag is the fault flag the backend sets on error, nil when it cannot fail.
	failFlag() *atomic.Bool
}

func (c *Controller) newSpeedBackend(mode SpeedMode) (speedBackend, error) {
	switch mode {
	case SpeedOff:
		return &offBackend{c: c}, nil
	case SpeedPWM:
		if c.pins.speed == nil {
			return nil, errors.New("speed mode pwm needs pins.pwm_speed")
		}
		return &pwmBackend{c: c, pwmRange: float64(c.cfg.PWM.Range)}, nil
	case SpeedStep:
		mask, err := c.stepMask()
		if err != nil {
			return nil, err
		}
		return &stepBackend{c: c, mask: mask}, nil
	case SpeedStepPWM:
		if c.pins.step == nil {
			return nil, errors.New("speed mode step_pwm needs pins.step")
		}
		return &stepPWMBackend{c: c}, nil
	default:
		return nil, utils.NewUnknownNameError("speed mode", mode.String())
	}
}

func (c *Controller) stepMask() (uint32, error) {
	if c.pins.step == nil {
		return 0, errors.New("speed mode step needs pins.step")
	}
	if c.scheduler == nil {
		return 0, errors.New("speed mode step needs a board with a waveform driver")
	}
	numbered, ok := c.pins.step.(board.PinNumber)
	if !ok || numbered.Number() < 0 || numbered.Number() > 31 {
		return 0, errors.Errorf("step pin %q has no GPIO line number usable in a waveform", c.cfg.Pins.Step)
	}
	return 1 << uint(numbered.Number()), nil
}

// setDirection drives the direction pin for v. The pin is only written when the sign of v
// differs from the latched direction; zero keeps the latch.
func (c *Controller) setDirection(ctx context.Context, v float64) error {
	sign := int32(utils.Sign(v))
	if sign == 0 || sign == c.state.Direction.Load() {
		return nil
	}
	high := sign*int32(c.cfg.Pins.DirSign) > 0
	if err := c.pins.dir.Set(ctx, high); err != nil {
		return errors.Wrap(err, "cannot set direction pin")
	}
	c.state.Direction.Store(sign)
	return nil
}

func (c *Controller) speedLoop(ctx context.Context, backend speedBackend) {
	reporter := newErrorReporter(c.speedLogger, c.clock, "driving speed output")
	last := c.clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		now := c.clock.Now()
		wait, err := backend.cycle(ctx, c.state.VCommand.Load(), now.Sub(last))
		last = now
		if flag := backend.failFlag(); flag != nil {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				flag.Store(true)
				reporter.report(err)
			} else {
				flag.Store(false)
				reporter.recovered()
			}
		}
		if !c.sleep(ctx, wait) {
			return
		}
	}
}

// offBackend drives nothing and keeps the step count as if the actuator followed the command.
type offBackend struct {
	c *Controller
}

func (b *offBackend) cycle(ctx context.Context, v float64, dt time.Duration) (time.Duration, error) {
	b.c.state.Steps.Add(v * dt.Seconds() / b.c.params.Load().DistancePerStep)
	return b.c.controlInterval(), nil
}

func (b *offBackend) null(ctx context.Context) error {
	return nil
}

func (b *offBackend) failFlag() *atomic.Bool {
	return nil
}

// pwmBackend drives a bidirectional speed PWM centered on half range and an optional torque
// limit PWM. Both sit at their null output while the driver is disabled.
type pwmBackend struct {
	c        *Controller
	pwmRange float64
}

// pwmDuties returns the speed and torque duty cycles, in counts of pwmRange, for velocity v.
func pwmDuties(v float64, params *config.Params, pwmRange float64) (speed, torque float64) {
	speed = pwmRange / 2
	if params.MaxSpeed > 0 {
		k := (pwmRange/2 - 1) / params.MaxSpeed
		speed = utils.Clamp(speed+v*k, 1, pwmRange-1)
	}
	if params.TorqueLimit >= params.TorqueMin {
		torque = params.TorqueLimit * pwmRange
	}
	return speed, torque
}

func (b *pwmBackend) cycle(ctx context.Context, v float64, dt time.Duration) (time.Duration, error) {
	interval := b.c.controlInterval()
	if !b.c.state.Enabled.Load() {
		return interval, b.null(ctx)
	}
	if err := b.c.setDirection(ctx, v); err != nil {
		return interval, err
	}
	speed, torque := pwmDuties(v, b.c.params.Load(), b.pwmRange)
	return interval, b.write(ctx, speed, torque)
}

func (b *pwmBackend) write(ctx context.Context, speed, torque float64) error {
	err := errors.Wrap(b.c.pins.speed.SetPWM(ctx, speed/b.pwmRange), "cannot set speed pwm")
	if b.c.pins.torque != nil {
		err = multierr.Combine(err, errors.Wrap(b.c.pins.torque.SetPWM(ctx, torque/b.pwmRange), "cannot set torque pwm"))
	}
	return err
}

func (b *pwmBackend) null(ctx context.Context) error {
	return b.write(ctx, b.pwmRange/2, 0)
}

func (b *pwmBackend) failFlag() *atomic.Bool {
	return &b.c.state.FailSpeedControl
}

// stepBackend feeds step pulse trains to the waveform scheduler.
type stepBackend struct {
	c    *Controller
	mask uint32
}

// stepTrain returns the pulses stepping at velocity v over one span, and how many steps they
// make.
func stepTrain(v, distancePerStep float64, cfg config.StepConfig, mask uint32) ([]board.Pulse, int) {
	interval := 1e6 * distancePerStep / math.Abs(v)
	intervalMicros := int(utils.Clamp(interval, float64(cfg.MinPulseMicros), float64(cfg.MaxWaitMicros)))
	if intervalMicros < 1 {
		intervalMicros = 1
	}
	count := utils.ClampInt(cfg.SpanMicros/intervalMicros, 1, max(cfg.MaxPulses, 1))
	high := intervalMicros / 2
	if high < 1 {
		high = 1
	}

	pulses := make([]board.Pulse, 0, 2*count)
	for i := 0; i < count; i++ {
		pulses = append(pulses,
			board.Pulse{OnMask: mask, DelayMicros: uint32(high)},
			board.Pulse{OffMask: mask, DelayMicros: uint32(intervalMicros - high)},
		)
	}
	return pulses, count
}

func (b *stepBackend) cycle(ctx context.Context, v float64, dt time.Duration) (time.Duration, error) {
	if v == 0 {
		// Once stopped, steps still queued are abandoned rather than played out.
		if b.c.modes.Mode() == Stop && b.c.scheduler.Remaining() > 0 {
			return b.c.controlInterval(), b.null(ctx)
		}
		return b.c.controlInterval(), nil
	}
	if err := b.c.setDirection(ctx, v); err != nil {
		return b.c.controlInterval(), err
	}
	pulses, count := stepTrain(v, b.c.params.Load().DistancePerStep, b.c.cfg.Step, b.mask)
	if err := b.c.scheduler.Schedule(ctx, pulses); err != nil {
		return b.c.controlInterval(), err
	}
	b.c.state.Steps.Add(utils.Sign(v) * float64(count))

	// Come back just before the train runs out so the next one chains on without a gap.
	return b.c.scheduler.Remaining() - b.c.minPad(), nil
}

func (b *stepBackend) null(ctx context.Context) error {
	return b.c.scheduler.Clear(ctx)
}

func (b *stepBackend) failFlag() *atomic.Bool {
	return &b.c.state.FailStepControl
}

// stepPWMBackend drives the step pin with hardware PWM at the step rate.
type stepPWMBackend struct {
	c       *Controller
	freqHz  uint
	running bool
}

func (b *stepPWMBackend) cycle(ctx context.Context, v float64, dt time.Duration) (time.Duration, error) {
	interval := b.c.controlInterval()
	distancePerStep := b.c.params.Load().DistancePerStep
	b.c.state.Steps.Add(v * dt.Seconds() / distancePerStep)

	freq := uint(math.Round(math.Abs(v) / distancePerStep))
	if freq == 0 {
		if !b.running {
			return interval, nil
		}
		return interval, b.null(ctx)
	}
	if err := b.c.setDirection(ctx, v); err != nil {
		return interval, err
	}
	if freq != b.freqHz {
		if err := b.c.pins.step.SetPWMFreq(ctx, freq); err != nil {
			return interval, errors.Wrap(err, "cannot set step frequency")
		}
		b.freqHz = freq
	}
	if !b.running {
		if err := b.c.pins.step.SetPWM(ctx, 0.5); err != nil {
			return interval, errors.Wrap(err, "cannot start step pwm")
		}
		b.running = true
	}
	return interval, nil
}

func (b *stepPWMBackend) null(ctx context.Context) error {
	if err := b.c.pins.step.SetPWM(ctx, 0); err != nil {
		return errors.Wrap(err, "cannot stop step pwm")
	}
	b.running = false
	return nil
}

func (b *stepPWMBackend) failFlag() *atomic.Bool {
	return &b.c.state.FailStepControl
}
