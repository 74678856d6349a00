// Package drive runs the wave tank actuator: it estimates the paddle position from the feedback
// sensor, runs the stop, center and wave control modes, and turns their velocity demand into
// PWM or step pulse output behind a safety governor.
package drive

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/control"
	"go.viam.com/wavetank/logging"
	"go.viam.com/wavetank/utils"
)

// Options tune how a Controller is built.
type Options struct {
	// Clock drives every timer of the controller. Nil means the real clock.
	Clock clock.Clock
	// ExternalFeedback disables the built in sampler. Samples then arrive through PushSample.
	ExternalFeedback bool
}

type pins struct {
	dir    board.GPIOPin
	step   board.GPIOPin
	enable board.GPIOPin
	speed  board.GPIOPin
	torque board.GPIOPin
}

// A Controller owns the actuator. All of its methods are safe for concurrent use.
type Controller struct {
	cfg      *config.Config
	pins     pins
	feedback board.Analog
	opts     Options

	paramsMu sync.Mutex
	params   atomic.Pointer[config.Params]
	calib    atomic.Pointer[Calibration]
	state    State

	modeMu    sync.Mutex
	modes     *modeSignal
	estimator *Estimator
	governor  *Governor
	pids      map[DriveMode]*control.PID
	waveStart atomic.Time
	waveCorr  atomic.Float64
	scheduler *Scheduler

	speedMu      sync.Mutex
	speedMode    atomic.Int32
	speedBackend speedBackend
	speedWorkers utils.StoppableWorkers

	clock          clock.Clock
	logger         logging.Logger
	modeLogger     logging.Logger
	speedLogger    logging.Logger
	feedbackLogger logging.Logger
	// stopReporter is only used by the Stop loop.
	stopReporter *errorReporter

	workers utils.StoppableWorkers
	closed  atomic.Bool
}

// NewController wires the drive to the board and starts its loops in Stop mode. cfg must have
// been validated.
func NewController(
	ctx context.Context,
	cfg *config.Config,
	b board.Board,
	logger logging.Logger,
	opts Options,
) (*Controller, error) {
	c, err := newController(cfg, b, logger, opts)
	if err != nil {
		return nil, err
	}
	if err := c.start(ctx); err != nil {
		return nil, multierr.Combine(err, c.Close(ctx))
	}
	return c, nil
}

// newController builds a controller without starting any goroutine.
func newController(cfg *config.Config, b board.Board, logger logging.Logger, opts Options) (*Controller, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := &Controller{
		cfg:            cfg,
		opts:           opts,
		modes:          newModeSignal(),
		clock:          opts.Clock,
		logger:         logger,
		modeLogger:     logger.Sublogger("modes"),
		speedLogger:    logger.Sublogger("speed"),
		feedbackLogger: logger.Sublogger("feedback"),
	}

	var err error
	if c.pins.dir, err = b.GPIOPinByName(cfg.Pins.Direction); err != nil {
		return nil, errors.Wrap(err, "cannot get direction pin")
	}
	optional := []struct {
		name string
		pin  *board.GPIOPin
	}{
		{cfg.Pins.Step, &c.pins.step},
		{cfg.Pins.Enable, &c.pins.enable},
		{cfg.Pins.PWMSpeed, &c.pins.speed},
		{cfg.Pins.PWMTorque, &c.pins.torque},
	}
	for _, o := range optional {
		if o.name == "" {
			continue
		}
		if *o.pin, err = b.GPIOPinByName(o.name); err != nil {
			return nil, errors.Wrapf(err, "cannot get pin %q", o.name)
		}
	}
	if !opts.ExternalFeedback {
		if c.feedback, err = b.AnalogByName(board.FeedbackAnalogName); err != nil {
			return nil, errors.Wrap(err, "cannot get feedback analog")
		}
	}
	if driver := b.WaveDriver(); driver != nil {
		c.scheduler = NewScheduler(driver, c.clock, c.minPad(), logger.Sublogger("pulses"))
	}

	params := cfg.Params
	c.params.Store(&params)
	c.UpdateConst()
	c.pids = map[DriveMode]*control.PID{
		Center: control.NewPID(pidConfig(&params)),
		Wave:   control.NewPID(pidConfig(&params)),
	}
	c.estimator = NewEstimator(&c.state, c.calib.Load, params.FeedbackAlpha)
	c.governor = &Governor{state: &c.state, calib: c.calib.Load, params: c.params.Load, mode: c.modes.Mode}
	c.stopReporter = newErrorReporter(c.modeLogger, c.clock, "disabling the driver")
	c.speedMode.Store(-1)
	return c, nil
}

func (c *Controller) start(ctx context.Context) error {
	if c.pins.enable != nil {
		if err := c.pins.enable.Set(ctx, false); err != nil {
			return errors.Wrap(err, "cannot disable driver")
		}
	}
	c.workers = utils.NewStoppableWorkers(
		func(ctx context.Context) { c.modeLoop(ctx, Stop, c.stopStep) },
		func(ctx context.Context) { c.modeLoop(ctx, Center, c.centerStep) },
		func(ctx context.Context) { c.modeLoop(ctx, Wave, c.waveStep) },
	)
	if !c.opts.ExternalFeedback {
		c.workers.AddWorkers(c.sampleLoop)
	}
	return c.SetSpeedMode(ctx, c.cfg.SpeedMode)
}

func pidConfig(params *config.Params) control.PIDConfig {
	return control.PIDConfig{
		Kp:            params.KP,
		Ki:            params.KI,
		Kd:            params.KD,
		IntegralLimit: params.IntegralLimit,
		MaxOutput:     params.MaxSpeed,
		DirectionBias: params.DirectionBias,
	}
}

func (c *Controller) minPad() time.Duration {
	return time.Duration(c.cfg.Step.MinPadMicros) * time.Microsecond
}

func (c *Controller) controlInterval() time.Duration {
	return time.Duration(c.params.Load().ControlIntervalMS * float64(time.Millisecond))
}

func (c *Controller) sampleInterval() time.Duration {
	return time.Duration(c.params.Load().SampleIntervalMS * float64(time.Millisecond))
}

// sleep waits d on the controller clock, returning false if ctx ends first.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// SetMode switches the drive mode by name. Entering a mode clears its fault flag, so this is
// also how an operator re-engages after a fault. A mode the governor vetoes is refused.
func (c *Controller) SetMode(name string) error {
	mode, err := ParseDriveMode(name)
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return errors.New("drive is closed")
	}
	if reason := c.governor.sharedReason(mode); reason != "" && mode != Stop {
		return errors.Errorf("cannot enter %s mode: %s", mode, reason)
	}
	c.state.ModeFail(mode).Store(false)
	c.setMode(mode, "requested")
	return nil
}

// setMode publishes mode. Setting the active mode again only re-asserts a zero command when
// stopping: the integral is kept and nobody is woken.
func (c *Controller) setMode(mode DriveMode, reason string) bool {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.modes.Mode() == mode {
		if mode == Stop {
			c.state.resetCommand()
		}
		return false
	}
	if pid, ok := c.pids[mode]; ok {
		pid.Reset()
	}
	if mode == Wave {
		c.waveStart.Store(c.clock.Now())
		c.waveCorr.Store(0)
	}
	prev, _ := c.modes.Set(mode)
	if mode == Stop {
		c.state.resetCommand()
	}
	c.modeLogger.Infow("drive mode changed", "from", prev, "to", mode, "reason", reason)
	return true
}

// Mode returns the active drive mode.
func (c *Controller) Mode() DriveMode {
	return c.modes.Mode()
}

// SetSpeedMode replaces the speed backend. The old backend is stopped and its output nulled
// before the new one starts.
func (c *Controller) SetSpeedMode(ctx context.Context, name string) error {
	mode, err := ParseSpeedMode(name)
	if err != nil {
		return err
	}
	c.speedMu.Lock()
	defer c.speedMu.Unlock()
	if c.closed.Load() {
		return errors.New("drive is closed")
	}
	if SpeedMode(c.speedMode.Load()) == mode {
		return nil
	}
	backend, err := c.newSpeedBackend(mode)
	if err != nil {
		return err
	}

	if c.speedWorkers != nil {
		c.speedWorkers.Stop()
		if err := c.speedBackend.null(ctx); err != nil {
			c.speedLogger.Warnw("cannot null previous speed output", "mode", SpeedMode(c.speedMode.Load()), "error", err)
		}
		if flag := c.speedBackend.failFlag(); flag != nil {
			flag.Store(false)
		}
	}
	prev := SpeedMode(c.speedMode.Load())
	c.speedBackend = backend
	c.speedMode.Store(int32(mode))
	c.speedWorkers = utils.NewChildStoppableWorkers(c.workers, func(ctx context.Context) {
		c.speedLoop(ctx, backend)
	})
	c.speedLogger.Infow("speed mode changed", "from", prev, "to", mode)
	return nil
}

// SetParams validates and applies parameter updates. Nothing changes unless every update is
// valid. Parameters the calibration depends on trigger UpdateConst.
func (c *Controller) SetParams(updates map[string]interface{}) error {
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()

	next, recalibrate, err := c.params.Load().Apply(updates)
	if err != nil {
		return err
	}
	c.params.Store(&next)
	for _, pid := range c.pids {
		pid.Configure(pidConfig(&next))
	}
	c.estimator.SetAlpha(next.FeedbackAlpha)
	if recalibrate {
		c.UpdateConst()
	}
	c.logger.Infow("parameters updated", "updates", updates, "recalibrated", recalibrate)
	return nil
}

// Params returns a copy of the current parameters.
func (c *Controller) Params() config.Params {
	return *c.params.Load()
}

// UpdateConst recomputes the calibration constants from the current parameters.
func (c *Controller) UpdateConst() {
	calib := NewCalibration(c.cfg.Feedback, *c.params.Load())
	c.calib.Store(&calib)
	c.logger.Debugw("calibration updated",
		"reference_volts", calib.ReferenceVolts,
		"lower_volts", calib.LowerVolts,
		"upper_volts", calib.UpperVolts,
	)
}

// Close stops every loop, clears the waveforms and drives every pin low. It is the only way to
// stop the controller; a second call does nothing.
func (c *Controller) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.setMode(Stop, "closing")

	c.speedMu.Lock()
	if c.speedWorkers != nil {
		c.speedWorkers.Stop()
	}
	c.speedMu.Unlock()
	if c.workers != nil {
		c.workers.Stop()
	}

	var err error
	if c.scheduler != nil {
		err = errors.Wrap(c.scheduler.Clear(ctx), "cannot clear waveforms")
	}
	err = multierr.Combine(err, c.zeroPins(ctx))
	c.state.Enabled.Store(false)
	c.resetMotion()
	if err != nil {
		c.logger.Errorw("errors while stopping the drive", "error", err)
	}
	return err
}

// resetMotion forgets the motion history: the command, the estimates, the integrals, the step
// count and the direction latch. The next feedback sample starts from rest. Only called once
// nothing else is running.
func (c *Controller) resetMotion() {
	c.state.resetCommand()
	c.estimator.Reset()
	for _, pid := range c.pids {
		pid.Reset()
	}
	c.state.VelocityFast.Store(0)
	c.state.VelocityMedium.Store(0)
	c.state.VelocitySlow.Store(0)
	c.state.Steps.Store(0)
	c.state.Direction.Store(0)
	c.waveCorr.Store(0)
}

// zeroPins drives every configured pin low in parallel, retrying each failed write once.
func (c *Controller) zeroPins(ctx context.Context) error {
	type pinWrite struct {
		name  string
		write func(ctx context.Context) error
	}
	var writes []pinWrite
	level := func(name string, pin board.GPIOPin) {
		if pin != nil {
			writes = append(writes, pinWrite{name, func(ctx context.Context) error { return pin.Set(ctx, false) }})
		}
	}
	duty := func(name string, pin board.GPIOPin) {
		if pin != nil {
			writes = append(writes, pinWrite{name, func(ctx context.Context) error { return pin.SetPWM(ctx, 0) }})
		}
	}
	level("enable", c.pins.enable)
	level("dir", c.pins.dir)
	level("step", c.pins.step)
	duty("pwm_speed", c.pins.speed)
	duty("pwm_torque", c.pins.torque)

	errs := make([]error, len(writes))
	var group errgroup.Group
	for i, w := range writes {
		i, w := i, w
		group.Go(func() error {
			err := w.write(ctx)
			if err != nil {
				err = w.write(ctx)
			}
			errs[i] = errors.Wrapf(err, "cannot zero %s pin", w.name)
			return errs[i]
		})
	}
	if group.Wait() == nil {
		return nil
	}
	return multierr.Combine(errs...)
}
