package drive

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/config"
)

func TestPWMDuties(t *testing.T) {
	params := config.DefaultParams()
	const pwmRange = 255.0

	speed, torque := pwmDuties(0, &params, pwmRange)
	test.That(t, speed, test.ShouldEqual, pwmRange/2)
	test.That(t, torque, test.ShouldAlmostEqual, params.TorqueLimit*pwmRange)

	speed, _ = pwmDuties(params.MaxSpeed, &params, pwmRange)
	test.That(t, speed, test.ShouldAlmostEqual, pwmRange-1)
	speed, _ = pwmDuties(-params.MaxSpeed/2, &params, pwmRange)
	test.That(t, speed, test.ShouldAlmostEqual, pwmRange/2-(pwmRange/2-1)/2)

	speed, _ = pwmDuties(10, &params, pwmRange)
	test.That(t, speed, test.ShouldEqual, pwmRange-1)
	speed, _ = pwmDuties(-10, &params, pwmRange)
	test.That(t, speed, test.ShouldEqual, 1)

	params.TorqueLimit = params.TorqueMin / 2
	_, torque = pwmDuties(0.1, &params, pwmRange)
	test.That(t, torque, test.ShouldEqual, 0)
}

func TestStepTrain(t *testing.T) {
	cfg := config.New().Step
	const distancePerStep = 1e-4

	pulses, count := stepTrain(0.1, distancePerStep, cfg, testStepMask)
	test.That(t, count, test.ShouldEqual, 20)
	test.That(t, pulses, test.ShouldHaveLength, 40)
	test.That(t, pulses[0], test.ShouldResemble, board.Pulse{OnMask: testStepMask, DelayMicros: 500})
	test.That(t, pulses[1], test.ShouldResemble, board.Pulse{OffMask: testStepMask, DelayMicros: 500})
	test.That(t, board.PulsesDuration(pulses), test.ShouldEqual, 20*time.Millisecond)

	// Too slow for one step per span: a single step at the longest interval.
	pulses, count = stepTrain(-1e-4, distancePerStep, cfg, testStepMask)
	test.That(t, count, test.ShouldEqual, 1)
	test.That(t, board.PulsesDuration(pulses), test.ShouldEqual, time.Duration(cfg.MaxWaitMicros)*time.Microsecond)

	// Too fast: the shortest interval, capped at max pulses.
	_, count = stepTrain(100, distancePerStep, cfg, testStepMask)
	test.That(t, count, test.ShouldEqual, cfg.MaxPulses)

	// Timing that skipped validation still yields whole pulses.
	cfg.MinPulseMicros = -1
	cfg.MaxPulses = 0
	pulses, count = stepTrain(2, 1e-7, cfg, testStepMask)
	test.That(t, count, test.ShouldEqual, 1)
	test.That(t, pulses, test.ShouldHaveLength, 2)
	test.That(t, pulses[0].DelayMicros, test.ShouldEqual, uint32(1))
}

func TestDirectionOnlyTogglesOnSignChange(t *testing.T) {
	c, b, _ := newUnstartedController(t, testConfig(config.SpeedModePWM), Options{})
	ctx := context.Background()
	for _, v := range []float64{0.1, 0.2, 0, -0.1, -0.3, 0, 0.1} {
		test.That(t, c.setDirection(ctx, v), test.ShouldBeNil)
	}
	test.That(t, b.Pin(testDirPin).SetCount(), test.ShouldEqual, 3)
	test.That(t, b.Pin(testDirPin).High(), test.ShouldBeTrue)
	test.That(t, c.state.Direction.Load(), test.ShouldEqual, 1)

	cfg := testConfig(config.SpeedModePWM)
	cfg.Pins.DirSign = -1
	reversed, rb, _ := newUnstartedController(t, cfg, Options{})
	test.That(t, reversed.setDirection(ctx, 0.1), test.ShouldBeNil)
	test.That(t, rb.Pin(testDirPin).High(), test.ShouldBeFalse)
	test.That(t, rb.Pin(testDirPin).SetCount(), test.ShouldEqual, 1)
}

func TestSpeedBackendsNeedTheirPins(t *testing.T) {
	cfg := testConfig(config.SpeedModeOff)
	cfg.Pins.PWMSpeed = ""
	cfg.Pins.Step = ""
	c, _, _ := newUnstartedController(t, cfg, Options{})
	for _, mode := range []SpeedMode{SpeedPWM, SpeedStep, SpeedStepPWM} {
		_, err := c.newSpeedBackend(mode)
		test.That(t, err, test.ShouldNotBeNil)
	}
	_, err := c.newSpeedBackend(SpeedOff)
	test.That(t, err, test.ShouldBeNil)

	cfg = testConfig(config.SpeedModeOff)
	cfg.Pins.Step = "step"
	c, _, _ = newUnstartedController(t, cfg, Options{})
	_, err = c.newSpeedBackend(SpeedStep)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = c.newSpeedBackend(SpeedStepPWM)
	test.That(t, err, test.ShouldBeNil)
}

func TestSetSpeedMode(t *testing.T) {
	c, b, _ := newRunningController(t, testConfig(config.SpeedModePWM), Options{ExternalFeedback: true})
	ctx := context.Background()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, b.Pin(testSpeedPin).Duty(), test.ShouldEqual, 0.5)
	})
	test.That(t, c.Status().SpeedMode, test.ShouldEqual, "pwm")

	test.That(t, c.SetSpeedMode(ctx, "warp"), test.ShouldNotBeNil)
	test.That(t, c.Status().SpeedMode, test.ShouldEqual, "pwm")

	test.That(t, c.SetSpeedMode(ctx, "step_pwm"), test.ShouldBeNil)
	test.That(t, c.Status().SpeedMode, test.ShouldEqual, "step_pwm")
	test.That(t, b.Pin(testTorquePin).Duty(), test.ShouldEqual, 0)

	test.That(t, c.SetSpeedMode(ctx, "off"), test.ShouldBeNil)
	test.That(t, c.SetSpeedMode(ctx, "off"), test.ShouldBeNil)
	test.That(t, c.Status().SpeedMode, test.ShouldEqual, "off")
}

func TestStepOutputNeverDeletesInFlight(t *testing.T) {
	c, b, _ := newRunningController(t, testConfig(config.SpeedModeStep), Options{ExternalFeedback: true})

	// Hold the paddle off center so the center mode keeps stepping.
	c.PushSample(Sample{Reading: readingAt(c, 0.1), Timestamp: time.Now()})
	test.That(t, c.SetMode("center"), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(b.Wave.Sent()), test.ShouldBeGreaterThanOrEqualTo, 4)
	})
	status := c.Status()
	test.That(t, status.VCommand, test.ShouldBeLessThan, 0)
	test.That(t, status.Steps, test.ShouldBeLessThan, 0)
	test.That(t, status.FailStepControl, test.ShouldBeFalse)
	test.That(t, b.Wave.Live(), test.ShouldBeLessThanOrEqualTo, 2)

	test.That(t, c.SetMode("stop"), test.ShouldBeNil)
	test.That(t, c.Close(context.Background()), test.ShouldBeNil)
	test.That(t, b.Wave.Violations(), test.ShouldBeEmpty)
	test.That(t, b.Wave.Live(), test.ShouldEqual, 0)
}

func TestStepPWMBackend(t *testing.T) {
	c, b, _ := newUnstartedController(t, testConfig(config.SpeedModeStepPWM), Options{})
	ctx := context.Background()
	backend, err := c.newSpeedBackend(SpeedStepPWM)
	test.That(t, err, test.ShouldBeNil)
	step := b.Pin(testStepPin)

	// 0.01 m/s at 0.1 mm per step.
	_, err = backend.cycle(ctx, 0.01, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, step.Freq(), test.ShouldEqual, uint(100))
	test.That(t, step.Duty(), test.ShouldEqual, 0.5)
	test.That(t, b.Pin(testDirPin).High(), test.ShouldBeTrue)
	test.That(t, c.state.Steps.Load(), test.ShouldAlmostEqual, 1, 1e-9)

	_, err = backend.cycle(ctx, -0.02, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, step.Freq(), test.ShouldEqual, uint(200))
	test.That(t, b.Pin(testDirPin).High(), test.ShouldBeFalse)

	_, err = backend.cycle(ctx, 0, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, step.Duty(), test.ShouldEqual, 0)

	// Once stopped, a zero command writes nothing, so an injected failure goes unnoticed.
	step.FailNext(1)
	_, err = backend.cycle(ctx, 0, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
}

func TestStepBackendDropsQueuedStepsOnStop(t *testing.T) {
	c, b, _ := newUnstartedController(t, testConfig(config.SpeedModeStep), Options{ExternalFeedback: true})
	ctx := context.Background()
	backend, err := c.newSpeedBackend(SpeedStep)
	test.That(t, err, test.ShouldBeNil)

	c.modes.Set(Center)
	_, err = backend.cycle(ctx, 0.01, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Wave.Live(), test.ShouldEqual, 1)

	// A zero command in an active mode lets the queued steps play out.
	_, err = backend.cycle(ctx, 0, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Wave.Live(), test.ShouldEqual, 1)
	test.That(t, c.scheduler.Remaining(), test.ShouldBeGreaterThan, 0)

	c.modes.Set(Stop)
	_, err = backend.cycle(ctx, 0, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Wave.Live(), test.ShouldEqual, 0)
	test.That(t, c.scheduler.Remaining(), test.ShouldEqual, 0)
	test.That(t, b.Wave.Violations(), test.ShouldBeEmpty)
}
