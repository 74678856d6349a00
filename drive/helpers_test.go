package drive

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"

	"go.viam.com/wavetank/components/board/fake"
	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/logging"
)

// Pins of the test wiring.
const (
	testDirPin    = "20"
	testStepPin   = "18"
	testEnablePin = "21"
	testSpeedPin  = "12"
	testTorquePin = "13"
)

func testConfig(speedMode string) *config.Config {
	cfg := config.New()
	cfg.SpeedMode = speedMode
	cfg.Pins = config.PinConfig{
		Direction: testDirPin,
		Step:      testStepPin,
		Enable:    testEnablePin,
		PWMSpeed:  testSpeedPin,
		PWMTorque: testTorquePin,
		DirSign:   1,
	}
	return cfg
}

// newUnstartedController returns a controller whose loops are not running, so tests can drive
// the steps by hand.
func newUnstartedController(t *testing.T, cfg *config.Config, opts Options) (*Controller, *fake.Board, *observer.ObservedLogs) {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	b := fake.NewBoard(opts.Clock, logger)
	test.That(t, cfg.Validate("drive"), test.ShouldBeNil)
	c, err := newController(cfg, b, logger, opts)
	test.That(t, err, test.ShouldBeNil)
	return c, b, logs
}

// newRunningController returns a started controller, closed when the test ends.
func newRunningController(t *testing.T, cfg *config.Config, opts Options) (*Controller, *fake.Board, *observer.ObservedLogs) {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	b := fake.NewBoard(opts.Clock, logger)
	test.That(t, cfg.Validate("drive"), test.ShouldBeNil)
	c, err := NewController(context.Background(), cfg, b, logger, opts)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, c.Close(context.Background()), test.ShouldBeNil)
	})
	return c, b, logs
}

// readingAt returns the raw feedback reading for position z.
func readingAt(c *Controller, z float64) int {
	calib := c.calib.Load()
	return int((calib.ReferenceVolts + z*calib.VoltsPerMeter) / calib.VoltsPerBit)
}
