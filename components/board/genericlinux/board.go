// Package genericlinux implements a Linux board on top of periph.io: GPIO and PWM pins through
// gpioreg, the position feedback from an ADS1115 on a shared I²C bus, and a software waveform
// transmitter for step pulses.
package genericlinux

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/logging"
	"go.viam.com/wavetank/utils"
)

var _ = board.Board(&Board{})

// A Board is a Linux host driving the actuator directly from its header pins.
type Board struct {
	mu                 sync.RWMutex
	pwms               map[string]pwmSetting
	softwarePWMRunning map[string]bool
	defaultPWMFreq     physic.Frequency
	bus                *LockedBus
	analogs            map[string]board.Analog
	wave               *softwareWaveDriver
	logger             logging.Logger

	workers utils.StoppableWorkers
}

// NewBoard initialises periph.io, opens the feedback bus and returns the board. Failing to reach
// the hardware here aborts startup.
func NewBoard(cfg *config.Config, logger logging.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "cannot initialise periph host drivers")
	}
	if cfg.Feedback.I2CBus == "" {
		return nil, errors.New("expected feedback.i2c_bus in config for a linux board")
	}

	rawBus, err := i2creg.Open(cfg.Feedback.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open I2C bus %q", cfg.Feedback.I2CBus)
	}
	bus := NewLockedBus(rawBus)

	feedback, err := newADS1115Analog(bus, cfg.Feedback)
	if err != nil {
		return nil, multierr.Combine(err, bus.Close())
	}

	b := &Board{
		pwms:               map[string]pwmSetting{},
		softwarePWMRunning: map[string]bool{},
		defaultPWMFreq:     physic.Frequency(cfg.PWM.FrequencyHz) * physic.Hertz,
		bus:                bus,
		analogs:            map[string]board.Analog{board.FeedbackAnalogName: feedback},
		logger:             logger,
		workers:            utils.NewStoppableWorkers(),
	}
	b.wave = newSoftwareWaveDriver(b.workers, b.getGPIOLine, logger.Sublogger("wave"))
	return b, nil
}

// GPIOPinByName returns the pin with the given periph.io name, e.g. "GPIO17" or "17".
func (b *Board) GPIOPinByName(pinName string) (board.GPIOPin, error) {
	pin, err := b.getGPIOLine(pinName)
	if err != nil {
		return nil, err
	}

	return periphGpioPin{b, pin, pinName}, nil
}

// AnalogByName returns the analog pin by the given name if it exists.
func (b *Board) AnalogByName(name string) (board.Analog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.analogs[name]
	if !ok {
		return nil, errors.Errorf("can't find Analog (%s)", name)
	}
	return a, nil
}

// WaveDriver returns the software waveform transmitter.
func (b *Board) WaveDriver() board.WaveDriver {
	return b.wave
}

// Close stops the background loops and releases the bus.
func (b *Board) Close(ctx context.Context) error {
	err := b.wave.Clear()
	b.workers.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.analogs {
		err = multierr.Combine(err, a.Close(ctx))
	}
	return multierr.Combine(err, b.bus.Close())
}
