// Package fake implements a fake board.
package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/logging"
)

// Full scale of the fake feedback analog: a 16 bit ADC spanning 4.096V.
const (
	FullScaleReading = 32767
	FullScaleVolts   = 4.096
)

// NewBoard returns a new fake board. Its waveform driver keeps time with clk, a real clock when
// nil.
func NewBoard(clk clock.Clock, logger logging.Logger) *Board {
	if clk == nil {
		clk = clock.New()
	}
	return &Board{
		Analogs:  map[string]*Analog{board.FeedbackAnalogName: NewAnalog(FullScaleReading / 2)},
		GPIOPins: map[string]*GPIOPin{},
		Wave:     NewWaveDriver(clk),
		logger:   logger,
	}
}

// A Board provides dummy data from fake parts in order to implement a Board.
type Board struct {
	mu         sync.RWMutex
	Analogs    map[string]*Analog
	GPIOPins   map[string]*GPIOPin
	Wave       *WaveDriver
	logger     logging.Logger
	CloseCount int
}

// AnalogByName returns the analog pin by the given name if it exists.
func (b *Board) AnalogByName(name string) (board.Analog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.Analogs[name]
	if !ok {
		return nil, errors.Errorf("can't find Analog (%s)", name)
	}
	return a, nil
}

// GPIOPinByName returns the GPIO pin by the given name, creating it on first use.
func (b *Board) GPIOPinByName(name string) (board.GPIOPin, error) {
	return b.Pin(name), nil
}

// Pin is GPIOPinByName returning the concrete fake so tests can inspect it.
func (b *Board) Pin(name string) *GPIOPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.GPIOPins[name]
	if !ok {
		number, err := strconv.Atoi(name)
		if err != nil {
			number = -1
		}
		p = &GPIOPin{number: number}
		b.GPIOPins[name] = p
	}
	return p
}

// Feedback returns the fake feedback analog.
func (b *Board) Feedback() *Analog {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Analogs[board.FeedbackAnalogName]
}

// WaveDriver returns the fake waveform driver.
func (b *Board) WaveDriver() board.WaveDriver {
	return b.Wave
}

// Close attempts to cleanly close each part of the board.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	b.logger.Debugw("fake board closed", "count", b.CloseCount)
	return b.Wave.Clear()
}

// An Analog reads back the same set value, or the set error.
type Analog struct {
	Mu        sync.RWMutex
	Value     int
	Err       error
	ReadCount int
}

// NewAnalog returns an analog reading value.
func NewAnalog(value int) *Analog {
	return &Analog{Value: value}
}

// Read returns the set value, or the set error.
func (a *Analog) Read(ctx context.Context) (board.AnalogValue, error) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.ReadCount++
	if a.Err != nil {
		return board.AnalogValue{}, a.Err
	}
	return board.AnalogValue{
		Value:    a.Value,
		Min:      0,
		Max:      FullScaleVolts,
		StepSize: FullScaleVolts / FullScaleReading,
	}, nil
}

// Set is used to set the value of an Analog.
func (a *Analog) Set(value int) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.Value = value
}

// SetError makes every following Read fail with err, until it is set back to nil.
func (a *Analog) SetError(err error) {
	a.Mu.Lock()
	defer a.Mu.Unlock()
	a.Err = err
}

// Reads returns how many times Read has been called.
func (a *Analog) Reads() int {
	a.Mu.RLock()
	defer a.Mu.RUnlock()
	return a.ReadCount
}

// Close is a no-op.
func (a *Analog) Close(ctx context.Context) error {
	return nil
}

// A GPIOPin reads back the same set values.
type GPIOPin struct {
	number   int
	high     bool
	pwm      float64
	pwmFreq  uint
	setCount int
	failNext int

	mu sync.Mutex
}

// Number is the GPIO line number parsed from the pin name, -1 when the name is not a number.
func (gp *GPIOPin) Number() int {
	return gp.number
}

// Set sets the pin to either low or high.
func (gp *GPIOPin) Set(ctx context.Context, high bool) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if err := gp.injectedError(); err != nil {
		return err
	}
	gp.setCount++
	gp.high = high
	gp.pwm = 0
	gp.pwmFreq = 0
	return nil
}

// PWM returns the last duty cycle set.
func (gp *GPIOPin) PWM(ctx context.Context) (float64, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	return gp.pwm, nil
}

// SetPWM records the duty cycle.
func (gp *GPIOPin) SetPWM(ctx context.Context, duty float64) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if err := gp.injectedError(); err != nil {
		return err
	}
	gp.pwm = duty
	return nil
}

// SetPWMFreq records the frequency.
func (gp *GPIOPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if err := gp.injectedError(); err != nil {
		return err
	}
	gp.pwmFreq = freqHz
	return nil
}

// SetCount returns how many times Set succeeded.
func (gp *GPIOPin) SetCount() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.setCount
}

// High returns the level last set.
func (gp *GPIOPin) High() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.high
}

// Duty is PWM without a context or error.
func (gp *GPIOPin) Duty() float64 {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.pwm
}

// Freq returns the PWM frequency last set.
func (gp *GPIOPin) Freq() uint {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.pwmFreq
}

// FailNext makes the next n writes to the pin fail.
func (gp *GPIOPin) FailNext(n int) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.failNext = n
}

// expects to already have lock acquired.
func (gp *GPIOPin) injectedError() error {
	if gp.failNext > 0 {
		gp.failNext--
		return errors.Errorf("injected failure on pin %d", gp.number)
	}
	return nil
}
