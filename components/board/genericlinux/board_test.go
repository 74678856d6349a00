package genericlinux

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/logging"
	"go.viam.com/wavetank/utils"
)

// recordingBus fails the test if two transactions ever overlap.
type recordingBus struct {
	mu       sync.Mutex
	inFlight int
	overlaps int
	txs      int
	closed   bool
}

func (rb *recordingBus) String() string { return "recording" }

func (rb *recordingBus) Tx(addr uint16, w, r []byte) error {
	rb.mu.Lock()
	rb.inFlight++
	if rb.inFlight > 1 {
		rb.overlaps++
	}
	rb.mu.Unlock()

	time.Sleep(100 * time.Microsecond)

	rb.mu.Lock()
	rb.inFlight--
	rb.txs++
	rb.mu.Unlock()
	return nil
}

func (rb *recordingBus) SetSpeed(f physic.Frequency) error { return nil }

func (rb *recordingBus) Close() error {
	rb.closed = true
	return nil
}

func TestLockedBusSerialisesTransactions(t *testing.T) {
	raw := &recordingBus{}
	bus := NewLockedBus(raw)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				test.That(t, bus.Tx(0x48, []byte{0x01}, nil), test.ShouldBeNil)
			}
		}()
	}
	wg.Wait()

	test.That(t, raw.txs, test.ShouldEqual, 80)
	test.That(t, raw.overlaps, test.ShouldEqual, 0)
	test.That(t, bus.String(), test.ShouldEqual, "locked(recording)")
	test.That(t, bus.Close(), test.ShouldBeNil)
	test.That(t, raw.closed, test.ShouldBeTrue)
}

func newTestWaveDriver(t *testing.T) (*softwareWaveDriver, *gpiotest.Pin, utils.StoppableWorkers) {
	t.Helper()
	stepPin := &gpiotest.Pin{N: "GPIO18", Num: 18}
	lookup := func(name string) (gpio.PinIO, error) {
		if name != "18" {
			return nil, errors.Errorf("no global pin found for %q", name)
		}
		return stepPin, nil
	}
	workers := utils.NewStoppableWorkers()
	return newSoftwareWaveDriver(workers, lookup, logging.NewTestLogger(t)), stepPin, workers
}

func TestSoftwareWaveDriver(t *testing.T) {
	wd, stepPin, workers := newTestWaveDriver(t)
	defer workers.Stop()

	step := []board.Pulse{
		{OnMask: 1 << 18, DelayMicros: 100},
		{OffMask: 1 << 18, DelayMicros: 400},
	}
	test.That(t, wd.AddPulses(step), test.ShouldBeNil)
	test.That(t, wd.AddPulses([]board.Pulse{{OnMask: 1 << 5, DelayMicros: 1}}), test.ShouldNotBeNil)

	first, err := wd.CreateWave()
	test.That(t, err, test.ShouldBeNil)
	_, err = wd.CreateWave()
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, wd.SendSync(first), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		busy, err := wd.TxBusy()
		test.That(tb, err, test.ShouldBeNil)
		test.That(tb, busy, test.ShouldBeFalse)
	})
	test.That(t, stepPin.Read(), test.ShouldEqual, gpio.Low)
	test.That(t, wd.DeleteWave(first), test.ShouldBeNil)
	test.That(t, wd.DeleteWave(first), test.ShouldNotBeNil)
}

func TestSoftwareWaveDriverInFlight(t *testing.T) {
	wd, _, workers := newTestWaveDriver(t)
	defer workers.Stop()

	test.That(t, wd.AddPulses([]board.Pulse{{OnMask: 1 << 18, DelayMicros: 500000}}), test.ShouldBeNil)
	long, err := wd.CreateWave()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, wd.AddPulses([]board.Pulse{{OffMask: 1 << 18, DelayMicros: 10}}), test.ShouldBeNil)
	short, err := wd.CreateWave()
	test.That(t, err, test.ShouldBeNil)

	test.That(t, wd.SendSync(long), test.ShouldBeNil)
	test.That(t, wd.SendSync(short), test.ShouldBeNil)
	test.That(t, wd.SendSync(short), test.ShouldNotBeNil)

	at, err := wd.TxAt()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, at, test.ShouldEqual, long)
	test.That(t, wd.DeleteWave(long), test.ShouldNotBeNil)
	test.That(t, wd.DeleteWave(short), test.ShouldNotBeNil)

	test.That(t, wd.TxStop(), test.ShouldBeNil)
	at, err = wd.TxAt()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, at, test.ShouldEqual, board.NoWave)
	test.That(t, wd.DeleteWave(long), test.ShouldBeNil)

	test.That(t, wd.Clear(), test.ShouldBeNil)
	test.That(t, wd.DeleteWave(short), test.ShouldNotBeNil)
}

func TestPeriphGpioPinPWM(t *testing.T) {
	b := &Board{
		pwms:               map[string]pwmSetting{},
		softwarePWMRunning: map[string]bool{},
		defaultPWMFreq:     800 * physic.Hertz,
		logger:             logging.NewTestLogger(t),
		workers:            utils.NewStoppableWorkers(),
	}
	defer b.workers.Stop()
	raw := &gpiotest.Pin{N: "GPIO12", Num: 12}
	pin := periphGpioPin{b, raw, "12"}
	ctx := context.Background()

	test.That(t, pin.SetPWM(ctx, 0.25), test.ShouldBeNil)
	test.That(t, raw.D, test.ShouldEqual, gpio.DutyMax/4)
	test.That(t, raw.F, test.ShouldEqual, 800*physic.Hertz)
	duty, err := pin.PWM(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, duty, test.ShouldAlmostEqual, 0.25, 1e-6)

	test.That(t, pin.SetPWMFreq(ctx, 2000), test.ShouldBeNil)
	test.That(t, raw.F, test.ShouldEqual, 2000*physic.Hertz)
	test.That(t, raw.D, test.ShouldEqual, gpio.DutyMax/4)

	test.That(t, pin.SetPWM(ctx, 1.5), test.ShouldNotBeNil)

	test.That(t, pin.Set(ctx, true), test.ShouldBeNil)
	test.That(t, raw.Read(), test.ShouldEqual, gpio.High)
	_, err = pin.PWM(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, pin.Number(), test.ShouldEqual, 12)
}
