package genericlinux

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/logging"
	"go.viam.com/wavetank/utils"
)

// Delays shorter than this are busy-waited: sleeping cannot hit them with any precision.
const busyWaitBelow = time.Millisecond

// softwareWaveDriver transmits waveforms from a dedicated goroutine by writing the pins itself.
type softwareWaveDriver struct {
	mu     sync.Mutex
	lookup func(name string) (gpio.PinIO, error)
	pins   map[int]gpio.PinIO

	pending []board.Pulse
	waves   map[board.WaveID][]board.Pulse
	nextID  board.WaveID

	current board.WaveID
	queued  board.WaveID
	// generation changes on TxStop so an in progress transmission abandons its waveform.
	generation int
	wake       chan struct{}

	logger logging.Logger
}

func newSoftwareWaveDriver(
	workers utils.StoppableWorkers,
	lookup func(name string) (gpio.PinIO, error),
	logger logging.Logger,
) *softwareWaveDriver {
	wd := &softwareWaveDriver{
		lookup:  lookup,
		pins:    map[int]gpio.PinIO{},
		waves:   map[board.WaveID][]board.Pulse{},
		current: board.NoWave,
		queued:  board.NoWave,
		wake:    make(chan struct{}, 1),
		logger:  logger,
	}
	workers.AddWorkers(wd.transmitLoop)
	return wd
}

func (wd *softwareWaveDriver) AddPulses(pulses []board.Pulse) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	for _, p := range pulses {
		if err := wd.resolvePins(p.OnMask | p.OffMask); err != nil {
			return err
		}
	}
	wd.pending = append(wd.pending, pulses...)
	return nil
}

// expects to already have lock acquired.
func (wd *softwareWaveDriver) resolvePins(mask uint32) error {
	for bit := 0; bit < 32; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		if _, ok := wd.pins[bit]; ok {
			continue
		}
		pin, err := wd.lookup(strconv.Itoa(bit))
		if err != nil {
			return err
		}
		wd.pins[bit] = pin
	}
	return nil
}

func (wd *softwareWaveDriver) CreateWave() (board.WaveID, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if len(wd.pending) == 0 {
		return board.NoWave, errors.New("empty waveform")
	}
	id := wd.nextID
	wd.nextID++
	wd.waves[id] = wd.pending
	wd.pending = nil
	return id, nil
}

func (wd *softwareWaveDriver) SendSync(id board.WaveID) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if _, ok := wd.waves[id]; !ok {
		return errors.Errorf("unknown waveform %d", id)
	}
	switch {
	case wd.current == board.NoWave:
		wd.current = id
	case wd.queued == board.NoWave:
		wd.queued = id
	default:
		return errors.Errorf("waveform %d already queued", wd.queued)
	}
	select {
	case wd.wake <- struct{}{}:
	default:
	}
	return nil
}

func (wd *softwareWaveDriver) TxAt() (board.WaveID, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return wd.current, nil
}

func (wd *softwareWaveDriver) TxBusy() (bool, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return wd.current != board.NoWave, nil
}

func (wd *softwareWaveDriver) DeleteWave(id board.WaveID) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if id == wd.current || id == wd.queued {
		return errors.Errorf("waveform %d is in flight", id)
	}
	if _, ok := wd.waves[id]; !ok {
		return errors.Errorf("unknown waveform %d", id)
	}
	delete(wd.waves, id)
	return nil
}

func (wd *softwareWaveDriver) TxStop() error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.current = board.NoWave
	wd.queued = board.NoWave
	wd.generation++
	return nil
}

func (wd *softwareWaveDriver) Clear() error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.current = board.NoWave
	wd.queued = board.NoWave
	wd.generation++
	wd.pending = nil
	wd.waves = map[board.WaveID][]board.Pulse{}
	return nil
}

func (wd *softwareWaveDriver) transmitLoop(ctx context.Context) {
	for {
		wd.mu.Lock()
		id, generation := wd.current, wd.generation
		pulses := wd.waves[id]
		wd.mu.Unlock()

		if id == board.NoWave {
			select {
			case <-ctx.Done():
				return
			case <-wd.wake:
			}
			continue
		}

		if !wd.transmit(ctx, pulses, generation) {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		wd.mu.Lock()
		if wd.generation == generation {
			wd.current = wd.queued
			wd.queued = board.NoWave
		}
		wd.mu.Unlock()
	}
}

// transmit plays pulses, returning false when it was stopped part way through. Deadlines are
// absolute from the start of the waveform so rounding in one delay does not drift the rest.
func (wd *softwareWaveDriver) transmit(ctx context.Context, pulses []board.Pulse, generation int) bool {
	deadline := time.Now()
	for _, p := range pulses {
		wd.mu.Lock()
		stopped := wd.generation != generation
		wd.mu.Unlock()
		if stopped {
			return false
		}

		wd.writeMask(p.OnMask, gpio.High)
		wd.writeMask(p.OffMask, gpio.Low)

		deadline = deadline.Add(time.Duration(p.DelayMicros) * time.Microsecond)
		remaining := time.Until(deadline)
		if remaining >= busyWaitBelow {
			if !goutils.SelectContextOrWait(ctx, remaining) {
				return false
			}
			continue
		}
		//nolint:revive
		for time.Now().Before(deadline) {
		}
	}
	return true
}

func (wd *softwareWaveDriver) writeMask(mask uint32, level gpio.Level) {
	if mask == 0 {
		return
	}
	wd.mu.Lock()
	defer wd.mu.Unlock()
	for bit, pin := range wd.pins {
		if mask&(1<<bit) == 0 {
			continue
		}
		if err := pin.Out(level); err != nil {
			wd.logger.Errorw("error writing waveform pin", "pin", bit, "error", err)
		}
	}
}
