package fake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/wavetank/components/board"
)

// A WaveDriver simulates a waveform transmitter against a clock. Waveforms finish once their
// total delay has elapsed, and a queued waveform starts exactly when the one before it ends.
type WaveDriver struct {
	mu    sync.Mutex
	clock clock.Clock

	pending []board.Pulse
	waves   map[board.WaveID][]board.Pulse
	nextID  board.WaveID

	current      board.WaveID
	currentStart time.Time
	queued       board.WaveID

	sent       []board.WaveID
	deleted    []board.WaveID
	violations []board.WaveID
	failCreate int
	failTxAt   int
}

// NewWaveDriver returns an idle driver.
func NewWaveDriver(clk clock.Clock) *WaveDriver {
	return &WaveDriver{
		clock:   clk,
		waves:   map[board.WaveID][]board.Pulse{},
		current: board.NoWave,
		queued:  board.NoWave,
	}
}

// expects to already have lock acquired.
func (wd *WaveDriver) advance() {
	now := wd.clock.Now()
	for wd.current != board.NoWave {
		end := wd.currentStart.Add(board.PulsesDuration(wd.waves[wd.current]))
		if now.Before(end) {
			return
		}
		wd.current = wd.queued
		wd.currentStart = end
		wd.queued = board.NoWave
	}
}

// AddPulses appends pulses to the waveform under construction.
func (wd *WaveDriver) AddPulses(pulses []board.Pulse) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.pending = append(wd.pending, pulses...)
	return nil
}

// CreateWave turns the pending pulses into a waveform.
func (wd *WaveDriver) CreateWave() (board.WaveID, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if wd.failCreate > 0 {
		wd.failCreate--
		return board.NoWave, errors.New("no more waveform resources")
	}
	if len(wd.pending) == 0 {
		return board.NoWave, errors.New("empty waveform")
	}
	id := wd.nextID
	wd.nextID++
	wd.waves[id] = wd.pending
	wd.pending = nil
	return id, nil
}

// SendSync starts id when the current waveform ends, or at once when idle.
func (wd *WaveDriver) SendSync(id board.WaveID) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if _, ok := wd.waves[id]; !ok {
		return errors.Errorf("unknown waveform %d", id)
	}
	wd.advance()
	switch {
	case wd.current == board.NoWave:
		wd.current = id
		wd.currentStart = wd.clock.Now()
	case wd.queued == board.NoWave:
		wd.queued = id
	default:
		return errors.Errorf("waveform %d already queued", wd.queued)
	}
	wd.sent = append(wd.sent, id)
	return nil
}

// TxAt returns the waveform currently transmitting.
func (wd *WaveDriver) TxAt() (board.WaveID, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if wd.failTxAt > 0 {
		wd.failTxAt--
		return board.NoWave, errors.New("cannot read transmitter")
	}
	wd.advance()
	return wd.current, nil
}

// TxBusy reports whether anything is transmitting.
func (wd *WaveDriver) TxBusy() (bool, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.advance()
	return wd.current != board.NoWave, nil
}

// DeleteWave releases a waveform. Deleting one that is transmitting or queued is recorded as a
// violation and fails.
func (wd *WaveDriver) DeleteWave(id board.WaveID) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.advance()
	if id == wd.current || id == wd.queued {
		wd.violations = append(wd.violations, id)
		return errors.Errorf("waveform %d is in flight", id)
	}
	if _, ok := wd.waves[id]; !ok {
		return errors.Errorf("unknown waveform %d", id)
	}
	delete(wd.waves, id)
	wd.deleted = append(wd.deleted, id)
	return nil
}

// TxStop aborts the current transmission and drops anything queued.
func (wd *WaveDriver) TxStop() error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.current = board.NoWave
	wd.queued = board.NoWave
	return nil
}

// Clear stops transmission and deletes every waveform.
func (wd *WaveDriver) Clear() error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.current = board.NoWave
	wd.queued = board.NoWave
	wd.pending = nil
	wd.waves = map[board.WaveID][]board.Pulse{}
	return nil
}

// FailCreate makes the next n CreateWave calls fail.
func (wd *WaveDriver) FailCreate(n int) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.failCreate = n
}

// FailTxAt makes the next n TxAt calls fail.
func (wd *WaveDriver) FailTxAt(n int) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.failTxAt = n
}

// Live returns how many waveforms exist.
func (wd *WaveDriver) Live() int {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return len(wd.waves)
}

// Pulses returns the pulses of a live waveform.
func (wd *WaveDriver) Pulses(id board.WaveID) []board.Pulse {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]board.Pulse(nil), wd.waves[id]...)
}

// Sent returns every waveform id passed to SendSync, in order.
func (wd *WaveDriver) Sent() []board.WaveID {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]board.WaveID(nil), wd.sent...)
}

// Deleted returns every waveform id deleted, in order.
func (wd *WaveDriver) Deleted() []board.WaveID {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]board.WaveID(nil), wd.deleted...)
}

// Violations returns the ids of waveforms someone tried to delete while in flight.
func (wd *WaveDriver) Violations() []board.WaveID {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	return append([]board.WaveID(nil), wd.violations...)
}
