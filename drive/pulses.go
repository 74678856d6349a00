package drive

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/logging"
)

// How often the scheduler polls the driver while waiting on a transmission.
const txPollInterval = 500 * time.Microsecond

// Scheduler keeps a step pulse train flowing through a WaveDriver without gaps. It owns at most
// two waveforms at once: the one transmitting and the one queued behind it. A waveform is only
// deleted once the driver has moved past it.
type Scheduler struct {
	mu     sync.Mutex
	driver board.WaveDriver
	clock  clock.Clock
	minPad time.Duration
	logger logging.Logger

	last board.WaveID
	// next was sent behind last but not yet seen transmitting, because waiting on it failed.
	// The following Schedule finishes that handover before sending anything new.
	next board.WaveID
	// end is when everything handed to the driver so far finishes transmitting.
	end time.Time
}

// NewScheduler returns a scheduler with nothing in flight.
func NewScheduler(driver board.WaveDriver, clk clock.Clock, minPad time.Duration, logger logging.Logger) *Scheduler {
	return &Scheduler{driver: driver, clock: clk, minPad: minPad, logger: logger, last: board.NoWave, next: board.NoWave}
}

// Remaining returns how long the driver will keep transmitting what it has been given.
func (s *Scheduler) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining()
}

// expects to already have lock acquired.
func (s *Scheduler) remaining() time.Duration {
	if left := s.end.Sub(s.clock.Now()); left > 0 {
		return left
	}
	return 0
}

// Schedule queues pulses behind the active waveform and returns once they are transmitting,
// retiring the waveform they replaced. When the active waveform still has more than the
// minimum pad to run, a leading delay of that length is added so the new pulses keep their
// timing relative to it.
func (s *Scheduler) Schedule(ctx context.Context, pulses []board.Pulse) error {
	if len(pulses) == 0 {
		return errors.New("cannot schedule an empty pulse train")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != board.NoWave {
		if err := s.promote(ctx); err != nil {
			return err
		}
	}

	train := pulses
	if remaining := s.remaining(); remaining > s.minPad {
		pad := board.Pulse{DelayMicros: uint32(remaining / time.Microsecond)}
		train = append([]board.Pulse{pad}, pulses...)
	}

	id, err := s.create(train)
	if err != nil {
		s.logger.Debugw("cannot create waveform, waiting for the driver to drain", "error", err)
		if err := s.waitIdle(ctx); err != nil {
			return err
		}
		train = pulses
		if id, err = s.create(train); err != nil {
			return errors.Wrap(err, "cannot create waveform after the driver drained")
		}
	}

	if err := s.driver.SendSync(id); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot send waveform %d", id), s.driver.DeleteWave(id))
	}
	start := s.clock.Now()
	if s.end.After(start) {
		start = s.end
	}
	s.end = start.Add(board.PulsesDuration(train))
	s.next = id
	return s.promote(ctx)
}

// promote waits until next is transmitting, then deletes last and makes next the active
// waveform. On error both stay tracked so a later call can finish. expects to already have lock
// acquired.
func (s *Scheduler) promote(ctx context.Context) error {
	if err := s.waitPast(ctx, s.last); err != nil {
		return err
	}
	if s.last != board.NoWave {
		if err := s.driver.DeleteWave(s.last); err != nil {
			s.logger.Warnw("cannot delete retired waveform", "wave", s.last, "error", err)
		}
	}
	s.last = s.next
	s.next = board.NoWave
	return nil
}

// expects to already have lock acquired.
func (s *Scheduler) create(pulses []board.Pulse) (board.WaveID, error) {
	if err := s.driver.AddPulses(pulses); err != nil {
		return board.NoWave, err
	}
	return s.driver.CreateWave()
}

// waitPast returns once the driver is no longer transmitting id. expects to already have lock
// acquired.
func (s *Scheduler) waitPast(ctx context.Context, id board.WaveID) error {
	if id == board.NoWave {
		return nil
	}
	for {
		at, err := s.driver.TxAt()
		if err != nil {
			return errors.Wrap(err, "cannot read transmitting waveform")
		}
		if at != id {
			return nil
		}
		if err := s.sleep(ctx); err != nil {
			return err
		}
	}
}

// waitIdle returns once nothing is transmitting, then forgets every waveform. expects to
// already have lock acquired.
func (s *Scheduler) waitIdle(ctx context.Context) error {
	for {
		busy, err := s.driver.TxBusy()
		if err != nil {
			return errors.Wrap(err, "cannot read transmitter state")
		}
		if !busy {
			break
		}
		if err := s.sleep(ctx); err != nil {
			return err
		}
	}
	s.last = board.NoWave
	s.next = board.NoWave
	s.end = time.Time{}
	return errors.Wrap(s.driver.Clear(), "cannot clear waveforms")
}

func (s *Scheduler) sleep(ctx context.Context) error {
	timer := s.clock.Timer(txPollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Clear stops transmission and deletes every waveform.
func (s *Scheduler) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = board.NoWave
	s.next = board.NoWave
	s.end = time.Time{}
	return multierr.Combine(s.driver.TxStop(), s.driver.Clear())
}
