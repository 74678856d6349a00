package drive

import (
	"sync"

	"go.viam.com/wavetank/utils"
)

// DriveMode is the exclusive top level control strategy.
type DriveMode int32

// The drive modes. Stop is the zero value so a fresh controller starts stopped.
const (
	Stop DriveMode = iota
	Center
	Wave
)

var driveModeNames = map[DriveMode]string{Stop: "stop", Center: "center", Wave: "wave"}

func (m DriveMode) String() string {
	if name, ok := driveModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseDriveMode returns the drive mode called name.
func ParseDriveMode(name string) (DriveMode, error) {
	for mode, modeName := range driveModeNames {
		if modeName == name {
			return mode, nil
		}
	}
	return Stop, utils.NewUnknownNameError("drive mode", name)
}

// SpeedMode selects the backend that turns the command velocity into hardware output.
type SpeedMode int32

// The speed modes.
const (
	SpeedOff SpeedMode = iota
	SpeedPWM
	SpeedStep
	SpeedStepPWM
)

var speedModeNames = map[SpeedMode]string{
	SpeedOff:     "off",
	SpeedPWM:     "pwm",
	SpeedStep:    "step",
	SpeedStepPWM: "step_pwm",
}

func (m SpeedMode) String() string {
	if name, ok := speedModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseSpeedMode returns the speed mode called name.
func ParseSpeedMode(name string) (SpeedMode, error) {
	for mode, modeName := range speedModeNames {
		if modeName == name {
			return mode, nil
		}
	}
	return SpeedOff, utils.NewUnknownNameError("speed mode", name)
}

// modeSignal publishes the active drive mode. Each change bumps the version and closes the
// channel handed out with the previous value, waking every loop waiting on it.
type modeSignal struct {
	mu      sync.Mutex
	mode    DriveMode
	version uint64
	changed chan struct{}
}

func newModeSignal() *modeSignal {
	return &modeSignal{mode: Stop, changed: make(chan struct{})}
}

// Load returns the current mode, its version and a channel closed on the next change.
func (s *modeSignal) Load() (DriveMode, uint64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.version, s.changed
}

// Mode returns the current mode.
func (s *modeSignal) Mode() DriveMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Version returns the number of changes so far.
func (s *modeSignal) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Set publishes mode. Setting the current mode again notifies nobody and returns false.
func (s *modeSignal) Set(mode DriveMode) (DriveMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.mode
	if prev == mode {
		return prev, false
	}
	s.mode = mode
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	return prev, true
}
