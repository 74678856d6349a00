package board

import (
	"time"
)

// A WaveID names a waveform created on a WaveDriver.
type WaveID int

// NoWave is reported by TxAt when nothing is transmitting.
const NoWave WaveID = -1

// A Pulse is one edge entry of a waveform: the pins in OnMask go high, the pins in OffMask go
// low, then the driver holds for DelayMicros before the next entry. Bit n of a mask is GPIO n.
type Pulse struct {
	OnMask      uint32
	OffMask     uint32
	DelayMicros uint32
}

// PulsesDuration is the transmit time of a pulse list.
func PulsesDuration(pulses []Pulse) time.Duration {
	var total time.Duration
	for _, p := range pulses {
		total += time.Duration(p.DelayMicros) * time.Microsecond
	}
	return total
}

// A WaveDriver builds waveforms out of pulses and transmits them. At most one waveform
// transmits at a time and at most one more can be queued behind it.
type WaveDriver interface {
	// AddPulses appends pulses to the waveform under construction.
	AddPulses(pulses []Pulse) error

	// CreateWave turns the pulses added since the last CreateWave into a waveform.
	CreateWave() (WaveID, error)

	// SendSync transmits the waveform once, starting when the one currently transmitting
	// finishes, or at once when the driver is idle.
	SendSync(id WaveID) error

	// TxAt returns the waveform currently transmitting, or NoWave.
	TxAt() (WaveID, error)

	// TxBusy reports whether anything is transmitting or queued.
	TxBusy() (bool, error)

	// DeleteWave releases a waveform. Deleting the waveform in flight is an error.
	DeleteWave(id WaveID) error

	// TxStop aborts the current transmission and drops anything queued.
	TxStop() error

	// Clear stops transmission and deletes every waveform.
	Clear() error
}
