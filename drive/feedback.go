package drive

import (
	"sync"
	"time"

	"go.viam.com/wavetank/control"
	"go.viam.com/wavetank/utils"
)

// Sample is one raw reading of the position feedback ADC.
type Sample struct {
	Reading   int
	Timestamp time.Time
}

// Smoothing of the per sample velocity for the medium and slow estimates.
const (
	mediumVelocityAlpha = 0.05
	slowVelocityAlpha   = 0.01
)

// Estimator turns raw feedback samples into a filtered position and three velocity estimates
// of decreasing bandwidth, and publishes them into the drive state.
type Estimator struct {
	mu      sync.Mutex
	state   *State
	calib   func() *Calibration
	volts   *control.ExponentialFilter
	fast    *utils.RollingAverage
	medium  *control.ExponentialFilter
	slow    *control.ExponentialFilter
	prevZ   float64
	prevAt  time.Time
	started bool
}

// NewEstimator returns an estimator filtering the feedback voltage with alpha.
func NewEstimator(state *State, calib func() *Calibration, alpha float64) *Estimator {
	return &Estimator{
		state:  state,
		calib:  calib,
		volts:  control.NewExponentialFilter(alpha),
		fast:   utils.NewRollingAverage(2),
		medium: control.NewExponentialFilter(mediumVelocityAlpha),
		slow:   control.NewExponentialFilter(slowVelocityAlpha),
	}
}

// SetAlpha changes the weight of new samples in the voltage filter.
func (e *Estimator) SetAlpha(alpha float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volts.Alpha = alpha
}

// Reset forgets every filter so the next sample starts from rest.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volts.Reset()
	e.medium.Reset()
	e.slow.Reset()
	e.fast.Fill(0)
	e.started = false
}

// Update folds a sample into the estimates.
func (e *Estimator) Update(sample Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	calib := e.calib()
	volts := e.volts.Next(float64(sample.Reading) * calib.VoltsPerBit)
	z := (volts - calib.ReferenceVolts) * calib.MetersPerVolt
	e.state.FeedbackVolts.Store(volts)
	e.state.ZCur.Store(z)

	if !e.started {
		e.started = true
		e.prevZ, e.prevAt = z, sample.Timestamp
		e.fast.Fill(0)
		e.publishVelocity(0)
		return
	}

	dt := sample.Timestamp.Sub(e.prevAt)
	if dt <= 0 {
		return
	}
	v := (z - e.prevZ) / dt.Seconds()
	e.prevZ, e.prevAt = z, sample.Timestamp
	e.fast.Add(v)
	e.publishVelocity(v)
}

// expects to already have lock acquired.
func (e *Estimator) publishVelocity(v float64) {
	e.state.VelocityFast.Store(e.fast.Average())
	e.state.VelocityMedium.Store(e.medium.Next(v))
	e.state.VelocitySlow.Store(e.slow.Next(v))
}
