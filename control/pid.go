// Package control contains the control blocks of the drive: the PID controller, the smoothing
// filters and the regular wave trajectory generator.
package control

import (
	"math"
	"sync"
	"time"
)

// PIDConfig holds the gains and limits of a PID.
type PIDConfig struct {
	Kp float64
	Ki float64
	Kd float64
	// IntegralLimit bounds |integral| when positive. Zero leaves the integral unbounded.
	IntegralLimit float64
	// MaxOutput is the full authority UpdateLimited scales its fraction by.
	MaxOutput float64
	// DirectionBias multiplies the error, flipping the loop for actuators wired in reverse.
	DirectionBias float64
}

// PID is the standard implementation of a PID controller. It is safe for concurrent use, but
// only one mode loop updates it at a time.
type PID struct {
	mu       sync.Mutex
	cfg      PIDConfig
	integral float64
}

// NewPID returns a PID with a zero integral.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Configure replaces the gains. The integral is kept so retuning does not bump the output.
func (p *PID) Configure(cfg PIDConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.integral = p.limitIntegral(p.integral)
}

// Update returns Kp*e + Ki*∫e + Kd*rate where e = bias*(target-measured) and rate is the error
// rate, also scaled by bias. dt is the time since the previous call.
func (p *PID) Update(target, measured, rate float64, dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update(target, measured, rate, dt)
}

// UpdateLimited is Update clamped to ±MaxOutput*fraction.
func (p *PID) UpdateLimited(target, measured, rate float64, dt time.Duration, fraction float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	limit := math.Abs(p.cfg.MaxOutput * fraction)
	out := p.update(target, measured, rate, dt)
	return math.Max(-limit, math.Min(limit, out))
}

// expects to already have lock acquired.
func (p *PID) update(target, measured, rate float64, dt time.Duration) float64 {
	bias := p.cfg.DirectionBias
	err := bias * (target - measured)
	if dt > 0 {
		p.integral = p.limitIntegral(p.integral + err*dt.Seconds())
	}
	return p.cfg.Kp*err + p.cfg.Ki*p.integral + p.cfg.Kd*bias*rate
}

func (p *PID) limitIntegral(integral float64) float64 {
	if p.cfg.IntegralLimit <= 0 {
		return integral
	}
	return math.Max(-p.cfg.IntegralLimit, math.Min(p.cfg.IntegralLimit, integral))
}

// Reset zeroes the integral.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
}

// Integral returns the accumulated error.
func (p *PID) Integral() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.integral
}
