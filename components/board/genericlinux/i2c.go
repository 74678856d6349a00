package genericlinux

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// A LockedBus serialises every transaction on an I²C bus. Devices sharing the bus (the feedback
// ADC, sensors read by other processes' drivers through this handle) must never interleave.
type LockedBus struct {
	mu  sync.Mutex
	bus i2c.BusCloser
}

var _ i2c.BusCloser = (*LockedBus)(nil)

// NewLockedBus wraps bus.
func NewLockedBus(bus i2c.BusCloser) *LockedBus {
	return &LockedBus{bus: bus}
}

func (lb *LockedBus) String() string {
	return fmt.Sprintf("locked(%s)", lb.bus)
}

// Tx does a transaction holding the bus lock.
func (lb *LockedBus) Tx(addr uint16, w, r []byte) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.bus.Tx(addr, w, r)
}

// SetSpeed changes the bus speed holding the bus lock.
func (lb *LockedBus) SetSpeed(f physic.Frequency) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.bus.SetSpeed(f)
}

// Close closes the underlying bus.
func (lb *LockedBus) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.bus.Close()
}
