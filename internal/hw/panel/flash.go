package panel

import (
	"sync"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
)

// Flash drives a lamp relay on a GPIO output (active HIGH).
//
// Pulse sequence:
// 1. Lamp pin to HIGH
// 2. Hold for the pulse duration
// 3. Lamp pin back to LOW
type Flash struct {
	mu    sync.Mutex
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
}

// NewFlash configures pin as an output, initially LOW (lamp off).
func NewFlash(g gpio.Driver, pin int, pulse time.Duration) (*Flash, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return &Flash{gpio: g, pin: pin, pulse: pulse}, nil
}

// Pulse lights the lamp for the configured duration. Concurrent pulses
// are serialized.
func (f *Flash) Pulse() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	debug.Verbose("Flash: on (pin %d -> HIGH)", f.pin)
	if err := f.gpio.WritePin(f.pin, gpio.High); err != nil {
		return err
	}

	time.Sleep(f.pulse)

	debug.Verbose("Flash: off (pin %d -> LOW)", f.pin)
	return f.gpio.WritePin(f.pin, gpio.Low)
}

// Fire starts a pulse without waiting for it.
func (f *Flash) Fire() {
	go func() {
		if err := f.Pulse(); err != nil {
			debug.Error(err)
		}
	}()
}
