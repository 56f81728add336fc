package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives the booth panel on a Raspberry Pi through go-rpio.
// Inputs get the internal pull-up, so a push button wired to ground reads
// LOW while pressed. It is safe for concurrent use.
type RPiDriver struct {
	mu      sync.Mutex
	pins    map[int]rpio.Pin
	outputs map[int]bool
}

// NewRPiRealDriver maps the GPIO memory.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:    make(map[int]rpio.Pin),
		outputs: make(map[int]bool),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.setup(pin, mode)
	return err
}

func (r *RPiDriver) setup(pin int, mode PinMode) (rpio.Pin, error) {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return p, fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	r.outputs[pin] = mode == Output
	return p, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok || !r.outputs[pin] {
		var err error
		if p, err = r.setup(pin, Output); err != nil {
			return err
		}
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		var err error
		if p, err = r.setup(pin, Input); err != nil {
			return High, err
		}
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// Close switches outputs off, returns every used pin to a floating input
// and unmaps the GPIO memory.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	defer r.mu.Unlock()
	for pin, p := range r.pins {
		if r.outputs[pin] {
			p.Low()
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
		p.PullOff()
	}
	r.pins = make(map[int]rpio.Pin)
	r.outputs = make(map[int]bool)
	return rpio.Close()
}
