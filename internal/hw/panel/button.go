package panel

import (
	"context"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
)

// Button is a push button wired between a GPIO input and ground:
// - idle: pin reads HIGH (pull-up)
// - pressed: pin reads LOW
//
// A press is reported once the pin has been stable LOW for the debounce
// window after being stable HIGH.
type Button struct {
	gpio     gpio.Driver
	pin      int
	debounce time.Duration
	poll     time.Duration
}

// NewButton configures pin as an input and returns a Button.
func NewButton(g gpio.Driver, pin int, debounce time.Duration) (*Button, error) {
	if err := g.SetupPin(pin, gpio.Input); err != nil {
		return nil, err
	}
	poll := debounce / 5
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	return &Button{gpio: g, pin: pin, debounce: debounce, poll: poll}, nil
}

// Run polls the button until ctx is cancelled and calls onPress for every
// debounced press. onPress runs on the polling goroutine.
func (b *Button) Run(ctx context.Context, onPress func()) error {
	debug.Verbose("Button: watching pin %d (debounce %v)", b.pin, b.debounce)

	stable, err := b.gpio.ReadPin(b.pin)
	if err != nil {
		return err
	}
	raw := stable
	changedAt := time.Now()

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			level, err := b.gpio.ReadPin(b.pin)
			if err != nil {
				debug.Error(err)
				continue
			}
			if level != raw {
				raw = level
				changedAt = now
				continue
			}
			if raw == stable || now.Sub(changedAt) < b.debounce {
				continue
			}
			stable = raw
			if stable == gpio.Low {
				debug.Live("Button: pressed (pin %d)", b.pin)
				onPress()
			}
		}
	}
}
