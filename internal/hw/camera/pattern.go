package camera

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/gogpu/gg"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

var patternBars = []string{"#C0C0C0", "#C0C000", "#00C0C0", "#00C000", "#C000C0", "#C00000", "#0000C0"}

// Pattern is a synthetic FrameSource drawing SMPTE-like color bars with a
// ball that moves one step per frame. Used for development and tests.
type Pattern struct {
	mu      sync.Mutex
	width   int
	height  int
	frame   int
	started bool
	closed  bool
}

// NewPattern creates an unstarted pattern source of the given size.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: width, height: height}
}

func (p *Pattern) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return unavailable("pattern source closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.started = true
	debug.Verbose("Camera: pattern source started (%dx%d)", p.width, p.height)
	return nil
}

func (p *Pattern) CurrentFrame() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, unavailable("pattern source closed")
	}
	if !p.started {
		return nil, ErrNoFrame
	}
	img := p.render(p.frame)
	p.frame++
	return img, nil
}

func (p *Pattern) render(frame int) image.Image {
	dc := gg.NewContext(p.width, p.height)
	defer dc.Close()

	w, h := float64(p.width), float64(p.height)
	barW := w / float64(len(patternBars))
	for i, hex := range patternBars {
		dc.SetColor(gg.Hex(hex))
		dc.DrawRectangle(float64(i)*barW, 0, barW+1, h)
		_ = dc.Fill()
	}

	// ball travelling on an ellipse, one full turn every 120 frames
	angle := 2 * math.Pi * float64(frame%120) / 120
	r := h / 10
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(w/2+math.Cos(angle)*(w/2-2*r), h/2+math.Sin(angle)*(h/2-2*r), r)
	_ = dc.Fill()

	return dc.Image()
}

func (p *Pattern) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		debug.Verbose("Camera: pattern source closed")
	}
	p.closed = true
	return nil
}
