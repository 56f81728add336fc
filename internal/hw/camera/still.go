package camera

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// Still serves one decoded image file as every frame. Useful for kiosks
// without a camera and for demos.
type Still struct {
	mu     sync.Mutex
	path   string
	img    image.Image
	closed bool
}

// NewStill creates an unstarted still source for path.
func NewStill(path string) *Still {
	return &Still{path: path}
}

func (s *Still) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("still source closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := imaging.Open(s.path, imaging.AutoOrientation(true))
	if err != nil {
		return unavailable("open %s: %v", s.path, err)
	}
	s.img = img
	debug.Verbose("Camera: still source %s (%dx%d)", s.path, img.Bounds().Dx(), img.Bounds().Dy())
	return nil
}

func (s *Still) CurrentFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, unavailable("still source closed")
	}
	if s.img == nil {
		return nil, ErrNoFrame
	}
	return s.img, nil
}

func (s *Still) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.img = nil
	return nil
}
