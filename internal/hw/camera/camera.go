package camera

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/cjeanneret/BoothGo/internal/config"
)

var (
	// ErrNoFrame is returned by CurrentFrame before the first frame arrived.
	ErrNoFrame = errors.New("camera: no frame available yet")
	// ErrUnavailable wraps permission and hardware failures.
	ErrUnavailable = errors.New("camera: unavailable")
)

// FrameSource is the high-level interface used by the rest of the application.
// It represents a live video stream, regardless of where the frames come from
// (USB webcam, still image, synthetic pattern).
type FrameSource interface {
	// Start acquires the device and begins streaming.
	Start(ctx context.Context) error
	// CurrentFrame returns the most recent frame.
	CurrentFrame() (image.Image, error)
	// Close releases the device. Calling it more than once is safe.
	Close() error
}

// Factory builds a fresh, unstarted FrameSource. Each capture session
// acquires its own source.
type Factory func() (FrameSource, error)

// NewFactory returns a Factory for the configured camera type.
func NewFactory(cfg config.CameraConfig) (Factory, error) {
	switch cfg.Type {
	case "pattern":
		return func() (FrameSource, error) {
			return NewPattern(cfg.Width, cfg.Height), nil
		}, nil
	case "still":
		return func() (FrameSource, error) {
			return NewStill(cfg.StillPath), nil
		}, nil
	case "v4l2":
		return func() (FrameSource, error) {
			src, err := NewV4L2(cfg.Device, cfg.Width, cfg.Height)
			if err != nil {
				return nil, err
			}
			return src, nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Type)
	}
}

func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
