//go:build !linux || !cgo

package camera

import (
	"context"
	"image"
)

// V4L2 is only available on linux.
type V4L2 struct{ path string }

// NewV4L2 reports ErrUnavailable on non-linux platforms.
func NewV4L2(path string, width, height int) (*V4L2, error) {
	return nil, unavailable("v4l2 is only supported on linux (%s)", path)
}

func (v *V4L2) Start(ctx context.Context) error     { return unavailable("v4l2 unsupported") }
func (v *V4L2) CurrentFrame() (image.Image, error) { return nil, unavailable("v4l2 unsupported") }
func (v *V4L2) Close() error                       { return nil }
