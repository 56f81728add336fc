//go:build linux && cgo

package camera

import (
	"bytes"
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// StaleAfter is how old the latest frame may get before the stream is
// considered dead.
const StaleAfter = 5 * time.Second

// V4L2 streams MJPEG frames from a Video4Linux device.
// A pump goroutine keeps the latest compressed frame; CurrentFrame decodes
// it on demand. A stream that ended or stalled reports ErrUnavailable and
// the next Start reopens the device.
type V4L2 struct {
	path   string
	width  int
	height int
	now    func() time.Time

	mu       sync.Mutex
	cur      *stream
	latest   []byte
	latestAt time.Time
	ended    bool
	closed   bool
}

// stream is one open device and its pump.
type stream struct {
	dev  *device.Device
	stop context.CancelFunc
	done chan struct{}
}

// shutdown stops streaming and closes the device without waiting for the
// pump.
func (s *stream) shutdown() error {
	if s.stop != nil {
		s.stop()
	}
	if s.dev != nil {
		return s.dev.Close()
	}
	return nil
}

// release shuts the stream down and waits for its pump to exit.
func (s *stream) release(path string) error {
	err := s.shutdown()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		debug.Error(unavailable("%s stream did not stop", path))
	}
	return err
}

// NewV4L2 creates an unstarted V4L2 source.
func NewV4L2(path string, width, height int) (*V4L2, error) {
	return &V4L2{path: path, width: width, height: height, now: time.Now}, nil
}

// Start opens the device and starts streaming. It is a no-op while a
// healthy stream runs; an ended or stalled stream is replaced.
func (v *V4L2) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return unavailable("%s closed", v.path)
	}
	if v.cur != nil && !v.staleLocked() {
		v.mu.Unlock()
		return nil
	}
	old := v.cur
	v.cur = nil
	v.mu.Unlock()

	if old != nil {
		debug.Verbose("Camera: %s stalled, reopening", v.path)
		_ = old.release(v.path)
	}

	// the device is opened without holding mu so Close never waits on it
	s, err := v.open()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = s.shutdown()
		return err
	}

	v.mu.Lock()
	if v.closed || v.cur != nil {
		closed := v.closed
		v.mu.Unlock()
		_ = s.shutdown()
		if closed {
			return unavailable("%s closed", v.path)
		}
		return nil
	}
	v.cur = s
	v.latest, v.ended = nil, false
	v.mu.Unlock()

	go v.pump(s.dev.GetOutput(), s.done)

	debug.Info("Camera: streaming from %s (%dx%d MJPEG)", v.path, v.width, v.height)
	return nil
}

func (v *V4L2) open() (*stream, error) {
	dev, err := device.Open(
		v.path,
		device.WithBufferSize(2),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(v.width),
			Height:      uint32(v.height),
		}),
	)
	if err != nil {
		return nil, unavailable("open %s: %v", v.path, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(streamCtx); err != nil {
		cancel()
		_ = dev.Close()
		return nil, unavailable("start %s: %v", v.path, err)
	}
	return &stream{dev: dev, stop: cancel, done: make(chan struct{})}, nil
}

// pump copies frames from the device until its channel closes, then marks
// the stream as ended.
func (v *V4L2) pump(frames <-chan []byte, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		v.mu.Lock()
		if v.owns(done) {
			v.latest, v.latestAt = cp, v.now()
		}
		v.mu.Unlock()
	}

	v.mu.Lock()
	var ended *stream
	if v.owns(done) {
		v.ended = true
		ended, v.cur = v.cur, nil
	}
	v.mu.Unlock()

	if ended != nil {
		if err := ended.shutdown(); err != nil {
			debug.Trace("Camera: close %s: %v", v.path, err)
		}
	}
	debug.Verbose("Camera: %s stream ended", v.path)
}

// owns reports whether the pump behind done feeds the current stream.
// Callers hold mu.
func (v *V4L2) owns(done chan struct{}) bool {
	return !v.closed && v.cur != nil && v.cur.done == done
}

func (v *V4L2) staleLocked() bool {
	return len(v.latest) > 0 && v.now().Sub(v.latestAt) > StaleAfter
}

func (v *V4L2) CurrentFrame() (image.Image, error) {
	v.mu.Lock()
	closed, ended, stale, data := v.closed, v.ended, v.staleLocked(), v.latest
	v.mu.Unlock()

	switch {
	case closed:
		return nil, unavailable("%s closed", v.path)
	case ended:
		return nil, unavailable("%s stream ended", v.path)
	case len(data) == 0:
		return nil, ErrNoFrame
	case stale:
		return nil, unavailable("%s frame older than %s", v.path, StaleAfter)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		// a torn or partial MJPEG frame, the next one will do
		debug.Trace("Camera: decode frame: %v", err)
		return nil, ErrNoFrame
	}
	return img, nil
}

func (v *V4L2) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	s := v.cur
	v.cur, v.latest = nil, nil
	v.mu.Unlock()

	var err error
	if s != nil {
		err = s.release(v.path)
	}
	debug.Verbose("Camera: %s released", v.path)
	return err
}
