// Package session runs one photobooth capture flow: live preview, three
// countdown shots, the collage and its upload.
//
// All session state is owned by a single goroutine (the loop). Public
// methods hand closures to the loop and wait for their result, so callers
// may use a Session from any goroutine.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/upload"
)

// MaxShots is the number of shots in a collage.
const MaxShots = 3

// Compositor renders the finished collage from three shots.
type Compositor interface {
	Compose(ctx context.Context, shots []image.Image) (*collage.Result, error)
}

// ProfileProvider supplies the display name attached to uploads.
type ProfileProvider interface {
	DisplayName() string
}

// Options wires a session to its collaborators.
type Options struct {
	Source     camera.FrameSource
	Compositor Compositor
	Uploader   upload.Bridge
	Profile    ProfileProvider // nil = "Anonymous"

	CountdownFrom     int           // first countdown value (default 3)
	CountdownInterval time.Duration // time between countdown values (default 1s)
	PreviewInterval   time.Duration // preview refresh period (default 1/15s)
	CameraRetry       time.Duration // delay before restarting a failed camera (default 2s)
	JPEGQuality       int           // quality of the uploaded collage (default 80)

	// OnChange is called from the session loop whenever the snapshot
	// changes. It must not call back into the session.
	OnChange func(Snapshot)
	// OnFire is called from the session loop when a shot is taken,
	// e.g. to pulse a flash lamp. It must not block.
	OnFire func()
	// Now returns the current time (default time.Now).
	Now func() time.Time
}

// Shot is one captured frame with the filter active when it was taken.
// Shots are immutable.
type Shot struct {
	Image   *image.NRGBA
	Filter  filter.Mode
	Index   int
	TakenAt time.Time
}

// Snapshot is a read-only view of a session for user interfaces.
type Snapshot struct {
	ID          string      `json:"id"`
	State       State       `json:"state"`
	Filter      filter.Mode `json:"filter"`
	Shots       int         `json:"shots"`
	Countdown   int         `json:"countdown"`
	CameraReady bool        `json:"camera_ready"`
	HasPreview  bool        `json:"has_preview"`
	HasCollage  bool        `json:"has_collage"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Session is one capture flow. Create it with New, start it with Open and
// always end it with Close.
type Session struct {
	id   string
	opts Options

	cmds   chan func()
	events chan func()
	done   chan struct{}

	// loop-owned state
	fsm        *fsm.FSM
	ctx        context.Context
	cancel     context.CancelFunc
	source     camera.FrameSource
	sourceOK   bool
	starting   bool
	mode       filter.Mode
	shots      []Shot
	countdown  int
	err        *Error
	result     *collage.Result
	jpeg       []byte
	liveFrame  image.Image
	previewTk  *time.Ticker
	countTk    *time.Ticker
	retry      *time.Timer
	closed     bool
	lastPublic Snapshot

	// published view, readable from any goroutine
	mu   sync.RWMutex
	view view
}

type view struct {
	snap    Snapshot
	preview image.Image
	shots   []Shot
	result  *collage.Result
	jpeg    []byte
}

// New creates an idle session and starts its loop.
func New(opts Options) *Session {
	if opts.CountdownFrom <= 0 {
		opts.CountdownFrom = 3
	}
	if opts.CountdownInterval <= 0 {
		opts.CountdownInterval = time.Second
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = time.Second / 15
	}
	if opts.CameraRetry <= 0 {
		opts.CameraRetry = 2 * time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewString(),
		opts:   opts,
		cmds:   make(chan func()),
		events: make(chan func()),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		source: opts.Source,
	}
	s.fsm = newMachine(s.id)
	s.view.snap = s.snapshot()
	s.lastPublic = s.view.snap

	go s.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// do runs fn on the session loop and returns its result once the new
// state is published.
func (s *Session) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	cmd := func() {
		err := fn()
		s.publish()
		errc <- err
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// an accepted command always runs
	return <-errc
}

// Open acquires the camera and starts the live preview. The camera starts
// in the background; the session moves to live on its first frame.
// ctx only bounds the handoff to the session loop.
func (s *Session) Open(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.state() != Idle {
			return ErrInvalidState
		}
		s.transition(evOpen)
		s.previewTk = time.NewTicker(s.opts.PreviewInterval)
		s.startCamera()
		return nil
	})
}

// SetFilter changes the filter of the live preview and of the next shots.
// It is only allowed while live.
func (s *Session) SetFilter(mode filter.Mode) error {
	return s.do(context.Background(), func() error {
		if s.state() != Live {
			return ErrInvalidState
		}
		switch mode {
		case filter.None, filter.Grayscale, filter.Tint:
		default:
			return ErrInvalidState
		}
		s.mode = mode
		return nil
	})
}

// RequestCapture starts a countdown for the next shot. It reports false
// without error when the request is ignored: a countdown is running, three
// shots exist, or the camera is unavailable.
func (s *Session) RequestCapture() (bool, error) {
	var started bool
	err := s.do(context.Background(), func() error {
		switch s.state() {
		case Live:
		case Initializing, Countdown, Capturing, Ready, Failed:
			return nil
		default:
			return ErrInvalidState
		}
		if len(s.shots) >= MaxShots || !s.sourceOK {
			return nil
		}
		s.startCountdown()
		started = true
		return nil
	})
	return started, err
}

// RequestCollage releases the camera and renders the collage. It is
// allowed once three shots exist, and again after a failed composition.
func (s *Session) RequestCollage() error {
	return s.do(context.Background(), func() error {
		st := s.state()
		if (st != Ready && st != Failed) || len(s.shots) != MaxShots {
			return ErrInvalidState
		}
		return s.compose()
	})
}

// ConfirmUpload hands the collage to the upload bridge. The upload runs in
// the background; success closes the session, failure returns to preview.
func (s *Session) ConfirmUpload() error {
	return s.do(context.Background(), func() error {
		if s.state() != Preview {
			return ErrInvalidState
		}
		s.startUpload()
		return nil
	})
}

// Close ends the session from any state: it stops the preview, cancels
// pending work, releases the camera and discards shots and collage.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	err := s.do(context.Background(), func() error {
		s.closeNow()
		return nil
	})
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	<-s.done
	return err
}

// Snapshot returns the latest published view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.snap
}

// PreviewImage returns the filtered live frame, or the collage preview
// once a collage exists.
func (s *Session) PreviewImage() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view.result != nil {
		return s.view.result.Preview, true
	}
	return s.view.preview, s.view.preview != nil
}

// Shot returns the i-th captured shot.
func (s *Session) Shot(i int) (Shot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.view.shots) {
		return Shot{}, false
	}
	return s.view.shots[i], true
}

// Collage returns the finished collage and its JPEG encoding.
func (s *Session) Collage() (*collage.Result, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view.result == nil {
		return nil, nil, false
	}
	return s.view.result, s.view.jpeg, true
}
