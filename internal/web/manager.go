package web

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/logic/session"
)

var (
	// ErrNoSession is returned when an operation needs a session and none
	// was opened yet.
	ErrNoSession = errors.New("no session")
	// ErrSessionActive is returned when opening while a session is running.
	ErrSessionActive = errors.New("a session is already active")
)

// Session is the part of *session.Session the web surface drives.
type Session interface {
	Open(ctx context.Context) error
	SetFilter(mode filter.Mode) error
	RequestCapture() (bool, error)
	RequestCollage() error
	ConfirmUpload() error
	Close() error
	Snapshot() session.Snapshot
	PreviewImage() (image.Image, bool)
	Shot(i int) (session.Shot, bool)
	Collage() (*collage.Result, []byte, bool)
}

// SessionFactory builds a new, unopened session.
type SessionFactory func() (Session, error)

// Manager keeps the current session. At most one session is active at a
// time; a closed session is replaced by the next Open.
type Manager struct {
	mu         sync.Mutex
	current    Session
	newSession SessionFactory
}

// NewManager returns a manager building sessions with newSession.
func NewManager(newSession SessionFactory) *Manager {
	return &Manager{newSession: newSession}
}

// Open builds and opens a new session.
func (m *Manager) Open(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Snapshot().State != session.Closed {
		return nil, ErrSessionActive
	}
	if m.newSession == nil {
		return nil, errors.New("sessions not configured")
	}

	s, err := m.newSession()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.Open(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	m.current = s
	debug.Info("Session %s opened", s.Snapshot().ID)
	return s, nil
}

// Current returns the latest session, which may be closed.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Close closes the current session. Closing an already closed session is
// not an error.
func (m *Manager) Close() error {
	s, err := m.Current()
	if err != nil {
		return err
	}
	return s.Close()
}

// Press handles the physical button: it opens a session when none is
// active, starts a capture while live and builds the collage once three
// shots exist.
func (m *Manager) Press(ctx context.Context) error {
	s, err := m.Current()
	if errors.Is(err, ErrNoSession) || (err == nil && s.Snapshot().State == session.Closed) {
		_, err = m.Open(ctx)
		return err
	}
	if err != nil {
		return err
	}

	snap := s.Snapshot()
	switch {
	case snap.State == session.Live:
		_, err = s.RequestCapture()
		return err
	case snap.Shots == session.MaxShots && (snap.State == session.Ready || snap.State == session.Failed):
		return s.RequestCollage()
	}
	debug.Verbose("Button ignored in state %s", snap.State)
	return nil
}
