package session

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/upload"
)

// run is the session loop. It is the only goroutine touching loop-owned
// fields.
func (s *Session) run() {
	defer close(s.done)
	defer s.release()

	for !s.closed {
		select {
		case fn := <-s.cmds:
			fn()
		case fn := <-s.events:
			fn()
		case <-tickC(s.previewTk):
			s.previewTick()
		case <-tickC(s.countTk):
			s.countdownTick()
		case <-timerC(s.retry):
			s.retry = nil
			s.startCamera()
		}
		s.publish()
	}
}

// post delivers the result of background work to the loop. Results
// arriving after the loop exited are dropped.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) state() State {
	return State(s.fsm.Current())
}

func (s *Session) transition(event string) {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		debug.Error(err)
	}
}

func (s *Session) setError(kind ErrorKind, err error) {
	s.err = &Error{Kind: kind, Err: err}
	debug.Error(s.err)
}

func (s *Session) clearError(kind ErrorKind) {
	if s.err != nil && s.err.Kind == kind {
		s.err = nil
	}
}

// ---------- Camera ----------

func (s *Session) startCamera() {
	if s.starting || s.source == nil {
		return
	}
	s.starting = true
	src, ctx := s.source, s.ctx
	go func() {
		err := src.Start(ctx)
		s.post(func() { s.cameraStarted(err) })
	}()
}

func (s *Session) cameraStarted(err error) {
	s.starting = false
	if s.source == nil {
		return
	}
	if err != nil {
		s.cameraLost(err)
		return
	}
	s.sourceOK = true
	s.clearError(CameraUnavailable)
	debug.Live("Session %s: camera started", s.id)
}

func (s *Session) cameraLost(err error) {
	s.sourceOK = false
	s.setError(CameraUnavailable, err)
	if s.retry == nil {
		s.retry = time.NewTimer(s.opts.CameraRetry)
	}
}

func (s *Session) previewTick() {
	st := s.state()
	if !s.sourceOK || (st != Initializing && st != Live && st != Countdown) {
		return
	}
	frame, err := s.source.CurrentFrame()
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrNoFrame):
		return
	case errors.Is(err, camera.ErrUnavailable):
		s.cameraLost(err)
		return
	default:
		debug.Trace("Session %s: preview frame: %v", s.id, err)
		return
	}

	s.liveFrame = filter.Apply(frame, s.mode)
	if st == Initializing {
		s.transition(evReady)
	}
}

// ---------- Countdown & capture ----------

func (s *Session) startCountdown() {
	s.transition(evCountdown)
	s.countdown = s.opts.CountdownFrom
	s.countTk = time.NewTicker(s.opts.CountdownInterval)
	debug.Countdown(s.countdown)
}

func (s *Session) countdownTick() {
	s.countdown--
	if s.countdown > 0 {
		debug.Countdown(s.countdown)
		return
	}
	s.countTk.Stop()
	s.countTk = nil
	s.fire()
}

func (s *Session) fire() {
	s.transition(evFire)
	if s.opts.OnFire != nil {
		s.opts.OnFire()
	}

	frame, err := s.source.CurrentFrame()
	if err != nil {
		s.setError(CaptureFailed, err)
		if errors.Is(err, camera.ErrUnavailable) {
			s.cameraLost(err)
		}
		s.transition(evResume)
		return
	}

	shot := Shot{
		Image:   filter.Apply(frame, s.mode),
		Filter:  s.mode,
		Index:   len(s.shots),
		TakenAt: s.opts.Now(),
	}
	s.shots = append(s.shots, shot)
	s.clearError(CaptureFailed)
	debug.Shot(len(s.shots), MaxShots)

	if len(s.shots) == MaxShots {
		s.transition(evComplete)
		return
	}
	s.transition(evResume)
}

// ---------- Collage ----------

func (s *Session) compose() error {
	// the camera is not needed anymore
	s.release()
	s.transition(evCompose)
	s.publish()

	images := make([]image.Image, len(s.shots))
	for i, shot := range s.shots {
		images[i] = shot.Image
	}

	res, err := s.opts.Compositor.Compose(s.ctx, images)
	var data []byte
	if err == nil {
		data, err = collage.EncodeJPEG(res.Image, s.opts.JPEGQuality)
	}
	if err != nil {
		s.setError(CompositionFailed, err)
		s.transition(evComposeFailed)
		return s.err
	}

	s.result, s.jpeg = res, data
	s.clearError(CompositionFailed)
	s.transition(evComposed)
	debug.Info("Session %s: collage ready (%d bytes)", s.id, len(data))
	return nil
}

// ---------- Upload ----------

func (s *Session) startUpload() {
	s.err = nil
	s.transition(evUpload)

	name := upload.DefaultDisplayName
	if s.opts.Profile != nil {
		name = s.opts.Profile.DisplayName()
	}
	req := upload.NewRequest(s.jpeg, name, s.opts.Now())

	bridge, ctx := s.opts.Uploader, s.ctx
	go func() {
		err := bridge.Upload(ctx, req)
		s.post(func() { s.uploadDone(err) })
	}()
}

func (s *Session) uploadDone(err error) {
	if s.state() != Uploading {
		return
	}
	debug.Upload(debug.Fmt("%T", s.opts.Uploader), err)
	if err != nil {
		s.setError(UploadFailed, err)
		s.transition(evUploadFailed)
		return
	}
	s.transition(evUploaded)
	s.shutdown()
}

// ---------- Close ----------

func (s *Session) closeNow() {
	if s.closed {
		return
	}
	if s.state() != Closed {
		s.transition(evClose)
	}
	s.shutdown()
}

// shutdown cancels pending work, releases the camera and drops every
// captured image. The loop exits afterwards.
func (s *Session) shutdown() {
	s.closed = true
	s.cancel()
	s.release()
	s.shots = nil
	s.result, s.jpeg = nil, nil
	s.countdown = 0
}

// release stops the tickers and closes the frame source. It is the only
// path releasing the camera and may be called any number of times.
func (s *Session) release() {
	if s.previewTk != nil {
		s.previewTk.Stop()
		s.previewTk = nil
	}
	if s.countTk != nil {
		s.countTk.Stop()
		s.countTk = nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.sourceOK = false
	s.liveFrame = nil
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			debug.Error(err)
		}
		s.source = nil
	}
}

// ---------- Publishing ----------

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		State:       s.state(),
		Filter:      s.mode,
		Shots:       len(s.shots),
		CameraReady: s.sourceOK,
		HasPreview:  s.liveFrame != nil || s.result != nil,
		HasCollage:  s.result != nil,
	}
	if snap.State == Countdown {
		snap.Countdown = s.countdown
	}
	if s.err != nil {
		snap.ErrorKind = s.err.Kind.String()
		snap.Error = s.err.Error()
	}
	return snap
}

// publish copies the loop state into the shared view and reports changes.
func (s *Session) publish() {
	snap := s.snapshot()

	s.mu.Lock()
	s.view = view{
		snap:    snap,
		preview: s.liveFrame,
		shots:   append([]Shot(nil), s.shots...),
		result:  s.result,
		jpeg:    s.jpeg,
	}
	s.mu.Unlock()

	if snap != s.lastPublic {
		s.lastPublic = snap
		if s.opts.OnChange != nil {
			s.opts.OnChange(snap)
		}
	}
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
