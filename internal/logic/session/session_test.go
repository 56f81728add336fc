package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/upload"
)

// ---------- Fakes ----------

// fakeSource is a FrameSource serving one fixed image.
type fakeSource struct {
	mu        sync.Mutex
	img       image.Image
	startErrs int // number of Start calls that fail
	frameErr  error
	starts    int
	closes    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{img: solid(64, 48, color.NRGBA{R: 200, G: 20, B: 20, A: 255})}
}

func (f *fakeSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.starts <= f.startErrs {
		return fmt.Errorf("%w: device busy", camera.ErrUnavailable)
	}
	return nil
}

func (f *fakeSource) CurrentFrame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return nil, camera.ErrUnavailable
	}
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return f.img, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) setFrameErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameErr = err
}

func (f *fakeSource) counts() (starts, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.closes
}

// fakeCompositor returns small solid images, or err.
type fakeCompositor struct {
	mu    sync.Mutex
	err   error
	calls int
	got   []image.Image
}

func (f *fakeCompositor) Compose(ctx context.Context, shots []image.Image) (*collage.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = shots
	if f.err != nil {
		return nil, f.err
	}
	return &collage.Result{
		Image:   solid(90, 120, color.NRGBA{B: 255, A: 255}),
		Preview: solid(45, 60, color.NRGBA{B: 255, A: 255}),
	}, nil
}

func (f *fakeCompositor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeBridge records requests. With a gate it blocks until the gate is
// closed or the context is cancelled.
type fakeBridge struct {
	mu     sync.Mutex
	err    error
	gate   chan struct{}
	reqs   []upload.Request
	ctxErr error
}

func (f *fakeBridge) Upload(ctx context.Context, req upload.Request) error {
	f.mu.Lock()
	gate := f.gate
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.ctxErr = ctx.Err()
			f.mu.Unlock()
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeBridge) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBridge) requests() []upload.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload.Request(nil), f.reqs...)
}

type staticProfile string

func (p staticProfile) DisplayName() string { return string(p) }

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// ---------- Helpers ----------

type harness struct {
	s      *Session
	src    *fakeSource
	comp   *fakeCompositor
	bridge *fakeBridge
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{src: newFakeSource(), comp: &fakeCompositor{}, bridge: &fakeBridge{}}
	opts := Options{
		Source:            h.src,
		Compositor:        h.comp,
		Uploader:          h.bridge,
		CountdownFrom:     3,
		CountdownInterval: 2 * time.Millisecond,
		PreviewInterval:   2 * time.Millisecond,
		CameraRetry:       10 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.s = New(opts)
	t.Cleanup(func() { _ = h.s.Close() })
	return h
}

func waitFor(t *testing.T, s *Session, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := s.Snapshot(); cond(snap) {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot %+v", desc, s.Snapshot())
	return Snapshot{}
}

func openLive(t *testing.T, h *harness) {
	t.Helper()
	if err := h.s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, h.s, "live", func(s Snapshot) bool { return s.State == Live && s.CameraReady })
}

func captureOne(t *testing.T, h *harness) {
	t.Helper()
	before := h.s.Snapshot().Shots
	started, err := h.s.RequestCapture()
	if err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	if !started {
		t.Fatalf("RequestCapture ignored in %+v", h.s.Snapshot())
	}
	waitFor(t, h.s, fmt.Sprintf("shot %d", before+1), func(s Snapshot) bool {
		return s.Shots == before+1 && (s.State == Live || s.State == Ready)
	})
}

func captureAll(t *testing.T, h *harness) {
	t.Helper()
	for i := 0; i < MaxShots; i++ {
		captureOne(t, h)
	}
	if st := h.s.Snapshot().State; st != Ready {
		t.Fatalf("state after three shots = %s, want ready", st)
	}
}

// ---------- Scenarios ----------

func TestSession_FullFlow(t *testing.T) {
	var fires atomic.Int32
	at := time.Date(2026, time.March, 7, 9, 5, 0, 0, time.UTC)
	h := newHarness(t, func(o *Options) {
		o.OnFire = func() { fires.Add(1) }
		o.Now = func() time.Time { return at }
	})

	openLive(t, h)
	if _, ok := h.s.PreviewImage(); !ok {
		t.Error("no live preview while live")
	}

	captureAll(t, h)
	if got := fires.Load(); got != 3 {
		t.Errorf("OnFire called %d times, want 3", got)
	}
	for i := 0; i < MaxShots; i++ {
		shot, ok := h.s.Shot(i)
		if !ok {
			t.Fatalf("Shot(%d) missing", i)
		}
		if shot.Index != i || shot.Filter != filter.None || !shot.TakenAt.Equal(at) {
			t.Errorf("Shot(%d) = {Index:%d Filter:%v TakenAt:%v}", i, shot.Index, shot.Filter, shot.TakenAt)
		}
	}

	if err := h.s.RequestCollage(); err != nil {
		t.Fatalf("RequestCollage: %v", err)
	}
	snap := h.s.Snapshot()
	if snap.State != Preview || !snap.HasCollage {
		t.Fatalf("after collage: %+v, want preview with collage", snap)
	}
	if _, closes := h.src.counts(); closes != 1 {
		t.Errorf("camera closed %d times before preview, want 1", closes)
	}
	if len(h.comp.got) != MaxShots {
		t.Errorf("compositor got %d shots, want 3", len(h.comp.got))
	}
	prev, ok := h.s.PreviewImage()
	if !ok || prev.Bounds().Dx() != 45 {
		t.Errorf("PreviewImage = %v, %v; want collage preview", prev, ok)
	}
	if _, data, ok := h.s.Collage(); !ok || len(data) == 0 {
		t.Error("Collage JPEG missing in preview")
	}

	if err := h.s.ConfirmUpload(); err != nil {
		t.Fatalf("ConfirmUpload: %v", err)
	}
	waitFor(t, h.s, "closed", func(s Snapshot) bool { return s.State == Closed })
	<-h.s.Done()

	reqs := h.bridge.requests()
	if len(reqs) != 1 {
		t.Fatalf("bridge got %d requests, want 1", len(reqs))
	}
	r := reqs[0]
	if r.DisplayName != "Anonymous" || r.Caption != "Captured with Photobooth" ||
		r.Filename != "photobooth.jpg" || r.Timestamp != "07/03/2026 - 09:05" || len(r.Image) == 0 {
		t.Errorf("request = {%q %q %q %q %d bytes}", r.DisplayName, r.Caption, r.Filename, r.Timestamp, len(r.Image))
	}

	if _, ok := h.s.Shot(0); ok {
		t.Error("shots kept after upload")
	}
	if _, err := h.s.RequestCapture(); !errors.Is(err, ErrClosed) {
		t.Errorf("RequestCapture after close = %v, want ErrClosed", err)
	}
}

func TestSession_FourthCaptureIgnored(t *testing.T) {
	h := newHarness(t)
	openLive(t, h)
	captureAll(t, h)

	for i := 0; i < 3; i++ {
		started, err := h.s.RequestCapture()
		if err != nil || started {
			t.Errorf("extra RequestCapture = %v, %v; want false, nil", started, err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	snap := h.s.Snapshot()
	if snap.Shots != MaxShots || snap.State != Ready {
		t.Errorf("after extra captures: %+v, want 3 shots in ready", snap)
	}
}

func TestSession_CaptureDuringCountdownIgnored(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CountdownInterval = 100 * time.Millisecond })
	openLive(t, h)

	started, err := h.s.RequestCapture()
	if err != nil || !started {
		t.Fatalf("first RequestCapture = %v, %v", started, err)
	}
	started, err = h.s.RequestCapture()
	if err != nil || started {
		t.Errorf("RequestCapture during countdown = %v, %v; want false, nil", started, err)
	}
	if snap := h.s.Snapshot(); snap.State != Countdown || snap.Countdown != 3 {
		t.Errorf("snapshot = %+v, want countdown 3", snap)
	}
	waitFor(t, h.s, "one shot", func(s Snapshot) bool { return s.Shots == 1 && s.State == Live })
}

func TestSession_CountdownValues(t *testing.T) {
	var (
		mu     sync.Mutex
		values []int
	)
	h := newHarness(t, func(o *Options) {
		o.OnChange = func(s Snapshot) {
			if s.State == Countdown {
				mu.Lock()
				values = append(values, s.Countdown)
				mu.Unlock()
			}
		}
	})
	openLive(t, h)
	captureOne(t, h)

	mu.Lock()
	defer mu.Unlock()
	want := []int{3, 2, 1}
	if fmt.Sprint(values) != fmt.Sprint(want) {
		t.Errorf("countdown values = %v, want %v", values, want)
	}
}

func TestSession_SetFilter(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CountdownInterval = 50 * time.Millisecond })

	if err := h.s.SetFilter(filter.Tint); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetFilter before Open = %v, want ErrInvalidState", err)
	}

	openLive(t, h)
	if err := h.s.SetFilter(filter.Grayscale); err != nil {
		t.Fatalf("SetFilter in live: %v", err)
	}
	if got := h.s.Snapshot().Filter; got != filter.Grayscale {
		t.Errorf("Snapshot().Filter = %v, want bw", got)
	}

	if _, err := h.s.RequestCapture(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.SetFilter(filter.None); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetFilter during countdown = %v, want ErrInvalidState", err)
	}
	if err := h.s.SetFilter(filter.Mode(42)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetFilter(42) = %v, want ErrInvalidState", err)
	}
}

func TestSession_ShotKeepsFilterAtFireTime(t *testing.T) {
	h := newHarness(t)
	openLive(t, h)

	if err := h.s.SetFilter(filter.Grayscale); err != nil {
		t.Fatal(err)
	}
	captureOne(t, h)
	if err := h.s.SetFilter(filter.Tint); err != nil {
		t.Fatal(err)
	}
	captureOne(t, h)

	first, _ := h.s.Shot(0)
	second, _ := h.s.Shot(1)
	if first.Filter != filter.Grayscale {
		t.Errorf("shot 0 filter = %v, want bw", first.Filter)
	}
	if got := first.Image.NRGBAAt(3, 3); got != (color.NRGBA{R: 80, G: 80, B: 80, A: 255}) {
		t.Errorf("shot 0 pixel = %v, want gray 80", got)
	}
	if second.Filter != filter.Tint {
		t.Errorf("shot 1 filter = %v, want tint", second.Filter)
	}
	if got := second.Image.NRGBAAt(3, 3); got != (color.NRGBA{R: 200, G: 20, B: 19, A: 255}) {
		t.Errorf("shot 1 pixel = %v, want tinted red", got)
	}
}

func TestSession_CloseFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		reach func(t *testing.T, h *harness)
	}{
		{"idle", func(t *testing.T, h *harness) {}},
		{"live", openLive},
		{"countdown", func(t *testing.T, h *harness) {
			openLive(t, h)
			if _, err := h.s.RequestCapture(); err != nil {
				t.Fatal(err)
			}
		}},
		{"ready", func(t *testing.T, h *harness) {
			openLive(t, h)
			captureAll(t, h)
		}},
		{"preview", func(t *testing.T, h *harness) {
			openLive(t, h)
			captureAll(t, h)
			if err := h.s.RequestCollage(); err != nil {
				t.Fatal(err)
			}
		}},
		{"error", func(t *testing.T, h *harness) {
			openLive(t, h)
			captureAll(t, h)
			h.comp.setErr(errors.New("boom"))
			_ = h.s.RequestCollage()
		}},
		{"uploading", func(t *testing.T, h *harness) {
			h.bridge.gate = make(chan struct{})
			openLive(t, h)
			captureAll(t, h)
			if err := h.s.RequestCollage(); err != nil {
				t.Fatal(err)
			}
			if err := h.s.ConfirmUpload(); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) {
				if tt.name == "countdown" {
					o.CountdownInterval = time.Second
				}
			})
			tt.reach(t, h)

			if err := h.s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			snap := h.s.Snapshot()
			if snap.State != Closed || snap.Shots != 0 || snap.HasCollage || snap.HasPreview {
				t.Errorf("after Close: %+v", snap)
			}
			if _, closes := h.src.counts(); closes != 1 {
				t.Errorf("camera closed %d times, want 1", closes)
			}
			if _, ok := h.s.Shot(0); ok {
				t.Error("shot kept after Close")
			}
			if _, ok := h.s.PreviewImage(); ok {
				t.Error("preview kept after Close")
			}

			if err := h.s.Close(); err != nil {
				t.Errorf("second Close: %v", err)
			}
			if err := h.s.Open(context.Background()); !errors.Is(err, ErrClosed) {
				t.Errorf("Open after Close = %v, want ErrClosed", err)
			}
			if err := h.s.SetFilter(filter.None); !errors.Is(err, ErrClosed) {
				t.Errorf("SetFilter after Close = %v, want ErrClosed", err)
			}
			if err := h.s.RequestCollage(); !errors.Is(err, ErrClosed) {
				t.Errorf("RequestCollage after Close = %v, want ErrClosed", err)
			}
			if err := h.s.ConfirmUpload(); !errors.Is(err, ErrClosed) {
				t.Errorf("ConfirmUpload after Close = %v, want ErrClosed", err)
			}
		})
	}
}

func TestSession_UploadFailureKeepsPreview(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Profile = staticProfile("Zahwa") })
	h.bridge.setErr(errors.New("sink down"))

	openLive(t, h)
	captureAll(t, h)
	if err := h.s.RequestCollage(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.ConfirmUpload(); err != nil {
		t.Fatal(err)
	}

	snap := waitFor(t, h.s, "upload failure", func(s Snapshot) bool {
		return s.State == Preview && s.ErrorKind == UploadFailed.String()
	})
	if !snap.HasCollage {
		t.Error("collage dropped after failed upload")
	}
	if _, data, ok := h.s.Collage(); !ok || len(data) == 0 {
		t.Error("Collage() empty after failed upload")
	}

	// retry succeeds
	h.bridge.setErr(nil)
	if err := h.s.ConfirmUpload(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.s, "closed", func(s Snapshot) bool { return s.State == Closed })

	reqs := h.bridge.requests()
	if len(reqs) != 2 || reqs[1].DisplayName != "Zahwa" {
		t.Errorf("requests = %d, last name %q; want 2 from Zahwa", len(reqs), reqs[len(reqs)-1].DisplayName)
	}
}

func TestSession_CompositionFailureRetry(t *testing.T) {
	h := newHarness(t)
	openLive(t, h)
	captureAll(t, h)

	h.comp.setErr(errors.New("font missing"))
	err := h.s.RequestCollage()
	if !IsKind(err, CompositionFailed) {
		t.Fatalf("RequestCollage = %v, want CompositionFailed", err)
	}
	snap := h.s.Snapshot()
	if snap.State != Failed || snap.Shots != MaxShots || snap.ErrorKind != "composition_failed" {
		t.Errorf("after failure: %+v", snap)
	}
	if started, err := h.s.RequestCapture(); started || err != nil {
		t.Errorf("RequestCapture in error = %v, %v; want false, nil", started, err)
	}

	h.comp.setErr(nil)
	if err := h.s.RequestCollage(); err != nil {
		t.Fatalf("retry RequestCollage: %v", err)
	}
	snap = h.s.Snapshot()
	if snap.State != Preview || snap.ErrorKind != "" {
		t.Errorf("after retry: %+v, want preview without error", snap)
	}
	if _, closes := h.src.counts(); closes != 1 {
		t.Errorf("camera closed %d times, want 1", closes)
	}
}

func TestSession_CameraUnavailableRecovers(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CameraRetry = 50 * time.Millisecond })
	h.src.startErrs = 2

	if err := h.s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.s, "camera unavailable", func(s Snapshot) bool {
		return s.ErrorKind == CameraUnavailable.String()
	})
	if started, err := h.s.RequestCapture(); started || err != nil {
		t.Errorf("RequestCapture without camera = %v, %v; want false, nil", started, err)
	}

	waitFor(t, h.s, "live after retry", func(s Snapshot) bool {
		return s.State == Live && s.CameraReady && s.ErrorKind == ""
	})
	if starts, _ := h.src.counts(); starts != 3 {
		t.Errorf("Start called %d times, want 3", starts)
	}
}

func TestSession_CaptureFailure(t *testing.T) {
	h := newHarness(t)
	openLive(t, h)

	h.src.setFrameErr(errors.New("glitch"))
	if started, err := h.s.RequestCapture(); !started || err != nil {
		t.Fatalf("RequestCapture = %v, %v", started, err)
	}
	snap := waitFor(t, h.s, "capture failure", func(s Snapshot) bool {
		return s.State == Live && s.ErrorKind == CaptureFailed.String()
	})
	if snap.Shots != 0 {
		t.Errorf("Shots = %d after failed capture, want 0", snap.Shots)
	}

	h.src.setFrameErr(nil)
	captureOne(t, h)
	if snap := h.s.Snapshot(); snap.ErrorKind != "" || snap.Shots != 1 {
		t.Errorf("after recovery: %+v", snap)
	}
}

func TestSession_LateUploadResultIgnored(t *testing.T) {
	h := newHarness(t)
	h.bridge.gate = make(chan struct{})
	defer close(h.bridge.gate)

	openLive(t, h)
	captureAll(t, h)
	if err := h.s.RequestCollage(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.ConfirmUpload(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.s, "uploading", func(s Snapshot) bool { return s.State == Uploading })

	if err := h.s.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.bridge.mu.Lock()
		ctxErr := h.bridge.ctxErr
		h.bridge.mu.Unlock()
		if ctxErr != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()
	if !errors.Is(h.bridge.ctxErr, context.Canceled) {
		t.Errorf("upload context error = %v, want context.Canceled", h.bridge.ctxErr)
	}
	if st := h.s.Snapshot().State; st != Closed {
		t.Errorf("state = %s, want closed", st)
	}
}

func TestSession_InvalidStates(t *testing.T) {
	h := newHarness(t)

	if err := h.s.RequestCollage(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RequestCollage in idle = %v, want ErrInvalidState", err)
	}
	if _, err := h.s.RequestCapture(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RequestCapture in idle = %v, want ErrInvalidState", err)
	}

	openLive(t, h)
	if err := h.s.Open(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Open = %v, want ErrInvalidState", err)
	}
	if err := h.s.ConfirmUpload(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ConfirmUpload in live = %v, want ErrInvalidState", err)
	}
	if err := h.s.RequestCollage(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RequestCollage in live = %v, want ErrInvalidState", err)
	}
}

func TestSession_OpenCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// either the loop accepted the command or the context won; both are fine,
	// but a cancelled Open must never leave the caller blocked
	done := make(chan struct{})
	go func() {
		_ = h.s.Open(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Open blocked with cancelled context")
	}
}

// ---------- Errors ----------

func TestError(t *testing.T) {
	cause := errors.New("no device")
	err := error(&Error{Kind: CameraUnavailable, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the cause")
	}
	if !IsKind(err, CameraUnavailable) || IsKind(err, UploadFailed) {
		t.Error("IsKind mismatch")
	}
	if got := err.Error(); got != "camera_unavailable: no device" {
		t.Errorf("Error() = %q", got)
	}
	if !IsKind(fmt.Errorf("wrapped: %w", err), CameraUnavailable) {
		t.Error("IsKind does not see through wrapping")
	}
}
