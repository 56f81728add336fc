package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/logic/session"
)

const (
	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 4 << 10
	// ThumbnailSize is the edge of the square shot thumbnails.
	ThumbnailSize = 80
	// previewQuality is the JPEG quality of preview frames.
	previewQuality = 75
)

// UIConfig holds the values the page needs to render its controls.
type UIConfig struct {
	Shots         int      `json:"shots"`
	CountdownFrom int      `json:"countdown_from"`
	PreviewFPS    int      `json:"preview_fps"`
	Filters       []string `json:"filters"`
}

// ProfileStore reads and updates the upload display name.
type ProfileStore interface {
	DisplayName() string
	Set(name string) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Sessions    *Manager
	Profile     ProfileStore
	UI          UIConfig
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, sessions *Manager, profile ProfileStore, ui UIConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Sessions:    sessions,
		Profile:     profile,
		UI:          ui,
		staticFS:    staticFS,
	}
}

type filterRequest struct {
	Filter filter.Mode `json:"filter"`
}

type profileBody struct {
	DisplayName string `json:"display_name"`
}

type captureResponse struct {
	Started bool             `json:"started"`
	Session session.Snapshot `json:"session"`
}

// ---------- Session ----------

// HandleOpen handles POST /session.
func (h *Handlers) HandleOpen(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Open(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// HandleSnapshot handles GET /session.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// HandleClose handles DELETE /session.
func (h *Handlers) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Close(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFilter handles POST /session/filter with {"filter":"bw"}.
func (h *Handlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.withSession(w, func(s Session) (interface{}, error) {
		if err := s.SetFilter(req.Filter); err != nil {
			return nil, err
		}
		return s.Snapshot(), nil
	})
}

// HandleCapture handles POST /session/capture. A request ignored by the
// session (countdown running, three shots) still answers 202 with
// started=false.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	started, err := s.RequestCapture()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, captureResponse{Started: started, Session: s.Snapshot()})
}

// HandleCollage handles POST /session/collage.
func (h *Handlers) HandleCollage(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, func(s Session) (interface{}, error) {
		if err := s.RequestCollage(); err != nil {
			return nil, err
		}
		return s.Snapshot(), nil
	})
}

// HandleUpload handles POST /session/upload. The upload runs in the
// background; progress is reported on the status stream.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.ConfirmUpload(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

func (h *Handlers) withSession(w http.ResponseWriter, fn func(Session) (interface{}, error)) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := fn(s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ---------- Images ----------

// HandlePreview handles GET /session/preview.jpg: the filtered live frame,
// or the collage preview once it exists.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	img, ok := s.PreviewImage()
	if !ok {
		http.Error(w, "no preview", http.StatusNotFound)
		return
	}
	data, err := collage.EncodeJPEG(img, previewQuality)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJPEG(w, data)
}

// HandleShot handles GET /session/shots/{index}.jpg with a zero-based index.
func (h *Handlers) HandleShot(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || idx < 0 || idx >= session.MaxShots {
		http.Error(w, "invalid shot index", http.StatusBadRequest)
		return
	}
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	shot, ok := s.Shot(idx)
	if !ok {
		http.Error(w, "shot not taken", http.StatusNotFound)
		return
	}
	data, err := collage.EncodeJPEG(collage.Thumbnail(shot.Image, ThumbnailSize), previewQuality)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJPEG(w, data)
}

// HandleCollageImage handles GET /session/collage.jpg.
func (h *Handlers) HandleCollageImage(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	_, data, ok := s.Collage()
	if !ok {
		http.Error(w, "no collage", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", `inline; filename="photobooth.jpg"`)
	writeJPEG(w, data)
}

// ---------- Profile & config ----------

// HandleProfile handles GET and POST /profile.
func (h *Handlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var body profileBody
		if !decodeBody(w, r, &body) {
			return
		}
		if err := h.Profile.Set(body.DisplayName); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		debug.Verbose("Display name set to %q", h.Profile.DisplayName())
	}
	writeJSON(w, http.StatusOK, profileBody{DisplayName: h.Profile.DisplayName()})
}

// HandleConfig returns the UI settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.UI)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// ---------- Helpers ----------

// decodeBody reads a size-limited JSON body into v. It writes a 400 and
// returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJPEG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// writeError maps session and manager errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, ErrSessionActive), errors.Is(err, session.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		status = http.StatusGone
	case session.IsKind(err, session.CameraUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		debug.Error(err)
	}
	http.Error(w, err.Error(), status)
}
