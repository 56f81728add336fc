package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, sessions *Manager, profile ProfileStore, ui UIConfig) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, sessions, profile, ui, subFS),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	return newRouter(s.handlers)
}

func newRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/session", h.HandleOpen).Methods(http.MethodPost)
	r.HandleFunc("/session", h.HandleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/session", h.HandleClose).Methods(http.MethodDelete)
	r.HandleFunc("/session/filter", h.HandleFilter).Methods(http.MethodPost)
	r.HandleFunc("/session/capture", h.HandleCapture).Methods(http.MethodPost)
	r.HandleFunc("/session/collage", h.HandleCollage).Methods(http.MethodPost)
	r.HandleFunc("/session/upload", h.HandleUpload).Methods(http.MethodPost)
	r.HandleFunc("/session/preview.jpg", h.HandlePreview).Methods(http.MethodGet)
	r.HandleFunc("/session/shots/{index:[0-9]+}.jpg", h.HandleShot).Methods(http.MethodGet)
	r.HandleFunc("/session/collage.jpg", h.HandleCollageImage).Methods(http.MethodGet)

	r.HandleFunc("/profile", h.HandleProfile).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/config", h.HandleConfig).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", h.HandleStatusStream).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.HandleFunc("/", h.ServeIndex).Methods(http.MethodGet)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
