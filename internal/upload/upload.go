// Package upload hands finished collages to an external sink.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cjeanneret/BoothGo/internal/config"
)

const (
	// DefaultFilename is the file name attached to every uploaded collage.
	DefaultFilename = "photobooth.jpg"
	// DefaultCaption is the message attached to every uploaded collage.
	DefaultCaption = "Captured with Photobooth"
	// DefaultDisplayName is used when no display name is known.
	DefaultDisplayName = "Anonymous"

	timestampLayout = "02/01/2006 - 15:04"
)

// ErrEmptyImage is returned when a request carries no image bytes.
var ErrEmptyImage = errors.New("upload: empty image")

// Request is one finished collage plus its metadata.
type Request struct {
	Image       []byte // JPEG bytes
	Filename    string
	DisplayName string
	Caption     string
	Timestamp   string // DD/MM/YYYY - HH:mm
}

// Bridge accepts a finished image. Any non-nil error means the upload failed.
type Bridge interface {
	Upload(ctx context.Context, req Request) error
}

// New returns the bridge selected by cfg.Type.
func New(cfg config.UploadConfig, timeout time.Duration) (Bridge, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPBridge(cfg.Endpoint, timeout), nil
	case "disk":
		return NewDiskBridge(cfg.Dir)
	default:
		return nil, fmt.Errorf("unsupported upload type: %s", cfg.Type)
	}
}

// NewRequest builds a Request with the default file name and caption.
func NewRequest(image []byte, displayName string, at time.Time) Request {
	if strings.TrimSpace(displayName) == "" {
		displayName = DefaultDisplayName
	}
	return Request{
		Image:       image,
		Filename:    DefaultFilename,
		DisplayName: displayName,
		Caption:     DefaultCaption,
		Timestamp:   FormatTimestamp(at),
	}
}

// FormatTimestamp renders t as "DD/MM/YYYY - HH:mm" in t's location.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func (r Request) validate() error {
	if len(r.Image) == 0 {
		return ErrEmptyImage
	}
	return nil
}
