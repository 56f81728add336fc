package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// HTTPBridge posts the collage as multipart/form-data with the fields
// image, name, message and date.
type HTTPBridge struct {
	endpoint string
	client   *http.Client
}

// NewHTTPBridge creates a bridge posting to endpoint.
func NewHTTPBridge(endpoint string, timeout time.Duration) *HTTPBridge {
	return &HTTPBridge{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBridge) Upload(ctx context.Context, req Request) error {
	if err := req.validate(); err != nil {
		return err
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, body)
	if err != nil {
		return fmt.Errorf("upload: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	debug.Verbose("Upload: POST %s (%d bytes)", b.endpoint, len(req.Image))
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upload: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func encodeForm(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = DefaultFilename
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("upload: create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", fmt.Errorf("upload: write image part: %w", err)
	}

	for _, f := range []struct{ name, value string }{
		{"name", req.DisplayName},
		{"message", req.Caption},
		{"date", req.Timestamp},
	} {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("upload: write field %s: %w", f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("upload: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
