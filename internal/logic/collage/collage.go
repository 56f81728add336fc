// Package collage draws three shots and the booth branding onto the
// fixed-size collage canvas.
package collage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/cjeanneret/BoothGo/internal/assets"
	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/logic/layout"
)

// ErrShotCount is returned when Compose is not given exactly three shots.
var ErrShotCount = errors.New("collage: exactly three shots are required")

// Options controls the branding of the collage.
type Options struct {
	Background   string // #RRGGBB
	CaptionLeft  string
	CaptionRight string
	PreviewWidth int // width of the display-sized render
}

// Result holds a finished collage. Both images are immutable.
type Result struct {
	Image   image.Image // full size, 900x1200
	Preview image.Image // same drawing at PreviewWidth
}

// Compositor renders collages. It is safe for concurrent use.
type Compositor struct {
	assets assets.Provider
	opts   Options
}

// New creates a Compositor drawing with the given assets.
func New(p assets.Provider, opts Options) *Compositor {
	if opts.Background == "" {
		opts.Background = "#99C0F3"
	}
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = int(layout.CanvasWidth) / 2
	}
	return &Compositor{assets: p, opts: opts}
}

// Compose renders the collage and its preview. On error no partial image
// is returned.
func (c *Compositor) Compose(ctx context.Context, shots []image.Image) (*Result, error) {
	if len(shots) != layout.Slots {
		return nil, fmt.Errorf("%w: got %d", ErrShotCount, len(shots))
	}
	for i, s := range shots {
		if s == nil || s.Bounds().Empty() {
			return nil, fmt.Errorf("collage: shot %d is empty", i)
		}
	}

	logo, err := c.assets.Logo()
	if err != nil {
		return nil, err
	}
	font, err := c.assets.Font()
	if err != nil {
		return nil, err
	}

	debug.Section("Compose collage")
	full, err := c.render(ctx, layout.Full(), shots, logo, font)
	if err != nil {
		return nil, err
	}
	preview, err := c.render(ctx, layout.ForWidth(c.opts.PreviewWidth), shots, logo, font)
	if err != nil {
		return nil, err
	}
	return &Result{Image: full, Preview: preview}, nil
}

func (c *Compositor) render(ctx context.Context, plan *layout.Plan, shots []image.Image, logo image.Image, font *text.FontSource) (image.Image, error) {
	w, h := plan.Size()
	debug.PrintStruct("Plan", *plan)

	dc := gg.NewContext(w, h)
	defer dc.Close()

	// 1. Background
	dc.ClearWithColor(gg.Hex(c.opts.Background))

	// 2. Logos, stretched to their square slots
	for _, r := range []layout.Rect{plan.LeftLogo, plan.RightLogo} {
		px := r.Pixels()
		scaled := imaging.Resize(logo, px.Dx(), px.Dy(), imaging.Lanczos)
		dc.DrawImage(gg.ImageBufFromImage(scaled), float64(px.Min.X), float64(px.Min.Y))
	}

	// 3. Shots, center-cropped to fill their slot
	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collage: %w", err)
		}
		px := plan.Shots[i].Pixels()
		filled := imaging.Fill(shot, px.Dx(), px.Dy(), imaging.Center, imaging.Lanczos)
		dc.DrawImage(gg.ImageBufFromImage(filled), float64(px.Min.X), float64(px.Min.Y))
	}

	// 4. Captions on a shared baseline
	dc.SetFont(font.Face(plan.FontSize))
	dc.SetRGB(1, 1, 1)
	dc.DrawString(c.opts.CaptionLeft, plan.CaptionLeftX, plan.CaptionBaseline)
	dc.DrawStringAnchored(c.opts.CaptionRight, plan.CaptionRightX, plan.CaptionBaseline, 1, 0)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collage: %w", err)
	}
	return dc.Image(), nil
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail returns a size x size cover-cropped copy of img.
func Thumbnail(img image.Image, size int) *image.NRGBA {
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
}
