// Package assets provides the branding drawn on every collage: the logo
// and the caption font.
package assets

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/cjeanneret/BoothGo/internal/debug"
)

// EmblemSize is the edge length of the built-in logo.
const EmblemSize = 256

// Provider supplies the collage branding.
type Provider interface {
	Logo() (image.Image, error)
	Font() (*text.FontSource, error)
}

// Files loads the logo and font from disk, falling back to the built-in
// emblem and Go Bold when a path is empty. Loaded assets are cached.
type Files struct {
	logoPath string
	fontPath string

	mu   sync.Mutex
	logo image.Image
	font *text.FontSource
}

// NewFiles returns a Provider for the given paths. Both may be empty.
func NewFiles(logoPath, fontPath string) *Files {
	return &Files{logoPath: logoPath, fontPath: fontPath}
}

func (f *Files) Logo() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logo != nil {
		return f.logo, nil
	}

	if f.logoPath == "" {
		f.logo = Emblem(EmblemSize)
		debug.Verbose("Assets: using built-in emblem")
		return f.logo, nil
	}
	img, err := imaging.Open(f.logoPath)
	if err != nil {
		return nil, fmt.Errorf("load logo %s: %w", f.logoPath, err)
	}
	f.logo = img
	debug.Verbose("Assets: logo %s (%dx%d)", f.logoPath, img.Bounds().Dx(), img.Bounds().Dy())
	return f.logo, nil
}

func (f *Files) Font() (*text.FontSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.font != nil {
		return f.font, nil
	}

	var (
		src *text.FontSource
		err error
	)
	if f.fontPath == "" {
		src, err = text.NewFontSource(gobold.TTF)
	} else {
		src, err = text.NewFontSourceFromFile(f.fontPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	f.font = src
	debug.Verbose("Assets: font %s", src.Name())
	return f.font, nil
}

// Emblem draws the built-in logo: a white disc holding a small camera.
func Emblem(size int) image.Image {
	dc := gg.NewContext(size, size)
	defer dc.Close()

	s := float64(size)
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(s/2, s/2, s/2)
	_ = dc.Fill()

	// camera body
	dc.SetColor(gg.Hex("#2E4A7D"))
	dc.DrawRoundedRectangle(s*0.22, s*0.34, s*0.56, s*0.38, s*0.06)
	_ = dc.Fill()
	dc.DrawRectangle(s*0.40, s*0.27, s*0.20, s*0.09)
	_ = dc.Fill()

	// lens
	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(s/2, s*0.53, s*0.13)
	_ = dc.Fill()
	dc.SetColor(gg.Hex("#99C0F3"))
	dc.DrawCircle(s/2, s*0.53, s*0.08)
	_ = dc.Fill()

	return dc.Image()
}
