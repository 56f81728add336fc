// Package filter implements the three built-in photo filters applied to
// the live preview and to captured shots.
package filter

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Mode is the filter applied to a frame.
type Mode int

const (
	None Mode = iota
	Grayscale
	Tint
)

// TintOverlay is composited over the frame with a multiply blend at TintOpacity.
var TintOverlay = color.NRGBA{R: 255, G: 243, B: 220, A: 255}

const TintOpacity = 0.4

// Modes lists every filter in display order.
var Modes = []Mode{None, Grayscale, Tint}

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Grayscale:
		return "bw"
	case Tint:
		return "tint"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Parse converts a wire name (or a known alias) to a Mode.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "bw", "b&w", "grayscale":
		return Grayscale, nil
	case "tint", "polaroid":
		return Tint, nil
	}
	return None, fmt.Errorf("unknown filter %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Apply returns a filtered copy of img. The input is never modified.
func Apply(img image.Image, mode Mode) *image.NRGBA {
	if img == nil {
		return nil
	}
	switch mode {
	case Grayscale:
		return imaging.AdjustFunc(img, gray)
	case Tint:
		return imaging.AdjustFunc(img, tint)
	case None:
		return imaging.Clone(img)
	}
	return imaging.Clone(img)
}

// gray sets every channel to the rounded mean of R, G and B.
func gray(c color.NRGBA) color.NRGBA {
	sum := int(c.R) + int(c.G) + int(c.B)
	v := uint8((sum + 1) / 3)
	return color.NRGBA{R: v, G: v, B: v, A: c.A}
}

// tint multiplies each channel by the overlay, mixed at TintOpacity:
// c' = round(c * (1 - a + a*o/255)).
func tint(c color.NRGBA) color.NRGBA {
	return color.NRGBA{
		R: multiply(c.R, TintOverlay.R),
		G: multiply(c.G, TintOverlay.G),
		B: multiply(c.B, TintOverlay.B),
		A: c.A,
	}
}

func multiply(c, o uint8) uint8 {
	v := float64(c) * (1 - TintOpacity + TintOpacity*float64(o)/255)
	return uint8(math.Min(255, math.Round(v)))
}
