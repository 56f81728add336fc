// Package layout computes the geometry of the three-shot collage.
// Every value is a pure function of the fixed canvas and a scale factor.
package layout

import (
	"image"
	"math"
)

// Canvas and branding dimensions, in full-size pixels.
const (
	CanvasWidth  = 900.0
	CanvasHeight = 1200.0

	LogoSize    = 80.0 // logo edge length
	LogoPadding = 40.0 // logo distance from the top and side edges

	TopPadding    = LogoPadding + LogoSize + LogoPadding // 160
	BottomPadding = 100.0
	SidePadding   = 60.0
	Gap           = 40.0 // vertical space between two shots

	AspectRatio = 4.0 / 3.0 // shot width / height

	FontSize      = 32.0
	CaptionBottom = 40.0 // caption baseline distance from the bottom edge

	Slots = 3
)

// Rect is a rectangle in floating point canvas coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Pixels rounds the rectangle to whole pixels.
func (r Rect) Pixels() image.Rectangle {
	x, y := int(math.Round(r.X)), int(math.Round(r.Y))
	return image.Rect(x, y, x+int(math.Round(r.W)), y+int(math.Round(r.H)))
}

// Plan is the collage geometry at a given scale.
type Plan struct {
	Scale  float64 // 1 = full size
	Width  float64 // canvas width
	Height float64 // canvas height

	LeftLogo  Rect
	RightLogo Rect

	SlotHeight float64     // height available for each shot
	Shots      [Slots]Rect // where each shot is drawn, top to bottom

	CaptionBaseline float64 // y of the caption baseline
	CaptionLeftX    float64 // left caption start (left aligned)
	CaptionRightX   float64 // right caption end (right aligned)
	FontSize        float64
}

// Calculate returns the collage plan with every coordinate multiplied by scale.
func Calculate(scale float64) *Plan {
	if scale <= 0 {
		scale = 1
	}

	availableHeight := CanvasHeight - TopPadding - BottomPadding - Gap*(Slots-1)
	slotHeight := availableHeight / Slots
	maxWidth := CanvasWidth - 2*SidePadding

	// Fit a 4:3 image into maxWidth x slotHeight
	imgW, imgH := maxWidth, maxWidth/AspectRatio
	if maxWidth/slotHeight > AspectRatio {
		imgW, imgH = slotHeight*AspectRatio, slotHeight
	}
	imgX := (CanvasWidth - imgW) / 2

	p := &Plan{
		Scale:           scale,
		Width:           CanvasWidth * scale,
		Height:          CanvasHeight * scale,
		LeftLogo:        Rect{LogoPadding, LogoPadding, LogoSize, LogoSize}.scaled(scale),
		RightLogo:       Rect{CanvasWidth - LogoPadding - LogoSize, LogoPadding, LogoSize, LogoSize}.scaled(scale),
		SlotHeight:      slotHeight * scale,
		CaptionBaseline: (CanvasHeight - CaptionBottom) * scale,
		CaptionLeftX:    SidePadding * scale,
		CaptionRightX:   (CanvasWidth - SidePadding) * scale,
		FontSize:        FontSize * scale,
	}
	for i := 0; i < Slots; i++ {
		slotTop := TopPadding + (slotHeight+Gap)*float64(i)
		imgY := slotTop + (slotHeight-imgH)/2
		p.Shots[i] = Rect{imgX, imgY, imgW, imgH}.scaled(scale)
	}
	return p
}

// Full returns the full-size plan.
func Full() *Plan {
	return Calculate(1)
}

// ForWidth returns the plan scaled so the canvas is width pixels wide.
func ForWidth(width int) *Plan {
	return Calculate(float64(width) / CanvasWidth)
}

// Size returns the canvas size in whole pixels.
func (p *Plan) Size() (int, int) {
	return int(math.Round(p.Width)), int(math.Round(p.Height))
}

func (r Rect) scaled(s float64) Rect {
	return Rect{r.X * s, r.Y * s, r.W * s, r.H * s}
}
