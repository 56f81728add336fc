package filter

import (
	"image"
	"image/color"
	"testing"
)

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// ---------- Mode ----------

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"none", None},
		{"", None},
		{"bw", Grayscale},
		{"b&w", Grayscale},
		{"BW", Grayscale},
		{"tint", Tint},
		{"polaroid", Tint},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := Parse("sepia"); err == nil {
		t.Error("Parse(sepia) should fail")
	}
}

func TestModeString(t *testing.T) {
	for _, m := range Modes {
		back, err := Parse(m.String())
		if err != nil || back != m {
			t.Errorf("Parse(%q) = %v, %v; want %v", m.String(), back, err, m)
		}
	}
}

// ---------- Apply ----------

func TestApply_NoneIsCopy(t *testing.T) {
	src := solid(color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	out := Apply(src, None)
	if out == src {
		t.Fatal("Apply(None) returned the input image")
	}
	if got := out.NRGBAAt(1, 1); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("pixel = %v, want unchanged", got)
	}
	out.SetNRGBA(0, 0, color.NRGBA{})
	if src.NRGBAAt(0, 0).R != 10 {
		t.Error("modifying the output changed the input")
	}
}

func TestApply_Grayscale(t *testing.T) {
	tests := []struct {
		in   color.NRGBA
		want uint8
	}{
		{color.NRGBA{R: 0, G: 0, B: 0, A: 255}, 0},
		{color.NRGBA{R: 255, G: 255, B: 255, A: 255}, 255},
		{color.NRGBA{R: 255, G: 0, B: 0, A: 255}, 85},
		{color.NRGBA{R: 10, G: 20, B: 31, A: 255}, 20}, // 61/3 = 20.33
		{color.NRGBA{R: 10, G: 20, B: 32, A: 255}, 21}, // 62/3 = 20.67
		{color.NRGBA{R: 100, G: 150, B: 200, A: 128}, 150},
	}
	for _, tt := range tests {
		got := Apply(solid(tt.in), Grayscale).NRGBAAt(2, 1)
		want := color.NRGBA{R: tt.want, G: tt.want, B: tt.want, A: tt.in.A}
		if got != want {
			t.Errorf("Grayscale(%v) = %v, want %v", tt.in, got, want)
		}
	}
}

func TestApply_Tint(t *testing.T) {
	tests := []struct {
		in   color.NRGBA
		want color.NRGBA
	}{
		{color.NRGBA{R: 255, G: 255, B: 255, A: 255}, color.NRGBA{R: 255, G: 250, B: 241, A: 255}},
		{color.NRGBA{R: 100, G: 100, B: 100, A: 255}, color.NRGBA{R: 100, G: 98, B: 95, A: 255}},
		{color.NRGBA{R: 0, G: 0, B: 0, A: 255}, color.NRGBA{R: 0, G: 0, B: 0, A: 255}},
		{color.NRGBA{R: 50, G: 60, B: 70, A: 40}, color.NRGBA{R: 50, G: 59, B: 66, A: 40}},
	}
	for _, tt := range tests {
		got := Apply(solid(tt.in), Tint).NRGBAAt(0, 2)
		if got != tt.want {
			t.Errorf("Tint(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApply_Deterministic(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	for _, m := range Modes {
		a, b := Apply(src, m), Apply(src, m)
		for i := range a.Pix {
			if a.Pix[i] != b.Pix[i] {
				t.Fatalf("%v: output differs at byte %d", m, i)
			}
		}
	}
}

func TestApply_Nil(t *testing.T) {
	if Apply(nil, Tint) != nil {
		t.Error("Apply(nil) should return nil")
	}
}
