package detect

import (
	"image"
	"testing"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

// bandedImage lays darkCount dark pixels, then brightCount bright
// pixels, then mid-gray pixels for the remainder, in row-major order
// across a w*h image — the image-level equivalent of the gray-slice
// distribution built by hand in histogram256's tests, so the same
// dark/mid/bright ratios can drive GlareDetector.Step through its
// public API instead of histogram256 directly.
func bandedImage(w, h int, darkV, midV, brightV byte, darkCount, brightCount int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	total := w * h
	for i := 0; i < total; i++ {
		v := midV
		switch {
		case i < darkCount:
			v = darkV
		case i < darkCount+brightCount:
			v = brightV
		}
		x, y := i%w, i/w
		pi := img.PixOffset(x, y)
		img.Pix[pi], img.Pix[pi+1], img.Pix[pi+2], img.Pix[pi+3] = v, v, v, 255
	}
	return img
}

func TestHistogram256BucketBoundaries(t *testing.T) {
	gray := make([]byte, 0, 300)
	for i := 0; i < 100; i++ {
		gray = append(gray, 50) // dark, inclusive boundary
	}
	for i := 0; i < 100; i++ {
		gray = append(gray, 150) // mid
	}
	for i := 0; i < 100; i++ {
		gray = append(gray, 252) // bright, inclusive boundary
	}
	_, darkPct, midPct, brightPct := histogram256(gray)
	if darkPct != 100.0/3 {
		t.Fatalf("expected dark pct to count value 50 as dark, got %v", darkPct)
	}
	if brightPct != 100.0/3 {
		t.Fatalf("expected bright pct to count value 252 as bright, got %v", brightPct)
	}
	if midPct != 100.0/3 {
		t.Fatalf("expected mid pct %v, got %v", 100.0/3, midPct)
	}
}

func TestGlareDetectorTripsOnHarshSplit(t *testing.T) {
	cfg := config.Default()
	g := NewGlare()

	// 40% dark, 5% bright, 55% mid across a 40x25 (1000px) frame, driven
	// through Step's public API rather than histogram256 directly.
	img := bandedImage(40, 25, 10, 120, 255, 400, 50)
	f := frame.New(img, 0)
	sig := g.Step(f, nil, cfg)
	if !sig.Tripped {
		t.Fatalf("expected harsh dark/bright split to trip: %+v", sig.Auxiliary)
	}
}

func TestGlareDetectorDoesNotTripOnEvenLighting(t *testing.T) {
	cfg := config.Default()
	g := NewGlare()
	f := frame.New(flatImage(16, 16, 128), 0)
	sig := g.Step(f, nil, cfg)
	if sig.Tripped {
		t.Fatalf("expected uniform mid-gray frame not to trip glare: %+v", sig.Auxiliary)
	}
}

func TestRescuePreservesDimensionsAndFlattensBlowout(t *testing.T) {
	// Half the frame blown out white (glare), half mid-gray, per
	// scenario S6: CLAHE rescue must preserve the frame's dimensions
	// and channel bounds and flatten originally-blown-out pixels to
	// neutral gray (150,150,150).
	img := bandedImage(16, 16, 120, 120, 255, 0, 128)
	out, err := Rescue(img)
	if err != nil {
		t.Fatalf("unexpected error from Rescue: %v", err)
	}
	if out.Bounds() != img.Bounds() {
		t.Fatalf("expected Rescue to preserve dimensions, got %v want %v", out.Bounds(), img.Bounds())
	}
	for _, v := range out.Pix {
		if int(v) < 0 || int(v) > 255 {
			t.Fatalf("pixel value %v outside byte range", v)
		}
	}
	for p := 0; p < 16*16; p++ {
		oi := p * 4
		wasBlownOut := img.Pix[oi] > 252 || img.Pix[oi+1] > 252 || img.Pix[oi+2] > 252
		if !wasBlownOut {
			continue
		}
		if out.Pix[oi] != blowoutGray || out.Pix[oi+1] != blowoutGray || out.Pix[oi+2] != blowoutGray {
			t.Fatalf("pixel %d: expected originally blown-out pixel flattened to neutral gray, got (%d,%d,%d)", p, out.Pix[oi], out.Pix[oi+1], out.Pix[oi+2])
		}
	}
}
