package detect

import (
	"image"
	"testing"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

func checkerboard(w, h int, lo, hi byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := lo
			if (x+y)%2 == 0 {
				v = hi
			}
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
		}
	}
	return img
}

func flatImage(w, h int, v byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func TestBlurDetectorFlatFrameTrips(t *testing.T) {
	cfg := config.Default()
	b := NewBlur()
	f := frame.New(flatImage(32, 32, 128), 0)
	sig := b.Step(f, nil, cfg)
	if !sig.Tripped {
		t.Fatal("expected a flat (zero-variance) frame to trip blur")
	}
	if sig.RawMetric != 0 {
		t.Fatalf("expected zero Laplacian variance on a flat frame, got %v", sig.RawMetric)
	}
}

func TestBlurDetectorCheckerboardDoesNotTrip(t *testing.T) {
	cfg := config.Default()
	b := NewBlur()
	f := frame.New(checkerboard(32, 32, 0, 255), 0)
	sig := b.Step(f, nil, cfg)
	if sig.Tripped {
		t.Fatalf("expected high-contrast checkerboard to have high variance, not trip blur (variance=%v)", sig.RawMetric)
	}
}

func TestBlurBoundaryExactThresholdDoesNotTrip(t *testing.T) {
	cfg := config.Default()
	if tripBlur(cfg.BlurThreshold, cfg.BlurThreshold) {
		t.Fatal("variance equal to threshold must not trip (strict less-than)")
	}
	if !tripBlur(cfg.BlurThreshold-0.01, cfg.BlurThreshold) {
		t.Fatal("variance just below threshold must trip")
	}
}

func TestUnsharpMaskClipsToValidRange(t *testing.T) {
	src := flatImage(8, 8, 250)
	out := UnsharpMask(src, 3.0, 1.0)
	for _, v := range out.Pix {
		if v > 255 {
			t.Fatalf("pixel value overflowed byte range: %v", v)
		}
	}
	if out.Bounds() != src.Bounds() {
		t.Fatal("expected unsharp mask output to preserve dimensions")
	}
}
