package detect

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

// BlurDetector computes the variance of the discrete Laplacian over the
// grayscale frame. It carries no temporal state of its own — the
// aggregator enforces the sustain window before raising an incident.
type BlurDetector struct{}

// NewBlur returns a BlurDetector.
func NewBlur() *BlurDetector { return &BlurDetector{} }

// ID implements Detector.
func (*BlurDetector) ID() ID { return Blur }

// Reset implements Detector; BlurDetector is stateless.
func (*BlurDetector) Reset() {}

// laplacianKernel is the discrete 3x3 kernel named in SPEC_FULL.md
// section 4.2: [[0,1,0],[1,-4,1],[0,1,0]].
func laplacianVariance(gray []byte, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	resp := make([]float64, (w-2)*(h-2))
	idx := 0
	at := func(x, y int) float64 { return float64(gray[y*w+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := at(x, y-1) + at(x-1, y) - 4*at(x, y) + at(x+1, y) + at(x, y+1)
			resp[idx] = v
			idx++
		}
	}
	n := float64(len(resp))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range resp {
		sum += v
	}
	mean := sum / n
	var sq float64
	for _, v := range resp {
		d := v - mean
		sq += d * d
	}
	return sq / n
}

// tripBlur is the boundary-exact trip rule named in SPEC_FULL.md section
// 8: variance == threshold must NOT trip (strict less-than).
func tripBlur(variance, threshold float64) bool {
	return variance < threshold
}

// Step implements Detector.
func (b *BlurDetector) Step(cur, prev *frame.Frame, cfg *config.Config) Signal {
	variance := laplacianVariance(cur.Gray(), cur.Width, cur.Height)
	tripped := tripBlur(variance, cfg.BlurThreshold)
	return Signal{
		Detector:  Blur,
		RawMetric: variance,
		Tripped:   tripped,
		Auxiliary: map[string]any{"variance": variance},
	}
}

// UnsharpMask applies out = src + strength*(src - Gaussian(src, sigma)),
// clipped to [0,255] per channel, using imaging.Blur for the Gaussian
// step (it operates directly on image.Image, avoiding a Mat round-trip
// for an operation this small). Used both by blur correction (strength
// from config.BlurFixStrength, sigma 1.0 per a 5x5-equivalent kernel)
// and by the glare-rescue finishing pass (strength 1.0).
func UnsharpMask(src *image.RGBA, strength, sigma float64) *image.RGBA {
	blurred := imaging.Blur(src, sigma)
	out := image.NewRGBA(src.Bounds())
	n := len(src.Pix)
	for i := 0; i < n; i += 4 {
		for c := 0; c < 3; c++ {
			s := float64(src.Pix[i+c])
			bl := float64(blurred.Pix[i+c])
			v := s + strength*(s-bl)
			out.Pix[i+c] = clip8(v)
		}
		out.Pix[i+3] = 255
	}
	return out
}

func clip8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// CorrectBlur returns the unsharp-masked replacement frame used when
// blur correction is active (SPEC_FULL.md section 4.2). The 5x5,
// sigma=1.0 Gaussian named in the spec is approximated by imaging.Blur's
// sigma parameter, which is the standard Go-ecosystem way to express a
// Gaussian blur radius (imaging.Blur picks its kernel size from sigma
// rather than taking one explicitly, unlike an OpenCV-style API).
func CorrectBlur(src *image.RGBA, strength float64) *image.RGBA {
	return UnsharpMask(src, strength, 1.0)
}
