package detect

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

// GlareDetector builds a 256-bin grayscale histogram each frame and
// trips on the dark/mid/bright percentage combination named in
// SPEC_FULL.md section 4.3. It carries no temporal state.
type GlareDetector struct{}

// NewGlare returns a GlareDetector.
func NewGlare() *GlareDetector { return &GlareDetector{} }

// ID implements Detector.
func (*GlareDetector) ID() ID { return Glare }

// Reset implements Detector; GlareDetector is stateless.
func (*GlareDetector) Reset() {}

// histogram256 returns a 256-bucket count of gray, plus the dark/mid/
// bright pixel percentages per the bucket boundaries in
// SPEC_FULL.md section 4.3: dark [0,50], mid (50,252), bright [252,255].
func histogram256(gray []byte) (hist [256]int, darkPct, midPct, brightPct float64) {
	for _, v := range gray {
		hist[v]++
	}
	n := float64(len(gray))
	if n == 0 {
		return hist, 0, 0, 0
	}
	var dark, mid, bright int
	for v, c := range hist {
		switch {
		case v <= 50:
			dark += c
		case v >= 252:
			bright += c
		default:
			mid += c
		}
	}
	return hist, 100 * float64(dark) / n, 100 * float64(mid) / n, 100 * float64(bright) / n
}

// Step implements Detector.
func (g *GlareDetector) Step(cur, prev *frame.Frame, cfg *config.Config) Signal {
	hist, darkPct, midPct, brightPct := histogram256(cur.Gray())
	tripped := darkPct > 30 && brightPct > 1 && midPct < 60
	return Signal{
		Detector:  Glare,
		RawMetric: brightPct,
		Tripped:   tripped,
		Auxiliary: map[string]any{
			"dark_pct":   darkPct,
			"mid_pct":    midPct,
			"bright_pct": brightPct,
			"histogram":  hist,
		},
	}
}

// blowoutGray is the neutral gray (150,150,150) pixels are flattened to
// when any channel of the *original* frame exceeded 252 — tames blowout
// after CLAHE rescue per SPEC_FULL.md section 4.3.
const blowoutGray = 150

// Rescue applies the CLAHE glare rescue described in SPEC_FULL.md
// section 4.3:
//  1. RGB -> Lab.
//  2. CLAHE (clip limit 16.0, 4x4 tile grid) on the L channel.
//  3. Merge, Lab -> RGB.
//  4. Unsharp mask, strength 1.0.
//  5. Flatten originally-blown-out pixels to neutral gray.
//
// CLAHE is the one operation in this detector that is not reasonably
// hand-rolled (a correct tiled, clip-limited histogram equalization is
// real image-processing machinery); gocv is the ecosystem's standard
// binding for it.
func Rescue(src *image.RGBA) (*image.RGBA, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	rgbBytes := make([]byte, w*h*3)
	origBlownOut := make([]bool, w*h)
	for i, p := 0, 0; i < len(src.Pix); i, p = i+4, p+1 {
		r, g, bl := src.Pix[i], src.Pix[i+1], src.Pix[i+2]
		rgbBytes[p*3], rgbBytes[p*3+1], rgbBytes[p*3+2] = r, g, bl
		origBlownOut[p] = r > 252 || g > 252 || bl > 252
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgbBytes)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(mat, &lab, gocv.ColorRGBToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(16.0, image.Pt(4, 4))
	defer clahe.Close()
	lEq := gocv.NewMat()
	defer lEq.Close()
	clahe.Apply(channels[0], &lEq)

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{lEq, channels[1], channels[2]}, &merged)

	rgbEq := gocv.NewMat()
	defer rgbEq.Close()
	gocv.CvtColor(merged, &rgbEq, gocv.ColorLabToRGB)

	out := image.NewRGBA(b)
	eqBytes := rgbEq.ToBytes()
	for p := 0; p < w*h; p++ {
		oi := p * 4
		out.Pix[oi], out.Pix[oi+1], out.Pix[oi+2] = eqBytes[p*3], eqBytes[p*3+1], eqBytes[p*3+2]
		out.Pix[oi+3] = 255
	}

	sharpened := UnsharpMask(out, 1.0, 1.0)
	for p := 0; p < w*h; p++ {
		if origBlownOut[p] {
			oi := p * 4
			sharpened.Pix[oi], sharpened.Pix[oi+1], sharpened.Pix[oi+2] = blowoutGray, blowoutGray, blowoutGray
		}
	}
	return sharpened, nil
}
