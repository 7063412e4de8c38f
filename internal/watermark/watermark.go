// Package watermark implements the time-keyed HMAC watermark protocol
// from SPEC_FULL.md section 4.6: a deterministic per-second color token
// painted into a fixed corner of every outgoing frame, and the matching
// offline validator.
//
// HMAC-SHA256 is the one primitive in this repository built directly on
// the standard library rather than a third-party package: crypto/hmac
// and crypto/sha256 are the canonical, audited implementation and
// nothing in the example corpus supplies an alternative worth reaching
// for instead.
package watermark

import (
	"crypto/hmac"
	"crypto/sha256"
	"image"
	"math"
	"strconv"
)

// squareSize and inset are fixed by SPEC_FULL.md section 4.6: a 40x40
// solid square, 10px from both edges of the bottom-right corner.
const (
	squareSize = 40
	inset      = 10
)

// Token is the 3-byte RGB prefix of HMAC-SHA256(secret, decimal-ascii
// unix second), named WatermarkToken in SPEC_FULL.md section 3.
type Token struct {
	UnixSecond int64
	R, G, B    byte
}

// Compute derives the token for a given integer Unix second. It is pure
// and deterministic: the same (secret, unixSecond) pair always yields
// the same token, across processes and across embedder/validator.
func Compute(secret []byte, unixSecond int64) Token {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(unixSecond, 10)))
	digest := mac.Sum(nil)
	return Token{UnixSecond: unixSecond, R: digest[0], G: digest[1], B: digest[2]}
}

// region returns the 40x40 inset rectangle for a frame of the given
// bounds.
func region(b image.Rectangle) image.Rectangle {
	x1 := b.Max.X - inset
	y1 := b.Max.Y - inset
	x0 := x1 - squareSize
	y0 := y1 - squareSize
	return image.Rect(x0, y0, x1, y1)
}

// Embedder paints the current second's token into outgoing frames,
// recomputing at most once per wall-second per SPEC_FULL.md section 4.6
// point 5.
type Embedder struct {
	secret   []byte
	cachedAt int64
	cached   Token
	have     bool
}

// NewEmbedder returns an Embedder bound to secret, which must already
// have passed config.Config.Validate's length check.
func NewEmbedder(secret []byte) *Embedder {
	return &Embedder{secret: append([]byte(nil), secret...)}
}

// TokenFor returns the cached token for unixSecond, computing it if the
// wall-second has advanced since the last call.
func (e *Embedder) TokenFor(unixSecond int64) Token {
	if e.have && e.cachedAt == unixSecond {
		return e.cached
	}
	e.cached = Compute(e.secret, unixSecond)
	e.cachedAt = unixSecond
	e.have = true
	return e.cached
}

// Embed paints the token for unixSecond into img's bottom-right inset
// square, in place, and returns img for chaining.
func (e *Embedder) Embed(img *image.RGBA, unixSecond int64) *image.RGBA {
	tok := e.TokenFor(unixSecond)
	r := region(img.Bounds()).Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = tok.R, tok.G, tok.B
			img.Pix[i+3] = 255
		}
	}
	return img
}

// observedColor averages the pixels in the 40x40 inset region — per
// SPEC_FULL.md section 4.6, averaging defeats compression noise.
func observedColor(img *image.RGBA) (r, g, b float64) {
	rect := region(img.Bounds()).Intersect(img.Bounds())
	var sumR, sumG, sumB, n int64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := img.PixOffset(x, y)
			sumR += int64(img.Pix[i])
			sumG += int64(img.Pix[i+1])
			sumB += int64(img.Pix[i+2])
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return float64(sumR) / float64(n), float64(sumG) / float64(n), float64(sumB) / float64(n)
}

// Distance is the Euclidean distance between an observed color and a
// token's RGB, per SPEC_FULL.md section 4.6 point 4.
func Distance(observedR, observedG, observedB float64, tok Token) float64 {
	dr := observedR - float64(tok.R)
	dg := observedG - float64(tok.G)
	db := observedB - float64(tok.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// FrameResult is one frame's audit record from the offline validator.
type FrameResult struct {
	UnixSecond int64
	Expected   Token
	Observed   [3]float64
	Distance   float64
	Match      bool
}

// Verdict is the offline validator's overall decision.
type Verdict struct {
	Status     string // "LIVE", "NOT_LIVE", or "ERROR"
	MatchRate  float64
	PerFrame   []FrameResult
	ErrReason  string
}

// VideoFrame is one decoded frame handed to Validate: its image data and
// the timestamp (in whole Unix seconds) to check it against. Callers
// supply this however their container/demuxer exposes presentation
// timestamps — SPEC_FULL.md section 6 leaves that decoding out of scope.
type VideoFrame struct {
	Image      *image.RGBA
	UnixSecond int64
}

// Validate implements the offline validator from SPEC_FULL.md section
// 4.6: for each frame, compute the expected token for its timestamp,
// compare it against the observed inset color, and return an overall
// live/not-live verdict plus a per-frame audit trail.
//
// frames is empty only for a malformed/unreadable input; callers that
// cannot decode a video at all should not call Validate — they should
// construct the status=ERROR verdict directly (SPEC_FULL.md section 7:
// validator input errors never panic up to the transport layer).
func Validate(secret []byte, frames []VideoFrame, colorMatchDistance, liveThreshold float64) Verdict {
	if len(frames) == 0 {
		return Verdict{Status: "ERROR", ErrReason: "no frames to validate"}
	}

	results := make([]FrameResult, 0, len(frames))
	var matches int
	for _, f := range frames {
		tok := Compute(secret, f.UnixSecond)
		r, g, b := observedColor(f.Image)
		dist := Distance(r, g, b, tok)
		match := dist < colorMatchDistance
		if match {
			matches++
		}
		results = append(results, FrameResult{
			UnixSecond: f.UnixSecond,
			Expected:   tok,
			Observed:   [3]float64{r, g, b},
			Distance:   dist,
			Match:      match,
		})
	}

	rate := float64(matches) / float64(len(frames))
	status := "NOT_LIVE"
	if rate >= liveThreshold {
		status = "LIVE"
	}
	return Verdict{Status: status, MatchRate: rate, PerFrame: results}
}
