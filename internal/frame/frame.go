// Package frame defines the Frame type shared by every pipeline stage
// and the pooled buffers that back it. Grayscale derivation uses the
// same fixed-point luminance weights the teacher repo inlines in its
// frame-differencing code, hoisted here into one shared helper.
package frame

import (
	"image"
	"sync"
)

// Frame is a timestamped color frame plus a lazily-computed, cached
// grayscale view. Channel order is RGB and fixed for the process
// lifetime; alpha is always 255. Not safe for concurrent use — the
// pipeline thread owns every Frame it creates.
type Frame struct {
	TimestampSeconds float64
	Width, Height    int
	Color            *image.RGBA

	gray     []byte
	grayOnce bool
}

// New wraps an already-populated *image.RGBA as a Frame at timestamp t.
func New(color *image.RGBA, t float64) *Frame {
	b := color.Bounds()
	return &Frame{
		TimestampSeconds: t,
		Width:            b.Dx(),
		Height:           b.Dy(),
		Color:            color,
	}
}

// Gray returns the cached grayscale view, computing it on first access
// using the standard luminance weights (77*R + 150*G + 29*B) >> 8 — the
// same fixed-point approximation of 0.299/0.587/0.114 already used
// inline by the teacher repo's frame-differencing code. The returned
// slice is row-major, length Width*Height, one byte per pixel.
func (f *Frame) Gray() []byte {
	if f.grayOnce {
		return f.gray
	}
	f.gray = ToGray(f.Color)
	f.grayOnce = true
	return f.gray
}

// ToGray converts an *image.RGBA to a row-major grayscale byte slice
// using the luminance weights described on Frame.Gray.
func ToGray(src *image.RGBA) []byte {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h)
	stride := src.Stride
	pix := src.Pix
	idx := 0
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			r, g, bl := row[i], row[i+1], row[i+2]
			out[idx] = byte((77*uint32(r) + 150*uint32(g) + 29*uint32(bl)) >> 8)
			idx++
		}
	}
	return out
}

// Pool provides reusable *image.RGBA backing buffers keyed by exact
// dimensions, adapted from the teacher repo's domain/capture frame pool:
// it copies incoming pixels into a pooled buffer rather than eliminating
// the source allocation, which is the cheap half of the win when the
// capture source itself still allocates per frame.
type Pool struct {
	mu    sync.Mutex
	byDim map[[2]int][]*image.RGBA
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{byDim: make(map[[2]int][]*image.RGBA)}
}

// Acquire returns a reusable *image.RGBA sized exactly to rect, either
// recycled from the pool or freshly allocated.
func (p *Pool) Acquire(rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	key := [2]int{w, h}
	p.mu.Lock()
	var img *image.RGBA
	if bucket := p.byDim[key]; len(bucket) > 0 {
		img = bucket[len(bucket)-1]
		p.byDim[key] = bucket[:len(bucket)-1]
	}
	p.mu.Unlock()
	if img == nil {
		img = &image.RGBA{Pix: make([]byte, w*h*4), Stride: w * 4, Rect: rect}
	}
	return img
}

// Release returns img to the pool for reuse. img must not be accessed by
// the caller after this call.
func (p *Pool) Release(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	b := img.Bounds()
	key := [2]int{b.Dx(), b.Dy()}
	p.mu.Lock()
	p.byDim[key] = append(p.byDim[key], img)
	p.mu.Unlock()
}

// Clone returns a deep copy of src backed by a fresh allocation that
// does not alias src's pixels.
func Clone(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	out.Stride = src.Stride
	return out
}

// copyInto copies src's pixels into dst, which must already be sized to
// src's bounds, row by row via PixOffset so a sub-image view (Min != 0,
// or a stride wider than its pixel width) is copied correctly.
func copyInto(dst, src *image.RGBA) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		do := y * dst.Stride
		copy(dst.Pix[do:do+w*4], src.Pix[so:so+w*4])
	}
}

// CopyInto copies src's pixels into a pooled buffer sized to src's
// bounds, acquiring it from pool. The caller owns the returned image and
// must Release it back to pool when done.
func CopyInto(pool *Pool, src *image.RGBA) *image.RGBA {
	dst := pool.Acquire(src.Bounds())
	dst.Rect = src.Bounds()
	copyInto(dst, src)
	return dst
}
