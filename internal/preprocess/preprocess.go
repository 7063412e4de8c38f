// Package preprocess converts captured color frames into the grayscale
// view and previous-frame handle consumed by the detector bank.
package preprocess

import (
	"image"

	"github.com/tamperwatch/sentinel/internal/frame"
)

// Preprocessor owns the single one-slot previous-frame cache described
// in SPEC_FULL.md section 4.1. Both the current and previous frame's
// color buffers are acquired from a frame.Pool rather than allocated
// per call, per section 5: the slot holds a pooled buffer for its
// lifetime and only returns it to the pool on Reset/Close or when it is
// superseded a frame later. It is not safe for concurrent use; the
// pipeline thread is its sole owner.
type Preprocessor struct {
	pool *frame.Pool
	prev *frame.Frame
	// handedOut is the frame returned as "prev" on the previous Step
	// call. Its buffer is only safe to recycle once the caller has had a
	// full frame to consume it, i.e. at the start of the next Step call.
	handedOut *frame.Frame
}

// New returns an empty Preprocessor with no previous frame, backed by
// its own frame.Pool.
func New() *Preprocessor {
	return &Preprocessor{pool: frame.NewPool()}
}

// Step copies img into a pooled buffer and wraps it into a Frame at
// timestamp t, returning it alongside the previous Frame (nil on the
// very first call). The returned previous Frame must be fully consumed
// by the caller before the next call to Step, since its buffer is
// recycled back into the pool at the start of that call.
func (p *Preprocessor) Step(img *image.RGBA, t float64) (cur, prev *frame.Frame) {
	if p.handedOut != nil {
		p.pool.Release(p.handedOut.Color)
		p.handedOut = nil
	}

	buf := frame.CopyInto(p.pool, img)
	cur = frame.New(buf, t)
	prev = p.prev
	p.prev = cur
	p.handedOut = prev
	return cur, prev
}

// Reset releases any buffers currently held by the previous-frame slot
// back to the pool and clears it, forcing the next Step call to report a
// nil previous frame as if it were the first frame processed.
func (p *Preprocessor) Reset() {
	p.release()
}

// Close releases every buffer the Preprocessor currently holds back to
// the pool. Called once at pipeline shutdown (SPEC_FULL.md section 5).
func (p *Preprocessor) Close() {
	p.release()
}

func (p *Preprocessor) release() {
	if p.handedOut != nil {
		p.pool.Release(p.handedOut.Color)
		p.handedOut = nil
	}
	if p.prev != nil {
		p.pool.Release(p.prev.Color)
		p.prev = nil
	}
}
