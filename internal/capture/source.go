// Package capture defines the external capture-source contract consumed
// by the pipeline and a reference implementation for local development.
// The real camera driver is out of scope (SPEC_FULL.md section 1); this
// package only needs to produce something that satisfies Source.
package capture

import (
	"errors"
	"image"
	"time"
)

// ErrEndOfStream is returned by Source.Next when the underlying feed has
// been exhausted (e.g. end of a recorded file).
var ErrEndOfStream = errors.New("capture: end of stream")

// Source is a blocking frame source. Next returns the next frame or
// ErrEndOfStream; any other error is a capture error per SPEC_FULL.md
// section 7 and is retried by the pipeline up to 3 times before becoming
// fatal.
type Source interface {
	Next() (img *image.RGBA, timestamp time.Time, err error)
	Close() error
}

// StaticSource replays a fixed slice of frames, one per call to Next, at
// the timestamps supplied by the caller. It exists for tests and for
// driving the offline validator's embedder-side examples; production
// capture sources are expected to implement Source against a real
// device or RTSP/ONVIF feed.
type StaticSource struct {
	frames []*image.RGBA
	times  []time.Time
	idx    int
}

// NewStaticSource returns a Source that replays frames at the given
// timestamps in order. len(frames) must equal len(times).
func NewStaticSource(frames []*image.RGBA, times []time.Time) *StaticSource {
	return &StaticSource{frames: frames, times: times}
}

// Next implements Source.
func (s *StaticSource) Next() (*image.RGBA, time.Time, error) {
	if s.idx >= len(s.frames) {
		return nil, time.Time{}, ErrEndOfStream
	}
	img, t := s.frames[s.idx], s.times[s.idx]
	s.idx++
	return img, t, nil
}

// Close implements Source.
func (s *StaticSource) Close() error { return nil }
