package capture

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/vova616/screenshot"
)

// Stats summarizes a DesktopSource's capture loop, adapted from the
// teacher repo's domain/capture.CaptureStats.
type Stats struct {
	Captures    uint64
	Errors      uint64
	AvgCapture  time.Duration
	LastCapture time.Time
	Sequence    uint64
}

// DesktopSource is a reference Source backed by desktop screen capture.
// It exists so the pipeline and its example cmd can run against a real
// moving image without a camera attached; it is not meant to stand in
// for the production camera driver, which SPEC_FULL.md scopes out.
type DesktopSource struct {
	rect       *image.Rectangle
	minPeriod  time.Duration
	lastGrab   time.Time
	sequence   atomic.Uint64
	captures   atomic.Uint64
	errors     atomic.Uint64
	captureNs  atomic.Uint64
	closed     atomic.Bool
}

// NewDesktopSource returns a DesktopSource sampling at fps frames per
// second. If rect is nil, the full screen is captured on each call.
func NewDesktopSource(fps float64, rect *image.Rectangle) *DesktopSource {
	period := time.Second
	if fps > 0 {
		period = time.Duration(float64(time.Second) / fps)
	}
	return &DesktopSource{rect: rect, minPeriod: period}
}

// Next implements Source. It throttles to the configured fps by
// sleeping out any remainder of the frame period, mirroring the
// teacher repo's capture loop pacing without the goroutine + channel
// indirection that loop used for a push-based consumer — this package's
// Source is pull-based, matching SPEC_FULL.md's "blocking call" capture
// contract.
func (d *DesktopSource) Next() (*image.RGBA, time.Time, error) {
	if d.closed.Load() {
		return nil, time.Time{}, ErrEndOfStream
	}
	if !d.lastGrab.IsZero() {
		if wait := d.minPeriod - time.Since(d.lastGrab); wait > 0 {
			time.Sleep(wait)
		}
	}
	start := time.Now()
	var img *image.RGBA
	var err error
	if d.rect != nil {
		img, err = screenshot.CaptureRect(*d.rect)
	} else {
		img, err = screenshot.CaptureScreen()
	}
	if err != nil {
		d.errors.Add(1)
		return nil, time.Time{}, err
	}
	d.lastGrab = time.Now()
	d.captureNs.Add(uint64(time.Since(start).Nanoseconds()))
	d.captures.Add(1)
	d.sequence.Add(1)
	return img, d.lastGrab, nil
}

// Close marks the source exhausted; subsequent Next calls return
// ErrEndOfStream.
func (d *DesktopSource) Close() error {
	d.closed.Store(true)
	return nil
}

// StatsSnapshot returns a point-in-time copy of the capture counters.
func (d *DesktopSource) StatsSnapshot() Stats {
	captures := d.captures.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(d.captureNs.Load() / captures)
	}
	return Stats{
		Captures:    captures,
		Errors:      d.errors.Load(),
		AvgCapture:  avg,
		LastCapture: d.lastGrab,
		Sequence:    d.sequence.Load(),
	}
}
