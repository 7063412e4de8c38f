package detect

import (
	"image"
	"time"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

// LivenessDetector holds the reference frame described in SPEC_FULL.md
// section 4.4, refreshed every LivenessCheckInterval, plus the
// first-capture timestamp used for the activation window. The reference
// frame's color buffer is acquired from a frame.Pool and held for the
// detector's lifetime, released back to the pool on refresh, Reset, or
// Close rather than left for the garbage collector (SPEC_FULL.md section
// 5). It emits the combined frozen/blackout signal from Step;
// MajorTamper is a separate call the pipeline makes once blur and
// reposition for the same frame are known, since that signal depends on
// detectors outside this one's scope.
type LivenessDetector struct {
	pool        *frame.Pool
	ref         *image.RGBA
	refGray     []byte
	lastRefresh time.Time
	startedAt   time.Time
	started     bool
	lastDiff    float64
	lastBright  float64
	withinArm   bool
}

// NewLiveness returns a LivenessDetector with no reference frame yet,
// backed by its own frame.Pool.
func NewLiveness() *LivenessDetector {
	return &LivenessDetector{pool: frame.NewPool()}
}

// ID implements Detector.
func (*LivenessDetector) ID() ID { return Liveness }

// Reset implements Detector, releasing the reference frame back to the
// pool and clearing the startup clock so the next Step call behaves as
// if the pipeline just started.
func (l *LivenessDetector) Reset() {
	l.releaseRef()
	l.lastRefresh = time.Time{}
	l.startedAt = time.Time{}
	l.started = false
}

// Close releases the reference frame's buffer back to the pool. Called
// once at pipeline shutdown (SPEC_FULL.md section 5).
func (l *LivenessDetector) Close() {
	l.releaseRef()
}

func (l *LivenessDetector) releaseRef() {
	if l.ref != nil {
		l.pool.Release(l.ref)
		l.ref = nil
	}
	l.refGray = nil
}

func (l *LivenessDetector) refreshReference(cur *frame.Frame, now time.Time) {
	l.releaseRef()
	l.ref = frame.CopyInto(l.pool, cur.Color)
	l.refGray = frame.ToGray(l.ref)
	l.lastRefresh = now
}

func frameTime(f *frame.Frame) time.Time {
	return time.Unix(0, int64(f.TimestampSeconds*float64(time.Second)))
}

// Step implements Detector.
func (l *LivenessDetector) Step(cur, prev *frame.Frame, cfg *config.Config) Signal {
	now := frameTime(cur)
	if !l.started {
		l.started = true
		l.startedAt = now
	}

	gray := cur.Gray()
	refBounds := l.ref != nil && l.ref.Bounds().Dx() == cur.Width && l.ref.Bounds().Dy() == cur.Height
	switch {
	case !refBounds:
		l.refreshReference(cur, now)
	case now.Sub(l.lastRefresh) >= cfg.LivenessCheckInterval:
		l.refreshReference(cur, now)
	}

	var sumDiff int64
	var sumBright int64
	n := len(gray)
	for i := 0; i < n; i++ {
		d := int(gray[i]) - int(l.refGray[i])
		if d < 0 {
			d = -d
		}
		sumDiff += int64(d)
		sumBright += int64(gray[i])
	}
	diff := 0.0
	brightness := 0.0
	if n > 0 {
		diff = float64(sumDiff) / float64(n)
		brightness = float64(sumBright) / float64(n)
	}
	l.lastDiff, l.lastBright = diff, brightness

	withinActivation := now.Sub(l.startedAt) < cfg.LivenessActivationTime
	l.withinArm = withinActivation
	frozen := !withinActivation && diff < cfg.LivenessThreshold
	blackout := !withinActivation && brightness < cfg.BlackoutBrightnessThresh

	subtype := ""
	tripped := false
	switch {
	case blackout:
		subtype, tripped = "blackout", true
	case frozen:
		subtype, tripped = "frozen", true
	}

	return Signal{
		Detector:  Liveness,
		RawMetric: diff,
		Tripped:   tripped,
		Subtype:   subtype,
		Auxiliary: map[string]any{
			"diff":       diff,
			"brightness": brightness,
			"frozen":     frozen,
			"blackout":   blackout,
		},
	}
}

// MajorTamper reports the scene-replacement signature named in
// SPEC_FULL.md section 4.4: a large frame difference with no reposition-
// consistent directional motion and no blur. It must be called with the
// same frame's blur/reposition trip state, after Step.
func (l *LivenessDetector) MajorTamper(cfg *config.Config, blurTripped, repositionTripped bool) Signal {
	tripped := !l.withinArm && !blurTripped && !repositionTripped && l.lastDiff > cfg.MajorTamperThreshold
	return Signal{
		Detector:  Liveness,
		RawMetric: l.lastDiff,
		Tripped:   tripped,
		Subtype:   "major_tamper",
		Auxiliary: map[string]any{"diff": l.lastDiff},
	}
}
