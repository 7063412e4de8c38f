package detect

import (
	"math"
	"time"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

const repositionHistoryDepth = 10

// repositionEntry is one ring-buffer slot per SPEC_FULL.md section 3:
// (shift_magnitude, unit_direction).
type repositionEntry struct {
	magnitude  float64
	dirX, dirY float64
}

// ShakeDetector trips on uniform whole-frame motion characteristic of
// physical impact. It shares flow computation with RepositionDetector
// via a common *flowCache.
type ShakeDetector struct {
	flow *flowCache
}

// NewShakeDetector returns a ShakeDetector sharing flow with the given
// cache. Pair it with a RepositionDetector constructed from the same
// cache so Farneback flow is computed once per frame.
func NewShakeDetector(cache *flowCache) *ShakeDetector {
	return &ShakeDetector{flow: cache}
}

// NewMotionDetectors returns a ShakeDetector and RepositionDetector
// sharing one internal flow cache, so the pipeline never has to reach
// into package-private flow machinery to wire them together.
func NewMotionDetectors() (*ShakeDetector, *RepositionDetector) {
	cache := newFlowCache()
	return NewShakeDetector(cache), NewRepositionDetector(cache)
}

// ID implements Detector.
func (*ShakeDetector) ID() ID { return Shake }

// Reset implements Detector; ShakeDetector holds no temporal state.
func (*ShakeDetector) Reset() {}

// evaluateShake is the pure trip logic, separated from flow acquisition
// so it can be exercised directly against a synthetic Flow in tests
// without a real Farneback computation.
func evaluateShake(flow Flow, threshold float64) Signal {
	n := len(flow.U)
	if n == 0 {
		return Signal{Detector: Shake, Tripped: false}
	}
	var sum float64
	for i := range flow.U {
		u, v := float64(flow.U[i]), float64(flow.V[i])
		sum += math.Sqrt(u*u + v*v)
	}
	mean := sum / float64(n)
	return Signal{
		Detector:  Shake,
		RawMetric: mean,
		Tripped:   mean > threshold,
		Auxiliary: map[string]any{"mean_magnitude": mean},
	}
}

// Step implements Detector.
func (s *ShakeDetector) Step(cur, prev *frame.Frame, cfg *config.Config) Signal {
	if prev == nil {
		return Signal{Detector: Shake, Tripped: false}
	}
	flow, ok, err := s.flow.get(cur.TimestampSeconds, cur.Gray(), prev.Gray(), cur.Width, cur.Height)
	if err != nil || !ok {
		return Signal{Detector: Shake, Tripped: false}
	}
	return evaluateShake(flow, cfg.ShakeThreshold)
}

// RepositionDetector implements the dual fast/slow trip paths and the
// 10-deep history ring buffer described in SPEC_FULL.md section 4.5.
type RepositionDetector struct {
	flow               *flowCache
	history            []repositionEntry
	lastAboveThreshold time.Time
	haveLastAbove      bool
}

// NewRepositionDetector returns a RepositionDetector sharing flow with
// the given cache.
func NewRepositionDetector(cache *flowCache) *RepositionDetector {
	return &RepositionDetector{flow: cache}
}

// ID implements Detector.
func (*RepositionDetector) ID() ID { return Reposition }

// Reset implements Detector. It clears the history ring buffer; called
// both by dismiss_reposition_alert and by the 10s-quiet auto-reset.
func (r *RepositionDetector) Reset() {
	r.history = nil
	r.lastAboveThreshold = time.Time{}
	r.haveLastAbove = false
}

func centerROI(w, h int) (x0, y0, x1, y1 int) {
	bx := w / 10
	by := h / 10
	return bx, by, w - bx, h - by
}

func cardinalDirection(dx, dy float64) string {
	if dx == 0 && dy == 0 {
		return "none"
	}
	horiz := "right"
	if dx < 0 {
		horiz = "left"
	}
	vert := "down"
	if dy < 0 {
		vert = "up"
	}
	if math.Abs(dx) < 1e-6 {
		return vert
	}
	if math.Abs(dy) < 1e-6 {
		return horiz
	}
	return vert + "-" + horiz
}

// centerShift averages the flow over the centered ROI (a ~10% border
// excluded on each side, per SPEC_FULL.md section 4.5) and returns the
// mean shift vector and its magnitude.
func centerShift(flow Flow) (shiftX, shiftY, magnitude float64) {
	x0, y0, x1, y1 := centerROI(flow.W, flow.H)
	var sumU, sumV float64
	var count int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			idx := y*flow.W + x
			sumU += float64(flow.U[idx])
			sumV += float64(flow.V[idx])
			count++
		}
	}
	if count > 0 {
		shiftX, shiftY = sumU/float64(count), sumV/float64(count)
	}
	magnitude = math.Sqrt(shiftX*shiftX + shiftY*shiftY)
	return
}

// step is the pure ring-buffer/trip-rule logic, separated from flow
// acquisition so it can be driven directly in tests with a synthetic
// Flow and a controlled clock.
func (r *RepositionDetector) step(flow Flow, now time.Time, cfg *config.Config) Signal {
	shiftX, shiftY, magnitude := centerShift(flow)

	dirX, dirY := 0.0, 0.0
	if magnitude > 1e-6 {
		dirX, dirY = shiftX/magnitude, shiftY/magnitude
	}

	if magnitude > cfg.RepositionThreshold {
		r.lastAboveThreshold = now
		r.haveLastAbove = true
	} else if r.haveLastAbove && now.Sub(r.lastAboveThreshold) > 10*time.Second {
		r.history = nil
		r.haveLastAbove = false
	}

	r.history = append(r.history, repositionEntry{magnitude: magnitude, dirX: dirX, dirY: dirY})
	if len(r.history) > repositionHistoryDepth {
		r.history = r.history[len(r.history)-repositionHistoryDepth:]
	}

	subtype := ""
	tripped := false
	if magnitude > cfg.FastRepositionThreshold {
		subtype, tripped = "fast", true
	} else if len(r.history) >= 5 {
		recent := r.history[len(r.history)-5:]
		above := 0
		var sumDx, sumDy float64
		var dirCount int
		for _, e := range recent {
			if e.magnitude > cfg.RepositionThreshold {
				above++
			}
			if e.magnitude > 5.0 {
				sumDx += e.dirX
				sumDy += e.dirY
				dirCount++
			}
		}
		if above >= 4 {
			meanDx, meanDy := 0.0, 0.0
			if dirCount > 0 {
				meanDx, meanDy = sumDx/float64(dirCount), sumDy/float64(dirCount)
			}
			consistency := math.Sqrt(meanDx*meanDx + meanDy*meanDy)
			if consistency > cfg.DirectionConsistency {
				subtype, tripped = "slow", true
			}
		}
	}

	return Signal{
		Detector:  Reposition,
		RawMetric: magnitude,
		Tripped:   tripped,
		Subtype:   subtype,
		Auxiliary: map[string]any{
			"shift_x":   shiftX,
			"shift_y":   shiftY,
			"magnitude": magnitude,
			"direction": cardinalDirection(shiftX, shiftY),
		},
	}
}

// Step implements Detector.
func (r *RepositionDetector) Step(cur, prev *frame.Frame, cfg *config.Config) Signal {
	if prev == nil {
		return Signal{Detector: Reposition, Tripped: false}
	}
	flow, ok, err := r.flow.get(cur.TimestampSeconds, cur.Gray(), prev.Gray(), cur.Width, cur.Height)
	if err != nil || !ok {
		return Signal{Detector: Reposition, Tripped: false}
	}
	return r.step(flow, frameTime(cur), cfg)
}

// HistoryLen reports the current ring-buffer length, for invariant
// tests (SPEC_FULL.md section 8: "the reposition ring buffer never
// exceeds 10 entries").
func (r *RepositionDetector) HistoryLen() int { return len(r.history) }
