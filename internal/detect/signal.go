// Package detect implements the six tamper detectors: blur, glare (with
// CLAHE rescue), liveness/blackout/major-tamper, shake, and reposition.
// Detectors are modeled as a closed set of structs implementing Detector
// rather than a dynamic-dispatch hierarchy, per SPEC_FULL.md section 9.
package detect

import (
	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/frame"
)

// ID names one of the six detector classes.
type ID string

// Detector identifiers, matching Incident.kind in SPEC_FULL.md section 3
// (reposition/shake/glare map 1:1; liveness covers both frozen and
// blackout signals, surfaced with distinct Subtype values).
const (
	Blur       ID = "blur"
	Glare      ID = "glare"
	Liveness   ID = "liveness"
	Shake      ID = "shake"
	Reposition ID = "reposition"
)

// Signal is the per-frame, per-detector output. It is transient: never
// persisted, consumed only by the aggregator for the current frame.
type Signal struct {
	Detector  ID
	RawMetric float64
	Tripped   bool
	Subtype   string
	Auxiliary map[string]any
}

// Detector is the uniform per-frame operation shared by all six
// detectors. Step is called once per frame, in a fixed pipeline order;
// Reset clears any temporal state (used by dismiss_reposition_alert and
// by detector-specific resets such as losing track after 10s of quiet).
type Detector interface {
	ID() ID
	Step(cur, prev *frame.Frame, cfg *config.Config) Signal
	Reset()
}
