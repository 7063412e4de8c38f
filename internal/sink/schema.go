package sink

import "time"

// The types below mirror the persistence schema in SPEC_FULL.md section
// 6 for reference. No store is wired in this module — persistence is an
// external collaborator reached through IncidentWriter — but the shapes
// are kept here so a real implementation has an agreed row layout to
// target.

// IncidentRow is the `incidents` table: indexed on (timestamp) and
// (kind).
type IncidentRow struct {
	ID          string
	Kind        string
	Subtype     string
	Timestamp   time.Time
	Count       int
	Description string
	CreatedAt   time.Time
}

// AudioLogRow is the `audio_logs` table: indexed on (timestamp). Audio
// alerts are an enable flag in config.Config but the speech-to-text
// collaborator itself is out of scope (SPEC_FULL.md section 1).
type AudioLogRow struct {
	ID         string
	IncidentID string
	Text       string
	Timestamp  time.Time
	CreatedAt  time.Time
}

// GlareImageRow is the `glare_images` table, recording a rescued frame
// alongside the glare percentage that triggered rescue.
type GlareImageRow struct {
	ID              string
	IncidentID      string
	FilePath        string
	GlarePercentage float64
	Timestamp       time.Time
	CreatedAt       time.Time
}

// LivenessValidationRow is the `liveness_validations` table: one row per
// offline validator run, with the per-frame audit trail serialized into
// FrameResults.
type LivenessValidationRow struct {
	ID           string
	IncidentID   string
	FilePath     string
	Status       string
	FrameResults string
	Timestamp    time.Time
	CreatedAt    time.Time
}
