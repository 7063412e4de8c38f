package pipeline

import "errors"

// ErrKind names the error taxonomy from SPEC_FULL.md section 7. Only
// CaptureError and ConfigError ever surface as process-level failures;
// everything else is recovered in-pipeline and logged.
type ErrKind string

const (
	CaptureErrorKind     ErrKind = "capture_error"
	ComputeErrorKind     ErrKind = "compute_error"
	SinkBackpressureKind ErrKind = "sink_backpressure"
	PersistenceErrorKind ErrKind = "persistence_error"
	ConfigErrorKind      ErrKind = "config_error"
	ValidatorInputKind   ErrKind = "validator_input_error"
)

// Error wraps an underlying cause with its taxonomy kind, so callers at
// the process boundary can switch on Kind without string matching.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrCaptureLost is the sentinel surfaced when the capture source has
// failed persistently (SPEC_FULL.md section 7: retried up to 3 frames,
// then fatal with a 5s grace period). The composition root maps this to
// exit code 1.
var ErrCaptureLost = errors.New("pipeline: capture source lost")

// ErrConfigInvalid is the sentinel surfaced for a fatal configuration
// load error. The composition root maps this to exit code 2.
var ErrConfigInvalid = errors.New("pipeline: invalid configuration")
