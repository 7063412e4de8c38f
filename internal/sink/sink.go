// Package sink defines the event and persistence boundary described in
// SPEC_FULL.md section 6: a bounded, non-blocking queue of structured
// detection records and incident transitions flowing out of the
// pipeline to the transport and persistence layers, both of which live
// outside this module's scope.
package sink

import (
	"log/slog"
	"time"

	"github.com/tamperwatch/sentinel/internal/aggregate"
	"github.com/tamperwatch/sentinel/internal/detect"
)

// DetectionRecord is one detector's signal for one frame, pushed to the
// transport layer. Fields mirror detect.Signal; this type exists
// separately so the sink boundary does not leak internal/detect's
// Auxiliary map shape directly onto the wire.
type DetectionRecord struct {
	FrameTS   time.Time
	Detector  detect.ID
	RawMetric float64
	Tripped   bool
	Subtype   string
}

// IncidentWriter is the persistence-layer collaborator for the
// `incidents` table (SPEC_FULL.md section 6). Implementations live
// outside this module; a real one wraps a SQL or document store.
type IncidentWriter interface {
	UpsertIncident(inc aggregate.Incident) error
}

// EventSink is the bounded, non-blocking queue the pipeline thread
// pushes onto every frame. Push never blocks: a full queue drops the
// oldest pending event and increments Dropped, per SPEC_FULL.md section
// 5 ("if the queue is full the producer drops the oldest event").
type EventSink struct {
	records chan DetectionRecord
	events  chan aggregate.Event
	logger  *slog.Logger
	writer  IncidentWriter

	dropped int64
}

// New returns an EventSink with the given queue capacity. writer may be
// nil, in which case incident transitions are logged but not persisted
// (used by the offline validator path and by tests).
func New(capacity int, logger *slog.Logger, writer IncidentWriter) *EventSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventSink{
		records: make(chan DetectionRecord, capacity),
		events:  make(chan aggregate.Event, capacity),
		logger:  logger,
		writer:  writer,
	}
}

// PushRecord enqueues a per-frame detection record, dropping the oldest
// queued record if the channel is full.
func (s *EventSink) PushRecord(r DetectionRecord) {
	select {
	case s.records <- r:
	default:
		select {
		case <-s.records:
		default:
		}
		s.dropped++
		select {
		case s.records <- r:
		default:
		}
		if s.logger != nil {
			s.logger.Warn("event sink backpressure: dropped oldest detection record", "dropped_total", s.dropped)
		}
	}
}

// PushIncident enqueues an incident transition and, if a writer is
// configured, persists it. Persistence errors are logged and never stall
// the pipeline (SPEC_FULL.md section 7: the next successful write
// reconciles by upserting the still-open incident).
func (s *EventSink) PushIncident(e aggregate.Event) {
	select {
	case s.events <- e:
	default:
		select {
		case <-s.events:
		default:
		}
		s.dropped++
		select {
		case s.events <- e:
		default:
		}
		if s.logger != nil {
			s.logger.Warn("event sink backpressure: dropped oldest incident event", "dropped_total", s.dropped)
		}
	}
	if s.writer == nil {
		return
	}
	if err := s.writer.UpsertIncident(e.Incident); err != nil && s.logger != nil {
		s.logger.Error("persistence error upserting incident", "incident_id", e.Incident.ID, "kind", e.Incident.Kind, "error", err)
	}
}

// Dropped reports the cumulative number of events dropped due to
// backpressure, for metrics/logging at shutdown.
func (s *EventSink) Dropped() int64 { return s.dropped }

// Records exposes the detection-record channel for the transport layer
// to drain.
func (s *EventSink) Records() <-chan DetectionRecord { return s.records }

// Events exposes the incident-event channel for the transport layer to
// drain.
func (s *EventSink) Events() <-chan aggregate.Event { return s.events }

// Close drains nothing itself — cooperative shutdown (SPEC_FULL.md
// section 5) is the caller's responsibility: stop pushing, let the
// transport layer finish draining Records()/Events(), then discard the
// sink. Close only closes the channels so a draining reader observes
// end-of-stream.
func (s *EventSink) Close() {
	close(s.records)
	close(s.events)
}
