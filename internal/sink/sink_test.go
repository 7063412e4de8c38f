package sink

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tamperwatch/sentinel/internal/aggregate"
)

type fakeWriter struct {
	calls int
	err   error
}

func (f *fakeWriter) UpsertIncident(inc aggregate.Incident) error {
	f.calls++
	return f.err
}

func TestPushRecordDropsOldestWhenFull(t *testing.T) {
	s := New(2, nil, nil)
	s.PushRecord(DetectionRecord{Subtype: "a"})
	s.PushRecord(DetectionRecord{Subtype: "b"})
	s.PushRecord(DetectionRecord{Subtype: "c"}) // queue full, drops "a"

	if s.Dropped() != 1 {
		t.Fatalf("expected exactly one dropped record, got %d", s.Dropped())
	}

	first := <-s.Records()
	if first.Subtype != "b" {
		t.Fatalf("expected oldest surviving record to be 'b', got %q", first.Subtype)
	}
}

func TestPushIncidentCallsWriter(t *testing.T) {
	w := &fakeWriter{}
	s := New(4, nil, w)
	s.PushIncident(aggregate.Event{Kind: aggregate.Opened, Incident: aggregate.Incident{ID: uuid.New(), Kind: "blur"}})
	if w.calls != 1 {
		t.Fatalf("expected writer to be called once, got %d", w.calls)
	}
}

func TestPushIncidentWriterErrorDoesNotPanic(t *testing.T) {
	w := &fakeWriter{err: errors.New("boom")}
	s := New(4, nil, w)
	s.PushIncident(aggregate.Event{Kind: aggregate.Opened, Incident: aggregate.Incident{ID: uuid.New(), Kind: "blur"}})
	// A persistence error must be swallowed, not propagated or panicked.
}

func TestPushIncidentWithNilWriterDoesNotPanic(t *testing.T) {
	s := New(4, nil, nil)
	s.PushIncident(aggregate.Event{Kind: aggregate.Opened, Incident: aggregate.Incident{ID: uuid.New(), Kind: "blur"}})
}
