// Package aggregate converts per-frame detector signals into persistent
// incidents: debounced activation, sustained-state tracking, grouping of
// reoccurring trips, and a bounded in-memory incident cache. It owns no
// I/O; incident transitions are returned to the caller to push onward to
// a sink.
package aggregate

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/detect"
)

// Incident is the persistent record described in SPEC_FULL.md section 3.
// Kind is one of blur, shake, glare, reposition, frozen, blackout, or
// major_tamper — note that liveness's two sub-signals and the
// major-tamper signal surface as distinct kinds, not as the detector ID.
type Incident struct {
	ID          uuid.UUID
	Kind        string
	Subtype     string
	FirstSeenTS time.Time
	LastSeenTS  time.Time
	Count       int
	Description string
}

// EventKind names an incident transition for one frame.
type EventKind string

const (
	Opened  EventKind = "opened"
	Updated EventKind = "updated"
	Closed  EventKind = "closed"
)

// Event pairs a transition with the incident it happened to. Sent
// onward to internal/sink.IncidentWriter by the pipeline.
type Event struct {
	Kind     EventKind
	Incident Incident
}

type state int

const (
	idle state = iota
	arming
	active
	cooling
)

// track is the per-kind DetectorState named in SPEC_FULL.md section 3:
// last activation timestamp, consecutive-trip duration, and the active
// incident, if any.
type track struct {
	state          state
	trippedSince   time.Time
	lastActiveSeen time.Time
	incidentID     uuid.UUID
}

// Aggregator implements the state machine in SPEC_FULL.md section 4.7:
// idle -> arming -> active -> cooling -> idle, per kind, with debounce,
// activation delay, and 5s grouping. It is driven entirely by the frame
// clock passed into Process, never by time.Now, so replaying the same
// signal sequence always produces the same incidents.
type Aggregator struct {
	tracks map[string]*track
	cache  *lru.Cache[uuid.UUID, *Incident]
}

// New returns an Aggregator whose in-memory incident retention is capped
// at cfg.MaxIncidentsInMemory (default 5). Evicted incidents are assumed
// already durably written by internal/sink.IncidentWriter; the cache
// only bounds what this process holds live.
func New(cfg *config.Config) *Aggregator {
	size := cfg.MaxIncidentsInMemory
	if size <= 0 {
		size = 5
	}
	cache, _ := lru.New[uuid.UUID, *Incident](size)
	return &Aggregator{tracks: make(map[string]*track), cache: cache}
}

// trackKey maps a detector signal onto the incident kind/subtype pair
// from SPEC_FULL.md section 3. Reposition keeps "reposition" as its kind
// and carries fast/slow as Subtype; liveness's frozen/blackout signals
// and the separate major-tamper signal surface as their own kinds.
func trackKey(sig detect.Signal) (kind, subtype string) {
	switch sig.Detector {
	case detect.Reposition:
		return "reposition", sig.Subtype
	case detect.Liveness:
		return sig.Subtype, ""
	default:
		return string(sig.Detector), ""
	}
}

// armingWindow returns the sustain window required before a continuous
// trip becomes an incident: 1s for reposition's fast path, 2s (the
// configured default) for everything else. Liveness's 10s activation
// gate is already enforced inside the detector itself (Step reports
// tripped=false during warm-up), so the aggregator needs no separate
// case for it.
func armingWindow(kind, subtype string, cfg *config.Config) time.Duration {
	if kind == "reposition" && subtype == "fast" {
		return cfg.FastRepositionArming
	}
	return cfg.SustainWindow
}

func describe(kind, subtype string) string {
	switch kind {
	case "blur":
		return "lens obscured: Laplacian variance below threshold"
	case "glare":
		return "high-intensity washout detected"
	case "shake":
		return "mechanical disturbance: whole-frame motion"
	case "reposition":
		if subtype == "fast" {
			return "rapid camera reposition"
		}
		return "sustained slow camera pan"
	case "frozen":
		return "feed frozen: no frame-to-frame change"
	case "blackout":
		return "feed blacked out: brightness below threshold"
	case "major_tamper":
		return "scene replacement without blur or reposition evidence"
	default:
		return kind
	}
}

// Process advances the state machine for one frame's detector signals
// and returns any incident transitions for that frame, in signal order.
func (a *Aggregator) Process(now time.Time, signals []detect.Signal, cfg *config.Config) []Event {
	var events []Event
	for _, sig := range signals {
		kind, subtype := trackKey(sig)
		tr, ok := a.tracks[kind]
		if !ok {
			tr = &track{state: idle}
			a.tracks[kind] = tr
		}
		if sig.Tripped {
			events = append(events, a.onTrip(tr, kind, subtype, now, cfg)...)
		} else {
			events = append(events, a.onClear(tr, kind, now, cfg)...)
		}
	}
	return events
}

func (a *Aggregator) onTrip(tr *track, kind, subtype string, now time.Time, cfg *config.Config) []Event {
	switch tr.state {
	case idle:
		tr.state = arming
		tr.trippedSince = now
		return nil

	case arming:
		if now.Sub(tr.trippedSince) < armingWindow(kind, subtype, cfg) {
			return nil
		}
		inc := &Incident{
			ID:          uuid.New(),
			Kind:        kind,
			Subtype:     subtype,
			FirstSeenTS: tr.trippedSince,
			LastSeenTS:  now,
			Count:       1,
			Description: describe(kind, subtype),
		}
		tr.state = active
		tr.lastActiveSeen = now
		tr.incidentID = inc.ID
		a.cache.Add(inc.ID, inc)
		return []Event{{Kind: Opened, Incident: *inc}}

	case active:
		tr.lastActiveSeen = now
		if inc, ok := a.cache.Get(tr.incidentID); ok {
			inc.LastSeenTS = now
			return []Event{{Kind: Updated, Incident: *inc}}
		}
		return nil

	case cooling:
		// Reoccurrence within the grouping window: reopen, don't create.
		tr.state = active
		tr.lastActiveSeen = now
		if inc, ok := a.cache.Get(tr.incidentID); ok {
			inc.Count++
			inc.LastSeenTS = now
			return []Event{{Kind: Updated, Incident: *inc}}
		}
		inc := &Incident{
			ID:          uuid.New(),
			Kind:        kind,
			Subtype:     subtype,
			FirstSeenTS: now,
			LastSeenTS:  now,
			Count:       1,
			Description: describe(kind, subtype),
		}
		tr.incidentID = inc.ID
		a.cache.Add(inc.ID, inc)
		return []Event{{Kind: Opened, Incident: *inc}}
	}
	return nil
}

func (a *Aggregator) onClear(tr *track, kind string, now time.Time, cfg *config.Config) []Event {
	switch tr.state {
	case arming:
		tr.state = idle
		return nil

	case active:
		tr.state = cooling
		return nil

	case cooling:
		if now.Sub(tr.lastActiveSeen) <= cfg.CoolingWindow {
			return nil
		}
		tr.state = idle
		if inc, ok := a.cache.Get(tr.incidentID); ok {
			closed := *inc
			a.cache.Remove(tr.incidentID)
			return []Event{{Kind: Closed, Incident: closed}}
		}
		return nil
	}
	return nil
}

// Active reports the incident currently open for kind, if any — used by
// dismiss_reposition_alert-style control inputs and by tests asserting
// the "at most one active incident per kind" invariant.
func (a *Aggregator) Active(kind string) (Incident, bool) {
	tr, ok := a.tracks[kind]
	if !ok || tr.state != active && tr.state != cooling {
		return Incident{}, false
	}
	inc, ok := a.cache.Get(tr.incidentID)
	if !ok {
		return Incident{}, false
	}
	return *inc, true
}

// Reset clears the named kind's track back to idle, dropping any active
// incident from the in-memory set without closing it through a Closed
// event — the control-input path (dismiss_reposition_alert) uses this
// directly, since the UI-level acknowledgement is its own closing
// signal, not a timeout.
func (a *Aggregator) Reset(kind string) {
	delete(a.tracks, kind)
}
