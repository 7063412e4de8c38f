package aggregate

import (
	"testing"
	"time"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/detect"
)

func sig(id detect.ID, tripped bool, subtype string) detect.Signal {
	return detect.Signal{Detector: id, Tripped: tripped, Subtype: subtype}
}

// scenario S4: 60 continuously-tripped blur frames at 30fps (2s) opens
// exactly one incident, after the sustain window elapses.
func TestBlurIncidentOpensAfterSustainWindow(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	var opens int
	for i := 0; i <= 60; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		events := a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)
		for _, e := range events {
			if e.Kind == Opened {
				opens++
			}
		}
	}
	if opens != 1 {
		t.Fatalf("expected exactly one blur incident to open over the sustain window, got %d", opens)
	}
	inc, ok := a.Active("blur")
	if !ok || inc.Kind != "blur" {
		t.Fatalf("expected an active blur incident, got %+v ok=%v", inc, ok)
	}
}

func TestIncidentDoesNotOpenBeforeSustainWindow(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	// Half the sustain window's worth of frames: must never open.
	n := 30
	for i := 0; i < n; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		events := a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)
		for _, e := range events {
			if e.Kind == Opened {
				t.Fatalf("incident opened early at frame %d, before the 2s sustain window elapsed", i)
			}
		}
	}
}

func TestFastRepositionUsesOneSecondArmingWindow(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	var opened bool
	var openFrame int
	for i := 0; i < 40; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		events := a.Process(now, []detect.Signal{sig(detect.Reposition, true, "fast")}, cfg)
		for _, e := range events {
			if e.Kind == Opened {
				opened = true
				openFrame = i
			}
		}
		if opened {
			break
		}
	}
	if !opened {
		t.Fatal("expected fast-path reposition incident to open")
	}
	// 1s arming window at 30fps: should open at or after frame 30, well
	// before the 2s default sustain window would allow (frame 60).
	if openFrame >= 60 {
		t.Fatalf("expected fast-path arming to use the 1s window, opened at frame %d", openFrame)
	}
}

func TestIncidentClearedDuringArmingNeverOpens(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	for i := 0; i < 10; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)
	}
	// Clear before the sustain window elapses.
	a.Process(start.Add(11*time.Second/30), []detect.Signal{sig(detect.Blur, false, "")}, cfg)

	if _, ok := a.Active("blur"); ok {
		t.Fatal("expected no active incident after clearing mid-arming")
	}
}

func TestRetripWithinGroupingWindowIncrementsCount(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	// Open an incident.
	var now time.Time
	for i := 0; i <= 60; i++ {
		now = start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)
	}
	inc, ok := a.Active("blur")
	if !ok {
		t.Fatal("expected active incident before clearing")
	}
	if inc.Count != 1 {
		t.Fatalf("expected count 1 on first open, got %d", inc.Count)
	}

	// Clear briefly, then retrip within the 5s grouping window.
	now = now.Add(time.Second)
	a.Process(now, []detect.Signal{sig(detect.Blur, false, "")}, cfg)
	now = now.Add(2 * time.Second)
	events := a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)

	var gotUpdate bool
	for _, e := range events {
		if e.Kind == Updated && e.Incident.Count == 2 {
			gotUpdate = true
		}
		if e.Kind == Opened {
			t.Fatal("retrip within the grouping window must reopen, not create a new incident")
		}
	}
	if !gotUpdate {
		t.Fatal("expected count to increment to 2 on retrip within grouping window")
	}
}

func TestIncidentClosesAfterGroupingWindowElapses(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	var now time.Time
	for i := 0; i <= 60; i++ {
		now = start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{sig(detect.Blur, true, "")}, cfg)
	}
	a.Process(now.Add(time.Millisecond), []detect.Signal{sig(detect.Blur, false, "")}, cfg)

	// Advance well past the 5s grouping window with no further trips.
	var closed bool
	for i := 1; i <= 200; i++ {
		step := now.Add(time.Millisecond).Add(time.Duration(i) * (time.Second / 30))
		events := a.Process(step, []detect.Signal{sig(detect.Blur, false, "")}, cfg)
		for _, e := range events {
			if e.Kind == Closed {
				closed = true
			}
		}
	}
	if !closed {
		t.Fatal("expected incident to close after the grouping window elapsed with no retrip")
	}
	if _, ok := a.Active("blur"); ok {
		t.Fatal("expected no active incident after close")
	}
}

func TestLivenessFrozenAndBlackoutAreDistinctKinds(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	for i := 0; i <= 60; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{sig(detect.Liveness, true, "frozen")}, cfg)
	}
	if _, ok := a.Active("frozen"); !ok {
		t.Fatal("expected an active 'frozen' incident")
	}
	if _, ok := a.Active("blackout"); ok {
		t.Fatal("blackout must not be affected by a frozen trip")
	}
}

func TestMajorTamperIsItsOwnKind(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)

	for i := 0; i <= 60; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{{Detector: detect.Liveness, Tripped: true, Subtype: "major_tamper"}}, cfg)
	}
	inc, ok := a.Active("major_tamper")
	if !ok || inc.Kind != "major_tamper" {
		t.Fatalf("expected an active major_tamper incident, got %+v ok=%v", inc, ok)
	}
}

func TestResetClearsTrackWithoutClosingIncident(t *testing.T) {
	cfg := config.Default()
	a := New(cfg)
	start := time.Unix(0, 0)
	for i := 0; i <= 60; i++ {
		now := start.Add(time.Duration(i) * (time.Second / 30))
		a.Process(now, []detect.Signal{sig(detect.Reposition, true, "fast")}, cfg)
	}
	if _, ok := a.Active("reposition"); !ok {
		t.Fatal("expected an active reposition incident before reset")
	}
	a.Reset("reposition")
	if _, ok := a.Active("reposition"); ok {
		t.Fatal("expected reset to clear the active incident lookup")
	}
}
