package pipeline

// DismissRepositionAlert implements the control input from SPEC_FULL.md
// section 6: clears the reposition ring buffer and returns the
// reposition detector to idle. The UI-level acknowledgement is itself
// the closing signal for any open reposition incident, so the
// aggregator's track is reset rather than left to time out.
func (p *Pipeline) DismissRepositionAlert() {
	p.reposition.Reset()
	p.aggregator.Reset("reposition")
}

// Dropped reports the cumulative count of events dropped by the event
// sink due to backpressure (SPEC_FULL.md section 5/7).
func (p *Pipeline) Dropped() int64 { return p.sink.Dropped() }
