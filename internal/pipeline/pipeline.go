// Package pipeline wires capture, preprocessing, the detector bank, the
// temporal aggregator, watermarking, and the event sink into the single
// producer loop described in SPEC_FULL.md section 5: one goroutine, one
// frame at a time, in fixed stage order.
package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/aggregate"
	"github.com/tamperwatch/sentinel/internal/capture"
	"github.com/tamperwatch/sentinel/internal/detect"
	"github.com/tamperwatch/sentinel/internal/preprocess"
	"github.com/tamperwatch/sentinel/internal/sink"
	"github.com/tamperwatch/sentinel/internal/watermark"
)

const (
	captureRetryLimit = 3
	captureGrace      = 5 * time.Second
)

// Pipeline is the single-writer producer loop. It owns every detector
// and piece of per-frame state; nothing here is safe for concurrent use
// from outside the Run goroutine.
type Pipeline struct {
	source      capture.Source
	store       *config.Store
	pre         *preprocess.Preprocessor
	blur        *detect.BlurDetector
	glare       *detect.GlareDetector
	liveness    *detect.LivenessDetector
	shake       *detect.ShakeDetector
	reposition  *detect.RepositionDetector
	aggregator  *aggregate.Aggregator
	embedder    *watermark.Embedder
	sink        *sink.EventSink
	logger      *slog.Logger

	firstFrame    bool
	firstFrameSec int64
}

// New builds a Pipeline from its collaborators. store supplies a fresh
// config snapshot at the top of every frame, per SPEC_FULL.md section 5.
func New(source capture.Source, store *config.Store, evSink *sink.EventSink, logger *slog.Logger) *Pipeline {
	shake, reposition := detect.NewMotionDetectors()
	snap := store.Snapshot()
	return &Pipeline{
		source:     source,
		store:      store,
		pre:        preprocess.New(),
		blur:       detect.NewBlur(),
		glare:      detect.NewGlare(),
		liveness:   detect.NewLiveness(),
		shake:      shake,
		reposition: reposition,
		aggregator: aggregate.New(snap),
		embedder:   watermark.NewEmbedder([]byte(snap.WatermarkSecret)),
		sink:       evSink,
		logger:     logger,
		firstFrame: true,
	}
}

// Run drives the pipeline until ctx is canceled or the capture source is
// permanently lost. Shutdown is cooperative: the stop flag is checked
// between frames, and the sink is left for the caller to drain and close
// (SPEC_FULL.md section 5).
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.pre.Close()
	defer p.liveness.Close()

	captureFailures := 0
	var firstFailure time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		img, capturedAt, err := p.source.Next()
		if errors.Is(err, capture.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			captureFailures++
			if captureFailures == 1 {
				firstFailure = time.Now()
			}
			p.logger.Warn("capture error, retrying", "attempt", captureFailures, "error", err)
			if captureFailures > captureRetryLimit && time.Since(firstFailure) > captureGrace {
				p.logger.Error("capture source lost past retry limit and grace period")
				p.pushCaptureLostIncident()
				return &Error{Kind: CaptureErrorKind, Err: ErrCaptureLost}
			}
			continue
		}
		captureFailures = 0

		cfg := p.store.Snapshot()
		p.processFrame(cfg, img, capturedAt)
	}
}

// pushCaptureLostIncident raises the capture_lost incident required by
// SPEC_FULL.md section 7 before Run returns its terminal error: capture
// loss is a tamper-relevant event in its own right (camera unplugged,
// feed cut) and must reach the sink even though the process is about to
// exit.
func (p *Pipeline) pushCaptureLostIncident() {
	now := time.Now()
	inc := aggregate.Incident{
		ID:          uuid.New(),
		Kind:        "capture_lost",
		FirstSeenTS: now,
		LastSeenTS:  now,
		Count:       1,
		Description: "capture source lost past retry limit and grace period",
	}
	p.sink.PushIncident(aggregate.Event{Kind: aggregate.Opened, Incident: inc})
}

// processFrame runs one frame through every stage. It never returns an
// error: per SPEC_FULL.md section 7, compute errors are recovered
// in-pipeline as tripped=false and logged, not propagated.
func (p *Pipeline) processFrame(cfg *config.Config, img *image.RGBA, capturedAt time.Time) {
	t := capturedAt.Unix()
	if p.firstFrame {
		p.firstFrameSec = t
		p.firstFrame = false
	}

	cur, prev := p.pre.Step(img, float64(t))

	var signals []detect.Signal
	emit := func(enabled bool, sig detect.Signal) {
		if !enabled {
			return
		}
		signals = append(signals, sig)
		p.sink.PushRecord(pushRecordFrom(capturedAt, sig))
	}

	blurSig := detect.Signal{Detector: detect.Blur, Tripped: false}
	if cfg.EnableBlur {
		blurSig = p.blur.Step(cur, prev, cfg)
	}
	emit(cfg.EnableBlur, blurSig)

	if cfg.EnableGlare {
		emit(true, p.glare.Step(cur, prev, cfg))
	}

	if cfg.EnableLiveness {
		emit(true, p.liveness.Step(cur, prev, cfg))
	}

	shakeSig := detect.Signal{Detector: detect.Shake, Tripped: false}
	if cfg.EnableShake {
		shakeSig = p.shake.Step(cur, prev, cfg)
		emit(true, shakeSig)
	}

	repoSig := detect.Signal{Detector: detect.Reposition, Tripped: false}
	if cfg.EnableReposition {
		repoSig = p.reposition.Step(cur, prev, cfg)
		emit(true, repoSig)
	}

	if cfg.EnableLiveness {
		majorSig := p.liveness.MajorTamper(cfg, blurSig.Tripped, repoSig.Tripped)
		emit(true, majorSig)
	}

	events := p.aggregator.Process(capturedAt, signals, cfg)
	for _, e := range events {
		p.sink.PushIncident(e)
	}

	out := cur.Color
	if cfg.EnableBlurFix && blurSig.Tripped {
		out = detect.CorrectBlur(out, cfg.BlurFixStrength)
	}
	if cfg.EnableGlareRescue && anyTripped(signals, detect.Glare) {
		if rescued, err := detect.Rescue(out); err == nil {
			out = rescued
		} else {
			p.logger.Warn("glare rescue failed, emitting uncorrected frame", "error", err)
		}
	}

	// The embedded watermark must reflect the outgoing frame's own
	// second except during the first second after startup (SPEC_FULL.md
	// section 3 invariant), when the embedder may still be catching up
	// to the first observed timestamp.
	p.embedder.Embed(out, t)
}

func anyTripped(signals []detect.Signal, id detect.ID) bool {
	for _, s := range signals {
		if s.Detector == id && s.Tripped {
			return true
		}
	}
	return false
}

func pushRecordFrom(capturedAt time.Time, sig detect.Signal) sink.DetectionRecord {
	return sink.DetectionRecord{
		FrameTS:   capturedAt,
		Detector:  sig.Detector,
		RawMetric: sig.RawMetric,
		Tripped:   sig.Tripped,
		Subtype:   sig.Subtype,
	}
}
