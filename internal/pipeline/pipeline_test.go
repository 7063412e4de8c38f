package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/aggregate"
	"github.com/tamperwatch/sentinel/internal/capture"
	"github.com/tamperwatch/sentinel/internal/sink"
	"github.com/tamperwatch/sentinel/internal/watermark"
)

func flat(w, h int, v byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

// testConfig disables the optical-flow detectors and glare rescue so
// this test never touches gocv at runtime — it exercises the pure-Go
// stages (blur, glare histogram, liveness, aggregation, watermarking,
// sink) end to end.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.EnableShake = false
	cfg.EnableReposition = false
	cfg.EnableGlareRescue = false
	cfg.EnableBlurFix = false
	return cfg
}

func TestPipelineProcessesFramesAndEmbedsWatermark(t *testing.T) {
	cfg := testConfig()
	base := time.Unix(1_700_000_000, 0)

	frames := make([]*image.RGBA, 5)
	times := make([]time.Time, 5)
	for i := range frames {
		frames[i] = flat(64, 64, 128)
		times[i] = base.Add(time.Duration(i) * (time.Second / 30))
	}
	src := capture.NewStaticSource(frames, times)

	store := config.NewStore(cfg)
	evSink := sink.New(64, nil, nil)
	p := New(src, store, evSink, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("unexpected pipeline error: %v", err)
	}

	var recordCount int
drain:
	for {
		select {
		case <-evSink.Records():
			recordCount++
		default:
			break drain
		}
	}
	if recordCount == 0 {
		t.Fatal("expected at least one detection record pushed to the sink")
	}

	tok := watermark.Compute([]byte(cfg.WatermarkSecret), base.Unix())
	last := frames[len(frames)-1]
	r := last.Bounds()
	i := last.PixOffset(r.Max.X-11, r.Max.Y-11)
	if last.Pix[i] != tok.R || last.Pix[i+1] != tok.G || last.Pix[i+2] != tok.B {
		t.Fatalf("expected watermark token %+v painted into the outgoing frame, got (%d,%d,%d)", tok, last.Pix[i], last.Pix[i+1], last.Pix[i+2])
	}
}

func TestPipelineStopsOnEndOfStream(t *testing.T) {
	cfg := testConfig()
	src := capture.NewStaticSource(nil, nil)
	store := config.NewStore(cfg)
	evSink := sink.New(4, nil, nil)
	p := New(src, store, evSink, noopLogger())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("expected clean exit on end of stream, got %v", err)
	}
}

func TestCaptureLostPushesIncidentBeforeReturning(t *testing.T) {
	cfg := testConfig()
	src := capture.NewStaticSource(nil, nil)
	store := config.NewStore(cfg)
	evSink := sink.New(4, nil, nil)
	p := New(src, store, evSink, noopLogger())

	p.pushCaptureLostIncident()

	select {
	case ev := <-evSink.Events():
		if ev.Kind != aggregate.Opened {
			t.Fatalf("expected an Opened event, got %v", ev.Kind)
		}
		if ev.Incident.Kind != "capture_lost" {
			t.Fatalf("expected incident kind capture_lost, got %q", ev.Incident.Kind)
		}
	default:
		t.Fatal("expected a capture_lost incident event on the sink")
	}
}

func TestDismissRepositionAlertResetsDetectorAndAggregator(t *testing.T) {
	cfg := testConfig()
	src := capture.NewStaticSource(nil, nil)
	store := config.NewStore(cfg)
	evSink := sink.New(4, nil, nil)
	p := New(src, store, evSink, noopLogger())

	// Must be safe to call even with no active incident.
	p.DismissRepositionAlert()
}
