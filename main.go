package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/tamperwatch/sentinel/config"
	"github.com/tamperwatch/sentinel/internal/capture"
	"github.com/tamperwatch/sentinel/internal/diag"
	"github.com/tamperwatch/sentinel/internal/pipeline"
	"github.com/tamperwatch/sentinel/internal/sink"
)

const configPath = "sentinel_config.json"

func main() {
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}

	var loglevel slog.Level
	if cfg.Debug {
		loglevel = slog.LevelDebug
	} else {
		loglevel = slog.LevelInfo
	}
	logger := NewLogger(loglevel)
	if err != nil {
		logger.Warn("failed to load "+configPath+"; using defaults", "error", err)
	}
	if verr := cfg.Validate(); verr != nil {
		logger.Error("configuration error at load", "error", verr)
		os.Exit(2)
	}

	store := config.NewStore(cfg)
	source := capture.NewDesktopSource(30, nil)
	evSink := sink.New(256, logger, nil)

	p := pipeline.New(source, store, evSink, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Debug {
		diag.StartGoroutineLogger(10*time.Second, logger, ctx.Done())
	}

	go drainSink(ctx, evSink, logger)

	if err := p.Run(ctx); err != nil {
		// Run only ever returns a CaptureErrorKind error (compute and
		// sink errors are recovered in-pipeline per SPEC_FULL.md section
		// 7) so capture loss is the only case mapped here.
		logger.Error("capture source lost", "error", err)
		os.Exit(1)
	}

	evSink.Close()
	logger.Info("shutdown complete", "dropped_events", evSink.Dropped())
}

// drainSink stands in for the transport layer this module does not
// implement (SPEC_FULL.md section 1): it consumes detection records and
// incident events off the sink so the bounded queues never fill from
// disuse in this reference binary.
func drainSink(ctx context.Context, s *sink.EventSink, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-s.Records():
			if !ok {
				return
			}
			logger.Debug("detection record", "detector", rec.Detector, "tripped", rec.Tripped, "subtype", rec.Subtype)
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			logger.Info("incident event", "kind", ev.Kind, "incident_kind", ev.Incident.Kind, "count", ev.Incident.Count)
		}
	}
}

// Global panic fallback (should be unnecessary due to Run recovery but kept for safety)
func init() {
	defer func() {
		if r := recover(); r != nil {
			os.Stderr.WriteString("panic during init: ")
			os.Stderr.WriteString(fmt.Sprintf("%v\n%s", r, debug.Stack()))
			os.Exit(1)
		}
	}()
}
