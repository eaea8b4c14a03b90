package session

import (
	"context"

	"github.com/Sumatoshi-tech/markrec/pkg/recorder"
)

// watch starts the health monitor for rec. Callers hold opMu.
func (o *Orchestrator) watch(rec recorder.Recorder) {
	o.monitorID++
	id := o.monitorID

	o.stopMonitor = recorder.Monitor(context.Background(), rec, o.cfg.Monitor, func(err error) {
		// The handler needs opMu, which a caller of unwatch may hold.
		go o.handleFailure(id, rec, err)
	})
}

// unwatch stops the current monitor. Callers hold opMu.
func (o *Orchestrator) unwatch() {
	if o.stopMonitor != nil {
		o.stopMonitor()
		o.stopMonitor = nil
	}
}

func (o *Orchestrator) handleFailure(id uint64, failed recorder.Recorder, cause error) {
	ctx := context.Background()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if id != o.monitorID || o.State() != Recording {
		return
	}

	o.logger.WarnContext(ctx, "recorder failure detected", "recorder", failed.Name(), "error", cause)

	o.mu.RLock()
	sess := o.current
	o.mu.RUnlock()

	o.unwatch()

	rec := o.fallback(ctx, failed, sess)

	o.mu.Lock()
	o.rec = rec
	o.mu.Unlock()

	if rec != failed {
		o.watch(rec)
	}
}

// fallback moves the session in sess onto the per-source readers. The output
// path and anchor are kept. When failed is already the per-source recorder
// there is nothing left to fall back to and failed is returned.
func (o *Orchestrator) fallback(ctx context.Context, failed recorder.Recorder, sess *active) recorder.Recorder {
	if failed == recorder.Recorder(o.perSource) {
		o.logger.ErrorContext(ctx, "per-source capture stopped; session keeps its collected samples")
		o.warn("All sources stopped delivering; stop or split to save what was captured")

		return failed
	}

	stopErr := failed.Stop(ctx)
	if stopErr != nil {
		o.logger.WarnContext(ctx, "could not stop failed recorder", "recorder", failed.Name(), "error", stopErr)
	}

	err := o.perSource.Start(ctx, sess.outputPath, sess.sources)
	if err != nil {
		o.logger.ErrorContext(ctx, "fallback to per-source capture failed", "error", err)
		o.warn("Fallback capture failed: " + err.Error())

		return failed
	}

	o.recordFallback(ctx, failed.Name(), o.perSource.Name())
	o.warn("Recorder " + failed.Name() + " failed, continuing with per-source capture")

	return o.perSource
}

func (o *Orchestrator) recordFallback(ctx context.Context, from, to string) {
	if o.metrics != nil {
		o.metrics.RecordFallback(ctx, from, to)
	}
}
