package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/markrec/pkg/backup"
	"github.com/Sumatoshi-tech/markrec/pkg/capture"
	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
	"github.com/Sumatoshi-tech/markrec/pkg/markers"
	"github.com/Sumatoshi-tech/markrec/pkg/observability"
	"github.com/Sumatoshi-tech/markrec/pkg/recorder"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Start begins recording the effective selection and returns the output path.
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	ctx, span := o.tracer.Start(ctx, "markrec.session.start")
	defer span.End()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	path, err := o.start(ctx)
	recordSpanError(span, err)

	return path, err
}

// AutoStart selects markrec's own streams and starts recording. With no
// external recorder the current selection is kept unless it is empty.
func (o *Orchestrator) AutoStart(ctx context.Context) (string, error) {
	ctx, span := o.tracer.Start(ctx, "markrec.session.auto_start")
	defer span.End()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	catalog := o.catalog.Catalog()
	if o.external != nil || len(o.selection.Effective(catalog)) == 0 {
		picked := o.selection.AutoSelectOwn(catalog, markers.OwnNames())
		o.logger.InfoContext(ctx, "auto-selected own streams", "keys", picked)
	}

	path, err := o.start(ctx)
	recordSpanError(span, err)

	if err != nil {
		return "", err
	}

	o.mark(ctx, markers.StatusAutoStarted, path)
	o.info("Recording auto-started: " + filepath.Base(path))

	return path, nil
}

func (o *Orchestrator) start(ctx context.Context) (string, error) {
	if o.State() != Idle {
		return "", fmt.Errorf("%w: state %s", ErrBusy, o.State())
	}

	sources := o.selection.Effective(o.catalog.Catalog())
	if len(sources) == 0 {
		return "", ErrNoSourcesSelected
	}

	o.setState(Starting)

	sess, err := o.newActive(ctx, sources)
	if err != nil {
		o.setState(Idle)

		return "", err
	}

	o.bus.Cutover(sess.buffer)

	rec, err := o.launch(ctx, sess)
	if err != nil {
		o.bus.Cutover(nil).Close()

		removeErr := sess.backup.Remove()
		if removeErr != nil {
			o.logger.WarnContext(ctx, "could not remove backup", "error", removeErr)
		}

		o.setState(Idle)
		o.warn("Recording failed to start: " + err.Error())

		return "", err
	}

	o.mu.Lock()
	o.current = sess
	o.rec = rec
	o.mu.Unlock()

	o.watch(rec)
	o.setState(Recording)

	o.logger.InfoContext(ctx, "recording started",
		"output", sess.outputPath, "recorder", rec.Name(), "sources", len(sources))
	o.info(fmt.Sprintf("Recording started (%s): %s", rec.Name(), filepath.Base(sess.outputPath)))

	return sess.outputPath, nil
}

// launch starts the external recorder with retries and falls back to the
// per-source readers.
func (o *Orchestrator) launch(ctx context.Context, sess *active) (recorder.Recorder, error) {
	if o.external != nil {
		err := recorder.StartWithRetry(ctx, o.external, sess.outputPath, sess.sources,
			o.cfg.StartAttempts, o.cfg.StartDelay, o.logger)
		if err == nil {
			return o.external, nil
		}

		o.logger.WarnContext(ctx, "external recorder failed, falling back", "error", err)
		o.warn("External recorder failed, using per-source capture")
		o.recordFallback(ctx, o.external.Name(), o.perSource.Name())
	}

	err := o.perSource.Start(ctx, sess.outputPath, sess.sources)
	if err != nil {
		return nil, err
	}

	return o.perSource, nil
}

// Stop ends the session, exports it and returns the output path. The session
// always ends idle; export failures keep the backup and are returned.
func (o *Orchestrator) Stop(ctx context.Context) (string, error) {
	ctx, span := o.tracer.Start(ctx, "markrec.session.stop")
	defer span.End()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.State() != Recording {
		return "", ErrNotRecording
	}

	o.setState(Stopping)

	o.mu.RLock()
	sess, rec := o.current, o.rec
	o.mu.RUnlock()

	o.mark(ctx, markers.StatusStopped, filepath.Base(sess.outputPath))
	o.unwatch()

	var errs []error

	err := rec.Stop(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "recorder stop reported an error", "recorder", rec.Name(), "error", err)
		errs = append(errs, err)
	}

	samples := o.bus.Cutover(nil).Close()
	o.reportLate(ctx)

	o.mu.Lock()
	o.current = nil
	o.rec = nil
	o.mu.Unlock()

	err = o.finish(ctx, sess, samples)
	if err != nil {
		errs = append(errs, err)
	}

	o.setState(Idle)
	o.info("Recording stopped: " + filepath.Base(sess.outputPath))

	err = errors.Join(errs...)
	recordSpanError(span, err)

	return sess.outputPath, err
}

// Split closes the current file and continues into a new one with a fresh
// anchor. The selection is kept. It returns the new output path; an export
// failure for the closed file is returned alongside it.
func (o *Orchestrator) Split(ctx context.Context) (string, error) {
	ctx, span := o.tracer.Start(ctx, "markrec.session.split")
	defer span.End()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.State() != Recording {
		return "", ErrNotRecording
	}

	o.mu.RLock()
	prev, rec := o.current, o.rec
	o.mu.RUnlock()

	next, err := o.newActive(ctx, prev.sources)
	if err != nil {
		recordSpanError(span, err)

		return "", err
	}

	o.unwatch()

	samples := o.bus.Cutover(next.buffer).Close()

	err = rec.Split(ctx, next.outputPath, next.sources)
	if err != nil {
		o.logger.WarnContext(ctx, "recorder split failed, falling back", "recorder", rec.Name(), "error", err)
		rec = o.fallback(ctx, rec, next)
	}

	o.mu.Lock()
	o.current = next
	o.rec = rec
	o.mu.Unlock()

	o.watch(rec)

	exportErr := o.finish(ctx, prev, samples)

	o.mark(ctx, markers.StatusSplit, next.outputPath)
	o.info("Recording split to new file: " + filepath.Base(next.outputPath))

	span.SetAttributes(attribute.String("markrec.session.output", next.outputPath))
	recordSpanError(span, exportErr)

	return next.outputPath, exportErr
}

// newActive prepares the next generation: output path, anchor, buffer and backup.
func (o *Orchestrator) newActive(ctx context.Context, sources []stream.SourceDescriptor) (*active, error) {
	outputPath, err := o.nextOutputPath()
	if err != nil {
		return nil, err
	}

	o.generation++
	bg := context.WithoutCancel(ctx)

	sess := &active{
		outputPath: outputPath,
		anchor:     clocksync.Capture(o.device, o.wall),
		backup:     backup.NewWriter(outputPath),
		sources:    sources,
	}

	sess.buffer = capture.NewBuffer(o.generation, capture.BufferOptions{
		BackupEvery: o.cfg.BackupEvery,
		OnBackup: func(samples []stream.Sample) {
			o.writeBackup(bg, sess, samples)
		},
		OnSample: func(sample stream.Sample) {
			if o.metrics != nil {
				o.metrics.RecordSample(bg, sample.SourceKey)
			}
		},
	})

	return sess, nil
}

func (o *Orchestrator) writeBackup(ctx context.Context, sess *active, samples []stream.Sample) {
	ctx, span := o.tracer.Start(ctx, observability.SpanBackupWrite,
		trace.WithAttributes(attribute.Int("markrec.backup.samples", len(samples))))
	defer span.End()

	err := sess.backup.Write(backup.NewSnapshot(samples, sess.anchor))
	recordSpanError(span, err)

	if err != nil {
		o.logger.WarnContext(ctx, "backup write failed", "path", sess.backup.Path(), "error", err)
	}

	if o.metrics != nil {
		o.metrics.RecordBackup(ctx, err)
	}
}

// finish exports a closed generation and removes its backup on success.
func (o *Orchestrator) finish(ctx context.Context, sess *active, samples []stream.Sample) error {
	result, err := o.exporter.Export(ctx, samples, sess.anchor, sess.outputPath)

	switch {
	case errors.Is(err, export.ErrNothingToExport):
		o.logger.InfoContext(ctx, "no in-process samples to export", "output", sess.outputPath)
	case err != nil:
		o.logger.ErrorContext(ctx, "export failed, keeping backup",
			"output", sess.outputPath, "backup", sess.backup.Path(), "error", err)
		o.warn("Export failed, backup kept: " + filepath.Base(sess.backup.Path()))

		return err
	default:
		o.logger.InfoContext(ctx, "session exported",
			"artifact", result.ArtifactPath, "sidecar", result.SidecarPath,
			"rows", result.Rows, "flagged", result.Flagged)

		if result.Flagged > 0 {
			o.warn(fmt.Sprintf("%d sample(s) predate the session anchor, saved to %s",
				result.Flagged, filepath.Base(result.FlaggedPath)))
		}
	}

	err = sess.backup.Remove()
	if err != nil {
		o.logger.WarnContext(ctx, "could not remove backup", "path", sess.backup.Path(), "error", err)
	}

	return nil
}

func (o *Orchestrator) reportLate(ctx context.Context) {
	late := o.bus.Late()
	if delta := late - o.lateSeen; delta > 0 && o.metrics != nil {
		o.metrics.RecordLate(ctx, delta)
	}

	o.lateSeen = late
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
