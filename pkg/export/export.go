// Package export turns a finished recording buffer into the primary artifact
// and a CSV sidecar with wall-clock timestamps.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/markrec/pkg/clocksync"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Sentinel errors.
var (
	// ErrExport indicates the artifact or sidecar could not be written.
	ErrExport = errors.New("export failed")
	// ErrNothingToExport indicates an empty buffer; no files are written.
	ErrNothingToExport = errors.New("no samples to export")
)

// Metrics observes export outcomes.
type Metrics interface {
	RecordExport(ctx context.Context, rows, flagged int, err error)
}

// Options configures an Exporter. Zero values use defaults.
type Options struct {
	Writer   ArtifactWriter
	Location *time.Location
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  Metrics
}

// Result describes a completed export.
type Result struct {
	ArtifactPath string
	SidecarPath  string
	// FlaggedPath is set when samples preceded the anchor.
	FlaggedPath  string
	Rows         int
	Flagged      int
}

// Exporter writes session outputs.
type Exporter struct {
	writer   ArtifactWriter
	location *time.Location
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  Metrics
}

// New creates an exporter.
func New(opts Options) *Exporter {
	exp := &Exporter{
		writer:   opts.Writer,
		location: opts.Location,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		metrics:  opts.Metrics,
	}

	if exp.writer == nil {
		exp.writer = NewYAMLWriter(false)
	}

	if exp.location == nil {
		exp.location = time.Local
	}

	if exp.logger == nil {
		exp.logger = slog.Default()
	}

	if exp.tracer == nil {
		exp.tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return exp
}

// Export writes the artifact and sidecar for samples recorded against anchor.
func (e *Exporter) Export(
	ctx context.Context, samples []stream.Sample, anchor clocksync.Anchor, outputPath string,
) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "markrec.export",
		trace.WithAttributes(attribute.Int("markrec.export.samples", len(samples))))
	defer span.End()

	result, err := e.export(ctx, samples, anchor, outputPath)

	if e.metrics != nil {
		e.metrics.RecordExport(ctx, result.Rows, result.Flagged, err)
	}

	if err != nil && !errors.Is(err, ErrNothingToExport) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return result, err
}

// Taken reports whether any file an export to outputPath would write
// already exists.
func (e *Exporter) Taken(outputPath string) bool {
	for _, path := range []string{e.writer.Path(outputPath), SidecarPath(outputPath), FlaggedPath(outputPath)} {
		_, err := os.Stat(path)
		if !errors.Is(err, os.ErrNotExist) {
			return true
		}
	}

	return false
}

// UniquePath returns outputPath, or the first of <stem>_1<ext>, <stem>_2<ext>,
// ... that Taken does not report and skip does not reject.
func (e *Exporter) UniquePath(outputPath string, skip func(string) bool) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)

	for n := 0; ; n++ {
		path := outputPath
		if n > 0 {
			path = base + "_" + strconv.Itoa(n) + ext
		}

		if e.Taken(path) || (skip != nil && skip(path)) {
			continue
		}

		return path
	}
}

func (e *Exporter) export(
	ctx context.Context, samples []stream.Sample, anchor clocksync.Anchor, outputPath string,
) (Result, error) {
	if len(samples) == 0 {
		e.logger.WarnContext(ctx, "no data to export", "output", outputPath)

		return Result{}, ErrNothingToExport
	}

	rows, flagged := BuildRows(samples, anchor, e.location)

	for _, sample := range flagged {
		e.logger.WarnContext(ctx, "sample precedes session anchor",
			"source", sample.SourceKey, "timestamp", sample.Timestamp, "anchor", anchor.Device,
			"message", sample.Message())
	}

	result := Result{Rows: len(rows), Flagged: len(flagged)}

	artifactPath, err := e.writer.WriteArtifact(outputPath, buildArtifact(rows, anchor))
	if err != nil {
		return result, fmt.Errorf("%w: artifact: %w", ErrExport, err)
	}

	result.ArtifactPath = artifactPath
	result.SidecarPath = SidecarPath(outputPath)

	err = WriteSidecar(result.SidecarPath, rows)
	if err != nil {
		return result, fmt.Errorf("%w: sidecar: %w", ErrExport, err)
	}

	if len(flagged) > 0 {
		flaggedPath := FlaggedPath(outputPath)

		err = WriteSidecar(flaggedPath, FlaggedRows(flagged, anchor, e.location))
		if err != nil {
			return result, fmt.Errorf("%w: flagged samples: %w", ErrExport, err)
		}

		result.FlaggedPath = flaggedPath
	}

	e.logger.InfoContext(ctx, "export complete",
		"artifact", result.ArtifactPath, "sidecar", result.SidecarPath, "rows", result.Rows, "flagged", result.Flagged)

	return result, nil
}

func buildArtifact(rows []Row, anchor clocksync.Anchor) Artifact {
	artifact := Artifact{
		Start:       anchor.Wall,
		DeviceStart: anchor.Device,
		Events:      make([]Event, 0, len(rows)),
	}

	seen := make(map[string]bool)

	for _, row := range rows {
		artifact.Events = append(artifact.Events, Event{
			Description: row.Message,
			Source:      row.Source,
			Onset:       row.Offset,
		})

		if !seen[row.Source] {
			seen[row.Source] = true
			artifact.Sources = append(artifact.Sources, row.Source)
		}
	}

	if len(rows) > 0 {
		artifact.Duration = rows[len(rows)-1].Offset
	}

	return artifact
}
