package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricSamplesTotal    = "markrec.samples.total"
	metricLateSamples     = "markrec.samples.late.total"
	metricBackupsTotal    = "markrec.backups.total"
	metricExportsTotal    = "markrec.exports.total"
	metricExportRows      = "markrec.export.rows"
	metricExportFlagged   = "markrec.export.flagged.total"
	metricFallbacksTotal  = "markrec.recorder.fallbacks.total"
	metricDiscoveryPolls  = "markrec.discovery.polls.total"
	metricDiscoveryErrors = "markrec.discovery.errors.total"

	attrSource = "source"
	attrFrom   = "from"
	attrTo     = "to"
)

// rowBucketBoundaries spans short marker sessions up to long continuous recordings.
var rowBucketBoundaries = []float64{1, 10, 100, 1000, 10000, 100000, 1000000}

// RecorderMetrics counts what the recording pipeline does. It satisfies the
// session and export metric hooks and provides a discovery poll hook.
type RecorderMetrics struct {
	samples         metric.Int64Counter
	late            metric.Int64Counter
	backups         metric.Int64Counter
	exports         metric.Int64Counter
	exportRows      metric.Float64Histogram
	exportFlagged   metric.Int64Counter
	fallbacks       metric.Int64Counter
	discoveryPolls  metric.Int64Counter
	discoveryErrors metric.Int64Counter
}

// NewRecorderMetrics creates the recording instruments from mt.
func NewRecorderMetrics(mt metric.Meter) (*RecorderMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &RecorderMetrics{
		samples:         b.counter(metricSamplesTotal, "Samples captured in-process", "{sample}"),
		late:            b.counter(metricLateSamples, "Samples delivered after their session closed", "{sample}"),
		backups:         b.counter(metricBackupsTotal, "Backup snapshot writes", "{backup}"),
		exports:         b.counter(metricExportsTotal, "Recording exports", "{export}"),
		exportRows:      b.histogram(metricExportRows, "Rows per exported recording", "{row}", rowBucketBoundaries...),
		exportFlagged:   b.counter(metricExportFlagged, "Exported rows with an implausible wall time", "{row}"),
		fallbacks:       b.counter(metricFallbacksTotal, "Switches from one recorder to another", "{fallback}"),
		discoveryPolls:  b.counter(metricDiscoveryPolls, "Stream discovery polls", "{poll}"),
		discoveryErrors: b.counter(metricDiscoveryErrors, "Failed stream discovery polls", "{error}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordSample counts one captured sample.
func (rm *RecorderMetrics) RecordSample(ctx context.Context, source string) {
	rm.samples.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSource, source)))
}

// RecordLate counts samples dropped after a cutover.
func (rm *RecorderMetrics) RecordLate(ctx context.Context, count int64) {
	rm.late.Add(ctx, count)
}

// RecordBackup counts a backup write.
func (rm *RecorderMetrics) RecordBackup(ctx context.Context, err error) {
	rm.backups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, outcome(err))))
}

// RecordFallback counts a recorder switch.
func (rm *RecorderMetrics) RecordFallback(ctx context.Context, from, to string) {
	rm.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}

// RecordExport counts an export and its size.
func (rm *RecorderMetrics) RecordExport(ctx context.Context, rows, flagged int, err error) {
	rm.exports.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, outcome(err))))

	if err != nil {
		return
	}

	rm.exportRows.Record(ctx, float64(rows))

	if flagged > 0 {
		rm.exportFlagged.Add(ctx, int64(flagged))
	}
}

// RecordPoll counts a discovery poll. Its signature matches discovery.WithPollHook.
func (rm *RecorderMetrics) RecordPoll(ctx context.Context, err error) {
	rm.discoveryPolls.Add(ctx, 1)

	if err != nil {
		rm.discoveryErrors.Add(ctx, 1)
	}
}

func outcome(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusOK
}
