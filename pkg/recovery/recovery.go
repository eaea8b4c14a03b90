// Package recovery finds backups left behind by interrupted recordings and
// exports them.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/markrec/pkg/backup"
	"github.com/Sumatoshi-tech/markrec/pkg/export"
)

// recoveredSuffix is appended to a backup's stem to name the recovered recording.
const recoveredSuffix = "_recovered.xdf"

// ErrRecovery marks a per-file recovery failure.
var ErrRecovery = errors.New("recovery failed")

// Error describes the failure to recover one backup.
type Error struct {
	Path string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRecovery, e.Path, e.Err)
}

// Unwrap exposes both ErrRecovery and the cause.
func (e *Error) Unwrap() []error {
	return []error{ErrRecovery, e.Err}
}

// Candidate is a backup found on disk. Err is set when it cannot be read.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
	Samples int
	Err     error
}

// Outcome records what happened to one candidate.
type Outcome struct {
	Candidate Candidate
	Target    string
	Result    export.Result
	Skipped   bool
}

// Prompter confirms the recovery and chooses where each recording goes.
type Prompter interface {
	// Confirm is asked once for the whole batch.
	Confirm(ctx context.Context, candidates []Candidate) (bool, error)
	// Target returns the output path for c. An empty path skips c and keeps its backup.
	Target(ctx context.Context, c Candidate, suggested string) (string, error)
}

// AutoPrompter accepts every candidate at its suggested target.
type AutoPrompter struct{}

// Confirm implements Prompter.
func (AutoPrompter) Confirm(context.Context, []Candidate) (bool, error) {
	return true, nil
}

// Target implements Prompter.
func (AutoPrompter) Target(_ context.Context, _ Candidate, suggested string) (string, error) {
	return suggested, nil
}

// SuggestedTarget returns <dir>/<stem>_recovered.xdf for a backup path.
func SuggestedTarget(backupPath string) string {
	return filepath.Join(filepath.Dir(backupPath), backup.Stem(backupPath)+recoveredSuffix)
}

// Manager scans for and restores backups.
type Manager struct {
	exporter *export.Exporter
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// New creates a manager exporting through exporter.
func New(exporter *export.Exporter, opts ...Option) *Manager {
	m := &Manager{
		exporter: exporter,
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.exporter == nil {
		m.exporter = export.New(export.Options{Logger: m.logger, Tracer: m.tracer})
	}

	return m
}

// Scan lists the backups in dir. Unreadable backups are returned with Err set.
func (m *Manager) Scan(dir string) ([]Candidate, error) {
	paths, err := backup.Glob(dir)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(paths))

	for _, path := range paths {
		candidates = append(candidates, inspect(path))
	}

	return candidates, nil
}

func inspect(path string) Candidate {
	c := Candidate{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		c.Err = err

		return c
	}

	c.Size = info.Size()
	c.ModTime = info.ModTime()

	snap, err := backup.Load(path)
	if err != nil {
		c.Err = err

		return c
	}

	c.Samples = len(snap.RecordedData)

	return c
}

// Recover exports each confirmed candidate and deletes its backup on success.
// Failures are collected per file and returned joined; they do not stop the batch.
func (m *Manager) Recover(ctx context.Context, candidates []Candidate, prompter Prompter) ([]Outcome, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ctx, span := m.tracer.Start(ctx, "markrec.recovery",
		trace.WithAttributes(attribute.Int("markrec.recovery.candidates", len(candidates))))
	defer span.End()

	ok, err := prompter.Confirm(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: confirm: %w", ErrRecovery, err)
	}

	if !ok {
		m.logger.InfoContext(ctx, "recovery declined", "backups", len(candidates))

		return nil, nil
	}

	outcomes := make([]Outcome, 0, len(candidates))

	var errs []error

	for _, c := range candidates {
		outcome, recErr := m.recoverOne(ctx, c, prompter)
		if recErr != nil {
			m.logger.ErrorContext(ctx, "backup recovery failed", "path", c.Path, "error", recErr)
			errs = append(errs, &Error{Path: c.Path, Err: recErr})

			continue
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, errors.Join(errs...)
}

func (m *Manager) recoverOne(ctx context.Context, c Candidate, prompter Prompter) (Outcome, error) {
	outcome := Outcome{Candidate: c}

	if c.Err != nil {
		return outcome, c.Err
	}

	snap, err := backup.Load(c.Path)
	if err != nil {
		return outcome, err
	}

	target, err := prompter.Target(ctx, c, m.exporter.UniquePath(SuggestedTarget(c.Path), nil))
	if err != nil {
		return outcome, err
	}

	if target == "" {
		m.logger.InfoContext(ctx, "backup skipped", "path", c.Path)
		outcome.Skipped = true

		return outcome, nil
	}

	outcome.Target = target

	result, err := m.exporter.Export(ctx, snap.RecordedData, snap.Anchor(c.Path, c.ModTime), target)
	if err != nil && !errors.Is(err, export.ErrNothingToExport) {
		return outcome, err
	}

	outcome.Result = result

	err = backup.Remove(c.Path)
	if err != nil {
		return outcome, err
	}

	m.logger.InfoContext(ctx, "backup recovered",
		"path", c.Path, "target", target, "rows", result.Rows, "flagged", result.Flagged)

	return outcome, nil
}
