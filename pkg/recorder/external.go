package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// External defaults.
const (
	DefaultExternalBinary = "LabRecorderCLI"
	DefaultStopTimeout    = 5 * time.Second

	// logSuffix names the file receiving the process's stderr.
	logSuffix = ".recorder.log"
)

// ErrNotRecording indicates Stop or Split was called without a running process.
var ErrNotRecording = errors.New("external recorder not running")

// ExternalConfig configures the external recorder.
type ExternalConfig struct {
	// Binary is the executable name or path.
	Binary string
	// StopTimeout bounds the wait after asking the process to finish.
	StopTimeout time.Duration
}

// External drives a LabRecorderCLI-compatible process: it is started with the
// output path followed by one stream query per source and finishes its file
// when a newline arrives on stdin.
type External struct {
	cfg    ExternalConfig
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	logFile *os.File
	exited  chan struct{}
	exitErr error
}

// NewExternal creates an external recorder.
func NewExternal(cfg ExternalConfig, logger *slog.Logger) *External {
	if cfg.Binary == "" {
		cfg.Binary = DefaultExternalBinary
	}

	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &External{cfg: cfg, logger: logger}
}

// Name implements Recorder.
func (e *External) Name() string {
	return "external:" + e.cfg.Binary
}

// Available reports whether the binary can be found.
func (e *External) Available() bool {
	_, err := exec.LookPath(e.cfg.Binary)

	return err == nil
}

// Start implements Recorder.
func (e *External) Start(ctx context.Context, outputPath string, sources []stream.SourceDescriptor) error {
	path, err := exec.LookPath(e.cfg.Binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, e.cfg.Binary, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running() {
		return fmt.Errorf("%w: already recording", ErrRecorderStart)
	}

	cmd := exec.Command(path, QueryArgs(outputPath, sources)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	logFile, err := os.Create(outputPath + logSuffix)
	if err == nil {
		cmd.Stderr = logFile
		cmd.Stdout = logFile
	}

	err = cmd.Start()
	if err != nil {
		closeQuietly(logFile)

		return fmt.Errorf("start %s: %w", e.cfg.Binary, err)
	}

	exited := make(chan struct{})

	e.cmd, e.stdin, e.logFile, e.exited, e.exitErr = cmd, stdin, logFile, exited, nil

	go func() {
		waitErr := cmd.Wait()

		e.mu.Lock()
		e.exitErr = waitErr
		e.mu.Unlock()

		close(exited)
	}()

	e.logger.InfoContext(ctx, "external recorder started", "binary", path, "output", outputPath, "sources", len(sources))

	return nil
}

// Split implements Recorder by finishing the current file and starting a new one.
func (e *External) Split(ctx context.Context, outputPath string, sources []stream.SourceDescriptor) error {
	err := e.Stop(ctx)
	if err != nil {
		return err
	}

	return e.Start(ctx, outputPath, sources)
}

// Stop implements Recorder.
func (e *External) Stop(ctx context.Context) error {
	e.mu.Lock()
	cmd, stdin, logFile, exited := e.cmd, e.stdin, e.logFile, e.exited
	e.cmd, e.stdin, e.logFile = nil, nil, nil
	e.mu.Unlock()

	if cmd == nil {
		return ErrNotRecording
	}

	defer closeQuietly(logFile)

	_, writeErr := io.WriteString(stdin, "\n")
	closeErr := stdin.Close()

	if writeErr != nil || closeErr != nil {
		e.logger.WarnContext(ctx, "could not signal external recorder", "error", errors.Join(writeErr, closeErr))
	}

	select {
	case <-exited:
		return nil
	case <-time.After(e.cfg.StopTimeout):
	case <-ctx.Done():
	}

	e.logger.WarnContext(ctx, "external recorder did not finish, killing", "timeout", e.cfg.StopTimeout)

	err := cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill external recorder: %w", err)
	}

	<-exited

	return nil
}

// IsRecording implements Recorder.
func (e *External) IsRecording() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.running(), nil
}

// ExitErr returns the last process exit error.
func (e *External) ExitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.exitErr
}

func (e *External) running() bool {
	if e.cmd == nil {
		return false
	}

	select {
	case <-e.exited:
		return false
	default:
		return true
	}
}

// QueryArgs builds the recorder's command line: the output path followed by
// one query per source.
func QueryArgs(outputPath string, sources []stream.SourceDescriptor) []string {
	args := make([]string, 0, len(sources)+1)
	args = append(args, outputPath)

	for _, src := range sources {
		args = append(args, fmt.Sprintf("name='%s' and source_id='%s'", src.Name, src.OriginID))
	}

	return args
}

func closeQuietly(file *os.File) {
	if file != nil {
		_ = file.Close()
	}
}
