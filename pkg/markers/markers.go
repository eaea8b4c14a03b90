// Package markers publishes markrec's own marker streams and formats the
// messages sent on them.
package markers

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/safeconv"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Own outlet identities.
const (
	TextLoggerName     = "TextLogger"
	TextLoggerOrigin   = "textlogger_001"
	EventBoardName     = "EventBoard"
	EventBoardOrigin   = "eventboard_001"
	WhisperLoggerName  = "WhisperLiveLogger"
	eventFieldSep      = "|"
	toggleStartSuffix  = "_START"
	toggleEndSuffix    = "_END"
	eventTimestampForm = "2006-01-02T15:04:05.000000"
)

// Status marker prefixes emitted by the recording session.
const (
	StatusAutoStarted = "RECORDING_AUTO_STARTED"
	StatusStopped     = "RECORDING_STOPPED"
	StatusSplit       = "RECORDING_SPLIT_NEW_FILE"
)

// ErrOutletUnavailable indicates the outlet was never created or is closed.
var ErrOutletUnavailable = errors.New("marker outlet unavailable")

// OwnNames lists the stream names auto-selection treats as markrec's own.
func OwnNames() []string {
	return []string{TextLoggerName, EventBoardName, WhisperLoggerName}
}

// StatusMessage formats a session status marker.
func StatusMessage(status, detail string) string {
	return status + ": " + detail
}

// Publisher owns the TextLogger and EventBoard outlets.
type Publisher struct {
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	textLogger stream.Outlet
	eventBoard stream.Outlet
}

// NewPublisher creates both outlets on factory. An outlet that cannot be
// created is logged and left nil; sends on it return ErrOutletUnavailable.
func NewPublisher(factory stream.OutletFactory, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	pub := &Publisher{logger: logger, now: time.Now}

	out, err := factory.CreateOutlet(TextLoggerName, stream.KindMarkers, TextLoggerOrigin, 1, stream.IrregularRate)
	if err != nil {
		logger.Warn("could not create text logger outlet", "error", err)
	} else {
		pub.textLogger = out
	}

	out, err = factory.CreateOutlet(EventBoardName, stream.KindMarkers, EventBoardOrigin, 1, stream.IrregularRate)
	if err != nil {
		logger.Warn("could not create event board outlet", "error", err)
	} else {
		pub.eventBoard = out
	}

	return pub
}

// Log publishes a free-text marker on TextLogger.
func (p *Publisher) Log(message string) error {
	p.mu.Lock()
	out := p.textLogger
	p.mu.Unlock()

	return push(out, TextLoggerName, message)
}

// Event publishes an instantaneous EventBoard event that happened offset ago.
func (p *Publisher) Event(event, label string, offset time.Duration) (string, error) {
	msg := FormatEvent(event, label, p.now().Add(-offset), nil)

	return msg, p.pushEvent(msg)
}

// Toggle publishes the start or end of a toggled EventBoard event.
func (p *Publisher) Toggle(event, label string, on bool, offset time.Duration) (string, error) {
	suffix := toggleEndSuffix
	if on {
		suffix = toggleStartSuffix
	}

	msg := FormatEvent(event+suffix, label, p.now().Add(-offset), &on)

	return msg, p.pushEvent(msg)
}

// Close withdraws both outlets.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	for _, out := range []stream.Outlet{p.textLogger, p.eventBoard} {
		if out == nil {
			continue
		}

		err := out.Close()
		if err != nil && !errors.Is(err, stream.ErrClosed) {
			errs = append(errs, err)
		}
	}

	p.textLogger, p.eventBoard = nil, nil

	return errors.Join(errs...)
}

func (p *Publisher) pushEvent(msg string) error {
	p.mu.Lock()
	out := p.eventBoard
	p.mu.Unlock()

	return push(out, EventBoardName, msg)
}

func push(out stream.Outlet, name, msg string) error {
	if out == nil {
		return fmt.Errorf("%w: %s", ErrOutletUnavailable, name)
	}

	err := out.Push(msg)
	if err != nil {
		return fmt.Errorf("push %s: %w", name, err)
	}

	return nil
}

// FormatEvent renders an EventBoard message:
// <event>|<label>|<timestamp>[|TOGGLE:<True|False>].
func FormatEvent(event, label string, at time.Time, toggle *bool) string {
	fields := []string{event, label, at.Format(eventTimestampForm)}

	if toggle != nil {
		state := "False"
		if *toggle {
			state = "True"
		}

		fields = append(fields, "TOGGLE:"+state)
	}

	return strings.Join(fields, eventFieldSep)
}

var offsetPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([smh]?)$`)

// ParseTimeOffset converts "5s", "2m", "1h" or a bare number of seconds into a
// duration. Empty or malformed input yields zero.
func ParseTimeOffset(text string) time.Duration {
	match := offsetPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if match == nil {
		return 0
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}

	unit := time.Second

	switch match[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}

	return safeconv.SecondsToDuration(value * unit.Seconds())
}
