// Package statusfeed fans out human-readable status lines to displays.
package statusfeed

import (
	"sync"
	"time"
)

// Defaults.
const (
	DefaultHistory    = 200
	subscriberBacklog = 64
)

// Level classifies a line for colouring.
type Level string

// Levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Line is one status entry.
type Line struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Feed keeps a bounded history and delivers new lines to subscribers.
// Slow subscribers miss lines rather than block publishers.
type Feed struct {
	mu      sync.Mutex
	history []Line
	limit   int
	subs    map[int]chan Line
	nextID  int
	now     func() time.Time
	dropped int
}

// New creates a feed keeping the last history lines. Zero uses DefaultHistory.
func New(history int) *Feed {
	if history <= 0 {
		history = DefaultHistory
	}

	return &Feed{limit: history, subs: make(map[int]chan Line), now: time.Now}
}

// Publish records a line and offers it to every subscriber.
func (f *Feed) Publish(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line := Line{Time: f.now(), Level: level, Message: message}

	f.history = append(f.history, line)
	if len(f.history) > f.limit {
		f.history = f.history[len(f.history)-f.limit:]
	}

	for _, ch := range f.subs {
		select {
		case ch <- line:
		default:
			f.dropped++
		}
	}
}

// Info, Warn and Error are shorthands for Publish.
func (f *Feed) Info(message string)  { f.Publish(LevelInfo, message) }
func (f *Feed) Warn(message string)  { f.Publish(LevelWarn, message) }
func (f *Feed) Error(message string) { f.Publish(LevelError, message) }

// Subscribe returns a channel of new lines and a cancel function that closes it.
func (f *Feed) Subscribe() (<-chan Line, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	ch := make(chan Line, subscriberBacklog)
	f.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()

			delete(f.subs, id)
			close(ch)
		})
	}
}

// Recent returns up to n of the latest lines, oldest first. n <= 0 returns all.
func (f *Feed) Recent(n int) []Line {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if n > 0 && n < len(f.history) {
		start = len(f.history) - n
	}

	out := make([]Line, len(f.history)-start)
	copy(out, f.history[start:])

	return out
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dropped
}
