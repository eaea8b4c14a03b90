// Package discovery polls the streaming layer for sources and reports what
// appeared and disappeared between polls.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Default polling parameters.
const (
	DefaultInterval    = 2 * time.Second
	DefaultTimeout     = time.Second
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 30 * time.Second
	DefaultMaxFailures = 5

	// stopTimeout bounds how long Stop waits for the poll loop.
	stopTimeout = 2 * time.Second

	// pollGrace is added to the resolver timeout to form the poll deadline.
	pollGrace = time.Second
)

// Sentinel errors.
var (
	// ErrDiscovery indicates a poll failed.
	ErrDiscovery = errors.New("stream discovery failed")
	// ErrDegraded indicates continuous discovery disabled itself after repeated failures.
	ErrDegraded = errors.New("stream discovery stopped due to repeated errors")
	// ErrAlreadyRunning indicates continuous discovery is already active.
	ErrAlreadyRunning = errors.New("continuous discovery already running")
)

// Config holds polling parameters.
type Config struct {
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxFailures int
}

// DefaultConfig returns the standard polling parameters.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
		MaxFailures: DefaultMaxFailures,
	}
}

// Backoff returns the wait after the given number of consecutive failures:
// base doubled per failure, capped at max.
func (c Config) Backoff(failures int) time.Duration {
	delay := c.BackoffBase

	for i := 1; i < failures && delay < c.BackoffMax; i++ {
		delay *= 2
	}

	return min(delay, c.BackoffMax)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDegradedHandler is called once when continuous discovery gives up.
func WithDegradedHandler(fn func(error)) Option {
	return func(s *Service) {
		s.onDegraded = fn
	}
}

// WithPollHook observes every poll result; err is nil on success.
func WithPollHook(fn func(ctx context.Context, err error)) Option {
	return func(s *Service) {
		s.onPoll = fn
	}
}

// Service maintains the current catalog.
type Service struct {
	resolver   stream.Resolver
	cfg        Config
	logger     *slog.Logger
	onDegraded func(error)
	onPoll     func(context.Context, error)

	pollMu  sync.Mutex
	mu      sync.RWMutex
	catalog Catalog
	subs    []func(Change)

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	degraded bool
}

// New creates a service with an empty catalog.
func New(resolver stream.Resolver, cfg Config, opts ...Option) *Service {
	svc := &Service{
		resolver: resolver,
		cfg:      cfg,
		logger:   slog.Default(),
		catalog:  NewCatalog(nil),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Catalog returns the latest snapshot.
func (s *Service) Catalog() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.catalog
}

// Subscribe registers fn for every catalog change, manual or continuous.
func (s *Service) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, fn)
}

// DiscoverOnce performs one bounded poll, replaces the catalog and notifies
// subscribers when it changed. It works whether or not continuous mode runs.
func (s *Service) DiscoverOnce(ctx context.Context, timeout time.Duration) (Change, error) {
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, timeout+pollGrace)
	defer cancel()

	descs, err := s.resolver.ResolveAll(pollCtx, timeout)
	if s.onPoll != nil {
		s.onPoll(ctx, err)
	}

	if err != nil {
		return Change{}, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	next := NewCatalog(descs)

	s.mu.Lock()
	change := Diff(s.catalog, next)
	s.catalog = next
	subs := append([]func(Change){}, s.subs...)
	s.mu.Unlock()

	if change.Changed() {
		for _, fn := range subs {
			fn(change)
		}
	}

	return change, nil
}

// StartContinuous polls every interval on a single background goroutine.
// onChanged, when non-nil, receives changes detected by the loop.
func (s *Service) StartContinuous(ctx context.Context, interval time.Duration, onChanged func(Change)) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
			s.cancel()
		default:
			return ErrAlreadyRunning
		}
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done
	s.degraded = false

	go s.loop(loopCtx, interval, onChanged, done)

	return nil
}

// Running reports whether continuous discovery is active.
func (s *Service) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Degraded reports whether continuous discovery gave up.
func (s *Service) Degraded() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	return s.degraded
}

// Stop cancels continuous discovery and waits a bounded time for it to exit.
func (s *Service) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.logger.Warn("discovery loop did not stop in time", "timeout", stopTimeout)
	}
}

func (s *Service) loop(ctx context.Context, interval time.Duration, onChanged func(Change), done chan struct{}) {
	defer close(done)

	defer func() {
		if r := recover(); r != nil {
			s.degrade(ctx, fmt.Errorf("%w: panic: %v", ErrDegraded, r))
		}
	}()

	failures := 0
	timer := time.NewTimer(0)

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		change, err := s.DiscoverOnce(ctx, s.cfg.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures++

			s.logger.WarnContext(ctx, "discovery poll failed", "failures", failures, "error", err)

			if failures >= s.maxFailures() {
				s.degrade(ctx, fmt.Errorf("%w: %w", ErrDegraded, err))

				return
			}

			timer.Reset(s.cfg.Backoff(failures))

			continue
		}

		failures = 0

		if change.Changed() && onChanged != nil {
			onChanged(change)
		}

		timer.Reset(interval)
	}
}

func (s *Service) maxFailures() int {
	if s.cfg.MaxFailures <= 0 {
		return DefaultMaxFailures
	}

	return s.cfg.MaxFailures
}

func (s *Service) degrade(ctx context.Context, err error) {
	s.runMu.Lock()
	s.degraded = true
	s.runMu.Unlock()

	s.logger.ErrorContext(ctx, "continuous discovery disabled", "error", err)

	if s.onDegraded != nil {
		s.onDegraded(err)
	}
}
