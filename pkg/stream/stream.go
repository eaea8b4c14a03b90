// Package stream defines the contracts markrec consumes from a time-synchronized
// streaming layer: source descriptors, samples, resolvers, inlets and outlets.
package stream

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors reported by streaming-layer implementations.
var (
	// ErrTimeout indicates a pull returned no sample within its timeout.
	ErrTimeout = errors.New("stream pull timed out")
	// ErrSourceLost indicates the remote source disappeared.
	ErrSourceLost = errors.New("stream source lost")
	// ErrClosed indicates the inlet or outlet was closed locally.
	ErrClosed = errors.New("stream closed")
)

// KindMarkers is the stream kind for discrete event/marker streams.
const KindMarkers = "Markers"

// IrregularRate is the nominal rate of streams that push events on demand.
const IrregularRate = 0.0

// keySeparator joins a source name and origin ID into a key.
const keySeparator = "_"

// Status is the lifecycle state of a discovered source.
type Status string

const (
	// StatusAvailable marks a source that is visible on the network.
	StatusAvailable Status = "available"
	// StatusSelected marks a visible source the operator chose to capture.
	StatusSelected Status = "selected"
	// StatusDisconnected marks a source that was visible on the previous poll but is gone.
	StatusDisconnected Status = "disconnected"
)

// Key builds the unique source key from a stream name and origin ID.
func Key(name, originID string) string {
	return name + keySeparator + originID
}

// SourceDescriptor describes one stream as reported by the resolver.
type SourceDescriptor struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Kind         string  `json:"kind"`
	OriginID     string  `json:"origin_id"`
	Status       Status  `json:"status"`
	NominalRate  float64 `json:"nominal_rate"`
	ChannelCount int     `json:"channel_count"`
}

// NewDescriptor builds an available descriptor with its key derived from name and origin.
func NewDescriptor(name, kind, originID string, channels int, rate float64) SourceDescriptor {
	return SourceDescriptor{
		Key:          Key(name, originID),
		Name:         name,
		Kind:         kind,
		OriginID:     originID,
		Status:       StatusAvailable,
		NominalRate:  rate,
		ChannelCount: channels,
	}
}

// Irregular reports whether the source has no fixed sampling rate.
func (d SourceDescriptor) Irregular() bool {
	return d.NominalRate == IrregularRate
}

// Sample is one event pulled from a source. Samples are immutable once created.
type Sample struct {
	SourceKey  string   `json:"source_key"`
	Payload    []string `json:"sample"`
	Timestamp  float64  `json:"timestamp"`
	Generation uint64   `json:"generation,omitempty"`
}

// Message joins the payload channels into a single marker string.
func (s Sample) Message() string {
	return strings.Join(s.Payload, " ")
}

// DeviceClock returns the streaming layer's monotonic clock in seconds.
type DeviceClock func() float64

// Resolver discovers sources on the network.
type Resolver interface {
	// ResolveAll returns every source visible within the timeout.
	ResolveAll(ctx context.Context, timeout time.Duration) ([]SourceDescriptor, error)
	// ResolveByName returns the sources with the given name visible within the timeout.
	ResolveByName(ctx context.Context, name string, timeout time.Duration) ([]SourceDescriptor, error)
}

// Inlet receives samples from one source.
type Inlet interface {
	// Pull blocks for at most timeout. It returns ErrTimeout when no sample arrived.
	Pull(timeout time.Duration) (Sample, error)
	// Close releases the inlet.
	Close() error
}

// InletOpener opens inlets for resolved sources.
type InletOpener interface {
	Open(desc SourceDescriptor) (Inlet, error)
}

// Outlet publishes samples on the network.
type Outlet interface {
	// Push publishes one sample stamped with the current device clock.
	Push(payload ...string) error
	// Descriptor reports how the outlet appears to resolvers.
	Descriptor() SourceDescriptor
	// Close withdraws the outlet from the network.
	Close() error
}

// OutletFactory creates outlets.
type OutletFactory interface {
	CreateOutlet(name, kind, originID string, channels int, rate float64) (Outlet, error)
}
