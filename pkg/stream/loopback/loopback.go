// Package loopback implements the streaming contracts in-process. It carries
// markrec's own outlets when no network streaming layer is linked in and backs
// the package tests.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Sentinel errors.
var (
	// ErrDuplicateOutlet indicates an outlet with the same key already exists.
	ErrDuplicateOutlet = errors.New("outlet already exists")
	// ErrUnknownSource indicates the descriptor does not match a live outlet.
	ErrUnknownSource = errors.New("unknown source")
	// ErrResolveFailed is returned by injected resolve failures.
	ErrResolveFailed = errors.New("resolve failed")
)

// Network is an in-process streaming layer. The zero value is not usable; use NewNetwork.
type Network struct {
	mu       sync.Mutex
	outlets  map[string]*Outlet
	clock    stream.DeviceClock
	failNext int
}

// Option configures a Network.
type Option func(*Network)

// WithClock overrides the device clock.
func WithClock(clock stream.DeviceClock) Option {
	return func(n *Network) {
		n.clock = clock
	}
}

// NewNetwork creates an empty network whose device clock counts seconds since creation.
func NewNetwork(opts ...Option) *Network {
	start := time.Now()

	n := &Network{
		outlets: make(map[string]*Outlet),
		clock: func() float64 {
			return time.Since(start).Seconds()
		},
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// LocalClock returns the current device clock reading.
func (n *Network) LocalClock() float64 {
	return n.clock()
}

// FailNext makes the next count resolve calls fail.
func (n *Network) FailNext(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.failNext = count
}

// CreateOutlet publishes a new outlet.
func (n *Network) CreateOutlet(name, kind, originID string, channels int, rate float64) (stream.Outlet, error) {
	return n.NewOutlet(name, kind, originID, channels, rate)
}

// NewOutlet is CreateOutlet returning the concrete type, which also supports PushAt.
func (n *Network) NewOutlet(name, kind, originID string, channels int, rate float64) (*Outlet, error) {
	desc := stream.NewDescriptor(name, kind, originID, channels, rate)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.outlets[desc.Key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOutlet, desc.Key)
	}

	out := &Outlet{network: n, desc: desc}
	n.outlets[desc.Key] = out

	return out, nil
}

// ResolveAll lists every live outlet sorted by key.
func (n *Network) ResolveAll(ctx context.Context, _ time.Duration) ([]stream.SourceDescriptor, error) {
	return n.resolve(ctx, func(stream.SourceDescriptor) bool { return true })
}

// ResolveByName lists the live outlets with the given name.
func (n *Network) ResolveByName(ctx context.Context, name string, _ time.Duration) ([]stream.SourceDescriptor, error) {
	return n.resolve(ctx, func(d stream.SourceDescriptor) bool { return d.Name == name })
}

func (n *Network) resolve(ctx context.Context, match func(stream.SourceDescriptor) bool) ([]stream.SourceDescriptor, error) {
	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failNext > 0 {
		n.failNext--

		return nil, ErrResolveFailed
	}

	descs := make([]stream.SourceDescriptor, 0, len(n.outlets))

	for _, out := range n.outlets {
		if match(out.desc) {
			descs = append(descs, out.desc)
		}
	}

	sort.Slice(descs, func(i, j int) bool { return descs[i].Key < descs[j].Key })

	return descs, nil
}

// Open subscribes a new inlet to the outlet matching desc.Key.
func (n *Network) Open(desc stream.SourceDescriptor) (stream.Inlet, error) {
	n.mu.Lock()
	out, ok := n.outlets[desc.Key]
	n.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, desc.Key)
	}

	in := &Inlet{notify: make(chan struct{}, 1)}
	out.subscribe(in)

	return in, nil
}

func (n *Network) remove(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.outlets, key)
}

// Outlet is a loopback outlet.
type Outlet struct {
	network *Network
	desc    stream.SourceDescriptor

	mu     sync.Mutex
	inlets []*Inlet
	closed bool
}

// Descriptor returns the outlet's descriptor.
func (o *Outlet) Descriptor() stream.SourceDescriptor {
	return o.desc
}

// Push publishes a sample stamped with the network clock.
func (o *Outlet) Push(payload ...string) error {
	return o.PushAt(o.network.clock(), payload...)
}

// PushAt publishes a sample with an explicit device timestamp.
func (o *Outlet) PushAt(ts float64, payload ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return stream.ErrClosed
	}

	values := make([]string, len(payload))
	copy(values, payload)

	sample := stream.Sample{SourceKey: o.desc.Key, Payload: values, Timestamp: ts}

	for _, in := range o.inlets {
		in.enqueue(sample)
	}

	return nil
}

// Close withdraws the outlet. Subscribed inlets drain their queue and then report ErrSourceLost.
func (o *Outlet) Close() error {
	o.mu.Lock()

	if o.closed {
		o.mu.Unlock()

		return nil
	}

	o.closed = true
	inlets := o.inlets
	o.inlets = nil
	o.mu.Unlock()

	o.network.remove(o.desc.Key)

	for _, in := range inlets {
		in.markLost()
	}

	return nil
}

func (o *Outlet) subscribe(in *Inlet) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		in.markLost()

		return
	}

	o.inlets = append(o.inlets, in)
}

// Inlet is a loopback inlet backed by an unbounded queue.
type Inlet struct {
	mu     sync.Mutex
	queue  []stream.Sample
	notify chan struct{}
	lost   bool
	closed bool
}

// Pull returns the next queued sample, waiting at most timeout.
func (in *Inlet) Pull(timeout time.Duration) (stream.Sample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		sample, ready, err := in.take()
		if ready {
			return sample, err
		}

		select {
		case <-in.notify:
		case <-timer.C:
			return stream.Sample{}, stream.ErrTimeout
		}
	}
}

// Close releases the inlet.
func (in *Inlet) Close() error {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()

	in.wake()

	return nil
}

func (in *Inlet) take() (stream.Sample, bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch {
	case in.closed:
		return stream.Sample{}, true, stream.ErrClosed
	case len(in.queue) > 0:
		sample := in.queue[0]
		in.queue = in.queue[1:]

		return sample, true, nil
	case in.lost:
		return stream.Sample{}, true, stream.ErrSourceLost
	default:
		return stream.Sample{}, false, nil
	}
}

func (in *Inlet) enqueue(sample stream.Sample) {
	in.mu.Lock()
	in.queue = append(in.queue, sample)
	in.mu.Unlock()

	in.wake()
}

func (in *Inlet) markLost() {
	in.mu.Lock()
	in.lost = true
	in.mu.Unlock()

	in.wake()
}

func (in *Inlet) wake() {
	select {
	case in.notify <- struct{}{}:
	default:
	}
}
