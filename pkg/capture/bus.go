package capture

import (
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// Bus routes samples from readers to the current Buffer.
//
// A sample belongs to the buffer that is current when Deliver acquires it.
// Cutover swaps the buffer under the write lock and then waits for deliveries
// already routed to the old buffer, so generations never overlap.
type Bus struct {
	mu      sync.RWMutex
	current *Buffer
	late    atomic.Int64
}

// NewBus creates a bus delivering into initial. A nil initial drops everything.
func NewBus(initial *Buffer) *Bus {
	return &Bus{current: initial}
}

// Deliver tags sample with the current generation and hands it to the current
// buffer. It reports false when no buffer is attached.
func (b *Bus) Deliver(sample stream.Sample) bool {
	b.mu.RLock()

	buf := b.current
	if buf == nil {
		b.mu.RUnlock()
		b.late.Add(1)

		return false
	}

	buf.inflight.Add(1)
	b.mu.RUnlock()

	defer buf.inflight.Done()

	sample.Generation = buf.generation
	buf.add(sample)

	return true
}

// Cutover makes next current and returns the previous buffer once every
// delivery routed to it has landed. The caller owns the returned buffer.
func (b *Bus) Cutover(next *Buffer) *Buffer {
	b.mu.Lock()
	prev := b.current
	b.current = next
	b.mu.Unlock()

	if prev != nil {
		prev.inflight.Wait()
	}

	return prev
}

// Current returns the buffer receiving deliveries, or nil.
func (b *Bus) Current() *Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.current
}

// Late returns how many samples arrived while no buffer was attached.
func (b *Bus) Late() int64 {
	return b.late.Load()
}
