// Package capture moves samples from per-source readers into a single-writer
// session buffer and hands the buffer over atomically when a session splits.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

// inboxSize bounds how far readers may run ahead of the aggregator.
const inboxSize = 256

// BufferOptions configures a Buffer.
type BufferOptions struct {
	// BackupEvery fires OnBackup whenever the sample count reaches a multiple of it.
	// Zero disables backups.
	BackupEvery int

	// OnBackup receives a copy of every sample collected so far. It runs on the
	// aggregator goroutine, so sample intake pauses while it runs.
	OnBackup func(samples []stream.Sample)

	// OnSample observes each accepted sample.
	OnSample func(sample stream.Sample)
}

// Buffer owns the samples of one capture generation. A single aggregator
// goroutine appends to it; everything else talks to it through channels.
type Buffer struct {
	generation uint64
	opts       BufferOptions

	inbox    chan stream.Sample
	requests chan chan []stream.Sample
	done     chan struct{}
	result   []stream.Sample

	count     atomic.Int64
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// NewBuffer starts the aggregator for generation.
func NewBuffer(generation uint64, opts BufferOptions) *Buffer {
	buf := &Buffer{
		generation: generation,
		opts:       opts,
		inbox:      make(chan stream.Sample, inboxSize),
		requests:   make(chan chan []stream.Sample),
		done:       make(chan struct{}),
	}

	go buf.run()

	return buf
}

// Generation returns the generation every sample in this buffer is tagged with.
func (b *Buffer) Generation() uint64 {
	return b.generation
}

// Count returns the number of samples accepted so far.
func (b *Buffer) Count() int {
	return int(b.count.Load())
}

// Snapshot returns a copy of the samples collected so far.
func (b *Buffer) Snapshot() []stream.Sample {
	reply := make(chan []stream.Sample, 1)

	select {
	case b.requests <- reply:
		return <-reply
	case <-b.done:
		return cloneSamples(b.result)
	}
}

// Close stops the aggregator and returns every collected sample. Only call it
// once no more deliveries can reach the buffer; Bus.Cutover guarantees that.
func (b *Buffer) Close() []stream.Sample {
	b.closeOnce.Do(func() {
		close(b.inbox)
	})

	<-b.done

	return cloneSamples(b.result)
}

func (b *Buffer) add(sample stream.Sample) {
	b.inbox <- sample
}

func (b *Buffer) run() {
	var samples []stream.Sample

	for {
		select {
		case sample, ok := <-b.inbox:
			if !ok {
				b.result = samples
				close(b.done)

				return
			}

			samples = append(samples, sample)
			b.count.Add(1)

			if b.opts.OnSample != nil {
				b.opts.OnSample(sample)
			}

			if b.opts.BackupEvery > 0 && b.opts.OnBackup != nil && len(samples)%b.opts.BackupEvery == 0 {
				b.opts.OnBackup(cloneSamples(samples))
			}
		case reply := <-b.requests:
			reply <- cloneSamples(samples)
		}
	}
}

func cloneSamples(samples []stream.Sample) []stream.Sample {
	out := make([]stream.Sample, len(samples))
	copy(out, samples)

	return out
}
