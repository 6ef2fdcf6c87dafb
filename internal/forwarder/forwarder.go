// Package forwarder contains the junction that copies the source stream to every branch.
package forwarder

import (
	"context"
	"sync/atomic"

	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

// Probe observes a buffer passing through a data-flow point.
// It must not modify the buffer.
type Probe func(buf *transport.Buffer)

// Stats contains forwarder statistics.
type Stats struct {
	Index          int
	BuffersWritten uint64
	BuffersDropped uint64
	Queued         int
}

// Forwarder is a branch: a bounded queue drained into a sink.
// When the queue is full, new buffers are dropped so that
// a slow sink never stalls the junction.
type Forwarder struct {
	Index     int
	Sink      transport.Sink
	QueueSize int
	// OnError is called once when the sink fails.
	OnError func(error)
	Parent  logger.Writer

	ctx       context.Context
	ctxCancel func()
	queue     chan *transport.Buffer
	probes    []Probe
	written   atomic.Uint64
	dropped   atomic.Uint64

	done chan struct{}
}

// Initialize initializes a Forwarder.
func (f *Forwarder) Initialize() {
	f.ctx, f.ctxCancel = context.WithCancel(context.Background())
	f.queue = make(chan *transport.Buffer, f.QueueSize)
	f.done = make(chan struct{})
}

// Log implements logger.Writer.
func (f *Forwarder) Log(level logger.Level, format string, args ...any) {
	f.Parent.Log(level, "[branch %d] "+format, append([]any{f.Index}, args...)...)
}

// AddProbe attaches a probe to the queue output.
// Probes must be added before Start.
func (f *Forwarder) AddProbe(p Probe) {
	f.probes = append(f.probes, p)
}

// Start starts draining the queue.
func (f *Forwarder) Start() {
	go f.run()
}

// Push enqueues a buffer without blocking.
func (f *Forwarder) Push(buf *transport.Buffer) bool {
	select {
	case f.queue <- buf:
		return true
	default:
		if f.dropped.Add(1) == 1 {
			f.Log(logger.Warn, "queue is full, dropping buffers")
		}
		return false
	}
}

func (f *Forwarder) run() {
	defer close(f.done)

	for {
		select {
		case <-f.ctx.Done():
			return

		case buf := <-f.queue:
			for _, p := range f.probes {
				p(buf)
			}

			err := f.Sink.Write(buf)
			if err != nil {
				if f.ctx.Err() != nil {
					return
				}
				f.Log(logger.Error, "write failed: %v", err)
				if f.OnError != nil {
					f.OnError(err)
				}
				return
			}

			f.written.Add(1)
		}
	}
}

// Stop stops the forwarder and waits for the drain routine to exit.
// The sink is closed to unblock pending writes.
func (f *Forwarder) Stop(started bool) {
	f.ctxCancel()
	f.Sink.Close()
	if started {
		<-f.done
	}
}

// GetStats returns statistics.
func (f *Forwarder) GetStats() Stats {
	return Stats{
		Index:          f.Index,
		BuffersWritten: f.written.Load(),
		BuffersDropped: f.dropped.Load(),
		Queued:         len(f.queue),
	}
}
