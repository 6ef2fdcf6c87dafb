// Package bus contains the event bus that drives the graph state machine.
package bus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

const (
	queueSize = 64

	streamIDPrefix = "stats_source_stream_id:"
)

// Sender sends side-band messages to the control process.
type Sender interface {
	SendString(msg string) error
}

type message struct {
	event transport.Event

	// set for caller-connecting notifications.
	connecting bool
	remote     net.Addr
	streamID   string
}

// Bus consumes element notifications and owns the graph state.
type Bus struct {
	// name of the graph root. State changes of other origins are ignored.
	Root   string
	Sender Sender
	// OnFatal is called once when the graph fails, from the routine
	// that reported the failure. It must not block.
	OnFatal func(error)
	Parent  logger.Writer

	ctx       context.Context
	ctxCancel func()
	queue     chan message

	mutex   sync.Mutex
	state   State
	err     error
	started bool

	dropped atomic.Uint64

	done chan struct{}
}

// Initialize initializes a Bus.
func (b *Bus) Initialize() {
	b.ctx, b.ctxCancel = context.WithCancel(context.Background())
	b.queue = make(chan message, queueSize)
	b.state = StateBuilding
	b.done = make(chan struct{})
}

// Log implements logger.Writer.
func (b *Bus) Log(level logger.Level, format string, args ...any) {
	b.Parent.Log(level, "[bus] "+format, args...)
}

// Start starts the bus routine.
func (b *Bus) Start() {
	b.mutex.Lock()
	b.started = true
	b.mutex.Unlock()

	go b.run()
}

// Stop stops the bus routine and waits for it to exit.
// Pending messages are discarded.
func (b *Bus) Stop() {
	b.ctxCancel()

	b.mutex.Lock()
	started := b.started
	b.mutex.Unlock()

	if started {
		<-b.done
	}
}

// State returns the current state.
func (b *Bus) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Err returns the error that moved the graph into StateErrorStopped.
func (b *Bus) Err() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.err
}

// Transition moves the graph into another state.
// Moving a terminal graph into StateStopped is a no-op.
func (b *Bus) Transition(to State) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if to == StateStopped && b.state.Terminal() {
		return nil
	}

	if !canTransition(b.state, to) {
		return ErrInvalidTransition{From: b.state, To: to}
	}

	b.Log(logger.Debug, "state changed from %s to %s", b.state, to)
	b.state = to
	return nil
}

// Post queues an element notification. It can be called from any routine
// and never blocks. Errors are handled immediately and are never dropped.
// Other notifications are dropped when the queue is full.
func (b *Bus) Post(ev transport.Event) {
	if ev.Type == transport.EventError {
		b.handleError(ev)
		return
	}
	b.post(message{event: ev})
}

func (b *Bus) post(msg message) {
	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.queue <- msg:
	default:
		if b.dropped.Add(1) == 1 {
			b.Log(logger.Warn, "bus queue is full, dropping notifications")
		}
	}
}

// Dropped returns the number of notifications dropped because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Authenticate handles a caller that is connecting to the source.
// Every caller is accepted. The stream ID, when present, is forwarded
// to the control process by the bus routine.
func (b *Bus) Authenticate(remote net.Addr, streamID string) bool {
	b.post(message{connecting: true, remote: remote, streamID: streamID})
	return true
}

func (b *Bus) run() {
	defer close(b.done)

	for {
		select {
		case msg := <-b.queue:
			if msg.connecting {
				b.handleConnecting(msg)
			} else {
				b.handleEvent(msg.event)
			}

		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) handleConnecting(msg message) {
	b.Log(logger.Info, "caller connecting from %v (streamid: '%s')", msg.remote, msg.streamID)

	if msg.streamID == "" || b.Sender == nil {
		return
	}

	err := b.Sender.SendString(streamIDPrefix + msg.streamID)
	if err != nil {
		b.Log(logger.Warn, "unable to forward stream ID: %v", err)
	}
}

func (b *Bus) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventError:
		b.handleError(ev)

	case transport.EventWarning:
		b.Log(logger.Warn, "warning received from element %s: %v", ev.Origin, ev.Err)

	case transport.EventEOS:
		b.Log(logger.Info, "end of stream from element %s", ev.Origin)

	case transport.EventStateChanged:
		if ev.Origin != b.Root {
			return
		}
		b.Log(logger.Debug, "element %s changed state to %s", ev.Origin, ev.State)

	case transport.EventInfo:
		b.Log(logger.Info, "%s: %s", ev.Origin, ev.Info)
	}
}

func (b *Bus) handleError(ev transport.Event) {
	b.Log(logger.Error, "error received from element %s: %v", ev.Origin, ev.Err)
	b.Fail(fmt.Errorf("%s: %w", ev.Origin, ev.Err))
}

// Fail moves the graph into StateErrorStopped and calls OnFatal.
// It has no effect when the graph is not running.
func (b *Bus) Fail(err error) {
	b.mutex.Lock()
	if !canTransition(b.state, StateErrorStopped) {
		b.mutex.Unlock()
		return
	}
	b.Log(logger.Debug, "state changed from %s to %s", b.state, StateErrorStopped)
	b.state = StateErrorStopped
	b.err = err
	b.mutex.Unlock()

	if b.OnFatal != nil {
		b.OnFatal(err)
	}
}
