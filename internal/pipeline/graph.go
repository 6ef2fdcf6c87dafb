// Package pipeline contains the graph that relays one source to many sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hydra-streaming/relay/internal/bus"
	"github.com/hydra-streaming/relay/internal/conf"
	"github.com/hydra-streaming/relay/internal/counters"
	"github.com/hydra-streaming/relay/internal/forwarder"
	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/stats"
	"github.com/hydra-streaming/relay/internal/transport"
)

const (
	rootName   = "pipeline"
	sourceName = "source"
)

// Sender sends messages to the control process.
type Sender interface {
	Send(payload []byte) error
	SendString(msg string) error
}

type sinkKind struct {
	spec conf.SinkSpec
	kind transport.Kind
}

// Graph is a source, a junction and one branch per sink.
type Graph struct {
	Pipeline      *conf.Pipeline
	QueueSize     int
	StatsInterval time.Duration
	WriteTimeout  time.Duration
	Sender        Sender
	Parent        logger.Writer

	ID uuid.UUID

	ctx       context.Context
	ctxCancel func()
	bus       *bus.Bus
	registry  *counters.Registry
	junction  *forwarder.Manager
	source    transport.Source
	sinks     []transport.Sink
	publisher *stats.Publisher

	mutex        sync.Mutex
	started      bool
	teardownOnce sync.Once

	sourceDone chan struct{}
	done       chan struct{}
}

// Initialize builds and links the graph.
// On failure, every element created so far is released.
func (g *Graph) Initialize() error {
	if g.Pipeline == nil {
		return ConfigError{Err: fmt.Errorf("pipeline is missing")}
	}

	if g.QueueSize <= 0 {
		g.QueueSize = 200
	}
	if g.StatsInterval <= 0 {
		g.StatsInterval = time.Second
	}

	sourceKind, err := transport.ParseKind(g.Pipeline.Source.Type, transport.RoleSource)
	if err != nil {
		return ConfigError{Err: fmt.Errorf("source: %w", err)}
	}

	sinkKinds := make([]sinkKind, len(g.Pipeline.Sinks))
	for i, spec := range g.Pipeline.Sinks {
		var k transport.Kind
		k, err = transport.ParseKind(spec.Type, transport.RoleSink)
		if err != nil {
			return ConfigError{Err: fmt.Errorf("sink %d: %w", i, err)}
		}
		sinkKinds[i] = sinkKind{spec: spec, kind: k}
	}

	g.ID = uuid.New()
	g.ctx, g.ctxCancel = context.WithCancel(context.Background())
	g.sourceDone = make(chan struct{})
	g.done = make(chan struct{})

	g.bus = &bus.Bus{
		Root:    rootName,
		Sender:  g.Sender,
		OnFatal: g.onFatal,
		Parent:  g,
	}
	g.bus.Initialize()

	err = g.build(sourceKind, sinkKinds)
	if err != nil {
		g.release()
		return err
	}

	err = g.bus.Transition(bus.StateLinked)
	if err != nil {
		g.release()
		return LinkError{Err: err}
	}

	g.publisher = &stats.Publisher{
		Interval: g.StatsInterval,
		Registry: g.registry,
		Source:   statsProvider(g.source),
		Sender:   g.Sender,
		Parent:   g,
	}
	g.publisher.Initialize()

	g.bus.Start()
	g.publisher.Start()

	g.Log(logger.Info, "graph %s built with source '%s' and %d sinks",
		g.ID, g.Pipeline.Source.Type, len(g.sinks))

	return nil
}

func (g *Graph) build(sourceKind transport.Kind, sinkKinds []sinkKind) error {
	src, err := transport.NewSource(sourceKind, g.elementParams(sourceName))
	if err != nil {
		return ConfigError{Err: err}
	}
	g.source = src

	applyProperties(src, transport.RoleSource, g.Pipeline.Source.Properties, g)
	transport.ConfigureSource(src)

	g.registry = &counters.Registry{SourceType: g.Pipeline.Source.Type}
	g.registry.Initialize()

	g.junction = &forwarder.Manager{
		QueueSize: g.QueueSize,
		Parent:    g,
	}
	err = g.junction.Initialize()
	if err != nil {
		return LinkError{Err: err}
	}

	for i, sk := range sinkKinds {
		err = g.buildBranch(i, sk)
		if err != nil {
			return err
		}
	}

	err = src.Prepare()
	if err != nil {
		return ConfigError{Err: fmt.Errorf("source: %w", err)}
	}

	sourceCounter := g.registry.Source()
	g.junction.AddProbe(func(buf *transport.Buffer) {
		sourceCounter.Add(len(buf.Data))
	})

	return nil
}

func (g *Graph) buildBranch(i int, sk sinkKind) error {
	name := fmt.Sprintf("sink%d", i)

	sink, err := transport.NewSink(sk.kind, g.elementParams(name))
	if err != nil {
		return ConfigError{Err: fmt.Errorf("sink %d: %w", i, err)}
	}
	g.sinks = append(g.sinks, sink)

	applyProperties(sink, transport.RoleSink, sk.spec.Properties, g)
	transport.ConfigureSink(sink)

	err = sink.Prepare()
	if err != nil {
		return ConfigError{Err: fmt.Errorf("sink %d: %w", i, err)}
	}

	f, err := g.junction.Link(sink, func(err error) {
		g.bus.Post(transport.Event{Type: transport.EventError, Origin: name, Err: err})
	})
	if err != nil {
		return LinkError{Err: fmt.Errorf("sink %d: %w", i, err)}
	}

	counter := g.registry.AddBranch(counters.Identity{
		ID:     sk.spec.DestinationID,
		Name:   sk.spec.DestinationName,
		Schema: sk.spec.DestinationSchema,
		Type:   sk.spec.Type,
	}, statsProvider(sink))

	f.AddProbe(func(buf *transport.Buffer) {
		counter.Add(len(buf.Data))
	})

	return nil
}

func (g *Graph) elementParams(name string) transport.Params {
	return transport.Params{
		Name:         name,
		WriteTimeout: g.WriteTimeout,
		Parent:       g,
		OnEvent:      g.bus.Post,
		Authenticate: g.bus.Authenticate,
	}
}

// release closes the elements of a graph that failed to build.
func (g *Graph) release() {
	if g.source != nil {
		g.source.Close()
	}
	for _, s := range g.sinks {
		s.Close()
	}
	g.ctxCancel()
	g.bus.Stop()
	g.teardownOnce.Do(func() {})
	close(g.sourceDone)
	close(g.done)
}

func statsProvider(e transport.Element) transport.StatsProvider {
	if sp, ok := e.(transport.StatsProvider); ok {
		return sp
	}
	return nil
}

// Log implements logger.Writer.
func (g *Graph) Log(level logger.Level, format string, args ...any) {
	g.Parent.Log(level, "[pipeline] "+format, args...)
}

// Start starts sinks, then the source, and moves the graph into StatePlaying.
func (g *Graph) Start() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.bus.State() != bus.StateLinked {
		return fmt.Errorf("graph is not ready to start (%s)", g.bus.State())
	}

	for i, s := range g.sinks {
		err := s.Start(g.ctx)
		if err != nil {
			err = fmt.Errorf("sink %d: %w", i, err)
			g.bus.Fail(err)
			return err
		}
	}

	err := g.source.Start(g.ctx)
	if err != nil {
		err = fmt.Errorf("source: %w", err)
		g.bus.Fail(err)
		return err
	}

	g.junction.Start()

	err = g.bus.Transition(bus.StatePlaying)
	if err != nil {
		return err
	}

	g.started = true
	go g.runSource()

	g.bus.Post(transport.Event{
		Type:   transport.EventStateChanged,
		Origin: rootName,
		State:  bus.StatePlaying.String(),
	})

	return nil
}

func (g *Graph) runSource() {
	defer close(g.sourceDone)

	err := g.source.Run(g.ctx, g.junction.Push)

	switch {
	case err == nil:

	case errors.Is(err, io.EOF):
		g.bus.Post(transport.Event{Type: transport.EventEOS, Origin: sourceName})

	default:
		g.bus.Post(transport.Event{Type: transport.EventError, Origin: sourceName, Err: err})
	}
}

func (g *Graph) onFatal(err error) {
	g.Log(logger.Error, "graph %s failed: %v", g.ID, err)
	go g.teardown()
}

func (g *Graph) teardown() {
	g.teardownOnce.Do(func() {
		g.publisher.Stop()
		g.ctxCancel()

		g.mutex.Lock()
		started := g.started
		g.mutex.Unlock()

		g.source.Close()
		if started {
			<-g.sourceDone
		}

		g.junction.Stop()
		for _, s := range g.sinks {
			s.Close()
		}

		g.bus.Stop()
		g.registry.Release()

		g.Log(logger.Info, "graph %s torn down (%s)", g.ID, g.bus.State())
		close(g.done)
	})
}

// Stop tears down the graph and waits for completion.
// Calling Stop more than once is a no-op.
func (g *Graph) Stop() {
	if g.bus == nil {
		return
	}

	g.bus.Transition(bus.StateStopped) //nolint:errcheck
	g.teardown()
	<-g.done
}

// Done returns a channel that is closed when the graph has been torn down.
func (g *Graph) Done() <-chan struct{} {
	return g.done
}

// Err returns the error that ended the graph, if any.
func (g *Graph) Err() error {
	return g.bus.Err()
}

// State returns the graph state.
func (g *Graph) State() bus.State {
	return g.bus.State()
}

// Source returns the source element.
func (g *Graph) Source() transport.Source {
	return g.source
}

// Sinks returns the sink elements.
func (g *Graph) Sinks() []transport.Sink {
	return g.sinks
}

// Totals returns lifetime byte totals without affecting report rates.
func (g *Graph) Totals() counters.Snapshot {
	return g.registry.Totals()
}

// BranchStats returns queue statistics of every branch.
func (g *Graph) BranchStats() []forwarder.Stats {
	return g.junction.GetStats()
}

// GraphID returns the graph instance ID.
func (g *Graph) GraphID() string {
	return g.ID.String()
}
