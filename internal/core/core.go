// Package core contains the main process routine.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hydra-streaming/relay/internal/bus"
	"github.com/hydra-streaming/relay/internal/conf"
	"github.com/hydra-streaming/relay/internal/confwatcher"
	"github.com/hydra-streaming/relay/internal/control"
	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/metrics"
	"github.com/hydra-streaming/relay/internal/pipeline"
)

const (
	controlConnectTimeout = 10 * time.Second
	routeIDPrefix         = "route_id:"
)

var cli struct {
	Version  bool   `help:"print version"`
	RouteID  string `arg:"" optional:"" help:"routing identifier forwarded to the control process"`
	Conf     string `help:"path to the configuration file" type:"path"`
	Pipeline string `help:"path to the pipeline document. When missing, it is read from stdin" type:"path"`
}

// Core is the process-scoped context. Resources are created in this order:
// logger, control channel, route ID, pipeline document, metrics, graph, watcher.
// They are closed in reverse order.
type Core struct {
	ctx       context.Context
	ctxCancel func()
	conf      *conf.Conf
	routeID   string
	pipePath  string
	stdin     io.Reader

	logger      *logger.Logger
	control     *control.Channel
	metrics     *metrics.Metrics
	confWatcher *confwatcher.ConfWatcher

	mutex sync.Mutex
	graph *pipeline.Graph

	err  error
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Name("hydra"),
		kong.Description("hydra "+version),
		kong.UsageOnError())
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	cnf, err := conf.Load(cli.Conf)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	p := newCore(cnf, cli.RouteID, cli.Pipeline, os.Stdin)

	err = p.createResources()
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		return nil, false
	}

	go p.run()

	return p, true
}

func newCore(cnf *conf.Conf, routeID string, pipePath string, stdin io.Reader) *Core {
	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		conf:      cnf,
		routeID:   routeID,
		pipePath:  pipePath,
		stdin:     stdin,
		done:      make(chan struct{}),
	}
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
// It returns the error that ended the relay, if any.
func (p *Core) Wait() error {
	<-p.done
	return p.err
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...any) {
	p.logger.Log(level, format, args...)
}

func (p *Core) createResources() error {
	var err error

	p.logger, err = logger.New(
		logger.Level(p.conf.LogLevel),
		p.conf.LogDestinations,
		p.conf.LogFile,
	)
	if err != nil {
		return err
	}

	p.Log(logger.Info, "hydra %s", version)

	p.control = &control.Channel{
		Endpoint:     p.conf.ControlSocket,
		WriteTimeout: time.Duration(p.conf.WriteTimeout),
		Parent:       p,
	}

	ctx, cancel := context.WithTimeout(p.ctx, controlConnectTimeout)
	err = p.control.Connect(ctx)
	cancel()
	if err != nil {
		p.control = nil
		return err
	}

	if p.routeID != "" {
		err = p.control.SendString(routeIDPrefix + p.routeID)
		if err != nil {
			p.Log(logger.Warn, "unable to send route ID: %v", err)
		}
	} else {
		p.Log(logger.Info, "no route ID provided")
	}

	pl, err := p.readPipeline()
	if err != nil {
		return err
	}

	if p.conf.Metrics {
		p.metrics = &metrics.Metrics{
			Address:     p.conf.MetricsAddress,
			PPROF:       p.conf.PPROF,
			GetProvider: p.currentProvider,
			Parent:      p,
		}
		err = p.metrics.Initialize()
		if err != nil {
			p.metrics = nil
			return err
		}
	}

	err = p.startGraph(pl)
	if err != nil {
		return err
	}

	if p.pipePath != "" && p.conf.WatchPipeline {
		p.confWatcher = &confwatcher.ConfWatcher{FilePath: p.pipePath}
		err = p.confWatcher.Initialize()
		if err != nil {
			p.confWatcher = nil
			return err
		}
	}

	return nil
}

func (p *Core) closeResources() {
	if p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	p.stopGraph()

	if p.metrics != nil {
		p.metrics.Close()
		p.metrics = nil
	}

	if p.control != nil {
		p.control.Close()
		p.control = nil
	}

	if p.logger != nil {
		p.logger.Close()
	}
}

func (p *Core) readPipeline() (*conf.Pipeline, error) {
	if p.pipePath == "" {
		p.Log(logger.Debug, "reading pipeline from stdin")
		return conf.ReadPipeline(p.stdin)
	}

	f, err := os.Open(p.pipePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return conf.ReadPipeline(f)
}

func (p *Core) graphParent() logger.Writer {
	if p.routeID == "" {
		return p
	}
	return &logger.Prefixed{Prefix: "[" + p.routeID + "]", Parent: p}
}

func (p *Core) startGraph(pl *conf.Pipeline) error {
	g := &pipeline.Graph{
		Pipeline:      pl,
		QueueSize:     p.conf.QueueSize,
		StatsInterval: time.Duration(p.conf.StatsInterval),
		WriteTimeout:  time.Duration(p.conf.WriteTimeout),
		Sender:        p.control,
		Parent:        p.graphParent(),
	}

	err := g.Initialize()
	if err != nil {
		return err
	}

	p.mutex.Lock()
	p.graph = g
	p.mutex.Unlock()

	return g.Start()
}

func (p *Core) stopGraph() {
	p.mutex.Lock()
	g := p.graph
	p.graph = nil
	p.mutex.Unlock()

	if g != nil {
		g.Stop()
	}
}

func (p *Core) currentProvider() metrics.Provider {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.graph == nil {
		return nil
	}
	return p.graph
}

func (p *Core) graphDone() <-chan struct{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.graph == nil {
		return nil
	}
	return p.graph.Done()
}

func (p *Core) reloadPipeline() error {
	pl, err := p.readPipeline()
	if err != nil {
		return err
	}

	p.stopGraph()

	return p.startGraph(pl)
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "pipeline file changed, rebuilding")

			err := p.reloadPipeline()
			if err != nil {
				p.Log(logger.Error, "%s", err)
				p.err = err
				break outer
			}

		case <-p.graphDone():
			p.mutex.Lock()
			g := p.graph
			p.mutex.Unlock()

			if g.State() == bus.StateErrorStopped {
				p.err = g.Err()
				if p.err == nil {
					p.err = errors.New("pipeline failed")
				}
			}
			break outer

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources()
}
