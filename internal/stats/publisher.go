// Package stats contains the publisher of periodic reports.
package stats

import (
	"context"
	"encoding/json"
	"time"

	"code.cloudfoundry.org/bytefmt"

	"github.com/hydra-streaming/relay/internal/counters"
	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

// Sender sends a report to the control process.
type Sender interface {
	Send(payload []byte) error
}

// Publisher sweeps the registry once per interval and sends a report.
type Publisher struct {
	Interval time.Duration
	Registry *counters.Registry
	// native statistics of the source. Optional.
	Source transport.StatsProvider
	Sender Sender
	Parent logger.Writer

	ctx       context.Context
	ctxCancel func()
	started   bool

	done chan struct{}
}

// Initialize initializes a Publisher.
func (p *Publisher) Initialize() {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}

	p.ctx, p.ctxCancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
}

// Log implements logger.Writer.
func (p *Publisher) Log(level logger.Level, format string, args ...any) {
	p.Parent.Log(level, "[stats] "+format, args...)
}

// Start starts the publishing routine.
func (p *Publisher) Start() {
	p.started = true
	go p.run()
}

// Stop stops the publishing routine and waits for it to exit.
// After Stop returns, no further report is sent.
func (p *Publisher) Stop() {
	p.ctxCancel()
	if p.started {
		<-p.done
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	t := time.NewTicker(p.Interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if p.ctx.Err() != nil {
				return
			}
			p.publish()

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Publisher) publish() {
	snap := p.Registry.Sweep()
	r := BuildReport(snap, p.Source)

	byts, err := json.Marshal(r)
	if err != nil {
		p.Log(logger.Warn, "unable to encode report: %v", err)
		return
	}

	p.Log(logger.Debug, "source %s/s, %d destinations",
		bytefmt.ByteSize(snap.Source.PerSec), len(r.Destinations))

	if p.Sender == nil {
		return
	}

	err = p.Sender.Send(byts)
	if err != nil {
		p.Log(logger.Warn, "unable to send report: %v", err)
	}
}
