// Package metrics contains the metrics and pprof HTTP server.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hydra-streaming/relay/internal/bus"
	"github.com/hydra-streaming/relay/internal/counters"
	"github.com/hydra-streaming/relay/internal/forwarder"
	"github.com/hydra-streaming/relay/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Provider is implemented by the running pipeline graph.
type Provider interface {
	GraphID() string
	State() bus.State
	Totals() counters.Snapshot
	BranchStats() []forwarder.Stats
}

// Metrics is the metrics server.
type Metrics struct {
	Address string
	PPROF   bool
	// GetProvider returns the current graph, or nil.
	GetProvider func() Provider
	Parent      logger.Writer

	handler http.Handler
	ln      net.Listener
	server  *http.Server
	done    chan struct{}
}

// Initialize initializes Metrics and starts serving when Address is set.
func (m *Metrics) Initialize() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(&collector{m: m})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/healthz", m.onHealth)

	if m.PPROF {
		pprof.Register(router)
	}

	m.handler = router

	if m.Address == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.Address)
	if err != nil {
		return err
	}
	m.ln = ln

	m.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.done = make(chan struct{})

	go m.run()

	m.Log(logger.Info, "listener opened on %s", ln.Addr())

	return nil
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...any) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

func (m *Metrics) run() {
	defer close(m.done)

	err := m.server.Serve(m.ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.Log(logger.Error, "%v", err)
	}
}

// Handler returns the HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Close closes Metrics.
func (m *Metrics) Close() {
	if m.server == nil {
		return
	}

	m.Log(logger.Info, "listener is closing")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	m.server.Shutdown(ctx) //nolint:errcheck
	<-m.done
}

func (m *Metrics) onHealth(ctx *gin.Context) {
	if m.GetProvider != nil {
		if p := m.GetProvider(); p != nil && p.State() == bus.StatePlaying {
			ctx.String(http.StatusOK, "ok")
			return
		}
	}
	ctx.String(http.StatusServiceUnavailable, "not playing")
}
