package forwarder

import (
	"fmt"
	"sync"

	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

// Manager is the junction. Every buffer pushed into it is offered
// to every branch, in the order branches were linked.
type Manager struct {
	QueueSize int
	Parent    logger.Writer

	mutex      sync.RWMutex
	probes     []Probe
	forwarders []*Forwarder
	started    bool
	stopped    bool
}

// Initialize initializes a Manager.
func (m *Manager) Initialize() error {
	if m.QueueSize <= 0 {
		return fmt.Errorf("invalid queue size: %d", m.QueueSize)
	}
	return nil
}

// AddProbe attaches a probe to the junction input.
func (m *Manager) AddProbe(p Probe) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.probes = append(m.probes, p)
}

// Link creates a branch that feeds sink.
func (m *Manager) Link(sink transport.Sink, onError func(error)) (*Forwarder, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started {
		return nil, fmt.Errorf("junction is already running")
	}

	f := &Forwarder{
		Index:     len(m.forwarders),
		Sink:      sink,
		QueueSize: m.QueueSize,
		OnError:   onError,
		Parent:    m.Parent,
	}
	f.Initialize()
	m.forwarders = append(m.forwarders, f)

	return f, nil
}

// Start starts all forwarders.
func (m *Manager) Start() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started || m.stopped {
		return
	}
	m.started = true

	for _, f := range m.forwarders {
		f.Start()
	}
}

// Push runs the input probes and offers buf to every branch.
// With no branches, the buffer is discarded after the probes.
func (m *Manager) Push(buf *transport.Buffer) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.stopped {
		return
	}

	for _, p := range m.probes {
		p(buf)
	}

	for _, f := range m.forwarders {
		f.Push(buf)
	}
}

// Stop stops all forwarders.
func (m *Manager) Stop() {
	m.mutex.Lock()
	if m.stopped {
		m.mutex.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	forwarders := m.forwarders
	m.mutex.Unlock()

	for _, f := range forwarders {
		f.Stop(started)
	}
}

// GetStats returns statistics for all forwarders.
func (m *Manager) GetStats() []Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := make([]Stats, 0, len(m.forwarders))
	for _, f := range m.forwarders {
		stats = append(stats, f.GetStats())
	}
	return stats
}
