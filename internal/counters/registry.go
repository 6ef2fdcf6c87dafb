package counters

import (
	"sync"

	"github.com/hydra-streaming/relay/internal/transport"
)

// Identity is the report identity of a destination.
type Identity struct {
	ID     string
	Name   string
	Schema string
	Type   string
}

// Branch is the registry entry of a destination.
// Stats is queried by the publisher, never by the registry.
type Branch struct {
	Identity Identity
	Counter  *Counter
	Stats    transport.StatsProvider
}

// CounterSnapshot is the state of a counter at a sweep.
type CounterSnapshot struct {
	Total  uint64
	PerSec uint64
}

// BranchSnapshot is the state of a destination at a sweep.
type BranchSnapshot struct {
	Identity Identity
	CounterSnapshot
	Stats transport.StatsProvider
}

// Snapshot is the immutable result of a sweep.
type Snapshot struct {
	SourceType string
	Source     CounterSnapshot
	Branches   []BranchSnapshot
}

// Registry owns the source counter and one counter per destination.
// Data paths record bytes by calling Add on the counters returned by
// Source and AddBranch.
type Registry struct {
	SourceType string

	mutex    sync.Mutex
	source   *Counter
	branches []*Branch
	released bool
}

// Initialize initializes a Registry.
func (r *Registry) Initialize() {
	r.source = &Counter{}
}

// Source returns the source counter.
func (r *Registry) Source() *Counter {
	return r.source
}

// AddBranch registers a destination and returns its counter.
// Branches must be added before data starts flowing.
func (r *Registry) AddBranch(identity Identity, stats transport.StatsProvider) *Counter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	b := &Branch{
		Identity: identity,
		Counter:  &Counter{},
		Stats:    stats,
	}
	r.branches = append(r.branches, b)

	return b.Counter
}

// Len returns the number of destinations.
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.branches)
}

// Sweep computes per-interval rates and resets the interval snapshots.
func (r *Registry) Sweep() Snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := Snapshot{
		SourceType: r.SourceType,
		Branches:   make([]BranchSnapshot, 0, len(r.branches)),
	}

	if r.released {
		return s
	}

	s.Source.Total, s.Source.PerSec = r.source.sweep()

	for _, b := range r.branches {
		bs := BranchSnapshot{
			Identity: b.Identity,
			Stats:    b.Stats,
		}
		bs.Total, bs.PerSec = b.Counter.sweep()
		s.Branches = append(s.Branches, bs)
	}

	return s
}

// Totals returns lifetime totals without touching interval snapshots.
func (r *Registry) Totals() Snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s := Snapshot{
		SourceType: r.SourceType,
		Branches:   make([]BranchSnapshot, 0, len(r.branches)),
	}

	if r.released {
		return s
	}

	s.Source.Total = r.source.Total()

	for _, b := range r.branches {
		s.Branches = append(s.Branches, BranchSnapshot{
			Identity:        b.Identity,
			CounterSnapshot: CounterSnapshot{Total: b.Counter.Total()},
		})
	}

	return s
}

// Release drops every destination entry and zeroes the source.
func (r *Registry) Release() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.branches = nil
	r.source = &Counter{}
	r.released = true
}
