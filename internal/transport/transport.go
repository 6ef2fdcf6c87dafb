// Package transport contains the transport engines a pipeline is built from.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hydra-streaming/relay/internal/logger"
)

// ErrUnsupportedType is returned when a node names an unknown transport.
var ErrUnsupportedType = errors.New("unsupported transport type")

// ErrClosed is returned by operations on a closed element.
var ErrClosed = errors.New("terminated")

// Kind is a transport variant.
type Kind int

// transport variants.
const (
	KindFake Kind = iota
	KindUDP
	KindRTP
	KindSRT
)

func (k Kind) String() string {
	switch k {
	case KindFake:
		return "fake"
	case KindUDP:
		return "udp"
	case KindRTP:
		return "rtp"
	case KindSRT:
		return "srt"
	}
	return "unknown"
}

// Role is the position of a node in the graph.
type Role int

// roles.
const (
	RoleSource Role = iota
	RoleSink
)

// ParseKind maps a configured type to a transport variant.
func ParseKind(typ string, role Role) (Kind, error) {
	switch typ {
	case "fake":
		return KindFake, nil
	case "udp":
		return KindUDP, nil
	case "srt":
		return KindSRT, nil
	}

	if role == RoleSource {
		switch typ {
		case "fakesrc":
			return KindFake, nil
		case "udpsrc":
			return KindUDP, nil
		case "rtp", "rtpsrc":
			return KindRTP, nil
		case "srtsrc":
			return KindSRT, nil
		}
	} else {
		switch typ {
		case "fakesink":
			return KindFake, nil
		case "udpsink":
			return KindUDP, nil
		case "srtsink":
			return KindSRT, nil
		}
	}

	return 0, fmt.Errorf("%w: '%s'", ErrUnsupportedType, typ)
}

// Buffer is a chunk of the relayed stream. It is shared between
// branches and must never be modified after emission.
type Buffer struct {
	Data []byte

	// capture time, zero when the source does not timestamp.
	Timestamp time.Time
}

// EventType is the type of an Event.
type EventType int

// event types.
const (
	EventError EventType = iota
	EventWarning
	EventEOS
	EventStateChanged
	EventInfo
)

// Event is an asynchronous notification of an element.
type Event struct {
	Type   EventType
	Origin string
	Err    error
	State  string
	Info   string
}

// Params are the parameters shared by every element.
type Params struct {
	// element name, used as event origin.
	Name string

	WriteTimeout time.Duration
	Parent       logger.Writer

	// OnEvent receives asynchronous notifications. It must not block.
	OnEvent func(Event)

	// Authenticate decides whether an inbound caller is accepted.
	// It is consulted only when the element has authentication enabled.
	Authenticate func(remote net.Addr, streamID string) bool
}

func (p *Params) post(ev Event) {
	ev.Origin = p.Name
	if p.OnEvent != nil {
		p.OnEvent(ev)
	}
}

// Log implements logger.Writer.
func (p *Params) Log(level logger.Level, format string, args ...any) {
	if p.Parent == nil {
		return
	}
	p.Parent.Log(level, "["+p.Name+"] "+format, args...)
}

// Element is the part shared by sources and sinks.
type Element interface {
	Kind() Kind

	// SetProperty applies a property. It returns false when the element
	// does not know the property or cannot accept the value.
	SetProperty(name string, value any) bool

	// Prepare validates properties and resolves addresses.
	Prepare() error

	// Close releases every resource. It unblocks Run and Write.
	Close()
}

// Source is the node that receives the inbound stream.
type Source interface {
	Element

	// Start allocates network resources.
	Start(ctx context.Context) error

	// Run delivers buffers until ctx is canceled (nil) or a fatal error occurs.
	// io.EOF means the stream ended.
	Run(ctx context.Context, emit func(*Buffer)) error
}

// Sink is the node that delivers the stream to a destination.
type Sink interface {
	Element

	// Start allocates network resources.
	Start(ctx context.Context) error

	// Write delivers a buffer. An error is fatal for the graph.
	Write(buf *Buffer) error
}

// StatsProvider is implemented by elements that expose native statistics.
type StatsProvider interface {
	Stats() (Structure, bool)
}

// NewSource allocates a source of the given variant.
func NewSource(kind Kind, params Params) (Source, error) {
	switch kind {
	case KindFake:
		return newFakeSource(params), nil
	case KindUDP:
		return newUDPSource(params), nil
	case KindRTP:
		return newRTPSource(params), nil
	case KindSRT:
		return newSRTSource(params), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, kind)
}

// NewSink allocates a sink of the given variant.
func NewSink(kind Kind, params Params) (Sink, error) {
	switch kind {
	case KindFake:
		return newFakeSink(params), nil
	case KindUDP:
		return newUDPSink(params), nil
	case KindSRT:
		return newSRTSink(params), nil
	}
	return nil, fmt.Errorf("%w: %v sink", ErrUnsupportedType, kind)
}
