package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// udpSink sends every buffer as a datagram to one or more destinations.
type udpSink struct {
	params Params

	host       string
	port       int
	clients    []string
	bufferSize int
	sync       bool
	async      bool

	addrs     []*net.UDPAddr
	conn      *net.UDPConn
	pacer     pacer
	failing   bool
	done      chan struct{}
	closeOnce sync.Once
}

func newUDPSink(params Params) *udpSink {
	return &udpSink{
		params: params,
		host:   "localhost",
		port:   5004,
		sync:   true,
		async:  true,
		done:   make(chan struct{}),
	}
}

// Kind implements Element.
func (s *udpSink) Kind() Kind {
	return KindUDP
}

// SetProperty implements Element.
func (s *udpSink) SetProperty(name string, value any) bool {
	switch name {
	case "host":
		v, ok := propString(value)
		if ok {
			s.host = v
		}
		return ok

	case "port":
		v, ok := propPort(value)
		if ok {
			s.port = v
		}
		return ok

	case "clients":
		v, ok := propString(value)
		if !ok {
			return false
		}
		s.clients = nil
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				s.clients = append(s.clients, c)
			}
		}
		return true

	case "buffer-size":
		v, ok := propInt(value)
		if ok {
			s.bufferSize = int(v)
		}
		return ok

	case "sync":
		v, ok := propBool(value)
		if ok {
			s.sync = v
		}
		return ok

	case "async":
		v, ok := propBool(value)
		if ok {
			s.async = v
		}
		return ok
	}
	return false
}

// Prepare implements Element.
func (s *udpSink) Prepare() error {
	targets := []string{net.JoinHostPort(s.host, strconv.Itoa(s.port))}
	targets = append(targets, s.clients...)

	s.addrs = nil
	for _, t := range targets {
		addr, err := net.ResolveUDPAddr("udp", t)
		if err != nil {
			return fmt.Errorf("invalid destination '%s': %w", t, err)
		}
		s.addrs = append(s.addrs, addr)
	}

	s.pacer.enabled = s.sync
	return nil
}

// Start implements Sink.
func (s *udpSink) Start(_ context.Context) error {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}

	if s.bufferSize > 0 {
		err = conn.SetWriteBuffer(s.bufferSize)
		if err != nil {
			conn.Close()
			return err
		}
	}

	s.conn = conn
	return nil
}

// Write implements Sink.
// Send errors are reported as warnings, like unreachable destinations on a datagram socket.
func (s *udpSink) Write(buf *Buffer) error {
	if s.conn == nil {
		return fmt.Errorf("not started")
	}

	if !s.pacer.wait(buf, s.done) {
		return nil
	}

	if s.params.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.params.WriteTimeout)) //nolint:errcheck
	}

	var firstErr error
	for _, addr := range s.addrs {
		_, err := s.conn.WriteToUDP(buf.Data, addr)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	switch {
	case firstErr != nil && !s.failing:
		s.failing = true
		s.params.post(Event{Type: EventWarning, Err: firstErr})

	case firstErr == nil && s.failing:
		s.failing = false
	}

	return nil
}

// Close implements Element.
func (s *udpSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
