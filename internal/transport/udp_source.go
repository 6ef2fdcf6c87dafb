package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

const udpMaxDatagramSize = 65536

// udpSource receives datagrams on a UDP socket.
type udpSource struct {
	params Params

	address     string
	port        int
	bufferSize  int
	reuse       bool
	timeout     time.Duration
	doTimestamp bool

	addr *net.UDPAddr
	conn *net.UDPConn
}

func newUDPSource(params Params) *udpSource {
	return &udpSource{
		params:  params,
		address: "0.0.0.0",
		port:    5004,
		reuse:   true,
	}
}

// Kind implements Element.
func (s *udpSource) Kind() Kind {
	return KindUDP
}

// SetProperty implements Element.
func (s *udpSource) SetProperty(name string, value any) bool {
	switch name {
	case "address":
		v, ok := propString(value)
		if ok {
			s.address = v
		}
		return ok

	case "port":
		v, ok := propPort(value)
		if ok {
			s.port = v
		}
		return ok

	case "uri":
		v, ok := propString(value)
		if !ok {
			return false
		}
		host, port, err := parseUDPURI(v)
		if err != nil {
			s.params.Log(warnLevel, "invalid uri '%s': %v", v, err)
			return false
		}
		s.address, s.port = host, port
		return true

	case "buffer-size":
		v, ok := propInt(value)
		if ok {
			s.bufferSize = int(v)
		}
		return ok

	case "reuse":
		v, ok := propBool(value)
		if ok {
			s.reuse = v
		}
		return ok

	case "timeout":
		v, ok := propMillis(value)
		if ok {
			s.timeout = v
		}
		return ok

	case "do-timestamp":
		v, ok := propBool(value)
		if ok {
			s.doTimestamp = v
		}
		return ok
	}
	return false
}

// Prepare implements Element.
func (s *udpSource) Prepare() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.address, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	s.addr = addr
	return nil
}

// Start implements Source.
func (s *udpSource) Start(ctx context.Context) error {
	if s.addr == nil {
		return fmt.Errorf("not prepared")
	}

	if s.addr.IP.IsMulticast() {
		conn, err := net.ListenMulticastUDP("udp", nil, s.addr)
		if err != nil {
			return err
		}
		s.conn = conn
	} else {
		lc := net.ListenConfig{}
		if s.reuse {
			lc.Control = reuseControl
		}

		pc, err := lc.ListenPacket(ctx, "udp", s.addr.String())
		if err != nil {
			return err
		}
		s.conn = pc.(*net.UDPConn)
	}

	if s.bufferSize > 0 {
		err := s.conn.SetReadBuffer(s.bufferSize)
		if err != nil {
			s.conn.Close()
			s.conn = nil
			return err
		}
	}

	s.params.Log(debugLevel, "listening on %v", s.conn.LocalAddr())
	return nil
}

// LocalAddr returns the address the source is bound to.
func (s *udpSource) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run implements Source.
func (s *udpSource) Run(ctx context.Context, emit func(*Buffer)) error {
	return s.run(ctx, func(data []byte) {
		buf := &Buffer{Data: data}
		if s.doTimestamp {
			buf.Timestamp = time.Now()
		}
		emit(buf)
	})
}

func (s *udpSource) run(ctx context.Context, onData func([]byte)) error {
	if s.conn == nil {
		return fmt.Errorf("not started")
	}

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	buf := make([]byte, udpMaxDatagramSize)
	timedOut := false

	for {
		if s.timeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
		}

		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var ne net.Error
			if s.timeout > 0 && errors.As(err, &ne) && ne.Timeout() {
				if !timedOut {
					timedOut = true
					s.params.post(Event{
						Type: EventWarning,
						Err:  fmt.Errorf("no data received for %v", s.timeout),
					})
				}
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		timedOut = false

		data := make([]byte, n)
		copy(data, buf[:n])
		onData(data)
	}
}

// Close implements Element.
func (s *udpSource) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func parseUDPURI(v string) (string, int, error) {
	u, err := url.Parse(v)
	if err != nil {
		return "", 0, err
	}
	if u.Scheme != "udp" {
		return "", 0, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port '%s'", u.Port())
	}

	host := u.Hostname()
	if host == "" {
		host = "0.0.0.0"
	}

	return host, port, nil
}
