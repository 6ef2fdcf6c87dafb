package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	srt "github.com/datarhei/gosrt"
)

type srtCaller struct {
	conn   srt.Conn
	remote string
}

// srtSource receives the stream from SRT callers (listener mode)
// or from a remote listener (caller mode).
type srtSource struct {
	params Params
	srtEndpoint

	keepListening bool
	doTimestamp   bool

	ln            srt.Listener
	mutex         sync.Mutex
	callers       []*srtCaller
	bytesFromGone uint64
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

func newSRTSource(params Params) *srtSource {
	s := &srtSource{
		params: params,
	}
	s.srtEndpoint = newSRTEndpoint(&s.params)
	return s
}

// Kind implements Element.
func (s *srtSource) Kind() Kind {
	return KindSRT
}

// SetProperty implements Element.
func (s *srtSource) SetProperty(name string, value any) bool {
	switch name {
	case "keep-listening":
		v, ok := propBool(value)
		if ok {
			s.keepListening = v
		}
		return ok

	case "do-timestamp":
		v, ok := propBool(value)
		if ok {
			s.doTimestamp = v
		}
		return ok
	}

	return s.srtEndpoint.setProperty(name, value)
}

// Prepare implements Element.
func (s *srtSource) Prepare() error {
	return s.srtEndpoint.prepare()
}

// Start implements Source.
func (s *srtSource) Start(_ context.Context) error {
	if s.mode != srtModeListener {
		return nil
	}

	ln, err := srt.Listen("srt", s.address, s.config())
	if err != nil {
		return err
	}
	s.ln = ln

	s.params.Log(infoLevel, "listening on %s", s.address)
	return nil
}

// Run implements Source.
func (s *srtSource) Run(ctx context.Context, emit func(*Buffer)) error {
	if s.mode == srtModeListener {
		return s.runListener(ctx, emit)
	}
	return s.runCaller(ctx, emit)
}

func (s *srtSource) runListener(ctx context.Context, emit func(*Buffer)) error {
	if s.ln == nil {
		return fmt.Errorf("not started")
	}

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- s.acceptLoop(ctx, emit)
	}()

	select {
	case <-ctx.Done():
		s.ln.Close()
		s.closeCallers()
		<-acceptErr
		s.wg.Wait()
		return nil

	case err := <-acceptErr:
		s.closeCallers()
		s.wg.Wait()
		return err
	}
}

func (s *srtSource) acceptLoop(ctx context.Context, emit func(*Buffer)) error {
	for {
		req, err := s.ln.Accept2()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c := s.accept(req)
		if c == nil {
			continue
		}

		if !s.keepListening {
			s.read(c, emit)
			s.removeCaller(c)
			if ctx.Err() != nil {
				return nil
			}
			return io.EOF
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.read(c, emit)
			s.removeCaller(c)
		}()
	}
}

func (s *srtSource) accept(req srt.ConnRequest) *srtCaller {
	streamID := req.StreamId()
	remote := req.RemoteAddr()

	if s.authentication && s.params.Authenticate != nil &&
		!s.params.Authenticate(remote, streamID) {
		req.Reject(srt.REJ_PEER)
		s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("caller %v rejected", remote)})
		return nil
	}

	if s.passphrase != "" {
		if !req.IsEncrypted() {
			req.Reject(srt.REJ_PEER)
			s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("caller %v rejected: not encrypted", remote)})
			return nil
		}

		err := req.SetPassphrase(s.passphrase)
		if err != nil {
			req.Reject(srt.REJ_PEER)
			s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("caller %v rejected: %v", remote, err)})
			return nil
		}
	}

	conn, err := req.Accept()
	if err != nil {
		s.params.Log(warnLevel, "unable to accept caller %v: %v", remote, err)
		return nil
	}

	c := &srtCaller{conn: conn, remote: srtAddrString(remote)}

	s.mutex.Lock()
	s.callers = append(s.callers, c)
	s.mutex.Unlock()

	s.params.post(Event{
		Type: EventInfo,
		Info: fmt.Sprintf("caller connected from %s (streamid: '%s')", c.remote, streamID),
	})

	return c
}

func (s *srtSource) runCaller(ctx context.Context, emit func(*Buffer)) error {
	for {
		conn, err := srt.Dial("srt", s.address, s.config())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !s.autoReconnect {
				return fmt.Errorf("failed to connect: %w", err)
			}

			s.params.Log(warnLevel, "unable to connect to %s: %v", s.address, err)

			select {
			case <-time.After(srtReconnectDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		c := &srtCaller{conn: conn, remote: srtAddrString(conn.RemoteAddr())}

		s.mutex.Lock()
		s.callers = append(s.callers, c)
		s.mutex.Unlock()

		s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("connected to %s", c.remote)})

		stop := context.AfterFunc(ctx, func() {
			conn.Close()
		})
		err = s.read(c, emit)
		stop()
		s.removeCaller(c)

		if ctx.Err() != nil {
			return nil
		}
		if !s.autoReconnect {
			return err
		}

		s.params.Log(warnLevel, "connection to %s lost: %v", s.address, err)

		select {
		case <-time.After(srtReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *srtSource) read(c *srtCaller, emit func(*Buffer)) error {
	buf := make([]byte, srtReadBufferSize)

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return err
		}

		b := &Buffer{Data: make([]byte, n)}
		copy(b.Data, buf[:n])
		if s.doTimestamp {
			b.Timestamp = time.Now()
		}
		emit(b)
	}
}

func (s *srtSource) removeCaller(c *srtCaller) {
	s.mutex.Lock()
	for i, cur := range s.callers {
		if cur == c {
			s.bytesFromGone += srtBytesReceived(c.conn)
			s.callers = append(s.callers[:i], s.callers[i+1:]...)
			break
		}
	}
	s.mutex.Unlock()

	c.conn.Close()

	s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("caller %s disconnected", c.remote)})
}

func (s *srtSource) closeCallers() {
	s.mutex.Lock()
	callers := append([]*srtCaller(nil), s.callers...)
	s.mutex.Unlock()

	for _, c := range callers {
		c.conn.Close()
	}
}

// Stats implements StatsProvider.
func (s *srtSource) Stats() (Structure, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var st Structure
	total := s.bytesFromGone

	if s.mode == srtModeListener {
		callers := make([]Structure, 0, len(s.callers))
		for _, c := range s.callers {
			cs := Structure{{Name: "caller-address", Value: c.remote}}
			cs = append(cs, srtConnStats(c.conn)...)
			callers = append(callers, cs)
			total += srtBytesReceived(c.conn)
		}
		st.Add("callers", callers)
	} else if len(s.callers) != 0 {
		st = append(st, srtConnStats(s.callers[0].conn)...)
		total += srtBytesReceived(s.callers[0].conn)
	}

	st.Add("bytes-received-total", total)
	return st, true
}

// Close implements Element.
func (s *srtSource) Close() {
	s.closeOnce.Do(func() {
		if s.ln != nil {
			s.ln.Close()
		}
		s.closeCallers()
	})
}
