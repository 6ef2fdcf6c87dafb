package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	srt "github.com/datarhei/gosrt"
)

type srtPeer struct {
	conn   srt.Conn
	remote string
	gone   chan struct{}
}

// srtSink delivers the stream to SRT peers. In listener mode every
// connected caller receives the stream; in caller mode the sink keeps
// a connection to a remote listener.
type srtSink struct {
	params Params
	srtEndpoint

	waitForConnection bool
	sync              bool
	async             bool

	ln         srt.Listener
	mutex      sync.Mutex
	peers      []*srtPeer
	changed    chan struct{}
	fatal      error
	pacer      pacer
	reconnects atomic.Uint64
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
}

func newSRTSink(params Params) *srtSink {
	s := &srtSink{
		params:            params,
		waitForConnection: true,
		sync:              true,
		async:             true,
		changed:           make(chan struct{}),
		done:              make(chan struct{}),
	}
	s.srtEndpoint = newSRTEndpoint(&s.params)
	return s
}

// Kind implements Element.
func (s *srtSink) Kind() Kind {
	return KindSRT
}

// SetProperty implements Element.
func (s *srtSink) SetProperty(name string, value any) bool {
	var dest *bool

	switch name {
	case "wait-for-connection":
		dest = &s.waitForConnection
	case "sync":
		dest = &s.sync
	case "async":
		dest = &s.async
	default:
		return s.srtEndpoint.setProperty(name, value)
	}

	v, ok := propBool(value)
	if ok {
		*dest = v
	}
	return ok
}

// Prepare implements Element.
func (s *srtSink) Prepare() error {
	s.pacer.enabled = s.sync
	return s.srtEndpoint.prepare()
}

// Start implements Sink.
func (s *srtSink) Start(ctx context.Context) error {
	if s.mode == srtModeListener {
		ln, err := srt.Listen("srt", s.address, s.config())
		if err != nil {
			return err
		}
		s.ln = ln

		s.params.Log(infoLevel, "listening on %s", s.address)

		s.wg.Add(1)
		go s.acceptLoop()
	} else {
		s.wg.Add(1)
		go s.connectLoop(ctx)
	}

	if s.async {
		_, err := s.waitPeers(ctx.Done(), true)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *srtSink) acceptLoop() {
	defer s.wg.Done()

	for {
		req, err := s.ln.Accept2()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.setFatal(err)
			}
			return
		}

		if s.passphrase != "" {
			err = req.SetPassphrase(s.passphrase)
			if err != nil {
				req.Reject(srt.REJ_PEER)
				continue
			}
		}

		conn, err := req.Accept()
		if err != nil {
			s.params.Log(warnLevel, "unable to accept peer: %v", err)
			continue
		}

		s.addPeer(conn)
	}
}

func (s *srtSink) connectLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		err := s.connectInner(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		s.params.Log(warnLevel, "SRT sink error: %v", err)

		if !s.autoReconnect {
			s.setFatal(err)
			return
		}

		s.reconnects.Add(1)

		select {
		case <-time.After(srtReconnectDelay):
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *srtSink) connectInner(ctx context.Context) error {
	s.params.Log(debugLevel, "connecting to %s (streamid: %s)", s.address, s.streamID)

	conn, err := srt.Dial("srt", s.address, s.config())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	p := s.addPeer(conn)

	select {
	case <-p.gone:
		return fmt.Errorf("connection to %s lost", p.remote)
	case <-ctx.Done():
		return nil
	case <-s.done:
		return nil
	}
}

func (s *srtSink) addPeer(conn srt.Conn) *srtPeer {
	p := &srtPeer{
		conn:   conn,
		remote: srtAddrString(conn.RemoteAddr()),
		gone:   make(chan struct{}),
	}

	s.mutex.Lock()
	s.peers = append(s.peers, p)
	s.notify()
	s.mutex.Unlock()

	s.params.post(Event{Type: EventStateChanged, State: "connected"})
	s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("peer %s connected", p.remote)})

	return p
}

func (s *srtSink) removePeer(p *srtPeer, err error) {
	s.mutex.Lock()
	found := false
	for i, cur := range s.peers {
		if cur == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			found = true
			break
		}
	}
	s.notify()
	s.mutex.Unlock()

	if !found {
		return
	}

	p.conn.Close()
	close(p.gone)

	s.params.post(Event{Type: EventInfo, Info: fmt.Sprintf("peer %s disconnected: %v", p.remote, err)})
}

// notify wakes up writers waiting for a peer. It must be called with the mutex held.
func (s *srtSink) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *srtSink) setFatal(err error) {
	s.mutex.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.notify()
	s.mutex.Unlock()
}

func (s *srtSink) waitPeers(cancel <-chan struct{}, wait bool) ([]*srtPeer, error) {
	s.mutex.Lock()

	for {
		if s.fatal != nil {
			err := s.fatal
			s.mutex.Unlock()
			return nil, err
		}

		if len(s.peers) != 0 || !wait {
			peers := append([]*srtPeer(nil), s.peers...)
			s.mutex.Unlock()
			return peers, nil
		}

		ch := s.changed
		s.mutex.Unlock()

		select {
		case <-ch:
		case <-s.done:
			return nil, ErrClosed
		case <-cancel:
			return nil, ErrClosed
		}

		s.mutex.Lock()
	}
}

// Write implements Sink.
func (s *srtSink) Write(buf *Buffer) error {
	if !s.pacer.wait(buf, s.done) {
		return nil
	}

	peers, err := s.waitPeers(nil, s.waitForConnection)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}

	for _, p := range peers {
		if s.params.WriteTimeout > 0 {
			p.conn.SetWriteDeadline(time.Now().Add(s.params.WriteTimeout)) //nolint:errcheck
		}

		_, err := p.conn.Write(buf.Data)
		if err != nil {
			s.removePeer(p, err)
		}
	}

	return nil
}

// Stats implements StatsProvider.
func (s *srtSink) Stats() (Structure, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var st Structure

	for _, p := range s.peers {
		ps := srtConnStats(p.conn)
		if st == nil {
			st = ps
			continue
		}

		for i := range st {
			switch cur := st[i].Value.(type) {
			case uint64:
				st[i].Value = cur + ps[i].Value.(uint64)

			case float64:
				v := ps[i].Value.(float64)
				if st[i].Name == "rtt-ms" {
					st[i].Value = max(cur, v)
				} else {
					st[i].Value = cur + v
				}
			}
		}
	}

	st.Add("connected-peers", uint64(len(s.peers)))
	if s.mode == srtModeCaller {
		st.Add("reconnects", s.reconnects.Load())
	}
	return st, true
}

// Close implements Element.
func (s *srtSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		if s.ln != nil {
			s.ln.Close()
		}

		s.mutex.Lock()
		peers := s.peers
		s.peers = nil
		s.mutex.Unlock()

		for _, p := range peers {
			p.conn.Close()
			close(p.gone)
		}

		s.wg.Wait()
	})
}
