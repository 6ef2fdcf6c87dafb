package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func startUDPSource(t *testing.T, s *udpSource) int {
	require.True(t, s.SetProperty("address", "127.0.0.1"))
	require.True(t, s.SetProperty("port", int64(0)))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start(context.Background()))
	return s.LocalAddr().(*net.UDPAddr).Port
}

func TestParseUDPURI(t *testing.T) {
	host, port, err := parseUDPURI("udp://:5004")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", host)
	require.Equal(t, 5004, port)

	_, _, err = parseUDPURI("srt://127.0.0.1:5004")
	require.Error(t, err)
}

func TestUDPLoopback(t *testing.T) {
	src := newUDPSource(Params{Name: "source"})
	port := startUDPSource(t, src)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *Buffer, 10)
	done := make(chan error)
	go func() {
		done <- src.Run(ctx, func(b *Buffer) { got <- b })
	}()

	sink := newUDPSink(Params{Name: "sink0", WriteTimeout: time.Second})
	require.True(t, sink.SetProperty("host", "127.0.0.1"))
	require.True(t, sink.SetProperty("port", int64(port)))
	require.True(t, sink.SetProperty("sync", false))
	require.NoError(t, sink.Prepare())
	require.NoError(t, sink.Start(context.Background()))
	defer sink.Close()

	require.NoError(t, sink.Write(&Buffer{Data: []byte("hello")}))

	select {
	case b := <-got:
		require.Equal(t, []byte("hello"), b.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestUDPSinkClients(t *testing.T) {
	var conns []*net.UDPConn
	var clients string

	for i := range 2 {
		c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		defer c.Close()
		conns = append(conns, c)

		if i != 0 {
			clients += ","
		}
		clients += "127.0.0.1:" + strconv.Itoa(c.LocalAddr().(*net.UDPAddr).Port)
	}

	sink := newUDPSink(Params{Name: "sink0"})
	require.True(t, sink.SetProperty("host", "127.0.0.1"))
	require.True(t, sink.SetProperty("port", int64(conns[0].LocalAddr().(*net.UDPAddr).Port)))
	require.True(t, sink.SetProperty("clients", clients))
	require.NoError(t, sink.Prepare())
	require.Len(t, sink.addrs, 3)
	require.NoError(t, sink.Start(context.Background()))
	defer sink.Close()

	require.NoError(t, sink.Write(&Buffer{Data: []byte("x")}))

	buf := make([]byte, 16)
	for _, c := range conns {
		c.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		n, _, err := c.ReadFromUDP(buf)
		require.NoError(t, err)
		require.Equal(t, "x", string(buf[:n]))
	}
}

func TestUDPSourceTimeoutWarning(t *testing.T) {
	events := make(chan Event, 10)
	src := newUDPSource(Params{Name: "source", OnEvent: func(ev Event) { events <- ev }})
	require.True(t, src.SetProperty("timeout", int64(50)))
	startUDPSource(t, src)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- src.Run(ctx, func(*Buffer) {})
	}()

	select {
	case ev := <-events:
		require.Equal(t, EventWarning, ev.Type)
		require.Equal(t, "source", ev.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRTPSourceStats(t *testing.T) {
	src := newRTPSource(Params{Name: "source"})

	for _, seq := range []uint16{10, 11, 14, 12, 15} {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    33,
				SequenceNumber: seq,
				SSRC:           0x1234,
			},
			Payload: []byte{1, 2, 3, 4},
		}
		byts, err := pkt.Marshal()
		require.NoError(t, err)
		src.inspect(byts)
	}
	src.inspect([]byte{1})

	st, ok := src.Stats()
	require.True(t, ok)

	v, _ := st.Get("packets-received")
	require.Equal(t, uint64(5), v)
	v, _ = st.Get("packets-lost")
	require.Equal(t, uint64(2), v)
	v, _ = st.Get("invalid-packets")
	require.Equal(t, uint64(1), v)
	v, _ = st.Get("ssrc")
	require.Equal(t, uint32(0x1234), v)
	v, _ = st.Get("bytes-received-total")
	require.Equal(t, uint64(5*16+1), v)
}
