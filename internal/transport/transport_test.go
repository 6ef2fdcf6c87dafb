package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, ca := range []struct {
		typ  string
		role Role
		kind Kind
	}{
		{"fake", RoleSource, KindFake},
		{"fakesrc", RoleSource, KindFake},
		{"udp", RoleSource, KindUDP},
		{"udpsrc", RoleSource, KindUDP},
		{"rtp", RoleSource, KindRTP},
		{"srtsrc", RoleSource, KindSRT},
		{"fakesink", RoleSink, KindFake},
		{"udpsink", RoleSink, KindUDP},
		{"srt", RoleSink, KindSRT},
	} {
		t.Run(ca.typ, func(t *testing.T) {
			k, err := ParseKind(ca.typ, ca.role)
			require.NoError(t, err)
			require.Equal(t, ca.kind, k)
		})
	}

	for _, ca := range []struct {
		typ  string
		role Role
	}{
		{"webrtc", RoleSource},
		{"udpsink", RoleSource},
		{"srtsrc", RoleSink},
		{"rtp", RoleSink},
		{"", RoleSink},
	} {
		_, err := ParseKind(ca.typ, ca.role)
		require.ErrorIs(t, err, ErrUnsupportedType)
	}
}

func TestNewSinkRTPUnsupported(t *testing.T) {
	_, err := NewSink(KindRTP, Params{Name: "sink0"})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPropertyConversions(t *testing.T) {
	i, ok := propInt("42")
	require.True(t, ok)
	require.Equal(t, int64(42), i)

	_, ok = propInt(1.5)
	require.False(t, ok)

	b, ok := propBool("true")
	require.True(t, ok)
	require.True(t, b)

	_, ok = propPort(int64(70000))
	require.False(t, ok)

	d, ok := propMillis(int64(250))
	require.True(t, ok)
	require.Equal(t, 250*time.Millisecond, d)
}

func TestStructureGet(t *testing.T) {
	var st Structure
	st.Add("a", uint64(1))
	st.Add("b", "x")

	v, ok := st.Get("b")
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = st.Get("c")
	require.False(t, ok)
}

func TestEventOrigin(t *testing.T) {
	var got []Event
	p := Params{Name: "sink3", OnEvent: func(ev Event) { got = append(got, ev) }}
	p.post(Event{Type: EventInfo, Info: "hello"})

	require.Equal(t, []Event{{Type: EventInfo, Origin: "sink3", Info: "hello"}}, got)
}

func TestFakeSourcePush(t *testing.T) {
	s := newFakeSource(Params{Name: "source"})
	require.True(t, s.SetProperty("do-timestamp", true))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Buffer, 10)
	done := make(chan error)
	go func() {
		done <- s.Run(ctx, func(b *Buffer) { got <- b })
	}()

	require.True(t, s.Push([]byte{1, 2, 3}))

	b := <-got
	require.Equal(t, []byte{1, 2, 3}, b.Data)
	require.False(t, b.Timestamp.IsZero())

	cancel()
	require.NoError(t, <-done)

	s.Close()
	require.False(t, s.Push([]byte{4}))
}

func TestFakeSourceErrorAfter(t *testing.T) {
	s := newFakeSource(Params{Name: "source"})
	require.True(t, s.SetProperty("num-buffers", int64(10)))
	require.True(t, s.SetProperty("size", int64(100)))
	require.True(t, s.SetProperty("error-after", int64(3)))
	require.False(t, s.SetProperty("unknown", int64(3)))

	n := 0
	err := s.Run(context.Background(), func(b *Buffer) {
		require.Len(t, b.Data, 100)
		n++
	})
	require.Error(t, err)
	require.Equal(t, 3, n)
}

func TestFakeSink(t *testing.T) {
	s := newFakeSink(Params{Name: "sink0"})
	require.NoError(t, s.Prepare())

	require.NoError(t, s.Write(&Buffer{Data: make([]byte, 10)}))
	require.NoError(t, s.Write(&Buffer{Data: make([]byte, 5)}))
	require.Equal(t, uint64(15), s.Received())
	require.Equal(t, uint64(2), s.Buffers())

	require.True(t, s.SetProperty("error-on-write", true))
	require.Error(t, s.Write(&Buffer{Data: []byte{1}}))
}

func TestFakeSinkBlockUnblocksOnClose(t *testing.T) {
	s := newFakeSink(Params{Name: "sink0"})
	require.True(t, s.SetProperty("block", true))

	done := make(chan error)
	go func() {
		done <- s.Write(&Buffer{Data: []byte{1}})
	}()

	select {
	case <-done:
		t.Fatal("write did not block")
	case <-time.After(50 * time.Millisecond):
	}

	s.Close()
	require.NoError(t, <-done)
	require.Equal(t, uint64(0), s.Received())
}

func TestPacer(t *testing.T) {
	p := pacer{enabled: true}
	start := time.Now()
	ts := time.Now()

	require.True(t, p.wait(&Buffer{Timestamp: ts}, nil))
	require.True(t, p.wait(&Buffer{Timestamp: ts.Add(100 * time.Millisecond)}, nil))
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	done := make(chan struct{})
	close(done)
	require.False(t, p.wait(&Buffer{Timestamp: ts.Add(time.Hour)}, done))
}
