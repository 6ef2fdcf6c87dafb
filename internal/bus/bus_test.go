package bus

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

type testSender struct {
	mutex sync.Mutex
	msgs  []string
	err   error
}

func (s *testSender) SendString(msg string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *testSender) messages() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.msgs...)
}

func newBus(sender Sender, onFatal func(error)) *Bus {
	b := &Bus{
		Root:    "pipeline",
		Sender:  sender,
		OnFatal: onFatal,
		Parent:  logger.Discard,
	}
	b.Initialize()
	return b
}

func TestTransitions(t *testing.T) {
	b := newBus(nil, nil)
	require.Equal(t, StateBuilding, b.State())

	require.Error(t, b.Transition(StatePlaying))
	require.NoError(t, b.Transition(StateLinked))
	require.NoError(t, b.Transition(StatePlaying))
	require.Error(t, b.Transition(StateLinked))
	require.NoError(t, b.Transition(StateStopped))
	require.NoError(t, b.Transition(StateStopped))
	require.Equal(t, StateStopped, b.State())

	var terr ErrInvalidTransition
	require.ErrorAs(t, b.Transition(StatePlaying), &terr)
	require.Equal(t, StateStopped, terr.From)
}

func TestStopFromBuilding(t *testing.T) {
	b := newBus(nil, nil)
	require.NoError(t, b.Transition(StateStopped))
	require.Equal(t, StateStopped, b.State())
}

func TestFatalError(t *testing.T) {
	fatal := make(chan error, 2)
	b := newBus(nil, func(err error) { fatal <- err })
	require.NoError(t, b.Transition(StateLinked))
	require.NoError(t, b.Transition(StatePlaying))
	b.Start()
	defer b.Stop()

	b.Post(transport.Event{Type: transport.EventError, Origin: "sink0", Err: errors.New("broken")})
	b.Post(transport.Event{Type: transport.EventError, Origin: "sink1", Err: errors.New("broken too")})

	select {
	case err := <-fatal:
		require.EqualError(t, err, "sink0: broken")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	require.Eventually(t, func() bool { return len(b.queue) == 0 }, time.Second, 10*time.Millisecond)
	require.Equal(t, StateErrorStopped, b.State())
	require.EqualError(t, b.Err(), "sink0: broken")
	require.Empty(t, fatal)

	// stop keeps the error state
	require.NoError(t, b.Transition(StateStopped))
	require.Equal(t, StateErrorStopped, b.State())
}

func TestNonFatalEvents(t *testing.T) {
	fatal := make(chan error, 1)
	b := newBus(nil, func(err error) { fatal <- err })
	require.NoError(t, b.Transition(StateLinked))
	require.NoError(t, b.Transition(StatePlaying))
	b.Start()

	b.Post(transport.Event{Type: transport.EventWarning, Origin: "sink0", Err: errors.New("unreachable")})
	b.Post(transport.Event{Type: transport.EventEOS, Origin: "source"})
	b.Post(transport.Event{Type: transport.EventStateChanged, Origin: "sink0", State: "connected"})
	b.Post(transport.Event{Type: transport.EventInfo, Origin: "source", Info: "caller connected"})

	b.Stop()
	require.Empty(t, fatal)
	require.Equal(t, StatePlaying, b.State())
}

func TestAuthenticate(t *testing.T) {
	sender := &testSender{}
	b := newBus(sender, nil)
	b.Start()
	defer b.Stop()

	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	require.True(t, b.Authenticate(remote, "publish:cam1"))
	require.True(t, b.Authenticate(remote, ""))
	require.True(t, b.Authenticate(remote, "publish:cam2"))

	require.Eventually(t, func() bool {
		return len(sender.messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{
		"stats_source_stream_id:publish:cam1",
		"stats_source_stream_id:publish:cam2",
	}, sender.messages())
}

func TestAuthenticateSendFailure(t *testing.T) {
	sender := &testSender{err: errors.New("closed")}
	b := newBus(sender, nil)
	b.Start()
	defer b.Stop()

	require.True(t, b.Authenticate(nil, "abc"))
	require.Eventually(t, func() bool {
		return len(sender.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	b := newBus(nil, nil)
	b.Stop()
	b.Post(transport.Event{Type: transport.EventInfo})
}

type blockingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSender) SendString(string) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

func TestPostDoesNotBlockOnStalledSender(t *testing.T) {
	sender := &blockingSender{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fatal := make(chan error, 1)
	b := newBus(sender, func(err error) { fatal <- err })
	require.NoError(t, b.Transition(StateLinked))
	require.NoError(t, b.Transition(StatePlaying))
	b.Start()
	defer b.Stop()
	defer close(sender.release)

	require.True(t, b.Authenticate(nil, "cam"))
	<-sender.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			b.Authenticate(nil, "cam")
		}
		b.Post(transport.Event{Type: transport.EventWarning, Origin: "source", Err: errors.New("timeout")})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posting blocked while the sender is stalled")
	}

	require.Equal(t, uint64(101-queueSize), b.Dropped())

	// errors bypass the full queue
	b.Post(transport.Event{Type: transport.EventError, Origin: "sink0", Err: errors.New("broken")})

	select {
	case err := <-fatal:
		require.EqualError(t, err, "sink0: broken")
	case <-time.After(2 * time.Second):
		t.Fatal("error was not handled")
	}
	require.Equal(t, StateErrorStopped, b.State())
}
