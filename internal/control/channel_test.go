package control

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydra-streaming/relay/internal/logger"
)

func TestParseEndpoint(t *testing.T) {
	for _, ca := range []struct {
		in      string
		network string
		address string
	}{
		{"/tmp/hydra_unix_sock", "unix", "/tmp/hydra_unix_sock"},
		{"unix:///var/run/hydra.sock", "unix", "/var/run/hydra.sock"},
		{"tcp://127.0.0.1:9000", "tcp", "127.0.0.1:9000"},
	} {
		t.Run(ca.in, func(t *testing.T) {
			network, address, err := ParseEndpoint(ca.in)
			require.NoError(t, err)
			require.Equal(t, ca.network, network)
			require.Equal(t, ca.address, address)
		})
	}

	for _, in := range []string{"", "tcp://127.0.0.1", "http://localhost:80", "unix://"} {
		_, _, err := ParseEndpoint(in)
		require.Error(t, err, in)
	}
}

func TestFrameLayout(t *testing.T) {
	for _, l := range []int{0, 1, 300, 70000} {
		payload := bytes.Repeat([]byte{'a'}, l)
		buf, err := marshalFrame(payload)
		require.NoError(t, err)
		require.Len(t, buf, 4+l)
		require.Equal(t, []byte{byte(l >> 24), byte(l >> 16), byte(l >> 8), byte(l)}, buf[:4])

		dec, err := ReadFrame(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, payload, dec)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 'a'}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSendNotConnected(t *testing.T) {
	c := &Channel{Endpoint: "/nonexistent", Parent: logger.Discard}
	require.ErrorIs(t, c.SendString("x"), ErrNotConnected)
}

func TestConnectFailure(t *testing.T) {
	c := &Channel{
		Endpoint: filepath.Join(t.TempDir(), "missing.sock"),
		Parent:   logger.Discard,
	}
	require.Error(t, c.Connect(context.Background()))
}

func TestUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err2 := ln.Accept()
		if err2 != nil {
			return
		}
		defer conn.Close()
		byts, _ := io.ReadAll(conn)
		received <- byts
	}()

	c := &Channel{Endpoint: "unix://" + path, Parent: logger.Discard}
	require.NoError(t, c.Connect(context.Background()))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.SendString("0123456789"))
		}()
	}
	wg.Wait()

	require.NoError(t, c.Send([]byte(`{"a":1}`)))
	c.Close()

	byts := <-received
	require.Len(t, byts, 10*(4+10)+4+7)

	r := bytes.NewReader(byts)
	for range 10 {
		msg, err := ReadFrame(r)
		require.NoError(t, err)
		require.Equal(t, "0123456789", string(msg))
	}
	msg, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(msg))
}

func TestSendPartialWriteCloses(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	head := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 6)
		_, err := io.ReadFull(server, buf)
		if err != nil {
			return
		}
		head <- buf
	}()

	c := &Channel{
		WriteTimeout: 50 * time.Millisecond,
		Parent:       logger.Discard,
		conn:         client,
	}

	err := c.SendString("first-report")
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Equal(t, []byte{0, 0, 0, 12, 'f', 'i'}, <-head)

	require.ErrorIs(t, c.SendString("second"), ErrNotConnected)

	// the peer sees the connection closed instead of a shifted frame
	_, err = server.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestSendTimeoutWithoutWriteKeepsConnection(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := &Channel{
		WriteTimeout: 20 * time.Millisecond,
		Parent:       logger.Discard,
		conn:         client,
	}
	defer c.Close()

	require.ErrorIs(t, c.SendString("lost"), os.ErrDeadlineExceeded)

	received := make(chan []byte, 1)
	go func() {
		msg, err := ReadFrame(server)
		if err == nil {
			received <- msg
		}
	}()

	c.WriteTimeout = time.Second
	require.NoError(t, c.SendString("next"))
	require.Equal(t, "next", string(<-received))
}
