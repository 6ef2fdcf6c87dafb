// Package control contains the channel towards the control process.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hydra-streaming/relay/internal/logger"
)

// DefaultEndpoint is the endpoint of the control process.
const DefaultEndpoint = "/tmp/hydra_unix_sock"

// ErrNotConnected is returned by Send when the channel is not connected.
var ErrNotConnected = errors.New("control channel is not connected")

// ParseEndpoint converts an endpoint into a network and an address.
// Accepted forms are a bare socket path, unix:///path and tcp://host:port.
func ParseEndpoint(v string) (string, string, error) {
	if v == "" {
		return "", "", fmt.Errorf("empty endpoint")
	}

	if !strings.Contains(v, "://") {
		return "unix", v, nil
	}

	u, err := url.Parse(v)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "unix":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if p == "" {
			return "", "", fmt.Errorf("missing socket path in '%s'", v)
		}
		return "unix", p, nil

	case "tcp":
		if u.Port() == "" {
			return "", "", fmt.Errorf("missing port in '%s'", v)
		}
		return "tcp", u.Host, nil
	}

	return "", "", fmt.Errorf("unsupported endpoint scheme '%s'", u.Scheme)
}

// Channel is a persistent connection to the control process.
// Messages are framed with a 4-byte big-endian length. Nothing is read back.
type Channel struct {
	Endpoint     string
	WriteTimeout time.Duration
	Parent       logger.Writer

	mutex sync.Mutex
	conn  net.Conn
}

// Log implements logger.Writer.
func (c *Channel) Log(level logger.Level, format string, args ...any) {
	c.Parent.Log(level, "[control] "+format, args...)
}

// Connect connects to the control process.
func (c *Channel) Connect(ctx context.Context) error {
	network, address, err := ParseEndpoint(c.Endpoint)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("unable to connect to control process at %s: %w", c.Endpoint, err)
	}

	c.mutex.Lock()
	c.conn = conn
	c.mutex.Unlock()

	c.Log(logger.Info, "connected to %s", c.Endpoint)
	return nil
}

// Send sends a message. Sends are serialized.
// A write that fails after part of the frame was written closes the connection,
// since the stream cannot be resynchronized.
func (c *Channel) Send(payload []byte) error {
	buf, err := marshalFrame(payload)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if c.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)) //nolint:errcheck
	}

	n, err := c.conn.Write(buf)
	if err != nil && n > 0 && n < len(buf) {
		c.conn.Close()
		c.conn = nil
		c.Log(logger.Warn, "connection closed after a partial write (%d of %d bytes): %v", n, len(buf), err)
	}
	return err
}

// SendString sends a text message.
func (c *Channel) SendString(msg string) error {
	return c.Send([]byte(msg))
}

// Close closes the connection.
func (c *Channel) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
