package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	srt "github.com/datarhei/gosrt"
)

const (
	srtDefaultPort      = 7001
	srtReadBufferSize   = 2048
	srtReconnectDelay   = time.Second
	srtDefaultLatencyMs = 125
)

type srtMode int

const (
	srtModeCaller srtMode = iota + 1
	srtModeListener
	srtModeRendezvous
)

func (m srtMode) String() string {
	switch m {
	case srtModeCaller:
		return "caller"
	case srtModeListener:
		return "listener"
	case srtModeRendezvous:
		return "rendezvous"
	}
	return "unknown"
}

// srtEndpoint holds the settings shared by the SRT source and sink.
type srtEndpoint struct {
	params *Params

	mode           srtMode
	host           string
	port           int
	streamID       string
	passphrase     string
	pbkeylen       int
	latency        time.Duration
	pollTimeout    time.Duration
	autoReconnect  bool
	authentication bool

	address string
}

func newSRTEndpoint(params *Params) srtEndpoint {
	return srtEndpoint{
		params:        params,
		mode:          srtModeCaller,
		port:          srtDefaultPort,
		latency:       srtDefaultLatencyMs * time.Millisecond,
		autoReconnect: true,
	}
}

func (e *srtEndpoint) setMode(value any) bool {
	switch v := value.(type) {
	case string:
		switch v {
		case "caller":
			e.mode = srtModeCaller
		case "listener":
			e.mode = srtModeListener
		case "rendezvous":
			e.params.Log(warnLevel, "SRT mode rendezvous is not supported")
			return false
		default:
			e.params.Log(warnLevel, "unknown SRT mode: %s", v)
			return false
		}
		e.params.Log(debugLevel, "set mode=%s", e.mode)
		return true

	default:
		i, ok := propInt(value)
		if !ok || (srtMode(i) != srtModeCaller && srtMode(i) != srtModeListener) {
			e.params.Log(warnLevel, "unsupported SRT mode: %v", value)
			return false
		}
		e.mode = srtMode(i)
		e.params.Log(debugLevel, "set mode=%s", e.mode)
		return true
	}
}

func (e *srtEndpoint) setURI(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}
	if u.Scheme != "srt" {
		return fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	e.host = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port '%s'", p)
		}
		e.port = port
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if !e.setProperty(key, values[0]) {
			e.params.Log(debugLevel, "ignoring uri parameter '%s'", key)
		}
	}

	return nil
}

// setProperty applies a property shared by sources and sinks.
func (e *srtEndpoint) setProperty(name string, value any) bool {
	switch name {
	case "uri":
		v, ok := propString(value)
		if !ok {
			return false
		}
		err := e.setURI(v)
		if err != nil {
			e.params.Log(warnLevel, "invalid uri '%s': %v", v, err)
			return false
		}
		return true

	case "mode":
		return e.setMode(value)

	case "localaddress":
		v, ok := propString(value)
		if ok {
			e.host = v
		}
		return ok

	case "localport":
		v, ok := propPort(value)
		if ok {
			e.port = v
		}
		return ok

	case "streamid":
		v, ok := propString(value)
		if ok {
			e.streamID = v
		}
		return ok

	case "passphrase":
		v, ok := propString(value)
		if ok {
			e.passphrase = v
		}
		return ok

	case "pbkeylen":
		v, ok := propInt(value)
		if !ok || (v != 0 && v != 16 && v != 24 && v != 32) {
			return false
		}
		e.pbkeylen = int(v)
		return true

	case "latency":
		v, ok := propMillis(value)
		if ok {
			e.latency = v
		}
		return ok

	case "poll-timeout":
		v, ok := propMillis(value)
		if ok {
			e.pollTimeout = v
		}
		return ok

	case "auto-reconnect":
		v, ok := propBool(value)
		if ok {
			e.autoReconnect = v
		}
		return ok

	case "authentication":
		v, ok := propBool(value)
		if ok {
			e.authentication = v
		}
		return ok
	}
	return false
}

func (e *srtEndpoint) config() srt.Config {
	c := srt.DefaultConfig()
	c.StreamId = e.streamID
	c.Passphrase = e.passphrase
	c.Latency = e.latency
	if e.pbkeylen != 0 {
		c.PBKeylen = e.pbkeylen
	}
	if e.pollTimeout > 0 {
		c.ConnectionTimeout = e.pollTimeout
	}
	return c
}

func (e *srtEndpoint) prepare() error {
	if e.mode == srtModeCaller && e.host == "" {
		return fmt.Errorf("caller mode requires a remote address")
	}

	e.address = net.JoinHostPort(e.host, strconv.Itoa(e.port))

	c := e.config()
	err := c.Validate()
	if err != nil {
		return fmt.Errorf("invalid SRT config: %w", err)
	}

	return nil
}

func srtAddrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

// srtConnStats converts connection statistics into a structure.
func srtConnStats(conn srt.Conn) Structure {
	var s srt.Statistics
	conn.Stats(&s)

	var st Structure
	st.Add("packets-sent", s.Accumulated.PktSent)
	st.Add("packets-sent-lost", s.Accumulated.PktSendLoss)
	st.Add("packets-retransmitted", s.Accumulated.PktRetrans)
	st.Add("packets-sent-dropped", s.Accumulated.PktSendDrop)
	st.Add("bytes-sent", s.Accumulated.ByteSent)
	st.Add("bytes-retransmitted", s.Accumulated.ByteRetrans)
	st.Add("packets-received", s.Accumulated.PktRecv)
	st.Add("packets-received-lost", s.Accumulated.PktRecvLoss)
	st.Add("packets-received-dropped", s.Accumulated.PktRecvDrop)
	st.Add("bytes-received", s.Accumulated.ByteRecv)
	st.Add("bytes-received-lost", s.Accumulated.ByteRecvLoss)
	st.Add("rtt-ms", s.Instantaneous.MsRTT)
	st.Add("send-rate-mbps", s.Instantaneous.MbpsSentRate)
	st.Add("receive-rate-mbps", s.Instantaneous.MbpsRecvRate)
	st.Add("bandwidth-mbps", s.Instantaneous.MbpsLinkCapacity)
	return st
}

func srtBytesReceived(conn srt.Conn) uint64 {
	var s srt.Statistics
	conn.Stats(&s)
	return s.Accumulated.ByteRecv
}
