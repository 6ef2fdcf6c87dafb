package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type userProp struct {
	name  string
	value any
}

func setUserProps(e Element, role Role, props []userProp) {
	for _, p := range props {
		e.SetProperty(PropertyName(e.Kind(), role, p.name), p.value)
	}
}

func TestConfigureSRTSource(t *testing.T) {
	for _, ca := range []struct {
		name  string
		props []userProp
		auth  bool
	}{
		{
			"no stream id",
			[]userProp{{"mode", "listener"}},
			false,
		},
		{
			"no stream id, user enabled",
			[]userProp{{"mode", "listener"}, {"authentication", true}},
			false,
		},
		{
			"streamid",
			[]userProp{{"mode", "listener"}, {"streamid", "cam"}},
			true,
		},
		{
			"streamid, user disabled",
			[]userProp{{"mode", "listener"}, {"streamid", "cam"}, {"authentication", false}},
			true,
		},
		{
			"uri streamid",
			[]userProp{{"uri", "srt://:7001?mode=listener&streamid=cam"}},
			true,
		},
		{
			"uri streamid, user disabled in uri",
			[]userProp{{"uri", "srt://:7001?mode=listener&streamid=cam&authentication=false"}},
			true,
		},
		{
			"uri without streamid",
			[]userProp{{"uri", "srt://:7001?mode=listener"}},
			false,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			src, err := NewSource(KindSRT, Params{Name: "source"})
			require.NoError(t, err)
			defer src.Close()

			setUserProps(src, RoleSource, ca.props)
			ConfigureSource(src)

			s := src.(*srtSource)
			require.Equal(t, ca.auth, s.authentication)
			require.True(t, s.doTimestamp)
		})
	}
}

func TestConfigureSources(t *testing.T) {
	udp, err := NewSource(KindUDP, Params{Name: "source"})
	require.NoError(t, err)
	defer udp.Close()
	setUserProps(udp, RoleSource, []userProp{{"do-timestamp", false}})
	ConfigureSource(udp)
	require.True(t, udp.(*udpSource).doTimestamp)

	fake, err := NewSource(KindFake, Params{Name: "source"})
	require.NoError(t, err)
	defer fake.Close()
	ConfigureSource(fake)
	require.True(t, fake.(*FakeSource).doTimestamp)
}

func TestConfigureSRTSink(t *testing.T) {
	for _, ca := range []struct {
		name  string
		props []userProp
	}{
		{"defaults", nil},
		{
			"user overrides",
			[]userProp{
				{"uri", "srt://127.0.0.1:7001"},
				{"sync", true},
				{"async", true},
				{"wait-for-connection", false},
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			sink, err := NewSink(KindSRT, Params{Name: "sink0"})
			require.NoError(t, err)
			defer sink.Close()

			setUserProps(sink, RoleSink, ca.props)
			ConfigureSink(sink)

			s := sink.(*srtSink)
			require.False(t, s.sync)
			require.False(t, s.async)
			require.True(t, s.waitForConnection)
		})
	}
}

func TestConfigureUDPSink(t *testing.T) {
	for _, ca := range []struct {
		name  string
		props []userProp
		host  string
		port  int
	}{
		{"defaults", nil, "localhost", 5004},
		{
			"address is host",
			[]userProp{{"address", "10.0.0.5"}, {"port", int64(6000)}},
			"10.0.0.5",
			6000,
		},
		{
			"user overrides",
			[]userProp{{"host", "10.0.0.6"}, {"sync", true}, {"async", true}},
			"10.0.0.6",
			5004,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			sink, err := NewSink(KindUDP, Params{Name: "sink0"})
			require.NoError(t, err)
			defer sink.Close()

			setUserProps(sink, RoleSink, ca.props)
			ConfigureSink(sink)

			s := sink.(*udpSink)
			require.Equal(t, ca.host, s.host)
			require.Equal(t, ca.port, s.port)
			require.False(t, s.sync)
			require.False(t, s.async)
		})
	}
}

func TestPropertyName(t *testing.T) {
	require.Equal(t, "host", PropertyName(KindUDP, RoleSink, "address"))
	require.Equal(t, "address", PropertyName(KindUDP, RoleSource, "address"))
	require.Equal(t, "address", PropertyName(KindSRT, RoleSink, "address"))
	require.Equal(t, "port", PropertyName(KindUDP, RoleSink, "port"))
}
