package conf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePipeline(t *testing.T) {
	p, err := ParsePipeline([]byte(`{
		"source": {"type": "srtsrc", "localaddress": "127.0.0.1", "localport": 8000,
			"auto-reconnect": true, "latency": 120.5, "nested": {"a": 1}, "mode": "listener"},
		"sinks": [
			{"type": "udpsink", "address": "127.0.0.1", "port": 8003,
				"hydra_destination_id": "d1", "hydra_destination_name": "Dest 1",
				"hydra_destination_schema": "UDP"},
			{"type": "fakesink"}
		]}`))
	require.NoError(t, err)

	require.Equal(t, SourceSpec{
		Type: "srtsrc",
		Properties: Properties{
			{Name: "localaddress", Value: "127.0.0.1"},
			{Name: "localport", Value: int64(8000)},
			{Name: "auto-reconnect", Value: true},
			{Name: "latency", Value: 120.5},
			{Name: "mode", Value: "listener"},
		},
	}, p.Source)

	require.Equal(t, []SinkSpec{
		{
			Type: "udpsink",
			Properties: Properties{
				{Name: "address", Value: "127.0.0.1"},
				{Name: "port", Value: int64(8003)},
			},
			DestinationID:     "d1",
			DestinationName:   "Dest 1",
			DestinationSchema: "UDP",
		},
		{Type: "fakesink"},
	}, p.Sinks)

	s, ok := p.Source.Properties.String("mode")
	require.True(t, ok)
	require.Equal(t, "listener", s)
}

func TestParsePipelineZeroSinks(t *testing.T) {
	p, err := ReadPipeline(strings.NewReader(`{"source":{"type":"fake"},"sinks":[]}` + "\n"))
	require.NoError(t, err)
	require.Empty(t, p.Sinks)
}

func TestParsePipelineErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing source", `{"sinks":[]}`},
		{"missing sinks", `{"source":{"type":"fake"}}`},
		{"source not object", `{"source":1,"sinks":[]}`},
		{"missing type", `{"source":{"port":1},"sinks":[]}`},
		{"type not string", `{"source":{"type":3},"sinks":[]}`},
		{"sink missing type", `{"source":{"type":"fake"},"sinks":[{"port":1}]}`},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := ParsePipeline([]byte(ca.doc))
			require.Error(t, err)
		})
	}
}
