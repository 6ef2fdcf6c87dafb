package stats

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/hydra-streaming/relay/internal/counters"
	"github.com/hydra-streaming/relay/internal/transport"
)

const (
	fieldCallers       = "callers"
	fieldCallerAddress = "caller-address"
	fieldBytesReceived = "bytes-received-total"
)

// Field is a transport statistics value passed through to the report.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered set of fields, encoded as a JSON object.
type Fields []Field

// MarshalJSON implements json.Marshaler.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, field := range f {
		if i != 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of a field.
func (f Fields) Get(name string) (any, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// SourceReport is the source section of a report.
type SourceReport struct {
	Type          string `json:"type"`
	BytesInTotal  uint64 `json:"bytes_in_total"`
	BytesInPerSec uint64 `json:"bytes_in_per_sec"`
	SRT           Fields `json:"srt,omitempty"`
}

// DestinationReport is the report of a destination.
type DestinationReport struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Schema         string `json:"schema,omitempty"`
	Type           string `json:"type"`
	BytesOutTotal  uint64 `json:"bytes_out_total"`
	BytesOutPerSec uint64 `json:"bytes_out_per_sec"`
	SRT            Fields `json:"srt,omitempty"`
}

// Report is published once per interval.
type Report struct {
	TotalBytesReceived uint64              `json:"total-bytes-received"`
	ConnectedCallers   uint64              `json:"connected-callers"`
	Callers            []Fields            `json:"callers"`
	Source             SourceReport        `json:"source"`
	Destinations       []DestinationReport `json:"destinations"`
}

// passthrough keeps numeric and boolean fields.
func passthrough(st transport.Structure, keepAddress bool) Fields {
	out := Fields{}

	for _, f := range st {
		switch v := f.Value.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, bool:
			out = append(out, Field{Name: f.Name, Value: v})

		case float32:
			if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
				out = append(out, Field{Name: f.Name, Value: v})
			}

		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out = append(out, Field{Name: f.Name, Value: v})
			}

		case string:
			if keepAddress && f.Name == fieldCallerAddress {
				out = append(out, Field{Name: f.Name, Value: v})
			}
		}
	}

	return out
}

func queryStats(p transport.StatsProvider) (transport.Structure, bool) {
	if p == nil {
		return nil, false
	}
	return p.Stats()
}

func toUint64(v any) (uint64, bool) {
	switch tv := v.(type) {
	case uint64:
		return tv, true
	case uint32:
		return uint64(tv), true
	case uint:
		return uint64(tv), true
	case int64:
		if tv >= 0 {
			return uint64(tv), true
		}
	case int:
		if tv >= 0 {
			return uint64(tv), true
		}
	}
	return 0, false
}

// BuildReport merges a registry snapshot with transport statistics.
// Missing transport statistics fall back to byte counters.
func BuildReport(snap counters.Snapshot, source transport.StatsProvider) Report {
	r := Report{
		TotalBytesReceived: snap.Source.Total,
		Callers:            []Fields{},
		Source: SourceReport{
			Type:          snap.SourceType,
			BytesInTotal:  snap.Source.Total,
			BytesInPerSec: snap.Source.PerSec,
		},
		Destinations: make([]DestinationReport, 0, len(snap.Branches)),
	}

	if st, ok := queryStats(source); ok {
		r.Source.SRT = passthrough(st, false)

		if v, ok := st.Get(fieldBytesReceived); ok {
			if n, ok := toUint64(v); ok {
				r.TotalBytesReceived = n
			}
		}

		if v, ok := st.Get(fieldCallers); ok {
			if callers, ok := v.([]transport.Structure); ok {
				for _, c := range callers {
					r.Callers = append(r.Callers, passthrough(c, true))
				}
			}
		}

		r.ConnectedCallers = uint64(len(r.Callers))
	}

	for _, b := range snap.Branches {
		d := DestinationReport{
			ID:             b.Identity.ID,
			Name:           b.Identity.Name,
			Schema:         b.Identity.Schema,
			Type:           b.Identity.Type,
			BytesOutTotal:  b.Total,
			BytesOutPerSec: b.PerSec,
		}

		if st, ok := queryStats(b.Stats); ok {
			d.SRT = passthrough(st, false)
		}

		r.Destinations = append(r.Destinations, d)
	}

	return r
}
