package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// metadata keys carried by sinks. They are reported, never applied to a transport.
const (
	keyDestinationID     = "hydra_destination_id"
	keyDestinationName   = "hydra_destination_name"
	keyDestinationSchema = "hydra_destination_schema"
)

// Property is a scalar node property.
// Value is a string, a bool, an int64 or a float64.
type Property struct {
	Name  string
	Value any
}

// Properties is an ordered list of properties.
type Properties []Property

// Get returns the value of a property.
func (p Properties) Get(name string) (any, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return nil, false
}

// String returns the value of a string property.
func (p Properties) String(name string) (string, bool) {
	v, ok := p.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p *Properties) set(name string, value any) {
	for i, prop := range *p {
		if prop.Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Property{Name: name, Value: value})
}

// SourceSpec describes the source node.
type SourceSpec struct {
	Type       string
	Properties Properties
}

// SinkSpec describes a destination.
type SinkSpec struct {
	Type              string
	Properties        Properties
	DestinationID     string
	DestinationName   string
	DestinationSchema string
}

// Pipeline is the pipeline document.
type Pipeline struct {
	Source SourceSpec
	Sinks  []SinkSpec
}

// ReadPipeline decodes a single pipeline document from a reader.
func ReadPipeline(r io.Reader) (*Pipeline, error) {
	var doc struct {
		Source json.RawMessage   `json:"source"`
		Sinks  []json.RawMessage `json:"sinks"`
	}

	dec := json.NewDecoder(r)
	err := dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	if doc.Source == nil {
		return nil, fmt.Errorf("invalid pipeline: missing 'source' object")
	}
	if doc.Sinks == nil {
		return nil, fmt.Errorf("invalid pipeline: missing 'sinks' array")
	}

	p := &Pipeline{}

	p.Source.Type, p.Source.Properties, err = decodeNode(doc.Source)
	if err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	p.Sinks = make([]SinkSpec, len(doc.Sinks))

	for i, raw := range doc.Sinks {
		typ, props, err := decodeNode(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid sink %d: %w", i, err)
		}

		sink := SinkSpec{Type: typ}

		for _, prop := range props {
			s, isString := prop.Value.(string)

			switch prop.Name {
			case keyDestinationID:
				if isString {
					sink.DestinationID = s
				}

			case keyDestinationName:
				if isString {
					sink.DestinationName = s
				}

			case keyDestinationSchema:
				if isString {
					sink.DestinationSchema = s
				}

			default:
				sink.Properties = append(sink.Properties, prop)
			}
		}

		p.Sinks[i] = sink
	}

	return p, nil
}

// ParsePipeline decodes a pipeline document.
func ParsePipeline(buf []byte) (*Pipeline, error) {
	return ReadPipeline(bytes.NewReader(buf))
}

// decodeNode decodes a node object, preserving the order of its keys.
// The "type" key is returned separately. Non-scalar values are dropped.
func decodeNode(raw json.RawMessage) (string, Properties, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", nil, fmt.Errorf("must be an object")
	}

	var typ string
	var props Properties

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return "", nil, err
		}
		key := tok.(string)

		var value json.RawMessage
		err = dec.Decode(&value)
		if err != nil {
			return "", nil, err
		}

		if key == "type" {
			var s string
			if json.Unmarshal(value, &s) != nil || s == "" {
				return "", nil, fmt.Errorf("missing or invalid 'type'")
			}
			typ = s
			continue
		}

		v, ok := decodeScalar(value)
		if !ok {
			continue
		}
		props.set(key, v)
	}

	if typ == "" {
		return "", nil, fmt.Errorf("missing or invalid 'type'")
	}

	return typ, props, nil
}

func decodeScalar(raw json.RawMessage) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if dec.Decode(&v) != nil {
		return nil, false
	}

	switch tv := v.(type) {
	case string, bool:
		return tv, true

	case json.Number:
		if i, err := tv.Int64(); err == nil {
			return i, true
		}
		f, err := tv.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	}

	return nil, false
}
