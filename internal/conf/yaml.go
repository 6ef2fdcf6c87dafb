package conf

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"
)

func convertKeys(i any) (any, error) {
	switch x := i.(type) {
	case map[any]any:
		out := make(map[string]any)
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("integer keys are not supported (%v)", k)
			}

			var err error
			out[ks], err = convertKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			var err error
			out[i], err = convertKeys(v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	return i, nil
}

// unmarshalYAML decodes YAML by converting it to JSON, in order to reuse
// the JSON unmarshalers of every parameter type.
func unmarshalYAML(buf []byte, dest any) error {
	var temp any
	err := yaml.Unmarshal(buf, &temp)
	if err != nil {
		return err
	}

	// an empty document decodes to nil
	if temp == nil {
		return nil
	}

	temp, err = convertKeys(temp)
	if err != nil {
		return err
	}

	buf, err = json.Marshal(temp)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
