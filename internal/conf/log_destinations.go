package conf

import (
	"encoding/json"
	"fmt"

	"github.com/hydra-streaming/relay/internal/logger"
)

// LogDestinations is the logDestinations parameter.
type LogDestinations []logger.Destination

// MarshalJSON implements json.Marshaler.
func (d LogDestinations) MarshalJSON() ([]byte, error) {
	out := make([]string, len(d))

	for i, v := range d {
		switch v {
		case logger.DestinationStdout:
			out[i] = "stdout"

		case logger.DestinationFile:
			out[i] = "file"

		default:
			return nil, fmt.Errorf("invalid log destination: %v", v)
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *LogDestinations) UnmarshalJSON(b []byte) error {
	var in []string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*d = nil

	for _, dest := range in {
		var v logger.Destination

		switch dest {
		case "stdout":
			v = logger.DestinationStdout

		case "file":
			v = logger.DestinationFile

		default:
			return fmt.Errorf("invalid log destination: %s", dest)
		}

		for _, prev := range *d {
			if prev == v {
				return fmt.Errorf("log destination set twice")
			}
		}

		*d = append(*d, v)
	}

	return nil
}
