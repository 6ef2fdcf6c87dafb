package pipeline

import (
	"github.com/hydra-streaming/relay/internal/conf"
	"github.com/hydra-streaming/relay/internal/logger"
	"github.com/hydra-streaming/relay/internal/transport"
)

// applyProperties sets user properties. Properties a transport does not know are skipped.
func applyProperties(e transport.Element, role transport.Role, props conf.Properties, l logger.Writer) {
	for _, p := range props {
		if !e.SetProperty(transport.PropertyName(e.Kind(), role, p.Name), p.Value) {
			l.Log(logger.Debug, "ignoring property '%s'", p.Name)
		}
	}
}
