package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns the global logger tagged with a component name, or base
// when one is supplied.
func Component(base *zerolog.Logger, name string) zerolog.Logger {
	if base != nil {
		return base.With().Str("component", name).Logger()
	}
	return log.Logger.With().Str("component", name).Logger()
}
