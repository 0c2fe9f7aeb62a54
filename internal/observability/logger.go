package observability

import "github.com/rs/zerolog"

// ComponentLogger derives a child of base tagged with component.
func ComponentLogger(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
