package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger derives a child of the process logger tagged with the
// service id and component name. Call it after logging is configured.
func ComponentLogger(service, component string) zerolog.Logger {
	return log.Logger.With().
		Str("service", service).
		Str("component", component).
		Logger()
}
