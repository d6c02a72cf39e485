package testlog

import (
	"testing"

	"github.com/danmuck/wireconv/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test=%s", t.Name())
}

// Logf records a progress line in the shared test log.
func Logf(format string, args ...any) {
	log.Info().Msgf(format, args...)
}
