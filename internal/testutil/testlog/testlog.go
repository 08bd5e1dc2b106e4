package testlog

import (
	"testing"

	"github.com/danmuck/remotectl/internal/logging"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
	t.Cleanup(func() {
		log.Debug().Str("test", t.Name()).Bool("failed", t.Failed()).Msg("done")
	})
}
