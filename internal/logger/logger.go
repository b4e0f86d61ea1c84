package logger

import (
	"os"
	"time"

	"github.com/aytch4k/linear-app-productivity-metrics/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "linear-pulse"

// New builds the process logger: console writer in dev, JSON elsewhere,
// stamped with the service name and environment so aggregated logs from
// several deployments stay distinguishable.
func New(cfg config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.AppEnv == "dev" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.With().
		Timestamp().
		Str("svc", serviceName).
		Str("env", cfg.AppEnv).
		Logger()
	log.Logger = logger
	return logger
}
