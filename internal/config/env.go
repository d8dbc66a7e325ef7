package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// EnvLogLevel overrides logging.level.
const EnvLogLevel = "ASSETPIPE_LOG_LEVEL"

var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads .env and .env.local from the working directory when
// present. Variables already set in the process environment win.
func LoadEnvFiles() {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			slog.Debug("Loaded environment file", slog.String("file", f))
		}
	}
}
