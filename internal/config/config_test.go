package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""), "inline")
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, "src", cfg.Paths.Source)
	assert.Equal(t, "theme", cfg.Paths.Destination)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.DebounceDuration())
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestParse_FullFileWithEnvExpansion(t *testing.T) {
	t.Setenv("THEME_DIR", "public/theme")
	data := `
version: "1"
paths:
  src: assets
  dest: ${THEME_DIR}
server:
  host: 0.0.0.0
  port: 8080
watch:
  debounce: 250ms
profiles:
  production:
    options:
      minifyScripts.enabled: true
  dev:
    options:
      watch.images.enabled: false
logging:
  level: DEBUG
  format: json
metrics:
  enabled: true
`
	cfg, err := Parse([]byte(data), "assetpipe.yaml")
	require.NoError(t, err)

	assert.Equal(t, "assets", cfg.Paths.Source)
	assert.Equal(t, "public/theme", cfg.Paths.Destination)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.DebounceDuration())
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)

	assert.Equal(t, profile.OptionSet{profile.OptMinifyScripts: true}, cfg.ProfileOptions(profile.Release))
	assert.Equal(t, profile.OptionSet{"watch.images.enabled": false}, cfg.ProfileOptions(profile.Dev))
}

func TestParse_LogLevelFromEnvironment(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	cfg, err := Parse([]byte("logging:\n  level: debug\n"), "inline")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
	assert.Equal(t, "WARN", cfg.Logging.Level.SlogLevel().String())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown profile":   "profiles:\n  staging:\n    options: {}\n",
		"unknown option":    "profiles:\n  dev:\n    options:\n      sourcemaps.enabled: true\n",
		"bad debounce":      "watch:\n  debounce: soon\n",
		"negative port":     "server:\n  port: -1\n",
		"same src and dest": "paths:\n  src: site\n  dest: ./site\n",
		"bad version":       "version: \"2\"\n",
		"malformed yaml":    "paths: [\n",
		"duplicate profile": "profiles:\n  prod:\n    options:\n      minifyStyles.enabled: true\n  release:\n    options:\n      minifyStyles.enabled: false\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), "assetpipe.yaml")
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), err.Error())
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "assetpipe.yaml")

	_, err := Load(missing)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))

	cfg, err := LoadOrDefault(missing)
	require.NoError(t, err)
	assert.Equal(t, Default().Paths, cfg.Paths)
}

func TestInit_WritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "theme", cfg.Paths.Destination)
	assert.True(t, cfg.ProfileOptions(profile.Release).Enabled(profile.OptMinifyStyles))

	err = Init(path, false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	require.NoError(t, os.WriteFile(path, []byte("broken: ["), 0o644))
	require.NoError(t, Init(path, true))
	_, err = Load(path)
	require.NoError(t, err)
}
