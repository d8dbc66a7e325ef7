package config

import (
	"fmt"
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
)

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if filepath.Clean(c.Paths.Source) == filepath.Clean(c.Paths.Destination) {
		return ferrors.ConfigError("source and destination must differ").
			WithContext("src", c.Paths.Source).
			WithContext("dest", c.Paths.Destination).
			Build()
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return ferrors.ConfigError(fmt.Sprintf("server port %d out of range", c.Server.Port)).Build()
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return ferrors.ConfigError(fmt.Sprintf("invalid watch debounce %q", c.Watch.Debounce)).Build()
	}
	seen := make(map[profile.Name]string, len(c.Profiles))
	for name, pc := range c.Profiles {
		n, err := profile.ParseName(name)
		if err != nil {
			return err
		}
		if prev, dup := seen[n]; dup {
			return ferrors.ConfigError("profile configured more than once").
				WithContext("profile", string(n)).
				WithContext("keys", prev+", "+name).
				Build()
		}
		seen[n] = name
		if err := profile.OptionSet(pc.Options).Validate(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid profile options").
				Fatal().
				WithContext("profile", name).
				Build()
		}
	}
	return nil
}
