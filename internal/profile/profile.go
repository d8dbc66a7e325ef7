// Package profile holds the closed set of build profiles (development and
// release) and the options each one enables.
package profile

import (
	"fmt"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"
)

// Name identifies a profile.
type Name string

const (
	Dev     Name = "dev"
	Release Name = "release"
)

var nameNormalizer = normalization.NewNormalizer(map[string]Name{
	"dev":         Dev,
	"development": Dev,
	"release":     Release,
	"prod":        Release,
	"production":  Release,
}, "")

// ParseName resolves a profile name, accepting the common long forms.
func ParseName(raw string) (Name, error) {
	n, err := nameNormalizer.NormalizeWithError(raw)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "unknown profile").
			Fatal().
			WithContext("profile", raw).
			Build()
	}
	return n, nil
}

// Profile is the immutable build configuration of one sequence run.
type Profile struct {
	Name            Name
	DestinationRoot string
	options         OptionSet
}

// Enabled reports whether an option is on for this profile.
func (p Profile) Enabled(key string) bool {
	return p.options.Enabled(key)
}

// Options returns a copy of the profile's options.
func (p Profile) Options() OptionSet {
	return p.options.Clone()
}

// Watches reports whether changes to the category should be watched.
func (p Profile) Watches(c asset.Category) bool {
	return p.options.Enabled(WatchOption(c))
}

func (p Profile) String() string { return string(p.Name) }

// Defaults returns the canonical options of a profile.
func Defaults(name Name) (OptionSet, bool) {
	switch name {
	case Dev:
		opts := OptionSet{
			OptLiveReload:    true,
			OptMinifyScripts: false,
			OptMinifyStyles:  false,
		}
		for _, c := range asset.Categories() {
			opts[WatchOption(c)] = true
		}
		return opts, true
	case Release:
		return OptionSet{
			OptLiveReload:    false,
			OptMinifyScripts: true,
			OptMinifyStyles:  true,
		}, true
	default:
		return nil, false
	}
}

// Select builds the profile for name, layering overrides on the canonical
// options. Unknown names and unknown option keys are configuration errors.
func Select(name Name, destinationRoot string, overrides OptionSet) (Profile, error) {
	opts, ok := Defaults(name)
	if !ok {
		return Profile{}, ferrors.ConfigError("unknown profile").
			WithContext("profile", string(name)).
			Build()
	}
	if err := overrides.Validate(); err != nil {
		return Profile{}, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid profile options").
			Fatal().
			WithContext("profile", string(name)).
			Build()
	}
	for k, v := range overrides {
		opts[k] = v
	}
	if destinationRoot == "" {
		return Profile{}, ferrors.ConfigError("destination root is required").
			WithContext("profile", string(name)).
			Build()
	}
	return Profile{Name: name, DestinationRoot: destinationRoot, options: opts}, nil
}

// MustSelect is Select for the compile-time known profiles; it panics on error.
func MustSelect(name Name, destinationRoot string) Profile {
	p, err := Select(name, destinationRoot, nil)
	if err != nil {
		panic(fmt.Sprintf("profile: %v", err))
	}
	return p
}
