package profile

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

// Option keys recognised in an OptionSet.
const (
	OptLiveReload    = "liveReload.enabled"
	OptMinifyScripts = "minifyScripts.enabled"
	OptMinifyStyles  = "minifyStyles.enabled"
)

// WatchOption returns the key toggling file watching for a category.
func WatchOption(c asset.Category) string {
	return "watch." + string(c) + ".enabled"
}

// OptionSet maps option keys to their enabled state. Missing keys are disabled.
type OptionSet map[string]bool

// Enabled reports whether key is switched on.
func (o OptionSet) Enabled(key string) bool {
	return o[key]
}

// Clone returns an independent copy.
func (o OptionSet) Clone() OptionSet {
	out := make(OptionSet, len(o))
	maps.Copy(out, o)
	return out
}

// Keys returns the sorted option keys.
func (o OptionSet) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects keys the pipeline does not understand.
func (o OptionSet) Validate() error {
	var unknown []string
	for _, k := range o.Keys() {
		if !IsKnownOption(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown option(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// IsKnownOption reports whether key is a recognised option.
func IsKnownOption(key string) bool {
	switch key {
	case OptLiveReload, OptMinifyScripts, OptMinifyStyles:
		return true
	}
	for _, c := range asset.Categories() {
		if key == WatchOption(c) {
			return true
		}
	}
	return false
}
