package asset

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Spec describes where a category's sources live and where its output goes.
// All paths are slash separated and relative to the source or destination root.
type Spec struct {
	Category Category
	// Include selects source files to build.
	Include []string
	// Exclude removes files from Include (stylesheet partials).
	Exclude []string
	// Watch selects files whose change re-runs the category. It is a superset
	// of Include: partials are not compiled but are imported by files that are.
	Watch []string
	// Base is stripped from source paths when computing output paths.
	Base string
	// DestDir is the category's destination subdirectory; empty means the
	// destination root itself.
	DestDir string
	// Clean selects the destination files removed before a run when DestDir is
	// the shared destination root.
	Clean string
}

var specs = map[Category]Spec{
	Markup: {
		Category: Markup,
		Include:  []string{"*.html"},
		Watch:    []string{"*.html", "*.md", "partials/**", "includes/**"},
		Clean:    "*.html",
	},
	Styles: {
		Category: Styles,
		Include:  []string{"scss/**/*.scss"},
		Exclude:  []string{"scss/**/_*.scss"},
		Watch:    []string{"scss/**/*.scss"},
		Base:     "scss",
		DestDir:  "css",
	},
	Scripts: {
		Category: Scripts,
		Include:  []string{"js/**/*.js"},
		Watch:    []string{"js/**/*.js"},
		Base:     "js",
		DestDir:  "js",
	},
	Images: {
		Category: Images,
		Include:  []string{"images/**/*"},
		Watch:    []string{"images/**/*"},
		Base:     "images",
		DestDir:  "images",
	},
	Fonts: {
		Category: Fonts,
		Include:  []string{"fonts/**/*"},
		Watch:    []string{"fonts/**/*"},
		Base:     "fonts",
		DestDir:  "fonts",
	},
	Libs: {
		Category: Libs,
		Include:  []string{"libs/**/*"},
		Watch:    []string{"libs/**/*"},
		Base:     "libs",
		DestDir:  "libs",
	},
}

// SpecFor returns the layout of a category. Unknown categories yield a zero Spec.
func SpecFor(c Category) Spec {
	s, ok := specs[c]
	if !ok {
		return Spec{}
	}
	return s
}

// Matches reports whether relPath is a buildable source of the category.
func (s Spec) Matches(relPath string) bool {
	return matchAny(s.Include, relPath) && !matchAny(s.Exclude, relPath)
}

// Watches reports whether a change to relPath affects the category.
func (s Spec) Watches(relPath string) bool {
	return matchAny(s.Watch, relPath)
}

// OutputPath maps a source path to its path below the destination root.
func (s Spec) OutputPath(relPath string) string {
	rel := relPath
	if s.Base != "" {
		rel = strings.TrimPrefix(rel, s.Base+"/")
	}
	if s.DestDir == "" {
		return rel
	}
	return path.Join(s.DestDir, rel)
}

// CategoryFor returns the first category (in build order) watching relPath.
func CategoryFor(relPath string) (Category, bool) {
	for _, c := range Categories() {
		if specs[c].Watches(relPath) {
			return c, true
		}
	}
	return "", false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
