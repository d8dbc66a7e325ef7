// Package asset defines the asset categories handled by the pipeline, their
// source globs and destination layout, and a filesystem-backed source tree.
package asset

import (
	"git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"
)

// Category identifies one kind of source asset.
type Category string

const (
	Markup  Category = "markup"
	Styles  Category = "styles"
	Scripts Category = "scripts"
	Images  Category = "images"
	Fonts   Category = "fonts"
	Libs    Category = "libs"
)

// Categories returns every category in build order.
func Categories() []Category {
	return []Category{Markup, Styles, Scripts, Images, Fonts, Libs}
}

var categoryNormalizer = normalization.NewNormalizer(map[string]Category{
	"markup":  Markup,
	"html":    Markup,
	"styles":  Styles,
	"scss":    Styles,
	"scripts": Scripts,
	"js":      Scripts,
	"images":  Images,
	"fonts":   Fonts,
	"libs":    Libs,
}, "")

// ParseCategory resolves a category name; the short names (html, scss, js)
// are accepted as aliases.
func ParseCategory(raw string) (Category, error) {
	return categoryNormalizer.NormalizeWithError(raw)
}

func (c Category) String() string { return string(c) }
