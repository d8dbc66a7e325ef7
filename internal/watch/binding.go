package watch

import (
	"context"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
)

// StageRunner runs the stage of one category.
type StageRunner interface {
	Run(ctx context.Context, c asset.Category, p profile.Profile) (stage.Result, error)
}

// Binding ties the source globs of a category to the stage rebuilding it.
type Binding struct {
	Category asset.Category
	Globs    []string
	Stage    func(ctx context.Context) error
}

// Matches reports whether a change to relPath concerns the binding.
func (b Binding) Matches(relPath string) bool {
	return asset.Spec{Watch: b.Globs}.Watches(relPath)
}

// Bindings returns one binding per category the profile watches, in build order.
func Bindings(p profile.Profile, runner StageRunner) []Binding {
	var out []Binding
	for _, c := range asset.Categories() {
		c := c // per-iteration copy: go directive is 1.21, closure below captures c
		if !p.Watches(c) {
			continue
		}
		out = append(out, Binding{
			Category: c,
			Globs:    append([]string(nil), asset.SpecFor(c).Watch...),
			Stage: func(ctx context.Context) error {
				_, err := runner.Run(ctx, c, p)
				return err
			},
		})
	}
	return out
}
