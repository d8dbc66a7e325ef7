package stage

import (
	"git.home.luguber.info/inful/assetpipe/internal/asset"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
)

// Condition decides whether a step applies under a profile.
type Condition func(p profile.Profile) bool

// Always applies a step under every profile.
func Always(profile.Profile) bool { return true }

// OptionEnabled applies a step when the profile switches key on.
func OptionEnabled(key string) Condition {
	return func(p profile.Profile) bool { return p.Enabled(key) }
}

// Step is one (condition, transform) pair of a category pipeline.
type Step struct {
	When      Condition
	Transform transform.Transform
}

// Name returns the transform name.
func (s Step) Name() string { return s.Transform.Name() }

// Pipeline is the ordered list of steps applied to each source file.
// An empty pipeline copies files unchanged.
type Pipeline []Step

// Active returns the steps whose condition holds under p.
func (pl Pipeline) Active(p profile.Profile) Pipeline {
	out := make(Pipeline, 0, len(pl))
	for _, s := range pl {
		if s.When == nil || s.When(p) {
			out = append(out, s)
		}
	}
	return out
}

// DefaultPipelines returns the transform pipeline of every category.
func DefaultPipelines() map[asset.Category]Pipeline {
	return map[asset.Category]Pipeline{
		asset.Markup: {
			{When: Always, Transform: transform.NewInclude()},
		},
		asset.Styles: {
			{When: Always, Transform: transform.NewStyleCompile()},
			{When: OptionEnabled(profile.OptMinifyStyles), Transform: transform.NewMinifyCSSVariant()},
		},
		asset.Scripts: {
			{When: OptionEnabled(profile.OptMinifyScripts), Transform: transform.NewMinifyJS()},
		},
		asset.Images: nil,
		asset.Fonts:  nil,
		asset.Libs:   nil,
	}
}
