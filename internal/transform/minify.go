package transform

import (
	"context"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

const (
	mediaCSS = "text/css"
	mediaJS  = "application/javascript"
	minExt   = ".min"
)

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(mediaCSS, css.Minify)
	m.AddFunc(mediaJS, js.Minify)
	return m
}

// MinifyCSSVariant keeps the stylesheet and adds a minified "name.min.css"
// next to it.
type MinifyCSSVariant struct {
	m *minify.M
}

func NewMinifyCSSVariant() *MinifyCSSVariant {
	return &MinifyCSSVariant{m: newMinifier()}
}

func (t *MinifyCSSVariant) Name() string { return "minify-css" }

func (t *MinifyCSSVariant) Apply(ctx context.Context, _ Source, in asset.Asset) ([]asset.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := t.m.Bytes(mediaCSS, in.Data)
	if err != nil {
		return nil, &SyntaxError{File: in.Path, Msg: err.Error()}
	}
	return []asset.Asset{
		in,
		{Path: asset.WithSuffix(in.Path, minExt), Data: out},
	}, nil
}

// MinifyJS replaces a script with its minified "name.min.js" form.
type MinifyJS struct {
	m *minify.M
}

func NewMinifyJS() *MinifyJS {
	return &MinifyJS{m: newMinifier()}
}

func (t *MinifyJS) Name() string { return "minify-js" }

func (t *MinifyJS) Apply(ctx context.Context, _ Source, in asset.Asset) ([]asset.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := t.m.Bytes(mediaJS, in.Data)
	if err != nil {
		return nil, &SyntaxError{File: in.Path, Msg: err.Error()}
	}
	return []asset.Asset{{Path: asset.WithSuffix(in.Path, minExt), Data: out}}, nil
}
