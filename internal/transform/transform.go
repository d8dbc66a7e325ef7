// Package transform contains the per-file transforms applied by the stage
// pipelines: file-include resolution for markup, stylesheet compilation and
// CSS/JS minification.
package transform

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

// Source is read access to the source tree, used to resolve includes and
// imports. *asset.Tree satisfies it.
type Source interface {
	ReadFile(p string) ([]byte, error)
	Exists(p string) bool
	Glob(pattern string) ([]string, error)
}

// Transform turns one asset into zero or more output assets.
type Transform interface {
	Name() string
	Apply(ctx context.Context, src Source, in asset.Asset) ([]asset.Asset, error)
}

// SyntaxError is a diagnostic pointing into a source file.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

func syntaxErrorf(file string, line int, format string, args ...any) *SyntaxError {
	return &SyntaxError{File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}
