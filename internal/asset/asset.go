package asset

import "path"

// Asset is one file flowing through a transform pipeline. Path is slash
// separated and relative to the source root until the stage maps it to an
// output path.
type Asset struct {
	Path string
	Data []byte
}

// WithExt returns a copy of the asset with its extension replaced.
func (a Asset) WithExt(ext string) Asset {
	return Asset{Path: ReplaceExt(a.Path, ext), Data: a.Data}
}

// ReplaceExt swaps the extension of p ("a/b.scss", ".css" -> "a/b.css").
func ReplaceExt(p, ext string) string {
	return p[:len(p)-len(path.Ext(p))] + ext
}

// WithSuffix inserts suffix before the extension ("a.css", ".min" -> "a.min.css").
func WithSuffix(p, suffix string) string {
	ext := path.Ext(p)
	return p[:len(p)-len(ext)] + suffix + ext
}
