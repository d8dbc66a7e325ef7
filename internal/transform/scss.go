package transform

import (
	"context"
	"path"
	"slices"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

// StyleCompile compiles an SCSS entry point to CSS. It supports the subset
// the theme sources use: @import/@use of partials, sass-glob style wildcard
// imports, variables with !default/!global, #{} interpolation, nested rules
// with & parent references and nested conditional at-rules.
type StyleCompile struct {
	// Root is the styles source directory searched after the importing
	// file's own directory.
	Root string
}

func NewStyleCompile() *StyleCompile {
	return &StyleCompile{Root: asset.SpecFor(asset.Styles).Base}
}

func (t *StyleCompile) Name() string { return "scss" }

func (t *StyleCompile) Apply(ctx context.Context, src Source, in asset.Asset) ([]asset.Asset, error) {
	c := &scssCompiler{ctx: ctx, src: src, root: t.Root}
	nodes, err := c.load(in.Path, in.Data, []string{in.Path})
	if err != nil {
		return nil, err
	}
	out, err := c.block(nodes, nil, newScope(nil))
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	renderCSS(&b, out, "")
	return []asset.Asset{{Path: asset.ReplaceExt(in.Path, ".css"), Data: []byte(b.String())}}, nil
}

type scssCompiler struct {
	ctx  context.Context
	src  Source
	root string
}

// load parses a file and splices the contents of its imports in place.
func (c *scssCompiler) load(file string, data []byte, stack []string) ([]*node, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := parseSCSS(file, string(data))
	if err != nil {
		return nil, err
	}
	return c.inline(nodes, file, stack)
}

func (c *scssCompiler) inline(nodes []*node, file string, stack []string) ([]*node, error) {
	out := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.kind == nodeAtRule || n.kind == nodeRule {
			children, err := c.inline(n.children, file, stack)
			if err != nil {
				return nil, err
			}
			n.children = children
		}
		if n.kind != nodeAtStmt || !isImportKeyword(n.name) {
			out = append(out, n)
			continue
		}
		imported, err := c.importNode(n, file, stack)
		if err != nil {
			return nil, err
		}
		out = append(out, imported...)
	}
	return out, nil
}

func isImportKeyword(kw string) bool {
	return kw == "import" || kw == "use" || kw == "forward"
}

func (c *scssCompiler) importNode(n *node, file string, stack []string) ([]*node, error) {
	var out []*node
	var plain []string
	for _, arg := range splitTopLevel(n.value, ',') {
		target, ok := unquote(arg)
		if n.name != "import" {
			// @use "x" as y / @forward "x" show z: only the URL matters.
			first := strings.Fields(arg)
			if len(first) > 0 {
				target, ok = unquote(first[0])
			}
		}
		if !ok || isCSSImport(target) {
			if n.name != "import" {
				return nil, syntaxErrorf(file, n.line, "invalid @%s target %s", n.name, arg)
			}
			plain = append(plain, arg)
			continue
		}
		if strings.HasPrefix(target, "sass:") {
			return nil, syntaxErrorf(file, n.line, "built-in module %q is not supported", target)
		}

		files, err := c.resolveImport(file, target)
		if err != nil {
			return nil, syntaxErrorf(file, n.line, "%v", err)
		}
		for _, f := range files {
			if f == file {
				continue
			}
			if slices.Contains(stack, f) {
				return nil, syntaxErrorf(file, n.line, "import cycle: %s -> %s", strings.Join(stack, " -> "), f)
			}
			data, err := c.src.ReadFile(f)
			if err != nil {
				return nil, syntaxErrorf(file, n.line, "cannot read import %q: %v", target, err)
			}
			nodes, err := c.load(f, data, append(slices.Clip(stack), f))
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
	}
	if len(plain) > 0 {
		out = append(out, &node{kind: nodeAtStmt, name: "import", value: strings.Join(plain, ", "), file: file, line: n.line})
	}
	return out, nil
}

// resolveImport maps an import target to source files. Wildcard targets
// expand to every matching file, sorted; an empty expansion is not an error.
func (c *scssCompiler) resolveImport(from, target string) ([]string, error) {
	if strings.ContainsAny(target, "*?[{") {
		matches, err := c.src.Glob(path.Join(path.Dir(from), target))
		if err != nil {
			return nil, err
		}
		out := matches[:0]
		for _, m := range matches {
			if path.Ext(m) == ".scss" || path.Ext(m) == ".css" {
				out = append(out, m)
			}
		}
		return out, nil
	}

	bases := []string{path.Dir(from)}
	if c.root != "" && c.root != path.Dir(from) {
		bases = append(bases, c.root)
	}
	for _, base := range bases {
		for _, candidate := range importCandidates(path.Join(base, target)) {
			if c.src.Exists(candidate) {
				return []string{candidate}, nil
			}
		}
	}
	return nil, &importNotFoundError{target: target}
}

type importNotFoundError struct{ target string }

func (e *importNotFoundError) Error() string {
	return "can't find stylesheet to import: " + e.target
}

func importCandidates(p string) []string {
	dir, name := path.Split(p)
	if path.Ext(name) == ".scss" {
		return []string{p, dir + "_" + name}
	}
	return []string{
		dir + "_" + name + ".scss",
		p + ".scss",
		p + "/_index.scss",
		p + "/index.scss",
	}
}

func isCSSImport(target string) bool {
	return strings.HasSuffix(target, ".css") ||
		strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "//")
}

func unquote(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return s, false
}

// splitTopLevel splits s on sep outside quotes, parens and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" || len(parts) > 0 {
		parts = append(parts, last)
	}
	return parts
}
