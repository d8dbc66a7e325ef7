package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

const (
	includePrefix   = "@@"
	includeCall     = includePrefix + "include("
	maxIncludeDepth = 32
)

// Include expands "@@include('file'[, {context}])" directives, resolving
// paths relative to the including file. Context values are available to the
// included file (and its own includes) as "@@name". The markdown filter,
// "@@include(markdown('file.md'))", renders the included file as HTML.
type Include struct {
	md goldmark.Markdown
}

func NewInclude() *Include {
	return &Include{md: goldmark.New()}
}

func (t *Include) Name() string { return "file-include" }

func (t *Include) Apply(ctx context.Context, src Source, in asset.Asset) ([]asset.Asset, error) {
	out, err := t.expand(ctx, src, in.Path, in.Data, nil, []string{in.Path})
	if err != nil {
		return nil, err
	}
	return []asset.Asset{{Path: in.Path, Data: out}}, nil
}

type includeDirective struct {
	path   string
	filter string
	vars   map[string]any
}

func (t *Include) expand(ctx context.Context, src Source, file string, data []byte, vars map[string]any, stack []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := substituteVars(string(data), vars)

	var b strings.Builder
	pos := 0
	for {
		i := strings.Index(text[pos:], includeCall)
		if i < 0 {
			b.WriteString(text[pos:])
			break
		}
		start := pos + i
		b.WriteString(text[pos:start])
		line := 1 + strings.Count(text[:start], "\n")

		d, n, err := parseIncludeArgs(text[start+len(includeCall):])
		if err != nil {
			return nil, syntaxErrorf(file, line, "%v", err)
		}
		pos = start + len(includeCall) + n

		body, err := t.resolve(ctx, src, file, line, d, vars, stack)
		if err != nil {
			return nil, err
		}
		b.Write(body)
	}
	return []byte(b.String()), nil
}

func (t *Include) resolve(ctx context.Context, src Source, from string, line int, d includeDirective, vars map[string]any, stack []string) ([]byte, error) {
	target := path.Clean(path.Join(path.Dir(from), d.path))
	if target == ".." || strings.HasPrefix(target, "../") {
		return nil, syntaxErrorf(from, line, "include %q is outside the source tree", d.path)
	}
	if slices.Contains(stack, target) {
		return nil, syntaxErrorf(from, line, "include cycle: %s -> %s", strings.Join(stack, " -> "), target)
	}
	if len(stack) >= maxIncludeDepth {
		return nil, syntaxErrorf(from, line, "includes nested deeper than %d", maxIncludeDepth)
	}
	if d.filter != "" && d.filter != "markdown" {
		return nil, syntaxErrorf(from, line, "unknown include filter %q", d.filter)
	}

	data, err := src.ReadFile(target)
	if err != nil {
		return nil, syntaxErrorf(from, line, "cannot include %q: %v", d.path, err)
	}

	body, err := t.expand(ctx, src, target, data, mergeVars(vars, d.vars), append(slices.Clip(stack), target))
	if err != nil {
		return nil, err
	}
	if d.filter == "markdown" {
		var buf bytes.Buffer
		if err := t.md.Convert(body, &buf); err != nil {
			return nil, syntaxErrorf(target, 0, "markdown: %v", err)
		}
		body = buf.Bytes()
	}
	return body, nil
}

// parseIncludeArgs parses the text following "@@include(" and returns the
// directive and the number of bytes consumed, including the closing paren.
func parseIncludeArgs(s string) (includeDirective, int, error) {
	var d includeDirective
	c := &argCursor{s: s}
	c.skipSpace()

	if id := c.ident(); id != "" {
		c.skipSpace()
		if !c.consume('(') {
			return d, 0, fmt.Errorf("expected ( after %s", id)
		}
		d.filter = id
		c.skipSpace()
	}

	p, err := c.quoted()
	if err != nil {
		return d, 0, err
	}
	if p == "" {
		return d, 0, errors.New("empty include path")
	}
	d.path = p
	c.skipSpace()

	if d.filter != "" {
		if !c.consume(')') {
			return d, 0, fmt.Errorf("expected ) to close %s(", d.filter)
		}
		c.skipSpace()
	}

	if c.consume(',') {
		c.skipSpace()
		raw, err := c.object()
		if err != nil {
			return d, 0, err
		}
		if err := json.Unmarshal([]byte(raw), &d.vars); err != nil {
			return d, 0, fmt.Errorf("invalid include context: %w", err)
		}
		c.skipSpace()
	}

	if !c.consume(')') {
		return d, 0, errors.New("expected ) to close @@include")
	}
	return d, c.pos, nil
}

type argCursor struct {
	s   string
	pos int
}

func (c *argCursor) skipSpace() {
	for c.pos < len(c.s) && strings.IndexByte(" \t\r\n", c.s[c.pos]) >= 0 {
		c.pos++
	}
}

func (c *argCursor) consume(ch byte) bool {
	if c.pos < len(c.s) && c.s[c.pos] == ch {
		c.pos++
		return true
	}
	return false
}

func (c *argCursor) ident() string {
	start := c.pos
	for c.pos < len(c.s) && isIdentByte(c.s[c.pos]) {
		c.pos++
	}
	return c.s[start:c.pos]
}

func (c *argCursor) quoted() (string, error) {
	if c.pos >= len(c.s) || (c.s[c.pos] != '\'' && c.s[c.pos] != '"') {
		return "", errors.New("expected quoted include path")
	}
	q := c.s[c.pos]
	end := strings.IndexByte(c.s[c.pos+1:], q)
	if end < 0 {
		return "", errors.New("unterminated include path")
	}
	v := c.s[c.pos+1 : c.pos+1+end]
	c.pos += end + 2
	return v, nil
}

// object returns a balanced JSON object literal starting at the cursor.
func (c *argCursor) object() (string, error) {
	if c.pos >= len(c.s) || c.s[c.pos] != '{' {
		return "", errors.New("expected include context object")
	}
	start := c.pos
	depth := 0
	inString := false
	for ; c.pos < len(c.s); c.pos++ {
		ch := c.s[c.pos]
		if inString {
			switch ch {
			case '\\':
				c.pos++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				c.pos++
				return c.s[start:c.pos], nil
			}
		}
	}
	return "", errors.New("unterminated include context object")
}

func isIdentByte(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}

// substituteVars replaces "@@name" and "@@name.field" references found in
// vars. Unknown references and the include keyword are left untouched.
func substituteVars(text string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(text, includePrefix) {
		return text
	}
	var b strings.Builder
	for {
		i := strings.Index(text, includePrefix)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		rest := text[i+len(includePrefix):]
		n := 0
		for n < len(rest) && (isIdentByte(rest[n]) || rest[n] == '.') {
			n++
		}
		name := strings.TrimRight(rest[:n], ".")
		if v, ok := lookupVar(vars, name); ok && name != "include" {
			b.WriteString(formatVar(v))
			text = rest[len(name):]
			continue
		}
		b.WriteString(includePrefix)
		text = rest
	}
}

func lookupVar(vars map[string]any, name string) (any, bool) {
	if name == "" {
		return nil, false
	}
	if v, ok := vars[name]; ok {
		return v, true
	}
	head, tail, found := strings.Cut(name, ".")
	if !found {
		return nil, false
	}
	nested, ok := vars[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupVar(nested, tail)
}

func formatVar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func mergeVars(parent, child map[string]any) map[string]any {
	if len(child) == 0 {
		return parent
	}
	out := make(map[string]any, len(parent)+len(child))
	maps.Copy(out, parent)
	maps.Copy(out, child)
	return out
}
