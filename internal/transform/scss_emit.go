package transform

import (
	"strings"
)

type scope struct {
	vars   map[string]string
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]string{}, parent: parent}
}

func (s *scope) lookup(name string) (string, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return "", false
}

func (s *scope) global() *scope {
	sc := s
	for sc.parent != nil {
		sc = sc.parent
	}
	return sc
}

// cssNode is one block of compiled output. A node is either raw text (a
// top-level comment or plain statement) or a header with declarations and
// nested blocks.
type cssNode struct {
	raw      string
	header   string
	decls    []string
	children []*cssNode
}

func (n *cssNode) empty() bool {
	if n.raw != "" || len(n.decls) > 0 {
		return false
	}
	for _, ch := range n.children {
		if !ch.empty() {
			return false
		}
	}
	return true
}

// conditional at-rules keep the enclosing selector for their contents.
var conditionalAtRules = map[string]bool{
	"media":    true,
	"supports": true,
	"document": true,
	"layer":    true,
}

var unsupportedDirectives = map[string]bool{
	"mixin": true, "include": true, "extend": true, "function": true,
	"return": true, "if": true, "else": true, "each": true, "for": true,
	"while": true, "content": true,
}

var plainStatements = map[string]bool{
	"charset":   true,
	"import":    true,
	"namespace": true,
	"layer":     true,
}

// block compiles a list of statements. Declarations are attached to the
// selectors in parents; at the top level (no parents) they are an error.
func (c *scssCompiler) block(nodes []*node, parents []string, sc *scope) ([]*cssNode, error) {
	header := strings.Join(parents, ", ")
	var out []*cssNode
	cur := &cssNode{header: header}
	flush := func() {
		if len(cur.decls) > 0 {
			out = append(out, cur)
			cur = &cssNode{header: header}
		}
	}

	for _, n := range nodes {
		switch n.kind {
		case nodeVar:
			if err := c.define(n, sc); err != nil {
				return nil, err
			}
		case nodeDecl:
			if parents == nil {
				return nil, syntaxErrorf(n.file, n.line, "declaration %q outside of a rule", n.name)
			}
			decl, err := c.declaration(n, sc)
			if err != nil {
				return nil, err
			}
			cur.decls = append(cur.decls, decl)
		case nodeComment:
			if parents == nil {
				out = append(out, &cssNode{raw: n.value})
			} else {
				cur.decls = append(cur.decls, n.value)
			}
		case nodeRule:
			flush()
			sel, err := c.interpolate(n.name, sc, n)
			if err != nil {
				return nil, err
			}
			if parents == nil && strings.Contains(sel, "&") {
				return nil, syntaxErrorf(n.file, n.line, "top-level selector %q may not contain the parent selector \"&\"", sel)
			}
			nested, err := c.block(n.children, combineSelectors(parents, splitSelectors(sel)), newScope(sc))
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case nodeAtRule:
			flush()
			at, err := c.atRule(n, parents, sc)
			if err != nil {
				return nil, err
			}
			out = append(out, at)
		case nodeAtStmt:
			if unsupportedDirectives[n.name] {
				return nil, syntaxErrorf(n.file, n.line, "@%s is not supported", n.name)
			}
			if parents != nil || !plainStatements[n.name] {
				return nil, syntaxErrorf(n.file, n.line, "unexpected @%s", n.name)
			}
			prelude, err := c.value(n.value, sc, n)
			if err != nil {
				return nil, err
			}
			out = append(out, &cssNode{raw: "@" + n.name + " " + prelude + ";"})
		}
	}
	flush()
	return out, nil
}

func (c *scssCompiler) atRule(n *node, parents []string, sc *scope) (*cssNode, error) {
	if unsupportedDirectives[n.name] {
		return nil, syntaxErrorf(n.file, n.line, "@%s is not supported", n.name)
	}
	prelude, err := c.value(n.value, sc, n)
	if err != nil {
		return nil, err
	}
	at := &cssNode{header: strings.TrimSpace("@" + n.name + " " + prelude)}
	inner := newScope(sc)

	if conditionalAtRules[n.name] {
		body, err := c.block(n.children, parents, inner)
		if err != nil {
			return nil, err
		}
		at.children = body
		return at, nil
	}

	// @font-face, @keyframes, @page...: own declarations, nested rules
	// are not prefixed with the enclosing selector.
	for _, ch := range n.children {
		switch ch.kind {
		case nodeDecl:
			decl, err := c.declaration(ch, inner)
			if err != nil {
				return nil, err
			}
			at.decls = append(at.decls, decl)
		case nodeComment:
			at.decls = append(at.decls, ch.value)
		default:
			body, err := c.block([]*node{ch}, nil, inner)
			if err != nil {
				return nil, err
			}
			at.children = append(at.children, body...)
		}
	}
	return at, nil
}

func (c *scssCompiler) define(n *node, sc *scope) error {
	raw := n.value
	target := sc
	isDefault := false
	for _, flag := range []string{"!default", "!global"} {
		if strings.Contains(raw, flag) {
			raw = strings.TrimSpace(strings.ReplaceAll(raw, flag, ""))
			switch flag {
			case "!default":
				isDefault = true
			case "!global":
				target = sc.global()
			}
		}
	}
	if isDefault {
		if _, ok := sc.lookup(n.name); ok {
			return nil
		}
	}
	v, err := c.value(raw, sc, n)
	if err != nil {
		return err
	}
	target.vars[n.name] = v
	return nil
}

func (c *scssCompiler) declaration(n *node, sc *scope) (string, error) {
	prop, err := c.interpolate(n.name, sc, n)
	if err != nil {
		return "", err
	}
	v, err := c.value(n.value, sc, n)
	if err != nil {
		return "", err
	}
	return prop + ": " + v + ";", nil
}

// interpolate resolves #{...} expressions.
func (c *scssCompiler) interpolate(s string, sc *scope, n *node) (string, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "#{")
		if i < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return "", syntaxErrorf(n.file, n.line, "unterminated interpolation")
		}
		b.WriteString(s[:i])
		v, err := c.substitute(strings.TrimSpace(s[i+2:i+end]), sc, n)
		if err != nil {
			return "", err
		}
		if uq, ok := unquote(v); ok {
			v = uq
		}
		b.WriteString(v)
		s = s[i+end+1:]
	}
}

// value resolves interpolation and variable references in a value.
func (c *scssCompiler) value(s string, sc *scope, n *node) (string, error) {
	s, err := c.interpolate(s, sc, n)
	if err != nil {
		return "", err
	}
	s, err = c.substitute(s, sc, n)
	if err != nil {
		return "", err
	}
	return collapseSpace(s), nil
}

// substitute replaces $variable references outside string literals.
func (c *scssCompiler) substitute(s string, sc *scope, n *node) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			b.WriteByte(ch)
		case ch == '"' || ch == '\'':
			quote = ch
			b.WriteByte(ch)
		case ch == '$' && i+1 < len(s) && isVarStart(s[i+1]):
			j := i + 1
			for j < len(s) && (isIdentByte(s[j]) || s[j] == '-') {
				j++
			}
			name := s[i+1 : j]
			v, ok := sc.lookup(name)
			if !ok {
				return "", syntaxErrorf(n.file, n.line, "undefined variable $%s", name)
			}
			b.WriteString(v)
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func isVarStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitSelectors(sel string) []string {
	parts := splitTopLevel(sel, ',')
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = collapseSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func combineSelectors(parents, children []string) []string {
	if len(parents) == 0 {
		return children
	}
	out := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, ch := range children {
			if strings.Contains(ch, "&") {
				out = append(out, strings.ReplaceAll(ch, "&", p))
			} else {
				out = append(out, p+" "+ch)
			}
		}
	}
	return out
}

func renderCSS(b *strings.Builder, nodes []*cssNode, indent string) {
	first := true
	for _, n := range nodes {
		if n.empty() {
			continue
		}
		if !first && indent == "" {
			b.WriteString("\n")
		}
		first = false
		if n.raw != "" {
			b.WriteString(indent + n.raw + "\n")
			continue
		}
		b.WriteString(indent + n.header + " {\n")
		for _, d := range n.decls {
			b.WriteString(indent + "  " + d + "\n")
		}
		renderCSS(b, n.children, indent+"  ")
		b.WriteString(indent + "}\n")
	}
}
