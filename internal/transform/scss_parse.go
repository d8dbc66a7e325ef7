package transform

import (
	"strings"
)

type nodeKind int

const (
	nodeDecl    nodeKind = iota // property: value
	nodeVar                     // $name: value
	nodeRule                    // selector { ... }
	nodeAtRule                  // @name prelude { ... }
	nodeAtStmt                  // @name prelude;
	nodeComment                 // /* ... */
)

type node struct {
	kind     nodeKind
	name     string
	value    string
	children []*node
	file     string
	line     int
}

// stmt accumulates the text of the statement being parsed and remembers the
// line it started on.
type stmt struct {
	strings.Builder
	line int
}

func (s *stmt) add(text string, line int) {
	if s.line == 0 && strings.TrimSpace(text) != "" {
		s.line = line
	}
	s.WriteString(text)
}

func (s *stmt) reset() {
	s.Reset()
	s.line = 0
}

type scssParser struct {
	file string
	s    string
	pos  int
	line int
}

func parseSCSS(file, text string) ([]*node, error) {
	p := &scssParser{file: file, s: text, line: 1}
	return p.block(true, 0)
}

func (p *scssParser) peek(off int) byte {
	if p.pos+off < len(p.s) {
		return p.s[p.pos+off]
	}
	return 0
}

func (p *scssParser) block(top bool, openLine int) ([]*node, error) {
	var (
		nodes  []*node
		buf    stmt
		parens int
	)
	for p.pos < len(p.s) {
		ch := p.s[p.pos]
		switch {
		case ch == '\n':
			buf.WriteByte(ch)
			p.line++
			p.pos++
		case ch == '"' || ch == '\'':
			line := p.line
			str, err := p.quoted()
			if err != nil {
				return nil, err
			}
			buf.add(str, line)
		case ch == '/' && p.peek(1) == '*':
			line := p.line
			text, err := p.comment()
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(buf.String()) == "" {
				nodes = append(nodes, &node{kind: nodeComment, value: text, file: p.file, line: line})
				buf.reset()
			} else {
				buf.add(text, line)
			}
		case ch == '/' && p.peek(1) == '/' && parens == 0:
			for p.pos < len(p.s) && p.s[p.pos] != '\n' {
				p.pos++
			}
		case ch == '#' && p.peek(1) == '{':
			line := p.line
			text, err := p.interpolation()
			if err != nil {
				return nil, err
			}
			buf.add(text, line)
		case ch == '(':
			parens++
			buf.add("(", p.line)
			p.pos++
		case ch == ')':
			if parens > 0 {
				parens--
			}
			buf.add(")", p.line)
			p.pos++
		case ch == ';' && parens == 0:
			p.pos++
			n, err := p.statement(buf.String(), buf.line)
			if err != nil {
				return nil, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
			buf.reset()
		case ch == '{':
			header := strings.TrimSpace(buf.String())
			line := buf.line
			if line == 0 {
				line = p.line
			}
			buf.reset()
			if header == "" {
				return nil, syntaxErrorf(p.file, line, "expected selector before {")
			}
			p.pos++
			children, err := p.block(false, line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, blockNode(p.file, line, header, children))
		case ch == '}':
			if top {
				return nil, syntaxErrorf(p.file, p.line, "unexpected }")
			}
			p.pos++
			n, err := p.statement(buf.String(), buf.line)
			if err != nil {
				return nil, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
			return nodes, nil
		default:
			buf.add(string(ch), p.line)
			p.pos++
		}
	}
	if !top {
		return nil, syntaxErrorf(p.file, openLine, "unclosed block, expected }")
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		return nil, syntaxErrorf(p.file, buf.line, "expected ; or { after %q", rest)
	}
	return nodes, nil
}

func (p *scssParser) statement(text string, line int) (*node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(text, "$"):
		name, value, ok := strings.Cut(text[1:], ":")
		if !ok {
			return nil, syntaxErrorf(p.file, line, "expected : in variable declaration %q", text)
		}
		return &node{kind: nodeVar, name: strings.TrimSpace(name), value: strings.TrimSpace(value), file: p.file, line: line}, nil
	case strings.HasPrefix(text, "@"):
		kw, prelude := splitAtRule(text)
		return &node{kind: nodeAtStmt, name: kw, value: prelude, file: p.file, line: line}, nil
	default:
		prop, value, ok := strings.Cut(text, ":")
		if !ok {
			return nil, syntaxErrorf(p.file, line, "expected declaration, got %q", text)
		}
		return &node{kind: nodeDecl, name: strings.TrimSpace(prop), value: strings.TrimSpace(value), file: p.file, line: line}, nil
	}
}

func blockNode(file string, line int, header string, children []*node) *node {
	if strings.HasPrefix(header, "@") {
		kw, prelude := splitAtRule(header)
		return &node{kind: nodeAtRule, name: kw, value: prelude, children: children, file: file, line: line}
	}
	return &node{kind: nodeRule, name: header, children: children, file: file, line: line}
}

// splitAtRule splits "@media screen" into "media" and "screen".
func splitAtRule(text string) (string, string) {
	text = strings.TrimPrefix(text, "@")
	i := strings.IndexAny(text, " \t\r\n(\"'")
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func (p *scssParser) quoted() (string, error) {
	q := p.s[p.pos]
	start := p.pos
	for p.pos++; p.pos < len(p.s); p.pos++ {
		switch p.s[p.pos] {
		case '\\':
			p.pos++
		case '\n':
			return "", syntaxErrorf(p.file, p.line, "unterminated string")
		case q:
			p.pos++
			return p.s[start:p.pos], nil
		}
	}
	return "", syntaxErrorf(p.file, p.line, "unterminated string")
}

func (p *scssParser) comment() (string, error) {
	end := strings.Index(p.s[p.pos+2:], "*/")
	if end < 0 {
		return "", syntaxErrorf(p.file, p.line, "unterminated comment")
	}
	text := p.s[p.pos : p.pos+2+end+2]
	p.line += strings.Count(text, "\n")
	p.pos += len(text)
	return text, nil
}

func (p *scssParser) interpolation() (string, error) {
	end := strings.IndexByte(p.s[p.pos:], '}')
	if end < 0 {
		return "", syntaxErrorf(p.file, p.line, "unterminated interpolation")
	}
	text := p.s[p.pos : p.pos+end+1]
	p.line += strings.Count(text, "\n")
	p.pos += len(text)
	return text, nil
}
