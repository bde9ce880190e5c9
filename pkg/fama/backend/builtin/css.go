package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/language"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// Stylesheet expands CSS family rule blocks: one declaration per line,
// "prop: value;" spacing and nested blocks indented by the configured unit.
// It is lenient: input it cannot parse (including indented Sass syntax) is
// returned unchanged with backend.ErrUnsupportedDialect.
type Stylesheet struct {
	cfg style.FormatConfig
}

func (s *Stylesheet) Name() string { return "css" }

func (s *Stylesheet) FormatOne(_ context.Context, source []byte, path string) ([]byte, error) {
	tag := language.Classify(path)
	if tag == language.Sass {
		return source, backend.Errorf(s.Name(), backend.ErrUnsupportedDialect, "indented sass syntax")
	}
	p := &cssParser{
		src:          toLF(source),
		indent:       s.cfg.Indent(),
		lineComments: tag != language.Css,
	}
	if err := p.block(0); err != nil {
		return source, backend.Errorf(s.Name(), backend.ErrUnsupportedDialect, "%v", err)
	}
	return p.out.Bytes(), nil
}

var errUnclosedBlock = errors.New("unclosed block")

type cssParser struct {
	src          []byte
	i            int
	indent       string
	lineComments bool
	out          bytes.Buffer
	lastTopLevel string
}

func (p *cssParser) peek(off int) byte {
	if p.i+off < len(p.src) {
		return p.src[p.i+off]
	}
	return 0
}

func (p *cssParser) line(depth int, s string) {
	p.out.WriteString(strings.Repeat(p.indent, depth))
	p.out.WriteString(s)
	p.out.WriteByte('\n')
}

// block parses statements until the closing '}' of the current block, which
// it leaves for the caller to consume.
func (p *cssParser) block(depth int) error {
	var text []byte
	for p.i < len(p.src) {
		c := p.src[p.i]
		switch {
		case c == '/' && p.peek(1) == '*':
			comment, err := p.until("*/", true)
			if err != nil {
				return err
			}
			text = p.commentOrInline(depth, text, comment)
		case c == '/' && p.peek(1) == '/' && p.lineComments && (len(text) == 0 || isBlank(text[len(text)-1]) || text[len(text)-1] == '\n'):
			comment, _ := p.until("\n", false)
			text = p.commentOrInline(depth, text, comment)
		case c == '"' || c == '\'':
			s, err := p.quoted(c)
			if err != nil {
				return err
			}
			text = append(text, s...)
		case c == '#' && p.peek(1) == '{':
			s, err := p.balanced('{', '}')
			if err != nil {
				return err
			}
			text = append(text, s...)
		case c == '(':
			s, err := p.balanced('(', ')')
			if err != nil {
				return err
			}
			text = append(text, s...)
		case c == '{':
			p.i++
			prelude := collapseSpace(text)
			text = nil
			if depth == 0 && p.out.Len() > 0 && p.lastTopLevel != "comment" {
				p.out.WriteByte('\n')
			}
			p.line(depth, prelude+" {")
			if err := p.block(depth + 1); err != nil {
				return err
			}
			if p.i >= len(p.src) {
				return errUnclosedBlock
			}
			p.i++
			p.line(depth, "}")
			p.mark(depth, "rule")
		case c == '}':
			if depth == 0 {
				return fmt.Errorf("unexpected '}' at offset %d", p.i)
			}
			p.declaration(depth, text)
			return nil
		case c == ';':
			p.i++
			p.declaration(depth, text)
			text = nil
		default:
			text = append(text, c)
			p.i++
		}
	}
	if depth > 0 {
		return errUnclosedBlock
	}
	p.declaration(depth, text)
	return nil
}

func (p *cssParser) mark(depth int, kind string) {
	if depth == 0 {
		p.lastTopLevel = kind
	}
}

// commentOrInline writes a comment on its own line when no statement text is
// pending; otherwise the comment stays inside the statement.
func (p *cssParser) commentOrInline(depth int, text, comment []byte) []byte {
	if len(bytes.TrimSpace(text)) > 0 {
		return append(text, comment...)
	}
	p.line(depth, strings.TrimRight(string(comment), " \t"))
	p.mark(depth, "comment")
	return nil
}

func (p *cssParser) declaration(depth int, text []byte) {
	decl := collapseSpace(text)
	if decl == "" {
		return
	}
	defer p.mark(depth, "declaration")
	if idx := topLevelColon(decl); idx > 0 && (depth > 0 || decl[0] == '$' || decl[0] == '@') {
		prop := strings.TrimSpace(decl[:idx])
		value := strings.TrimSpace(decl[idx+1:])
		if value == "" {
			p.line(depth, prop+":;")
			return
		}
		p.line(depth, prop+": "+value+";")
		return
	}
	p.line(depth, decl+";")
}

// until consumes through the terminator. With required set, reaching the
// end of input first is an error.
func (p *cssParser) until(term string, required bool) ([]byte, error) {
	start := p.i
	idx := bytes.Index(p.src[p.i:], []byte(term))
	if idx < 0 {
		if required {
			return nil, fmt.Errorf("unterminated comment at offset %d", start)
		}
		p.i = len(p.src)
		return p.src[start:], nil
	}
	if term == "\n" {
		p.i += idx
		return p.src[start:p.i], nil
	}
	p.i += idx + len(term)
	return p.src[start:p.i], nil
}

func (p *cssParser) quoted(q byte) ([]byte, error) {
	start := p.i
	p.i++
	for p.i < len(p.src) {
		switch p.src[p.i] {
		case '\\':
			p.i += 2
			continue
		case '\n':
			return nil, fmt.Errorf("unterminated string at offset %d", start)
		case q:
			p.i++
			return p.src[start:p.i], nil
		}
		p.i++
	}
	return nil, fmt.Errorf("unterminated string at offset %d", start)
}

func (p *cssParser) balanced(open, close byte) ([]byte, error) {
	start := p.i
	depth := 0
	for p.i < len(p.src) {
		c := p.src[p.i]
		switch c {
		case '"', '\'':
			if _, err := p.quoted(c); err != nil {
				return nil, err
			}
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.i++
				return p.src[start:p.i], nil
			}
		}
		p.i++
	}
	return nil, fmt.Errorf("unbalanced '%c' at offset %d", open, start)
}

// topLevelColon returns the index of the first ':' outside strings and
// parentheses, or -1.
func topLevelColon(s string) int {
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ':' && depth == 0:
			return i
		}
	}
	return -1
}

// collapseSpace trims s and folds whitespace runs outside quotes to a single
// space.
func collapseSpace(s []byte) string {
	var b strings.Builder
	var quote byte
	space := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote == 0 && (c == ' ' || c == '\t' || c == '\n') {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteByte(c)
		switch {
		case quote != 0 && c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		}
	}
	return b.String()
}
