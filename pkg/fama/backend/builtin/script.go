package builtin

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/language"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// Script normalizes spacing in JavaScript and TypeScript family sources:
// runs of blanks between tokens collapse to one space, leading indentation is
// rewritten in the configured unit, trailing blanks are removed and blank
// line runs collapse. String, template and regex literals are left intact,
// and so are JSX elements in JavaScript, JSX and TSX sources.
type Script struct {
	cfg style.FormatConfig
}

func (s *Script) Name() string { return "script" }

func (s *Script) FormatOne(_ context.Context, source []byte, path string) ([]byte, error) {
	sc := &scriptScanner{src: toLF(source), cfg: s.cfg, line: 1, atLineStart: true, jsx: allowsJSX(path)}
	if err := sc.run(); err != nil {
		return nil, backend.Errorf(s.Name(), backend.ErrParse, "%v", err)
	}
	return sc.w.bytes(), nil
}

type scanMode int

const (
	modeCode scanMode = iota
	modeString
	modeTemplate
	modeBlockComment
	modeRegex
)

// operatorsBeforeRegex lists the bytes after which '/' starts a regex literal.
const operatorsBeforeRegex = "(,=:[!&|?{};+-*%<>~^"

// keywordsBeforeExpr are the keywords an operand may directly follow.
var keywordsBeforeExpr = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "case": true, "do": true,
	"else": true, "in": true, "of": true, "new": true, "delete": true,
	"void": true, "throw": true, "yield": true, "await": true,
}

// allowsJSX reports whether '<' in operand position opens a JSX element.
// TypeScript is excluded because of angle-bracket type assertions.
func allowsJSX(path string) bool {
	switch language.Classify(path) {
	case language.JavaScript, language.Jsx, language.Tsx:
		return true
	}
	return false
}

type scriptScanner struct {
	src         []byte
	i           int
	line        int
	cfg         style.FormatConfig
	w           lineWriter
	cur         []byte
	mode        scanMode
	quote       byte
	inClass     bool
	stack       []byte
	prev        byte
	atLineStart bool
	jsx         bool
	// word is the identifier being scanned; lastWord the one before it.
	word         []byte
	wordAfterDot bool
	lastWord     string
}

func (sc *scriptScanner) peek(off int) byte {
	if sc.i+off < len(sc.src) {
		return sc.src[sc.i+off]
	}
	return 0
}

func (sc *scriptScanner) emit(b ...byte) { sc.cur = append(sc.cur, b...) }

func (sc *scriptScanner) newline() {
	if sc.mode == modeTemplate {
		sc.w.verbatim(sc.cur)
	} else {
		sc.w.line(bytes.TrimRight(sc.cur, " \t"))
	}
	sc.cur = sc.cur[:0]
	sc.line++
	sc.atLineStart = true
}

func (sc *scriptScanner) run() error {
	for sc.i < len(sc.src) {
		if sc.atLineStart {
			sc.atLineStart = false
			if sc.mode == modeCode {
				sc.indent()
				continue
			}
		}
		c := sc.src[sc.i]
		if c == '\n' {
			sc.endWord()
			if sc.mode == modeString {
				return fmt.Errorf("line %d: unterminated string literal", sc.line)
			}
			if sc.mode == modeRegex {
				sc.mode = modeCode
			}
			sc.newline()
			sc.i++
			continue
		}
		var err error
		switch sc.mode {
		case modeCode:
			err = sc.code(c)
		case modeString:
			sc.literal(c)
		case modeTemplate:
			sc.template(c)
		case modeBlockComment:
			sc.comment(c)
		case modeRegex:
			sc.regex(c)
		}
		if err != nil {
			return err
		}
	}
	if len(sc.cur) > 0 {
		sc.newline()
	}
	switch {
	case sc.mode == modeString:
		return fmt.Errorf("line %d: unterminated string literal", sc.line)
	case sc.mode == modeTemplate:
		return fmt.Errorf("line %d: unterminated template literal", sc.line)
	case sc.mode == modeBlockComment:
		return fmt.Errorf("line %d: unterminated comment", sc.line)
	case len(sc.stack) > 0:
		top := sc.stack[len(sc.stack)-1]
		if top == '`' {
			return fmt.Errorf("line %d: unterminated template substitution", sc.line)
		}
		return fmt.Errorf("line %d: unclosed '%c'", sc.line, top)
	}
	return nil
}

// indent rewrites the leading blanks of a code line as whole indent units
// followed by any remaining columns as spaces.
func (sc *scriptScanner) indent() {
	width := sc.cfg.IndentWidth
	if width <= 0 {
		width = 1
	}
	cols := 0
	for sc.i < len(sc.src) && isBlank(sc.src[sc.i]) {
		if sc.src[sc.i] == '\t' {
			cols = (cols/width + 1) * width
		} else {
			cols++
		}
		sc.i++
	}
	if sc.i >= len(sc.src) || sc.src[sc.i] == '\n' {
		return
	}
	sc.emit([]byte(strings.Repeat(sc.cfg.Indent(), cols/width))...)
	sc.emit([]byte(strings.Repeat(" ", cols%width))...)
}

func (sc *scriptScanner) endWord() {
	if len(sc.word) == 0 {
		return
	}
	sc.lastWord = string(sc.word)
	if sc.wordAfterDot {
		sc.lastWord = ""
	}
	sc.word = sc.word[:0]
}

// operandExpected reports whether the next token starts an expression.
func (sc *scriptScanner) operandExpected() bool {
	if sc.prev == 0 || strings.IndexByte(operatorsBeforeRegex, sc.prev) >= 0 {
		return true
	}
	return isIdentByte(sc.prev) && keywordsBeforeExpr[sc.lastWord]
}

func (sc *scriptScanner) code(c byte) error {
	if isIdentByte(c) {
		if len(sc.word) == 0 {
			sc.wordAfterDot = sc.prev == '.'
		}
		sc.word = append(sc.word, c)
	} else {
		sc.endWord()
	}
	switch {
	case isBlank(c):
		for sc.i < len(sc.src) && isBlank(sc.src[sc.i]) {
			sc.i++
		}
		if sc.i < len(sc.src) && sc.src[sc.i] != '\n' && len(sc.cur) > 0 {
			sc.emit(' ')
		}
		return nil
	case c == '"' || c == '\'':
		sc.mode, sc.quote = modeString, c
	case c == '`':
		sc.mode = modeTemplate
	case c == '/' && sc.peek(1) == '/':
		for sc.i < len(sc.src) && sc.src[sc.i] != '\n' {
			sc.emit(sc.src[sc.i])
			sc.i++
		}
		return nil
	case c == '/' && sc.peek(1) == '*':
		sc.emit('/', '*')
		sc.i += 2
		sc.mode = modeBlockComment
		return nil
	case c == '/' && sc.operandExpected():
		sc.mode, sc.inClass = modeRegex, false
	case c == '<' && sc.jsx && sc.operandExpected() && (isLetter(sc.peek(1)) || sc.peek(1) == '>'):
		if err := sc.jsxElement(); err != nil {
			return err
		}
		sc.prev = ')'
		return nil
	case c == '(' || c == '[' || c == '{':
		sc.stack = append(sc.stack, c)
	case c == ')' || c == ']' || c == '}':
		if err := sc.close(c); err != nil {
			return err
		}
	}
	sc.emit(c)
	sc.prev = c
	sc.i++
	return nil
}

func (sc *scriptScanner) close(c byte) error {
	open := map[byte]byte{')': '(', ']': '[', '}': '{'}[c]
	if len(sc.stack) == 0 {
		return fmt.Errorf("line %d: unexpected '%c'", sc.line, c)
	}
	top := sc.stack[len(sc.stack)-1]
	sc.stack = sc.stack[:len(sc.stack)-1]
	if c == '}' && top == '`' {
		sc.mode = modeTemplate
		return nil
	}
	if top != open {
		return fmt.Errorf("line %d: unexpected '%c'", sc.line, c)
	}
	return nil
}

func (sc *scriptScanner) escaped() {
	sc.emit(sc.src[sc.i])
	sc.i++
	switch {
	case sc.i >= len(sc.src):
	case sc.src[sc.i] == '\n':
		sc.i++
		sc.newline()
	default:
		sc.emit(sc.src[sc.i])
		sc.i++
	}
}

func (sc *scriptScanner) literal(c byte) {
	if c == '\\' {
		sc.escaped()
		return
	}
	sc.emit(c)
	sc.i++
	if c == sc.quote {
		sc.mode = modeCode
		sc.prev = c
	}
}

func (sc *scriptScanner) template(c byte) {
	switch {
	case c == '\\':
		sc.escaped()
		return
	case c == '`':
		sc.mode = modeCode
		sc.prev = c
	case c == '$' && sc.peek(1) == '{':
		sc.emit('$', '{')
		sc.i += 2
		sc.stack = append(sc.stack, '`')
		sc.mode = modeCode
		sc.prev = '{'
		return
	}
	sc.emit(c)
	sc.i++
}

func (sc *scriptScanner) comment(c byte) {
	if c == '*' && sc.peek(1) == '/' {
		sc.emit('*', '/')
		sc.i += 2
		sc.mode = modeCode
		return
	}
	sc.emit(c)
	sc.i++
}

func (sc *scriptScanner) regex(c byte) {
	switch c {
	case '\\':
		sc.escaped()
		return
	case '[':
		sc.inClass = true
	case ']':
		sc.inClass = false
	case '/':
		if !sc.inClass {
			sc.mode = modeCode
			// a regex literal is an operand, so a following '/' divides
			sc.prev = ')'
		}
	}
	sc.emit(c)
	sc.i++
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 || isLetter(c) || (c >= '0' && c <= '9')
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// copyByte passes one byte through unchanged. Lines broken inside JSX are
// written verbatim.
func (sc *scriptScanner) copyByte() {
	c := sc.src[sc.i]
	sc.i++
	if c != '\n' {
		sc.emit(c)
		return
	}
	sc.w.verbatim(sc.cur)
	sc.cur = sc.cur[:0]
	sc.line++
}

// jsxElement copies the element starting at '<' through its closing tag.
func (sc *scriptScanner) jsxElement() error {
	start := sc.line
	depth := 0
	for {
		closing, selfClosing, err := sc.jsxTag()
		if err != nil {
			return err
		}
		switch {
		case closing:
			depth--
		case !selfClosing:
			depth++
		}
		if depth <= 0 {
			return nil
		}
		for sc.i < len(sc.src) && sc.src[sc.i] != '<' {
			if sc.src[sc.i] == '{' {
				if err := sc.jsxExpression(); err != nil {
					return err
				}
				continue
			}
			sc.copyByte()
		}
		if sc.i >= len(sc.src) {
			return fmt.Errorf("line %d: unterminated JSX element", start)
		}
	}
}

func (sc *scriptScanner) jsxTag() (closing, selfClosing bool, err error) {
	start := sc.line
	sc.copyByte()
	closing = sc.peek(0) == '/'
	for sc.i < len(sc.src) {
		c := sc.src[sc.i]
		switch c {
		case '>':
			selfClosing = sc.src[sc.i-1] == '/'
			sc.copyByte()
			return closing, selfClosing, nil
		case '"', '\'':
			sc.copyByte()
			for sc.i < len(sc.src) && sc.src[sc.i] != c {
				sc.copyByte()
			}
			if sc.i >= len(sc.src) {
				return false, false, fmt.Errorf("line %d: unterminated JSX attribute", start)
			}
			sc.copyByte()
		case '{':
			if err := sc.jsxExpression(); err != nil {
				return false, false, err
			}
		default:
			sc.copyByte()
		}
	}
	return false, false, fmt.Errorf("line %d: unterminated JSX tag", start)
}

// jsxExpression copies a braced expression container, including any
// elements nested in it.
func (sc *scriptScanner) jsxExpression() error {
	start := sc.line
	depth := 0
	var last byte
	for sc.i < len(sc.src) {
		c := sc.src[sc.i]
		switch {
		case c == '}' && depth == 1:
			sc.copyByte()
			return nil
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == '/' && sc.peek(1) == '*':
			end := bytes.Index(sc.src[sc.i+2:], []byte("*/"))
			if end < 0 {
				return fmt.Errorf("line %d: unterminated comment", sc.line)
			}
			for stop := sc.i + 2 + end + 2; sc.i < stop; {
				sc.copyByte()
			}
			continue
		case c == '/' && sc.peek(1) == '/':
			for sc.i < len(sc.src) && sc.src[sc.i] != '\n' {
				sc.copyByte()
			}
			continue
		case c == '"' || c == '\'' || c == '`':
			sc.copyByte()
			for sc.i < len(sc.src) && sc.src[sc.i] != c {
				if sc.src[sc.i] == '\\' && sc.i+1 < len(sc.src) {
					sc.copyByte()
				}
				sc.copyByte()
			}
			if sc.i >= len(sc.src) {
				return fmt.Errorf("line %d: unterminated string literal", start)
			}
			sc.copyByte()
			last = c
			continue
		case c == '<' && strings.IndexByte("(,>?:&|{=", last) >= 0 && (isLetter(sc.peek(1)) || sc.peek(1) == '>'):
			if err := sc.jsxElement(); err != nil {
				return err
			}
			last = '>'
			continue
		}
		if !isBlank(c) && c != '\n' {
			last = c
		}
		sc.copyByte()
	}
	return fmt.Errorf("line %d: unterminated JSX expression", start)
}
