package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// JSON re-indents JSON documents. The lenient variant serves JSON with
// comments: documents encoding/json rejects are passed through unchanged.
type JSON struct {
	cfg     style.FormatConfig
	lenient bool
}

func (j *JSON) Name() string {
	if j.lenient {
		return "jsonc"
	}
	return "json"
}

func (j *JSON) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	trimmed := bytes.TrimSpace(toLF(source))
	if len(trimmed) == 0 {
		return source, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", j.cfg.Indent()); err != nil {
		if j.lenient {
			return source, backend.Errorf(j.Name(), backend.ErrUnsupportedDialect, "%v", err)
		}
		return nil, backend.Errorf(j.Name(), backend.ErrParse, "%v", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// YAML re-serializes every document in the stream through yaml.v3 nodes, so
// comments survive. YAML forbids tab indentation; with tabs configured the
// indent is two spaces.
type YAML struct {
	cfg style.FormatConfig
}

func (y *YAML) Name() string { return "yaml" }

func (y *YAML) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	indent := 2
	if y.cfg.IndentStyle == style.IndentSpaces {
		indent = y.cfg.IndentWidth
	}
	dec := yaml.NewDecoder(bytes.NewReader(toLF(source)))
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	docs := 0
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, backend.Errorf(y.Name(), backend.ErrParse, "%v", err)
		}
		if err := enc.Encode(&doc); err != nil {
			return nil, backend.Errorf(y.Name(), backend.ErrParse, "%v", err)
		}
		docs++
	}
	if err := enc.Close(); err != nil {
		return nil, backend.Errorf(y.Name(), backend.ErrParse, "%v", err)
	}
	if docs == 0 {
		return source, nil
	}
	return buf.Bytes(), nil
}

// TOML validates documents with BurntSushi/toml and normalizes layout line by
// line: "key = value" spacing, no leading indentation on keys and tables,
// trailing blanks removed. Comments and key order are preserved. Multi-line
// strings and arrays are copied without reindenting.
type TOML struct{}

func (TOML) Name() string { return "toml" }

func (t TOML) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	src := toLF(source)
	var doc map[string]any
	if _, err := toml.Decode(string(src), &doc); err != nil {
		return nil, backend.Errorf(t.Name(), backend.ErrParse, "%v", err)
	}
	var w lineWriter
	multi := ""
	depth := 0
	for _, raw := range strings.Split(strings.TrimRight(string(src), "\n"), "\n") {
		if multi != "" {
			w.verbatim([]byte(raw))
			if strings.Count(raw, multi)%2 == 1 {
				multi = ""
			}
			continue
		}
		line := strings.TrimSpace(raw)
		if depth > 0 {
			depth += bracketDelta(line)
			w.verbatim([]byte(strings.TrimRight(raw, " \t")))
			continue
		}
		switch {
		case line == "" || line[0] == '#' || line[0] == '[':
			w.line([]byte(line))
		default:
			eq := indexOutsideQuotes(line, '=')
			if eq < 0 {
				w.line([]byte(line))
				continue
			}
			key := strings.TrimSpace(line[:eq])
			value := strings.TrimLeft(line[eq+1:], " \t")
			if delim := openMultiline(value); delim != "" {
				multi = delim
				// the rest of the line belongs to the string
				rawValue := strings.TrimLeft(raw[strings.Index(raw, "=")+1:], " \t")
				w.line([]byte(key + " = " + rawValue))
				continue
			}
			depth = bracketDelta(value)
			w.line([]byte(key + " = " + value))
		}
	}
	return w.bytes(), nil
}

func openMultiline(value string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.HasPrefix(value, delim) && strings.Count(value, delim)%2 == 1 {
			return delim
		}
	}
	return ""
}

// bracketDelta counts unclosed '[' and '{' outside strings and comments.
func bracketDelta(s string) int {
	delta := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return delta
		case c == '[' || c == '{':
			delta++
		case c == ']' || c == '}':
			delta--
		}
	}
	return delta
}

func indexOutsideQuotes(s string, target byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == target:
			return i
		}
	}
	return -1
}
