package builtin

import (
	"bytes"
	"context"

	"github.com/AkaraChen/fama/pkg/fama/language"
)

// Whitespace is the plain-text capability used for Markdown and Dockerfiles:
// trailing blanks are removed, blank line runs collapse and the file ends in
// exactly one newline. Markdown hard breaks and fenced code are kept.
type Whitespace struct{}

func (Whitespace) Name() string { return "whitespace" }

func (Whitespace) FormatOne(_ context.Context, source []byte, path string) ([]byte, error) {
	return cleanLines(toLF(source), language.Classify(path) == language.Markdown), nil
}

func cleanLines(src []byte, markdown bool) []byte {
	var w lineWriter
	inFence := false
	lines := bytes.Split(src, []byte("\n"))
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		trimmed := bytes.TrimRight(line, " \t")
		if markdown {
			lead := bytes.TrimLeft(trimmed, " ")
			if bytes.HasPrefix(lead, []byte("```")) || bytes.HasPrefix(lead, []byte("~~~")) {
				inFence = !inFence
				w.line(trimmed)
				continue
			}
			if inFence {
				w.verbatim(trimmed)
				continue
			}
			if len(trimmed) > 0 && len(line)-len(trimmed) >= 2 && bytes.HasSuffix(line, []byte("  ")) {
				trimmed = append(trimmed[:len(trimmed):len(trimmed)], ' ', ' ')
			}
		}
		w.line(trimmed)
	}
	return w.bytes()
}
