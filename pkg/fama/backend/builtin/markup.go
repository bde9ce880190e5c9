package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"

	"github.com/AkaraChen/fama/pkg/fama/backend"
)

// voidElements never take a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Markup cleans whitespace in HTML and component templates (Vue, Svelte,
// Astro). Documents whose tags do not balance are returned unchanged with
// backend.ErrUnsupportedDialect.
type Markup struct{}

func (Markup) Name() string { return "markup" }

func (m Markup) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	src := toLF(source)
	if err := checkTags(src); err != nil {
		return source, backend.Errorf(m.Name(), backend.ErrUnsupportedDialect, "%v", err)
	}
	return cleanMarkup(src, preservedRanges(src)), nil
}

// preservedElements hold content where whitespace is significant.
var preservedElements = map[string]bool{
	"pre": true, "textarea": true, "script": true, "style": true,
	"listing": true, "xmp": true, "plaintext": true,
}

// preservedRanges returns the byte ranges [start, end) of src that lie
// inside a preserved element, found from the tokenizer's raw offsets.
func preservedRanges(src []byte) [][2]int {
	z := html.NewTokenizer(bytes.NewReader(src))
	var ranges [][2]int
	var open string
	depth, start, offset := 0, 0, 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		n := len(z.Raw())
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			switch {
			case open == "" && preservedElements[string(name)]:
				open, depth, start = string(name), 1, offset+n
			case open != "" && string(name) == open:
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if open != "" && string(name) == open {
				depth--
				if depth == 0 {
					ranges = append(ranges, [2]int{start, offset})
					open = ""
				}
			}
		}
		offset += n
	}
	if open != "" {
		ranges = append(ranges, [2]int{start, len(src)})
	}
	return ranges
}

// cleanMarkup trims trailing blanks and collapses blank line runs, except on
// lines whose line break falls inside a preserved range.
func cleanMarkup(src []byte, preserved [][2]int) []byte {
	var w lineWriter
	for pos := 0; pos < len(src); {
		end := bytes.IndexByte(src[pos:], '\n')
		if end < 0 {
			end = len(src) - pos
		}
		line, nl := src[pos:pos+end], pos+end
		if inRanges(preserved, nl) {
			w.verbatim(line)
		} else {
			w.line(bytes.TrimRight(line, " \t"))
		}
		pos = nl + 1
	}
	return w.bytes()
}

func inRanges(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// checkTags walks the token stream and fails on a closing tag with no open
// counterpart. Elements left open at the end are tolerated, as HTML allows
// omitted end tags.
func checkTags(src []byte) error {
	z := html.NewTokenizer(bytes.NewReader(src))
	var open []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				open = append(open, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			idx := lastIndex(open, string(name))
			if idx < 0 {
				if voidElements[string(name)] {
					continue
				}
				return fmt.Errorf("closing tag </%s> has no matching open tag", name)
			}
			open = open[:idx]
		}
	}
}

func lastIndex(stack []string, name string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == name {
			return i
		}
	}
	return -1
}
