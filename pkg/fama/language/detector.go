package language

import (
	"bytes"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// sniffLen bounds how much of a file the Sniffer looks at.
const sniffLen = 256

// enryTags maps go-enry language names to tags for interpreter lines.
var enryTags = map[string]Tag{
	"Shell":      Shell,
	"Python":     Python,
	"Ruby":       Ruby,
	"JavaScript": JavaScript,
	"TypeScript": TypeScript,
	"Lua":        Lua,
	"PHP":        Php,
	"Dart":       Dart,
	"Kotlin":     Kotlin,
}

// Sniffer refines classification for extensionless scripts by reading their
// interpreter line. It is only consulted when Classify returns Unknown.
type Sniffer struct {
	overrides map[string]Tag
}

// NewSniffer creates a Sniffer. overrides maps interpreter names (e.g. "node")
// to tag identifiers and take precedence over go-enry.
func NewSniffer(overrides map[string]string) *Sniffer {
	normalized := make(map[string]Tag, len(overrides))
	for interp, name := range overrides {
		if tag, ok := ParseTag(name); ok {
			normalized[strings.TrimSpace(interp)] = tag
		}
	}
	return &Sniffer{overrides: normalized}
}

// Sniff returns the tag implied by the shebang in head, or Unknown.
func (s *Sniffer) Sniff(path string, head []byte) Tag {
	if Extension(path) != "" || !bytes.HasPrefix(head, []byte("#!")) {
		return Unknown
	}
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if interp := interpreter(head); interp != "" {
		if tag, ok := s.overrides[interp]; ok {
			return tag
		}
	}
	lang, safe := enry.GetLanguageByShebang(head)
	if !safe || lang == "" {
		return Unknown
	}
	if tag, ok := enryTags[lang]; ok {
		return tag
	}
	return Unknown
}

// IsVendored reports whether path lives in a vendored or third-party tree.
func IsVendored(path string) bool {
	return enry.IsVendor(path)
}

// interpreter extracts the program name from "#!/usr/bin/env bash -e" style lines.
func interpreter(head []byte) string {
	line := head
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(strings.TrimPrefix(string(line), "#!"))
	if len(fields) == 0 {
		return ""
	}
	prog := fields[0]
	if strings.HasSuffix(prog, "/env") && len(fields) > 1 {
		prog = fields[1]
	}
	if idx := strings.LastIndexByte(prog, '/'); idx >= 0 {
		prog = prog[idx+1:]
	}
	return prog
}
