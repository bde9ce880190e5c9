package language

import (
	"path/filepath"
	"sort"
	"strings"
)

// Tag identifies the language family of a file. The set is closed: every
// formatting backend registers against one or more of these values.
type Tag int

// Recognised language tags. Unknown is the zero value so an unset Tag never
// resolves to a backend.
const (
	Unknown Tag = iota
	JavaScript
	TypeScript
	Jsx
	Tsx
	Json
	Jsonc
	Css
	Scss
	Less
	Sass
	Html
	Vue
	Svelte
	Astro
	Yaml
	Markdown
	Toml
	Dockerfile
	Rust
	Python
	Kotlin
	Lua
	Shell
	Go
	Xml
	Sql
	Php
	GraphQL
	Proto
	Hcl
	Zig
	Dart
	Ruby
	C
	Cpp
	ObjectiveC
	Java
	CSharp
)

var tagNames = map[Tag]string{
	Unknown:    "unknown",
	JavaScript: "javascript",
	TypeScript: "typescript",
	Jsx:        "jsx",
	Tsx:        "tsx",
	Json:       "json",
	Jsonc:      "jsonc",
	Css:        "css",
	Scss:       "scss",
	Less:       "less",
	Sass:       "sass",
	Html:       "html",
	Vue:        "vue",
	Svelte:     "svelte",
	Astro:      "astro",
	Yaml:       "yaml",
	Markdown:   "markdown",
	Toml:       "toml",
	Dockerfile: "dockerfile",
	Rust:       "rust",
	Python:     "python",
	Kotlin:     "kotlin",
	Lua:        "lua",
	Shell:      "shell",
	Go:         "go",
	Xml:        "xml",
	Sql:        "sql",
	Php:        "php",
	GraphQL:    "graphql",
	Proto:      "proto",
	Hcl:        "hcl",
	Zig:        "zig",
	Dart:       "dart",
	Ruby:       "ruby",
	C:          "c",
	Cpp:        "cpp",
	ObjectiveC: "objectivec",
	Java:       "java",
	CSharp:     "csharp",
}

// String returns the lowercase identifier used in configuration files.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return tagNames[Unknown]
}

// ParseTag maps a configuration identifier back to its Tag.
func ParseTag(name string) (Tag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for tag, n := range tagNames {
		if n == name && tag != Unknown {
			return tag, true
		}
	}
	return Unknown, false
}

// extensionTags maps raw extensions (no leading dot) to tags. Lookups are
// case-sensitive.
var extensionTags = map[string]Tag{
	"js": JavaScript, "cjs": JavaScript, "mjs": JavaScript,
	"ts": TypeScript, "mts": TypeScript, "cts": TypeScript,
	"jsx": Jsx, "mjsx": Jsx,
	"tsx":  Tsx,
	"json": Json, "jsonc": Jsonc,
	"css": Css, "scss": Scss, "less": Less, "sass": Sass,
	"html": Html, "htm": Html,
	"vue": Vue, "svelte": Svelte, "astro": Astro,
	"yaml": Yaml, "yml": Yaml,
	"md": Markdown, "markdown": Markdown,
	"toml": Toml,
	"rs":   Rust,
	"py":   Python, "pyi": Python,
	"kt": Kotlin, "kts": Kotlin,
	"lua": Lua,
	"sh":  Shell, "bash": Shell, "zsh": Shell,
	"go":  Go,
	"xml": Xml, "svg": Xml, "xsd": Xml,
	"sql": Sql,
	"php": Php,
	"graphql": GraphQL, "gql": GraphQL,
	"proto": Proto,
	"hcl":   Hcl, "tf": Hcl, "tfvars": Hcl,
	"zig":  Zig,
	"dart": Dart,
	"rb":   Ruby, "rake": Ruby, "gemspec": Ruby, "ru": Ruby,
	"c": C, "h": C,
	"cc": Cpp, "cpp": Cpp, "cxx": Cpp, "hpp": Cpp, "hh": Cpp, "hxx": Cpp,
	"m": ObjectiveC, "mm": ObjectiveC,
	"java": Java,
	"cs":   CSharp,
}

// basenameTags covers convention-named files that carry no usable extension.
var basenameTags = map[string]Tag{
	"Dockerfile":    Dockerfile,
	"Containerfile": Dockerfile,
	"Rakefile":      Ruby,
	"Gemfile":       Ruby,
	"Podfile":       Ruby,
	"Vagrantfile":   Ruby,
	"Brewfile":      Ruby,
	"Guardfile":     Ruby,
	".bashrc":       Shell,
	".bash_profile": Shell,
	".zshrc":        Shell,
	".profile":      Shell,
}

// Classify maps a path to its language tag. It never touches the filesystem.
func Classify(path string) Tag {
	base := filepath.Base(path)
	if tag, ok := basenameTags[base]; ok {
		return tag
	}
	// Dockerfile.dev, Dockerfile.prod, ...
	if strings.HasPrefix(base, "Dockerfile.") {
		return Dockerfile
	}
	ext := Extension(path)
	if ext == "" {
		return Unknown
	}
	if tag, ok := extensionTags[ext]; ok {
		return tag
	}
	return Unknown
}

// Extension returns the final extension of path without the leading dot.
// Dotfiles such as ".bashrc" have no extension.
func Extension(path string) string {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}

// SupportedExtensions lists every extension Classify recognises, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTags))
	for ext := range extensionTags {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Tags returns every known tag except Unknown, in declaration order.
func Tags() []Tag {
	tags := make([]Tag, 0, len(tagNames)-1)
	for t := JavaScript; t <= CSharp; t++ {
		tags = append(tags, t)
	}
	return tags
}
