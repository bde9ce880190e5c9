package language

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want Tag
	}{
		{"javascript", "src/app.js", JavaScript},
		{"commonjs", "app.cjs", JavaScript},
		{"module js", "app.mjs", JavaScript},
		{"typescript", "lib/index.ts", TypeScript},
		{"mts", "index.mts", TypeScript},
		{"jsx", "view.jsx", Jsx},
		{"mjsx", "view.mjsx", Jsx},
		{"tsx", "view.tsx", Tsx},
		{"css", "style.css", Css},
		{"scss", "style.scss", Scss},
		{"less", "style.less", Less},
		{"sass", "style.sass", Sass},
		{"html", "index.html", Html},
		{"htm", "index.htm", Html},
		{"vue", "App.vue", Vue},
		{"svelte", "App.svelte", Svelte},
		{"astro", "page.astro", Astro},
		{"yaml", "ci.yaml", Yaml},
		{"yml", "ci.yml", Yaml},
		{"markdown", "README.md", Markdown},
		{"markdown long", "notes.markdown", Markdown},
		{"rust", "main.rs", Rust},
		{"python", "main.py", Python},
		{"kotlin script", "build.gradle.kts", Kotlin},
		{"lua", "init.lua", Lua},
		{"shell", "run.sh", Shell},
		{"bash", "run.bash", Shell},
		{"zsh", "run.zsh", Shell},
		{"go", "main.go", Go},
		{"toml", "Cargo.toml", Toml},
		{"terraform", "main.tf", Hcl},
		{"graphql", "schema.gql", GraphQL},
		{"ruby gemspec", "fama.gemspec", Ruby},
		{"dockerfile", "Dockerfile", Dockerfile},
		{"nested dockerfile", "deploy/Dockerfile", Dockerfile},
		{"dockerfile suffix", "Dockerfile.dev", Dockerfile},
		{"rakefile", "Rakefile", Ruby},
		{"gemfile", "Gemfile", Ruby},
		{"bashrc", "home/.bashrc", Shell},
		{"unknown extension", "notes.xyz", Unknown},
		{"no extension", "LICENSE", Unknown},
		{"uppercase extension is not folded", "README.MD", Unknown},
		{"trailing dot", "weird.", Unknown},
		{"hidden file without extension", ".envrc", Unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.path), "Classify(%q)", tc.path)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "js", Extension("a/b/c.js"))
	assert.Equal(t, "gz", Extension("archive.tar.gz"))
	assert.Equal(t, "", Extension(".bashrc"))
	assert.Equal(t, "", Extension("Makefile"))
}

func TestTagStringRoundTrip(t *testing.T) {
	for _, tag := range Tags() {
		parsed, ok := ParseTag(tag.String())
		assert.True(t, ok, "tag %d should parse back", tag)
		assert.Equal(t, tag, parsed)
	}
	_, ok := ParseTag("unknown")
	assert.False(t, ok, "unknown must not be configurable")
	assert.Equal(t, "unknown", Tag(999).String())
}

func TestSupportedExtensionsSortedAndClassified(t *testing.T) {
	exts := SupportedExtensions()
	assert.True(t, sort.StringsAreSorted(exts))
	for _, ext := range exts {
		assert.NotEqual(t, Unknown, Classify("file."+ext), "extension %q", ext)
	}
}

func TestSniffer(t *testing.T) {
	s := NewSniffer(map[string]string{"deno": "typescript"})

	assert.Equal(t, Shell, s.Sniff("bin/run", []byte("#!/usr/bin/env bash\necho hi\n")))
	assert.Equal(t, Python, s.Sniff("bin/tool", []byte("#!/usr/bin/python3\nprint(1)\n")))
	assert.Equal(t, TypeScript, s.Sniff("bin/task", []byte("#!/usr/bin/env deno run\n")))
	assert.Equal(t, Unknown, s.Sniff("bin/data", []byte("plain text")))
	assert.Equal(t, Unknown, s.Sniff("script.txt", []byte("#!/bin/sh\n")), "files with an extension are not sniffed")
}

func TestInterpreter(t *testing.T) {
	assert.Equal(t, "bash", interpreter([]byte("#!/usr/bin/env bash -e\n")))
	assert.Equal(t, "sh", interpreter([]byte("#!/bin/sh")))
	assert.Equal(t, "", interpreter([]byte("#!")))
}
