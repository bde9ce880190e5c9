// Package builtin provides the in-process formatting capabilities that ship
// with fama. Each capability emits LF line endings; the engine converts to the
// configured line ending when writing.
package builtin

import (
	"bytes"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/language"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

type binding struct {
	capability backend.Capability
	tags       []language.Tag
}

func bindings(cfg style.FormatConfig) []binding {
	return []binding{
		{&Script{cfg: cfg}, []language.Tag{language.JavaScript, language.TypeScript, language.Jsx, language.Tsx}},
		{&Stylesheet{cfg: cfg}, []language.Tag{language.Css, language.Scss, language.Less, language.Sass}},
		{&Markup{}, []language.Tag{language.Html, language.Vue, language.Svelte, language.Astro}},
		{&JSON{cfg: cfg}, []language.Tag{language.Json}},
		{&JSON{cfg: cfg, lenient: true}, []language.Tag{language.Jsonc}},
		{&YAML{cfg: cfg}, []language.Tag{language.Yaml}},
		{&TOML{}, []language.Tag{language.Toml}},
		{GoSource{}, []language.Tag{language.Go}},
		{&Shell{cfg: cfg}, []language.Tag{language.Shell}},
		{Whitespace{}, []language.Tag{language.Markdown, language.Dockerfile}},
	}
}

// Register binds every builtin capability to its language tags.
func Register(reg *backend.Registry, cfg style.FormatConfig) error {
	for _, b := range bindings(cfg) {
		if err := reg.Register(b.capability, b.tags...); err != nil {
			return err
		}
	}
	return nil
}

func toLF(src []byte) []byte {
	if !bytes.Contains(src, []byte("\r")) {
		return src
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(src, []byte("\r"), []byte("\n"))
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// lineWriter collects output lines, collapsing runs of blank lines into one
// and dropping blank lines at the start and end of the file.
type lineWriter struct {
	out          bytes.Buffer
	pendingBlank bool
}

func (w *lineWriter) line(s []byte) {
	if len(s) == 0 {
		if w.out.Len() > 0 {
			w.pendingBlank = true
		}
		return
	}
	w.verbatim(s)
}

// verbatim writes s even when it is empty.
func (w *lineWriter) verbatim(s []byte) {
	if w.pendingBlank {
		w.out.WriteByte('\n')
		w.pendingBlank = false
	}
	w.out.Write(s)
	w.out.WriteByte('\n')
}

func (w *lineWriter) bytes() []byte { return w.out.Bytes() }
