package editorconfig

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/AkaraChen/fama/pkg/fama/style"
)

// FileName is the file Export writes.
const FileName = ".editorconfig"

//go:embed editorconfig.tmpl
var defaultTemplateContent string

// Section overrides the global settings for a set of extensions. Zero fields
// inherit from [*].
type Section struct {
	Extensions   []string
	IndentStyle  string
	IndentSize   int
	LineWidth    int
	KeepTrailing bool
}

// Data is what the template renders.
type Data struct {
	EndOfLine   string
	IndentStyle string
	IndentSize  int
	LineWidth   int
	Sections    []Section
}

var funcs = template.FuncMap{
	"globs": func(exts []string) string {
		if len(exts) == 1 {
			return "*." + exts[0]
		}
		return "*.{" + strings.Join(exts, ",") + "}"
	},
}

// NewData derives the template data from cfg. Languages whose ecosystems pin
// an indentation (YAML, Python, Go, Makefiles) get their own sections.
func NewData(cfg style.FormatConfig) Data {
	indentStyle := "space"
	if cfg.IndentStyle == style.IndentTabs {
		indentStyle = "tab"
	}
	return Data{
		EndOfLine:   string(cfg.LineEnding),
		IndentStyle: indentStyle,
		IndentSize:  cfg.IndentWidth,
		LineWidth:   cfg.LineWidth,
		Sections: []Section{
			{Extensions: []string{"yaml", "yml"}, IndentStyle: "space", IndentSize: 2},
			{Extensions: []string{"md", "markdown"}, KeepTrailing: true},
			{Extensions: []string{"py", "pyi"}, IndentStyle: "space", IndentSize: 4, LineWidth: 88},
			{Extensions: []string{"go"}, IndentStyle: "tab"},
			{Extensions: []string{"rs"}, IndentStyle: "space", IndentSize: 4, LineWidth: 100},
			{Extensions: []string{"kt", "kts"}, IndentStyle: "space", IndentSize: 4, LineWidth: 120},
		},
	}
}

// LoadDefaultTemplate parses the embedded template.
func LoadDefaultTemplate() (*template.Template, error) {
	if defaultTemplateContent == "" {
		return nil, fmt.Errorf("embedded editorconfig template is empty")
	}
	tmpl, err := template.New("editorconfig").Funcs(funcs).Parse(defaultTemplateContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse editorconfig template: %w", err)
	}
	return tmpl, nil
}

// Render writes an .editorconfig matching cfg to w.
func Render(w io.Writer, cfg style.FormatConfig) error {
	tmpl, err := LoadDefaultTemplate()
	if err != nil {
		return err
	}
	if err := tmpl.Execute(w, NewData(cfg)); err != nil {
		return fmt.Errorf("template execution failed for %q: %w", tmpl.Name(), err)
	}
	return nil
}
