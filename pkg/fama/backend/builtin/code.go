package builtin

import (
	"bytes"
	"context"
	"go/format"

	"mvdan.cc/sh/v3/syntax"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// GoSource formats Go files with go/format.
type GoSource struct{}

func (GoSource) Name() string { return "gofmt" }

func (g GoSource) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	out, err := format.Source(toLF(source))
	if err != nil {
		return nil, backend.Errorf(g.Name(), backend.ErrParse, "%v", err)
	}
	return out, nil
}

// Shell formats shell scripts with mvdan.cc/sh. Indent 0 means tabs.
type Shell struct {
	cfg style.FormatConfig
}

func (s *Shell) Name() string { return "shfmt" }

func (s *Shell) FormatOne(_ context.Context, source []byte, path string) ([]byte, error) {
	parser := syntax.NewParser(syntax.KeepComments(true), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(bytes.NewReader(toLF(source)), path)
	if err != nil {
		return nil, backend.Errorf(s.Name(), backend.ErrParse, "%v", err)
	}
	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(uint(s.cfg.IndentUnit())))
	if err := printer.Print(&buf, file); err != nil {
		return nil, backend.Errorf(s.Name(), backend.ErrParse, "%v", err)
	}
	return buf.Bytes(), nil
}
