package fama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/backend/builtin"
	"github.com/AkaraChen/fama/pkg/fama/backend/native"
	"github.com/AkaraChen/fama/pkg/fama/backend/subprocess"
	"github.com/AkaraChen/fama/pkg/fama/backend/wasm"
	"github.com/AkaraChen/fama/pkg/fama/language"
)

// NewDefaultRegistry binds the builtin capabilities, then every configured
// backend on top of them, wraps each in a memo of opts.MemoSize entries and
// freezes the result. The returned release function closes module
// instances and must be called once the run is over.
func NewDefaultRegistry(opts *Options) (*backend.Registry, func(context.Context), error) {
	reg := backend.NewRegistry(opts.Logger)
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(handler).With(slog.String("component", "registry"))
	if err := builtin.Register(reg, opts.Format); err != nil {
		return nil, nil, err
	}

	var closers []func(context.Context) error
	release := func(ctx context.Context) {
		for _, c := range closers {
			if err := c(ctx); err != nil {
				logger.Warn("Failed to release backend", slog.String("error", err.Error()))
			}
		}
	}

	for i, bc := range opts.Backends {
		tags, err := parseLanguages(bc)
		if err != nil {
			release(context.Background())
			return nil, nil, err
		}
		c, closer, err := newBackend(opts, bc)
		if err != nil {
			release(context.Background())
			return nil, nil, fmt.Errorf("%w: backends[%d] (%s): %w", ErrConfigValidation, i, bc.Name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		if err := reg.Register(c, tags...); err != nil {
			release(context.Background())
			return nil, nil, err
		}
		logger.Debug("Backend registered", slog.String("name", bc.Name), slog.String("kind", string(bc.Kind)),
			slog.Any("languages", bc.Languages))
	}

	if opts.MemoSize > 0 {
		// Tags sharing a capability share its memo.
		memo := backend.NewRegistry(opts.Logger)
		wrapped := make(map[string]backend.Capability)
		for _, tag := range reg.Tags() {
			c, _ := reg.Resolve(tag)
			m, ok := wrapped[c.Name()]
			if !ok {
				m = backend.Memoize(c, opts.MemoSize)
				wrapped[c.Name()] = m
			}
			if err := memo.Register(m, tag); err != nil {
				release(context.Background())
				return nil, nil, err
			}
		}
		reg = memo
	}
	reg.Freeze()
	return reg, release, nil
}

func parseLanguages(bc BackendConfig) ([]language.Tag, error) {
	if len(bc.Languages) == 0 {
		return nil, fmt.Errorf("%w: backend '%s' lists no languages", ErrConfigValidation, bc.Name)
	}
	tags := make([]language.Tag, 0, len(bc.Languages))
	for _, name := range bc.Languages {
		tag, ok := language.ParseTag(name)
		if !ok || tag == language.Unknown {
			return nil, fmt.Errorf("%w: backend '%s': unknown language '%s'", ErrConfigValidation, bc.Name, name)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func newBackend(opts *Options, bc BackendConfig) (backend.Capability, func(context.Context) error, error) {
	switch BackendKind(strings.ToLower(string(bc.Kind))) {
	case BackendSubprocess, "":
		b, err := subprocess.New(subprocess.Config{
			Name:         bc.Name,
			Command:      bc.Command,
			PathArg:      bc.PathArg,
			BatchCommand: bc.BatchCommand,
			Timeout:      bc.Timeout,
		}, opts.Logger)
		return b, nil, err
	case BackendWasm:
		b, err := wasm.New(wasm.Config{Name: bc.Name, Module: bc.Module}, opts.Format, opts.Logger)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case BackendNative:
		b, err := native.New(native.Config{
			Name:            bc.Name,
			Library:         bc.Library,
			Symbol:          bc.Symbol,
			BatchSymbol:     bc.BatchSymbol,
			FreeSymbol:      bc.FreeSymbol,
			FreeArraySymbol: bc.FreeArraySymbol,
			PassIndent:      bc.PassIndent,
		}, opts.Format, opts.Logger)
		return b, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown backend kind '%s' (want subprocess|wasm|native)", bc.Kind)
	}
}
