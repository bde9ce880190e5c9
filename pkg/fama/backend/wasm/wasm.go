// Package wasm adapts sandboxed WebAssembly formatter modules to the
// backend.Capability contract.
//
// A module exports malloc, free, wasm_format, wasm_get_result_ptr,
// wasm_get_result_len and wasm_free_result, and optionally wasm_init and
// wasm_set_style. wasm_format returns 0 with the formatted source as the
// result, 1 with an error message as the result, or 2 when the source is
// already formatted.
package wasm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"fortio.org/safecast"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// Export names.
const (
	ExportMalloc     = "malloc"
	ExportFree       = "free"
	ExportInit       = "wasm_init"
	ExportSetStyle   = "wasm_set_style"
	ExportFormat     = "wasm_format"
	ExportResultPtr  = "wasm_get_result_ptr"
	ExportResultLen  = "wasm_get_result_len"
	ExportFreeResult = "wasm_free_result"
)

// wasm_format status codes.
const (
	statusFormatted = 0
	statusError     = 1
	statusUnchanged = 2
)

// Module is the memory and function surface of one instantiated module.
type Module interface {
	// Exports reports whether the module exports the function name.
	Exports(name string) bool
	// Call invokes an exported function with i32 parameters and returns its
	// first result, or 0 for functions without results.
	Call(ctx context.Context, name string, params ...uint32) (uint32, error)
	Write(ptr uint32, data []byte) error
	// Read returns a copy of length bytes at ptr.
	Read(ptr, length uint32) ([]byte, error)
	Close(ctx context.Context) error
}

// Opener instantiates a module.
type Opener func(ctx context.Context) (Module, error)

// Config describes one module backend.
type Config struct {
	Name   string `mapstructure:"name"`
	Module string `mapstructure:"module"`
}

// Backend runs formatting calls against a single module instance. The module
// is compiled and instantiated on first use and again on the first use after
// Close; calls are serialised.
type Backend struct {
	name   string
	style  style.FormatConfig
	open   Opener
	logger *slog.Logger

	// mu guards the fields below and serialises calls into the module.
	mu      sync.Mutex
	loaded  bool
	mod     Module
	loadErr error
}

// New returns a Backend that loads cfg.Module with wazero.
func New(cfg Config, fc style.FormatConfig, loggerHandler slog.Handler) (*Backend, error) {
	if cfg.Name == "" || cfg.Module == "" {
		return nil, fmt.Errorf("wasm backend requires a name and a module path")
	}
	return NewWithOpener(cfg.Name, fc, OpenFile(cfg.Module), loggerHandler), nil
}

// NewWithOpener returns a Backend that instantiates its module with open.
func NewWithOpener(name string, fc style.FormatConfig, open Opener, loggerHandler slog.Handler) *Backend {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Backend{
		name:   name,
		style:  fc,
		open:   open,
		logger: slog.New(loggerHandler).With(slog.String("component", "wasm"), slog.String("backend", name)),
	}
}

func (b *Backend) Name() string { return b.name }

// StyleYAML renders the inline style passed to wasm_set_style.
func StyleYAML(cfg style.FormatConfig) string {
	useTab := "Never"
	if cfg.IndentStyle == style.IndentTabs {
		useTab = "Always"
	}
	return fmt.Sprintf("{BasedOnStyle: LLVM, UseTab: %s, IndentWidth: %d, TabWidth: %d, ColumnLimit: %d}",
		useTab, cfg.IndentWidth, cfg.IndentWidth, cfg.LineWidth)
}

// module returns the instance, loading it if needed. b.mu must be held. A
// failed load is remembered until Close.
func (b *Backend) module(ctx context.Context) (Module, error) {
	if b.loaded {
		return b.mod, b.loadErr
	}
	b.loaded = true
	mod, err := b.open(ctx)
	if err != nil {
		b.loadErr = backend.Wrap(b.name, backend.ErrTransport, err, "failed to load module")
		return nil, b.loadErr
	}
	if err := b.initialize(ctx, mod); err != nil {
		_ = mod.Close(ctx)
		b.loadErr = err
		return nil, err
	}
	b.mod = mod
	b.logger.Debug("Module loaded")
	return mod, nil
}

func (b *Backend) initialize(ctx context.Context, mod Module) error {
	for _, name := range []string{ExportMalloc, ExportFree, ExportFormat, ExportResultPtr, ExportResultLen, ExportFreeResult} {
		if !mod.Exports(name) {
			return backend.Errorf(b.name, backend.ErrTransport, "module does not export %s", name)
		}
	}
	if mod.Exports(ExportInit) {
		if _, err := mod.Call(ctx, ExportInit); err != nil {
			return backend.Wrap(b.name, backend.ErrTransport, err, "%s failed", ExportInit)
		}
	}
	if !mod.Exports(ExportSetStyle) {
		return nil
	}
	styleYAML := []byte(StyleYAML(b.style))
	ptr, size, err := b.alloc(ctx, mod, styleYAML)
	if err != nil {
		return err
	}
	defer b.release(ctx, mod, ptr)
	if status, err := mod.Call(ctx, ExportSetStyle, ptr, size); err != nil {
		return backend.Wrap(b.name, backend.ErrTransport, err, "%s failed", ExportSetStyle)
	} else if status != 0 {
		b.logger.Warn("Module rejected style", slog.String("style", string(styleYAML)), slog.Int("status", int(status)))
	}
	return nil
}

// FormatOne copies source and path into module memory, calls wasm_format and
// copies the result out. Both inputs are freed on every path; a result is
// freed with wasm_free_result whenever the status carries one.
func (b *Backend) FormatOne(ctx context.Context, source []byte, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mod, err := b.module(ctx)
	if err != nil {
		return nil, err
	}

	codePtr, codeLen, err := b.alloc(ctx, mod, source)
	if err != nil {
		return nil, err
	}
	defer b.release(ctx, mod, codePtr)

	namePtr, nameLen, err := b.alloc(ctx, mod, []byte(path))
	if err != nil {
		return nil, err
	}
	defer b.release(ctx, mod, namePtr)

	status, err := mod.Call(ctx, ExportFormat, codePtr, codeLen, namePtr, nameLen)
	if err != nil {
		return nil, backend.Wrap(b.name, backend.ErrTransport, err, "%s failed", ExportFormat)
	}

	switch int32(status) {
	case statusFormatted:
		out, err := b.takeResult(ctx, mod)
		if err != nil {
			return nil, err
		}
		if err := backend.CheckUTF8(b.name, out); err != nil {
			return nil, err
		}
		return out, nil
	case statusError:
		msg, err := b.takeResult(ctx, mod)
		if err != nil {
			return nil, err
		}
		return nil, backend.Errorf(b.name, backend.ErrParse, "%s", msg)
	case statusUnchanged:
		return source, nil
	default:
		return nil, backend.Errorf(b.name, backend.ErrTransport, "unknown status code %d", int32(status))
	}
}

// FormatMany formats requests sequentially against the shared instance.
func (b *Backend) FormatMany(ctx context.Context, reqs []backend.Request) []backend.Result {
	return backend.FormatSequential(ctx, b, reqs)
}

// Close releases the module instance. A later call loads it again.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mod := b.mod
	b.loaded, b.mod, b.loadErr = false, nil, nil
	if mod == nil {
		return nil
	}
	return mod.Close(ctx)
}

// takeResult copies the pending result out of module memory and frees it.
func (b *Backend) takeResult(ctx context.Context, mod Module) ([]byte, error) {
	defer func() {
		if _, err := mod.Call(ctx, ExportFreeResult); err != nil {
			b.logger.Warn("Failed to free module result", slog.Any("error", err))
		}
	}()
	ptr, err := mod.Call(ctx, ExportResultPtr)
	if err != nil {
		return nil, backend.Wrap(b.name, backend.ErrTransport, err, "%s failed", ExportResultPtr)
	}
	length, err := mod.Call(ctx, ExportResultLen)
	if err != nil {
		return nil, backend.Wrap(b.name, backend.ErrTransport, err, "%s failed", ExportResultLen)
	}
	if ptr == 0 || length == 0 {
		return []byte{}, nil
	}
	out, err := mod.Read(ptr, length)
	if err != nil {
		return nil, backend.Wrap(b.name, backend.ErrTransport, err, "failed to read result")
	}
	return out, nil
}

// alloc copies data into freshly malloc'd module memory. The caller owns the
// returned pointer and must release it.
func (b *Backend) alloc(ctx context.Context, mod Module, data []byte) (ptr, size uint32, err error) {
	size, err = safecast.Conv[uint32](len(data))
	if err != nil {
		return 0, 0, backend.Wrap(b.name, backend.ErrTransport, err, "input too large")
	}
	ptr, err = mod.Call(ctx, ExportMalloc, max(size, 1))
	if err != nil {
		return 0, 0, backend.Wrap(b.name, backend.ErrTransport, err, "malloc failed")
	}
	if ptr == 0 {
		return 0, 0, backend.Errorf(b.name, backend.ErrTransport, "malloc returned null")
	}
	if err := mod.Write(ptr, data); err != nil {
		b.release(ctx, mod, ptr)
		return 0, 0, backend.Wrap(b.name, backend.ErrTransport, err, "failed to write input")
	}
	return ptr, size, nil
}

func (b *Backend) release(ctx context.Context, mod Module, ptr uint32) {
	if _, err := mod.Call(ctx, ExportFree, ptr); err != nil {
		b.logger.Warn("Failed to free module memory", slog.Any("error", err))
	}
}
