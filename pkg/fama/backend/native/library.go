//go:build darwin || linux || freebsd

package native

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/AkaraChen/fama/pkg/fama/style"
)

// New loads cfg.Library and resolves its symbols.
func New(cfg Config, fc style.FormatConfig, loggerHandler slog.Handler) (*Backend, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	lib, err := openLibrary(cfg)
	if err != nil {
		return nil, err
	}
	var indent uint32
	if cfg.PassIndent {
		indent = fc.IndentUnit()
	}
	return NewWithABI(cfg.Name, lib, indent, loggerHandler), nil
}

func libcPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	default:
		return "libc.so.6"
	}
}

// library is the purego-backed ABI.
type library struct {
	malloc          func(size uintptr) uintptr
	free            func(ptr uintptr)
	format          func(src, length uintptr, indent uint32) uintptr
	formatBatch     func(srcs, lens, count uintptr, indent uint32) uintptr
	freeString      func(ptr uintptr)
	freeStringArray func(arr, count uintptr)
}

func openLibrary(cfg Config) (*library, error) {
	handle, err := purego.Dlopen(cfg.Library, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load library %s: %w", cfg.Library, err)
	}
	libc, err := purego.Dlopen(libcPath(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load libc: %w", err)
	}

	lib := &library{}
	bind := func(fptr any, h uintptr, name string) error {
		sym, err := purego.Dlsym(h, name)
		if err != nil {
			return fmt.Errorf("library %s: missing symbol %s: %w", cfg.Library, name, err)
		}
		purego.RegisterFunc(fptr, sym)
		return nil
	}
	for _, s := range []struct {
		fptr any
		h    uintptr
		name string
	}{
		{&lib.malloc, libc, "malloc"},
		{&lib.free, libc, "free"},
		{&lib.format, handle, cfg.Symbol},
		{&lib.freeString, handle, cfg.FreeSymbol},
	} {
		if err := bind(s.fptr, s.h, s.name); err != nil {
			return nil, err
		}
	}
	if cfg.BatchSymbol != "" {
		if err := bind(&lib.formatBatch, handle, cfg.BatchSymbol); err != nil {
			return nil, err
		}
		if err := bind(&lib.freeStringArray, handle, cfg.FreeArraySymbol); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func (l *library) Malloc(size uintptr) uintptr { return l.malloc(size) }
func (l *library) Free(ptr uintptr)            { l.free(ptr) }

func (l *library) Format(src, length uintptr, indent uint32) uintptr {
	return l.format(src, length, indent)
}

func (l *library) HasBatch() bool { return l.formatBatch != nil }

func (l *library) FormatBatch(srcs, lens, count uintptr, indent uint32) uintptr {
	return l.formatBatch(srcs, lens, count, indent)
}

func (l *library) FreeString(ptr uintptr)             { l.freeString(ptr) }
func (l *library) FreeStringArray(arr, count uintptr) { l.freeStringArray(arr, count) }

func (l *library) Write(ptr uintptr, data []byte) {
	copy(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(data)), data)
}

func (l *library) WritePointers(ptr uintptr, values []uintptr) {
	copy(unsafe.Slice((*uintptr)(unsafe.Pointer(ptr)), len(values)), values)
}

func (l *library) ReadCString(ptr uintptr) []byte {
	p := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

func (l *library) ReadPointer(arr uintptr, index int) uintptr {
	return *(*uintptr)(unsafe.Add(unsafe.Pointer(arr), uintptr(index)*ptrSize))
}
