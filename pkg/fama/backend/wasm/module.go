package wasm

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// OpenFile returns an Opener that compiles the module at path and
// instantiates it with WASI preview1 and the emscripten host stubs.
func OpenFile(path string) Opener {
	return func(ctx context.Context) (Module, error) {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read module %s: %w", path, err)
		}
		return Instantiate(ctx, code)
	}
}

// Instantiate compiles and instantiates code in a fresh runtime.
func Instantiate(ctx context.Context, code []byte) (Module, error) {
	r := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := instantiateEnv(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithStartFunctions("_initialize"))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	return &wazeroModule{runtime: r, mod: mod}, nil
}

// instantiateEnv provides the emscripten imports a standalone build expects.
// Filesystem syscalls fail with -1.
func instantiateEnv(ctx context.Context, r wazero.Runtime) error {
	fail := func(context.Context, int32, int32, int32) int32 { return -1 }
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(func(context.Context, int32) {}).Export("emscripten_notify_memory_growth").
		NewFunctionBuilder().WithFunc(func(context.Context, int32, int32) int32 { return -1 }).Export("__syscall_getcwd").
		NewFunctionBuilder().WithFunc(func(context.Context, int32) int32 { return -1 }).Export("__syscall_chdir").
		NewFunctionBuilder().WithFunc(func(context.Context, int32, int32, int32, int32) int32 { return -1 }).Export("__syscall_faccessat").
		NewFunctionBuilder().WithFunc(fail).Export("__syscall_statfs64").
		NewFunctionBuilder().WithFunc(fail).Export("__syscall_unlinkat").
		NewFunctionBuilder().WithFunc(func(context.Context, int32, int32, int32, int32) int32 { return -1 }).Export("__syscall_readlinkat").
		NewFunctionBuilder().WithFunc(fail).Export("__syscall_getdents64").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to instantiate env imports: %w", err)
	}
	return nil
}

type wazeroModule struct {
	runtime wazero.Runtime
	mod     api.Module
}

func (m *wazeroModule) Exports(name string) bool {
	return m.mod.ExportedFunction(name) != nil
}

func (m *wazeroModule) Call(ctx context.Context, name string, params ...uint32) (uint32, error) {
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("module does not export %s", name)
	}
	args := make([]uint64, len(params))
	for i, p := range params {
		args[i] = api.EncodeU32(p)
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return api.DecodeU32(results[0]), nil
}

func (m *wazeroModule) Write(ptr uint32, data []byte) error {
	if !m.mod.Memory().Write(ptr, data) {
		return fmt.Errorf("write of %d bytes at %#x is out of range", len(data), ptr)
	}
	return nil
}

func (m *wazeroModule) Read(ptr, length uint32) ([]byte, error) {
	view, ok := m.mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("read of %d bytes at %#x is out of range", length, ptr)
	}
	return append([]byte(nil), view...), nil
}

func (m *wazeroModule) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
