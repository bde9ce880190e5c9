package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

const resultAddr = 0xF000

// fakeModule is an instrumented Module that tracks every allocation.
type fakeModule struct {
	mu          sync.Mutex
	missing     map[string]bool
	mem         map[uint32][]byte
	live        map[uint32]bool
	next        uint32
	mallocs     int
	frees       int
	doubleFrees int
	inits       int
	styles      []string
	inputs      []string
	status      uint32
	result      []byte
	resultLive  bool
	resultFrees int
	formatErr   error
	inFormat    int
	maxInFormat int
	closed      bool
}

func newFakeModule(status uint32, result string) *fakeModule {
	return &fakeModule{
		missing: map[string]bool{},
		mem:     map[uint32][]byte{},
		live:    map[uint32]bool{},
		status:  status,
		result:  []byte(result),
	}
}

func (f *fakeModule) Exports(name string) bool { return !f.missing[name] }

func (f *fakeModule) Call(_ context.Context, name string, params ...uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case ExportMalloc:
		f.next += 0x100
		f.live[f.next] = true
		f.mallocs++
		return f.next, nil
	case ExportFree:
		if !f.live[params[0]] {
			f.doubleFrees++
			return 0, nil
		}
		delete(f.live, params[0])
		f.frees++
		return 0, nil
	case ExportInit:
		f.inits++
		return 0, nil
	case ExportSetStyle:
		f.styles = append(f.styles, string(f.mem[params[0]][:params[1]]))
		return 0, nil
	case ExportFormat:
		f.inFormat++
		f.maxInFormat = max(f.maxInFormat, f.inFormat)
		f.mu.Unlock()
		f.mu.Lock()
		f.inFormat--
		f.inputs = append(f.inputs, string(f.mem[params[0]][:params[1]]))
		if f.formatErr != nil {
			return 0, f.formatErr
		}
		if f.status == statusFormatted || f.status == statusError {
			f.resultLive = true
		}
		return f.status, nil
	case ExportResultPtr:
		return resultAddr, nil
	case ExportResultLen:
		return uint32(len(f.result)), nil
	case ExportFreeResult:
		if !f.resultLive {
			f.doubleFrees++
			return 0, nil
		}
		f.resultLive = false
		f.resultFrees++
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected call %s", name)
}

func (f *fakeModule) Write(ptr uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem[ptr] = append([]byte(nil), data...)
	return nil
}

func (f *fakeModule) Read(ptr, length uint32) ([]byte, error) {
	if ptr != resultAddr || int(length) > len(f.result) {
		return nil, errors.New("out of range")
	}
	return append([]byte(nil), f.result[:length]...), nil
}

func (f *fakeModule) Close(context.Context) error {
	f.closed = true
	return nil
}

// assertBalanced checks every input allocation was freed exactly once.
func (f *fakeModule) assertBalanced(t *testing.T) {
	t.Helper()
	assert.Empty(t, f.live, "leaked module allocations")
	assert.Equal(t, f.mallocs, f.frees)
	assert.Zero(t, f.doubleFrees)
	assert.False(t, f.resultLive, "result left unfreed")
}

func newTestBackend(mod *fakeModule) (*Backend, *int) {
	opens := 0
	b := NewWithOpener("clang-format", style.Default(), func(context.Context) (Module, error) {
		opens++
		return mod, nil
	}, nil)
	return b, &opens
}

func TestFormatOneStatuses(t *testing.T) {
	testCases := []struct {
		name        string
		status      uint32
		result      string
		want        string
		wantErr     error
		errText     string
		resultFrees int
	}{
		{name: "formatted", status: 0, result: "int main() { return 0; }\n", want: "int main() { return 0; }\n", resultFrees: 1},
		{name: "domain error", status: 1, result: "expected ';'", wantErr: backend.ErrParse, errText: "expected ';'", resultFrees: 1},
		{name: "unchanged", status: 2, want: "int main(){return 0;}", resultFrees: 0},
		{name: "unknown status", status: 7, wantErr: backend.ErrTransport, errText: "unknown status code 7"},
		{name: "invalid utf-8", status: 0, result: "\xff\xfe", wantErr: backend.ErrDecode, resultFrees: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mod := newFakeModule(tc.status, tc.result)
			b, _ := newTestBackend(mod)

			out, err := b.FormatOne(context.Background(), []byte("int main(){return 0;}"), "main.c")
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), tc.errText)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, string(out))
			}
			assert.Equal(t, tc.resultFrees, mod.resultFrees)
			mod.assertBalanced(t)
		})
	}
}

func TestFormatOneTrapFreesInputs(t *testing.T) {
	mod := newFakeModule(0, "")
	mod.formatErr = errors.New("wasm error: unreachable")
	b, _ := newTestBackend(mod)

	_, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
	assert.ErrorIs(t, err, backend.ErrTransport)
	mod.assertBalanced(t)
}

func TestModuleInitializedOnceWithStyle(t *testing.T) {
	mod := newFakeModule(2, "")
	b, opens := newTestBackend(mod)

	for i := 0; i < 3; i++ {
		_, err := b.FormatOne(context.Background(), []byte("x"), "a.cpp")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *opens)
	assert.Equal(t, 1, mod.inits)
	require.Len(t, mod.styles, 1)
	assert.Equal(t, "{BasedOnStyle: LLVM, UseTab: Always, IndentWidth: 4, TabWidth: 4, ColumnLimit: 80}", mod.styles[0])
	assert.Equal(t, []string{"x", "x", "x"}, mod.inputs)
	mod.assertBalanced(t)
}

func TestCloseThenFormatReloads(t *testing.T) {
	var mods []*fakeModule
	b := NewWithOpener("clang-format", style.Default(), func(context.Context) (Module, error) {
		mod := newFakeModule(0, "int x;\n")
		mods = append(mods, mod)
		return mod, nil
	}, nil)

	for run := 0; run < 2; run++ {
		out, err := b.FormatOne(context.Background(), []byte("int  x;"), "a.c")
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, "int x;\n", string(out))
		require.NoError(t, b.Close(context.Background()))
	}
	require.Len(t, mods, 2)
	for _, mod := range mods {
		assert.True(t, mod.closed)
		assert.Equal(t, 1, mod.inits)
		mod.assertBalanced(t)
	}
	assert.NoError(t, b.Close(context.Background()), "closing an unloaded backend is a no-op")
}

func TestCloseClearsLoadFailure(t *testing.T) {
	mod := newFakeModule(2, "")
	mod.missing[ExportFormat] = true
	b, opens := newTestBackend(mod)

	_, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
	assert.ErrorIs(t, err, backend.ErrTransport)
	require.NoError(t, b.Close(context.Background()))

	delete(mod.missing, ExportFormat)
	out, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
	assert.Equal(t, 2, *opens)
}

func TestStyleYAMLSpaces(t *testing.T) {
	cfg := style.Default()
	cfg.IndentStyle = style.IndentSpaces
	cfg.IndentWidth = 2
	cfg.LineWidth = 100
	assert.Equal(t, "{BasedOnStyle: LLVM, UseTab: Never, IndentWidth: 2, TabWidth: 2, ColumnLimit: 100}", StyleYAML(cfg))
}

func TestMissingExportFailsLoad(t *testing.T) {
	mod := newFakeModule(0, "")
	mod.missing[ExportFreeResult] = true
	b, opens := newTestBackend(mod)

	_, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Contains(t, err.Error(), ExportFreeResult)
	assert.True(t, mod.closed)

	_, err = b.FormatOne(context.Background(), []byte("x"), "a.c")
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Equal(t, 1, *opens, "load failure is not retried")
}

func TestOptionalExportsSkipped(t *testing.T) {
	mod := newFakeModule(2, "")
	mod.missing[ExportInit] = true
	mod.missing[ExportSetStyle] = true
	b, _ := newTestBackend(mod)

	_, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
	require.NoError(t, err)
	assert.Zero(t, mod.inits)
	assert.Empty(t, mod.styles)
}

func TestCallsAreSerialised(t *testing.T) {
	mod := newFakeModule(0, "ok\n")
	b, _ := newTestBackend(mod)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.FormatOne(context.Background(), []byte("x"), "a.c")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, mod.maxInFormat)
	assert.Equal(t, 16, mod.resultFrees)
	mod.assertBalanced(t)
}

func TestFormatManyMatchesFormatOne(t *testing.T) {
	mod := newFakeModule(0, "formatted\n")
	b, _ := newTestBackend(mod)
	reqs := []backend.Request{{Source: []byte("a"), Path: "a.c"}, {Source: []byte("b"), Path: "b.c"}}

	results := b.FormatMany(context.Background(), reqs)
	require.Len(t, results, 2)
	for i, req := range reqs {
		one, err := b.FormatOne(context.Background(), req.Source, req.Path)
		require.NoError(t, err)
		assert.Equal(t, one, results[i].Output)
	}
	mod.assertBalanced(t)
}

func TestInstantiateRejectsInvalidModule(t *testing.T) {
	_, err := Instantiate(context.Background(), []byte("not wasm"))
	assert.Error(t, err)

	b, err := New(Config{Name: "clang", Module: t.TempDir() + "/missing.wasm"}, style.Default(), nil)
	require.NoError(t, err)
	_, err = b.FormatOne(context.Background(), []byte("x"), "a.c")
	assert.ErrorIs(t, err, backend.ErrTransport)
}
