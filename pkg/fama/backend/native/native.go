// Package native adapts formatter shared libraries with a C ABI to the
// backend.Capability contract. Libraries are loaded at runtime with purego,
// so no cgo toolchain is needed.
//
// The expected exports are
//
//	char  *Format(const char *src, size_t len, unsigned indent);
//	char **FormatBatch(const char **srcs, const size_t *lens, size_t count, unsigned indent);
//	void   FreeString(char *s);
//	void   FreeStringArray(char **arr, size_t count);
//
// where the symbol names are configurable and the batch pair is optional.
package native

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"unsafe"

	"fortio.org/safecast"

	"github.com/AkaraChen/fama/pkg/fama/backend"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// ABI is the raw boundary to a loaded library. Request memory comes from
// Malloc and goes back through Free; response memory comes from the library
// and goes back through FreeString or FreeStringArray.
type ABI interface {
	Malloc(size uintptr) uintptr
	Free(ptr uintptr)
	Write(ptr uintptr, data []byte)
	WritePointers(ptr uintptr, values []uintptr)
	Format(src, length uintptr, indent uint32) uintptr
	HasBatch() bool
	FormatBatch(srcs, lens, count uintptr, indent uint32) uintptr
	FreeString(ptr uintptr)
	FreeStringArray(arr, count uintptr)
	// ReadCString copies the NUL-terminated string at ptr.
	ReadCString(ptr uintptr) []byte
	ReadPointer(arr uintptr, index int) uintptr
}

// Backend calls a native formatter library. Calls are serialised.
type Backend struct {
	name   string
	abi    ABI
	indent uint32
	logger *slog.Logger
	mu     sync.Mutex
}

// NewWithABI returns a Backend over an already loaded ABI.
func NewWithABI(name string, abi ABI, indent uint32, loggerHandler slog.Handler) *Backend {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Backend{
		name:   name,
		abi:    abi,
		indent: indent,
		logger: slog.New(loggerHandler).With(slog.String("component", "native"), slog.String("backend", name)),
	}
}

func (b *Backend) Name() string { return b.name }

// FormatOne copies source into a host buffer, calls the format symbol and
// copies the returned string out. Both buffers are released exactly once on
// every path.
func (b *Backend) FormatOne(_ context.Context, source []byte, _ string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.hostString(source)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	res := b.libraryString(b.abi.Format(src.ptr, src.size, b.indent))
	defer res.Release()
	if res.ptr == 0 {
		return nil, backend.Errorf(b.name, backend.ErrTransport, "formatter returned null")
	}
	out := b.abi.ReadCString(res.ptr)
	if err := backend.CheckUTF8(b.name, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FormatMany passes all sources in one call to the batch symbol. The returned
// array is owned as a whole and released through FreeStringArray. Without a
// batch symbol the requests are formatted one by one.
func (b *Backend) FormatMany(ctx context.Context, reqs []backend.Request) []backend.Result {
	if !b.abi.HasBatch() {
		return backend.FormatSequential(ctx, b, reqs)
	}
	results := make([]backend.Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	failAll := func(err error) []backend.Result {
		for i := range results {
			results[i] = backend.Result{Err: err}
		}
		return results
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := uintptr(len(reqs))
	ptrs := make([]uintptr, len(reqs))
	lens := make([]uintptr, len(reqs))
	for i, req := range reqs {
		src, err := b.hostString(req.Source)
		if err != nil {
			return failAll(err)
		}
		defer src.Release()
		ptrs[i], lens[i] = src.ptr, src.size
	}
	ptrArray, err := b.hostPointers(ptrs)
	if err != nil {
		return failAll(err)
	}
	defer ptrArray.Release()
	lenArray, err := b.hostPointers(lens)
	if err != nil {
		return failAll(err)
	}
	defer lenArray.Release()

	arr := b.libraryArray(b.abi.FormatBatch(ptrArray.ptr, lenArray.ptr, count, b.indent), count)
	defer arr.Release()
	if arr.ptr == 0 {
		return failAll(backend.Errorf(b.name, backend.ErrTransport, "formatter returned null"))
	}
	for i := range reqs {
		p := b.abi.ReadPointer(arr.ptr, i)
		if p == 0 {
			results[i] = backend.Result{Err: backend.Errorf(b.name, backend.ErrTransport, "formatter returned null for element %d", i)}
			continue
		}
		out := b.abi.ReadCString(p)
		if err := backend.CheckUTF8(b.name, out); err != nil {
			results[i] = backend.Result{Err: err}
			continue
		}
		results[i] = backend.Result{Output: out}
	}
	return results
}

// hostString copies data into a NUL-terminated host buffer.
func (b *Backend) hostString(data []byte) (*foreignBuffer, error) {
	size, err := safecast.Conv[uintptr](len(data))
	if err != nil {
		return nil, backend.Wrap(b.name, backend.ErrTransport, err, "input too large")
	}
	ptr := b.abi.Malloc(size + 1)
	if ptr == 0 {
		return nil, backend.Errorf(b.name, backend.ErrTransport, "malloc returned null")
	}
	b.abi.Write(ptr, append(data[:len(data):len(data)], 0))
	return &foreignBuffer{ptr: ptr, size: size, owner: ownerHost, abi: b.abi}, nil
}

func (b *Backend) hostPointers(values []uintptr) (*foreignBuffer, error) {
	ptr := b.abi.Malloc(uintptr(len(values)) * ptrSize)
	if ptr == 0 {
		return nil, backend.Errorf(b.name, backend.ErrTransport, "malloc returned null")
	}
	b.abi.WritePointers(ptr, values)
	return &foreignBuffer{ptr: ptr, size: uintptr(len(values)), owner: ownerHost, abi: b.abi}, nil
}

func (b *Backend) libraryString(ptr uintptr) *foreignBuffer {
	return &foreignBuffer{ptr: ptr, owner: ownerLibrary, abi: b.abi}
}

func (b *Backend) libraryArray(ptr, count uintptr) *foreignBuffer {
	return &foreignBuffer{ptr: ptr, size: count, owner: ownerLibraryArray, abi: b.abi}
}
