package native

type owner int

const (
	// ownerHost buffers come from libc malloc and go back through free.
	ownerHost owner = iota
	// ownerLibrary strings are released with the library's FreeString.
	ownerLibrary
	// ownerLibraryArray arrays are released, elements included, with the
	// library's FreeStringArray.
	ownerLibraryArray
)

// foreignBuffer is memory outside the Go heap tagged with the party that
// must release it. Release is idempotent and ignores null pointers.
type foreignBuffer struct {
	ptr      uintptr
	size     uintptr
	owner    owner
	abi      ABI
	released bool
}

func (f *foreignBuffer) Release() {
	if f == nil || f.released || f.ptr == 0 {
		return
	}
	f.released = true
	switch f.owner {
	case ownerHost:
		f.abi.Free(f.ptr)
	case ownerLibrary:
		f.abi.FreeString(f.ptr)
	case ownerLibraryArray:
		f.abi.FreeStringArray(f.ptr, f.size)
	}
}
