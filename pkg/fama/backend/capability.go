// Package backend defines the formatting capability contract and the registry
// that maps language tags to capabilities.
package backend

import (
	"context"
	"unicode/utf8"
)

// Capability formats one file. Implementations must be safe for concurrent
// use; stateful single-instance backends serialise internally.
type Capability interface {
	Name() string
	FormatOne(ctx context.Context, source []byte, path string) ([]byte, error)
}

// Request is one element of a batch call.
type Request struct {
	Source []byte
	Path   string
}

// Result is one element of a batch response. Results[i] answers Requests[i].
type Result struct {
	Output []byte
	Err    error
}

// BatchCapability is implemented by backends where grouping files amortises a
// fixed cost (process spawn, module instantiation). FormatMany(xs)[i] must
// equal FormatOne(xs[i]).
type BatchCapability interface {
	Capability
	FormatMany(ctx context.Context, reqs []Request) []Result
}

// FormatFunc adapts a plain function to Capability.
type FormatFunc struct {
	ID string
	Fn func(ctx context.Context, source []byte, path string) ([]byte, error)
}

// Name implements Capability.
func (f FormatFunc) Name() string { return f.ID }

// FormatOne implements Capability.
func (f FormatFunc) FormatOne(ctx context.Context, source []byte, path string) ([]byte, error) {
	return f.Fn(ctx, source, path)
}

// FormatSequential runs FormatOne for each request. Adapters without a native
// batch entry point use it to satisfy BatchCapability.
func FormatSequential(ctx context.Context, c Capability, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Err: Wrap(c.Name(), ErrTransport, err, "batch interrupted")}
			continue
		}
		out, err := c.FormatOne(ctx, req.Source, req.Path)
		results[i] = Result{Output: out, Err: err}
	}
	return results
}

// CheckUTF8 returns a decode error when out is not valid UTF-8.
func CheckUTF8(name string, out []byte) error {
	if !utf8.Valid(out) {
		return Errorf(name, ErrDecode, "invalid UTF-8 in formatter output")
	}
	return nil
}
