package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AkaraChen/fama/pkg/fama/language"
)

type memoEntry struct {
	out []byte
	err error
}

// PathSensitive is implemented by capabilities whose output may depend on
// the file path beyond its extension, such as external formatters that
// resolve per-directory configuration.
type PathSensitive interface {
	UsesPath() bool
}

// memoized caches results of a capability keyed by extension (or full path
// for path-sensitive capabilities) and source digest, so identical files in
// one run are formatted once.
type memoized struct {
	inner    Capability
	cache    *lru.Cache[string, memoEntry]
	fullPath bool
}

type memoizedBatch struct {
	*memoized
	batch BatchCapability
}

// Memoize wraps c with an LRU of the given size. Size <= 0 returns c as is.
// Transport errors are never cached.
func Memoize(c Capability, size int) Capability {
	if size <= 0 {
		return c
	}
	cache, err := lru.New[string, memoEntry](size)
	if err != nil {
		return c
	}
	m := &memoized{inner: c, cache: cache}
	if ps, ok := c.(PathSensitive); ok {
		m.fullPath = ps.UsesPath()
	}
	if bc, ok := c.(BatchCapability); ok {
		return &memoizedBatch{memoized: m, batch: bc}
	}
	return m
}

func (m *memoized) Name() string { return m.inner.Name() }

func (m *memoized) key(source []byte, path string) string {
	sum := sha256.Sum256(source)
	scope := language.Extension(path)
	if m.fullPath {
		scope = path
	}
	return m.inner.Name() + ":" + scope + ":" + hex.EncodeToString(sum[:])
}

func (m *memoized) FormatOne(ctx context.Context, source []byte, path string) ([]byte, error) {
	k := m.key(source, path)
	if e, ok := m.cache.Get(k); ok {
		return e.out, e.err
	}
	out, err := m.inner.FormatOne(ctx, source, path)
	m.remember(k, out, err)
	return out, err
}

func (m *memoized) remember(k string, out []byte, err error) {
	if err != nil && !IsPassthrough(err) && !errors.Is(err, ErrParse) {
		return
	}
	m.cache.Add(k, memoEntry{out: out, err: err})
}

// FormatMany serves cached elements locally and forwards the rest as one batch.
func (m *memoizedBatch) FormatMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	keys := make([]string, len(reqs))
	var pending []Request
	var pendingIdx []int
	for i, req := range reqs {
		keys[i] = m.key(req.Source, req.Path)
		if e, ok := m.cache.Get(keys[i]); ok {
			results[i] = Result{Output: e.out, Err: e.err}
			continue
		}
		pending = append(pending, req)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return results
	}
	for j, res := range m.batch.FormatMany(ctx, pending) {
		i := pendingIdx[j]
		results[i] = res
		m.remember(keys[i], res.Output, res.Err)
	}
	return results
}
