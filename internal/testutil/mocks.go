// Package testutil provides test doubles for the interfaces of pkg/fama and
// its subpackages, plus filesystem helpers.
//
// Mocks embed testify's mock.Mock; configure them with .On(...).Return(...).
// Tests that add state to a mock MUST keep it thread-safe, since the engine
// calls hooks and capabilities from several workers.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/AkaraChen/fama/pkg/fama"
	"github.com/AkaraChen/fama/pkg/fama/backend"
)

// MockCacheManager mocks fama.CacheManager.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(filePath, contentHash, configHash string) bool {
	args := m.Called(filePath, contentHash, configHash)
	return args.Bool(0)
}

func (m *MockCacheManager) Update(filePath, contentHash, configHash string) error {
	args := m.Called(filePath, contentHash, configHash)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockGitClient mocks git.GitClient.
type MockGitClient struct {
	mock.Mock
}

func (m *MockGitClient) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	args := m.Called(ctx, dir)
	return args.String(0), args.Error(1)
}

func (m *MockGitClient) ChangedFiles(ctx context.Context, root string, staged bool) ([]string, error) {
	args := m.Called(ctx, root, staged)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

// MockHooks mocks fama.Hooks.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(path string, status fama.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report fama.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// RecordingHooks records every event. It is safe for concurrent use.
type RecordingHooks struct {
	mu         sync.Mutex
	Discovered []string
	Statuses   map[string][]fama.Status
	Reports    []fama.Report
}

func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{Statuses: make(map[string][]fama.Status)}
}

func (h *RecordingHooks) OnFileDiscovered(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Discovered = append(h.Discovered, path)
	return nil
}

func (h *RecordingHooks) OnFileStatusUpdate(path string, status fama.Status, _ string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Statuses[path] = append(h.Statuses[path], status)
	return nil
}

func (h *RecordingHooks) OnRunComplete(report fama.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Reports = append(h.Reports, report)
	return nil
}

// Final returns the last status recorded for path.
func (h *RecordingHooks) Final(path string) fama.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.Statuses[path]
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// MockCapability mocks backend.Capability.
type MockCapability struct {
	mock.Mock
	ID string
}

func (m *MockCapability) Name() string { return m.ID }

func (m *MockCapability) FormatOne(ctx context.Context, source []byte, path string) ([]byte, error) {
	args := m.Called(ctx, source, path)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

// MockBatchCapability mocks backend.BatchCapability.
type MockBatchCapability struct {
	MockCapability
}

func (m *MockBatchCapability) FormatMany(ctx context.Context, reqs []backend.Request) []backend.Result {
	args := m.Called(ctx, reqs)
	results, _ := args.Get(0).([]backend.Result)
	return results
}

// MockLoggerHandler mocks slog.Handler. A slog.NewTextHandler over a
// bytes.Buffer is usually simpler; use this only to assert handler calls.
type MockLoggerHandler struct {
	mock.Mock
}

func (m *MockLoggerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	args := m.Called(ctx, level)
	enabled, _ := args.Get(0).(bool)
	return enabled
}

func (m *MockLoggerHandler) Handle(ctx context.Context, r slog.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockLoggerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	args := m.Called(attrs)
	if h, ok := args.Get(0).(slog.Handler); ok && h != nil {
		return h
	}
	return m
}

func (m *MockLoggerHandler) WithGroup(name string) slog.Handler {
	args := m.Called(name)
	if h, ok := args.Get(0).(slog.Handler); ok && h != nil {
		return h
	}
	return m
}
