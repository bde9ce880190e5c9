package fama

import (
	"log/slog"
	"time"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/git"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// BackendConfig declares one external formatter. Kind selects the adapter;
// the remaining fields are read by that adapter only.
type BackendConfig struct {
	Name      string      `mapstructure:"name"`
	Kind      BackendKind `mapstructure:"kind"`
	Languages []string    `mapstructure:"languages"`

	// subprocess
	Command      []string      `mapstructure:"command"`
	PathArg      string        `mapstructure:"pathArg"`
	BatchCommand []string      `mapstructure:"batchCommand"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// wasm
	Module string `mapstructure:"module"`

	// native
	Library         string `mapstructure:"library"`
	Symbol          string `mapstructure:"symbol"`
	BatchSymbol     string `mapstructure:"batchSymbol"`
	FreeSymbol      string `mapstructure:"freeSymbol"`
	FreeArraySymbol string `mapstructure:"freeArraySymbol"`
	PassIndent      bool   `mapstructure:"passIndent"`
}

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently.
// Returned errors are logged and otherwise ignored.
type Hooks interface {
	OnFileDiscovered(path string) error
	OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

func (h *NoOpHooks) OnFileDiscovered(path string) error { return nil }

func (h *NoOpHooks) OnFileStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// CacheManager remembers files known to be formatted. Check and Update must
// be safe for concurrent use; Load and Persist are called once per run.
type CacheManager interface {
	Load(cachePath string) error
	Check(filePath, contentHash, configHash string) bool
	Update(filePath, contentHash, configHash string) error
	Persist(cachePath string) error
}

// NoOpCacheManager always misses. Used when caching is disabled.
type NoOpCacheManager struct{}

func (c *NoOpCacheManager) Load(cachePath string) error { return nil }

func (c *NoOpCacheManager) Check(filePath, contentHash, configHash string) bool { return false }

func (c *NoOpCacheManager) Update(filePath, contentHash, configHash string) error { return nil }

func (c *NoOpCacheManager) Persist(cachePath string) error { return nil }

// Options holds all configuration for a run.
type Options struct {
	// --- Inputs ---
	Root     string   `mapstructure:"root"` // Directory patterns are resolved against (default: cwd)
	Patterns []string `mapstructure:"-"`    // Positional patterns; empty means DefaultPattern

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"` // Used for cache compatibility
	ConfigFilePath string `mapstructure:"-"` // Path of the loaded config file, for reporting
	ProfileName    string `mapstructure:"-"` // Name of the profile used, for reporting

	// --- Formatting ---
	Format   style.FormatConfig `mapstructure:"format"`
	Backends []BackendConfig    `mapstructure:"backends"`

	// --- Behavior & Control ---
	Check        bool         `mapstructure:"check"`       // Never write; Changed means "would change"
	FailOnError  bool         `mapstructure:"failOnError"` // Exit 1 when any file failed
	Quiet        bool         `mapstructure:"quiet"`       // Only errors and the summary
	Verbose      bool         `mapstructure:"verbose"`     // Debug logging
	NoColor      bool         `mapstructure:"noColor"`
	TuiEnabled   bool         `mapstructure:"tuiEnabled"`
	OutputFormat OutputFormat `mapstructure:"outputFormat"`

	// --- Performance & Caching ---
	Concurrency   int    `mapstructure:"concurrency"` // Number of workers (0=auto)
	Batch         bool   `mapstructure:"batch"`       // Group files per backend for FormatMany
	BatchSize     int    `mapstructure:"batchSize"`
	MemoSize      int    `mapstructure:"memoSize"`
	CacheEnabled  bool   `mapstructure:"cache"`
	CacheFilePath string `mapstructure:"cacheFile"`

	// --- Discovery ---
	IgnorePatterns   []string          `mapstructure:"ignore"`       // gitignore syntax, relative to Root
	SniffShebang     bool              `mapstructure:"sniffShebang"` // Classify extensionless scripts by interpreter
	ShebangOverrides map[string]string `mapstructure:"shebangs"`     // interpreter -> language name
	SkipVendored     bool              `mapstructure:"skipVendored"`
	GitFilter        GitFilterMode     `mapstructure:"-"` // Set by --staged / --changed

	// --- Injected Dependencies ---
	EventHooks       Hooks             `mapstructure:"-"` // Optional: defaults to NoOpHooks
	Logger           slog.Handler      `mapstructure:"-"` // Required: logging backend
	Registry         *backend.Registry `mapstructure:"-"` // Optional: defaults to NewDefaultRegistry
	GitClient        git.GitClient     `mapstructure:"-"` // Required when GitFilter is set
	CacheManager     CacheManager      `mapstructure:"-"` // Optional: defaults to a bbolt store when CacheEnabled
	ProcessorFactory ProcessorFactory  `mapstructure:"-"` // Optional: for tests
}
