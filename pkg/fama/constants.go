package fama

// Defaults used when setting up viper and when Options leave a field zero.
const (
	// DefaultConcurrency of 0 means runtime.NumCPU().
	DefaultConcurrency = 0
	// DefaultBatchSize bounds how many files one batch call carries.
	DefaultBatchSize = 64
	// DefaultMemoSize is the number of results each capability remembers
	// within a run. 0 disables memoization.
	DefaultMemoSize = 256
	// DefaultCacheEnabled is the default state of the persistent cache.
	DefaultCacheEnabled = false
	// DefaultPattern is used when no pattern is given.
	DefaultPattern = "**/*"
	// DefaultOutputFormat is the default format for the final report.
	DefaultOutputFormat = OutputFormatText
	// DefaultTuiEnabled is the default state for the terminal progress view.
	DefaultTuiEnabled = false
)

// IgnoreFileName holds extra ignore patterns with gitignore syntax.
const IgnoreFileName = ".famaignore"

// ReportSchemaVersion is the version of the JSON report structure.
const ReportSchemaVersion = "1.0"
