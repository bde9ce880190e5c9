package fama

// Outcome is the result of formatting one file.
type Outcome string

const (
	// OutcomeChanged means the file was rewritten, or in check mode would be.
	OutcomeChanged Outcome = "changed"
	// OutcomeUnchanged means the output equalled the input.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeFailed means the file could not be read, formatted or written.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnsupportedDialect means a lenient backend left the file as is.
	// It counts as unchanged.
	OutcomeUnsupportedDialect Outcome = "passthrough"
)

// Status is the per-file progress state reported through Hooks.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusChanged    Status = "changed"
	StatusUnchanged  Status = "unchanged"
	StatusFailed     Status = "failed"
	StatusCached     Status = "cached"
)

// OutputFormat selects the final report format.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// GitFilterMode restricts candidates to files git reports as modified.
type GitFilterMode string

const (
	GitFilterNone    GitFilterMode = "none"
	GitFilterStaged  GitFilterMode = "staged"
	GitFilterChanged GitFilterMode = "changed"
)

// BackendKind selects the adapter for a configured external backend.
type BackendKind string

const (
	BackendSubprocess BackendKind = "subprocess"
	BackendWasm       BackendKind = "wasm"
	BackendNative     BackendKind = "native"
)

// status maps an outcome to the status reported through Hooks.
func (o Outcome) status() Status {
	switch o {
	case OutcomeChanged:
		return StatusChanged
	case OutcomeFailed:
		return StatusFailed
	default:
		return StatusUnchanged
	}
}
