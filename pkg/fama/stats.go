package fama

// FormatStats counts outcomes. Each worker owns one and the engine merges
// them after the pool drains.
//
// Formatted + Unchanged + len(Errors) equals the number of files processed.
// Passthrough is a subset of Unchanged.
type FormatStats struct {
	Formatted   int      `json:"formatted"`
	Unchanged   int      `json:"unchanged"`
	Passthrough int      `json:"passthrough"`
	Errors      []string `json:"errors"`
}

// Record adds one outcome. message is only kept for OutcomeFailed.
func (s *FormatStats) Record(outcome Outcome, message string) {
	switch outcome {
	case OutcomeChanged:
		s.Formatted++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeUnsupportedDialect:
		s.Unchanged++
		s.Passthrough++
	case OutcomeFailed:
		s.Errors = append(s.Errors, message)
	}
}

// Merge returns the sum of s and other. Counts merge associatively and
// commutatively; errors are concatenated in argument order.
func (s FormatStats) Merge(other FormatStats) FormatStats {
	errs := make([]string, 0, len(s.Errors)+len(other.Errors))
	errs = append(errs, s.Errors...)
	errs = append(errs, other.Errors...)
	return FormatStats{
		Formatted:   s.Formatted + other.Formatted,
		Unchanged:   s.Unchanged + other.Unchanged,
		Passthrough: s.Passthrough + other.Passthrough,
		Errors:      errs,
	}
}

// Processed is the number of files accounted for.
func (s FormatStats) Processed() int {
	return s.Formatted + s.Unchanged + len(s.Errors)
}
