package fama

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// Report summarizes one run.
type Report struct {
	Summary ReportSummary `json:"summary"`
	Stats   FormatStats   `json:"stats"`
	Files   []FileResult  `json:"files"`
}

// ReportSummary contains run-level information.
type ReportSummary struct {
	Root            string    `json:"root,omitempty"`
	ProfileUsed     string    `json:"profileUsed,omitempty"`
	ConfigFilePath  string    `json:"configFilePath,omitempty"`
	Check           bool      `json:"check"`
	TotalFiles      int       `json:"totalFiles"`
	CachedCount     int       `json:"cachedCount"`
	DurationSeconds float64   `json:"durationSeconds"`
	Concurrency     int       `json:"concurrency"`
	Batch           bool      `json:"batch"`
	CacheEnabled    bool      `json:"cacheEnabled"`
	Timestamp       time.Time `json:"timestamp"`
	SchemaVersion   string    `json:"schemaVersion,omitempty"`
}

// ReportOptions controls WriteReport.
type ReportOptions struct {
	Format OutputFormat
	Quiet  bool
	// Color enables ANSI colors in text output.
	Color bool
}

// WriteReport renders report. Error lines go to errOut and are printed even
// when Quiet is set; the summary goes to out.
func WriteReport(out, errOut io.Writer, report Report, opts ReportOptions) error {
	if opts.Format == OutputFormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	}

	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, c := range []*color.Color{red, green, yellow} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, msg := range report.Stats.Errors {
		if _, err := fmt.Fprintf(errOut, "%s %s\n", red.Sprint("Error:"), msg); err != nil {
			return err
		}
	}
	if opts.Quiet {
		return nil
	}
	_, err := fmt.Fprintln(out, SummaryLine(report, green, yellow))
	return err
}

// SummaryLine is the one-line result of a run, for example
// "Formatted 3 files, 10 unchanged, 0 errors".
func SummaryLine(report Report, highlight ...*color.Color) string {
	ok, warn := color.New(), color.New()
	ok.DisableColor()
	warn.DisableColor()
	if len(highlight) == 2 {
		ok, warn = highlight[0], highlight[1]
	}

	s := report.Stats
	var line string
	switch {
	case !report.Summary.Check:
		line = fmt.Sprintf("Formatted %d files, %d unchanged, %d errors", s.Formatted, s.Unchanged, len(s.Errors))
	case s.Formatted > 0:
		line = warn.Sprintf("%d files need formatting, %d unchanged, %d errors", s.Formatted, s.Unchanged, len(s.Errors))
	default:
		line = ok.Sprintf("All %d files are properly formatted (%d errors)", s.Unchanged, len(s.Errors))
	}
	if s.Passthrough > 0 {
		line += fmt.Sprintf(" (%d passed through)", s.Passthrough)
	}
	return line
}

// ExitCode maps a finished run to the process exit status: 1 when check
// mode found files to reformat, or when failOnError is set and a file
// failed; 0 otherwise.
func ExitCode(report Report, failOnError bool) int {
	if report.Summary.Check && report.Stats.Formatted > 0 {
		return 1
	}
	if failOnError && len(report.Stats.Errors) > 0 {
		return 1
	}
	return 0
}
