// Package style holds the formatting configuration shared by every backend.
// A FormatConfig is built once at startup and passed by value; nothing in the
// module mutates it afterwards.
package style

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// IndentStyle selects tabs or spaces for indentation.
type IndentStyle string

const (
	IndentTabs   IndentStyle = "tabs"
	IndentSpaces IndentStyle = "spaces"
)

// LineEnding selects the terminator written to disk.
type LineEnding string

const (
	LineEndingLF   LineEnding = "lf"
	LineEndingCRLF LineEnding = "crlf"
)

// QuoteStyle is the preferred string delimiter where a language allows either.
type QuoteStyle string

const (
	QuoteDouble QuoteStyle = "double"
	QuoteSingle QuoteStyle = "single"
)

// TrailingComma controls trailing commas in multi-line literals.
type TrailingComma string

const (
	TrailingCommaAll  TrailingComma = "all"
	TrailingCommaES5  TrailingComma = "es5"
	TrailingCommaNone TrailingComma = "none"
)

// Semicolons controls statement terminators in languages where they are optional.
type Semicolons string

const (
	SemicolonsAlways   Semicolons = "always"
	SemicolonsAsNeeded Semicolons = "asNeeded"
)

// BraceStyle places opening braces.
type BraceStyle string

const (
	BraceSameLine BraceStyle = "sameLine"
	BraceNextLine BraceStyle = "nextLine"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid format configuration")

// FormatConfig is the single, read-only formatting configuration of a run.
type FormatConfig struct {
	IndentStyle    IndentStyle   `mapstructure:"indentStyle" json:"indentStyle"`
	IndentWidth    int           `mapstructure:"indentWidth" json:"indentWidth"`
	LineWidth      int           `mapstructure:"lineWidth" json:"lineWidth"`
	LineEnding     LineEnding    `mapstructure:"lineEnding" json:"lineEnding"`
	QuoteStyle     QuoteStyle    `mapstructure:"quoteStyle" json:"quoteStyle"`
	TrailingComma  TrailingComma `mapstructure:"trailingComma" json:"trailingComma"`
	Semicolons     Semicolons    `mapstructure:"semicolons" json:"semicolons"`
	BraceStyle     BraceStyle    `mapstructure:"braceStyle" json:"braceStyle"`
	BracketSpacing bool          `mapstructure:"bracketSpacing" json:"bracketSpacing"`
}

// Default returns the built-in configuration: tabs of width 4, 80 columns, LF.
func Default() FormatConfig {
	return FormatConfig{
		IndentStyle:    IndentTabs,
		IndentWidth:    4,
		LineWidth:      80,
		LineEnding:     LineEndingLF,
		QuoteStyle:     QuoteDouble,
		TrailingComma:  TrailingCommaAll,
		Semicolons:     SemicolonsAlways,
		BraceStyle:     BraceSameLine,
		BracketSpacing: true,
	}
}

// Validate checks enum fields and numeric ranges.
func (c FormatConfig) Validate() error {
	var problems []string
	if !slices.Contains([]IndentStyle{IndentTabs, IndentSpaces}, c.IndentStyle) {
		problems = append(problems, fmt.Sprintf("indentStyle %q (want tabs|spaces)", c.IndentStyle))
	}
	if c.IndentWidth < 1 || c.IndentWidth > 16 {
		problems = append(problems, fmt.Sprintf("indentWidth %d (want 1-16)", c.IndentWidth))
	}
	if c.LineWidth < 20 || c.LineWidth > 400 {
		problems = append(problems, fmt.Sprintf("lineWidth %d (want 20-400)", c.LineWidth))
	}
	if !slices.Contains([]LineEnding{LineEndingLF, LineEndingCRLF}, c.LineEnding) {
		problems = append(problems, fmt.Sprintf("lineEnding %q (want lf|crlf)", c.LineEnding))
	}
	if !slices.Contains([]QuoteStyle{QuoteDouble, QuoteSingle}, c.QuoteStyle) {
		problems = append(problems, fmt.Sprintf("quoteStyle %q (want double|single)", c.QuoteStyle))
	}
	if !slices.Contains([]TrailingComma{TrailingCommaAll, TrailingCommaES5, TrailingCommaNone}, c.TrailingComma) {
		problems = append(problems, fmt.Sprintf("trailingComma %q (want all|es5|none)", c.TrailingComma))
	}
	if !slices.Contains([]Semicolons{SemicolonsAlways, SemicolonsAsNeeded}, c.Semicolons) {
		problems = append(problems, fmt.Sprintf("semicolons %q (want always|asNeeded)", c.Semicolons))
	}
	if !slices.Contains([]BraceStyle{BraceSameLine, BraceNextLine}, c.BraceStyle) {
		problems = append(problems, fmt.Sprintf("braceStyle %q (want sameLine|nextLine)", c.BraceStyle))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Indent returns one level of indentation.
func (c FormatConfig) Indent() string {
	if c.IndentStyle == IndentTabs {
		return "\t"
	}
	return strings.Repeat(" ", c.IndentWidth)
}

// IndentUnit is the numeric indent passed across C-style boundaries:
// 0 means tabs, otherwise the number of spaces.
func (c FormatConfig) IndentUnit() uint32 {
	if c.IndentStyle == IndentTabs || c.IndentWidth <= 0 {
		return 0
	}
	return uint32(c.IndentWidth)
}

// Newline returns the configured line terminator.
func (c FormatConfig) Newline() string {
	if c.LineEnding == LineEndingCRLF {
		return "\r\n"
	}
	return "\n"
}

// Fingerprint is a stable string identifying the configuration, used as a
// cache key component.
func (c FormatConfig) Fingerprint() string {
	return fmt.Sprintf("%s/%d/%d/%s/%s/%s/%s/%s/%t",
		c.IndentStyle, c.IndentWidth, c.LineWidth, c.LineEnding, c.QuoteStyle,
		c.TrailingComma, c.Semicolons, c.BraceStyle, c.BracketSpacing)
}
