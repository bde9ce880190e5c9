package config

import (
	"github.com/spf13/pflag"

	"github.com/AkaraChen/fama/pkg/fama"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

// flagKeys maps command line flags to configuration keys. Flags missing from
// the FlagSet are skipped.
var flagKeys = map[string]string{
	"root":          "root",
	"check":         "check",
	"quiet":         "quiet",
	"debug":         "verbose",
	"no-color":      "noColor",
	"output-format": "outputFormat",
	"concurrency":   "concurrency",
	"batch":         "batch",
	"batch-size":    "batchSize",
	"memo-size":     "memoSize",
	"cache":         "cache",
	"cache-file":    "cacheFile",
	"fail-on-error": "failOnError",
	"ignore":        "ignore",
	"sniff-shebang": "sniffShebang",
	"skip-vendored": "skipVendored",

	"indent-style":    "format.indentStyle",
	"indent-width":    "format.indentWidth",
	"line-width":      "format.lineWidth",
	"line-ending":     "format.lineEnding",
	"quote-style":     "format.quoteStyle",
	"trailing-comma":  "format.trailingComma",
	"semicolons":      "format.semicolons",
	"brace-style":     "format.braceStyle",
	"bracket-spacing": "format.bracketSpacing",
}

// DefineFlags registers every configuration flag on flags. Defaults match
// setDefaults so an unchanged flag never hides a config file value.
func DefineFlags(flags *pflag.FlagSet) {
	def := style.Default()

	flags.String("config", "", "config file (default searches ./fama.yaml, $HOME/.config/fama, $HOME/.fama)")
	flags.String("profile", "", "configuration profile to apply")
	flags.BoolP("debug", "d", false, "print every file with its result, and debug logs")
	flags.BoolP("verbose", "v", false, "alias for --debug")

	flags.String("root", ".", "directory patterns are resolved against")
	flags.BoolP("check", "c", false, "report files that would change without writing them")
	flags.BoolP("quiet", "q", false, "print only errors")
	flags.Bool("staged", false, "only format files staged in git")
	flags.Bool("changed", false, "only format files modified in the git working tree")
	flags.BoolP("export", "e", false, "print an .editorconfig for the effective settings and exit")
	flags.String("output-format", string(fama.DefaultOutputFormat), "report format (text, json)")
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("no-tui", false, "disable the interactive progress view")
	flags.Bool("fail-on-error", false, "exit 1 when any file failed to format")

	flags.IntP("concurrency", "j", fama.DefaultConcurrency, "number of workers (0 = number of CPUs)")
	flags.Bool("batch", false, "send files to batch-capable backends in groups")
	flags.Int("batch-size", fama.DefaultBatchSize, "maximum files per batch call")
	flags.Int("memo-size", fama.DefaultMemoSize, "results remembered per backend within a run (0 disables)")
	flags.Bool("cache", fama.DefaultCacheEnabled, "skip files unchanged since they were last formatted")
	flags.String("cache-file", "", "cache database path")

	flags.StringArray("ignore", []string{}, "extra ignore pattern, gitignore syntax (repeatable)")
	flags.Bool("sniff-shebang", true, "classify extensionless scripts by their interpreter")
	flags.Bool("skip-vendored", true, "skip vendored and generated directories")

	flags.String("indent-style", string(def.IndentStyle), "tabs or spaces")
	flags.Int("indent-width", def.IndentWidth, "indent width in columns")
	flags.Int("line-width", def.LineWidth, "preferred maximum line width")
	flags.String("line-ending", string(def.LineEnding), "lf or crlf")
	flags.String("quote-style", string(def.QuoteStyle), "double or single")
	flags.String("trailing-comma", string(def.TrailingComma), "all, es5 or none")
	flags.String("semicolons", string(def.Semicolons), "always or asNeeded")
	flags.String("brace-style", string(def.BraceStyle), "sameLine or nextLine")
	flags.Bool("bracket-spacing", def.BracketSpacing, "spaces inside object braces")
}
