// Package cli runs fama from the command line: it wires the git client,
// progress reporting and the final report around the library.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/AkaraChen/fama/internal/cli/git"
	"github.com/AkaraChen/fama/internal/cli/hooks"
	"github.com/AkaraChen/fama/internal/cli/ui"
	"github.com/AkaraChen/fama/pkg/fama"
	"github.com/AkaraChen/fama/pkg/fama/editorconfig"
	"github.com/AkaraChen/fama/pkg/fama/language"
)

// ExitFatal is returned for configuration and discovery failures.
const ExitFatal = 2

// Streams are the outputs of a run. Terminal enables the progress view.
type Streams struct {
	Out      io.Writer
	Err      io.Writer
	Terminal bool
}

// Run discovers and formats the files selected by opts and prints the
// report. The returned code is the process exit code; err is non-nil only
// for fatal failures, which have not been printed yet.
func Run(ctx context.Context, opts fama.Options, logger *slog.Logger, streams Streams) (int, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Logger == nil {
		opts.Logger = logger.Handler()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{fama.DefaultPattern}
	}
	gitMode := opts.GitFilter != "" && opts.GitFilter != fama.GitFilterNone
	if gitMode && opts.GitClient == nil {
		opts.GitClient = git.NewClient(opts.Logger)
	}

	useColor := !opts.NoColor && isColorTerminal(streams.Out)
	tuiEnabled := opts.TuiEnabled && streams.Terminal && !opts.Verbose && !opts.Quiet && opts.OutputFormat != fama.OutputFormatJSON

	var program *tea.Program
	var programDone chan struct{}
	var tuiProg hooks.TUIProgram
	if tuiEnabled {
		program = tea.NewProgram(ui.NewModel(opts.AppVersion, opts.Check), tea.WithOutput(streams.Err), tea.WithContext(ctx))
		programDone = make(chan struct{})
		go func() {
			defer close(programDone)
			if _, err := program.Run(); err != nil {
				logger.Debug("Progress view stopped", slog.String("error", err.Error()))
			}
		}()
		tuiProg = program
	}
	stopProgram := func() {
		if program != nil {
			program.Quit()
			<-programDone
			program = nil
		}
	}
	defer stopProgram()

	var debugOut io.Writer
	if opts.Verbose && !tuiEnabled {
		debugOut = streams.Err
	}
	opts.EventHooks = hooks.NewCLIHooks(logger, tuiEnabled, tuiProg, debugOut, !opts.NoColor && isColorTerminal(streams.Err))

	discovered, err := fama.DiscoverPatterns(ctx, opts, patterns)
	if err != nil {
		return ExitFatal, err
	}
	if !opts.Quiet && !gitMode {
		for _, p := range discovered.Unmatched {
			fmt.Fprintf(streams.Err, "Warning: pattern '%s' matched 0 files\n", p)
		}
	}
	if len(discovered.Paths) == 0 && gitMode {
		stopProgram()
		if !opts.Quiet {
			fmt.Fprintln(streams.Out, "No files to format")
		}
		return 0, nil
	}

	engine, err := fama.NewEngine(opts)
	if err != nil {
		return ExitFatal, err
	}
	report, err := engine.Run(ctx, discovered.Paths)
	stopProgram()
	if err != nil {
		return ExitFatal, err
	}

	if err := fama.WriteReport(streams.Out, streams.Err, report, fama.ReportOptions{
		Format: opts.OutputFormat,
		Quiet:  opts.Quiet,
		Color:  useColor,
	}); err != nil {
		logger.Error("Failed to write report", slog.String("error", err.Error()))
	}
	return fama.ExitCode(report, opts.FailOnError), nil
}

// Export writes the .editorconfig equivalent of the effective format
// configuration.
func Export(w io.Writer, opts fama.Options) error {
	if err := opts.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %w", fama.ErrConfigValidation, err)
	}
	return editorconfig.Render(w, opts.Format)
}

// List writes one line per supported language with its extensions.
func List(w io.Writer) error {
	byTag := make(map[language.Tag][]string)
	for _, ext := range language.SupportedExtensions() {
		tag := language.Classify("x." + ext)
		byTag[tag] = append(byTag[tag], "."+ext)
	}
	for _, tag := range language.Tags() {
		exts := byTag[tag]
		if len(exts) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", tag, strings.Join(exts, " ")); err != nil {
			return err
		}
	}
	return nil
}

func isColorTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
