package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/AkaraChen/fama/internal/cli"
	"github.com/AkaraChen/fama/internal/cli/config"
	"github.com/AkaraChen/fama/pkg/fama"
	"github.com/AkaraChen/fama/pkg/fama/editorconfig"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries state between cobra and the process exit.
type app struct {
	exitCode int
	// terminal is true when stderr is a TTY.
	terminal bool
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fama [pattern...]",
		Short: "Format source files in many languages with one command.",
		Long: `fama finds files matching the given glob patterns (default "**/*"),
respecting .gitignore and .famaignore, and formats each one with the backend
registered for its language. Files are processed in parallel and written back
only when their content changes.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, logger, err := loadOptions(cmd)
			if err != nil {
				a.exitCode = cli.ExitFatal
				return err
			}
			if export, _ := cmd.Flags().GetBool("export"); export {
				return cli.Export(cmd.OutOrStdout(), opts)
			}
			opts.Patterns = args
			code, err := cli.Run(cmd.Context(), opts, logger, cli.Streams{
				Out:      cmd.OutOrStdout(),
				Err:      cmd.ErrOrStderr(),
				Terminal: a.terminal,
			})
			a.exitCode = code
			return err
		},
	}
	rootCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")
	config.DefineFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newListCmd(), newExportCmd(a))
	return rootCmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List supported languages and their file extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.List(cmd.OutOrStdout())
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Write an .editorconfig matching the effective format settings",
		Long: `export renders the effective format settings as an .editorconfig file.
Without a path it prints to stdout; a directory path receives a file named .editorconfig.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, _, err := loadOptions(cmd)
			if err != nil {
				a.exitCode = cli.ExitFatal
				return err
			}
			if len(args) == 0 {
				return cli.Export(cmd.OutOrStdout(), opts)
			}
			path := args[0]
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, editorconfig.FileName)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			if err := cli.Export(f, opts); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
}

func loadOptions(cmd *cobra.Command) (fama.Options, *slog.Logger, error) {
	flags := cmd.Flags()
	cfgFile, _ := flags.GetString("config")
	profile, _ := flags.GetString("profile")
	debug, _ := flags.GetBool("debug")
	verbose, _ := flags.GetBool("verbose")
	return config.LoadAndValidate(cfgFile, profile, version, debug || verbose, flags)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{terminal: term.IsTerminal(int(os.Stderr.Fd()))}
	rootCmd := newRootCmd(a)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		if a.exitCode == 0 {
			a.exitCode = cli.ExitFatal
		}
	}
	return a.exitCode
}
