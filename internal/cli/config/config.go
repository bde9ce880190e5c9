// Package config merges defaults, the config file, profiles, environment
// variables and flags into fama.Options.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/AkaraChen/fama/pkg/fama"
	"github.com/AkaraChen/fama/pkg/fama/cache"
	"github.com/AkaraChen/fama/pkg/fama/style"
)

const (
	EnvPrefix         = "FAMA"
	DefaultConfigName = "fama"
	// EnvFileName is loaded from the working directory when present.
	EnvFileName = ".env"
)

// LoadAndValidate loads configuration from defaults, file, profile, .env,
// environment and flags, validates the result and builds the logger. The
// returned logger is usable even when err is non-nil.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (fama.Options, *slog.Logger, error) {
	return load(cfgFile, profileName, appVersion, verbose, flags, os.Stderr)
}

func load(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet, logOut io.Writer) (fama.Options, *slog.Logger, error) {
	var opts fama.Options
	v := viper.New()

	earlyLevel := slog.LevelInfo
	if verbose {
		earlyLevel = slog.LevelDebug
	}
	tempLogger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: earlyLevel}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("No home directory, searching the working directory only", slog.String("error", err.Error()))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml/toml/json", DefaultConfigName)
			}
			return opts, tempLogger, fmt.Errorf("%w: error reading config file '%s': %w", fama.ErrConfigValidation, used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	if profileName != "" {
		profileKey := "profiles." + profileName
		profile := v.Sub(profileKey)
		if profile == nil {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			return opts, tempLogger, fmt.Errorf("%w: profile '%s' not found in config file '%s'", fama.ErrConfigValidation, profileName, configPath)
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			return opts, tempLogger, fmt.Errorf("%w: error merging profile '%s': %w", fama.ErrConfigValidation, profileName, err)
		}
		opts.ProfileName = profileName
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	if err := godotenv.Load(EnvFileName); err != nil && !errors.Is(err, os.ErrNotExist) {
		tempLogger.Warn("Failed to load .env file", slog.String("error", err.Error()))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
			}
		}
	}

	if err := v.Unmarshal(&opts); err != nil {
		return opts, tempLogger, fmt.Errorf("%w: error unmarshalling configuration: %w", fama.ErrConfigValidation, err)
	}
	opts.AppVersion = appVersion

	if flags != nil {
		if flags.Changed("verbose") {
			if on, _ := flags.GetBool("verbose"); on {
				opts.Verbose = true
			}
		}
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			opts.TuiEnabled = false
		}
	}
	if verbose {
		opts.Verbose = true
	}

	logLevel := slog.LevelInfo
	switch {
	case opts.Verbose:
		logLevel = slog.LevelDebug
	case opts.Quiet:
		logLevel = slog.LevelWarn
	}
	logHandler := slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.String("root", opts.Root),
		slog.String("gitFilter", string(opts.GitFilter)),
		slog.String("logLevel", logLevel.String()),
	)
	return opts, logger, nil
}

func setDefaults(v *viper.Viper) {
	def := style.Default()
	v.SetDefault("root", ".")
	v.SetDefault("format.indentStyle", string(def.IndentStyle))
	v.SetDefault("format.indentWidth", def.IndentWidth)
	v.SetDefault("format.lineWidth", def.LineWidth)
	v.SetDefault("format.lineEnding", string(def.LineEnding))
	v.SetDefault("format.quoteStyle", string(def.QuoteStyle))
	v.SetDefault("format.trailingComma", string(def.TrailingComma))
	v.SetDefault("format.semicolons", string(def.Semicolons))
	v.SetDefault("format.braceStyle", string(def.BraceStyle))
	v.SetDefault("format.bracketSpacing", def.BracketSpacing)

	v.SetDefault("check", false)
	v.SetDefault("failOnError", false)
	v.SetDefault("quiet", false)
	v.SetDefault("verbose", false)
	v.SetDefault("noColor", false)
	v.SetDefault("tuiEnabled", fama.DefaultTuiEnabled)
	v.SetDefault("outputFormat", string(fama.DefaultOutputFormat))

	v.SetDefault("concurrency", fama.DefaultConcurrency)
	v.SetDefault("batch", false)
	v.SetDefault("batchSize", fama.DefaultBatchSize)
	v.SetDefault("memoSize", fama.DefaultMemoSize)
	v.SetDefault("cache", fama.DefaultCacheEnabled)
	v.SetDefault("cacheFile", "")

	v.SetDefault("ignore", []string{})
	v.SetDefault("sniffShebang", true)
	v.SetDefault("shebangs", map[string]string{})
	v.SetDefault("skipVendored", true)
	v.SetDefault("backends", []map[string]any{})
}

func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

func validateAndDeriveOptions(opts *fama.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	fail := func(key string, err error) error {
		logger.Error(err.Error(), slog.String("key", key))
		return err
	}

	if opts.Root == "" {
		opts.Root = "."
	}
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return fail("root", fmt.Errorf("%w: cannot resolve root '%s': %w", fama.ErrConfigValidation, opts.Root, err))
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fail("root", fmt.Errorf("%w: root '%s' cannot be accessed: %w", fama.ErrConfigValidation, opts.Root, err))
	}
	if !info.IsDir() {
		return fail("root", fmt.Errorf("%w: root '%s' is not a directory", fama.ErrConfigValidation, opts.Root))
	}
	opts.Root = absRoot

	allowedOutputFormat := []fama.OutputFormat{fama.OutputFormatText, fama.OutputFormatJSON}
	opts.OutputFormat = fama.OutputFormat(strings.ToLower(string(opts.OutputFormat)))
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormat) {
		return fail("outputFormat", fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v",
			fama.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat))
	}

	for key, n := range map[string]int{"concurrency": opts.Concurrency, "batchSize": opts.BatchSize, "memoSize": opts.MemoSize} {
		if n < 0 {
			return fail(key, fmt.Errorf("%w: invalid value '%d' for key '%s'. Must be >= 0", fama.ErrConfigValidation, n, key))
		}
	}

	if err := opts.Format.Validate(); err != nil {
		return fail("format", fmt.Errorf("%w: %w", fama.ErrConfigValidation, err))
	}

	allowedKinds := []fama.BackendKind{fama.BackendSubprocess, fama.BackendWasm, fama.BackendNative}
	for i := range opts.Backends {
		b := &opts.Backends[i]
		b.Kind = fama.BackendKind(strings.ToLower(string(b.Kind)))
		if b.Kind == "" {
			b.Kind = fama.BackendSubprocess
		}
		key := fmt.Sprintf("backends[%d]", i)
		if b.Name == "" {
			return fail(key, fmt.Errorf("%w: %s has no name", fama.ErrConfigValidation, key))
		}
		if !isValidEnumValue(b.Kind, allowedKinds) {
			return fail(key, fmt.Errorf("%w: %s (%s): invalid kind '%s'. Allowed: %v", fama.ErrConfigValidation, key, b.Name, b.Kind, allowedKinds))
		}
		if len(b.Languages) == 0 {
			return fail(key, fmt.Errorf("%w: %s (%s) lists no languages", fama.ErrConfigValidation, key, b.Name))
		}
	}

	opts.GitFilter = fama.GitFilterNone
	if flags != nil {
		staged, _ := flags.GetBool("staged")
		changed, _ := flags.GetBool("changed")
		switch {
		case staged && changed:
			return fail("git", fmt.Errorf("%w: --staged and --changed cannot be used together", fama.ErrConfigValidation))
		case staged:
			opts.GitFilter = fama.GitFilterStaged
		case changed:
			opts.GitFilter = fama.GitFilterChanged
		}
	}

	if opts.CacheEnabled && opts.CacheFilePath == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		opts.CacheFilePath = filepath.Join(dir, DefaultConfigName, cache.FileName)
		logger.Debug("Cache file not set, using default", slog.String("path", opts.CacheFilePath))
	}

	// Per-file debug lines and the TUI both own the terminal.
	if opts.Verbose && opts.TuiEnabled {
		opts.TuiEnabled = false
		logger.Debug("TUI disabled by --debug")
	}
	return nil
}
