package fama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/AkaraChen/fama/pkg/fama/language"
)

// classifier wraps language.Classify with optional shebang sniffing.
type classifier struct {
	sniffer *language.Sniffer
}

func newClassifier(opts *Options) classifier {
	if !opts.SniffShebang {
		return classifier{}
	}
	return classifier{sniffer: language.NewSniffer(opts.ShebangOverrides)}
}

// classify returns the tag of path; fsPath is where the file can be read.
func (c classifier) classify(path, fsPath string) language.Tag {
	tag := language.Classify(path)
	if tag != language.Unknown || c.sniffer == nil || language.Extension(path) != "" {
		return tag
	}
	f, err := os.Open(fsPath)
	if err != nil {
		return language.Unknown
	}
	defer f.Close()
	head := make([]byte, 256)
	n, _ := io.ReadFull(f, head)
	return c.sniffer.Sniff(path, head[:n])
}

// discoverer expands patterns into candidate paths.
type discoverer struct {
	opts       *Options
	root       string
	classifier classifier
	logger     *slog.Logger
}

func newDiscoverer(opts *Options) (*discoverer, error) {
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	return &discoverer{
		opts:       opts,
		root:       root,
		classifier: newClassifier(opts),
		logger:     slog.New(handler).With(slog.String("component", "discovery")),
	}, nil
}

// Discover expands one pattern relative to opts.Root. The empty pattern
// means every supported file. A pattern without glob metacharacters naming
// an existing file or directory is taken literally; an explicitly named file
// the classifier does not recognise fails with ErrUnsupportedExtension.
//
// Results are paths relative to opts.Root (absolute for absolute patterns),
// de-duplicated and sorted.
func Discover(ctx context.Context, opts Options, pattern string) ([]string, error) {
	return DiscoverAll(ctx, opts, []string{pattern})
}

// DiscoveryResult is the merged outcome of several patterns.
type DiscoveryResult struct {
	Paths []string
	// Unmatched lists the patterns that matched no file.
	Unmatched []string
}

// DiscoverAll runs Discover for every pattern and merges the results. With
// opts.GitFilter set, only files git reports as changed are kept.
func DiscoverAll(ctx context.Context, opts Options, patterns []string) ([]string, error) {
	res, err := DiscoverPatterns(ctx, opts, patterns)
	return res.Paths, err
}

// DiscoverPatterns is DiscoverAll that also reports unmatched patterns.
func DiscoverPatterns(ctx context.Context, opts Options, patterns []string) (DiscoveryResult, error) {
	d, err := newDiscoverer(&opts)
	if err != nil {
		return DiscoveryResult{}, err
	}
	if len(patterns) == 0 {
		patterns = []string{""}
	}
	var res DiscoveryResult
	seen := make(map[string]struct{})
	for _, p := range patterns {
		found, err := d.discover(ctx, p)
		if err != nil {
			return DiscoveryResult{}, err
		}
		if len(found) == 0 {
			res.Unmatched = append(res.Unmatched, p)
		}
		for _, f := range found {
			key := d.identity(f)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Paths = append(res.Paths, f)
		}
	}
	if opts.GitFilter != "" && opts.GitFilter != GitFilterNone {
		res.Paths, err = d.filterGit(ctx, res.Paths)
		if err != nil {
			return DiscoveryResult{}, err
		}
	}
	sort.Strings(res.Paths)
	if opts.EventHooks != nil {
		for _, f := range res.Paths {
			if hookErr := opts.EventHooks.OnFileDiscovered(f); hookErr != nil {
				d.logger.Warn("Event hook OnFileDiscovered failed", slog.String("path", f), slog.String("error", hookErr.Error()))
			}
		}
	}
	d.logger.Debug("Discovery finished", slog.Int("patterns", len(patterns)), slog.Int("files", len(res.Paths)))
	return res, nil
}

// fsPath maps a discovered path to a filesystem path.
func (d *discoverer) fsPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.root, p)
}

// identity is the key two spellings of the same file share: the absolute
// path with symlinks resolved where possible.
func (d *discoverer) identity(p string) string {
	abs, err := filepath.Abs(d.fsPath(p))
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func (d *discoverer) discover(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !hasMeta(pattern) {
		info, err := os.Stat(d.fsPath(pattern))
		switch {
		case err == nil && info.Mode().IsRegular():
			return d.literalFile(pattern)
		case err == nil && info.IsDir():
			return d.walk(ctx, filepath.Clean(pattern), "**")
		}
	}

	slashed := filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(slashed) {
		return nil, fmt.Errorf("%w '%s': %v", ErrInvalidPattern, pattern, doublestar.ErrBadPattern)
	}
	base, rest := doublestar.SplitPattern(slashed)
	return d.walk(ctx, filepath.FromSlash(base), rest)
}

func (d *discoverer) literalFile(path string) ([]string, error) {
	if d.classifier.classify(path, d.fsPath(path)) == language.Unknown {
		ext := "(none)"
		if e := language.Extension(path); e != "" {
			ext = "." + e
		}
		return nil, fmt.Errorf("%w '%s': %s", ErrUnsupportedExtension, ext, path)
	}
	return []string{filepath.Clean(path)}, nil
}

// walk lists supported files under base whose path relative to base matches
// the slash-separated pattern.
func (d *discoverer) walk(ctx context.Context, base, pattern string) ([]string, error) {
	start := d.fsPath(base)
	anchor := d.root
	if rel, err := filepath.Rel(d.root, start); filepath.IsAbs(base) || err != nil || strings.HasPrefix(rel, "..") {
		anchor = start
	}
	ignore, err := newIgnoreMatcher(anchor, d.opts.IgnorePatterns, d.logger)
	if err != nil {
		return nil, err
	}
	ignore.enterAncestors(filepath.Dir(start))

	var out []string
	walkErr := filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			d.logger.Warn("Error accessing path during walk", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			d.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(start, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		isDir := entry.IsDir()

		if rel != "." {
			if isDir && entry.Name() == ".git" {
				return filepath.SkipDir
			}
			if ignore.Match(abs, isDir) || (d.opts.SkipVendored && language.IsVendored(vendorPath(rel, isDir))) {
				d.logger.Debug("Path ignored", slog.String("path", path), slog.Bool("isDir", isDir))
				if isDir {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if isDir {
			ignore.enter(path)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			return nil
		}
		display := filepath.Join(base, filepath.FromSlash(rel))
		if d.classifier.classify(display, path) == language.Unknown {
			return nil
		}
		out = append(out, display)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return nil, walkErr
	}
	return out, nil
}

// filterGit keeps the paths git reports as added, copied or modified.
func (d *discoverer) filterGit(ctx context.Context, paths []string) ([]string, error) {
	if d.opts.GitClient == nil {
		return nil, fmt.Errorf("%w: git filter '%s' requires a git client", ErrConfigValidation, d.opts.GitFilter)
	}
	absRoot, err := filepath.Abs(d.root)
	if err != nil {
		return nil, err
	}
	repo, err := d.opts.GitClient.RepositoryRoot(ctx, absRoot)
	if err != nil {
		return nil, err
	}
	changed, err := d.opts.GitClient.ChangedFiles(ctx, repo, d.opts.GitFilter == GitFilterStaged)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(changed))
	for _, c := range changed {
		keep[filepath.Join(repo, filepath.FromSlash(c))] = struct{}{}
	}
	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(d.fsPath(p))
		if err != nil {
			continue
		}
		if _, ok := keep[abs]; ok {
			out = append(out, p)
		}
	}
	d.logger.Debug("Git filter applied", slog.String("mode", string(d.opts.GitFilter)),
		slog.Int("changed", len(changed)), slog.Int("kept", len(out)))
	return out, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func vendorPath(rel string, isDir bool) string {
	if isDir {
		return rel + "/"
	}
	return rel
}
