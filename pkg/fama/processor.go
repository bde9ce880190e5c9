package fama

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/encoding"
	"github.com/AkaraChen/fama/pkg/fama/language"
)

// ProcessorFactory creates the FileProcessor used by an Engine.
type ProcessorFactory func(opts *Options, loggerHandler slog.Handler, registry *backend.Registry, cacheMgr CacheManager) *FileProcessor

// FileResult is the outcome of one file.
type FileResult struct {
	Path       string  `json:"path"`
	Language   string  `json:"language"`
	Backend    string  `json:"backend,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message,omitempty"`
	Cached     bool    `json:"cached,omitempty"`
	DurationMs int64   `json:"durationMs"`
	Err        error   `json:"-"`
}

// ErrorLine renders a failed result as "path: message".
func (r FileResult) ErrorLine() string {
	return r.Path + ": " + r.Message
}

// job is a file that has been read and still needs formatting.
type job struct {
	path   string
	fsPath string
	tag    language.Tag
	cap    backend.Capability
	raw    []byte
	text   encoding.Text
	hash   string
	mode   fs.FileMode
	start  time.Time
}

// FileProcessor runs the per-file pipeline: read, decode, format, normalise
// line endings, compare and write back.
type FileProcessor struct {
	opts         *Options
	logger       *slog.Logger
	registry     *backend.Registry
	cacheManager CacheManager
	classifier   classifier
	configHash   string
}

// NewFileProcessor creates a FileProcessor.
func NewFileProcessor(opts *Options, loggerHandler slog.Handler, registry *backend.Registry, cacheMgr CacheManager) *FileProcessor {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if cacheMgr == nil {
		cacheMgr = &NoOpCacheManager{}
	}
	return &FileProcessor{
		opts:         opts,
		logger:       slog.New(loggerHandler).With(slog.String("component", "processor")),
		registry:     registry,
		cacheManager: cacheMgr,
		classifier:   newClassifier(opts),
		configHash:   hashString(opts.AppVersion + "|" + opts.Format.Fingerprint()),
	}
}

func (p *FileProcessor) fsPath(path string) string {
	if filepath.IsAbs(path) || p.opts.Root == "" {
		return path
	}
	return filepath.Join(p.opts.Root, path)
}

// Resolve returns the capability for path without touching the file unless
// shebang sniffing needs it.
func (p *FileProcessor) Resolve(path string) (language.Tag, backend.Capability, error) {
	tag := p.classifier.classify(path, p.fsPath(path))
	c, err := p.registry.Resolve(tag)
	if err != nil {
		return tag, nil, fmt.Errorf("no formatter configured for %s: %w", tag, err)
	}
	return tag, c, nil
}

// ProcessFile formats one file with its capability's FormatOne.
func (p *FileProcessor) ProcessFile(ctx context.Context, path string) FileResult {
	j, res, done := p.prepare(ctx, path)
	if done {
		return res
	}
	out, err := j.cap.FormatOne(ctx, j.text.Body, j.path)
	return p.complete(j, out, err)
}

// prepare reads and validates path. When done is true the file needs no
// formatting call and res is final; otherwise j is ready for complete.
func (p *FileProcessor) prepare(ctx context.Context, path string) (j *job, res FileResult, done bool) {
	start := time.Now()
	res = FileResult{Path: path}
	fail := func(err error) (*job, FileResult, bool) {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Message = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		p.logger.Debug("File failed before formatting", slog.String("path", path), slog.String("error", err.Error()))
		return nil, res, true
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	tag, c, err := p.Resolve(path)
	res.Language = tag.String()
	if err != nil {
		return fail(err)
	}
	res.Backend = c.Name()

	fsPath := p.fsPath(path)
	info, err := os.Stat(fsPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrReadFailed, err))
	}
	raw, err := os.ReadFile(fsPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrReadFailed, err))
	}
	text, err := encoding.Decode(raw)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrNotUTF8, err))
	}

	j = &job{
		path:   path,
		fsPath: fsPath,
		tag:    tag,
		cap:    c,
		raw:    raw,
		text:   text,
		hash:   hashBytes(raw),
		mode:   info.Mode().Perm(),
		start:  start,
	}
	if p.opts.CacheEnabled && p.cacheManager.Check(p.cacheKey(fsPath), j.hash, p.cacheConfigHash(c)) {
		res.Outcome = OutcomeUnchanged
		res.Cached = true
		res.DurationMs = time.Since(start).Milliseconds()
		p.logger.Debug("Cache hit", slog.String("path", path))
		return nil, res, true
	}
	return j, res, false
}

// complete turns a capability result into a FileResult, writing the file
// when it changed and check mode is off.
func (p *FileProcessor) complete(j *job, out []byte, formatErr error) FileResult {
	res := FileResult{Path: j.path, Language: j.tag.String(), Backend: j.cap.Name()}
	defer func() {
		res.DurationMs = time.Since(j.start).Milliseconds()
		level := slog.LevelDebug
		if res.Outcome == OutcomeFailed {
			level = slog.LevelWarn
		}
		p.logger.Log(context.Background(), level, "Processor finished file task",
			slog.String("path", j.path), slog.String("backend", res.Backend),
			slog.String("outcome", string(res.Outcome)), slog.String("message", res.Message))
	}()

	if formatErr != nil {
		if backend.IsPassthrough(formatErr) {
			res.Outcome = OutcomeUnsupportedDialect
			res.Message = formatErr.Error()
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = formatErr
		res.Message = formatErr.Error()
		return res
	}

	formatted := j.text.Encode(normalizeNewlines(out, p.opts.Format.Newline()))
	configHash := p.cacheConfigHash(j.cap)
	key := p.cacheKey(j.fsPath)
	if bytes.Equal(formatted, j.raw) {
		res.Outcome = OutcomeUnchanged
		p.remember(key, j.hash, configHash)
		return res
	}
	if p.opts.Check {
		res.Outcome = OutcomeChanged
		res.Message = "would reformat"
		return res
	}
	if err := writeFileAtomic(j.fsPath, formatted, j.mode); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		res.Message = res.Err.Error()
		return res
	}
	res.Outcome = OutcomeChanged
	p.remember(key, hashBytes(formatted), configHash)
	return res
}

func (p *FileProcessor) remember(key, contentHash, configHash string) {
	if !p.opts.CacheEnabled {
		return
	}
	if err := p.cacheManager.Update(key, contentHash, configHash); err != nil {
		p.logger.Warn("Failed to update cache", slog.String("path", key), slog.String("error", err.Error()))
	}
}

func (p *FileProcessor) cacheKey(fsPath string) string {
	if abs, err := filepath.Abs(fsPath); err == nil {
		return abs
	}
	return fsPath
}

func (p *FileProcessor) cacheConfigHash(c backend.Capability) string {
	return hashString(p.configHash + "|" + c.Name())
}

// normalizeNewlines rewrites every line terminator in b to nl.
func normalizeNewlines(b []byte, nl string) []byte {
	lf := bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	if nl == "\n" {
		return lf
	}
	return bytes.ReplaceAll(lf, []byte("\n"), []byte(nl))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hashString(s string) string { return hashBytes([]byte(s)) }

// isContextErr reports whether err came from cancellation of the run.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
