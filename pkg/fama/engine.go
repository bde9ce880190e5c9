package fama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AkaraChen/fama/pkg/fama/backend"
	"github.com/AkaraChen/fama/pkg/fama/cache"
)

// workItem is either a single path or a batch of paths sharing one
// BatchCapability.
type workItem struct {
	paths []string
	batch backend.BatchCapability
}

// partial is what one worker accumulates.
type partial struct {
	stats   FormatStats
	results []FileResult
}

// Engine orchestrates a formatting run over a fixed worker pool.
type Engine struct {
	opts         *Options
	logger       *slog.Logger
	registry     *backend.Registry
	release      func(context.Context)
	cacheManager CacheManager
	processor    *FileProcessor
	concurrency  int
	batchSize    int
}

// NewEngine validates opts and sets up the registry, cache and processor.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
	}
	if err := opts.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
		opts.Concurrency = concurrency
		logger.Debug("Concurrency auto-detected", "count", concurrency)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	release := func(context.Context) {}
	registry := opts.Registry
	if registry == nil {
		reg, rel, err := NewDefaultRegistry(&opts)
		if err != nil {
			return nil, err
		}
		registry, release = reg, rel
	}

	var cacheMgr CacheManager = &NoOpCacheManager{}
	switch {
	case opts.CacheManager != nil:
		cacheMgr = opts.CacheManager
	case opts.CacheEnabled:
		if opts.CacheFilePath == "" {
			dir, err := os.UserCacheDir()
			if err != nil {
				dir = os.TempDir()
			}
			opts.CacheFilePath = filepath.Join(dir, "fama", cache.FileName)
		}
		cacheMgr = cache.NewStore(opts.Logger, opts.AppVersion)
	}
	if opts.CacheEnabled {
		if err := cacheMgr.Load(opts.CacheFilePath); err != nil {
			logger.Warn("Failed to load cache, treating every file as a miss",
				slog.String("path", opts.CacheFilePath), slog.String("error", err.Error()))
		}
	}

	factory := opts.ProcessorFactory
	if factory == nil {
		factory = NewFileProcessor
	}

	e := &Engine{
		opts:         &opts,
		logger:       logger,
		registry:     registry,
		release:      release,
		cacheManager: cacheMgr,
		concurrency:  concurrency,
		batchSize:    batchSize,
	}
	e.processor = factory(e.opts, opts.Logger, registry, cacheMgr)
	return e, nil
}

// Run formats paths and returns the aggregated report. Per-file failures
// are recorded in the report; the returned error is non-nil only when the
// run itself was cancelled.
func (e *Engine) Run(ctx context.Context, paths []string) (report Report, err error) {
	startTime := time.Now()
	e.logger.Info("Starting formatting run", "files", len(paths), "concurrency", e.concurrency,
		"batch", e.opts.Batch, "check", e.opts.Check, "cacheEnabled", e.opts.CacheEnabled)

	defer func() {
		e.release(context.Background())
		if e.opts.CacheEnabled {
			if persistErr := e.cacheManager.Persist(e.opts.CacheFilePath); persistErr != nil {
				e.logger.Error("Failed to persist cache", slog.String("path", e.opts.CacheFilePath), slog.String("error", persistErr.Error()))
			}
		}
		e.logger.Info("Formatting run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("formatted", report.Stats.Formatted),
			slog.Int("unchanged", report.Stats.Unchanged),
			slog.Int("passthrough", report.Stats.Passthrough),
			slog.Int("errors", len(report.Stats.Errors)),
		)
		if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
		}
	}()

	items := e.plan(paths)
	partials := make([]partial, e.concurrency)
	itemChan := make(chan workItem)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(itemChan)
		for _, item := range items {
			select {
			case itemChan <- item:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < e.concurrency; i++ {
		workerID := i
		g.Go(func() error {
			e.worker(gctx, workerID, itemChan, &partials[workerID])
			return nil
		})
	}
	runErr := g.Wait()

	var stats FormatStats
	var results []FileResult
	for _, p := range partials {
		stats = stats.Merge(p.stats)
		results = append(results, p.results...)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	sort.Strings(stats.Errors)

	report = e.buildReport(startTime, stats, results)
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.logger.Info("Formatting run cancelled", slog.String("reason", ctxErr.Error()))
		return report, ctxErr
	}
	if runErr != nil && !isContextErr(runErr) {
		return report, runErr
	}
	return report, nil
}

// plan turns paths into work items. Without batch mode every path is its
// own item; with it, paths whose capability supports FormatMany are grouped
// per capability in chunks of batchSize.
func (e *Engine) plan(paths []string) []workItem {
	items := make([]workItem, 0, len(paths))
	if !e.opts.Batch {
		for _, p := range paths {
			items = append(items, workItem{paths: []string{p}})
		}
		return items
	}
	type group struct {
		cap   backend.BatchCapability
		paths []string
	}
	var order []string
	groups := make(map[string]*group)
	for _, p := range paths {
		_, c, err := e.processor.Resolve(p)
		bc, ok := c.(backend.BatchCapability)
		if err != nil || !ok {
			items = append(items, workItem{paths: []string{p}})
			continue
		}
		g, seen := groups[c.Name()]
		if !seen {
			g = &group{cap: bc}
			groups[c.Name()] = g
			order = append(order, c.Name())
		}
		g.paths = append(g.paths, p)
	}
	for _, name := range order {
		g := groups[name]
		for start := 0; start < len(g.paths); start += e.batchSize {
			end := min(start+e.batchSize, len(g.paths))
			items = append(items, workItem{paths: g.paths[start:end], batch: g.cap})
		}
	}
	return items
}

func (e *Engine) worker(ctx context.Context, workerID int, items <-chan workItem, local *partial) {
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	wLogger.Debug("Worker started")
	for item := range items {
		for _, res := range e.safeProcess(ctx, wLogger, item) {
			local.stats.Record(res.Outcome, res.ErrorLine())
			local.results = append(local.results, res)
			e.notify(res)
		}
	}
	wLogger.Debug("Worker shutting down (channel closed)")
}

// safeProcess converts a panic inside a backend into failed results for the
// item instead of taking the run down.
func (e *Engine) safeProcess(ctx context.Context, wLogger *slog.Logger, item workItem) (results []FileResult) {
	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered in worker", "panicValue", r)
			results = results[:0]
			for _, p := range item.paths {
				err := fmt.Errorf("internal error: %v", r)
				results = append(results, FileResult{Path: p, Outcome: OutcomeFailed, Message: err.Error(), Err: err})
			}
		}
	}()
	for _, p := range item.paths {
		if hookErr := e.opts.EventHooks.OnFileStatusUpdate(p, StatusProcessing, "", 0); hookErr != nil {
			wLogger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", p), slog.String("error", hookErr.Error()))
		}
	}
	if item.batch == nil {
		return []FileResult{e.processor.ProcessFile(ctx, item.paths[0])}
	}
	return e.processBatch(ctx, item)
}

func (e *Engine) processBatch(ctx context.Context, item workItem) []FileResult {
	results := make([]FileResult, 0, len(item.paths))
	var jobs []*job
	var reqs []backend.Request
	for _, p := range item.paths {
		j, res, done := e.processor.prepare(ctx, p)
		if done {
			results = append(results, res)
			continue
		}
		jobs = append(jobs, j)
		reqs = append(reqs, backend.Request{Source: j.text.Body, Path: j.path})
	}
	if len(jobs) == 0 {
		return results
	}
	outs := item.batch.FormatMany(ctx, reqs)
	for i, j := range jobs {
		if i >= len(outs) {
			err := backend.Errorf(item.batch.Name(), backend.ErrTransport, "batch returned %d results for %d files", len(outs), len(jobs))
			results = append(results, e.processor.complete(j, nil, err))
			continue
		}
		results = append(results, e.processor.complete(j, outs[i].Output, outs[i].Err))
	}
	return results
}

func (e *Engine) notify(res FileResult) {
	status := res.Outcome.status()
	if res.Cached {
		status = StatusCached
	}
	if hookErr := e.opts.EventHooks.OnFileStatusUpdate(res.Path, status, res.Message, time.Duration(res.DurationMs)*time.Millisecond); hookErr != nil {
		e.logger.Warn("Event hook OnFileStatusUpdate failed", slog.String("path", res.Path), slog.String("error", hookErr.Error()))
	}
}

func (e *Engine) buildReport(startTime time.Time, stats FormatStats, results []FileResult) Report {
	cached := 0
	for _, r := range results {
		if r.Cached {
			cached++
		}
	}
	if stats.Errors == nil {
		stats.Errors = []string{}
	}
	if results == nil {
		results = []FileResult{}
	}
	return Report{
		Summary: ReportSummary{
			Root:            e.opts.Root,
			ProfileUsed:     e.opts.ProfileName,
			ConfigFilePath:  e.opts.ConfigFilePath,
			Check:           e.opts.Check,
			TotalFiles:      len(results),
			CachedCount:     cached,
			DurationSeconds: time.Since(startTime).Seconds(),
			Concurrency:     e.concurrency,
			Batch:           e.opts.Batch,
			CacheEnabled:    e.opts.CacheEnabled,
			Timestamp:       time.Now().UTC(),
			SchemaVersion:   ReportSchemaVersion,
		},
		Stats: stats,
		Files: results,
	}
}

// Format discovers opts.Patterns and formats them. It is the library entry
// point used by the CLI.
func Format(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	discovered, err := DiscoverPatterns(ctx, opts, opts.Patterns)
	if err != nil {
		return Report{}, err
	}
	paths := discovered.Paths
	engine, err := NewEngine(opts)
	if err != nil {
		return Report{}, err
	}
	report, err := engine.Run(ctx, paths)
	if err != nil && !errors.Is(err, context.Canceled) {
		return report, fmt.Errorf("formatting run failed: %w", err)
	}
	return report, err
}
