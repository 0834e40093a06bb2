// Package pipeline wires the scanner, preview engine, conflict resolver,
// executor, and resource governor into the scan → preview → resolve →
// execute flow, with the governor retuning the moving parts on level
// transitions.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/nametidy/nametidy/internal/config"
	"github.com/nametidy/nametidy/internal/conflict"
	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/nametidy/nametidy/internal/govern"
	"github.com/nametidy/nametidy/internal/history"
	"github.com/nametidy/nametidy/internal/normalize"
	"github.com/nametidy/nametidy/internal/preview"
	"github.com/nametidy/nametidy/internal/rename"
	"github.com/nametidy/nametidy/internal/scan"
	"github.com/nametidy/nametidy/internal/sched"
	"github.com/nametidy/nametidy/internal/validate"
	"github.com/rs/zerolog"
)

// Progress is delivered to the caller while preview generation runs.
type Progress struct {
	Percent     float64
	CurrentFile string
	ETASeconds  float64
}

// Pipeline owns one configured instance of every engine component.
type Pipeline struct {
	cfg   *config.Config
	fs    *fsops.FS
	log   zerolog.Logger
	store *history.Store

	scheduler  *sched.Scheduler
	governor   *govern.Governor
	scanner    *scan.Scanner
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	cache      *preview.Cache
	resolver   *conflict.Resolver
	executor   *rename.Executor

	// batchSize follows the governor's active profile between previews.
	batchSize atomic.Int64
}

// New builds a Pipeline over fs. store may be nil to disable history.
func New(cfg *config.Config, fs *fsops.FS, store *history.Store, logger zerolog.Logger) *Pipeline {
	perf := cfg.Performance

	governor := govern.New(govern.Options{
		MemoryLimitMB: perf.MemoryLimitMB,
		Logger:        logger,
	})
	_, profile := governor.Current()

	workers := perf.WorkerCount
	if workers <= 0 {
		workers = profile.Workers
	}
	scheduler := sched.New(workers, logger)

	chunkSize := perf.ChunkSize
	if chunkSize <= 0 {
		chunkSize = profile.ChunkSize
	}
	scanner := scan.New(fs, logger, chunkSize)

	cacheCapacity := 0
	if perf.EnableCaching {
		cacheCapacity = perf.CacheCapacity
	}
	normalizer := normalize.New(cfg.Rules, logger, cacheCapacity)
	validator := validate.New(perf.CacheCapacity)
	cache := preview.NewCache(cacheCapacity)

	p := &Pipeline{
		cfg:        cfg,
		fs:         fs,
		log:        logger,
		store:      store,
		scheduler:  scheduler,
		governor:   governor,
		scanner:    scanner,
		normalizer: normalizer,
		validator:  validator,
		cache:      cache,
		resolver:   conflict.New(fs, logger, 0),
	}

	// A nil *Store must stay a nil interface inside the executor.
	var hist rename.History
	if store != nil {
		hist = store
	}
	p.executor = rename.NewExecutor(fs, hist, logger)

	batchSize := perf.BatchSize
	if batchSize <= 0 {
		batchSize = profile.BatchSize
	}
	p.batchSize.Store(int64(batchSize))

	governor.OnTransition(func(_ govern.Level, profile govern.Profile) {
		scheduler.SetConcurrency(profile.Workers)
		scanner.SetChunkSize(profile.ChunkSize)
		p.batchSize.Store(int64(profile.BatchSize))
	})
	governor.RegisterEvictor(cache.Purge)
	governor.RegisterEvictor(normalizer.Flush)

	return p
}

// Governor exposes the resource governor for lifecycle management.
func (p *Pipeline) Governor() *govern.Governor { return p.governor }

// Normalizer exposes the shared normalizer, e.g. for rule swaps.
func (p *Pipeline) Normalizer() *normalize.Normalizer { return p.normalizer }

// Close stops the scheduler. The pipeline is not reusable afterwards.
func (p *Pipeline) Close() {
	p.scheduler.Stop()
}

// Preview scans root and generates the full rename plan, resolved for
// conflicts, in scan order. onProgress may be nil.
func (p *Pipeline) Preview(ctx context.Context, root string, opts scan.Options, onProgress func(Progress)) ([]*core.RenamePlanEntry, error) {
	if opts.MaxFiles == 0 {
		opts.MaxFiles = p.cfg.Performance.MaxFiles
	}

	estimate := p.scanner.Estimate(ctx, root, opts)
	records, scanErrs := p.scanner.Scan(ctx, root, opts)

	engine := preview.NewEngine(preview.Config{
		Normalizer:     p.normalizer,
		Validator:      p.validator,
		Cache:          p.cache,
		Scheduler:      p.scheduler,
		BatchSize:      int(p.batchSize.Load()),
		EstimatedTotal: estimate,
		Logger:         p.log,
	})

	for event := range engine.Run(ctx, records) {
		if onProgress == nil {
			continue
		}
		summary := event.Summary
		percent := 0.0
		if summary.TotalItems > 0 {
			percent = 100 * float64(summary.ProcessedItems) / float64(summary.TotalItems)
		}
		onProgress(Progress{
			Percent:     percent,
			CurrentFile: summary.CurrentFile,
			ETASeconds:  summary.ETASeconds,
		})
	}

	if err := <-scanErrs; err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, &core.OperationError{Kind: core.OpCancelled, Err: ctx.Err()}
	}

	plan := engine.Plan()
	p.resolver.Resolve(plan)
	return plan, nil
}

// Execute applies the selected subset of plan.
func (p *Pipeline) Execute(ctx context.Context, plan []*core.RenamePlanEntry, opts rename.Options) (*core.BatchOperation, *rename.Report) {
	return p.executor.Execute(ctx, plan, opts)
}

// SetProgressFunc installs a per-entry execution progress callback.
func (p *Pipeline) SetProgressFunc(fn rename.ProgressFunc) {
	p.executor.OnProgress = fn
}
