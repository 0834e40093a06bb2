// Package preview turns scanned file records into rename-plan entries using
// a bounded worker pool, a shared bounded cache, and progress snapshots the
// presentation layer can poll or stream.
package preview

import (
	"context"
	"sort"
	"sync"
	"time"

	csmap "github.com/mhmtszr/concurrent-swiss-map"
	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/normalize"
	"github.com/nametidy/nametidy/internal/sched"
	"github.com/nametidy/nametidy/internal/validate"
	"github.com/rs/zerolog"
)

// Summary captures the state of the preview pipeline at a point in time.
type Summary struct {
	TotalItems     int
	ProcessedItems int
	ActiveWorkers  int
	WorkerLimit    int
	CurrentFile    string
	Throughput     float64
	ETASeconds     float64
	CacheHits      int64
	CacheMisses    int64
	Done           bool
	Canceled       bool
}

// Event is one update emitted by the engine. Batch is nil for pure progress
// ticks; entries within a batch keep their scan order.
type Event struct {
	Batch   []*core.RenamePlanEntry
	Summary Summary
	Err     error
}

// Config wires the engine's collaborators.
type Config struct {
	Normalizer *normalize.Normalizer
	Validator  *validate.Validator
	Cache      *Cache
	Scheduler  *sched.Scheduler
	BatchSize  int
	// EstimatedTotal seeds the total before the scan finishes; advisory.
	EstimatedTotal int
	Logger         zerolog.Logger
}

// Engine is the preview generator.
type Engine struct {
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	cache      *Cache
	scheduler  *sched.Scheduler
	batchSize  int
	log        zerolog.Logger

	entries *csmap.CsMap[string, *core.RenamePlanEntry]
	rate    *rollingRate

	summaryMu sync.RWMutex
	summary   Summary
}

// NewEngine builds an engine. The scheduler bounds worker concurrency; the
// engine itself spawns no unmanaged goroutines besides its coordinator.
func NewEngine(cfg Config) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache(0)
	}
	return &Engine{
		normalizer: cfg.Normalizer,
		validator:  cfg.Validator,
		cache:      cache,
		scheduler:  cfg.Scheduler,
		batchSize:  batchSize,
		log:        cfg.Logger,
		entries:    csmap.Create[string, *core.RenamePlanEntry](),
		rate:       newRollingRate(5 * time.Second),
		summary:    Summary{TotalItems: cfg.EstimatedTotal},
	}
}

// SummarySnapshot returns the latest progress summary.
func (e *Engine) SummarySnapshot() Summary {
	e.summaryMu.RLock()
	defer e.summaryMu.RUnlock()
	return e.summary
}

// Plan returns every generated entry in scan order. Valid once the event
// stream has closed.
func (e *Engine) Plan() []*core.RenamePlanEntry {
	out := make([]*core.RenamePlanEntry, 0, e.entries.Count())
	e.entries.Range(func(_ string, entry *core.RenamePlanEntry) bool {
		out = append(out, entry)
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Run consumes scanner chunks and streams plan-entry batches. Batches are
// emitted in completion order; within a batch the scan order is preserved.
// The returned channel closes when all input is processed or ctx ends.
func (e *Engine) Run(ctx context.Context, records <-chan []core.FileRecord) <-chan Event {
	events := make(chan Event, 128)
	go e.run(ctx, records, events)
	return events
}

type batchResult struct {
	entries   []*core.RenamePlanEntry
	processed int
	lastFile  string
}

func (e *Engine) run(ctx context.Context, records <-chan []core.FileRecord, events chan<- Event) {
	defer close(events)

	resultCh := make(chan batchResult, 16)
	var wg sync.WaitGroup
	seq := 0

	// Feed batches to the scheduler as they arrive from the scanner.
	go func() {
		defer func() {
			wg.Wait()
			close(resultCh)
		}()
		for chunk := range records {
			e.addTotal(len(chunk))
			for start := 0; start < len(chunk); start += e.batchSize {
				end := start + e.batchSize
				if end > len(chunk) {
					end = len(chunk)
				}
				batch := make([]core.FileRecord, end-start)
				copy(batch, chunk[start:end])
				firstSeq := seq
				seq += len(batch)

				wg.Add(1)
				e.markWorkerQueued(1)
				handle := e.scheduler.Submit(sched.Task{
					Name:     "preview-batch",
					Priority: sched.Normal,
					Fn: func(taskCtx context.Context) error {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						res := e.processBatch(ctx, batch, firstSeq)
						select {
						case resultCh <- res:
						case <-ctx.Done():
							return ctx.Err()
						case <-taskCtx.Done():
							return taskCtx.Err()
						}
						return nil
					},
				})
				// Completion accounting hangs off the handle, not the task
				// body: a stopped scheduler finishes handles for tasks it
				// never ran, and those must not strand wg.Wait.
				go func() {
					<-handle.Done()
					e.markWorkerQueued(-1)
					wg.Done()
				}()
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.summaryMu.Lock()
			e.summary.Canceled = true
			e.summary.ActiveWorkers = 0
			e.summaryMu.Unlock()
			e.emit(events, nil, nil)
			// Drain so scheduler tasks blocked on resultCh can finish.
			go func() {
				for range resultCh {
				}
			}()
			return
		case res, ok := <-resultCh:
			if !ok {
				e.summaryMu.Lock()
				e.summary.Done = true
				e.summary.ActiveWorkers = 0
				if e.summary.TotalItems < e.summary.ProcessedItems {
					e.summary.TotalItems = e.summary.ProcessedItems
				}
				e.summaryMu.Unlock()
				e.emit(events, nil, nil)
				return
			}
			e.recordResult(res)
			e.emit(events, res.entries, nil)
		}
	}
}

// processBatch builds entries for one batch of records, preserving their
// order. Only files become plan entries; directory records count toward
// progress but are not renamed.
func (e *Engine) processBatch(ctx context.Context, batch []core.FileRecord, firstSeq int) batchResult {
	res := batchResult{entries: make([]*core.RenamePlanEntry, 0, len(batch))}
	rulesHash := e.normalizer.RulesHash()

	for i, rec := range batch {
		if ctx.Err() != nil {
			break
		}
		res.processed++
		res.lastFile = rec.Name
		if rec.IsDir {
			continue
		}

		entry := e.buildEntry(rec, rulesHash)
		entry.Seq = firstSeq + i
		e.entries.Store(rec.Path, entry)
		res.entries = append(res.entries, entry)
	}
	return res
}

func (e *Engine) buildEntry(rec core.FileRecord, rulesHash string) *core.RenamePlanEntry {
	key := cacheKey(rec.Path, rec.ModTime, rulesHash)
	if hit, ok := e.cache.get(key); ok {
		return &core.RenamePlanEntry{
			Source:     rec,
			TargetName: hit.TargetName,
			Steps:      hit.Steps,
			Warnings:   hit.Warnings,
			Selected:   hit.Valid && hit.TargetName != rec.Name,
		}
	}

	norm := e.normalizer.Normalize(rec.Name)
	validation := e.validator.Validate(norm.Name)

	warnings := norm.Warnings
	warnings = append(warnings, validation.Warnings...)
	warnings = append(warnings, validation.Errors...)

	cached := cachedPreview{
		TargetName: norm.Name,
		Steps:      norm.Steps,
		Warnings:   warnings,
		Valid:      validation.OK(),
	}
	e.cache.put(key, cached)

	return &core.RenamePlanEntry{
		Source:     rec,
		TargetName: norm.Name,
		Steps:      norm.Steps,
		Warnings:   warnings,
		Selected:   validation.OK() && norm.Name != rec.Name,
	}
}

func (e *Engine) addTotal(n int) {
	e.summaryMu.Lock()
	if e.summary.TotalItems < e.summary.ProcessedItems+n {
		// The scan outgrew the estimate; trust observed counts.
		e.summary.TotalItems = e.summary.ProcessedItems + n
	}
	e.summaryMu.Unlock()
}

func (e *Engine) markWorkerQueued(delta int) {
	e.summaryMu.Lock()
	e.summary.ActiveWorkers += delta
	if e.summary.ActiveWorkers > e.summary.WorkerLimit {
		e.summary.WorkerLimit = e.summary.ActiveWorkers
	}
	e.summaryMu.Unlock()
}

func (e *Engine) recordResult(res batchResult) {
	e.rate.Add(res.processed)
	hits, misses := e.cache.Stats()

	e.summaryMu.Lock()
	e.summary.ProcessedItems += res.processed
	e.summary.CurrentFile = res.lastFile
	e.summary.Throughput = e.rate.PerSecond()
	e.summary.ETASeconds = e.rate.ETASeconds(e.summary.TotalItems - e.summary.ProcessedItems)
	e.summary.CacheHits = hits
	e.summary.CacheMisses = misses
	e.summaryMu.Unlock()
}

func (e *Engine) emit(events chan<- Event, batch []*core.RenamePlanEntry, err error) {
	select {
	case events <- Event{Batch: batch, Summary: e.SummarySnapshot(), Err: err}:
	default:
		// A slow consumer loses progress ticks, never plan batches.
		if batch != nil {
			events <- Event{Batch: batch, Summary: e.SummarySnapshot(), Err: err}
		}
	}
}
