// Package rename executes a selected rename plan against the filesystem as
// one batch: entries are applied in scan order, every outcome is recorded,
// and the completed batch is projected into an immutable operation record
// for the history store. The plan is fully computed before execution
// starts, so the executor is the only writer to the affected directories
// for the duration of the batch.
package rename

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/rs/zerolog"
)

// FailurePolicy decides what happens to the rest of a batch after one entry
// fails.
type FailurePolicy string

const (
	SkipAndContinue  FailurePolicy = "skip-and-continue"
	StopOnFirstError FailurePolicy = "stop-on-first-error"
	RollbackAll      FailurePolicy = "rollback-all"
)

// Options configures one execution.
type Options struct {
	Policy FailurePolicy
	DryRun bool
	// Force allows overwriting an existing destination. Off by default;
	// the conflict resolver should have made this impossible anyway.
	Force bool
}

// History is the append side of the external history store.
type History interface {
	Append(record *core.OperationRecord) error
}

// ProgressFunc receives per-entry progress: entries completed so far, the
// file just processed, and the total selected count.
type ProgressFunc func(done int, current string, total int)

// Executor applies batches.
type Executor struct {
	fs      *fsops.FS
	history History
	log     zerolog.Logger

	// OnProgress, when set, is called after each entry.
	OnProgress ProgressFunc
}

// NewExecutor builds an Executor. history may be nil, in which case records
// are not persisted (dry runs do this implicitly).
func NewExecutor(fs *fsops.FS, history History, logger zerolog.Logger) *Executor {
	return &Executor{fs: fs, history: history, log: logger}
}

// Execute runs the selected subset of plan in scan order and returns the
// completed batch plus a report describing any failures. Cancellation via
// ctx leaves already-applied renames in place, marks the remaining entries
// skipped, and sets the batch status to cancelled. The context is only
// checked between entries; an in-flight rename call is never interrupted.
func (x *Executor) Execute(ctx context.Context, plan []*core.RenamePlanEntry, opts Options) (*core.BatchOperation, *Report) {
	if opts.Policy == "" {
		opts.Policy = SkipAndContinue
	}

	selected := make([]*core.RenamePlanEntry, 0, len(plan))
	for _, entry := range plan {
		if entry.Selected && entry.Conflict != core.ConflictUnresolved {
			selected = append(selected, entry)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Seq < selected[j].Seq })

	batch := core.NewBatchOperation(selected, opts.DryRun)
	batch.Status = core.BatchRunning
	batch.StartedAt = time.Now()

	x.log.Info().Str("batch_id", batch.ID).Int("entries", len(selected)).
		Bool("dry_run", opts.DryRun).Str("policy", string(opts.Policy)).
		Msg("starting batch execution")

	stopped := false
	cancelled := false
	for i, entry := range selected {
		if ctx.Err() != nil {
			cancelled = true
			x.skipRemaining(batch, selected[i:], "batch cancelled")
			break
		}
		if stopped {
			x.skipRemaining(batch, selected[i:], "stopped after earlier failure")
			break
		}

		result := x.executeEntry(entry, opts)
		batch.Results = append(batch.Results, result)

		if result.Outcome == core.OutcomeFailed && opts.Policy == StopOnFirstError {
			stopped = true
		}
		if x.OnProgress != nil {
			x.OnProgress(i+1, entry.Source.Name, len(selected))
		}
	}

	success, failed, _ := batch.Counts()

	if !cancelled && failed > 0 && opts.Policy == RollbackAll && !opts.DryRun {
		x.rollback(ctx, batch)
		success, failed, _ = batch.Counts()
	}

	batch.EndedAt = time.Now()
	switch {
	case cancelled:
		batch.Status = core.BatchCancelled
	case failed > 0:
		batch.Status = core.BatchFailed
	default:
		batch.Status = core.BatchCompleted
	}

	x.log.Info().Str("batch_id", batch.ID).Str("status", string(batch.Status)).
		Int("success", success).Int("failed", failed).
		Dur("duration", batch.EndedAt.Sub(batch.StartedAt)).
		Msg("batch execution finished")

	if x.history != nil && !opts.DryRun {
		record := batch.Record(core.RecordRename, workingDirOf(selected))
		if err := x.history.Append(record); err != nil {
			x.log.Warn().Err(err).Str("batch_id", batch.ID).Msg("failed to persist operation record")
		}
	}

	return batch, buildReport(batch, opts.Policy)
}

// executeEntry applies one entry and classifies the outcome.
func (x *Executor) executeEntry(entry *core.RenamePlanEntry, opts Options) core.EntryResult {
	start := time.Now()
	target := entry.EffectiveTarget()
	oldPath := entry.Source.Path
	newPath := filepath.Join(filepath.Dir(oldPath), target)

	result := core.EntryResult{
		SourcePath: oldPath,
		OldName:    entry.Source.Name,
		NewName:    target,
	}

	finish := func(outcome core.EntryOutcome, reason string) core.EntryResult {
		result.Outcome = outcome
		result.Reason = reason
		result.Duration = time.Since(start)
		return result
	}

	if target == entry.Source.Name {
		return finish(core.OutcomeSkipped, "source and target names are identical")
	}

	if opts.DryRun {
		if !opts.Force && oldPath != newPath && x.fs.Exists(newPath) && !isCaseVariant(oldPath, newPath) {
			result.Kind = core.FSInvalidPath
			return finish(core.OutcomeFailed, "destination already exists")
		}
		return finish(core.OutcomeWouldRename, "")
	}

	renameFn := x.fs.Rename
	if opts.Force {
		renameFn = x.fs.RenameOverwrite
	}
	if err := renameFn(oldPath, newPath); err != nil {
		x.log.Debug().Str("from", oldPath).Str("to", newPath).Err(err).Msg("rename failed")
		result.Kind = errorKind(err)
		return finish(core.OutcomeFailed, err.Error())
	}

	x.log.Debug().Str("from", oldPath).Str("to", newPath).Msg("renamed")
	return finish(core.OutcomeSuccess, "")
}

func (x *Executor) skipRemaining(batch *core.BatchOperation, rest []*core.RenamePlanEntry, reason string) {
	for _, entry := range rest {
		batch.Results = append(batch.Results, core.EntryResult{
			SourcePath: entry.Source.Path,
			OldName:    entry.Source.Name,
			NewName:    entry.EffectiveTarget(),
			Outcome:    core.OutcomeSkipped,
			Reason:     reason,
		})
	}
}

// rollback reverses the successful entries of a failed batch, most recent
// first, rewriting their outcomes.
func (x *Executor) rollback(ctx context.Context, batch *core.BatchOperation) {
	x.log.Info().Str("batch_id", batch.ID).Msg("rolling back successful entries")
	for i := len(batch.Results) - 1; i >= 0; i-- {
		result := &batch.Results[i]
		if result.Outcome != core.OutcomeSuccess {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		dir := filepath.Dir(result.SourcePath)
		if err := x.fs.Rename(filepath.Join(dir, result.NewName), filepath.Join(dir, result.OldName)); err != nil {
			result.Outcome = core.OutcomeFailed
			result.Reason = fmt.Sprintf("rollback failed: %v", err)
			result.Kind = errorKind(err)
			continue
		}
		result.Outcome = core.OutcomeSkipped
		result.Reason = "rolled back after batch failure"
		result.Kind = ""
	}
}

func workingDirOf(entries []*core.RenamePlanEntry) string {
	if len(entries) == 0 {
		return ""
	}
	return filepath.Dir(entries[0].Source.Path)
}

// errorKind pulls the classified kind off a filesystem error, classifying
// from scratch for errors that arrive unwrapped.
func errorKind(err error) core.FSErrorKind {
	var fsErr *core.FileSystemError
	if errors.As(err, &fsErr) {
		return fsErr.Kind
	}
	return core.ClassifyFSError(err)
}

func isCaseVariant(a, b string) bool {
	if filepath.Dir(a) != filepath.Dir(b) {
		return false
	}
	an, bn := filepath.Base(a), filepath.Base(b)
	return an != bn && strings.EqualFold(an, bn)
}
