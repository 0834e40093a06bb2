// Package undo reverses a completed batch using the same rename primitives
// the executor used, including the two-step handling of case-only changes.
// Undo is valid only while every recorded new name still exists and every
// recorded old name is free; entries failing that check are reported
// individually without aborting the rest.
package undo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/nametidy/nametidy/internal/history"
	"github.com/rs/zerolog"
)

// EntryStatus is the outcome of reversing one recorded entry.
type EntryStatus struct {
	Entry  core.EntryResult
	Undone bool
	Reason string
}

// Result summarizes one undo run.
type Result struct {
	RecordID  string
	UndoID    string
	Entries   []EntryStatus
	Undone    int
	Failed    int
	Cancelled bool
}

// Coordinator reverses operation records.
type Coordinator struct {
	fs     *fsops.FS
	store  *history.Store
	log    zerolog.Logger
	window time.Duration
}

// New builds a Coordinator. window is the staleness limit beyond which undo
// is refused outright; it is a safety margin, not a technical limit.
func New(fs *fsops.FS, store *history.Store, logger zerolog.Logger, window time.Duration) *Coordinator {
	return &Coordinator{fs: fs, store: store, log: logger, window: window}
}

// UndoLast reverses the most recent rename record.
func (c *Coordinator) UndoLast(ctx context.Context) (*Result, error) {
	record, err := c.store.Query(history.Filter{Kind: core.RecordRename, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, fmt.Errorf("no rename operation found in history")
	}
	return c.Undo(ctx, record[0])
}

// UndoByID reverses the record with the given id.
func (c *Coordinator) UndoByID(ctx context.Context, id string) (*Result, error) {
	record, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("operation %s not found in history", id)
	}
	return c.Undo(ctx, record)
}

// Undo reverses record. Successful entries are processed newest first so
// that reversal mirrors execution order backwards.
func (c *Coordinator) Undo(ctx context.Context, record *core.OperationRecord) (*Result, error) {
	if record.Kind != core.RecordRename {
		return nil, fmt.Errorf("operation %s is not a rename batch", record.ID)
	}
	if record.DryRun {
		return nil, fmt.Errorf("operation %s was a dry run, nothing to undo", record.ID)
	}
	if record.UndoneBy != "" {
		return nil, fmt.Errorf("operation %s was already undone by %s", record.ID, record.UndoneBy)
	}
	if c.window > 0 && time.Since(record.EndedAt) > c.window {
		return nil, fmt.Errorf("operation %s is older than the undo window of %s", record.ID, c.window)
	}

	successes := record.Successes()
	result := &Result{RecordID: record.ID, UndoID: uuid.NewString()}
	started := time.Now()

	c.log.Info().Str("record_id", record.ID).Int("entries", len(successes)).
		Msg("starting undo")

	for i := len(successes) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		status := c.undoEntry(successes[i])
		result.Entries = append(result.Entries, status)
		if status.Undone {
			result.Undone++
		} else {
			result.Failed++
		}
	}

	c.log.Info().Str("record_id", record.ID).Int("undone", result.Undone).
		Int("failed", result.Failed).Msg("undo finished")

	c.persist(record, result, started)
	return result, nil
}

// undoEntry reverses one recorded rename after verifying its preconditions:
// the renamed file must still exist and the original name must be free.
func (c *Coordinator) undoEntry(entry core.EntryResult) EntryStatus {
	status := EntryStatus{Entry: entry}

	dir := filepath.Dir(entry.SourcePath)
	newPath := filepath.Join(dir, entry.NewName)
	oldPath := filepath.Join(dir, entry.OldName)

	if !c.fs.Exists(newPath) {
		status.Reason = fmt.Sprintf("renamed file %s no longer exists", newPath)
		return status
	}
	// A case-only reversal stats its own source; skip the free-name check.
	if !isCaseVariant(entry.OldName, entry.NewName) && c.fs.Exists(oldPath) {
		status.Reason = fmt.Sprintf("original path %s is occupied", oldPath)
		return status
	}

	if err := c.fs.Rename(newPath, oldPath); err != nil {
		status.Reason = err.Error()
		return status
	}
	status.Undone = true
	return status
}

// persist appends the undo run as its own record and links the original.
func (c *Coordinator) persist(record *core.OperationRecord, result *Result, started time.Time) {
	entries := make([]core.EntryResult, 0, len(result.Entries))
	for _, status := range result.Entries {
		outcome := core.OutcomeFailed
		reason := status.Reason
		if status.Undone {
			outcome = core.OutcomeSuccess
			reason = ""
		}
		entries = append(entries, core.EntryResult{
			SourcePath: status.Entry.SourcePath,
			OldName:    status.Entry.NewName,
			NewName:    status.Entry.OldName,
			Outcome:    outcome,
			Reason:     reason,
		})
	}

	status := core.BatchCompleted
	switch {
	case result.Cancelled:
		status = core.BatchCancelled
	case result.Failed > 0:
		status = core.BatchFailed
	}

	undoRecord := &core.OperationRecord{
		ID:         result.UndoID,
		Kind:       core.RecordUndo,
		Status:     status,
		WorkingDir: record.WorkingDir,
		StartedAt:  started,
		EndedAt:    time.Now(),
		Entries:    entries,
	}
	if err := c.store.Append(undoRecord); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist undo record")
		return
	}
	if result.Undone > 0 && !result.Cancelled {
		if err := c.store.MarkUndone(record.ID, result.UndoID); err != nil {
			c.log.Warn().Err(err).Msg("failed to link undo record")
		}
	}
}

func isCaseVariant(a, b string) bool {
	return a != b && strings.EqualFold(a, b)
}
