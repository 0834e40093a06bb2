package core

import (
	"time"

	"github.com/google/uuid"
)

// FileRecord describes one directory entry produced by the scanner. Records
// are transient: the preview engine consumes them and they are not retained
// after a plan entry has been built.
type FileRecord struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// ConflictState tracks how a plan entry's target name relates to the rest of
// the plan and to the directory it lands in.
type ConflictState int

const (
	ConflictNone ConflictState = iota
	ConflictDuplicate
	ConflictManualOverride
	ConflictUnresolved
)

func (c ConflictState) String() string {
	switch c {
	case ConflictNone:
		return "none"
	case ConflictDuplicate:
		return "duplicate"
	case ConflictManualOverride:
		return "manual-override"
	case ConflictUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// NormalizationStep records one pipeline stage that changed a name, so a
// caller can explain how a target name was produced.
type NormalizationStep struct {
	Stage  string `json:"stage"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// RenamePlanEntry is one file's computed source -> target mapping plus its
// conflict and selection state. Built by the preview engine, adjusted by the
// conflict resolver and by caller overrides, consumed by the executor.
type RenamePlanEntry struct {
	// Seq is the entry's ordinal in scan order; suffix assignment during
	// conflict resolution and execution order both follow it.
	Seq        int
	Source     FileRecord
	TargetName string
	Steps      []NormalizationStep
	Warnings   []string
	Conflict   ConflictState
	Selected   bool
	ManualName string
}

// EffectiveTarget returns the manual override when one is set, otherwise the
// computed target name.
func (e *RenamePlanEntry) EffectiveTarget() string {
	if e.ManualName != "" {
		return e.ManualName
	}
	return e.TargetName
}

// BatchStatus is the lifecycle state of a batch operation.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// EntryOutcome is the terminal result of executing one plan entry.
type EntryOutcome string

const (
	OutcomeSuccess     EntryOutcome = "success"
	OutcomeFailed      EntryOutcome = "failed"
	OutcomeSkipped     EntryOutcome = "skipped"
	OutcomeWouldRename EntryOutcome = "would-rename"
)

// EntryResult is the recorded outcome for one entry of a batch.
type EntryResult struct {
	SourcePath string        `json:"source_path"`
	OldName    string        `json:"old_name"`
	NewName    string        `json:"new_name"`
	Outcome    EntryOutcome  `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Kind       FSErrorKind   `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// BatchOperation is one user-initiated execution of a selected set of plan
// entries. The executor is its sole owner while it is live; once projected
// into an OperationRecord it is never mutated again.
type BatchOperation struct {
	ID        string
	Entries   []*RenamePlanEntry
	Status    BatchStatus
	Results   []EntryResult
	StartedAt time.Time
	EndedAt   time.Time
	DryRun    bool
}

// NewBatchOperation builds a pending batch over the given entries.
func NewBatchOperation(entries []*RenamePlanEntry, dryRun bool) *BatchOperation {
	return &BatchOperation{
		ID:      uuid.NewString(),
		Entries: entries,
		Status:  BatchPending,
		DryRun:  dryRun,
	}
}

// Counts tallies the recorded per-entry outcomes.
func (b *BatchOperation) Counts() (success, failed, skipped int) {
	for _, r := range b.Results {
		switch r.Outcome {
		case OutcomeSuccess, OutcomeWouldRename:
			success++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return success, failed, skipped
}

// RecordKind distinguishes forward batches from undo batches in history.
type RecordKind string

const (
	RecordRename RecordKind = "rename"
	RecordUndo   RecordKind = "undo"
)

// OperationRecord is the immutable, persisted projection of a completed
// batch. The history store owns it; the engine only appends and reads.
type OperationRecord struct {
	ID         string        `json:"id"`
	Kind       RecordKind    `json:"kind"`
	Status     BatchStatus   `json:"status"`
	WorkingDir string        `json:"working_dir"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	DryRun     bool          `json:"dry_run"`
	Entries    []EntryResult `json:"entries"`
	UndoneBy   string        `json:"undone_by,omitempty"`
}

// Record projects the batch into its persisted form.
func (b *BatchOperation) Record(kind RecordKind, workingDir string) *OperationRecord {
	entries := make([]EntryResult, len(b.Results))
	copy(entries, b.Results)
	return &OperationRecord{
		ID:         b.ID,
		Kind:       kind,
		Status:     b.Status,
		WorkingDir: workingDir,
		StartedAt:  b.StartedAt,
		EndedAt:    b.EndedAt,
		DryRun:     b.DryRun,
		Entries:    entries,
	}
}

// Successes returns the entries that were applied to the filesystem.
func (r *OperationRecord) Successes() []EntryResult {
	out := make([]EntryResult, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Outcome == OutcomeSuccess {
			out = append(out, e)
		}
	}
	return out
}
