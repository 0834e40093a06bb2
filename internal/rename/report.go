package rename

import (
	"github.com/nametidy/nametidy/internal/core"
)

// RecoveryStrategy names an action the caller can offer after a partial
// failure.
type RecoveryStrategy string

const (
	RecoverySkipAndContinue  RecoveryStrategy = "skip-and-continue"
	RecoveryRetryRecoverable RecoveryStrategy = "retry-recoverable-only"
	RecoveryRollbackAll      RecoveryStrategy = "rollback-all"
	RecoveryStop             RecoveryStrategy = "stop"
	RecoveryManualPerEntry   RecoveryStrategy = "manual-per-entry"
)

// FailedEntry is one failed entry with its classified reason.
type FailedEntry struct {
	SourcePath  string
	TargetName  string
	Reason      string
	Kind        core.FSErrorKind
	Recoverable bool
}

// Report summarizes a finished batch for the presentation layer. Every
// batch gets one; Failed is empty on full success.
type Report struct {
	BatchID    string
	Status     core.BatchStatus
	Success    int
	FailedN    int
	Skipped    int
	Failed     []FailedEntry
	Strategies []RecoveryStrategy
}

// PartialFailure reports whether some entries succeeded and some failed.
func (r *Report) PartialFailure() bool {
	return r.FailedN > 0 && r.Success > 0
}

func buildReport(batch *core.BatchOperation, policy FailurePolicy) *Report {
	success, failed, skipped := batch.Counts()
	report := &Report{
		BatchID: batch.ID,
		Status:  batch.Status,
		Success: success,
		FailedN: failed,
		Skipped: skipped,
	}

	for _, res := range batch.Results {
		if res.Outcome != core.OutcomeFailed {
			continue
		}
		kind := res.Kind
		if kind == "" {
			kind = core.FSUnknown
		}
		report.Failed = append(report.Failed, FailedEntry{
			SourcePath:  res.SourcePath,
			TargetName:  res.NewName,
			Reason:      res.Reason,
			Kind:        kind,
			Recoverable: recoverable(kind),
		})
	}

	if failed > 0 {
		report.Strategies = []RecoveryStrategy{RecoverySkipAndContinue, RecoveryStop, RecoveryManualPerEntry}
		if anyRecoverable(report.Failed) {
			report.Strategies = append(report.Strategies, RecoveryRetryRecoverable)
		}
		if policy != RollbackAll && success > 0 && !batch.DryRun {
			report.Strategies = append(report.Strategies, RecoveryRollbackAll)
		}
	}
	return report
}

func anyRecoverable(failed []FailedEntry) bool {
	for _, f := range failed {
		if f.Recoverable {
			return true
		}
	}
	return false
}

// recoverable marks kinds worth retrying without operator intervention.
func recoverable(kind core.FSErrorKind) bool {
	switch kind {
	case core.FSFileInUse, core.FSNetworkUnavailable:
		return true
	default:
		return false
	}
}
