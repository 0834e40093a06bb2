package core

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// FSErrorKind classifies a filesystem failure into the small set of causes
// the engine distinguishes when deciding how an entry failed.
type FSErrorKind string

const (
	FSNotFound           FSErrorKind = "not_found"
	FSPermissionDenied   FSErrorKind = "permission_denied"
	FSFileInUse          FSErrorKind = "file_in_use"
	FSDiskFull           FSErrorKind = "disk_full"
	FSPathTooLong        FSErrorKind = "path_too_long"
	FSNetworkUnavailable FSErrorKind = "network_unavailable"
	FSInvalidPath        FSErrorKind = "invalid_path"
	FSUnknown            FSErrorKind = "unknown"
)

// FileSystemError wraps an OS-level failure with its classified kind and the
// path it occurred on.
type FileSystemError struct {
	Kind FSErrorKind
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// NewFSError classifies err and wraps it. A nil err returns nil.
func NewFSError(path string, err error) *FileSystemError {
	if err == nil {
		return nil
	}
	return &FileSystemError{Kind: ClassifyFSError(err), Path: path, Err: err}
}

// ClassifyFSError maps an OS error onto the engine's taxonomy.
func ClassifyFSError(err error) FSErrorKind {
	switch {
	case err == nil:
		return FSUnknown
	case errors.Is(err, syscall.ENOENT), errors.Is(err, fs.ErrNotExist):
		return FSNotFound
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM),
		errors.Is(err, fs.ErrPermission):
		return FSPermissionDenied
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return FSFileInUse
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return FSDiskFull
	case errors.Is(err, syscall.ENAMETOOLONG):
		return FSPathTooLong
	case errors.Is(err, syscall.ENETDOWN), errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, syscall.ECONNRESET):
		return FSNetworkUnavailable
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.ENOTDIR):
		return FSInvalidPath
	default:
		return FSUnknown
	}
}

// ValidationError reports a candidate name that failed validation. Blocking
// errors stop an entry from being planned; warnings do not.
type ValidationError struct {
	Name     string
	Message  string
	Blocking bool
}

func (e *ValidationError) Error() string {
	severity := "warning"
	if e.Blocking {
		severity = "error"
	}
	return fmt.Sprintf("invalid name %q (%s): %s", e.Name, severity, e.Message)
}

// ConflictKind distinguishes resolvable duplicates from names the resolver
// gave up on.
type ConflictKind string

const (
	ConflictDuplicateName      ConflictKind = "duplicate_name"
	ConflictUnresolvedConflict ConflictKind = "unresolved_conflict"
)

// ConflictError reports a target-name collision.
type ConflictError struct {
	Kind   ConflictKind
	Dir    string
	Target string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %q in %s", e.Kind, e.Target, e.Dir)
}

// OperationErrorKind classifies batch-level failures.
type OperationErrorKind string

const (
	OpCancelled      OperationErrorKind = "cancelled"
	OpTimeout        OperationErrorKind = "timeout"
	OpPartialFailure OperationErrorKind = "partial_failure"
)

// OperationError reports a batch that did not complete cleanly.
type OperationError struct {
	Kind    OperationErrorKind
	BatchID string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch %s %s: %v", e.BatchID, e.Kind, e.Err)
	}
	return fmt.Sprintf("batch %s %s", e.BatchID, e.Kind)
}

func (e *OperationError) Unwrap() error { return e.Err }
