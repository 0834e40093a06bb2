// Package history persists operation records, one JSON file per completed
// batch. Records are append-only: once written they are never modified,
// except for marking a record as undone by a later record. Files are named
// by timestamp so a reverse name sort is a reverse time sort.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nametidy/nametidy/internal/core"
)

// Store reads and appends operation records under a directory.
type Store struct {
	dir string
}

// DefaultDir returns the per-user history directory.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nametidy", "history"), nil
}

// New builds a store over dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Append writes record to its own file.
func (s *Store) Append(record *core.OperationRecord) error {
	if record == nil {
		return nil
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal operation record: %w", err)
	}
	path := filepath.Join(s.dir, s.filename(record))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write operation record: %w", err)
	}
	return nil
}

func (s *Store) filename(record *core.OperationRecord) string {
	ts := record.EndedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s_%s.json", ts.Format("2006-01-02_150405.000"), record.ID)
}

// Last returns the most recent record, or nil when history is empty.
func (s *Store) Last() (*core.OperationRecord, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		record, err := s.read(file)
		if err != nil {
			// Corrupted files are skipped, same as unreadable ones.
			continue
		}
		return record, nil
	}
	return nil, nil
}

// Get returns the record with the given id, or nil when absent.
func (s *Store) Get(id string) (*core.OperationRecord, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if !strings.Contains(filepath.Base(file), id) {
			continue
		}
		record, err := s.read(file)
		if err != nil {
			continue
		}
		if record.ID == id {
			return record, nil
		}
	}
	return nil, nil
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Kind  core.RecordKind
	Since time.Time
	Limit int
}

// Query returns records newest first, filtered.
func (s *Store) Query(filter Filter) ([]*core.OperationRecord, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	records := make([]*core.OperationRecord, 0, len(files))
	for _, file := range files {
		record, err := s.read(file)
		if err != nil {
			continue
		}
		if filter.Kind != "" && record.Kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && record.EndedAt.Before(filter.Since) {
			continue
		}
		records = append(records, record)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	return records, nil
}

// MarkUndone links record id to the undo record that reversed it.
func (s *Store) MarkUndone(id, undoneBy string) error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		record, err := s.read(file)
		if err != nil || record.ID != id {
			continue
		}
		record.UndoneBy = undoneBy
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal operation record: %w", err)
		}
		return os.WriteFile(file, data, 0644)
	}
	return fmt.Errorf("record %s not found", id)
}

// Cleanup removes records older than retentionDays.
func (s *Store) Cleanup(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				return fmt.Errorf("failed to remove old record %s: %w", file, err)
			}
		}
	}
	return nil
}

// listFiles returns record paths sorted newest first.
func (s *Store) listFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list history files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

func (s *Store) read(path string) (*core.OperationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	var record core.OperationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record file: %w", err)
	}
	return &record, nil
}
