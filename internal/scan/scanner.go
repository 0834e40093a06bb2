// Package scan walks a directory tree progressively, yielding fixed-size
// chunks of file records over a channel instead of materializing the whole
// tree. Entries are emitted in lexicographic order per directory so that
// downstream conflict resolution and undo are reproducible across runs.
package scan

import (
	"context"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

// Options controls one scan.
type Options struct {
	Recursive     bool
	MaxDepth      int // 0 means unlimited when Recursive
	IncludeHidden bool
	MaxFiles      int // 0 means unlimited
}

// Scanner walks directory trees. The chunk size is retunable mid-scan by
// the resource governor.
type Scanner struct {
	fs        *fsops.FS
	log       zerolog.Logger
	chunkSize atomic.Int64
	skipped   atomic.Int64
	estimates *gocache.Cache
}

// New builds a Scanner over fs emitting chunks of chunkSize records.
func New(fs *fsops.FS, logger zerolog.Logger, chunkSize int) *Scanner {
	s := &Scanner{
		fs:        fs,
		log:       logger,
		estimates: gocache.New(estimateTTL, 2*estimateTTL),
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}
	s.chunkSize.Store(int64(chunkSize))
	return s
}

// SetChunkSize adjusts the chunk size for subsequent chunks.
func (s *Scanner) SetChunkSize(n int) {
	if n > 0 {
		s.chunkSize.Store(int64(n))
	}
}

// Skipped returns how many entries were dropped due to per-entry errors
// during the most recent scan.
func (s *Scanner) Skipped() int64 { return s.skipped.Load() }

// Scan walks root and streams chunks of records. The records channel is
// closed when the walk finishes, is cancelled, or fails. A failure to read
// root itself is fatal and delivered on the error channel; per-entry
// failures are skipped and counted. A cancelled scan cannot be resumed.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) (<-chan []core.FileRecord, <-chan error) {
	records := make(chan []core.FileRecord)
	errc := make(chan error, 1)

	s.skipped.Store(0)

	go func() {
		defer close(records)
		defer close(errc)

		// An unreadable root is the caller's problem, not a skip.
		if _, err := s.fs.Stat(root); err != nil {
			errc <- err
			return
		}

		w := &walker{scanner: s, ctx: ctx, out: records, opts: opts}
		if err := w.walk(root, 1); err != nil && err != errStop {
			errc <- err
			return
		}
		w.flush()
	}()

	return records, errc
}

// errStop terminates the walk early without surfacing an error to the
// caller (cancellation, MaxFiles reached).
var errStop = sentinelError("scan stopped")

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

type walker struct {
	scanner *Scanner
	ctx     context.Context
	out     chan<- []core.FileRecord
	opts    Options
	pending []core.FileRecord
	emitted int
	stopped bool
}

func (w *walker) walk(dir string, depth int) error {
	// Cancellation is checked between directory levels, never mid-read.
	if w.ctx.Err() != nil {
		return errStop
	}

	entries, err := w.scanner.fs.List(dir)
	if err != nil {
		if depth == 1 {
			return err
		}
		w.scanner.skipped.Add(1)
		w.scanner.log.Debug().Str("dir", dir).Err(err).Msg("skipping unreadable directory")
		return nil
	}

	// fsops.List sorts by raw name; re-sort on the NFC form so byte-level
	// encoding differences cannot reorder visually identical names.
	sort.SliceStable(entries, func(i, j int) bool {
		return norm.NFC.String(entries[i].Name()) < norm.NFC.String(entries[j].Name())
	})

	for _, entry := range entries {
		if w.stopped {
			return errStop
		}
		name := entry.Name()
		if !w.opts.IncludeHidden && len(name) > 0 && name[0] == '.' {
			continue
		}

		path := join(dir, name)
		rec := core.FileRecord{
			Path:    path,
			Name:    name,
			Size:    entry.Size(),
			ModTime: entry.ModTime(),
			IsDir:   entry.IsDir(),
		}
		if err := w.push(rec); err != nil {
			return err
		}

		if entry.IsDir() && w.opts.Recursive {
			if w.opts.MaxDepth > 0 && depth >= w.opts.MaxDepth {
				continue
			}
			if err := w.walk(path, depth+1); err != nil && err != errStop {
				return err
			} else if err == errStop {
				return errStop
			}
		}
	}
	return nil
}

func (w *walker) push(rec core.FileRecord) error {
	w.pending = append(w.pending, rec)
	w.emitted++
	if w.opts.MaxFiles > 0 && w.emitted >= w.opts.MaxFiles {
		w.scanner.log.Warn().Int("max_files", w.opts.MaxFiles).Msg("scan reached file limit")
		w.stopped = true
		w.flush()
		return errStop
	}
	if len(w.pending) >= int(w.scanner.chunkSize.Load()) {
		return w.emit()
	}
	return nil
}

func (w *walker) emit() error {
	if len(w.pending) == 0 {
		return nil
	}
	chunk := w.pending
	w.pending = nil
	select {
	case w.out <- chunk:
		return nil
	case <-w.ctx.Done():
		w.stopped = true
		return errStop
	}
}

func (w *walker) flush() {
	if len(w.pending) == 0 {
		return
	}
	chunk := w.pending
	w.pending = nil
	select {
	case w.out <- chunk:
	case <-w.ctx.Done():
	}
}

func join(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}
