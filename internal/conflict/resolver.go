// Package conflict makes the selected target names of a rename plan unique.
// Uniqueness is case-insensitive within each target directory and also
// guards against existing on-disk entries that are not part of the batch,
// so a rename never silently overwrites a bystander file.
package conflict

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds how many numeric suffixes are tried before an
// entry is flagged unresolved.
const DefaultMaxAttempts = 9999

// Resolver finalizes target-name uniqueness over a plan.
type Resolver struct {
	fs          *fsops.FS
	log         zerolog.Logger
	maxAttempts int
}

// New builds a Resolver. maxAttempts <= 0 selects DefaultMaxAttempts.
func New(fs *fsops.FS, logger zerolog.Logger, maxAttempts int) *Resolver {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Resolver{fs: fs, log: logger, maxAttempts: maxAttempts}
}

// Resolve walks the plan grouped by target directory and rewrites colliding
// targets with numeric suffixes before the extension, in scan order: the
// first entry to claim a name keeps it. Entries that cannot be resolved
// within the attempt budget are flagged ConflictUnresolved and deselected.
// The plan slice is mutated in place.
func (r *Resolver) Resolve(plan []*core.RenamePlanEntry) {
	byDir := make(map[string][]*core.RenamePlanEntry)
	for _, entry := range plan {
		if !entry.Selected {
			continue
		}
		dir := filepath.Dir(entry.Source.Path)
		byDir[dir] = append(byDir[dir], entry)
	}

	for dir, entries := range byDir {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
		r.resolveDir(dir, entries)
	}
}

func (r *Resolver) resolveDir(dir string, entries []*core.RenamePlanEntry) {
	// taken holds lowercased names already claimed in this directory:
	// on-disk entries that are not being renamed away, then each resolved
	// target as it is assigned.
	taken := make(map[string]struct{})

	sources := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		sources[strings.ToLower(entry.Source.Name)] = struct{}{}
	}

	if infos, err := r.fs.List(dir); err == nil {
		for _, info := range infos {
			lower := strings.ToLower(info.Name())
			if _, beingRenamed := sources[lower]; beingRenamed {
				continue
			}
			taken[lower] = struct{}{}
		}
	} else {
		r.log.Debug().Str("dir", dir).Err(err).Msg("could not list directory for conflict check")
	}

	for _, entry := range entries {
		target := entry.EffectiveTarget()
		lower := strings.ToLower(target)

		// A case-only self-rename never conflicts with its own source.
		if _, exists := taken[lower]; !exists {
			taken[lower] = struct{}{}
			if entry.Conflict == core.ConflictDuplicate {
				entry.Conflict = core.ConflictNone
			}
			continue
		}

		resolved, ok := r.suffixed(target, taken)
		if !ok {
			entry.Conflict = core.ConflictUnresolved
			entry.Selected = false
			r.log.Warn().Str("target", target).Str("dir", dir).
				Msg("conflict not resolvable within attempt budget")
			continue
		}

		entry.TargetName = resolved
		if entry.ManualName != "" {
			// The override itself collided; the suffixed form replaces it.
			entry.ManualName = resolved
		}
		entry.Conflict = core.ConflictDuplicate
		taken[strings.ToLower(resolved)] = struct{}{}
	}
}

// suffixed finds the first free "name_N" variant, keeping the extension in
// place: "a.txt" becomes "a_1.txt".
func (r *Resolver) suffixed(target string, taken map[string]struct{}) (string, bool) {
	stem, ext := splitExt(target)
	for n := 1; n <= r.maxAttempts; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, exists := taken[strings.ToLower(candidate)]; !exists {
			return candidate, true
		}
	}
	return "", false
}

func splitExt(name string) (stem, ext string) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}
