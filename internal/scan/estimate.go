package scan

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// defaultSampleDirs is how many subdirectories per level the estimator
// inspects before extrapolating.
const defaultSampleDirs = 3

// estimateTTL is how long a computed estimate stays good. Repeated previews
// of the same root within the window skip the extra walk.
const estimateTTL = 30 * time.Second

// Estimate guesses the total entry count under root by counting the root
// level fully and sampling the first few subdirectories to extrapolate the
// rest. The result drives progress display only; it is never authoritative
// and a failed estimate simply returns what was counted so far.
func (s *Scanner) Estimate(ctx context.Context, root string, opts Options) int {
	key := estimateKey(root, opts)
	if hit, ok := s.estimates.Get(key); ok {
		return hit.(int)
	}
	total := s.estimateDir(ctx, root, opts, 1)
	if ctx.Err() == nil {
		s.estimates.Set(key, total, gocache.DefaultExpiration)
	}
	return total
}

func estimateKey(root string, opts Options) string {
	return fmt.Sprintf("%s\x1f%+v", root, opts)
}

func (s *Scanner) estimateDir(ctx context.Context, dir string, opts Options, depth int) int {
	if ctx.Err() != nil {
		return 0
	}

	entries, err := s.fs.List(dir)
	if err != nil {
		return 0
	}

	total := 0
	var subdirs []string
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && len(name) > 0 && name[0] == '.' {
			continue
		}
		total++
		if entry.IsDir() && opts.Recursive {
			if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
				continue
			}
			subdirs = append(subdirs, join(dir, name))
		}
	}

	if len(subdirs) == 0 {
		return total
	}

	sample := len(subdirs)
	if sample > defaultSampleDirs {
		sample = defaultSampleDirs
	}
	sampled := 0
	for _, sub := range subdirs[:sample] {
		sampled += s.estimateDir(ctx, sub, opts, depth+1)
	}

	// Extrapolate the unsampled subdirectories from the sampled mean.
	mean := sampled / sample
	total += sampled + mean*(len(subdirs)-sample)
	return total
}
