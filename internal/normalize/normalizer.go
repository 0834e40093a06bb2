// Package normalize implements the deterministic name-normalization
// pipeline. Normalization is a pure function of (name, rule set): identical
// inputs always produce identical output, which is what makes the result
// cacheable, and normalizing an already-normalized name changes nothing.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nametidy/nametidy/internal/config"
	"github.com/nametidy/nametidy/internal/core"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of normalizing one name. Warnings carry per-stage
// failures; normalization itself never fails.
type Result struct {
	Name     string
	Steps    []core.NormalizationStep
	Warnings []string
}

// Normalizer applies the rule pipeline, memoizing results per rule set.
type Normalizer struct {
	mu          sync.RWMutex
	rules       config.NormalizationRules
	hash        string
	datePattern *regexp.Regexp
	cache       *lru.Cache[string, Result]
	log         zerolog.Logger
}

// New builds a Normalizer memoizing up to cacheCapacity results per rule
// set. A non-positive capacity disables memoization.
func New(rules config.NormalizationRules, logger zerolog.Logger, cacheCapacity int) *Normalizer {
	n := &Normalizer{log: logger}
	if cacheCapacity > 0 {
		n.cache, _ = lru.New[string, Result](cacheCapacity)
	}
	n.setRulesLocked(rules)
	return n
}

// SetRules swaps the rule set and flushes the cache.
func (n *Normalizer) SetRules(rules config.NormalizationRules) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setRulesLocked(rules)
	if n.cache != nil {
		n.cache.Purge()
	}
}

// Flush drops every memoized result and keeps the rules. The resource
// governor calls this when the memory ceiling is breached.
func (n *Normalizer) Flush() {
	n.mu.RLock()
	cache := n.cache
	n.mu.RUnlock()
	if cache != nil {
		cache.Purge()
	}
}

// CacheLen returns the number of memoized results.
func (n *Normalizer) CacheLen() int {
	n.mu.RLock()
	cache := n.cache
	n.mu.RUnlock()
	if cache == nil {
		return 0
	}
	return cache.Len()
}

func (n *Normalizer) setRulesLocked(rules config.NormalizationRules) {
	n.rules = rules
	n.hash = rules.Hash()
	n.datePattern = nil
	if rules.ProtectedDatePattern != "" {
		re, err := regexp.Compile(rules.ProtectedDatePattern)
		if err != nil {
			n.log.Warn().Err(err).Str("pattern", rules.ProtectedDatePattern).
				Msg("invalid protected date pattern, date protection disabled")
		} else {
			n.datePattern = re
		}
	}
}

// RulesHash returns the digest of the active rule set.
func (n *Normalizer) RulesHash() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hash
}

// Normalize runs the pipeline over name. The fixed stage order is: custom
// replacements, diacritic folding, case conversion, special-character
// cleanup, whitespace collapse, length enforcement. A stage that fails
// leaves the name as it was before that stage and adds a warning.
func (n *Normalizer) Normalize(name string) Result {
	n.mu.RLock()
	rules := n.rules
	hash := n.hash
	datePattern := n.datePattern
	cache := n.cache
	n.mu.RUnlock()

	cacheKey := name + "\x1f" + hash
	if cache != nil {
		if hit, ok := cache.Get(cacheKey); ok {
			return hit
		}
	}

	// A leading dot marks a hidden file, not a separator; keep it intact.
	dotPrefix := ""
	rest := name
	for strings.HasPrefix(rest, ".") {
		dotPrefix += "."
		rest = rest[1:]
	}

	stem, ext := splitExtension(rest, rules)
	res := Result{}

	run := func(stage string, enabled bool, fn func(string) (string, error)) {
		if !enabled {
			return
		}
		out, err := fn(stem)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", stage, err))
			return
		}
		if out != stem {
			res.Steps = append(res.Steps, core.NormalizationStep{Stage: stage, Before: stem, After: out})
			stem = out
		}
	}

	run("custom-replacements", len(rules.CustomReplacements) > 0, func(s string) (string, error) {
		return applyReplacements(s, rules.CustomReplacements)
	})
	run("remove-diacritics", rules.RemoveDiacritics, foldDiacritics)
	run("case-conversion", rules.LowercaseConversion, func(s string) (string, error) {
		return strings.ToLower(s), nil
	})
	run("clean-special-chars", rules.CleanSpecialChars, func(s string) (string, error) {
		return cleanSpecialChars(s, datePattern)
	})
	run("normalize-whitespace", rules.NormalizeWhitespace, collapseWhitespace)
	run("enforce-length", rules.MaxFilenameLength > 0, func(s string) (string, error) {
		return enforceLength(s, ext, rules.MaxFilenameLength)
	})

	if rules.MinFilenameLength > 0 && len(stem) < rules.MinFilenameLength {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("enforce-length: name %q shorter than minimum %d", stem, rules.MinFilenameLength))
	}

	if rules.LowercaseExtensions {
		ext = strings.ToLower(ext)
	}
	res.Name = dotPrefix + stem + ext

	if cache != nil {
		cache.Add(cacheKey, res)
	}
	return res
}

// splitExtension separates a trailing extension from the stem when the
// rules preserve extensions and the suffix plausibly is one: at most five
// characters after the dot, letters and digits only, at least one letter.
func splitExtension(name string, rules config.NormalizationRules) (stem, ext string) {
	if !rules.PreserveExtensions {
		return name, ""
	}
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	candidate := name[idx+1:]
	if !looksLikeExtension(candidate) {
		return name, ""
	}
	return name[:idx], name[idx:]
}

func looksLikeExtension(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	hasLetter := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return hasLetter
}

func applyReplacements(s string, reps []config.Replacement) (string, error) {
	for _, rep := range reps {
		if rep.Find == "" {
			continue
		}
		s = strings.ReplaceAll(s, rep.Find, rep.Replace)
	}
	return s, nil
}

// foldDiacritics strips combining marks via Unicode decomposition, after
// substituting symbols and standalone letters decomposition cannot reduce.
func foldDiacritics(s string) (string, error) {
	for _, sub := range preFoldSubstitutions {
		s = strings.ReplaceAll(s, sub.from, sub.to)
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return "", err
	}
	return out, nil
}

// cleanSpecialChars maps symbols to words or spaces. Date-shaped substrings
// are swapped for placeholders first so their hyphens survive the pass.
func cleanSpecialChars(s string, datePattern *regexp.Regexp) (string, error) {
	var protected []string
	if datePattern != nil {
		s = datePattern.ReplaceAllStringFunc(s, func(m string) string {
			protected = append(protected, m)
			return fmt.Sprintf("\x00%d\x00", len(protected)-1)
		})
	}

	for _, rep := range specialCharReplacements {
		s = strings.ReplaceAll(s, rep.from, rep.to)
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\x00':
			b.WriteRune(r)
		case strings.ContainsRune(removedChars, r):
		case strings.ContainsRune(spacedChars, r) || r == '.':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	for i, date := range protected {
		s = strings.Replace(s, fmt.Sprintf("\x00%d\x00", i), date, 1)
	}
	if strings.ContainsRune(s, '\x00') {
		return "", fmt.Errorf("unrestored date placeholder")
	}
	return s, nil
}

func collapseWhitespace(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String()), nil
}

// enforceLength truncates the stem so stem+ext fits within max bytes. An
// empty result is a stage failure so the pre-truncation name survives.
func enforceLength(stem, ext string, max int) (string, error) {
	budget := max - len(ext)
	if budget < 1 {
		return "", fmt.Errorf("extension alone exceeds limit %d", max)
	}
	if len(stem) <= budget {
		return stem, nil
	}
	out := stem[:budget]
	// Do not cut a multi-byte rune in half.
	for len(out) > 0 && !utf8.ValidString(out) {
		out = out[:len(out)-1]
	}
	out = strings.TrimRight(out, " ")
	if out == "" {
		return "", fmt.Errorf("name empty after truncation to %d", max)
	}
	return out, nil
}
