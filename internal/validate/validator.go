// Package validate checks candidate file names against OS naming
// constraints. Validation is pure; results are memoized in a bounded LRU
// cache since the same names recur across preview runs.
package validate

import (
	"fmt"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength    = 255
	maxPathLength    = 260
	maxSegmentLength = 255

	// warnRatio marks the point where a length warning fires even though
	// the hard limit has not been hit yet.
	warnRatio = 0.9
)

const forbiddenChars = `<>:"/\|?*`

// Windows device names are reserved regardless of extension or case.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Result carries blocking errors and advisory warnings for one candidate.
type Result struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the name can be used.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Validator memoizes validation results.
type Validator struct {
	cache *lru.Cache[string, Result]
}

// New builds a Validator with the given cache capacity. A non-positive
// capacity disables caching.
func New(cacheCapacity int) *Validator {
	v := &Validator{}
	if cacheCapacity > 0 {
		// lru.New only fails on a non-positive size.
		v.cache, _ = lru.New[string, Result](cacheCapacity)
	}
	return v
}

// Validate checks a single name (no separators expected).
func (v *Validator) Validate(name string) Result {
	return v.cached("name\x1f"+name, func() Result { return validateName(name) })
}

// ValidatePath checks a full path: overall length plus every segment.
func (v *Validator) ValidatePath(path string) Result {
	return v.cached("path\x1f"+path, func() Result { return validatePath(path) })
}

func (v *Validator) cached(key string, fn func() Result) Result {
	if v.cache == nil {
		return fn()
	}
	if hit, ok := v.cache.Get(key); ok {
		return hit
	}
	res := fn()
	v.cache.Add(key, res)
	return res
}

func validateName(name string) Result {
	var res Result

	if strings.TrimSpace(name) == "" {
		res.Errors = append(res.Errors, "name is empty or whitespace only")
		return res
	}

	if len(name) > maxNameLength {
		res.Errors = append(res.Errors, fmt.Sprintf("name length %d exceeds limit %d", len(name), maxNameLength))
	} else if float64(len(name)) >= warnRatio*float64(maxNameLength) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("name length %d approaches limit %d", len(name), maxNameLength))
	}

	for _, r := range name {
		if r < 32 || r == 127 {
			res.Errors = append(res.Errors, "name contains control characters")
			break
		}
		if strings.ContainsRune(forbiddenChars, r) {
			res.Errors = append(res.Errors, fmt.Sprintf("name contains forbidden character %q", r))
			break
		}
	}

	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		res.Errors = append(res.Errors, "name ends with a dot or space")
	}

	if isReserved(name) {
		res.Errors = append(res.Errors, fmt.Sprintf("name %q is a reserved device name", name))
	}

	if name == ".." || strings.Contains(name, "../") || strings.Contains(name, `..\`) {
		res.Errors = append(res.Errors, "name contains a path traversal sequence")
	}

	if norm.NFC.String(name) != name {
		res.Warnings = append(res.Warnings, "name is not in Unicode NFC form")
	}
	if hasMixedScripts(name) {
		res.Warnings = append(res.Warnings, "name mixes letters from multiple scripts")
	}

	return res
}

func validatePath(path string) Result {
	var res Result

	if len(path) > maxPathLength {
		res.Errors = append(res.Errors, fmt.Sprintf("path length %d exceeds limit %d", len(path), maxPathLength))
	} else if float64(len(path)) >= warnRatio*float64(maxPathLength) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("path length %d approaches limit %d", len(path), maxPathLength))
	}

	for _, segment := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			res.Errors = append(res.Errors, "path contains a traversal segment")
			continue
		}
		if len(segment) > maxSegmentLength {
			res.Errors = append(res.Errors, fmt.Sprintf("path segment %q exceeds limit %d", segment, maxSegmentLength))
		}
	}

	return res
}

func isReserved(name string) bool {
	base := name
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	_, ok := reservedNames[strings.ToUpper(strings.TrimSpace(base))]
	return ok
}

// hasMixedScripts reports whether letters from more than one of the major
// scripts appear together, a common sign of lookalike characters.
func hasMixedScripts(name string) bool {
	scripts := map[string]*unicode.RangeTable{
		"latin":    unicode.Latin,
		"cyrillic": unicode.Cyrillic,
		"greek":    unicode.Greek,
	}
	seen := ""
	for _, r := range name {
		if !unicode.IsLetter(r) {
			continue
		}
		for script, table := range scripts {
			if unicode.Is(table, r) {
				if seen == "" {
					seen = script
				} else if seen != script {
					return true
				}
				break
			}
		}
	}
	return false
}
