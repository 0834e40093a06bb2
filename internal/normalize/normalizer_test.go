package normalize

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nametidy/nametidy/internal/config"
	"github.com/nametidy/nametidy/internal/logging"
)

func newTestNormalizer(rules config.NormalizationRules) *Normalizer {
	return New(rules, logging.Nop(), 1024)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"vietnamese_diacritics", "Tên File Tiếng Việt.doc", "ten file tieng viet.doc"},
		{"already_clean", "report.txt", "report.txt"},
		{"mixed_case", "My Document.PDF", "my document.pdf"},
		{"ampersand_expansion", "Cats & Dogs.jpg", "cats and dogs.jpg"},
		{"plus_expansion", "a+b.txt", "a plus b.txt"},
		{"underscores_to_spaces", "my_great_file.txt", "my great file.txt"},
		{"whitespace_collapse", "  too   many    spaces  .txt", "too many spaces.txt"},
		{"quotes_removed", `John's "notes".md`, "johns notes.md"},
		{"german_eszett", "Straße.txt", "strasse.txt"},
		{"danish_o", "København.txt", "kobenhavn.txt"},
		{"currency_symbols", "price €50.txt", "price eur50.txt"},
		{"interior_dots_spaced", "v1.2.release.notes.txt", "v1 2 release notes.txt"},
		{"no_extension", "README", "readme"},
		{"tabs_and_newlines", "a\tb\nc.txt", "a b c.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := newTestNormalizer(config.DefaultRules())
			got := n.Normalize(tc.input)
			if got.Name != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.input, got.Name, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Tên File Tiếng Việt.doc",
		"Cats & Dogs.jpg",
		"report 15-03-2024 final.pdf",
		".hidden File.TXT",
		"已经是中文.txt",
	}
	n := newTestNormalizer(config.DefaultRules())
	for _, input := range inputs {
		first := n.Normalize(input)
		second := n.Normalize(first.Name)
		if second.Name != first.Name {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", input, second.Name, first.Name)
		}
		if len(second.Steps) != 0 {
			t.Errorf("Normalize(%q) second pass recorded %d steps, want 0", first.Name, len(second.Steps))
		}
	}
}

func TestNormalizeNoChangeRecordsNoSteps(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())
	got := n.Normalize("already clean.txt")
	if got.Name != "already clean.txt" {
		t.Errorf("Normalize(already clean.txt) = %q, want unchanged", got.Name)
	}
	if len(got.Steps) != 0 {
		t.Errorf("Normalize recorded %d steps for an unchanged name, want 0", len(got.Steps))
	}
}

func TestNormalizeDateProtection(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())

	got := n.Normalize("Invoice 15-03-2024 Final.pdf")
	want := "invoice 15-03-2024 final.pdf"
	if got.Name != want {
		t.Errorf("Normalize() = %q, want %q", got.Name, want)
	}

	// Hyphens outside the date shape are still spaced.
	got = n.Normalize("some-dashed-name.txt")
	if got.Name != "some dashed name.txt" {
		t.Errorf("Normalize(some-dashed-name.txt) = %q, want %q", got.Name, "some dashed name.txt")
	}
}

func TestNormalizeDateProtectionDisabled(t *testing.T) {
	rules := config.DefaultRules()
	rules.ProtectedDatePattern = ""
	n := newTestNormalizer(rules)

	got := n.Normalize("Invoice 15-03-2024.pdf")
	want := "invoice 15 03 2024.pdf"
	if got.Name != want {
		t.Errorf("Normalize() = %q, want %q", got.Name, want)
	}
}

func TestNormalizeInvalidDatePattern(t *testing.T) {
	rules := config.DefaultRules()
	rules.ProtectedDatePattern = `\b(\d{2}-`
	n := newTestNormalizer(rules)

	// Invalid pattern disables protection rather than failing the pipeline.
	got := n.Normalize("report 15-03-2024.pdf")
	if got.Name != "report 15 03 2024.pdf" {
		t.Errorf("Normalize() = %q, want %q", got.Name, "report 15 03 2024.pdf")
	}
}

func TestNormalizeHiddenFile(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())
	got := n.Normalize(".Hidden Config.TXT")
	want := ".hidden config.txt"
	if got.Name != want {
		t.Errorf("Normalize(.Hidden Config.TXT) = %q, want %q", got.Name, want)
	}
}

func TestNormalizeExtensionHeuristic(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// Real extensions survive special-char cleanup.
		{"Archive.tar", "archive.tar"},
		{"Photo.jpeg", "photo.jpeg"},
		// A long or non-alphanumeric suffix is not an extension.
		{"backup.2024-archive", "backup 2024 archive"},
		{"notes.longsuffix", "notes longsuffix"},
		// Digits-only suffix needs at least one letter to count.
		{"rollover.123", "rollover 123"},
		{"video.mp4", "video.mp4"},
	}

	n := newTestNormalizer(config.DefaultRules())
	for _, tc := range tests {
		got := n.Normalize(tc.input)
		if got.Name != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.input, got.Name, tc.want)
		}
	}
}

func TestNormalizeCustomReplacements(t *testing.T) {
	rules := config.DefaultRules()
	rules.CustomReplacements = []config.Replacement{
		{Find: "DRAFT", Replace: "final"},
		{Find: "copy of ", Replace: ""},
	}
	n := newTestNormalizer(rules)

	got := n.Normalize("copy of Report DRAFT.docx")
	want := "report final.docx"
	if got.Name != want {
		t.Errorf("Normalize() = %q, want %q", got.Name, want)
	}
	if len(got.Steps) == 0 || got.Steps[0].Stage != "custom-replacements" {
		t.Errorf("Normalize() steps = %v, want custom-replacements first", got.Steps)
	}
}

func TestNormalizeStepsRecordStageOrder(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())
	got := n.Normalize("Tên & File.TXT")

	var stages []string
	for _, s := range got.Steps {
		stages = append(stages, s.Stage)
	}
	want := []string{"remove-diacritics", "case-conversion", "clean-special-chars", "normalize-whitespace"}
	if diff := cmp.Diff(want, stages); diff != "" {
		t.Errorf("Normalize() stage order mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeLengthEnforcement(t *testing.T) {
	rules := config.DefaultRules()
	rules.MaxFilenameLength = 20
	n := newTestNormalizer(rules)

	got := n.Normalize(strings.Repeat("a", 40) + ".txt")
	if len(got.Name) > 20 {
		t.Errorf("Normalize() produced %d bytes, want <= 20", len(got.Name))
	}
	if !strings.HasSuffix(got.Name, ".txt") {
		t.Errorf("Normalize() = %q, want .txt extension preserved", got.Name)
	}
}

func TestNormalizeLengthEnforcementMultiByte(t *testing.T) {
	rules := config.DefaultRules()
	rules.RemoveDiacritics = false
	rules.MaxFilenameLength = 10
	n := newTestNormalizer(rules)

	// Truncation must not split a multi-byte rune.
	got := n.Normalize(strings.Repeat("ằ", 20) + ".txt")
	for _, r := range got.Name {
		if r == '�' {
			t.Errorf("Normalize() = %q, contains replacement rune", got.Name)
		}
	}
}

func TestNormalizeLengthStageFailureKeepsName(t *testing.T) {
	rules := config.DefaultRules()
	rules.MaxFilenameLength = 3
	n := newTestNormalizer(rules)

	// The extension alone exceeds the limit; the stage fails with a warning
	// and the pre-truncation name survives.
	got := n.Normalize("Some Name.docx")
	if got.Name != "some name.docx" {
		t.Errorf("Normalize() = %q, want %q", got.Name, "some name.docx")
	}
	if len(got.Warnings) == 0 {
		t.Error("Normalize() warnings empty, want length stage failure recorded")
	}
}

func TestNormalizeMinLengthWarning(t *testing.T) {
	rules := config.DefaultRules()
	rules.MinFilenameLength = 5
	n := newTestNormalizer(rules)

	got := n.Normalize("ab.txt")
	if len(got.Warnings) == 0 {
		t.Error("Normalize() warnings empty, want minimum length warning")
	}
}

func TestSetRulesFlushesCache(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())

	first := n.Normalize("Some File.TXT")
	if first.Name != "some file.txt" {
		t.Fatalf("Normalize() = %q, want %q", first.Name, "some file.txt")
	}

	rules := config.DefaultRules()
	rules.LowercaseConversion = false
	n.SetRules(rules)

	second := n.Normalize("Some File.TXT")
	if second.Name != "Some File.txt" {
		t.Errorf("Normalize() after SetRules = %q, want %q", second.Name, "Some File.txt")
	}
}

func TestCacheCapacityBounded(t *testing.T) {
	n := New(config.DefaultRules(), logging.Nop(), 2)

	n.Normalize("First File.txt")
	n.Normalize("Second File.txt")
	n.Normalize("Third File.txt")

	if got := n.CacheLen(); got != 2 {
		t.Errorf("CacheLen() = %d, want 2 at capacity", got)
	}
}

func TestFlushDropsMemoizedResults(t *testing.T) {
	n := newTestNormalizer(config.DefaultRules())

	n.Normalize("Some File.TXT")
	if n.CacheLen() == 0 {
		t.Fatal("CacheLen() = 0 after a miss, want memoized result")
	}

	n.Flush()
	if got := n.CacheLen(); got != 0 {
		t.Errorf("CacheLen() = %d after Flush, want 0", got)
	}

	// Flushing loses memoized results, never the rules.
	if got := n.Normalize("Some File.TXT").Name; got != "some file.txt" {
		t.Errorf("Normalize() after Flush = %q, want %q", got, "some file.txt")
	}
}

func TestRulesHashChangesWithRules(t *testing.T) {
	a := config.DefaultRules()
	b := config.DefaultRules()
	b.RemoveDiacritics = false

	na := newTestNormalizer(a)
	nb := newTestNormalizer(b)
	if na.RulesHash() == nb.RulesHash() {
		t.Error("RulesHash() identical for different rule sets")
	}
}

func TestLooksLikeExtension(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"txt", true},
		{"mp4", true},
		{"jpeg", true},
		{"a", true},
		{"123", false},
		{"toolong", false},
		{"", false},
		{"t-r", false},
	}
	for _, tc := range tests {
		if got := looksLikeExtension(tc.in); got != tc.want {
			t.Errorf("looksLikeExtension(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
