package normalize

// Substitution tables used by the normalization pipeline.
//
// preFoldSubstitutions run before diacritic folding: symbols that have a
// conventional ASCII spelling, plus letters the Unicode decomposition pass
// cannot reduce (they are standalone letters, not base+combining-mark
// sequences).
var preFoldSubstitutions = []struct {
	from string
	to   string
}{
	{"€", "eur"},
	{"£", "gbp"},
	{"$", "usd"},
	{"¥", "yen"},
	{"₫", "dong"},
	{"©", "c"},
	{"®", "r"},
	{"™", "tm"},
	{"°", ""},
	{"đ", "d"},
	{"Đ", "D"},
	{"ø", "o"},
	{"Ø", "O"},
	{"ł", "l"},
	{"Ł", "L"},
	{"æ", "ae"},
	{"Æ", "AE"},
	{"œ", "oe"},
	{"Œ", "OE"},
	{"ß", "ss"},
	{"þ", "th"},
	{"Þ", "Th"},
}

// specialCharReplacements map symbols to words during the cleanup stage.
// Symbols absent from this table are replaced by a space and later collapsed.
var specialCharReplacements = []struct {
	from string
	to   string
}{
	{"&", " and "},
	{"+", " plus "},
	{"@", " at "},
	{"%", " pct "},
	{"=", " eq "},
}

// removedChars are stripped outright rather than spaced, so that quoted or
// parenthesized words join their neighbors the way a human would write them.
const removedChars = `'"’‘´` + "`"

// spacedChars become a single space; hyphens are included here and date
// shaped substrings are shielded from this via placeholders.
const spacedChars = `_-–—~^*#!?,;:()[]{}<>|/\` + "\t"
