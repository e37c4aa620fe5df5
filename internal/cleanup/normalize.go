// Package cleanup turns free-text deal titles into marketplace search keywords
// and recovers prices from listing text.
package cleanup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the rune limit for normalized and display names.
const MaxNameLength = 80

// fillerWords never help a marketplace search: connectives, promotional wording,
// packaging and temporal filler found in German deal titles. Entries are whole
// words; "+" is removed by the character whitelist.
var fillerWords = map[string]struct{}{
	"inkl": {}, "mit": {}, "und": {}, "plus": {},
	"gratis": {}, "kostenlos": {}, "free": {}, "bonus": {}, "geschenk": {}, "zugabeartikel": {},
	"box": {}, "karton": {}, "verpackung": {},
	"neu": {}, "original": {}, "für": {}, "von": {}, "ab": {}, "bis": {}, "statt": {}, "jetzt": {}, "nur": {},
}

var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s\-.,()€$£]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	hyphenRun       = regexp.MustCompile(`-(?:\s*-)+`)
	trailingHyphen  = regexp.MustCompile(`([^\s-])-(\s|$)`)
	leadingHyphen   = regexp.MustCompile(`(^|\s)-([^\s-])`)
	emptyParens     = regexp.MustCompile(`\(\s*\)`)
	orphanCommas    = regexp.MustCompile(`(^|\s)[,\s]*,`)
)

// Normalize strips filler words and punctuation noise from a product title so
// it can be used as a search query. The result is at most MaxNameLength runes
// and only contains word characters, whitespace, hyphens, periods, commas,
// parentheses and currency symbols. Empty input yields empty output.
func Normalize(raw string) string {
	// Disallowed characters become spaces so they still separate words.
	s := disallowedChars.ReplaceAllString(raw, " ")
	s = removeFillers(s)

	s = emptyParens.ReplaceAllString(s, " ")
	s = hyphenRun.ReplaceAllString(s, "-")
	s = trailingHyphen.ReplaceAllString(s, "${1}${2}")
	s = leadingHyphen.ReplaceAllString(s, "${1}${2}")
	s = orphanCommas.ReplaceAllString(s, "${1}")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = trimEdges(s)
	s = truncate(s, MaxNameLength)
	return trimEdges(s)
}

// removeFillers drops filler words matched at word boundaries. A word is a
// maximal run of letters, marks, digits and underscores, so fillers joined by
// hyphens or slashes are found too. Each removed word leaves a space.
func removeFillers(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); {
		if !isWordRune(rs[i]) {
			b.WriteRune(rs[i])
			i++
			continue
		}
		j := i
		for j < len(rs) && isWordRune(rs[j]) {
			j++
		}
		word := strings.ToLower(string(rs[i:j]))
		if _, ok := fillerWords[word]; ok {
			if word == "inkl" && j < len(rs) && rs[j] == '.' {
				j++
			}
			b.WriteByte(' ')
		} else {
			b.WriteString(string(rs[i:j]))
		}
		i = j
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// DisplayName tidies a model-provided product name for storage and display.
func DisplayName(raw string) string {
	s := whitespaceRun.ReplaceAllString(raw, " ")
	s = strings.Trim(s, " []*\"'`")
	s = truncate(s, MaxNameLength)
	return strings.TrimSpace(s)
}

func trimEdges(s string) string {
	return strings.Trim(s, " -.,")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
