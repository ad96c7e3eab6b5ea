// Package textnorm canonicalises text scraped from HTML before it is stored.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/net/html"
)

var (
	typographic = strings.NewReplacer(
		"\u2018", "'",
		"\u2019", "'",
		"\u201c", `"`,
		"\u201d", `"`,
		"\u2013", "-",
		"\u2014", "-",
		"\u2026", "...",
		"\u00a0", " ",
	)

	// Literal two-character sequences left behind by JSON or JS string dumps.
	literalControls = strings.NewReplacer(`\n`, " ", `\r`, " ", `\t`, " ")

	escapeSequence = regexp.MustCompile(
		`\\u([dD][89abAB][0-9a-fA-F]{2})\\u([dD][c-fC-F][0-9a-fA-F]{2})|\\u([0-9a-fA-F]{4})|\\x([0-9a-fA-F]{2})`,
	)
)

// Normalize decodes HTML entities, maps typographic punctuation to ASCII,
// decodes backslash escapes when present, and collapses whitespace to single
// spaces. The result has no leading or trailing whitespace, and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// Each pass that changes s consumes at least one entity, escape, or
	// whitespace byte, so len(s)+1 passes always reach the fixed point.
	for budget := len(s) + 1; budget > 0; budget-- {
		next := pass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// All normalizes every element and drops the ones that end up empty.
func All(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func pass(s string) string {
	s = html.UnescapeString(s)
	s = typographic.Replace(s)
	if escapeSequence.MatchString(s) {
		s = escapeSequence.ReplaceAllStringFunc(s, decodeEscape)
		s = typographic.Replace(s)
	}
	s = literalControls.Replace(s)
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\u200b' || r == '\ufeff'
}

func decodeEscape(match string) string {
	parts := escapeSequence.FindStringSubmatch(match)
	switch {
	case parts[1] != "":
		hi, _ := strconv.ParseUint(parts[1], 16, 32)
		lo, _ := strconv.ParseUint(parts[2], 16, 32)
		return string(utf16.DecodeRune(rune(hi), rune(lo)))
	case parts[3] != "":
		code, _ := strconv.ParseUint(parts[3], 16, 32)
		r := rune(code)
		if utf16.IsSurrogate(r) {
			return string(unicode.ReplacementChar)
		}
		return string(r)
	default:
		code, _ := strconv.ParseUint(parts[4], 16, 32)
		return string(rune(code))
	}
}
