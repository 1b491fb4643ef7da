package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "..."

// Highlighter cuts a snippet around the first query match and wraps
// matching words in the configured markers.
type Highlighter struct {
	Length int
	Prefix string
	Suffix string
}

// Snippet returns at most h.Length runes of content (plus ellipses) with
// query words highlighted. A zero Length disables snippets.
func (h Highlighter) Snippet(content, query string) string {
	if h.Length <= 0 || content == "" {
		return ""
	}
	queryTerms := snippetTerms(query)
	runes := []rune(content)

	start := 0
	if first := firstMatch(runes, queryTerms); first > 0 {
		start = max(0, first-h.Length/4)
	}
	end := min(len(runes), start+h.Length)
	if end-start < h.Length {
		start = max(0, end-h.Length)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(h.highlight(string(runes[start:end]), queryTerms))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

func (h Highlighter) highlight(text string, queryTerms []string) string {
	if len(queryTerms) == 0 {
		return text
	}
	var b strings.Builder
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		if !isWord(r) {
			b.WriteString(text[:size])
			text = text[size:]
			continue
		}
		end := strings.IndexFunc(text, func(r rune) bool { return !isWord(r) })
		if end < 0 {
			end = len(text)
		}
		word := text[:end]
		if matchesAny(strings.ToLower(word), queryTerms) {
			b.WriteString(h.Prefix)
			b.WriteString(word)
			b.WriteString(h.Suffix)
		} else {
			b.WriteString(word)
		}
		text = text[end:]
	}
	return b.String()
}

// firstMatch returns the rune offset of the first word matching a term, or
// -1.
func firstMatch(runes []rune, queryTerms []string) int {
	if len(queryTerms) == 0 {
		return -1
	}
	for i := 0; i < len(runes); {
		if !isWord(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isWord(runes[j]) {
			j++
		}
		if matchesAny(strings.ToLower(string(runes[i:j])), queryTerms) {
			return i
		}
		i = j
	}
	return -1
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func snippetTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool { return !isWord(r) })
	out := words[:0]
	for _, w := range words {
		out = append(out, stem(w))
	}
	return out
}

// stem strips common English suffixes so "tested" highlights "testing".
func stem(w string) string {
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if len(w)-len(suffix) >= 3 && strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}

func matchesAny(word string, stems []string) bool {
	for _, s := range stems {
		if word == s || (len(s) >= 3 && strings.HasPrefix(word, s)) {
			return true
		}
	}
	return false
}

// matchesTags reports whether every wanted key/value is present in tags.
func matchesTags(tags, wanted map[string]string) bool {
	for k, v := range wanted {
		got, ok := tags[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}
