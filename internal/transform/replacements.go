package transform

import (
	"regexp"
	"sort"
	"strings"
)

// Replacement is one user-maintained wrong → right word pair.
type Replacement struct {
	From string
	To   string
}

// ParseReplacements reads a replacement note body. Each non-comment
// line has the form "wrong -> right", optionally prefixed with a
// Markdown list marker. Lines starting with '#' are comments. Later
// entries for the same word win.
func ParseReplacements(body string) []Replacement {
	byFrom := map[string]int{}
	var out []Replacement

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. )"))
		wrong, right, ok := strings.Cut(line, "->")
		if !ok {
			continue
		}
		wrong = strings.TrimSpace(wrong)
		right = strings.TrimSpace(right)
		if wrong == "" {
			continue
		}
		if i, seen := byFrom[wrong]; seen {
			out[i].To = right
			continue
		}
		byFrom[wrong] = len(out)
		out = append(out, Replacement{From: wrong, To: right})
	}
	return out
}

// ApplyReplacements substitutes whole-word matches only; substrings
// inside longer words are never altered. The combined pattern lists
// longer words first so overlapping entries resolve deterministically.
func ApplyReplacements(text string, repl []Replacement) string {
	if len(repl) == 0 {
		return text
	}

	sorted := make([]Replacement, len(repl))
	copy(sorted, repl)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i].From) != len(sorted[j].From) {
			return len(sorted[i].From) > len(sorted[j].From)
		}
		return sorted[i].From < sorted[j].From
	})

	alts := make([]string, len(sorted))
	to := make(map[string]string, len(sorted))
	for i, r := range sorted {
		alts[i] = regexp.QuoteMeta(r.From)
		to[r.From] = r.To
	}

	rx, err := regexp.Compile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
	if err != nil {
		return text
	}
	return rx.ReplaceAllStringFunc(text, func(word string) string {
		if right, ok := to[word]; ok {
			return right
		}
		return word
	})
}
