package vault

import (
	"strings"
	"unicode"
)

const maxTitleLen = 80

// asciiFold maps common accented letters to plain ASCII so derived
// titles stay filesystem- and deep-link-friendly.
var asciiFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n", "ß", "ss",
	"Á", "A", "À", "A", "Â", "A", "Ä", "A", "Ã", "A", "Å", "A",
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"Í", "I", "Ì", "I", "Î", "I", "Ï", "I",
	"Ó", "O", "Ò", "O", "Ô", "O", "Ö", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Û", "U", "Ü", "U",
	"Ç", "C", "Ñ", "N",
)

// SanitizeTitle turns free text into a safe note title: accents folded,
// characters outside [A-Za-z0-9 _-] dropped, whitespace collapsed, and
// length capped. An empty result becomes "Untitled".
func SanitizeTitle(s string) string {
	s = asciiFold.Replace(s)

	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}

	title := strings.Join(strings.Fields(sb.String()), " ")
	if len(title) > maxTitleLen {
		title = strings.TrimSpace(title[:maxTitleLen])
	}
	if title == "" {
		return "Untitled"
	}
	return title
}

// DeriveTitle picks a title from the first non-blank content line,
// stripping markdown heading and list prefixes before sanitizing.
func DeriveTitle(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#")
		line = strings.TrimPrefix(strings.TrimSpace(line), "- [ ]")
		line = strings.TrimPrefix(line, "- [x]")
		line = strings.TrimPrefix(line, "-")
		return SanitizeTitle(strings.TrimSpace(line))
	}
	return "Untitled"
}
