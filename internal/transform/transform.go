// Package transform turns raw recognized text into well-formed Markdown.
//
// The pipeline is deterministic: identical input and options produce
// byte-identical output. Nothing in here reads the clock, the
// environment, or any other external state.
package transform

import (
	"regexp"
	"strings"
	"unicode"
)

// Options control how aggressively the transformer rewrites text.
type Options struct {
	// AggressiveCleanup merges hard-wrapped lines whenever the block
	// rules allow. The conservative default refuses merges that look
	// like they would corrupt short structured lines.
	AggressiveCleanup bool
}

// Decorative bullet glyphs the recognizer emits for handwritten bullets.
const bulletChars = `•–—*\-+·►`

var (
	bulletStartRx   = regexp.MustCompile(`^\s*(?:[` + bulletChars + `]|\[[ xX]\])\s+`)
	numberedStartRx = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	headingStartRx  = regexp.MustCompile(`^\s*#{1,6}\s+`)
	nestStartRx     = regexp.MustCompile(`^\s*-{1,6}\s*\S`)
	taskishStartRx  = regexp.MustCompile(`^\s*(?:\(\]|I\]|1\]|l\]|\|\]|☐|☑|☒|\[×\])`)
	hyphenWrapRx    = regexp.MustCompile(`[^\s-]-$`)

	nestRx     = regexp.MustCompile(`^(\s*)(-{1,6})\s*(\S.*)$`)
	taskRx     = regexp.MustCompile(`^\s*\[( |x|X)\]\s+(.*)$`)
	bulletRx   = regexp.MustCompile(`^(\s*)(?:[` + bulletChars + `]|\[[ xX]\])\s+`)
	numberedRx = regexp.MustCompile(`^(\s*)(\d+)[.)]\s+`)
	midNestRx  = regexp.MustCompile(`^(\s*)(.*\S)\s+-\s+(-{1,6})\s*(.*)$`)
	nestedRx   = regexp.MustCompile(`^(-{1,6})\s*(\S.*)$`)
	ruleRx     = regexp.MustCompile(`^\s*-{3,}\s*$`)

	headingFixRx    = regexp.MustCompile(`^(\s*)(#{1,6})\s*(\S.*)$`)
	inlineHeadingRx = regexp.MustCompile(`(#{1,6})\s*(\S.*)$`)
)

// Checkbox glyph variants and bracket mis-recognitions, normalized to
// ASCII so the task rules can see them.
var checkboxNormalizer = strings.NewReplacer(
	"☐", "[ ]",
	"☑", "[x]",
	"☒", "[x]",
	"[×]", "[x]",
	"［", "[",
	"【", "[",
	"〖", "[",
	"『", "[",
	"］", "]",
	"】", "]",
	"〗", "]",
	"』", "]",
	"(]", "[ ]",
	"I]", "[ ]",
	"1]", "[ ]",
	"l]", "[ ]",
	"|]", "[ ]",
)

// ToMarkdown runs the full cleanup pipeline over raw recognized text.
// Steps, in order: line unwrap, heading repair, bullet/checkbox/numbered
// normalization, capitalization. Output always ends with exactly one
// trailing newline.
func ToMarkdown(raw string, opts Options) string {
	lines := unwrap(raw, opts.AggressiveCleanup)
	lines = repairHeadings(lines)
	lines = normalizeLines(lines)
	lines = trimBlankEdges(lines)
	return strings.Join(lines, "\n") + "\n"
}

// trimBlankEdges drops leading and trailing blank lines. Interior blanks
// and line indentation stay as they are; a nested bullet on the first
// line keeps its indent.
func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

// unwrap merges lines the recognizer hard-wrapped back into their
// logical paragraph. A line starts a new block when it is blank or
// begins a bullet, checkbox, numbered item, nesting marker, or heading.
func unwrap(raw string, aggressive bool) []string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	in := strings.Split(text, "\n")

	out := make([]string, 0, len(in))
	for i, line := range in {
		if i == 0 {
			out = append(out, line)
			continue
		}

		prev := out[len(out)-1]
		prevBlank := strings.TrimSpace(prev) == ""
		currBlank := strings.TrimSpace(line) == ""

		newBlock := currBlank ||
			bulletStartRx.MatchString(line) ||
			numberedStartRx.MatchString(line) ||
			headingStartRx.MatchString(line) ||
			nestStartRx.MatchString(line) ||
			taskishStartRx.MatchString(line)

		// Two trailing spaces are a deliberate Markdown hard break.
		prevHard := prevBlank || strings.HasSuffix(prev, "  ")
		prevHyphen := hyphenWrapRx.MatchString(prev)

		if prevHard || newBlock {
			out = append(out, line)
			continue
		}
		if !aggressive && !prevHyphen && !mergeableConservative(line) {
			out = append(out, line)
			continue
		}
		if prevHyphen {
			out[len(out)-1] = prev[:len(prev)-1] + strings.TrimLeft(line, " \t")
		} else {
			out[len(out)-1] = strings.TrimRight(prev, " \t") + " " + strings.TrimLeft(line, " \t")
		}
	}
	return out
}

// mergeableConservative reports whether a continuation line is safe to
// merge in conservative mode: it must begin with a lowercase letter,
// the usual signature of a wrapped sentence. Short structured lines
// (names, titles, codes) tend to start uppercase and are left alone.
func mergeableConservative(line string) bool {
	for _, r := range strings.TrimLeft(line, " \t") {
		if unicode.IsLetter(r) {
			return unicode.IsLower(r)
		}
		return false
	}
	return false
}

// normalizeLines rewrites bullets, checkboxes, and numbered items into
// canonical Markdown list syntax. Nesting depth equals the count of
// leading '-' characters; each extra level indents by two spaces.
func normalizeLines(lines []string) []string {
	final := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || ruleRx.MatchString(line) {
			final = append(final, strings.TrimRight(line, " \t"))
			continue
		}

		// Headings arrive already repaired; their titles still want the
		// same capitalization as every other content line.
		if headingStartRx.MatchString(line) {
			final = append(final, capitalizeFirst(strings.TrimRight(line, " \t")))
			continue
		}

		line = checkboxNormalizer.Replace(line)

		// "- Question? - -Answer" splits into a prefix line plus a
		// nested bullet for the trailing part.
		if m := midNestRx.FindStringSubmatch(line); m != nil {
			indent, prefix, hyphens, content := m[1], m[2], m[3], m[4]
			final = append(final, indent+strings.TrimRight(prefix, " \t"))
			level := 1 + len(hyphens)
			final = append(final, indent+nestIndent(level)+"- "+capitalizeFirst(strings.TrimRight(content, " \t")))
			continue
		}

		// Checkbox lines lose their leading indent.
		if m := taskRx.FindStringSubmatch(line); m != nil {
			mark := " "
			if strings.EqualFold(m[1], "x") {
				mark = "x"
			}
			final = append(final, "- ["+mark+"] "+capitalizeFirst(strings.TrimRight(m[2], " \t")))
			continue
		}

		// Explicit nesting markers: -, --, --- at line start.
		if m := nestRx.FindStringSubmatch(line); m != nil {
			indent, hyphens, content := m[1], m[2], m[3]
			// "- -- text" means one implied level plus the extra run.
			if n := nestedRx.FindStringSubmatch(content); n != nil && hyphens == "-" {
				level := 1 + len(n[1])
				final = append(final, indent+nestIndent(level)+"- "+capitalizeFirst(strings.TrimRight(n[2], " \t")))
				continue
			}
			level := len(hyphens)
			final = append(final, indent+nestIndent(level)+"- "+capitalizeFirst(strings.TrimRight(content, " \t")))
			continue
		}

		// Decorative bullet glyphs.
		if m := bulletRx.FindStringSubmatch(line); m != nil {
			indent := m[1]
			content := strings.TrimRight(bulletRx.ReplaceAllString(line, ""), " \t")
			if n := nestedRx.FindStringSubmatch(content); n != nil {
				level := len(n[1])
				final = append(final, indent+nestIndent(level)+"- "+capitalizeFirst(strings.TrimRight(n[2], " \t")))
				continue
			}
			final = append(final, indent+"- "+capitalizeFirst(content))
			continue
		}

		if m := numberedRx.FindStringSubmatch(line); m != nil {
			indent, num := m[1], m[2]
			content := strings.TrimRight(numberedRx.ReplaceAllString(line, ""), " \t")
			final = append(final, indent+num+". "+capitalizeFirst(content))
			continue
		}

		final = append(final, capitalizeFirst(strings.TrimRight(line, " \t")))
	}
	return final
}

func nestIndent(level int) string {
	if level <= 1 {
		return ""
	}
	return strings.Repeat("  ", level-1)
}

// repairHeadings fixes "##Title" spacing and splits headings that the
// recognizer glued onto the end of another line.
func repairHeadings(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	for _, raw := range lines {
		if m := headingFixRx.FindStringSubmatch(raw); m != nil {
			indent, hashes, title := m[1], m[2], m[3]
			if strings.HasPrefix(strings.TrimLeft(raw, " \t"), hashes) {
				cleaned = append(cleaned, indent+hashes+" "+strings.TrimSpace(title))
				continue
			}
		}

		if m := inlineHeadingRx.FindStringSubmatch(raw); m != nil {
			hashPos := strings.LastIndex(raw, m[1])
			if hashPos > 0 {
				prefix := raw[:hashPos]
				heading := raw[hashPos:]
				if strings.TrimSpace(prefix) != "" {
					if h := headingFixRx.FindStringSubmatch(heading); h != nil {
						heading = h[2] + " " + strings.TrimSpace(h[3])
					} else {
						heading = strings.TrimSpace(heading)
					}
					cleaned = append(cleaned, strings.TrimRight(prefix, " \t"), heading)
					continue
				}
			}
		}

		cleaned = append(cleaned, raw)
	}
	return cleaned
}

// capitalizeFirst upper-cases the first alphabetic rune, leaving the
// rest of the string untouched.
func capitalizeFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			up := unicode.ToUpper(r)
			if up == r {
				return s
			}
			return s[:i] + string(up) + s[i+len(string(r)):]
		}
	}
	return s
}
