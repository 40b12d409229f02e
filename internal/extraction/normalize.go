package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// ConfusionWindow is the number of neighbor characters inspected on each side
// of an ambiguous glyph. The heuristic has no ground truth and will
// occasionally mis-correct.
const ConfusionWindow = 1

var (
	lineEndings = regexp.MustCompile(`\r\n?`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans raw recognized text: horizontal whitespace is collapsed,
// runs of blank lines become a single blank line, common glyph confusions
// are corrected and the result is trimmed.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := lineEndings.ReplaceAllString(raw, "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	text = fixConfusions(text)

	return strings.TrimSpace(text)
}

// collapseSpaces replaces every run of non-newline whitespace with a single
// space and trims the line.
func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// fixConfusions remaps '|' to 'l' next to lowercase letters and 'O' to '0'
// next to digits. Corrections can enable further corrections (a run of 'O's
// touching a digit), so passes repeat until nothing changes.
func fixConfusions(text string) string {
	runes := []rune(text)
	for changed := true; changed; {
		changed = false
		for i, r := range runes {
			switch r {
			case '|':
				if neighborIs(runes, i, unicode.IsLower) {
					runes[i] = 'l'
					changed = true
				}
			case 'O':
				if neighborIs(runes, i, unicode.IsDigit) {
					runes[i] = '0'
					changed = true
				}
			}
		}
	}
	return string(runes)
}

func neighborIs(runes []rune, i int, pred func(rune) bool) bool {
	for d := 1; d <= ConfusionWindow; d++ {
		if i-d >= 0 && pred(runes[i-d]) {
			return true
		}
		if i+d < len(runes) && pred(runes[i+d]) {
			return true
		}
	}
	return false
}
