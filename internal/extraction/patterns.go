package extraction

import (
	"regexp"
	"strings"
)

// Matcher is one label phrasing for a field. The first capture group of
// Pattern is the field value. Lines matching Exclude are skipped.
//
// When Next is set, Pattern only has to match the label line and the value
// is the first capture group of Next applied to the line that follows.
type Matcher struct {
	Pattern *regexp.Regexp
	Exclude *regexp.Regexp
	Next    *regexp.Regexp
}

// Match returns the trimmed captured value for line.
func (m Matcher) Match(line string) (string, bool) {
	return m.MatchLines(line, "")
}

// MatchLines returns the trimmed captured value for line, reading it from
// next for label-only matchers.
func (m Matcher) MatchLines(line, next string) (string, bool) {
	if m.Exclude != nil && m.Exclude.MatchString(line) {
		return "", false
	}
	if m.Next != nil {
		if next == "" || !m.Pattern.MatchString(line) {
			return "", false
		}
		return capture(m.Next, next)
	}
	return capture(m.Pattern, line)
}

func capture(re *regexp.Regexp, line string) (string, bool) {
	sub := re.FindStringSubmatch(line)
	if len(sub) < 2 {
		return "", false
	}
	value := strings.TrimSpace(sub[1])
	return value, value != ""
}

// Patterns maps each field to its label phrasings, most specific first.
type Patterns map[Field][]Matcher

// Value fragments shared by the label tables.
const (
	numberValue = `([A-Za-z]{0,5}-?\d[\w\-/]*)`
	dateValue   = `(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}|\d{1,2}\s+(?:de\s+)?\p{L}+\.?\s+(?:de\s+|del\s+)?\d{4})`
	amountValue = `((?:S/\.?\s?|US\$\s?|\$\s?|€\s?|£\s?)?-?\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?)`
	separator   = `\s*[:\-]?\s*`
	percentage  = `(?:\(?\d{1,2}(?:[.,]\d+)?\s*%\)?)?`
)

func label(phrases string, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + phrases + `)` + separator + value)
}

var (
	dueMarkers      = regexp.MustCompile(`(?i)venc|\bdue\b|expir|l[ií]mite`)
	subtotalMarkers = regexp.MustCompile(`(?i)sub\s*-?\s*total`)
)

// DefaultPatterns returns the Spanish/English business vocabulary.
func DefaultPatterns() Patterns {
	return Patterns{
		FieldNumber: {
			{Pattern: regexp.MustCompile(`(?i)\b(?:n[°º]|no\.?|nro\.?|n[uú]mero)\s*(?:de\s+)?factura\s*[:#]?\s*` + numberValue)},
			{Pattern: regexp.MustCompile(`(?i)\b(?:factura|invoice)\s*(?:number|n[uú]mero|num\.?|nro\.?|no\.?|n[°º]|#)?\s*[:#]?\s*` + numberValue)},
			{Pattern: regexp.MustCompile(`(?i)\binv\.?\s*(?:no\.?|#)\s*[:#]?\s*` + numberValue)},
			// FACTURA ELECTRONICA on one line, F001-00012345 on the next
			{
				Pattern: regexp.MustCompile(`(?i)^(?:factura|invoice)(?:\s+(?:de\s+venta\s+)?electr[oó]nica)?\s*:?$`),
				Next:    regexp.MustCompile(`(?i)^(?:n[°º]|no\.?|nro\.?|#)?\s*` + numberValue + `$`),
			},
		},
		FieldDate: {
			{Pattern: label(`fecha\s+de\s+emisi[oó]n`, dateValue)},
			{Pattern: label(`invoice\s+date|issue\s+date|date\s+of\s+issue`, dateValue)},
			{Pattern: label(`fecha`, dateValue), Exclude: dueMarkers},
			{Pattern: label(`date`, dateValue), Exclude: dueMarkers},
		},
		FieldDueDate: {
			{Pattern: label(`fecha\s+de\s+vencimiento`, dateValue)},
			{Pattern: label(`fecha\s+l[ií]mite(?:\s+de\s+pago)?`, dateValue)},
			{Pattern: label(`due\s+date|payment\s+due|date\s+due`, dateValue)},
			{Pattern: label(`vencimiento|vence|venc\.?|due`, dateValue)},
		},
		FieldTotal: {
			{Pattern: label(`importe\s+total|total\s+a\s+pagar|monto\s+total|grand\s+total|total\s+due|amount\s+due|total\s+amount`, amountValue)},
			{Pattern: label(`total`, amountValue), Exclude: subtotalMarkers},
		},
		FieldSubtotal: {
			{Pattern: label(`sub\s*-?\s*total`, amountValue)},
			{Pattern: label(`base\s+imponible|valor\s+de\s+venta|op\.?\s*gravadas?|importe\s+neto|net\s+amount`, amountValue)},
		},
		FieldTax: {
			{Pattern: label(`i\.?g\.?v\.?|i\.?v\.?a\.?`, `\s*`+percentage+separator+amountValue)},
			{Pattern: label(`impuestos?|sales\s+tax|tax(?:es)?|vat`, `\s*`+percentage+separator+amountValue)},
		},
	}
}
