package extraction

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CompanyRules controls the vendor-name heuristic over the header zone.
type CompanyRules struct {
	// HeaderLines is the number of leading lines considered.
	HeaderLines int
	MinLength   int
	MaxLength   int
	// RelaxedMinLength applies to the fallback pass, which also drops the
	// uppercase-start requirement.
	RelaxedMinLength int
	Exclude          []*regexp.Regexp
}

// DefaultCompanyRules returns the rules used by NewExtractor.
func DefaultCompanyRules() CompanyRules {
	return CompanyRules{
		HeaderLines:      10,
		MinLength:        8,
		MaxLength:        60,
		RelaxedMinLength: 3,
		Exclude: []*regexp.Regexp{
			// addresses
			regexp.MustCompile(`(?i)\b(?:av|avda|avenida|jr|jir[oó]n|calle|cll|urb|mz|lote|km|street|st|road|rd|ave|avenue|blvd|suite|direcci[oó]n|address|domicilio)\b\.?`),
			// phone, email and web markers
			regexp.MustCompile(`(?i)\b(?:tel[eé]?f?(?:ono)?|phone|fax|cel(?:ular)?|m[oó]vil|e-?mail|correo|web)\b|www\.|https?://|@|\.(?:com|net|org|pe|es|mx)\b`),
			// document boilerplate
			regexp.MustCompile(`(?i)\b(?:factura|invoice|boleta|recibo|receipt|ruc|nit|rfc|cif|nif|fecha|date|total|subtotal|p[aá]gina|page|cliente|customer|bill\s+to|ship\s+to|se[ñn]or(?:es)?|original|copia|copy|electr[oó]nica)\b`),
		},
	}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPatterns replaces the label tables.
func WithPatterns(p Patterns) Option {
	return func(e *Extractor) { e.patterns = p }
}

// WithCompanyRules replaces the vendor-name heuristic rules.
func WithCompanyRules(r CompanyRules) Option {
	return func(e *Extractor) { e.company = r }
}

// Extractor infers invoice fields from normalized text.
type Extractor struct {
	patterns Patterns
	company  CompanyRules
}

// NewExtractor creates an Extractor with the default vocabulary.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		patterns: DefaultPatterns(),
		company:  DefaultCompanyRules(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Infer runs the default Extractor over normalized text.
func Infer(normalized string) Fields {
	return defaultExtractor.Infer(normalized)
}

// Extract normalizes raw recognized text and infers its fields.
func (e *Extractor) Extract(raw string) Fields {
	return e.Infer(Normalize(raw))
}

var itemLine = regexp.MustCompile(`^(\d{1,4}(?:[.,]\d+)?)\s+(\p{L}[\p{L}\p{N} .,&'/\-]*?)\s+` + amountValue + `$`)

// Infer scans lines top to bottom. Each field locks on its first match and is
// never revisited, so labeled header values win over similar text further down.
func (e *Extractor) Infer(normalized string) Fields {
	fields := Fields{Items: []LineItem{}}
	lines := splitLines(normalized)

	filled := make(map[Field]bool, len(labeledFields))
	for i, line := range lines {
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		matched := false
		for _, field := range labeledFields {
			if filled[field] {
				continue
			}
			for _, m := range e.patterns[field] {
				if value, ok := m.MatchLines(line, next); ok {
					fields.set(field, value)
					filled[field] = true
					matched = true
					break
				}
			}
		}
		if matched {
			continue
		}
		if sub := itemLine.FindStringSubmatch(line); sub != nil {
			fields.Items = append(fields.Items, LineItem{
				Quantity:    sub[1],
				Description: strings.TrimSpace(sub[2]),
				Amount:      sub[3],
			})
		}
	}

	fields.Company = e.inferCompany(lines)
	return fields
}

func (e *Extractor) inferCompany(lines []string) string {
	zone := lines
	if n := e.company.HeaderLines; n > 0 && len(zone) > n {
		zone = zone[:n]
	}
	for _, line := range zone {
		if e.qualifies(line, e.company.MinLength, true) {
			return line
		}
	}
	for _, line := range zone {
		if e.qualifies(line, e.company.RelaxedMinLength, false) {
			return line
		}
	}
	return ""
}

func (e *Extractor) qualifies(line string, minLen int, upperStart bool) bool {
	n := utf8.RuneCountInString(line)
	if n < minLen || (e.company.MaxLength > 0 && n > e.company.MaxLength) {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if upperStart && !unicode.IsUpper(first) {
		return false
	}
	if !unicode.IsLetter(first) {
		return false
	}
	for _, r := range line {
		if !unicode.IsLetter(r) && r != ' ' && !strings.ContainsRune(".,&'-", r) {
			return false
		}
	}
	for _, ex := range e.company.Exclude {
		if ex.MatchString(line) {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
