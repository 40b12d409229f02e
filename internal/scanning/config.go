package scanning

// SegmentationMode tells the engine how to detect the page layout.
type SegmentationMode int

const (
	// SegmentAuto detects the layout automatically; used for generic text.
	SegmentAuto SegmentationMode = iota
	// SegmentSingleBlock treats the page as one uniform block of text.
	// Invoices are usually dense label/value blocks, so this is the invoice default.
	SegmentSingleBlock
)

func (m SegmentationMode) String() string {
	switch m {
	case SegmentAuto:
		return "auto"
	case SegmentSingleBlock:
		return "single-block"
	}
	return "unknown"
}

// ParseSegmentationMode converts a flag value into a SegmentationMode.
func ParseSegmentationMode(s string) (SegmentationMode, bool) {
	switch s {
	case "auto":
		return SegmentAuto, true
	case "single-block", "block":
		return SegmentSingleBlock, true
	}
	return SegmentAuto, false
}

// DefaultWhitelist is the business-document character set: digits, ASCII and
// accented letters, common punctuation and currency symbols.
const DefaultWhitelist = "0123456789" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"ÁÉÍÓÚÜÑáéíóúüñÀÈÌÒÙàèìòùÇç" +
	" .,;:/-_()#%&@'\"°º+*=" +
	"$€£¥"

// DefaultLanguages are the trained-data languages used unless configured.
var DefaultLanguages = []string{"spa", "eng"}

// Config holds the engine parameters for a run.
type Config struct {
	Languages        []string
	Whitelist        string
	SegmentationMode SegmentationMode
}

// Configure builds a Config, falling back to the defaults for empty values.
func Configure(languages []string, whitelist string, mode SegmentationMode) Config {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	if whitelist == "" {
		whitelist = DefaultWhitelist
	}
	return Config{
		Languages:        append([]string(nil), languages...),
		Whitelist:        whitelist,
		SegmentationMode: mode,
	}
}

// TextConfig is used for generic text extraction.
func TextConfig() Config {
	return Configure(nil, "", SegmentAuto)
}

// InvoiceConfig is used for invoice field extraction.
func InvoiceConfig() Config {
	return Configure(nil, "", SegmentSingleBlock)
}
