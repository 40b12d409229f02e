package extraction

// Field names a category of structured invoice data.
type Field string

const (
	FieldNumber   Field = "number"
	FieldDate     Field = "date"
	FieldDueDate  Field = "dueDate"
	FieldTotal    Field = "total"
	FieldSubtotal Field = "subtotal"
	FieldTax      Field = "tax"
)

// labeledFields is the scan order used when a line matches several categories.
var labeledFields = []Field{
	FieldNumber,
	FieldDueDate,
	FieldDate,
	FieldSubtotal,
	FieldTax,
	FieldTotal,
}

// Fields contains the structured data inferred from an invoice.
// An empty string means the field was not found.
type Fields struct {
	Number   string     `json:"number,omitempty"`
	Date     string     `json:"date,omitempty"`
	DueDate  string     `json:"dueDate,omitempty"`
	Total    string     `json:"total,omitempty"`
	Subtotal string     `json:"subtotal,omitempty"`
	Tax      string     `json:"tax,omitempty"`
	Company  string     `json:"company,omitempty"`
	Items    []LineItem `json:"items"`
}

// LineItem is a quantity/description/amount row from the invoice body.
type LineItem struct {
	Quantity    string `json:"quantity"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// Get returns the value stored for a labeled field.
func (f *Fields) Get(field Field) string {
	if p := f.slot(field); p != nil {
		return *p
	}
	return ""
}

func (f *Fields) set(field Field, value string) {
	if p := f.slot(field); p != nil {
		*p = value
	}
}

func (f *Fields) slot(field Field) *string {
	switch field {
	case FieldNumber:
		return &f.Number
	case FieldDate:
		return &f.Date
	case FieldDueDate:
		return &f.DueDate
	case FieldTotal:
		return &f.Total
	case FieldSubtotal:
		return &f.Subtotal
	case FieldTax:
		return &f.Tax
	}
	return nil
}
