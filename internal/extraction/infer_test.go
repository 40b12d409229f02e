package extraction

import (
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Extractor", func() {
	var (
		extractor *Extractor
		text      string
		fields    Fields
	)

	BeforeEach(func() {
		extractor = NewExtractor()
	})

	JustBeforeEach(func() {
		fields = extractor.Infer(text)
	})

	When("the document has labeled header values", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"FACTURA: A-00123",
				"FECHA: 12/05/2024",
				"TOTAL: $450.00",
			}, "\n")
		})

		It("extracts the invoice number", func() {
			Expect(fields.Number).To(Equal("A-00123"))
		})

		It("extracts the date", func() {
			Expect(fields.Date).To(Equal("12/05/2024"))
		})

		It("extracts the total", func() {
			Expect(fields.Total).To(Equal("$450.00"))
		})

		It("leaves tax and due date unset", func() {
			Expect(fields.Tax).To(BeEmpty())
			Expect(fields.DueDate).To(BeEmpty())
			Expect(fields.Subtotal).To(BeEmpty())
		})

		It("returns an empty item list", func() {
			Expect(fields.Items).NotTo(BeNil())
			Expect(fields.Items).To(BeEmpty())
		})
	})

	When("a later line item resembles a labeled value", func() {
		BeforeEach(func() {
			text = "TOTAL: $450.00\nproducto total 20.00"
		})

		It("keeps the first match", func() {
			Expect(fields.Total).To(Equal("$450.00"))
		})
	})

	When("the number sits on the line after its label", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"R.U.C. 20100070970",
				"FACTURA ELECTRONICA",
				"F001-00012345",
				"FECHA: 12/05/2024",
			}, "\n")
		})

		It("reads the number from the following line", func() {
			Expect(fields.Number).To(Equal("F001-00012345"))
			Expect(fields.Date).To(Equal("12/05/2024"))
		})
	})

	When("the label is the last line", func() {
		BeforeEach(func() {
			text = "TOTAL: 10.00\nINVOICE"
		})

		It("leaves the number unset", func() {
			Expect(fields.Number).To(BeEmpty())
		})
	})

	When("a number follows a label that already carried one", func() {
		BeforeEach(func() {
			text = "FACTURA: A-00123\nFACTURA ELECTRONICA\nF001-00012345"
		})

		It("keeps the first match", func() {
			Expect(fields.Number).To(Equal("A-00123"))
		})
	})

	When("the document is a full Spanish invoice", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"ACME CONSULTING SERVICES",
				"Av. Los Pinos 123, Lima",
				"Telf: 01 555 1234",
				"N° de Factura: F001-000456",
				"Fecha de emisión: 03/04/2024",
				"Fecha de vencimiento: 03/05/2024",
				"",
				"2 Horas de consultoria 300.00",
				"1 Licencia anual 100.00",
				"",
				"SUBTOTAL: 400.00",
				"IGV 18%: 72.00",
				"TOTAL A PAGAR: S/ 472.00",
			}, "\n")
		})

		It("selects the company from the header zone", func() {
			Expect(fields.Company).To(Equal("ACME CONSULTING SERVICES"))
		})

		It("extracts every labeled field", func() {
			Expect(fields.Number).To(Equal("F001-000456"))
			Expect(fields.Date).To(Equal("03/04/2024"))
			Expect(fields.DueDate).To(Equal("03/05/2024"))
			Expect(fields.Subtotal).To(Equal("400.00"))
			Expect(fields.Tax).To(Equal("72.00"))
			Expect(fields.Total).To(Equal("S/ 472.00"))
		})

		It("collects the line items in order", func() {
			Expect(fields.Items).To(Equal([]LineItem{
				{Quantity: "2", Description: "Horas de consultoria", Amount: "300.00"},
				{Quantity: "1", Description: "Licencia anual", Amount: "100.00"},
			}))
		})
	})

	When("the document is an English invoice", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"Northwind Traders Inc.",
				"Invoice #: INV-2024-77",
				"Invoice Date: 2024-02-01",
				"Due Date: 2024-03-01",
				"Subtotal $1,200.00",
				"Sales Tax (8%) $96.00",
				"Amount Due: $1,296.00",
			}, "\n")
		})

		It("extracts every labeled field", func() {
			Expect(fields.Company).To(Equal("Northwind Traders Inc."))
			Expect(fields.Number).To(Equal("INV-2024-77"))
			Expect(fields.Date).To(Equal("2024-02-01"))
			Expect(fields.DueDate).To(Equal("2024-03-01"))
			Expect(fields.Subtotal).To(Equal("$1,200.00"))
			Expect(fields.Tax).To(Equal("$96.00"))
			Expect(fields.Total).To(Equal("$1,296.00"))
		})
	})

	When("the due date appears before the issue date", func() {
		BeforeEach(func() {
			text = "Due date: 10/10/2024\nDate: 01/10/2024"
		})

		It("does not treat the due date as the issue date", func() {
			Expect(fields.DueDate).To(Equal("10/10/2024"))
			Expect(fields.Date).To(Equal("01/10/2024"))
		})
	})

	When("no header line is long enough", func() {
		BeforeEach(func() {
			text = "Kiosko\nTOTAL 12.00"
		})

		It("falls back to the relaxed company pass", func() {
			Expect(fields.Company).To(Equal("Kiosko"))
		})
	})

	When("the company is outside the header zone", func() {
		BeforeEach(func() {
			rules := DefaultCompanyRules()
			rules.HeaderLines = 1
			extractor = NewExtractor(WithCompanyRules(rules))
			text = "12345\nACME CONSULTING SERVICES"
		})

		It("does not find a company", func() {
			Expect(fields.Company).To(BeEmpty())
		})
	})

	When("nothing is recognizable", func() {
		BeforeEach(func() {
			text = ""
		})

		It("returns empty fields without failing", func() {
			Expect(fields).To(Equal(Fields{Items: []LineItem{}}))
		})
	})

	When("custom patterns are injected", func() {
		BeforeEach(func() {
			extractor = NewExtractor(WithPatterns(Patterns{
				FieldNumber: {{Pattern: regexp.MustCompile(`(?i)rechnung\s*nr\.?\s*(\S+)`)}},
			}))
			text = "Rechnung Nr. 4711\nTOTAL: 9.99"
		})

		It("uses only the injected vocabulary", func() {
			Expect(fields.Number).To(Equal("4711"))
			Expect(fields.Total).To(BeEmpty())
		})
	})
})

var _ = Describe("Infer", func() {
	It("uses the default vocabulary", func() {
		Expect(Infer("Invoice No: 991").Number).To(Equal("991"))
	})
})
