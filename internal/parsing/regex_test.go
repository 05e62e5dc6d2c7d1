package parsing

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-match/internal/matching"
)

const sampleInvoice = `INVOICE
Seller: Acme Pvt. Ltd.
42 Industrial Estate, Pune

Invoice Number: INV-20251030
Invoice Date: 30/10/2025
PO Number: PO-20251030

Widget A   2 x 500.00   1,000.00
Widget B   1 x 250.00     250.00
Subtotal                 1,250.00
Total Due           USD 1,250.00
`

const samplePurchaseOrder = `PURCHASE ORDER
Vendor:
ACME PRIVATE LIMITED

PO Number: PO-20251030
Order date: Oct 30, 2025
Currency: USD

Item            Qty   Amount
Widget A         2    $1,000.00
Widget B         1      $250.00
Grand Total           $1,250.00
`

var _ = Describe("RegexParser", func() {
	var (
		text   string
		record matching.Record
		err    error
	)

	JustBeforeEach(func() {
		record, err = NewRegexParser().Parse(context.Background(), text)
	})

	When("parsing an invoice", func() {
		BeforeEach(func() {
			text = sampleInvoice
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("takes the vendor from the seller label", func() {
			Expect(record.Raw(matching.FieldVendor)).To(Equal("Acme Pvt. Ltd."))
		})

		It("finds the date", func() {
			Expect(record.Raw(matching.FieldDate)).To(Equal("30/10/2025"))
		})

		It("prefers the invoice number over the PO number", func() {
			Expect(record.Raw(matching.FieldOrderID)).To(Equal("INV-20251030"))
		})

		It("takes the amount on the total line", func() {
			Expect(record.Raw(matching.FieldTotal)).To(Equal("USD 1,250.00"))
		})

		It("takes the currency code next to an amount", func() {
			Expect(record.Raw(matching.FieldCurrency)).To(Equal("USD"))
		})
	})

	When("parsing a purchase order", func() {
		BeforeEach(func() {
			text = samplePurchaseOrder
		})

		It("takes the vendor from the line after the label", func() {
			Expect(record.Raw(matching.FieldVendor)).To(Equal("ACME PRIVATE LIMITED"))
		})

		It("finds a textual date", func() {
			Expect(record.Raw(matching.FieldDate)).To(Equal("Oct 30, 2025"))
		})

		It("finds the PO number", func() {
			Expect(record.Raw(matching.FieldOrderID)).To(Equal("PO-20251030"))
		})

		It("takes the grand total", func() {
			Expect(record.Raw(matching.FieldTotal)).To(Equal("$1,250.00"))
		})

		It("takes the currency line", func() {
			Expect(record.Raw(matching.FieldCurrency)).To(Equal("USD"))
		})
	})

	When("both documents are compared", func() {
		It("matches on every field", func() {
			parser := NewRegexParser()
			inv, err := parser.Parse(context.Background(), sampleInvoice)
			Expect(err).NotTo(HaveOccurred())
			po, err := parser.Parse(context.Background(), samplePurchaseOrder)
			Expect(err).NotTo(HaveOccurred())

			result := matching.NewComparator(matching.DefaultConfig()).Compare(inv, po)
			Expect(result.Overall).To(Equal(matching.VerdictMatch))
			Expect(result.Mismatches()).To(Equal(0))
		})
	})

	When("there is no seller label", func() {
		BeforeEach(func() {
			text = "TAX INVOICE\n\nGlobex Corporation\nTotal: 99.50"
		})

		It("uses the first line that is not a document title", func() {
			Expect(record.Raw(matching.FieldVendor)).To(Equal("Globex Corporation"))
		})

		It("takes the symbol-less total", func() {
			Expect(record.Raw(matching.FieldTotal)).To(Equal("99.50"))
			_, ok := record.Get(matching.FieldCurrency)
			Expect(ok).To(BeTrue())
			Expect(record.Raw(matching.FieldCurrency)).To(BeEmpty())
		})
	})

	When("the first line is very long", func() {
		BeforeEach(func() {
			text = "Initech Global Software Consulting and Outsourcing Services International Holdings"
		})

		It("truncates the vendor to 64 characters", func() {
			Expect(len([]rune(record.Raw(matching.FieldVendor)))).To(BeNumerically("<=", 64))
		})
	})

	When("the order number is too short to be an identifier", func() {
		BeforeEach(func() {
			text = "Invoice Number: rt\nPO #: 123"
		})

		It("leaves the order id absent", func() {
			Expect(record.Missing()).To(ContainElement(matching.FieldOrderID))
		})
	})

	When("the order number is all digits", func() {
		BeforeEach(func() {
			text = "PO #: 4500012345"
		})

		It("accepts it", func() {
			Expect(record.Raw(matching.FieldOrderID)).To(Equal("4500012345"))
		})
	})

	When("an amount-like number is part of a date", func() {
		BeforeEach(func() {
			text = "Date: 30.10.2025\nAmount Due: € 1.234,56"
		})

		It("skips the date and reads the European amount", func() {
			Expect(record.Raw(matching.FieldDate)).To(Equal("30.10.2025"))
			Expect(record.Raw(matching.FieldTotal)).To(Equal("€ 1.234,56"))
			Expect(record.Raw(matching.FieldCurrency)).To(Equal("€"))
		})
	})

	When("a tax line carries a three-letter label", func() {
		BeforeEach(func() {
			text = "Vendor: Acme Ltd\nInvoice Number: INV-20251030\nSubtotal $100.00\nVAT 20.00\nTotal $120.00"
		})

		It("does not take the label as the currency", func() {
			Expect(record.Raw(matching.FieldCurrency)).To(Equal("$"))
			Expect(record.Raw(matching.FieldTotal)).To(Equal("$120.00"))
		})

		It("matches a purchase order in dollars", func() {
			po, err := NewRegexParser().Parse(context.Background(), "Vendor: Acme Ltd\nPO Number: PO-20251030\nTotal $120.00")
			Expect(err).NotTo(HaveOccurred())

			result := matching.NewComparator(matching.DefaultConfig()).Compare(record, po)
			currency, _ := result.Field(matching.FieldCurrency)
			Expect(currency.Status).To(Equal(matching.StatusMatch))
			Expect(result.Overall).To(Equal(matching.VerdictMatch))
		})
	})

	When("the only amounts sit on tax lines", func() {
		BeforeEach(func() {
			text = "Subtotal 100.00\nGST 18.00"
		})

		It("keeps the label out of the total and the currency", func() {
			Expect(record.Raw(matching.FieldTotal)).To(Equal("18.00"))
			Expect(record.Raw(matching.FieldCurrency)).To(BeEmpty())
		})
	})

	When("the total has no decimals", func() {
		BeforeEach(func() {
			text = "Vendor: Hooli\nTotal: 1250"
		})

		It("takes the number on the total line", func() {
			Expect(record.Raw(matching.FieldTotal)).To(Equal("1250"))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("returns an all-absent record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Missing()).To(HaveLen(5))
		})
	})
})
