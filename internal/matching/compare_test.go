package matching

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Comparator", func() {
	var (
		comparator *Comparator
		invoice    Record
		po         Record
		result     Result
	)

	fullRecord := func() Record {
		return NewRecord(
			Found(FieldVendor, "Acme Pvt. Ltd."),
			Found(FieldDate, "30/10/2025"),
			Found(FieldTotal, "$1,250.00"),
			Found(FieldCurrency, "USD"),
			Found(FieldOrderID, "INV-20251030"),
		)
	}

	statusOf := func(name FieldName) Status {
		f, ok := result.Field(name)
		Expect(ok).To(BeTrue())
		return f.Status
	}

	BeforeEach(func() {
		comparator = NewComparator(DefaultConfig())
		invoice = fullRecord()
		po = fullRecord()
	})

	JustBeforeEach(func() {
		result = comparator.Compare(invoice, po)
	})

	When("both records are identical", func() {
		It("matches every field", func() {
			for _, f := range result.Fields {
				Expect(f.Status).To(Equal(StatusMatch), string(f.Field))
			}
		})

		It("reports an overall match", func() {
			Expect(result.Overall).To(Equal(VerdictMatch))
			Expect(result.Mismatches()).To(Equal(0))
		})

		It("lists fields in comparison order", func() {
			Expect(result.Fields).To(HaveLen(5))
			Expect(result.Fields[0].Field).To(Equal(FieldVendor))
			Expect(result.Fields[4].Field).To(Equal(FieldOrderID))
		})
	})

	When("order numbers share a numeric core", func() {
		BeforeEach(func() {
			po = po.With(Found(FieldOrderID, "PO-20251030"))
		})

		It("matches the order id", func() {
			Expect(statusOf(FieldOrderID)).To(Equal(StatusMatch))
		})

		It("keeps both raw values", func() {
			f, _ := result.Field(FieldOrderID)
			Expect(f.Invoice).To(Equal("INV-20251030"))
			Expect(f.PurchaseOrder).To(Equal("PO-20251030"))
			Expect(f.Note).To(Equal("20251030 | 20251030"))
		})
	})

	When("totals are within tolerance", func() {
		BeforeEach(func() {
			invoice = invoice.With(Found(FieldTotal, "100.00"))
			po = po.With(Found(FieldTotal, "100.40"))
		})

		It("matches the total", func() {
			Expect(statusOf(FieldTotal)).To(Equal(StatusMatch))
		})
	})

	When("totals are outside tolerance", func() {
		BeforeEach(func() {
			invoice = invoice.With(Found(FieldTotal, "100.00"))
			po = po.With(Found(FieldTotal, "110.00"))
		})

		It("reports a mismatch", func() {
			Expect(statusOf(FieldTotal)).To(Equal(StatusMismatch))
			Expect(result.Overall).To(Equal(VerdictMismatch))
			Expect(result.Mismatches()).To(Equal(1))
		})
	})

	When("vendor names differ only in legal suffixes", func() {
		BeforeEach(func() {
			po = po.With(Found(FieldVendor, "ACME PRIVATE LIMITED"))
		})

		It("matches the vendor", func() {
			Expect(statusOf(FieldVendor)).To(Equal(StatusMatch))
		})
	})

	When("the date is absent on one side", func() {
		BeforeEach(func() {
			po = po.With(Absent(FieldDate))
		})

		It("reports it missing, never mismatched", func() {
			Expect(statusOf(FieldDate)).To(Equal(StatusMissing))
			f, _ := result.Field(FieldDate)
			Expect(f.Cause).To(MatchError(ErrAbsentField))
		})

		It("still matches overall on the remaining fields", func() {
			Expect(result.Overall).To(Equal(VerdictMatch))
		})
	})

	When("a date cannot be parsed", func() {
		BeforeEach(func() {
			invoice = invoice.With(Found(FieldDate, "not-a-date"))
		})

		It("reports the date missing with the parse failure", func() {
			Expect(statusOf(FieldDate)).To(Equal(StatusMissing))
			f, _ := result.Field(FieldDate)
			Expect(f.Cause).To(MatchError(ErrUnparsedValue))
		})

		It("does not affect the other fields", func() {
			for _, name := range []FieldName{FieldVendor, FieldTotal, FieldCurrency, FieldOrderID} {
				Expect(statusOf(name)).To(Equal(StatusMatch), string(name))
			}
		})
	})

	When("currencies differ", func() {
		BeforeEach(func() {
			po = po.With(Found(FieldCurrency, "EUR"), Found(FieldTotal, "€1.250,00"))
		})

		It("mismatches the currency and the total", func() {
			Expect(statusOf(FieldCurrency)).To(Equal(StatusMismatch))
			Expect(statusOf(FieldTotal)).To(Equal(StatusMismatch))
		})
	})

	When("nothing could be extracted from either document", func() {
		BeforeEach(func() {
			invoice = NewRecord()
			po = NewRecord()
		})

		It("is inconclusive", func() {
			Expect(result.Overall).To(Equal(VerdictInconclusive))
		})

		It("reports every field missing", func() {
			for _, f := range result.Fields {
				Expect(f.Status).To(Equal(StatusMissing))
			}
		})
	})

	When("the records are zero values", func() {
		BeforeEach(func() {
			invoice = Record{}
			po = Record{}
		})

		It("does not panic and is inconclusive", func() {
			Expect(result.Overall).To(Equal(VerdictInconclusive))
			Expect(result.Fields).To(HaveLen(5))
		})
	})

	Describe("CSV rendering", func() {
		It("has one row column per header column", func() {
			Expect(result.CSVRow()).To(HaveLen(len(CSVHeader())))
		})

		It("lays out raw values, status and the overall verdict", func() {
			header := CSVHeader()
			row := result.CSVRow()
			Expect(header[:3]).To(Equal([]string{"invoice_vendor", "po_vendor", "vendor_status"}))
			Expect(row[:3]).To(Equal([]string{"Acme Pvt. Ltd.", "Acme Pvt. Ltd.", "match"}))
			Expect(header[len(header)-1]).To(Equal("overall"))
			Expect(row[len(row)-1]).To(Equal("match"))
		})
	})

	It("can be used from many goroutines", func() {
		var wg sync.WaitGroup
		results := make([]Result, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = comparator.Compare(invoice, po)
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			Expect(r.Overall).To(Equal(VerdictMatch))
		}
	})
})
