package matching

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Record", func() {
	var (
		values []FieldValue
		record Record
	)

	JustBeforeEach(func() {
		record = NewRecord(values...)
	})

	When("built from a subset of fields", func() {
		BeforeEach(func() {
			values = []FieldValue{
				Found(FieldTotal, "100.00"),
				Found(FieldVendor, "Acme"),
			}
		})

		It("keeps every field in comparison order", func() {
			names := make([]FieldName, 0)
			for _, v := range record.Values() {
				names = append(names, v.Name)
			}
			Expect(names).To(Equal(Fields()))
		})

		It("records unsupplied fields as absent", func() {
			v, ok := record.Get(FieldDate)
			Expect(ok).To(BeTrue())
			Expect(v.Present).To(BeFalse())
			Expect(record.Missing()).To(ConsistOf(FieldDate, FieldCurrency, FieldOrderID))
		})

		It("returns raw text for present fields", func() {
			Expect(record.Raw(FieldVendor)).To(Equal("Acme"))
			Expect(record.Raw(FieldDate)).To(BeEmpty())
		})
	})

	When("given loosely formatted field names", func() {
		BeforeEach(func() {
			values = []FieldValue{
				{Name: "PO Number", RawText: "PO-123456", Present: true},
				{Name: "shipping", RawText: "ground", Present: true},
			}
		})

		It("maps them to the canonical field", func() {
			Expect(record.Raw(FieldOrderID)).To(Equal("PO-123456"))
		})

		It("drops unknown names", func() {
			_, ok := record.Get(FieldName("shipping"))
			Expect(ok).To(BeFalse())
			Expect(record.Values()).To(HaveLen(5))
		})
	})

	When("a field is supplied twice", func() {
		BeforeEach(func() {
			values = []FieldValue{
				Found(FieldVendor, "First"),
				Found(FieldVendor, "Second"),
			}
		})

		It("keeps the later value", func() {
			Expect(record.Raw(FieldVendor)).To(Equal("Second"))
		})
	})

	When("a present field carries only whitespace", func() {
		BeforeEach(func() {
			values = []FieldValue{Found(FieldVendor, "   ")}
		})

		It("is reported missing", func() {
			Expect(record.Missing()).To(ContainElement(FieldVendor))
		})
	})

	Describe("With", func() {
		BeforeEach(func() {
			values = []FieldValue{Found(FieldVendor, "Acme")}
		})

		It("returns a new record and leaves the original untouched", func() {
			updated := record.With(Found(FieldDate, "2025-10-30"))
			Expect(updated.Raw(FieldDate)).To(Equal("2025-10-30"))
			Expect(updated.Raw(FieldVendor)).To(Equal("Acme"))
			Expect(record.Raw(FieldDate)).To(BeEmpty())
		})
	})

	Describe("JSON", func() {
		BeforeEach(func() {
			values = []FieldValue{Found(FieldVendor, "Acme")}
		})

		It("encodes an ordered array", func() {
			data, err := json.Marshal(record)
			Expect(err).NotTo(HaveOccurred())

			var decoded []map[string]any
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(5))
			Expect(decoded[0]).To(HaveKeyWithValue("name", "vendor"))
			Expect(decoded[0]).To(HaveKeyWithValue("present", true))
			Expect(decoded[1]).To(HaveKeyWithValue("present", false))
		})

		It("encodes a zero record as all absent", func() {
			data, err := json.Marshal(Record{})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"order_id"`))
		})

		It("decodes back into a record", func() {
			var decoded Record
			Expect(json.Unmarshal([]byte(`[{"name":"date","raw_text":"30/10/2025","present":true}]`), &decoded)).To(Succeed())
			Expect(decoded.Raw(FieldDate)).To(Equal("30/10/2025"))
			Expect(decoded.Values()).To(HaveLen(5))
		})
	})
})
