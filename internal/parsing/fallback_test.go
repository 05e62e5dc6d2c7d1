package parsing

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-match/internal/matching"
)

// mockParser is a mock implementation of Parser
type mockParser struct {
	record matching.Record
	err    error
}

func (m *mockParser) Parse(ctx context.Context, text string) (matching.Record, error) {
	return m.record, m.err
}

// mockAssistant is a mock implementation of Assistant
type mockAssistant struct {
	fields map[matching.FieldName]string
	err    error
	calls  int
}

func (m *mockAssistant) Name() string { return "mock" }

func (m *mockAssistant) Suggest(ctx context.Context, text string) (map[matching.FieldName]string, error) {
	m.calls++
	return m.fields, m.err
}

var _ = Describe("FallbackParser", func() {
	var (
		primary   *mockParser
		assistant *mockAssistant
		required  []matching.FieldName
		record    matching.Record
		err       error
	)

	BeforeEach(func() {
		primary = &mockParser{record: matching.NewRecord(
			matching.Found(matching.FieldVendor, "Acme"),
			matching.Found(matching.FieldTotal, "100.00"),
		)}
		assistant = &mockAssistant{fields: map[matching.FieldName]string{
			matching.FieldVendor:  "Someone Else",
			matching.FieldDate:    "2025-10-30",
			matching.FieldOrderID: "INV-20251030",
		}}
		required = nil
	})

	JustBeforeEach(func() {
		record, err = NewFallbackParser(primary, assistant, required...).Parse(context.Background(), "text")
	})

	When("required fields are absent", func() {
		It("fills only the absent fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(assistant.calls).To(Equal(1))
			Expect(record.Raw(matching.FieldVendor)).To(Equal("Acme"))
			Expect(record.Raw(matching.FieldDate)).To(Equal("2025-10-30"))
			Expect(record.Raw(matching.FieldOrderID)).To(Equal("INV-20251030"))
			Expect(record.Raw(matching.FieldTotal)).To(Equal("100.00"))
		})

		It("leaves fields the assistant did not find absent", func() {
			Expect(record.Missing()).To(ConsistOf(matching.FieldCurrency))
		})
	})

	When("every required field is present", func() {
		BeforeEach(func() {
			required = []matching.FieldName{matching.FieldVendor, matching.FieldTotal}
		})

		It("does not call the assistant", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(assistant.calls).To(Equal(0))
			Expect(record.Missing()).To(HaveLen(3))
		})
	})

	When("the assistant fails", func() {
		BeforeEach(func() {
			assistant.err = errors.New("rate limited")
		})

		It("returns the primary record", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Raw(matching.FieldVendor)).To(Equal("Acme"))
			Expect(record.Missing()).To(HaveLen(3))
		})
	})

	When("the primary parser fails", func() {
		BeforeEach(func() {
			primary.err = errors.New("cancelled")
		})

		It("returns the error without calling the assistant", func() {
			Expect(err).To(MatchError("cancelled"))
			Expect(assistant.calls).To(Equal(0))
		})
	})

	When("no assistant is configured", func() {
		It("returns the primary record", func() {
			record, err := NewFallbackParser(primary, nil).Parse(context.Background(), "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Missing()).To(HaveLen(3))
		})
	})
})
