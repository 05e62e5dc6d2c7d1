package verification

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-match/internal/mailbox"
	"github.com/zombor/invoice-match/internal/matching"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("documents", func() {
		var doc *Document

		BeforeEach(func() {
			doc = &Document{
				ID:          "doc-1",
				Kind:        mailbox.KindInvoice,
				Filename:    "invoice.pdf",
				ContentType: "application/pdf",
				StoragePath: "doc-1_invoice.pdf",
				Source:      SourceUpload,
				Text:        "INVOICE",
				Record: matching.NewRecord(
					matching.Found(matching.FieldVendor, "Acme"),
					matching.Found(matching.FieldOrderID, "INV-20251030"),
				),
				CreatedAt: time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC),
			}
			Expect(db.SaveDocument(doc)).To(Succeed())
		})

		It("round-trips a document with its record", func() {
			got, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Kind).To(Equal(mailbox.KindInvoice))
			Expect(got.Record.Raw(matching.FieldOrderID)).To(Equal("INV-20251030"))
			Expect(got.Record.Missing()).To(ConsistOf(matching.FieldDate, matching.FieldTotal, matching.FieldCurrency))
			Expect(got.CreatedAt.Equal(doc.CreatedAt)).To(BeTrue())
		})

		It("lists documents", func() {
			Expect(db.SaveDocument(&Document{ID: "doc-2", Kind: mailbox.KindPurchaseOrder})).To(Succeed())
			docs, err := db.ListDocuments()
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
		})

		It("reports missing documents", func() {
			_, err := db.GetDocument("nope")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("deletes documents", func() {
			Expect(db.DeleteDocument("doc-1")).To(Succeed())
			_, err := db.GetDocument("doc-1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			Expect(errors.Is(db.DeleteDocument("doc-1"), ErrNotFound)).To(BeTrue())
		})
	})

	Describe("verifications", func() {
		BeforeEach(func() {
			res := matching.NewComparator(matching.DefaultConfig()).Compare(
				matching.NewRecord(matching.Found(matching.FieldTotal, "100.00")),
				matching.NewRecord(matching.Found(matching.FieldTotal, "$100")),
			)
			Expect(db.SaveVerification(&Verification{
				ID:              "v-1",
				InvoiceID:       "doc-1",
				PurchaseOrderID: "doc-2",
				Result:          res,
			})).To(Succeed())
		})

		It("round-trips the result", func() {
			v, err := db.GetVerification("v-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Result.Overall).To(Equal(matching.VerdictMatch))
			total, ok := v.Result.Field(matching.FieldTotal)
			Expect(ok).To(BeTrue())
			Expect(total.Status).To(Equal(matching.StatusMatch))
		})

		It("lists verifications", func() {
			vs, err := db.ListVerifications()
			Expect(err).NotTo(HaveOccurred())
			Expect(vs).To(HaveLen(1))
		})

		It("returns an empty list for an empty bucket", func() {
			Expect(db.DeleteVerification("v-1")).To(Succeed())
			vs, err := db.ListVerifications()
			Expect(err).NotTo(HaveOccurred())
			Expect(vs).NotTo(BeNil())
			Expect(vs).To(BeEmpty())
		})
	})

	It("keeps data across reopen", func() {
		Expect(db.SaveDocument(&Document{ID: "persist"})).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.GetDocument("persist")
		Expect(err).NotTo(HaveOccurred())
	})
})
