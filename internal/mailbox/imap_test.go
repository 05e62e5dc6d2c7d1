package mailbox

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IMAP", func() {
	var (
		srv    *server.Server
		addr   string
		source *IMAP
		ctx    context.Context
	)

	appendMessage := func(raw []byte) {
		c, err := client.Dial(addr)
		Expect(err).NotTo(HaveOccurred())
		defer c.Logout()
		Expect(c.Login("username", "password")).To(Succeed())
		Expect(c.Append("INBOX", nil, time.Now(), bytes.NewBuffer(raw))).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()

		srv = server.New(memory.New())
		srv.AllowInsecureAuth = true
		l, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr = l.Addr().String()
		go srv.Serve(l)

		source, err = NewIMAP(IMAPConfig{
			Address:  addr,
			Username: "username",
			Password: "password",
			Insecure: true,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		srv.Close()
	})

	It("is named imap", func() {
		Expect(source.Name()).To(Equal("imap"))
	})

	It("rejects bad credentials", func() {
		_, err := NewIMAP(IMAPConfig{Address: addr, Username: "username", Password: "wrong", Insecure: true})
		Expect(err).To(HaveOccurred())
	})

	It("requires credentials", func() {
		_, err := NewIMAP(IMAPConfig{Address: addr, Insecure: true})
		Expect(err).To(HaveOccurred())
	})

	When("unread messages carry documents", func() {
		BeforeEach(func() {
			appendMessage(buildMessage("Invoice INV-20251030", "Attached is our invoice.",
				testFile{name: "INV-20251030.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 invoice")},
			))
			appendMessage(buildMessage("Purchase order", "Please see attached.",
				testFile{name: "PO-20251030.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 po")},
			))
		})

		It("returns the attachments newest first", func() {
			atts, err := source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(HaveLen(2))
			Expect(atts[0].Kind).To(Equal(KindPurchaseOrder))
			Expect(atts[0].Data).To(Equal([]byte("%PDF-1.4 po")))
			Expect(atts[1].Kind).To(Equal(KindInvoice))
			Expect(atts[1].Subject).To(Equal("Invoice INV-20251030"))
		})

		It("honors the limit", func() {
			atts, err := source.FetchUnread(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(HaveLen(1))
		})

		It("leaves messages unread while fetching", func() {
			_, err := source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())

			atts, err := source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(HaveLen(2))
		})

		It("stops returning messages once marked read", func() {
			atts, err := source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			for _, att := range atts {
				Expect(source.MarkRead(ctx, att.MessageID)).To(Succeed())
			}

			atts, err = source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(BeEmpty())
		})
	})

	When("one message carries both documents", func() {
		BeforeEach(func() {
			appendMessage(buildMessage("Invoice and purchase order", "Both attached.",
				testFile{name: "INV-20251030.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 invoice")},
				testFile{name: "PO-20251030.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 po")},
			))
		})

		It("returns the whole message even past the limit", func() {
			atts, err := source.FetchUnread(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(HaveLen(2))
			Expect(atts[0].MessageID).To(Equal(atts[1].MessageID))
		})

		It("loses no attachment when the message is marked read", func() {
			atts, err := source.FetchUnread(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			kinds := []Kind{}
			for _, att := range atts {
				kinds = append(kinds, att.Kind)
			}
			Expect(kinds).To(ConsistOf(KindInvoice, KindPurchaseOrder))
			Expect(source.MarkRead(ctx, atts[0].MessageID)).To(Succeed())

			atts, err = source.FetchUnread(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(BeEmpty())
		})
	})

	It("returns nothing for a zero limit", func() {
		atts, err := source.FetchUnread(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(atts).To(BeEmpty())
	})

	It("rejects message ids that are not UIDs", func() {
		Expect(source.MarkRead(ctx, "abc")).NotTo(Succeed())
	})
})
