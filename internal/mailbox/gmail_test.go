package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var _ = Describe("Gmail", func() {
	var (
		server *ghttp.Server
		source *Gmail
		ctx    context.Context
	)

	encode := func(s string) string {
		return base64.URLEncoding.EncodeToString([]byte(s))
	}

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()

		var err error
		source, err = NewGmail(ctx,
			option.WithEndpoint(server.URL()+"/"),
			option.WithHTTPClient(http.DefaultClient),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	When("an unread message has an invoice attached", func() {
		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/gmail/v1/users/me/messages"),
					func(w http.ResponseWriter, r *http.Request) {
						Expect(r.URL.Query().Get("q")).To(Equal("is:unread has:attachment"))
						Expect(r.URL.Query().Get("maxResults")).To(Equal("6"))
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, &gmail.ListMessagesResponse{
						Messages: []*gmail.Message{{Id: "m1"}},
					}),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/gmail/v1/users/me/messages/m1"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, &gmail.Message{
						Id:           "m1",
						InternalDate: 1761814800000,
						Payload: &gmail.MessagePart{
							MimeType: "multipart/mixed",
							Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "Your document"}},
							Parts: []*gmail.MessagePart{
								{
									MimeType: "text/plain",
									Body:     &gmail.MessagePartBody{Data: encode("The invoice is attached")},
								},
								{
									Filename: "scan.pdf",
									MimeType: "application/pdf",
									Body:     &gmail.MessagePartBody{AttachmentId: "a1"},
								},
								{
									Filename: "notes.txt",
									MimeType: "text/plain",
									Body:     &gmail.MessagePartBody{Data: encode("ignored")},
								},
							},
						},
					}),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/gmail/v1/users/me/messages/m1/attachments/a1"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, &gmail.MessagePartBody{
						Data: encode("%PDF-1.4 invoice"),
					}),
				),
			)
		})

		It("downloads and classifies the attachment", func() {
			atts, err := source.FetchUnread(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(atts).To(HaveLen(1))
			Expect(atts[0].MessageID).To(Equal("m1"))
			Expect(atts[0].Filename).To(Equal("scan.pdf"))
			Expect(atts[0].Kind).To(Equal(KindInvoice))
			Expect(atts[0].Data).To(Equal([]byte("%PDF-1.4 invoice")))
			Expect(atts[0].ReceivedAt.UnixMilli()).To(Equal(int64(1761814800000)))
		})
	})

	When("listing fails", func() {
		BeforeEach(func() {
			server.SetAllowUnhandledRequests(true)
			server.SetUnhandledRequestStatusCode(http.StatusInternalServerError)
		})

		It("returns an error", func() {
			_, err := source.FetchUnread(ctx, 2)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("MarkRead", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/gmail/v1/users/me/messages/m1/modify"),
				func(w http.ResponseWriter, r *http.Request) {
					var req gmail.ModifyMessageRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.RemoveLabelIds).To(Equal([]string{"UNREAD"}))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, &gmail.Message{Id: "m1"}),
			))
		})

		It("removes the unread label", func() {
			Expect(source.MarkRead(ctx, "m1")).To(Succeed())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	It("decodes padded and unpadded base64url", func() {
		for _, s := range []string{"aGk", "aGk="} {
			b, err := decodeBase64URL(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal("hi"))
		}
	})
})
