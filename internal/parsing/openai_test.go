package parsing

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-match/internal/matching"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1761782400,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

var _ = Describe("OpenAIAssistant", func() {
	var (
		server    *ghttp.Server
		assistant *OpenAIAssistant
		fields    map[matching.FieldName]string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		assistant, err = NewOpenAIAssistant("test-key", "", server.URL()+"/v1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an api key", func() {
		_, err := NewOpenAIAssistant("", "", "")
		Expect(err).To(HaveOccurred())
	})

	It("is named openai", func() {
		Expect(assistant.Name()).To(Equal("openai"))
	})

	Describe("Suggest", func() {
		JustBeforeEach(func() {
			fields, err = assistant.Suggest(context.Background(), sampleInvoice)
		})

		When("the model answers with fenced JSON", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/v1/chat/completions"),
					ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(
						"```json\n{\"vendor\": \"Acme Pvt. Ltd.\", \"date\": null, \"total\": 1250, \"currency\": \"USD\", \"order_id\": \"INV-20251030\"}\n```",
					)),
				))
			})

			It("should return the non-null fields", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(fields).To(Equal(map[matching.FieldName]string{
					matching.FieldVendor:   "Acme Pvt. Ltd.",
					matching.FieldTotal:    "1250",
					matching.FieldCurrency: "USD",
					matching.FieldOrderID:  "INV-20251030",
				}))
			})
		})

		When("the response does not match the schema", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(`{"vendor": ["Acme"]}`)))
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("schema")))
			})
		})

		When("the model returns no choices", func() {
			BeforeEach(func() {
				resp := chatCompletion("")
				resp["choices"] = []map[string]any{}
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, resp))
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the API rejects the request", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
				}))
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("creating chat completion")))
			})
		})
	})
})
