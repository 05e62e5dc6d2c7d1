package mailbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/zombor/invoice-match/internal/metrics"
)

// Kind tells whether a document is an invoice or a purchase order
type Kind string

const (
	KindInvoice       Kind = "invoice"
	KindPurchaseOrder Kind = "purchase_order"
)

// ParseKind accepts "invoice", "po", "purchase_order" and "purchase order"
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "invoice", "inv":
		return KindInvoice, true
	case "purchase_order", "purchase order", "purchase-order", "po":
		return KindPurchaseOrder, true
	}
	return "", false
}

// Attachment is a document attached to an unread message
type Attachment struct {
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Kind        Kind      `json:"kind"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Source fetches invoice and purchase order attachments from a mailbox
type Source interface {
	// Name identifies the source in logs and metrics
	Name() string
	// FetchUnread returns classified attachments from unread messages, newest
	// first. Messages are never split, so the result may exceed max only when
	// the newest message alone does.
	FetchUnread(ctx context.Context, max int) ([]Attachment, error)
	// MarkRead flags a message as read
	MarkRead(ctx context.Context, messageID string) error
	Close() error
}

var (
	invoiceKeywords = []string{"invoice", "billing", "payment due", "amount due", "statement", "invoice number", "inv-", "inv #"}
	poKeywords      = []string{"purchase order", "po number", "purchase order number", "order confirmation", "po-", "po #", "po_"}

	invoiceFilePatterns = []string{"invoice", "inv", "bill", "statement"}
	poFilePatterns      = []string{"po", "purchase", "order"}
)

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".heic": "image/heic",
}

// Supported reports whether a filename has a document extension we process
func Supported(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// contentTypeFor returns the content type implied by the file extension,
// falling back to the declared one
func contentTypeFor(filename, declared string) string {
	if ct, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return declared
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// filenameKind matches filename tokens against the attachment patterns
func filenameKind(filename string) (Kind, bool) {
	base := strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		for _, p := range invoiceFilePatterns {
			if strings.HasPrefix(tok, p) {
				return KindInvoice, true
			}
		}
	}
	for _, tok := range tokens {
		for _, p := range poFilePatterns {
			if strings.HasPrefix(tok, p) {
				return KindPurchaseOrder, true
			}
		}
	}
	return "", false
}

// Classify returns the kinds of document a message carries, judged by the
// keywords in its subject and body and by its attachment filenames
func Classify(subject, body string, filenames []string) []Kind {
	text := strings.ToLower(subject + " " + body)
	isInvoice := containsAny(text, invoiceKeywords)
	isPO := containsAny(text, poKeywords)
	for _, name := range filenames {
		switch kind, _ := filenameKind(name); kind {
		case KindInvoice:
			isInvoice = true
		case KindPurchaseOrder:
			isPO = true
		}
	}

	var kinds []Kind
	if isInvoice {
		kinds = append(kinds, KindInvoice)
	}
	if isPO {
		kinds = append(kinds, KindPurchaseOrder)
	}
	return kinds
}

// ClassifyAttachment decides the kind of one attachment: its filename first,
// then the subject, then the body. Ambiguous messages are not classified.
func ClassifyAttachment(subject, body, filename string) (Kind, bool) {
	if kind, ok := filenameKind(filename); ok {
		return kind, true
	}
	for _, text := range []string{subject, body} {
		text = strings.ToLower(text)
		isInvoice := containsAny(text, invoiceKeywords)
		isPO := containsAny(text, poKeywords)
		switch {
		case isInvoice && !isPO:
			return KindInvoice, true
		case isPO && !isInvoice:
			return KindPurchaseOrder, true
		}
	}
	return "", false
}

// mailMessage is a mail message reduced to what classification needs
type mailMessage struct {
	id         string
	subject    string
	body       string
	receivedAt time.Time
	files      []file
}

type file struct {
	name        string
	contentType string
	data        []byte
}

// attachments classifies the supported files of a message. Messages that
// carry neither kind of document yield nothing.
func (m mailMessage) attachments() []Attachment {
	names := make([]string, 0, len(m.files))
	for _, f := range m.files {
		names = append(names, f.name)
	}
	if len(Classify(m.subject, m.body, names)) == 0 {
		slog.Debug("Message carries no documents", "message_id", m.id, "subject", m.subject)
		return nil
	}

	var out []Attachment
	for _, f := range m.files {
		if !Supported(f.name) || len(f.data) == 0 {
			continue
		}
		kind, ok := ClassifyAttachment(m.subject, m.body, f.name)
		if !ok {
			continue
		}
		out = append(out, Attachment{
			MessageID:   m.id,
			Subject:     m.subject,
			Filename:    f.name,
			ContentType: contentTypeFor(f.name, f.contentType),
			Data:        f.data,
			Kind:        kind,
			ReceivedAt:  m.receivedAt,
		})
	}
	return out
}

// collect flattens classified attachments of messages, newest message first.
// A message is taken whole or not at all so that marking it read never drops
// attachments; the first message is always taken even when it alone exceeds max.
func collect(source string, messages []mailMessage, max int) []Attachment {
	var out []Attachment
	for _, msg := range messages {
		atts := msg.attachments()
		if len(atts) == 0 {
			continue
		}
		if len(out) > 0 && len(out)+len(atts) > max {
			break
		}
		for _, att := range atts {
			metrics.AttachmentsFetched.WithLabelValues(source, string(att.Kind)).Inc()
		}
		out = append(out, atts...)
		if len(out) >= max {
			break
		}
	}
	return out
}
