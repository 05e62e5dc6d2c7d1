package mailbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // Register non-UTF-8 charsets
	"github.com/emersion/go-message/mail"
)

// maxBodyText bounds how much of the text body is kept for classification
const maxBodyText = 64 << 10

// parseMessage reads an RFC 5322 message into its subject, text body and files
func parseMessage(id string, r io.Reader, receivedAt time.Time) (mailMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return mailMessage{}, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	msg := mailMessage{id: id, receivedAt: receivedAt}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.subject = subject
	}
	if date, err := mr.Header.Date(); err == nil && msg.receivedAt.IsZero() {
		msg.receivedAt = date
	}

	var body strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return msg, fmt.Errorf("reading message part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, params, _ := h.ContentType()
			if name := params["name"]; name != "" && Supported(name) {
				// inline images sent with a file name
				data, err := io.ReadAll(p.Body)
				if err != nil {
					return msg, fmt.Errorf("reading inline file: %w", err)
				}
				msg.files = append(msg.files, file{name: name, contentType: ct, data: data})
				continue
			}
			if ct == "text/plain" || ct == "text/html" {
				if body.Len() < maxBodyText {
					b, _ := io.ReadAll(io.LimitReader(p.Body, maxBodyText))
					body.Write(b)
					body.WriteString("\n")
				}
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			ct, _, _ := h.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return msg, fmt.Errorf("reading attachment %s: %w", name, err)
			}
			msg.files = append(msg.files, file{name: name, contentType: ct, data: data})
		}
	}
	msg.body = body.String()
	return msg, nil
}
