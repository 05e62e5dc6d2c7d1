package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailQuery selects unread messages that carry attachments
const gmailQuery = "is:unread has:attachment"

// Gmail implements Source using the Gmail API
type Gmail struct {
	service *gmail.Service
	user    string
}

// NewGmail creates a Gmail source from client options
func NewGmail(ctx context.Context, opts ...option.ClientOption) (*Gmail, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Gmail{service: service, user: "me"}, nil
}

// NewGmailFromFiles creates a Gmail source from an OAuth client credentials
// file and a previously authorized token file
func NewGmailFromFiles(ctx context.Context, credentialsPath, tokenPath string) (*Gmail, error) {
	credentials, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}
	config, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}

	f, err := os.Open(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("opening gmail token: %w", err)
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("parsing gmail token: %w", err)
	}

	return NewGmail(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
}

// Name returns the source name
func (g *Gmail) Name() string {
	return "gmail"
}

// FetchUnread lists unread messages with attachments, newest first, and
// downloads the supported ones
func (g *Gmail) FetchUnread(ctx context.Context, max int) ([]Attachment, error) {
	if max <= 0 {
		return nil, nil
	}

	list, err := g.service.Users.Messages.List(g.user).
		Q(gmailQuery).
		MaxResults(int64(max * 3)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages := make([]mailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.fetchMessage(ctx, ref.Id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Failed to fetch message", "message_id", ref.Id, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return collect(g.Name(), messages, max), nil
}

func (g *Gmail) fetchMessage(ctx context.Context, id string) (mailMessage, error) {
	full, err := g.service.Users.Messages.Get(g.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return mailMessage{}, fmt.Errorf("getting message: %w", err)
	}

	msg := mailMessage{id: id}
	if full.InternalDate > 0 {
		msg.receivedAt = time.UnixMilli(full.InternalDate)
	}
	if full.Payload == nil {
		return msg, nil
	}
	for _, h := range full.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			msg.subject = h.Value
		}
	}

	var body strings.Builder
	var walk func(part *gmail.MessagePart) error
	walk = func(part *gmail.MessagePart) error {
		switch {
		case part.Filename != "" && Supported(part.Filename):
			data, err := g.partData(ctx, id, part)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", part.Filename, err)
			}
			msg.files = append(msg.files, file{name: part.Filename, contentType: part.MimeType, data: data})
		case part.Filename == "" && (part.MimeType == "text/plain" || part.MimeType == "text/html"):
			if part.Body != nil && part.Body.Data != "" && body.Len() < maxBodyText {
				if text, err := decodeBase64URL(part.Body.Data); err == nil {
					body.Write(text)
					body.WriteString("\n")
				}
			}
		}
		for _, child := range part.Parts {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(full.Payload); err != nil {
		return msg, err
	}
	msg.body = body.String()
	return msg, nil
}

// partData returns the bytes of an attachment, inline or by attachment id
func (g *Gmail) partData(ctx context.Context, messageID string, part *gmail.MessagePart) ([]byte, error) {
	if part.Body == nil {
		return nil, nil
	}
	if part.Body.AttachmentId == "" {
		return decodeBase64URL(part.Body.Data)
	}
	att, err := g.service.Users.Messages.Attachments.Get(g.user, messageID, part.Body.AttachmentId).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return decodeBase64URL(att.Data)
}

// MarkRead removes the UNREAD label
func (g *Gmail) MarkRead(ctx context.Context, messageID string) error {
	_, err := g.service.Users.Messages.Modify(g.user, messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", messageID, err)
	}
	return nil
}

// Close is a no-op for the HTTP based client
func (g *Gmail) Close() error {
	return nil
}

// decodeBase64URL decodes Gmail's URL-safe base64, padded or not
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
