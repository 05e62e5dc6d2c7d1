package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPConfig holds the connection settings of an IMAP mailbox
type IMAPConfig struct {
	// Address is host:port, e.g. imap.gmail.com:993
	Address  string
	Username string
	// Password is an app password for providers that require one
	Password string
	Mailbox  string
	// Insecure dials without TLS, for local test servers only
	Insecure bool
}

// IMAP implements Source over IMAP. Each operation opens its own session.
type IMAP struct {
	cfg IMAPConfig
	mu  sync.Mutex
}

// NewIMAP creates an IMAP source and verifies the credentials
func NewIMAP(cfg IMAPConfig) (*IMAP, error) {
	if cfg.Address == "" {
		cfg.Address = "imap.gmail.com:993"
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("imap username and password are required")
	}

	m := &IMAP{cfg: cfg}
	c, err := m.connect()
	if err != nil {
		return nil, err
	}
	c.Logout()
	return m, nil
}

// Name returns the source name
func (m *IMAP) Name() string {
	return "imap"
}

func (m *IMAP) connect() (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if m.cfg.Insecure {
		c, err = client.Dial(m.cfg.Address)
	} else {
		c, err = client.DialTLS(m.cfg.Address, &tls.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", m.cfg.Address, err)
	}
	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return c, nil
}

// FetchUnread scans the newest unread messages, at most three times max,
// without marking them read
func (m *IMAP) FetchUnread(ctx context.Context, max int) ([]Attachment, error) {
	if max <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(m.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", m.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unread messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit := max * 3; len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, fetched)
	}()

	var messages []mailMessage
	for msg := range fetched {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("Failed to read message body", "uid", msg.Uid, "error", err)
			continue
		}
		parsed, err := parseMessage(strconv.FormatUint(uint64(msg.Uid), 10), bytes.NewReader(raw), msg.InternalDate)
		if err != nil {
			slog.Warn("Failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		messages = append(messages, parsed)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// newest first
	sort.Slice(messages, func(i, j int) bool {
		a, _ := strconv.ParseUint(messages[i].id, 10, 32)
		b, _ := strconv.ParseUint(messages[j].id, 10, 32)
		return a > b
	})
	return collect(m.Name(), messages, max), nil
}

// MarkRead sets the \Seen flag on a message by UID
func (m *IMAP) MarkRead(ctx context.Context, messageID string) error {
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.connect()
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select(m.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("selecting %s: %w", m.cfg.Mailbox, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return fmt.Errorf("marking message %s read: %w", messageID, err)
	}
	return nil
}

// Close is a no-op; sessions are closed after each operation
func (m *IMAP) Close() error {
	return nil
}
