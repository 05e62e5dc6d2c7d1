package verification

import (
	"errors"
	"time"

	"github.com/zombor/invoice-match/internal/mailbox"
	"github.com/zombor/invoice-match/internal/matching"
	"github.com/zombor/invoice-match/internal/scanning"
)

var (
	// ErrNotFound is returned when a document or verification does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for requests that can never succeed as given
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoMailbox is returned when mailbox processing is requested but no source is configured
	ErrNoMailbox = errors.New("no mailbox configured")
)

// SourceUpload marks documents and verifications created through the API
const SourceUpload = "upload"

// Document is an invoice or purchase order with the fields extracted from it
type Document struct {
	ID           string          `json:"id"`
	Kind         mailbox.Kind    `json:"kind"`
	Filename     string          `json:"filename"`
	ContentType  string          `json:"content_type"`
	StoragePath  string          `json:"storage_path"`
	Source       string          `json:"source"`
	EmailID      string          `json:"email_id,omitempty"`
	EmailSubject string          `json:"email_subject,omitempty"`
	Text         string          `json:"text"`
	Method       scanning.Method `json:"method"`
	Engine       string          `json:"engine"`
	Record       matching.Record `json:"record"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Verification is the comparison of an invoice against a purchase order
type Verification struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoice_id"`
	PurchaseOrderID string          `json:"purchase_order_id"`
	Source          string          `json:"source"`
	Result          matching.Result `json:"result"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Upload is a file submitted for processing
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
	Kind        mailbox.Kind
	// Source is SourceUpload or the name of a mailbox
	Source       string
	EmailID      string
	EmailSubject string
}

// MailboxRun summarizes one pass over the mailbox
type MailboxRun struct {
	Documents     []*Document     `json:"documents"`
	Verifications []*Verification `json:"verifications"`
	// Unpaired lists documents for which no counterpart with the same order id was found
	Unpaired []string `json:"unpaired"`
	Failures []string `json:"failures"`
}
