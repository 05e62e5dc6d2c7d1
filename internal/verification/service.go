package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-match/internal/mailbox"
	"github.com/zombor/invoice-match/internal/matching"
	"github.com/zombor/invoice-match/internal/metrics"
	"github.com/zombor/invoice-match/internal/parsing"
	"github.com/zombor/invoice-match/internal/report"
	"github.com/zombor/invoice-match/internal/scanning"
)

// IDGenerator generates unique IDs for documents and verifications
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options holds the optional collaborators of a Service
type Options struct {
	// Mailbox is the source used by ProcessMailbox, nil disables it
	Mailbox mailbox.Source
	// MasterCSV is a file every verification is appended to, empty disables it
	MasterCSV string
	// Workers bounds how many mailbox attachments are processed at once
	Workers int
}

// Service handles document and verification operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	parser      parsing.Parser
	comparator  *matching.Comparator
	storage     Storage
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUIDs and the wall clock
func NewService(db DB, scanner scanning.Scanner, parser parsing.Parser, comparator *matching.Comparator, storage Storage, opts Options) *Service {
	return NewServiceWithDeps(db, scanner, parser, comparator, storage, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, parser parsing.Parser, comparator *matching.Comparator, storage Storage, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if comparator == nil {
		comparator = matching.NewComparator(matching.DefaultConfig())
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		parser:      parser,
		comparator:  comparator,
		storage:     storage,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	reUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename removes special characters and truncates long names
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean("/" + filename))
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = reUnsafeChars.ReplaceAllString(base, "")
	base = reSpaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "document"
	}
	if ext = reUnsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), ""); ext != "" {
		ext = "." + ext
	}
	return base + ext
}

// ProcessDocument stores a file, extracts its text and fields, and saves it
func (s *Service) ProcessDocument(ctx context.Context, up Upload) (*Document, error) {
	if up.Kind != mailbox.KindInvoice && up.Kind != mailbox.KindPurchaseOrder {
		return nil, fmt.Errorf("%w: unknown document kind %q", ErrInvalidInput, up.Kind)
	}
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidInput, up.Filename)
	}
	if up.Source == "" {
		up.Source = SourceUpload
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	contentType := strings.ToLower(strings.TrimSpace(up.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = scanning.DetectContentType(up.Data, up.Filename)
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(up.Filename)), up.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.scanner.ScanDocument(ctx, up.Data, contentType)
	if err != nil {
		slog.Error("Failed to scan document",
			"filename", up.Filename,
			"kind", up.Kind,
			"content_type", contentType,
			"file_size", len(up.Data),
			"error", err,
		)
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	record, err := s.parser.Parse(ctx, text.Content)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	doc := &Document{
		ID:           id,
		Kind:         up.Kind,
		Filename:     up.Filename,
		ContentType:  contentType,
		StoragePath:  savedPath,
		Source:       up.Source,
		EmailID:      up.EmailID,
		EmailSubject: up.EmailSubject,
		Text:         text.Content,
		Method:       text.Method,
		Engine:       text.Engine,
		Record:       record,
		CreatedAt:    now,
	}
	if err := s.db.SaveDocument(doc); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving document to database: %w", err)
	}

	slog.Info("Document processed",
		"id", id,
		"kind", up.Kind,
		"method", text.Method,
		"engine", text.Engine,
		"missing", record.Missing(),
	)
	return doc, nil
}

// VerifyPair processes an invoice and a purchase order concurrently and compares them
func (s *Service) VerifyPair(ctx context.Context, invoice, po Upload) (*Verification, error) {
	invoice.Kind = mailbox.KindInvoice
	po.Kind = mailbox.KindPurchaseOrder

	var invDoc, poDoc *Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := s.ProcessDocument(gctx, invoice)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		invDoc = doc
		return nil
	})
	g.Go(func() error {
		doc, err := s.ProcessDocument(gctx, po)
		if err != nil {
			return fmt.Errorf("purchase order: %w", err)
		}
		poDoc = doc
		return nil
	})
	if err := g.Wait(); err != nil {
		for _, doc := range []*Document{invDoc, poDoc} {
			if doc != nil {
				s.discard(doc)
			}
		}
		return nil, err
	}

	source := invoice.Source
	if source == "" {
		source = SourceUpload
	}
	return s.verify(invDoc, poDoc, source)
}

// Verify compares two stored documents
func (s *Service) Verify(ctx context.Context, invoiceID, poID string) (*Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	invDoc, err := s.GetDocument(invoiceID)
	if err != nil {
		return nil, err
	}
	poDoc, err := s.GetDocument(poID)
	if err != nil {
		return nil, err
	}
	if invDoc.Kind != mailbox.KindInvoice {
		return nil, fmt.Errorf("%w: document %s is a %s, not an invoice", ErrInvalidInput, invoiceID, invDoc.Kind)
	}
	if poDoc.Kind != mailbox.KindPurchaseOrder {
		return nil, fmt.Errorf("%w: document %s is a %s, not a purchase order", ErrInvalidInput, poID, poDoc.Kind)
	}
	return s.verify(invDoc, poDoc, SourceUpload)
}

func (s *Service) verify(invDoc, poDoc *Document, source string) (*Verification, error) {
	res := s.comparator.Compare(invDoc.Record, poDoc.Record)

	v := &Verification{
		ID:              s.idGenerator.Generate(),
		InvoiceID:       invDoc.ID,
		PurchaseOrderID: poDoc.ID,
		Source:          source,
		Result:          res,
		CreatedAt:       s.timeSource.Now(),
	}
	if err := s.db.SaveVerification(v); err != nil {
		return nil, fmt.Errorf("saving verification to database: %w", err)
	}

	metrics.Verifications.WithLabelValues(string(res.Overall)).Inc()
	for _, f := range res.Fields {
		metrics.FieldStatuses.WithLabelValues(string(f.Field), string(f.Status)).Inc()
	}

	if s.opts.MasterCSV != "" {
		if err := report.AppendMaster(s.opts.MasterCSV, []report.Row{rowFor(v)}); err != nil {
			slog.Warn("Failed to update master CSV", "path", s.opts.MasterCSV, "error", err)
		}
	}

	slog.Info("Verification completed",
		"id", v.ID,
		"invoice_id", invDoc.ID,
		"purchase_order_id", poDoc.ID,
		"overall", res.Overall,
		"mismatches", res.Mismatches(),
	)
	return v, nil
}

// discard removes a document and its file, logging failures
func (s *Service) discard(doc *Document) {
	if err := s.storage.Delete(doc.StoragePath); err != nil {
		slog.Warn("Failed to delete file", "path", doc.StoragePath, "error", err)
	}
	if err := s.db.DeleteDocument(doc.ID); err != nil {
		slog.Warn("Failed to delete document", "id", doc.ID, "error", err)
	}
}

func rowFor(v *Verification) report.Row {
	return report.Row{
		VerificationID: v.ID,
		CreatedAt:      v.CreatedAt,
		Source:         v.Source,
		Result:         v.Result,
	}
}

// GetVerification retrieves a verification by ID
func (s *Service) GetVerification(id string) (*Verification, error) {
	v, err := s.db.GetVerification(id)
	if err != nil {
		return nil, fmt.Errorf("getting verification: %w", err)
	}
	return v, nil
}

// ListVerifications returns all verifications, newest first
func (s *Service) ListVerifications() ([]*Verification, error) {
	vs, err := s.db.ListVerifications()
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].CreatedAt.After(vs[j].CreatedAt) })
	return vs, nil
}

// DeleteVerification removes a verification; its documents are kept
func (s *Service) DeleteVerification(id string) error {
	if err := s.db.DeleteVerification(id); err != nil {
		return fmt.Errorf("deleting verification: %w", err)
	}
	return nil
}

// MasterRows returns every verification as a master table row, oldest first
func (s *Service) MasterRows() ([]report.Row, error) {
	vs, err := s.ListVerifications()
	if err != nil {
		return nil, err
	}
	rows := make([]report.Row, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		rows = append(rows, rowFor(vs[i]))
	}
	return rows, nil
}

// GetDocument retrieves a document by ID
func (s *Service) GetDocument(id string) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents, newest first, optionally of one kind
func (s *Service) ListDocuments(kind mailbox.Kind) ([]*Document, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if kind != "" {
		filtered := docs[:0]
		for _, d := range docs {
			if d.Kind == kind {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// GetDocumentFile retrieves the stored file of a document and its content type
func (s *Service) GetDocumentFile(id string) ([]byte, string, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}
	data, err := s.storage.Get(doc.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}
	return data, doc.ContentType, nil
}

// HasMailbox reports whether ProcessMailbox can run
func (s *Service) HasMailbox() bool {
	return s.opts.Mailbox != nil
}

// ProcessMailbox fetches about max unread attachments, processes them, marks
// their messages read, and verifies invoices against purchase orders that
// share an order number
func (s *Service) ProcessMailbox(ctx context.Context, max int) (*MailboxRun, error) {
	src := s.opts.Mailbox
	if src == nil {
		return nil, ErrNoMailbox
	}

	atts, err := src.FetchUnread(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", src.Name(), err)
	}
	slog.Info("Fetched mailbox attachments", "source", src.Name(), "count", len(atts))

	docs := make([]*Document, len(atts))
	errs := make([]error, len(atts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, att := range atts {
		g.Go(func() error {
			docs[i], errs[i] = s.ProcessDocument(gctx, Upload{
				Filename:     att.Filename,
				Data:         att.Data,
				ContentType:  att.ContentType,
				Kind:         att.Kind,
				Source:       src.Name(),
				EmailID:      att.MessageID,
				EmailSubject: att.Subject,
			})
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &MailboxRun{
		Documents:     make([]*Document, 0, len(atts)),
		Verifications: make([]*Verification, 0),
		Unpaired:      make([]string, 0),
		Failures:      make([]string, 0),
	}
	// a message stays unread while any of its attachments failed
	failed := make(map[string]bool)
	for i, att := range atts {
		if errs[i] != nil {
			slog.Warn("Failed to process attachment",
				"message_id", att.MessageID,
				"filename", att.Filename,
				"error", errs[i],
			)
			run.Failures = append(run.Failures, fmt.Sprintf("%s: %v", att.Filename, errs[i]))
			failed[att.MessageID] = true
			continue
		}
		run.Documents = append(run.Documents, docs[i])
	}

	marked := make(map[string]bool)
	for _, att := range atts {
		if failed[att.MessageID] || marked[att.MessageID] {
			continue
		}
		marked[att.MessageID] = true
		if err := src.MarkRead(ctx, att.MessageID); err != nil {
			slog.Warn("Failed to mark message read", "message_id", att.MessageID, "error", err)
		}
	}

	pairs, unpaired := s.pairDocuments(run.Documents)
	for _, p := range pairs {
		v, err := s.verify(p[0], p[1], src.Name())
		if err != nil {
			run.Failures = append(run.Failures, fmt.Sprintf("%s/%s: %v", p[0].Filename, p[1].Filename, err))
			continue
		}
		run.Verifications = append(run.Verifications, v)
	}
	for _, d := range unpaired {
		run.Unpaired = append(run.Unpaired, d.ID)
	}

	slog.Info("Mailbox processed",
		"source", src.Name(),
		"documents", len(run.Documents),
		"verifications", len(run.Verifications),
		"unpaired", len(run.Unpaired),
		"failures", len(run.Failures),
	)
	return run, nil
}

// pairKey is the numeric core of a document's order id, or its text when it has no digits
func (s *Service) pairKey(doc *Document) string {
	raw := doc.Record.Raw(matching.FieldOrderID)
	if raw == "" {
		return ""
	}
	id, err := s.comparator.Normalizer().NormalizeOrderID(raw)
	if err != nil {
		return ""
	}
	if id.Core != "" {
		return id.Core
	}
	return id.Text
}

// pairDocuments matches each invoice with the first unused purchase order
// sharing its pair key, in document order
func (s *Service) pairDocuments(docs []*Document) (pairs [][2]*Document, unpaired []*Document) {
	pos := make(map[string][]*Document)
	for _, d := range docs {
		if d.Kind != mailbox.KindPurchaseOrder {
			continue
		}
		if key := s.pairKey(d); key != "" {
			pos[key] = append(pos[key], d)
		}
	}

	used := make(map[string]bool)
	for _, d := range docs {
		if d.Kind != mailbox.KindInvoice {
			continue
		}
		key := s.pairKey(d)
		if candidates := pos[key]; key != "" && len(candidates) > 0 {
			pairs = append(pairs, [2]*Document{d, candidates[0]})
			pos[key] = candidates[1:]
			used[candidates[0].ID] = true
			used[d.ID] = true
		}
	}
	for _, d := range docs {
		if !used[d.ID] {
			unpaired = append(unpaired, d)
		}
	}
	return pairs, unpaired
}

// isClientError reports errors caused by the request rather than the server
func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, scanning.ErrNoText) ||
		errors.Is(err, scanning.ErrNoEngine)
}
