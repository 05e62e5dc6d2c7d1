package verification

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/zombor/invoice-match/internal/mailbox"
	"github.com/zombor/invoice-match/internal/report"
)

const (
	// maxFileSize covers high-resolution phone photos and multi-page scans
	maxFileSize = int64(50 << 20)
	// maxFormSize allows one invoice and one purchase order per request
	maxFormSize     = 2 * maxFileSize
	defaultFetchMax = 10
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps service errors to status codes and writes a JSON error body
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, ErrNotFound):
		code, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, ErrNoMailbox):
		code, msg = http.StatusServiceUnavailable, err.Error()
	case isClientError(err):
		code, msg = http.StatusUnprocessableEntity, err.Error()
	default:
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// readUpload reads one file field of a parsed multipart form
func readUpload(r *http.Request, field string, kind mailbox.Kind) (Upload, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return Upload{}, fmt.Errorf("no %s file was provided", field)
		}
		return Upload{}, fmt.Errorf("reading %s: %w", field, err)
	}
	defer f.Close()
	return uploadFrom(f, header, kind)
}

func uploadFrom(f multipart.File, header *multipart.FileHeader, kind mailbox.Kind) (Upload, error) {
	if header.Size > maxFileSize {
		return Upload{}, fmt.Errorf("%s is too large, the maximum size is 50MB", header.Filename)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, fmt.Errorf("reading %s: %w", header.Filename, err)
	}
	return Upload{
		Filename:    header.Filename,
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Kind:        kind,
		Source:      SourceUpload,
	}, nil
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, "Upload is too large. Maximum size is 50MB per file.")
		} else {
			badRequest(w, "Error parsing form")
		}
		return false
	}
	return true
}

// handleVerifyUpload compares an uploaded invoice and purchase order
func (s *Server) handleVerifyUpload(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	invoice, err := readUpload(r, "invoice", mailbox.KindInvoice)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	po, err := readUpload(r, "purchase_order", mailbox.KindPurchaseOrder)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	v, err := s.service.VerifyPair(r.Context(), invoice, po)
	if err != nil {
		slog.Error("Error verifying documents", "invoice", invoice.Filename, "purchase_order", po.Filename, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleVerifyStored compares two previously uploaded documents
func (s *Server) handleVerifyStored(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceID       string `json:"invoice_id"`
		PurchaseOrderID string `json:"purchase_order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if req.InvoiceID == "" || req.PurchaseOrderID == "" {
		badRequest(w, "invoice_id and purchase_order_id are required")
		return
	}

	v, err := s.service.Verify(r.Context(), req.InvoiceID, req.PurchaseOrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleListVerifications returns all verifications
func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	vs, err := s.service.ListVerifications()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// handleGetVerification returns one verification with its documents
func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.GetVerification(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]any{"verification": v}
	if doc, err := s.service.GetDocument(v.InvoiceID); err == nil {
		response["invoice"] = doc
	}
	if doc, err := s.service.GetDocument(v.PurchaseOrderID); err == nil {
		response["purchase_order"] = doc
	}
	writeJSON(w, http.StatusOK, response)
}

// handleDeleteVerification deletes a verification
func (s *Server) handleDeleteVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteVerification(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVerificationCSV downloads the per-field table of one verification
func (s *Server) handleVerificationCSV(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.GetVerification(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="verification_%s.csv"`, v.ID))
	if err := report.WriteComparison(w, v.Result); err != nil {
		slog.Error("Error writing CSV", "id", v.ID, "error", err)
	}
}

// handleListDocuments returns all documents, filtered by ?kind=
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	var kind mailbox.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, ok := mailbox.ParseKind(k)
		if !ok {
			badRequest(w, fmt.Sprintf("unknown kind %q", k))
			return
		}
		kind = parsed
	}
	docs, err := s.service.ListDocuments(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleGetDocument returns a single document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.GetDocument(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetDocumentFile returns the original file of a document
func (s *Server) handleGetDocumentFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDocumentFile(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUploadDocument processes a single invoice or purchase order
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	kind, ok := mailbox.ParseKind(r.FormValue("kind"))
	if !ok {
		badRequest(w, "kind must be invoice or purchase_order")
		return
	}
	up, err := readUpload(r, "file", kind)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	doc, err := s.service.ProcessDocument(r.Context(), up)
	if err != nil {
		slog.Error("Error processing document", "filename", up.Filename, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleFetchMailbox processes unread mail, ?max= attachments at most
func (s *Server) handleFetchMailbox(w http.ResponseWriter, r *http.Request) {
	max := defaultFetchMax
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "max must be a positive number")
			return
		}
		max = n
	}

	run, err := s.service.ProcessMailbox(r.Context(), max)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleExportCSV downloads the master table as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.MasterRows()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="master_invoice_po_records.csv"`)
	if err := report.WriteMaster(w, rows); err != nil {
		slog.Error("Error writing CSV", "error", err)
	}
}

// handleExportXLSX downloads the master table as a workbook
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.MasterRows()
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := report.WriteXLSX(rows)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="master_invoice_po_records.xlsx"`)
	w.Write(data)
}
