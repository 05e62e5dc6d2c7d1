package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zombor/invoice-match/internal/matching"
)

// Row is one verification in the master table
type Row struct {
	VerificationID string
	CreatedAt      time.Time
	Source         string
	Result         matching.Result
}

// MasterHeader returns the columns of the master table
func MasterHeader() []string {
	return append([]string{"verification_id", "created_at", "source"}, matching.CSVHeader()...)
}

func (r Row) record() []string {
	return append([]string{r.VerificationID, r.CreatedAt.UTC().Format(time.RFC3339), r.Source}, r.Result.CSVRow()...)
}

// WriteComparison writes the per-field table of a single comparison
func WriteComparison(w io.Writer, res matching.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"field", "invoice", "po", "status"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, f := range res.Fields {
		if err := cw.Write([]string{string(f.Field), f.Invoice, f.PurchaseOrder, string(f.Status)}); err != nil {
			return fmt.Errorf("writing field %s: %w", f.Field, err)
		}
	}
	if err := cw.Write([]string{"overall", "", "", string(res.Overall)}); err != nil {
		return fmt.Errorf("writing verdict: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// WriteMaster writes the master table with its header
func WriteMaster(w io.Writer, rows []Row) error {
	return writeRows(w, rows, true)
}

func writeRows(w io.Writer, rows []Row, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(MasterHeader()); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("writing row %s: %w", r.VerificationID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var appendMu sync.Mutex

// AppendMaster appends rows to the master CSV at path, creating it with a
// header when it does not exist or is empty
func AppendMaster(path string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	appendMu.Lock()
	defer appendMu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening master csv: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("checking master csv: %w", err)
	}
	if err := writeRows(f, rows, info.Size() == 0); err != nil {
		return fmt.Errorf("appending to master csv: %w", err)
	}
	return f.Sync()
}
