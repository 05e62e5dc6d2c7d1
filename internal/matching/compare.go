package matching

import (
	"errors"
	"fmt"
)

// Status is the outcome of comparing one field
type Status string

const (
	StatusMatch    Status = "match"
	StatusMismatch Status = "mismatch"
	StatusMissing  Status = "missing"
)

// Verdict is the aggregate outcome of comparing two records
type Verdict string

const (
	VerdictMatch        Verdict = "match"
	VerdictMismatch     Verdict = "mismatch"
	VerdictInconclusive Verdict = "inconclusive"
)

// FieldResult is the comparison of one field across both documents
type FieldResult struct {
	Field         FieldName `json:"field"`
	Invoice       string    `json:"invoice"`
	PurchaseOrder string    `json:"purchase_order"`
	Status        Status    `json:"status"`
	// Cause is set when Status is missing: ErrAbsentField or ErrUnparsedValue
	Cause error `json:"-"`
	// Note carries the normalized values for display
	Note string `json:"note,omitempty"`
}

// Result is the comparison of an invoice against a purchase order
type Result struct {
	Fields  []FieldResult `json:"fields"`
	Overall Verdict       `json:"overall"`
}

// Field returns the result for one field
func (r Result) Field(name FieldName) (FieldResult, bool) {
	for _, f := range r.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldResult{}, false
}

// Mismatches counts fields whose status is mismatch
func (r Result) Mismatches() int {
	n := 0
	for _, f := range r.Fields {
		if f.Status == StatusMismatch {
			n++
		}
	}
	return n
}

// CSVHeader returns the column names of the flat CSV row: raw values for both
// documents and the status of each field, then the overall verdict.
func CSVHeader() []string {
	header := make([]string, 0, len(fieldOrder)*3+1)
	for _, f := range fieldOrder {
		header = append(header, "invoice_"+string(f), "po_"+string(f), string(f)+"_status")
	}
	return append(header, "overall")
}

// CSVRow renders the result in the column order of CSVHeader
func (r Result) CSVRow() []string {
	row := make([]string, 0, len(fieldOrder)*3+1)
	for _, name := range fieldOrder {
		f, ok := r.Field(name)
		if !ok {
			f = FieldResult{Status: StatusMissing}
		}
		row = append(row, f.Invoice, f.PurchaseOrder, string(f.Status))
	}
	return append(row, string(r.Overall))
}

// Comparator compares invoice and purchase order records field by field.
// It is safe for concurrent use.
type Comparator struct {
	norm *Normalizer
}

// NewComparator creates a Comparator with the given configuration
func NewComparator(cfg Config) *Comparator {
	return &Comparator{norm: NewNormalizer(cfg)}
}

// Normalizer returns the normalizer used for comparisons
func (c *Comparator) Normalizer() *Normalizer {
	return c.norm
}

// Compare produces a per-field status and an overall verdict. Fields that are
// absent or cannot be interpreted on either side are reported as missing and
// do not influence the verdict of the others.
func (c *Comparator) Compare(invoice, po Record) Result {
	res := Result{Fields: make([]FieldResult, 0, len(fieldOrder))}
	compared, mismatched := 0, 0

	for _, name := range fieldOrder {
		inv, _ := invoice.Get(name)
		ord, _ := po.Get(name)
		fr := FieldResult{
			Field:         name,
			Invoice:       inv.RawText,
			PurchaseOrder: ord.RawText,
		}

		if !inv.usable() || !ord.usable() {
			fr.Status = StatusMissing
			fr.Cause = fmt.Errorf("%w: %s", ErrAbsentField, name)
			res.Fields = append(res.Fields, fr)
			continue
		}

		equal, note, err := c.compareField(name, inv.RawText, ord.RawText)
		fr.Note = note
		switch {
		case err != nil:
			fr.Status = StatusMissing
			fr.Cause = err
		case equal:
			fr.Status = StatusMatch
			compared++
		default:
			fr.Status = StatusMismatch
			compared++
			mismatched++
		}
		res.Fields = append(res.Fields, fr)
	}

	switch {
	case compared == 0:
		res.Overall = VerdictInconclusive
	case mismatched == 0:
		res.Overall = VerdictMatch
	default:
		res.Overall = VerdictMismatch
	}
	return res
}

func (c *Comparator) compareField(name FieldName, a, b string) (bool, string, error) {
	n := c.norm
	switch name {
	case FieldVendor:
		va, vb, err := both(n.NormalizeVendor, a, b)
		if err != nil {
			return false, "", err
		}
		return n.VendorsEqual(va, vb), va + " | " + vb, nil
	case FieldDate:
		da, db, err := both(n.NormalizeDate, a, b)
		if err != nil {
			return false, "", err
		}
		return da.Equal(db), da.Format(DateLayout) + " | " + db.Format(DateLayout), nil
	case FieldTotal:
		ta, tb, err := both(n.NormalizeAmount, a, b)
		if err != nil {
			return false, "", err
		}
		return n.AmountsEqual(ta, tb), ta.Value.String() + " | " + tb.Value.String(), nil
	case FieldCurrency:
		ca, cb, err := both(n.NormalizeCurrency, a, b)
		if err != nil {
			return false, "", err
		}
		return ca == cb, ca + " | " + cb, nil
	case FieldOrderID:
		oa, ob, err := both(n.NormalizeOrderID, a, b)
		if err != nil {
			return false, "", err
		}
		if oa.Core != "" && ob.Core != "" {
			return n.OrderIDsEqual(oa, ob), oa.Core + " | " + ob.Core, nil
		}
		return n.OrderIDsEqual(oa, ob), oa.Text + " | " + ob.Text, nil
	}
	return false, "", fmt.Errorf("%w: unknown field %s", ErrUnparsedValue, name)
}

// both normalizes the two sides; failures on either side are joined
func both[T any](fn func(string) (T, error), a, b string) (T, T, error) {
	var zero T
	na, errA := fn(a)
	nb, errB := fn(b)
	if err := errors.Join(errA, errB); err != nil {
		return zero, zero, err
	}
	return na, nb, nil
}
