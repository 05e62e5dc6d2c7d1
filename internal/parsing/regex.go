package parsing

import (
	"context"
	"regexp"
	"strings"

	"github.com/zombor/invoice-match/internal/matching"
)

// maxVendorLength caps the vendor name taken from a line of text
const maxVendorLength = 64

var (
	reVendorInline = regexp.MustCompile(`(?im)^[ \t]*(?:seller|vendor|supplier|sold[ \t]+by|from)[ \t]*:[ \t]*(.+?)[ \t]*$`)
	reVendorLabel  = regexp.MustCompile(`(?i)^\s*(?:seller|vendor|supplier|sold\s+by|from)\s*:?\s*$`)
	reDocTitle     = regexp.MustCompile(`(?i)^(?:tax\s+|commercial\s+|proforma\s+)?(?:invoice|purchase\s+order|order|bill|receipt|statement)$`)

	reNumericDate = regexp.MustCompile(`\b(?:\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}[-/.]\d{1,2}[-/.]\d{1,2})\b`)
	reTextualDate = regexp.MustCompile(`(?i)\b(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4})\b`)

	reInvoiceNumber = regexp.MustCompile(`(?i)invoice[ \t]*(?:number|no\.?|#)[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-/]*)`)
	rePONumber      = regexp.MustCompile(`(?i)(?:purchase[ \t]+order[ \t]*(?:number|no\.?|#)?|\bP\.?O\.?[ \t]*(?:number|no\.?|#)?)[ \t]*[:#]?[ \t]*([A-Z0-9][A-Z0-9\-/]*)`)
	reIDShape       = regexp.MustCompile(`(?i)[A-Z]{2,}-\d{6,}|\d{8,}`)
	reDigit         = regexp.MustCompile(`\d`)

	reMoney      = regexp.MustCompile(`(?:\b([A-Z]{3})\s?)?([$€£₹¥])?\s?(\d{1,3}(?:\.\d{3})+,\d{2}|\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+\.\d{2}|\d+,\d{2})\b`)
	reTotalLine  = regexp.MustCompile(`(?i)\b(?:grand\s+total|total\s+(?:due|amount|payable)|amount\s+(?:due|payable)|balance\s+due|total)\b`)
	reBareNumber = regexp.MustCompile(`\d[\d,.]*\d|\d`)
	reCurrency   = regexp.MustCompile(`(?im)^\s*currency\s*[:\s]\s*([A-Za-z]{3})\b`)
)

// RegexParser extracts fields with regular expressions over the raw text
type RegexParser struct{}

// NewRegexParser creates a RegexParser
func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

// Parse extracts vendor, date, total, currency and order id. Fields that
// cannot be found are recorded as absent; Parse never fails on content.
func (p *RegexParser) Parse(ctx context.Context, text string) (matching.Record, error) {
	if err := ctx.Err(); err != nil {
		return matching.Record{}, err
	}

	values := make([]matching.FieldValue, 0, 5)
	add := func(name matching.FieldName, raw string) {
		if raw != "" {
			values = append(values, matching.Found(name, raw))
		}
	}

	add(matching.FieldVendor, findVendor(text))
	add(matching.FieldDate, findDate(text))
	add(matching.FieldOrderID, findOrderID(text))

	total, currency := findTotal(text)
	add(matching.FieldTotal, total)
	add(matching.FieldCurrency, currency)

	return matching.NewRecord(values...), nil
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxVendorLength {
		s = strings.TrimSpace(string(r[:maxVendorLength]))
	}
	return s
}

// findVendor looks for a labelled seller on the same line, then on the line
// after a bare label, then falls back to the first line that is not a title
func findVendor(text string) string {
	for _, m := range reVendorInline.FindAllStringSubmatch(text, -1) {
		if v := clip(m[1]); v != "" && !reVendorLabel.MatchString(v) {
			return v
		}
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !reVendorLabel.MatchString(line) {
			continue
		}
		for _, next := range lines[i+1:] {
			if next = strings.TrimSpace(next); next != "" {
				return clip(next)
			}
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || reDocTitle.MatchString(line) {
			continue
		}
		return clip(line)
	}
	return ""
}

func findDate(text string) string {
	if m := reNumericDate.FindString(text); m != "" {
		return m
	}
	return reTextualDate.FindString(text)
}

// findOrderID prefers an invoice number over a purchase order number and
// accepts only values shaped like real identifiers
func findOrderID(text string) string {
	for _, re := range []*regexp.Regexp{reInvoiceNumber, rePONumber} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := strings.Trim(m[1], "-/")
			if validID(id) {
				return id
			}
		}
	}
	return ""
}

func validID(id string) bool {
	return reIDShape.MatchString(id) || len(reDigit.FindAllString(id, -1)) >= 6
}

type moneyMatch struct {
	text     string
	code     string
	symbol   string
	position int
}

// findMoney returns amounts in the text, skipping numbers that are part of a date
func findMoney(text string) []moneyMatch {
	var out []moneyMatch
	for _, loc := range reMoney.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[6], loc[7]
		if partOfDate(text, start, end) {
			continue
		}
		begin := loc[0]
		m := moneyMatch{}
		if loc[2] >= 0 {
			if code := text[loc[2]:loc[3]]; matching.IsCurrencyCode(code) {
				m.code = code
			} else if loc[4] >= 0 {
				// a label such as VAT or GST, not a currency
				begin = loc[4]
			} else {
				begin = start
			}
		}
		if loc[4] >= 0 {
			m.symbol = text[loc[4]:loc[5]]
		}
		m.text = strings.TrimSpace(text[begin:loc[1]])
		m.position = begin
		out = append(out, m)
	}
	return out
}

func partOfDate(text string, start, end int) bool {
	isSep := func(b byte) bool { return b == '.' || b == '/' || b == '-' }
	isDigit := func(b byte) bool { return b >= '0' && b <= '9' }
	if start >= 2 && isSep(text[start-1]) && isDigit(text[start-2]) {
		return true
	}
	if end+1 < len(text) && isSep(text[end]) && isDigit(text[end+1]) {
		return true
	}
	return false
}

// findTotal takes the amount on the last total line, falling back to the last
// amount in the document. The currency is an explicit currency line, then the
// first known ISO 4217 code next to an amount, then the symbol of the total.
func findTotal(text string) (total, currency string) {
	amounts := findMoney(text)

	if m := reCurrency.FindStringSubmatch(text); m != nil && matching.IsCurrencyCode(m[1]) {
		currency = strings.ToUpper(m[1])
	}
	if currency == "" {
		for _, a := range amounts {
			if a.code != "" {
				currency = a.code
				break
			}
		}
	}

	var chosen *moneyMatch
	offset := 0
	lines := strings.SplitAfter(text, "\n")
	lineStart := make([]int, len(lines))
	for i, line := range lines {
		lineStart[i] = offset
		offset += len(line)
	}
	for i := len(lines) - 1; i >= 0 && chosen == nil && total == ""; i-- {
		line := lines[i]
		if !reTotalLine.MatchString(line) {
			continue
		}
		end := lineStart[i] + len(line)
		for j := len(amounts) - 1; j >= 0; j-- {
			if amounts[j].position >= lineStart[i] && amounts[j].position < end {
				chosen = &amounts[j]
				break
			}
		}
		if chosen == nil {
			// amount without decimals, e.g. "Total: 1250"
			label := reTotalLine.FindStringIndex(line)
			if n := reBareNumber.FindString(line[label[1]:]); n != "" {
				total = n
			}
		}
	}
	if chosen == nil && total == "" && len(amounts) > 0 {
		chosen = &amounts[len(amounts)-1]
	}

	if chosen != nil {
		total = chosen.text
		if currency == "" && chosen.symbol != "" {
			currency = chosen.symbol
		}
	}
	return total, currency
}
