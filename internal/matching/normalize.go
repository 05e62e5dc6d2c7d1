package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	// ErrAbsentField means extraction found no candidate for the field
	ErrAbsentField = errors.New("absent field")
	// ErrUnparsedValue means the raw text could not be interpreted
	ErrUnparsedValue = errors.New("unparsed value")
)

// DateLayout is the canonical rendering of a normalized date
const DateLayout = "2006-01-02"

var (
	reOrdinal      = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	reSept         = regexp.MustCompile(`(?i)\bsept\b`)
	reDateSep      = regexp.MustCompile(`[-./]`)
	reTimeOfDay    = regexp.MustCompile(`(\d)[Tt](\d{1,2}:)`)
	reSpaces       = regexp.MustCompile(`\s+`)
	reDateFragment = regexp.MustCompile(`(?i)\b(\d{4}/\d{1,2}/\d{1,2}|\d{1,2}/\d{1,2}/\d{2,4}|\d{1,2} [a-z]{3,9} \d{4}|[a-z]{3,9} \d{1,2} \d{4}|\d{1,2}/[a-z]{3,9}/\d{4})\b`)
	reNumber       = regexp.MustCompile(`\d(?:[\d.,']*\d)?`)
	reDigitRun     = regexp.MustCompile(`\d+`)
	reAlphaCode    = regexp.MustCompile(`^[A-Za-z]{3}$`)
	reCodeToken    = regexp.MustCompile(`\b[A-Z]{3}\b`)
	reDecimalComma = regexp.MustCompile(`^\d+,\d{2}$`)
	reDotThousands = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	// longest first so "US$" wins over "$"
	{"US$", "USD"},
	{"C$", "CAD"},
	{"A$", "AUD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"¥", "JPY"},
	{"$", "USD"},
}

var currencyWords = map[string]string{
	"dollar":  "USD",
	"dollars": "USD",
	"euro":    "EUR",
	"euros":   "EUR",
	"pound":   "GBP",
	"pounds":  "GBP",
	"rupee":   "INR",
	"rupees":  "INR",
	"rs":      "INR",
	"yen":     "JPY",
}

var knownCurrencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "INR": true, "JPY": true,
	"CNY": true, "CAD": true, "AUD": true, "NZD": true, "CHF": true,
	"SGD": true, "HKD": true, "AED": true, "SAR": true, "ZAR": true,
	"SEK": true, "NOK": true, "DKK": true, "MXN": true, "BRL": true,
}

// Amount is a parsed monetary value
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency,omitempty"`
}

// OrderID is a normalized order or invoice number
type OrderID struct {
	// Core is the longest run of digits, empty when there is none
	Core string `json:"core,omitempty"`
	// Text is the lower-cased, whitespace-collapsed identifier
	Text string `json:"text"`
}

// Normalizer turns raw field text into comparable values. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	cfg      Config
	suffixes map[string]struct{}
}

// NewNormalizer creates a Normalizer; zero-valued settings fall back to DefaultConfig
func NewNormalizer(cfg Config) *Normalizer {
	cfg = cfg.withDefaults()
	suffixes := make(map[string]struct{}, len(cfg.LegalSuffixes))
	for _, s := range cfg.LegalSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			suffixes[s] = struct{}{}
		}
	}
	return &Normalizer{cfg: cfg, suffixes: suffixes}
}

// Config returns the effective configuration
func (n *Normalizer) Config() Config {
	return n.cfg
}

func unparsed(field FieldName, raw string) error {
	return fmt.Errorf("%w: %s %q", ErrUnparsedValue, field, raw)
}

// NormalizeVendor reduces a company name to its bare form: lower case, no
// punctuation, single spaces, legal-entity tokens removed.
func (n *Normalizer) NormalizeVendor(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			return -1
		case unicode.IsSpace(r):
			return ' '
		}
		return unicode.ToLower(r)
	}, raw)

	kept := make([]string, 0, 4)
	for _, tok := range strings.Fields(s) {
		if _, drop := n.suffixes[tok]; drop {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return "", unparsed(FieldVendor, raw)
	}
	return strings.Join(kept, " "), nil
}

// VendorsEqual compares two normalized vendor names. Names are equal when
// identical, or when the shorter one has at least MinVendorOverlap characters
// and is contained in the longer one (truncated OCR reads).
func (n *Normalizer) VendorsEqual(a, b string) bool {
	a = strings.ReplaceAll(a, " ", "")
	b = strings.ReplaceAll(b, " ", "")
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= n.cfg.MinVendorOverlap && strings.Contains(long, short)
}

// NormalizeDate parses a date using the configured layouts, first match wins.
// The result is midnight UTC.
func (n *Normalizer) NormalizeDate(raw string) (time.Time, error) {
	s := canonicalDateText(raw)
	if s == "" {
		return time.Time{}, unparsed(FieldDate, raw)
	}
	if t, ok := n.parseDate(s); ok {
		return t, nil
	}
	if frag := reDateFragment.FindString(s); frag != "" && frag != s {
		if t, ok := n.parseDate(frag); ok {
			return t, nil
		}
	}
	return time.Time{}, unparsed(FieldDate, raw)
}

func (n *Normalizer) parseDate(s string) (time.Time, bool) {
	for _, layout := range n.cfg.DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// canonicalDateText unifies separators so one layout covers "-", "." and "/"
func canonicalDateText(raw string) string {
	s := strings.TrimSpace(raw)
	s = reOrdinal.ReplaceAllString(s, "$1")
	s = reSept.ReplaceAllString(s, "Sep")
	// 2025-10-30T10:00:00 keeps only a space between date and time
	s = reTimeOfDay.ReplaceAllString(s, "$1 $2")
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, ". ", " ")
	s = reDateSep.ReplaceAllString(s, "/")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.Trim(s, " /")
	return s
}

// NormalizeAmount strips symbols and thousands separators and parses the
// remaining number. The currency is inferred from symbols or codes when present.
func (n *Normalizer) NormalizeAmount(raw string) (Amount, error) {
	loc := reNumber.FindStringIndex(raw)
	if loc == nil {
		return Amount{}, unparsed(FieldTotal, raw)
	}
	num := strings.ReplaceAll(raw[loc[0]:loc[1]], "'", "")
	currency := inferCurrency(raw)

	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")
	switch {
	case currency == "EUR" && reDotThousands.MatchString(num):
		// €1.234 is one thousand two hundred thirty-four
		num = strings.ReplaceAll(num, ".", "")
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		if reDecimalComma.MatchString(num) {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	}

	value, err := decimal.NewFromString(num)
	if err != nil {
		return Amount{}, unparsed(FieldTotal, raw)
	}
	prefix := strings.TrimRight(raw[:loc[0]], " $€£₹¥")
	if strings.HasSuffix(prefix, "-") || strings.HasSuffix(prefix, "(") {
		value = value.Neg()
	}
	return Amount{Value: value, Currency: currency}, nil
}

// AmountsEqual applies the tolerance band. Amounts in two different known
// currencies are never equal.
func (n *Normalizer) AmountsEqual(a, b Amount) bool {
	if a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		return false
	}
	diff := a.Value.Sub(b.Value).Abs()
	if diff.LessThanOrEqual(n.cfg.AbsoluteTolerance) {
		return true
	}
	base := decimal.Max(a.Value.Abs(), b.Value.Abs())
	return diff.LessThanOrEqual(base.Mul(n.cfg.RelativeTolerance))
}

// IsCurrencyCode reports whether s is a known ISO 4217 code, in any case
func IsCurrencyCode(s string) bool {
	return reAlphaCode.MatchString(s) && knownCurrencyCodes[strings.ToUpper(s)]
}

// NormalizeCurrency maps a currency word, a known code or a symbol to an
// ISO 4217 code. Other three-letter tokens such as VAT are rejected.
func (n *Normalizer) NormalizeCurrency(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if code, ok := currencyWords[strings.ToLower(s)]; ok {
		return code, nil
	}
	if IsCurrencyCode(s) {
		return strings.ToUpper(s), nil
	}
	if code := inferCurrency(s); code != "" {
		return code, nil
	}
	return "", unparsed(FieldCurrency, raw)
}

func inferCurrency(raw string) string {
	upper := strings.ToUpper(raw)
	for _, tok := range reCodeToken.FindAllString(upper, -1) {
		if knownCurrencyCodes[tok] {
			return tok
		}
	}
	for _, cs := range currencySymbols {
		if strings.Contains(upper, cs.symbol) {
			return cs.code
		}
	}
	for _, word := range strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if code, ok := currencyWords[word]; ok {
			return code
		}
	}
	return ""
}

// NormalizeOrderID extracts the numeric core of an identifier
func (n *Normalizer) NormalizeOrderID(raw string) (OrderID, error) {
	text := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if text == "" {
		return OrderID{}, unparsed(FieldOrderID, raw)
	}
	var core string
	for _, run := range reDigitRun.FindAllString(raw, -1) {
		if len(run) > len(core) {
			core = run
		}
	}
	return OrderID{Core: core, Text: text}, nil
}

// OrderIDsEqual matches on numeric cores, or on text when either has no digits
func (n *Normalizer) OrderIDsEqual(a, b OrderID) bool {
	if a.Core != "" && b.Core != "" {
		return a.Core == b.Core
	}
	return a.Text == b.Text
}
