package matching

import (
	"github.com/shopspring/decimal"
)

// Config holds the tunables of the normalizer and comparator
type Config struct {
	// AbsoluteTolerance is the largest amount difference still treated as equal
	AbsoluteTolerance decimal.Decimal
	// RelativeTolerance is a fraction of the larger amount (0.005 = 0.5%)
	RelativeTolerance decimal.Decimal
	// MinVendorOverlap is the shortest vendor name accepted for substring matches
	MinVendorOverlap int
	// LegalSuffixes are tokens removed from vendor names
	LegalSuffixes []string
	// DateLayouts are tried in order; the first successful parse wins
	DateLayouts []string
}

var defaultLegalSuffixes = []string{
	"pvt", "private", "ltd", "limited",
	"inc", "incorporated", "llc", "llp", "plc",
	"corp", "corporation", "co", "company", "gmbh",
}

// Separators are rewritten to "/" before numeric layouts are tried.
var defaultDateLayouts = []string{
	// day/month/year
	"2/1/2006",
	"2/1/06",
	// month/day/year
	"1/2/2006",
	"1/2/06",
	// ISO
	"2006/1/2",
	// textual month
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2/Jan/2006",
	"2/January/2006",
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() Config {
	return Config{
		AbsoluteTolerance: decimal.RequireFromString("0.01"),
		RelativeTolerance: decimal.RequireFromString("0.005"),
		MinVendorOverlap:  4,
		LegalSuffixes:     append([]string(nil), defaultLegalSuffixes...),
		DateLayouts:       append([]string(nil), defaultDateLayouts...),
	}
}

// withDefaults fills zero-valued settings from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AbsoluteTolerance.IsZero() && c.RelativeTolerance.IsZero() && c.MinVendorOverlap == 0 {
		// zero value Config
		c.AbsoluteTolerance = def.AbsoluteTolerance
		c.RelativeTolerance = def.RelativeTolerance
	}
	if c.AbsoluteTolerance.IsNegative() {
		c.AbsoluteTolerance = def.AbsoluteTolerance
	}
	if c.RelativeTolerance.IsNegative() {
		c.RelativeTolerance = def.RelativeTolerance
	}
	if c.MinVendorOverlap <= 0 {
		c.MinVendorOverlap = def.MinVendorOverlap
	}
	if len(c.LegalSuffixes) == 0 {
		c.LegalSuffixes = def.LegalSuffixes
	}
	if len(c.DateLayouts) == 0 {
		c.DateLayouts = def.DateLayouts
	}
	return c
}
