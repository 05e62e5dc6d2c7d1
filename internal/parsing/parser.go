package parsing

import (
	"context"

	"github.com/zombor/invoice-match/internal/matching"
)

// Parser turns the raw text of a document into a record of fields
type Parser interface {
	Parse(ctx context.Context, text string) (matching.Record, error)
}

// Assistant suggests field values for a document, typically backed by a
// language model. Only fields it could find are returned.
type Assistant interface {
	Name() string
	Suggest(ctx context.Context, text string) (map[matching.FieldName]string, error)
}
