package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extraction metrics
	DocumentsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_documents_scanned_total",
			Help: "Total number of documents whose text was extracted",
		},
		[]string{"method", "engine"},
	)

	EngineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_ocr_engine_failures_total",
			Help: "Total number of OCR engine errors that fell through to the next engine",
		},
		[]string{"engine"},
	)

	RecognizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_match_ocr_duration_seconds",
			Help:    "Time spent recognizing a single page",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"engine"},
	)

	// Parsing metrics
	AssistantCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_assistant_calls_total",
			Help: "Total number of language model fallbacks by outcome",
		},
		[]string{"assistant", "outcome"},
	)

	// Comparison metrics
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_verifications_total",
			Help: "Total number of invoice and purchase order comparisons by verdict",
		},
		[]string{"verdict"},
	)

	FieldStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_field_status_total",
			Help: "Per-field comparison outcomes",
		},
		[]string{"field", "status"},
	)

	// Mailbox metrics
	AttachmentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_match_mailbox_attachments_total",
			Help: "Total number of attachments fetched from the mailbox",
		},
		[]string{"source", "kind"},
	)
)
