package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-match/internal/mailbox"
	"github.com/zombor/invoice-match/internal/matching"
	"github.com/zombor/invoice-match/internal/parsing"
	"github.com/zombor/invoice-match/internal/report"
	"github.com/zombor/invoice-match/internal/scanning"
	"github.com/zombor/invoice-match/internal/verification"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// errMismatch makes a one-off comparison exit with status 2
var errMismatch = errors.New("documents do not match")

type config struct {
	port        *int
	dbPath      *string
	storagePath *string
	masterCSV   *string
	workers     *int

	engines       *string
	tesseractLang *string
	dpi           *int
	maxPages      *int
	geminiKey     *string
	geminiModel   *string
	ollamaURL     *string
	ollamaModel   *string

	assistant   *string
	openaiKey   *string
	openaiModel *string
	openaiURL   *string

	absTolerance  *string
	relTolerance  *string
	vendorOverlap *int
	legalSuffixes *string

	mailboxType *string
	gmailCreds  *string
	gmailToken  *string
	imapAddr    *string
	imapUser    *string
	imapPass    *string
	imapMailbox *string

	authUser *string
	authPass *string

	invoicePath *string
	poPath      *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	flags := ff.NewFlagSet("invoice-match")
	cfg := config{
		port:        flags.IntLong("port", 8080, "HTTP server port"),
		dbPath:      flags.StringLong("db", "invoice-match.db", "Database file path"),
		storagePath: flags.StringLong("storage", "./documents", "Storage directory path"),
		masterCSV:   flags.StringLong("master-csv", "master_invoice_po_records.csv", "CSV file every verification is appended to, empty to disable"),
		workers:     flags.IntLong("workers", 4, "Mailbox attachments processed in parallel"),

		engines:       flags.StringLong("engines", "tesseract", "Comma separated OCR engines in fallback order: tesseract, gemini, ollama"),
		tesseractLang: flags.StringLong("tesseract-lang", "eng", "Tesseract languages, e.g. eng+deu"),
		dpi:           flags.IntLong("dpi", 300, "Resolution used to render scanned PDF pages"),
		maxPages:      flags.IntLong("max-pages", 5, "Maximum PDF pages to OCR"),
		geminiKey:     flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:   flags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		ollamaURL:     flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:   flags.StringLong("ollama-model", "llava", "Ollama vision model name"),

		assistant:   flags.StringLong("assistant", "none", "Language model used when fields are missing: none, openai or gemini"),
		openaiKey:   flags.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)"),
		openaiModel: flags.StringLong("openai-model", "", "OpenAI model name"),
		openaiURL:   flags.StringLong("openai-url", "", "OpenAI compatible API base URL"),

		absTolerance:  flags.StringLong("abs-tolerance", "0.01", "Largest total difference treated as equal"),
		relTolerance:  flags.StringLong("rel-tolerance", "0.005", "Largest total difference as a fraction of the larger total"),
		vendorOverlap: flags.IntLong("vendor-overlap", 4, "Shortest vendor name accepted for substring matches"),
		legalSuffixes: flags.StringLong("legal-suffixes", "", "Comma separated tokens removed from vendor names, empty for the defaults"),

		mailboxType: flags.StringLong("mailbox", "none", "Mailbox source: none, gmail or imap"),
		gmailCreds:  flags.StringLong("gmail-credentials", "credentials.json", "Gmail OAuth client credentials file"),
		gmailToken:  flags.StringLong("gmail-token", "token.json", "Gmail OAuth token file"),
		imapAddr:    flags.StringLong("imap-addr", "imap.gmail.com:993", "IMAP server host:port"),
		imapUser:    flags.StringLong("imap-user", "", "IMAP username"),
		imapPass:    flags.StringLong("imap-pass", "", "IMAP password or app password"),
		imapMailbox: flags.StringLong("imap-mailbox", "INBOX", "IMAP mailbox to scan"),

		authUser: flags.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass: flags.StringLong("auth-pass", "", "Basic auth password (optional)"),

		invoicePath: flags.StringLong("invoice", "", "Invoice file to compare once and exit"),
		poPath:      flags.StringLong("po", "", "Purchase order file to compare once and exit"),
	}
	showVersion := flags.BoolLong("version", "Show version information")

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_MATCH"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, cfg)
	stop()
	switch {
	case errors.Is(err, errMismatch):
		os.Exit(2)
	case err != nil:
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	matchCfg, err := matchingConfig(cfg)
	if err != nil {
		return err
	}
	comparator := matching.NewComparator(matchCfg)

	scanner, err := newScanner(cfg)
	if err != nil {
		return err
	}
	defer scanner.Close()

	parser, closeParser, err := newParser(cfg)
	if err != nil {
		return err
	}
	defer closeParser()

	if *cfg.invoicePath != "" || *cfg.poPath != "" {
		return compareFiles(ctx, scanner, parser, comparator, *cfg.invoicePath, *cfg.poPath)
	}

	slog.Info("Initializing database...")
	db, err := verification.NewBoltDB(*cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := verification.NewLocalStorage(*cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	source, err := newMailbox(ctx, cfg)
	if err != nil {
		return err
	}
	if source != nil {
		defer source.Close()
	}

	service := verification.NewService(db, scanner, parser, comparator, store, verification.Options{
		Mailbox:   source,
		MasterCSV: *cfg.masterCSV,
		Workers:   *cfg.workers,
	})

	server := verification.NewServer(service, verification.BasicAuth{
		Username: *cfg.authUser,
		Password: *cfg.authPass,
	})
	if *cfg.authUser != "" || *cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", *cfg.authUser)
	}

	addr := fmt.Sprintf(":%d", *cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	return server.Start(ctx, addr)
}

// matchingConfig builds the comparison settings from flags
func matchingConfig(cfg config) (matching.Config, error) {
	mc := matching.DefaultConfig()
	abs, err := decimal.NewFromString(*cfg.absTolerance)
	if err != nil {
		return mc, fmt.Errorf("invalid --abs-tolerance %q: %w", *cfg.absTolerance, err)
	}
	rel, err := decimal.NewFromString(*cfg.relTolerance)
	if err != nil {
		return mc, fmt.Errorf("invalid --rel-tolerance %q: %w", *cfg.relTolerance, err)
	}
	if abs.IsNegative() || rel.IsNegative() {
		return mc, fmt.Errorf("tolerances must not be negative")
	}
	mc.AbsoluteTolerance = abs
	mc.RelativeTolerance = rel
	mc.MinVendorOverlap = *cfg.vendorOverlap
	if s := splitList(*cfg.legalSuffixes); len(s) > 0 {
		mc.LegalSuffixes = s
	}
	return mc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// newScanner builds the extractor with its OCR engines in fallback order
func newScanner(cfg config) (*scanning.Extractor, error) {
	var engines []scanning.Engine
	closeAll := func() {
		for _, e := range engines {
			e.Close()
		}
	}

	for _, name := range splitList(*cfg.engines) {
		switch strings.ToLower(name) {
		case "tesseract":
			slog.Info("Initializing Tesseract engine...", "languages", *cfg.tesseractLang)
			engines = append(engines, scanning.NewTesseract(strings.Split(*cfg.tesseractLang, "+")...))
		case "gemini":
			apiKey := *cfg.geminiKey
			if apiKey == "" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			if apiKey == "" {
				closeAll()
				return nil, fmt.Errorf("gemini API key is required, set --gemini-key or GEMINI_API_KEY")
			}
			slog.Info("Initializing Gemini engine...", "model", *cfg.geminiModel)
			g, err := scanning.NewGemini(apiKey, *cfg.geminiModel)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("initializing gemini: %w", err)
			}
			engines = append(engines, g)
		case "ollama":
			slog.Info("Initializing Ollama engine...", "url", *cfg.ollamaURL, "model", *cfg.ollamaModel)
			o, err := scanning.NewOllama(*cfg.ollamaURL, *cfg.ollamaModel)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("initializing ollama: %w", err)
			}
			engines = append(engines, o)
		default:
			closeAll()
			return nil, fmt.Errorf("invalid OCR engine %q, valid: tesseract, gemini, ollama", name)
		}
	}
	if len(engines) == 0 {
		slog.Warn("No OCR engine configured, only PDFs with a text layer can be read")
	}

	return scanning.NewExtractor(scanning.Options{
		DPI:      float64(*cfg.dpi),
		MaxPages: *cfg.maxPages,
		Upscale:  scanning.DefaultOptions().Upscale,
	}, engines...), nil
}

// newParser returns the regex parser, wrapped with a language model fallback when configured
func newParser(cfg config) (parsing.Parser, func(), error) {
	noop := func() {}
	primary := parsing.NewRegexParser()

	switch strings.ToLower(*cfg.assistant) {
	case "", "none":
		return primary, noop, nil
	case "openai":
		apiKey := *cfg.openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI assistant...", "model", *cfg.openaiModel)
		a, err := parsing.NewOpenAIAssistant(apiKey, *cfg.openaiModel, *cfg.openaiURL)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing openai: %w", err)
		}
		return parsing.NewFallbackParser(primary, a), noop, nil
	case "gemini":
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini assistant...", "model", *cfg.geminiModel)
		a, err := parsing.NewGeminiAssistant(apiKey, *cfg.geminiModel)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing gemini assistant: %w", err)
		}
		return parsing.NewFallbackParser(primary, a), func() { a.Close() }, nil
	}
	return nil, noop, fmt.Errorf("invalid assistant %q, valid: none, openai, gemini", *cfg.assistant)
}

// newMailbox returns the configured mailbox source, or nil
func newMailbox(ctx context.Context, cfg config) (mailbox.Source, error) {
	switch strings.ToLower(*cfg.mailboxType) {
	case "", "none":
		return nil, nil
	case "gmail":
		slog.Info("Initializing Gmail source...", "credentials", *cfg.gmailCreds)
		g, err := mailbox.NewGmailFromFiles(ctx, *cfg.gmailCreds, *cfg.gmailToken)
		if err != nil {
			return nil, fmt.Errorf("initializing gmail: %w", err)
		}
		return g, nil
	case "imap":
		slog.Info("Initializing IMAP source...", "address", *cfg.imapAddr, "user", *cfg.imapUser)
		m, err := mailbox.NewIMAP(mailbox.IMAPConfig{
			Address:  *cfg.imapAddr,
			Username: *cfg.imapUser,
			Password: *cfg.imapPass,
			Mailbox:  *cfg.imapMailbox,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing imap: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("invalid mailbox %q, valid: none, gmail, imap", *cfg.mailboxType)
}

// compareFiles extracts and compares two local files and prints the table to stdout
func compareFiles(ctx context.Context, scanner scanning.Scanner, parser parsing.Parser, comparator *matching.Comparator, invoicePath, poPath string) error {
	if invoicePath == "" || poPath == "" {
		return fmt.Errorf("both --invoice and --po are required")
	}

	records := make([]matching.Record, 2)
	for i, path := range []string{invoicePath, poPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text, err := scanner.ScanDocument(ctx, data, scanning.DetectContentType(data, filepath.Base(path)))
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		records[i], err = parser.Parse(ctx, text.Content)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	res := comparator.Compare(records[0], records[1])
	if err := report.WriteComparison(os.Stdout, res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if res.Overall == matching.VerdictMismatch {
		return errMismatch
	}
	return nil
}
