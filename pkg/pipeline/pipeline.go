// Package pipeline drives a stored document through text extraction,
// classification, preview rendering and the workflows listening for new
// documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dukex/docflow/pkg/ai"
	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/otelhelper"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/webhook"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Stage names used as keys of Report.Errors.
const (
	StageOCR       = "ocr"
	StageMatching  = "matching"
	StageThumbnail = "thumbnail"
	StageWorkflows = "workflows"
	StageMetadata  = "metadata"
	StageSummary   = "summary"
	StageWebhook   = "webhook"
)

const (
	DefaultConcurrency  = 4
	DefaultPendingLimit = 10
	summaryInputLimit   = 8000
	summaryMaxLength    = 200
	summarySystemPrompt = "You summarize archived documents. Answer with the summary only, in the language of the document."
)

var (
	// ErrFileNotFound is returned when a document has no readable file.
	ErrFileNotFound = errors.New("document file not found")
	// ErrNoText is recorded when OCR ran but recognized nothing.
	ErrNoText = errors.New("no text recognized")
)

// Trigger starts the workflows listening to an event.
type Trigger interface {
	TriggerForEvent(ctx context.Context, event models.TriggerEvent, bag *models.ContextBag) (workflow.TriggerResult, error)
}

// Report is the outcome of every stage for one document. A stage that
// failed leaves its slot at the zero value and records its error.
type Report struct {
	DocumentID string                 `json:"document_id"`
	OCR        bool                   `json:"ocr"`
	Matching   models.MatchingResult  `json:"matching"`
	Thumbnail  bool                   `json:"thumbnail"`
	Workflows  workflow.TriggerResult `json:"workflows"`
	PageCount  *int                   `json:"page_count,omitempty"`
	Summary    bool                   `json:"summary"`
	Indexed    bool                   `json:"indexed"`
	Errors     map[string]string      `json:"errors,omitempty"`
}

func (r *Report) fail(stage string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}

	r.Errors[stage] = err.Error()
}

// BatchResult counts the documents of a pending batch.
type BatchResult struct {
	Processed int      `json:"processed"`
	Errors    int      `json:"errors"`
	Failures  []string `json:"failures,omitempty"`
}

// Config wires the collaborators of a Pipeline. Documents and Workflows are
// required; a nil collaborator skips its stage.
type Config struct {
	Documents   persistence.DocumentRepository
	Workflows   Trigger
	Fetcher     protocol.FileFetcher
	OCR         protocol.OCR
	Matcher     protocol.Matcher
	Thumbnailer protocol.Thumbnailer
	AI          protocol.AI
	Webhooks    protocol.WebhookDispatcher
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Clock       func() time.Time
	Concurrency int
}

// Pipeline processes documents stage by stage.
type Pipeline struct {
	documents   persistence.DocumentRepository
	workflows   Trigger
	fetcher     protocol.FileFetcher
	ocr         protocol.OCR
	matcher     protocol.Matcher
	thumbnailer protocol.Thumbnailer
	ai          protocol.AI
	webhooks    protocol.WebhookDispatcher
	tracer      trace.Tracer
	logger      *slog.Logger
	clock       func() time.Time
	concurrency int
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		documents:   cfg.Documents,
		workflows:   cfg.Workflows,
		fetcher:     cfg.Fetcher,
		ocr:         cfg.OCR,
		matcher:     cfg.Matcher,
		thumbnailer: cfg.Thumbnailer,
		ai:          cfg.AI,
		webhooks:    cfg.Webhooks,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		concurrency: cfg.Concurrency,
	}

	if p.ai == nil {
		p.ai = ai.Noop{}
	}

	if p.webhooks == nil {
		p.webhooks = webhook.Noop{}
	}

	if p.tracer == nil {
		p.tracer = otelhelper.NoopTracer()
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	p.logger = p.logger.With("module", "pipeline")

	if p.clock == nil {
		p.clock = func() time.Time { return time.Now().UTC() }
	}

	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}

	return p
}

// Process runs every stage on documentID. Only a missing document, a missing
// file or a failure to store the result is returned as an error; stage
// failures are recorded in the report and never stop later stages.
func (p *Pipeline) Process(ctx context.Context, documentID string) (*Report, error) {
	doc, err := p.documents.DocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	path, cleanup, err := p.resolveFile(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger := p.logger.With("document_id", doc.ID)
	report := &Report{DocumentID: doc.ID}
	started := p.clock()

	if doc.NeedsOCR() && p.ocr != nil {
		p.stage(ctx, logger, report, StageOCR, func() error {
			return p.extractText(ctx, doc, path, report)
		})
	}

	if p.matcher != nil {
		p.stage(ctx, logger, report, StageMatching, func() error {
			return p.classify(ctx, doc, report)
		})
	}

	if doc.ThumbnailPath == "" && p.thumbnailer != nil {
		p.stage(ctx, logger, report, StageThumbnail, func() error {
			name, err := p.thumbnailer.Generate(ctx, path, doc.ID)
			if err != nil {
				return err
			}

			doc.ThumbnailPath = name
			report.Thumbnail = true

			return nil
		})
	}

	// Workflows read the document through the repository.
	err = p.documents.SaveDocument(ctx, doc)
	if err != nil {
		return report, fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	p.stage(ctx, logger, report, StageWorkflows, func() error {
		result, err := p.workflows.TriggerForEvent(ctx, models.TriggerDocumentAdded, documentBag(doc, report.Matching))
		report.Workflows = result

		if err != nil {
			return err
		}

		if len(result.Errors) > 0 {
			return fmt.Errorf("%d workflow(s) failed: %s", len(result.Errors), strings.Join(result.Errors, "; "))
		}

		return nil
	})

	if isPDF(doc, path) {
		p.stage(ctx, logger, report, StageMetadata, func() error {
			count, err := pageCount(path)
			if err != nil {
				return err
			}

			doc.PageCount = &count
			report.PageCount = &count

			return nil
		})
	}

	if doc.Summary == "" && p.ai.IsConfigured() {
		p.stage(ctx, logger, report, StageSummary, func() error {
			return p.summarize(ctx, doc, report)
		})
	}

	now := p.clock()
	doc.IsIndexed = true
	doc.IndexedAt = &now

	err = p.documents.SaveDocument(ctx, doc)
	if err != nil {
		return report, fmt.Errorf("failed to mark document %s indexed: %w", doc.ID, err)
	}

	report.Indexed = true

	p.stage(ctx, logger, report, StageWebhook, func() error {
		title := doc.Title
		if title == "" {
			title = doc.OriginalFilename
		}

		p.webhooks.Trigger(ctx, webhook.EventDocumentProcessed, map[string]any{
			"document_id": doc.ID,
			"title":       title,
			"is_indexed":  true,
			"indexed_at":  now.Format(time.RFC3339),
		})

		return nil
	})

	logger.InfoContext(ctx, "Document processed",
		"duration_ms", p.clock().Sub(started).Milliseconds(),
		"workflows", report.Workflows.Triggered,
		"failed_stages", len(report.Errors))

	return report, nil
}

// ProcessPendingDocuments processes up to limit documents not yet indexed,
// oldest first, with bounded concurrency. A failing or panicking document is
// counted and does not affect the others.
func (p *Pipeline) ProcessPendingDocuments(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}

	docs, err := p.documents.PendingDocuments(ctx, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list pending documents: %w", err)
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			err := p.processRecovered(gctx, doc.ID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Errors++
				result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", doc.ID, err))
				p.logger.ErrorContext(gctx, "Failed to process document", "document_id", doc.ID, "error", err)

				return nil
			}

			result.Processed++

			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return result, err
	}

	p.logger.InfoContext(ctx, "Pending documents processed", "processed", result.Processed, "errors", result.Errors)

	return result, nil
}

func (p *Pipeline) processRecovered(ctx context.Context, documentID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	_, err = p.Process(ctx, documentID)

	return err
}

// stage runs fn in its own span, recording an error or a panic under name.
func (p *Pipeline) stage(ctx context.Context, logger *slog.Logger, report *Report, name string, fn func() error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "pipeline."+name,
		attribute.String(otelhelper.DocumentIDKey, report.DocumentID),
		attribute.String(otelhelper.StageKey, name),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			report.fail(name, err)
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Pipeline stage panicked", "stage", name, "error", err)
		}
	}()

	err := fn()
	if err != nil {
		report.fail(name, err)
		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "Pipeline stage failed", "stage", name, "error", err)
	}
}

// resolveFile returns a local path for the document, fetching it from
// storage when it is not on disk.
func (p *Pipeline) resolveFile(ctx context.Context, doc *models.Document) (string, func(), error) {
	noop := func() {}

	if doc.FilePath != "" {
		if _, err := os.Stat(doc.FilePath); err == nil {
			return doc.FilePath, noop, nil
		}
	}

	key := doc.StorageKey
	if key == "" {
		key = doc.OriginalFilename
	}

	if p.fetcher == nil || key == "" {
		return "", noop, fmt.Errorf("%w: %s", ErrFileNotFound, doc.ID)
	}

	path, cleanup, err := p.fetcher.Fetch(ctx, key)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %s: %w", ErrFileNotFound, doc.ID, err)
	}

	return path, cleanup, nil
}

func (p *Pipeline) extractText(ctx context.Context, doc *models.Document, path string, report *Report) error {
	text, err := p.ocr.ExtractText(ctx, path)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrNoText
	}

	if err != nil {
		doc.OCRError = err.Error()

		return err
	}

	doc.Content = text
	doc.OCRText = text
	doc.OCRError = ""
	report.OCR = true

	return nil
}

// classify applies matched tags and fills the first correspondent, type and
// storage path that the document does not have yet.
func (p *Pipeline) classify(ctx context.Context, doc *models.Document, report *Report) error {
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil
	}

	result, err := p.matcher.FindMatches(ctx, text)
	if err != nil {
		report.Matching = models.MatchingResult{Attempted: true, Error: err.Error()}

		return err
	}

	result.Attempted = true
	report.Matching = result

	for _, tag := range result.Tags {
		if !slices.Contains(doc.Tags, tag) {
			doc.Tags = append(doc.Tags, tag)
		}
	}

	fillFirst(&doc.CorrespondentID, result.Correspondents)
	fillFirst(&doc.DocumentTypeID, result.DocumentTypes)
	fillFirst(&doc.StoragePathID, result.StoragePaths)

	return nil
}

// clip cuts text to at most limit runes.
func clip(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	return string([]rune(text)[:limit])
}

func (p *Pipeline) summarize(ctx context.Context, doc *models.Document, report *Report) error {
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil
	}

	text = clip(text, summaryInputLimit)

	prompt := fmt.Sprintf("Summarize this document in at most %d characters:\n\n%s", summaryMaxLength, text)

	resp, err := p.ai.SendMessage(ctx, prompt, summarySystemPrompt)
	if err != nil {
		return err
	}

	summary := p.ai.ExtractText(resp)
	if summary == "" {
		return ai.ErrEmptyResponse
	}

	doc.Summary = summary
	report.Summary = true

	return nil
}

// documentBag seeds the variables workflows see for a new document.
func documentBag(doc *models.Document, matching models.MatchingResult) *models.ContextBag {
	bag := models.NewContextBag("", doc.ID)
	bag.Merge(map[string]any{
		"document_id":       doc.ID,
		"title":             doc.Title,
		"original_filename": doc.OriginalFilename,
		"mime_type":         doc.MimeType,
		"correspondent_id":  doc.CorrespondentID,
		"document_type_id":  doc.DocumentTypeID,
		"storage_path_id":   doc.StoragePathID,
		"matching":          matching.ToMap(),
	})

	return bag
}

func isPDF(doc *models.Document, path string) bool {
	return doc.MimeType == "application/pdf" || strings.EqualFold(filepath.Ext(path), ".pdf")
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}

	return count, nil
}

func fillFirst(field *string, candidates []string) {
	if *field == "" && len(candidates) > 0 {
		*field = candidates[0]
	}
}
