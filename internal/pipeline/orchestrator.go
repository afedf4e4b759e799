// Package pipeline is the batch orchestrator: it enumerates the input
// folder, enforces the spend gate once, fans the documents out over a
// bounded worker group, drives each document through the
// read-extract-validate-persist-route state machine, and folds the
// outcomes into a BatchSummary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/akuhnert/invoiceflow/constants"
	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/entity"
	"github.com/akuhnert/invoiceflow/internal/extract"
	"github.com/akuhnert/invoiceflow/internal/repository"
	"github.com/akuhnert/invoiceflow/internal/validate"
)

// DocumentReader produces the Document for one source file. A zero-page
// Document marks the file unreadable.
type DocumentReader interface {
	Read(ctx context.Context, path string) entity.Document
}

// Extractor calls the extraction service for one document. Terminal
// failures come back inside the outcome, never as a Go error.
type Extractor interface {
	Extract(ctx context.Context, doc entity.Document) entity.ExtractionOutcome
}

// FileRouter moves a processed document to its final location.
type FileRouter interface {
	RouteSuccess(path string, year int) (string, error)
	RouteManual(path string) (string, error)
	YearDir(year int) string
}

// ReportWriter renders the batch report from all accepted records.
type ReportWriter interface {
	Generate(records []entity.InvoiceRecord, outputDir string) (string, error)
}

// Orchestrator wires the pipeline stages together for one batch at a time.
type Orchestrator struct {
	Cfg       common.BatchConfig
	InputDir  string
	Reader    DocumentReader
	Extractor Extractor
	Validator validate.Validator
	Invoices  repository.InvoiceRepository
	AuditLog  repository.ProcessingLogRepository
	Router    FileRouter
	Report    ReportWriter
	Logger    *slog.Logger
}

// Run processes every PDF currently in the input folder and returns the
// batch summary. The only batch-level failure is the pre-flight spend
// check; per-document failures are converted into terminal details and
// never abort siblings. sink may be nil.
func (o *Orchestrator) Run(ctx context.Context, sink ProgressFunc) (entity.BatchSummary, error) {
	summary := entity.BatchSummary{BatchID: uuid.New()}
	log := o.logger()
	start := time.Now()

	files, err := filepath.Glob(filepath.Join(o.InputDir, "*.pdf"))
	if err != nil {
		return summary, fmt.Errorf("scan input dir: %w", err)
	}
	sort.Strings(files)
	summary.TotalFiles = len(files)

	log.Info("batch.start",
		"batch_id", summary.BatchID, "total_files", summary.TotalFiles, "max_parallel", o.Cfg.MaxParallel)

	if len(files) == 0 {
		return summary, nil
	}

	// Spend gate: exactly once per invocation, before any document.
	spend, _, err := o.AuditLog.PeriodSpend(ctx)
	if err != nil {
		return summary, common.WrapError(err, "pre-flight spend check")
	}
	governor := SpendGovernor{LimitUSD: o.Cfg.DailyCostLimitUSD, Logger: log}
	if err := governor.Check(spend); errors.Is(err, common.ErrBudgetExceeded) {
		// A ceiling refusal is a clean stop, not a batch failure.
		summary.CostLimitHit = true
		return summary, nil
	}

	var (
		mu         sync.Mutex
		allRecords []entity.InvoiceRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Cfg.MaxParallel)
	for _, path := range files {
		g.Go(func() error {
			detail := o.processOne(gctx, summary.BatchID, path)

			mu.Lock()
			summary.Tally(detail)
			if detail.Status == constants.StatusSuccess || detail.Status == constants.StatusReview {
				allRecords = append(allRecords, detail.Records...)
			}
			done := summary.Done()
			mu.Unlock()

			notifyProgress(log, sink, done, summary.TotalFiles, formatDetail(detail))
			return nil
		})
	}
	// Workers never return an error; Wait is the completion barrier.
	_ = g.Wait()

	// Report generation runs only after every document is terminal.
	if len(allRecords) > 0 {
		outputDir := o.Router.YearDir(allRecords[0].Year)
		reportPath, err := o.Report.Generate(allRecords, outputDir)
		if err != nil {
			log.Error("batch.report_failed", "batch_id", summary.BatchID, "error", err)
		} else {
			summary.ReportPath = reportPath
		}
	}

	log.Info("batch.done",
		"batch_id", summary.BatchID,
		"success", summary.Success,
		"review", summary.Review,
		"manual", summary.Manual,
		"errors", summary.Errors,
		"total_cost_usd", summary.TotalCostUSD,
		"report", summary.ReportPath,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// processOne runs the full per-document state machine and always comes back
// with a terminal detail. Exactly one audit log entry is written per call,
// whatever stage the document ends at; a panic in any stage degrades to an
// error outcome instead of escaping into the fan-out.
func (o *Orchestrator) processOne(ctx context.Context, batchID uuid.UUID, path string) (detail entity.ProcessingDetail) {
	log := o.logger()
	filename := filepath.Base(path)
	detail = entity.ProcessingDetail{Filename: filename, Status: constants.StatusError}
	logged := false

	finish := func() {
		if logged {
			return
		}
		logged = true
		if err := o.AuditLog.AppendLog(ctx, batchID, detail); err != nil {
			log.Error("batch.audit_log_failed", "filename", filename, "error", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("batch.document_panic", "filename", filename, "panic", r)
			detail.Status = constants.StatusError
			detail.ErrMsg = fmt.Sprintf("panic: %v", r)
			detail.Records = nil
			o.routeManualBestEffort(path, filename)
			finish()
		}
	}()

	// Reading
	doc := o.Reader.Read(ctx, path)
	if !doc.Readable() {
		detail.Status = constants.StatusManual
		detail.ErrMsg = "Cannot read PDF"
		o.routeManualBestEffort(path, filename)
		finish()
		return detail
	}

	// Extracting
	outcome := o.Extractor.Extract(ctx, doc)
	detail.Model = outcome.Model
	detail.TokensIn = outcome.TokensIn
	detail.TokensOut = outcome.TokensOut
	detail.CostUSD = outcome.CostUSD
	detail.Duration = outcome.Duration
	detail.RawResponse = outcome.RawResponse

	if outcome.Err != nil {
		log.Warn("batch.extract_failed",
			"filename", filename,
			"transient", common.Transient(outcome.Err),
			"error", outcome.Err,
		)
		detail.Status = constants.StatusManual
		detail.ErrMsg = outcome.Err.Error()
		o.routeManualBestEffort(path, filename)
		finish()
		return detail
	}
	if len(outcome.Candidates) == 0 {
		detail.Status = constants.StatusManual
		detail.ErrMsg = "AI returned no invoices"
		o.routeManualBestEffort(path, filename)
		finish()
		return detail
	}

	// Validating
	var records []entity.InvoiceRecord
	hasLowConfidence := false
	costShare := outcome.CostUSD / float64(len(outcome.Candidates))

	for _, cand := range outcome.Candidates {
		valid, errs := o.Validator.Validate(cand)
		if !valid {
			detail.Status = constants.StatusManual
			detail.ErrMsg = "Validation: " + strings.Join(errs, "; ")
			o.routeManualBestEffort(path, filename)
			finish()
			return detail
		}

		rec := validate.Enrich(validate.ToRecord(cand))
		rec.SourceFile = filename
		rec.Model = outcome.Model
		rec.PromptVersion = extract.PromptVersion
		rec.TokensUsed = outcome.TokensIn + outcome.TokensOut
		rec.CostUSD = costShare

		// Below the floor the record is rejected outright, not flagged.
		if rec.Confidence < o.Cfg.ConfidenceFloor {
			detail.Status = constants.StatusManual
			detail.ErrMsg = fmt.Sprintf("Low confidence: %.2f", rec.Confidence)
			o.routeManualBestEffort(path, filename)
			finish()
			return detail
		}
		rec.NeedsReview = rec.Confidence < o.Cfg.ConfidenceAuto
		if rec.NeedsReview {
			hasLowConfidence = true
		}
		records = append(records, rec)
	}

	// Persisting. Duplicates are a no-op; real store failures are fatal
	// for this document only.
	for _, rec := range records {
		if _, _, err := o.Invoices.InsertInvoice(ctx, rec); err != nil {
			detail.Status = constants.StatusError
			detail.ErrMsg = err.Error()
			o.routeManualBestEffort(path, filename)
			finish()
			return detail
		}
	}

	// Routing
	if _, err := o.Router.RouteSuccess(path, records[0].Year); err != nil {
		log.Error("batch.route_failed", "filename", filename, "error", err)
		detail.Status = constants.StatusError
		detail.ErrMsg = err.Error()
		o.routeManualBestEffort(path, filename)
		finish()
		return detail
	}

	detail.Records = records
	if hasLowConfidence {
		detail.Status = constants.StatusReview
	} else {
		detail.Status = constants.StatusSuccess
	}
	finish()
	return detail
}

func (o *Orchestrator) routeManualBestEffort(path, filename string) {
	if _, err := o.Router.RouteManual(path); err != nil {
		o.logger().Error("batch.manual_route_failed", "filename", filename, "error", err)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
