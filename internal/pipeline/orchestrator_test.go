package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akuhnert/invoiceflow/constants"
	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/entity"
	"github.com/akuhnert/invoiceflow/internal/validate"
)

type fakeReader struct {
	docs map[string]entity.Document // keyed by filename; missing = readable default
}

func (f *fakeReader) Read(_ context.Context, path string) entity.Document {
	name := filepath.Base(path)
	if d, ok := f.docs[name]; ok {
		d.Filename = name
		d.Path = path
		return d
	}
	return entity.Document{Filename: name, Path: path, TotalPages: 1, Text: "Rechnung"}
}

type fakeExtractor struct {
	fn        func(doc entity.Document) entity.ExtractionOutcome
	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, doc entity.Document) entity.ExtractionOutcome {
	n := f.active.Add(1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.active.Add(-1)
	return f.fn(doc)
}

type fakeInvoices struct {
	mu         sync.Mutex
	inserted   []entity.InvoiceRecord
	duplicates map[string]bool // invoice_nr values treated as already stored
	err        error
}

func (f *fakeInvoices) InsertInvoice(_ context.Context, rec entity.InvoiceRecord) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	if f.duplicates[rec.InvoiceNr] {
		return uuid.Nil, false, nil
	}
	f.inserted = append(f.inserted, rec)
	return uuid.New(), true, nil
}

type fakeAudit struct {
	mu       sync.Mutex
	logs     []entity.ProcessingDetail
	spend    float64
	spendErr error
}

func (f *fakeAudit) AppendLog(_ context.Context, _ uuid.UUID, detail entity.ProcessingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, detail)
	return nil
}

func (f *fakeAudit) PeriodSpend(_ context.Context) (float64, int, error) {
	return f.spend, len(f.logs), f.spendErr
}

type fakeRouter struct {
	mu         sync.Mutex
	successes  []string
	manuals    []string
	successErr error
}

func (f *fakeRouter) RouteSuccess(path string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successErr != nil {
		return "", f.successErr
	}
	f.successes = append(f.successes, filepath.Base(path))
	return path, nil
}

func (f *fakeRouter) RouteManual(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manuals = append(f.manuals, filepath.Base(path))
	return path, nil
}

func (f *fakeRouter) YearDir(year int) string {
	return fmt.Sprintf("/out/RG %d Ersatzteile RepRG", year)
}

type fakeReport struct {
	mu      sync.Mutex
	records []entity.InvoiceRecord
	dir     string
	err     error
}

func (f *fakeReport) Generate(records []entity.InvoiceRecord, outputDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.dir = outputDir
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(outputDir, "Rechnungen_20250601_120000.xlsx"), nil
}

func candidate(nr string, confidence float64) entity.InvoiceCandidate {
	date := "15.03.2025"
	truck := "GR-OO123"
	seller := "Müller GmbH"
	buyer := "Spedition Krause"
	kat := "Ersatzteile"
	price := entity.FlexNumber{Raw: "249.90", Value: 249.90, Valid: true}
	return entity.InvoiceCandidate{
		InvoiceDate: &date,
		VehicleID:   &truck,
		TotalPrice:  &price,
		InvoiceNr:   &nr,
		Seller:      &seller,
		Buyer:       &buyer,
		Kategorie:   &kat,
		Confidence:  &confidence,
	}
}

func goodOutcome(nr string, confidence float64) entity.ExtractionOutcome {
	return entity.ExtractionOutcome{
		Candidates: []entity.InvoiceCandidate{candidate(nr, confidence)},
		Model:      "gpt-4o-mini",
		TokensIn:   100,
		TokensOut:  40,
		CostUSD:    0.0001,
	}
}

type fixture struct {
	orch      *Orchestrator
	reader    *fakeReader
	extractor *fakeExtractor
	invoices  *fakeInvoices
	audit     *fakeAudit
	router    *fakeRouter
	report    *fakeReport
}

func newFixture(t *testing.T, files []string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644))
	}

	f := &fixture{
		reader: &fakeReader{docs: map[string]entity.Document{}},
		extractor: &fakeExtractor{fn: func(doc entity.Document) entity.ExtractionOutcome {
			return goodOutcome("RE-"+doc.Filename, 0.95)
		}},
		invoices: &fakeInvoices{duplicates: map[string]bool{}},
		audit:    &fakeAudit{},
		router:   &fakeRouter{},
		report:   &fakeReport{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.orch = &Orchestrator{
		Cfg: common.BatchConfig{
			MaxParallel:       2,
			DailyCostLimitUSD: 1.0,
			ConfidenceAuto:    0.8,
			ConfidenceFloor:   0.5,
		},
		InputDir:  dir,
		Reader:    f.reader,
		Extractor: f.extractor,
		Validator: validate.Validator{Logger: log},
		Invoices:  f.invoices,
		AuditLog:  f.audit,
		Router:    f.router,
		Report:    f.report,
		Logger:    log,
	}
	return f
}

func TestRunAllSuccess(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf", "c.pdf"})

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 3, summary.Success)
	assert.Zero(t, summary.Review)
	assert.Zero(t, summary.Manual)
	assert.Zero(t, summary.Errors)
	assert.False(t, summary.CostLimitHit)
	assert.Len(t, f.invoices.inserted, 3)
	assert.Len(t, f.audit.logs, 3)
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf", "c.pdf"}, f.router.successes)
	assert.Len(t, f.report.records, 3)
	assert.NotEmpty(t, summary.ReportPath)
}

func TestRunMixedTextAndScanBatch(t *testing.T) {
	// Two text documents approve outright; the scanned one comes back from
	// the extractor already lifted above the auto threshold by its
	// stronger-model fallback, so the whole batch lands on success.
	f := newFixture(t, []string{"brief1.pdf", "brief2.pdf", "scan.pdf"})
	f.reader.docs["scan.pdf"] = entity.Document{TotalPages: 1, IsScan: true, PageImagesB64: []string{"aGVsbG8="}}
	f.extractor.fn = func(doc entity.Document) entity.ExtractionOutcome {
		if doc.IsScan {
			// Primary attempt at 0.6 replaced wholesale by the fallback.
			out := goodOutcome("RE-"+doc.Filename, 0.9)
			out.Model = "gpt-4o"
			out.CostUSD = 0.0026
			return out
		}
		return goodOutcome("RE-"+doc.Filename, 0.9)
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Success)
	assert.Zero(t, summary.Review)
	assert.Zero(t, summary.Manual)
	assert.Zero(t, summary.Errors)
	assert.Len(t, f.report.records, 3)
	assert.NotEmpty(t, summary.ReportPath)

	require.Len(t, f.invoices.inserted, 3)
	byNr := map[string]entity.InvoiceRecord{}
	for _, rec := range f.invoices.inserted {
		byNr[rec.InvoiceNr] = rec
	}
	scanRec := byNr["RE-scan.pdf"]
	assert.Equal(t, "gpt-4o", scanRec.Model)
	assert.False(t, scanRec.NeedsReview)
	assert.InDelta(t, 0.0026, scanRec.CostUSD, 1e-12)
	assert.Equal(t, "gpt-4o-mini", byNr["RE-brief1.pdf"].Model)
}

func TestRunEmptyInputFolder(t *testing.T) {
	f := newFixture(t, nil)

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalFiles)
	assert.Empty(t, f.audit.logs)
	assert.Empty(t, f.report.records)
}

func TestRunSpendCeilingBlocksBatch(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.audit.spend = 1.5 // over the 1.0 limit

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, summary.CostLimitHit)
	assert.Zero(t, summary.Success)
	assert.Empty(t, f.audit.logs, "no document may start once the ceiling is hit")
	assert.Empty(t, f.invoices.inserted)
}

func TestRunSpendCheckOncePerBatch(t *testing.T) {
	// Spend right below the limit: every document still runs even though
	// mid-batch costs would push past it.
	f := newFixture(t, []string{"a.pdf", "b.pdf", "c.pdf"})
	f.audit.spend = 0.99

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, summary.CostLimitHit)
	assert.Equal(t, 3, summary.Success)
}

func TestRunSpendCheckFailureAbortsBatch(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.audit.spendErr = errors.New("db down")

	_, err := f.orch.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, f.audit.logs)
}

func TestUnreadableDocumentGoesManual(t *testing.T) {
	f := newFixture(t, []string{"broken.pdf"})
	f.reader.docs["broken.pdf"] = entity.Document{TotalPages: 0, IsScan: true}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Manual)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, constants.StatusManual, f.audit.logs[0].Status)
	assert.Equal(t, "Cannot read PDF", f.audit.logs[0].ErrMsg)
	assert.Equal(t, []string{"broken.pdf"}, f.router.manuals)
	assert.Empty(t, f.invoices.inserted)
}

func TestExtractionErrorGoesManual(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		return entity.ExtractionOutcome{
			Model: "gpt-4o-mini",
			Err:   fmt.Errorf("%w: service exploded", common.ErrTransientService),
		}
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Manual)
	assert.Equal(t, []string{"a.pdf"}, f.router.manuals)
	require.Len(t, f.audit.logs, 1)
	assert.Contains(t, f.audit.logs[0].ErrMsg, "service exploded")
}

func TestNoCandidatesGoesManual(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		return entity.ExtractionOutcome{Model: "gpt-4o-mini", CostUSD: 0.0001}
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Manual)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "AI returned no invoices", f.audit.logs[0].ErrMsg)
	// Cost is still charged and logged even without invoices.
	assert.Equal(t, 0.0001, f.audit.logs[0].CostUSD)
}

func TestValidationFailureGoesManual(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		c := candidate("RE-1", 0.95)
		c.TotalPrice = &entity.FlexNumber{Raw: "0", Value: 0, Valid: true}
		return entity.ExtractionOutcome{
			Candidates: []entity.InvoiceCandidate{c},
			Model:      "gpt-4o-mini",
		}
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Manual)
	require.Len(t, f.audit.logs, 1)
	assert.Contains(t, f.audit.logs[0].ErrMsg, "Validation: ")
	assert.Contains(t, f.audit.logs[0].ErrMsg, "total_price is zero")
	assert.Empty(t, f.invoices.inserted)
}

func TestConfidenceBelowFloorGoesManual(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		return goodOutcome("RE-1", 0.3)
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Manual)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "Low confidence: 0.30", f.audit.logs[0].ErrMsg)
	assert.Empty(t, f.invoices.inserted)
}

func TestMidBandConfidenceGoesReview(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		return goodOutcome("RE-1", 0.65)
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Review)
	assert.Zero(t, summary.Manual)
	// The record is persisted and routed like a success, only flagged.
	require.Len(t, f.invoices.inserted, 1)
	assert.True(t, f.invoices.inserted[0].NeedsReview)
	assert.Equal(t, []string{"a.pdf"}, f.router.successes)
}

func TestDuplicateInsertIsNotAnError(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.invoices.duplicates["RE-a.pdf"] = true

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Empty(t, f.invoices.inserted)
	assert.Equal(t, []string{"a.pdf"}, f.router.successes)
}

func TestPersistenceFailureGoesError(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.invoices.err = fmt.Errorf("%w: connection reset", common.ErrPersistence)

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, constants.StatusError, f.audit.logs[0].Status)
	assert.Equal(t, []string{"a.pdf"}, f.router.manuals)
}

func TestRouteFailureGoesError(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.router.successErr = errors.New("disk full")

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, []string{"a.pdf"}, f.router.manuals)
}

func TestOneDocumentFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf", "c.pdf"})
	f.extractor.fn = func(doc entity.Document) entity.ExtractionOutcome {
		if doc.Filename == "b.pdf" {
			return entity.ExtractionOutcome{Err: fmt.Errorf("%w: boom", common.ErrPermanentExtraction)}
		}
		return goodOutcome("RE-"+doc.Filename, 0.95)
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Success)
	assert.Equal(t, 1, summary.Manual)
	assert.Len(t, f.audit.logs, 3)
}

func TestConcurrencyBounded(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"})
	f.extractor.delay = 10 * time.Millisecond

	_, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.extractor.maxActive.Load(), int32(2))
}

func TestCostShareSplitAcrossCandidates(t *testing.T) {
	f := newFixture(t, []string{"a.pdf"})
	f.extractor.fn = func(entity.Document) entity.ExtractionOutcome {
		return entity.ExtractionOutcome{
			Candidates: []entity.InvoiceCandidate{candidate("RE-1", 0.9), candidate("RE-2", 0.9)},
			Model:      "gpt-4o-mini",
			CostUSD:    0.0004,
		}
	}

	_, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, f.invoices.inserted, 2)
	assert.InDelta(t, 0.0002, f.invoices.inserted[0].CostUSD, 1e-12)
	assert.InDelta(t, 0.0002, f.invoices.inserted[1].CostUSD, 1e-12)
}

func TestPanicInStageBecomesErrorOutcome(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf"})
	f.extractor.fn = func(doc entity.Document) entity.ExtractionOutcome {
		if doc.Filename == "a.pdf" {
			panic("stage bug")
		}
		return goodOutcome("RE-b", 0.95)
	}

	summary, err := f.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Success)
	assert.Len(t, f.audit.logs, 2)
	assert.Contains(t, f.router.manuals, "a.pdf")
}

func TestProgressSinkPanicIsSwallowed(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf"})

	summary, err := f.orch.Run(context.Background(), func(done, total int, line string) {
		panic("broken sink")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Success)
}

func TestProgressSinkReceivesEveryDocument(t *testing.T) {
	f := newFixture(t, []string{"a.pdf", "b.pdf", "c.pdf"})
	var mu sync.Mutex
	var dones []int
	summary, err := f.orch.Run(context.Background(), func(done, total int, line string) {
		mu.Lock()
		defer mu.Unlock()
		dones = append(dones, done)
		assert.Equal(t, 3, total)
		assert.NotEmpty(t, line)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Success)
	assert.ElementsMatch(t, []int{1, 2, 3}, dones)
}
