package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/akuhnert/invoiceflow/constants"
)

// ExtractionOutcome is the result of calling the extraction service for one
// document. A terminal service failure is carried in Err as a value, not
// raised: the pipeline turns it into a manual outcome.
type ExtractionOutcome struct {
	Candidates  []InvoiceCandidate
	Model       string
	TokensIn    int
	TokensOut   int
	CostUSD     float64
	Duration    time.Duration
	RawResponse []byte // verbatim service payload, kept for the audit log
	Err         error
}

// ProcessingDetail is one document's final outcome for a batch.
// Created once, immutable thereafter.
type ProcessingDetail struct {
	Filename    string
	Status      constants.ProcessingStatus
	Records     []InvoiceRecord
	Model       string
	TokensIn    int
	TokensOut   int
	CostUSD     float64
	Duration    time.Duration
	ErrMsg      string
	RawResponse []byte
}

// BatchSummary aggregates all ProcessingDetails of one orchestrator run.
// It is a return value only; nothing persists it.
type BatchSummary struct {
	BatchID      uuid.UUID
	TotalFiles   int
	Success      int
	Review       int
	Manual       int
	Errors       int
	TotalCostUSD float64
	ReportPath   string
	CostLimitHit bool
	Details      []ProcessingDetail
}

// Tally folds one detail into the counters.
func (s *BatchSummary) Tally(d ProcessingDetail) {
	switch d.Status {
	case constants.StatusSuccess:
		s.Success++
	case constants.StatusReview:
		s.Review++
	case constants.StatusManual:
		s.Manual++
	default:
		s.Errors++
	}
	s.TotalCostUSD += d.CostUSD
	s.Details = append(s.Details, d)
}

// Done is the number of documents that reached a terminal state.
func (s *BatchSummary) Done() int {
	return s.Success + s.Review + s.Manual + s.Errors
}
