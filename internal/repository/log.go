package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/entity"
)

// ProcessingLogRepository is the append-only audit trail: exactly one entry
// per document per batch attempt, whatever stage the document failed at.
// It is also the single source of truth for spend accounting.
type ProcessingLogRepository interface {
	AppendLog(ctx context.Context, batchID uuid.UUID, detail entity.ProcessingDetail) error
	PeriodSpend(ctx context.Context) (float64, int, error)
}

type processingLogRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewProcessingLogRepository(pool *pgxpool.Pool, logger *slog.Logger) ProcessingLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &processingLogRepository{pool: pool, log: logger}
}

func (r *processingLogRepository) AppendLog(ctx context.Context, batchID uuid.UUID, detail entity.ProcessingDetail) error {
	var errMsg *string
	if detail.ErrMsg != "" {
		errMsg = &detail.ErrMsg
	}
	aiResponse := jsonbPayload(detail.RawResponse)

	query, args, err := psql.
		Insert("repair.processing_log").
		Columns(
			"batch_id", "pdf_filename", "status", "error_message",
			"ai_model", "tokens_input", "tokens_output", "cost_usd",
			"ai_response", "duration_ms",
		).
		Values(
			batchID, detail.Filename, string(detail.Status), errMsg,
			detail.Model, detail.TokensIn, detail.TokensOut, detail.CostUSD,
			aiResponse, detail.Duration.Milliseconds(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build log insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		r.log.Error("processing_log.append_failed",
			"batch_id", batchID, "filename", detail.Filename, "error", err)
		return fmt.Errorf("%w: append log: %v", common.ErrPersistence, err)
	}
	return nil
}

// jsonbPayload prepares a raw model response for the jsonb ai_response
// column. A truncated or non-JSON response would be rejected by the store
// and cost the document its audit row, so anything that is not valid JSON
// is stored as a JSON string instead.
func jsonbPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	wrapped, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return wrapped
}

// PeriodSpend returns the summed cost and attempt count logged today.
// Used only by the spend gate before a batch starts.
func (r *processingLogRepository) PeriodSpend(ctx context.Context) (float64, int, error) {
	const query = `
		SELECT COALESCE(SUM(cost_usd), 0), COUNT(*)
		FROM repair.processing_log
		WHERE created_at::date = CURRENT_DATE`

	var spend float64
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&spend, &count); err != nil {
		r.log.Error("processing_log.period_spend_failed", "error", err)
		return 0, 0, fmt.Errorf("%w: period spend: %v", common.ErrPersistence, err)
	}
	return spend, count, nil
}
