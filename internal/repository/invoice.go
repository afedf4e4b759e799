package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/entity"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// InvoiceRepository is the durable store for validated records.
// Insertion is keyed by (invoice_nr, seller, invoice_date): a second insert
// with the same triple is a silent no-op reported as duplicate, never an
// error.
type InvoiceRepository interface {
	InsertInvoice(ctx context.Context, rec entity.InvoiceRecord) (uuid.UUID, bool, error)
}

type invoiceRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &invoiceRepository{pool: pool, log: logger}
}

// InsertInvoice inserts one record. Returns (id, true, nil) on insert and
// (uuid.Nil, false, nil) when the uniqueness key already exists.
func (r *invoiceRepository) InsertInvoice(ctx context.Context, rec entity.InvoiceRecord) (uuid.UUID, bool, error) {
	query, args, err := psql.
		Insert("repair.invoices").
		Columns(
			"invoice_year", "invoice_month", "invoice_week", "invoice_date",
			"truck", "total_price", "invoice_nr", "seller", "buyer", "kategorie",
			"pdf_filename", "ai_confidence", "ai_model", "prompt_version",
			"tokens_used", "cost_usd", "is_gutschrift", "is_review",
		).
		Values(
			rec.Year, rec.Month, rec.Week, rec.Date,
			rec.VehicleID, rec.TotalPrice, rec.InvoiceNr, rec.Seller, rec.Buyer, rec.Kategorie,
			rec.SourceFile, rec.Confidence, rec.Model, rec.PromptVersion,
			rec.TokensUsed, rec.CostUSD, rec.IsCreditNote, rec.NeedsReview,
		).
		Suffix("ON CONFLICT (invoice_nr, seller, invoice_date) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("build insert: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		r.log.Warn("invoice.duplicate",
			"invoice_nr", rec.InvoiceNr, "seller", rec.Seller, "invoice_date", rec.InvoiceDate)
		return uuid.Nil, false, nil
	}
	if err != nil {
		r.log.Error("invoice.insert_failed", "invoice_nr", rec.InvoiceNr, "error", err)
		return uuid.Nil, false, fmt.Errorf("%w: insert invoice: %v", common.ErrPersistence, err)
	}
	return id, true, nil
}
