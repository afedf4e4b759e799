package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/extract"
	"github.com/akuhnert/invoiceflow/internal/reader"
	"github.com/akuhnert/invoiceflow/internal/validate"
)

// Debug harness: run one PDF through read, extract and validate without
// touching the database or moving the file. Prints the candidates and
// their validation verdicts as JSON.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: runextract <file.pdf>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine := reader.NewPopplerEngine(logger)
	doc := reader.NewPDFReader(engine.ExtractText, engine.Rasterize, logger).Read(ctx, path)
	if !doc.Readable() {
		logger.Error("cannot read pdf", "path", path)
		os.Exit(1)
	}
	logger.Info("document",
		"filename", doc.Filename,
		"pages", doc.TotalPages,
		"is_scan", doc.IsScan,
		"chars", len(doc.Text),
	)

	client := extract.NewClient(extract.Config{
		APIKey:         cfg.LLM.APIKey,
		ModelPrimary:   cfg.LLM.ModelPrimary,
		ModelFallback:  cfg.LLM.ModelFallback,
		ConfidenceAuto: cfg.Batch.ConfidenceAuto,
		Timeout:        cfg.LLM.Timeout,
	}, logger)

	outcome := client.Extract(ctx, doc)
	if outcome.Err != nil {
		logger.Error("extraction failed", "error", outcome.Err)
		os.Exit(1)
	}
	logger.Info("extraction",
		"model", outcome.Model,
		"invoices", len(outcome.Candidates),
		"tokens_in", outcome.TokensIn,
		"tokens_out", outcome.TokensOut,
		"cost_usd", outcome.CostUSD,
		"elapsed_ms", outcome.Duration.Milliseconds(),
	)

	validator := validate.Validator{Logger: logger}
	type verdict struct {
		Candidate any      `json:"candidate"`
		Valid     bool     `json:"valid"`
		Errors    []string `json:"errors,omitempty"`
	}
	verdicts := make([]verdict, 0, len(outcome.Candidates))
	for _, cand := range outcome.Candidates {
		valid, errs := validator.Validate(cand)
		verdicts = append(verdicts, verdict{Candidate: cand, Valid: valid, Errors: errs})
	}

	out, err := json.MarshalIndent(verdicts, "", "  ")
	if err != nil {
		logger.Error("marshal verdicts", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
