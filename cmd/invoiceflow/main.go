package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/extract"
	"github.com/akuhnert/invoiceflow/internal/pipeline"
	"github.com/akuhnert/invoiceflow/internal/reader"
	"github.com/akuhnert/invoiceflow/internal/report"
	"github.com/akuhnert/invoiceflow/internal/repository"
	"github.com/akuhnert/invoiceflow/internal/router"
	"github.com/akuhnert/invoiceflow/internal/validate"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		listManual = flag.Bool("list-manual", false, "list PDFs waiting in the manual-review folder and exit")
		quiet      = flag.Bool("quiet", false, "suppress the progress bar")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fileRouter := router.New(cfg.Paths.OutputBase, cfg.Paths.ManualDir, logger)

	if *listManual {
		paths, err := fileRouter.ListManual()
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return
	}

	ctx := context.Background()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	engine := reader.NewPopplerEngine(logger)
	orch := &pipeline.Orchestrator{
		Cfg:      cfg.Batch,
		InputDir: cfg.Paths.InputDir,
		Reader:   reader.NewPDFReader(engine.ExtractText, engine.Rasterize, logger),
		Extractor: extract.NewClient(extract.Config{
			APIKey:         cfg.LLM.APIKey,
			ModelPrimary:   cfg.LLM.ModelPrimary,
			ModelFallback:  cfg.LLM.ModelFallback,
			ConfidenceAuto: cfg.Batch.ConfidenceAuto,
			Timeout:        cfg.LLM.Timeout,
		}, logger),
		Validator: validate.Validator{Logger: logger},
		Invoices:  repository.NewInvoiceRepository(pool, logger),
		AuditLog:  repository.NewProcessingLogRepository(pool, logger),
		Router:    fileRouter,
		Report:    report.NewWriter(logger),
		Logger:    logger,
	}

	var sink pipeline.ProgressFunc
	if !*quiet {
		var bar *progressbar.ProgressBar
		sink = func(done, total int, line string) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "processing")
			}
			bar.Describe(line)
			_ = bar.Set(done)
		}
	}

	summary, err := orch.Run(ctx, sink)
	if err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\nBatch %s complete\n", summary.BatchID)
	fmt.Printf("- Files:   %d\n", summary.TotalFiles)
	fmt.Printf("- Success: %d\n", summary.Success)
	fmt.Printf("- Review:  %d\n", summary.Review)
	fmt.Printf("- Manual:  %d\n", summary.Manual)
	fmt.Printf("- Errors:  %d\n", summary.Errors)
	fmt.Printf("- Cost:    $%.4f\n", summary.TotalCostUSD)
	if summary.CostLimitHit {
		fmt.Println("- Daily cost limit already reached; no documents were processed.")
	}
	if summary.ReportPath != "" {
		fmt.Printf("- Report:  %s\n", summary.ReportPath)
	}
}
