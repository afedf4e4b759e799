// Package reader turns a source PDF into an entity.Document. Page counting
// and structural validation run on pdfcpu; the actual text extraction and
// page rasterization engines are pluggable, since they are external to the
// pipeline proper.
package reader

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/akuhnert/invoiceflow/internal/entity"
)

// scanTextThreshold: a page yielding fewer characters than this counts as
// scanned.
const scanTextThreshold = 50

// TextExtractFunc returns the text of every page, in order.
type TextExtractFunc func(ctx context.Context, path string) ([]string, error)

// RasterizeFunc returns one base64-encoded PNG per page.
type RasterizeFunc func(ctx context.Context, path string) ([]string, error)

// PDFReader reads one PDF per call. A file that cannot be opened yields a
// Document with zero pages, which the pipeline routes to manual review.
type PDFReader struct {
	ExtractText TextExtractFunc // nil: every page counts as scanned
	Rasterize   RasterizeFunc   // nil: scans carry no page images
	Logger      *slog.Logger
}

func NewPDFReader(extract TextExtractFunc, rasterize RasterizeFunc, logger *slog.Logger) *PDFReader {
	if logger == nil {
		logger = slog.Default()
	}
	if extract == nil {
		logger.Warn("reader.no_text_engine: every document will be treated as scanned")
	}
	if rasterize == nil {
		logger.Warn("reader.no_raster_engine: scanned documents will carry no page images")
	}
	return &PDFReader{ExtractText: extract, Rasterize: rasterize, Logger: logger}
}

// Read produces the immutable Document for one source file.
func (r *PDFReader) Read(ctx context.Context, path string) entity.Document {
	filename := filepath.Base(path)
	doc := entity.Document{Filename: filename, Path: path}

	pages, err := api.PageCountFile(path)
	if err != nil || pages == 0 {
		r.Logger.Error("reader.open_failed", "filename", filename, "error", err)
		doc.IsScan = true
		return doc
	}
	doc.TotalPages = pages

	var pageTexts []string
	if r.ExtractText != nil {
		pageTexts, err = r.ExtractText(ctx, path)
		if err != nil {
			r.Logger.Warn("reader.text_extract_failed", "filename", filename, "error", err)
			pageTexts = nil
		}
	}

	scanPages := 0
	var parts []string
	for i := 0; i < pages; i++ {
		text := ""
		if i < len(pageTexts) {
			text = pageTexts[i]
		}
		parts = append(parts, text)
		if len(strings.TrimSpace(text)) < scanTextThreshold {
			scanPages++
		}
	}
	doc.Text = strings.Join(parts, "\n\n")
	doc.IsScan = scanPages > pages/2

	if doc.IsScan {
		r.Logger.Info("reader.scan_detected",
			"filename", filename, "scan_pages", scanPages, "total_pages", pages)
		if r.Rasterize != nil {
			images, err := r.Rasterize(ctx, path)
			if err != nil {
				r.Logger.Error("reader.rasterize_failed", "filename", filename, "error", err)
			} else {
				doc.PageImagesB64 = images
			}
		}
	} else {
		r.Logger.Info("reader.text_based",
			"filename", filename, "total_pages", pages, "chars", len(doc.Text))
	}

	return doc
}
