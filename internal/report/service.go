// Package report renders the per-batch XLSX with one row per accepted
// invoice record.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/akuhnert/invoiceflow/internal/entity"
)

const sheet = "Invoices"

var headers = []string{
	"Year", "Month", "Week", "Date Invoice", "Truck",
	"Total Price", "Invoice", "Seller", "Buyer", "Kategorie",
}

var colWidths = []float64{6, 6, 6, 12, 12, 12, 16, 30, 22, 14}

// Writer generates the batch report workbook.
type Writer struct {
	Logger *slog.Logger
	// now is injectable so tests get deterministic filenames.
	Now func() time.Time
}

func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{Logger: logger}
}

// Generate writes one workbook for the given records into outputDir and
// returns its path. No records means no file and an empty path.
func (w *Writer) Generate(records []entity.InvoiceRecord, outputDir string) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	path := filepath.Join(outputDir, "Rechnungen_"+now.Format("20060102_150405")+".xlsx")

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheet)

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	priceFmt := "#,##0.00"
	priceStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &priceFmt})
	if err != nil {
		return "", fmt.Errorf("price style: %w", err)
	}

	for i, rec := range records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, rec.Year)
		write(2, rec.Month)
		write(3, rec.Week)
		write(4, rec.InvoiceDate)
		write(5, rec.VehicleID)
		write(6, rec.TotalPrice)
		priceCell, _ := excelize.CoordinatesToCellName(6, row)
		_ = f.SetCellStyle(sheet, priceCell, priceCell, priceStyle)
		write(7, rec.InvoiceNr)
		write(8, rec.Seller)
		write(9, rec.Buyer)
		write(10, rec.Kategorie)
	}

	for i, width := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, width)
	}
	_ = f.AutoFilter(sheet, fmt.Sprintf("A1:J%d", len(records)+1), nil)

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("xlsx save: %w", err)
	}

	w.Logger.Info("report.saved", "path", path, "rows", len(records))
	return path, nil
}
