package report

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/akuhnert/invoiceflow/internal/entity"
)

func testWriter() *Writer {
	return &Writer{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
	}
}

func sampleRecords() []entity.InvoiceRecord {
	return []entity.InvoiceRecord{
		{
			Year: 2025, Month: 3, Week: 11,
			InvoiceDate: "15.03.2025",
			VehicleID:   "GR-OO123",
			TotalPrice:  249.90,
			InvoiceNr:   "RE-2025-001",
			Seller:      "Müller GmbH",
			Buyer:       "Spedition Krause",
			Kategorie:   "Ersatzteile",
		},
		{
			Year: 2025, Month: 3, Week: 12,
			InvoiceDate: "20.03.2025",
			VehicleID:   "",
			TotalPrice:  -50.00,
			InvoiceNr:   "GS-17",
			Seller:      "Reifen Wagner",
			Buyer:       "Spedition Krause",
			Kategorie:   "Reifen",
		},
	}
}

func TestGenerateWritesWorkbook(t *testing.T) {
	dir := t.TempDir()

	path, err := testWriter().Generate(sampleRecords(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Rechnungen_20250601_120000.xlsx"), path)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Year", "Month", "Week", "Date Invoice", "Truck",
		"Total Price", "Invoice", "Seller", "Buyer", "Kategorie",
	}, rows[0])

	assert.Equal(t, "2025", rows[1][0])
	assert.Equal(t, "15.03.2025", rows[1][3])
	assert.Equal(t, "GR-OO123", rows[1][4])
	assert.Equal(t, "RE-2025-001", rows[1][6])
	assert.Equal(t, "Müller GmbH", rows[1][7])

	assert.Equal(t, "GS-17", rows[2][6])
	assert.Equal(t, "Reifen", rows[2][9])
}

func TestGenerateNoRecordsNoFile(t *testing.T) {
	dir := t.TempDir()

	path, err := testWriter().Generate(nil, dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	matches, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestGenerateCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "RG 2025 Ersatzteile RepRG")

	path, err := testWriter().Generate(sampleRecords(), dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestGeneratePriceCellNumeric(t *testing.T) {
	dir := t.TempDir()
	path, err := testWriter().Generate(sampleRecords(), dir)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Invoices", "F2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "249.9", v)
}
