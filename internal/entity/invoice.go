package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FlexNumber is a JSON number that tolerates numeric-looking strings,
// including European decimal commas ("1.234,56"). Unmarshal never fails;
// Valid is false when the payload was not numeric, so the validator can
// report it as a field error instead of aborting the whole document.
type FlexNumber struct {
	Raw   string
	Value float64
	Valid bool
}

func (f *FlexNumber) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	f.Raw = s
	v, err := strconv.ParseFloat(normalizeDecimal(s), 64)
	if err != nil {
		f.Valid = false
		return nil
	}
	f.Value = v
	f.Valid = true
	return nil
}

func (f FlexNumber) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return json.Marshal(f.Raw)
	}
	return json.Marshal(f.Value)
}

// normalizeDecimal turns "1.234,56" or "1234,56" into "1234.56".
// A value that already uses a dot decimal separator passes through.
func normalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// InvoiceCandidate is one unvalidated record from the extraction service.
// Pointer fields track presence: a nil field was absent from the response
// and fails schema validation. No field here is trusted until the validator
// has passed it.
type InvoiceCandidate struct {
	InvoiceDate *string     `json:"invoice_date"` // DD.MM.YYYY
	VehicleID   *string     `json:"truck"`        // plate, or empty
	TotalPrice  *FlexNumber `json:"total_price"`  // netto, negative for Gutschrift
	InvoiceNr   *string     `json:"invoice_nr"`
	Seller      *string     `json:"seller"`
	Buyer       *string     `json:"buyer"`
	Kategorie   *string     `json:"kategorie"`
	Confidence  *float64    `json:"confidence"` // 0..1
}

// InvoiceRecord is the validated, enriched unit of business data.
// Uniqueness key across the store: (InvoiceNr, Seller, InvoiceDate).
type InvoiceRecord struct {
	InvoiceDate string    `json:"invoice_date"` // DD.MM.YYYY, as extracted
	VehicleID   string    `json:"truck"`
	TotalPrice  float64   `json:"total_price"`
	InvoiceNr   string    `json:"invoice_nr"`
	Seller      string    `json:"seller"`
	Buyer       string    `json:"buyer"`
	Kategorie   string    `json:"kategorie"`
	Confidence  float64   `json:"confidence"`

	// Derived by Enrich.
	Year         int       `json:"invoice_year"`
	Month        int       `json:"invoice_month"`
	Week         int       `json:"invoice_week"` // ISO week
	Date         time.Time `json:"invoice_date_parsed"`
	IsCreditNote bool      `json:"is_gutschrift"`

	// Attribution, set by the pipeline before persisting.
	NeedsReview   bool    `json:"is_review"`
	SourceFile    string  `json:"pdf_filename"`
	Model         string  `json:"ai_model"`
	PromptVersion string  `json:"prompt_version"`
	TokensUsed    int     `json:"tokens_used"`
	CostUSD       float64 `json:"cost_usd"`
}
