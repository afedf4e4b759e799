// Package validate holds the four-level record validator and the enricher.
//
// Level 1 — schema: required fields present
// Level 2 — format: date DD.MM.YYYY, plate pattern, numeric price, category
// Level 3 — logic: date not in future, price not zero
// Level 4 — cross-check: vehicle registry membership (advisory)
//
// Level 1 short-circuits; levels 2-4 collect every error they find.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/akuhnert/invoiceflow/constants"
	"github.com/akuhnert/invoiceflow/internal/entity"
)

var (
	datePattern  = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	platePattern = regexp.MustCompile(`^(GR-OO\d+|HH-AG\d+|DE-FN\d+|WJQY\d+|OHAMX\d+|)$`)
)

// DateLayout is the wire format for invoice dates.
const DateLayout = "02.01.2006"

// VehicleRegistry answers level-4 membership lookups. A nil registry skips
// the level entirely.
type VehicleRegistry interface {
	KnownVehicle(plate string) bool
}

// Validator runs the four levels against one candidate. The zero value is
// usable: no registry, wall-clock now.
type Validator struct {
	Registry VehicleRegistry
	Logger   *slog.Logger
	Now      func() time.Time // injectable for the future-date check
}

type requiredField struct {
	name    string
	present func(entity.InvoiceCandidate) bool
}

var requiredFields = []requiredField{
	{"invoice_date", func(c entity.InvoiceCandidate) bool { return c.InvoiceDate != nil }},
	{"truck", func(c entity.InvoiceCandidate) bool { return c.VehicleID != nil }},
	{"total_price", func(c entity.InvoiceCandidate) bool { return c.TotalPrice != nil }},
	{"invoice_nr", func(c entity.InvoiceCandidate) bool { return c.InvoiceNr != nil }},
	{"seller", func(c entity.InvoiceCandidate) bool { return c.Seller != nil }},
	{"buyer", func(c entity.InvoiceCandidate) bool { return c.Buyer != nil }},
	{"kategorie", func(c entity.InvoiceCandidate) bool { return c.Kategorie != nil }},
	{"confidence", func(c entity.InvoiceCandidate) bool { return c.Confidence != nil }},
}

// Validate checks one extracted candidate. It returns whether the record is
// acceptable and the full list of errors found. A missing required field
// fails immediately with one error per missing field and skips the later
// levels. Registry misses are advisory and never make the record invalid.
func (v Validator) Validate(c entity.InvoiceCandidate) (bool, []string) {
	var errs []string

	// Level 1 — schema
	for _, f := range requiredFields {
		if !f.present(c) {
			errs = append(errs, "missing field: "+f.name)
		}
	}
	if len(errs) > 0 {
		v.warn(errs)
		return false, errs
	}

	// Level 2 — format
	if !datePattern.MatchString(*c.InvoiceDate) {
		errs = append(errs, "bad date format: "+*c.InvoiceDate)
	}
	if *c.VehicleID != "" && !platePattern.MatchString(*c.VehicleID) {
		errs = append(errs, "bad truck format: "+*c.VehicleID)
	}
	if !c.TotalPrice.Valid {
		errs = append(errs, "total_price not numeric: "+c.TotalPrice.Raw)
	}
	if *c.Kategorie != "" && !constants.IsValidKategorie(*c.Kategorie) {
		// Case or spacing variants of a known category are tolerated;
		// ToRecord stores the canonical form.
		if _, ok := constants.Canonicalize(*c.Kategorie); !ok {
			errs = append(errs, "unknown kategorie: "+*c.Kategorie)
		}
	}
	if *c.Confidence < 0 || *c.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence out of range: %g", *c.Confidence))
	}

	// Level 3 — logic
	if datePattern.MatchString(*c.InvoiceDate) {
		dt, err := time.Parse(DateLayout, *c.InvoiceDate)
		if err != nil {
			errs = append(errs, "invalid date value: "+*c.InvoiceDate)
		} else if dt.After(v.today()) {
			errs = append(errs, "date in future: "+*c.InvoiceDate)
		}
	}
	if c.TotalPrice.Valid && c.TotalPrice.Value == 0 {
		errs = append(errs, "total_price is zero")
	}

	// Level 4 — cross-check (advisory)
	if v.Registry != nil && *c.VehicleID != "" && !v.Registry.KnownVehicle(*c.VehicleID) {
		if v.Logger != nil {
			v.Logger.Warn("validate.unknown_vehicle", "truck", *c.VehicleID)
		}
	}

	v.warn(errs)
	return len(errs) == 0, errs
}

func (v Validator) warn(errs []string) {
	if len(errs) > 0 && v.Logger != nil {
		v.Logger.Warn("validate.failed", "errors", errs)
	}
}

func (v Validator) today() time.Time {
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	// Date-only comparison: an invoice dated today is fine.
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ToRecord converts a candidate that passed Validate into a record.
// The kategorie is stored in its canonical taxonomy form.
func ToRecord(c entity.InvoiceCandidate) entity.InvoiceRecord {
	kategorie := *c.Kategorie
	if kategorie != "" {
		if k, ok := constants.Canonicalize(kategorie); ok {
			kategorie = string(k)
		}
	}
	return entity.InvoiceRecord{
		InvoiceDate: *c.InvoiceDate,
		VehicleID:   *c.VehicleID,
		TotalPrice:  c.TotalPrice.Value,
		InvoiceNr:   *c.InvoiceNr,
		Seller:      *c.Seller,
		Buyer:       *c.Buyer,
		Kategorie:   kategorie,
		Confidence:  *c.Confidence,
	}
}

// Enrich derives the calendar fields and the credit-note flag from fields
// the validator already accepted. It is pure and idempotent, and only
// touches fields it owns.
func Enrich(rec entity.InvoiceRecord) entity.InvoiceRecord {
	dt, err := time.Parse(DateLayout, rec.InvoiceDate)
	if err != nil {
		return rec
	}
	rec.Date = dt
	rec.Year = dt.Year()
	rec.Month = int(dt.Month())
	_, rec.Week = dt.ISOWeek()
	rec.IsCreditNote = rec.TotalPrice < 0
	return rec
}
