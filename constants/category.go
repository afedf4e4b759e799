package constants

import "strings"

// Kategorie is the fixed expense taxonomy for fleet repair invoices.
// Stable values; the extraction schema and the invoices table both use
// these exact strings.
type Kategorie string

const (
	Reparatur    Kategorie = "Reparatur"
	Ersatzteile  Kategorie = "Ersatzteile"
	TuevHuAu     Kategorie = "TÜV/HU/AU"
	Reifen       Kategorie = "Reifen"
	Tanken       Kategorie = "Tanken"
	Miete        Kategorie = "Miete"
	Wartung      Kategorie = "Wartung"
	Versicherung Kategorie = "Versicherung"
	Sonstiges    Kategorie = "Sonstiges"
)

var allKategorien = []Kategorie{
	Reparatur,
	Ersatzteile,
	TuevHuAu,
	Reifen,
	Tanken,
	Miete,
	Wartung,
	Versicherung,
	Sonstiges,
}

// AsStringSlice returns the taxonomy for JSON-Schema enum construction.
func AsStringSlice() []string {
	result := make([]string, len(allKategorien))
	for i, k := range allKategorien {
		result[i] = string(k)
	}
	return result
}

// IsValidKategorie reports whether input is one of the fixed values.
// The empty string is not a member; callers decide whether empty is allowed.
func IsValidKategorie(input string) bool {
	for _, k := range allKategorien {
		if input == string(k) {
			return true
		}
	}
	return false
}

// Canonicalize maps a free-form label onto the taxonomy. Matching is
// case-insensitive; unknown labels map to Sonstiges with ok=false.
func Canonicalize(input string) (Kategorie, bool) {
	normalized := strings.TrimSpace(input)
	if normalized == "" {
		return Sonstiges, false
	}
	for _, k := range allKategorien {
		if strings.EqualFold(normalized, string(k)) {
			return k, true
		}
	}
	return Sonstiges, false
}
