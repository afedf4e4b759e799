package extract

import (
	"strings"

	"github.com/akuhnert/invoiceflow/constants"
)

// PromptVersion is persisted with every record so extractions stay
// attributable to the instructions that produced them.
const PromptVersion = "v1"

func buildSystemPrompt() string {
	parts := []string{
		"You are an invoice extraction service for a German truck fleet.",
		"You receive the content of one PDF (text or page images) and return ONLY JSON matching the provided schema.",
		"A single PDF may contain several invoices; return one record per invoice.",
		"Dates use DD.MM.YYYY. total_price is the NETTO amount; use a negative number for a Gutschrift (credit note).",
		"truck is the vehicle plate if one is referenced, otherwise an empty string.",
		"kategorie must be one of: " + strings.Join(constants.AsStringSlice(), ", ") + ".",
		"confidence is your own certainty for the whole record, 0.0 to 1.0.",
		"Never invent values; if a field is unreadable, lower the confidence instead.",
	}
	return strings.Join(parts, " ")
}

func buildUserText(filename, text string) string {
	var b strings.Builder
	b.WriteString("Dateiname: ")
	b.WriteString(filename)
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String()
}

func buildUserScanIntro(filename string) string {
	return "Dateiname: " + filename +
		"\n\nBitte extrahiere die Rechnungsdaten aus den folgenden Seitenbildern:"
}
