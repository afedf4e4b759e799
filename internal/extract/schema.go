package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/akuhnert/invoiceflow/constants"
)

// BuildInvoiceJSONSchema returns the fixed structured-output contract as a
// generic map: a list of invoice records, every field required, no
// additional properties. The same schema is sent to the service and used
// locally to validate the response.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_date": map[string]any{"type": "string", "description": "DD.MM.YYYY"},
			"truck":        map[string]any{"type": "string", "description": "plate number or empty"},
			"total_price":  map[string]any{"type": "number", "description": "NETTO, negative for Gutschrift"},
			"invoice_nr":   map[string]any{"type": "string"},
			"seller":       map[string]any{"type": "string"},
			"buyer":        map[string]any{"type": "string"},
			"kategorie":    map[string]any{"type": "string", "enum": constants.AsStringSlice()},
			"confidence":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{
			"invoice_date", "truck", "total_price", "invoice_nr",
			"seller", "buyer", "kategorie", "confidence",
		},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoices": map[string]any{"type": "array", "items": item},
		},
		"required":             []string{"invoices"},
		"additionalProperties": false,
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
