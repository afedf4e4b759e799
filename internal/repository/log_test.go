package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonbPayloadEmpty(t *testing.T) {
	assert.Nil(t, jsonbPayload(nil))
	assert.Nil(t, jsonbPayload([]byte{}))
}

func TestJsonbPayloadValidJSONPassesThrough(t *testing.T) {
	raw := []byte(`{"invoices":[]}`)
	assert.Equal(t, raw, jsonbPayload(raw))
}

func TestJsonbPayloadWrapsNonJSON(t *testing.T) {
	// A truncated model response must still land in the audit log.
	raw := []byte(`{"invoices":[{"invoice_nr":"RE-1","sel`)

	got := jsonbPayload(raw)
	require.True(t, json.Valid(got))

	var s string
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, string(raw), s)
}

func TestJsonbPayloadWrapsPlainText(t *testing.T) {
	got := jsonbPayload([]byte("I cannot extract invoices from this document."))
	assert.True(t, json.Valid(got))
}
