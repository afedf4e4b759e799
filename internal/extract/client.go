package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/akuhnert/invoiceflow/internal/common"
	"github.com/akuhnert/invoiceflow/internal/entity"
)

// chatCompleter is the slice of the OpenAI client the extractor needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config for the extraction client.
type Config struct {
	APIKey         string
	ModelPrimary   string        // e.g. "gpt-4o-mini"
	ModelFallback  string        // vision-capable, stronger; e.g. "gpt-4o"
	ConfidenceAuto float64       // fallback trigger threshold for scans
	Timeout        time.Duration // per-request HTTP timeout
}

// Client calls the extraction service for one document at a time. It owns
// the retry policy and the two-tier model fallback; a terminal failure is
// returned inside the ExtractionOutcome, never as a Go error.
type Client struct {
	cfg   Config
	api   chatCompleter
	retry RetryPolicy
	log   *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.ModelPrimary == "" {
		cfg.ModelPrimary = "gpt-4o-mini"
	}
	if cfg.ModelFallback == "" {
		cfg.ModelFallback = "gpt-4o"
	}
	if cfg.ConfidenceAuto <= 0 {
		cfg.ConfidenceAuto = 0.8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		api:   openai.NewClientWithConfig(oc),
		retry: DefaultRetryPolicy(isTransient),
		log:   logger,
	}
}

// Extract sends one document to the extraction service and returns exactly
// one outcome. For scans whose every candidate lands below the auto
// threshold, a single fallback call against the stronger model is issued;
// a successful fallback outcome replaces the primary one entirely.
func (c *Client) Extract(ctx context.Context, doc entity.Document) entity.ExtractionOutcome {
	start := time.Now()

	var messages []openai.ChatCompletionMessage
	if doc.IsScan && len(doc.PageImagesB64) > 0 {
		messages = buildVisionMessages(doc)
	} else {
		messages = buildTextMessages(doc)
	}

	outcome := c.tryModel(ctx, messages, c.cfg.ModelPrimary, doc.Filename)

	if c.shouldFallback(doc, outcome) {
		c.log.Info("extract.fallback",
			"filename", doc.Filename,
			"primary", c.cfg.ModelPrimary,
			"fallback", c.cfg.ModelFallback,
		)
		fb := c.tryModel(ctx, messages, c.cfg.ModelFallback, doc.Filename)
		if fb.Err == nil {
			outcome = fb
		}
	}

	outcome.Duration = time.Since(start)
	return outcome
}

// shouldFallback: scans only, at least one candidate, and every candidate's
// confidence below the auto-approval threshold.
func (c *Client) shouldFallback(doc entity.Document, out entity.ExtractionOutcome) bool {
	if !doc.IsScan || c.cfg.ModelFallback == c.cfg.ModelPrimary {
		return false
	}
	if out.Err != nil || len(out.Candidates) == 0 {
		return false
	}
	for _, cand := range out.Candidates {
		if cand.Confidence != nil && *cand.Confidence >= c.cfg.ConfidenceAuto {
			return false
		}
	}
	return true
}

func (c *Client) tryModel(ctx context.Context, messages []openai.ChatCompletionMessage, model, filename string) entity.ExtractionOutcome {
	rid := uuid.New().String()
	schema := BuildInvoiceJSONSchema()
	schemaJSON, _ := json.Marshal(schema)

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "invoice_extraction",
				Schema: json.RawMessage(schemaJSON),
				Strict: true,
			},
		},
	}

	var resp openai.ChatCompletionResponse
	err := c.retry.Do(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		class := common.ErrPermanentExtraction
		if isTransient(err) {
			class = common.ErrTransientService
		}
		c.log.Error("extract.call_failed", "req_id", rid, "filename", filename, "model", model, "error", err)
		return entity.ExtractionOutcome{Model: model, Err: fmt.Errorf("%w: %v", class, err)}
	}

	tokensIn := resp.Usage.PromptTokens
	tokensOut := resp.Usage.CompletionTokens
	cost := Cost(model, tokensIn, tokensOut)

	if len(resp.Choices) == 0 {
		c.log.Error("extract.no_choices", "req_id", rid, "filename", filename, "model", model)
		return entity.ExtractionOutcome{
			Model: model, TokensIn: tokensIn, TokensOut: tokensOut, CostUSD: cost,
			Err: fmt.Errorf("%w: no choices in response", common.ErrPermanentExtraction),
		}
	}
	raw := []byte(strings.TrimSpace(resp.Choices[0].Message.Content))

	// The schema is also enforced here: a non-conformant response is an
	// extraction error, not something to patch up downstream.
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		c.log.Error("extract.schema_validation_failed",
			"req_id", rid, "filename", filename, "model", model, "error", err)
		return entity.ExtractionOutcome{
			Model: model, TokensIn: tokensIn, TokensOut: tokensOut, CostUSD: cost, RawResponse: raw,
			Err: fmt.Errorf("%w: %v", common.ErrPermanentExtraction, err),
		}
	}

	var payload struct {
		Invoices []entity.InvoiceCandidate `json:"invoices"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Error("extract.decode_failed", "req_id", rid, "filename", filename, "model", model, "error", err)
		return entity.ExtractionOutcome{
			Model: model, TokensIn: tokensIn, TokensOut: tokensOut, CostUSD: cost, RawResponse: raw,
			Err: fmt.Errorf("%w: decode response: %v", common.ErrPermanentExtraction, err),
		}
	}

	c.log.Info("extract.ok",
		"req_id", rid,
		"filename", filename,
		"model", model,
		"invoices", len(payload.Invoices),
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
		"cost_usd", cost,
	)
	return entity.ExtractionOutcome{
		Candidates:  payload.Invoices,
		Model:       model,
		TokensIn:    tokensIn,
		TokensOut:   tokensOut,
		CostUSD:     cost,
		RawResponse: raw,
	}
}

func buildTextMessages(doc entity.Document) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, Content: buildUserText(doc.Filename, doc.Text)},
	}
}

func buildVisionMessages(doc entity.Document) []openai.ChatCompletionMessage {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: buildUserScanIntro(doc.Filename)},
	}
	for _, b64 := range doc.PageImagesB64 {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/png;base64," + b64,
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
}

// isTransient classifies failures the retry policy may retry: rate
// limiting, server-side errors, timeouts, and connection failures.
// Everything else is terminal after one attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests ||
			reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
