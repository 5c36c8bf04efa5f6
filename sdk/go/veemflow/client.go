// Package veemflow provides a small typed client for the VeemFlow tool
// endpoints. Tool failures are surfaced as *ToolError so callers can branch
// on the machine-readable code instead of parsing messages.
package veemflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the VeemFlow tool API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a client for the VeemFlow API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Meta echoes the per-call metadata returned with every envelope.
type Meta struct {
	Tool         string `json:"tool"`
	RequestID    string `json:"request_id"`
	TimestampUTC string `json:"timestamp_utc"`
}

// ToolError represents a tool-level failure reported inside an envelope.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Meta    Meta           `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("veemflow tool error (%s): %s", e.Code, e.Message)
}

// HTTPError represents a transport-level failure (non-JSON response or a
// non-2xx status outside the envelope protocol).
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("veemflow http error (%d): %s", e.StatusCode, e.Body)
}

// PayeeHint carries payee fields extracted from an invoice.
type PayeeHint struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Money pairs an amount with its currency.
type Money struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency,omitempty"`
}

// ExtractedInvoice is the structured result of invoice processing.
type ExtractedInvoice struct {
	Processable   bool               `json:"processable"`
	Reason        string             `json:"reason,omitempty"`
	Payee         PayeeHint          `json:"payee"`
	Money         Money              `json:"money"`
	Purpose       string             `json:"purpose,omitempty"`
	InvoiceNumber string             `json:"invoice_number,omitempty"`
	InvoiceDate   string             `json:"invoice_date,omitempty"`
	DueDate       string             `json:"due_date,omitempty"`
	Confidence    map[string]float64 `json:"confidence,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// ResolvedPayee describes the directory match for the requested payee.
type ResolvedPayee struct {
	ContactID       string           `json:"contact_id,omitempty"`
	Name            string           `json:"name,omitempty"`
	Email           string           `json:"email,omitempty"`
	MatchConfidence float64          `json:"match_confidence"`
	Candidates      []map[string]any `json:"candidates"`
}

// PaymentDraft is the reviewable draft returned by payment preparation.
type PaymentDraft struct {
	DraftID                string         `json:"draft_id"`
	IdempotencyKey         string         `json:"idempotency_key"`
	Payee                  ResolvedPayee  `json:"payee"`
	Amount                 *float64       `json:"amount"`
	Currency               string         `json:"currency"`
	Purpose                string         `json:"purpose"`
	FundingMethodID        string         `json:"funding_method_id"`
	NeedsConfirmation      bool           `json:"needs_confirmation"`
	Assumptions            []string       `json:"assumptions"`
	MissingFields          []string       `json:"missing_fields"`
	ProposedPaymentPayload map[string]any `json:"proposed_payment_payload"`
}

// SubmitResult reports the provider outcome of a submitted payment.
type SubmitResult struct {
	PaymentID string         `json:"payment_id"`
	Status    string         `json:"status"`
	Raw       map[string]any `json:"raw"`
}

// ScheduleResult reports a persisted payment schedule.
type ScheduleResult struct {
	ScheduleID string `json:"schedule_id"`
	Status     string `json:"status"`
	RunAtUTC   string `json:"run_at_utc"`
}

// ProcessInvoiceRequest is the payload for the invoice_process tool.
type ProcessInvoiceRequest struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	FileBase64 string `json:"file_base64"`
	RequestID  string `json:"request_id,omitempty"`
}

// PrepareRequest is the payload for the payment_prepare tool.
type PrepareRequest struct {
	Command      string            `json:"command,omitempty"`
	Invoice      *ExtractedInvoice `json:"invoice,omitempty"`
	CurrencyHint string            `json:"currency_hint,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
}

// SubmitRequest is the payload for the payment_submit tool.
type SubmitRequest struct {
	Draft     *PaymentDraft `json:"draft"`
	RequestID string        `json:"request_id,omitempty"`
}

// ScheduleRequest is the payload for the payment_schedule tool.
type ScheduleRequest struct {
	Draft     *PaymentDraft `json:"draft"`
	RunAtUTC  string        `json:"run_at_utc"`
	RequestID string        `json:"request_id,omitempty"`
}

// ProcessInvoice extracts structured fields from an uploaded document.
func (c *Client) ProcessInvoice(ctx context.Context, req ProcessInvoiceRequest) (*ExtractedInvoice, Meta, error) {
	var out ExtractedInvoice
	meta, err := c.call(ctx, "invoice_process", req, &out)
	if err != nil {
		return nil, meta, err
	}
	return &out, meta, nil
}

// Prepare builds a reviewable payment draft from a command and/or invoice.
func (c *Client) Prepare(ctx context.Context, req PrepareRequest) (*PaymentDraft, Meta, error) {
	var out PaymentDraft
	meta, err := c.call(ctx, "payment_prepare", req, &out)
	if err != nil {
		return nil, meta, err
	}
	return &out, meta, nil
}

// Submit executes a confirmed draft against the payment provider.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, Meta, error) {
	var out SubmitResult
	meta, err := c.call(ctx, "payment_submit", req, &out)
	if err != nil {
		return nil, meta, err
	}
	return &out, meta, nil
}

// Schedule records a draft for deferred execution at the given UTC time.
func (c *Client) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, Meta, error) {
	var out ScheduleResult
	meta, err := c.call(ctx, "payment_schedule", req, &out)
	if err != nil {
		return nil, meta, err
	}
	return &out, meta, nil
}

type envelope struct {
	OK    bool            `json:"ok"`
	Meta  Meta            `json:"meta"`
	Data  json.RawMessage `json:"data"`
	Error *ToolError      `json:"error"`
}

func (c *Client) call(ctx context.Context, tool string, payload any, out any) (Meta, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Meta{}, fmt.Errorf("encode request: %w", err)
	}

	rel := &url.URL{Path: path.Join(c.baseURL.Path, "/mcp/v1/tools/", tool)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Meta{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Meta{}, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Meta{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if !env.OK {
		toolErr := env.Error
		if toolErr == nil {
			toolErr = &ToolError{Code: "UNHANDLED", Message: "tool call failed without error body"}
		}
		toolErr.Meta = env.Meta
		return env.Meta, toolErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Meta, fmt.Errorf("decode response data: %w", err)
		}
	}
	return env.Meta, nil
}
