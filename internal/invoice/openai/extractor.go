// Package openai 通过 OpenAI Chat Completions 完成票据抽取。
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/invoice"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4.1-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述调用 OpenAI API 所需的信息。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Extractor 通过 HTTP 调用 OpenAI 完成票据到结构化字段的抽取。
type Extractor struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewExtractor 根据配置创建抽取器。
func NewExtractor(cfg Config) (*Extractor, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeMissingOpenAIKey, "未提供 OpenAI API Key")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Extractor{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Extract 实现 invoice.Extractor。文本类文档直接把内容塞进提示词，
// 其余（图片、PDF）整体作为 data URL 交给多模态模型。
func (e *Extractor) Extract(ctx context.Context, doc invoice.DocumentInput) (*invoice.ExtractedInvoice, error) {
	var userContent any
	if isTextDocument(doc) {
		raw, err := base64.StdEncoding.DecodeString(doc.FileBase64)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUnprocessableDocument, err, "Could not decode document content.")
		}
		text := string(raw)
		// 截断以控制 token 成本。
		if len(text) > 25_000 {
			text = text[:25_000]
		}
		userContent = extractionPrompt(doc.Filename) + "\n\nINVOICE_TEXT:\n" + text
	} else {
		dataURL := fmt.Sprintf("data:%s;base64,%s", doc.MimeType, doc.FileBase64)
		userContent = []map[string]any{
			{"type": "text", "text": extractionPrompt(doc.Filename)},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	content, err := e.complete(ctx, userContent)
	if err != nil {
		return nil, err
	}
	return parseOutput(content)
}

func isTextDocument(doc invoice.DocumentInput) bool {
	return strings.HasPrefix(doc.MimeType, "text/") ||
		strings.HasSuffix(strings.ToLower(doc.Filename), ".txt")
}

func (e *Extractor) complete(ctx context.Context, userContent any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":           e.model,
		"temperature":     e.temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": "You extract structured invoice/payment data."},
			{"role": "user", "content": userContent},
		},
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "编码 OpenAI 请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "构建 OpenAI 请求失败")
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", xerrors.New(xerrors.CodeLLMBadOutput,
			fmt.Sprintf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(xerrors.CodeLLMBadOutput, "OpenAI 响应中没有有效的 choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(xerrors.CodeLLMBadOutput, "OpenAI 响应内容为空")
	}
	return content, nil
}

// parseOutput 校验模型输出并套用最低闸门：可处理的票据必须有金额。
func parseOutput(content string) (*invoice.ExtractedInvoice, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "Invoice extractor returned invalid JSON.")
	}

	var extracted invoice.ExtractedInvoice
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMBadOutput, err, "Invoice extractor output failed schema validation.")
	}
	extracted.Raw = raw

	if extracted.Processable && extracted.Money.Amount == nil {
		extracted.Processable = false
		if extracted.Reason == "" {
			extracted.Reason = "Missing amount."
		}
		extracted.Warnings = append(extracted.Warnings, "Amount not found; marked unprocessable.")
	}
	return &extracted, nil
}

func extractionPrompt(filename string) string {
	return fmt.Sprintf(`Parse this invoice document and return a SINGLE JSON object with these keys:

- processable: boolean
- reason: string|null (why not processable)
- payee: { name: string|null, email: string|null }
- money: { amount: number|null, currency: string|null }
- purpose: string|null
- invoice_number: string|null
- invoice_date: string|null
- due_date: string|null
- confidence: object mapping field name -> number 0..1
- warnings: array of strings

Rules:
- If this is NOT an invoice or you cannot find an amount, set processable=false and explain in reason.
- Never hallucinate emails or invoice numbers.
- Currency: infer from symbol only if unambiguous, otherwise null + warning.
- Amount: numeric value only.

Filename: %s
`, filename)
}
