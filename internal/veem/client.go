// Package veem 封装对 Veem 支付 API 的 HTTP 访问。工作流通过 Client
// 接口消费这些能力，不直接感知 HTTP 细节。
package veem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
)

const (
	defaultBaseURL = "https://api.qa.veem.com/veem/v1.2"
	defaultTimeout = 30 * time.Second
)

// Client 抽象本服务消费的 Veem 能力。
type Client interface {
	AccountID() string
	GetAccount(ctx context.Context) (map[string]any, error)
	ListContacts(ctx context.Context) (map[string]any, error)
	ListFundingMethods(ctx context.Context) (map[string]any, error)
	CreatePayment(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// Config 描述访问 Veem API 所需的信息。AccountID 与 AccessToken 允许
// 为空：服务可以无凭证启动，调用需要凭证的工具时才报错。
type Config struct {
	BaseURL     string
	AccountID   string
	AccessToken string
	Timeout     time.Duration
}

// HTTPClient 是 Client 的 HTTP 实现。
type HTTPClient struct {
	baseURL     string
	accountID   string
	accessToken string
	httpClient  *http.Client
}

// NewHTTPClient 根据配置创建 Veem 客户端。
func NewHTTPClient(cfg Config) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:     baseURL,
		accountID:   strings.TrimSpace(cfg.AccountID),
		accessToken: strings.TrimSpace(cfg.AccessToken),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// AccountID 返回配置的付款方账号 ID。
func (c *HTTPClient) AccountID() string {
	return c.accountID
}

func (c *HTTPClient) requireAuth() error {
	if c.accountID == "" || c.accessToken == "" {
		return xerrors.New(xerrors.CodeMissingVeemCredentials,
			"Missing VEEM_ACCOUNT_ID / VEEM_ACCESS_TOKEN.",
			xerrors.WithDetail("required", []string{"VEEM_ACCOUNT_ID", "VEEM_ACCESS_TOKEN"}),
		)
	}
	return nil
}

func (c *HTTPClient) request(ctx context.Context, method, path string, body any) (map[string]any, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码请求体失败")
		}
		reader = bytes.NewReader(encoded)
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeVeemAPI, err, "构建 Veem 请求失败")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeVeemAPI, err, "请求 Veem 失败")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeVeemAPI, err, "读取 Veem 响应失败")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = map[string]any{"text": string(raw)}
		}
		return nil, xerrors.New(xerrors.CodeVeemAPI,
			fmt.Sprintf("Veem API error %d for %s %s", resp.StatusCode, method, path),
			xerrors.WithDetail("status", resp.StatusCode),
			xerrors.WithDetail("payload", payload),
		)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeVeemAPI, err, "解析 Veem 响应失败")
	}
	return decoded, nil
}

// GetAccount 返回当前付款方账号信息。
func (c *HTTPClient) GetAccount(ctx context.Context) (map[string]any, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	return c.request(ctx, http.MethodGet, "account/"+c.accountID, nil)
}

// ListContacts 拉取联系人目录。
func (c *HTTPClient) ListContacts(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "contacts", nil)
}

// ListFundingMethods 拉取出资方式列表。
func (c *HTTPClient) ListFundingMethods(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "funding-methods", nil)
}

// CreatePayment 创建付款。
func (c *HTTPClient) CreatePayment(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "payments", payload)
}
