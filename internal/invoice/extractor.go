package invoice

import (
	"context"

	xerrors "VeemFlow-MCP/internal/errors"
)

// Extractor 把原始票据文档转成归一化的 ExtractedInvoice。
type Extractor interface {
	Extract(ctx context.Context, doc DocumentInput) (*ExtractedInvoice, error)
}

// NullExtractor 在未配置大模型凭证时占位，调用即报错。
// 服务本身仍可启动并列出工具。
type NullExtractor struct{}

// Extract 实现 Extractor。
func (NullExtractor) Extract(context.Context, DocumentInput) (*ExtractedInvoice, error) {
	return nil, xerrors.New(xerrors.CodeMissingOpenAIKey,
		"OPENAI_API_KEY not configured; cannot parse invoices.",
		xerrors.WithDetail("required", []string{"OPENAI_API_KEY"}),
	)
}
