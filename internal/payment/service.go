package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/invoice"
	"VeemFlow-MCP/internal/veem"
	"VeemFlow-MCP/pkg/logger"
)

// paymentDescription 是提交载荷中固定的描述标记。
const paymentDescription = "Payment created by VeemFlow Invoice AI"

// 收款人匹配低于该值时记一条"匹配不确定"假设。
const uncertainMatchThreshold = 0.8

// 收款人匹配低于该值时草稿必须人工确认。
const confirmConfidenceThreshold = 0.95

// HistoryStore 查询某收款人最近一次使用的出资方式。查询失败按
// fail-open 处理：工作流吞掉错误并视为"无偏好"。
type HistoryStore interface {
	LastFundingMethodIDForPayee(ctx context.Context, payeeEmail string) (string, error)
	RecordPayment(ctx context.Context, payeeEmail, fundingMethodID string) error
}

// ScheduleStore 持久化延期付款。本包只依赖创建能力，调度执行
// 由 schedule 包承担。
type ScheduleStore interface {
	Create(ctx context.Context, draft json.RawMessage, runAt time.Time, runAtRaw string) (*PaymentScheduleResult, error)
}

// Service 承载草稿准备、提交与排期三个操作。每次调用都是一条顺序
// 流程，不含内部并发；草稿在 Prepare 与 Submit 之间归调用方所有。
type Service struct {
	veem      veem.Client
	history   HistoryStore
	schedules ScheduleStore
	log       *slog.Logger
}

// NewService 构造付款工作流服务。
func NewService(client veem.Client, history HistoryStore, schedules ScheduleStore) *Service {
	return &Service{
		veem:      client,
		history:   history,
		schedules: schedules,
		log:       logger.Named("payment"),
	}
}

// PrepareParams 是 Prepare 的输入。Command 与 Invoice 至少给一个。
type PrepareParams struct {
	Command      string
	Invoice      *invoice.ExtractedInvoice
	CurrencyHint string
}

// Prepare 把不完整的付款意图组装成可确认的草稿。字段优先级：
// 票据 > 指令解析 > 提示 > 默认值。所有推断记入 assumptions，
// 所有缺口记入 missing_fields，顺序固定以保证诊断可复现。
func (s *Service) Prepare(ctx context.Context, params PrepareParams) (*PaymentDraft, error) {
	if params.Command == "" && params.Invoice == nil {
		return nil, xerrors.New(xerrors.CodeBadRequest, "Provide either 'command' or 'invoice'.")
	}
	if s.veem == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "付款服务未初始化")
	}

	draftID := uuid.NewString()
	idemKey := uuid.NewString()

	assumptions := []string{}
	missing := []string{}

	var (
		payeeName  string
		payeeEmail string
		amount     *float64
		currency   string
		purpose    string
	)

	if inv := params.Invoice; inv != nil {
		if !inv.Processable {
			return nil, xerrors.New(xerrors.CodeUnprocessableDocument,
				"Invoice is not processable.",
				xerrors.WithDetail("reason", inv.Reason),
			)
		}
		payeeName = inv.Payee.Name
		payeeEmail = inv.Payee.Email
		amount = inv.Money.Amount
		currency = inv.Money.Currency
		purpose = inv.Purpose
	}
	if params.Command != "" {
		parsed := ParseCommand(params.Command)
		if amount == nil || *amount == 0 {
			amount = parsed.Amount
		}
		if payeeName == "" {
			payeeName = parsed.PayeeName
		}
		if purpose == "" {
			purpose = parsed.Purpose
		}
	}

	if params.CurrencyHint != "" && currency == "" {
		currency = params.CurrencyHint
		assumptions = append(assumptions, fmt.Sprintf("Used currency hint '%s'.", params.CurrencyHint))
	}

	if amount == nil || *amount == 0 {
		missing = append(missing, "amount")
	}
	if payeeName == "" && payeeEmail == "" {
		missing = append(missing, "payee")
	}

	if currency == "" {
		currency = "USD"
		assumptions = append(assumptions, "Defaulted currency to USD.")
	}

	contacts, err := s.veem.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	resolved := resolvePayee(contacts, payeeName, payeeEmail)
	if resolved.MatchConfidence < uncertainMatchThreshold {
		assumptions = append(assumptions, "Payee match is uncertain; please confirm.")
	}

	fundingMethods, err := s.veem.ListFundingMethods(ctx)
	if err != nil {
		return nil, err
	}

	// 历史偏好查询是整个工作流里唯一的 fail-open 路径。
	preferredID := ""
	if resolved.Email != "" && s.history != nil {
		preferredID, err = s.history.LastFundingMethodIDForPayee(ctx, resolved.Email)
		if err != nil {
			s.log.Warn("历史出资方式查询失败，按无偏好处理",
				slog.Any("error", err), slog.String("payee_email", resolved.Email))
			preferredID = ""
		}
		if preferredID != "" {
			assumptions = append(assumptions, "Inferred funding method from past payments.")
		}
	}
	fundingMethodID := pickFundingMethodID(fundingMethods, preferredID)
	if fundingMethodID == "" {
		missing = append(missing, "funding_method_id")
	}

	if purpose == "" {
		purpose = "Invoice payment"
		assumptions = append(assumptions, "Defaulted purpose to 'Invoice payment'.")
	}

	recipientEmail := resolved.Email
	if recipientEmail == "" {
		recipientEmail = payeeEmail
	}
	recipientName := resolved.Name
	if recipientName == "" {
		recipientName = payeeName
	}
	proposed := map[string]any{
		"accountId":      s.veem.AccountID(),
		"recipient":      map[string]any{"email": recipientEmail, "name": recipientName},
		"amount":         map[string]any{"number": amountValue(amount), "currency": currency},
		"purpose":        purpose,
		"fundingMethod":  map[string]any{"id": fundingMethodID},
		"description":    paymentDescription,
		"idempotencyKey": idemKey,
	}

	draft := &PaymentDraft{
		DraftID:                draftID,
		IdempotencyKey:         idemKey,
		Payee:                  resolved,
		Amount:                 amount,
		Currency:               currency,
		Purpose:                purpose,
		FundingMethodID:        fundingMethodID,
		NeedsConfirmation:      len(assumptions) > 0 || len(missing) > 0 || resolved.MatchConfidence < confirmConfidenceThreshold,
		Assumptions:            assumptions,
		MissingFields:          missing,
		ProposedPaymentPayload: proposed,
	}

	s.log.Info("付款草稿已生成",
		slog.String("draft_id", draft.DraftID),
		slog.Float64("match_confidence", resolved.MatchConfidence),
		slog.Int("assumptions", len(assumptions)),
		slog.Int("missing_fields", len(missing)),
	)
	return draft, nil
}

// Submit 校验草稿并提交付款。提交载荷按草稿的当前字段重建，
// Prepare 之后调用方的修改会被如实采用；预览载荷不被信任。
func (s *Service) Submit(ctx context.Context, draft *PaymentDraft) (*PaymentSubmitResult, error) {
	if draft == nil {
		return nil, xerrors.New(xerrors.CodeBadRequest, "Provide 'draft'.")
	}
	if s.veem == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "付款服务未初始化")
	}

	missing := []string{}
	if !draft.HasAmount() {
		missing = append(missing, "amount")
	}
	if draft.Currency == "" {
		missing = append(missing, "currency")
	}
	if draft.Payee.Email == "" && draft.Payee.Name == "" {
		missing = append(missing, "payee")
	}
	if draft.FundingMethodID == "" {
		missing = append(missing, "funding_method_id")
	}
	if len(missing) > 0 {
		return nil, xerrors.New(xerrors.CodeMissingFields,
			"Draft missing required fields.",
			xerrors.WithDetail("missing", missing),
		)
	}

	payload := map[string]any{
		"accountId": s.veem.AccountID(),
		"recipient": map[string]any{
			"email":     draft.Payee.Email,
			"name":      draft.Payee.Name,
			"contactId": draft.Payee.ContactID,
		},
		"amount":         map[string]any{"number": *draft.Amount, "currency": draft.Currency},
		"purpose":        draft.Purpose,
		"fundingMethod":  map[string]any{"id": draft.FundingMethodID},
		"description":    paymentDescription,
		"idempotencyKey": draft.IdempotencyKey,
	}

	raw, err := s.veem.CreatePayment(ctx, payload)
	if err != nil {
		return nil, err
	}

	result := &PaymentSubmitResult{
		PaymentID: strings.TrimSpace(fieldString(raw, "id", "paymentId")),
		Status:    fieldString(raw, "status", "state"),
		Raw:       raw,
	}

	// 回写历史，供后续 Prepare 推断出资方式。失败只记日志。
	if s.history != nil && draft.Payee.Email != "" {
		if err := s.history.RecordPayment(ctx, draft.Payee.Email, draft.FundingMethodID); err != nil {
			s.log.Warn("付款历史回写失败", slog.Any("error", err))
		}
	}

	logger.Audit().Info("payment submitted",
		slog.String("draft_id", draft.DraftID),
		slog.String("payment_id", result.PaymentID),
		slog.String("status", result.Status),
		slog.Float64("amount", *draft.Amount),
		slog.String("currency", draft.Currency),
		slog.String("payee_email", draft.Payee.Email),
		slog.String("funding_method_id", draft.FundingMethodID),
		slog.String("idempotency_key", draft.IdempotencyKey),
	)
	return result, nil
}

// Schedule 校验运行时间并把草稿快照交给排期存储。时间戳不合法时在
// 任何持久化调用之前失败。
func (s *Service) Schedule(ctx context.Context, draft *PaymentDraft, runAtUTC string) (*PaymentScheduleResult, error) {
	if draft == nil {
		return nil, xerrors.New(xerrors.CodeBadRequest, "Provide 'draft'.")
	}
	if s.schedules == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "排期存储未初始化")
	}

	runAt, err := ParseRunAt(runAtUTC)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeMalformedTimestamp,
			"run_at_utc is not a valid ISO-8601 timestamp.",
			xerrors.WithDetail("run_at_utc", runAtUTC),
		)
	}

	snapshot, err := json.Marshal(draft)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码草稿快照失败")
	}

	result, err := s.schedules.Create(ctx, snapshot, runAt, runAtUTC)
	if err != nil {
		return nil, err
	}

	logger.Audit().Info("payment scheduled",
		slog.String("draft_id", draft.DraftID),
		slog.String("schedule_id", result.ScheduleID),
		slog.String("run_at_utc", result.RunAtUTC),
	)
	return result, nil
}

// ParseRunAt 按 ISO-8601 解析运行时间。接受 RFC 3339、无时区的
// 日期时间以及纯日期三种写法，尾部的字面 Z 视为 UTC。
func ParseRunAt(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func amountValue(amount *float64) any {
	if amount == nil {
		return nil
	}
	return *amount
}
