package payment

// ResolvedPayee 描述一次收款人匹配的结果。匹配不到也是合法结局，
// 此时 MatchConfidence 为 0，Candidates 提供人工消歧候选。
type ResolvedPayee struct {
	ContactID       string           `json:"contact_id,omitempty"`
	Name            string           `json:"name,omitempty"`
	Email           string           `json:"email,omitempty"`
	MatchConfidence float64          `json:"match_confidence"`
	Candidates      []map[string]any `json:"candidates"`
}

// PaymentDraft 是一笔待确认付款的完整草稿。调用方可以在 Prepare 与
// Submit 之间修改字段；提交载荷在 Submit 时按当前字段重建，
// ProposedPaymentPayload 仅供 Review & Confirm 预览。
type PaymentDraft struct {
	DraftID        string `json:"draft_id"`
	IdempotencyKey string `json:"idempotency_key"`

	Payee           ResolvedPayee `json:"payee"`
	Amount          *float64      `json:"amount,omitempty"`
	Currency        string        `json:"currency,omitempty"`
	Purpose         string        `json:"purpose,omitempty"`
	FundingMethodID string        `json:"funding_method_id,omitempty"`

	NeedsConfirmation bool     `json:"needs_confirmation"`
	Assumptions       []string `json:"assumptions"`
	MissingFields     []string `json:"missing_fields"`

	ProposedPaymentPayload map[string]any `json:"proposed_payment_payload"`
}

// HasAmount 判断金额是否已给出。沿用宽松语义：零值视同缺失。
func (d *PaymentDraft) HasAmount() bool {
	return d != nil && d.Amount != nil && *d.Amount != 0
}

// PaymentSubmitResult 是提交给支付提供方之后的归一化结果。
// Raw 保留提供方的完整响应，便于排查。
type PaymentSubmitResult struct {
	PaymentID string         `json:"payment_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Raw       map[string]any `json:"raw"`
}

// PaymentScheduleResult 是排期存储返回的结果，原样透传给调用方。
type PaymentScheduleResult struct {
	ScheduleID string `json:"schedule_id"`
	Status     string `json:"status"`
	RunAtUTC   string `json:"run_at_utc"`
}
