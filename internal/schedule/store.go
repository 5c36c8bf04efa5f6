// Package schedule 持久化延期付款并在到期时将其派发给执行方。
// 存储与队列各有内存实现（测试用）和真实后端实现（Redis / RabbitMQ）。
package schedule

import (
	"context"
	"encoding/json"
	"time"

	"VeemFlow-MCP/internal/payment"
)

// Status 表示排期记录的生命周期状态。
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Scheduled 是一条持久化的排期记录。Draft 保存草稿在排期时刻的
// JSON 快照，执行时按快照原样提交。
type Scheduled struct {
	ID           string          `json:"id"`
	Draft        json.RawMessage `json:"draft"`
	RunAt        time.Time       `json:"run_at"`
	RunAtRaw     string          `json:"run_at_utc"`
	Status       Status          `json:"status"`
	CreatedAtUTC string          `json:"created_at_utc"`
	LastError    string          `json:"last_error,omitempty"`
}

// Store 抽象排期记录的持久化。Create 的返回值会原样透传给工具调用方。
type Store interface {
	Create(ctx context.Context, draft json.RawMessage, runAt time.Time, runAtRaw string) (*payment.PaymentScheduleResult, error)
	Get(ctx context.Context, id string) (*Scheduled, error)
	// ListDue 返回到期且仍处于 scheduled 状态的记录。
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Scheduled, error)
	MarkDispatched(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Close() error
}
