package schedule

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/payment"
)

// MemoryStore 以内存保存排期记录，主要用于测试与本地开发。
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string]*Scheduled
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Scheduled)}
}

// Create 实现 Store。
func (m *MemoryStore) Create(_ context.Context, draft json.RawMessage, runAt time.Time, runAtRaw string) (*payment.PaymentScheduleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := strconv.FormatInt(m.seq, 10)
	m.records[id] = &Scheduled{
		ID:           id,
		Draft:        append(json.RawMessage(nil), draft...),
		RunAt:        runAt,
		RunAtRaw:     runAtRaw,
		Status:       StatusScheduled,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	return &payment.PaymentScheduleResult{
		ScheduleID: id,
		Status:     string(StatusScheduled),
		RunAtUTC:   runAtRaw,
	}, nil
}

// Get 实现 Store。
func (m *MemoryStore) Get(_ context.Context, id string) (*Scheduled, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "排期记录不存在", xerrors.WithDetail("schedule_id", id))
	}
	clone := *record
	clone.Draft = append(json.RawMessage(nil), record.Draft...)
	return &clone, nil
}

// ListDue 实现 Store。
func (m *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]*Scheduled, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*Scheduled, 0)
	for _, record := range m.records {
		if record.Status == StatusScheduled && !record.RunAt.After(now) {
			clone := *record
			clone.Draft = append(json.RawMessage(nil), record.Draft...)
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// MarkDispatched 实现 Store。
func (m *MemoryStore) MarkDispatched(_ context.Context, id string) error {
	return m.setStatus(id, StatusDispatched, "")
}

// MarkFailed 实现 Store。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, reason string) error {
	return m.setStatus(id, StatusFailed, reason)
}

func (m *MemoryStore) setStatus(id string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return xerrors.New(xerrors.CodeStorageFailure, "排期记录不存在", xerrors.WithDetail("schedule_id", id))
	}
	record.Status = status
	record.LastError = reason
	return nil
}

// Close 实现 Store。
func (m *MemoryStore) Close() error { return nil }
