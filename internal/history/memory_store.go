package history

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore 以内存保存最近一次付款记录，主要用于测试与本地开发。
type MemoryStore struct {
	mu   sync.RWMutex
	last map[string]string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]string)}
}

// LastFundingMethodIDForPayee 实现 Store。
func (m *MemoryStore) LastFundingMethodIDForPayee(_ context.Context, payeeEmail string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last[normalizeEmail(payeeEmail)], nil
}

// RecordPayment 实现 Store。
func (m *MemoryStore) RecordPayment(_ context.Context, payeeEmail, fundingMethodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[normalizeEmail(payeeEmail)] = fundingMethodID
	return nil
}

// Close 实现 Store。
func (m *MemoryStore) Close() error { return nil }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
