// Package history 记录历史付款，供草稿准备阶段推断收款人惯用的
// 出资方式。查询接口是整个系统唯一被设计为 fail-open 的外部依赖。
package history

import "context"

// Store 抽象付款历史的读写。
type Store interface {
	// LastFundingMethodIDForPayee 返回该收款人最近一次付款使用的
	// 出资方式 ID，没有记录时返回空串。
	LastFundingMethodIDForPayee(ctx context.Context, payeeEmail string) (string, error)
	// RecordPayment 在付款提交成功后追加一条历史。
	RecordPayment(ctx context.Context, payeeEmail, fundingMethodID string) error
	Close() error
}

// NullStore 不保存任何历史，查询永远返回"无偏好"。
type NullStore struct{}

// LastFundingMethodIDForPayee 实现 Store。
func (NullStore) LastFundingMethodIDForPayee(context.Context, string) (string, error) {
	return "", nil
}

// RecordPayment 实现 Store。
func (NullStore) RecordPayment(context.Context, string, string) error { return nil }

// Close 实现 Store。
func (NullStore) Close() error { return nil }
