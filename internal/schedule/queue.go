package schedule

import "context"

// Handler 处理来自派发队列的排期 ID。
type Handler func(ctx context.Context, scheduleID string) error

// Producer 负责向派发队列投递到期的排期 ID。
type Producer interface {
	Publish(ctx context.Context, scheduleID string) error
	Close() error
}

// Consumer 负责从派发队列消费排期 ID。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
