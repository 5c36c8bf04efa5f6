package schedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/pkg/logger"
)

// SubmitFunc 负责把到期的草稿快照真正提交出去。由装配方注入，
// 本包不感知付款工作流的细节。
type SubmitFunc func(ctx context.Context, draft json.RawMessage) error

// Dispatcher 周期性扫描到期排期并投递到派发队列。投递成功即标记
// dispatched，避免下一轮重复投递。
type Dispatcher struct {
	store    Store
	producer Producer
	interval time.Duration
	batch    int
	log      *slog.Logger
}

// NewDispatcher 构造 Dispatcher。
func NewDispatcher(store Store, producer Producer, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Dispatcher{
		store:    store,
		producer: producer,
		interval: interval,
		batch:    50,
		log:      logger.Named("schedule.dispatcher"),
	}
}

// Run 启动扫描循环，直到上下文取消。
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.store == nil || d.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "派发器未初始化")
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.sweep(ctx, now)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context, now time.Time) {
	due, err := d.store.ListDue(ctx, now, d.batch)
	if err != nil {
		d.log.Error("扫描到期排期失败", slog.Any("error", err))
		return
	}
	for _, record := range due {
		if err := d.producer.Publish(ctx, record.ID); err != nil {
			d.log.Error("投递排期失败", slog.Any("error", err), slog.String("schedule_id", record.ID))
			continue
		}
		if err := d.store.MarkDispatched(ctx, record.ID); err != nil {
			d.log.Error("标记排期失败", slog.Any("error", err), slog.String("schedule_id", record.ID))
		}
	}
}

// Worker 消费派发队列并执行到期付款。
type Worker struct {
	store       Store
	consumer    Consumer
	submit      SubmitFunc
	workerCount int
	log         *slog.Logger
}

// NewWorker 构造 Worker。
func NewWorker(store Store, consumer Consumer, submit SubmitFunc, workerCount int) *Worker {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Worker{
		store:       store,
		consumer:    consumer,
		submit:      submit,
		workerCount: workerCount,
		log:         logger.Named("schedule.worker"),
	}
}

// Run 启动消费循环，直到上下文取消。
func (w *Worker) Run(ctx context.Context) error {
	if w.store == nil || w.consumer == nil || w.submit == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "排期执行器未初始化")
	}
	return w.consumer.Consume(ctx, w.workerCount, w.handle)
}

func (w *Worker) handle(ctx context.Context, scheduleID string) error {
	record, err := w.store.Get(ctx, scheduleID)
	if err != nil {
		w.log.Error("读取排期失败", slog.Any("error", err), slog.String("schedule_id", scheduleID))
		return err
	}

	if err := w.submit(ctx, record.Draft); err != nil {
		w.log.Error("执行排期付款失败", slog.Any("error", err), slog.String("schedule_id", scheduleID))
		if markErr := w.store.MarkFailed(ctx, scheduleID, err.Error()); markErr != nil {
			w.log.Error("标记排期失败状态出错", slog.Any("error", markErr), slog.String("schedule_id", scheduleID))
		}
		return err
	}

	logger.Audit().Info("scheduled payment dispatched",
		slog.String("schedule_id", scheduleID),
		slog.String("run_at_utc", record.RunAtRaw),
	)
	return nil
}
