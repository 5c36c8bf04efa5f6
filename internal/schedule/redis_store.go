package schedule

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/internal/payment"
)

// RedisStoreConfig 描述 Redis 排期存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore 使用 Redis 保存排期记录：记录本体是 JSON 字符串，
// 到期索引是以运行时间为 score 的有序集合。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 排期存储。
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "veemflow"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + ":schedule:" + id }
func (s *RedisStore) dueKey() string             { return s.prefix + ":schedules:due" }
func (s *RedisStore) seqKey() string             { return s.prefix + ":schedules:seq" }

// Create 实现 Store。
func (s *RedisStore) Create(ctx context.Context, draft json.RawMessage, runAt time.Time, runAtRaw string) (*payment.PaymentScheduleResult, error) {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "分配排期 ID 失败")
	}
	id := strconv.FormatInt(seq, 10)

	record := &Scheduled{
		ID:           id,
		Draft:        draft,
		RunAt:        runAt,
		RunAtRaw:     runAtRaw,
		Status:       StatusScheduled,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	if err := s.client.ZAdd(ctx, s.dueKey(), redis.Z{
		Score:  float64(runAt.Unix()),
		Member: id,
	}).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入到期索引失败")
	}

	return &payment.PaymentScheduleResult{
		ScheduleID: id,
		Status:     string(StatusScheduled),
		RunAtUTC:   runAtRaw,
	}, nil
}

func (s *RedisStore) save(ctx context.Context, record *Scheduled) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码排期记录失败")
	}
	if err := s.client.Set(ctx, s.recordKey(record.ID), encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入排期记录失败")
	}
	return nil
}

// Get 实现 Store。
func (s *RedisStore) Get(ctx context.Context, id string) (*Scheduled, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Result()
	if stdErrors.Is(err, redis.Nil) {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "排期记录不存在", xerrors.WithDetail("schedule_id", id))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取排期记录失败")
	}
	var record Scheduled
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析排期记录失败")
	}
	return &record, nil
}

// ListDue 实现 Store。
func (s *RedisStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Scheduled, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.dueKey(), opt).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询到期排期失败")
	}

	due := make([]*Scheduled, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if record.Status == StatusScheduled {
			due = append(due, record)
		}
	}
	return due, nil
}

// MarkDispatched 实现 Store。
func (s *RedisStore) MarkDispatched(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusDispatched, "")
}

// MarkFailed 实现 Store。
func (s *RedisStore) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.setStatus(ctx, id, StatusFailed, reason)
}

func (s *RedisStore) setStatus(ctx context.Context, id string, status Status, reason string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	record.Status = status
	record.LastError = reason
	if err := s.save(ctx, record); err != nil {
		return err
	}
	// 终态记录移出到期索引，避免重复派发。
	if err := s.client.ZRem(ctx, s.dueKey(), id).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新到期索引失败")
	}
	return nil
}

// Close 实现 Store。
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
