package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"VeemFlow-MCP/internal/api"
	"VeemFlow-MCP/internal/config"
	"VeemFlow-MCP/internal/history"
	"VeemFlow-MCP/internal/invoice"
	"VeemFlow-MCP/internal/invoice/openai"
	"VeemFlow-MCP/internal/payment"
	"VeemFlow-MCP/internal/schedule"
	"VeemFlow-MCP/internal/veem"
	"VeemFlow-MCP/pkg/logger"
)

// main 是 VeemFlow 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("veemflowd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("VEEMFLOW_CONFIG")
	if configPath == "" {
		candidate := filepath.Join("configs", "veemflow.yaml")
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("刷新日志失败: %v", err)
		}
	}()

	veemClient := veem.NewHTTPClient(veem.Config{
		BaseURL:     cfg.Veem.BaseURL,
		AccountID:   cfg.Veem.AccountID,
		AccessToken: cfg.Veem.AccessToken,
	})

	// 凭证就绪时启动即校验一次；失败只告警，不阻断启动。
	if cfg.Veem.AccountID != "" && cfg.Veem.AccessToken != "" {
		if _, err := veemClient.GetAccount(ctx); err != nil {
			logger.L().Warn("Veem 账号校验失败", slog.Any("error", err))
		}
	}

	extractor, err := createExtractor(cfg)
	if err != nil {
		return err
	}

	historyStore, err := createHistoryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := historyStore.Close(); err != nil {
			logger.L().Warn("关闭历史存储失败", slog.Any("error", err))
		}
	}()

	scheduleStore, err := createScheduleStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := scheduleStore.Close(); err != nil {
			logger.L().Warn("关闭排期存储失败", slog.Any("error", err))
		}
	}()

	svc := payment.NewService(veemClient, historyStore, scheduleStore)

	if cfg.Schedule.Dispatch.Enabled {
		queue, err := createScheduleQueue(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.L().Warn("关闭派发队列失败", slog.Any("error", err))
			}
		}()

		submit := func(ctx context.Context, raw json.RawMessage) error {
			var draft payment.PaymentDraft
			if err := json.Unmarshal(raw, &draft); err != nil {
				return err
			}
			_, err := svc.Submit(ctx, &draft)
			return err
		}

		dispatcher := schedule.NewDispatcher(scheduleStore, queue, cfg.Schedule.Dispatch.Interval.Std())
		worker := schedule.NewWorker(scheduleStore, queue, submit, cfg.Schedule.Dispatch.Workers)

		dispatchCtx, dispatchCancel := context.WithCancel(ctx)
		defer dispatchCancel()

		go func() {
			if err := dispatcher.Run(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("派发器异常退出", slog.Any("error", err))
			}
		}()
		go func() {
			if err := worker.Run(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("排期执行器异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, svc, extractor)
	logger.L().Info("veemflowd 启动", slog.String("address", cfg.Server.Address))
	return server.Start(ctx)
}

// createExtractor 根据配置选择票据抽取实现。没有 OpenAI Key 时退化为
// NullExtractor：服务照常启动，调用 invoice_process 时返回配置错误。
func createExtractor(cfg *config.Config) (invoice.Extractor, error) {
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return invoice.NullExtractor{}, nil
	}
	return openai.NewExtractor(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
	})
}

func createHistoryStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	switch cfg.History.Driver {
	case "", "none":
		return history.NullStore{}, nil
	case "memory":
		return history.NewMemoryStore(), nil
	case "mysql":
		return history.NewMySQLStore(ctx, cfg.History.DSN)
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.History.Driver)
	}
}

func createScheduleStore(ctx context.Context, cfg *config.Config) (schedule.Store, error) {
	switch cfg.Schedule.Store.Driver {
	case "", "memory":
		return schedule.NewMemoryStore(), nil
	case "redis":
		return schedule.NewRedisStore(ctx, schedule.RedisStoreConfig{
			Address:  cfg.Schedule.Store.Address,
			Password: cfg.Schedule.Store.Password,
			DB:       cfg.Schedule.Store.DB,
		})
	default:
		return nil, fmt.Errorf("未知的排期存储驱动: %s", cfg.Schedule.Store.Driver)
	}
}

func createScheduleQueue(cfg *config.Config) (schedule.Queue, error) {
	switch cfg.Schedule.Queue.Driver {
	case "", "memory":
		return schedule.NewMemoryQueue(1024), nil
	case "rabbitmq":
		return schedule.NewRabbitMQQueue(schedule.RabbitMQConfig{
			URL:     cfg.Schedule.Queue.URL,
			Queue:   cfg.Schedule.Queue.Queue,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的派发队列驱动: %s", cfg.Schedule.Queue.Driver)
	}
}
