package history

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"VeemFlow-MCP/deploy/migrations"
	xerrors "VeemFlow-MCP/internal/errors"
	"VeemFlow-MCP/pkg/logger"
)

// MySQLStore 使用 MySQL 保存付款历史。查询路径刻意做成 fail-open：
// 任何内部失败只记日志并返回"无偏好"，绝不向上冒泡——历史偏好
// 只是锦上添花，不能阻断草稿准备。
type MySQLStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMySQLStore 连接 MySQL 并确保历史表存在。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db, log: logger.Named("history")}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema 按文件名顺序执行内嵌的迁移脚本。脚本全部幂等，
// 每次启动重放一遍即可。
func (s *MySQLStore) initSchema(ctx context.Context) error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移脚本失败")
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrations.Files.ReadFile(name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移脚本失败")
		}
		for _, stmt := range strings.Split(string(script), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移脚本 "+name+" 失败")
			}
		}
	}
	return nil
}

// LastFundingMethodIDForPayee 实现 Store。失败吞掉并返回空串。
func (s *MySQLStore) LastFundingMethodIDForPayee(ctx context.Context, payeeEmail string) (string, error) {
	const query = `SELECT payer_funding_method_id
        FROM payments
        WHERE payee_email = ?
        ORDER BY created_at DESC
        LIMIT 1`

	var fundingMethodID string
	err := s.db.QueryRowContext(ctx, query, normalizeEmail(payeeEmail)).Scan(&fundingMethodID)
	switch {
	case err == nil:
		return fundingMethodID, nil
	case stdErrors.Is(err, sql.ErrNoRows):
		return "", nil
	default:
		s.log.Warn("MySQL 历史查询失败", slog.Any("error", err))
		return "", nil
	}
}

// RecordPayment 实现 Store。
func (s *MySQLStore) RecordPayment(ctx context.Context, payeeEmail, fundingMethodID string) error {
	const stmt = `INSERT INTO payments (payee_email, payer_funding_method_id, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, normalizeEmail(payeeEmail), fundingMethodID, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入付款历史失败")
	}
	return nil
}

// Close 实现 Store。
func (s *MySQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
