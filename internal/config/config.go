package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 描述 VeemFlow 在启动阶段需要加载的核心配置。
// 文件本身不放秘密；令牌类字段统一走环境变量覆盖。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Veem     VeemConfig     `yaml:"veem"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	History  HistoryConfig  `yaml:"history"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig 控制工具端点的监听地址。
type ServerConfig struct {
	Address string `yaml:"address"`
}

// VeemConfig 描述访问 Veem API 所需的信息。
type VeemConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccountID   string `yaml:"account_id"`
	AccessToken string `yaml:"access_token"`
}

// OpenAIConfig 用于配置票据抽取的大模型调用。
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// HistoryConfig 选择付款历史存储的驱动。
type HistoryConfig struct {
	Driver string `yaml:"driver"` // none | memory | mysql
	DSN    string `yaml:"dsn"`
}

// ScheduleConfig 描述排期存储、派发队列与派发循环。
type ScheduleConfig struct {
	Store    ScheduleStoreConfig `yaml:"store"`
	Queue    ScheduleQueueConfig `yaml:"queue"`
	Dispatch DispatchConfig      `yaml:"dispatch"`
}

// ScheduleStoreConfig 选择排期存储的驱动。
type ScheduleStoreConfig struct {
	Driver   string `yaml:"driver"` // memory | redis
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ScheduleQueueConfig 选择派发队列的驱动。
type ScheduleQueueConfig struct {
	Driver string `yaml:"driver"` // memory | rabbitmq
	URL    string `yaml:"url"`
	Queue  string `yaml:"queue"`
}

// DispatchConfig 控制到期扫描与执行。
type DispatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Workers  int      `yaml:"workers"`
}

// Duration 让 YAML 里可以写 "30s"、"5m" 这类时长字面量。
type Duration time.Duration

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("解析时长 %q 失败: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoggingConfig 控制日志与审计输出。
type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Format  string      `yaml:"format"`
	Outputs []string    `yaml:"outputs"`
	Audit   AuditConfig `yaml:"audit"`
}

// AuditConfig 控制付款审计日志。
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load 解析指定路径的 YAML 配置文件。路径为空时返回纯默认配置，
// 服务可以在零配置下启动（工具列表可用，凭证类工具调用时报错）。
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnvOverrides 用环境变量覆盖秘密与部署相关字段。
func (c *Config) applyEnvOverrides() {
	overrideString(&c.Server.Address, "VEEMFLOW_ADDRESS")
	overrideString(&c.Veem.BaseURL, "VEEM_API_BASE_URL")
	overrideString(&c.Veem.AccountID, "VEEM_ACCOUNT_ID")
	overrideString(&c.Veem.AccessToken, "VEEM_ACCESS_TOKEN")
	overrideString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&c.OpenAI.Model, "OPENAI_INVOICE_MODEL")
	overrideString(&c.History.DSN, "VEEMFLOW_MYSQL_DSN")
	overrideString(&c.Schedule.Store.Address, "VEEMFLOW_REDIS_ADDRESS")
	overrideString(&c.Schedule.Queue.URL, "VEEMFLOW_RABBITMQ_URL")
}

func overrideString(target *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*target = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4.1-mini"
	}
	if c.History.Driver == "" {
		if c.History.DSN != "" {
			c.History.Driver = "mysql"
		} else {
			c.History.Driver = "none"
		}
	}
	if c.Schedule.Store.Driver == "" {
		c.Schedule.Store.Driver = "memory"
	}
	if c.Schedule.Queue.Driver == "" {
		c.Schedule.Queue.Driver = "memory"
	}
	if c.Schedule.Dispatch.Interval <= 0 {
		c.Schedule.Dispatch.Interval = Duration(30 * time.Second)
	}
	if c.Schedule.Dispatch.Workers <= 0 {
		c.Schedule.Dispatch.Workers = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = "logs/payment-audit.log"
	}
}
