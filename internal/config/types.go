package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trade    TradeConfig    `mapstructure:"trade"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// TelegramConfig 描述信号频道接入参数。
type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	ChannelID     int64         `mapstructure:"channel_id"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TradeConfig 控制下单行为。
type TradeConfig struct {
	// Notional 为每笔信号投入的名义本金（USDT），数量在此基础上按杠杆放大。
	Notional    float64       `mapstructure:"notional"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	MaxLeverage int           `mapstructure:"max_leverage"`
}

// StreamConfig 控制标记价格行情流。
type StreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// JournalConfig 控制事件流水的HTTP查询服务。
type JournalConfig struct {
	HTTPEnabled bool `mapstructure:"http_enabled"`
	HTTPPort    int  `mapstructure:"http_port"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Telegram.Token == "" {
		err = multierr.Append(err, errors.New("telegram.token 不能为空"))
	}
	if c.Telegram.ChannelID == 0 {
		err = multierr.Append(err, errors.New("telegram.channel_id 不能为空"))
	}
	if c.Telegram.PollTimeout <= 0 {
		err = multierr.Append(err, errors.New("telegram.poll_timeout 必须大于0"))
	}
	if c.Telegram.ProbeInterval <= 0 {
		err = multierr.Append(err, errors.New("telegram.probe_interval 必须大于0"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Trade.Notional <= 0 {
		err = multierr.Append(err, errors.New("trade.notional 必须大于0"))
	}
	if c.Trade.SettleDelay < 0 {
		err = multierr.Append(err, errors.New("trade.settle_delay 不能为负"))
	}
	if c.Trade.MaxLeverage <= 0 || c.Trade.MaxLeverage > 125 {
		err = multierr.Append(err, errors.New("trade.max_leverage 必须位于[1,125]"))
	}
	if c.Stream.BaseURL == "" {
		err = multierr.Append(err, errors.New("stream.base_url 不能为空"))
	}
	if c.Journal.HTTPEnabled && (c.Journal.HTTPPort <= 0 || c.Journal.HTTPPort > 65535) {
		err = multierr.Append(err, errors.New("journal.http_port 必须位于(0,65535]"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
