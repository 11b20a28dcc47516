package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal-trader/internal/config"
	"signal-trader/internal/dispatch"
	"signal-trader/internal/exchange"
	"signal-trader/internal/execution"
	"signal-trader/internal/ingest"
	"signal-trader/internal/journal"
	"signal-trader/internal/store"
	"signal-trader/internal/stream"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装信号流水线并阻塞运行直至上下文取消：
// Telegram 接入 → 信号解析与三腿挂单 → 每合约一条行情流驱动止损上移。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("信号交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Int64("channel_id", a.cfg.Telegram.ChannelID),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	journalSvc, err := journal.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化流水服务失败: %w", err)
	}

	executor := execution.NewExecutor(client, a.cfg.Trade, a.logger)
	streams := stream.NewManager(a.cfg.Stream, a.logger)
	coordinator := dispatch.NewCoordinator(executor, streams, client, journalSvc, a.cfg.Trade.SettleDelay, a.logger)

	source, err := ingest.NewSource(a.cfg.Telegram, a.logger)
	if err != nil {
		return fmt.Errorf("初始化 Telegram 接入失败: %w", err)
	}

	if a.cfg.Journal.HTTPEnabled {
		if err := startJournalServer(ctx, journalSvc, a.cfg.Journal.HTTPPort, a.logger); err != nil {
			return fmt.Errorf("启动流水查询服务失败: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return source.Run(groupCtx, coordinator.HandleMessage)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
