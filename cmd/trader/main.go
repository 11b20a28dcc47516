package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"signal-trader/internal/app"
	"signal-trader/internal/config"
	"signal-trader/internal/log"
	"signal-trader/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "信号交易配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	journalStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化流水数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := journalStore.Close(); closeErr != nil {
			logger.Warn("关闭流水数据库失败", zap.Error(closeErr))
		}
	}()

	trader := app.New(cfg, logger, journalStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trader.Run(ctx); err != nil {
		logger.Error("信号交易进程异常退出", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("信号交易进程已退出")
}
