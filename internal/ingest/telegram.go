// Package ingest 从 Telegram 频道接收信号消息原文。
package ingest

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"signal-trader/internal/config"
)

// Handler 处理一条频道消息原文。
type Handler func(ctx context.Context, text string)

// Source 订阅单个配置频道的新消息，并周期性探测连接存活。
type Source struct {
	cfg    config.TelegramConfig
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewSource 建立 Telegram 连接。
func NewSource(cfg config.TelegramConfig, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("连接 Telegram 失败: %w", err)
	}

	logger.Info("Telegram 已连接",
		zap.String("account", bot.Self.UserName),
		zap.Int64("channel_id", cfg.ChannelID),
	)

	return &Source{
		cfg:    cfg,
		bot:    bot,
		logger: logger,
	}, nil
}

// Run 阻塞消费频道消息直至上下文取消。
//
// 只转发来自配置频道的文本消息；每个探测周期调用一次 getMe，失败时记录
// 并重建长轮询，探测失败不会使进程退出。
func (s *Source) Run(ctx context.Context, handle Handler) error {
	updates := s.openUpdates()

	probe := time.NewTicker(s.cfg.ProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			return nil

		case update, ok := <-updates:
			if !ok {
				s.logger.Warn("更新通道已关闭，重建长轮询")
				updates = s.openUpdates()
				continue
			}

			msg := update.ChannelPost
			if msg == nil {
				msg = update.Message
			}
			if msg == nil || msg.Chat == nil || msg.Chat.ID != s.cfg.ChannelID {
				continue
			}
			if msg.Text == "" {
				continue
			}

			s.logger.Info("收到频道消息", zap.Int("message_id", msg.MessageID))
			handle(ctx, msg.Text)

		case <-probe.C:
			if _, err := s.bot.GetMe(); err != nil {
				s.logger.Error("连接探测失败，尝试重连", zap.Error(err))
				s.bot.StopReceivingUpdates()
				updates = s.openUpdates()
			} else {
				s.logger.Debug("连接探测正常")
			}
		}
	}
}

func (s *Source) openUpdates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(s.cfg.PollTimeout / time.Second)
	u.AllowedUpdates = []string{"message", "channel_post"}
	return s.bot.GetUpdatesChan(u)
}
