// Package stream 维护交易所的标记价格行情流，每个被追踪的合约一条连接。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal-trader/internal/config"
)

// markPriceEvent 为行情流推送的原始事件，仅消费 markPriceUpdate 类型。
type markPriceEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// Manager 负责按合约建立标记价格流。
type Manager struct {
	baseURL string
	logger  *zap.Logger
}

// NewManager 创建行情流管理器。
func NewManager(cfg config.StreamConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Subscribe 为单个合约建立一条行情流。
//
// onTick 在流的读协程内按到达顺序逐条调用；流终止（远端关闭、读错误或
// 上下文取消）时恰好调用一次 onClose。断开后不自动重连，由上层决定该
// 合约的追踪随之结束。
func (m *Manager) Subscribe(ctx context.Context, symbol string, onTick func(price float64), onClose func()) error {
	url := fmt.Sprintf("%s/%s@markPrice", m.baseURL, strings.ToLower(symbol))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("连接行情流失败 %s: %w", symbol, err)
	}

	m.logger.Info("标记价格流已连接", zap.String("symbol", symbol))

	done := make(chan struct{})

	// 上下文取消时关闭连接，解除读协程的阻塞。
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go m.readLoop(conn, symbol, onTick, onClose, done)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, symbol string, onTick func(float64), onClose func(), done chan struct{}) {
	defer func() {
		_ = conn.Close()
		close(done)
		onClose()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("标记价格流中断",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			return
		}

		var event markPriceEvent
		if err := json.Unmarshal(data, &event); err != nil {
			m.logger.Debug("忽略无法解析的行情消息",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		if event.Event != "markPriceUpdate" {
			continue
		}

		price, err := strconv.ParseFloat(event.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		onTick(price)
	}
}
