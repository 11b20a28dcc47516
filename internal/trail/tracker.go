// Package trail 实现逐目标推进的动态止损状态机。
//
// 每个被追踪的合约对应一个 Tracker，由该合约行情流的读协程独占驱动，
// 因此状态转移天然按 tick 串行，无需额外加锁。
package trail

import (
	"context"
	"time"

	"go.uber.org/zap"

	"signal-trader/internal/exchange"
	"signal-trader/internal/execution"
	"signal-trader/internal/signal"
)

// Gateway 为状态机依赖的交易所操作，由 exchange.Client 实现。
type Gateway interface {
	ModifyOrder(ctx context.Context, symbol, orderID string, price float64, side exchange.OrderSide, quantity float64) error
	CancelAllOrders(ctx context.Context, symbol string) error
}

var _ Gateway = (*exchange.Client)(nil)

// Recorder 把状态机产生的事件写入流水，允许为 nil。
type Recorder interface {
	RecordAmendment(ctx context.Context, symbol string, targetIndex int, stopPrice float64)
	RecordClosure(ctx context.Context, symbol string, reason string)
	RecordError(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Tracker 持有单个合约的追踪状态。lastTargetReached 为已触达目标的下标，
// 初始为 -1，单调不减，生命周期内只由 OnPriceTick 推进。
type Tracker struct {
	intent  *signal.TradeIntent
	bracket *execution.BracketResult

	gateway     Gateway
	recorder    Recorder
	logger      *zap.Logger
	settleDelay time.Duration

	lastTargetReached int
	closeScheduled    bool
}

// NewTracker 基于挂单结果创建追踪器。
func NewTracker(intent *signal.TradeIntent, bracket *execution.BracketResult, gateway Gateway, recorder Recorder, settleDelay time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		intent:            intent,
		bracket:           bracket,
		gateway:           gateway,
		recorder:          recorder,
		logger:            logger,
		settleDelay:       settleDelay,
		lastTargetReached: -1,
	}
}

// LastTargetReached 返回当前已触达目标的下标，仅用于观测。
func (t *Tracker) LastTargetReached() int {
	return t.lastTargetReached
}

// OnPriceTick 处理一次标记价格更新。
//
// 每个 tick 至多推进一个目标：从 lastTargetReached 之后的第一个被穿越的
// 目标触发转移，新止损价为入场价（首个目标）或前一目标价。穿越最后一个
// 目标且此前未记录触达时，额外调度延迟平仓；两条路径可由同一 tick 触发。
func (t *Tracker) OnPriceTick(ctx context.Context, price float64) {
	targets := t.bracket.Targets
	prev := t.lastTargetReached

	for i := prev + 1; i < len(targets); i++ {
		if !t.crossed(price, targets[i]) {
			continue
		}

		newStop := t.bracket.Entry
		if i > 0 {
			newStop = targets[i-1]
		}
		t.lastTargetReached = i
		t.amendStop(ctx, i, newStop)
		break
	}

	if prev < len(targets)-1 && t.crossed(price, t.bracket.FinalTarget()) && !t.closeScheduled {
		t.closeScheduled = true
		t.scheduleClose()
	}
}

// crossed 判断价格是否穿越目标价，方向敏感。
func (t *Tracker) crossed(price, target float64) bool {
	if t.intent.Direction == signal.DirectionShort {
		return price <= target
	}
	return price >= target
}

// amendStop 以新止损价改单。失败只记录：索引已前移，不重试也不回退，
// 该次调整让位于下一次目标穿越。
func (t *Tracker) amendStop(ctx context.Context, index int, stopPrice float64) {
	symbol := t.bracket.Symbol

	t.logger.Info("目标触达，上移止损",
		zap.String("symbol", symbol),
		zap.Int("target_index", index),
		zap.Float64("new_stop", stopPrice),
	)

	err := t.gateway.ModifyOrder(ctx, t.bracket.UnifiedSymbol, t.bracket.StopOrderID,
		stopPrice, t.bracket.StopSide(), t.bracket.Quantity)
	if err != nil {
		t.logger.Warn("止损改单失败，本次调整放弃",
			zap.String("symbol", symbol),
			zap.Int("target_index", index),
			zap.Float64("stop", stopPrice),
			zap.Error(err),
		)
		if t.recorder != nil {
			t.recorder.RecordError(ctx, "止损改单失败", err, map[string]interface{}{
				"symbol":       symbol,
				"target_index": index,
				"stop":         stopPrice,
			})
		}
		return
	}

	if t.recorder != nil {
		t.recorder.RecordAmendment(ctx, symbol, index, stopPrice)
	}
}

// scheduleClose 在沉降延迟后撤销全部挂单，给止盈腿留出成交时间。
// 撤单结果被显式观测：失败进入日志与流水，不再静默丢弃。
func (t *Tracker) scheduleClose() {
	symbol := t.bracket.Symbol

	t.logger.Info("价格触达最终目标，调度平仓",
		zap.String("symbol", symbol),
		zap.Duration("settle_delay", t.settleDelay),
	)

	time.AfterFunc(t.settleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := t.gateway.CancelAllOrders(ctx, t.bracket.UnifiedSymbol); err != nil {
			t.logger.Error("平仓撤单失败",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			if t.recorder != nil {
				t.recorder.RecordError(ctx, "平仓撤单失败", err, map[string]interface{}{"symbol": symbol})
			}
			return
		}

		t.logger.Info("已撤销全部挂单", zap.String("symbol", symbol))
		if t.recorder != nil {
			t.recorder.RecordClosure(ctx, symbol, "final_target")
		}
	})
}
