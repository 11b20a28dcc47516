// Package dispatch 把信号接入、解析、挂单与追踪串联为一条流水线。
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-trader/internal/execution"
	"signal-trader/internal/signal"
	"signal-trader/internal/trail"
)

type bracketExecutor interface {
	Execute(ctx context.Context, intent *signal.TradeIntent) (*execution.BracketResult, error)
}

type streamOpener interface {
	Subscribe(ctx context.Context, symbol string, onTick func(price float64), onClose func()) error
}

// recorder 聚合协调器及追踪器需要的流水写入能力，由 journal.Service 实现。
type recorder interface {
	trail.Recorder
	RecordSignal(ctx context.Context, text string)
	RecordParseFailure(ctx context.Context, text, reason string)
	RecordBracket(ctx context.Context, result *execution.BracketResult)
}

// Coordinator 持有全部可变注册状态：每个合约至多一个追踪器。
// 交易所客户端与注册表都由它显式持有并向下传递，不依赖包级单例。
type Coordinator struct {
	executor    bracketExecutor
	streams     streamOpener
	gateway     trail.Gateway
	recorder    recorder
	logger      *zap.Logger
	settleDelay time.Duration

	mu     sync.Mutex
	active map[string]*trail.Tracker
}

// NewCoordinator 创建协调器。
func NewCoordinator(executor bracketExecutor, streams streamOpener, gateway trail.Gateway, recorder recorder, settleDelay time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		executor:    executor,
		streams:     streams,
		gateway:     gateway,
		recorder:    recorder,
		logger:      logger,
		settleDelay: settleDelay,
		active:      make(map[string]*trail.Tracker),
	}
}

// HandleMessage 处理一条频道消息：解析 → 三腿挂单 → 创建追踪器并打开
// 行情流。非信号消息与重复合约的信号都只记录后丢弃。追踪器在该合约的
// 行情流关闭时（正常平仓或异常断开）随之注销。
func (c *Coordinator) HandleMessage(ctx context.Context, text string) {
	if c.recorder != nil {
		c.recorder.RecordSignal(ctx, text)
	}

	intent, err := signal.Parse(text)
	if err != nil {
		c.logger.Debug("消息中未提取到交易信号", zap.Error(err))
		if c.recorder != nil {
			c.recorder.RecordParseFailure(ctx, text, err.Error())
		}
		return
	}

	symbol := intent.Pair

	if !c.reserve(symbol) {
		c.logger.Info("合约已在追踪，忽略重复信号", zap.String("symbol", symbol))
		return
	}

	bracket, err := c.executor.Execute(ctx, intent)
	if err != nil {
		c.release(symbol)
		c.logger.Error("挂单失败，信号丢弃",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		if c.recorder != nil {
			c.recorder.RecordError(ctx, "挂单失败", err, map[string]interface{}{"symbol": symbol})
		}
		return
	}

	if c.recorder != nil {
		c.recorder.RecordBracket(ctx, bracket)
	}

	var trailRecorder trail.Recorder
	if c.recorder != nil {
		trailRecorder = c.recorder
	}
	tracker := trail.NewTracker(intent, bracket, c.gateway, trailRecorder, c.settleDelay, c.logger)
	c.attach(symbol, tracker)

	err = c.streams.Subscribe(ctx, symbol,
		func(price float64) {
			tracker.OnPriceTick(ctx, price)
		},
		func() {
			c.release(symbol)
			c.logger.Info("行情流关闭，停止追踪", zap.String("symbol", symbol))
			if c.recorder != nil {
				c.recorder.RecordClosure(context.Background(), symbol, "stream_closed")
			}
		},
	)
	if err != nil {
		// 三腿委托已挂出但无人追踪，只能记录并释放注册位。
		c.release(symbol)
		c.logger.Error("行情流订阅失败，止损不再自动上移",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		if c.recorder != nil {
			c.recorder.RecordError(ctx, "行情流订阅失败", err, map[string]interface{}{"symbol": symbol})
		}
		return
	}

	c.logger.Info("开始追踪合约",
		zap.String("symbol", symbol),
		zap.String("direction", string(intent.Direction)),
		zap.Int("targets", len(bracket.Targets)),
	)
}

// Tracking 返回该合约当前是否在追踪，仅用于观测与测试。
func (c *Coordinator) Tracking(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[symbol]
	return ok
}

// ActiveCount 返回在追踪的合约数量。
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// reserve 预占注册位，防止挂单期间同合约的并发信号挤入。
func (c *Coordinator) reserve(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[symbol]; ok {
		return false
	}
	c.active[symbol] = nil
	return true
}

func (c *Coordinator) attach(symbol string, tracker *trail.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[symbol] = tracker
}

func (c *Coordinator) release(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, symbol)
}
