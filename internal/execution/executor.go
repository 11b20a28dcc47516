package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-trader/internal/config"
	"signal-trader/internal/exchange"
	"signal-trader/internal/signal"
)

type orderGateway interface {
	Instrument(ctx context.Context, symbol string) (exchange.Instrument, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SubmitOrder(ctx context.Context, spec exchange.OrderSpec) (exchange.OrderAck, error)
}

var _ orderGateway = (*exchange.Client)(nil)

// Executor 把交易意图转化为三腿挂单：限价入场、最后目标价的止盈市价单、
// 止损市价单。三腿提交不构成事务，后腿失败时不回滚已提交的前腿。
type Executor struct {
	gateway     orderGateway
	notional    float64
	maxLeverage int
	logger      *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(gateway orderGateway, cfg config.TradeConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gateway:     gateway,
		notional:    cfg.Notional,
		maxLeverage: cfg.MaxLeverage,
		logger:      logger,
	}
}

// Execute 提交三腿挂单并返回结果。合约不存在、止损缺失均在提交任何委托
// 之前失败；某一腿被拒绝时返回错误，已提交的腿保持有效。
func (e *Executor) Execute(ctx context.Context, intent *signal.TradeIntent) (*BracketResult, error) {
	if intent.StopLoss == nil {
		return nil, fmt.Errorf("%w: %s", ErrStopLossMissing, intent.Pair)
	}

	inst, err := e.gateway.Instrument(ctx, intent.Pair)
	if err != nil {
		return nil, err
	}

	leverage := intent.Leverage
	if e.maxLeverage > 0 && leverage > e.maxLeverage {
		e.logger.Warn("信号杠杆超出上限，按上限执行",
			zap.String("symbol", inst.Symbol),
			zap.Int("signal_leverage", leverage),
			zap.Int("max_leverage", e.maxLeverage),
		)
		leverage = e.maxLeverage
	}

	// 杠杆设置失败不阻断挂单，仅记录。
	if err := e.gateway.SetLeverage(ctx, inst.UnifiedSymbol, leverage); err != nil {
		e.logger.Warn("设置杠杆失败，继续挂单",
			zap.String("symbol", inst.Symbol),
			zap.Int("leverage", leverage),
			zap.Error(err),
		)
	}

	entry := roundToStep(intent.Entry, inst.PricePrecision)
	stop := roundToStep(*intent.StopLoss, inst.PricePrecision)
	targets := make([]float64, len(intent.Targets))
	for i, t := range intent.Targets {
		targets[i] = roundToStep(t, inst.PricePrecision)
	}

	quantity := computeQuantity(e.notional, entry, leverage, inst.QuantityPrecision)
	if quantity <= 0 {
		return nil, fmt.Errorf("execution: 计算下单数量无效 symbol=%s entry=%v", inst.Symbol, entry)
	}

	entrySide := exchange.OrderSideBuy
	if intent.Direction == signal.DirectionShort {
		entrySide = exchange.OrderSideSell
	}
	exitSide := entrySide.Opposite()

	e.logger.Info("提交三腿挂单",
		zap.String("symbol", inst.Symbol),
		zap.String("direction", string(intent.Direction)),
		zap.Float64("entry", entry),
		zap.Float64("quantity", quantity),
		zap.Float64("take_profit", targets[len(targets)-1]),
		zap.Float64("stop", stop),
	)

	if _, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:   inst.UnifiedSymbol,
		Type:     exchange.OrderTypeLimit,
		Side:     entrySide,
		Quantity: quantity,
		Price:    entry,
	}); err != nil {
		return nil, fmt.Errorf("入场腿提交失败: %w", err)
	}

	if _, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:    inst.UnifiedSymbol,
		Type:      exchange.OrderTypeTakeProfitMarket,
		Side:      exitSide,
		Quantity:  quantity,
		StopPrice: targets[len(targets)-1],
	}); err != nil {
		return nil, fmt.Errorf("止盈腿提交失败: %w", err)
	}

	stopAck, err := e.gateway.SubmitOrder(ctx, exchange.OrderSpec{
		Symbol:    inst.UnifiedSymbol,
		Type:      exchange.OrderTypeStopMarket,
		Side:      exitSide,
		Quantity:  quantity,
		StopPrice: stop,
	})
	if err != nil {
		return nil, fmt.Errorf("止损腿提交失败: %w", err)
	}

	return &BracketResult{
		Symbol:        inst.Symbol,
		UnifiedSymbol: inst.UnifiedSymbol,
		Direction:     intent.Direction,
		EntrySide:     entrySide,
		Quantity:      quantity,
		Entry:         entry,
		Targets:       targets,
		Stop:          stop,
		StopOrderID:   stopAck.OrderID,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// computeQuantity 按固定名义本金计算数量并向下取整到数量精度：
// quantity = notional / entry × leverage。
func computeQuantity(notional, entry float64, leverage int, precision float64) float64 {
	if entry <= 0 || leverage <= 0 {
		return 0
	}
	step := precisionStep(precision)
	qty := decimal.NewFromFloat(notional).
		Div(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(int64(leverage)))
	floored := qty.Div(step).Floor().Mul(step)
	result, _ := floored.Float64()
	return result
}

// roundToStep 将价格四舍五入到价格精度。
func roundToStep(value, precision float64) float64 {
	step := precisionStep(precision)
	rounded := decimal.NewFromFloat(value).Div(step).Round(0).Mul(step)
	result, _ := rounded.Float64()
	return result
}

// precisionStep 把 ccxt 的精度取值归一为最小步长：
// (0,1) 区间按最小跳动解释，其余按小数位数解释。
func precisionStep(precision float64) decimal.Decimal {
	switch {
	case precision > 0 && precision < 1:
		return decimal.NewFromFloat(precision)
	case precision >= 1:
		return decimal.New(1, -int32(precision))
	default:
		return decimal.New(1, 0)
	}
}
