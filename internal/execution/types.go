package execution

import (
	"errors"
	"time"

	"signal-trader/internal/exchange"
	"signal-trader/internal/signal"
)

// ErrStopLossMissing 表示信号未给出止损价。按既定策略此类信号在提交任何
// 委托之前整体拒绝，不会留下未受保护的挂单。
var ErrStopLossMissing = errors.New("execution: 信号缺少止损价")

// BracketResult 为三腿挂单（入场、止盈、止损）的提交结果，创建后不可变。
// 价格与数量均已按合约精度取整；StopOrderID 是后续改单的句柄。
type BracketResult struct {
	Symbol        string // 交易所原生符号
	UnifiedSymbol string // ccxt 统一符号
	Direction     signal.Direction
	EntrySide     exchange.OrderSide
	Quantity      float64
	Entry         float64
	Targets       []float64
	Stop          float64
	StopOrderID   string
	SubmittedAt   time.Time
}

// StopSide 返回止损腿的方向（与入场方向相反）。
func (r *BracketResult) StopSide() exchange.OrderSide {
	return r.EntrySide.Opposite()
}

// FinalTarget 返回最后一个目标价。
func (r *BracketResult) FinalTarget() float64 {
	return r.Targets[len(r.Targets)-1]
}
