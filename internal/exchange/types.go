package exchange

// OrderSide 表示委托方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite 返回相反方向，用于生成平仓腿。
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType 表示委托类型，触发类委托沿用交易所原生类型名。
type OrderType string

const (
	OrderTypeLimit            OrderType = "limit"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
)

// Instrument 描述合约元数据。精度字段保留 ccxt 原始取值：
// 大于等于1按小数位数解释，小于1按最小跳动解释。
type Instrument struct {
	Symbol            string // 交易所原生符号，如 BTCUSDT
	UnifiedSymbol     string // ccxt 统一符号，如 BTC/USDT:USDT
	PricePrecision    float64
	QuantityPrecision float64
}

// OrderSpec 描述一笔待提交的委托。
type OrderSpec struct {
	Symbol    string // ccxt 统一符号
	Type      OrderType
	Side      OrderSide
	Quantity  float64
	Price     float64 // 仅限价单使用
	StopPrice float64 // 仅触发类委托使用
}

// OrderAck 为交易所对委托提交的回执。
type OrderAck struct {
	OrderID       string
	ClientOrderID string
}
