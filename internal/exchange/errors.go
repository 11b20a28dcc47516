package exchange

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrInstrumentNotFound 表示交易所没有该合约的元数据。
	ErrInstrumentNotFound = errors.New("exchange: 未找到合约信息")

	// ErrOrderRejected 表示委托提交被交易所拒绝。
	ErrOrderRejected = errors.New("exchange: 委托被拒绝")

	// ErrAmendmentFailed 表示止损单改单失败。
	ErrAmendmentFailed = errors.New("exchange: 止损改单失败")

	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过交易。
	ErrMaintenance = errors.New("exchange: 交易所维护中")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
