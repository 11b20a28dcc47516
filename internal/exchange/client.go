package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"signal-trader/internal/config"
)

// Client 封装 Binance USDⓈ-M 合约的订单通道，带重试与错误归类。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool

	instrumentsMu sync.RWMutex
	instruments   map[string]Instrument
}

// NewClient 构造交易所客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:         cfg,
		logger:      logger,
		exchange:    ex,
		instruments: make(map[string]Instrument),
	}, nil
}

// Instrument 按交易所原生符号查找合约元数据；不存在时返回 ErrInstrumentNotFound。
func (c *Client) Instrument(ctx context.Context, symbol string) (Instrument, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return Instrument{}, err
	}

	c.instrumentsMu.RLock()
	inst, ok := c.instruments[strings.ToUpper(symbol)]
	c.instrumentsMu.RUnlock()

	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, symbol)
	}
	return inst, nil
}

// SetLeverage 设置合约杠杆。
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return c.callWithRetry(ctx, "set_leverage", func() error {
		_, err := c.exchange.SetLeverage(int64(leverage), ccxt.WithSetLeverageSymbol(symbol))
		return err
	})
}

// SubmitOrder 提交单笔委托并返回交易所回执。
// 重试耗尽或遇到终态错误时包装为 ErrOrderRejected。
func (c *Client) SubmitOrder(ctx context.Context, spec OrderSpec) (OrderAck, error) {
	var order ccxt.Order

	err := c.callWithRetry(ctx, fmt.Sprintf("submit_%s", strings.ToLower(string(spec.Type))), func() error {
		var callErr error
		switch spec.Type {
		case OrderTypeLimit:
			params := map[string]interface{}{"timeInForce": "GTC"}
			order, callErr = c.exchange.CreateLimitOrder(
				spec.Symbol, string(spec.Side), spec.Quantity, spec.Price,
				ccxt.WithCreateLimitOrderParams(params),
			)
		case OrderTypeTakeProfitMarket, OrderTypeStopMarket:
			params := map[string]interface{}{
				"stopPrice":   spec.StopPrice,
				"timeInForce": "GTC",
			}
			order, callErr = c.exchange.CreateOrder(
				spec.Symbol, string(spec.Type), string(spec.Side), spec.Quantity,
				ccxt.WithCreateOrderParams(params),
			)
		default:
			callErr = fmt.Errorf("不支持的订单类型 %s", spec.Type)
		}
		return callErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return OrderAck{}, err
		}
		return OrderAck{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	var ack OrderAck
	if order.Id != nil {
		ack.OrderID = *order.Id
	}
	if order.ClientOrderId != nil {
		ack.ClientOrderID = *order.ClientOrderId
	}
	return ack, nil
}

// ModifyOrder 以新的触发价替换既有止损单，保持方向与数量不变。
// 该调用不重试：状态机索引已前移，失败由调用方记录（见 trail 包）。
func (c *Client) ModifyOrder(ctx context.Context, symbol, orderID string, price float64, side OrderSide, quantity float64) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	_, err := c.exchange.EditOrder(
		orderID, symbol, string(OrderTypeStopMarket), string(side),
		ccxt.WithEditOrderAmount(quantity),
		ccxt.WithEditOrderPrice(price),
		ccxt.WithEditOrderParams(map[string]interface{}{"stopPrice": price}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAmendmentFailed, err)
	}
	return nil
}

// CancelAllOrders 撤销该合约的全部挂单。
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	return c.callWithRetry(ctx, "cancel_all_orders", func() error {
		_, err := c.exchange.CancelAllOrders(ccxt.WithCancelAllOrdersSymbol(symbol))
		return err
	})
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	var markets map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		result, err := c.exchange.LoadMarkets()
		if err != nil {
			return err
		}
		markets = result
		return nil
	})
	if loadErr != nil {
		return loadErr
	}

	index := make(map[string]Instrument, len(markets))
	for unified, market := range markets {
		if market.Id == nil {
			continue
		}
		inst := Instrument{
			Symbol:        strings.ToUpper(*market.Id),
			UnifiedSymbol: unified,
		}
		if market.Precision.Price != nil {
			inst.PricePrecision = *market.Precision.Price
		}
		if market.Precision.Amount != nil {
			inst.QuantityPrecision = *market.Precision.Amount
		}
		index[inst.Symbol] = inst
	}

	c.instrumentsMu.Lock()
	c.instruments = index
	c.instrumentsMu.Unlock()

	c.marketsLoaded = true
	c.logger.Info("已完成合约元数据加载", zap.Int("instruments", len(index)))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}

	if IsRetryable(err) {
		return err, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
