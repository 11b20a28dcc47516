package trail

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"signal-trader/internal/exchange"
	"signal-trader/internal/execution"
	"signal-trader/internal/signal"
)

type mockGateway struct {
	mu        sync.Mutex
	modifyErr error
	stops     []float64
	sides     []exchange.OrderSide
	cancels   chan string
}

func newMockGateway() *mockGateway {
	return &mockGateway{cancels: make(chan string, 4)}
}

func (m *mockGateway) ModifyOrder(_ context.Context, _ string, _ string, price float64, side exchange.OrderSide, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modifyErr != nil {
		return m.modifyErr
	}
	m.stops = append(m.stops, price)
	m.sides = append(m.sides, side)
	return nil
}

func (m *mockGateway) CancelAllOrders(_ context.Context, symbol string) error {
	m.cancels <- symbol
	return nil
}

func (m *mockGateway) stopPrices() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.stops))
	copy(out, m.stops)
	return out
}

func newLongTracker(gw Gateway, settleDelay time.Duration) *Tracker {
	stop := 95.0
	intent := &signal.TradeIntent{
		Pair:      "BTCUSDT",
		Direction: signal.DirectionLong,
		Leverage:  10,
		Entry:     100,
		StopLoss:  &stop,
		Targets:   []float64{110, 120, 130},
	}
	bracket := &execution.BracketResult{
		Symbol:        "BTCUSDT",
		UnifiedSymbol: "BTC/USDT:USDT",
		Direction:     signal.DirectionLong,
		EntrySide:     exchange.OrderSideBuy,
		Quantity:      1.5,
		Entry:         100,
		Targets:       []float64{110, 120, 130},
		Stop:          95,
		StopOrderID:   "stop-1",
	}
	return NewTracker(intent, bracket, gw, nil, settleDelay, nil)
}

func TestOnPriceTick_FirstTargetMovesStopToEntry(t *testing.T) {
	gw := newMockGateway()
	tracker := newLongTracker(gw, time.Minute)

	tracker.OnPriceTick(context.Background(), 110)

	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100}) {
		t.Errorf("expected one amendment to entry price, got %v", got)
	}
	if tracker.LastTargetReached() != 0 {
		t.Errorf("expected lastTargetReached=0, got %d", tracker.LastTargetReached())
	}
}

func TestOnPriceTick_SecondTargetMovesStopToFirstTarget(t *testing.T) {
	gw := newMockGateway()
	tracker := newLongTracker(gw, time.Minute)

	tracker.OnPriceTick(context.Background(), 110)
	tracker.OnPriceTick(context.Background(), 120)

	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100, 110}) {
		t.Errorf("unexpected amendments: %v", got)
	}
	if tracker.LastTargetReached() != 1 {
		t.Errorf("expected lastTargetReached=1, got %d", tracker.LastTargetReached())
	}
}

func TestOnPriceTick_FinalTargetSchedulesCancelAll(t *testing.T) {
	gw := newMockGateway()
	tracker := newLongTracker(gw, 10*time.Millisecond)

	tracker.OnPriceTick(context.Background(), 110)
	tracker.OnPriceTick(context.Background(), 120)
	tracker.OnPriceTick(context.Background(), 130)

	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100, 110, 120}) {
		t.Errorf("unexpected amendments: %v", got)
	}
	if tracker.LastTargetReached() != 2 {
		t.Errorf("expected lastTargetReached=2, got %d", tracker.LastTargetReached())
	}

	select {
	case symbol := <-gw.cancels:
		if symbol != "BTC/USDT:USDT" {
			t.Errorf("cancel issued for wrong symbol: %s", symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel-all was not scheduled after the settle delay")
	}
}

func TestOnPriceTick_ShortDirection(t *testing.T) {
	gw := newMockGateway()
	stop := 52.0
	intent := &signal.TradeIntent{
		Pair:      "XRPUSDT",
		Direction: signal.DirectionShort,
		Leverage:  10,
		Entry:     50,
		StopLoss:  &stop,
		Targets:   []float64{45, 40, 35},
	}
	bracket := &execution.BracketResult{
		Symbol:        "XRPUSDT",
		UnifiedSymbol: "XRP/USDT:USDT",
		Direction:     signal.DirectionShort,
		EntrySide:     exchange.OrderSideSell,
		Quantity:      100,
		Entry:         50,
		Targets:       []float64{45, 40, 35},
		Stop:          52,
		StopOrderID:   "stop-2",
	}
	tracker := NewTracker(intent, bracket, gw, nil, time.Minute, nil)

	tracker.OnPriceTick(context.Background(), 44)

	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{50}) {
		t.Errorf("expected amendment to entry 50, got %v", got)
	}
	if tracker.LastTargetReached() != 0 {
		t.Errorf("expected lastTargetReached=0, got %d", tracker.LastTargetReached())
	}
	if gw.sides[0] != exchange.OrderSideBuy {
		t.Errorf("short stop leg should keep buy side, got %s", gw.sides[0])
	}
}

func TestOnPriceTick_AtMostOneTransitionPerTick(t *testing.T) {
	gw := newMockGateway()
	tracker := newLongTracker(gw, 10*time.Millisecond)

	// 一个 tick 同时越过全部目标：只对最低的新目标动作，但平仓照常调度。
	tracker.OnPriceTick(context.Background(), 135)

	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100}) {
		t.Errorf("expected single amendment for the lowest crossed target, got %v", got)
	}
	if tracker.LastTargetReached() != 0 {
		t.Errorf("expected lastTargetReached=0, got %d", tracker.LastTargetReached())
	}

	select {
	case <-gw.cancels:
	case <-time.After(time.Second):
		t.Fatal("final-target closure should fire from the same tick")
	}

	// 后续 tick 继续推进下一个目标。
	tracker.OnPriceTick(context.Background(), 135)
	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100, 110}) {
		t.Errorf("expected next tick to advance one more target, got %v", got)
	}
}

func TestOnPriceTick_MonotonicUnderOutOfOrderTicks(t *testing.T) {
	gw := newMockGateway()
	tracker := newLongTracker(gw, time.Minute)

	ticks := []float64{110, 105, 110, 99, 120, 110, 50, 120}
	last := tracker.LastTargetReached()
	for _, price := range ticks {
		tracker.OnPriceTick(context.Background(), price)
		if tracker.LastTargetReached() < last {
			t.Fatalf("lastTargetReached went backwards: %d -> %d", last, tracker.LastTargetReached())
		}
		last = tracker.LastTargetReached()
	}

	if last != 1 {
		t.Errorf("expected lastTargetReached=1 after tick sequence, got %d", last)
	}
	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{100, 110}) {
		t.Errorf("duplicate crossings must not re-amend: %v", got)
	}
}

func TestOnPriceTick_Deterministic(t *testing.T) {
	ticks := []float64{100, 111, 108, 121, 119, 131}

	run := func() []float64 {
		gw := newMockGateway()
		tracker := newLongTracker(gw, time.Minute)
		for _, price := range ticks {
			tracker.OnPriceTick(context.Background(), price)
		}
		return gw.stopPrices()
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("amendment sequence not deterministic: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(first, []float64{100, 110, 120}) {
		t.Errorf("unexpected amendment sequence: %v", first)
	}
}

func TestOnPriceTick_AmendmentFailureDoesNotRevertIndex(t *testing.T) {
	gw := newMockGateway()
	gw.modifyErr = errors.New("mocked amendment failure")
	tracker := newLongTracker(gw, time.Minute)

	tracker.OnPriceTick(context.Background(), 110)

	if tracker.LastTargetReached() != 0 {
		t.Errorf("index must advance even when the amendment fails, got %d", tracker.LastTargetReached())
	}
	if len(gw.stopPrices()) != 0 {
		t.Errorf("no amendment should be recorded on failure")
	}

	// 下一个目标穿越覆盖丢失的调整。
	gw.modifyErr = nil
	tracker.OnPriceTick(context.Background(), 120)
	if got := gw.stopPrices(); !reflect.DeepEqual(got, []float64{110}) {
		t.Errorf("next crossing should amend to previous target: %v", got)
	}
}
