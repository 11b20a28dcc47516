package journal

import (
	"context"
	"testing"
	"time"

	"signal-trader/internal/config"
	"signal-trader/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	// 内存库在多连接下各自独立，必须限制为单连接。
	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("init journal service: %v", err)
	}
	return svc
}

func TestRecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordSignal(ctx, "Pair: BTCUSDT")
	svc.RecordAmendment(ctx, "BTCUSDT", 0, 64000)
	svc.RecordAmendment(ctx, "BTCUSDT", 1, 65000)
	svc.RecordClosure(ctx, "BTCUSDT", "final_target")

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}

	// 结果按写入时间倒序。
	if all[0].Type != EventClosure {
		t.Errorf("expected newest event to be closure, got %s", all[0].Type)
	}
	if all[len(all)-1].Type != EventSignal {
		t.Errorf("expected oldest event to be signal, got %s", all[len(all)-1].Type)
	}

	amendments, err := svc.ListEvents(ctx, EventAmendment, 10)
	if err != nil {
		t.Fatalf("list amendments: %v", err)
	}
	if len(amendments) != 2 {
		t.Fatalf("expected 2 amendment events, got %d", len(amendments))
	}
	for _, ev := range amendments {
		if ev.Type != EventAmendment {
			t.Errorf("type filter leaked event %s", ev.Type)
		}
		if ev.Timestamp.IsZero() || ev.Timestamp.After(time.Now().Add(time.Minute)) {
			t.Errorf("implausible timestamp %v", ev.Timestamp)
		}
	}
}

func TestListEventsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordError(ctx, "挂单失败", nil, map[string]interface{}{"attempt": i})
	}

	events, err := svc.ListEvents(ctx, EventError, 3)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected limit of 3 events, got %d", len(events))
	}
}
