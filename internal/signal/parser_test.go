package signal

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sampleMessage = `📩Pair: btcusdt
📉Direction: LONG
💯Leverage: Isolated 20x
📊Entry: 64000
✅Target1: 65000
✅Target2: 66000
✅Target3: 67000
⛔Stop Loss: 62500`

func TestParse_FullSignal(t *testing.T) {
	intent, err := Parse(sampleMessage)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if intent.Pair != "BTCUSDT" {
		t.Errorf("expected pair BTCUSDT, got %s", intent.Pair)
	}
	if intent.Direction != DirectionLong {
		t.Errorf("expected direction LONG, got %s", intent.Direction)
	}
	if intent.MarginMode != "Isolated" {
		t.Errorf("expected margin mode Isolated, got %s", intent.MarginMode)
	}
	if intent.Leverage != 20 {
		t.Errorf("expected leverage 20, got %d", intent.Leverage)
	}
	if intent.Entry != 64000 {
		t.Errorf("expected entry 64000, got %f", intent.Entry)
	}
	if want := []float64{65000, 66000, 67000}; !reflect.DeepEqual(intent.Targets, want) {
		t.Errorf("unexpected targets: got %v want %v", intent.Targets, want)
	}
	if intent.StopLoss == nil || *intent.StopLoss != 62500 {
		t.Errorf("expected stop loss 62500, got %v", intent.StopLoss)
	}
}

func TestParse_LineOrderIndependent(t *testing.T) {
	lines := strings.Split(sampleMessage, "\n")
	// 交换首尾两行后结果应一致（目标价行相对顺序不变）。
	shuffled := make([]string, len(lines))
	copy(shuffled, lines)
	shuffled[0], shuffled[len(shuffled)-1] = shuffled[len(shuffled)-1], shuffled[0]

	original, err := Parse(sampleMessage)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	reordered, err := Parse(strings.Join(shuffled, "\n"))
	if err != nil {
		t.Fatalf("Parse reordered returned error: %v", err)
	}

	if !reflect.DeepEqual(original.Targets, reordered.Targets) {
		t.Errorf("targets differ after reordering: %v vs %v", original.Targets, reordered.Targets)
	}
	if original.Pair != reordered.Pair || original.Entry != reordered.Entry {
		t.Errorf("scalar fields differ after reordering")
	}
	if *original.StopLoss != *reordered.StopLoss {
		t.Errorf("stop loss differs after reordering")
	}
}

func TestParse_Idempotent(t *testing.T) {
	first, err := Parse(sampleMessage)
	if err != nil {
		t.Fatalf("first Parse returned error: %v", err)
	}
	second, err := Parse(sampleMessage)
	if err != nil {
		t.Fatalf("second Parse returned error: %v", err)
	}
	if !reflect.DeepEqual(first.Targets, second.Targets) || first.Pair != second.Pair ||
		first.Direction != second.Direction || first.Entry != second.Entry ||
		first.Leverage != second.Leverage || *first.StopLoss != *second.StopLoss {
		t.Errorf("repeated Parse produced different results: %+v vs %+v", first, second)
	}
}

func TestParse_MissingRequiredField(t *testing.T) {
	cases := []struct {
		name   string
		remove string
	}{
		{"missing pair", "Pair:"},
		{"missing direction", "Direction:"},
		{"missing leverage", "Leverage:"},
		{"missing entry", "Entry:"},
		{"missing targets", "Target"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var kept []string
			for _, line := range strings.Split(sampleMessage, "\n") {
				if strings.Contains(line, tc.remove) {
					continue
				}
				kept = append(kept, line)
			}

			if _, err := Parse(strings.Join(kept, "\n")); !errors.Is(err, ErrNoSignal) {
				t.Fatalf("expected ErrNoSignal, got %v", err)
			}
		})
	}
}

func TestParse_StopLossOptional(t *testing.T) {
	var kept []string
	for _, line := range strings.Split(sampleMessage, "\n") {
		if strings.Contains(line, "Stop Loss") {
			continue
		}
		kept = append(kept, line)
	}

	intent, err := Parse(strings.Join(kept, "\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if intent.StopLoss != nil {
		t.Errorf("expected nil stop loss, got %v", *intent.StopLoss)
	}
}

func TestParse_BadNumberTreatedAsAbsent(t *testing.T) {
	// 无法解析为有限数的目标价行按缺失处理，但不中断其余行的解析。
	text := strings.Replace(sampleMessage, "✅Target2: 66000", "✅Target2: 66.0.00", 1)
	intent, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if want := []float64{65000, 67000}; !reflect.DeepEqual(intent.Targets, want) {
		t.Errorf("unexpected targets: got %v want %v", intent.Targets, want)
	}

	// 入场价无法解析时整条信号视为不完整。
	text = strings.Replace(sampleMessage, "📊Entry: 64000", "📊Entry: 6.4.000", 1)
	if _, err := Parse(text); !errors.Is(err, ErrNoSignal) {
		t.Fatalf("expected ErrNoSignal, got %v", err)
	}
}

func TestParse_PlainTextIsNotASignal(t *testing.T) {
	if _, err := Parse("今晚八点直播复盘，记得预约"); !errors.Is(err, ErrNoSignal) {
		t.Fatalf("expected ErrNoSignal, got %v", err)
	}
}
