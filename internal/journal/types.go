package journal

import (
	"time"

	"signal-trader/internal/execution"
)

// EventType 表示流水事件类型。
type EventType string

const (
	EventSignal       EventType = "signal"
	EventParseFailure EventType = "parse_failure"
	EventBracket      EventType = "bracket"
	EventAmendment    EventType = "amendment"
	EventClosure      EventType = "closure"
	EventError        EventType = "error"
)

// Event 封装通用流水事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SignalPayload 记录收到的频道消息原文。
type SignalPayload struct {
	Text string `json:"text"`
}

// ParseFailurePayload 记录被丢弃的非信号消息。
type ParseFailurePayload struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// BracketPayload 记录三腿挂单结果。
type BracketPayload struct {
	Result *execution.BracketResult `json:"result"`
}

// AmendmentPayload 记录一次止损上移。
type AmendmentPayload struct {
	Symbol      string  `json:"symbol"`
	TargetIndex int     `json:"target_index"`
	StopPrice   float64 `json:"stop_price"`
}

// ClosurePayload 记录合约追踪结束。
type ClosurePayload struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
