// Package signal 负责把频道消息原文解析为结构化的交易意图。
//
// 信号消息为多行文本，各字段独立成行，典型格式如下（行首可能带表情前缀）：
//
//	📩Pair: BTCUSDT
//	📉Direction: LONG
//	💯Leverage: Isolated 20x
//	📊Entry: 64000
//	✅Target1: 65000
//	✅Target2: 66000
//	⛔Stop Loss: 62500
package signal

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoSignal 表示消息中不包含可执行的交易信号。
var ErrNoSignal = errors.New("signal: 消息中未提取到交易信号")

// Direction 表示开仓方向。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TradeIntent 为解析后的交易意图。StopLoss 为 nil 表示信号未给出止损价。
type TradeIntent struct {
	Pair       string
	Direction  Direction
	MarginMode string
	Leverage   int
	Entry      float64
	StopLoss   *float64
	Targets    []float64
}

// 每行只允许命中一个字段，匹配顺序与声明顺序一致。
var (
	pairPattern      = regexp.MustCompile(`Pair:\s*(\w+)`)
	directionPattern = regexp.MustCompile(`Direction:\s*(\w+)`)
	leveragePattern  = regexp.MustCompile(`Leverage:\s*(\w+)\s*(\d+)[xX]`)
	entryPattern     = regexp.MustCompile(`Entry:\s*([\d.]+)`)
	targetPattern    = regexp.MustCompile(`Target\d*:\s*([\d.]+)`)
	stopLossPattern  = regexp.MustCompile(`Stop Loss:\s*([\d.]+)`)
)

// Parse 解析消息文本。字段行的先后顺序不影响结果；目标价按出现顺序累积。
// 必填字段（交易对、方向、保证金模式、杠杆、入场价、至少一个目标价）缺失时
// 返回包装了 ErrNoSignal 的错误，调用方据此丢弃该消息。
func Parse(text string) (*TradeIntent, error) {
	intent := &TradeIntent{}

	var haveEntry bool

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := pairPattern.FindStringSubmatch(line); m != nil {
			intent.Pair = strings.ToUpper(m[1])
			continue
		}
		if m := directionPattern.FindStringSubmatch(line); m != nil {
			switch d := Direction(strings.ToUpper(m[1])); d {
			case DirectionLong, DirectionShort:
				intent.Direction = d
			}
			continue
		}
		if m := leveragePattern.FindStringSubmatch(line); m != nil {
			if lev, err := strconv.Atoi(m[2]); err == nil && lev > 0 {
				intent.MarginMode = m[1]
				intent.Leverage = lev
			}
			continue
		}
		if m := entryPattern.FindStringSubmatch(line); m != nil {
			if v, ok := parsePrice(m[1]); ok {
				intent.Entry = v
				haveEntry = true
			}
			continue
		}
		if m := targetPattern.FindStringSubmatch(line); m != nil {
			if v, ok := parsePrice(m[1]); ok {
				intent.Targets = append(intent.Targets, v)
			}
			continue
		}
		if m := stopLossPattern.FindStringSubmatch(line); m != nil {
			if v, ok := parsePrice(m[1]); ok {
				stop := v
				intent.StopLoss = &stop
			}
			continue
		}
	}

	var missing []string
	if intent.Pair == "" {
		missing = append(missing, "pair")
	}
	if intent.Direction == "" {
		missing = append(missing, "direction")
	}
	if intent.MarginMode == "" || intent.Leverage <= 0 {
		missing = append(missing, "leverage")
	}
	if !haveEntry {
		missing = append(missing, "entry")
	}
	if len(intent.Targets) == 0 {
		missing = append(missing, "targets")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: 缺少字段 %s", ErrNoSignal, strings.Join(missing, ", "))
	}

	return intent, nil
}

// parsePrice 将数字捕获转为价格；解析失败或非正数按字段缺失处理。
func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
