package signal

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	json "github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
)

// rawSignal mirrors the oracle answer. Pointer fields tell "missing" from "zero".
type rawSignal struct {
	Action              *string  `json:"action"`
	Strength            *string  `json:"strength"`
	Confidence          *float64 `json:"confidence"`
	RiskLevel           *string  `json:"risk_level"`
	Reasoning           *string  `json:"reasoning"`
	EntryPrice          *float64 `json:"entry_price"`
	StopLoss            *float64 `json:"stop_loss"`
	TakeProfit          *float64 `json:"take_profit"`
	PositionSizePercent *float64 `json:"position_size_percent"`
}

// Parsed is the validated content of an oracle answer.
type Parsed struct {
	Action              domain.Action
	Strength            domain.Strength
	Confidence          float64
	RiskLevel           domain.RiskLevel
	Reasoning           string
	EntryPrice          float64
	StopLoss            float64
	TakeProfit          float64
	PositionSizePercent float64
}

// ParseSignal extracts and validates the JSON object in content. Errors wrap
// domain.ErrSignalParse.
func ParseSignal(content string) (Parsed, error) {
	obj := extractObject(content)
	if obj == "" {
		return Parsed{}, fmt.Errorf("%w: no JSON object in response", domain.ErrSignalParse)
	}

	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: repair: %v", domain.ErrSignalParse, err)
	}

	var raw rawSignal
	if err := json.ConfigStd.UnmarshalFromString(repaired, &raw); err != nil {
		return Parsed{}, fmt.Errorf("%w: decode: %v", domain.ErrSignalParse, err)
	}

	var missing []string
	if raw.Action == nil {
		missing = append(missing, "action")
	}
	if raw.Strength == nil {
		missing = append(missing, "strength")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if raw.RiskLevel == nil {
		missing = append(missing, "risk_level")
	}
	if raw.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if len(missing) > 0 {
		return Parsed{}, fmt.Errorf("%w: missing %s", domain.ErrSignalParse, strings.Join(missing, ", "))
	}

	p := Parsed{
		Action:     domain.Action(strings.ToLower(strings.TrimSpace(*raw.Action))),
		Strength:   domain.Strength(strings.ToLower(strings.TrimSpace(*raw.Strength))),
		Confidence: *raw.Confidence,
		RiskLevel:  domain.RiskLevel(strings.ToLower(strings.TrimSpace(*raw.RiskLevel))),
		Reasoning:  strings.TrimSpace(*raw.Reasoning),
	}
	switch {
	case !p.Action.Valid():
		return Parsed{}, fmt.Errorf("%w: unknown action %q", domain.ErrSignalParse, *raw.Action)
	case !p.Strength.Valid():
		return Parsed{}, fmt.Errorf("%w: unknown strength %q", domain.ErrSignalParse, *raw.Strength)
	case !p.RiskLevel.Valid():
		return Parsed{}, fmt.Errorf("%w: unknown risk_level %q", domain.ErrSignalParse, *raw.RiskLevel)
	case p.Confidence < 0 || p.Confidence > 1 || p.Confidence != p.Confidence:
		return Parsed{}, fmt.Errorf("%w: confidence %v out of [0,1]", domain.ErrSignalParse, p.Confidence)
	case p.Reasoning == "":
		return Parsed{}, fmt.Errorf("%w: empty reasoning", domain.ErrSignalParse)
	}

	p.EntryPrice = positive(raw.EntryPrice)
	p.StopLoss = positive(raw.StopLoss)
	p.TakeProfit = positive(raw.TakeProfit)
	p.PositionSizePercent = positive(raw.PositionSizePercent)
	return p, nil
}

// extractObject returns the outermost {...} span of s, tolerating code fences
// and prose around it. An unterminated object is returned as is for repair.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func positive(v *float64) float64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return *v
}
