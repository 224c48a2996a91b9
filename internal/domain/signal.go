package domain

import (
	"time"

	"github.com/google/uuid"
)

// Action is what a signal recommends doing with a token.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Strength grades how convincing the oracle found the setup.
type Strength string

const (
	StrengthVeryWeak   Strength = "very_weak"
	StrengthWeak       Strength = "weak"
	StrengthModerate   Strength = "moderate"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very_strong"
)

// Valid reports whether s is one of the known strengths.
func (s Strength) Valid() bool {
	switch s {
	case StrengthVeryWeak, StrengthWeak, StrengthModerate, StrengthStrong, StrengthVeryStrong:
		return true
	}
	return false
}

// RiskLevel is the oracle's own assessment of the trade's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Signal is a trading recommendation for one token. Immutable once created.
type Signal struct {
	ID         string
	Token      string
	Action     Action
	Strength   Strength
	Confidence float64 // [0,1]
	RiskLevel  RiskLevel
	Reasoning  string
	Timestamp  time.Time
	Indicators Indicators

	// Optional levels suggested by the oracle. Zero means "not provided".
	EntryPrice          float64
	StopLoss            float64
	TakeProfit          float64
	PositionSizePercent float64

	// Degraded is set when the oracle could not produce a valid answer and
	// the signal was synthesized as a zero-confidence hold.
	Degraded bool
}

// Actionable is false for holds and for weak or very weak signals; no intent
// is formed from those.
func (s Signal) Actionable() bool {
	if s.Action == ActionHold || s.Degraded {
		return false
	}
	return s.Strength != StrengthVeryWeak && s.Strength != StrengthWeak
}

// DegradedSignal builds the hold signal returned when the oracle fails.
func DegradedSignal(token, reason string, indicators Indicators, now time.Time) Signal {
	return Signal{
		ID:         uuid.New().String(),
		Token:      token,
		Action:     ActionHold,
		Strength:   StrengthVeryWeak,
		Confidence: 0,
		RiskLevel:  RiskHigh,
		Reasoning:  "degraded: " + reason,
		Timestamp:  now,
		Indicators: indicators,
		Degraded:   true,
	}
}
