package domain

import "fmt"

// Environment is the risk posture the process runs under.
type Environment string

const (
	EnvDevelopment  Environment = "development"
	EnvPaperTrading Environment = "paper_trading"
	EnvProduction   Environment = "production"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == EnvDevelopment || e == EnvPaperTrading || e == EnvProduction
}

// RiskConfig is the risk posture passed explicitly to every validation.
type RiskConfig struct {
	MaxPositionSize     float64 // fraction of total value
	MaxDailyLoss        float64 // fraction of start-of-day value
	StopLossPercentage  float64 // fraction below average entry
	MaxOpenPositions    int
	MinTradeAmount      float64 // token units
	SlippageTolerance   float64 // fraction
	ReserveBalance      float64 // quote units kept untouched
	ConfidenceThreshold float64
	Environment         Environment
}

// DefaultRiskConfig returns the conservative defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSize:     0.05,
		MaxDailyLoss:        0.02,
		StopLossPercentage:  0.10,
		MaxOpenPositions:    3,
		MinTradeAmount:      0.01,
		SlippageTolerance:   0.01,
		ReserveBalance:      0.01,
		ConfidenceThreshold: 0.6,
		Environment:         EnvDevelopment,
	}
}

// TradeIntent is a proposed trade, not yet validated or submitted.
type TradeIntent struct {
	Token  string
	Side   Side
	Amount float64
	Price  float64
	Signal *Signal // nil for stop-loss and manual intents
	Reason string
}

// Value is the quote-denominated size of the intent.
func (i TradeIntent) Value() float64 {
	return i.Amount * i.Price
}

// RiskCheck identifies a gatekeeper check. The numeric order is the evaluation order.
type RiskCheck int

const (
	CheckNone RiskCheck = iota
	CheckHalted
	CheckMinTradeSize
	CheckMaxPositionSize
	CheckMaxOpenPositions
	CheckLiquidity
	CheckSignalThreshold
)

// Reason returns the fixed rejection reason of the check.
func (c RiskCheck) Reason() string {
	switch c {
	case CheckHalted:
		return "daily loss limit reached"
	case CheckMinTradeSize:
		return "below minimum trade size"
	case CheckMaxPositionSize:
		return "exceeds max position size"
	case CheckMaxOpenPositions:
		return "too many open positions"
	case CheckLiquidity:
		return "insufficient balance/position"
	case CheckSignalThreshold:
		return "signal below threshold"
	}
	return ""
}

func (c RiskCheck) String() string {
	if c == CheckNone {
		return "none"
	}
	return c.Reason()
}

// Verdict is the gatekeeper outcome. A rejection is data, not an error.
type Verdict struct {
	Approved bool
	Check    RiskCheck // failing check, CheckNone when approved
	Reason   string
	Detail   string
}

// Approve is the passing verdict.
func Approve() Verdict {
	return Verdict{Approved: true}
}

// Reject builds a failing verdict for check c.
func Reject(c RiskCheck, format string, args ...any) Verdict {
	return Verdict{Check: c, Reason: c.Reason(), Detail: fmt.Sprintf(format, args...)}
}

// Err returns nil for an approval and a *RejectedError otherwise.
func (v Verdict) Err() error {
	if v.Approved {
		return nil
	}
	return &RejectedError{Check: v.Check, Reason: v.Reason}
}
