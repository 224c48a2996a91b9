package domain

import (
	"maps"
	"slices"
	"time"
)

// Position is the holding in one token.
type Position struct {
	Token             string
	Amount            float64
	AverageEntryPrice float64
	MarkPrice         float64 // last trade or market price
	OpenedAt          time.Time
	LastUpdated       time.Time
}

// Value is the position marked at MarkPrice.
func (p Position) Value() float64 {
	return p.Amount * p.MarkPrice
}

// UnrealizedPnL is the mark-to-market gain against the average entry.
func (p Position) UnrealizedPnL() float64 {
	return (p.MarkPrice - p.AverageEntryPrice) * p.Amount
}

// StopLossHit reports whether the mark fell pct or more below the average entry.
func (p Position) StopLossHit(pct float64) bool {
	if pct <= 0 || p.Amount <= 0 || p.MarkPrice <= 0 {
		return false
	}
	return p.MarkPrice <= p.AverageEntryPrice*(1-pct)
}

// Portfolio is a point-in-time copy of the ledger. Values are detached from
// the ledger; mutating a Portfolio never changes ledger state.
type Portfolio struct {
	Positions        map[string]Position
	AvailableBalance float64
	TotalValue       float64
	DailyPnL         float64
	StartOfDayValue  float64
	Day              time.Time // UTC midnight of the accounting day
	InFlight         []Trade   // admitted, not yet terminal
	TakenAt          time.Time
}

// Clone returns a deep copy of p.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Positions = maps.Clone(p.Positions)
	if c.Positions == nil {
		c.Positions = make(map[string]Position)
	}
	c.InFlight = slices.Clone(p.InFlight)
	return c
}

// PositionsValue is Σ position.Value().
func (p Portfolio) PositionsValue() float64 {
	var sum float64
	for _, pos := range p.Positions {
		sum += pos.Value()
	}
	return sum
}

// IsHalted reports whether the daily loss limit has been reached.
func (p Portfolio) IsHalted(cfg RiskConfig) bool {
	return p.DailyPnL <= -cfg.MaxDailyLoss*p.StartOfDayValue
}

// FreeBalance is the available balance minus the value committed to in-flight buys.
func (p Portfolio) FreeBalance() float64 {
	free := p.AvailableBalance
	for _, t := range p.InFlight {
		if t.Side == SideBuy {
			free -= t.Value
		}
	}
	return free
}

// FreeAmount is the held amount of token minus in-flight sells of it.
func (p Portfolio) FreeAmount(token string) float64 {
	free := p.Positions[token].Amount
	for _, t := range p.InFlight {
		if t.Side == SideSell && t.Token == token {
			free -= t.Amount
		}
	}
	return free
}

// ProjectedValue is the value of token's position after in-flight buys plus add.
func (p Portfolio) ProjectedValue(token string, add float64) float64 {
	v := p.Positions[token].Value() + add
	for _, t := range p.InFlight {
		if t.Side == SideBuy && t.Token == token {
			v += t.Value
		}
	}
	return v
}

// HasExposure reports whether token is held or has an in-flight buy.
func (p Portfolio) HasExposure(token string) bool {
	if _, ok := p.Positions[token]; ok {
		return true
	}
	for _, t := range p.InFlight {
		if t.Side == SideBuy && t.Token == token {
			return true
		}
	}
	return false
}

// OpenPositionCount counts distinct tokens held or being bought.
func (p Portfolio) OpenPositionCount() int {
	n := len(p.Positions)
	seen := make(map[string]bool)
	for _, t := range p.InFlight {
		if t.Side != SideBuy || seen[t.Token] {
			continue
		}
		seen[t.Token] = true
		if _, held := p.Positions[t.Token]; !held {
			n++
		}
	}
	return n
}

// DailyPnLPercent is the realized daily PnL relative to the start-of-day value.
func (p Portfolio) DailyPnLPercent() float64 {
	if p.StartOfDayValue == 0 {
		return 0
	}
	return p.DailyPnL / p.StartOfDayValue * 100
}
