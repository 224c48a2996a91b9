// Package risk validates trade intents against a portfolio snapshot.
//
// Validate is pure: it reads the snapshot and the config and nothing else, so
// it can be called any number of times, including under the ledger lock right
// before submission.
package risk

import "github.com/alejandrodnm/llmtrader/internal/domain"

// epsilon keeps float noise from rejecting an intent sized exactly at a limit.
const epsilon = 1e-9

// Validate runs the checks in fixed order and returns the first failure.
func Validate(intent domain.TradeIntent, p domain.Portfolio, cfg domain.RiskConfig) domain.Verdict {
	// 1. halt
	if p.IsHalted(cfg) {
		return domain.Reject(domain.CheckHalted,
			"daily pnl %.4f <= -%.4f × %.4f", p.DailyPnL, cfg.MaxDailyLoss, p.StartOfDayValue)
	}

	// 2. minimum size
	if intent.Amount < cfg.MinTradeAmount {
		return domain.Reject(domain.CheckMinTradeSize,
			"amount %.6f < %.6f", intent.Amount, cfg.MinTradeAmount)
	}

	value := intent.Value()

	// 3. position cap
	if intent.Side == domain.SideBuy {
		projected := p.ProjectedValue(intent.Token, value)
		limit := cfg.MaxPositionSize * p.TotalValue
		if projected > limit+epsilon {
			return domain.Reject(domain.CheckMaxPositionSize,
				"projected %.4f > cap %.4f", projected, limit)
		}
	}

	// 4. open positions, new tokens only
	if intent.Side == domain.SideBuy && !p.HasExposure(intent.Token) {
		if open := p.OpenPositionCount(); open >= cfg.MaxOpenPositions {
			return domain.Reject(domain.CheckMaxOpenPositions,
				"%d open, max %d", open, cfg.MaxOpenPositions)
		}
	}

	// 5. liquidity
	switch intent.Side {
	case domain.SideBuy:
		if free := p.FreeBalance() - cfg.ReserveBalance; free+epsilon < value {
			return domain.Reject(domain.CheckLiquidity,
				"free balance %.4f < value %.4f", free, value)
		}
	case domain.SideSell:
		if held := p.FreeAmount(intent.Token); held+epsilon < intent.Amount {
			return domain.Reject(domain.CheckLiquidity,
				"held %.6f < amount %.6f", held, intent.Amount)
		}
	default:
		return domain.Reject(domain.CheckLiquidity, "unknown side %q", intent.Side)
	}

	// 6. signal quality
	if s := intent.Signal; s != nil {
		if s.Confidence < cfg.ConfidenceThreshold {
			return domain.Reject(domain.CheckSignalThreshold,
				"confidence %.2f < %.2f", s.Confidence, cfg.ConfidenceThreshold)
		}
		if cfg.Environment == domain.EnvProduction && s.RiskLevel == domain.RiskHigh {
			return domain.Reject(domain.CheckSignalThreshold, "high risk signal in production")
		}
	}

	return domain.Approve()
}

// Gatekeeper binds a RiskConfig to Validate for callers that hold one config.
type Gatekeeper struct {
	cfg domain.RiskConfig
}

// NewGatekeeper returns a Gatekeeper for cfg.
func NewGatekeeper(cfg domain.RiskConfig) *Gatekeeper {
	return &Gatekeeper{cfg: cfg}
}

// Validate checks intent against p with the bound config.
func (g *Gatekeeper) Validate(intent domain.TradeIntent, p domain.Portfolio) domain.Verdict {
	return Validate(intent, p, g.cfg)
}

// Halted reports whether p is past the daily loss limit.
func (g *Gatekeeper) Halted(p domain.Portfolio) bool {
	return p.IsHalted(g.cfg)
}
