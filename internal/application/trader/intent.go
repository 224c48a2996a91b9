package trader

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// FormIntent sizes the trade an actionable signal asks for.
//
// Buys are worth min(PositionSizePercent/100, MaxPositionSize) × TotalValue,
// trimmed to the remaining room under the position cap and to the free
// balance above the reserve. Sells close the whole unreserved position.
// ok is false when there is nothing to trade.
func FormIntent(sig domain.Signal, price float64, p domain.Portfolio, cfg domain.RiskConfig) (domain.TradeIntent, bool) {
	if !sig.Actionable() || price <= 0 {
		return domain.TradeIntent{}, false
	}

	intent := domain.TradeIntent{
		Token:  sig.Token,
		Side:   domain.Side(sig.Action),
		Price:  price,
		Signal: &sig,
		Reason: fmt.Sprintf("%s %s signal, confidence %.2f", sig.Strength, sig.Action, sig.Confidence),
	}

	switch sig.Action {
	case domain.ActionBuy:
		fraction := cfg.MaxPositionSize
		if pct := sig.PositionSizePercent / 100; pct > 0 && pct < fraction {
			fraction = pct
		}
		value := fraction * p.TotalValue
		room := cfg.MaxPositionSize*p.TotalValue - p.ProjectedValue(sig.Token, 0)
		free := p.FreeBalance() - cfg.ReserveBalance
		value = math.Min(value, math.Min(room, free))
		if value <= 0 {
			return domain.TradeIntent{}, false
		}
		intent.Amount = value / price

	case domain.ActionSell:
		amount := p.FreeAmount(sig.Token)
		if amount <= 0 {
			return domain.TradeIntent{}, false
		}
		intent.Amount = amount

	default:
		return domain.TradeIntent{}, false
	}
	return intent, true
}

// StopLossIntent returns a sell of the whole unreserved position in token
// when price has fallen StopLossPercentage or more below its average entry.
func StopLossIntent(p domain.Portfolio, token string, price float64, cfg domain.RiskConfig) (domain.TradeIntent, bool) {
	pos, ok := p.Positions[token]
	if !ok {
		return domain.TradeIntent{}, false
	}
	pos.MarkPrice = price
	if !pos.StopLossHit(cfg.StopLossPercentage) {
		return domain.TradeIntent{}, false
	}
	amount := p.FreeAmount(token)
	if amount <= 0 {
		return domain.TradeIntent{}, false
	}
	return domain.TradeIntent{
		Token:  token,
		Side:   domain.SideSell,
		Amount: amount,
		Price:  price,
		Reason: fmt.Sprintf("stop loss: %.6f <= %.6f × (1 - %.2f)", price, pos.AverageEntryPrice, cfg.StopLossPercentage),
	}, true
}
