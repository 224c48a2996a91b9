package risk_test

import (
	"errors"
	"testing"

	"github.com/alejandrodnm/llmtrader/internal/application/risk"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portfolio builds a snapshot with the given balance and positions marked at entry.
func portfolio(balance float64, positions ...domain.Position) domain.Portfolio {
	p := domain.Portfolio{
		Positions:        make(map[string]domain.Position),
		AvailableBalance: balance,
	}
	for _, pos := range positions {
		if pos.MarkPrice == 0 {
			pos.MarkPrice = pos.AverageEntryPrice
		}
		p.Positions[pos.Token] = pos
	}
	p.TotalValue = p.AvailableBalance + p.PositionsValue()
	p.StartOfDayValue = p.TotalValue
	return p
}

func pos(token string, amount, avg float64) domain.Position {
	return domain.Position{Token: token, Amount: amount, AverageEntryPrice: avg}
}

func buy(token string, amount, price float64) domain.TradeIntent {
	return domain.TradeIntent{Token: token, Side: domain.SideBuy, Amount: amount, Price: price}
}

func sell(token string, amount, price float64) domain.TradeIntent {
	return domain.TradeIntent{Token: token, Side: domain.SideSell, Amount: amount, Price: price}
}

func withSignal(i domain.TradeIntent, confidence float64, rl domain.RiskLevel) domain.TradeIntent {
	i.Signal = &domain.Signal{
		ID:         "sig",
		Token:      i.Token,
		Action:     domain.Action(i.Side),
		Strength:   domain.StrengthStrong,
		Confidence: confidence,
		RiskLevel:  rl,
	}
	return i
}

func productionCfg() domain.RiskConfig {
	cfg := domain.DefaultRiskConfig()
	cfg.Environment = domain.EnvProduction
	return cfg
}

func TestValidate_ApprovesWithinLimits(t *testing.T) {
	p := portfolio(1000)
	v := risk.Validate(withSignal(buy("SOL", 2, 20), 0.8, domain.RiskLow), p, productionCfg())
	assert.True(t, v.Approved)
	assert.NoError(t, v.Err())
}

func TestValidate_ExceedsMaxPositionSize(t *testing.T) {
	p := portfolio(1000)
	require.InDelta(t, 1000.0, p.TotalValue, 1e-9)

	v := risk.Validate(buy("SOL", 3, 20), p, domain.DefaultRiskConfig()) // value 60, cap 50
	assert.False(t, v.Approved)
	assert.Equal(t, "exceeds max position size", v.Reason)
	assert.ErrorIs(t, v.Err(), domain.ErrRejected)
	assert.NotErrorIs(t, v.Err(), domain.ErrHalted)
}

func TestValidate_ExactCapIsAllowed(t *testing.T) {
	v := risk.Validate(buy("SOL", 2.5, 20), portfolio(1000), domain.DefaultRiskConfig()) // exactly 50
	assert.True(t, v.Approved, v.Detail)
}

func TestValidate_ProjectionIncludesHeldPosition(t *testing.T) {
	p := portfolio(960, pos("SOL", 2, 20)) // total 1000, already 40 in SOL
	v := risk.Validate(buy("SOL", 1, 20), p, domain.DefaultRiskConfig())
	assert.Equal(t, domain.CheckMaxPositionSize, v.Check)
}

func TestValidate_SignalBelowThresholdIrrespectiveOfAction(t *testing.T) {
	cfg := productionCfg()
	p := portfolio(960, pos("SOL", 2, 20))

	for name, intent := range map[string]domain.TradeIntent{
		"buy":  withSignal(buy("JUP", 10, 1), 0.5, domain.RiskLow),
		"sell": withSignal(sell("SOL", 1, 20), 0.5, domain.RiskLow),
	} {
		t.Run(name, func(t *testing.T) {
			v := risk.Validate(intent, p, cfg)
			assert.False(t, v.Approved)
			assert.Equal(t, "signal below threshold", v.Reason)
		})
	}
}

func TestValidate_HighRiskOnlyBlockedInProduction(t *testing.T) {
	intent := withSignal(buy("SOL", 1, 20), 0.9, domain.RiskHigh)
	p := portfolio(1000)

	v := risk.Validate(intent, p, productionCfg())
	assert.Equal(t, domain.CheckSignalThreshold, v.Check)

	paper := domain.DefaultRiskConfig()
	paper.Environment = domain.EnvPaperTrading
	assert.True(t, risk.Validate(intent, p, paper).Approved)
}

func TestValidate_HaltRejectsEveryIntent(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	p := portfolio(1000, pos("SOL", 1, 10))
	p.DailyPnL = -0.02*p.StartOfDayValue - 1

	intents := []domain.TradeIntent{
		buy("SOL", 1, 10),
		sell("SOL", 1, 10),
		buy("NEW", 0.0001, 1),                               // would fail min size
		buy("SOL", 1000, 10),                                 // would fail cap
		withSignal(buy("SOL", 1, 10), 0.99, domain.RiskLow), // perfect signal
		withSignal(sell("SOL", 5, 10), 0.1, domain.RiskHigh),
	}
	for _, in := range intents {
		v := risk.Validate(in, p, cfg)
		assert.False(t, v.Approved)
		assert.Equal(t, "daily loss limit reached", v.Reason)
		assert.True(t, errors.Is(v.Err(), domain.ErrHalted))
	}
}

func TestValidate_BelowMinimumTradeSize(t *testing.T) {
	v := risk.Validate(buy("SOL", 0.001, 20), portfolio(1000), domain.DefaultRiskConfig())
	assert.Equal(t, "below minimum trade size", v.Reason)
}

func TestValidate_TooManyOpenPositions(t *testing.T) {
	p := portfolio(10_000, pos("A", 1, 10), pos("B", 1, 10), pos("C", 1, 10))
	cfg := domain.DefaultRiskConfig()

	v := risk.Validate(buy("D", 1, 10), p, cfg)
	assert.Equal(t, "too many open positions", v.Reason)

	// adding to an existing position and closing one are exempt
	assert.True(t, risk.Validate(buy("A", 1, 10), p, cfg).Approved)
	assert.True(t, risk.Validate(sell("B", 1, 10), p, cfg).Approved)
}

func TestValidate_InsufficientBalanceOrPosition(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	cfg.MaxPositionSize = 1
	cfg.ReserveBalance = 10

	v := risk.Validate(buy("SOL", 1, 95), portfolio(100), cfg)
	assert.Equal(t, "insufficient balance/position", v.Reason)

	v = risk.Validate(sell("SOL", 3, 10), portfolio(100, pos("SOL", 2, 10)), cfg)
	assert.Equal(t, "insufficient balance/position", v.Reason)
}

func TestValidate_InFlightTradesAreReserved(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	cfg.MaxPositionSize = 1
	p := portfolio(100, pos("SOL", 2, 10))
	p.InFlight = []domain.Trade{
		{ID: "b", Side: domain.SideBuy, Token: "JUP", Amount: 50, Price: 1, Value: 50},
		{ID: "s", Side: domain.SideSell, Token: "SOL", Amount: 1.5, Price: 10, Value: 15},
	}

	v := risk.Validate(buy("BONK", 60, 1), p, cfg)
	assert.Equal(t, domain.CheckLiquidity, v.Check, "only 50 of 100 is free")

	v = risk.Validate(sell("SOL", 1, 10), p, cfg)
	assert.Equal(t, domain.CheckLiquidity, v.Check, "only 0.5 SOL is free")
}

func TestValidate_FixedCheckOrder(t *testing.T) {
	// fails min size, cap, and liquidity at once; min size comes first
	cfg := domain.DefaultRiskConfig()
	cfg.MinTradeAmount = 100
	v := risk.Validate(buy("SOL", 50, 1000), portfolio(10), cfg)
	assert.Equal(t, domain.CheckMinTradeSize, v.Check)

	// fails cap and liquidity; cap comes first
	v = risk.Validate(buy("SOL", 1, 1000), portfolio(10), domain.DefaultRiskConfig())
	assert.Equal(t, domain.CheckMaxPositionSize, v.Check)
}

func TestValidate_IsPure(t *testing.T) {
	p := portfolio(960, pos("SOL", 2, 20))
	p.InFlight = []domain.Trade{{ID: "x", Side: domain.SideBuy, Token: "JUP", Amount: 5, Price: 1, Value: 5}}
	cfg := productionCfg()
	before := p.Clone()

	for _, in := range []domain.TradeIntent{
		withSignal(buy("SOL", 0.5, 20), 0.7, domain.RiskMedium),
		buy("SOL", 5, 20),
		sell("SOL", 1, 22),
	} {
		first := risk.Validate(in, p, cfg)
		second := risk.Validate(in, p, cfg)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, before, p)
}

func TestGatekeeper_BindsConfig(t *testing.T) {
	g := risk.NewGatekeeper(productionCfg())
	p := portfolio(1000)
	assert.Equal(t, risk.Validate(buy("SOL", 3, 20), p, productionCfg()), g.Validate(buy("SOL", 3, 20), p))
	assert.False(t, g.Halted(p))
}
