package signal_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/signal"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnswer = `{"action":"buy","strength":"strong","confidence":0.82,"risk_level":"medium",
"reasoning":"RSI recovering from oversold with MACD crossover","entry_price":101.5,"stop_loss":95,
"take_profit":null,"position_size_percent":3}`

// scriptedOracle answers with replies in order, repeating the last one.
type scriptedOracle struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	last    ports.OracleRequest
}

type reply struct {
	content string
	err     error
}

func (o *scriptedOracle) Submit(_ context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = req
	r := o.replies[min(o.calls, len(o.replies)-1)]
	o.calls++
	if r.err != nil {
		return ports.OracleResponse{}, r.err
	}
	return ports.OracleResponse{Provider: "fake", Model: "test", Content: r.content}, nil
}

func testConfig() signal.Config {
	return signal.Config{MaxAttempts: 3, Timeout: time.Second, BaseBackoff: time.Millisecond}
}

func marketData() domain.MarketData {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := make([]domain.Candle, 30)
	for i := range history {
		open := now.Add(time.Duration(i-30) * time.Hour)
		history[i] = domain.Candle{OpenTime: open, CloseTime: open.Add(time.Hour), Close: 100 + float64(i), Volume: 1000}
	}
	return domain.MarketData{
		Token:       "SOL",
		Price:       129,
		Volume24h:   123456,
		Change24h:   2.5,
		History:     history,
		Indicators:  domain.Indicators{RSI: 41.5, Trend: domain.TrendBullish},
		CollectedAt: now,
	}
}

func TestParseSignal(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, p signal.Parsed)
	}{
		{
			name:    "plain object",
			content: validAnswer,
			check: func(t *testing.T, p signal.Parsed) {
				assert.Equal(t, domain.ActionBuy, p.Action)
				assert.Equal(t, domain.StrengthStrong, p.Strength)
				assert.InDelta(t, 0.82, p.Confidence, 1e-9)
				assert.Equal(t, domain.RiskMedium, p.RiskLevel)
				assert.InDelta(t, 101.5, p.EntryPrice, 1e-9)
				assert.InDelta(t, 95.0, p.StopLoss, 1e-9)
				assert.Zero(t, p.TakeProfit)
				assert.InDelta(t, 3.0, p.PositionSizePercent, 1e-9)
			},
		},
		{
			name:    "fenced with prose",
			content: "Here is my analysis:\n```json\n" + validAnswer + "\n```\nGood luck.",
			check: func(t *testing.T, p signal.Parsed) {
				assert.Equal(t, domain.ActionBuy, p.Action)
			},
		},
		{
			name:    "upper case enums",
			content: `{"action":"SELL","strength":"Moderate","confidence":0.7,"risk_level":"LOW","reasoning":"lower highs"}`,
			check: func(t *testing.T, p signal.Parsed) {
				assert.Equal(t, domain.ActionSell, p.Action)
				assert.Equal(t, domain.StrengthModerate, p.Strength)
				assert.Equal(t, domain.RiskLow, p.RiskLevel)
			},
		},
		{
			name:    "trailing comma is repaired",
			content: `{"action":"hold","strength":"weak","confidence":0.3,"risk_level":"high","reasoning":"choppy",}`,
			check: func(t *testing.T, p signal.Parsed) {
				assert.Equal(t, domain.ActionHold, p.Action)
			},
		},
		{name: "no json", content: "I would hold for now.", wantErr: true},
		{name: "missing confidence", content: `{"action":"buy","strength":"strong","risk_level":"low","reasoning":"x"}`, wantErr: true},
		{name: "unknown action", content: `{"action":"short","strength":"strong","confidence":0.9,"risk_level":"low","reasoning":"x"}`, wantErr: true},
		{name: "unknown strength", content: `{"action":"buy","strength":"huge","confidence":0.9,"risk_level":"low","reasoning":"x"}`, wantErr: true},
		{name: "confidence above one", content: `{"action":"buy","strength":"strong","confidence":1.5,"risk_level":"low","reasoning":"x"}`, wantErr: true},
		{name: "negative confidence", content: `{"action":"buy","strength":"strong","confidence":-0.1,"risk_level":"low","reasoning":"x"}`, wantErr: true},
		{name: "empty reasoning", content: `{"action":"buy","strength":"strong","confidence":0.9,"risk_level":"low","reasoning":"  "}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := signal.ParseSignal(tc.content)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrSignalParse)
				return
			}
			require.NoError(t, err)
			tc.check(t, p)
		})
	}
}

func TestParseSignal_NegativeLevelsAreDropped(t *testing.T) {
	p, err := signal.ParseSignal(`{"action":"buy","strength":"strong","confidence":0.9,"risk_level":"low",
		"reasoning":"x","stop_loss":-5,"position_size_percent":0}`)
	require.NoError(t, err)
	assert.Zero(t, p.StopLoss)
	assert.Zero(t, p.PositionSizePercent)
}

func TestGenerate_ValidAnswer(t *testing.T) {
	oracle := &scriptedOracle{replies: []reply{{content: validAnswer}}}
	s := signal.New(oracle, testConfig())
	md := marketData()

	sig := s.Generate(context.Background(), md, signal.PortfolioContext{AvailableBalance: 1000, TotalValue: 1000})

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "SOL", sig.Token)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.False(t, sig.Degraded)
	assert.True(t, sig.Actionable())
	assert.Equal(t, md.Indicators, sig.Indicators)
	assert.Equal(t, 1, oracle.calls)
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	oracle := &scriptedOracle{replies: []reply{
		{err: errors.New("503 overloaded")},
		{content: "not json at all"},
		{content: validAnswer},
	}}
	s := signal.New(oracle, testConfig())

	sig := s.Generate(context.Background(), marketData(), signal.PortfolioContext{})

	assert.False(t, sig.Degraded)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Equal(t, 3, oracle.calls)
}

func TestGenerate_DegradesAfterMaxAttempts(t *testing.T) {
	oracle := &scriptedOracle{replies: []reply{{err: errors.New("connection refused")}}}
	s := signal.New(oracle, testConfig())
	md := marketData()

	sig := s.Generate(context.Background(), md, signal.PortfolioContext{})

	assert.True(t, sig.Degraded)
	assert.Equal(t, domain.ActionHold, sig.Action)
	assert.Equal(t, domain.StrengthVeryWeak, sig.Strength)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, domain.RiskHigh, sig.RiskLevel)
	assert.Contains(t, sig.Reasoning, "connection refused")
	assert.False(t, sig.Actionable())
	assert.Equal(t, md.Indicators, sig.Indicators)
	assert.Equal(t, 3, oracle.calls)
}

func TestGenerate_CancelledContextDegrades(t *testing.T) {
	oracle := &scriptedOracle{replies: []reply{{content: validAnswer}}}
	s := signal.New(oracle, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := s.Generate(ctx, marketData(), signal.PortfolioContext{})

	assert.True(t, sig.Degraded)
	assert.Zero(t, oracle.calls)
}

func TestGenerate_PromptCarriesMarketAndPortfolio(t *testing.T) {
	oracle := &scriptedOracle{replies: []reply{{content: validAnswer}}}
	s := signal.New(oracle, signal.Config{Temperature: 0.2, MaxTokens: 800})

	s.Generate(context.Background(), marketData(), signal.PortfolioContext{HeldAmount: 1.5, AverageEntry: 110, AvailableBalance: 500, TotalValue: 693.5})

	req := oracle.last
	assert.Equal(t, "SOL", req.Token)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	assert.Equal(t, 800, req.MaxTokens)
	assert.Contains(t, req.SystemPrompt, "JSON")
	assert.Contains(t, req.UserPrompt, "Symbol: SOL")
	assert.Contains(t, req.UserPrompt, "Current Price: 129")
	assert.Contains(t, req.UserPrompt, "Held amount: 1.5")
	assert.Contains(t, req.UserPrompt, "Average entry: 110")
	assert.Contains(t, req.UserPrompt, `"rsi": 41.5`)
	assert.NotContains(t, req.UserPrompt, "{token}")
}

func TestBuildUserPrompt_LimitsHistory(t *testing.T) {
	out, err := signal.BuildUserPrompt(marketData(), signal.PortfolioContext{})
	require.NoError(t, err)
	assert.Equal(t, 24, strings.Count(out, "close="))
	assert.Contains(t, out, "close=129")
	assert.NotContains(t, out, "close=105 ")
}

func TestContextFor(t *testing.T) {
	p := domain.Portfolio{
		Positions:        map[string]domain.Position{"SOL": {Token: "SOL", Amount: 2, AverageEntryPrice: 100}},
		AvailableBalance: 800,
		TotalValue:       1000,
	}
	pc := signal.ContextFor(p, "SOL")
	assert.Equal(t, signal.PortfolioContext{HeldAmount: 2, AverageEntry: 100, AvailableBalance: 800, TotalValue: 1000}, pc)

	assert.Zero(t, signal.ContextFor(p, "BONK").HeldAmount)
}
