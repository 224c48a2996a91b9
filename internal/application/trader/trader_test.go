package trader_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/executor"
	"github.com/alejandrodnm/llmtrader/internal/application/ledger"
	"github.com/alejandrodnm/llmtrader/internal/application/signal"
	"github.com/alejandrodnm/llmtrader/internal/application/trader"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fakeCollector struct {
	prices map[string]float64
}

func (c *fakeCollector) Collect(_ context.Context, token string) (domain.MarketData, error) {
	p, ok := c.prices[token]
	if !ok {
		return domain.MarketData{}, domain.ErrDataUnavailable
	}
	return domain.MarketData{Token: token, Price: p, CollectedAt: day1}, nil
}

type fakeSynth struct {
	mu      sync.Mutex
	signals map[string]domain.Signal
	calls   map[string]int
}

func (s *fakeSynth) Generate(_ context.Context, md domain.MarketData, _ signal.PortfolioContext) domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[md.Token]++
	sig, ok := s.signals[md.Token]
	if !ok {
		return domain.DegradedSignal(md.Token, "no script", md.Indicators, day1)
	}
	sig.Token = md.Token
	return sig
}

// instantGateway confirms every swap at the requested price.
type instantGateway struct {
	mu   sync.Mutex
	reqs map[string]ports.SwapRequest
}

func (g *instantGateway) Submit(_ context.Context, req ports.SwapRequest) (ports.SwapReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reqs == nil {
		g.reqs = make(map[string]ports.SwapRequest)
	}
	g.reqs[req.TradeID] = req
	return ports.SwapReceipt{Reference: req.TradeID}, nil
}

func (g *instantGateway) Await(_ context.Context, ref string) (ports.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := g.reqs[ref]
	return ports.Settlement{Reference: ref, Status: ports.SettlementConfirmed, FilledAmount: req.Amount, Price: req.Price}, nil
}

type memStore struct {
	mu        sync.Mutex
	trades    []domain.Trade
	signals   []domain.Signal
	summaries []domain.DailySummary
}

func (m *memStore) SaveTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].ID == t.ID {
			m.trades[i] = t
			return nil
		}
	}
	m.trades = append(m.trades, t)
	return nil
}
func (m *memStore) ListTrades(context.Context, int) ([]domain.Trade, error) { return m.trades, nil }
func (m *memStore) TradesBetween(_ context.Context, from, to time.Time) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range m.trades {
		if !t.Timestamp.Before(from) && t.Timestamp.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}
func (m *memStore) TradeStats(context.Context) (domain.TradeStats, error) {
	return domain.TradeStats{}, nil
}
func (m *memStore) SaveSignal(_ context.Context, s domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}
func (m *memStore) ListSignals(context.Context, string, int) ([]domain.Signal, error) {
	return m.signals, nil
}
func (m *memStore) SaveDailySummary(_ context.Context, d domain.DailySummary) error {
	m.summaries = append(m.summaries, d)
	return nil
}
func (m *memStore) DailySummaries(context.Context, int) ([]domain.DailySummary, error) {
	return m.summaries, nil
}

type sink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *sink) Publish(ev domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *sink) count(kind domain.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	ledger *ledger.Ledger
	synth  *fakeSynth
	store  *memStore
	events *sink
	trader *trader.Trader
}

func newHarness(t *testing.T, l *ledger.Ledger, prices map[string]float64, signals map[string]domain.Signal, now time.Time) harness {
	t.Helper()
	risk := domain.DefaultRiskConfig()
	risk.Environment = domain.EnvPaperTrading

	store := &memStore{}
	events := &sink{}
	synth := &fakeSynth{signals: signals}
	ex := executor.New(l, &instantGateway{}, store, events, executor.Config{Risk: risk, ConfirmTimeout: time.Second})

	tokens := make([]string, 0, len(prices)+1)
	for tok := range prices {
		tokens = append(tokens, tok)
	}
	tokens = append(tokens, "MISSING")

	tr := trader.New(trader.Config{Tokens: tokens, Workers: 2, Risk: risk}, trader.Deps{
		Collector:   &fakeCollector{prices: prices},
		Synthesizer: synth,
		Executor:    ex,
		Ledger:      l,
		Trades:      store,
		Signals:     store,
		Summaries:   store,
		Events:      events,
	}, trader.WithClock(func() time.Time { return now }))
	return harness{ledger: l, synth: synth, store: store, events: events, trader: tr}
}

func strongBuy() domain.Signal {
	return domain.Signal{ID: "sig-1", Action: domain.ActionBuy, Strength: domain.StrengthStrong, Confidence: 0.8, RiskLevel: domain.RiskMedium, Reasoning: "breakout"}
}

func executed(side domain.Side, token string, amount, price float64) domain.Trade {
	return domain.Trade{ID: string(side) + token, Side: side, Token: token, Amount: amount, Price: price, Value: amount * price, Status: domain.TradeExecuted, Timestamp: day1}
}

func TestRunOnce_BuySignalIsExecuted(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	h := newHarness(t, l, map[string]float64{"SOL": 25}, map[string]domain.Signal{"SOL": strongBuy()}, day1)

	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Tokens)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Signals)
	assert.Equal(t, 1, rep.Executed)
	assert.False(t, rep.Halted)

	pos := l.Snapshot().Positions["SOL"]
	assert.InDelta(t, 2.0, pos.Amount, 1e-9, "0.05 × 1000 / 25")
	assert.Len(t, h.store.signals, 1)
	assert.Equal(t, 1, h.events.count(domain.EventSignal))
	assert.Equal(t, 1, h.events.count(domain.EventTrade))
	assert.Equal(t, 1, h.events.count(domain.EventPortfolio))
}

func TestRunOnce_WeakSignalFormsNoIntent(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	weak := strongBuy()
	weak.Strength = domain.StrengthWeak
	h := newHarness(t, l, map[string]float64{"SOL": 25}, map[string]domain.Signal{"SOL": weak}, day1)

	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Signals)
	assert.Zero(t, rep.Intents)
	assert.Empty(t, l.Snapshot().Positions)
}

func TestRunOnce_LowConfidenceIsRejected(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	sig := strongBuy()
	sig.Confidence = 0.5
	h := newHarness(t, l, map[string]float64{"SOL": 25}, map[string]domain.Signal{"SOL": sig}, day1)

	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Intents)
	assert.Equal(t, 1, rep.Rejected)
	assert.Zero(t, rep.Executed)
	assert.Empty(t, h.store.trades)
}

func TestRunOnce_StopLossSellsWithoutAskingOracle(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	_, err := l.ApplyTrade(executed(domain.SideBuy, "SOL", 0.4, 100))
	require.NoError(t, err)

	h := newHarness(t, l, map[string]float64{"SOL": 89}, map[string]domain.Signal{"SOL": strongBuy()}, day1)
	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.StopLoss)
	assert.Equal(t, 1, rep.Executed)
	assert.Zero(t, h.synth.calls["SOL"])
	snap := l.Snapshot()
	assert.NotContains(t, snap.Positions, "SOL")
	assert.InDelta(t, -4.4, snap.DailyPnL, 1e-9)
}

func TestRunOnce_HaltedFormsNoIntents(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	_, err := l.ApplyTrade(executed(domain.SideBuy, "BONK", 2, 20))
	require.NoError(t, err)
	_, err = l.ApplyTrade(executed(domain.SideSell, "BONK", 2, 5))
	require.NoError(t, err)

	h := newHarness(t, l, map[string]float64{"SOL": 25}, map[string]domain.Signal{"SOL": strongBuy()}, day1)
	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Halted)
	assert.Zero(t, rep.Executed)
	assert.Zero(t, h.synth.calls["SOL"])
	assert.Empty(t, l.Snapshot().Positions)
}

func TestRunOnce_DayRolloverSummarizesOnce(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	day2 := day1.Add(24 * time.Hour)
	h := newHarness(t, l, map[string]float64{}, nil, day2)

	rep, err := h.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.RolledDay)

	rep, err = h.trader.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.RolledDay)

	require.Len(t, h.store.summaries, 1)
	assert.Equal(t, day1.Truncate(24*time.Hour), h.store.summaries[0].Date)
	assert.InDelta(t, 1000.0, h.store.summaries[0].StartValue, 1e-9)
	assert.Equal(t, 1, h.events.count(domain.EventDailySummary))
}

func TestRunOnce_CancelledContext(t *testing.T) {
	l := ledger.New(1000, ledger.WithClock(func() time.Time { return day1 }))
	h := newHarness(t, l, map[string]float64{"SOL": 25}, nil, day1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.trader.RunOnce(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFormIntent_Sizing(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	empty := domain.Portfolio{Positions: map[string]domain.Position{}, AvailableBalance: 1000, TotalValue: 1000}

	cases := []struct {
		name      string
		pct       float64
		portfolio domain.Portfolio
		want      float64 // value
	}{
		{"oracle omits size", 0, empty, 50},
		{"oracle asks less than cap", 3, empty, 30},
		{"oracle asks more than cap", 10, empty, 50},
		{"existing position leaves room", 0, domain.Portfolio{
			Positions:        map[string]domain.Position{"SOL": {Token: "SOL", Amount: 1.6, MarkPrice: 25}},
			AvailableBalance: 960,
			TotalValue:       1000,
		}, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := strongBuy()
			sig.Token = "SOL"
			sig.PositionSizePercent = tc.pct
			intent, ok := trader.FormIntent(sig, 25, tc.portfolio, cfg)
			require.True(t, ok)
			assert.Equal(t, domain.SideBuy, intent.Side)
			assert.InDelta(t, tc.want, intent.Value(), 1e-6)
			assert.NotNil(t, intent.Signal)
		})
	}
}

func TestFormIntent_NothingToTrade(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	p := domain.Portfolio{Positions: map[string]domain.Position{}, AvailableBalance: 1000, TotalValue: 1000}

	sell := strongBuy()
	sell.Token = "SOL"
	sell.Action = domain.ActionSell
	_, ok := trader.FormIntent(sell, 25, p, cfg)
	assert.False(t, ok, "sell without position")

	full := domain.Portfolio{
		Positions:        map[string]domain.Position{"SOL": {Token: "SOL", Amount: 2, MarkPrice: 25}},
		AvailableBalance: 950,
		TotalValue:       1000,
	}
	buy := strongBuy()
	buy.Token = "SOL"
	_, ok = trader.FormIntent(buy, 25, full, cfg)
	assert.False(t, ok, "position already at cap")

	intent, ok := trader.FormIntent(sell, 25, full, cfg)
	require.True(t, ok)
	assert.InDelta(t, 2.0, intent.Amount, 1e-9)
}

func TestStopLossIntent(t *testing.T) {
	cfg := domain.DefaultRiskConfig()
	p := domain.Portfolio{Positions: map[string]domain.Position{"SOL": {Token: "SOL", Amount: 3, AverageEntryPrice: 100, MarkPrice: 100}}}

	_, ok := trader.StopLossIntent(p, "SOL", 91, cfg)
	assert.False(t, ok)

	intent, ok := trader.StopLossIntent(p, "SOL", 90, cfg)
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, intent.Side)
	assert.InDelta(t, 3.0, intent.Amount, 1e-9)
	assert.Nil(t, intent.Signal)

	_, ok = trader.StopLossIntent(p, "BONK", 1, cfg)
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	closed := domain.Portfolio{
		Day:             day1.Truncate(24 * time.Hour),
		StartOfDayValue: 1000,
		TotalValue:      1012,
		DailyPnL:        12,
		Positions:       map[string]domain.Position{"SOL": {}},
	}
	win := executed(domain.SideSell, "SOL", 1, 30)
	win.RealizedPnL = 15
	loss := executed(domain.SideSell, "BONK", 1, 1)
	loss.RealizedPnL = -3
	failed := executed(domain.SideBuy, "JUP", 1, 1)
	failed.Status = domain.TradeFailed

	s := trader.Summarize(closed, []domain.Trade{executed(domain.SideBuy, "SOL", 1, 20), win, loss, failed})
	assert.Equal(t, 3, s.TradesExecuted)
	assert.Equal(t, 1, s.TradesFailed)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.OpenPositions)
	assert.InDelta(t, 1.2, s.ReturnPercent(), 1e-9)
}
