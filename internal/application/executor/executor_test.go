package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/executor"
	"github.com/alejandrodnm/llmtrader/internal/application/ledger"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway settles every swap according to its fields.
type fakeGateway struct {
	mu        sync.Mutex
	submitted []ports.SwapRequest

	submitErr  error
	fillRatio  float64 // 0 means full fill
	price      float64 // 0 means requested price
	status     ports.SettlementStatus
	hang       bool
	awaitDelay time.Duration
}

func (g *fakeGateway) Submit(_ context.Context, req ports.SwapRequest) (ports.SwapReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return ports.SwapReceipt{}, g.submitErr
	}
	g.submitted = append(g.submitted, req)
	return ports.SwapReceipt{Reference: "ref-" + req.TradeID}, nil
}

func (g *fakeGateway) Await(ctx context.Context, ref string) (ports.Settlement, error) {
	if g.hang {
		<-ctx.Done()
		return ports.Settlement{}, ctx.Err()
	}
	if g.awaitDelay > 0 {
		time.Sleep(g.awaitDelay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	req := g.submitted[len(g.submitted)-1]
	for _, r := range g.submitted {
		if "ref-"+r.TradeID == ref {
			req = r
		}
	}
	s := ports.Settlement{Reference: ref, Status: ports.SettlementConfirmed, FilledAmount: req.Amount, Price: req.Price}
	if g.status != "" {
		s.Status = g.status
		s.Reason = "venue said no"
	}
	if g.fillRatio > 0 {
		s.FilledAmount = req.Amount * g.fillRatio
	}
	if g.price > 0 {
		s.Price = g.price
	}
	return s, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submitted)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Publish(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) trades() []domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Trade
	for _, ev := range r.events {
		if ev.Kind == domain.EventTrade {
			out = append(out, *ev.Trade)
		}
	}
	return out
}

type memTrades struct {
	mu     sync.Mutex
	byID   map[string]domain.Trade
	writes int
}

func newMemTrades() *memTrades { return &memTrades{byID: make(map[string]domain.Trade)} }

func (m *memTrades) SaveTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = t
	m.writes++
	return nil
}
func (m *memTrades) ListTrades(context.Context, int) ([]domain.Trade, error) { return nil, nil }
func (m *memTrades) TradesBetween(context.Context, time.Time, time.Time) ([]domain.Trade, error) {
	return nil, nil
}
func (m *memTrades) TradeStats(context.Context) (domain.TradeStats, error) {
	return domain.TradeStats{}, nil
}

func paperCfg() executor.Config {
	risk := domain.DefaultRiskConfig()
	risk.Environment = domain.EnvPaperTrading
	return executor.Config{Risk: risk, ConfirmTimeout: 200 * time.Millisecond}
}

func buyIntent(amount, price float64) domain.TradeIntent {
	return domain.TradeIntent{Token: "SOL", Side: domain.SideBuy, Amount: amount, Price: price}
}

func TestExecute_ConfirmedBuyIsBooked(t *testing.T) {
	l := ledger.New(1000)
	gw := &fakeGateway{price: 20.1}
	store := newMemTrades()
	sink := &recordingSink{}
	ex := executor.New(l, gw, store, sink, paperCfg())

	trade, err := ex.Execute(context.Background(), buyIntent(2, 20))
	require.NoError(t, err)

	assert.Equal(t, domain.TradeExecuted, trade.Status)
	assert.Equal(t, "ref-"+trade.ID, trade.SettlementRef)
	assert.InDelta(t, 20.1, trade.Price, 1e-9)
	assert.InDelta(t, 40.2, trade.Value, 1e-9)

	snap := l.Snapshot()
	assert.InDelta(t, 2.0, snap.Positions["SOL"].Amount, 1e-9)
	assert.InDelta(t, 1000-40.2, snap.AvailableBalance, 1e-9)
	assert.Empty(t, snap.InFlight)

	assert.Equal(t, 100, gw.submitted[0].SlippageBps)
	assert.Equal(t, domain.TradeExecuted, store.byID[trade.ID].Status)
	require.Len(t, sink.trades(), 1)
	assert.Equal(t, trade.ID, sink.trades()[0].ID)
}

func TestExecute_RevalidationRejectsWithoutSubmitting(t *testing.T) {
	l := ledger.New(1000)
	gw := &fakeGateway{}
	sink := &recordingSink{}
	ex := executor.New(l, gw, nil, sink, paperCfg())

	trade, err := ex.Execute(context.Background(), buyIntent(3, 20)) // 60 > cap 50
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRejected)

	var rej *domain.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "exceeds max position size", rej.Reason)

	assert.Equal(t, domain.TradeFailed, trade.Status)
	assert.Equal(t, "exceeds max position size", trade.FailureReason)
	assert.Zero(t, gw.count())
	assert.Empty(t, l.Snapshot().Positions)
	require.Len(t, sink.trades(), 1)
	assert.Equal(t, domain.TradeFailed, sink.trades()[0].Status)
}

func TestExecute_TimeoutLeavesLedgerUntouched(t *testing.T) {
	l := ledger.New(1000)
	gw := &fakeGateway{hang: true}
	ex := executor.New(l, gw, nil, nil, paperCfg())

	trade, err := ex.Execute(context.Background(), buyIntent(1, 20))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionTimeout)
	assert.Equal(t, domain.TradeFailed, trade.Status)

	snap := l.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.InFlight)
	assert.InDelta(t, 1000.0, snap.AvailableBalance, 1e-9)
	assert.Equal(t, 1, gw.count(), "no automatic retry")
}

func TestExecute_GatewayFailures(t *testing.T) {
	cases := map[string]*fakeGateway{
		"submit error":   {submitErr: errors.New("rpc down")},
		"venue rejected": {status: ports.SettlementFailed},
		"partial fill":   {fillRatio: 0.5},
	}
	for name, gw := range cases {
		t.Run(name, func(t *testing.T) {
			l := ledger.New(1000)
			ex := executor.New(l, gw, nil, nil, paperCfg())

			trade, err := ex.Execute(context.Background(), buyIntent(1, 20))
			assert.ErrorIs(t, err, domain.ErrExecutionFailed)
			assert.Equal(t, domain.TradeFailed, trade.Status)
			assert.NotEmpty(t, trade.FailureReason)
			assert.Empty(t, l.Snapshot().Positions)
			assert.Empty(t, l.Snapshot().InFlight)
		})
	}
}

func TestExecute_HaltedLedgerRejects(t *testing.T) {
	l := ledger.New(1000)
	ex := executor.New(l, &fakeGateway{}, nil, nil, paperCfg())

	_, err := ex.Execute(context.Background(), buyIntent(2, 20))
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), domain.TradeIntent{Token: "SOL", Side: domain.SideSell, Amount: 2, Price: 5})
	require.NoError(t, err) // realized -30 vs limit 20

	_, err = ex.Execute(context.Background(), buyIntent(0.5, 5))
	assert.ErrorIs(t, err, domain.ErrHalted)
}

func TestExecute_ConcurrentIntentsCannotOverCommit(t *testing.T) {
	risk := domain.DefaultRiskConfig()
	risk.MaxPositionSize = 1
	risk.ReserveBalance = 0
	cfg := executor.Config{Risk: risk, ConfirmTimeout: time.Second}

	l := ledger.New(100)
	gw := &fakeGateway{awaitDelay: 20 * time.Millisecond}
	ex := executor.New(l, gw, nil, nil, cfg)

	// each buy is worth 40; only two fit in 100 of balance
	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ex.Execute(context.Background(), buyIntent(2, 20))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrRejected)
	}
	assert.Equal(t, 2, ok)
	snap := l.Snapshot()
	assert.InDelta(t, 4.0, snap.Positions["SOL"].Amount, 1e-9)
	assert.GreaterOrEqual(t, snap.AvailableBalance, 0.0)
}

func TestExecute_CancelledContextDoesNotAbandonSubmittedTrade(t *testing.T) {
	l := ledger.New(1000)
	gw := &fakeGateway{awaitDelay: 30 * time.Millisecond}
	ex := executor.New(l, gw, nil, nil, paperCfg())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	trade, err := ex.Execute(ctx, buyIntent(1, 20))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeExecuted, trade.Status)
}

// refusingLedger books nothing: the venue settles but ApplyTrade fails.
type refusingLedger struct {
	*ledger.Ledger
}

func (refusingLedger) ApplyTrade(domain.Trade) (domain.Trade, error) {
	return domain.Trade{}, errors.New("position vanished")
}

func TestExecute_RefusedSettlementStillEmitsTradeEvent(t *testing.T) {
	l := ledger.New(1000)
	store := newMemTrades()
	sink := &recordingSink{}
	ex := executor.New(refusingLedger{l}, &fakeGateway{}, store, sink, paperCfg())

	trade, err := ex.Execute(context.Background(), buyIntent(1, 20))
	require.Error(t, err)
	assert.Equal(t, domain.TradeExecuted, trade.Status)
	assert.Equal(t, domain.TradeExecuted, store.byID[trade.ID].Status)

	require.Len(t, sink.trades(), 1, "every terminal trade is published")
	assert.Equal(t, trade.ID, sink.trades()[0].ID)
	kinds := make([]domain.EventKind, 0, len(sink.events))
	for _, ev := range sink.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventError)
	assert.Empty(t, l.Snapshot().InFlight, "reservation released")
	assert.InDelta(t, 1000.0, l.Snapshot().AvailableBalance, 1e-9)
}

func TestSlippageBps(t *testing.T) {
	assert.Equal(t, 100, executor.SlippageBps(0.01))
	assert.Equal(t, 50, executor.SlippageBps(0.005))
	assert.Equal(t, 0, executor.SlippageBps(0))
}
