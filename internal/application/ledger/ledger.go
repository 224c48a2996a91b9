// Package ledger owns the canonical portfolio state. Every balance and position
// mutation goes through a Ledger under a single mutex.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
)

// dust absorbs float residue left by amounts summed over several buys.
const dust = 1e-12

// Ledger is the single writer of portfolio state.
type Ledger struct {
	mu sync.Mutex

	positions map[string]domain.Position
	balance   float64
	dailyPnL  float64
	startDay  float64
	day       time.Time
	inFlight  map[string]domain.Trade
	version   uint64

	store     ports.LedgerStore // optional
	persistMu sync.Mutex
	persisted uint64
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore persists the state after every mutation.
func WithStore(s ports.LedgerStore) Option {
	return func(l *Ledger) { l.store = s }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger holding only quote balance.
func New(initialBalance float64, opts ...Option) *Ledger {
	l := &Ledger{
		positions: make(map[string]domain.Position),
		balance:   initialBalance,
		inFlight:  make(map[string]domain.Trade),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.startDay = initialBalance
	l.day = dayOf(l.now())
	return l
}

// Restore rebuilds a ledger from a persisted portfolio. In-flight trades are
// not restored: a trade that never reached a terminal status before shutdown
// was not applied and must be resubmitted explicitly.
func Restore(p domain.Portfolio, opts ...Option) *Ledger {
	l := New(p.AvailableBalance, opts...)
	l.positions = p.Clone().Positions
	l.dailyPnL = p.DailyPnL
	l.startDay = p.StartOfDayValue
	if !p.Day.IsZero() {
		l.day = dayOf(p.Day)
	}
	return l
}

// Snapshot returns a consistent point-in-time copy of the portfolio.
func (l *Ledger) Snapshot() domain.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() domain.Portfolio {
	p := domain.Portfolio{
		Positions:        make(map[string]domain.Position, len(l.positions)),
		AvailableBalance: l.balance,
		DailyPnL:         l.dailyPnL,
		StartOfDayValue:  l.startDay,
		Day:              l.day,
		TakenAt:          l.now(),
	}
	for tok, pos := range l.positions {
		p.Positions[tok] = pos
	}
	for _, t := range l.inFlight {
		p.InFlight = append(p.InFlight, t)
	}
	slices.SortFunc(p.InFlight, func(a, b domain.Trade) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	p.TotalValue = p.AvailableBalance + p.PositionsValue()
	return p
}

// Admit re-validates trade against the freshest snapshot under the ledger lock
// and, when approved, reserves its balance or position until ApplyTrade or
// Release. The validate func must not block.
func (l *Ledger) Admit(trade domain.Trade, validate func(domain.Portfolio) domain.Verdict) domain.Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.inFlight[trade.ID]; dup {
		return domain.Verdict{Check: domain.CheckNone, Reason: "trade already in flight"}
	}
	v := validate(l.snapshotLocked())
	if !v.Approved {
		return v
	}
	l.inFlight[trade.ID] = trade
	return v
}

// Release drops the reservation of a trade that did not settle.
func (l *Ledger) Release(tradeID string) {
	l.mu.Lock()
	delete(l.inFlight, tradeID)
	l.mu.Unlock()
}

// ApplyTrade books an executed trade. It is the only path that changes
// positions and balance, and calls are serialized.
func (l *Ledger) ApplyTrade(trade domain.Trade) (domain.Trade, error) {
	if trade.Status != domain.TradeExecuted {
		return trade, fmt.Errorf("ledger.ApplyTrade: trade %s is %s, not executed", trade.ID, trade.Status)
	}
	if trade.Amount <= 0 || trade.Price <= 0 {
		return trade, fmt.Errorf("ledger.ApplyTrade: trade %s has amount %v price %v", trade.ID, trade.Amount, trade.Price)
	}

	l.mu.Lock()
	var err error
	switch trade.Side {
	case domain.SideBuy:
		l.applyBuyLocked(trade)
	case domain.SideSell:
		trade.RealizedPnL, err = l.applySellLocked(trade)
	default:
		err = fmt.Errorf("ledger.ApplyTrade: unknown side %q", trade.Side)
	}
	if err != nil {
		l.mu.Unlock()
		return trade, err
	}
	delete(l.inFlight, trade.ID)
	l.version++
	snap, ver := l.snapshotLocked(), l.version
	l.mu.Unlock()

	l.persist(snap, ver)
	return trade, nil
}

func (l *Ledger) applyBuyLocked(t domain.Trade) {
	now := l.now()
	pos, ok := l.positions[t.Token]
	if !ok {
		pos = domain.Position{Token: t.Token, OpenedAt: now}
	}
	newAmount := pos.Amount + t.Amount
	pos.AverageEntryPrice = (pos.Amount*pos.AverageEntryPrice + t.Amount*t.Price) / newAmount
	pos.Amount = newAmount
	pos.MarkPrice = t.Price
	pos.LastUpdated = now
	l.positions[t.Token] = pos
	l.balance -= t.Amount * t.Price
}

func (l *Ledger) applySellLocked(t domain.Trade) (float64, error) {
	pos, ok := l.positions[t.Token]
	if !ok {
		return 0, fmt.Errorf("ledger.ApplyTrade: sell %s without position", t.Token)
	}
	if t.Amount > pos.Amount+dust {
		return 0, fmt.Errorf("ledger.ApplyTrade: sell %v %s exceeds held %v", t.Amount, t.Token, pos.Amount)
	}

	pnl := (t.Price - pos.AverageEntryPrice) * t.Amount
	l.dailyPnL += pnl
	l.balance += t.Amount * t.Price

	pos.Amount -= t.Amount
	if pos.Amount <= dust {
		delete(l.positions, t.Token)
		return pnl, nil
	}
	pos.MarkPrice = t.Price
	pos.LastUpdated = l.now()
	l.positions[t.Token] = pos
	return pnl, nil
}

// Mark revalues a held position at price. Unknown tokens are ignored.
func (l *Ledger) Mark(token string, price float64) {
	if price <= 0 || math.IsNaN(price) {
		return
	}
	l.mu.Lock()
	pos, ok := l.positions[token]
	if ok {
		pos.MarkPrice = price
		l.positions[token] = pos
	}
	l.mu.Unlock()
}

// ShouldHaltTrading reports whether the daily loss limit has been reached.
func (l *Ledger) ShouldHaltTrading(cfg domain.RiskConfig) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyPnL <= -cfg.MaxDailyLoss*l.startDay
}

// ResetDailyCounters starts a new accounting day at now.
func (l *Ledger) ResetDailyCounters(now time.Time) {
	l.mu.Lock()
	l.resetLocked(now)
	snap, ver := l.snapshotLocked(), l.version
	l.mu.Unlock()
	l.persist(snap, ver)
}

func (l *Ledger) resetLocked(now time.Time) {
	p := l.balance
	for _, pos := range l.positions {
		p += pos.Value()
	}
	l.dailyPnL = 0
	l.startDay = p
	l.day = dayOf(now)
	l.version++
}

// RollDay resets the daily counters when now falls on a later UTC day than the
// current accounting day. It returns the closed day's snapshot and true when a
// reset happened. Calling it repeatedly within one day is a no-op.
func (l *Ledger) RollDay(now time.Time) (domain.Portfolio, bool) {
	l.mu.Lock()
	if !dayOf(now).After(l.day) {
		l.mu.Unlock()
		return domain.Portfolio{}, false
	}
	closed := l.snapshotLocked()
	l.resetLocked(now)
	snap, ver := l.snapshotLocked(), l.version
	l.mu.Unlock()

	l.persist(snap, ver)
	return closed, true
}

// persist writes snapshots in version order; a snapshot older than the last
// one written is dropped.
func (l *Ledger) persist(p domain.Portfolio, ver uint64) {
	if l.store == nil {
		return
	}
	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	if ver <= l.persisted {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.SaveLedger(ctx, p); err != nil {
		slog.Warn("ledger: persist failed", "err", err)
		return
	}
	l.persisted = ver
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
