// Package trader schedules the per-token pipelines:
// collect → synthesize → form intent → gate → execute.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/risk"
	"github.com/alejandrodnm/llmtrader/internal/application/signal"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
)

// Collector produces the market view of one token.
type Collector interface {
	Collect(ctx context.Context, token string) (domain.MarketData, error)
}

// Synthesizer turns market data into a signal. It never fails.
type Synthesizer interface {
	Generate(ctx context.Context, md domain.MarketData, pc signal.PortfolioContext) domain.Signal
}

// Executor takes an intent to a terminal trade.
type Executor interface {
	Execute(ctx context.Context, intent domain.TradeIntent) (domain.Trade, error)
}

// Ledger is the read side of the ledger plus the day boundary.
type Ledger interface {
	Snapshot() domain.Portfolio
	RollDay(now time.Time) (domain.Portfolio, bool)
}

// Config contiene la configuración del trader.
type Config struct {
	Tokens   []string
	Interval time.Duration
	Workers  int // pipelines en paralelo (0 = NumCPU)
	Risk     domain.RiskConfig
}

// Deps are the collaborators of a Trader. Stores and Events are optional.
type Deps struct {
	Collector   Collector
	Synthesizer Synthesizer
	Executor    Executor
	Ledger      Ledger

	Trades    ports.TradeStore
	Signals   ports.SignalStore
	Summaries ports.SummaryStore
	Events    ports.EventSink
}

// Trader es el orquestador del loop de trading.
type Trader struct {
	cfg  Config
	deps Deps
	gate *risk.Gatekeeper
	now  func() time.Time
}

// CycleReport counts what happened to each token in one cycle.
type CycleReport struct {
	Tokens    int
	Skipped   int // market data unavailable
	Signals   int
	Degraded  int
	Intents   int
	Rejected  int // by the gatekeeper or at admission
	Executed  int
	Failed    int
	StopLoss  int
	Halted    bool
	RolledDay bool
	Duration  time.Duration
}

// Option configures a Trader.
type Option func(*Trader)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(t *Trader) { t.now = now } }

// New creates a Trader.
func New(cfg Config, deps Deps, opts ...Option) *Trader {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	t := &Trader{
		cfg:  cfg,
		deps: deps,
		gate: risk.NewGatekeeper(cfg.Risk),
		now:  time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Run ejecuta ciclos cada Interval hasta que el contexto se cancele.
func (t *Trader) Run(ctx context.Context) error {
	slog.Info("trader starting",
		"tokens", t.cfg.Tokens,
		"interval", t.cfg.Interval,
		"workers", t.cfg.Workers,
		"environment", t.cfg.Risk.Environment,
	)

	t.runCycle(ctx)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trader stopped")
			return nil
		case <-ticker.C:
			t.runCycle(ctx)
		}
	}
}

func (t *Trader) runCycle(ctx context.Context) {
	rep, err := t.RunOnce(ctx)
	if err != nil {
		slog.Error("trading cycle failed", "err", err)
		return
	}
	slog.Info("trading cycle complete",
		"tokens", rep.Tokens,
		"skipped", rep.Skipped,
		"signals", rep.Signals,
		"degraded", rep.Degraded,
		"executed", rep.Executed,
		"rejected", rep.Rejected,
		"failed", rep.Failed,
		"stop_loss", rep.StopLoss,
		"halted", rep.Halted,
		"duration", rep.Duration.Round(time.Millisecond),
	)
}

// RunOnce runs exactly one cycle over every configured token. Per-token
// failures are absorbed into the report; the error is non-nil only when ctx
// ends before the cycle completes.
func (t *Trader) RunOnce(ctx context.Context) (CycleReport, error) {
	start := t.now()
	var rep CycleReport

	if closed, rolled := t.deps.Ledger.RollDay(start); rolled {
		rep.RolledDay = true
		t.closeDay(ctx, closed)
	}

	if t.gate.Halted(t.deps.Ledger.Snapshot()) {
		slog.Warn("trading halted: daily loss limit reached, no new intents this cycle")
		rep.Halted = true
	}

	results, err := t.runPipelines(ctx, t.cfg.Tokens)
	for _, r := range results {
		rep.add(r)
	}
	rep.Tokens = len(t.cfg.Tokens)
	rep.Duration = t.now().Sub(start)

	snap := t.deps.Ledger.Snapshot()
	t.publish(domain.Event{Kind: domain.EventPortfolio, Timestamp: t.now(), Portfolio: &snap})
	if err != nil {
		return rep, fmt.Errorf("trader.RunOnce: %w", err)
	}
	return rep, nil
}

// outcome is what one token pipeline produced.
type outcome struct {
	skipped  bool
	signal   *domain.Signal
	intent   bool
	stopLoss bool
	rejected bool
	executed bool
	failed   bool
	halted   bool
}

func (r *CycleReport) add(o outcome) {
	if o.skipped {
		r.Skipped++
	}
	if o.signal != nil {
		r.Signals++
		if o.signal.Degraded {
			r.Degraded++
		}
	}
	if o.intent {
		r.Intents++
	}
	if o.stopLoss {
		r.StopLoss++
	}
	if o.rejected {
		r.Rejected++
	}
	if o.executed {
		r.Executed++
	}
	if o.failed {
		r.Failed++
	}
	if o.halted {
		r.Halted = true
	}
}

// pipeline runs the stages for one token sequentially.
func (t *Trader) pipeline(ctx context.Context, token string) outcome {
	var out outcome
	log := slog.With("token", token)

	md, err := t.deps.Collector.Collect(ctx, token)
	if err != nil {
		log.Warn("market data unavailable, skipping token", "err", err)
		out.skipped = true
		return out
	}

	snap := t.deps.Ledger.Snapshot()
	if t.gate.Halted(snap) {
		out.halted = true
		return out
	}

	if intent, ok := StopLossIntent(snap, token, md.Price, t.cfg.Risk); ok {
		log.Warn("stop loss triggered",
			"avg_entry", snap.Positions[token].AverageEntryPrice,
			"price", md.Price,
			"amount", intent.Amount,
		)
		out.stopLoss = true
		out.intent = true
		t.submit(ctx, intent, &out)
		return out
	}

	sig := t.deps.Synthesizer.Generate(ctx, md, signal.ContextFor(snap, token))
	out.signal = &sig
	t.recordSignal(ctx, sig)

	if !sig.Actionable() {
		log.Debug("signal not actionable", "action", sig.Action, "strength", sig.Strength, "degraded", sig.Degraded)
		return out
	}

	// The oracle may have taken seconds; size and gate against fresh state.
	snap = t.deps.Ledger.Snapshot()
	if t.gate.Halted(snap) {
		out.halted = true
		return out
	}
	intent, ok := FormIntent(sig, md.Price, snap, t.cfg.Risk)
	if !ok {
		log.Debug("no intent formed", "action", sig.Action)
		return out
	}
	out.intent = true

	if v := t.gate.Validate(intent, snap); !v.Approved {
		log.Info("intent rejected",
			"side", intent.Side,
			"amount", intent.Amount,
			"value", fmt.Sprintf("%.4f", intent.Value()),
			"reason", v.Reason,
			"detail", v.Detail,
		)
		out.rejected = true
		return out
	}

	t.submit(ctx, intent, &out)
	return out
}

func (t *Trader) submit(ctx context.Context, intent domain.TradeIntent, out *outcome) {
	_, err := t.deps.Executor.Execute(ctx, intent)
	switch {
	case err == nil:
		out.executed = true
	case errors.Is(err, domain.ErrHalted):
		out.rejected = true
		out.halted = true
	case errors.Is(err, domain.ErrRejected):
		out.rejected = true
	default:
		out.failed = true
		slog.Warn("trade failed", "token", intent.Token, "side", intent.Side, "err", err)
		t.publish(domain.Event{
			Kind:      domain.EventError,
			Timestamp: t.now(),
			Title:     "trade failed",
			Message:   fmt.Sprintf("%s %s %.6f: %v", intent.Side, intent.Token, intent.Amount, err),
		})
	}
}

func (t *Trader) recordSignal(ctx context.Context, sig domain.Signal) {
	if t.deps.Signals != nil {
		if err := t.deps.Signals.SaveSignal(ctx, sig); err != nil {
			slog.Warn("save signal failed", "token", sig.Token, "err", err)
		}
	}
	t.publish(domain.Event{Kind: domain.EventSignal, Timestamp: sig.Timestamp, Signal: &sig})
}

func (t *Trader) publish(ev domain.Event) {
	if t.deps.Events != nil {
		t.deps.Events.Publish(ev)
	}
}
