// Package executor submits validated intents to the settlement gateway and
// books confirmed outcomes on the ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/risk"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/alejandrodnm/llmtrader/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	fillTolerance         = 1e-9
)

// Ledger is the subset of the ledger the executor writes to.
type Ledger interface {
	Admit(trade domain.Trade, validate func(domain.Portfolio) domain.Verdict) domain.Verdict
	Release(tradeID string)
	ApplyTrade(trade domain.Trade) (domain.Trade, error)
}

// Config holds the executor settings.
type Config struct {
	Risk           domain.RiskConfig
	ConfirmTimeout time.Duration
}

// Executor runs one trade at a time per call; concurrent calls are safe.
type Executor struct {
	ledger  Ledger
	gateway ports.SettlementGateway
	store   ports.TradeStore // optional
	events  ports.EventSink  // optional
	cfg     Config
	now     func() time.Time
}

// New creates an Executor.
func New(l Ledger, gw ports.SettlementGateway, store ports.TradeStore, events ports.EventSink, cfg Config) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	return &Executor{
		ledger:  l,
		gateway: gw,
		store:   store,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Execute takes intent to a terminal trade. It never returns a pending trade.
// The error is nil for executed trades; for failed trades it wraps
// ErrRejected, ErrHalted, ErrExecutionTimeout or ErrExecutionFailed.
// Failed executions are not retried.
func (e *Executor) Execute(ctx context.Context, intent domain.TradeIntent) (domain.Trade, error) {
	ctx, span := telemetry.StartSpan(ctx, "executor.Execute",
		attribute.String("token", intent.Token),
		attribute.String("side", string(intent.Side)),
	)
	defer span.End()
	log := telemetry.Logger(ctx)

	trade := domain.NewPendingTrade(uuid.New().String(), intent, e.now())
	e.save(ctx, trade)

	// Re-validate under the ledger lock against the freshest snapshot, which
	// already accounts for other in-flight trades.
	verdict := e.ledger.Admit(trade, func(p domain.Portfolio) domain.Verdict {
		return risk.Validate(intent, p, e.cfg.Risk)
	})
	if !verdict.Approved {
		log.Info("executor: rejected before submission",
			"trade_id", trade.ID, "token", trade.Token, "reason", verdict.Reason, "detail", verdict.Detail)
		return e.fail(ctx, trade, verdict.Reason, verdict.Err())
	}

	settlement, err := e.settle(ctx, trade)
	if err != nil {
		e.ledger.Release(trade.ID)
		log.Warn("executor: settlement failed",
			"trade_id", trade.ID, "token", trade.Token, "err", err)
		return e.fail(ctx, trade, err.Error(), err)
	}

	if err := trade.Fill(settlement.FilledAmount, settlement.Price, settlement.Reference); err != nil {
		e.ledger.Release(trade.ID)
		return trade, fmt.Errorf("executor.Execute: %w", err)
	}
	applied, err := e.ledger.ApplyTrade(trade)
	if err != nil {
		// The venue settled but the books refused it; the operator must reconcile.
		e.ledger.Release(trade.ID)
		log.Error("executor: ledger refused settled trade",
			"trade_id", trade.ID, "ref", trade.SettlementRef, "err", err)
		e.publish(domain.Event{
			Kind:      domain.EventError,
			Timestamp: e.now(),
			Title:     "ledger reconciliation required",
			Message:   fmt.Sprintf("trade %s (%s) settled as %s but was not booked: %v", trade.ID, trade.Token, trade.SettlementRef, err),
		})
		e.save(ctx, trade)
		e.publishTrade(trade)
		return trade, fmt.Errorf("executor.Execute: apply: %w", err)
	}
	trade = applied

	log.Info("trade executed",
		"trade_id", trade.ID,
		"side", trade.Side,
		"token", trade.Token,
		"amount", trade.Amount,
		"price", trade.Price,
		"value", fmt.Sprintf("%.4f", trade.Value),
		"pnl", trade.RealizedPnL,
		"ref", trade.SettlementRef,
	)
	e.save(ctx, trade)
	e.publishTrade(trade)
	return trade, nil
}

// settle submits the swap and waits for its confirmation within ConfirmTimeout.
func (e *Executor) settle(ctx context.Context, trade domain.Trade) (ports.Settlement, error) {
	req := ports.SwapRequest{
		TradeID:     trade.ID,
		Token:       trade.Token,
		Side:        trade.Side,
		Amount:      trade.Amount,
		Price:       trade.Price,
		SlippageBps: SlippageBps(e.cfg.Risk.SlippageTolerance),
	}

	receipt, err := e.gateway.Submit(ctx, req)
	if err != nil {
		return ports.Settlement{}, fmt.Errorf("%w: submit: %v", domain.ErrExecutionFailed, err)
	}

	// Once submitted, the trade runs to its terminal outcome even if the
	// pipeline is shutting down; only ConfirmTimeout bounds the wait.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ConfirmTimeout)
	defer cancel()

	s, err := e.gateway.Await(waitCtx, receipt.Reference)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return ports.Settlement{}, fmt.Errorf("%w: no confirmation for %s within %s",
			domain.ErrExecutionTimeout, receipt.Reference, e.cfg.ConfirmTimeout)
	case err != nil:
		return ports.Settlement{}, fmt.Errorf("%w: await %s: %v", domain.ErrExecutionFailed, receipt.Reference, err)
	}

	if s.Reference == "" {
		s.Reference = receipt.Reference
	}
	if s.Status != ports.SettlementConfirmed {
		return ports.Settlement{}, fmt.Errorf("%w: %s: %s", domain.ErrExecutionFailed, s.Reference, s.Reason)
	}
	// Partial fills have no reconciliation policy yet and are treated as failures.
	if math.Abs(s.FilledAmount-trade.Amount) > fillTolerance*math.Max(1, trade.Amount) {
		return ports.Settlement{}, fmt.Errorf("%w: partial fill %v of %v (%s)",
			domain.ErrExecutionFailed, s.FilledAmount, trade.Amount, s.Reference)
	}
	if s.Price <= 0 {
		s.Price = trade.Price
	}
	s.FilledAmount = trade.Amount
	return s, nil
}

func (e *Executor) fail(ctx context.Context, trade domain.Trade, reason string, cause error) (domain.Trade, error) {
	if err := trade.Fail(reason); err != nil {
		return trade, fmt.Errorf("executor.Execute: %w", err)
	}
	e.save(ctx, trade)
	e.publishTrade(trade)
	return trade, fmt.Errorf("executor.Execute: %w", cause)
}

func (e *Executor) save(ctx context.Context, trade domain.Trade) {
	if e.store == nil {
		return
	}
	// A cancelled pipeline context must not lose the terminal record.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.SaveTrade(saveCtx, trade); err != nil {
		slog.Warn("executor: save trade failed", "trade_id", trade.ID, "status", trade.Status, "err", err)
	}
}

func (e *Executor) publishTrade(trade domain.Trade) {
	e.publish(domain.Event{Kind: domain.EventTrade, Timestamp: e.now(), Trade: &trade})
}

func (e *Executor) publish(ev domain.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// SlippageBps converts a slippage fraction to basis points, rounding up.
func SlippageBps(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	return int(math.Ceil(fraction*10_000 - 1e-9))
}
