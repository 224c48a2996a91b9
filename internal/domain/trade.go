package domain

import (
	"fmt"
	"time"
)

// Side is the direction of a trade against the quote asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeStatus is the lifecycle of a trade: pending → executed | failed.
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeExecuted TradeStatus = "executed"
	TradeFailed   TradeStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TradeStatus) Terminal() bool {
	return s == TradeExecuted || s == TradeFailed
}

// Trade is a single swap against the settlement gateway.
type Trade struct {
	ID            string
	Side          Side
	Token         string
	Amount        float64
	Price         float64
	Value         float64 // Amount × Price
	Status        TradeStatus
	SettlementRef string
	FailureReason string
	SignalID      string
	RealizedPnL   float64 // sells only, set by the ledger
	Timestamp     time.Time
}

// NewPendingTrade creates a pending trade from an intent.
func NewPendingTrade(id string, intent TradeIntent, now time.Time) Trade {
	t := Trade{
		ID:        id,
		Side:      intent.Side,
		Token:     intent.Token,
		Amount:    intent.Amount,
		Price:     intent.Price,
		Value:     intent.Value(),
		Status:    TradePending,
		Timestamp: now,
	}
	if intent.Signal != nil {
		t.SignalID = intent.Signal.ID
	}
	return t
}

// Transition moves the trade to a terminal status. Terminal trades never change again.
func (t *Trade) Transition(to TradeStatus) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, t.Status)
	}
	if !to.Terminal() {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// Fail marks the trade failed with the given reason.
func (t *Trade) Fail(reason string) error {
	if err := t.Transition(TradeFailed); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

// Fill records the executed amount and price and marks the trade executed.
func (t *Trade) Fill(amount, price float64, ref string) error {
	if err := t.Transition(TradeExecuted); err != nil {
		return err
	}
	t.Amount = amount
	t.Price = price
	t.Value = amount * price
	t.SettlementRef = ref
	return nil
}
