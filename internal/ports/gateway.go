package ports

import (
	"context"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// SwapRequest asks the settlement gateway to swap between the quote asset and a token.
type SwapRequest struct {
	TradeID     string
	Token       string
	Side        domain.Side
	Amount      float64 // token units
	Price       float64 // expected price, quote per token
	SlippageBps int
}

// SwapReceipt is returned once the gateway accepted the swap for settlement.
type SwapReceipt struct {
	Reference string
}

// SettlementStatus is the final state reported by the gateway.
type SettlementStatus string

const (
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementFailed    SettlementStatus = "failed"
)

// Settlement is the confirmed outcome of a swap.
type Settlement struct {
	Reference    string
	Status       SettlementStatus
	FilledAmount float64 // token units
	Price        float64 // executed price, quote per token
	Reason       string
}

// SettlementGateway executes swaps on an external venue.
type SettlementGateway interface {
	// Submit sends the swap and returns as soon as the venue accepted it.
	Submit(ctx context.Context, req SwapRequest) (SwapReceipt, error)

	// Await blocks until the swap is settled or ctx is done.
	Await(ctx context.Context, ref string) (Settlement, error)
}
