package ports

import (
	"context"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// MarketFeed provides prices and price history for a token.
type MarketFeed interface {
	// Ticker returns the latest 24h ticker for the token.
	Ticker(ctx context.Context, token string) (domain.Ticker, error)

	// History returns the last limit candles, oldest first.
	History(ctx context.Context, token string, limit int) ([]domain.Candle, error)
}
