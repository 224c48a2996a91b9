package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// TradeStore persists trades and their terminal outcome.
type TradeStore interface {
	SaveTrade(ctx context.Context, t domain.Trade) error
	ListTrades(ctx context.Context, limit int) ([]domain.Trade, error)
	TradesBetween(ctx context.Context, from, to time.Time) ([]domain.Trade, error)
	TradeStats(ctx context.Context) (domain.TradeStats, error)
}

// SignalStore keeps the signal history.
type SignalStore interface {
	SaveSignal(ctx context.Context, s domain.Signal) error
	ListSignals(ctx context.Context, token string, limit int) ([]domain.Signal, error)
}

// LedgerStore persists the ledger state so it survives restarts.
type LedgerStore interface {
	SaveLedger(ctx context.Context, p domain.Portfolio) error
	LoadLedger(ctx context.Context) (domain.Portfolio, bool, error)
}

// SummaryStore keeps one accounting row per closed day.
type SummaryStore interface {
	SaveDailySummary(ctx context.Context, d domain.DailySummary) error
	DailySummaries(ctx context.Context, days int) ([]domain.DailySummary, error)
}

// Storage is everything the sqlite adapter provides.
type Storage interface {
	TradeStore
	SignalStore
	LedgerStore
	SummaryStore

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
