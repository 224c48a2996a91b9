package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/llmtrader/config"
	"github.com/alejandrodnm/llmtrader/internal/adapters/notify"
	"github.com/alejandrodnm/llmtrader/internal/adapters/storage"
)

const (
	reportTrades = 20
	reportDays   = 14
)

// printReport imprime el estado persistido sin arrancar el trader.
func printReport(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("printReport: storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	console := notify.NewConsole(true, false)

	p, ok, err := store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("printReport: %w", err)
	}
	if ok {
		console.PrintPortfolio(p)
	} else {
		fmt.Println("no ledger persisted yet")
	}

	stats, err := store.TradeStats(ctx)
	if err != nil {
		return fmt.Errorf("printReport: %w", err)
	}
	console.PrintStats(stats)

	trades, err := store.ListTrades(ctx, reportTrades)
	if err != nil {
		return fmt.Errorf("printReport: %w", err)
	}
	console.PrintTrades(trades)

	days, err := store.DailySummaries(ctx, reportDays)
	if err != nil {
		return fmt.Errorf("printReport: %w", err)
	}
	console.PrintSummaries(days)
	return nil
}
