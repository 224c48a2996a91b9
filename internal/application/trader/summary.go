package trader

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// Summarize builds the accounting of the closed day from its final snapshot
// and the trades recorded during it.
func Summarize(closed domain.Portfolio, trades []domain.Trade) domain.DailySummary {
	s := domain.DailySummary{
		Date:          closed.Day,
		StartValue:    closed.StartOfDayValue,
		EndValue:      closed.TotalValue,
		RealizedPnL:   closed.DailyPnL,
		OpenPositions: len(closed.Positions),
	}
	for _, tr := range trades {
		switch tr.Status {
		case domain.TradeExecuted:
			s.TradesExecuted++
			if tr.Side != domain.SideSell {
				continue
			}
			switch {
			case tr.RealizedPnL > 0:
				s.Wins++
			case tr.RealizedPnL < 0:
				s.Losses++
			}
		case domain.TradeFailed:
			s.TradesFailed++
		}
	}
	return s
}

// closeDay persists and announces the summary of the day that just ended.
func (t *Trader) closeDay(ctx context.Context, closed domain.Portfolio) {
	var trades []domain.Trade
	if t.deps.Trades != nil {
		var err error
		trades, err = t.deps.Trades.TradesBetween(ctx, closed.Day, closed.Day.Add(24*time.Hour))
		if err != nil {
			slog.Warn("daily summary: load trades failed", "day", closed.Day.Format(time.DateOnly), "err", err)
		}
	}

	sum := Summarize(closed, trades)
	if t.deps.Summaries != nil {
		if err := t.deps.Summaries.SaveDailySummary(ctx, sum); err != nil {
			slog.Warn("daily summary: save failed", "day", sum.Date.Format(time.DateOnly), "err", err)
		}
	}

	slog.Info("day closed",
		"day", sum.Date.Format(time.DateOnly),
		"start_value", sum.StartValue,
		"end_value", sum.EndValue,
		"realized_pnl", sum.RealizedPnL,
		"executed", sum.TradesExecuted,
		"failed", sum.TradesFailed,
	)
	t.publish(domain.Event{Kind: domain.EventDailySummary, Timestamp: t.now(), Summary: &sum})
}
