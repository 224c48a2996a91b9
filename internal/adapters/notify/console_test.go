package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/adapters/notify"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, 6, 2, 14, 30, 0, 0, time.UTC)

func makeTrade(side domain.Side, status domain.TradeStatus) domain.Trade {
	return domain.Trade{
		ID:            "t-1",
		Side:          side,
		Token:         "SOL",
		Amount:        1.25,
		Price:         142.5,
		Value:         178.125,
		Status:        status,
		SettlementRef: "5VfydnLu4XwV2H2dLHPv22JxhLbYJruaM9YTaGY7iTqbZkmvaEh4cJnxeY6Ps9xrv",
		RealizedPnL:   12.5,
		Timestamp:     ts,
	}
}

func TestConsole_Notify_Trade(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	trade := makeTrade(domain.SideSell, domain.TradeExecuted)
	err := n.Notify(context.Background(), domain.Event{Kind: domain.EventTrade, Timestamp: ts, Trade: &trade})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[14:30:00]")
	assert.Contains(t, out, "Trade SELL SOL executed")
	assert.Contains(t, out, "$142.50")
	assert.Contains(t, out, "pnl $12.50")
	assert.Contains(t, out, "5Vfydn", "settlement ref is shortened")
	assert.Contains(t, out, "...")
}

func TestConsole_Notify_FailedTradeShowsReason(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	trade := makeTrade(domain.SideBuy, domain.TradeFailed)
	trade.FailureReason = "exceeds max position size"
	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventTrade, Timestamp: ts, Trade: &trade}))

	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, ">> exceeds max position size")
	assert.NotContains(t, out, "pnl")
}

func TestConsole_Notify_SignalTruncatesReasoning(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	sig := domain.Signal{Token: "SOL", Action: domain.ActionBuy, Strength: domain.StrengthStrong, Confidence: 0.82,
		RiskLevel: domain.RiskLow, Reasoning: strings.Repeat("A", 300)}
	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventSignal, Timestamp: ts, Signal: &sig}))

	out := buf.String()
	assert.Contains(t, out, "Signal BUY SOL")
	assert.Contains(t, out, "82%")
	assert.NotContains(t, out, strings.Repeat("A", 201))
}

func TestConsole_Notify_PortfolioTable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	p := domain.Portfolio{
		Positions: map[string]domain.Position{
			"SOL": {Token: "SOL", Amount: 2, AverageEntryPrice: 100, MarkPrice: 110, OpenedAt: ts},
		},
		AvailableBalance: 780,
		TotalValue:       1000,
		StartOfDayValue:  1000,
		TakenAt:          ts,
	}
	require.NoError(t, n.Notify(context.Background(), domain.Event{Kind: domain.EventPortfolio, Portfolio: &p}))

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "TOKEN")
	assert.Contains(t, out, "SOL")
	assert.Contains(t, out, "$220.00")
	assert.Contains(t, out, "$20.00", "unrealized")
}

func TestConsole_PrintTrades_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintTrades(nil)
	assert.Contains(t, buf.String(), "No trades recorded yet")
}

func TestConsole_PrintSummaries(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintSummaries([]domain.DailySummary{{
		Date: ts.Truncate(24 * time.Hour), StartValue: 1000, EndValue: 1025, RealizedPnL: 25, TradesExecuted: 3, Wins: 1,
	}})
	out := buf.String()
	assert.Contains(t, out, "2026-06-02")
	assert.Contains(t, out, "2.50%")
}
