package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo a un terminal.
type Console struct {
	out     io.Writer
	table   bool
	signals bool
}

// NewConsole crea un notificador que escribe a stdout. Con table=true los
// eventos de portfolio y resumen diario se imprimen como tablas; con
// signals=false las señales no se imprimen.
func NewConsole(table, signals bool) *Console {
	return &Console{out: os.Stdout, table: table, signals: signals}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, signals: true}
}

// Notify imprime el evento.
func (c *Console) Notify(_ context.Context, ev domain.Event) error {
	if ev.Kind == domain.EventSignal && !c.signals {
		return nil
	}
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if c.table {
		switch {
		case ev.Kind == domain.EventPortfolio && ev.Portfolio != nil:
			c.PrintPortfolio(*ev.Portfolio)
			return nil
		case ev.Kind == domain.EventDailySummary && ev.Summary != nil:
			c.PrintSummaries([]domain.DailySummary{*ev.Summary})
			return nil
		}
	}

	m, ok := render(ev)
	if !ok {
		return nil
	}
	fmt.Fprintln(c.out, c.compact(now, m))
	return nil
}

// compact imprime lo esencial en una línea.
func (c *Console) compact(now time.Time, m message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", now.Format("15:04:05"), m.Title)
	for _, f := range m.Fields {
		fmt.Fprintf(&sb, " | %s %s", strings.ToLower(f[0]), f[1])
	}
	if m.Body != "" {
		fmt.Fprintf(&sb, "\n  >> %s", m.Body)
	}
	return sb.String()
}

// PrintPortfolio imprime las posiciones y los totales del ledger.
func (c *Console) PrintPortfolio(p domain.Portfolio) {
	fmt.Fprintf(c.out, "\n[%s] portfolio - total %s | balance %s | daily pnl %s (%.2f%%)\n",
		p.TakenAt.Format("15:04:05"), usd(p.TotalValue), usd(p.AvailableBalance),
		usd(p.DailyPnL), p.DailyPnLPercent())

	if len(p.Positions) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	tokens := make([]string, 0, len(p.Positions))
	for tok := range p.Positions {
		tokens = append(tokens, tok)
	}
	slices.Sort(tokens)

	table := tablewriter.NewWriter(c.out)
	table.Header("Token", "Amount", "Avg entry", "Mark", "Value", "Unrealized", "Opened")
	for _, tok := range tokens {
		pos := p.Positions[tok]
		table.Append(
			tok,
			fmt.Sprintf("%.6f", pos.Amount),
			fmt.Sprintf("%.6f", pos.AverageEntryPrice),
			fmt.Sprintf("%.6f", pos.MarkPrice),
			usd(pos.Value()),
			usd(pos.UnrealizedPnL()),
			pos.OpenedAt.Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintTrades imprime el historial de trades, el más reciente primero.
func (c *Console) PrintTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "\n  No trades recorded yet.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Token", "Amount", "Price", "Value", "PnL", "Status", "Tx")
	for _, t := range trades {
		pnl := "-"
		if t.Side == domain.SideSell && t.Status == domain.TradeExecuted {
			pnl = usd(t.RealizedPnL)
		}
		status := string(t.Status)
		if t.FailureReason != "" {
			status += ": " + truncate(t.FailureReason, 30)
		}
		table.Append(
			t.Timestamp.Format("01-02 15:04"),
			string(t.Side),
			t.Token,
			fmt.Sprintf("%.6f", t.Amount),
			fmt.Sprintf("%.6f", t.Price),
			usd(t.Value),
			pnl,
			status,
			shortRef(t.SettlementRef),
		)
	}
	table.Render()
}

// PrintStats imprime las métricas agregadas del historial.
func (c *Console) PrintStats(s domain.TradeStats) {
	fmt.Fprintf(c.out, "\n  --- AGGREGATE ---\n")
	fmt.Fprintf(c.out, "  Trades:           %d (%d executed, %d failed)\n", s.TotalTrades, s.Executed, s.Failed)
	fmt.Fprintf(c.out, "  Buys / sells:     %d / %d\n", s.Buys, s.Sells)
	fmt.Fprintf(c.out, "  Wins / losses:    %d / %d (win rate %.1f%%)\n", s.Wins, s.Losses, s.WinRate)
	fmt.Fprintf(c.out, "  Realized PnL:     %s\n", usd(s.RealizedPnL))
	fmt.Fprintf(c.out, "  Volume traded:    %s\n", usd(s.VolumeTraded))
	fmt.Fprintf(c.out, "  Signals:          %d (%d degraded)\n", s.SignalsTotal, s.SignalsDegraded)
	if !s.FirstTradeAt.IsZero() {
		fmt.Fprintf(c.out, "  Period:           %s to %s\n",
			s.FirstTradeAt.Format(time.DateOnly), s.LastTradeAt.Format(time.DateOnly))
	}
	fmt.Fprintln(c.out)
}

// PrintSummaries imprime una fila por día cerrado.
func (c *Console) PrintSummaries(days []domain.DailySummary) {
	if len(days) == 0 {
		fmt.Fprintln(c.out, "\n  No closed days yet.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Start", "End", "Return", "Realized", "Exec", "Fail", "W/L", "Open")
	for _, d := range days {
		table.Append(
			d.Date.Format(time.DateOnly),
			usd(d.StartValue),
			usd(d.EndValue),
			fmt.Sprintf("%.2f%%", d.ReturnPercent()),
			usd(d.RealizedPnL),
			fmt.Sprintf("%d", d.TradesExecuted),
			fmt.Sprintf("%d", d.TradesFailed),
			fmt.Sprintf("%d/%d", d.Wins, d.Losses),
			fmt.Sprintf("%d", d.OpenPositions),
		)
	}
	table.Render()
}
