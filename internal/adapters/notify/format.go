package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

const maxReasoning = 200

// message is the channel-neutral rendering of an event.
type message struct {
	Title  string
	Color  int // discord embed color
	Fields [][2]string
	Body   string
}

const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorGrey   = 0x95a5a6
	colorBlue   = 0x3498db
	colorOrange = 0xe67e22
)

// render builds the plain-text message of ev. ok is false for events that
// carry no payload.
func render(ev domain.Event) (message, bool) {
	switch ev.Kind {
	case domain.EventTrade:
		if ev.Trade == nil {
			return message{}, false
		}
		return renderTrade(*ev.Trade), true
	case domain.EventSignal:
		if ev.Signal == nil {
			return message{}, false
		}
		return renderSignal(*ev.Signal), true
	case domain.EventPortfolio:
		if ev.Portfolio == nil {
			return message{}, false
		}
		return renderPortfolio(*ev.Portfolio), true
	case domain.EventDailySummary:
		if ev.Summary == nil {
			return message{}, false
		}
		return renderSummary(*ev.Summary), true
	case domain.EventError:
		return message{Title: "⚠ " + ev.Title, Color: colorOrange, Body: ev.Message}, true
	}
	return message{}, false
}

func renderTrade(t domain.Trade) message {
	m := message{Title: fmt.Sprintf("Trade %s %s %s", strings.ToUpper(string(t.Side)), t.Token, t.Status)}
	switch {
	case t.Status == domain.TradeFailed:
		m.Color = colorRed
	case t.Side == domain.SideBuy:
		m.Color = colorGreen
	default:
		m.Color = colorBlue
	}
	m.Fields = [][2]string{
		{"Amount", fmt.Sprintf("%.6f", t.Amount)},
		{"Price", usd(t.Price)},
		{"Value", usd(t.Value)},
	}
	if t.Side == domain.SideSell && t.Status == domain.TradeExecuted {
		m.Fields = append(m.Fields, [2]string{"PnL", usd(t.RealizedPnL)})
	}
	if t.SettlementRef != "" {
		m.Fields = append(m.Fields, [2]string{"Tx", shortRef(t.SettlementRef)})
	}
	if t.FailureReason != "" {
		m.Body = t.FailureReason
	}
	return m
}

func renderSignal(s domain.Signal) message {
	m := message{
		Title: fmt.Sprintf("Signal %s %s", strings.ToUpper(string(s.Action)), s.Token),
		Color: colorGrey,
		Fields: [][2]string{
			{"Strength", string(s.Strength)},
			{"Confidence", fmt.Sprintf("%.0f%%", s.Confidence*100)},
			{"Risk", string(s.RiskLevel)},
		},
		Body: truncate(s.Reasoning, maxReasoning),
	}
	switch s.Action {
	case domain.ActionBuy:
		m.Color = colorGreen
	case domain.ActionSell:
		m.Color = colorRed
	}
	if s.EntryPrice > 0 {
		m.Fields = append(m.Fields, [2]string{"Entry", usd(s.EntryPrice)})
	}
	if s.Degraded {
		m.Title += " (degraded)"
	}
	return m
}

func renderPortfolio(p domain.Portfolio) message {
	var unrealized float64
	for _, pos := range p.Positions {
		unrealized += pos.UnrealizedPnL()
	}
	return message{
		Title: "Portfolio",
		Color: colorBlue,
		Fields: [][2]string{
			{"Total", usd(p.TotalValue)},
			{"Balance", usd(p.AvailableBalance)},
			{"Positions", fmt.Sprintf("%d", len(p.Positions))},
			{"Unrealized", usd(unrealized)},
			{"Daily PnL", fmt.Sprintf("%s (%.2f%%)", usd(p.DailyPnL), p.DailyPnLPercent())},
		},
	}
}

func renderSummary(d domain.DailySummary) message {
	color := colorGreen
	if d.EndValue < d.StartValue {
		color = colorRed
	}
	return message{
		Title: "Daily summary " + d.Date.Format(time.DateOnly),
		Color: color,
		Fields: [][2]string{
			{"Start", usd(d.StartValue)},
			{"End", usd(d.EndValue)},
			{"Return", fmt.Sprintf("%.2f%%", d.ReturnPercent())},
			{"Realized", usd(d.RealizedPnL)},
			{"Trades", fmt.Sprintf("%d ok / %d failed", d.TradesExecuted, d.TradesFailed)},
			{"W/L", fmt.Sprintf("%d/%d", d.Wins, d.Losses)},
		},
	}
}

// plain renders m as text lines for channels without embeds.
func (m message) plain() string {
	var sb strings.Builder
	sb.WriteString(m.Title)
	for _, f := range m.Fields {
		fmt.Fprintf(&sb, "\n%s: %s", f[0], f[1])
	}
	if m.Body != "" {
		sb.WriteString("\n\n" + m.Body)
	}
	return sb.String()
}

func usd(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func shortRef(ref string) string {
	if len(ref) <= 20 {
		return ref
	}
	return ref[:8] + "..." + ref[len(ref)-8:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
