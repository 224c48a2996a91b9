package domain

import "time"

// EventKind is the type of notification emitted by the pipeline.
type EventKind string

const (
	EventTrade        EventKind = "trade"
	EventSignal       EventKind = "signal"
	EventError        EventKind = "error"
	EventPortfolio    EventKind = "portfolio"
	EventDailySummary EventKind = "daily_summary"
)

// Event is a fire-and-forget notification. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	Trade     *Trade
	Signal    *Signal
	Portfolio *Portfolio
	Summary   *DailySummary

	Title   string // error events
	Message string
}

// DailySummary is the accounting of one closed day.
type DailySummary struct {
	Date           time.Time
	StartValue     float64
	EndValue       float64
	RealizedPnL    float64
	TradesExecuted int
	TradesFailed   int
	Wins           int
	Losses         int
	OpenPositions  int
}

// ReturnPercent is the day's change relative to the start value.
func (d DailySummary) ReturnPercent() float64 {
	if d.StartValue == 0 {
		return 0
	}
	return (d.EndValue - d.StartValue) / d.StartValue * 100
}

// TradeStats aggregates the trade history for read-only projections.
type TradeStats struct {
	TotalTrades     int
	Executed        int
	Failed          int
	Buys            int
	Sells           int
	Wins            int
	Losses          int
	WinRate         float64 // percent of closed sells with positive PnL
	RealizedPnL     float64
	VolumeTraded    float64
	SignalsTotal    int
	SignalsDegraded int
	FirstTradeAt    time.Time
	LastTradeAt     time.Time
}
