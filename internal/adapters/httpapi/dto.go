package httpapi

import (
	"slices"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/samber/lo"
)

type positionDTO struct {
	Token             string    `json:"token"`
	Amount            float64   `json:"amount"`
	AverageEntryPrice float64   `json:"average_entry_price"`
	MarkPrice         float64   `json:"mark_price"`
	Value             float64   `json:"value"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	OpenedAt          time.Time `json:"opened_at"`
	LastUpdated       time.Time `json:"last_updated"`
}

type portfolioDTO struct {
	AvailableBalance float64       `json:"available_balance"`
	PositionsValue   float64       `json:"positions_value"`
	TotalValue       float64       `json:"total_value"`
	DailyPnL         float64       `json:"daily_pnl"`
	DailyPnLPercent  float64       `json:"daily_pnl_percent"`
	StartOfDayValue  float64       `json:"start_of_day_value"`
	Day              time.Time     `json:"day"`
	Halted           bool          `json:"halted"`
	InFlight         int           `json:"in_flight"`
	Positions        []positionDTO `json:"positions"`
	TakenAt          time.Time     `json:"taken_at"`
}

type tradeDTO struct {
	ID            string    `json:"id"`
	Side          string    `json:"side"`
	Token         string    `json:"token"`
	Amount        float64   `json:"amount"`
	Price         float64   `json:"price"`
	Value         float64   `json:"value"`
	Status        string    `json:"status"`
	SettlementRef string    `json:"settlement_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	SignalID      string    `json:"signal_id,omitempty"`
	RealizedPnL   float64   `json:"realized_pnl"`
	Timestamp     time.Time `json:"timestamp"`
}

type signalDTO struct {
	ID                  string            `json:"id"`
	Token               string            `json:"token"`
	Action              string            `json:"action"`
	Strength            string            `json:"strength"`
	Confidence          float64           `json:"confidence"`
	RiskLevel           string            `json:"risk_level"`
	Reasoning           string            `json:"reasoning"`
	EntryPrice          float64           `json:"entry_price,omitempty"`
	StopLoss            float64           `json:"stop_loss,omitempty"`
	TakeProfit          float64           `json:"take_profit,omitempty"`
	PositionSizePercent float64           `json:"position_size_percent,omitempty"`
	Degraded            bool              `json:"degraded"`
	Indicators          domain.Indicators `json:"indicators"`
	Timestamp           time.Time         `json:"timestamp"`
}

type statsDTO struct {
	TotalTrades     int        `json:"total_trades"`
	Executed        int        `json:"executed"`
	Failed          int        `json:"failed"`
	Buys            int        `json:"buys"`
	Sells           int        `json:"sells"`
	Wins            int        `json:"wins"`
	Losses          int        `json:"losses"`
	WinRate         float64    `json:"win_rate"`
	RealizedPnL     float64    `json:"realized_pnl"`
	VolumeTraded    float64    `json:"volume_traded"`
	SignalsTotal    int        `json:"signals_total"`
	SignalsDegraded int        `json:"signals_degraded"`
	FirstTradeAt    *time.Time `json:"first_trade_at,omitempty"`
	LastTradeAt     *time.Time `json:"last_trade_at,omitempty"`
}

type summaryDTO struct {
	Date           string  `json:"date"`
	StartValue     float64 `json:"start_value"`
	EndValue       float64 `json:"end_value"`
	ReturnPercent  float64 `json:"return_percent"`
	RealizedPnL    float64 `json:"realized_pnl"`
	TradesExecuted int     `json:"trades_executed"`
	TradesFailed   int     `json:"trades_failed"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	OpenPositions  int     `json:"open_positions"`
}

type candleDTO struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

type marketDTO struct {
	Token       string            `json:"token"`
	Price       float64           `json:"price"`
	Volume24h   float64           `json:"volume_24h"`
	Change24h   float64           `json:"change_24h"`
	Indicators  domain.Indicators `json:"indicators"`
	History     []candleDTO       `json:"history"`
	CollectedAt time.Time         `json:"collected_at"`
}

type healthDTO struct {
	Status        string  `json:"status"`
	Environment   string  `json:"environment"`
	Halted        bool    `json:"halted"`
	OpenPositions int     `json:"open_positions"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type eventDTO struct {
	Kind      string        `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	Trade     *tradeDTO     `json:"trade,omitempty"`
	Signal    *signalDTO    `json:"signal,omitempty"`
	Portfolio *portfolioDTO `json:"portfolio,omitempty"`
	Summary   *summaryDTO   `json:"summary,omitempty"`
	Title     string        `json:"title,omitempty"`
	Message   string        `json:"message,omitempty"`
}

func toPortfolio(p domain.Portfolio, cfg domain.RiskConfig) portfolioDTO {
	positions := lo.MapToSlice(p.Positions, func(_ string, pos domain.Position) positionDTO {
		return positionDTO{
			Token:             pos.Token,
			Amount:            pos.Amount,
			AverageEntryPrice: pos.AverageEntryPrice,
			MarkPrice:         pos.MarkPrice,
			Value:             pos.Value(),
			UnrealizedPnL:     pos.UnrealizedPnL(),
			OpenedAt:          pos.OpenedAt,
			LastUpdated:       pos.LastUpdated,
		}
	})
	slices.SortFunc(positions, func(a, b positionDTO) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return 0
	})
	return portfolioDTO{
		AvailableBalance: p.AvailableBalance,
		PositionsValue:   p.PositionsValue(),
		TotalValue:       p.TotalValue,
		DailyPnL:         p.DailyPnL,
		DailyPnLPercent:  p.DailyPnLPercent(),
		StartOfDayValue:  p.StartOfDayValue,
		Day:              p.Day,
		Halted:           p.IsHalted(cfg),
		InFlight:         len(p.InFlight),
		Positions:        positions,
		TakenAt:          p.TakenAt,
	}
}

func toTrade(t domain.Trade) tradeDTO {
	return tradeDTO{
		ID:            t.ID,
		Side:          string(t.Side),
		Token:         t.Token,
		Amount:        t.Amount,
		Price:         t.Price,
		Value:         t.Value,
		Status:        string(t.Status),
		SettlementRef: t.SettlementRef,
		FailureReason: t.FailureReason,
		SignalID:      t.SignalID,
		RealizedPnL:   t.RealizedPnL,
		Timestamp:     t.Timestamp,
	}
}

func toSignal(s domain.Signal) signalDTO {
	return signalDTO{
		ID:                  s.ID,
		Token:               s.Token,
		Action:              string(s.Action),
		Strength:            string(s.Strength),
		Confidence:          s.Confidence,
		RiskLevel:           string(s.RiskLevel),
		Reasoning:           s.Reasoning,
		EntryPrice:          s.EntryPrice,
		StopLoss:            s.StopLoss,
		TakeProfit:          s.TakeProfit,
		PositionSizePercent: s.PositionSizePercent,
		Degraded:            s.Degraded,
		Indicators:          s.Indicators,
		Timestamp:           s.Timestamp,
	}
}

func toStats(s domain.TradeStats) statsDTO {
	out := statsDTO{
		TotalTrades:     s.TotalTrades,
		Executed:        s.Executed,
		Failed:          s.Failed,
		Buys:            s.Buys,
		Sells:           s.Sells,
		Wins:            s.Wins,
		Losses:          s.Losses,
		WinRate:         s.WinRate,
		RealizedPnL:     s.RealizedPnL,
		VolumeTraded:    s.VolumeTraded,
		SignalsTotal:    s.SignalsTotal,
		SignalsDegraded: s.SignalsDegraded,
	}
	if !s.FirstTradeAt.IsZero() {
		out.FirstTradeAt = lo.ToPtr(s.FirstTradeAt)
		out.LastTradeAt = lo.ToPtr(s.LastTradeAt)
	}
	return out
}

func toSummary(d domain.DailySummary) summaryDTO {
	return summaryDTO{
		Date:           d.Date.Format(time.DateOnly),
		StartValue:     d.StartValue,
		EndValue:       d.EndValue,
		ReturnPercent:  d.ReturnPercent(),
		RealizedPnL:    d.RealizedPnL,
		TradesExecuted: d.TradesExecuted,
		TradesFailed:   d.TradesFailed,
		Wins:           d.Wins,
		Losses:         d.Losses,
		OpenPositions:  d.OpenPositions,
	}
}

func toMarket(md domain.MarketData) marketDTO {
	return marketDTO{
		Token:      md.Token,
		Price:      md.Price,
		Volume24h:  md.Volume24h,
		Change24h:  md.Change24h,
		Indicators: md.Indicators,
		History: lo.Map(md.History, func(c domain.Candle, _ int) candleDTO {
			return candleDTO{OpenTime: c.OpenTime, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
		}),
		CollectedAt: md.CollectedAt,
	}
}

func toEvent(ev domain.Event, cfg domain.RiskConfig) eventDTO {
	out := eventDTO{Kind: string(ev.Kind), Timestamp: ev.Timestamp, Title: ev.Title, Message: ev.Message}
	if ev.Trade != nil {
		out.Trade = lo.ToPtr(toTrade(*ev.Trade))
	}
	if ev.Signal != nil {
		out.Signal = lo.ToPtr(toSignal(*ev.Signal))
	}
	if ev.Portfolio != nil {
		out.Portfolio = lo.ToPtr(toPortfolio(*ev.Portfolio, cfg))
	}
	if ev.Summary != nil {
		out.Summary = lo.ToPtr(toSummary(*ev.Summary))
	}
	return out
}
