package domain

import "time"

// Candle is one OHLCV bar of the price history.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker is the latest 24h view of a token.
type Ticker struct {
	Token     string
	Price     float64
	Volume24h float64 // quote volume
	Change24h float64 // percent
	UpdatedAt time.Time
}

// Trend classifies the short/long EMA separation.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Indicators is the technical snapshot computed over the history window.
type Indicators struct {
	SMA20 float64 `json:"sma_20"`
	SMA50 float64 `json:"sma_50"`
	EMA12 float64 `json:"ema_12"`
	EMA26 float64 `json:"ema_26"`

	RSI        float64 `json:"rsi"`
	Overbought bool    `json:"overbought"`
	Oversold   bool    `json:"oversold"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_histogram"`

	BollingerUpper     float64 `json:"bb_upper"`
	BollingerMiddle    float64 `json:"bb_middle"`
	BollingerLower     float64 `json:"bb_lower"`
	BollingerBandwidth float64 `json:"bb_bandwidth"`
	BollingerPosition  float64 `json:"bb_position"` // 0 at lower band, 1 at upper band

	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	ATR           float64 `json:"atr"`
	Volatility    float64 `json:"volatility"` // annualized, percent
	Trend         Trend   `json:"trend"`
	TrendStrength float64 `json:"trend_strength"` // EMA10/EMA30 separation, percent
	Support       float64 `json:"support"`
	Resistance    float64 `json:"resistance"`
}

// MarketData is everything the collector gathered for one token in one cycle.
type MarketData struct {
	Token       string
	Price       float64
	Volume24h   float64
	Change24h   float64
	History     []Candle
	Indicators  Indicators
	CollectedAt time.Time
}
