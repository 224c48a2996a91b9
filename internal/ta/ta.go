// Package ta computes the technical indicator snapshot fed to the oracle.
package ta

import (
	"errors"
	"math"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/cinar/indicator"
	"github.com/samber/lo"
)

const (
	// MinCandles is the shortest history that yields every indicator (SMA50).
	MinCandles = 50

	rsiPeriod        = 14
	rsiOverbought    = 70
	rsiOversold      = 30
	neutralOsc       = 50 // RSI y %K sin movimiento en la ventana
	atrPeriod        = 14
	volatilityWindow = 20
	tradingDays      = 252
	trendShort       = 10
	trendLong        = 30
	trendMinSepPct   = 0.1
	extremaWindow    = 5
	levelsLookback   = 20
)

// ErrShortHistory is returned when fewer than MinCandles candles are supplied.
var ErrShortHistory = errors.New("ta: history too short")

// Compute derives the indicator snapshot from candles ordered oldest first.
func Compute(candles []domain.Candle) (domain.Indicators, error) {
	if len(candles) < MinCandles {
		return domain.Indicators{}, ErrShortHistory
	}

	closing := lo.Map(candles, func(c domain.Candle, _ int) float64 { return c.Close })
	high := lo.Map(candles, func(c domain.Candle, _ int) float64 { return c.High })
	low := lo.Map(candles, func(c domain.Candle, _ int) float64 { return c.Low })
	price := closing[len(closing)-1]

	var ind domain.Indicators

	ind.SMA20 = finite(lo.LastOrEmpty(indicator.Sma(20, closing)), price)
	ind.SMA50 = finite(lo.LastOrEmpty(indicator.Sma(50, closing)), price)
	ind.EMA12 = finite(lo.LastOrEmpty(indicator.Ema(12, closing)), price)
	ind.EMA26 = finite(lo.LastOrEmpty(indicator.Ema(26, closing)), price)

	_, rsi := indicator.RsiPeriod(rsiPeriod, closing)
	ind.RSI = finite(lo.LastOrEmpty(rsi), neutralOsc)
	ind.Overbought = ind.RSI > rsiOverbought
	ind.Oversold = ind.RSI < rsiOversold

	macd, signal := indicator.Macd(closing)
	ind.MACD = finite(lo.LastOrEmpty(macd), 0)
	ind.MACDSignal = finite(lo.LastOrEmpty(signal), 0)
	ind.MACDHist = ind.MACD - ind.MACDSignal

	middle, upper, lower := indicator.BollingerBands(closing)
	ind.BollingerMiddle = finite(lo.LastOrEmpty(middle), price)
	ind.BollingerUpper = finite(lo.LastOrEmpty(upper), price)
	ind.BollingerLower = finite(lo.LastOrEmpty(lower), price)
	if ind.BollingerMiddle > 0 {
		ind.BollingerBandwidth = (ind.BollingerUpper - ind.BollingerLower) / ind.BollingerMiddle
	}
	if width := ind.BollingerUpper - ind.BollingerLower; width > 0 {
		ind.BollingerPosition = (price - ind.BollingerLower) / width
	}

	k, d := indicator.StochasticOscillator(high, low, closing)
	ind.StochK = finite(lo.LastOrEmpty(k), neutralOsc)
	ind.StochD = finite(lo.LastOrEmpty(d), neutralOsc)

	_, atr := indicator.Atr(atrPeriod, high, low, closing)
	ind.ATR = finite(lo.LastOrEmpty(atr), 0)

	ind.Volatility = Volatility(closing, volatilityWindow)
	ind.Trend, ind.TrendStrength = Trend(closing)
	ind.Support, ind.Resistance = Levels(closing, price)

	return ind, nil
}

// finite devuelve fallback si v es NaN o ±Inf. Un historial plano hace que
// RSI y estocástico dividan por cero.
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Volatility is the annualized standard deviation of simple returns over the
// last window prices, in percent.
func Volatility(prices []float64, window int) float64 {
	if len(prices) < window || window < 2 {
		return 0
	}
	recent := prices[len(prices)-window:]
	returns := make([]float64, 0, window-1)
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			continue
		}
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	mean := lo.Sum(returns) / float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)))
	return std * math.Sqrt(tradingDays) * 100
}

// Trend classifies the EMA10/EMA30 separation. Separations under 0.1% are neutral.
func Trend(prices []float64) (domain.Trend, float64) {
	if len(prices) < trendLong {
		return domain.TrendNeutral, 0
	}
	short := lo.LastOrEmpty(indicator.Ema(trendShort, prices))
	long := lo.LastOrEmpty(indicator.Ema(trendLong, prices))
	if long == 0 {
		return domain.TrendNeutral, 0
	}
	sep := (short - long) / long * 100
	switch {
	case sep > trendMinSepPct:
		return domain.TrendBullish, math.Abs(sep)
	case sep < -trendMinSepPct:
		return domain.TrendBearish, math.Abs(sep)
	}
	return domain.TrendNeutral, math.Abs(sep)
}

// Levels returns the nearest local minimum below price and the nearest local
// maximum above it. Without such extrema it falls back to the low and high of
// the last levelsLookback prices.
func Levels(prices []float64, price float64) (support, resistance float64) {
	recent := prices
	if len(recent) > levelsLookback {
		recent = recent[len(recent)-levelsLookback:]
	}
	support, resistance = lo.Min(recent), lo.Max(recent)

	bestSup, bestRes := math.Inf(-1), math.Inf(1)
	for i := extremaWindow; i < len(prices)-extremaWindow; i++ {
		isMin, isMax := true, true
		for j := i - extremaWindow; j <= i+extremaWindow; j++ {
			if j == i {
				continue
			}
			if prices[j] < prices[i] {
				isMin = false
			}
			if prices[j] > prices[i] {
				isMax = false
			}
		}
		if isMin && prices[i] < price && prices[i] > bestSup {
			bestSup = prices[i]
		}
		if isMax && prices[i] > price && prices[i] < bestRes {
			bestRes = prices[i]
		}
	}
	if !math.IsInf(bestSup, 0) {
		support = bestSup
	}
	if !math.IsInf(bestRes, 0) {
		resistance = bestRes
	}
	return support, resistance
}
