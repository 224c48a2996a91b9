// Package binance implements ports.MarketFeed over the Binance spot API.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/samber/lo"
)

// Config controla la fuente de datos.
type Config struct {
	BaseURL    string // vacío = api.binance.com
	QuoteAsset string // p.ej. USDT
	Interval   string // intervalo de velas
}

// Feed lee ticker 24h y velas de Binance spot. Solo endpoints públicos.
type Feed struct {
	client *binance.Client
	cfg    Config
}

// NewFeed crea un Feed sin credenciales.
func NewFeed(cfg Config) *Feed {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Feed{client: client, cfg: cfg}
}

// Symbol devuelve el par de Binance de un token.
func (f *Feed) Symbol(token string) string {
	return strings.ToUpper(token) + f.cfg.QuoteAsset
}

// Ticker devuelve el último ticker 24h del token.
func (f *Feed) Ticker(ctx context.Context, token string) (domain.Ticker, error) {
	symbol := f.Symbol(token)
	stats, err := f.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance.Ticker: %s: %w", symbol, err)
	}
	st, ok := lo.Find(stats, func(s *binance.PriceChangeStats) bool { return s.Symbol == symbol })
	if !ok {
		return domain.Ticker{}, fmt.Errorf("binance.Ticker: %s: not in response", symbol)
	}

	price, err := strconv.ParseFloat(st.LastPrice, 64)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance.Ticker: %s: last price %q: %w", symbol, st.LastPrice, err)
	}
	volume, _ := strconv.ParseFloat(st.QuoteVolume, 64)
	change, _ := strconv.ParseFloat(st.PriceChangePercent, 64)

	return domain.Ticker{
		Token:     token,
		Price:     price,
		Volume24h: volume,
		Change24h: change,
		UpdatedAt: time.UnixMilli(st.CloseTime).UTC(),
	}, nil
}

// History devuelve las últimas limit velas cerradas o en curso, la más antigua primero.
func (f *Feed) History(ctx context.Context, token string, limit int) ([]domain.Candle, error) {
	symbol := f.Symbol(token)
	klines, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(f.cfg.Interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance.History: %s: %w", symbol, err)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			return nil, fmt.Errorf("binance.History: %s: %w", symbol, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func toCandle(k *binance.Kline) (domain.Candle, error) {
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline %d: parse %q: %w", k.OpenTime, s, err)
		}
		vals[i] = v
	}
	return domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
