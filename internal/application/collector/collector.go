// Package collector gathers the market view of one token and computes its
// indicator snapshot.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/alejandrodnm/llmtrader/internal/ta"
	"github.com/alejandrodnm/llmtrader/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHistoryLimit = 100
	defaultMaxStaleness = 10 * time.Minute
)

// Marker receives the latest price of every collected token.
type Marker interface {
	Mark(token string, price float64)
}

// Sink stores the latest market data, e.g. for the HTTP projections.
type Sink interface {
	PutMarketData(ctx context.Context, md domain.MarketData) error
}

// Config controls the collected window.
type Config struct {
	HistoryLimit int
	MaxStaleness time.Duration
}

// Collector builds domain.MarketData from a feed.
type Collector struct {
	feed   ports.MarketFeed
	marker Marker // optional
	sink   Sink   // optional
	cfg    Config
	now    func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithMarker revalues ledger positions on every successful collection.
func WithMarker(m Marker) Option { return func(c *Collector) { c.marker = m } }

// WithSink publishes every successful collection.
func WithSink(s Sink) Option { return func(c *Collector) { c.sink = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

// New creates a Collector.
func New(feed ports.MarketFeed, cfg Config, opts ...Option) *Collector {
	if cfg.HistoryLimit < ta.MinCandles {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = defaultMaxStaleness
	}
	c := &Collector{feed: feed, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect fetches ticker and history for token. Every failure wraps
// domain.ErrDataUnavailable; the caller skips the token for this cycle.
func (c *Collector) Collect(ctx context.Context, token string) (domain.MarketData, error) {
	ctx, span := telemetry.StartSpan(ctx, "collector.Collect", attribute.String("token", token))
	defer span.End()

	var (
		ticker  domain.Ticker
		candles []domain.Candle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticker, err = c.feed.Ticker(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		candles, err = c.feed.History(gctx, token, c.cfg.HistoryLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: %v", token, domain.ErrDataUnavailable, err)
	}

	if ticker.Price <= 0 {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: no price", token, domain.ErrDataUnavailable)
	}
	if len(candles) < ta.MinCandles {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: %d candles, need %d",
			token, domain.ErrDataUnavailable, len(candles), ta.MinCandles)
	}

	now := c.now()
	if age := now.Sub(ticker.UpdatedAt); !ticker.UpdatedAt.IsZero() && age > c.cfg.MaxStaleness {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: ticker is %s old",
			token, domain.ErrDataUnavailable, age.Round(time.Second))
	}
	last := candles[len(candles)-1]
	if age := now.Sub(last.CloseTime); age > c.cfg.MaxStaleness {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: last candle closed %s ago",
			token, domain.ErrDataUnavailable, age.Round(time.Second))
	}

	ind, err := ta.Compute(candles)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("collector.Collect: %s: %w: %v", token, domain.ErrDataUnavailable, err)
	}
	ind.Support, ind.Resistance = ta.Levels(closes(candles), ticker.Price)

	md := domain.MarketData{
		Token:       token,
		Price:       ticker.Price,
		Volume24h:   ticker.Volume24h,
		Change24h:   ticker.Change24h,
		History:     candles,
		Indicators:  ind,
		CollectedAt: now,
	}

	if c.marker != nil {
		c.marker.Mark(token, md.Price)
	}
	if c.sink != nil {
		if err := c.sink.PutMarketData(ctx, md); err != nil {
			telemetry.Logger(ctx).Warn("collector: publish market data failed", "token", token, "err", err)
		}
	}

	telemetry.Logger(ctx).Debug("market data collected",
		"token", token,
		"price", md.Price,
		"rsi", fmt.Sprintf("%.1f", ind.RSI),
		"trend", ind.Trend,
		"candles", len(candles),
	)
	return md, nil
}

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
