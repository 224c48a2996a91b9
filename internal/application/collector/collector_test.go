package collector_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/application/collector"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	ticker     domain.Ticker
	candles    []domain.Candle
	tickerErr  error
	historyErr error
	gotLimit   int
}

func (f *fakeFeed) Ticker(context.Context, string) (domain.Ticker, error) {
	return f.ticker, f.tickerErr
}

func (f *fakeFeed) History(_ context.Context, _ string, limit int) ([]domain.Candle, error) {
	f.gotLimit = limit
	return f.candles, f.historyErr
}

type marks struct {
	mu sync.Mutex
	m  map[string]float64
}

func (k *marks) Mark(token string, price float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil {
		k.m = make(map[string]float64)
	}
	k.m[token] = price
}

type memSink struct{ last domain.MarketData }

func (s *memSink) PutMarketData(_ context.Context, md domain.MarketData) error {
	s.last = md
	return nil
}

// hourly candles ending one minute before now
func candles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	end := now.Add(-time.Minute)
	for i := range out {
		closeTime := end.Add(-time.Duration(n-1-i) * time.Hour)
		price := 100 + float64(i)*0.5
		out[i] = domain.Candle{
			OpenTime:  closeTime.Add(-time.Hour),
			CloseTime: closeTime,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    500,
		}
	}
	return out
}

func healthyFeed() *fakeFeed {
	return &fakeFeed{
		ticker:  domain.Ticker{Token: "SOL", Price: 150, Volume24h: 1e6, Change24h: 3.2, UpdatedAt: now},
		candles: candles(100),
	}
}

func TestCollect_BuildsSnapshotAndMarks(t *testing.T) {
	feed := healthyFeed()
	mk := &marks{}
	sink := &memSink{}
	c := collector.New(feed, collector.Config{HistoryLimit: 100, MaxStaleness: 10 * time.Minute},
		collector.WithMarker(mk), collector.WithSink(sink), collector.WithClock(func() time.Time { return now }))

	md, err := c.Collect(context.Background(), "SOL")
	require.NoError(t, err)

	assert.Equal(t, "SOL", md.Token)
	assert.InDelta(t, 150.0, md.Price, 1e-9)
	assert.InDelta(t, 3.2, md.Change24h, 1e-9)
	assert.Len(t, md.History, 100)
	assert.Equal(t, now, md.CollectedAt)
	assert.Equal(t, domain.TrendBullish, md.Indicators.Trend)
	assert.Greater(t, md.Indicators.SMA20, 0.0)
	assert.Equal(t, 100, feed.gotLimit)

	assert.InDelta(t, 150.0, mk.m["SOL"], 1e-9)
	assert.Equal(t, md.Token, sink.last.Token)
}

func TestCollect_Unavailable(t *testing.T) {
	cases := map[string]func(f *fakeFeed){
		"ticker error":  func(f *fakeFeed) { f.tickerErr = errors.New("418 banned") },
		"history error": func(f *fakeFeed) { f.historyErr = errors.New("timeout") },
		"short history": func(f *fakeFeed) { f.candles = candles(20) },
		"zero price":    func(f *fakeFeed) { f.ticker.Price = 0 },
		"stale ticker":  func(f *fakeFeed) { f.ticker.UpdatedAt = now.Add(-time.Hour) },
		"stale candles": func(f *fakeFeed) {
			for i := range f.candles {
				f.candles[i].CloseTime = f.candles[i].CloseTime.Add(-2 * time.Hour)
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			feed := healthyFeed()
			mutate(feed)
			mk := &marks{}
			c := collector.New(feed, collector.Config{MaxStaleness: 10 * time.Minute},
				collector.WithMarker(mk), collector.WithClock(func() time.Time { return now }))

			_, err := c.Collect(context.Background(), "SOL")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrDataUnavailable)
			assert.Empty(t, mk.m, "no side effects on failure")
		})
	}
}

func TestNew_DefaultsHistoryLimit(t *testing.T) {
	feed := healthyFeed()
	c := collector.New(feed, collector.Config{HistoryLimit: 10}, collector.WithClock(func() time.Time { return now }))

	_, err := c.Collect(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, 100, feed.gotLimit)
}
