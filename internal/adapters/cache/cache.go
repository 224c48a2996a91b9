// Package cache keeps hot market data in Redis: a read-through decorator for
// ports.MarketFeed and the latest collected view of each token.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	json "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = time.Minute
	keyPrefix  = "llmtrader:"
)

// Config controla la conexión.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // vida de ticker e historial cacheados
}

// Cache es el repositorio Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New conecta con Redis y comprueba la conexión.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache.New: ping %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client, cfg.TTL), nil
}

// NewFromClient envuelve un cliente ya creado.
func NewFromClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Close cierra la conexión.
func (c *Cache) Close() error {
	return c.client.Close()
}

// PutMarketData guarda la última vista de un token. No expira.
func (c *Cache) PutMarketData(ctx context.Context, md domain.MarketData) error {
	if err := c.set(ctx, marketKey(md.Token), md, 0); err != nil {
		return fmt.Errorf("cache.PutMarketData: %s: %w", md.Token, err)
	}
	return nil
}

// MarketData devuelve la última vista guardada. ok es false si no hay ninguna.
func (c *Cache) MarketData(ctx context.Context, token string) (domain.MarketData, bool, error) {
	var md domain.MarketData
	ok, err := c.get(ctx, marketKey(token), &md)
	if err != nil {
		return domain.MarketData{}, false, fmt.Errorf("cache.MarketData: %s: %w", token, err)
	}
	return md, ok, nil
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func marketKey(token string) string {
	return keyPrefix + "market:" + strings.ToUpper(token)
}

func tickerKey(token string) string {
	return keyPrefix + "ticker:" + strings.ToUpper(token)
}

func historyKey(token string, limit int) string {
	return fmt.Sprintf("%shistory:%s:%d", keyPrefix, strings.ToUpper(token), limit)
}

// Feed es un ports.MarketFeed read-through. Los fallos de Redis nunca
// ocultan la fuente: se registran y se consulta el feed subyacente.
type Feed struct {
	next  ports.MarketFeed
	cache *Cache
}

var _ ports.MarketFeed = (*Feed)(nil)

// NewFeed envuelve next con la caché.
func NewFeed(next ports.MarketFeed, c *Cache) *Feed {
	return &Feed{next: next, cache: c}
}

// Ticker devuelve el ticker cacheado o lo pide al feed.
func (f *Feed) Ticker(ctx context.Context, token string) (domain.Ticker, error) {
	var t domain.Ticker
	if ok, err := f.cache.get(ctx, tickerKey(token), &t); err != nil {
		slog.Warn("cache: ticker read failed", "token", token, "err", err)
	} else if ok {
		return t, nil
	}

	t, err := f.next.Ticker(ctx, token)
	if err != nil {
		return domain.Ticker{}, err
	}
	if err := f.cache.set(ctx, tickerKey(token), t, f.cache.ttl); err != nil {
		slog.Warn("cache: ticker write failed", "token", token, "err", err)
	}
	return t, nil
}

// History devuelve el historial cacheado o lo pide al feed.
func (f *Feed) History(ctx context.Context, token string, limit int) ([]domain.Candle, error) {
	var candles []domain.Candle
	key := historyKey(token, limit)
	if ok, err := f.cache.get(ctx, key, &candles); err != nil {
		slog.Warn("cache: history read failed", "token", token, "err", err)
	} else if ok {
		return candles, nil
	}

	candles, err := f.next.History(ctx, token, limit)
	if err != nil {
		return nil, err
	}
	if err := f.cache.set(ctx, key, candles, f.cache.ttl); err != nil {
		slog.Warn("cache: history write failed", "token", token, "err", err)
	}
	return candles, nil
}
