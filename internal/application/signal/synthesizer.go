// Package signal turns market data into a validated trading Signal by asking a
// reasoning oracle. A failing oracle yields a degraded hold, never an error.
package signal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/alejandrodnm/llmtrader/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 30 * time.Second
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
)

// Config controls oracle calls.
type Config struct {
	MaxAttempts int           // total attempts, first one included
	Timeout     time.Duration // per attempt
	BaseBackoff time.Duration
	Temperature float64
	MaxTokens   int
}

// Synthesizer asks the oracle for a recommendation and validates it.
type Synthesizer struct {
	oracle ports.Oracle
	cfg    Config
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration)
}

// New creates a Synthesizer.
func New(oracle ports.Oracle, cfg Config) *Synthesizer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	return &Synthesizer{oracle: oracle, cfg: cfg, now: time.Now, sleep: sleepCtx}
}

// Generate returns the oracle's signal for md. On repeated oracle or parse
// failures it returns a degraded hold signal.
func (s *Synthesizer) Generate(ctx context.Context, md domain.MarketData, pc PortfolioContext) domain.Signal {
	ctx, span := telemetry.StartSpan(ctx, "signal.Generate", attribute.String("token", md.Token))
	defer span.End()
	log := telemetry.Logger(ctx)

	user, err := BuildUserPrompt(md, pc)
	if err != nil {
		log.Error("signal: build prompt", "token", md.Token, "err", err)
		return domain.DegradedSignal(md.Token, err.Error(), md.Indicators, s.now())
	}
	req := ports.OracleRequest{
		Token:        md.Token,
		SystemPrompt: systemPrompt,
		UserPrompt:   user,
		Temperature:  s.cfg.Temperature,
		MaxTokens:    s.cfg.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, s.backoff(attempt))
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		parsed, err := s.attempt(ctx, req)
		if err == nil {
			sig := domain.Signal{
				ID:                  uuid.New().String(),
				Token:               md.Token,
				Action:              parsed.Action,
				Strength:            parsed.Strength,
				Confidence:          parsed.Confidence,
				RiskLevel:           parsed.RiskLevel,
				Reasoning:           parsed.Reasoning,
				Timestamp:           s.now(),
				Indicators:          md.Indicators,
				EntryPrice:          parsed.EntryPrice,
				StopLoss:            parsed.StopLoss,
				TakeProfit:          parsed.TakeProfit,
				PositionSizePercent: parsed.PositionSizePercent,
			}
			log.Info("signal generated",
				"token", sig.Token,
				"action", sig.Action,
				"strength", sig.Strength,
				"confidence", sig.Confidence,
				"risk", sig.RiskLevel,
				"attempt", attempt+1,
			)
			return sig
		}

		lastErr = err
		level := "oracle call failed"
		if errors.Is(err, domain.ErrSignalParse) {
			level = "oracle response rejected"
		}
		log.Warn("signal: "+level, "token", md.Token, "attempt", attempt+1, "of", s.cfg.MaxAttempts, "err", err)
	}

	log.Warn("signal: degraded to hold", "token", md.Token, "err", lastErr)
	return domain.DegradedSignal(md.Token, fmt.Sprint(lastErr), md.Indicators, s.now())
}

func (s *Synthesizer) attempt(ctx context.Context, req ports.OracleRequest) (Parsed, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.oracle.Submit(callCtx, req)
	if err != nil {
		return Parsed{}, fmt.Errorf("signal.attempt: submit: %w", err)
	}
	return ParseSignal(resp.Content)
}

// backoff is base·2^(attempt-1) capped at maxBackoff, with jitter in [d/2, d].
func (s *Synthesizer) backoff(attempt int) time.Duration {
	d := s.cfg.BaseBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	half := d / 2
	return half + rand.N(d-half+1)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
