// Package paper simula la liquidación de swaps para development y paper_trading.
// Llena siempre la cantidad pedida al precio esperado, movido en contra por el
// slippage configurado, tras una latencia fija.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/google/uuid"
)

// Config controla la simulación.
type Config struct {
	Latency     time.Duration
	SlippageBps int // aplicado siempre en contra; 0 = precio exacto
}

// Gateway implementa ports.SettlementGateway sin tocar ningún venue.
type Gateway struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]ports.SwapRequest
}

// NewGateway crea un gateway simulado.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, pending: make(map[string]ports.SwapRequest)}
}

// Submit acepta cualquier swap con cantidad y precio positivos.
func (g *Gateway) Submit(ctx context.Context, req ports.SwapRequest) (ports.SwapReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.SwapReceipt{}, err
	}
	if req.Amount <= 0 || req.Price <= 0 {
		return ports.SwapReceipt{}, fmt.Errorf("paper.Submit: invalid swap %s amount=%v price=%v", req.Token, req.Amount, req.Price)
	}
	ref := "paper-" + uuid.New().String()

	g.mu.Lock()
	g.pending[ref] = req
	g.mu.Unlock()
	return ports.SwapReceipt{Reference: ref}, nil
}

// Await espera la latencia simulada y confirma el swap.
func (g *Gateway) Await(ctx context.Context, ref string) (ports.Settlement, error) {
	g.mu.Lock()
	req, ok := g.pending[ref]
	g.mu.Unlock()
	if !ok {
		return ports.Settlement{}, fmt.Errorf("paper.Await: unknown reference %s", ref)
	}

	if g.cfg.Latency > 0 {
		t := time.NewTimer(g.cfg.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ports.Settlement{}, ctx.Err()
		}
	}

	g.mu.Lock()
	delete(g.pending, ref)
	g.mu.Unlock()

	price := FillPrice(req.Side, req.Price, g.cfg.SlippageBps)
	slog.Debug("paper: swap filled", "ref", ref, "token", req.Token, "side", req.Side,
		"amount", req.Amount, "price", price)
	return ports.Settlement{
		Reference:    ref,
		Status:       ports.SettlementConfirmed,
		FilledAmount: req.Amount,
		Price:        price,
	}, nil
}

// FillPrice aplica slippage adverso: las compras pagan más, las ventas reciben menos.
func FillPrice(side domain.Side, price float64, slippageBps int) float64 {
	adj := float64(slippageBps) / 10_000
	if side == domain.SideSell {
		return price * (1 - adj)
	}
	return price * (1 + adj)
}
