package paper_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/adapters/paper"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_FillsWithAdverseSlippage(t *testing.T) {
	gw := paper.NewGateway(paper.Config{SlippageBps: 50})
	ctx := context.Background()

	buy, err := gw.Submit(ctx, ports.SwapRequest{Token: "SOL", Side: domain.SideBuy, Amount: 2, Price: 100})
	require.NoError(t, err)
	assert.Contains(t, buy.Reference, "paper-")

	s, err := gw.Await(ctx, buy.Reference)
	require.NoError(t, err)
	assert.Equal(t, ports.SettlementConfirmed, s.Status)
	assert.InDelta(t, 2.0, s.FilledAmount, 1e-12)
	assert.InDelta(t, 100.5, s.Price, 1e-9)

	sell, err := gw.Submit(ctx, ports.SwapRequest{Token: "SOL", Side: domain.SideSell, Amount: 2, Price: 100})
	require.NoError(t, err)
	s, err = gw.Await(ctx, sell.Reference)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, s.Price, 1e-9)
}

func TestGateway_AwaitTwiceFails(t *testing.T) {
	gw := paper.NewGateway(paper.Config{})
	ctx := context.Background()

	r, err := gw.Submit(ctx, ports.SwapRequest{Token: "SOL", Side: domain.SideBuy, Amount: 1, Price: 10})
	require.NoError(t, err)
	_, err = gw.Await(ctx, r.Reference)
	require.NoError(t, err)

	_, err = gw.Await(ctx, r.Reference)
	assert.ErrorContains(t, err, "unknown reference")
}

func TestGateway_LatencyHonoursContext(t *testing.T) {
	gw := paper.NewGateway(paper.Config{Latency: time.Second})
	r, err := gw.Submit(context.Background(), ports.SwapRequest{Token: "SOL", Side: domain.SideBuy, Amount: 1, Price: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = gw.Await(ctx, r.Reference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_RejectsInvalidSwap(t *testing.T) {
	_, err := paper.NewGateway(paper.Config{}).Submit(context.Background(), ports.SwapRequest{Token: "SOL", Side: domain.SideBuy})
	assert.Error(t, err)
}
