package trader

// concurrent.go: fan-out de pipelines por token.
//
// Cada token corre su pipeline completo (collect → signal → execute) en su
// propia goroutine; dentro de un token las etapas son secuenciales. El ledger
// serializa las mutaciones, así que los pipelines no comparten otro estado.

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// runPipelines runs one pipeline per token with at most Workers in flight.
// Results keep the order of tokens. The error is ctx's when it ended early.
func (t *Trader) runPipelines(ctx context.Context, tokens []string) ([]outcome, error) {
	workers := t.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]outcome, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, token := range tokens {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = t.pipeline(gctx, token)
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("token pipelines complete",
		"tokens", len(tokens),
		"workers", workers,
	)
	return results, ctx.Err()
}
