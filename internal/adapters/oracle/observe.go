package oracle

import (
	"context"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/ports"
	"github.com/alejandrodnm/llmtrader/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type observed struct {
	next ports.Oracle
}

var _ ports.Oracle = (*observed)(nil)

// Observe envuelve o con un span y logs por llamada.
func Observe(o ports.Oracle) ports.Oracle {
	return &observed{next: o}
}

func (o *observed) Submit(ctx context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "oracle.Submit", attribute.String("token", req.Token))
	defer span.End()
	log := telemetry.Logger(ctx)

	start := time.Now()
	resp, err := o.next.Submit(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("oracle call failed", "token", req.Token, "elapsed", elapsed, "err", err)
		return resp, err
	}

	span.SetAttributes(
		attribute.String("oracle.provider", resp.Provider),
		attribute.String("oracle.model", resp.Model),
	)
	log.Debug("oracle answered", "token", req.Token, "provider", resp.Provider,
		"model", resp.Model, "elapsed", elapsed, "bytes", len(resp.Content))
	return resp, nil
}
