package ports

import (
	"context"

	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// Notifier delivers pipeline events to a human-facing channel.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// EventSink accepts events without blocking the caller. Delivery is best effort.
type EventSink interface {
	Publish(ev domain.Event)
}
