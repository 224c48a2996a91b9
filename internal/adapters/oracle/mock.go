package oracle

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/llmtrader/internal/ports"
)

// Mock answers hold with 0.5 confidence for every token. Used without API keys.
type Mock struct{}

// NewMock crea el oráculo de pruebas.
func NewMock() *Mock { return &Mock{} }

// Submit devuelve siempre la misma recomendación.
func (Mock) Submit(ctx context.Context, req ports.OracleRequest) (ports.OracleResponse, error) {
	if err := ctx.Err(); err != nil {
		return ports.OracleResponse{}, err
	}
	content := fmt.Sprintf(`{"action":"hold","strength":"moderate","confidence":0.5,"risk_level":"medium",`+
		`"reasoning":"mock oracle: no analysis performed for %s","position_size_percent":0}`, req.Token)
	return ports.OracleResponse{Provider: ProviderMock, Model: "mock", Content: content}, nil
}
