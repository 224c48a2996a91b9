// Package oracle implements ports.Oracle for the supported LLM providers.
// The provider is chosen by configuration; all of them answer with the raw
// text of the model and leave validation to the signal synthesizer.
package oracle

import (
	"errors"
	"fmt"

	"github.com/alejandrodnm/llmtrader/internal/ports"
)

// Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("oracle: empty response")

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // vacío = endpoint público del proveedor
}

// New devuelve el oráculo del proveedor configurado, envuelto con logs y trazas.
func New(cfg Config) (ports.Oracle, error) {
	var o ports.Oracle
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("oracle.New: %s: missing API key", cfg.Provider)
		}
		o = NewOpenAI(cfg)
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("oracle.New: %s: missing API key", cfg.Provider)
		}
		o = NewAnthropic(cfg)
	case ProviderMock, "":
		o = NewMock()
	default:
		return nil, fmt.Errorf("oracle.New: unknown provider %q", cfg.Provider)
	}
	return Observe(o), nil
}
