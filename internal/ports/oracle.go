package ports

import "context"

// OracleRequest is the structured context sent to a reasoning oracle.
type OracleRequest struct {
	Token        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// OracleResponse is the raw answer of the oracle. Content is expected to hold
// a JSON object; the caller validates it.
type OracleResponse struct {
	Provider string
	Model    string
	Content  string
}

// Oracle is any provider able to answer a chat-completion style request.
type Oracle interface {
	Submit(ctx context.Context, req OracleRequest) (OracleResponse, error)
}
