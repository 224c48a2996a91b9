package jupiter

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/llmtrader/internal/adapters/httpclient"
	"github.com/shopspring/decimal"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

type statusesResult struct {
	Value []*signatureStatus `json:"value"`
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

type tokenAccount struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						Amount   string `json:"amount"`
						Decimals int32  `json:"decimals"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

type tokenAccountsResult struct {
	Value []tokenAccount `json:"value"`
}

// rpcClient es un cliente JSON-RPC mínimo de Solana.
type rpcClient struct {
	http *httpclient.Client
	url  string
}

type rpcResponse[T any] struct {
	Result T         `json:"result"`
	Error  *rpcError `json:"error"`
}

func call[T any](ctx context.Context, c *rpcClient, method string, params []any) (T, error) {
	var resp rpcResponse[T]
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	if err := c.http.PostJSON(ctx, c.url, req, &resp); err != nil {
		return resp.Result, fmt.Errorf("rpc %s: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Result, fmt.Errorf("rpc %s: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// sendTransaction envía una transacción firmada y devuelve su firma.
func (c *rpcClient) sendTransaction(ctx context.Context, txBase64 string) (string, error) {
	return call[string](ctx, c, "sendTransaction", []any{
		txBase64,
		map[string]any{"encoding": "base64", "skipPreflight": false, "maxRetries": 3},
	})
}

// signatureStatus devuelve el estado de una firma, o nil si el nodo aún no la conoce.
func (c *rpcClient) signatureStatus(ctx context.Context, sig string) (*signatureStatus, error) {
	res, err := call[statusesResult](ctx, c, "getSignatureStatuses", []any{
		[]string{sig},
		map[string]any{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// nativeBalance devuelve el saldo de SOL nativo del owner en lamports.
func (c *rpcClient) nativeBalance(ctx context.Context, owner string) (uint64, error) {
	res, err := call[balanceResult](ctx, c, "getBalance", []any{
		owner,
		map[string]any{"commitment": "confirmed"},
	})
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// tokenBalance suma el saldo de todas las cuentas SPL del owner para mint.
func (c *rpcClient) tokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error) {
	res, err := call[tokenAccountsResult](ctx, c, "getTokenAccountsByOwner", []any{
		owner,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": "confirmed"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, acc := range res.Value {
		ta := acc.Account.Data.Parsed.Info.TokenAmount
		units, err := decimal.NewFromString(ta.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("rpc getTokenAccountsByOwner: amount %q: %w", ta.Amount, err)
		}
		total = total.Add(units.Shift(-ta.Decimals))
	}
	return total, nil
}
