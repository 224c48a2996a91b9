// Package jupiter liquida swaps en Solana a través del agregador Jupiter:
// quote → swap → firma local → sendTransaction → polling de confirmación.
package jupiter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/adapters/httpclient"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
)

const defaultPollInterval = 2 * time.Second

// Token es un SPL token operable.
type Token struct {
	Mint     string
	Decimals int32
}

// Config controla el gateway.
type Config struct {
	BaseURL       string // API de Jupiter, p.ej. https://quote-api.jup.ag/v6
	RPCURL        string
	QuoteMint     string
	QuoteDecimals int32
	Tokens        map[string]Token
	PollInterval  time.Duration
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// pendingSwap es lo que el gateway recuerda entre Submit y Await.
type pendingSwap struct {
	req   ports.SwapRequest
	price float64 // quote por token según la cotización
}

// Gateway implementa ports.SettlementGateway.
//
// Las compras usan swapMode=ExactOut y las ventas ExactIn, así la cantidad de
// token queda fijada en unidades base y un swap confirmado la llena entera.
type Gateway struct {
	api    *httpclient.Client
	rpc    *rpcClient
	signer *Signer
	cfg    Config

	mu      sync.Mutex
	pending map[string]pendingSwap
}

// NewGateway crea el gateway. Las opciones se aplican a los clientes de Jupiter y del RPC.
func NewGateway(cfg Config, signer *Signer, opts ...httpclient.Option) *Gateway {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		api:     httpclient.New(append([]httpclient.Option{httpclient.WithRate(1, 2)}, opts...)...),
		rpc:     &rpcClient{http: httpclient.New(opts...), url: cfg.RPCURL},
		signer:  signer,
		cfg:     cfg,
		pending: make(map[string]pendingSwap),
	}
}

// Submit cotiza, construye, firma y envía el swap. La referencia es la firma de la transacción.
func (g *Gateway) Submit(ctx context.Context, req ports.SwapRequest) (ports.SwapReceipt, error) {
	tok, ok := g.cfg.Tokens[req.Token]
	if !ok {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: no mint configured for %s", req.Token)
	}
	units, err := toBaseUnits(req.Amount, tok.Decimals)
	if err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: %s: %w", req.Token, err)
	}

	q := url.Values{}
	q.Set("amount", units)
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	switch req.Side {
	case domain.SideBuy:
		q.Set("inputMint", g.cfg.QuoteMint)
		q.Set("outputMint", tok.Mint)
		q.Set("swapMode", "ExactOut")
	case domain.SideSell:
		q.Set("inputMint", tok.Mint)
		q.Set("outputMint", g.cfg.QuoteMint)
		q.Set("swapMode", "ExactIn")
	default:
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: unknown side %q", req.Side)
	}

	var quote map[string]any
	if err := g.api.GetJSON(ctx, g.cfg.BaseURL+"/quote?"+q.Encode(), &quote); err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: quote %s: %w", req.Token, err)
	}
	price, err := g.quotePrice(req, quote)
	if err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: quote %s: %w", req.Token, err)
	}

	var swap swapResponse
	body := map[string]any{
		"quoteResponse":           quote,
		"userPublicKey":           g.signer.PublicKey(),
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	}
	if err := g.api.PostJSON(ctx, g.cfg.BaseURL+"/swap", body, &swap); err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: swap %s: %w", req.Token, err)
	}
	if swap.SwapTransaction == "" {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: swap %s: empty transaction", req.Token)
	}

	signed, sig, err := g.signer.SignTransaction(swap.SwapTransaction)
	if err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: %w", err)
	}
	sent, err := g.rpc.sendTransaction(ctx, signed)
	if err != nil {
		return ports.SwapReceipt{}, fmt.Errorf("jupiter.Submit: %w", err)
	}
	if sent != "" && sent != sig {
		slog.Warn("jupiter: rpc returned a different signature", "local", sig, "rpc", sent)
		sig = sent
	}

	g.mu.Lock()
	g.pending[sig] = pendingSwap{req: req, price: price}
	g.mu.Unlock()

	slog.Debug("jupiter: swap sent",
		"trade_id", req.TradeID, "token", req.Token, "side", req.Side,
		"amount", req.Amount, "quoted_price", price, "sig", sig)
	return ports.SwapReceipt{Reference: sig}, nil
}

// quotePrice deriva el precio en quote por token de la cotización.
func (g *Gateway) quotePrice(req ports.SwapRequest, quote map[string]any) (float64, error) {
	field := "inAmount" // compra ExactOut: lo que pagamos
	if req.Side == domain.SideSell {
		field = "outAmount" // venta ExactIn: lo que recibimos
	}
	raw, _ := quote[field].(string)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	quoteAmount, err := fromBaseUnits(raw, g.cfg.QuoteDecimals)
	if err != nil {
		return 0, err
	}
	return quoteAmount / req.Amount, nil
}

// Await hace polling de getSignatureStatuses hasta confirmed/finalized, error o ctx.
func (g *Gateway) Await(ctx context.Context, ref string) (ports.Settlement, error) {
	g.mu.Lock()
	ps, ok := g.pending[ref]
	g.mu.Unlock()
	if !ok {
		return ports.Settlement{}, fmt.Errorf("jupiter.Await: unknown reference %s", ref)
	}
	defer func() {
		g.mu.Lock()
		delete(g.pending, ref)
		g.mu.Unlock()
	}()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()
	for {
		st, err := g.rpc.signatureStatus(ctx, ref)
		switch {
		case ctx.Err() != nil:
			return ports.Settlement{}, ctx.Err()
		case err != nil:
			slog.Warn("jupiter: status poll failed", "sig", ref, "err", err)
		case st == nil:
			// todavía no visible en el nodo
		case st.Err != nil:
			return ports.Settlement{
				Reference: ref,
				Status:    ports.SettlementFailed,
				Reason:    fmt.Sprintf("transaction error: %v", st.Err),
			}, nil
		case st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized":
			return ports.Settlement{
				Reference:    ref,
				Status:       ports.SettlementConfirmed,
				FilledAmount: ps.req.Amount,
				Price:        ps.price,
			}, nil
		}

		select {
		case <-ctx.Done():
			return ports.Settlement{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// nativeMint es el mint de wrapped SOL; su saldo se lee como SOL nativo.
const (
	nativeMint     = "So11111111111111111111111111111111111111112"
	nativeDecimals = 9
)

// Wallet es el saldo on-chain del wallet que firma los swaps.
type Wallet struct {
	Address string
	Quote   float64
	Tokens  map[string]float64 // por símbolo
}

// Balances lee del RPC el saldo de quote y de cada token configurado.
func (g *Gateway) Balances(ctx context.Context) (Wallet, error) {
	w := Wallet{
		Address: g.signer.PublicKey(),
		Tokens:  make(map[string]float64, len(g.cfg.Tokens)),
	}
	quote, err := g.mintBalance(ctx, w.Address, g.cfg.QuoteMint)
	if err != nil {
		return Wallet{}, fmt.Errorf("jupiter.Balances: quote: %w", err)
	}
	w.Quote = quote
	for sym, tok := range g.cfg.Tokens {
		amount, err := g.mintBalance(ctx, w.Address, tok.Mint)
		if err != nil {
			return Wallet{}, fmt.Errorf("jupiter.Balances: %s: %w", sym, err)
		}
		w.Tokens[sym] = amount
	}
	return w, nil
}

func (g *Gateway) mintBalance(ctx context.Context, owner, mint string) (float64, error) {
	if mint == nativeMint {
		lamports, err := g.rpc.nativeBalance(ctx, owner)
		if err != nil {
			return 0, err
		}
		return fromBaseUnits(strconv.FormatUint(lamports, 10), nativeDecimals)
	}
	d, err := g.rpc.tokenBalance(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
