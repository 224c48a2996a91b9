package main

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/alejandrodnm/llmtrader/internal/adapters/jupiter"
	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// walletTolerance es la diferencia relativa aceptada entre ledger y wallet.
const walletTolerance = 0.01

// startingBalance es el balance de un ledger nuevo: el saldo de quote del
// wallet en producción, initial_balance en el resto.
func startingBalance(configured float64, wallet *jupiter.Wallet) float64 {
	if wallet == nil {
		return configured
	}
	if !withinTolerance(configured, wallet.Quote) {
		slog.Warn("wallet quote balance differs from initial_balance, using wallet",
			"wallet", wallet.Quote,
			"initial_balance", configured,
		)
	}
	return wallet.Quote
}

// walletMismatches compara el ledger con el wallet on-chain.
func walletMismatches(p domain.Portfolio, w jupiter.Wallet) []string {
	var out []string
	if !withinTolerance(p.AvailableBalance, w.Quote) {
		out = append(out, fmt.Sprintf("quote: ledger %.6f wallet %.6f", p.AvailableBalance, w.Quote))
	}

	tokens := make([]string, 0, len(p.Positions)+len(w.Tokens))
	for sym := range p.Positions {
		tokens = append(tokens, sym)
	}
	for sym := range w.Tokens {
		tokens = append(tokens, sym)
	}
	slices.Sort(tokens)
	for _, sym := range slices.Compact(tokens) {
		held := p.Positions[sym].Amount
		onchain := w.Tokens[sym]
		if !withinTolerance(held, onchain) {
			out = append(out, fmt.Sprintf("%s: ledger %.9f wallet %.9f", sym, held, onchain))
		}
	}
	return out
}

func withinTolerance(a, b float64) bool {
	diff := math.Abs(a - b)
	return diff <= 1e-9 || diff <= walletTolerance*math.Max(math.Abs(a), math.Abs(b))
}
