package main

import (
	"testing"

	"github.com/alejandrodnm/llmtrader/internal/adapters/jupiter"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStartingBalance(t *testing.T) {
	assert.Equal(t, 1000.0, startingBalance(1000, nil), "paper and development use initial_balance")
	assert.Equal(t, 412.5, startingBalance(1000, &jupiter.Wallet{Quote: 412.5}), "production starts from the wallet")
}

func TestWalletMismatches(t *testing.T) {
	p := domain.Portfolio{
		AvailableBalance: 500,
		Positions: map[string]domain.Position{
			"SOL": {Token: "SOL", Amount: 2},
			"JUP": {Token: "JUP", Amount: 100},
		},
	}

	tests := []struct {
		name   string
		wallet jupiter.Wallet
		want   []string
	}{
		{
			name:   "in sync within tolerance",
			wallet: jupiter.Wallet{Quote: 502, Tokens: map[string]float64{"SOL": 1.995, "JUP": 100}},
		},
		{
			name:   "quote drift",
			wallet: jupiter.Wallet{Quote: 400, Tokens: map[string]float64{"SOL": 2, "JUP": 100}},
			want:   []string{"quote: ledger 500.000000 wallet 400.000000"},
		},
		{
			name:   "position missing on chain and untracked token",
			wallet: jupiter.Wallet{Quote: 500, Tokens: map[string]float64{"SOL": 2, "BONK": 7}},
			want: []string{
				"BONK: ledger 0.000000000 wallet 7.000000000",
				"JUP: ledger 100.000000000 wallet 0.000000000",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, walletMismatches(p, tt.wallet))
		})
	}
}
