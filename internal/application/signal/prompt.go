package signal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
)

// historyInPrompt is how many of the most recent candles are rendered for the oracle.
const historyInPrompt = 24

const systemPrompt = `You are an expert cryptocurrency trading analyst specializing in Solana tokens.
You receive market data and technical indicators for one token and answer with a single trading recommendation.

Guidelines:
- Be conservative with new or low-liquidity tokens.
- Prefer trades with strong technical confirmation and a sound risk/reward ratio.
- Stop losses are typically 5-15% below entry, take profit 10-30% above.
- If uncertainty is high, recommend "hold" with low confidence.

Answer with ONLY a JSON object, no additional text.`

const userTemplate = `## Token
- Symbol: {token}
- Current Price: {price}
- 24h Volume: {volume}
- 24h Price Change: {change}%

## Technical Indicators
` + "```json" + `
{indicators}
` + "```" + `

## Recent Candles (oldest → newest: close, volume)
{history}

## Portfolio Context
- Held amount: {held}
- Average entry: {avg_entry}
- Available balance: {balance}
- Total value: {total}

## Required Output Format
` + "```json" + `
{
  "action": "buy | sell | hold",
  "strength": "very_weak | weak | moderate | strong | very_strong",
  "confidence": 0.0-1.0,
  "risk_level": "low | medium | high",
  "reasoning": "analysis explaining the recommendation",
  "entry_price": null or suggested entry price,
  "stop_loss": null or suggested stop loss price,
  "take_profit": null or suggested take profit price,
  "position_size_percent": null or position size as percent of portfolio (1-5 typical)
}
` + "```"

// PortfolioContext is the slice of portfolio state shown to the oracle.
type PortfolioContext struct {
	HeldAmount       float64
	AverageEntry     float64
	AvailableBalance float64
	TotalValue       float64
}

// ContextFor extracts the oracle context of token from a snapshot.
func ContextFor(p domain.Portfolio, token string) PortfolioContext {
	pos := p.Positions[token]
	return PortfolioContext{
		HeldAmount:       pos.Amount,
		AverageEntry:     pos.AverageEntryPrice,
		AvailableBalance: p.AvailableBalance,
		TotalValue:       p.TotalValue,
	}
}

// BuildUserPrompt renders the market data and portfolio context for the oracle.
func BuildUserPrompt(md domain.MarketData, pc PortfolioContext) (string, error) {
	ind, err := json.ConfigStd.MarshalIndent(md.Indicators, "", "  ")
	if err != nil {
		return "", fmt.Errorf("signal.BuildUserPrompt: marshal indicators: %w", err)
	}

	recent := lo.Subset(md.History, -historyInPrompt, historyInPrompt)
	lines := lo.Map(recent, func(c domain.Candle, _ int) string {
		return fmt.Sprintf("- %s close=%s vol=%s", c.CloseTime.UTC().Format("01-02 15:04"), num(c.Close), num(c.Volume))
	})

	r := strings.NewReplacer(
		"{token}", md.Token,
		"{price}", num(md.Price),
		"{volume}", num(md.Volume24h),
		"{change}", strconv.FormatFloat(md.Change24h, 'f', 2, 64),
		"{indicators}", string(ind),
		"{history}", strings.Join(lines, "\n"),
		"{held}", num(pc.HeldAmount),
		"{avg_entry}", num(pc.AverageEntry),
		"{balance}", num(pc.AvailableBalance),
		"{total}", num(pc.TotalValue),
	)
	return r.Replace(userTemplate), nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
