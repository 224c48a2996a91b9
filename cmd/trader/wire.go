package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/llmtrader/config"
	"github.com/alejandrodnm/llmtrader/internal/adapters/binance"
	"github.com/alejandrodnm/llmtrader/internal/adapters/cache"
	"github.com/alejandrodnm/llmtrader/internal/adapters/httpapi"
	"github.com/alejandrodnm/llmtrader/internal/adapters/jupiter"
	"github.com/alejandrodnm/llmtrader/internal/adapters/notify"
	"github.com/alejandrodnm/llmtrader/internal/adapters/oracle"
	"github.com/alejandrodnm/llmtrader/internal/adapters/paper"
	"github.com/alejandrodnm/llmtrader/internal/adapters/storage"
	"github.com/alejandrodnm/llmtrader/internal/application/collector"
	"github.com/alejandrodnm/llmtrader/internal/application/executor"
	"github.com/alejandrodnm/llmtrader/internal/application/ledger"
	synth "github.com/alejandrodnm/llmtrader/internal/application/signal"
	"github.com/alejandrodnm/llmtrader/internal/application/trader"
	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
)

// app agrupa los componentes cableados del proceso.
type app struct {
	store      *storage.SQLiteStorage
	cache      *cache.Cache // nil sin Redis
	ledger     *ledger.Ledger
	trader     *trader.Trader
	dispatcher *notify.Dispatcher
	console    *notify.Console // nil si la consola está desactivada
	server     *httpapi.Server // nil sin api.addr
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	var err error

	a.store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("build: storage %q: %w", cfg.Storage.DSN, err)
	}

	gw, err := newGateway(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	var wallet *jupiter.Wallet
	if wr, ok := gw.(walletReader); ok {
		w, err := wr.Balances(ctx)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("build: wallet balance: %w", err)
		}
		slog.Info("wallet balance", "address", w.Address, "quote", w.Quote, "tokens", w.Tokens)
		wallet = &w
	}

	a.ledger, err = openLedger(ctx, cfg, a.store, wallet)
	if err != nil {
		a.close()
		return nil, err
	}

	var feed ports.MarketFeed = binance.NewFeed(binance.Config{
		BaseURL:    cfg.Market.BinanceBase,
		QuoteAsset: cfg.Market.QuoteAsset,
		Interval:   cfg.Market.Interval,
	})
	collectorOpts := []collector.Option{collector.WithMarker(a.ledger)}
	if cfg.Cache.Addr != "" {
		a.cache, err = cache.New(ctx, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("build: %w", err)
		}
		feed = cache.NewFeed(feed, a.cache)
		collectorOpts = append(collectorOpts, collector.WithSink(a.cache))
	}
	coll := collector.New(feed, collector.Config{
		HistoryLimit: cfg.Market.HistoryLimit,
		MaxStaleness: cfg.MaxStaleness(),
	}, collectorOpts...)

	orc, err := oracle.New(oracle.Config{
		Provider: cfg.Oracle.Provider,
		Model:    cfg.Oracle.Model,
		APIKey:   cfg.Oracle.APIKey,
		BaseURL:  cfg.Oracle.BaseURL,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build: %w", err)
	}
	synthesizer := synth.New(orc, synth.Config{
		MaxAttempts: cfg.Oracle.MaxAttempts,
		Timeout:     cfg.OracleTimeout(),
		Temperature: cfg.Oracle.Temperature,
		MaxTokens:   cfg.Oracle.MaxTokens,
	})

	risk := cfg.RiskConfig()
	var broadcaster *httpapi.Broadcaster
	if cfg.API.Addr != "" {
		broadcaster = httpapi.NewBroadcaster(risk)
	}
	a.dispatcher, a.console = newDispatcher(cfg, broadcaster)

	exec := executor.New(a.ledger, gw, a.store, a.dispatcher, executor.Config{
		Risk:           risk,
		ConfirmTimeout: cfg.ConfirmTimeout(),
	})

	a.trader = trader.New(trader.Config{
		Tokens:   cfg.Trading.Tokens,
		Interval: cfg.TradeInterval(),
		Workers:  cfg.Trading.Workers,
		Risk:     risk,
	}, trader.Deps{
		Collector:   coll,
		Synthesizer: synthesizer,
		Executor:    exec,
		Ledger:      a.ledger,
		Trades:      a.store,
		Signals:     a.store,
		Summaries:   a.store,
		Events:      a.dispatcher,
	})

	if cfg.API.Addr != "" {
		deps := httpapi.Deps{Portfolio: a.ledger, Store: a.store, Events: broadcaster, Risk: risk}
		if a.cache != nil {
			deps.Market = a.cache
		}
		a.server = httpapi.New(cfg.API.Addr, deps)
	}
	return a, nil
}

// walletReader lo implementa el gateway de Jupiter.
type walletReader interface {
	Balances(ctx context.Context) (jupiter.Wallet, error)
}

// openLedger restaura el ledger persistido o arranca con el balance inicial.
// Con wallet (producción) el ledger nuevo parte del saldo on-chain y el
// restaurado se compara con él.
func openLedger(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, wallet *jupiter.Wallet) (*ledger.Ledger, error) {
	p, ok, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: load ledger: %w", err)
	}
	if ok {
		slog.Info("ledger restored",
			"balance", p.AvailableBalance,
			"positions", len(p.Positions),
			"day", p.Day.Format(time.DateOnly),
		)
		if wallet != nil {
			for _, m := range walletMismatches(p, *wallet) {
				slog.Warn("ledger does not match wallet", "diff", m)
			}
		}
		return ledger.Restore(p, ledger.WithStore(store)), nil
	}
	balance := startingBalance(cfg.Trading.InitialBalance, wallet)
	slog.Info("ledger initialised", "balance", balance)
	return ledger.New(balance, ledger.WithStore(store)), nil
}

// newGateway elige el venue: Jupiter sólo en producción, simulado en el resto.
func newGateway(cfg *config.Config) (ports.SettlementGateway, error) {
	if cfg.Environment() != domain.EnvProduction {
		slog.Info("settlement: paper gateway",
			"latency_ms", cfg.Gateway.PaperLatencyMs,
			"slippage_bps", cfg.Gateway.PaperSlippageBps,
		)
		return paper.NewGateway(paper.Config{
			Latency:     time.Duration(cfg.Gateway.PaperLatencyMs) * time.Millisecond,
			SlippageBps: cfg.Gateway.PaperSlippageBps,
		}), nil
	}

	signer, err := jupiter.LoadKeypair(cfg.Gateway.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("build: keypair: %w", err)
	}
	tokens := make(map[string]jupiter.Token, len(cfg.Gateway.Tokens))
	for sym, t := range cfg.Gateway.Tokens {
		tokens[sym] = jupiter.Token{Mint: t.Mint, Decimals: t.Decimals}
	}
	slog.Warn("settlement: LIVE jupiter gateway", "wallet", signer.PublicKey(), "tokens", len(tokens))
	return jupiter.NewGateway(jupiter.Config{
		BaseURL:       cfg.Gateway.JupiterBase,
		RPCURL:        cfg.Gateway.RPCURL,
		QuoteMint:     cfg.Gateway.QuoteMint,
		QuoteDecimals: cfg.Gateway.QuoteDecimals,
		Tokens:        tokens,
		PollInterval:  time.Duration(cfg.Gateway.PollIntervalMs) * time.Millisecond,
	}, signer), nil
}

func newDispatcher(cfg *config.Config, broadcaster *httpapi.Broadcaster) (*notify.Dispatcher, *notify.Console) {
	var (
		notifiers []ports.Notifier
		console   *notify.Console
	)
	if cfg.Notify.Console {
		console = notify.NewConsole(false, cfg.Notify.ConsoleSignals)
		notifiers = append(notifiers, console)
	}
	// los constructores devuelven nil sin credenciales
	if d := notify.NewDiscord(cfg.Notify.DiscordWebhook); d != nil {
		notifiers = append(notifiers, d)
	}
	if t := notify.NewTelegram(cfg.Notify.TelegramBase, cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID); t != nil {
		notifiers = append(notifiers, t)
	}
	if broadcaster != nil {
		notifiers = append(notifiers, broadcaster)
	}
	slog.Debug("notifiers configured", "count", len(notifiers))
	return notify.NewDispatcher(cfg.Notify.QueueSize, notifiers...), console
}

// run arranca el dispatcher y la API, y después el loop. Con once se hace un
// único ciclo y la API no se levanta.
func (a *app) run(ctx context.Context, once bool) error {
	go a.dispatcher.Run(context.Background())

	if once {
		rep, err := a.trader.RunOnce(ctx)
		logReport(rep)
		if a.console != nil {
			a.console.PrintPortfolio(a.ledger.Snapshot())
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}
	g.Go(func() error { return a.trader.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logReport(rep trader.CycleReport) {
	slog.Info("cycle complete",
		"tokens", rep.Tokens,
		"skipped", rep.Skipped,
		"signals", rep.Signals,
		"degraded", rep.Degraded,
		"intents", rep.Intents,
		"rejected", rep.Rejected,
		"executed", rep.Executed,
		"failed", rep.Failed,
		"stop_loss", rep.StopLoss,
		"halted", rep.Halted,
		"rolled_day", rep.RolledDay,
		"duration", rep.Duration.Round(time.Millisecond),
	)
}

// close vacía las notificaciones pendientes y libera las conexiones.
func (a *app) close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.dispatcher.Close(ctx)
		cancel()
		if n := a.dispatcher.Dropped(); n > 0 {
			slog.Warn("events dropped during run", "count", n)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("cache close", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("storage close", "err", err)
		}
	}
}
