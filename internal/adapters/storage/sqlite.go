package storage

// sqlite.go: historial de trades, señales, estado del ledger y resúmenes diarios.
//
// Estrategia:
//   - `trades`: UNA fila por trade (UPSERT). Una fila terminal nunca se reescribe.
//   - `signals`: append-only, con el snapshot de indicadores en JSON.
//   - `ledger_state` + `positions`: el último snapshot del ledger, reemplazado
//     entero en cada escritura dentro de una transacción.
//   - `daily_summaries`: una fila por día cerrado.
//   - Prune automático al arrancar: señales > 90d.
//   - Los tiempos se guardan como unix millis (INTEGER) en UTC.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	json "github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    side           TEXT    NOT NULL,
    token          TEXT    NOT NULL,
    amount         REAL    NOT NULL,
    price          REAL    NOT NULL,
    value          REAL    NOT NULL,
    status         TEXT    NOT NULL,
    settlement_ref TEXT    NOT NULL DEFAULT '',
    failure_reason TEXT    NOT NULL DEFAULT '',
    signal_id      TEXT    NOT NULL DEFAULT '',
    realized_pnl   REAL    NOT NULL DEFAULT 0,
    ts             INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
    id                TEXT PRIMARY KEY,
    token             TEXT    NOT NULL,
    action            TEXT    NOT NULL,
    strength          TEXT    NOT NULL,
    confidence        REAL    NOT NULL,
    risk_level        TEXT    NOT NULL,
    reasoning         TEXT    NOT NULL,
    indicators        TEXT    NOT NULL DEFAULT '{}',
    entry_price       REAL    NOT NULL DEFAULT 0,
    stop_loss         REAL    NOT NULL DEFAULT 0,
    take_profit       REAL    NOT NULL DEFAULT 0,
    position_size_pct REAL    NOT NULL DEFAULT 0,
    degraded          INTEGER NOT NULL DEFAULT 0,
    ts                INTEGER NOT NULL
);

-- Siempre una sola fila (id = 1)
CREATE TABLE IF NOT EXISTS ledger_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    balance            REAL    NOT NULL,
    daily_pnl          REAL    NOT NULL,
    start_of_day_value REAL    NOT NULL,
    day                INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    token        TEXT PRIMARY KEY,
    amount       REAL    NOT NULL,
    avg_entry    REAL    NOT NULL,
    mark_price   REAL    NOT NULL,
    opened_at    INTEGER NOT NULL,
    last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    date           INTEGER PRIMARY KEY,
    start_value    REAL    NOT NULL,
    end_value      REAL    NOT NULL,
    realized_pnl   REAL    NOT NULL,
    executed       INTEGER NOT NULL,
    failed         INTEGER NOT NULL,
    wins           INTEGER NOT NULL,
    losses         INTEGER NOT NULL,
    open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_ts     ON trades(ts DESC);
CREATE INDEX IF NOT EXISTS idx_signals_token ON signals(token, ts DESC);
CREATE INDEX IF NOT EXISTS idx_signals_ts    ON signals(ts DESC);
`

const retentionSignals = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade inserta o actualiza un trade. Un trade ya terminal no se modifica.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, side, token, amount, price, value, status, settlement_ref,
			 failure_reason, signal_id, realized_pnl, ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount         = excluded.amount,
			price          = excluded.price,
			value          = excluded.value,
			status         = excluded.status,
			settlement_ref = excluded.settlement_ref,
			failure_reason = excluded.failure_reason,
			realized_pnl   = excluded.realized_pnl,
			updated_at     = excluded.updated_at
		WHERE trades.status = 'pending'
	`,
		t.ID, string(t.Side), t.Token, t.Amount, t.Price, t.Value, string(t.Status),
		t.SettlementRef, t.FailureReason, t.SignalID, t.RealizedPnL,
		millis(t.Timestamp), millis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: upsert %s: %w", t.ID, err)
	}
	return nil
}

const tradeColumns = `id, side, token, amount, price, value, status, settlement_ref,
	failure_reason, signal_id, realized_pnl, ts`

// ListTrades devuelve los últimos limit trades, el más reciente primero.
func (s *SQLiteStorage) ListTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY ts DESC, id LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.ListTrades: query: %w", err)
	}
	return scanTrades(rows)
}

// TradesBetween devuelve los trades con timestamp en [from, to), en orden cronológico.
func (s *SQLiteStorage) TradesBetween(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE ts >= ? AND ts < ? ORDER BY ts, id`,
		millis(from), millis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.TradesBetween: query: %w", err)
	}
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	defer rows.Close()
	var out []domain.Trade
	for rows.Next() {
		var (
			t            domain.Trade
			side, status string
			ts           int64
		)
		if err := rows.Scan(&t.ID, &side, &t.Token, &t.Amount, &t.Price, &t.Value, &status,
			&t.SettlementRef, &t.FailureReason, &t.SignalID, &t.RealizedPnL, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		t.Status = domain.TradeStatus(status)
		t.Timestamp = fromMillis(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradeStats agrega el historial completo de trades y señales.
func (s *SQLiteStorage) TradeStats(ctx context.Context) (domain.TradeStats, error) {
	var (
		st          domain.TradeStats
		first, last sql.NullInt64
		pnl, volume sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'executed'), 0),
			COALESCE(SUM(status = 'failed'), 0),
			COALESCE(SUM(status = 'executed' AND side = 'buy'), 0),
			COALESCE(SUM(status = 'executed' AND side = 'sell'), 0),
			COALESCE(SUM(status = 'executed' AND side = 'sell' AND realized_pnl > 0), 0),
			COALESCE(SUM(status = 'executed' AND side = 'sell' AND realized_pnl < 0), 0),
			SUM(CASE WHEN status = 'executed' THEN realized_pnl END),
			SUM(CASE WHEN status = 'executed' THEN value END),
			MIN(ts),
			MAX(ts)
		FROM trades
	`).Scan(&st.TotalTrades, &st.Executed, &st.Failed, &st.Buys, &st.Sells,
		&st.Wins, &st.Losses, &pnl, &volume, &first, &last)
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("storage.TradeStats: trades: %w", err)
	}
	st.RealizedPnL = pnl.Float64
	st.VolumeTraded = volume.Float64
	if first.Valid {
		st.FirstTradeAt = fromMillis(first.Int64)
		st.LastTradeAt = fromMillis(last.Int64)
	}
	if closed := st.Wins + st.Losses; closed > 0 {
		st.WinRate = float64(st.Wins) / float64(closed) * 100
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(degraded), 0) FROM signals`,
	).Scan(&st.SignalsTotal, &st.SignalsDegraded)
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("storage.TradeStats: signals: %w", err)
	}
	return st, nil
}

// SaveSignal guarda una señal. Las señales son inmutables; un ID repetido se ignora.
func (s *SQLiteStorage) SaveSignal(ctx context.Context, sig domain.Signal) error {
	ind, err := json.MarshalString(sig.Indicators)
	if err != nil {
		return fmt.Errorf("storage.SaveSignal: marshal indicators: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals
			(id, token, action, strength, confidence, risk_level, reasoning, indicators,
			 entry_price, stop_loss, take_profit, position_size_pct, degraded, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sig.ID, sig.Token, string(sig.Action), string(sig.Strength), sig.Confidence,
		string(sig.RiskLevel), sig.Reasoning, ind,
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.PositionSizePercent,
		boolInt(sig.Degraded), millis(sig.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSignal: insert %s: %w", sig.ID, err)
	}
	return nil
}

// ListSignals devuelve las últimas limit señales, opcionalmente de un solo token.
func (s *SQLiteStorage) ListSignals(ctx context.Context, token string, limit int) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, action, strength, confidence, risk_level, reasoning, indicators,
		       entry_price, stop_loss, take_profit, position_size_pct, degraded, ts
		FROM signals
		WHERE ? = '' OR token = ?
		ORDER BY ts DESC, id
		LIMIT ?
	`, token, token, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage.ListSignals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var (
			sig                    domain.Signal
			action, strength, risk string
			ind                    string
			degraded               int
			ts                     int64
		)
		if err := rows.Scan(&sig.ID, &sig.Token, &action, &strength, &sig.Confidence, &risk,
			&sig.Reasoning, &ind, &sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit,
			&sig.PositionSizePercent, &degraded, &ts); err != nil {
			return nil, fmt.Errorf("storage.ListSignals: scan row: %w", err)
		}
		sig.Action = domain.Action(action)
		sig.Strength = domain.Strength(strength)
		sig.RiskLevel = domain.RiskLevel(risk)
		sig.Degraded = degraded == 1
		sig.Timestamp = fromMillis(ts)
		if err := json.UnmarshalString(ind, &sig.Indicators); err != nil {
			return nil, fmt.Errorf("storage.ListSignals: decode indicators of %s: %w", sig.ID, err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveLedger reemplaza el snapshot persistido del ledger.
func (s *SQLiteStorage) SaveLedger(ctx context.Context, p domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := millis(s.now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_state (id, balance, daily_pnl, start_of_day_value, day, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance            = excluded.balance,
			daily_pnl          = excluded.daily_pnl,
			start_of_day_value = excluded.start_of_day_value,
			day                = excluded.day,
			updated_at         = excluded.updated_at
	`, p.AvailableBalance, p.DailyPnL, p.StartOfDayValue, millis(p.Day), now); err != nil {
		return fmt.Errorf("storage.SaveLedger: upsert state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("storage.SaveLedger: clear positions: %w", err)
	}
	if len(p.Positions) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO positions (token, amount, avg_entry, mark_price, opened_at, last_updated)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveLedger: prepare: %w", err)
		}
		defer stmt.Close()
		for _, pos := range p.Positions {
			if _, err := stmt.ExecContext(ctx, pos.Token, pos.Amount, pos.AverageEntryPrice,
				pos.MarkPrice, millis(pos.OpenedAt), millis(pos.LastUpdated)); err != nil {
				return fmt.Errorf("storage.SaveLedger: insert %s: %w", pos.Token, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveLedger: commit: %w", err)
	}
	return nil
}

// LoadLedger devuelve el último snapshot persistido. ok es false si nunca se guardó.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.Portfolio, bool, error) {
	var (
		p   domain.Portfolio
		day int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, daily_pnl, start_of_day_value, day FROM ledger_state WHERE id = 1`,
	).Scan(&p.AvailableBalance, &p.DailyPnL, &p.StartOfDayValue, &day)
	if err == sql.ErrNoRows {
		return domain.Portfolio{}, false, nil
	}
	if err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadLedger: state: %w", err)
	}
	p.Day = fromMillis(day)

	rows, err := s.db.QueryContext(ctx,
		`SELECT token, amount, avg_entry, mark_price, opened_at, last_updated FROM positions`)
	if err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadLedger: positions: %w", err)
	}
	defer rows.Close()

	p.Positions = make(map[string]domain.Position)
	for rows.Next() {
		var (
			pos            domain.Position
			opened, update int64
		)
		if err := rows.Scan(&pos.Token, &pos.Amount, &pos.AverageEntryPrice, &pos.MarkPrice, &opened, &update); err != nil {
			return domain.Portfolio{}, false, fmt.Errorf("storage.LoadLedger: scan position: %w", err)
		}
		pos.OpenedAt = fromMillis(opened)
		pos.LastUpdated = fromMillis(update)
		p.Positions[pos.Token] = pos
	}
	if err := rows.Err(); err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	p.TotalValue = p.AvailableBalance + p.PositionsValue()
	return p, true, nil
}

// SaveDailySummary inserta o reemplaza el resumen de un día.
func (s *SQLiteStorage) SaveDailySummary(ctx context.Context, d domain.DailySummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_summaries
			(date, start_value, end_value, realized_pnl, executed, failed, wins, losses, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, millis(d.Date), d.StartValue, d.EndValue, d.RealizedPnL,
		d.TradesExecuted, d.TradesFailed, d.Wins, d.Losses, d.OpenPositions)
	if err != nil {
		return fmt.Errorf("storage.SaveDailySummary: %w", err)
	}
	return nil
}

// DailySummaries devuelve los últimos days resúmenes, el más reciente primero.
func (s *SQLiteStorage) DailySummaries(ctx context.Context, days int) ([]domain.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, start_value, end_value, realized_pnl, executed, failed, wins, losses, open_positions
		FROM daily_summaries
		ORDER BY date DESC
		LIMIT ?
	`, clampLimit(days))
	if err != nil {
		return nil, fmt.Errorf("storage.DailySummaries: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var (
			d    domain.DailySummary
			date int64
		)
		if err := rows.Scan(&date, &d.StartValue, &d.EndValue, &d.RealizedPnL,
			&d.TradesExecuted, &d.TradesFailed, &d.Wins, &d.Losses, &d.OpenPositions); err != nil {
			return nil, fmt.Errorf("storage.DailySummaries: scan row: %w", err)
		}
		d.Date = fromMillis(date)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina señales antiguas para mantener la DB ligera. Los trades no se borran.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := millis(s.now().Add(-retentionSignals))
	s.db.ExecContext(ctx, `DELETE FROM signals WHERE ts < ?`, cutoff)
}

const maxLimit = 1000

func clampLimit(n int) int {
	if n <= 0 || n > maxLimit {
		return maxLimit
	}
	return n
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
