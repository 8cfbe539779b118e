package storage

// sqlite.go: almacenamiento compartido por el monitor y el trader.
//
// Tablas:
//   trade_signals     : cola de señales (máquina de estados, dedup por token)
//   positions         : posiciones abiertas, una por (estrategia, token)
//   closed_trades     : salidas realizadas, parciales o totales
//   strategy_state    : racha de pérdidas, pérdida diaria, gas gastado
//   fake_alerts       : alertas que no pasaron la re-validación
//   fake_alert_wallets: contador de alertas falsas por wallet
//
// Los timestamps se guardan como unix millis (INTEGER) para que las comparaciones
// de antigüedad sean numéricas. Prune al arrancar: señales terminales y alertas
// falsas más viejas que la retención.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/smartmoney/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_signals (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT    NOT NULL,
    token_symbol  TEXT    NOT NULL DEFAULT '',
    entry_mcap    REAL    NOT NULL DEFAULT 0,
    trigger_type  TEXT    NOT NULL,
    wallet_count  INTEGER NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL,
    created_at    INTEGER NOT NULL,
    processed_at  INTEGER,
    result        TEXT
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON trade_signals(status, created_at);
CREATE INDEX IF NOT EXISTS idx_signals_token  ON trade_signals(token_address, status);

CREATE TABLE IF NOT EXISTS positions (
    strategy_id   TEXT    NOT NULL,
    token_address TEXT    NOT NULL,
    token_symbol  TEXT    NOT NULL DEFAULT '',
    signal_id     INTEGER NOT NULL DEFAULT 0,
    entry_price   REAL    NOT NULL,
    entry_mcap    REAL    NOT NULL DEFAULT 0,
    amount        REAL    NOT NULL,
    native_spent  REAL    NOT NULL,
    entry_time    INTEGER NOT NULL,
    tp_levels     TEXT    NOT NULL DEFAULT '[]',
    tp_fired      TEXT    NOT NULL DEFAULT '[]',
    fee_tier      INTEGER NOT NULL DEFAULT 0,
    decimals      INTEGER NOT NULL DEFAULT 18,
    tx_hash       TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (strategy_id, token_address)
);

CREATE TABLE IF NOT EXISTS closed_trades (
    id              TEXT PRIMARY KEY,
    strategy_id     TEXT    NOT NULL,
    token_address   TEXT    NOT NULL,
    token_symbol    TEXT    NOT NULL DEFAULT '',
    entry_price     REAL    NOT NULL,
    exit_price      REAL    NOT NULL,
    amount          REAL    NOT NULL,
    cost_basis      REAL    NOT NULL,
    native_received REAL    NOT NULL,
    pnl             REAL    NOT NULL,
    pnl_pct         REAL    NOT NULL,
    gas_native      REAL    NOT NULL DEFAULT 0,
    reason          TEXT    NOT NULL,
    partial         INTEGER NOT NULL DEFAULT 0,
    tx_hash         TEXT    NOT NULL DEFAULT '',
    entry_time      INTEGER NOT NULL,
    exit_time       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_strategy ON closed_trades(strategy_id, exit_time DESC);

CREATE TABLE IF NOT EXISTS strategy_state (
    strategy_id        TEXT PRIMARY KEY,
    consecutive_losses INTEGER NOT NULL DEFAULT 0,
    cooldown_until     INTEGER NOT NULL DEFAULT 0,
    daily_loss         REAL    NOT NULL DEFAULT 0,
    daily_loss_date    TEXT    NOT NULL DEFAULT '',
    realized_pnl       REAL    NOT NULL DEFAULT 0,
    gas_spent          REAL    NOT NULL DEFAULT 0,
    updated_at         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fake_alerts (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    token_address TEXT    NOT NULL,
    token_symbol  TEXT    NOT NULL DEFAULT '',
    wallet_count  INTEGER NOT NULL,
    reason        TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fake_alert_wallets (
    wallet     TEXT PRIMARY KEY,
    fake_count INTEGER NOT NULL DEFAULT 0,
    last_token TEXT    NOT NULL DEFAULT '',
    last_at    INTEGER NOT NULL
);
`

const defaultRetention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.SignalQueue, ports.PositionStore y
// ports.FakeAlertRecorder usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

var (
	_ ports.SignalQueue       = (*SQLiteStorage)(nil)
	_ ports.PositionStore     = (*SQLiteStorage)(nil)
	_ ports.FakeAlertRecorder = (*SQLiteStorage)(nil)
)

// Option personaliza el storage.
type Option func(*SQLiteStorage)

// WithRetention cambia la retención de señales terminales y alertas falsas.
func WithRetention(d time.Duration) Option {
	return func(s *SQLiteStorage) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string, opts ...Option) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	// el monitor y el trader comparten el archivo: esperar locks en vez de fallar
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, retention: defaultRetention, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if n, err := s.Prune(context.Background()); err != nil {
		slog.Warn("storage: prune failed", "err", err)
	} else if n > 0 {
		slog.Info("storage: pruned old rows", "rows", n)
	}
	return s, nil
}

// Close cierra la conexión.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Prune borra señales terminales y alertas falsas más viejas que la retención.
func (s *SQLiteStorage) Prune(ctx context.Context) (int64, error) {
	cutoff := toMillis(s.now().Add(-s.retention))
	var total int64

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trade_signals WHERE status IN ('executed','failed','skipped') AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: signals: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.ExecContext(ctx, `DELETE FROM fake_alerts WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("storage.Prune: fake alerts: %w", err)
	}
	n, _ = res.RowsAffected()
	return total + n, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
