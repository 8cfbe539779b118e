package storage

// positions.go: persistencia de posiciones, trades cerrados y estado de riesgo.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// InsertPosition guarda una posición nueva. Devuelve domain.ErrDuplicatePosition
// si la estrategia ya tiene ese token.
func (s *SQLiteStorage) InsertPosition(ctx context.Context, p domain.Position) error {
	levels, fired, err := encodeLadder(p)
	if err != nil {
		return fmt.Errorf("storage.InsertPosition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions (strategy_id, token_address, token_symbol, signal_id, entry_price, entry_mcap,
			amount, native_spent, entry_time, tp_levels, tp_fired, fee_tier, decimals, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.StrategyID, strings.ToLower(p.Token), p.Symbol, p.SignalID, p.EntryPrice, p.EntryMcap,
		p.Amount, p.NativeSpent, toMillis(p.EntryTime), levels, fired, p.FeeTier, p.Decimals, p.TxHash,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("storage.InsertPosition: %s/%s: %w", p.StrategyID, p.Token, domain.ErrDuplicatePosition)
		}
		return fmt.Errorf("storage.InsertPosition: %w", err)
	}
	return nil
}

// UpdatePosition persiste cantidad, costo y niveles TP tras una salida parcial.
func (s *SQLiteStorage) UpdatePosition(ctx context.Context, p domain.Position) error {
	levels, fired, err := encodeLadder(p)
	if err != nil {
		return fmt.Errorf("storage.UpdatePosition: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET amount = ?, native_spent = ?, tp_levels = ?, tp_fired = ?
		WHERE strategy_id = ? AND token_address = ?`,
		p.Amount, p.NativeSpent, levels, fired, p.StrategyID, strings.ToLower(p.Token),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdatePosition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdatePosition: %s/%s: %w", p.StrategyID, p.Token, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) DeletePosition(ctx context.Context, strategyID, token string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM positions WHERE strategy_id = ? AND token_address = ?`,
		strategyID, strings.ToLower(token)); err != nil {
		return fmt.Errorf("storage.DeletePosition: %w", err)
	}
	return nil
}

// LoadOpenPositions devuelve las posiciones de la estrategia; "" devuelve todas.
func (s *SQLiteStorage) LoadOpenPositions(ctx context.Context, strategyID string) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, token_address, token_symbol, signal_id, entry_price, entry_mcap, amount,
			native_spent, entry_time, tp_levels, tp_fired, fee_tier, decimals, tx_hash
		FROM positions WHERE (? = '' OR strategy_id = ?) ORDER BY entry_time`, strategyID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadOpenPositions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p             domain.Position
			entryTime     int64
			levels, fired string
		)
		if err := rows.Scan(&p.StrategyID, &p.Token, &p.Symbol, &p.SignalID, &p.EntryPrice, &p.EntryMcap,
			&p.Amount, &p.NativeSpent, &entryTime, &levels, &fired, &p.FeeTier, &p.Decimals, &p.TxHash); err != nil {
			return nil, fmt.Errorf("storage.LoadOpenPositions: scan: %w", err)
		}
		p.EntryTime = fromMillis(entryTime)
		if err := json.Unmarshal([]byte(levels), &p.TPLevels); err != nil {
			return nil, fmt.Errorf("storage.LoadOpenPositions: tp levels: %w", err)
		}
		if err := json.Unmarshal([]byte(fired), &p.TPFired); err != nil {
			return nil, fmt.Errorf("storage.LoadOpenPositions: tp fired: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendClosedTrade registra una salida realizada.
func (s *SQLiteStorage) AppendClosedTrade(ctx context.Context, t domain.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_trades (id, strategy_id, token_address, token_symbol, entry_price, exit_price, amount,
			cost_basis, native_received, pnl, pnl_pct, gas_native, reason, partial, tx_hash, entry_time, exit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.StrategyID, strings.ToLower(t.Token), t.Symbol, t.EntryPrice, t.ExitPrice, t.Amount,
		t.CostBasis, t.NativeReceived, t.PnL, t.PnLPct, t.GasNative, t.Reason, boolToInt(t.Partial), t.TxHash,
		toMillis(t.EntryTime), toMillis(t.ExitTime),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendClosedTrade: %w", err)
	}
	return nil
}

// ClosedTrades devuelve las salidas desde since, más recientes primero; strategyID "" devuelve todas.
func (s *SQLiteStorage) ClosedTrades(ctx context.Context, strategyID string, since time.Time) ([]domain.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy_id, token_address, token_symbol, entry_price, exit_price, amount, cost_basis,
			native_received, pnl, pnl_pct, gas_native, reason, partial, tx_hash, entry_time, exit_time
		FROM closed_trades
		WHERE (? = '' OR strategy_id = ?) AND exit_time >= ?
		ORDER BY exit_time DESC`, strategyID, strategyID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("storage.ClosedTrades: %w", err)
	}
	defer rows.Close()

	var out []domain.ClosedTrade
	for rows.Next() {
		var (
			t               domain.ClosedTrade
			partial         int
			entryAt, exitAt int64
		)
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.Token, &t.Symbol, &t.EntryPrice, &t.ExitPrice, &t.Amount,
			&t.CostBasis, &t.NativeReceived, &t.PnL, &t.PnLPct, &t.GasNative, &t.Reason, &partial, &t.TxHash,
			&entryAt, &exitAt); err != nil {
			return nil, fmt.Errorf("storage.ClosedTrades: scan: %w", err)
		}
		t.Partial = partial == 1
		t.EntryTime = fromMillis(entryAt)
		t.ExitTime = fromMillis(exitAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveStrategyState hace upsert del estado de riesgo de la estrategia.
func (s *SQLiteStorage) SaveStrategyState(ctx context.Context, st domain.StrategyState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_state (strategy_id, consecutive_losses, cooldown_until, daily_loss, daily_loss_date,
			realized_pnl, gas_spent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET
			consecutive_losses = excluded.consecutive_losses,
			cooldown_until     = excluded.cooldown_until,
			daily_loss         = excluded.daily_loss,
			daily_loss_date    = excluded.daily_loss_date,
			realized_pnl       = excluded.realized_pnl,
			gas_spent          = excluded.gas_spent,
			updated_at         = excluded.updated_at`,
		st.StrategyID, st.ConsecutiveLosses, toMillis(st.CooldownUntil), st.DailyLoss, st.DailyLossDate,
		st.RealizedPnL, st.GasSpent, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveStrategyState: %w", err)
	}
	return nil
}

// LoadStrategyState devuelve el estado guardado, o uno vacío si la estrategia es nueva.
func (s *SQLiteStorage) LoadStrategyState(ctx context.Context, strategyID string) (domain.StrategyState, error) {
	st := domain.StrategyState{StrategyID: strategyID}
	var cooldown int64
	err := s.db.QueryRowContext(ctx, `
		SELECT consecutive_losses, cooldown_until, daily_loss, daily_loss_date, realized_pnl, gas_spent
		FROM strategy_state WHERE strategy_id = ?`, strategyID).
		Scan(&st.ConsecutiveLosses, &cooldown, &st.DailyLoss, &st.DailyLossDate, &st.RealizedPnL, &st.GasSpent)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("storage.LoadStrategyState: %w", err)
	}
	st.CooldownUntil = fromMillis(cooldown)
	return st, nil
}

func encodeLadder(p domain.Position) (string, string, error) {
	levels := p.TPLevels
	if levels == nil {
		levels = []domain.TPLevel{}
	}
	fired := p.TPFired
	if fired == nil {
		fired = []bool{}
	}
	l, err := json.Marshal(levels)
	if err != nil {
		return "", "", fmt.Errorf("marshal tp levels: %w", err)
	}
	f, err := json.Marshal(fired)
	if err != nil {
		return "", "", fmt.Errorf("marshal tp fired: %w", err)
	}
	return string(l), string(f), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
