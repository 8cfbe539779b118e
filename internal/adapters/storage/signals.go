package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const signalColumns = `id, token_address, token_symbol, entry_mcap, trigger_type, wallet_count, status, created_at, processed_at, result`

// Enqueue inserta la señal salvo que exista otra activa para el token dentro del cooldown.
// El chequeo y el insert son una sola sentencia, atómica frente al otro proceso.
func (s *SQLiteStorage) Enqueue(ctx context.Context, req domain.SignalRequest, cooldown time.Duration) (domain.TradeSignal, error) {
	status := req.Status
	if status == "" {
		status = domain.SignalPending
	}
	if status != domain.SignalPending && status != domain.SignalPendingConfirmation {
		return domain.TradeSignal{}, fmt.Errorf("storage.Enqueue: initial status %q: %w", status, domain.ErrInvalidTransition)
	}

	token := strings.ToLower(req.Token)
	now := s.now().UTC()
	var since int64
	if cooldown > 0 {
		since = toMillis(now.Add(-cooldown))
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_signals (token_address, token_symbol, entry_mcap, trigger_type, wallet_count, status, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM trade_signals
			WHERE token_address = ?
			  AND status IN ('pending','pending_confirmation','approved','processing','executed')
			  AND created_at > ?
		)`,
		token, req.Symbol, req.EntryMcap, req.TriggerType, req.WalletCount, string(status), toMillis(now),
		token, since,
	)
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("storage.Enqueue: insert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.TradeSignal{}, domain.ErrDuplicateSignal
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("storage.Enqueue: last id: %w", err)
	}

	return domain.TradeSignal{
		ID:          id,
		Token:       token,
		Symbol:      req.Symbol,
		EntryMcap:   req.EntryMcap,
		TriggerType: req.TriggerType,
		WalletCount: req.WalletCount,
		Status:      status,
		CreatedAt:   fromMillis(toMillis(now)),
	}, nil
}

// Dequeue reclama hasta limit señales moviéndolas a processing en la misma sentencia.
// trigger vacío acepta cualquier tipo.
func (s *SQLiteStorage) Dequeue(ctx context.Context, status domain.SignalStatus, trigger string, maxAge time.Duration, limit int) ([]domain.TradeSignal, error) {
	if !domain.CanTransition(status, domain.SignalProcessing) {
		return nil, fmt.Errorf("storage.Dequeue: %s → processing: %w", status, domain.ErrInvalidTransition)
	}
	if limit <= 0 {
		limit = 10
	}
	now := s.now().UTC()
	var since int64
	if maxAge > 0 {
		since = toMillis(now.Add(-maxAge))
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE trade_signals SET status = 'processing', processed_at = ?
		WHERE id IN (
			SELECT id FROM trade_signals
			WHERE status = ? AND (? = '' OR trigger_type = ?) AND created_at > ?
			ORDER BY created_at, id
			LIMIT ?
		)
		RETURNING `+signalColumns,
		toMillis(now), string(status), trigger, trigger, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Dequeue: %w", err)
	}
	defer rows.Close()

	out, err := scanSignals(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.Dequeue: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Transition cambia el estado si la máquina de estados lo permite.
// result nil conserva el resultado anterior.
func (s *SQLiteStorage) Transition(ctx context.Context, id int64, status domain.SignalStatus, result *domain.SignalResult) error {
	preds := domain.Predecessors(status)
	if len(preds) == 0 {
		return fmt.Errorf("storage.Transition: nothing moves to %s: %w", status, domain.ErrInvalidTransition)
	}
	resultJSON, err := marshalResult(result)
	if err != nil {
		return fmt.Errorf("storage.Transition: %w", err)
	}

	args := []any{string(status), toMillis(s.now().UTC()), resultJSON, id}
	placeholders := make([]string, len(preds))
	for i, p := range preds {
		placeholders[i] = "?"
		args = append(args, string(p))
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE trade_signals SET status = ?, processed_at = ?, result = COALESCE(?, result)
		 WHERE id = ? AND status IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("storage.Transition: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM trade_signals WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage.Transition: signal %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage.Transition: read status: %w", err)
	}
	return fmt.Errorf("storage.Transition: signal %d %s → %s: %w", id, current, status, domain.ErrInvalidTransition)
}

// Expire pasa a terminal las señales que superaron su antigüedad máxima.
func (s *SQLiteStorage) Expire(ctx context.Context, policy domain.ExpiryPolicy) (int, error) {
	now := s.now().UTC()
	sweeps := []struct {
		from   string
		to     domain.SignalStatus
		maxAge time.Duration
		reason string
	}{
		{`'pending'`, domain.SignalSkipped, policy.PendingMaxAge, "timeout"},
		{`'pending_confirmation','approved'`, domain.SignalSkipped, policy.ConfirmationMaxAge, "confirmation_timeout"},
		{`'processing'`, domain.SignalFailed, policy.ProcessingMaxAge, "processing_timeout"},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.Expire: begin tx: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, sw := range sweeps {
		if sw.maxAge <= 0 {
			continue
		}
		result, _ := marshalResult(&domain.SignalResult{Reason: sw.reason})
		res, err := tx.ExecContext(ctx,
			`UPDATE trade_signals SET status = ?, processed_at = ?, result = ?
			 WHERE status IN (`+sw.from+`) AND created_at <= ?`,
			string(sw.to), toMillis(now), result, toMillis(now.Add(-sw.maxAge)),
		)
		if err != nil {
			return 0, fmt.Errorf("storage.Expire: %s: %w", sw.reason, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.Expire: commit: %w", err)
	}
	return total, nil
}

// ListByStatus devuelve señales en status, las más viejas primero.
func (s *SQLiteStorage) ListByStatus(ctx context.Context, status domain.SignalStatus, limit int) ([]domain.TradeSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM trade_signals WHERE status = ? ORDER BY created_at, id LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListByStatus: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// CountByStatus cuenta señales por estado.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[domain.SignalStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM trade_signals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("storage.CountByStatus: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SignalStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("storage.CountByStatus: scan: %w", err)
		}
		out[domain.SignalStatus(st)] = n
	}
	return out, rows.Err()
}

func scanSignals(rows *sql.Rows) ([]domain.TradeSignal, error) {
	var out []domain.TradeSignal
	for rows.Next() {
		var (
			sig       domain.TradeSignal
			status    string
			createdAt int64
			processed sql.NullInt64
			result    sql.NullString
		)
		if err := rows.Scan(&sig.ID, &sig.Token, &sig.Symbol, &sig.EntryMcap, &sig.TriggerType,
			&sig.WalletCount, &status, &createdAt, &processed, &result); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		st, err := domain.ParseSignalStatus(status)
		if err != nil {
			return nil, err
		}
		sig.Status = st
		sig.CreatedAt = fromMillis(createdAt)
		sig.ProcessedAt = timePtr(processed)
		if sig.Result, err = unmarshalResult(result); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func marshalResult(r *domain.SignalResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalResult(s sql.NullString) (*domain.SignalResult, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var r domain.SignalResult
	if err := json.Unmarshal([]byte(s.String), &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}
