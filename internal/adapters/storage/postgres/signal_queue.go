package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_signals (
    id            BIGSERIAL PRIMARY KEY,
    token_address TEXT        NOT NULL,
    token_symbol  TEXT        NOT NULL DEFAULT '',
    entry_mcap    DOUBLE PRECISION NOT NULL DEFAULT 0,
    trigger_type  TEXT        NOT NULL,
    wallet_count  INTEGER     NOT NULL DEFAULT 0,
    status        TEXT        NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    processed_at  TIMESTAMPTZ,
    result        JSONB
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON trade_signals(status, created_at);
CREATE INDEX IF NOT EXISTS idx_signals_token  ON trade_signals(token_address, status);
`

const signalColumns = `id, token_address, token_symbol, entry_mcap, trigger_type, wallet_count, status, created_at, processed_at, result`

// SignalQueue implements ports.SignalQueue on PostgreSQL so the monitor and
// several traders can run on different hosts.
type SignalQueue struct {
	pool *Pool
	now  func() time.Time
}

// Compile-time interface check.
var _ ports.SignalQueue = (*SignalQueue)(nil)

// NewSignalQueue creates the queue and applies its schema.
func NewSignalQueue(ctx context.Context, pool *Pool) (*SignalQueue, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres.NewSignalQueue: apply schema: %w", err)
	}
	return &SignalQueue{pool: pool, now: time.Now}, nil
}

// WithClock replaces time.Now.
func (q *SignalQueue) WithClock(now func() time.Time) *SignalQueue {
	q.now = now
	return q
}

func (q *SignalQueue) Close() error {
	q.pool.Close()
	return nil
}

// Enqueue serializes enqueues per token with a transaction-scoped advisory lock,
// so two monitors cannot both pass the duplicate check.
func (q *SignalQueue) Enqueue(ctx context.Context, req domain.SignalRequest, cooldown time.Duration) (domain.TradeSignal, error) {
	status := req.Status
	if status == "" {
		status = domain.SignalPending
	}
	if status != domain.SignalPending && status != domain.SignalPendingConfirmation {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: initial status %q: %w", status, domain.ErrInvalidTransition)
	}
	token := strings.ToLower(req.Token)
	now := q.now().UTC()
	since := time.Unix(0, 0).UTC()
	if cooldown > 0 {
		since = now.Add(-cooldown)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, token); err != nil {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: lock: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trade_signals
			WHERE token_address = $1 AND status = ANY($2) AND created_at > $3
		)`, token, statusStrings(domain.ActiveStatuses), since).Scan(&exists)
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: check duplicate: %w", err)
	}
	if exists {
		return domain.TradeSignal{}, domain.ErrDuplicateSignal
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO trade_signals (token_address, token_symbol, entry_mcap, trigger_type, wallet_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		token, req.Symbol, req.EntryMcap, req.TriggerType, req.WalletCount, string(status), now,
	).Scan(&id)
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.TradeSignal{}, fmt.Errorf("postgres.Enqueue: commit: %w", err)
	}

	return domain.TradeSignal{
		ID:          id,
		Token:       token,
		Symbol:      req.Symbol,
		EntryMcap:   req.EntryMcap,
		TriggerType: req.TriggerType,
		WalletCount: req.WalletCount,
		Status:      status,
		CreatedAt:   now,
	}, nil
}

// Dequeue claims rows with FOR UPDATE SKIP LOCKED, so concurrent traders never share a signal.
func (q *SignalQueue) Dequeue(ctx context.Context, status domain.SignalStatus, trigger string, maxAge time.Duration, limit int) ([]domain.TradeSignal, error) {
	if !domain.CanTransition(status, domain.SignalProcessing) {
		return nil, fmt.Errorf("postgres.Dequeue: %s → processing: %w", status, domain.ErrInvalidTransition)
	}
	if limit <= 0 {
		limit = 10
	}
	now := q.now().UTC()
	since := time.Unix(0, 0).UTC()
	if maxAge > 0 {
		since = now.Add(-maxAge)
	}

	rows, err := q.pool.Query(ctx, `
		UPDATE trade_signals SET status = 'processing', processed_at = $1
		WHERE id IN (
			SELECT id FROM trade_signals
			WHERE status = $2 AND ($3 = '' OR trigger_type = $3) AND created_at > $4
			ORDER BY created_at, id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+signalColumns,
		now, string(status), trigger, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres.Dequeue: %w", err)
	}
	out, err := collectSignals(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres.Dequeue: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *SignalQueue) Transition(ctx context.Context, id int64, status domain.SignalStatus, result *domain.SignalResult) error {
	preds := domain.Predecessors(status)
	if len(preds) == 0 {
		return fmt.Errorf("postgres.Transition: nothing moves to %s: %w", status, domain.ErrInvalidTransition)
	}
	resultJSON, err := marshalResult(result)
	if err != nil {
		return fmt.Errorf("postgres.Transition: %w", err)
	}

	tag, err := q.pool.Exec(ctx, `
		UPDATE trade_signals SET status = $1, processed_at = $2, result = COALESCE($3, result)
		WHERE id = $4 AND status = ANY($5)`,
		string(status), q.now().UTC(), resultJSON, id, statusStrings(preds),
	)
	if err != nil {
		return fmt.Errorf("postgres.Transition: update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = q.pool.QueryRow(ctx, `SELECT status FROM trade_signals WHERE id = $1`, id).Scan(&current)
	if isNotFoundError(err) {
		return fmt.Errorf("postgres.Transition: signal %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres.Transition: read status: %w", err)
	}
	return fmt.Errorf("postgres.Transition: signal %d %s → %s: %w", id, current, status, domain.ErrInvalidTransition)
}

func (q *SignalQueue) Expire(ctx context.Context, policy domain.ExpiryPolicy) (int, error) {
	now := q.now().UTC()
	sweeps := []struct {
		from   []domain.SignalStatus
		to     domain.SignalStatus
		maxAge time.Duration
		reason string
	}{
		{[]domain.SignalStatus{domain.SignalPending}, domain.SignalSkipped, policy.PendingMaxAge, "timeout"},
		{[]domain.SignalStatus{domain.SignalPendingConfirmation, domain.SignalApproved}, domain.SignalSkipped, policy.ConfirmationMaxAge, "confirmation_timeout"},
		{[]domain.SignalStatus{domain.SignalProcessing}, domain.SignalFailed, policy.ProcessingMaxAge, "processing_timeout"},
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres.Expire: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, sw := range sweeps {
		if sw.maxAge <= 0 {
			continue
		}
		result, _ := marshalResult(&domain.SignalResult{Reason: sw.reason})
		tag, err := tx.Exec(ctx, `
			UPDATE trade_signals SET status = $1, processed_at = $2, result = $3
			WHERE status = ANY($4) AND created_at <= $5`,
			string(sw.to), now, result, statusStrings(sw.from), now.Add(-sw.maxAge),
		)
		if err != nil {
			return 0, fmt.Errorf("postgres.Expire: %s: %w", sw.reason, err)
		}
		total += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres.Expire: commit: %w", err)
	}
	return total, nil
}

func (q *SignalQueue) ListByStatus(ctx context.Context, status domain.SignalStatus, limit int) ([]domain.TradeSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM trade_signals WHERE status = $1 ORDER BY created_at, id LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListByStatus: %w", err)
	}
	return collectSignals(rows)
}

func (q *SignalQueue) CountByStatus(ctx context.Context) (map[domain.SignalStatus]int, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM trade_signals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres.CountByStatus: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SignalStatus]int)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("postgres.CountByStatus: scan: %w", err)
		}
		out[domain.SignalStatus(st)] = int(n)
	}
	return out, rows.Err()
}

func collectSignals(rows pgx.Rows) ([]domain.TradeSignal, error) {
	defer rows.Close()
	var out []domain.TradeSignal
	for rows.Next() {
		var (
			sig    domain.TradeSignal
			status string
			result []byte
		)
		if err := rows.Scan(&sig.ID, &sig.Token, &sig.Symbol, &sig.EntryMcap, &sig.TriggerType,
			&sig.WalletCount, &status, &sig.CreatedAt, &sig.ProcessedAt, &result); err != nil {
			return nil, fmt.Errorf("postgres.collectSignals: scan: %w", err)
		}
		st, err := domain.ParseSignalStatus(status)
		if err != nil {
			return nil, err
		}
		sig.Status = st
		sig.CreatedAt = sig.CreatedAt.UTC()
		if len(result) > 0 {
			sig.Result = &domain.SignalResult{}
			if err := json.Unmarshal(result, sig.Result); err != nil {
				return nil, fmt.Errorf("postgres.collectSignals: unmarshal result: %w", err)
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func marshalResult(r *domain.SignalResult) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("postgres.marshalResult: %w", err)
	}
	return b, nil
}

func statusStrings(ss []domain.SignalStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
