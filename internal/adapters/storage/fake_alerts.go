package storage

import (
	"context"
	"fmt"
	"strings"
)

// RecordFakeAlert guarda la alerta y suma uno al contador de cada wallet.
func (s *SQLiteStorage) RecordFakeAlert(ctx context.Context, token, symbol string, wallets []string, reason string) error {
	now := toMillis(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordFakeAlert: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fake_alerts (token_address, token_symbol, wallet_count, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		strings.ToLower(token), symbol, len(wallets), reason, now); err != nil {
		return fmt.Errorf("storage.RecordFakeAlert: insert alert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fake_alert_wallets (wallet, fake_count, last_token, last_at) VALUES (?, 1, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			fake_count = fake_count + 1,
			last_token = excluded.last_token,
			last_at    = excluded.last_at`)
	if err != nil {
		return fmt.Errorf("storage.RecordFakeAlert: prepare: %w", err)
	}
	defer stmt.Close()

	for _, w := range wallets {
		if _, err := stmt.ExecContext(ctx, strings.ToLower(w), strings.ToLower(token), now); err != nil {
			return fmt.Errorf("storage.RecordFakeAlert: wallet %s: %w", w, err)
		}
	}
	return tx.Commit()
}

// FlaggedWallets devuelve las wallets con al menos threshold alertas falsas.
func (s *SQLiteStorage) FlaggedWallets(ctx context.Context, threshold int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet FROM fake_alert_wallets WHERE fake_count >= ? ORDER BY fake_count DESC, wallet`, threshold)
	if err != nil {
		return nil, fmt.Errorf("storage.FlaggedWallets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("storage.FlaggedWallets: scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
