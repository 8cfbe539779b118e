package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/smartmoney/config"
	"github.com/alejandrodnm/smartmoney/internal/adapters/notify"
	"github.com/alejandrodnm/smartmoney/internal/adapters/storage"
)

const reportLookback = 7 * 24 * time.Hour

// runReport reads the persisted book of every strategy and prints it. It never trades.
func runReport(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.SQLitePath,
		storage.WithRetention(time.Duration(cfg.Storage.RetentionDays)*24*time.Hour))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	queue, closeQueue, err := openQueue(ctx, cfg.Storage, store)
	if err != nil {
		return err
	}
	defer closeQueue()

	now := time.Now()
	in := notify.ReportInput{Now: now}
	for _, s := range cfg.Strategies {
		st, err := store.LoadStrategyState(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("state %s: %w", s.ID, err)
		}
		st.StrategyID = s.ID
		in.States = append(in.States, st)

		open, err := store.LoadOpenPositions(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("positions %s: %w", s.ID, err)
		}
		in.Positions = append(in.Positions, open...)

		closed, err := store.ClosedTrades(ctx, s.ID, now.Add(-reportLookback))
		if err != nil {
			return fmt.Errorf("closed trades %s: %w", s.ID, err)
		}
		in.Closed = append(in.Closed, closed...)
	}

	if in.Queue, err = queue.CountByStatus(ctx); err != nil {
		return fmt.Errorf("queue counts: %w", err)
	}

	notify.NewConsole().PrintReport(in)
	return nil
}
