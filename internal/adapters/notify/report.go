package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// ReportInput agrupa los datos del reporte del trader.
type ReportInput struct {
	States    []domain.StrategyState
	Positions []domain.Position
	Closed    []domain.ClosedTrade
	Queue     map[domain.SignalStatus]int
	Now       time.Time
}

// PrintReport imprime posiciones abiertas, trades cerrados y el estado de la cola.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  TRADER REPORT  %s\n", in.Now.Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "========================================================\n")

	if len(in.States) > 0 {
		fmt.Fprintf(c.out, "\n  --- STRATEGIES ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Strategy", "Realized", "DailyLoss", "Gas", "Streak", "Cooldown")
		for _, s := range in.States {
			cooldown := "-"
			if s.InCooldown(in.Now) {
				cooldown = s.CooldownUntil.Sub(in.Now).Round(time.Minute).String()
			}
			tbl.Append(
				s.StrategyID,
				fmt.Sprintf("%+.4f", s.RealizedPnL),
				fmt.Sprintf("%.4f", s.DailyLoss),
				fmt.Sprintf("%.5f", s.GasSpent),
				fmt.Sprintf("%d", s.ConsecutiveLosses),
				cooldown,
			)
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n  --- OPEN POSITIONS (%d) ---\n", len(in.Positions))
	if len(in.Positions) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Strategy", "Token", "Spent", "Entry$", "MCap", "TP", "Age")
		for _, p := range in.Positions {
			fired := 0
			for _, f := range p.TPFired {
				if f {
					fired++
				}
			}
			tbl.Append(
				p.StrategyID,
				symbol(p.Symbol),
				fmt.Sprintf("%.4f", p.NativeSpent),
				fmt.Sprintf("%.8g", p.EntryPrice),
				usd(p.EntryMcap),
				fmt.Sprintf("%d/%d", fired, len(p.TPLevels)),
				in.Now.Sub(p.EntryTime).Round(time.Minute).String(),
			)
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n  --- CLOSED TRADES (%d) ---\n", len(in.Closed))
	if len(in.Closed) > 0 {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Exit", "Strategy", "Token", "Reason", "PnL", "PnL%")
		var total float64
		for _, t := range in.Closed {
			total += t.PnL
			tbl.Append(
				t.ExitTime.Format("01-02 15:04"),
				t.StrategyID,
				symbol(t.Symbol),
				t.Reason,
				fmt.Sprintf("%+.4f", t.PnL),
				fmt.Sprintf("%+.1f%%", t.PnLPct),
			)
		}
		tbl.Render()
		fmt.Fprintf(c.out, "  Realized PnL: %+.4f ETH\n", total)
	}

	if len(in.Queue) > 0 {
		fmt.Fprintf(c.out, "\n  --- SIGNAL QUEUE ---\n")
		statuses := make([]string, 0, len(in.Queue))
		for s := range in.Queue {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Status", "Count")
		for _, s := range statuses {
			tbl.Append(s, fmt.Sprintf("%d", in.Queue[domain.SignalStatus(s)]))
		}
		tbl.Render()
	}

	fmt.Fprintln(c.out)
}

func symbol(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return "$" + s
}

func usd(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
