// Package message formats operator notifications as Telegram HTML.
package message

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const maxWalletLines = 5

// Alert arma el mensaje de una alerta de smart money.
func Alert(a domain.Alert, info domain.TokenInfo) string {
	var sb strings.Builder
	if a.Kind == domain.AlertBullish {
		fmt.Fprintf(&sb, "🚀 <b>BULLISH #%d</b> %s\n", a.RepeatCount, html.EscapeString(Symbol(a.Symbol)))
	} else {
		fmt.Fprintf(&sb, "🔔 <b>SMART MONEY</b> %s\n", html.EscapeString(Symbol(a.Symbol)))
	}
	fmt.Fprintf(&sb, "<code>%s</code>\n", a.Token)
	fmt.Fprintf(&sb, "Wallets: %d | MCap: %s", a.UniqueWallets, USD(a.MarketCap))
	if a.Kind == domain.AlertBullish && a.BaselineMcap > 0 {
		fmt.Fprintf(&sb, " (%+.1f%% vs first alert %s)", pctChange(a.BaselineMcap, a.MarketCap), USD(a.BaselineMcap))
	}
	sb.WriteString("\n")
	if info.LiquidityUSD > 0 || info.Volume24hUSD > 0 {
		fmt.Fprintf(&sb, "Liq: %s | Vol24h: %s | Txns24h: %d\n",
			USD(info.LiquidityUSD), USD(info.Volume24hUSD), info.Txns24h())
	}

	var total float64
	for i, p := range a.Purchases {
		total += p.ValueNative
		if i >= maxWalletLines {
			continue
		}
		fmt.Fprintf(&sb, "  • <code>%s</code> %.4f ETH @ %s\n", shortAddr(p.Wallet), p.ValueNative, USD(p.MarketCap))
	}
	if extra := len(a.Purchases) - maxWalletLines; extra > 0 {
		fmt.Fprintf(&sb, "  … +%d more\n", extra)
	}
	fmt.Fprintf(&sb, "Total: %.4f ETH", total)
	return sb.String()
}

// FakeAlert avisa que una alerta no pasó el re-check tardío.
func FakeAlert(token, sym, reason string, wallets int) string {
	return fmt.Sprintf("⚠️ <b>FAKE ALERT</b> %s <code>%s</code>\n%d wallets, %s",
		html.EscapeString(Symbol(sym)), token, wallets, html.EscapeString(reason))
}

// Entry arma el mensaje de una entrada.
func Entry(p domain.Position, mode string) string {
	return fmt.Sprintf("🟢 <b>[%s] BUY</b> %s (%s)\n<code>%s</code>\nSpent: %.4f ETH | Price: $%.8g | MCap: %s",
		p.StrategyID, html.EscapeString(Symbol(p.Symbol)), mode, p.Token,
		p.NativeSpent, p.EntryPrice, USD(p.EntryMcap))
}

// Exit arma el mensaje de una salida total o parcial.
func Exit(t domain.ClosedTrade) string {
	icon := "🔴"
	if t.PnL >= 0 {
		icon = "💰"
	}
	kind := "SELL"
	if t.Partial {
		kind = "PARTIAL SELL"
	}
	return fmt.Sprintf("%s <b>[%s] %s</b> %s %s\nPnL: %+.4f ETH (%+.1f%%) | Held: %s",
		icon, t.StrategyID, kind, html.EscapeString(Symbol(t.Symbol)), t.Reason,
		t.PnL, t.PnLPct, t.ExitTime.Sub(t.EntryTime).Round(time.Second))
}

// Rotation avisa de un cambio de endpoint RPC.
func Rotation(h domain.ChainHealth, reason string) string {
	return fmt.Sprintf("🔁 RPC rotated to %s (%d/%d): %s",
		h.ActiveEndpoint, h.ActiveIndex+1, h.Endpoints, html.EscapeString(reason))
}

// Degraded avisa que todos los endpoints fallan desde hace un rato.
func Degraded(h domain.ChainHealth, now time.Time) string {
	return fmt.Sprintf("🚨 <b>RPC DEGRADED</b>: all %d endpoints failing for %s (rotations: %d)",
		h.Endpoints, now.Sub(h.ExhaustedSince).Round(time.Second), h.Rotations)
}

// DailySummary resume el día de una estrategia.
func DailySummary(st domain.StrategyState, open int, exposure float64, trades []domain.ClosedTrade) string {
	var pnl float64
	wins := 0
	for _, t := range trades {
		pnl += t.PnL
		if t.PnL > 0 {
			wins++
		}
	}
	return fmt.Sprintf("📊 <b>[%s] daily summary</b>\nExits: %d (wins %d) | PnL: %+.4f ETH\nOpen: %d | Exposure: %.4f ETH | Daily loss: %.4f ETH | Gas: %.5f ETH",
		st.StrategyID, len(trades), wins, pnl, open, exposure, st.DailyLoss, st.GasSpent)
}

// Symbol formats a ticker for display.
func Symbol(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return "$" + s
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:8] + "..." + a[len(a)-4:]
}

// USD formats an amount with K/M suffixes.
func USD(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func pctChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to/from - 1) * 100
}
