package domain

import "time"

// AlertKind distinguishes the first alert of a cooldown from repeats.
type AlertKind string

const (
	AlertNormal  AlertKind = "normal"
	AlertBullish AlertKind = "bullish"
)

// Alert is emitted when enough distinct watched wallets bought the same token.
type Alert struct {
	Token         string
	Symbol        string
	Kind          AlertKind
	Purchases     []PurchaseObservation // one per wallet, first purchase wins
	UniqueWallets int
	MarketCap     float64
	BaselineMcap  float64 // market cap at the first alert of the cooldown
	RepeatCount   int
	At            time.Time
}

// Wallets returns the distinct wallets of the alert in purchase order.
func (a Alert) Wallets() []string {
	out := make([]string, 0, len(a.Purchases))
	for _, p := range a.Purchases {
		out = append(out, p.Wallet)
	}
	return out
}

// AlertState is the per-token memory the aggregator keeps between alerts.
type AlertState struct {
	LastAlertAt       time.Time
	LastUniqueWallets int
	BaselineMcap      float64
	RepeatCount       int
	SuppressedUntil   time.Time // set when the token produced a fake alert
}

// InCooldown reports whether now is inside the cooldown that started at LastAlertAt.
func (s AlertState) InCooldown(now time.Time, cooldown time.Duration) bool {
	return !s.LastAlertAt.IsZero() && now.Sub(s.LastAlertAt) < cooldown
}

// BlackoutThreshold returns the wallet threshold in effect at t.
// During blackout hours the threshold is raised by extra.
func BlackoutThreshold(t time.Time, base int, hours []int, extra int) int {
	h := t.Hour()
	for _, bh := range hours {
		if bh == h {
			return base + extra
		}
	}
	return base
}
