package domain

import (
	"fmt"
	"time"
)

// SignalStatus is the lifecycle state of a queued trade signal.
type SignalStatus string

const (
	SignalPending             SignalStatus = "pending"
	SignalPendingConfirmation SignalStatus = "pending_confirmation"
	SignalApproved            SignalStatus = "approved"
	SignalProcessing          SignalStatus = "processing"
	SignalExecuted            SignalStatus = "executed"
	SignalFailed              SignalStatus = "failed"
	SignalSkipped             SignalStatus = "skipped"
)

// Trigger types, one per strategy source.
const (
	TriggerSmartMoney     = "smart_money"
	TriggerSmartestWallet = "smartest_wallet"
)

// ActiveStatuses block a second signal for the same token within the cooldown.
// executed is terminal for the state machine but still counts: the token was traded.
var ActiveStatuses = []SignalStatus{
	SignalPending,
	SignalPendingConfirmation,
	SignalApproved,
	SignalProcessing,
	SignalExecuted,
}

var transitions = map[SignalStatus][]SignalStatus{
	SignalPending:             {SignalProcessing, SignalSkipped},
	SignalPendingConfirmation: {SignalApproved, SignalSkipped},
	SignalApproved:            {SignalProcessing, SignalSkipped},
	SignalProcessing:          {SignalExecuted, SignalFailed},
}

// Terminal reports whether no transition leaves s.
func (s SignalStatus) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to SignalStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may move to s.
func Predecessors(s SignalStatus) []SignalStatus {
	var out []SignalStatus
	for from, tos := range transitions {
		for _, to := range tos {
			if to == s {
				out = append(out, from)
			}
		}
	}
	return out
}

// ParseSignalStatus validates a status read from storage.
func ParseSignalStatus(s string) (SignalStatus, error) {
	st := SignalStatus(s)
	switch st {
	case SignalPending, SignalPendingConfirmation, SignalApproved, SignalProcessing,
		SignalExecuted, SignalFailed, SignalSkipped:
		return st, nil
	}
	return "", fmt.Errorf("unknown signal status %q", s)
}

// SignalRequest is what the monitor enqueues.
type SignalRequest struct {
	Token       string
	Symbol      string
	EntryMcap   float64
	TriggerType string
	WalletCount int
	Status      SignalStatus // pending or pending_confirmation
}

// SignalResult is the outcome stored with a signal. Fields are optional.
type SignalResult struct {
	Reason       string  `json:"reason,omitempty"`
	TxHash       string  `json:"tx_hash,omitempty"`
	NativeSpent  float64 `json:"native_spent,omitempty"`
	TokenAmount  float64 `json:"token_amount,omitempty"`
	EntryPrice   float64 `json:"entry_price,omitempty"`
	FeeTier      uint32  `json:"fee_tier,omitempty"`
	MarketCapNow float64 `json:"market_cap_now,omitempty"`
	ChangePct    float64 `json:"change_pct,omitempty"`
}

// TradeSignal is a durable row of the signal queue.
type TradeSignal struct {
	ID          int64
	Token       string
	Symbol      string
	EntryMcap   float64
	TriggerType string
	WalletCount int
	Status      SignalStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Result      *SignalResult
}

// ExpiryPolicy defines how long a signal may stay in each non-terminal status.
type ExpiryPolicy struct {
	PendingMaxAge      time.Duration // pending → skipped (timeout)
	ConfirmationMaxAge time.Duration // pending_confirmation, approved → skipped (confirmation_timeout)
	ProcessingMaxAge   time.Duration // processing → failed (processing_timeout)
}

// DefaultExpiryPolicy mirrors the intervals the trader has always used.
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		PendingMaxAge:      5 * time.Minute,
		ConfirmationMaxAge: 10 * time.Minute,
		ProcessingMaxAge:   15 * time.Minute,
	}
}
