package domain

import "time"

// TxKind is the classifier verdict for a transaction.
type TxKind string

const (
	TxSwap          TxKind = "swap"
	TxAirdrop       TxKind = "airdrop"
	TxMulticall     TxKind = "multicall"
	TxBatchTransfer TxKind = "batch_transfer"
	TxUnknown       TxKind = "unknown"
)

// Classification says whether a token inflow should be ignored.
type Classification struct {
	Kind   TxKind
	Skip   bool
	Reason string
}

// TokenInfo is the market metadata of a token at lookup time.
type TokenInfo struct {
	Address      string
	Symbol       string
	Name         string
	PriceUSD     float64
	MarketCapUSD float64
	LiquidityUSD float64
	Volume24hUSD float64
	Buys24h      int
	Sells24h     int
	PairAddress  string
	FetchedAt    time.Time
}

// Txns24h returns the total number of swaps in the last 24h.
func (t TokenInfo) Txns24h() int { return t.Buys24h + t.Sells24h }

// Candidate is a token inflow to a watched wallet, before quality filtering.
type Candidate struct {
	Wallet         string
	Token          string
	TxHash         string
	BlockNumber    uint64
	ValueNative    float64
	HasSwapEvent   bool
	Classification Classification
	ObservedAt     time.Time
}

// PurchaseObservation is a purchase that passed the filter chain.
type PurchaseObservation struct {
	Wallet      string
	Token       string
	Symbol      string
	TxHash      string
	BlockNumber uint64
	ValueNative float64
	MarketCap   float64
	Timestamp   time.Time
}
