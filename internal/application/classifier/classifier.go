package classifier

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

const defaultTransferLogThreshold = 10

// Config controls the classifier.
type Config struct {
	// TransferLogThreshold is the number of Transfer logs from which a plain
	// transfer(address,uint256) call is treated as an airdrop.
	TransferLogThreshold int
	MulticallContracts   []common.Address
}

// Classifier decides whether a token inflow is a real purchase or a distribution.
type Classifier struct {
	threshold int
	contracts map[common.Address]struct{}
}

// New creates a Classifier. Empty MulticallContracts uses DefaultMulticallContracts.
func New(cfg Config) *Classifier {
	if cfg.TransferLogThreshold <= 0 {
		cfg.TransferLogThreshold = defaultTransferLogThreshold
	}
	if len(cfg.MulticallContracts) == 0 {
		cfg.MulticallContracts = DefaultMulticallContracts
	}
	c := &Classifier{
		threshold: cfg.TransferLogThreshold,
		contracts: make(map[common.Address]struct{}, len(cfg.MulticallContracts)),
	}
	for _, a := range cfg.MulticallContracts {
		c.contracts[a] = struct{}{}
	}
	return c
}

// Classify inspects the call target, the selector and the receipt logs.
// It fails open: any internal error yields unknown with Skip=false.
func (c *Classifier) Classify(tx *types.Transaction, receipt *types.Receipt) (out domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("classifier: internal error, passing transaction", "err", r)
			out = domain.Classification{Kind: domain.TxUnknown, Reason: fmt.Sprintf("classification error: %v", r)}
		}
	}()

	if tx == nil {
		return domain.Classification{Kind: domain.TxUnknown, Reason: "transaction unavailable"}
	}

	if to := tx.To(); to != nil {
		if _, ok := c.contracts[*to]; ok {
			return domain.Classification{Kind: domain.TxMulticall, Skip: true, Reason: "known multicall contract " + to.Hex()}
		}
	}

	data := tx.Data()
	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		hexSel := fmt.Sprintf("0x%x", sel)

		if _, ok := multicallSelectors[sel]; ok {
			return domain.Classification{Kind: domain.TxMulticall, Skip: true, Reason: "multicall selector " + hexSel}
		}
		if sel == transferSelector {
			if n := CountTransferLogs(receipt); n >= c.threshold {
				return domain.Classification{Kind: domain.TxAirdrop, Skip: true, Reason: fmt.Sprintf("transfer call with %d transfer logs", n)}
			}
		} else if _, ok := airdropSelectors[sel]; ok {
			return domain.Classification{Kind: domain.TxAirdrop, Skip: true, Reason: "airdrop selector " + hexSel}
		}
		if _, ok := batchSelectors[sel]; ok {
			return domain.Classification{Kind: domain.TxBatchTransfer, Skip: true, Reason: "batch transfer selector " + hexSel}
		}
	}

	if HasSwapEvent(receipt) {
		return domain.Classification{Kind: domain.TxSwap}
	}
	return domain.Classification{Kind: domain.TxUnknown}
}

// CountTransferLogs counts ERC-20 Transfer events in the receipt.
func CountTransferLogs(receipt *types.Receipt) int {
	if receipt == nil {
		return 0
	}
	n := 0
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 && l.Topics[0] == TransferTopic {
			n++
		}
	}
	return n
}

// HasSwapEvent reports whether the receipt carries a known DEX Swap event.
func HasSwapEvent(receipt *types.Receipt) bool {
	if receipt == nil {
		return false
	}
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		for _, t := range SwapTopics {
			if l.Topics[0] == t {
				return true
			}
		}
	}
	return false
}
