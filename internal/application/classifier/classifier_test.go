package classifier_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/smartmoney/internal/application/classifier"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

var router = common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")

func makeTx(to common.Address, selector string) *types.Transaction {
	data := append(common.FromHex(selector), make([]byte, 64)...)
	return types.NewTx(&types.LegacyTx{To: &to, Data: data})
}

func receiptWith(transfers int, swap bool) *types.Receipt {
	r := &types.Receipt{}
	for i := 0; i < transfers; i++ {
		r.Logs = append(r.Logs, &types.Log{Topics: []common.Hash{classifier.TransferTopic}})
	}
	if swap {
		r.Logs = append(r.Logs, &types.Log{Topics: []common.Hash{classifier.SwapTopics[0]}})
	}
	return r
}

func TestClassify(t *testing.T) {
	c := classifier.New(classifier.Config{})

	tests := []struct {
		name     string
		tx       *types.Transaction
		receipt  *types.Receipt
		wantKind domain.TxKind
		wantSkip bool
	}{
		{"multicall3 target", makeTx(classifier.DefaultMulticallContracts[0], "0x12345678"), receiptWith(1, true), domain.TxMulticall, true},
		{"multicall selector", makeTx(router, "0xac9650d8"), receiptWith(2, true), domain.TxMulticall, true},
		{"airdrop selector", makeTx(router, "0x0b66f3f5"), receiptWith(1, false), domain.TxAirdrop, true},
		{"batch claim", makeTx(router, "0x4e71d92d"), receiptWith(1, false), domain.TxBatchTransfer, true},
		{"plain transfer few logs", makeTx(router, "0xa9059cbb"), receiptWith(1, false), domain.TxUnknown, false},
		{"transfer fan-out", makeTx(router, "0xa9059cbb"), receiptWith(10, false), domain.TxAirdrop, true},
		{"swap", makeTx(router, "0x04e45aaf"), receiptWith(2, true), domain.TxSwap, false},
		{"no swap event", makeTx(router, "0x04e45aaf"), receiptWith(2, false), domain.TxUnknown, false},
		{"nil receipt", makeTx(router, "0x04e45aaf"), nil, domain.TxUnknown, false},
		{"nil tx", nil, receiptWith(1, true), domain.TxUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.tx, tt.receipt)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantSkip, got.Skip)
			if got.Skip {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestClassify_TransferThresholdConfigurable(t *testing.T) {
	c := classifier.New(classifier.Config{TransferLogThreshold: 3})
	got := c.Classify(makeTx(router, "0xa9059cbb"), receiptWith(3, false))
	assert.Equal(t, domain.TxAirdrop, got.Kind)
}

func TestClassify_ContractCreationPasses(t *testing.T) {
	c := classifier.New(classifier.Config{})
	tx := types.NewTx(&types.LegacyTx{Data: []byte{0x60, 0x80}})
	got := c.Classify(tx, receiptWith(0, false))
	assert.False(t, got.Skip)
}

func TestHasSwapEvent_AllFamilies(t *testing.T) {
	for _, topic := range classifier.SwapTopics {
		r := &types.Receipt{Logs: []*types.Log{{Topics: []common.Hash{topic}}}}
		assert.True(t, classifier.HasSwapEvent(r))
	}
	assert.Equal(t, "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67", classifier.SwapTopics[0].Hex())
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", classifier.TransferTopic.Hex())
}
