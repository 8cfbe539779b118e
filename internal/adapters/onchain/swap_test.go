package onchain_test

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/adapters/onchain"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

var (
	tokenAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wethAddr  = common.HexToAddress("0x4200000000000000000000000000000000000006")
)

// fakeChain implements ports.ChainWriter with scripted view results and receipts.
type fakeChain struct {
	mu        sync.Mutex
	balances  map[common.Address][]*big.Int
	allowance *big.Int
	decimals  uint8
	statuses  []uint64 // receipt status per submitted tx, default success
	submitted []*types.Transaction
	native    *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:  map[common.Address][]*big.Int{},
		allowance: big.NewInt(0),
		decimals:  9,
		native:    onchain.ToUnits(0.05, 18),
	}
}

// pop returns the next scripted balance, repeating the last one.
func (f *fakeChain) pop(addr common.Address) *big.Int {
	q := f.balances[addr]
	if len(q) == 0 {
		return big.NewInt(0)
	}
	v := q[0]
	if len(q) > 1 {
		f.balances[addr] = q[1:]
	}
	return v
}

func (f *fakeChain) CurrentBlock(context.Context) (uint64, error)         { return 1, nil }
func (f *fakeChain) BlockTime(context.Context, uint64) (time.Time, error) { return time.Time{}, nil }
func (f *fakeChain) Health() domain.ChainHealth                           { return domain.ChainHealth{} }
func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error)    { return big.NewInt(5e7), nil }
func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 150_000, nil
}
func (f *fakeChain) LogsInRange(context.Context, uint64, uint64, ...common.Hash) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeChain) TransactionByHash(context.Context, common.Hash) (*types.Transaction, error) {
	return nil, ethereum.NotFound
}
func (f *fakeChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (f *fakeChain) Balance(context.Context, common.Address) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeChain) PendingNonce(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.submitted)), nil
}

func (f *fakeChain) CallView(_ context.Context, contract common.Address, _ abi.ABI, method string, _ ...any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "balanceOf":
		return []any{f.pop(contract)}, nil
	case "decimals":
		return []any{f.decimals}, nil
	case "allowance":
		return []any{f.allowance}, nil
	}
	return nil, errors.New("unexpected method " + method)
}

func (f *fakeChain) SubmitSignedTransaction(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, tx)
	return tx.Hash(), nil
}

func (f *fakeChain) WaitForReceipt(_ context.Context, hash common.Hash, _ time.Duration) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := types.ReceiptStatusSuccessful
	if i := len(f.submitted) - 1; i < len(f.statuses) {
		status = f.statuses[i]
	}
	return &types.Receipt{
		Status:            status,
		TxHash:            hash,
		GasUsed:           100_000,
		EffectiveGasPrice: big.NewInt(1e9),
	}, nil
}

func newExecutor(t *testing.T, chain *fakeChain) *onchain.SwapExecutor {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	exec, err := onchain.NewSwapExecutor(chain, onchain.SwapConfig{
		PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
	})
	require.NoError(t, err)
	return exec
}

func feeOf(data []byte) uint64 {
	return new(big.Int).SetBytes(data[4+64 : 4+96]).Uint64()
}

func amountInOf(data []byte) *big.Int {
	return new(big.Int).SetBytes(data[4+128 : 4+160])
}

func TestPackExactInputSingle_Selector(t *testing.T) {
	data, err := onchain.PackExactInputSingle(wethAddr, tokenAddr, 10000, tokenAddr, big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)

	assert.Equal(t, "04e45aaf", hex.EncodeToString(data[:4]))
	assert.Len(t, data, 4+7*32)
	assert.Equal(t, uint64(10000), feeOf(data))
}

func TestMinAmountOut(t *testing.T) {
	// 1000 tokens, 20% slippage, 9 decimals → 800e9
	assert.Equal(t, "800000000000", onchain.MinAmountOut(1000, 20, 9).String())
	assert.Equal(t, "0", onchain.MinAmountOut(-1, 20, 18).String())
	assert.InDelta(t, 0.005, onchain.FromUnits(onchain.ToUnits(0.005, 18), 18), 1e-12)
}

func TestGasParams_Capped(t *testing.T) {
	tip, maxFee, err := onchain.GasParams(big.NewInt(8e8), 2, 1, 0.001)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e9), maxFee, "2×0.8 gwei is capped at 1 gwei")
	assert.Equal(t, big.NewInt(1e6), tip)

	_, maxFee, err = onchain.GasParams(big.NewInt(1e8), 2, 1, 0.001)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2e8), maxFee)
}

func TestSwapExecutor_Balance(t *testing.T) {
	chain := newFakeChain()
	exec := newExecutor(t, chain)

	bal, err := exec.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.048, bal, 1e-9)
}

func TestSwapExecutor_Buy_FallbackFeeTier(t *testing.T) {
	chain := newFakeChain()
	chain.statuses = []uint64{types.ReceiptStatusFailed, types.ReceiptStatusSuccessful}
	chain.balances[tokenAddr] = []*big.Int{big.NewInt(0), onchain.ToUnits(4500, 9)}
	exec := newExecutor(t, chain)

	fill, err := exec.Buy(context.Background(), domain.BuyRequest{
		Token:          tokenAddr.Hex(),
		Symbol:         "PEPE",
		NativeAmount:   0.005,
		PriceUSD:       0.003,
		NativePriceUSD: 3000,
	})
	require.NoError(t, err)

	require.Len(t, chain.submitted, 2)
	assert.Equal(t, uint64(10000), feeOf(chain.submitted[0].Data()))
	assert.Equal(t, uint64(3000), feeOf(chain.submitted[1].Data()))

	assert.Equal(t, uint32(3000), fill.FeeTier)
	assert.Equal(t, uint8(9), fill.Decimals)
	assert.InDelta(t, 4500, fill.TokenAmount, 1e-6)
	assert.InDelta(t, 0.005, fill.NativeAmount, 1e-12)
	assert.InDelta(t, 0.0002, fill.GasNative, 1e-12, "gas of both attempts")

	tx := chain.submitted[1]
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, big.NewInt(8453), tx.ChainId())
	assert.Equal(t, onchain.ToUnits(0.005, 18), tx.Value())
	assert.LessOrEqual(t, tx.GasFeeCap().Cmp(big.NewInt(1e9)), 0)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, exec.Address(), from)
}

func TestSwapExecutor_Buy_BothTiersRevert(t *testing.T) {
	chain := newFakeChain()
	chain.statuses = []uint64{types.ReceiptStatusFailed, types.ReceiptStatusFailed}
	exec := newExecutor(t, chain)

	fill, err := exec.Buy(context.Background(), domain.BuyRequest{
		Token: tokenAddr.Hex(), NativeAmount: 0.005, PriceUSD: 0.003, NativePriceUSD: 3000,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
	assert.Len(t, chain.submitted, 2)
	assert.InDelta(t, 0.0002, fill.GasNative, 1e-12)
}

func TestSwapExecutor_Buy_NoPrice(t *testing.T) {
	exec := newExecutor(t, newFakeChain())
	_, err := exec.Buy(context.Background(), domain.BuyRequest{Token: tokenAddr.Hex(), NativeAmount: 0.005})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestSwapExecutor_Sell_ApprovesSwapsAndUnwraps(t *testing.T) {
	chain := newFakeChain()
	chain.balances[tokenAddr] = []*big.Int{onchain.ToUnits(1000, 9)}
	chain.balances[wethAddr] = []*big.Int{big.NewInt(0), onchain.ToUnits(0.004, 18)}
	exec := newExecutor(t, chain)

	fill, err := exec.Sell(context.Background(), domain.SellRequest{
		Token:          tokenAddr.Hex(),
		Symbol:         "PEPE",
		Amount:         1000,
		Ratio:          0.5,
		PriceUSD:       0.024,
		NativePriceUSD: 3000,
		FeeTier:        3000,
		Decimals:       9,
	})
	require.NoError(t, err)

	require.Len(t, chain.submitted, 3, "approve, swap, unwrap")
	assert.Equal(t, tokenAddr, *chain.submitted[0].To())
	assert.Equal(t, uint64(3000), feeOf(chain.submitted[1].Data()), "position fee tier goes first")
	assert.Equal(t, wethAddr, *chain.submitted[2].To())

	assert.InDelta(t, 500, fill.TokenAmount, 1e-6)
	assert.InDelta(t, 0.004, fill.NativeAmount, 1e-12)
	assert.InDelta(t, 0.0003, fill.GasNative, 1e-12)
}

func TestSwapExecutor_Sell_NothingHeld(t *testing.T) {
	chain := newFakeChain()
	exec := newExecutor(t, chain)

	_, err := exec.Sell(context.Background(), domain.SellRequest{Token: tokenAddr.Hex(), Amount: 10, Ratio: 1, Decimals: 18})
	require.Error(t, err)
	assert.Empty(t, chain.submitted)
}

func TestSwapExecutor_Sell_SharedWalletSellsOnlyThePosition(t *testing.T) {
	// Two strategies hold the token: 100 for this position, 50 for another one.
	chain := newFakeChain()
	chain.balances[tokenAddr] = []*big.Int{onchain.ToUnits(150, 9)}
	chain.balances[wethAddr] = []*big.Int{big.NewInt(0), onchain.ToUnits(0.002, 18)}
	exec := newExecutor(t, chain)

	fill, err := exec.Sell(context.Background(), domain.SellRequest{
		Token:    tokenAddr.Hex(),
		Symbol:   "PEPE",
		Amount:   100,
		Ratio:    1,
		Decimals: 9,
	})
	require.NoError(t, err)
	require.Len(t, chain.submitted, 3)
	assert.Equal(t, onchain.ToUnits(100, 9), amountInOf(chain.submitted[1].Data()))
	assert.InDelta(t, 100, fill.TokenAmount, 1e-6)
}

func TestSwapExecutor_Sell_PartialOfPosition(t *testing.T) {
	chain := newFakeChain()
	chain.balances[tokenAddr] = []*big.Int{onchain.ToUnits(150, 9)}
	chain.balances[wethAddr] = []*big.Int{big.NewInt(0), onchain.ToUnits(0.001, 18)}
	exec := newExecutor(t, chain)

	fill, err := exec.Sell(context.Background(), domain.SellRequest{
		Token:    tokenAddr.Hex(),
		Amount:   100,
		Ratio:    0.5,
		Decimals: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, onchain.ToUnits(50, 9), amountInOf(chain.submitted[1].Data()))
	assert.InDelta(t, 50, fill.TokenAmount, 1e-6)
}

func TestSwapExecutor_Sell_CappedByBalance(t *testing.T) {
	chain := newFakeChain()
	chain.balances[tokenAddr] = []*big.Int{onchain.ToUnits(80, 9)}
	chain.balances[wethAddr] = []*big.Int{big.NewInt(0), onchain.ToUnits(0.001, 18)}
	exec := newExecutor(t, chain)

	fill, err := exec.Sell(context.Background(), domain.SellRequest{
		Token:    tokenAddr.Hex(),
		Amount:   100,
		Ratio:    1,
		Decimals: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, onchain.ToUnits(80, 9), amountInOf(chain.submitted[1].Data()))
	assert.InDelta(t, 80, fill.TokenAmount, 1e-6)
}
