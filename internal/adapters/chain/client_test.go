package chain_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/smartmoney/internal/adapters/chain"
	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// fakeBackend answers BlockNumber with a fixed head or a queued error.
// Unimplemented Backend methods panic through the nil embedded interface.
type fakeBackend struct {
	chain.Backend
	mu       sync.Mutex
	head     uint64
	errs     []error
	calls    int
	receipts map[common.Hash]*types.Receipt
	callOut  []byte
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return f.head, nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return f.callOut, nil
}

func (f *fakeBackend) Close() {}

func newClient(t *testing.T, cfg chain.Config, backends map[string]*fakeBackend) *chain.Client {
	t.Helper()
	c, err := chain.New(cfg, chain.WithDialer(func(ctx context.Context, url string) (chain.Backend, error) {
		b, ok := backends[url]
		if !ok {
			return nil, errors.New("unknown endpoint")
		}
		return b, nil
	}))
	require.NoError(t, err)
	return c
}

func TestClient_RateLimitRotatesWithinCall(t *testing.T) {
	a := &fakeBackend{errs: []error{rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}}}
	b := &fakeBackend{head: 100}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example/key", "https://b.example/key"}},
		map[string]*fakeBackend{"https://a.example/key": a, "https://b.example/key": b})

	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), head)
	assert.Equal(t, 1, c.Health().ActiveIndex)
	assert.Equal(t, "https://b.example", c.Health().ActiveEndpoint)
}

func TestClient_RotatesAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("execution reverted")
	a := &fakeBackend{head: 1, errs: []error{boom, boom, boom}}
	b := &fakeBackend{head: 200}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example", "https://b.example"}, RotateAfter: 3},
		map[string]*fakeBackend{"https://a.example": a, "https://b.example": b})

	for i := 0; i < 3; i++ {
		_, err := c.CurrentBlock(context.Background())
		require.Error(t, err)
		assert.False(t, domain.IsExhausted(err))
	}
	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(200), head)
	assert.Equal(t, 3, a.calls)
}

func TestClient_SuccessResetsFailureCount(t *testing.T) {
	boom := errors.New("execution reverted")
	a := &fakeBackend{head: 7, errs: []error{boom, boom}}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example", "https://b.example"}, RotateAfter: 3},
		map[string]*fakeBackend{"https://a.example": a, "https://b.example": {head: 9}})

	for i := 0; i < 2; i++ {
		_, _ = c.CurrentBlock(context.Background())
	}
	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), head)

	a.errs = []error{boom}
	_, _ = c.CurrentBlock(context.Background())
	assert.Equal(t, 0, c.Health().ActiveIndex)
}

func TestClient_FallsBackToPublicEndpoints(t *testing.T) {
	timeout := errors.New("i/o timeout")
	priv := &fakeBackend{errs: []error{timeout}}
	pub := &fakeBackend{head: 55}
	c := newClient(t, chain.Config{
		Endpoints:       []string{"https://private.example/k"},
		PublicEndpoints: []string{"https://public.example"},
	}, map[string]*fakeBackend{"https://private.example/k": priv, "https://public.example": pub})

	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(55), head)
	assert.Equal(t, "https://public.example", c.Health().ActiveEndpoint)
}

func TestClient_ExhaustedWhenEveryEndpointFails(t *testing.T) {
	limited := errors.New("429 too many requests")
	a := &fakeBackend{errs: []error{limited}}
	b := &fakeBackend{errs: []error{limited}}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example"}, PublicEndpoints: []string{"https://b.example"}},
		map[string]*fakeBackend{"https://a.example": a, "https://b.example": b})

	_, err := c.CurrentBlock(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsExhausted(err))

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.ProviderRateLimited, pe.Kind)
	assert.False(t, c.Health().ExhaustedSince.IsZero())

	a.head = 11
	head, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(11), head)
	assert.True(t, c.Health().ExhaustedSince.IsZero())
}

func TestClient_PendingReceiptIsNotAFailure(t *testing.T) {
	a := &fakeBackend{}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example", "https://b.example"}, RotateAfter: 1},
		map[string]*fakeBackend{"https://a.example": a, "https://b.example": {}})

	_, err := c.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, ethereum.NotFound)
	assert.Equal(t, 0, c.Health().ActiveIndex)
}

func TestClient_WaitForReceipt(t *testing.T) {
	hash := common.HexToHash("0xabc")
	a := &fakeBackend{receipts: map[common.Hash]*types.Receipt{}}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example"}, ReceiptInterval: 10 * time.Millisecond},
		map[string]*fakeBackend{"https://a.example": a})

	go func() {
		time.Sleep(30 * time.Millisecond)
		a.mu.Lock()
		a.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000}
		a.mu.Unlock()
	}()

	r, err := c.WaitForReceipt(context.Background(), hash, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), r.GasUsed)

	_, err = c.WaitForReceipt(context.Background(), common.HexToHash("0xdead"), 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CallView(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[{"name":"decimals","type":"function","inputs":[],"outputs":[{"name":"","type":"uint8"}]}]`))
	require.NoError(t, err)
	out, err := parsed.Methods["decimals"].Outputs.Pack(uint8(6))
	require.NoError(t, err)

	a := &fakeBackend{callOut: out}
	c := newClient(t, chain.Config{Endpoints: []string{"https://a.example"}}, map[string]*fakeBackend{"https://a.example": a})

	vals, err := c.CallView(context.Background(), common.HexToAddress("0x01"), parsed, "decimals")
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, uint8(6), vals[0])
}

func TestNew_RequiresEndpoints(t *testing.T) {
	_, err := chain.New(chain.Config{})
	assert.Error(t, err)
}
