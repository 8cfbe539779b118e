package onchain

// swap.go: Uniswap V3 executor over SwapRouter02.
//
// Buys swap native ETH for the token (the router wraps msg.value), sells swap the
// token for WETH and then unwrap it. Every transaction is EIP-1559 with the max fee
// capped, and a revert on the primary fee tier retries once on the fallback tier.

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/smartmoney/internal/domain"
	"github.com/alejandrodnm/smartmoney/internal/ports"
)

const (
	baseChainID = int64(8453)

	// SwapRouter02 on Base.
	defaultRouter = "0x2626664c2603336E57B271c5C0b26F421741e481"
	// WETH on Base.
	defaultWETH = "0x4200000000000000000000000000000000000006"

	// Gas limits (conservative upper bounds)
	buyGasLimit     = uint64(300_000)
	sellGasLimit    = uint64(350_000)
	approveGasLimit = uint64(100_000)
	unwrapGasLimit  = uint64(50_000)

	receiptTimeout = 60 * time.Second
)

var errReverted = errors.New("transaction reverted")

// SwapConfig holds the real-trading parameters.
type SwapConfig struct {
	PrivateKeyHex   string
	ChainID         int64
	Router          string
	WETH            string
	PrimaryFeeTier  uint32
	FallbackFeeTier uint32
	SlippagePct     float64
	GasMultiplier   float64
	MaxGasGwei      float64
	PriorityGwei    float64
	GasReserve      float64 // native kept aside for gas, excluded from Balance
}

func (c *SwapConfig) setDefaults() {
	if c.ChainID == 0 {
		c.ChainID = baseChainID
	}
	if c.Router == "" {
		c.Router = defaultRouter
	}
	if c.WETH == "" {
		c.WETH = defaultWETH
	}
	if c.PrimaryFeeTier == 0 {
		c.PrimaryFeeTier = 10000
	}
	if c.FallbackFeeTier == 0 {
		c.FallbackFeeTier = 3000
	}
	if c.SlippagePct <= 0 {
		c.SlippagePct = 20
	}
	if c.GasMultiplier <= 0 {
		c.GasMultiplier = 2
	}
	if c.MaxGasGwei <= 0 {
		c.MaxGasGwei = 1
	}
	if c.PriorityGwei <= 0 {
		c.PriorityGwei = 0.001
	}
	if c.GasReserve <= 0 {
		c.GasReserve = 0.002
	}
}

// SwapExecutor implements ports.TradeExecutor on-chain.
type SwapExecutor struct {
	chain   ports.ChainWriter
	cfg     SwapConfig
	key     *ecdsa.PrivateKey
	address common.Address
	router  common.Address
	weth    common.Address

	// mu serializes transactions so nonces never collide between strategies.
	mu sync.Mutex

	decMu    sync.RWMutex
	decimals map[common.Address]uint8
}

// Compile-time interface check.
var _ ports.TradeExecutor = (*SwapExecutor)(nil)

// NewSwapExecutor creates an executor signing with cfg.PrivateKeyHex (with or without 0x).
func NewSwapExecutor(chain ports.ChainWriter, cfg SwapConfig) (*SwapExecutor, error) {
	cfg.setDefaults()

	pkBytes, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain: invalid private key: %w", err)
	}

	return &SwapExecutor{
		chain:    chain,
		cfg:      cfg,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		router:   common.HexToAddress(cfg.Router),
		weth:     common.HexToAddress(cfg.WETH),
		decimals: make(map[common.Address]uint8),
	}, nil
}

// Address returns the trading wallet.
func (s *SwapExecutor) Address() common.Address { return s.address }

// Balance returns the native balance minus the gas reserve.
func (s *SwapExecutor) Balance(ctx context.Context) (float64, error) {
	wei, err := s.chain.Balance(ctx, s.address)
	if err != nil {
		return 0, fmt.Errorf("onchain.Balance: %w", err)
	}
	bal := FromUnits(wei, 18) - s.cfg.GasReserve
	if bal < 0 {
		bal = 0
	}
	return bal, nil
}

// Buy swaps req.NativeAmount ETH for the token.
func (s *SwapExecutor) Buy(ctx context.Context, req domain.BuyRequest) (domain.Fill, error) {
	if req.PriceUSD <= 0 || req.NativePriceUSD <= 0 {
		return domain.Fill{}, fmt.Errorf("onchain.Buy %s: %w", req.Symbol, domain.ErrDataUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token := common.HexToAddress(req.Token)
	dec := s.tokenDecimals(ctx, token)

	expected := req.NativeAmount * req.NativePriceUSD / req.PriceUSD
	minOut := MinAmountOut(expected, s.cfg.SlippagePct, dec)
	amountIn := ToUnits(req.NativeAmount, 18)

	pre, err := s.balanceOf(ctx, token)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Buy: pre balance: %w", err)
	}

	var (
		fill    domain.Fill
		gas     float64
		lastErr error
	)
	for _, fee := range s.feeTiers(0) {
		data, err := PackExactInputSingle(s.weth, token, fee, s.address, amountIn, minOut)
		if err != nil {
			return domain.Fill{}, fmt.Errorf("onchain.Buy: pack: %w", err)
		}
		receipt, err := s.send(ctx, s.router, amountIn, data, buyGasLimit)
		if receipt != nil {
			gas += gasCost(receipt)
		}
		if err != nil {
			lastErr = err
			slog.Warn("onchain: buy failed on fee tier", "token", req.Symbol, "fee", fee, "err", err)
			if errors.Is(err, errReverted) {
				continue
			}
			break
		}

		post, err := s.balanceOf(ctx, token)
		if err != nil {
			return domain.Fill{}, fmt.Errorf("onchain.Buy: post balance: %w", err)
		}
		fill = domain.Fill{
			TxHash:       receipt.TxHash.Hex(),
			TokenAmount:  FromUnits(new(big.Int).Sub(post, pre), dec),
			NativeAmount: req.NativeAmount,
			GasNative:    gas,
			FeeTier:      fee,
			Decimals:     dec,
		}
		slog.Info("onchain: buy confirmed",
			"token", req.Symbol,
			"tx", fill.TxHash,
			"fee", fee,
			"tokens", fmt.Sprintf("%.4f", fill.TokenAmount),
			"gas", fmt.Sprintf("%.6f", gas),
		)
		return fill, nil
	}
	return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Buy %s: %w", req.Symbol, lastErr)
}

// Sell swaps req.Ratio of the position's req.Amount for WETH and unwraps it.
// The wallet may hold the same token for other strategies, so the balance only caps the sale.
func (s *SwapExecutor) Sell(ctx context.Context, req domain.SellRequest) (domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := common.HexToAddress(req.Token)
	dec := req.Decimals
	if dec == 0 {
		dec = s.tokenDecimals(ctx, token)
	}

	held, err := s.balanceOf(ctx, token)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Sell: balance: %w", err)
	}
	ratio := req.Ratio
	if ratio > 1 {
		ratio = 1
	}
	amount := ToUnits(req.Amount*ratio, dec)
	if amount.Cmp(held) > 0 {
		amount.Set(held)
	}
	if amount.Sign() <= 0 {
		return domain.Fill{}, fmt.Errorf("onchain.Sell %s: nothing to sell", req.Symbol)
	}

	var gas float64
	approveGas, err := s.ensureAllowance(ctx, token, amount)
	gas += approveGas
	if err != nil {
		return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Sell: approve: %w", err)
	}

	var minOut *big.Int
	if req.PriceUSD > 0 && req.NativePriceUSD > 0 {
		expected := FromUnits(amount, dec) * req.PriceUSD / req.NativePriceUSD
		minOut = MinAmountOut(expected, s.cfg.SlippagePct, 18)
	} else {
		minOut = big.NewInt(0)
	}

	preWETH, err := s.balanceOf(ctx, s.weth)
	if err != nil {
		return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Sell: weth balance: %w", err)
	}

	var (
		receipt *types.Receipt
		fee     uint32
		lastErr error
	)
	for _, f := range s.feeTiers(req.FeeTier) {
		data, err := PackExactInputSingle(token, s.weth, f, s.address, amount, minOut)
		if err != nil {
			return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Sell: pack: %w", err)
		}
		r, err := s.send(ctx, s.router, big.NewInt(0), data, sellGasLimit)
		if r != nil {
			gas += gasCost(r)
		}
		if err == nil {
			receipt, fee, lastErr = r, f, nil
			break
		}
		lastErr = err
		slog.Warn("onchain: sell failed on fee tier", "token", req.Symbol, "fee", f, "err", err)
		if !errors.Is(err, errReverted) {
			break
		}
	}
	if receipt == nil {
		return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Sell %s: %w", req.Symbol, lastErr)
	}

	postWETH, err := s.balanceOf(ctx, s.weth)
	if err != nil {
		return domain.Fill{GasNative: gas}, fmt.Errorf("onchain.Sell: weth balance: %w", err)
	}
	received := new(big.Int).Sub(postWETH, preWETH)

	// El WETH queda en la wallet si el unwrap falla; no invalida la venta.
	if postWETH.Sign() > 0 {
		data, err := wethABI.Pack("withdraw", postWETH)
		if err == nil {
			r, uerr := s.send(ctx, s.weth, big.NewInt(0), data, unwrapGasLimit)
			if r != nil {
				gas += gasCost(r)
			}
			err = uerr
		}
		if err != nil {
			slog.Warn("onchain: weth unwrap failed, balance stays wrapped", "err", err)
		}
	}

	fill := domain.Fill{
		TxHash:       receipt.TxHash.Hex(),
		TokenAmount:  FromUnits(amount, dec),
		NativeAmount: FromUnits(received, 18),
		GasNative:    gas,
		FeeTier:      fee,
		Decimals:     dec,
	}
	slog.Info("onchain: sell confirmed",
		"token", req.Symbol,
		"tx", fill.TxHash,
		"received", fmt.Sprintf("%.6f", fill.NativeAmount),
		"gas", fmt.Sprintf("%.6f", gas),
	)
	return fill, nil
}

// feeTiers returns the tiers to try, preferred first.
func (s *SwapExecutor) feeTiers(preferred uint32) []uint32 {
	first, second := s.cfg.PrimaryFeeTier, s.cfg.FallbackFeeTier
	if preferred == second {
		first, second = second, first
	}
	if first == second {
		return []uint32{first}
	}
	return []uint32{first, second}
}

// ensureAllowance approves the router for the max amount when the current allowance is short.
func (s *SwapExecutor) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) (float64, error) {
	out, err := s.chain.CallView(ctx, token, erc20ABI, "allowance", s.address, s.router)
	if err != nil {
		return 0, fmt.Errorf("allowance: %w", err)
	}
	if len(out) > 0 {
		if cur, ok := out[0].(*big.Int); ok && cur.Cmp(amount) >= 0 {
			return 0, nil
		}
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	data, err := erc20ABI.Pack("approve", s.router, maxUint256)
	if err != nil {
		return 0, err
	}
	r, err := s.send(ctx, token, big.NewInt(0), data, approveGasLimit)
	var gas float64
	if r != nil {
		gas = gasCost(r)
	}
	if err != nil {
		return gas, err
	}
	slog.Info("onchain: router approved", "token", token.Hex())
	return gas, nil
}

// send signs an EIP-1559 transaction, submits it and waits for the receipt.
// A mined but failed transaction returns its receipt together with errReverted.
func (s *SwapExecutor) send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error) {
	nonce, err := s.chain.PendingNonce(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, maxFee, err := s.gasParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	gas, err := s.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:      s.address,
		To:        &to,
		GasFeeCap: maxFee,
		GasTipCap: tip,
		Value:     value,
		Data:      data,
	})
	switch {
	case err != nil && strings.Contains(strings.ToLower(err.Error()), "revert"):
		return nil, fmt.Errorf("%w: estimate: %v", errReverted, err)
	case err != nil:
		slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", gasLimit)
		gas = gasLimit
	default:
		// 20% buffer
		gas = gas * 12 / 10
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(s.cfg.ChainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(s.cfg.ChainID)), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	hash, err := s.chain.SubmitSignedTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	slog.Debug("onchain: transaction sent", "tx", hash.Hex(), "to", to.Hex(), "gas", gas)

	receipt, err := s.chain.WaitForReceipt(ctx, hash, receiptTimeout)
	if err != nil {
		return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", errReverted, hash.Hex())
	}
	return receipt, nil
}

// gasParams returns the priority tip and the max fee: suggested price × multiplier,
// capped at MaxGasGwei.
func (s *SwapExecutor) gasParams(ctx context.Context) (tip, maxFee *big.Int, err error) {
	price, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}
	return GasParams(price, s.cfg.GasMultiplier, s.cfg.MaxGasGwei, s.cfg.PriorityGwei)
}

// GasParams computes EIP-1559 fee caps from a suggested gas price.
func GasParams(suggested *big.Int, multiplier, maxGwei, priorityGwei float64) (tip, maxFee *big.Int, err error) {
	if suggested == nil {
		return nil, nil, errors.New("no gas price")
	}
	f := new(big.Float).SetInt(suggested)
	f.Mul(f, big.NewFloat(multiplier))
	maxFee, _ = f.Int(nil)

	if ceiling := GweiToWei(maxGwei); maxFee.Cmp(ceiling) > 0 {
		maxFee = ceiling
	}
	tip = GweiToWei(priorityGwei)
	if tip.Cmp(maxFee) > 0 {
		tip = new(big.Int).Set(maxFee)
	}
	return tip, maxFee, nil
}

func (s *SwapExecutor) balanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := s.chain.CallView(ctx, token, erc20ABI, "balanceOf", s.address)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("empty balanceOf result")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", out[0])
	}
	return v, nil
}

// tokenDecimals reads decimals() once per token, defaulting to 18.
func (s *SwapExecutor) tokenDecimals(ctx context.Context, token common.Address) uint8 {
	s.decMu.RLock()
	d, ok := s.decimals[token]
	s.decMu.RUnlock()
	if ok {
		return d
	}

	d = 18
	out, err := s.chain.CallView(ctx, token, erc20ABI, "decimals")
	if err == nil && len(out) > 0 {
		if v, ok := out[0].(uint8); ok {
			d = v
		}
	} else if err != nil {
		slog.Debug("onchain: decimals call failed, assuming 18", "token", token.Hex(), "err", err)
		return d
	}

	s.decMu.Lock()
	s.decimals[token] = d
	s.decMu.Unlock()
	return d
}

// gasCost returns gasUsed × effectiveGasPrice in native units.
func gasCost(r *types.Receipt) float64 {
	if r == nil || r.EffectiveGasPrice == nil {
		return 0
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	return FromUnits(wei, 18)
}
