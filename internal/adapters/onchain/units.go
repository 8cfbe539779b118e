package onchain

import (
	"math"
	"math/big"
)

// ToUnits converts a human amount to integer units with the given decimals.
func ToUnits(amount float64, decimals uint8) *big.Int {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return big.NewInt(0)
	}
	f := new(big.Float).SetFloat64(amount)
	f.Mul(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	out, _ := f.Int(nil)
	return out
}

// FromUnits converts integer units to a human amount.
func FromUnits(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	out, _ := f.Float64()
	return out
}

// MinAmountOut applies the slippage tolerance to an expected output.
func MinAmountOut(expected float64, slippagePct float64, decimals uint8) *big.Int {
	if slippagePct < 0 {
		slippagePct = 0
	}
	if slippagePct > 100 {
		slippagePct = 100
	}
	return ToUnits(expected*(1-slippagePct/100), decimals)
}

// GweiToWei converts gwei to wei.
func GweiToWei(gwei float64) *big.Int {
	return ToUnits(gwei, 9)
}
