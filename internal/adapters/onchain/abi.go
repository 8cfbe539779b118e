package onchain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract ABIs
var (
	routerABI abi.ABI
	erc20ABI  abi.ABI
	wethABI   abi.ABI
)

func init() {
	var err error

	routerABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "exactInputSingle",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{
					"name": "params",
					"type": "tuple",
					"components": [
						{"name": "tokenIn", "type": "address"},
						{"name": "tokenOut", "type": "address"},
						{"name": "fee", "type": "uint24"},
						{"name": "recipient", "type": "address"},
						{"name": "amountIn", "type": "uint256"},
						{"name": "amountOutMinimum", "type": "uint256"},
						{"name": "sqrtPriceLimitX96", "type": "uint160"}
					]
				}
			],
			"outputs": [{"name": "amountOut", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("router abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}

	wethABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "withdraw",
			"type": "function",
			"inputs": [{"name": "wad", "type": "uint256"}],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("weth abi parse: " + err.Error())
	}
}

// ERC20ABI exposes the parsed ERC20 subset for view calls from other packages.
func ERC20ABI() abi.ABI { return erc20ABI }

// exactInputSingleParams mirrors ISwapRouter02.ExactInputSingleParams.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// PackExactInputSingle builds the calldata of a single-pool exact-input swap.
func PackExactInputSingle(tokenIn, tokenOut common.Address, fee uint32, recipient common.Address, amountIn, minOut *big.Int) ([]byte, error) {
	return routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		Recipient:         recipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
}
