package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

// ChainReader is the read side of the chain access layer.
type ChainReader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
	LogsInRange(ctx context.Context, from, to uint64, topics ...common.Hash) ([]types.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallView(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) ([]any, error)
	Health() domain.ChainHealth
}

// ChainWriter is what the on-chain executor needs to build and submit transactions.
type ChainWriter interface {
	ChainReader
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SubmitSignedTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error)
}
