package classifier

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// TransferTopic is keccak("Transfer(address,address,uint256)").
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// SwapTopics are the Swap events of the DEX families seen on Base.
	SwapTopics = []common.Hash{
		crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)")),        // Uniswap V3
		crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)")),            // Uniswap V2 / forks
		crypto.Keccak256Hash([]byte("Swap(address,address,uint256,uint256,uint256,uint256)")),            // Aerodrome / Velodrome V2
		crypto.Keccak256Hash([]byte("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)")), // Uniswap V4
	}
)

// Selectors are the first four bytes of the calldata.
var (
	multicallSelectors = selectorSet(
		"0xac9650d8", // multicall(bytes[])
		"0x5ae401dc", // multicall(uint256,bytes[])
		"0x252dba42", // aggregate
		"0x82ad56cb", // aggregate3
		"0xcaa5c23f", // aggregate3Value
		"0x174dea71", // blockAndAggregate
	)

	airdropSelectors = selectorSet(
		"0x0b66f3f5", // airdrop(address[],uint256[])
		"0x67243482",
		"0xc204642c", // disperseEther
		"0x40c10f19", // mint(address,uint256)
		"0x36895558", // distributeTokens
		"0xab883d28", // batchTransfer (disperse style)
		"0xc73a2d60", // disperseToken
		"0xe63d38ed", // disperseTokenSimple
	)

	batchSelectors = selectorSet(
		"0x2e7ba6ef", // claim(uint256,address,uint256,bytes32[])
		"0x4e71d92d", // claim()
		"0xa217fddf", // batchTransfer
	)

	transferSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}

	// DefaultMulticallContracts are Multicall3 and Disperse on Base.
	DefaultMulticallContracts = []common.Address{
		common.HexToAddress("0xca11bde05977b3631167028862be2a173976ca11"),
		common.HexToAddress("0x6e82c738d827bc24d6a09142d2e13a301df0f709"),
	}
)

func selectorSet(hexes ...string) map[[4]byte]struct{} {
	out := make(map[[4]byte]struct{}, len(hexes))
	for _, h := range hexes {
		var sel [4]byte
		copy(sel[:], common.FromHex(h))
		out[sel] = struct{}{}
	}
	return out
}
