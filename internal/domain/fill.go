package domain

// BuyRequest asks an executor to spend NativeAmount on Token.
type BuyRequest struct {
	Token          string
	Symbol         string
	NativeAmount   float64
	PriceUSD       float64
	NativePriceUSD float64
}

// SellRequest asks an executor to sell Ratio of the held Amount.
type SellRequest struct {
	Token          string
	Symbol         string
	Amount         float64 // tokens currently held
	Ratio          float64
	PriceUSD       float64
	NativePriceUSD float64
	FeeTier        uint32
	Decimals       uint8
}

// Fill is the executed side of a buy or a sell.
type Fill struct {
	TxHash       string
	TokenAmount  float64 // tokens bought or sold
	NativeAmount float64 // native spent on buys, received on sells
	GasNative    float64
	FeeTier      uint32
	Decimals     uint8
}
