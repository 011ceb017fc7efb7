package domain

import (
	"context"
	"math/big"
)

// SubmitReceipt is the confirmed outcome of an on-chain resolution write.
type SubmitReceipt struct {
	TxHash      string
	GasUsed     uint64
	BlockNumber uint64
}

// Ledger is the smart-contract boundary of the pipeline: a read side (market
// snapshot, gas price) and a single write entry point. An unauthorized revert
// surfaces as ErrUnauthorized; any other revert or confirmation timeout
// surfaces as ErrTxFailed.
type Ledger interface {
	GetMarket(ctx context.Context, marketID string) (Market, error)
	// GasPrice returns the current network gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)
	// SubmitResolution writes (marketID, outcome, confidence, evidenceCID) to
	// the contract and blocks until the transaction is confirmed.
	SubmitResolution(ctx context.Context, marketID string, outcome bool, confidence int, evidenceCID string) (SubmitReceipt, error)
}
