package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// resolutionABIJSON is the subset of the market contract the resolver
// touches: one view for the market snapshot, one write for the resolution.
const resolutionABIJSON = `[
  {
    "name": "getMarket",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "marketId", "type": "bytes32"}],
    "outputs": [
      {"name": "question", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "category", "type": "uint8"},
      {"name": "creator", "type": "address"},
      {"name": "endTime", "type": "uint256"},
      {"name": "resolved", "type": "bool"},
      {"name": "outcome", "type": "bool"}
    ]
  },
  {
    "name": "resolveMarket",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "marketId", "type": "bytes32"},
      {"name": "outcome", "type": "bool"},
      {"name": "confidence", "type": "uint256"},
      {"name": "evidenceCID", "type": "string"}
    ],
    "outputs": []
  }
]`

var resolutionABI = mustParseABI(resolutionABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("chain: parse resolution abi: " + err.Error())
	}
	return parsed
}

// marketView mirrors the getMarket output tuple.
type marketView struct {
	Question    string
	Description string
	Category    uint8
	Creator     common.Address
	EndTime     *big.Int
	Resolved    bool
	Outcome     bool
}
