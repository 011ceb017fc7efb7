// Package chain implements the domain.Ledger boundary against the market
// resolution contract using go-ethereum. All reads go through eth_call; the
// single write path signs locally and blocks until the transaction is mined.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// backend is the slice of ethclient.Client the ledger uses. Tests substitute
// a scripted implementation.
type backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the chain connection and transaction settings.
type Config struct {
	RPCURL          string
	ContractAddress string
	// ResolverKey is the hex-encoded secp256k1 private key of the authorized
	// resolver account.
	ResolverKey string
	ChainID     int64
	// GasLimit caps a resolution transaction when estimation fails.
	GasLimit uint64
	// ReceiptTimeout bounds how long SubmitResolution waits for confirmation.
	ReceiptTimeout time.Duration
	// ReceiptPollInterval is the delay between receipt polls.
	ReceiptPollInterval time.Duration
}

// Ledger talks to the resolution contract.
type Ledger struct {
	eth      backend
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	cfg      Config
	logger   *slog.Logger
}

// New dials the RPC endpoint and builds a Ledger. The resolver key is parsed
// here so a misconfigured key fails at startup, not at first submission.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("chain: contract address is required")
	}
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.ResolverKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid resolver key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	l := newLedger(eth, cfg, key, logger)
	return l, nil
}

func newLedger(eth backend, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) *Ledger {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 500000
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 3 * time.Second
	}
	return &Ledger{
		eth:      eth,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "chain")),
	}
}

// Resolver returns the address the ledger signs with.
func (l *Ledger) Resolver() string { return l.from.Hex() }

// GetMarket reads the market snapshot from the contract.
func (l *Ledger) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	input, err := resolutionABI.Pack("getMarket", marketKey(marketID))
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: pack getMarket: %w", err)
	}

	out, err := l.eth.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: input}, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: getMarket %s: %v: %w", marketID, err, domain.ErrNetwork)
	}

	var view marketView
	if err := resolutionABI.UnpackIntoInterface(&view, "getMarket", out); err != nil {
		return domain.Market{}, fmt.Errorf("chain: unpack getMarket %s: %w", marketID, err)
	}
	if view.Question == "" {
		return domain.Market{}, fmt.Errorf("chain: market %s: %w", marketID, domain.ErrNotFound)
	}

	m := domain.Market{
		ID:          marketID,
		Question:    view.Question,
		Description: view.Description,
		Category:    domain.CategoryFromIndex(view.Category),
		Creator:     view.Creator.Hex(),
		EndTime:     time.Unix(view.EndTime.Int64(), 0).UTC(),
		Resolved:    view.Resolved,
	}
	if view.Resolved {
		outcome := view.Outcome
		m.Outcome = &outcome
	}
	return m, nil
}

// GasPrice returns the current suggested gas price in wei.
func (l *Ledger) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := l.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %v: %w", err, domain.ErrNetwork)
	}
	return price, nil
}

// SubmitResolution writes the outcome to the contract and waits for the
// mined receipt. The call is simulated first so an authorization revert is
// classified before any gas is spent.
func (l *Ledger) SubmitResolution(ctx context.Context, marketID string, outcome bool, confidence int, evidenceCID string) (domain.SubmitReceipt, error) {
	input, err := resolutionABI.Pack("resolveMarket",
		marketKey(marketID), outcome, big.NewInt(int64(confidence)), evidenceCID)
	if err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: pack resolveMarket: %w", err)
	}

	call := ethereum.CallMsg{From: l.from, To: &l.contract, Data: input}
	if _, err := l.eth.CallContract(ctx, call, nil); err != nil {
		return domain.SubmitReceipt{}, l.classifyRevert(marketID, err)
	}

	nonce, err := l.eth.PendingNonceAt(ctx, l.from)
	if err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: nonce: %v: %w", err, domain.ErrNetwork)
	}
	gasPrice, err := l.eth.SuggestGasPrice(ctx)
	if err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: gas price: %v: %w", err, domain.ErrNetwork)
	}
	gasLimit, err := l.eth.EstimateGas(ctx, call)
	if err != nil || gasLimit == 0 {
		gasLimit = l.cfg.GasLimit
	}

	tx, err := types.SignNewTx(l.key, types.LatestSignerForChainID(l.chainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       &l.contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := l.eth.SendTransaction(ctx, tx); err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: send tx for %s: %v: %w", marketID, err, domain.ErrTxFailed)
	}

	l.logger.InfoContext(ctx, "resolution submitted",
		slog.String("market_id", marketID),
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)

	receipt, err := l.waitMined(ctx, tx.Hash())
	if err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: confirm %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.SubmitReceipt{}, fmt.Errorf("chain: tx %s reverted: %w", tx.Hash().Hex(), domain.ErrTxFailed)
	}

	return domain.SubmitReceipt{
		TxHash:      tx.Hash().Hex(),
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// waitMined polls for the receipt until it lands or the timeout passes.
func (l *Ledger) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.eth.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			l.logger.WarnContext(ctx, "receipt poll failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt timeout: %w", domain.ErrTxFailed)
		case <-ticker.C:
		}
	}
}

// classifyRevert maps a simulation failure to the error taxonomy. A revert
// that names authorization means this signer may not resolve the market;
// anything else is a plain transaction failure.
func (l *Ledger) classifyRevert(marketID string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unauthorized") || strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "not the resolver") {
		return fmt.Errorf("chain: resolve %s as %s: %w", marketID, l.from.Hex(), domain.ErrUnauthorized)
	}
	return fmt.Errorf("chain: simulate resolve %s: %v: %w", marketID, err, domain.ErrTxFailed)
}

// marketKey maps a market ID to the contract's bytes32 key: a 32-byte hex ID
// passes through, anything else is hashed.
func marketKey(marketID string) [32]byte {
	var key [32]byte
	if strings.HasPrefix(marketID, "0x") && len(marketID) == 66 {
		copy(key[:], common.FromHex(marketID))
		return key
	}
	copy(key[:], ethcrypto.Keccak256([]byte(marketID)))
	return key
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
