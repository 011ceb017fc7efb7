package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

// fakeBackend scripts the chain responses.
type fakeBackend struct {
	callFn   func(call ethereum.CallMsg) ([]byte, error)
	gasPrice *big.Int
	sentTx   *types.Transaction
	receipt  *types.Receipt
	recErr   error
	recAfter int
	recCalls int
	sendErr  error
	estimate uint64
	estErr   error
	nonceErr error
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callFn != nil {
		return f.callFn(call)
	}
	return nil, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return big.NewInt(20_000_000_000), nil
	}
	return f.gasPrice, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, f.nonceErr
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estErr != nil {
		return 0, f.estErr
	}
	if f.estimate == 0 {
		return 120000, nil
	}
	return f.estimate, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sentTx = tx
	return f.sendErr
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.recCalls++
	if f.recCalls <= f.recAfter {
		return nil, ethereum.NotFound
	}
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.receipt, nil
}

func testLedger(t *testing.T, eth backend) *Ledger {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		ContractAddress:     "0x000000000000000000000000000000000000dEaD",
		ChainID:             137,
		ReceiptTimeout:      200 * time.Millisecond,
		ReceiptPollInterval: 10 * time.Millisecond,
	}
	return newLedger(eth, cfg, key, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func packMarket(t *testing.T, question string, category uint8, resolved, outcome bool) []byte {
	t.Helper()
	out, err := resolutionABI.Methods["getMarket"].Outputs.Pack(
		question, "desc", category,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		big.NewInt(1767139200), resolved, outcome,
	)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestGetMarket(t *testing.T) {
	eth := &fakeBackend{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return packMarket(t, "Will BTC exceed $100,000?", 0, false, false), nil
	}}
	l := testLedger(t, eth)

	m, err := l.GetMarket(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.Question != "Will BTC exceed $100,000?" || m.Category != domain.CategoryCrypto {
		t.Errorf("market = %+v", m)
	}
	if m.Resolved || m.Outcome != nil {
		t.Error("unresolved market must have nil outcome")
	}
}

func TestGetMarketResolvedOutcome(t *testing.T) {
	eth := &fakeBackend{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return packMarket(t, "q", 1, true, true), nil
	}}
	l := testLedger(t, eth)

	m, err := l.GetMarket(context.Background(), "m")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Resolved || m.Outcome == nil || !*m.Outcome {
		t.Errorf("market = %+v", m)
	}
}

func TestGetMarketMissing(t *testing.T) {
	eth := &fakeBackend{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return packMarket(t, "", 0, false, false), nil
	}}
	l := testLedger(t, eth)

	if _, err := l.GetMarket(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitResolutionSuccess(t *testing.T) {
	eth := &fakeBackend{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			GasUsed:     90000,
			BlockNumber: big.NewInt(123456),
		},
		recAfter: 2,
	}
	l := testLedger(t, eth)

	receipt, err := l.SubmitResolution(context.Background(), "0xabc", true, 9650, "sha256-deadbeef")
	if err != nil {
		t.Fatalf("SubmitResolution: %v", err)
	}
	if receipt.GasUsed != 90000 || receipt.BlockNumber != 123456 {
		t.Errorf("receipt = %+v", receipt)
	}
	if receipt.TxHash == "" || eth.sentTx == nil {
		t.Fatal("transaction was not sent")
	}
	if eth.sentTx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", eth.sentTx.Nonce())
	}
}

func TestSubmitResolutionUnauthorized(t *testing.T) {
	eth := &fakeBackend{callFn: func(call ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted: Unauthorized resolver")
	}}
	l := testLedger(t, eth)

	_, err := l.SubmitResolution(context.Background(), "0xabc", true, 9650, "sha256-deadbeef")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if eth.sentTx != nil {
		t.Error("no transaction may be sent after a failed simulation")
	}
}

func TestSubmitResolutionOtherRevert(t *testing.T) {
	eth := &fakeBackend{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted: market not ended")
	}}
	l := testLedger(t, eth)

	_, err := l.SubmitResolution(context.Background(), "0xabc", true, 9650, "cid")
	if !errors.Is(err, domain.ErrTxFailed) {
		t.Fatalf("err = %v, want ErrTxFailed", err)
	}
}

func TestSubmitResolutionRevertedReceipt(t *testing.T) {
	eth := &fakeBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)},
	}
	l := testLedger(t, eth)

	_, err := l.SubmitResolution(context.Background(), "0xabc", false, 9000, "cid")
	if !errors.Is(err, domain.ErrTxFailed) {
		t.Fatalf("err = %v, want ErrTxFailed", err)
	}
}

func TestSubmitResolutionReceiptTimeout(t *testing.T) {
	eth := &fakeBackend{recAfter: 1 << 30}
	l := testLedger(t, eth)

	start := time.Now()
	_, err := l.SubmitResolution(context.Background(), "0xabc", true, 9000, "cid")
	if !errors.Is(err, domain.ErrTxFailed) {
		t.Fatalf("err = %v, want ErrTxFailed", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestMarketKey(t *testing.T) {
	hexID := "0xab" + strings.Repeat("0", 62)
	key := marketKey(hexID)
	if key[0] != 0xab {
		t.Errorf("hex id must pass through, got %x", key[0])
	}

	a := marketKey("market-1")
	b := marketKey("market-2")
	if a == b {
		t.Error("different ids must hash to different keys")
	}
}
