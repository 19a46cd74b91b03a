package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/activitybot/internal/account"
	"github.com/gateway-fm/activitybot/internal/txbuilder"
	ptypes "github.com/gateway-fm/activitybot/pkg/types"
)

var (
	testChainID = big.NewInt(42000)
	testToken   = common.HexToAddress("0xD4949664cD82660AaE99bEdc034a0deA8A0bd517")
	gwei        = big.NewInt(1_000_000_000)
)

// fakeChain is an in-memory chain. Transactions are mined on send unless
// withhold is set; approvals update the allowance.
type fakeChain struct {
	mu        sync.Mutex
	pending   uint64
	tip       *big.Int
	baseFee   *big.Int
	native    *big.Int
	token     *big.Int
	allowance *big.Int
	sendErr   error
	revert    bool
	withhold  bool
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
}

var _ Chain = (*fakeChain)(nil)

func newFakeChain() *fakeChain {
	return &fakeChain{
		pending:   7,
		tip:       new(big.Int).Set(gwei),
		baseFee:   big.NewInt(5_000_000_000),
		native:    new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
		token:     new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
		allowance: new(big.Int),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

func (c *fakeChain) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, nil
}

func (c *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if c.tip == nil {
		return nil, errors.New("method not found")
	}
	return new(big.Int).Set(c.tip), nil
}

func (c *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: c.baseFee}, nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(c.native), nil
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var v *big.Int
	switch {
	case bytes.HasPrefix(msg.Data, common.FromHex("0x70a08231")):
		v = c.token
	case bytes.HasPrefix(msg.Data, common.FromHex("0xdd62ed3e")):
		v = c.allowance
	default:
		return nil, errors.New("execution reverted")
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	c.pending++

	if tx.To() != nil && *tx.To() == testToken && bytes.HasPrefix(tx.Data(), common.FromHex("0x095ea7b3")) {
		c.allowance = new(big.Int).SetBytes(tx.Data()[36:68])
	}
	if c.withhold {
		return nil
	}
	status := types.ReceiptStatusSuccessful
	if c.revert {
		status = types.ReceiptStatusFailed
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(100 + len(c.sent))),
	}
	return nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeChain) CodeAt(ctx context.Context, addr common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (c *fakeChain) sentTxs() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

type fakePortal struct {
	transfers int
	lastTxs   int
	err       error
}

func (p *fakePortal) SyncTransferHistory(ctx context.Context, addr common.Address) error {
	p.transfers++
	return p.err
}

func (p *fakePortal) SyncLastTransactions(ctx context.Context, addr common.Address) error {
	p.lastTxs++
	return p.err
}

func testSubmitter(t *testing.T, timeout time.Duration) (*Submitter, *account.Account) {
	t.Helper()
	accounts, err := account.LoadTestAccounts()
	if err != nil {
		t.Fatalf("LoadTestAccounts: %v", err)
	}
	s := New(Config{
		Tracker:        account.NewTracker(nil),
		ChainID:        testChainID,
		Token:          testToken,
		ConfirmTimeout: timeout,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s, accounts[0]
}

func stakeBuilt(t *testing.T, acc *account.Account) *txbuilder.Built {
	t.Helper()
	b, err := txbuilder.BuildStake(txbuilder.StakeParams{
		Sender:    acc.Address.Hex(),
		Validator: "0x007a1123a54cdd9ba35ad2012db086b9d8350a5f",
		Amount:    "0.5",
	})
	if err != nil {
		t.Fatalf("BuildStake: %v", err)
	}
	return b
}

func TestSubmit_Confirmed(t *testing.T) {
	chain := newFakeChain()
	portal := &fakePortal{}
	s, acc := testSubmitter(t, time.Minute)

	out, err := s.Submit(context.Background(), Conn{Chain: chain, Portal: portal}, acc, stakeBuilt(t, acc))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Confirmed || out.Reverted {
		t.Fatalf("outcome = %+v, want confirmed", out)
	}

	sent := chain.sentTxs()
	if len(sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(sent))
	}
	tx := sent[0]
	if tx.Hash() != out.Hash {
		t.Errorf("outcome hash %s != sent %s", out.Hash.Hex(), tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != txbuilder.RouterGasLimit {
		t.Errorf("gas = %d, want %d", tx.Gas(), txbuilder.RouterGasLimit)
	}
	// 2 * 5 gwei + 1 gwei
	if want := big.NewInt(11_000_000_000); tx.GasFeeCap().Cmp(want) != 0 {
		t.Errorf("fee cap = %s, want %s", tx.GasFeeCap(), want)
	}
	if *tx.To() != txbuilder.DefaultStakeRouter {
		t.Errorf("to = %s, want stake router", tx.To().Hex())
	}
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != acc.Address {
		t.Errorf("sender = %s, want %s", from.Hex(), acc.Address.Hex())
	}

	if portal.lastTxs != 1 || portal.transfers != 0 {
		t.Errorf("stake sync calls: lastTxs=%d transfers=%d", portal.lastTxs, portal.transfers)
	}
}

func TestSubmit_TipFallback(t *testing.T) {
	chain := newFakeChain()
	chain.tip = nil
	s, acc := testSubmitter(t, time.Minute)

	if _, err := s.Submit(context.Background(), Conn{Chain: chain}, acc, stakeBuilt(t, acc)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tip := chain.sentTxs()[0].GasTipCap(); tip.Cmp(gwei) != 0 {
		t.Errorf("tip = %s, want 1 gwei fallback", tip)
	}
}

func TestSubmit_Reverted(t *testing.T) {
	chain := newFakeChain()
	chain.revert = true
	portal := &fakePortal{}
	s, acc := testSubmitter(t, time.Minute)

	out, err := s.Submit(context.Background(), Conn{Chain: chain, Portal: portal}, acc, stakeBuilt(t, acc))
	var reverted *RevertedError
	if !errors.As(err, &reverted) {
		t.Fatalf("err = %v, want RevertedError", err)
	}
	if !out.Reverted || out.Confirmed {
		t.Errorf("outcome = %+v, want reverted", out)
	}
	if reverted.Receipt.TxHash != out.Hash {
		t.Errorf("receipt hash mismatch")
	}
	if portal.lastTxs != 0 {
		t.Errorf("indexer synced after a revert")
	}
}

func TestSubmit_SendFailureConsumesNonce(t *testing.T) {
	chain := newFakeChain()
	chain.sendErr = errors.New("nonce too low")
	s, acc := testSubmitter(t, time.Minute)

	if _, err := s.Submit(context.Background(), Conn{Chain: chain}, acc, stakeBuilt(t, acc)); err == nil {
		t.Fatal("expected send error")
	}

	chain.sendErr = nil
	if _, err := s.Submit(context.Background(), Conn{Chain: chain}, acc, stakeBuilt(t, acc)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if n := chain.sentTxs()[0].Nonce(); n != 8 {
		t.Errorf("nonce after failed send = %d, want 8", n)
	}
}

func TestSubmit_Unconfirmed(t *testing.T) {
	chain := newFakeChain()
	chain.withhold = true
	s, acc := testSubmitter(t, 50*time.Millisecond)

	out, err := s.Submit(context.Background(), Conn{Chain: chain}, acc, stakeBuilt(t, acc))
	var confErr *ConfirmationError
	if !errors.As(err, &confErr) {
		t.Fatalf("err = %v, want ConfirmationError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if out.Confirmed || out.Reverted {
		t.Errorf("outcome = %+v, want neither confirmed nor reverted", out)
	}
	if out.Hash == (common.Hash{}) {
		t.Error("hash missing for a broadcast transaction")
	}
}

func TestSubmit_ConfirmationIgnoresCancel(t *testing.T) {
	chain := newFakeChain()
	s, acc := testSubmitter(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.Submit(ctx, Conn{Chain: chain}, acc, stakeBuilt(t, acc))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Confirmed {
		t.Errorf("outcome = %+v, want confirmed", out)
	}
}

func TestSubmit_StoppedTracker(t *testing.T) {
	chain := newFakeChain()
	accounts, _ := account.LoadTestAccounts()
	s := New(Config{
		Tracker: account.NewTracker(func() bool { return true }),
		ChainID: testChainID,
		Token:   testToken,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := s.Submit(context.Background(), Conn{Chain: chain}, accounts[0], stakeBuilt(t, accounts[0]))
	if !errors.Is(err, account.ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if len(chain.sentTxs()) != 0 {
		t.Error("transaction sent after stop")
	}
}

func TestSubmit_SyncFailureKeepsOutcome(t *testing.T) {
	chain := newFakeChain()
	portal := &fakePortal{err: errors.New("indexer down")}
	s, acc := testSubmitter(t, time.Minute)

	out, err := s.Submit(context.Background(), Conn{Chain: chain, Portal: portal}, acc, stakeBuilt(t, acc))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Confirmed {
		t.Errorf("outcome = %+v, want confirmed", out)
	}
	if portal.lastTxs != 1 {
		t.Errorf("sync attempts = %d, want 1", portal.lastTxs)
	}
}

func TestBridge_ApprovesFirst(t *testing.T) {
	chain := newFakeChain()
	portal := &fakePortal{}
	s, acc := testSubmitter(t, time.Minute)

	out, err := s.Bridge(context.Background(), Conn{Chain: chain, Portal: portal}, acc, BridgeRequest{
		DestChainID: 11155111,
		DestName:    "Ethereum Sepolia",
		Amount:      "1.5",
	})
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if !out.Confirmed {
		t.Fatalf("outcome = %+v", out)
	}

	sent := chain.sentTxs()
	if len(sent) != 2 {
		t.Fatalf("sent %d transactions, want approve + bridge", len(sent))
	}
	if *sent[0].To() != testToken {
		t.Errorf("first tx to %s, want token", sent[0].To().Hex())
	}
	if sent[0].Gas() != txbuilder.ApproveGasLimit {
		t.Errorf("approve gas = %d", sent[0].Gas())
	}
	if *sent[1].To() != txbuilder.DefaultBridgeRouter {
		t.Errorf("second tx to %s, want bridge router", sent[1].To().Hex())
	}
	if sent[0].Nonce() != 7 || sent[1].Nonce() != 8 {
		t.Errorf("nonces = %d, %d; want 7, 8", sent[0].Nonce(), sent[1].Nonce())
	}

	call, err := txbuilder.DecodeBridge(sent[1].Data())
	if err != nil {
		t.Fatalf("DecodeBridge: %v", err)
	}
	if call.DestChainID != 11155111 {
		t.Errorf("dest chain = %d", call.DestChainID)
	}
	if want := account.RecipientOf(acc.Address); call.Recipient != want {
		t.Errorf("recipient = %q, want %q", call.Recipient, want)
	}
	if portal.transfers != 1 {
		t.Errorf("transfer history syncs = %d, want 1", portal.transfers)
	}
}

func TestBridge_SkipsApproveWithAllowance(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	s, acc := testSubmitter(t, time.Minute)

	if _, err := s.Bridge(context.Background(), Conn{Chain: chain}, acc, BridgeRequest{DestChainID: 97, Amount: "2"}); err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if n := len(chain.sentTxs()); n != 1 {
		t.Errorf("sent %d transactions, want 1", n)
	}
}

func TestBridge_FailedApproveStops(t *testing.T) {
	chain := newFakeChain()
	chain.revert = true
	s, acc := testSubmitter(t, time.Minute)

	_, err := s.Bridge(context.Background(), Conn{Chain: chain}, acc, BridgeRequest{DestChainID: 97, Amount: "2"})
	var reverted *RevertedError
	if !errors.As(err, &reverted) {
		t.Fatalf("err = %v, want reverted approval", err)
	}
	if n := len(chain.sentTxs()); n != 1 {
		t.Errorf("sent %d transactions, want only the approval", n)
	}
}

func TestCheckBridgeFunds(t *testing.T) {
	s, acc := testSubmitter(t, time.Minute)
	amount := new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))

	tests := []struct {
		name      string
		native    *big.Int
		token     *big.Int
		wantAsset string
	}{
		{"enough", big.NewInt(1e18), new(big.Int).Set(amount), ""},
		// gas cost is 11 gwei * 1.5M = 0.0165 HLS
		{"native short", big.NewInt(16_000_000_000_000_000), new(big.Int).Set(amount), "native"},
		{"token short", big.NewInt(1e18), big.NewInt(1), "token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain()
			chain.native = tt.native
			chain.token = tt.token

			err := s.CheckBridgeFunds(context.Background(), Conn{Chain: chain}, acc, amount)
			if tt.wantAsset == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ib *InsufficientBalanceError
			if !errors.As(err, &ib) {
				t.Fatalf("err = %v, want InsufficientBalanceError", err)
			}
			if ib.Asset != tt.wantAsset {
				t.Errorf("asset = %q, want %q", ib.Asset, tt.wantAsset)
			}
		})
	}
}

func TestSubmit_ApproveSkipsSync(t *testing.T) {
	chain := newFakeChain()
	portal := &fakePortal{}
	s, acc := testSubmitter(t, time.Minute)
	b := txbuilder.BuildApprove(testToken, txbuilder.DefaultBridgeRouter, big.NewInt(1))
	if b.Kind != ptypes.OpApprove {
		t.Fatalf("kind = %s", b.Kind)
	}

	if _, err := s.Submit(context.Background(), Conn{Chain: chain, Portal: portal}, acc, b); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if portal.transfers != 0 || portal.lastTxs != 0 {
		t.Errorf("approval triggered an indexer sync")
	}
}
