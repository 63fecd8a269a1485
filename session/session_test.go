package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tranvictor/auctioneer/artifacts"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/util/account"
	"github.com/tranvictor/auctioneer/util/reader"
)

const testKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

type revertErr struct {
	reason string
	data   string
}

func (e revertErr) Error() string          { return "execution reverted: " + e.reason }
func (e revertErr) ErrorCode() int         { return 3 }
func (e revertErr) ErrorData() interface{} { return e.data }

// fakeEth is the slice of the eth namespace a session touches.
type fakeEth struct {
	mu       sync.Mutex
	chainID  int64
	revert   string
	status   uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeEth) ChainId() *hexutil.Big {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (*hexutil.Big)(big.NewInt(f.chainID))
}

func (f *fakeEth) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return hexutil.Uint64(len(f.sent))
}

func (f *fakeEth) EstimateGas(args map[string]interface{}, block *string) (hexutil.Uint64, error) {
	if f.revert != "" {
		return 0, revertErr{reason: f.revert, data: encodeRevert(f.revert)}
	}
	return 50000, nil
}

func (f *fakeEth) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	return nil, revertErr{reason: "Auction already ended", data: encodeRevert("Auction already ended")}
}

func (f *fakeEth) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1_000_000_000))
}

func (f *fakeEth) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            f.status,
		CumulativeGasUsed: 50000,
		GasUsed:           50000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		BlockHash:         common.HexToHash("0xb1"),
		BlockNumber:       big.NewInt(7),
	}
	return tx.Hash(), nil
}

func (f *fakeEth) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash]
}

func encodeRevert(reason string) string {
	strType, _ := abiString()
	packed, _ := strType.Pack(reason)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func newFakeEth(chainID int64) *fakeEth {
	return &fakeEth{chainID: chainID, status: types.ReceiptStatusSuccessful, receipts: map[common.Hash]*types.Receipt{}}
}

func inprocSession(t *testing.T, eth *fakeEth, signer Signer) *Session {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", eth))
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return NewWithNodes(networks.Local, signer, Options{
		Logger:          zaptest.NewLogger(t),
		TxType:          aucommon.TxTypeLegacy,
		ReceiptInterval: time.Millisecond,
	}, reader.NewOneNodeReaderWithClient("inproc", client))
}

func testAccount(t *testing.T) *account.Account {
	t.Helper()
	acc, err := account.NewPrivateKeyAccount(testKey)
	require.NoError(t, err)
	return acc
}

func TestSessionWithoutNodesFailsFast(t *testing.T) {
	s := New(networks.WithNodes(networks.Local, map[string]string{}), nil, Options{Logger: zaptest.NewLogger(t)})
	assert.False(t, s.Identity().Connected)

	_, err := s.Call(context.Background(), aucommon.FactoryRef(common.HexToAddress("0x1")), "getAuctions")
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
	_, err = s.CodeAt(context.Background(), common.HexToAddress("0x1"))
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
	_, err = s.Send(context.Background(), aucommon.AuctionRef(common.HexToAddress("0x1")), "start", nil)
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
	assert.ErrorIs(t, s.Connect(context.Background()), aucommon.ErrNoSession)
}

func TestIdentityChangesNotifySynchronously(t *testing.T) {
	s := inprocSession(t, newFakeEth(1337), nil)
	start := s.Identity()

	var seen []Identity
	unsubscribe := s.OnIdentityChange(func(id Identity) { seen = append(seen, id) })

	acc := testAccount(t)
	s.SwitchAccount(acc)
	require.Len(t, seen, 1)
	assert.Equal(t, acc.Address(), seen[0].Account)
	assert.Equal(t, start.Generation+1, seen[0].Generation)

	// same account again is not a change
	s.SwitchAccount(acc)
	assert.Len(t, seen, 1)

	s.Disconnect()
	require.Len(t, seen, 2)
	assert.False(t, seen[1].Connected)

	unsubscribe()
	s.SwitchAccount(nil)
	assert.Len(t, seen, 2)
	assert.Equal(t, start.Generation+3, s.Identity().Generation)
}

func TestConnectAdoptsReportedChain(t *testing.T) {
	s := inprocSession(t, newFakeEth(11155111), nil)
	require.NoError(t, s.Connect(context.Background()))

	id := s.Identity()
	assert.Equal(t, uint64(11155111), id.NetworkID)
	assert.True(t, id.Connected)
	assert.Equal(t, "sepolia", s.Network().GetName())
}

func TestWatchNetworkFollowsExternalSwitch(t *testing.T) {
	eth := newFakeEth(1337)
	s := inprocSession(t, eth, nil)
	changed := make(chan Identity, 4)
	s.OnIdentityChange(func(id Identity) { changed <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.WatchNetwork(ctx, time.Millisecond)

	eth.mu.Lock()
	eth.chainID = 1
	eth.mu.Unlock()

	select {
	case id := <-changed:
		assert.Equal(t, uint64(1), id.NetworkID)
	case <-time.After(2 * time.Second):
		t.Fatal("network switch was not observed")
	}
}

func TestResolveDeployedAddressUsesDevnetAlias(t *testing.T) {
	store := artifacts.NewStore()
	store.SetAddress(aucommon.AuctionFactoryArtifact, "5777", common.HexToAddress("0xfac"))

	custom := networks.NewGenericNetwork(networks.GenericNetworkConfig{Name: "ganache-cli", ChainID: 1337})
	s := New(networks.WithNodes(custom, map[string]string{}), nil, Options{Artifacts: store})

	ref, err := s.ResolveDeployedAddress(aucommon.AuctionFactoryArtifact)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xfac"), ref.Address)

	_, err = s.ResolveDeployedAddress(aucommon.NFTArtifact)
	assert.ErrorIs(t, err, aucommon.ErrNotDeployed)
}

func TestSendSignsBroadcastsAndWaits(t *testing.T) {
	eth := newFakeEth(1337)
	acc := testAccount(t)
	s := inprocSession(t, eth, acc)

	auction := aucommon.AuctionRef(common.HexToAddress("0xa1"))
	receipt, err := s.Send(context.Background(), auction, "bid", big.NewInt(40))
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	require.Len(t, eth.sent, 1)
	tx := eth.sent[0]
	assert.Equal(t, big.NewInt(40), tx.Value())
	assert.Equal(t, auction.Address, *tx.To())
	assert.Equal(t, uint64(60000), tx.Gas())
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), sender)
}

func TestSendSurfacesEstimationRevert(t *testing.T) {
	eth := newFakeEth(1337)
	eth.revert = "Highest bidder cannot withdraw"
	s := inprocSession(t, eth, testAccount(t))

	_, err := s.Send(context.Background(), aucommon.AuctionRef(common.HexToAddress("0xa1")), "withdraw", nil)
	require.ErrorIs(t, err, aucommon.ErrChainReverted)
	var revert *aucommon.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "Highest bidder cannot withdraw", revert.Reason)
	assert.Empty(t, eth.sent)
}

func TestSendReportsMinedRevert(t *testing.T) {
	eth := newFakeEth(1337)
	eth.status = types.ReceiptStatusFailed
	s := inprocSession(t, eth, testAccount(t))

	receipt, err := s.Send(context.Background(), aucommon.AuctionRef(common.HexToAddress("0xa1")), "end", nil)
	require.ErrorIs(t, err, aucommon.ErrChainReverted)
	require.NotNil(t, receipt)
	var revert *aucommon.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "Auction already ended", revert.Reason)
}

func TestSendDeclinedByUser(t *testing.T) {
	eth := newFakeEth(1337)
	declining := testAccount(t).WithConfirmation(func(*types.Transaction) bool { return false })
	s := inprocSession(t, eth, declining)

	_, err := s.Send(context.Background(), aucommon.AuctionRef(common.HexToAddress("0xa1")), "start", nil)
	assert.ErrorIs(t, err, aucommon.ErrUserRejected)
	assert.Empty(t, eth.sent)
}

func TestSendWithoutAccountIsRejected(t *testing.T) {
	s := inprocSession(t, newFakeEth(1337), nil)
	_, err := s.Send(context.Background(), aucommon.AuctionRef(common.HexToAddress("0xa1")), "start", nil)
	assert.ErrorIs(t, err, aucommon.ErrValidationRejected)
}
