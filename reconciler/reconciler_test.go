package reconciler

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/metadata"
	"github.com/tranvictor/auctioneer/scanner"
	"github.com/tranvictor/auctioneer/session/sessiontest"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

type nopFetcher struct{}

func (nopFetcher) Fetch(ctx context.Context, uri string, id *big.Int) (*metadata.Metadata, error) {
	return metadata.Synthesize(id, uri), nil
}

type fixture struct {
	chain   *sessiontest.FakeChain
	rec     *Reconciler
	auction common.Address
}

// setup gives alice tokens 1 and 2 and bob token 3, with token 1 up for
// auction and bob holding a bid of 60 on it.
func setup(t *testing.T, account common.Address) *fixture {
	t.Helper()
	chain := sessiontest.New(account, 1337)
	chain.DeployFactory()
	col := sessiontest.NewCollection()
	col.Mint(alice, "ipfs://one")
	col.Mint(alice, "ipfs://two")
	col.Mint(bob, "ipfs://three")
	nft := chain.DeployCollection(col)
	now := chain.Now()
	auction := chain.AddAuction(&sessiontest.Auction{
		Seller:        alice,
		HighestBidder: bob,
		StartAt:       now,
		Duration:      600,
		EndAt:         now + 600,
		Increment:     big.NewInt(10),
		HighestBid:    big.NewInt(60),
		NFT:           nft,
		NFTID:         big.NewInt(1),
		Started:       true,
		Bids:          map[common.Address]*big.Int{bob: big.NewInt(60)},
	})

	logger := zaptest.NewLogger(t)
	rec := New(chain,
		aggregator.New(chain, nopFetcher{}, logger),
		scanner.New(chain, nopFetcher{}, logger),
		logger,
	)
	return &fixture{chain: chain, rec: rec, auction: auction}
}

func tokenIDs(tokens []scanner.NftToken) []int64 {
	ids := []int64{}
	for _, tok := range tokens {
		ids = append(ids, tok.TokenID.Int64())
	}
	return ids
}

// recorder keeps every view it is pushed.
type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) accounts() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []common.Address{}
	for _, v := range r.views {
		out = append(out, v.Identity.Account)
	}
	return out
}

func TestRefreshBuildsView(t *testing.T) {
	f := setup(t, alice)
	require.NoError(t, f.rec.Refresh(context.Background()))

	view := f.rec.View()
	assert.True(t, view.FactoryDeployed)
	assert.True(t, view.CollectionDeployed)
	assert.Equal(t, alice, view.Identity.Account)
	assert.Equal(t, []int64{2}, tokenIDs(view.Tokens))
	require.Len(t, view.Auctions, 1)
	assert.Equal(t, f.auction, view.Auctions[0].Address)
	assert.False(t, view.UpdatedAt.IsZero())
}

func TestRefreshWithoutDeploymentsIsNotAnError(t *testing.T) {
	f := setup(t, alice)
	f.chain.Undeploy(aucommon.AuctionFactoryArtifact)
	f.chain.Undeploy(aucommon.NFTArtifact)

	require.NoError(t, f.rec.Refresh(context.Background()))
	view := f.rec.View()
	assert.False(t, view.FactoryDeployed)
	assert.False(t, view.CollectionDeployed)
	assert.Empty(t, view.Auctions)
	assert.Empty(t, view.Tokens)
}

func TestRefreshWithoutSessionCommitsEmptyView(t *testing.T) {
	f := setup(t, alice)
	require.NoError(t, f.rec.Refresh(context.Background()))
	f.chain.Disconnect()

	err := f.rec.Refresh(context.Background())
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
	view := f.rec.View()
	assert.False(t, view.Identity.Connected)
	assert.Empty(t, view.Auctions)
}

func TestNewerScanWinsWhenOlderResolvesLast(t *testing.T) {
	f := setup(t, alice)
	rec := &recorder{}
	f.rec.Subscribe(rec.record)

	// alice's scan hangs until released
	release := f.chain.Gate(alice)
	older := make(chan error, 1)
	go func() { older <- f.rec.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return f.rec.latest() == 1 }, time.Second, time.Millisecond)

	f.chain.SetAccount(bob)
	require.NoError(t, f.rec.Refresh(context.Background()))
	release()

	assert.ErrorIs(t, <-older, ErrSuperseded)
	view := f.rec.View()
	assert.Equal(t, bob, view.Identity.Account)
	assert.Equal(t, []int64{3}, tokenIDs(view.Tokens))
	assert.Equal(t, []common.Address{bob}, rec.accounts())
}

func TestThreeOverlappingScansKeepTheLatest(t *testing.T) {
	f := setup(t, alice)
	rec := &recorder{}
	f.rec.Subscribe(rec.record)

	releaseAlice := f.chain.Gate(alice)
	releaseBob := f.chain.Gate(bob)
	f.rec.Start(context.Background())
	defer f.rec.Stop()

	f.chain.SetAccount(bob)
	f.chain.SetAccount(carol)

	require.Eventually(t, func() bool {
		return f.rec.View().Identity.Account == carol
	}, 2*time.Second, 5*time.Millisecond)
	releaseBob()
	releaseAlice()
	f.rec.Stop()

	assert.Equal(t, []common.Address{carol}, rec.accounts())
	view := f.rec.View()
	assert.Equal(t, uint64(3), view.Generation)
	assert.Empty(t, view.Tokens)
	require.Len(t, view.Auctions, 1)
	assert.Equal(t, "0", view.Auctions[0].UserBidAmount.String())
}

func TestScanForStaleIdentityIsDropped(t *testing.T) {
	f := setup(t, alice)
	release := f.chain.Gate(alice)
	done := make(chan error, 1)
	go func() { done <- f.rec.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return f.rec.latest() == 1 }, time.Second, time.Millisecond)

	// the account moves without anyone triggering a new scan
	f.chain.SetAccount(bob)
	release()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Zero(t, f.rec.View().Generation)
}

func TestProvisionalBidLastsUntilNextCommit(t *testing.T) {
	f := setup(t, carol)
	require.NoError(t, f.rec.Refresh(context.Background()))
	base, found := f.rec.View().Auction(f.auction)
	require.True(t, found)

	bid := base.Clone()
	bid.HighestBid = big.NewInt(70)
	bid.HighestBidder = carol
	bid.UserBidAmount = big.NewInt(70)
	bid.Provisional = true
	f.rec.ApplyProvisional(bid)

	shown, _ := f.rec.View().Auction(f.auction)
	assert.True(t, shown.Provisional)
	assert.Equal(t, "70", shown.HighestBid.String())

	require.NoError(t, f.rec.Refresh(context.Background()))
	shown, _ = f.rec.View().Auction(f.auction)
	assert.False(t, shown.Provisional)
	assert.Equal(t, "60", shown.HighestBid.String())
}

func TestProvisionalForAnotherAccountIsIgnored(t *testing.T) {
	f := setup(t, carol)
	require.NoError(t, f.rec.Refresh(context.Background()))
	base, _ := f.rec.View().Auction(f.auction)

	foreign := base.Clone()
	foreign.Account = bob
	foreign.HighestBid = big.NewInt(999)
	f.rec.ApplyProvisional(foreign)

	shown, _ := f.rec.View().Auction(f.auction)
	assert.Equal(t, "60", shown.HighestBid.String())
}

func TestApplyBid(t *testing.T) {
	f := setup(t, carol)
	require.NoError(t, f.rec.Refresh(context.Background()))
	rec := &recorder{}
	f.rec.Subscribe(rec.record)

	f.rec.ApplyBid(lifecycle.BidEvent{Auction: f.auction, Sender: alice, Amount: big.NewInt(80)})
	shown, _ := f.rec.View().Auction(f.auction)
	assert.Equal(t, "80", shown.HighestBid.String())
	assert.Equal(t, alice, shown.HighestBidder)
	assert.Len(t, rec.accounts(), 1)

	f.rec.ApplyBid(lifecycle.BidEvent{Auction: common.HexToAddress("0x1234"), Sender: alice, Amount: big.NewInt(90)})
	assert.Len(t, rec.accounts(), 1)
}

func TestSubscribeStops(t *testing.T) {
	f := setup(t, alice)
	rec := &recorder{}
	stop := f.rec.Subscribe(rec.record)
	require.NoError(t, f.rec.Refresh(context.Background()))
	stop()
	require.NoError(t, f.rec.Refresh(context.Background()))
	assert.Len(t, rec.accounts(), 1)
}
