package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/metadata"
	"github.com/tranvictor/auctioneer/session/sessiontest"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type stubFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]bool
	onFetch func()
}

func (f *stubFetcher) Fetch(ctx context.Context, uri string, id *big.Int) (*metadata.Metadata, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, uri)
	onFetch := f.onFetch
	f.mu.Unlock()
	if onFetch != nil {
		onFetch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fail[uri] {
		return nil, fmt.Errorf("%s: %w", uri, aucommon.ErrMetadataUnreachable)
	}
	return &metadata.Metadata{Name: "meta " + uri, Image: uri + ".png"}, nil
}

func setup(t *testing.T) (*sessiontest.FakeChain, aucommon.ContractRef) {
	t.Helper()
	chain := sessiontest.New(alice, 1337)
	col := sessiontest.NewCollection()
	col.Mint(alice, "ipfs://one")
	col.Mint(bob, "ipfs://two")
	col.Mint(alice, "ipfs://three")
	col.Mint(alice, "ipfs://four")
	col.Mint(alice, "ipfs://five")
	col.Burn(4)
	chain.DeployCollection(col)
	ref, err := chain.ResolveDeployedAddress(aucommon.NFTArtifact)
	require.NoError(t, err)
	return chain, ref
}

func tokenIDs(tokens []NftToken) []int64 {
	ids := []int64{}
	for _, tok := range tokens {
		ids = append(ids, tok.TokenID.Int64())
	}
	return ids
}

func TestScanOwnedSkipsBurnedAndForeignTokens(t *testing.T) {
	chain, ref := setup(t)
	s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))

	tokens, err := s.ScanOwned(context.Background(), ref, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, tokenIDs(tokens))
	assert.Equal(t, "ipfs://three", tokens[1].URI)
	assert.Equal(t, "meta ipfs://three", tokens[1].Metadata.Name)
	assert.Equal(t, ref.Address, tokens[1].Collection)
}

func TestScanOwnedInParallelKeepsOrder(t *testing.T) {
	chain, ref := setup(t)
	sequential, err := New(chain, &stubFetcher{}, zaptest.NewLogger(t)).ScanOwned(context.Background(), ref, alice)
	require.NoError(t, err)

	s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))
	s.Workers = 4
	parallel, err := s.ScanOwned(context.Background(), ref, alice)
	require.NoError(t, err)
	assert.Equal(t, sequential, parallel)
}

func TestScanOwnedKeepsTokenWithUnreachableMetadata(t *testing.T) {
	chain, ref := setup(t)
	s := New(chain, &stubFetcher{fail: map[string]bool{"ipfs://one": true}}, zaptest.NewLogger(t))

	tokens, err := s.ScanOwned(context.Background(), ref, alice)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 5}, tokenIDs(tokens))
	assert.Nil(t, tokens[0].Metadata)
	assert.NotNil(t, tokens[1].Metadata)
}

func TestScanOwnedStopsWhenCancelled(t *testing.T) {
	chain, ref := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{onFetch: cancel}
	s := New(chain, fetcher, zaptest.NewLogger(t))

	tokens, err := s.ScanOwned(ctx, ref, alice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, tokens)
	// totalSupply, ownerOf(1), tokenURI(1) and nothing after the cancel
	assert.Equal(t, 3, chain.Calls())
	assert.Len(t, fetcher.fetched, 1)
}

func TestScanOwnedFailsWithoutCollection(t *testing.T) {
	chain, _ := setup(t)
	s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))
	_, err := s.ScanOwned(context.Background(), aucommon.NFTRef(common.HexToAddress("0xdead")), alice)
	assert.Error(t, err)
}

// supplyChain reports a fixed totalSupply and owns nothing for anyone.
type supplyChain struct {
	mu       sync.Mutex
	supply   *big.Int
	ownerOfs int
	onOwner  func()
}

func (c *supplyChain) CallFrom(ctx context.Context, from common.Address, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	if method == "totalSupply" {
		return []interface{}{c.supply}, nil
	}
	c.mu.Lock()
	c.ownerOfs++
	onOwner := c.onOwner
	c.mu.Unlock()
	if onOwner != nil {
		onOwner()
	}
	return []interface{}{bob}, nil
}

func (c *supplyChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func TestScanOwnedRejectsSupplyOutOfRange(t *testing.T) {
	ref := aucommon.NFTRef(common.HexToAddress("0xc011"))
	for _, supply := range []*big.Int{
		new(big.Int).Lsh(big.NewInt(1), 63),
		new(big.Int).Lsh(big.NewInt(1), 255),
		big.NewInt(-1),
	} {
		chain := &supplyChain{supply: supply}
		s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))
		tokens, err := s.ScanOwned(context.Background(), ref, alice)
		require.Error(t, err, supply.String())
		assert.Contains(t, err.Error(), "out of range")
		assert.Nil(t, tokens)
		assert.Zero(t, chain.ownerOfs)
	}
}

func TestScanOwnedHugeSupplyStopsWhenCancelled(t *testing.T) {
	ref := aucommon.NFTRef(common.HexToAddress("0xc011"))
	for _, workers := range []int{1, 4} {
		ctx, cancel := context.WithCancel(context.Background())
		chain := &supplyChain{supply: big.NewInt(1 << 40), onOwner: cancel}
		s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))
		s.Workers = workers

		tokens, err := s.ScanOwned(ctx, ref, alice)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, tokens)
		assert.Less(t, chain.ownerOfs, 1000)
	}
}

func TestScanOwnedByLogsMatchesLinearScan(t *testing.T) {
	chain := sessiontest.New(alice, 1337)
	chain.DeployCollection(sessiontest.NewCollection())
	ref, err := chain.ResolveDeployedAddress(aucommon.NFTArtifact)
	require.NoError(t, err)

	ctx := context.Background()
	for _, uri := range []string{"ipfs://a", "ipfs://b", "ipfs://c"} {
		_, err := chain.Send(ctx, ref, "mint", nil, uri)
		require.NoError(t, err)
	}
	// token 2 leaves alice
	_, err = chain.Send(ctx, ref, "transferFrom", nil, alice, bob, big.NewInt(2))
	require.NoError(t, err)

	s := New(chain, &stubFetcher{}, zaptest.NewLogger(t))
	linear, err := s.ScanOwned(ctx, ref, alice)
	require.NoError(t, err)
	byLogs, err := s.ScanOwnedByLogs(ctx, ref, alice, 0)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, tokenIDs(linear))
	assert.Equal(t, linear, byLogs)
}
