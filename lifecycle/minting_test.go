package lifecycle

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aucommon "github.com/tranvictor/auctioneer/common"
)

func TestCreateAuction(t *testing.T) {
	w := newWorld(t, alice)
	ctx := context.Background()
	factory, err := w.chain.ResolveDeployedAddress(aucommon.AuctionFactoryArtifact)
	require.NoError(t, err)

	created, outcome, err := w.ctl.CreateAuction(ctx, factory, AuctionParams{
		NFT:         w.nft,
		TokenID:     big.NewInt(3),
		StartingBid: big.NewInt(1000),
		Increment:   big.NewInt(100),
		Duration:    7200,
	})
	require.NoError(t, err)
	assert.Equal(t, created, outcome.Auction)

	a := w.chain.Auction(created)
	require.NotNil(t, a)
	assert.Equal(t, alice, a.Seller)
	assert.Equal(t, uint64(7200), a.Duration)

	snap := w.ref.find(t, created)
	assert.Equal(t, "1000", snap.HighestBid.String())
	actions, err := w.ctl.LegalActions(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionApprove}, actions)
}

func TestCreateAuctionValidatesLocally(t *testing.T) {
	w := newWorld(t, alice)
	factory, err := w.chain.ResolveDeployedAddress(aucommon.AuctionFactoryArtifact)
	require.NoError(t, err)

	valid := AuctionParams{NFT: w.nft, TokenID: big.NewInt(3), StartingBid: big.NewInt(1), Increment: big.NewInt(1), Duration: 60}
	broken := []AuctionParams{valid, valid, valid}
	broken[0].StartingBid = big.NewInt(0)
	broken[1].Increment = big.NewInt(-1)
	broken[2].Duration = 0
	for _, p := range broken {
		_, _, err := w.ctl.CreateAuction(context.Background(), factory, p)
		assert.ErrorIs(t, err, aucommon.ErrValidationRejected)
	}

	w.chain.SetAccount(bob)
	_, _, err = w.ctl.CreateAuction(context.Background(), factory, valid)
	assert.ErrorIs(t, err, aucommon.ErrValidationRejected)
	assert.Empty(t, w.chain.Sends())
}

func TestMintReturnsNewTokenID(t *testing.T) {
	w := newWorld(t, bob)
	collection, err := w.chain.ResolveDeployedAddress(aucommon.NFTArtifact)
	require.NoError(t, err)

	id, _, err := w.ctl.Mint(context.Background(), collection, "ipfs://four")
	require.NoError(t, err)
	assert.Equal(t, int64(4), id.Int64())
	assert.Equal(t, bob, w.chain.Collection(w.nft).Owners[4])

	_, _, err = w.ctl.Mint(context.Background(), collection, "")
	assert.ErrorIs(t, err, aucommon.ErrValidationRejected)
}

func TestTransfer(t *testing.T) {
	w := newWorld(t, alice)
	collection, err := w.chain.ResolveDeployedAddress(aucommon.NFTArtifact)
	require.NoError(t, err)

	_, err = w.ctl.Transfer(context.Background(), collection, alice, big.NewInt(3))
	assert.ErrorIs(t, err, aucommon.ErrValidationRejected)
	assert.Empty(t, w.chain.Sends())

	_, err = w.ctl.Transfer(context.Background(), collection, carol, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, carol, w.chain.Collection(w.nft).Owners[3])
}
