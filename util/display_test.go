package util_test

import (
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/metadata"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/scanner"
	"github.com/tranvictor/auctioneer/ui"
	"github.com/tranvictor/auctioneer/util"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	now   = time.Unix(1_700_000_000, 0)
)

func ether(s string) *big.Int {
	v, err := aucommon.ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

func liveAuction() *aggregator.AuctionSnapshot {
	return &aggregator.AuctionSnapshot{
		Address:       common.HexToAddress("0x00000000000000000000000000000000000a0c01"),
		Seller:        alice,
		NFT:           common.HexToAddress("0x00000000000000000000000000000000000c0113"),
		NFTID:         big.NewInt(7),
		StartAt:       uint64(now.Unix()) - 100,
		Duration:      3700,
		EndAt:         uint64(now.Unix()) + 3600,
		Increment:     ether("0.1"),
		HighestBid:    ether("1.5"),
		HighestBidder: bob,
		UserBidAmount: ether("1.5"),
		Started:       true,
		Metadata:      &metadata.Metadata{Name: "Sunset", Image: "https://img/1.png"},
		Account:       bob,
	}
}

func TestAuctionStatus(t *testing.T) {
	s := liveAuction()
	assert.Equal(t, util.StatusLive, util.AuctionStatus(s, now).Text)

	s.EndAt = uint64(now.Unix())
	assert.Equal(t, util.StatusAwaitingEnd, util.AuctionStatus(s, now).Text)

	s.Ended = true
	assert.Equal(t, util.StatusEnded, util.AuctionStatus(s, now).Text)

	pending := liveAuction()
	pending.Started = false
	assert.Equal(t, util.StatusPending, util.AuctionStatus(pending, now).Text)
}

func TestDisplayAuctionsKeepsOrder(t *testing.T) {
	u := ui.NewRecordingUI()
	first := liveAuction()
	second := liveAuction()
	second.Address = common.HexToAddress("0x00000000000000000000000000000000000a0c02")
	second.Metadata = nil
	second.NFTID = big.NewInt(9)
	second.Started = false
	second.HighestBidder = common.Address{}

	ds := util.DisplayAuctions(u, []*aggregator.AuctionSnapshot{first, second}, now, networks.Local)

	require.Len(t, ds, 2)
	assert.Equal(t, "Sunset", ds[0].Name)
	assert.Equal(t, "Token #9", ds[1].Name)
	tables := u.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"1", "Sunset", first.Address.Hex(), "live", "1.5 ETH", "1h0m0s"}, tables[0][0])
	assert.Equal(t, []string{"2", "Token #9", second.Address.Hex(), "pending", "1.5 ETH", "-"}, tables[0][1])
}

func TestDisplayAuctionsEmpty(t *testing.T) {
	u := ui.NewRecordingUI()
	ds := util.DisplayAuctions(u, nil, now, networks.Local)
	assert.Empty(t, ds)
	assert.True(t, u.HasMessage("no auctions"))
}

func TestDisplayAuctionShowsRoleAndActions(t *testing.T) {
	u := ui.NewRecordingUI()
	s := liveAuction()

	d := util.DisplayAuction(u, s, bob, []lifecycle.Action{lifecycle.ActionBid}, now, networks.Local)

	assert.Equal(t, "highest bidder", d.Role)
	assert.Equal(t, []string{"bid"}, d.Actions)
	assert.Equal(t, bob.Hex()+" (you)", d.HighestBidder.Text)
	assert.Equal(t, "1.5 ETH", d.YourBid)
	assert.True(t, u.HasMessage("You are: highest bidder"))
	assert.True(t, u.HasMessage("Available: bid"))
}

func TestDisplayAuctionWithoutAccountHasNoRole(t *testing.T) {
	u := ui.NewRecordingUI()
	s := liveAuction()
	s.Account = common.Address{}
	s.UserBidAmount = big.NewInt(0)

	d := util.DisplayAuction(u, s, common.Address{}, nil, now, networks.Local)

	assert.Empty(t, d.Role)
	assert.Empty(t, d.YourBid)
	assert.False(t, u.HasMessage("Available"))
}

func TestDisplayAuctionFlagsProvisional(t *testing.T) {
	u := ui.NewRecordingUI()
	s := liveAuction()
	s.Provisional = true

	util.DisplayAuction(u, s, bob, nil, now, networks.Local)

	require.Len(t, u.WarnMessages(), 1)
	assert.True(t, u.HasMessage("Nothing you can do"))
}

func TestAuctionDisplayJSONIsPlain(t *testing.T) {
	u := ui.NewRecordingUI()
	d := util.DisplayAuction(u, liveAuction(), bob, nil, now, networks.Local)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "live", doc["status"])
	assert.Equal(t, alice.Hex(), doc["seller"])
}

func TestDisplayTokens(t *testing.T) {
	u := ui.NewRecordingUI()
	collection := common.HexToAddress("0x00000000000000000000000000000000000c0113")
	ds := util.DisplayTokens(u, []scanner.NftToken{
		{Collection: collection, TokenID: big.NewInt(1), Metadata: &metadata.Metadata{Name: "Sunset"}},
		{Collection: collection, TokenID: big.NewInt(2)},
	})

	require.Len(t, ds, 2)
	assert.Equal(t, "Sunset", ds[0].Name)
	assert.Equal(t, "Token #2", ds[1].Name)
	assert.Len(t, u.Tables()[0], 2)
}

func TestDisplayOutcome(t *testing.T) {
	u := ui.NewRecordingUI()
	o := &lifecycle.Outcome{
		Action:     lifecycle.ActionBid,
		Auction:    liveAuction().Address,
		Receipt:    &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(12), GasUsed: 21000},
		RefreshErr: fmt.Errorf("node went away"),
	}

	d := util.DisplayOutcome(u, o)

	assert.Equal(t, "confirmed", d.Status.Text)
	assert.Equal(t, "12", d.BlockNumber)
	assert.Equal(t, []string{"bid confirmed"}, u.SuccessMessages())
	require.Len(t, u.WarnMessages(), 1)
	assert.Contains(t, u.WarnMessages()[0], "node went away")
}

func TestDisplayOutcomeReverted(t *testing.T) {
	u := ui.NewRecordingUI()
	util.DisplayOutcome(u, &lifecycle.Outcome{
		Action:  lifecycle.ActionEnd,
		Receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(1)},
	})
	assert.Equal(t, []string{"end reverted"}, u.ErrorMessages())
}

func TestDescribeError(t *testing.T) {
	auction := liveAuction().Address
	tests := []struct {
		name string
		err  error
		hint string
	}{
		{
			name: "approval",
			err: &aucommon.ActionError{
				Action:  "start",
				Auction: auction,
				Err:     &lifecycle.ApprovalError{Auction: auction, TokenID: big.NewInt(1)},
			},
			hint: "approve " + auction.Hex(),
		},
		{name: "no session", err: fmt.Errorf("list: %w", aucommon.ErrNoSession), hint: "--network"},
		{name: "not deployed", err: aucommon.ErrNotDeployed, hint: "deploy"},
		{name: "bare revert", err: &aucommon.RevertError{}, hint: "no reason"},
		{name: "validation", err: aucommon.Rejected("bid too low"), hint: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, hint := util.DescribeError(tc.err)
			assert.Equal(t, tc.err.Error(), msg)
			if tc.hint == "" {
				assert.Empty(t, hint)
			} else {
				assert.Contains(t, hint, tc.hint)
			}
		})
	}
}

func TestDisplayErrorUserRejectedIsWarning(t *testing.T) {
	u := ui.NewRecordingUI()
	util.DisplayError(u, aucommon.ErrUserRejected)
	assert.Empty(t, u.ErrorMessages())
	assert.Len(t, u.WarnMessages(), 1)
}
