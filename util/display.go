package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/scanner"
	"github.com/tranvictor/auctioneer/ui"
)

const (
	StatusPending     = "pending"
	StatusLive        = "live"
	StatusAwaitingEnd = "awaiting end"
	StatusEnded       = "ended"
)

// ── Build phase (pure: no UI side-effects) ──────────────────────────────────

// AuctionStatus places an auction in its lifecycle at now.
func AuctionStatus(snap *aggregator.AuctionSnapshot, now time.Time) ui.StyledText {
	switch {
	case snap.Ended:
		return ui.StyledText{Text: StatusEnded, Severity: ui.SeverityInfo}
	case !snap.Started:
		return ui.StyledText{Text: StatusPending, Severity: ui.SeverityWarn}
	case uint64(now.Unix()) >= snap.EndAt:
		return ui.StyledText{Text: StatusAwaitingEnd, Severity: ui.SeverityError}
	default:
		return ui.StyledText{Text: StatusLive, Severity: ui.SeveritySuccess}
	}
}

// styledParty marks the viewing account as "you".
func styledParty(addr, account common.Address) ui.StyledText {
	if addr == aucommon.ZeroAddress {
		return ui.StyledText{Text: "none", Severity: ui.SeverityInfo}
	}
	if addr == account && account != aucommon.ZeroAddress {
		return ui.StyledText{Text: addr.Hex() + " (you)", Severity: ui.SeveritySuccess}
	}
	return ui.StyledText{Text: addr.Hex(), Severity: ui.SeverityInfo}
}

func buildAuctionDisplay(snap *aggregator.AuctionSnapshot, now time.Time, network networks.Network) *AuctionDisplay {
	symbol := network.GetNativeTokenSymbol()
	d := &AuctionDisplay{
		Address:     snap.Address.Hex(),
		Name:        snap.Name(),
		Collection:  snap.NFT.Hex(),
		Seller:      styledParty(snap.Seller, snap.Account),
		Status:      AuctionStatus(snap, now),
		HighestBid:  aucommon.FormatUnits(snap.HighestBid, network.GetNativeTokenDecimal()) + " " + symbol,
		Increment:   aucommon.FormatUnits(snap.Increment, network.GetNativeTokenDecimal()) + " " + symbol,
		Duration:    (time.Duration(snap.Duration) * time.Second).String(),
		Provisional: snap.Provisional,
	}
	if snap.NFTID != nil {
		d.TokenID = snap.NFTID.String()
	}
	if snap.Metadata != nil {
		d.Image = snap.Metadata.Image
		d.Description = snap.Metadata.Description
	}
	if snap.HasBids() {
		d.HighestBidder = styledParty(snap.HighestBidder, snap.Account)
	} else {
		d.HighestBidder = ui.StyledText{Text: "none (starting bid)", Severity: ui.SeverityInfo}
	}
	if snap.UserBidAmount != nil && snap.UserBidAmount.Sign() > 0 {
		d.YourBid = aucommon.FormatUnits(snap.UserBidAmount, network.GetNativeTokenDecimal()) + " " + symbol
	}
	if snap.Started {
		d.StartedAt = FormatTimestamp(snap.StartAt)
		d.EndsAt = FormatTimestamp(snap.EndAt)
		if !snap.Ended {
			d.Remaining = FormatRemaining(snap.EndAt, now)
		}
	}
	return d
}

func buildTokenDisplay(t scanner.NftToken) TokenDisplay {
	d := TokenDisplay{
		Collection: t.Collection.Hex(),
		TokenID:    t.TokenID.String(),
		URI:        t.URI,
		Name:       fmt.Sprintf("Token #%s", t.TokenID),
	}
	if t.Metadata != nil {
		if t.Metadata.Name != "" {
			d.Name = t.Metadata.Name
		}
		d.Image = t.Metadata.Image
	}
	return d
}

func buildOutcomeDisplay(o *lifecycle.Outcome) *OutcomeDisplay {
	d := &OutcomeDisplay{
		Action: string(o.Action),
		Status: ui.StyledText{Text: "confirmed", Severity: ui.SeveritySuccess},
	}
	if o.Auction != aucommon.ZeroAddress {
		d.Auction = o.Auction.Hex()
	}
	if o.TokenID != nil {
		d.TokenID = o.TokenID.String()
	}
	if r := o.Receipt; r != nil {
		d.TxHash = r.TxHash.Hex()
		if r.BlockNumber != nil {
			d.BlockNumber = r.BlockNumber.String()
		}
		d.GasUsed = fmt.Sprintf("%d", r.GasUsed)
		if r.Status != types.ReceiptStatusSuccessful {
			d.Status = ui.StyledText{Text: "reverted", Severity: ui.SeverityError}
		}
	}
	if o.RefreshErr != nil {
		d.Warning = fmt.Sprintf("the view could not be refreshed: %s", o.RefreshErr)
	}
	return d
}

// ── Print phase (reads only from the display struct, colours via u.Style) ────

func printAuctionList(u ui.UI, ds []*AuctionDisplay) {
	if len(ds) == 0 {
		u.Info("No auctions listed.")
		return
	}
	rows := make([][]string, len(ds))
	for i, d := range ds {
		name := d.Name
		if d.Provisional {
			name += " *"
		}
		ends := d.Remaining
		if ends == "" {
			ends = "-"
		}
		rows[i] = []string{
			fmt.Sprintf("%d", i+1),
			name,
			d.Address,
			u.Style(d.Status),
			d.HighestBid,
			ends,
		}
	}
	u.Table([]string{"#", "Token", "Auction", "Status", "Highest bid", "Ends in"}, rows)
}

func printAuction(u ui.UI, d *AuctionDisplay) {
	u.Section(d.Name)
	rows := [][2]string{
		{"Auction", d.Address},
		{"Collection", d.Collection},
		{"Token id", d.TokenID},
		{"Seller", u.Style(d.Seller)},
		{"Status", u.Style(d.Status)},
		{"Highest bid", d.HighestBid},
		{"Highest bidder", u.Style(d.HighestBidder)},
		{"Increment", d.Increment},
		{"Duration", d.Duration},
	}
	if d.YourBid != "" {
		rows = append(rows, [2]string{"Your bid", d.YourBid})
	}
	if d.StartedAt != "" {
		rows = append(rows, [2]string{"Started at", d.StartedAt}, [2]string{"Ends at", d.EndsAt})
	}
	if d.Remaining != "" {
		rows = append(rows, [2]string{"Remaining", d.Remaining})
	}
	if d.Image != "" {
		rows = append(rows, [2]string{"Image", d.Image})
	}
	if d.Description != "" {
		rows = append(rows, [2]string{"Description", d.Description})
	}
	if d.Role != "" {
		rows = append(rows, [2]string{"You are", d.Role})
	}
	u.KeyValue(rows)
	if d.Provisional {
		u.Warn("Shown with your pending bid, not yet confirmed by a refresh.")
	}
	if d.Role == "" {
		return
	}
	if len(d.Actions) == 0 {
		u.Info("Nothing you can do on this auction right now.")
		return
	}
	u.Info("Available: %s", strings.Join(d.Actions, ", "))
}

// ── Public API ───────────────────────────────────────────────────────────────

// DisplayAuctions prints the auction list in the order given and returns
// its view-model.
func DisplayAuctions(u ui.UI, snaps []*aggregator.AuctionSnapshot, now time.Time, network networks.Network) []*AuctionDisplay {
	ds := make([]*AuctionDisplay, len(snaps))
	for i, s := range snaps {
		ds[i] = buildAuctionDisplay(s, now, network)
	}
	printAuctionList(u, ds)
	return ds
}

// DisplayAuction prints one auction. With a non-empty account the viewer's
// role and legal actions are shown too.
func DisplayAuction(
	u ui.UI,
	snap *aggregator.AuctionSnapshot,
	account common.Address,
	actions []lifecycle.Action,
	now time.Time,
	network networks.Network,
) *AuctionDisplay {
	d := buildAuctionDisplay(snap, now, network)
	if account != aucommon.ZeroAddress {
		d.Role = lifecycle.DeriveRole(account, snap).String()
		d.Actions = []string{}
		for _, a := range actions {
			d.Actions = append(d.Actions, string(a))
		}
	}
	printAuction(u, d)
	return d
}

func DisplayTokens(u ui.UI, tokens []scanner.NftToken) []TokenDisplay {
	ds := make([]TokenDisplay, len(tokens))
	for i, t := range tokens {
		ds[i] = buildTokenDisplay(t)
	}
	if len(ds) == 0 {
		u.Info("No tokens owned.")
		return ds
	}
	rows := make([][]string, len(ds))
	for i, d := range ds {
		rows[i] = []string{d.TokenID, d.Name, d.Collection}
	}
	u.Table([]string{"Token id", "Name", "Collection"}, rows)
	return ds
}

func DisplayOutcome(u ui.UI, o *lifecycle.Outcome) *OutcomeDisplay {
	d := buildOutcomeDisplay(o)
	if d.Status.Severity == ui.SeverityError {
		u.Error("%s %s", d.Action, u.Style(d.Status))
	} else {
		u.Success("%s %s", d.Action, u.Style(d.Status))
	}
	var rows [][2]string
	if d.Auction != "" {
		rows = append(rows, [2]string{"Auction", d.Auction})
	}
	if d.TokenID != "" {
		rows = append(rows, [2]string{"Token id", d.TokenID})
	}
	if d.TxHash != "" {
		rows = append(rows,
			[2]string{"Tx", d.TxHash},
			[2]string{"Block", d.BlockNumber},
			[2]string{"Gas used", d.GasUsed},
		)
	}
	if len(rows) > 0 {
		u.KeyValue(rows)
	}
	if d.Warning != "" {
		u.Warn("%s", d.Warning)
	}
	return d
}

// DescribeError turns an error into the line shown to the operator and an
// optional hint on what to do about it.
func DescribeError(err error) (msg string, hint string) {
	msg = err.Error()
	var approval *lifecycle.ApprovalError
	var revert *aucommon.RevertError
	switch {
	case errors.As(err, &approval):
		hint = fmt.Sprintf("run `approve %s` first", approval.Auction.Hex())
	case errors.Is(err, aucommon.ErrUserRejected):
		hint = "nothing was sent"
	case errors.As(err, &revert):
		if revert.Reason == "" {
			hint = "the contract gave no reason"
		}
	case errors.Is(err, aucommon.ErrNoSession):
		hint = "check --network and --from, and that a node is reachable"
	case errors.Is(err, aucommon.ErrNotDeployed):
		hint = "point the config at a deployment with contracts.<name>, or deploy to this network"
	case errors.Is(err, aucommon.ErrTransportFailure):
		hint = "the node is unreachable or timed out, try again or add nodes in the config"
	case errors.Is(err, aucommon.ErrNonContractAddress):
		hint = "the address has no code on this network"
	case errors.Is(err, aucommon.ErrTokenNotFound):
		hint = "the token id does not exist in this collection"
	}
	return msg, hint
}

// DisplayError reports err by its kind. A declined signature is only a
// warning.
func DisplayError(u ui.UI, err error) {
	msg, hint := DescribeError(err)
	if errors.Is(err, aucommon.ErrUserRejected) {
		u.Warn("%s", msg)
	} else {
		u.Error("%s", msg)
	}
	if hint != "" {
		u.Indent().Info("%s", hint)
	}
}
