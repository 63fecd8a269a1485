// Package lifecycle decides what an account may do with one auction and
// performs those actions on chain.
package lifecycle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
)

type Role int

const (
	NotBidder Role = iota
	Bidder
	HighestBidder
	Seller
)

func (r Role) String() string {
	switch r {
	case Seller:
		return "seller"
	case HighestBidder:
		return "highest bidder"
	case Bidder:
		return "bidder"
	default:
		return "not bidding"
	}
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionStart    Action = "start"
	ActionBid      Action = "bid"
	ActionWithdraw Action = "withdraw"
	ActionEnd      Action = "end"
	ActionCreate   Action = "create auction"
	ActionMint     Action = "mint"
	ActionTransfer Action = "transfer"
)

// DeriveRole is the role account plays in snap. The seller stays the seller
// even when it also holds the highest bid.
func DeriveRole(account common.Address, snap *aggregator.AuctionSnapshot) Role {
	if account == (common.Address{}) {
		return NotBidder
	}
	if account == snap.Seller {
		return Seller
	}
	if snap.HasBids() && account == snap.HighestBidder {
		return HighestBidder
	}
	// user bid amounts are only meaningful for the account they were read for
	if snap.Account == account && snap.UserBidAmount != nil && snap.UserBidAmount.Sign() > 0 {
		return Bidder
	}
	return NotBidder
}

func unix(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func biddable(snap *aggregator.AuctionSnapshot, now time.Time) bool {
	return snap.Started && !snap.Ended && unix(now) < snap.EndAt
}

func endable(snap *aggregator.AuctionSnapshot, now time.Time) bool {
	return snap.Started && !snap.Ended && unix(now) >= snap.EndAt
}

// LegalActions lists what account may do with snap at now. approved tells
// whether the auction is the approved spender of its nft and only matters to
// a seller before the start.
func LegalActions(account common.Address, snap *aggregator.AuctionSnapshot, approved bool, now time.Time) []Action {
	actions := []Action{}
	switch DeriveRole(account, snap) {
	case Seller:
		if !snap.Started && !snap.Ended {
			if approved {
				actions = append(actions, ActionStart)
			} else {
				actions = append(actions, ActionApprove)
			}
		}
		if endable(snap, now) {
			actions = append(actions, ActionEnd)
		}
	case HighestBidder:
		if biddable(snap, now) {
			actions = append(actions, ActionBid)
		}
		if endable(snap, now) {
			actions = append(actions, ActionEnd)
		}
	case Bidder:
		if biddable(snap, now) {
			actions = append(actions, ActionBid)
		}
		actions = append(actions, ActionWithdraw)
	case NotBidder:
		if biddable(snap, now) {
			actions = append(actions, ActionBid)
		}
	}
	return actions
}

// CheckAction returns nil when action is legal, or a validation error
// explaining why it is not.
func CheckAction(account common.Address, snap *aggregator.AuctionSnapshot, approved bool, now time.Time, action Action) error {
	for _, a := range LegalActions(account, snap, approved, now) {
		if a == action {
			return nil
		}
	}
	role := DeriveRole(account, snap)
	switch action {
	case ActionApprove, ActionStart:
		if role != Seller {
			return aucommon.Rejected("only the seller can %s the auction", action)
		}
		if snap.Started || snap.Ended {
			return aucommon.Rejected("auction already started")
		}
		if action == ActionApprove {
			return aucommon.Rejected("auction is already approved for token #%s", snap.NFTID)
		}
		return aucommon.Rejected("auction is not approved for token #%s yet", snap.NFTID)
	case ActionBid:
		if role == Seller {
			return aucommon.Rejected("the seller cannot bid")
		}
		if !snap.Started {
			return aucommon.Rejected("auction has not started")
		}
		return aucommon.Rejected("auction is over")
	case ActionWithdraw:
		if role == HighestBidder {
			return aucommon.Rejected("the highest bid is locked in escrow until the auction ends")
		}
		return aucommon.Rejected("nothing to withdraw")
	case ActionEnd:
		if role != Seller && role != HighestBidder {
			return aucommon.Rejected("only the seller or the highest bidder can end the auction")
		}
		if !snap.Started {
			return aucommon.Rejected("auction has not started")
		}
		if snap.Ended {
			return aucommon.Rejected("auction already ended")
		}
		return aucommon.Rejected("auction can only end at %s",
			time.Unix(int64(snap.EndAt), 0).UTC().Format(time.RFC3339))
	}
	return aucommon.Rejected("%s is not allowed", action)
}

// ValidateBid checks a bid that brings account's total bid to amount and
// returns how much has to be sent with it. Whatever account already has in
// escrow counts toward the total.
func ValidateBid(account common.Address, snap *aggregator.AuctionSnapshot, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, aucommon.Rejected("bid must be positive")
	}
	highest := bigOrZero(snap.HighestBid)
	if amount.Cmp(highest) < 0 {
		return nil, aucommon.Rejected("bid %s is below the highest bid %s", amount, highest)
	}
	role := DeriveRole(account, snap)
	if role == Seller {
		return nil, aucommon.Rejected("the seller cannot bid")
	}
	if role != HighestBidder {
		min := new(big.Int).Add(highest, bigOrZero(snap.Increment))
		if amount.Cmp(min) < 0 {
			return nil, aucommon.Rejected("bid %s is below the minimum %s (highest bid plus increment)", amount, min)
		}
	}
	escrowed := big.NewInt(0)
	if snap.Account == account && snap.UserBidAmount != nil {
		escrowed = snap.UserBidAmount
	}
	transfer := new(big.Int).Sub(amount, escrowed)
	if transfer.Sign() <= 0 {
		return nil, aucommon.Rejected("bid %s does not exceed your escrowed %s", amount, escrowed)
	}
	return transfer, nil
}

func bigOrZero(b *big.Int) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	return b
}

// ApprovalError means the auction is not the approved spender of the token it
// sells, so it cannot take custody of it on start.
type ApprovalError struct {
	Auction  common.Address
	NFT      common.Address
	TokenID  *big.Int
	Approved common.Address
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf(
		"auction %s is not approved for token #%s of %s (approved spender is %s)",
		e.Auction.Hex(), e.TokenID, e.NFT.Hex(), e.Approved.Hex(),
	)
}

func (e *ApprovalError) Unwrap() error {
	return aucommon.ErrNotApproved
}
