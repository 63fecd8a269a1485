package lifecycle

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/session"
)

// Chain is the part of a session the controller needs.
type Chain interface {
	Identity() session.Identity
	Call(ctx context.Context, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error)
	Send(ctx context.Context, ref aucommon.ContractRef, method string, value *big.Int, args ...interface{}) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Refresher re-reads chain state after a successful write.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ProvisionalSink takes optimistic snapshots to show until the next refresh
// replaces them.
type ProvisionalSink interface {
	ApplyProvisional(snap *aggregator.AuctionSnapshot)
}

// Outcome reports a successful action.
type Outcome struct {
	Action  Action
	Auction common.Address
	TokenID *big.Int
	Receipt *types.Receipt
	// Snapshot is the optimistic state after a bid. It is provisional.
	Snapshot *aggregator.AuctionSnapshot
	// RefreshErr is set when the action went through but the follow-up
	// refresh did not.
	RefreshErr error
}

type Controller struct {
	chain     Chain
	refresher Refresher
	logger    *zap.Logger
	// Now is the clock used to decide whether an auction is over.
	Now func() time.Time
	// PollInterval paces WatchBids when the node cannot push logs.
	PollInterval time.Duration
}

func NewController(chain Chain, refresher Refresher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		chain:        chain,
		refresher:    refresher,
		logger:       logger,
		Now:          time.Now,
		PollInterval: 4 * time.Second,
	}
}

func actionError(action Action, snap *aggregator.AuctionSnapshot, err error) error {
	return &aucommon.ActionError{
		Action:  string(action),
		Auction: snap.Address,
		TokenID: snap.NFTID,
		Err:     err,
	}
}

// account returns the active account after making sure snap was read for
// it. A snapshot from another account carries someone else's escrow.
func (c *Controller) account(snap *aggregator.AuctionSnapshot) (common.Address, error) {
	id := c.chain.Identity()
	if !id.Connected {
		return common.Address{}, aucommon.ErrNoSession
	}
	if !id.HasAccount() {
		return common.Address{}, aucommon.Rejected("no active account")
	}
	if snap != nil && snap.Account != id.Account {
		return common.Address{}, aucommon.Rejected(
			"auction was read for %s but the active account is %s, refresh first",
			snap.Account.Hex(), id.Account.Hex())
	}
	return id.Account, nil
}

// ApprovedSpender re-reads who may move the auction's token.
func (c *Controller) ApprovedSpender(ctx context.Context, snap *aggregator.AuctionSnapshot) (common.Address, error) {
	out, err := c.chain.Call(ctx, aucommon.NFTRef(snap.NFT), "getApproved", snap.NFTID)
	if err != nil {
		return common.Address{}, err
	}
	spender, _ := out[0].(common.Address)
	return spender, nil
}

// IsApproved tells whether the auction is the approved spender of its nft.
// It is vacuously true once the auction started or for anyone but the
// seller, since nothing is gated on it then.
func (c *Controller) IsApproved(ctx context.Context, snap *aggregator.AuctionSnapshot) (bool, error) {
	if snap.Started || c.chain.Identity().Account != snap.Seller {
		return true, nil
	}
	spender, err := c.ApprovedSpender(ctx, snap)
	if err != nil {
		return false, err
	}
	return spender == snap.Address, nil
}

// LegalActions is the package level LegalActions for the active account,
// with the approval read from chain.
func (c *Controller) LegalActions(ctx context.Context, snap *aggregator.AuctionSnapshot) ([]Action, error) {
	approved, err := c.IsApproved(ctx, snap)
	if err != nil {
		return nil, err
	}
	return LegalActions(c.chain.Identity().Account, snap, approved, c.Now()), nil
}

func (c *Controller) finish(ctx context.Context, outcome *Outcome) *Outcome {
	if c.refresher == nil {
		return outcome
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after action failed",
			zap.String("action", string(outcome.Action)),
			zap.Error(err),
		)
		outcome.RefreshErr = err
	}
	return outcome
}

// Approve lets the auction take custody of its nft.
func (c *Controller) Approve(ctx context.Context, snap *aggregator.AuctionSnapshot) (*Outcome, error) {
	account, err := c.account(snap)
	if err != nil {
		return nil, actionError(ActionApprove, snap, err)
	}
	approved, err := c.IsApproved(ctx, snap)
	if err != nil {
		return nil, actionError(ActionApprove, snap, err)
	}
	if err := CheckAction(account, snap, approved, c.Now(), ActionApprove); err != nil {
		return nil, actionError(ActionApprove, snap, err)
	}
	receipt, err := c.chain.Send(ctx, aucommon.NFTRef(snap.NFT), "approve", nil, snap.Address, snap.NFTID)
	if err != nil {
		return nil, actionError(ActionApprove, snap, err)
	}
	c.logger.Info("approved auction", zap.String("auction", snap.Address.Hex()), zap.String("token", snap.NFTID.String()))
	return c.finish(ctx, &Outcome{Action: ActionApprove, Auction: snap.Address, TokenID: snap.NFTID, Receipt: receipt}), nil
}

// Start opens the auction for bids. The approval is read again right before
// sending and a mismatch comes back as an ApprovalError.
func (c *Controller) Start(ctx context.Context, snap *aggregator.AuctionSnapshot) (*Outcome, error) {
	account, err := c.account(snap)
	if err != nil {
		return nil, actionError(ActionStart, snap, err)
	}
	if DeriveRole(account, snap) != Seller || snap.Started || snap.Ended {
		return nil, actionError(ActionStart, snap, CheckAction(account, snap, true, c.Now(), ActionStart))
	}
	spender, err := c.ApprovedSpender(ctx, snap)
	if err != nil {
		return nil, actionError(ActionStart, snap, err)
	}
	if spender != snap.Address {
		return nil, actionError(ActionStart, snap, &ApprovalError{
			Auction:  snap.Address,
			NFT:      snap.NFT,
			TokenID:  snap.NFTID,
			Approved: spender,
		})
	}
	receipt, err := c.chain.Send(ctx, aucommon.AuctionRef(snap.Address), "start", nil)
	if err != nil {
		return nil, actionError(ActionStart, snap, err)
	}
	c.logger.Info("started auction", zap.String("auction", snap.Address.Hex()))
	return c.finish(ctx, &Outcome{Action: ActionStart, Auction: snap.Address, TokenID: snap.NFTID, Receipt: receipt}), nil
}

// Bid raises the active account's total bid to amount, sending only the part
// not already in escrow. The returned outcome carries a provisional snapshot
// that the refresh supersedes.
func (c *Controller) Bid(ctx context.Context, snap *aggregator.AuctionSnapshot, amount *big.Int) (*Outcome, error) {
	account, err := c.account(snap)
	if err != nil {
		return nil, actionError(ActionBid, snap, err)
	}
	if err := CheckAction(account, snap, true, c.Now(), ActionBid); err != nil {
		return nil, actionError(ActionBid, snap, err)
	}
	transfer, err := ValidateBid(account, snap, amount)
	if err != nil {
		return nil, actionError(ActionBid, snap, err)
	}
	receipt, err := c.chain.Send(ctx, aucommon.AuctionRef(snap.Address), "bid", transfer)
	if err != nil {
		return nil, actionError(ActionBid, snap, err)
	}
	c.logger.Info("placed bid",
		zap.String("auction", snap.Address.Hex()),
		zap.String("total", amount.String()),
		zap.String("sent", transfer.String()),
	)

	provisional := snap.Clone()
	provisional.HighestBid = new(big.Int).Set(amount)
	provisional.HighestBidder = account
	provisional.UserBidAmount = new(big.Int).Set(amount)
	provisional.Provisional = true
	provisional.Refresh()
	if sink, ok := c.refresher.(ProvisionalSink); ok {
		sink.ApplyProvisional(provisional)
	}
	return c.finish(ctx, &Outcome{
		Action:   ActionBid,
		Auction:  snap.Address,
		TokenID:  snap.NFTID,
		Receipt:  receipt,
		Snapshot: provisional,
	}), nil
}

// Withdraw takes back an outbid account's escrow.
func (c *Controller) Withdraw(ctx context.Context, snap *aggregator.AuctionSnapshot) (*Outcome, error) {
	account, err := c.account(snap)
	if err != nil {
		return nil, actionError(ActionWithdraw, snap, err)
	}
	if err := CheckAction(account, snap, true, c.Now(), ActionWithdraw); err != nil {
		return nil, actionError(ActionWithdraw, snap, err)
	}
	receipt, err := c.chain.Send(ctx, aucommon.AuctionRef(snap.Address), "withdraw", nil)
	if err != nil {
		return nil, actionError(ActionWithdraw, snap, err)
	}
	c.logger.Info("withdrew bid", zap.String("auction", snap.Address.Hex()))
	return c.finish(ctx, &Outcome{Action: ActionWithdraw, Auction: snap.Address, TokenID: snap.NFTID, Receipt: receipt}), nil
}

// End settles an auction whose time is up.
func (c *Controller) End(ctx context.Context, snap *aggregator.AuctionSnapshot) (*Outcome, error) {
	account, err := c.account(snap)
	if err != nil {
		return nil, actionError(ActionEnd, snap, err)
	}
	if err := CheckAction(account, snap, true, c.Now(), ActionEnd); err != nil {
		return nil, actionError(ActionEnd, snap, err)
	}
	receipt, err := c.chain.Send(ctx, aucommon.AuctionRef(snap.Address), "end", nil)
	if err != nil {
		return nil, actionError(ActionEnd, snap, err)
	}
	c.logger.Info("ended auction", zap.String("auction", snap.Address.Hex()))
	return c.finish(ctx, &Outcome{Action: ActionEnd, Auction: snap.Address, TokenID: snap.NFTID, Receipt: receipt}), nil
}

// IsActionRejected tells whether err was caught before anything was sent.
func IsActionRejected(err error) bool {
	return errors.Is(err, aucommon.ErrValidationRejected)
}
