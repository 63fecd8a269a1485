package lifecycle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
)

// BidEvent is a decoded Bid log. Amount is the bidder's new total bid.
type BidEvent struct {
	Auction     common.Address
	Sender      common.Address
	Amount      *big.Int
	BlockNumber uint64
}

func bidQuery(auction common.Address) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{auction},
		Topics:    [][]common.Hash{{aucommon.GetAuctionABI().Events["Bid"].ID}},
	}
}

func ParseBidLog(l types.Log) (BidEvent, error) {
	ev := aucommon.GetAuctionABI().Events["Bid"]
	if len(l.Topics) != 2 || l.Topics[0] != ev.ID {
		return BidEvent{}, fmt.Errorf("log %s:%d is not a Bid event", l.TxHash.Hex(), l.Index)
	}
	out, err := ev.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return BidEvent{}, fmt.Errorf("couldn't decode Bid event: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return BidEvent{}, fmt.Errorf("unexpected Bid amount %T", out[0])
	}
	return BidEvent{
		Auction:     l.Address,
		Sender:      common.BytesToAddress(l.Topics[1].Bytes()),
		Amount:      amount,
		BlockNumber: l.BlockNumber,
	}, nil
}

// ApplyBidEvent returns a provisional copy of snap with ev applied. Events
// for other auctions or below the known highest bid leave snap unchanged.
func ApplyBidEvent(snap *aggregator.AuctionSnapshot, ev BidEvent) *aggregator.AuctionSnapshot {
	if ev.Auction != snap.Address || ev.Amount == nil {
		return snap
	}
	if snap.HighestBid != nil && ev.Amount.Cmp(snap.HighestBid) < 0 {
		return snap
	}
	next := snap.Clone()
	next.HighestBid = new(big.Int).Set(ev.Amount)
	next.HighestBidder = ev.Sender
	if ev.Sender == snap.Account {
		next.UserBidAmount = new(big.Int).Set(ev.Amount)
	}
	next.Provisional = true
	next.Refresh()
	return next
}

// WatchBids calls fn for every Bid the auction emits until ctx is done. It
// subscribes when the node supports it and polls logs otherwise. The stream
// is best effort: missed events are fixed by the next refresh.
func (c *Controller) WatchBids(ctx context.Context, snap *aggregator.AuctionSnapshot, fn func(BidEvent)) error {
	q := bidQuery(snap.Address)
	logs := make(chan types.Log, 16)
	sub, err := c.chain.SubscribeLogs(ctx, q, logs)
	if err != nil {
		c.logger.Debug("log subscription unavailable, polling", zap.Error(err))
		return c.pollBids(ctx, q, fn)
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				return nil
			}
			c.logger.Warn("bid subscription dropped, polling", zap.Error(err))
			return c.pollBids(ctx, q, fn)
		case l := <-logs:
			c.deliverBid(l, fn)
		}
	}
}

func (c *Controller) pollBids(ctx context.Context, q ethereum.FilterQuery, fn func(BidEvent)) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	// bids up to the head are already in the snapshot being watched
	head, err := c.chain.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("couldn't read head block: %w", err)
	}
	next := head + 1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		q.FromBlock = new(big.Int).SetUint64(next)
		logs, err := c.chain.FilterLogs(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("couldn't poll bids", zap.Error(err))
		}
		for _, l := range logs {
			if l.BlockNumber >= next {
				next = l.BlockNumber + 1
			}
			c.deliverBid(l, fn)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) deliverBid(l types.Log, fn func(BidEvent)) {
	if l.Removed {
		return
	}
	ev, err := ParseBidLog(l)
	if err != nil {
		c.logger.Debug("ignoring log", zap.Error(err))
		return
	}
	fn(ev)
}
