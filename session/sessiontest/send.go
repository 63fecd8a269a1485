package sessiontest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	aucommon "github.com/tranvictor/auctioneer/common"
)

// Send executes method against the in-memory contracts as the active
// account and returns a receipt carrying the events it emitted.
func (c *FakeChain) Send(
	ctx context.Context,
	ref aucommon.ContractRef,
	method string,
	value *big.Int,
	args ...interface{},
) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value == nil {
		value = big.NewInt(0)
	}
	c.mu.Lock()
	if !c.identity.Connected {
		c.mu.Unlock()
		return nil, aucommon.ErrNoSession
	}
	from := c.identity.Account
	c.sends = append(c.sends, Sent{From: from, To: ref.Address, Method: method, Value: value, Args: args})
	if c.FailSend != nil {
		if err := c.FailSend(method); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	if _, err := ref.ABI.Pack(method, args...); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("couldn't pack %s.%s: %w", ref.Name, method, err)
	}
	logs, err := c.execute(from, ref.Address, method, value, args)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s.%s: %w", ref.Name, method, err)
	}
	c.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: u256(c.block),
		TxHash:      common.BigToHash(u256(c.block)),
	}
	for i := range logs {
		logs[i].BlockNumber = c.block
		logs[i].TxHash = receipt.TxHash
		logs[i].Index = uint(i)
		receipt.Logs = append(receipt.Logs, &logs[i])
	}
	c.logs = append(c.logs, logs...)
	subs := append([]*subscription{}, c.subs...)
	c.mu.Unlock()

	for _, l := range logs {
		deliver(subs, l)
	}
	return receipt, nil
}

func (c *FakeChain) execute(from, to common.Address, method string, value *big.Int, args []interface{}) ([]types.Log, error) {
	if to == c.factory && method == "createNewAuction" {
		return c.createAuction(from, args)
	}
	if a, found := c.auctions[to]; found {
		return c.executeAuction(from, to, a, method, value)
	}
	if col, found := c.collections[to]; found {
		return c.executeCollection(from, to, col, method, args)
	}
	return nil, revert("")
}

func (c *FakeChain) createAuction(from common.Address, args []interface{}) ([]types.Log, error) {
	nft := args[0].(common.Address)
	id := args[1].(*big.Int)
	startingBid := args[2].(*big.Int)
	increment := args[3].(*big.Int)
	duration := args[4].(*big.Int)
	col, found := c.collections[nft]
	if !found {
		return nil, revert("not an nft")
	}
	if col.Owners[id.Uint64()] != from {
		return nil, revert("not the nft owner")
	}
	addr := c.addAuction(&Auction{
		Seller:     from,
		Duration:   duration.Uint64(),
		Increment:  new(big.Int).Set(increment),
		HighestBid: new(big.Int).Set(startingBid),
		NFT:        nft,
		NFTID:      new(big.Int).Set(id),
	})
	ev := aucommon.GetAuctionFactoryABI().Events["ContractCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(addr)
	if err != nil {
		return nil, err
	}
	return []types.Log{eventLog(c.factory, ev, nil, data)}, nil
}

func (c *FakeChain) executeAuction(from, addr common.Address, a *Auction, method string, value *big.Int) ([]types.Log, error) {
	switch method {
	case "start":
		if from != a.Seller {
			return nil, revert("not seller")
		}
		if a.Started {
			return nil, revert("started")
		}
		col := c.collections[a.NFT]
		if col == nil || col.Approved[a.NFTID.Uint64()] != addr {
			return nil, revert("ERC721: caller is not token owner or approved")
		}
		col.Owners[a.NFTID.Uint64()] = addr
		delete(col.Approved, a.NFTID.Uint64())
		a.Started = true
		a.StartAt = c.now
		a.EndAt = c.now + a.Duration
		return nil, nil
	case "bid":
		if !a.Started {
			return nil, revert("not started")
		}
		if c.now >= a.EndAt || a.Ended {
			return nil, revert("ended")
		}
		prev := a.Bids[from]
		if prev == nil {
			prev = big.NewInt(0)
		}
		total := new(big.Int).Add(prev, value)
		if from == a.HighestBidder {
			if total.Cmp(a.HighestBid) < 0 {
				return nil, revert("value < highest")
			}
		} else if total.Cmp(new(big.Int).Add(a.HighestBid, a.Increment)) < 0 {
			return nil, revert("value < highest + increment")
		}
		a.Bids[from] = total
		a.HighestBidder = from
		a.HighestBid = new(big.Int).Set(total)
		ev := aucommon.GetAuctionABI().Events["Bid"]
		data, err := ev.Inputs.NonIndexed().Pack(total)
		if err != nil {
			return nil, err
		}
		return []types.Log{eventLog(addr, ev, []common.Hash{topic(from)}, data)}, nil
	case "withdraw":
		if from == a.HighestBidder {
			return nil, revert("highest bidder cannot withdraw")
		}
		delete(a.Bids, from)
		return nil, nil
	case "end":
		if !a.Started {
			return nil, revert("not started")
		}
		if a.Ended {
			return nil, revert("ended")
		}
		if c.now < a.EndAt {
			return nil, revert("not ended")
		}
		if from != a.Seller && from != a.HighestBidder {
			return nil, revert("not allowed")
		}
		a.Ended = true
		col := c.collections[a.NFT]
		if col != nil {
			winner := a.Seller
			if a.HighestBidder != (common.Address{}) {
				winner = a.HighestBidder
				delete(a.Bids, a.HighestBidder)
			}
			col.Owners[a.NFTID.Uint64()] = winner
		}
		return nil, nil
	}
	return nil, revert("")
}

func (c *FakeChain) executeCollection(from, addr common.Address, col *Collection, method string, args []interface{}) ([]types.Log, error) {
	transfer := aucommon.GetNFTABI().Events["Transfer"]
	switch method {
	case "approve":
		spender := args[0].(common.Address)
		id := args[1].(*big.Int)
		if col.Owners[id.Uint64()] != from {
			return nil, revert("ERC721: approve caller is not token owner")
		}
		col.Approved[id.Uint64()] = spender
		approval := aucommon.GetNFTABI().Events["Approval"]
		return []types.Log{eventLog(addr, approval, []common.Hash{
			topic(from), topic(spender), common.BigToHash(id),
		}, nil)}, nil
	case "transferFrom":
		owner := args[0].(common.Address)
		to := args[1].(common.Address)
		id := args[2].(*big.Int)
		current, found := col.Owners[id.Uint64()]
		if !found || current != owner {
			return nil, revert("ERC721: transfer from incorrect owner")
		}
		if from != owner && col.Approved[id.Uint64()] != from {
			return nil, revert("ERC721: caller is not token owner or approved")
		}
		col.Owners[id.Uint64()] = to
		delete(col.Approved, id.Uint64())
		return []types.Log{eventLog(addr, transfer, []common.Hash{
			topic(owner), topic(to), common.BigToHash(id),
		}, nil)}, nil
	case "mint":
		id := col.Mint(from, args[0].(string))
		return []types.Log{eventLog(addr, transfer, []common.Hash{
			topic(common.Address{}), topic(from), common.BigToHash(u256(id)),
		}, nil)}, nil
	}
	return nil, revert("")
}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alternatives := range q.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range alternatives {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *FakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return nil, aucommon.ErrNoSession
	}
	c.calls++
	res := []types.Log{}
	for _, l := range c.logs {
		if matches(q, l) {
			res = append(res, l)
		}
	}
	return res, nil
}

func (c *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return 0, aucommon.ErrNoSession
	}
	return c.block, nil
}

func (c *FakeChain) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return nil, aucommon.ErrNoSession
	}
	if c.NoSubscriptions {
		return nil, fmt.Errorf("notifications not supported: %w", aucommon.ErrTransportFailure)
	}
	sub := &subscription{query: q, ch: ch, quit: make(chan struct{}), errc: make(chan error, 1)}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// Emit appends l to the chain's log and pushes it to subscribers, e.g. a bid
// placed by someone else.
func (c *FakeChain) Emit(l types.Log) {
	c.mu.Lock()
	c.block++
	l.BlockNumber = c.block
	c.logs = append(c.logs, l)
	subs := append([]*subscription{}, c.subs...)
	c.mu.Unlock()
	deliver(subs, l)
}

// BidLog builds the Bid event auction emits for a bid of amount by sender.
func BidLog(auction, sender common.Address, amount *big.Int) types.Log {
	ev := aucommon.GetAuctionABI().Events["Bid"]
	data, _ := ev.Inputs.NonIndexed().Pack(amount)
	return eventLog(auction, ev, []common.Hash{topic(sender)}, data)
}

func deliver(subs []*subscription, l types.Log) {
	for _, s := range subs {
		if !matches(s.query, l) {
			continue
		}
		select {
		case s.ch <- l:
		case <-s.quit:
		}
	}
}
