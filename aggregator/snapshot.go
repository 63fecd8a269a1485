package aggregator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tranvictor/auctioneer/metadata"
)

// AuctionSnapshot is one auction's state as seen by Account at one point in
// time. Amounts are in wei.
type AuctionSnapshot struct {
	Address       common.Address
	Seller        common.Address
	NFT           common.Address
	NFTID         *big.Int
	StartAt       uint64
	Duration      uint64
	EndAt         uint64
	Increment     *big.Int
	HighestBid    *big.Int
	HighestBidder common.Address
	// UserBidAmount is what Account has in escrow with this auction.
	UserBidAmount *big.Int
	Started       bool
	Ended         bool
	TokenURI      string
	Metadata      *metadata.Metadata

	Account         common.Address
	IsHighestBidder bool
	// Provisional marks a local optimistic copy that the next aggregation
	// replaces.
	Provisional bool
}

// HasBids reports whether anyone bid. The zero address means no one did.
func (s *AuctionSnapshot) HasBids() bool {
	return s.HighestBidder != (common.Address{})
}

// Clone returns a deep copy, safe to mutate.
func (s *AuctionSnapshot) Clone() *AuctionSnapshot {
	c := *s
	c.NFTID = copyBig(s.NFTID)
	c.Increment = copyBig(s.Increment)
	c.HighestBid = copyBig(s.HighestBid)
	c.UserBidAmount = copyBig(s.UserBidAmount)
	if s.Metadata != nil {
		md := *s.Metadata
		c.Metadata = &md
	}
	return &c
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

// Refresh recomputes the fields derived from Account.
func (s *AuctionSnapshot) Refresh() {
	s.IsHighestBidder = s.Account != (common.Address{}) && s.HighestBidder == s.Account
}

func (s *AuctionSnapshot) Name() string {
	if s.Metadata != nil && s.Metadata.Name != "" {
		return s.Metadata.Name
	}
	return fmt.Sprintf("Token #%s", s.NFTID)
}

// infoFields is the number of outputs of the auction's info() view.
const infoFields = 12

// DecodeInfo maps the positional outputs of info() onto a snapshot. The
// order is fixed by the auction contract: seller, highestBidder, startAt,
// duration, endAt, increment, highestBid, nftId, userBidAmount, started,
// ended, nft.
func DecodeInfo(addr common.Address, out []interface{}) (*AuctionSnapshot, error) {
	if len(out) != infoFields {
		return nil, fmt.Errorf("info() returned %d values, expected %d", len(out), infoFields)
	}
	var (
		s   = &AuctionSnapshot{Address: addr}
		err error
	)
	addrAt := func(i int) common.Address {
		v, ok := out[i].(common.Address)
		if !ok && err == nil {
			err = fmt.Errorf("info()[%d] is %T, expected an address", i, out[i])
		}
		return v
	}
	bigAt := func(i int) *big.Int {
		v, ok := out[i].(*big.Int)
		if !ok && err == nil {
			err = fmt.Errorf("info()[%d] is %T, expected an integer", i, out[i])
		}
		return v
	}
	boolAt := func(i int) bool {
		v, ok := out[i].(bool)
		if !ok && err == nil {
			err = fmt.Errorf("info()[%d] is %T, expected a bool", i, out[i])
		}
		return v
	}
	u64At := func(i int) uint64 {
		v := bigAt(i)
		if v == nil {
			return 0
		}
		if !v.IsUint64() && err == nil {
			err = fmt.Errorf("info()[%d] = %s overflows a timestamp", i, v)
		}
		return v.Uint64()
	}

	s.Seller = addrAt(0)
	s.HighestBidder = addrAt(1)
	s.StartAt = u64At(2)
	s.Duration = u64At(3)
	s.EndAt = u64At(4)
	s.Increment = bigAt(5)
	s.HighestBid = bigAt(6)
	s.NFTID = bigAt(7)
	s.UserBidAmount = bigAt(8)
	s.Started = boolAt(9)
	s.Ended = boolAt(10)
	s.NFT = addrAt(11)
	if err != nil {
		return nil, err
	}
	return s, nil
}
