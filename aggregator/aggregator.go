// Package aggregator builds snapshots of every auction the factory knows.
package aggregator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/metadata"
)

// Chain is the part of a session the aggregator reads through.
type Chain interface {
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	CallFrom(ctx context.Context, from common.Address, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error)
}

type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string, tokenID *big.Int) (*metadata.Metadata, error)
}

type Aggregator struct {
	chain    Chain
	resolver MetadataFetcher
	logger   *zap.Logger
	// Workers bounds how many auctions are read at once. Below 2 they are
	// read one by one.
	Workers int
}

func New(chain Chain, resolver MetadataFetcher, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{chain: chain, resolver: resolver, logger: logger}
}

// ListAuctions snapshots every auction listed by factory, as seen by
// account, in factory order. Auctions that cannot be read are logged and
// left out. Only a failed enumeration or a cancelled context is an error.
func (a *Aggregator) ListAuctions(ctx context.Context, factory aucommon.ContractRef, account common.Address) ([]*AuctionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := a.chain.CallFrom(ctx, account, factory, "getAuctions")
	if err != nil {
		return nil, fmt.Errorf("couldn't enumerate auctions of %s: %w", factory.Address.Hex(), err)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected getAuctions output %T", out[0])
	}

	found := make([]*AuctionSnapshot, len(addrs))
	if a.Workers < 2 {
		for i, addr := range addrs {
			snap, err := a.Snapshot(ctx, addr, account)
			if err != nil {
				return nil, err
			}
			found[i] = snap
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.Workers)
		for i, addr := range addrs {
			i, addr := i, addr
			g.Go(func() error {
				snap, err := a.Snapshot(gctx, addr, account)
				found[i] = snap
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := []*AuctionSnapshot{}
	for _, snap := range found {
		if snap != nil {
			result = append(result, snap)
		}
	}
	return result, nil
}

// Snapshot reads one auction. It returns nil without error for an auction
// that has to be skipped; the only error is a cancelled context.
func (a *Aggregator) Snapshot(ctx context.Context, addr common.Address, account common.Address) (*AuctionSnapshot, error) {
	logger := a.logger.With(zap.String("auction", addr.Hex()))
	skip := func(reason string, err error) (*AuctionSnapshot, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("skipping auction", zap.String("reason", reason), zap.Error(err))
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err := a.chain.CodeAt(ctx, addr)
	if err != nil {
		return skip("code unreadable", err)
	}
	if len(code) == 0 {
		return skip("no code", aucommon.ErrNonContractAddress)
	}

	ref := aucommon.AuctionRef(addr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := a.chain.CallFrom(ctx, account, ref, "info")
	if err != nil {
		return skip("info unreadable", err)
	}
	snap, err := DecodeInfo(addr, out)
	if err != nil {
		return skip("info undecodable", err)
	}
	if snap.Started && snap.EndAt != snap.StartAt+snap.Duration {
		return skip("inconsistent schedule", fmt.Errorf(
			"endAt %d != startAt %d + duration %d", snap.EndAt, snap.StartAt, snap.Duration))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = a.chain.CallFrom(ctx, account, ref, "nft")
	if err != nil {
		return skip("nft unreadable", err)
	}
	if nft, ok := out[0].(common.Address); ok {
		snap.NFT = nft
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = a.chain.CallFrom(ctx, account, ref, "nftId")
	if err != nil {
		return skip("nftId unreadable", err)
	}
	if id, ok := out[0].(*big.Int); ok {
		snap.NFTID = id
	}

	snap.Account = account
	snap.Refresh()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = a.chain.CallFrom(ctx, account, aucommon.NFTRef(snap.NFT), "tokenURI", snap.NFTID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("couldn't read token uri", zap.Error(err))
		return snap, nil
	}
	snap.TokenURI, _ = out[0].(string)

	md, err := a.resolver.Fetch(ctx, snap.TokenURI, snap.NFTID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("metadata unreachable", zap.String("uri", snap.TokenURI), zap.Error(err))
		return snap, nil
	}
	snap.Metadata = md
	return snap, nil
}
