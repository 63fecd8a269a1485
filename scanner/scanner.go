// Package scanner finds the tokens of a collection owned by an account.
package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/metadata"
)

// Chain is the part of a session the scanner reads through.
type Chain interface {
	CallFrom(ctx context.Context, from common.Address, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string, tokenID *big.Int) (*metadata.Metadata, error)
}

// NftToken is one owned token. Metadata is nil when it could not be
// fetched.
type NftToken struct {
	Collection common.Address
	TokenID    *big.Int
	URI        string
	Metadata   *metadata.Metadata
}

type Scanner struct {
	chain    Chain
	resolver MetadataFetcher
	logger   *zap.Logger
	// Workers bounds how many tokens are inspected at once. Below 2 tokens
	// are inspected one by one.
	Workers int
}

func New(chain Chain, resolver MetadataFetcher, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{chain: chain, resolver: resolver, logger: logger}
}

// ScanOwned walks token ids 1..totalSupply and returns those owned by owner,
// in ascending id order. Ids whose ownerOf reverts are skipped. The context
// is checked before every round trip; a cancelled scan returns ctx.Err() and
// nothing else.
func (s *Scanner) ScanOwned(ctx context.Context, collection aucommon.ContractRef, owner common.Address) ([]NftToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.chain.CallFrom(ctx, owner, collection, "totalSupply")
	if err != nil {
		return nil, fmt.Errorf("couldn't read total supply of %s: %w", collection.Address.Hex(), err)
	}
	supply, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected totalSupply output %T", out[0])
	}
	if supply.Sign() < 0 || !supply.IsInt64() {
		return nil, fmt.Errorf("total supply %s of %s is out of range", supply, collection.Address.Hex())
	}
	return s.inspectEach(ctx, collection, owner, supply.Int64(), func(i int64) *big.Int {
		return big.NewInt(i + 1)
	})
}

// ScanOwnedByLogs builds the same result from the Transfer events sent to
// owner since fromBlock. Every candidate is checked against its current
// ownerOf, so tokens transferred away again drop out.
func (s *Scanner) ScanOwnedByLogs(
	ctx context.Context,
	collection aucommon.ContractRef,
	owner common.Address,
	fromBlock uint64,
) ([]NftToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transfer, found := collection.ABI.Events["Transfer"]
	if !found {
		return nil, fmt.Errorf("%s abi has no Transfer event", collection.Name)
	}
	logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{collection.Address},
		Topics: [][]common.Hash{
			{transfer.ID},
			nil,
			{common.BytesToHash(owner.Bytes())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't read transfers of %s: %w", collection.Address.Hex(), err)
	}
	seen := map[string]bool{}
	ids := []*big.Int{}
	for _, l := range logs {
		if len(l.Topics) < 4 {
			continue
		}
		id := l.Topics[3].Big()
		if !seen[id.String()] {
			seen[id.String()] = true
			ids = append(ids, id)
		}
	}
	return s.inspectEach(ctx, collection, owner, int64(len(ids)), func(i int64) *big.Int {
		return ids[i]
	})
}

// inspectEach inspects the n ids produced by idAt and returns the owned
// tokens in ascending id order. Ids are produced as workers free up.
func (s *Scanner) inspectEach(
	ctx context.Context,
	collection aucommon.ContractRef,
	owner common.Address,
	n int64,
	idAt func(i int64) *big.Int,
) ([]NftToken, error) {
	var (
		mu     sync.Mutex
		result = []NftToken{}
	)
	keep := func(token *NftToken) {
		if token == nil {
			return
		}
		mu.Lock()
		result = append(result, *token)
		mu.Unlock()
	}
	if s.Workers < 2 {
		for i := int64(0); i < n; i++ {
			token, err := s.inspect(ctx, collection, owner, idAt(i))
			if err != nil {
				return nil, err
			}
			keep(token)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Workers)
		for i := int64(0); i < n && gctx.Err() == nil; i++ {
			id := idAt(i)
			g.Go(func() error {
				token, err := s.inspect(gctx, collection, owner, id)
				keep(token)
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
	sort.Slice(result, func(i, j int) bool {
		return result[i].TokenID.Cmp(result[j].TokenID) < 0
	})
	return result, nil
}

// inspect returns the token when owner owns it, nil when not. The only
// error it returns is a cancelled context.
func (s *Scanner) inspect(
	ctx context.Context,
	collection aucommon.ContractRef,
	owner common.Address,
	id *big.Int,
) (*NftToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.chain.CallFrom(ctx, owner, collection, "ownerOf", id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if aucommon.IsRevert(err) {
			s.logger.Debug("skipping nonexistent token",
				zap.String("collection", collection.Address.Hex()),
				zap.String("token", id.String()),
			)
		} else {
			s.logger.Warn("skipping unreadable token",
				zap.String("collection", collection.Address.Hex()),
				zap.String("token", id.String()),
				zap.Error(err),
			)
		}
		return nil, nil
	}
	tokenOwner, ok := out[0].(common.Address)
	if !ok || tokenOwner != owner {
		return nil, nil
	}

	token := &NftToken{Collection: collection.Address, TokenID: id}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err = s.chain.CallFrom(ctx, owner, collection, "tokenURI", id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("couldn't read token uri",
			zap.String("collection", collection.Address.Hex()),
			zap.String("token", id.String()),
			zap.Error(err),
		)
		return token, nil
	}
	token.URI, _ = out[0].(string)

	md, err := s.resolver.Fetch(ctx, token.URI, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("metadata unreachable",
			zap.String("collection", collection.Address.Hex()),
			zap.String("token", id.String()),
			zap.String("uri", token.URI),
			zap.Error(err),
		)
		return token, nil
	}
	token.Metadata = md
	return token, nil
}
