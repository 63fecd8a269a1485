package reader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	aucommon "github.com/tranvictor/auctioneer/common"
)

// EthReader fans every read out to all of its nodes and returns the first
// successful answer.
type EthReader struct {
	nodes []EthereumNode
}

// NewEthReaderGeneric builds a reader over named node urls.
func NewEthReaderGeneric(nodes map[string]string, timeout time.Duration) *EthReader {
	ns := []EthereumNode{}
	for name, url := range nodes {
		ns = append(ns, NewOneNodeReader(name, url, timeout))
	}
	return NewEthReaderWithNodes(ns...)
}

func NewEthReaderWithNodes(nodes ...EthereumNode) *EthReader {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeName() < nodes[j].NodeName() })
	return &EthReader{nodes: nodes}
}

func (er *EthReader) Nodes() []EthereumNode {
	return er.nodes
}

func (er *EthReader) HasNodes() bool {
	return len(er.nodes) > 0
}

func readAny[T any](ctx context.Context, er *EthReader, fn func(ctx context.Context, n EthereumNode) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	res, err := aucommon.FirstSuccess(ctx, er.nodes, fn)
	if err != nil && !errors.Is(err, aucommon.ErrNoSession) && !errors.Is(err, context.Canceled) {
		return zero, fmt.Errorf("couldn't read from any nodes: %w", err)
	}
	return res, err
}

func (er *EthReader) ChainID(ctx context.Context) (*big.Int, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*big.Int, error) {
		return n.ChainID(ctx)
	})
}

func (er *EthReader) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) ([]byte, error) {
		return n.CallContract(ctx, msg)
	})
}

func (er *EthReader) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) ([]byte, error) {
		return n.CodeAt(ctx, addr)
	})
}

func (er *EthReader) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*big.Int, error) {
		return n.BalanceAt(ctx, addr)
	})
}

// GetPendingNonce returns the highest pending nonce any node reports so a
// lagging node cannot make us reuse a nonce.
func (er *EthReader) GetPendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	if len(er.nodes) == 0 {
		return 0, aucommon.ErrNoSession
	}
	type result struct {
		nonce uint64
		err   error
	}
	resCh := make(chan result, len(er.nodes))
	for _, n := range er.nodes {
		go func(n EthereumNode) {
			nonce, err := n.PendingNonceAt(ctx, addr)
			if err != nil {
				err = fmt.Errorf("%s: %w", n.NodeName(), err)
			}
			resCh <- result{nonce, err}
		}(n)
	}
	var (
		best  uint64
		found bool
		errs  []error
	)
	for range er.nodes {
		r := <-resCh
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		found = true
		if r.nonce > best {
			best = r.nonce
		}
	}
	if !found {
		return 0, fmt.Errorf("couldn't read from any nodes: %w", errors.Join(errs...))
	}
	return best, nil
}

func (er *EthReader) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (uint64, error) {
		return n.EstimateGas(ctx, msg)
	})
}

func (er *EthReader) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*big.Int, error) {
		return n.SuggestGasPrice(ctx)
	})
}

func (er *EthReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*big.Int, error) {
		return n.SuggestGasTipCap(ctx)
	})
}

func (er *EthReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*types.Header, error) {
		return n.HeaderByNumber(ctx, number)
	})
}

func (er *EthReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) ([]types.Log, error) {
		return n.FilterLogs(ctx, q)
	})
}

func (er *EthReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return readAny(ctx, er, func(ctx context.Context, n EthereumNode) (*types.Receipt, error) {
		return n.TransactionReceipt(ctx, hash)
	})
}

// SubscribeFilterLogs tries the nodes in order and keeps the first one that
// supports subscriptions.
func (er *EthReader) SubscribeFilterLogs(
	ctx context.Context,
	q ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	if len(er.nodes) == 0 {
		return nil, aucommon.ErrNoSession
	}
	errs := []error{}
	for _, n := range er.nodes {
		sub, err := n.SubscribeFilterLogs(ctx, q, ch)
		if err == nil {
			return sub, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", n.NodeName(), err))
	}
	return nil, fmt.Errorf("no node accepted the subscription: %w", errors.Join(errs...))
}
