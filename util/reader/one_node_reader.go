package reader

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// OneNodeReader talks to a single endpoint. The connection is dialed lazily
// on first use.
type OneNodeReader struct {
	nodeName  string
	nodeURL   string
	timeout   time.Duration
	client    *rpc.Client
	ethClient *ethclient.Client
	mu        sync.Mutex
}

// NewOneNodeReader builds a reader for url. A zero timeout leaves per call
// deadlines to the caller's context.
func NewOneNodeReader(name, url string, timeout time.Duration) *OneNodeReader {
	return &OneNodeReader{
		nodeName: name,
		nodeURL:  url,
		timeout:  timeout,
	}
}

// NewOneNodeReaderWithClient wraps an already connected client, e.g. an
// in-process rpc server.
func NewOneNodeReaderWithClient(name string, client *rpc.Client) *OneNodeReader {
	return &OneNodeReader{
		nodeName:  name,
		nodeURL:   "inproc://" + name,
		client:    client,
		ethClient: ethclient.NewClient(client),
	}
}

func (onr *OneNodeReader) NodeName() string {
	return onr.nodeName
}

func (onr *OneNodeReader) NodeURL() string {
	return onr.nodeURL
}

func (onr *OneNodeReader) String() string {
	return onr.nodeName
}

func (onr *OneNodeReader) EthClient(ctx context.Context) (*ethclient.Client, error) {
	onr.mu.Lock()
	defer onr.mu.Unlock()
	if onr.ethClient != nil {
		return onr.ethClient, nil
	}
	client, err := rpc.DialContext(ctx, onr.nodeURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to %s: %w", onr.nodeName, err)
	}
	onr.client = client
	onr.ethClient = ethclient.NewClient(client)
	return onr.ethClient, nil
}

func (onr *OneNodeReader) Close() {
	onr.mu.Lock()
	defer onr.mu.Unlock()
	if onr.client != nil {
		onr.client.Close()
	}
	onr.client = nil
	onr.ethClient = nil
}

func (onr *OneNodeReader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if onr.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, onr.timeout)
}

func (onr *OneNodeReader) ChainID(ctx context.Context) (*big.Int, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.ChainID(ctx)
}

func (onr *OneNodeReader) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.CallContract(ctx, msg, nil)
}

func (onr *OneNodeReader) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.CodeAt(ctx, addr, nil)
}

func (onr *OneNodeReader) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.BalanceAt(ctx, addr, nil)
}

func (onr *OneNodeReader) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.PendingNonceAt(ctx, addr)
}

func (onr *OneNodeReader) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.EstimateGas(ctx, msg)
}

func (onr *OneNodeReader) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.SuggestGasPrice(ctx)
}

func (onr *OneNodeReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.SuggestGasTipCap(ctx)
}

func (onr *OneNodeReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.HeaderByNumber(ctx, number)
}

func (onr *OneNodeReader) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.FilterLogs(ctx, q)
}

// SubscribeFilterLogs needs a streaming transport (ws or ipc); http
// endpoints return rpc.ErrNotificationsUnsupported.
func (onr *OneNodeReader) SubscribeFilterLogs(
	ctx context.Context,
	q ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	return ethcli.SubscribeFilterLogs(ctx, q, ch)
}

func (onr *OneNodeReader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.TransactionReceipt(ctx, hash)
}

func (onr *OneNodeReader) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ethcli, err := onr.EthClient(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := onr.withTimeout(ctx)
	defer cancel()
	return ethcli.SendTransaction(ctx, tx)
}
