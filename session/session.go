// Package session owns the connection to the chain: the active account, the
// active network and every read and write made on their behalf.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/artifacts"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/util/broadcaster"
	"github.com/tranvictor/auctioneer/util/monitor"
	"github.com/tranvictor/auctioneer/util/reader"
)

// Signer is an account able to sign transactions, e.g. *account.Account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Options struct {
	Logger    *zap.Logger
	Artifacts *artifacts.Store
	// Timeout bounds each rpc round trip. Zero leaves it to the caller.
	Timeout time.Duration
	// TxType forces legacy or dynamic fee txs. Empty picks by chain head.
	TxType string
	// GasMargin is added on top of the estimated gas, in percent.
	GasMargin uint64
	// ReceiptInterval is how often a sent tx is polled for.
	ReceiptInterval time.Duration
}

type Session struct {
	logger    *zap.Logger
	artifacts *artifacts.Store
	opts      Options

	mu          sync.RWMutex
	network     networks.Network
	reader      *reader.EthReader
	broadcaster *broadcaster.Broadcaster
	monitor     *monitor.TxMonitor
	signer      Signer
	identity    Identity

	listenersMu  sync.Mutex
	listeners    map[int]func(Identity)
	nextListener int
}

// New builds a session for network, acting as signer. A nil signer gives a
// read only session. The session is connected optimistically when the
// network has at least one node; Connect verifies it.
func New(network networks.Network, signer Signer, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifacts.NewStore()
	}
	if opts.GasMargin == 0 {
		opts.GasMargin = 20
	}
	s := &Session{
		logger:    opts.Logger,
		artifacts: opts.Artifacts,
		opts:      opts,
		listeners: map[int]func(Identity){},
	}
	s.attach(network)
	s.signer = signer
	s.identity = Identity{
		Account:    accountOf(signer),
		NetworkID:  network.GetChainID(),
		Connected:  s.reader.HasNodes(),
		Generation: 1,
	}
	return s
}

func accountOf(signer Signer) common.Address {
	if signer == nil {
		return common.Address{}
	}
	return signer.Address()
}

// attach wires the transport for network. Callers hold mu or own s.
func (s *Session) attach(network networks.Network) {
	nodes := []reader.EthereumNode{}
	for name, url := range networks.Nodes(network) {
		nodes = append(nodes, reader.NewOneNodeReader(name, url, s.opts.Timeout))
	}
	s.attachNodes(network, nodes...)
}

func (s *Session) attachNodes(network networks.Network, nodes ...reader.EthereumNode) {
	s.network = network
	s.reader = reader.NewEthReaderWithNodes(nodes...)
	s.broadcaster = broadcaster.NewBroadcaster(s.logger, s.reader.Nodes()...)
	s.monitor = monitor.NewGenericTxMonitor(s.reader)
	if s.opts.ReceiptInterval > 0 {
		s.monitor.Interval = s.opts.ReceiptInterval
	}
}

// NewWithNodes is New over already built nodes, e.g. in-process servers.
func NewWithNodes(network networks.Network, signer Signer, opts Options, nodes ...reader.EthereumNode) *Session {
	s := New(networks.WithNodes(network, nil), signer, opts)
	s.attachNodes(network, nodes...)
	s.identity.Connected = s.reader.HasNodes()
	return s
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) Network() networks.Network {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// transport snapshots what a call needs so a concurrent switch cannot mix
// two networks within one operation.
type transport struct {
	reader      *reader.EthReader
	broadcaster *broadcaster.Broadcaster
	monitor     *monitor.TxMonitor
	signer      Signer
	identity    Identity
}

func (s *Session) usable() (transport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := transport{s.reader, s.broadcaster, s.monitor, s.signer, s.identity}
	if !s.identity.Connected || !s.reader.HasNodes() {
		return t, aucommon.ErrNoSession
	}
	return t, nil
}

// Connect checks that a node answers and agrees on the chain id.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.RLock()
	r, network := s.reader, s.network
	s.mu.RUnlock()

	if !r.HasNodes() {
		s.setConnected(false)
		return fmt.Errorf("%s has no nodes: %w", network.GetName(), aucommon.ErrNoSession)
	}
	id, err := r.ChainID(ctx)
	if err != nil {
		s.setConnected(false)
		return fmt.Errorf("%w: %w", aucommon.ErrNoSession, aucommon.ClassifyRPCError(err))
	}
	if id.Uint64() != network.GetChainID() {
		s.logger.Warn("node reports a different chain than configured",
			zap.String("network", network.GetName()),
			zap.Uint64("configured", network.GetChainID()),
			zap.Uint64("reported", id.Uint64()),
		)
		s.adoptChainID(id.Uint64())
		return nil
	}
	s.setConnected(true)
	return nil
}

func (s *Session) setConnected(connected bool) {
	s.mutate(func(id *Identity) bool {
		if id.Connected == connected {
			return false
		}
		id.Connected = connected
		return true
	})
}

// mutate applies change under the lock and, when it reports a change, bumps
// the generation and notifies listeners outside the lock.
func (s *Session) mutate(change func(id *Identity) bool) {
	s.mu.Lock()
	next := s.identity
	if !change(&next) {
		s.mu.Unlock()
		return
	}
	next.Generation = s.identity.Generation + 1
	s.identity = next
	s.mu.Unlock()

	s.logger.Info("identity changed", zap.Stringer("identity", next))
	s.notify(next)
}

func (s *Session) notify(id Identity) {
	s.listenersMu.Lock()
	fns := make([]func(Identity), 0, len(s.listeners))
	for i := 0; i < s.nextListener; i++ {
		if fn, found := s.listeners[i]; found {
			fns = append(fns, fn)
		}
	}
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

// OnIdentityChange registers fn to be called synchronously with every new
// identity. The returned func unregisters it.
func (s *Session) OnIdentityChange(fn func(Identity)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// SwitchAccount makes signer the active account. nil leaves the session
// read only.
func (s *Session) SwitchAccount(signer Signer) {
	s.mutate(func(id *Identity) bool {
		s.signer = signer
		addr := accountOf(signer)
		if id.Account == addr {
			return false
		}
		id.Account = addr
		return true
	})
}

// SwitchNetwork reattaches the session to network's nodes.
func (s *Session) SwitchNetwork(network networks.Network) {
	s.mutate(func(id *Identity) bool {
		s.attach(network)
		id.NetworkID = network.GetChainID()
		id.Connected = s.reader.HasNodes()
		return true
	})
}

// Disconnect makes every further call fail with ErrNoSession.
func (s *Session) Disconnect() {
	s.setConnected(false)
}

// adoptChainID follows a node that moved to another chain, keeping its
// endpoints.
func (s *Session) adoptChainID(chainID uint64) {
	s.mutate(func(id *Identity) bool {
		if id.NetworkID == chainID && id.Connected {
			return false
		}
		known, err := networks.GetNetworkByID(chainID)
		if err != nil {
			known = networks.NewGenericNetwork(networks.GenericNetworkConfig{
				Name:    fmt.Sprintf("chain-%d", chainID),
				ChainID: chainID,
			})
		}
		s.network = networks.WithNodes(known, networks.Nodes(s.network))
		id.NetworkID = chainID
		id.Connected = true
		return true
	})
}

// WatchNetwork polls the node's chain id every interval and turns chain
// switches made outside of this process into identity changes. It returns
// when ctx is done.
func (s *Session) WatchNetwork(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.RLock()
		r := s.reader
		current := s.identity
		s.mu.RUnlock()
		if !r.HasNodes() {
			continue
		}
		id, err := r.ChainID(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("chain id poll failed", zap.Error(err))
			if current.Connected {
				s.setConnected(false)
			}
			continue
		}
		if id.Uint64() != current.NetworkID || !current.Connected {
			s.adoptChainID(id.Uint64())
		}
	}
}

// ResolveDeployedAddress looks the artifact up under every deployment id
// the active network may be recorded with.
func (s *Session) ResolveDeployedAddress(artifactName string) (aucommon.ContractRef, error) {
	s.mu.RLock()
	network := s.network
	s.mu.RUnlock()
	return s.artifacts.Resolve(artifactName, DeploymentCandidates(network))
}

// devnetAliases pairs the chain id and the network id ganache reports.
var devnetAliases = map[string]string{
	"1337": "5777",
	"5777": "1337",
}

func DeploymentCandidates(network networks.Network) []string {
	ids := append([]string{}, network.DeploymentIDs()...)
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range ids {
		if alias, found := devnetAliases[id]; found && !seen[alias] {
			ids = append(ids, alias)
			seen[alias] = true
		}
	}
	return ids
}

func (s *Session) Call(ctx context.Context, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	return s.CallFrom(ctx, s.Identity().Account, ref, method, args...)
}

// CallFrom eth_calls method as from. It never changes chain state and is
// safe to retry.
func (s *Session) CallFrom(
	ctx context.Context,
	from common.Address,
	ref aucommon.ContractRef,
	method string,
	args ...interface{},
) ([]interface{}, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	out, err := t.reader.ReadContract(ctx, from, ref, method, args...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%s.%s at %s: %w", ref.Name, method, ref.Address.Hex(), aucommon.ClassifyRPCError(err))
	}
	return out, nil
}

func (s *Session) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	code, err := t.reader.GetCode(ctx, addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, aucommon.ClassifyRPCError(err)
	}
	return code, err
}

// Balance returns the native balance of the active account.
func (s *Session) Balance(ctx context.Context) (*big.Int, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	if !t.identity.HasAccount() {
		return nil, aucommon.Rejected("no account selected")
	}
	balance, err := t.reader.GetBalance(ctx, t.identity.Account)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, aucommon.ClassifyRPCError(err)
	}
	return balance, err
}

// BlockNumber returns the number of the latest block.
func (s *Session) BlockNumber(ctx context.Context) (uint64, error) {
	t, err := s.usable()
	if err != nil {
		return 0, err
	}
	header, err := t.reader.HeaderByNumber(ctx, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, aucommon.ClassifyRPCError(err)
	}
	return header.Number.Uint64(), nil
}

func (s *Session) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	logs, err := t.reader.FilterLogs(ctx, q)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, aucommon.ClassifyRPCError(err)
	}
	return logs, err
}

// SubscribeLogs streams matching logs into ch. It needs a node reachable
// over a streaming transport.
func (s *Session) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	sub, err := t.reader.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return nil, aucommon.ClassifyRPCError(err)
	}
	return sub, nil
}
