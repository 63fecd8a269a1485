// Package sessiontest provides an in-memory chain speaking the auction
// dapp's contracts, for tests of code built on a session.
package sessiontest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/session"
)

type Auction struct {
	Seller        common.Address
	HighestBidder common.Address
	StartAt       uint64
	Duration      uint64
	EndAt         uint64
	Increment     *big.Int
	HighestBid    *big.Int
	NFT           common.Address
	NFTID         *big.Int
	Started       bool
	Ended         bool
	Bids          map[common.Address]*big.Int
}

type Collection struct {
	Supply   uint64
	Owners   map[uint64]common.Address
	URIs     map[uint64]string
	Approved map[uint64]common.Address
}

func NewCollection() *Collection {
	return &Collection{
		Owners:   map[uint64]common.Address{},
		URIs:     map[uint64]string{},
		Approved: map[uint64]common.Address{},
	}
}

// Mint appends a token owned by owner and returns its id.
func (c *Collection) Mint(owner common.Address, uri string) uint64 {
	c.Supply++
	c.Owners[c.Supply] = owner
	c.URIs[c.Supply] = uri
	return c.Supply
}

// Burn removes a token so ownerOf reverts for it.
func (c *Collection) Burn(id uint64) {
	delete(c.Owners, id)
	delete(c.URIs, id)
	delete(c.Approved, id)
}

// Sent records one Send, including the reverted ones.
type Sent struct {
	From   common.Address
	To     common.Address
	Method string
	Value  *big.Int
	Args   []interface{}
}

type subscription struct {
	query ethereum.FilterQuery
	ch    chan<- types.Log
	quit  chan struct{}
	errc  chan error
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		close(s.errc)
	})
}

func (s *subscription) Err() <-chan error {
	return s.errc
}

// FakeChain is a session.Session look-alike backed by in-memory contracts.
// The zero value is not usable, use New.
type FakeChain struct {
	mu           sync.Mutex
	identity     session.Identity
	listeners    map[int]func(session.Identity)
	nextListener int

	deployments map[string]common.Address
	factory     common.Address
	listed      []common.Address
	auctions    map[common.Address]*Auction
	collections map[common.Address]*Collection
	code        map[common.Address][]byte
	balances    map[common.Address]*big.Int
	now         uint64
	nextAddr    uint64
	block       uint64

	calls int
	sends []Sent
	logs  []types.Log
	subs  []*subscription
	gates map[common.Address]chan struct{}

	// FailCall, when set, can fail a read before it runs.
	FailCall func(addr common.Address, method string) error
	// FailSend, when set, can fail a write before it runs.
	FailSend func(method string) error
	// NoSubscriptions makes SubscribeLogs fail like an http only node.
	NoSubscriptions bool
}

func New(account common.Address, networkID uint64) *FakeChain {
	return &FakeChain{
		identity: session.Identity{
			Account:    account,
			NetworkID:  networkID,
			Connected:  true,
			Generation: 1,
		},
		listeners:   map[int]func(session.Identity){},
		deployments: map[string]common.Address{},
		auctions:    map[common.Address]*Auction{},
		collections: map[common.Address]*Collection{},
		code:        map[common.Address][]byte{},
		balances:    map[common.Address]*big.Int{},
		gates:       map[common.Address]chan struct{}{},
		now:         1_700_000_000,
		nextAddr:    0xa000,
		block:       1,
	}
}

func (c *FakeChain) newAddress() common.Address {
	c.nextAddr++
	return common.BigToAddress(new(big.Int).SetUint64(c.nextAddr))
}

// DeployFactory deploys an auction factory and registers it as deployed.
func (c *FakeChain) DeployFactory() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factory = c.newAddress()
	c.code[c.factory] = []byte{0x60, 0x80}
	c.deployments[aucommon.AuctionFactoryArtifact] = c.factory
	return c.factory
}

// DeployCollection deploys an nft collection and registers it as deployed.
func (c *FakeChain) DeployCollection(col *Collection) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.newAddress()
	c.code[addr] = []byte{0x60, 0x80}
	c.collections[addr] = col
	c.deployments[aucommon.NFTArtifact] = addr
	return addr
}

// AddAuction deploys a and lists it in the factory.
func (c *FakeChain) AddAuction(a *Auction) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addAuction(a)
}

func (c *FakeChain) addAuction(a *Auction) common.Address {
	if a.Bids == nil {
		a.Bids = map[common.Address]*big.Int{}
	}
	if a.HighestBid == nil {
		a.HighestBid = big.NewInt(0)
	}
	if a.Increment == nil {
		a.Increment = big.NewInt(0)
	}
	addr := c.newAddress()
	c.code[addr] = []byte{0x60, 0x80}
	c.auctions[addr] = a
	c.listed = append(c.listed, addr)
	return addr
}

// ListGarbage lists an address with no code in the factory.
func (c *FakeChain) ListGarbage() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.newAddress()
	c.listed = append(c.listed, addr)
	return addr
}

func (c *FakeChain) Auction(addr common.Address) *Auction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auctions[addr]
}

func (c *FakeChain) Collection(addr common.Address) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collections[addr]
}

// Update runs fn with the chain locked, to mutate contract state directly.
func (c *FakeChain) Update(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *FakeChain) SetNow(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *FakeChain) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeChain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = wei
}

// Calls is the number of reads served so far.
func (c *FakeChain) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *FakeChain) Sends() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent{}, c.sends...)
}

// Gate blocks every read made from account until the returned release is
// called or the read's context is done.
func (c *FakeChain) Gate(account common.Address) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.gates[account] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.gates[account] == ch {
				delete(c.gates, account)
			}
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *FakeChain) wait(ctx context.Context, from common.Address) error {
	c.mu.Lock()
	gate := c.gates[from]
	c.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *FakeChain) Identity() session.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *FakeChain) OnIdentityChange(fn func(session.Identity)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *FakeChain) mutate(change func(id *session.Identity)) {
	c.mu.Lock()
	next := c.identity
	change(&next)
	next.Generation = c.identity.Generation + 1
	c.identity = next
	fns := []func(session.Identity){}
	for i := 0; i < c.nextListener; i++ {
		if fn, found := c.listeners[i]; found {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// SetAccount simulates the wallet switching account.
func (c *FakeChain) SetAccount(account common.Address) {
	c.mutate(func(id *session.Identity) { id.Account = account })
}

// SetNetwork simulates the wallet switching chain.
func (c *FakeChain) SetNetwork(networkID uint64) {
	c.mutate(func(id *session.Identity) { id.NetworkID = networkID })
}

func (c *FakeChain) Disconnect() {
	c.mutate(func(id *session.Identity) { id.Connected = false })
}

func (c *FakeChain) ResolveDeployedAddress(artifactName string) (aucommon.ContractRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, found := c.deployments[artifactName]
	if !found {
		return aucommon.ContractRef{}, fmt.Errorf("%s: %w", artifactName, aucommon.ErrNotDeployed)
	}
	parsed, _ := aucommon.ABIByArtifactName(artifactName)
	return aucommon.NewContractRef(artifactName, parsed, addr), nil
}

// Undeploy forgets an artifact's deployment.
func (c *FakeChain) Undeploy(artifactName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deployments, artifactName)
}

func (c *FakeChain) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return nil, aucommon.ErrNoSession
	}
	c.calls++
	if c.FailCall != nil {
		if err := c.FailCall(addr, "getCode"); err != nil {
			return nil, err
		}
	}
	return c.code[addr], nil
}

func (c *FakeChain) Balance(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return nil, aucommon.ErrNoSession
	}
	if b, found := c.balances[c.identity.Account]; found {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (c *FakeChain) Call(ctx context.Context, ref aucommon.ContractRef, method string, args ...interface{}) ([]interface{}, error) {
	return c.CallFrom(ctx, c.Identity().Account, ref, method, args...)
}

// CallFrom serves a read. Outputs go through the abi encoder and decoder so
// callers see exactly the types a real node would give them.
func (c *FakeChain) CallFrom(
	ctx context.Context,
	from common.Address,
	ref aucommon.ContractRef,
	method string,
	args ...interface{},
) ([]interface{}, error) {
	if err := c.wait(ctx, from); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.identity.Connected {
		return nil, aucommon.ErrNoSession
	}
	c.calls++
	if c.FailCall != nil {
		if err := c.FailCall(ref.Address, method); err != nil {
			return nil, err
		}
	}
	m, found := ref.ABI.Methods[method]
	if !found {
		return nil, fmt.Errorf("%s has no method %s", ref.Name, method)
	}
	if _, err := m.Inputs.Pack(args...); err != nil {
		return nil, fmt.Errorf("couldn't pack %s.%s: %w", ref.Name, method, err)
	}
	values, err := c.read(from, ref.Address, method, args)
	if err != nil {
		return nil, err
	}
	packed, err := m.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", ref.Name, method, err)
	}
	return m.Outputs.Unpack(packed)
}

func revert(reason string) error {
	return &aucommon.RevertError{Reason: reason}
}

func (c *FakeChain) read(from, addr common.Address, method string, args []interface{}) ([]interface{}, error) {
	if addr == c.factory && c.factory != (common.Address{}) {
		switch method {
		case "getAuctions":
			return []interface{}{append([]common.Address{}, c.listed...)}, nil
		}
	}
	if a, found := c.auctions[addr]; found {
		switch method {
		case "info":
			userBid := a.Bids[from]
			if userBid == nil {
				userBid = big.NewInt(0)
			}
			return []interface{}{
				a.Seller, a.HighestBidder,
				u256(a.StartAt), u256(a.Duration), u256(a.EndAt),
				a.Increment, a.HighestBid, a.NFTID, userBid,
				a.Started, a.Ended, a.NFT,
			}, nil
		case "nft":
			return []interface{}{a.NFT}, nil
		case "nftId":
			return []interface{}{a.NFTID}, nil
		}
	}
	if col, found := c.collections[addr]; found {
		switch method {
		case "totalSupply":
			return []interface{}{u256(col.Supply)}, nil
		case "ownerOf":
			owner, found := col.Owners[args[0].(*big.Int).Uint64()]
			if !found {
				return nil, revert("ERC721: invalid token ID")
			}
			return []interface{}{owner}, nil
		case "tokenURI":
			id := args[0].(*big.Int).Uint64()
			if _, found := col.Owners[id]; !found {
				return nil, revert("ERC721: invalid token ID")
			}
			return []interface{}{col.URIs[id]}, nil
		case "getApproved":
			id := args[0].(*big.Int).Uint64()
			if _, found := col.Owners[id]; !found {
				return nil, revert("ERC721: invalid token ID")
			}
			return []interface{}{col.Approved[id]}, nil
		}
	}
	if _, hasCode := c.code[addr]; !hasCode {
		return nil, fmt.Errorf("%s at %s returned no data: %w", method, addr.Hex(), aucommon.ErrNonContractAddress)
	}
	return nil, revert("")
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func topic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func eventLog(contract common.Address, ev abi.Event, topics []common.Hash, data []byte) types.Log {
	return types.Log{
		Address: contract,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    data,
	}
}
