// Package reconciler keeps one view of auctions and owned tokens in sync
// with the session's identity.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/scanner"
	"github.com/tranvictor/auctioneer/session"
)

// ErrSuperseded is returned by a scan that a newer one replaced. Its result
// was dropped.
var ErrSuperseded = errors.New("scan superseded by a newer one")

type Chain interface {
	Identity() session.Identity
	OnIdentityChange(fn func(session.Identity)) func()
	ResolveDeployedAddress(artifactName string) (aucommon.ContractRef, error)
}

type AuctionLister interface {
	ListAuctions(ctx context.Context, factory aucommon.ContractRef, account common.Address) ([]*aggregator.AuctionSnapshot, error)
}

type TokenScanner interface {
	ScanOwned(ctx context.Context, collection aucommon.ContractRef, owner common.Address) ([]scanner.NftToken, error)
}

// View is what the last committed scan saw.
type View struct {
	// Generation is the scan that produced the view.
	Generation         uint64
	Identity           session.Identity
	Auctions           []*aggregator.AuctionSnapshot
	Tokens             []scanner.NftToken
	FactoryDeployed    bool
	CollectionDeployed bool
	UpdatedAt          time.Time
}

// Auction finds a listed auction by address.
func (v View) Auction(addr common.Address) (*aggregator.AuctionSnapshot, bool) {
	for _, a := range v.Auctions {
		if a.Address == addr {
			return a, true
		}
	}
	return nil, false
}

type Reconciler struct {
	chain    Chain
	auctions AuctionLister
	tokens   TokenScanner
	logger   *zap.Logger
	Now      func() time.Time

	mu          sync.Mutex
	generation  uint64
	cancel      context.CancelFunc
	view        View
	provisional map[common.Address]*aggregator.AuctionSnapshot
	listeners   map[int]func(View)
	nextID      int
	unsubscribe func()
	running     sync.WaitGroup
}

func New(chain Chain, auctions AuctionLister, tokens TokenScanner, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		chain:       chain,
		auctions:    auctions,
		tokens:      tokens,
		logger:      logger,
		Now:         time.Now,
		provisional: map[common.Address]*aggregator.AuctionSnapshot{},
		listeners:   map[int]func(View){},
	}
}

type scan struct {
	id         string
	generation uint64
	identity   session.Identity
	ctx        context.Context
	cancel     context.CancelFunc
}

// begin claims the next generation and cancels whatever scan was running.
func (r *Reconciler) begin(ctx context.Context, id session.Identity) *scan {
	scanCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	r.cancel = cancel
	return &scan{
		id:         uuid.NewString(),
		generation: r.generation,
		identity:   id,
		ctx:        scanCtx,
		cancel:     cancel,
	}
}

// Start rescans on every identity change until ctx is done or Stop is
// called, starting with one scan right away.
func (r *Reconciler) Start(ctx context.Context) {
	unsubscribe := r.chain.OnIdentityChange(func(id session.Identity) {
		r.logger.Info("identity changed, rescanning", zap.Stringer("identity", id))
		r.spawn(r.begin(ctx, id))
	})
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	r.spawn(r.begin(ctx, r.chain.Identity()))
}

func (r *Reconciler) spawn(s *scan) {
	r.running.Add(1)
	go func() {
		defer r.running.Done()
		if err := r.run(s); err != nil && !errors.Is(err, ErrSuperseded) {
			r.logger.Warn("scan failed", zap.String("scan", s.id), zap.Error(err))
		}
	}()
}

// Stop cancels the running scan and waits for background scans to return.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.running.Wait()
}

// Refresh runs one scan for the current identity and returns when it is
// committed or dropped. A newer scan cancels it and it returns
// ErrSuperseded.
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.run(r.begin(ctx, r.chain.Identity()))
}

func (r *Reconciler) run(s *scan) error {
	defer s.cancel()
	logger := r.logger.With(zap.String("scan", s.id), zap.Uint64("generation", s.generation))
	logger.Debug("scan started", zap.Stringer("identity", s.identity))

	next := View{Generation: s.generation, Identity: s.identity}
	if !s.identity.Connected {
		r.commit(logger, s, next)
		return aucommon.ErrNoSession
	}

	factory, err := r.chain.ResolveDeployedAddress(aucommon.AuctionFactoryArtifact)
	next.FactoryDeployed = err == nil
	if err != nil && !errors.Is(err, aucommon.ErrNotDeployed) {
		return r.fail(s, fmt.Errorf("couldn't resolve the auction factory: %w", err))
	}
	collection, err := r.chain.ResolveDeployedAddress(aucommon.NFTArtifact)
	next.CollectionDeployed = err == nil
	if err != nil && !errors.Is(err, aucommon.ErrNotDeployed) {
		return r.fail(s, fmt.Errorf("couldn't resolve the nft collection: %w", err))
	}

	g, gctx := errgroup.WithContext(s.ctx)
	if next.FactoryDeployed {
		g.Go(func() error {
			auctions, err := r.auctions.ListAuctions(gctx, factory, s.identity.Account)
			next.Auctions = auctions
			return err
		})
	}
	if next.CollectionDeployed && s.identity.HasAccount() {
		g.Go(func() error {
			tokens, err := r.tokens.ScanOwned(gctx, collection, s.identity.Account)
			next.Tokens = tokens
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return r.fail(s, err)
	}
	if next.Auctions == nil {
		next.Auctions = []*aggregator.AuctionSnapshot{}
	}
	if next.Tokens == nil {
		next.Tokens = []scanner.NftToken{}
	}
	if !r.commit(logger, s, next) {
		return ErrSuperseded
	}
	logger.Debug("scan committed",
		zap.Int("auctions", len(next.Auctions)),
		zap.Int("tokens", len(next.Tokens)),
	)
	return nil
}

func (r *Reconciler) fail(s *scan, err error) error {
	if !r.isLatest(s) {
		return ErrSuperseded
	}
	return err
}

func (r *Reconciler) isLatest(s *scan) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.generation == r.generation && s.ctx.Err() == nil
}

// commit publishes next unless a newer scan started or the identity moved
// on since s began.
func (r *Reconciler) commit(logger *zap.Logger, s *scan, next View) bool {
	current := r.chain.Identity()
	r.mu.Lock()
	if s.generation != r.generation || s.ctx.Err() != nil {
		r.mu.Unlock()
		logger.Debug("dropping superseded scan", zap.Uint64("latest", r.latest()))
		return false
	}
	if !current.Matches(s.identity) {
		r.mu.Unlock()
		logger.Debug("dropping scan for a stale identity", zap.Stringer("current", current))
		return false
	}
	next.UpdatedAt = r.Now()
	r.view = next
	r.provisional = map[common.Address]*aggregator.AuctionSnapshot{}
	view, listeners := r.snapshotLocked()
	r.mu.Unlock()
	notify(listeners, view)
	return true
}

func (r *Reconciler) latest() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// View returns the last committed view with provisional updates laid over
// its auctions.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, _ := r.snapshotLocked()
	return view
}

func (r *Reconciler) snapshotLocked() (View, []func(View)) {
	view := r.view
	if view.Auctions != nil {
		view.Auctions = make([]*aggregator.AuctionSnapshot, len(r.view.Auctions))
		for i, a := range r.view.Auctions {
			if p, found := r.provisional[a.Address]; found {
				view.Auctions[i] = p
			} else {
				view.Auctions[i] = a
			}
		}
	}
	listeners := make([]func(View), 0, len(r.listeners))
	for i := 0; i < r.nextID; i++ {
		if fn, found := r.listeners[i]; found {
			listeners = append(listeners, fn)
		}
	}
	return view, listeners
}

func notify(listeners []func(View), view View) {
	for _, fn := range listeners {
		fn(view)
	}
}

// Subscribe calls fn with every committed view and every provisional
// update. It returns the function that stops it.
func (r *Reconciler) Subscribe(fn func(View)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// ApplyProvisional shows snap in place of the committed auction until the
// next scan commits. Snapshots read for another account are ignored.
func (r *Reconciler) ApplyProvisional(snap *aggregator.AuctionSnapshot) {
	r.mu.Lock()
	if snap.Account != r.view.Identity.Account {
		r.mu.Unlock()
		return
	}
	if _, listed := r.view.Auction(snap.Address); !listed {
		r.mu.Unlock()
		return
	}
	r.provisional[snap.Address] = snap
	view, listeners := r.snapshotLocked()
	r.mu.Unlock()
	notify(listeners, view)
}

// ApplyBid lays a pushed bid event over the auction it belongs to.
func (r *Reconciler) ApplyBid(ev lifecycle.BidEvent) {
	r.mu.Lock()
	base, found := r.provisional[ev.Auction]
	if !found {
		base, found = r.view.Auction(ev.Auction)
	}
	if !found {
		r.mu.Unlock()
		return
	}
	next := lifecycle.ApplyBidEvent(base, ev)
	if next == base {
		r.mu.Unlock()
		return
	}
	r.provisional[ev.Auction] = next
	view, listeners := r.snapshotLocked()
	r.mu.Unlock()
	notify(listeners, view)
}
