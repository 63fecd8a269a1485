package cmd

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/accounts"
	"github.com/tranvictor/auctioneer/aggregator"
	"github.com/tranvictor/auctioneer/artifacts"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/config"
	"github.com/tranvictor/auctioneer/lifecycle"
	"github.com/tranvictor/auctioneer/metadata"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/reconciler"
	"github.com/tranvictor/auctioneer/scanner"
	"github.com/tranvictor/auctioneer/session"
	"github.com/tranvictor/auctioneer/util"
	"github.com/tranvictor/auctioneer/util/account"
	"github.com/tranvictor/auctioneer/util/cache"
)

// app is everything a command needs to talk to the chain.
type app struct {
	network    networks.Network
	session    *session.Session
	accounts   *accounts.Store
	resolver   *metadata.Resolver
	aggregator *aggregator.Aggregator
	scanner    *scanner.Scanner
	reconciler *reconciler.Reconciler
	controller *lifecycle.Controller

	// preview describes the action about to be signed.
	preview util.ActionPreview
}

func resolveNetwork(f *config.File) (networks.Network, error) {
	registry := networks.Default()
	if err := registry.LoadCustomNetworks(f.NetworksDir); err != nil {
		log.Warn("couldn't load custom networks", zap.String("dir", f.NetworksDir), zap.Error(err))
	}
	network, err := registry.Get(f.Network)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Network, err)
	}
	envSet := network.GetNodeVariableName() != "" && os.Getenv(network.GetNodeVariableName()) != ""
	if nodes := f.NodesFor(network.GetName()); nodes != nil && !envSet {
		network = networks.WithNodes(network, nodes)
	}
	return network, nil
}

// loadArtifacts reads the artifacts dir and applies the contract addresses
// given in the config or on the command line.
func loadArtifacts(f *config.File, network networks.Network) (*artifacts.Store, error) {
	store := artifacts.NewStore()
	if err := store.LoadDir(f.ArtifactsDir); err != nil {
		return nil, err
	}
	ids := network.DeploymentIDs()
	if len(ids) == 0 {
		return store, nil
	}
	for key, value := range f.Contracts {
		name := ""
		for _, known := range []string{
			aucommon.AuctionFactoryArtifact,
			aucommon.AuctionArtifact,
			aucommon.NFTArtifact,
		} {
			if strings.EqualFold(key, known) {
				name = known
			}
		}
		if name == "" {
			log.Warn("ignoring address of unknown contract", zap.String("contract", key))
			continue
		}
		addr, err := util.ConvertToAddress(value)
		if err != nil {
			return nil, fmt.Errorf("contracts.%s: %w", key, err)
		}
		store.SetAddress(name, ids[0], addr)
	}
	return store, nil
}

// lazySigner stands for a registered account and unlocks it the first time
// something has to be signed, so read only commands never ask for a
// passphrase.
type lazySigner struct {
	desc    accounts.AccDesc
	confirm account.ConfirmFunc

	once sync.Once
	acc  *account.Account
	err  error
}

func (l *lazySigner) Address() common.Address {
	return common.HexToAddress(l.desc.Address)
}

func (l *lazySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	l.once.Do(func() {
		acc, err := accounts.UnlockAccount(l.desc, appUI.Password)
		if err != nil {
			l.err = err
			return
		}
		l.acc = acc.WithConfirmation(l.confirm)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.acc.SignTx(tx, chainID)
}

// confirmTx shows the pending action with the tx about to be signed.
func (a *app) confirmTx(tx *types.Transaction) bool {
	p := a.preview
	if tx.To() != nil {
		p.Target = *tx.To()
	}
	p.Value = tx.Value()
	p.Details = append(append([][2]string{}, p.Details...),
		[2]string{"Nonce", fmt.Sprintf("%d", tx.Nonce())},
		[2]string{"Gas limit", fmt.Sprintf("%d", tx.Gas())},
		[2]string{"Max fee", aucommon.FormatUnits(tx.GasFeeCap(), 9) + " gwei"},
	)
	return util.PromptActionConfirmation(appUI, p, a.network, config.Yes) == nil
}

// newApp wires the engine for the configured network and account and checks
// that a node answers.
func newApp(ctx context.Context) (*app, error) {
	network, err := resolveNetwork(settings)
	if err != nil {
		return nil, err
	}
	store, err := loadArtifacts(settings, network)
	if err != nil {
		return nil, err
	}
	a := &app{
		network:  network,
		accounts: accounts.NewStore(accounts.DefaultDir(), log),
	}

	var signer session.Signer
	if settings.From != "" {
		desc, err := a.accounts.GetAccount(settings.From)
		if err != nil {
			return nil, err
		}
		a.preview.From = common.HexToAddress(desc.Address)
		signer = &lazySigner{desc: desc, confirm: a.confirmTx}
	}

	a.session = session.New(network, signer, session.Options{
		Logger:    log,
		Artifacts: store,
		Timeout:   settings.RPCTimeout,
		TxType:    settings.TxType,
		GasMargin: uint64(math.Round(settings.GasMargin * 100)),
	})
	stop := appUI.Spinner(fmt.Sprintf("Connecting to %s", network.GetName()))
	err = a.session.Connect(ctx)
	stop()
	if err != nil {
		return nil, err
	}

	a.resolver = metadata.NewResolver(
		settings.Gateway,
		&http.Client{Timeout: settings.RPCTimeout},
		cache.New(settings.CacheFile),
		log,
	)
	a.aggregator = aggregator.New(a.session, a.resolver, log)
	a.aggregator.Workers = settings.Workers
	a.scanner = scanner.New(a.session, a.resolver, log)
	a.scanner.Workers = settings.Workers

	var tokens reconciler.TokenScanner = a.scanner
	if config.TokensByLogs {
		tokens = &logScanner{scanner: a.scanner, fromBlock: config.FromBlock}
	}
	a.reconciler = reconciler.New(a.session, a.aggregator, tokens, log)
	a.controller = lifecycle.NewController(a.session, a.reconciler, log)
	return a, nil
}

// logScanner finds owned tokens through Transfer logs.
type logScanner struct {
	scanner   *scanner.Scanner
	fromBlock uint64
}

func (l *logScanner) ScanOwned(ctx context.Context, collection aucommon.ContractRef, owner common.Address) ([]scanner.NftToken, error) {
	return l.scanner.ScanOwnedByLogs(ctx, collection, owner, l.fromBlock)
}

// refresh runs one scan and returns its view.
func (a *app) refresh(ctx context.Context) (reconciler.View, error) {
	stop := appUI.Spinner("Reading auctions")
	err := a.reconciler.Refresh(ctx)
	stop()
	if err != nil {
		return reconciler.View{}, err
	}
	return a.reconciler.View(), nil
}

func (a *app) account() common.Address {
	return a.session.Identity().Account
}

func (a *app) requireAccount() error {
	if !a.session.Identity().HasAccount() {
		return aucommon.Rejected("this needs an account, pass --from or set from in the config")
	}
	return nil
}
