package lifecycle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	aucommon "github.com/tranvictor/auctioneer/common"
)

type AuctionParams struct {
	NFT         common.Address
	TokenID     *big.Int
	StartingBid *big.Int
	Increment   *big.Int
	// Duration is in seconds.
	Duration uint64
}

func (p AuctionParams) validate() error {
	if p.TokenID == nil || p.TokenID.Sign() <= 0 {
		return aucommon.Rejected("token id must be positive")
	}
	if p.StartingBid == nil || p.StartingBid.Sign() <= 0 {
		return aucommon.Rejected("starting bid must be positive")
	}
	if p.Increment == nil || p.Increment.Sign() <= 0 {
		return aucommon.Rejected("increment must be positive")
	}
	if p.Duration == 0 {
		return aucommon.Rejected("duration must be positive")
	}
	return nil
}

func (c *Controller) activeAccount() (common.Address, error) {
	return c.account(nil)
}

func (c *Controller) ownerOf(ctx context.Context, collection aucommon.ContractRef, id *big.Int) (common.Address, error) {
	out, err := c.chain.Call(ctx, collection, "ownerOf", id)
	if err != nil {
		if aucommon.IsRevert(err) {
			return common.Address{}, fmt.Errorf("token #%s: %w", id, aucommon.ErrTokenNotFound)
		}
		return common.Address{}, err
	}
	owner, _ := out[0].(common.Address)
	return owner, nil
}

// CreateAuction lists a token the active account owns and returns the new
// auction's address, taken from the factory's ContractCreated log.
func (c *Controller) CreateAuction(ctx context.Context, factory aucommon.ContractRef, p AuctionParams) (common.Address, *Outcome, error) {
	wrap := func(err error) error {
		return &aucommon.ActionError{Action: string(ActionCreate), Auction: factory.Address, TokenID: p.TokenID, Err: err}
	}
	account, err := c.activeAccount()
	if err != nil {
		return common.Address{}, nil, wrap(err)
	}
	if err := p.validate(); err != nil {
		return common.Address{}, nil, wrap(err)
	}
	owner, err := c.ownerOf(ctx, aucommon.NFTRef(p.NFT), p.TokenID)
	if err != nil {
		return common.Address{}, nil, wrap(err)
	}
	if owner != account {
		return common.Address{}, nil, wrap(aucommon.Rejected("token #%s belongs to %s", p.TokenID, owner.Hex()))
	}
	receipt, err := c.chain.Send(ctx, factory, "createNewAuction", nil,
		p.NFT, p.TokenID, p.StartingBid, p.Increment, new(big.Int).SetUint64(p.Duration))
	if err != nil {
		return common.Address{}, nil, wrap(err)
	}
	created, err := createdAuction(factory.Address, receipt)
	if err != nil {
		return common.Address{}, nil, wrap(err)
	}
	c.logger.Info("created auction", zap.String("auction", created.Hex()), zap.String("token", p.TokenID.String()))
	outcome := c.finish(ctx, &Outcome{Action: ActionCreate, Auction: created, TokenID: p.TokenID, Receipt: receipt})
	return created, outcome, nil
}

func createdAuction(factory common.Address, receipt *types.Receipt) (common.Address, error) {
	ev := aucommon.GetAuctionFactoryABI().Events["ContractCreated"]
	for _, l := range receipt.Logs {
		if l.Address != factory || len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		out, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return common.Address{}, fmt.Errorf("couldn't decode ContractCreated: %w", err)
		}
		if addr, ok := out[0].(common.Address); ok {
			return addr, nil
		}
	}
	return common.Address{}, fmt.Errorf("receipt %s has no ContractCreated event", receipt.TxHash.Hex())
}

// Mint mints a token pointing at uri to the active account and returns its
// id. The id comes from the Transfer log, or from totalSupply when the
// receipt has none.
func (c *Controller) Mint(ctx context.Context, collection aucommon.ContractRef, uri string) (*big.Int, *Outcome, error) {
	wrap := func(err error) error {
		return &aucommon.ActionError{Action: string(ActionMint), Auction: collection.Address, Err: err}
	}
	account, err := c.activeAccount()
	if err != nil {
		return nil, nil, wrap(err)
	}
	if uri == "" {
		return nil, nil, wrap(aucommon.Rejected("token uri is empty"))
	}
	receipt, err := c.chain.Send(ctx, collection, "mint", nil, uri)
	if err != nil {
		return nil, nil, wrap(err)
	}
	id := mintedToken(collection.Address, account, receipt)
	if id == nil {
		out, err := c.chain.Call(ctx, collection, "totalSupply")
		if err != nil {
			return nil, nil, wrap(fmt.Errorf("minted but couldn't read the token id: %w", err))
		}
		id, _ = out[0].(*big.Int)
	}
	c.logger.Info("minted token", zap.String("collection", collection.Address.Hex()), zap.String("token", id.String()))
	outcome := c.finish(ctx, &Outcome{Action: ActionMint, Auction: collection.Address, TokenID: id, Receipt: receipt})
	return id, outcome, nil
}

func mintedToken(collection, to common.Address, receipt *types.Receipt) *big.Int {
	ev := aucommon.GetNFTABI().Events["Transfer"]
	for _, l := range receipt.Logs {
		if l.Address != collection || len(l.Topics) != 4 || l.Topics[0] != ev.ID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) ||
			common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		return l.Topics[3].Big()
	}
	return nil
}

// Transfer sends a token the active account owns to someone else.
func (c *Controller) Transfer(ctx context.Context, collection aucommon.ContractRef, to common.Address, id *big.Int) (*Outcome, error) {
	wrap := func(err error) error {
		return &aucommon.ActionError{Action: string(ActionTransfer), Auction: collection.Address, TokenID: id, Err: err}
	}
	account, err := c.activeAccount()
	if err != nil {
		return nil, wrap(err)
	}
	if id == nil || id.Sign() <= 0 {
		return nil, wrap(aucommon.Rejected("token id must be positive"))
	}
	if to == (common.Address{}) {
		return nil, wrap(aucommon.Rejected("recipient is the zero address"))
	}
	if to == account {
		return nil, wrap(aucommon.Rejected("cannot transfer to yourself"))
	}
	receipt, err := c.chain.Send(ctx, collection, "transferFrom", nil, account, to, id)
	if err != nil {
		return nil, wrap(err)
	}
	c.logger.Info("transferred token", zap.String("token", id.String()), zap.String("to", to.Hex()))
	return c.finish(ctx, &Outcome{Action: ActionTransfer, Auction: collection.Address, TokenID: id, Receipt: receipt}), nil
}
