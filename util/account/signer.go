package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	aucommon "github.com/tranvictor/auctioneer/common"
)

type Signer interface {
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ConfirmFunc is asked before each signature; false declines it.
type ConfirmFunc func(tx *types.Transaction) bool

// ConfirmingSigner plays the part of a wallet prompt: a declined prompt is
// reported as ErrUserRejected.
type ConfirmingSigner struct {
	signer  Signer
	confirm ConfirmFunc
}

func NewConfirmingSigner(signer Signer, confirm ConfirmFunc) *ConfirmingSigner {
	return &ConfirmingSigner{signer: signer, confirm: confirm}
}

func (cs *ConfirmingSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if cs.confirm != nil && !cs.confirm(tx) {
		return nil, aucommon.ErrUserRejected
	}
	return cs.signer.SignTx(tx, chainID)
}
