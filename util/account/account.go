package account

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Account is an address that can sign for itself.
type Account struct {
	signer  Signer
	address common.Address
}

func NewAccount(signer Signer, address common.Address) *Account {
	return &Account{signer: signer, address: address}
}

func NewKeystoreAccount(file string, password string) (*Account, error) {
	addr, key, err := PrivateKeyFromKeystore(file, password)
	if err != nil {
		return nil, err
	}
	return NewAccount(NewKeySigner(key), addr), nil
}

func NewPrivateKeyAccount(hex string) (*Account, error) {
	addr, key, err := PrivateKeyFromHex(hex)
	if err != nil {
		return nil, err
	}
	return NewAccount(NewKeySigner(key), addr), nil
}

func (a *Account) Address() common.Address {
	return a.address
}

func (a *Account) AddressHex() string {
	return a.address.Hex()
}

// WithConfirmation returns a copy of the account whose every signature has
// to be confirmed first.
func (a *Account) WithConfirmation(confirm ConfirmFunc) *Account {
	return NewAccount(NewConfirmingSigner(a.signer, confirm), a.address)
}

func (a *Account) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signedTx, err := a.signer.SignTx(tx, chainID)
	if err != nil {
		return tx, fmt.Errorf("couldn't sign the tx: %w", err)
	}
	return signedTx, nil
}
