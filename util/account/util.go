package account

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func AddressFromPrivateKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func PrivateKeyFromKeystore(file string, password string) (common.Address, *ecdsa.PrivateKey, error) {
	json, err := os.ReadFile(file)
	if err != nil {
		return common.Address{}, nil, err
	}
	key, err := keystore.DecryptKey(json, password)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("couldn't decrypt %s: %w", file, err)
	}
	return AddressFromPrivateKey(key.PrivateKey), key.PrivateKey, nil
}

// works with both 0x prefix form and naked form
func PrivateKeyFromHex(hex string) (common.Address, *ecdsa.PrivateKey, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "0x")
	privkey, err := crypto.HexToECDSA(hex)
	if err != nil {
		return common.Address{}, nil, err
	}
	return AddressFromPrivateKey(privkey), privkey, nil
}
