// Package accounts keeps the operator's account records and keystores under
// ~/.auctioneer.
package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/tranvictor/auctioneer/util/account"
)

const (
	KindKeystore   = "keystore"
	KindPrivateKey = "privatekey"
)

var ErrAccountNotFound = errors.New("no account matches")

// AccDesc describes one account. Keystore records point at an encrypted
// key; a private key record stores no key, it is asked for on every unlock.
type AccDesc struct {
	Address string
	Kind    string
	Keypath string
	Desc    string
}

func HomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	usr, err := user.Current()
	if err != nil {
		return "."
	}
	return usr.HomeDir
}

// DefaultDir is ~/.auctioneer.
func DefaultDir() string {
	return filepath.Join(HomeDir(), ".auctioneer")
}

// Store reads and writes account records in one directory. Each record is
// a json file named after its address; keystores live in keystores/.
type Store struct {
	dir    string
	logger *zap.Logger
	// ScryptN and ScryptP tune keystore encryption.
	ScryptN int
	ScryptP int
}

func NewStore(dir string, logger *zap.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:     dir,
		logger:  logger,
		ScryptN: gethkeystore.StandardScryptN,
		ScryptP: gethkeystore.StandardScryptP,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

type keystoreFile struct {
	Address string `json:"address"`
}

// StorePrivateKeyWithKeystore encrypts privateKey with passphrase and writes
// it as a keystore file, returning its path and address.
func (s *Store) StorePrivateKeyWithKeystore(privateKey string, passphrase string) (string, common.Address, error) {
	addr, priv, err := account.PrivateKeyFromHex(privateKey)
	if err != nil {
		return "", common.Address{}, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", common.Address{}, err
	}
	key := &gethkeystore.Key{
		Id:         id,
		Address:    addr,
		PrivateKey: priv,
	}
	keystoreJSON, err := gethkeystore.EncryptKey(key, passphrase, s.ScryptN, s.ScryptP)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("couldn't encrypt key: %w", err)
	}

	dir := filepath.Join(s.dir, "keystores")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", common.Address{}, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.json", key.Address.Hex()))
	return path, addr, os.WriteFile(path, keystoreJSON, 0o600)
}

// VerifyKeystore returns the address a keystore file is for.
func VerifyKeystore(path string) (common.Address, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return common.Address{}, err
	}
	k := &keystoreFile{}
	if err := json.Unmarshal(content, k); err != nil {
		return common.Address{}, fmt.Errorf("%s is not a keystore: %w", path, err)
	}
	if !common.IsHexAddress(k.Address) {
		return common.Address{}, fmt.Errorf("%s has no valid address", path)
	}
	return common.HexToAddress(k.Address), nil
}

func (s *Store) StoreAccountRecord(desc AccDesc) error {
	if !common.IsHexAddress(desc.Address) {
		return fmt.Errorf("invalid address %q", desc.Address)
	}
	desc.Address = common.HexToAddress(desc.Address).Hex()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	content, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, fmt.Sprintf("%s.json", desc.Address)), content, 0o600)
}

// GetAccounts returns every stored record, sorted by address. Unreadable
// records are logged and skipped.
func (s *Store) GetAccounts() []AccDesc {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		s.logger.Warn("couldn't list accounts", zap.Error(err))
		return []AccDesc{}
	}
	result := []AccDesc{}
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".json")
		if !common.IsHexAddress(name) {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			s.logger.Warn("couldn't read account record", zap.String("path", p), zap.Error(err))
			continue
		}
		desc := AccDesc{}
		if err := json.Unmarshal(content, &desc); err != nil {
			s.logger.Warn("ignoring malformed account record", zap.String("path", p), zap.Error(err))
			continue
		}
		result = append(result, desc)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Address) < strings.ToLower(result[j].Address)
	})
	return result
}

// FuzzySource lets sahilm/fuzzy search records by address and description.
type FuzzySource []AccDesc

func (f FuzzySource) Len() int {
	return len(f)
}

func (f FuzzySource) String(i int) string {
	return fmt.Sprintf("%s_%s", f[i].Address, strings.ReplaceAll(f[i].Desc, " ", "_"))
}

// GetAccount finds the record best matching input, an address or any part
// of a description.
func (s *Store) GetAccount(input string) (AccDesc, error) {
	source := FuzzySource(s.GetAccounts())
	if common.IsHexAddress(input) {
		for _, desc := range source {
			if strings.EqualFold(desc.Address, input) {
				return desc, nil
			}
		}
	}
	matches := fuzzy.FindFrom(strings.ReplaceAll(input, " ", "_"), source)
	if len(matches) == 0 {
		return AccDesc{}, fmt.Errorf("%w '%s'", ErrAccountNotFound, input)
	}
	return source[matches[0].Index], nil
}

// UnlockAccount opens desc's keystore with the passphrase from prompt, or
// asks prompt for the key of a private key record.
func UnlockAccount(desc AccDesc, prompt func(string) (string, error)) (*account.Account, error) {
	switch desc.Kind {
	case KindKeystore:
		pwd, err := prompt(fmt.Sprintf("Passphrase for %s: ", desc.Address))
		if err != nil {
			return nil, err
		}
		acc, err := account.NewKeystoreAccount(desc.Keypath, pwd)
		if err != nil {
			return nil, fmt.Errorf("unlocking keystore '%s' failed: %w", desc.Keypath, err)
		}
		if !strings.EqualFold(acc.AddressHex(), desc.Address) {
			return nil, fmt.Errorf("keystore '%s' is for %s, not %s", desc.Keypath, acc.AddressHex(), desc.Address)
		}
		return acc, nil
	case KindPrivateKey:
		hex, err := prompt(fmt.Sprintf("Private key of %s: ", desc.Address))
		if err != nil {
			return nil, err
		}
		acc, err := account.NewPrivateKeyAccount(hex)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(acc.AddressHex(), desc.Address) {
			return nil, fmt.Errorf("the private key is for %s, not %s", acc.AddressHex(), desc.Address)
		}
		return acc, nil
	}
	return nil, fmt.Errorf("unsupported account kind %q", desc.Kind)
}
