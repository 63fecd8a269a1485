package common

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	AuctionFactoryArtifact = "AuctionFactory"
	AuctionArtifact        = "Auction"
	NFTArtifact            = "MintNFT"
)

var ZeroAddress = common.Address{}

// ContractRef binds an ABI to a deployed address. It is immutable once
// resolved.
type ContractRef struct {
	Name    string
	ABI     *abi.ABI
	Address common.Address
}

func NewContractRef(name string, a *abi.ABI, addr common.Address) ContractRef {
	return ContractRef{Name: name, ABI: a, Address: addr}
}

// At returns a copy of the ref pointing to another address with the same ABI.
func (r ContractRef) At(addr common.Address) ContractRef {
	return ContractRef{Name: r.Name, ABI: r.ABI, Address: addr}
}

func (r ContractRef) IsZero() bool {
	return r.ABI == nil || r.Address == ZeroAddress
}

func AuctionRef(addr common.Address) ContractRef {
	return NewContractRef(AuctionArtifact, GetAuctionABI(), addr)
}

func NFTRef(addr common.Address) ContractRef {
	return NewContractRef(NFTArtifact, GetNFTABI(), addr)
}

func FactoryRef(addr common.Address) ContractRef {
	return NewContractRef(AuctionFactoryArtifact, GetAuctionFactoryABI(), addr)
}

func HexToAddress(hex string) common.Address {
	return common.HexToAddress(hex)
}

func HexToAddresses(hexes []string) []common.Address {
	result := []common.Address{}
	for _, h := range hexes {
		result = append(result, common.HexToAddress(h))
	}
	return result
}

func HexToHash(hex string) common.Hash {
	return common.HexToHash(hex)
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func ShortAddress(addr common.Address) string {
	h := addr.Hex()
	return h[:8] + "..." + h[len(h)-6:]
}
