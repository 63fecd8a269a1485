package common

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const auctionFactoryABI = `[
	{"type":"function","name":"getAuctions","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"createNewAuction","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"_nft","type":"address"},
		{"name":"_nftId","type":"uint256"},
		{"name":"_startingBid","type":"uint256"},
		{"name":"_increment","type":"uint256"},
		{"name":"_duration","type":"uint256"}],
	 "outputs":[]},
	{"type":"event","name":"ContractCreated","anonymous":false,
	 "inputs":[{"name":"newContractAddress","type":"address","indexed":false}]}
]`

// info() is a wire contract with the auction contract: 12 outputs in this
// exact order.
const auctionABI = `[
	{"type":"function","name":"info","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"seller","type":"address"},
		{"name":"highestBidder","type":"address"},
		{"name":"startAt","type":"uint256"},
		{"name":"duration","type":"uint256"},
		{"name":"endAt","type":"uint256"},
		{"name":"increment","type":"uint256"},
		{"name":"highestBid","type":"uint256"},
		{"name":"nftId","type":"uint256"},
		{"name":"userBidAmount","type":"uint256"},
		{"name":"started","type":"bool"},
		{"name":"ended","type":"bool"},
		{"name":"nft","type":"address"}]},
	{"type":"function","name":"nft","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"nftId","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"bid","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"start","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"end","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"Bid","anonymous":false,
	 "inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

const nftCollectionABI = `[
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"tokenURI","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getApproved","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"tokenId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"mint","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenURI","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"event","name":"Approval","anonymous":false,
	 "inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"approved","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]}
]`

var (
	factoryABI    = mustParseABI("AuctionFactory", auctionFactoryABI)
	auctionABIObj = mustParseABI("Auction", auctionABI)
	nftABI        = mustParseABI("MintNFT", nftCollectionABI)
)

func mustParseABI(name, body string) *abi.ABI {
	result, err := abi.JSON(strings.NewReader(body))
	if err != nil {
		panic(fmt.Errorf("built-in %s abi is invalid: %w", name, err))
	}
	return &result
}

func GetAuctionFactoryABI() *abi.ABI {
	return factoryABI
}

func GetAuctionABI() *abi.ABI {
	return auctionABIObj
}

func GetNFTABI() *abi.ABI {
	return nftABI
}

// ABIByArtifactName returns the built-in ABI for one of the dapp's artifact
// names, used when an artifact file does not ship its own ABI.
func ABIByArtifactName(name string) (*abi.ABI, bool) {
	switch name {
	case AuctionFactoryArtifact:
		return factoryABI, true
	case AuctionArtifact:
		return auctionABIObj, true
	case NFTArtifact:
		return nftABI, true
	}
	return nil, false
}
