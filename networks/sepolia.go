package networks

var Sepolia Network = NewGenericNetwork(GenericNetworkConfig{
	Name:              "sepolia",
	ChainID:           11155111,
	NativeTokenSymbol: "SepoliaETH",
	BlockTime:         12,
	NodeVariableName:  "ETHEREUM_SEPOLIA_NODE",
	DefaultNodes: map[string]string{
		"sepolia-publicnode": "https://ethereum-sepolia-rpc.publicnode.com",
	},
})
