package networks

var EthereumMainnet Network = NewGenericNetwork(GenericNetworkConfig{
	Name:              "mainnet",
	AlternativeNames:  []string{"ethereum"},
	ChainID:           1,
	NativeTokenSymbol: "ETH",
	BlockTime:         12,
	NodeVariableName:  "ETHEREUM_MAINNET_NODE",
	DefaultNodes: map[string]string{
		"mainnet-publicnode": "https://ethereum-rpc.publicnode.com",
		"mainnet-llamarpc":   "https://eth.llamarpc.com",
	},
})
