package networks

// Local is a ganache style development chain. Its chain id is 1337 while
// deployments made through the desktop app are keyed by network id 5777.
var Local Network = NewGenericNetwork(GenericNetworkConfig{
	Name:              "local",
	AlternativeNames:  []string{"ganache", "dev"},
	ChainID:           1337,
	NativeTokenSymbol: "ETH",
	BlockTime:         1,
	NodeVariableName:  "LOCAL_NODE",
	DefaultNodes: map[string]string{
		"local-8545": "http://127.0.0.1:8545",
		"local-7545": "http://127.0.0.1:7545",
	},
	DeploymentAliases: []string{"5777"},
})
