package networks

import (
	"strconv"
	"time"
)

type GenericNetworkConfig struct {
	Name               string            `json:"name"`
	AlternativeNames   []string          `json:"alternative_names"`
	ChainID            uint64            `json:"chain_id"`
	NativeTokenSymbol  string            `json:"native_token_symbol"`
	NativeTokenDecimal uint64            `json:"native_token_decimal"`
	BlockTime          uint64            `json:"block_time"`
	NodeVariableName   string            `json:"node_variable_name"`
	DefaultNodes       map[string]string `json:"default_nodes"`
	// DeploymentAliases are extra artifact network keys, e.g. a development
	// chain whose network id differs from its chain id.
	DeploymentAliases []string `json:"deployment_aliases"`
}

// GenericNetwork is a network fully described by its config.
type GenericNetwork struct {
	config GenericNetworkConfig
}

func NewGenericNetwork(config GenericNetworkConfig) *GenericNetwork {
	if config.NativeTokenSymbol == "" {
		config.NativeTokenSymbol = "ETH"
	}
	if config.NativeTokenDecimal == 0 {
		config.NativeTokenDecimal = 18
	}
	if config.BlockTime == 0 {
		config.BlockTime = 12
	}
	return &GenericNetwork{config: config}
}

func (gn *GenericNetwork) GetName() string {
	return gn.config.Name
}

func (gn *GenericNetwork) GetChainID() uint64 {
	return gn.config.ChainID
}

func (gn *GenericNetwork) GetAlternativeNames() []string {
	return gn.config.AlternativeNames
}

func (gn *GenericNetwork) GetNativeTokenSymbol() string {
	return gn.config.NativeTokenSymbol
}

func (gn *GenericNetwork) GetNativeTokenDecimal() uint64 {
	return gn.config.NativeTokenDecimal
}

func (gn *GenericNetwork) GetBlockTime() time.Duration {
	return time.Duration(gn.config.BlockTime) * time.Second
}

func (gn *GenericNetwork) GetNodeVariableName() string {
	return gn.config.NodeVariableName
}

func (gn *GenericNetwork) GetDefaultNodes() map[string]string {
	return gn.config.DefaultNodes
}

func (gn *GenericNetwork) DeploymentIDs() []string {
	ids := []string{strconv.FormatUint(gn.config.ChainID, 10)}
	for _, alias := range gn.config.DeploymentAliases {
		if alias != ids[0] {
			ids = append(ids, alias)
		}
	}
	return ids
}

func (gn *GenericNetwork) Config() GenericNetworkConfig {
	return gn.config
}
