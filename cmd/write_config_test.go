package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/config"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/session"
)

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		config.Network, config.From, config.Workers, config.Gateway = "", "", 0, ""
		config.TxType, config.GasMargin = "", 0
		config.FactoryAddress, config.CollectionAddress = "", ""
	})
}

func TestWriteFlagsOverridesFile(t *testing.T) {
	resetFlags(t)
	f, err := config.Load("", t.TempDir())
	require.NoError(t, err)

	config.Network = "sepolia"
	config.Workers = 8
	config.TxType = "LEGACY"
	config.FactoryAddress = "0x00000000000000000000000000000000000fac70"
	writeFlags(f)

	assert.Equal(t, "sepolia", f.Network)
	assert.Equal(t, 8, f.Workers)
	assert.Equal(t, aucommon.TxTypeLegacy, f.TxType)
	assert.Equal(t, "https://ipfs.io", f.Gateway)
	assert.Equal(t, config.FactoryAddress, f.Contracts["auctionfactory"])
}

func TestLoadArtifactsAppliesContractAddresses(t *testing.T) {
	f := &config.File{
		ArtifactsDir: t.TempDir(),
		Contracts: map[string]string{
			"auctionfactory": "0x00000000000000000000000000000000000fac70",
			"somethingelse":  "0x00000000000000000000000000000000000fac71",
		},
	}
	store, err := loadArtifacts(f, networks.Local)
	require.NoError(t, err)

	ref, err := store.Resolve(aucommon.AuctionFactoryArtifact, session.DeploymentCandidates(networks.Local))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xfac70"), ref.Address)

	_, err = store.Resolve(aucommon.NFTArtifact, session.DeploymentCandidates(networks.Local))
	assert.ErrorIs(t, err, aucommon.ErrNotDeployed)
}

func TestLoadArtifactsRejectsBadAddress(t *testing.T) {
	f := &config.File{
		ArtifactsDir: t.TempDir(),
		Contracts:    map[string]string{"mintnft": "not an address"},
	}
	_, err := loadArtifacts(f, networks.Local)
	assert.Error(t, err)
}

func TestResolveNetworkUsesConfiguredNodes(t *testing.T) {
	t.Setenv(networks.Local.GetNodeVariableName(), "")
	dir := t.TempDir()
	f := &config.File{
		Network:     "ganache",
		NetworksDir: filepath.Join(dir, "networks"),
		Nodes:       map[string][]string{"local": {"http://10.0.0.1:8545"}},
	}
	network, err := resolveNetwork(f)
	require.NoError(t, err)
	assert.Equal(t, "local", network.GetName())
	assert.Equal(t, map[string]string{"config-1": "http://10.0.0.1:8545"}, networks.Nodes(network))

	t.Setenv(networks.Local.GetNodeVariableName(), "http://127.0.0.1:9999")
	network, err = resolveNetwork(f)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{networks.CustomNodeName: "http://127.0.0.1:9999"}, networks.Nodes(network))

	f.Network = "nowhere"
	_, err = resolveNetwork(f)
	assert.Error(t, err)
}

func TestResolveNetworkLoadsCustomNetworks(t *testing.T) {
	dir := t.TempDir()
	content := `{"name": "anvil-test", "chain_id": 31337, "native_token_symbol": "ETH", "default_nodes": {"anvil": "http://127.0.0.1:8545"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anvil-test.json"), []byte(content), 0o644))

	network, err := resolveNetwork(&config.File{Network: "anvil-test", NetworksDir: dir})
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), network.GetChainID())
}
