package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aucommon "github.com/tranvictor/auctioneer/common"
)

const factoryArtifact = `{
  "contractName": "AuctionFactory",
  "abi": [{"type":"function","name":"getAuctions","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]}],
  "networks": {
    "5777": {"address": "0x00000000000000000000000000000000000000f1"}
  }
}`

func TestResolveUsesDevnetAlias(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AuctionFactory.json"), []byte(factoryArtifact), 0o644))

	s := NewStore()
	require.NoError(t, s.LoadDir(dir))

	ref, err := s.Resolve(aucommon.AuctionFactoryArtifact, []string{"1337", "5777"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf1"), ref.Address)
	_, hasMethod := ref.ABI.Methods["getAuctions"]
	assert.True(t, hasMethod)
}

func TestResolveNotDeployed(t *testing.T) {
	s := NewStore()
	_, err := s.Resolve(aucommon.NFTArtifact, []string{"1"})
	assert.ErrorIs(t, err, aucommon.ErrNotDeployed)

	_, err = s.Resolve("Unknown", []string{"1"})
	assert.ErrorIs(t, err, aucommon.ErrNotDeployed)
}

func TestSetAddressKeepsBuiltinABI(t *testing.T) {
	s := NewStore()
	s.SetAddress(aucommon.NFTArtifact, "11155111", common.HexToAddress("0xabc"))

	ref, err := s.Resolve(aucommon.NFTArtifact, []string{"11155111"})
	require.NoError(t, err)
	assert.Equal(t, aucommon.GetNFTABI(), ref.ABI)
	assert.Equal(t, common.HexToAddress("0xabc"), ref.Address)
}

func TestParseArtifactRejectsGarbage(t *testing.T) {
	_, err := ParseArtifact([]byte(`{"abi": []}`))
	assert.Error(t, err)
	_, err = ParseArtifact([]byte(`not json`))
	assert.Error(t, err)
}
