package account

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aucommon "github.com/tranvictor/auctioneer/common"
)

// ganache's first deterministic account
const testKey = "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func TestPrivateKeyAccountSigns(t *testing.T) {
	acc, err := NewPrivateKeyAccount(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"), acc.Address())

	to := common.HexToAddress("0xbeef")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID: big.NewInt(1337), Nonce: 0, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2),
		Gas: 21000, To: &to, Value: big.NewInt(1),
	})
	signed, err := acc.SignTx(tx, big.NewInt(1337))
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), signed)
	require.NoError(t, err)
	assert.Equal(t, acc.Address(), sender)
}

func TestDeclinedConfirmationIsUserRejection(t *testing.T) {
	acc, err := NewPrivateKeyAccount(testKey)
	require.NoError(t, err)
	declining := acc.WithConfirmation(func(*types.Transaction) bool { return false })

	tx := types.NewTx(&types.LegacyTx{Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
	_, err = declining.SignTx(tx, big.NewInt(1337))
	assert.ErrorIs(t, err, aucommon.ErrUserRejected)
	assert.Equal(t, acc.Address(), declining.Address())
}

func TestPrivateKeyFromHexRejectsGarbage(t *testing.T) {
	_, _, err := PrivateKeyFromHex("0x1234")
	assert.Error(t, err)
}
