package broadcaster

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/util/reader"
)

type fakeNode struct {
	reader.EthereumNode
	name string
	err  error
	sent int
}

func (f *fakeNode) NodeName() string { return f.name }

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent++
	return f.err
}

func sampleTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, Value: big.NewInt(0)})
}

func TestBroadcastSucceedsWithOneNode(t *testing.T) {
	good := &fakeNode{name: "good"}
	bad := &fakeNode{name: "bad", err: errors.New("nonce too low")}
	b := NewBroadcaster(zaptest.NewLogger(t), good, bad)

	tx := sampleTx()
	hash, ok, err := b.BroadcastTx(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, 1, good.sent)
	assert.Equal(t, 1, bad.sent)
}

func TestBroadcastFailsWhenAllNodesRefuse(t *testing.T) {
	b := NewBroadcaster(zaptest.NewLogger(t),
		&fakeNode{name: "a", err: errors.New("insufficient funds")},
		&fakeNode{name: "b", err: errors.New("insufficient funds")},
	)
	_, ok, err := b.BroadcastTx(context.Background(), sampleTx())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: insufficient funds")
}

func TestBroadcastWithoutNodes(t *testing.T) {
	_, ok, err := NewBroadcaster(zaptest.NewLogger(t)).BroadcastTx(context.Background(), sampleTx())
	assert.False(t, ok)
	assert.ErrorIs(t, err, aucommon.ErrNoSession)
}

func TestIsAlreadyKnown(t *testing.T) {
	assert.True(t, IsAlreadyKnown(errors.New("already known")))
	assert.False(t, IsAlreadyKnown(errors.New("nonce too low")))
}
