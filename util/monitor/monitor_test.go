package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowMiner struct {
	mu      sync.Mutex
	polls   int
	minedAt int
}

func (s *slowMiner) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.minedAt > 0 && s.polls >= s.minedAt {
		return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful}, nil
	}
	return nil, ethereum.NotFound
}

func TestBlockingWaitReturnsReceipt(t *testing.T) {
	m := NewGenericTxMonitor(&slowMiner{minedAt: 3})
	m.Interval = time.Millisecond

	hash := common.HexToHash("0x01")
	receipt, err := m.BlockingWait(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
}

func TestBlockingWaitGivesUpOnLostTx(t *testing.T) {
	m := NewGenericTxMonitor(&slowMiner{})
	m.Interval = time.Millisecond
	m.LostAfter = 10 * time.Millisecond

	_, err := m.BlockingWait(context.Background(), common.HexToHash("0x02"))
	assert.ErrorIs(t, err, ErrTxLost)
}

func TestBlockingWaitStopsOnCancel(t *testing.T) {
	m := NewGenericTxMonitor(&slowMiner{})
	m.Interval = time.Millisecond
	m.LostAfter = 0

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.BlockingWait(ctx, common.HexToHash("0x03"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
