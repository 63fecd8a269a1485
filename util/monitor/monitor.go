package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultLostAfter = 3 * time.Minute
)

var ErrTxLost = errors.New("tx was not found on any node")

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxMonitor polls for a tx receipt until the tx is mined.
type TxMonitor struct {
	reader    ReceiptReader
	Interval  time.Duration
	LostAfter time.Duration
}

func NewGenericTxMonitor(r ReceiptReader) *TxMonitor {
	return &TxMonitor{
		reader:    r,
		Interval:  DefaultInterval,
		LostAfter: DefaultLostAfter,
	}
}

type TxResult struct {
	Hash    common.Hash
	Receipt *types.Receipt
	Err     error
}

func (m *TxMonitor) periodicCheck(ctx context.Context, hash common.Hash, info chan<- TxResult) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	startTime := time.Now()
	for {
		receipt, err := m.reader.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			info <- TxResult{Hash: hash, Receipt: receipt}
			return
		}
		// nodes erroring and nodes not knowing the tx yet both mean keep waiting
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() != nil {
			info <- TxResult{Hash: hash, Err: ctx.Err()}
			return
		}
		if m.LostAfter > 0 && time.Since(startTime) > m.LostAfter {
			info <- TxResult{Hash: hash, Err: fmt.Errorf("%s: %w", hash.Hex(), ErrTxLost)}
			return
		}
		select {
		case <-ctx.Done():
			info <- TxResult{Hash: hash, Err: ctx.Err()}
			return
		case <-ticker.C:
		}
	}
}

func (m *TxMonitor) MakeWaitChannel(ctx context.Context, hash common.Hash) <-chan TxResult {
	result := make(chan TxResult, 1)
	go m.periodicCheck(ctx, hash, result)
	return result
}

// BlockingWait returns the receipt once mined, whatever its status.
func (m *TxMonitor) BlockingWait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	res := <-m.MakeWaitChannel(ctx, hash)
	return res.Receipt, res.Err
}
