package broadcaster

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/util/reader"
)

// Broadcaster takes a signed tx and broadcasts it to every node it manages
// in parallel. The tx counts as broadcasted once a single node accepts it.
type Broadcaster struct {
	nodes  []reader.EthereumNode
	logger *zap.Logger
}

func NewBroadcaster(logger *zap.Logger, nodes ...reader.EthereumNode) *Broadcaster {
	return &Broadcaster{nodes: nodes, logger: logger}
}

func (b *Broadcaster) GetNodes() []reader.EthereumNode {
	return b.nodes
}

// BroadcastTx returns the tx hash and whether at least one node accepted
// it. When every node refused, the per node errors are joined.
func (b *Broadcaster) BroadcastTx(ctx context.Context, tx *types.Transaction) (common.Hash, bool, error) {
	if len(b.nodes) == 0 {
		return tx.Hash(), false, aucommon.ErrNoSession
	}
	parallelTasks := []func() error{}
	for _, n := range b.nodes {
		n := n
		parallelTasks = append(parallelTasks, func() error {
			if err := n.SendTransaction(ctx, tx); err != nil {
				b.logger.Debug("node refused tx",
					zap.String("node", n.NodeName()),
					zap.String("tx", tx.Hash().Hex()),
					zap.Error(err),
				)
				return fmt.Errorf("%s: %w", n.NodeName(), err)
			}
			return nil
		})
	}
	numErrs, err := aucommon.RunParallel(parallelTasks...)
	if numErrs == len(b.nodes) {
		return tx.Hash(), false, fmt.Errorf("couldn't broadcast to any nodes: %w", err)
	}
	if err != nil {
		b.logger.Info("tx broadcasted with partial failures",
			zap.String("tx", tx.Hash().Hex()),
			zap.Int("failed", numErrs),
			zap.Int("nodes", len(b.nodes)),
		)
	}
	return tx.Hash(), true, nil
}

// IsAlreadyKnown reports the benign refusal a node gives for a tx another
// node already relayed to it.
func IsAlreadyKnown(err error) bool {
	for err != nil {
		msg := err.Error()
		if msg == "already known" || msg == "ALREADY_EXISTS: already known" {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
