package session

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	aucommon "github.com/tranvictor/auctioneer/common"
)

// Send packs method with args, signs it with the active account and waits
// for it to be mined. value is the native amount attached, nil for none.
//
// Errors are classified: a declined signature wraps ErrUserRejected, a
// revert during estimation or in the mined receipt wraps ErrChainReverted
// with the reason, and anything else wraps ErrTransportFailure.
func (s *Session) Send(
	ctx context.Context,
	ref aucommon.ContractRef,
	method string,
	value *big.Int,
	args ...interface{},
) (*types.Receipt, error) {
	if ref.ABI == nil {
		return nil, fmt.Errorf("%s has no abi", ref.Name)
	}
	data, err := ref.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("couldn't pack %s.%s: %w", ref.Name, method, err)
	}
	to := ref.Address
	receipt, err := s.SendData(ctx, &to, value, data)
	if err != nil {
		return receipt, fmt.Errorf("%s.%s: %w", ref.Name, method, err)
	}
	return receipt, nil
}

// SendData is Send for pre-packed calldata.
func (s *Session) SendData(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	t, err := s.usable()
	if err != nil {
		return nil, err
	}
	if t.signer == nil {
		return nil, aucommon.Rejected("no account selected to sign with")
	}
	if value == nil {
		value = big.NewInt(0)
	}
	from := t.signer.Address()
	network := s.Network()
	chainID := new(big.Int).SetUint64(t.identity.NetworkID)

	nonce, err := t.reader.GetPendingNonce(ctx, from)
	if err != nil {
		return nil, classify(ctx, err)
	}
	msg := ethereum.CallMsg{From: from, To: to, Value: value, Data: data}
	gas, err := t.reader.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classify(ctx, err)
	}
	gas = gas * (100 + s.opts.GasMargin) / 100

	txType := s.opts.TxType
	var (
		feeCap, tipCap *big.Int
		head           *types.Header
	)
	if txType != aucommon.TxTypeLegacy {
		head, err = t.reader.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, classify(ctx, err)
		}
	}
	if txType == "" {
		txType = aucommon.TxTypeLegacy
		if aucommon.DynamicFeeAvailable(head) {
			txType = aucommon.TxTypeDynamicFee
		}
	}
	if txType == aucommon.TxTypeDynamicFee {
		tipCap, err = t.reader.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, classify(ctx, err)
		}
		baseFee := big.NewInt(0)
		if head != nil && head.BaseFee != nil {
			baseFee = head.BaseFee
		}
		feeCap = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	} else {
		feeCap, err = t.reader.SuggestGasPrice(ctx)
		if err != nil {
			return nil, classify(ctx, err)
		}
	}

	tx := aucommon.BuildExactTx(txType, chainID, nonce, to, value, gas, feeCap, tipCap, data)
	signed, err := t.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}

	hash, broadcasted, err := t.broadcaster.BroadcastTx(ctx, signed)
	if !broadcasted {
		return nil, classify(ctx, err)
	}
	s.logger.Info("tx broadcasted",
		zap.String("tx", hash.Hex()),
		zap.String("from", from.Hex()),
		zap.String("network", network.GetName()),
		zap.Uint64("nonce", nonce),
	)

	receipt, err := t.monitor.BlockingWait(ctx, hash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", aucommon.ErrTransportFailure, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		reason := ""
		// replaying the call is the only way to learn why a mined tx reverted
		if _, callErr := t.reader.CallContract(ctx, msg); callErr != nil {
			reason = aucommon.RevertReason(callErr)
		}
		s.logger.Warn("tx reverted", zap.String("tx", hash.Hex()), zap.String("reason", reason))
		return receipt, &aucommon.RevertError{
			Reason: reason,
			Err:    fmt.Errorf("tx %s reverted in block %s", hash.Hex(), receipt.BlockNumber),
		}
	}
	return receipt, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return aucommon.ClassifyRPCError(err)
}
