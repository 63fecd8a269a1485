package common

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	TxTypeLegacy     = "legacy"
	TxTypeDynamicFee = "dynamic"
)

// BuildExactTx assembles an unsigned transaction. feeCap doubles as the gas
// price for legacy transactions. A nil to builds a contract creation.
func BuildExactTx(
	txType string,
	chainID *big.Int,
	nonce uint64,
	to *common.Address,
	value *big.Int,
	gasLimit uint64,
	feeCap *big.Int,
	tipCap *big.Int,
	data []byte,
) *types.Transaction {
	if value == nil {
		value = big.NewInt(0)
	}
	if txType == TxTypeDynamicFee {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        to,
			Value:     value,
			Data:      data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: feeCap,
		Gas:      gasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})
}

// DynamicFeeAvailable reports whether the chain head carries a base fee.
func DynamicFeeAvailable(head *types.Header) bool {
	return head != nil && head.BaseFee != nil && head.BaseFee.Sign() > 0
}
