package reader

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	aucommon "github.com/tranvictor/auctioneer/common"
)

// ReadContractToBytes packs method with args and eth_calls it on ref from
// the given address, returning the raw return data.
func (er *EthReader) ReadContractToBytes(
	ctx context.Context,
	from common.Address,
	ref aucommon.ContractRef,
	method string,
	args ...interface{},
) ([]byte, error) {
	if ref.ABI == nil {
		return nil, fmt.Errorf("%s has no abi", ref.Name)
	}
	data, err := ref.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("couldn't pack %s.%s: %w", ref.Name, method, err)
	}
	to := ref.Address
	return er.CallContract(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
}

// ReadContract returns the decoded outputs of a view method positionally, in
// the order the abi declares them.
func (er *EthReader) ReadContract(
	ctx context.Context,
	from common.Address,
	ref aucommon.ContractRef,
	method string,
	args ...interface{},
) ([]interface{}, error) {
	raw, err := er.ReadContractToBytes(ctx, from, ref, method, args...)
	if err != nil {
		return nil, err
	}
	return UnpackOutputs(ref, method, raw)
}

func UnpackOutputs(ref aucommon.ContractRef, method string, raw []byte) ([]interface{}, error) {
	m, found := ref.ABI.Methods[method]
	if !found {
		return nil, fmt.Errorf("%s has no method %s", ref.Name, method)
	}
	if len(raw) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("%s.%s at %s returned no data: %w",
			ref.Name, method, ref.Address.Hex(), aucommon.ErrNonContractAddress)
	}
	out, err := ref.ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode %s.%s: %w", ref.Name, method, err)
	}
	return out, nil
}
