package session

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

func abiString() (abi.Arguments, error) {
	strType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: strType}}, nil
}
