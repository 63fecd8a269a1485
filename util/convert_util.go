package util

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/networks"
)

// ConvertToAmount reads an amount typed by the operator into wei.
// Accepted forms:
// - "1.5" or "1.5 ETH": ether, the symbol must be the network's native one
// - "1500 wei"
// - "0x...": wei in hex
func ConvertToAmount(str string, network networks.Network) (*big.Int, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil, fmt.Errorf("invalid amount: empty string")
	}
	if strings.HasPrefix(str, "0x") {
		return hexutil.DecodeBig(str)
	}
	parts := strings.Fields(str)
	switch len(parts) {
	case 1:
		return aucommon.ParseUnits(parts[0], network.GetNativeTokenDecimal())
	case 2:
		unit := parts[1]
		if strings.EqualFold(unit, "wei") {
			result, ok := new(big.Int).SetString(parts[0], 10)
			if !ok {
				return nil, fmt.Errorf("can't convert %s to wei", parts[0])
			}
			return result, nil
		}
		if strings.EqualFold(unit, network.GetNativeTokenSymbol()) {
			return aucommon.ParseUnits(parts[0], network.GetNativeTokenDecimal())
		}
		return nil, fmt.Errorf("unknown unit %q, amounts are in %s", unit, network.GetNativeTokenSymbol())
	}
	return nil, fmt.Errorf("invalid amount %q", str)
}

// ConvertToAddress accepts exactly one hex address, surrounding text
// allowed.
func ConvertToAddress(str string) (common.Address, error) {
	addresses := ScanForAddresses(strings.TrimSpace(str))
	if len(addresses) == 0 {
		return common.Address{}, fmt.Errorf("invalid address")
	}
	if len(addresses) > 1 {
		return common.Address{}, fmt.Errorf("too many addresses provided")
	}
	return common.HexToAddress(addresses[0]), nil
}

// ConvertToDuration reads an auction duration in hours into seconds. A
// plain integer followed by "s" is taken as seconds.
func ConvertToDuration(str string) (uint64, error) {
	str = strings.TrimSpace(str)
	if strings.HasSuffix(str, "s") {
		result, ok := new(big.Int).SetString(strings.TrimSuffix(str, "s"), 10)
		if !ok || result.Sign() <= 0 || !result.IsUint64() {
			return 0, fmt.Errorf("invalid duration %q", str)
		}
		return result.Uint64(), nil
	}
	hours, ok := new(big.Float).SetString(strings.TrimSuffix(str, "h"))
	if !ok || hours.Sign() <= 0 {
		return 0, fmt.Errorf("invalid duration %q", str)
	}
	f, _ := hours.Float64()
	seconds := aucommon.HoursToSeconds(f)
	if seconds.Sign() <= 0 {
		return 0, fmt.Errorf("duration %q is shorter than a second", str)
	}
	return seconds.Uint64(), nil
}
