package util

import (
	"fmt"
	"math/big"
	"regexp"
	"time"

	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/networks"
)

var addressPattern = regexp.MustCompile("0x[0-9a-fA-F]{40}([^0-9a-fA-F]|$)")

func ScanForAddresses(para string) []string {
	result := addressPattern.FindAllString(para, -1)
	if result == nil {
		return []string{}
	}
	for i := 0; i < len(result); i++ {
		result[i] = result[i][0:42]
	}
	return result
}

func IsAddress(addr string) bool {
	return len(ScanForAddresses(addr)) == 1 && len(addr) == 42
}

// FormatRemaining renders the time left until endAt, "0s" once passed.
func FormatRemaining(endAt uint64, now time.Time) string {
	left := int64(endAt) - now.Unix()
	if left <= 0 {
		return "0s"
	}
	d := time.Duration(left) * time.Second
	days := d / (24 * time.Hour)
	if days > 0 {
		return fmt.Sprintf("%dd%s", days, (d - days*24*time.Hour).String())
	}
	return d.String()
}

// FormatTimestamp renders a unix timestamp in local time.
func FormatTimestamp(ts uint64) string {
	return time.Unix(int64(ts), 0).Format("2006-01-02 15:04:05 MST")
}

// FormatAmount renders wei in the network's native token.
func FormatAmount(wei *big.Int, network networks.Network) string {
	return aucommon.FormatUnits(wei, network.GetNativeTokenDecimal())
}
