package util

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sahilm/fuzzy"

	"github.com/tranvictor/auctioneer/aggregator"
	aucommon "github.com/tranvictor/auctioneer/common"
	"github.com/tranvictor/auctioneer/networks"
	"github.com/tranvictor/auctioneer/ui"
)

type NumberValidator func(number *big.Int) error
type StringValidator func(st string) error

func PromptInputWithValidation(u ui.UI, prompter string, validator StringValidator) string {
	u.Info("%s:", prompter)
	return u.Ask(validator)
}

// PromptAmount asks until the input reads as an amount validator accepts.
func PromptAmount(u ui.UI, prompter string, validator NumberValidator, network networks.Network) *big.Int {
	var result *big.Int
	u.Info("%s (%s):", prompter, network.GetNativeTokenSymbol())
	u.Ask(func(input string) error {
		num, err := ConvertToAmount(input, network)
		if err != nil {
			return fmt.Errorf("couldn't interpret as an amount because %s", err)
		}
		if validator != nil {
			if err := validator(num); err != nil {
				return err
			}
		}
		result = num
		return nil
	})
	return result
}

// PromptIndex asks for a number in [min, max].
func PromptIndex(u ui.UI, prompter string, min, max int) int {
	var index int
	u.Info("%s:", prompter)
	u.Ask(func(input string) error {
		i, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || i < min || i > max {
			return fmt.Errorf("it should be any number from %d-%d", min, max)
		}
		index = i
		return nil
	})
	return index
}

// ActionPreview is what the operator is asked to confirm before signing.
type ActionPreview struct {
	Action  string
	From    common.Address
	Target  common.Address
	Token   string
	Value   *big.Int
	Details [][2]string
}

// PromptActionConfirmation shows p and asks to go on. Declining gives
// ErrUserRejected. With skip set nothing is asked.
func PromptActionConfirmation(u ui.UI, p ActionPreview, network networks.Network, skip bool) error {
	u.Section("Confirm before signing")
	rows := [][2]string{
		{"Action", p.Action},
		{"Network", network.GetName()},
		{"From", p.From.Hex()},
		{"Contract", p.Target.Hex()},
	}
	if p.Token != "" {
		rows = append(rows, [2]string{"Token", p.Token})
	}
	if p.Value != nil && p.Value.Sign() > 0 {
		rows = append(rows, [2]string{
			"Value",
			aucommon.FormatUnits(p.Value, network.GetNativeTokenDecimal()) + " " + network.GetNativeTokenSymbol(),
		})
	}
	rows = append(rows, p.Details...)
	u.KeyValue(rows)
	if p.Value != nil && p.Value.Sign() > 0 {
		u.Critical("This sends %s %s from your account.",
			aucommon.FormatUnits(p.Value, network.GetNativeTokenDecimal()), network.GetNativeTokenSymbol())
	}
	if skip {
		return nil
	}
	if !u.Confirm("Confirm?", true) {
		return aucommon.ErrUserRejected
	}
	return nil
}

// auctionSource lets sahilm/fuzzy search auctions by name and address.
type auctionSource []*aggregator.AuctionSnapshot

func (a auctionSource) Len() int {
	return len(a)
}

func (a auctionSource) String(i int) string {
	return strings.ToLower(a[i].Name() + " " + a[i].Address.Hex())
}

// PickAuction resolves hint against a listing. The hint is an auction
// address, a 1-based position like "#2", or a fuzzy match on the token
// name.
func PickAuction(snaps []*aggregator.AuctionSnapshot, hint string) (*aggregator.AuctionSnapshot, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return nil, fmt.Errorf("no auction given")
	}
	if IsAddress(hint) {
		addr := common.HexToAddress(hint)
		for _, s := range snaps {
			if s.Address == addr {
				return s, nil
			}
		}
		return nil, fmt.Errorf("auction %s is not listed by the factory", addr.Hex())
	}
	if strings.HasPrefix(hint, "#") {
		i, err := strconv.Atoi(hint[1:])
		if err != nil || i < 1 || i > len(snaps) {
			return nil, fmt.Errorf("there is no auction %s, the list has %d", hint, len(snaps))
		}
		return snaps[i-1], nil
	}
	matches := fuzzy.FindFrom(strings.ToLower(hint), auctionSource(snaps))
	if len(matches) == 0 {
		return nil, fmt.Errorf("no auction matches %q", hint)
	}
	return snaps[matches[0].Index], nil
}
