package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNotDeployed means an artifact has no address for the active network.
	// It is an expected condition that disables dependent actions.
	ErrNotDeployed = errors.New("contract is not deployed on this network")
	// ErrNonContractAddress is returned for addresses with empty bytecode.
	ErrNonContractAddress = errors.New("address has no deployed code")
	// ErrTokenNotFound is returned when ownerOf reverts for a token id.
	ErrTokenNotFound = errors.New("token does not exist")
	// ErrMetadataUnreachable is returned when the metadata document could not
	// be fetched at all.
	ErrMetadataUnreachable = errors.New("metadata is unreachable")
	// ErrValidationRejected is returned before any chain interaction when a
	// proposed action breaks a locally checked rule.
	ErrValidationRejected = errors.New("rejected by local validation")
	// ErrUserRejected is returned when the signer declined the transaction.
	ErrUserRejected = errors.New("transaction rejected by user")
	// ErrChainReverted is returned when a transaction reverted, either mined
	// or during pre-mining estimation.
	ErrChainReverted = errors.New("execution reverted")
	// ErrTransportFailure covers unreachable nodes and timeouts.
	ErrTransportFailure = errors.New("rpc transport failure")
	// ErrNoSession is returned by every call when no provider is usable.
	ErrNoSession = errors.New("no usable chain session")
	// ErrNotApproved is returned when the auction is not the approved spender
	// of its nft.
	ErrNotApproved = errors.New("nft is not approved for the auction")
)

// Rejected builds a validation error.
func Rejected(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationRejected, fmt.Sprintf(format, args...))
}

// RevertError carries the human readable revert reason, verbatim.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChainReverted}
	}
	return []error{ErrChainReverted, e.Err}
}

// ActionError decorates a failed auction action with what the operator needs
// to act on it.
type ActionError struct {
	Action  string
	Auction common.Address
	TokenID *big.Int
	Err     error
}

func (e *ActionError) Error() string {
	target := e.Auction.Hex()
	if e.TokenID != nil {
		target = fmt.Sprintf("%s (token #%s)", target, e.TokenID.String())
	}
	return fmt.Sprintf("%s on %s: %s", e.Action, target, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// ClassifyRPCError maps an error coming out of go-ethereum's rpc/ethclient
// onto the error taxonomy. Errors already classified are returned as is.
func ClassifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrNotDeployed, ErrNonContractAddress, ErrTokenNotFound,
		ErrMetadataUnreachable, ErrValidationRejected, ErrUserRejected,
		ErrChainReverted, ErrTransportFailure, ErrNoSession, ErrNotApproved,
		context.Canceled,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case 4001:
			return fmt.Errorf("%w: %w", ErrUserRejected, err)
		case 3:
			return &RevertError{Reason: RevertReason(err), Err: err}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user denied"),
		strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "rejected by user"):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case strings.Contains(msg, "revert"):
		return &RevertError{Reason: RevertReason(err), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}

// IsRevert reports whether err is a revert, whether or not it went through
// ClassifyRPCError.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChainReverted) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "nonexistent token")
}

// RevertReason extracts the revert reason embedded in err. It understands
// revert data attached to rpc errors, JSON payloads embedded in the message
// and plain "revert <reason>" text. It returns "" when none is present.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason := reasonFromData(dataErr.ErrorData()); reason != "" {
			return reason
		}
	}
	return reasonFromMessage(err.Error())
}

func reasonFromData(data interface{}) string {
	s, ok := data.(string)
	if !ok {
		return ""
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}

func reasonFromMessage(msg string) string {
	open := strings.Index(msg, "{")
	close := strings.LastIndex(msg, "}")
	if open >= 0 && close > open {
		payload := map[string]interface{}{}
		if json.Unmarshal([]byte(msg[open:close+1]), &payload) == nil {
			if inner := findMessage(payload); inner != "" {
				msg = inner
			}
		}
	}
	idx := strings.Index(msg, "revert")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimPrefix(msg[idx+len("revert"):], "ed")
	rest = strings.TrimLeft(rest, ": ")
	return strings.TrimSpace(rest)
}

func findMessage(payload map[string]interface{}) string {
	paths := [][]string{
		{"value", "data", "message"},
		{"data", "message"},
		{"originalError", "message"},
		{"message"},
	}
	for _, path := range paths {
		var cur interface{} = payload
		for _, key := range path {
			m, ok := cur.(map[string]interface{})
			if !ok {
				cur = nil
				break
			}
			cur = m[key]
		}
		if s, ok := cur.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
