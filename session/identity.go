package session

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is who we act as and where. Generation grows on every change,
// so two snapshots with the same generation are the same identity.
type Identity struct {
	Account    common.Address
	NetworkID  uint64
	Connected  bool
	Generation uint64
}

// Matches ignores the generation.
func (i Identity) Matches(o Identity) bool {
	return i.Account == o.Account && i.NetworkID == o.NetworkID && i.Connected == o.Connected
}

func (i Identity) HasAccount() bool {
	return i.Account != (common.Address{})
}

func (i Identity) String() string {
	state := "disconnected"
	if i.Connected {
		state = "connected"
	}
	return fmt.Sprintf("%s@%d (%s, gen %d)", i.Account.Hex(), i.NetworkID, state, i.Generation)
}
