package util

import "github.com/tranvictor/auctioneer/ui"

// AuctionDisplay is the view-model of one auction. StyledText fields
// marshal as plain strings, so it doubles as the json output.
type AuctionDisplay struct {
	Address       string        `json:"address"`
	Name          string        `json:"name"`
	Collection    string        `json:"collection"`
	TokenID       string        `json:"token_id"`
	Image         string        `json:"image,omitempty"`
	Description   string        `json:"description,omitempty"`
	Seller        ui.StyledText `json:"seller"`
	Status        ui.StyledText `json:"status"`
	HighestBid    string        `json:"highest_bid"`
	HighestBidder ui.StyledText `json:"highest_bidder"`
	Increment     string        `json:"increment"`
	YourBid       string        `json:"your_bid,omitempty"`
	StartedAt     string        `json:"started_at,omitempty"`
	EndsAt        string        `json:"ends_at,omitempty"`
	Remaining     string        `json:"remaining,omitempty"`
	Duration      string        `json:"duration"`

	// Only set for a single auction looked at by a known account.
	Role    string   `json:"role,omitempty"`
	Actions []string `json:"actions,omitempty"`

	Provisional bool `json:"provisional,omitempty"`
}

type TokenDisplay struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	URI        string `json:"uri,omitempty"`
}

// OutcomeDisplay is the view-model of a confirmed action.
type OutcomeDisplay struct {
	Action      string        `json:"action"`
	Auction     string        `json:"auction,omitempty"`
	TokenID     string        `json:"token_id,omitempty"`
	TxHash      string        `json:"tx_hash,omitempty"`
	BlockNumber string        `json:"block_number,omitempty"`
	GasUsed     string        `json:"gas_used,omitempty"`
	Status      ui.StyledText `json:"status"`
	Warning     string        `json:"warning,omitempty"`
}
