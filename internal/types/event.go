package types

import (
	"time"

	"github.com/holiman/uint256"
)

// EventKind tags an entry in the shared event log.
type EventKind string

const (
	EventMint          EventKind = "mint"
	EventBurn          EventKind = "burn"
	EventTransfer      EventKind = "transfer"
	EventApproval      EventKind = "approval"
	EventDeposit       EventKind = "deposit"
	EventWithdraw      EventKind = "withdraw"
	EventRelayFee      EventKind = "relay_fee"
	EventConfig        EventKind = "config"
	EventPublish       EventKind = "publish"
	EventEndorse       EventKind = "endorse"
	EventBuy           EventKind = "buy"
	EventReprice       EventKind = "reprice"
	EventStake         EventKind = "stake"
	EventUnstake       EventKind = "unstake"
	EventProfileUpdate EventKind = "profile_update"
)

// Event is one append-only log record. Actor is the effective sender,
// Subject the counterparty when there is one.
type Event struct {
	Seq     uint64       `json:"seq"`
	Kind    EventKind    `json:"kind"`
	Actor   Address      `json:"actor,omitempty"`
	Subject Address      `json:"subject,omitempty"`
	TokenID uint64       `json:"token_id,omitempty"`
	Amount  *uint256.Int `json:"amount,omitempty"`
	Detail  string       `json:"detail,omitempty"`
	Time    time.Time    `json:"time"`
}
