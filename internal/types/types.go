// Package types defines the core domain models for the Karma Stakes ledger.
// It contains account addresses, content records, profile data and the
// read models returned by the ledger and the HTTP API.
package types

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"
)

// Version is the current version of the ledger daemon
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// AddressLength is the length of a hex encoded address.
const AddressLength = 64

// Address identifies an account. It is the lowercase hex encoding of an
// ed25519 public key, or of a module digest for the built-in components.
// The empty Address is the zero address.
type Address string

// Module addresses act as callers and spenders for the ledger components.
var (
	PaymasterAddress = ModuleAddress("paymaster")
	ContentAddress   = ModuleAddress("content")
	StakeAddress     = ModuleAddress("stake")
)

// ModuleAddress derives the address of a built-in component.
func ModuleAddress(name string) Address {
	sum := sha256.Sum256([]byte("module:" + name))
	return Address(hex.EncodeToString(sum[:]))
}

// AddressFromPublicKey returns the account address of an ed25519 key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(hex.EncodeToString(pub))
}

// ParseAddress normalizes and validates a user supplied address.
func ParseAddress(s string) (Address, bool) {
	a := Address(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// Valid reports whether a is a well formed, non-zero address.
func (a Address) Valid() bool {
	if len(a) != AddressLength {
		return false
	}
	for i := 0; i < len(a); i++ {
		c := a[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }

// Short returns an abbreviated form for log lines.
func (a Address) Short() string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:8]) + ".." + string(a[len(a)-4:])
}

// ContentItem is a uniquely owned, priced, endorsable piece of text.
type ContentItem struct {
	ID      uint64       `json:"id"`
	Text    string       `json:"text"`
	Price   *uint256.Int `json:"price"`
	Karma   *uint256.Int `json:"karma"` // accumulated endorsement score
	Creator Address      `json:"creator"`
	Owner   Address      `json:"owner"`
}

// ContentOrder selects the sort order of a content listing.
type ContentOrder string

const (
	OrderByID    ContentOrder = "id"
	OrderByKarma ContentOrder = "karma"
)

// ContentQuery filters and pages a content listing.
type ContentQuery struct {
	Order  ContentOrder
	Owner  Address
	Offset int
	Limit  int
}

// Picture references an avatar held in a content addressed blob store.
type Picture struct {
	CID       string `json:"cid"`
	MediaType string `json:"media_type"`
}

// Profile is the display data of an account.
type Profile struct {
	Address   Address `json:"address"`
	Name      string  `json:"name"`
	Picture   Picture `json:"picture"`
	Connected bool    `json:"connected"`
	Incoming  uint64  `json:"incoming_stakes"`
	Outgoing  uint64  `json:"outgoing_stakes"`
}

// Supply summarizes Karma issuance.
type Supply struct {
	Minted *uint256.Int `json:"minted"`
	Burned *uint256.Int `json:"burned"`
	Total  *uint256.Int `json:"total"`
}

// PoolState is the public view of the paymaster pool.
type PoolState struct {
	Owner            Address      `json:"owner"`
	TrustedForwarder Address      `json:"trusted_forwarder"`
	RelayHub         Address      `json:"relay_hub"`
	Minter           Address      `json:"minter"`
	Reserve          *uint256.Int `json:"reserve"`
	FeesPaid         *uint256.Int `json:"fees_paid"`
	KarmaCollected   *uint256.Int `json:"karma_collected"`
}

// RelayFee records what a sponsored call cost.
type RelayFee struct {
	Fee        *uint256.Int `json:"fee"`
	KarmaShare *uint256.Int `json:"karma_share"`
	PaidTo     Address      `json:"paid_to"`
}

// Contracts is the handle returned by connect: the addresses a client needs
// to approve spenders and recognise module callers.
type Contracts struct {
	Minter    Address `json:"minter"`
	Paymaster Address `json:"paymaster"`
	Content   Address `json:"content"`
	Stake     Address `json:"stake"`
	Forwarder Address `json:"forwarder"`
}

// Connection is the ledger state returned for an identity on connect.
type Connection struct {
	Address      Address      `json:"address"`
	Balance      *uint256.Int `json:"balance"`
	BalanceHuman string       `json:"balance_human"`
	Settlement   *uint256.Int `json:"settlement"`
	Connected    bool         `json:"connected"`
	Contracts    Contracts    `json:"contracts"`
}

// AuditReport is the result of checking the accounting invariants.
type AuditReport struct {
	OK               bool         `json:"ok"`
	KarmaSum         *uint256.Int `json:"karma_sum"`
	Supply           *uint256.Int `json:"supply"`
	SettlementSum    *uint256.Int `json:"settlement_sum"`
	Reserve          *uint256.Int `json:"reserve"`
	SettlementIssued *uint256.Int `json:"settlement_issued"`
	Accounts         int          `json:"accounts"`
	ContentItems     int          `json:"content_items"`
	Problems         []string     `json:"problems,omitempty"`
}
