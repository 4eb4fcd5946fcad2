package ledger

import (
	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// Params are the economic constants of a ledger instance.
type Params struct {
	// KarmaPerUnit is the Karma minted per unit of settlement currency.
	KarmaPerUnit *uint256.Int
	// MinStakeKarma is the balance a staker must hold.
	MinStakeKarma *uint256.Int
	// RelayFeeEstimate is the worst case fee of one relayed call. The
	// reserve must cover it before the call runs.
	RelayFeeEstimate *uint256.Int
	// The actual fee is RelayBaseFee + RelayByteFee × len(tx), capped at
	// RelayFeeEstimate.
	RelayBaseFee *uint256.Int
	RelayByteFee *uint256.Int
	// UserShareBps is the share of the fee the relayed account repays, in
	// basis points, converted to Karma at FeeKarmaRate per fee unit.
	UserShareBps uint64
	FeeKarmaRate *uint256.Int
	// MinReserve stays in the pool on withdrawAll.
	MinReserve *uint256.Int
	// KarmaScale is the number of decimals shown to humans.
	KarmaScale uint
	// MaxSearchLimit caps searchForUserName and content listings.
	MaxSearchLimit int
}

// DefaultParams returns the constants used when configuration is silent.
func DefaultParams() Params {
	return Params{
		KarmaPerUnit:     uint256.NewInt(1),
		MinStakeKarma:    uint256.NewInt(1),
		RelayFeeEstimate: uint256.NewInt(100_000),
		RelayBaseFee:     uint256.NewInt(21_000),
		RelayByteFee:     uint256.NewInt(16),
		UserShareBps:     5000,
		FeeKarmaRate:     uint256.NewInt(1),
		MinReserve:       new(uint256.Int),
		KarmaScale:       types.DefaultKarmaScale,
		MaxSearchLimit:   100,
	}
}

func (p *Params) fillDefaults() {
	def := DefaultParams()
	if p.KarmaPerUnit == nil {
		p.KarmaPerUnit = def.KarmaPerUnit
	}
	if p.MinStakeKarma == nil {
		p.MinStakeKarma = def.MinStakeKarma
	}
	if p.RelayFeeEstimate == nil {
		p.RelayFeeEstimate = def.RelayFeeEstimate
	}
	if p.RelayBaseFee == nil {
		p.RelayBaseFee = def.RelayBaseFee
	}
	if p.RelayByteFee == nil {
		p.RelayByteFee = def.RelayByteFee
	}
	if p.FeeKarmaRate == nil {
		p.FeeKarmaRate = def.FeeKarmaRate
	}
	if p.MinReserve == nil {
		p.MinReserve = def.MinReserve
	}
	if p.UserShareBps > 10_000 {
		p.UserShareBps = 10_000
	}
	if p.MaxSearchLimit <= 0 {
		p.MaxSearchLimit = def.MaxSearchLimit
	}
}

// karmaShare is the Karma a relayed account repays for fee.
func (p *Params) karmaShare(fee *uint256.Int) (*uint256.Int, error) {
	scaled, err := mul("relay share", fee, uint256.NewInt(p.UserShareBps))
	if err != nil {
		return nil, err
	}
	share := new(uint256.Int).Div(scaled, uint256.NewInt(10_000))
	return mul("relay share", share, p.FeeKarmaRate)
}

// Genesis seeds the roles and settlement balances of a fresh ledger.
type Genesis struct {
	// KarmaOwner may reassign the minter.
	KarmaOwner types.Address
	// PoolOwner configures the paymaster and withdraws its reserve.
	PoolOwner        types.Address
	TrustedForwarder types.Address
	RelayHub         types.Address
	// Settlement credits external currency so accounts can buy Karma.
	Settlement map[types.Address]*uint256.Int
}
