package ledger

import (
	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// Paymaster pool. Settlement currency paid into buyKarma accumulates in the
// reserve; relayed calls are paid for out of the reserve and the relayed
// account repays a configured share in Karma.

type sponsorship struct {
	forwarder types.Address
}

// PoolOwner returns the account that configures the pool.
func (t *Tx) PoolOwner() (types.Address, error) {
	return t.role(settingPoolOwner)
}

// TrustedForwarder returns the only forwarder whose relays are sponsored.
func (t *Tx) TrustedForwarder() (types.Address, error) {
	return t.role(settingTrustedForwarder)
}

// RelayHub returns the account relay fees are paid to.
func (t *Tx) RelayHub() (types.Address, error) {
	return t.role(settingRelayHub)
}

// Reserve is the settlement currency held by the pool.
func (t *Tx) Reserve() (*uint256.Int, error) {
	return t.counter(counterReserve)
}

// SettlementOf returns the external currency balance of addr.
func (t *Tx) SettlementOf(addr types.Address) (*uint256.Int, error) {
	return t.accountAmount("settlement", addr)
}

func (t *Tx) requirePoolOwner(op string, caller types.Address) error {
	owner, err := t.PoolOwner()
	if err != nil {
		return err
	}
	if owner.IsZero() || caller != owner {
		return fail(CodeUnauthorized, op, "caller is not the pool owner")
	}
	return nil
}

// BuyKarma pays value settlement units from from into the reserve and mints
// value × KarmaPerUnit Karma to from. The pool mints as PaymasterAddress, so
// it must hold the minter role. It returns the minted amount.
func (t *Tx) BuyKarma(from types.Address, value *uint256.Int) (*uint256.Int, error) {
	const op = "buyKarma"
	value = orZero(value)
	if err := requireAddress(op, from); err != nil {
		return nil, err
	}
	karma, err := mul(op, value, t.params.KarmaPerUnit)
	if err != nil {
		return nil, err
	}
	if err := t.debit(op, "settlement", CodeInsufficientBalance, from, value); err != nil {
		return nil, err
	}
	if err := t.bumpCounter(op, counterReserve, value); err != nil {
		return nil, err
	}
	if err := t.emit(types.Event{Kind: types.EventDeposit, Actor: from, Subject: types.PaymasterAddress, Amount: value}); err != nil {
		return nil, err
	}
	if err := t.Mint(types.PaymasterAddress, from, karma); err != nil {
		return nil, err
	}
	return karma, nil
}

// WithdrawAll moves the unobligated reserve, everything above MinReserve, to
// the pool owner's settlement balance and returns the amount moved.
func (t *Tx) WithdrawAll(caller types.Address) (*uint256.Int, error) {
	const op = "withdrawAll"
	if err := t.requirePoolOwner(op, caller); err != nil {
		return nil, err
	}
	reserve, err := t.Reserve()
	if err != nil {
		return nil, err
	}
	available := zero()
	if reserve.Gt(t.params.MinReserve) {
		available = new(uint256.Int).Sub(reserve, t.params.MinReserve)
	}
	if available.IsZero() {
		return available, nil
	}
	if err := t.dropCounter(op, CodeReserveExhausted, counterReserve, available); err != nil {
		return nil, err
	}
	if err := t.creditSettlement(op, caller, available); err != nil {
		return nil, err
	}
	if err := t.emit(types.Event{Kind: types.EventWithdraw, Actor: caller, Amount: available}); err != nil {
		return nil, err
	}
	return available, nil
}

// SetRelayHub sets the fee recipient. Owner only.
func (t *Tx) SetRelayHub(caller, hub types.Address) error {
	return t.setPoolRole("setRelayHub", settingRelayHub, caller, hub)
}

// SetTrustedForwarder sets the forwarder whose relays are honoured. Owner only.
func (t *Tx) SetTrustedForwarder(caller, forwarder types.Address) error {
	return t.setPoolRole("setTrustedForwarder", settingTrustedForwarder, caller, forwarder)
}

func (t *Tx) setPoolRole(op, key string, caller, addr types.Address) error {
	if err := t.requirePoolOwner(op, caller); err != nil {
		return err
	}
	if err := requireAddress(op, addr); err != nil {
		return err
	}
	if err := t.setSetting(key, string(addr)); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventConfig, Actor: caller, Subject: addr, Detail: key})
}

// Sponsor admits a relayed call. It must run before the call touches any
// state: the forwarder must be the trusted one and the reserve must cover
// the worst case fee.
func (t *Tx) Sponsor(forwarder types.Address) error {
	const op = "sponsor"
	trusted, err := t.TrustedForwarder()
	if err != nil {
		return err
	}
	if trusted.IsZero() || forwarder != trusted {
		return fail(CodeUntrustedForwarder, op, "forwarder %s is not trusted", forwarder.Short())
	}
	reserve, err := t.Reserve()
	if err != nil {
		return err
	}
	if reserve.Lt(t.params.RelayFeeEstimate) {
		return fail(CodeReserveExhausted, op, "reserve %s below fee estimate %s",
			reserve.Dec(), t.params.RelayFeeEstimate.Dec())
	}
	t.sponsor = &sponsorship{forwarder: forwarder}
	return nil
}

// Sponsored reports whether the running call is a sponsored relay.
func (t *Tx) Sponsored() bool {
	return t.sponsor != nil
}

// RelayFee is the fee charged for a relayed transaction of size bytes,
// never more than RelayFeeEstimate.
func (p *Params) RelayFee(size int) *uint256.Int {
	if size < 0 {
		size = 0
	}
	bytesFee, overflow := new(uint256.Int).MulOverflow(p.RelayByteFee, uint256.NewInt(uint64(size)))
	if overflow {
		return p.RelayFeeEstimate.Clone()
	}
	fee, overflow := new(uint256.Int).AddOverflow(p.RelayBaseFee, bytesFee)
	if overflow {
		return p.RelayFeeEstimate.Clone()
	}
	return minAmount(fee, p.RelayFeeEstimate)
}

// WorstCaseKarmaShare is the most Karma a relayed account can owe for one call.
func (p *Params) WorstCaseKarmaShare() (*uint256.Int, error) {
	return p.karmaShare(p.RelayFeeEstimate)
}

// ChargeRelay settles a sponsored call after it ran. The fee leaves the
// reserve for the relay hub (or the forwarder when no hub is set) and the
// sender repays its Karma share through an allowance granted to
// PaymasterAddress. A sender that cannot repay fails the whole call.
func (t *Tx) ChargeRelay(sender types.Address, size int) (types.RelayFee, error) {
	const op = "chargeRelay"
	if t.sponsor == nil {
		return types.RelayFee{}, fail(CodeUntrustedForwarder, op, "call was not sponsored")
	}
	fee := t.params.RelayFee(size)
	if err := t.dropCounter(op, CodeReserveExhausted, counterReserve, fee); err != nil {
		return types.RelayFee{}, err
	}

	payee, err := t.RelayHub()
	if err != nil {
		return types.RelayFee{}, err
	}
	if payee.IsZero() {
		payee = t.sponsor.forwarder
	}
	if err := t.creditSettlement(op, payee, fee); err != nil {
		return types.RelayFee{}, err
	}
	if err := t.bumpCounter(op, counterFeesPaid, fee); err != nil {
		return types.RelayFee{}, err
	}

	share, err := t.params.karmaShare(fee)
	if err != nil {
		return types.RelayFee{}, err
	}
	if !share.IsZero() {
		if err := t.TransferFrom(types.PaymasterAddress, sender, types.PaymasterAddress, share); err != nil {
			return types.RelayFee{}, err
		}
		if err := t.bumpCounter(op, counterKarmaCollected, share); err != nil {
			return types.RelayFee{}, err
		}
	}

	if err := t.emit(types.Event{Kind: types.EventRelayFee, Actor: sender, Subject: payee, Amount: fee,
		Detail: "karma share " + share.Dec()}); err != nil {
		return types.RelayFee{}, err
	}
	t.sponsor = nil
	return types.RelayFee{Fee: fee, KarmaShare: share, PaidTo: payee}, nil
}

// Pool returns the public state of the paymaster.
func (t *Tx) Pool() (types.PoolState, error) {
	var (
		st  types.PoolState
		err error
	)
	if st.Owner, err = t.PoolOwner(); err != nil {
		return st, err
	}
	if st.TrustedForwarder, err = t.TrustedForwarder(); err != nil {
		return st, err
	}
	if st.RelayHub, err = t.RelayHub(); err != nil {
		return st, err
	}
	if st.Minter, err = t.Minter(); err != nil {
		return st, err
	}
	if st.Reserve, err = t.Reserve(); err != nil {
		return st, err
	}
	if st.FeesPaid, err = t.counter(counterFeesPaid); err != nil {
		return st, err
	}
	if st.KarmaCollected, err = t.counter(counterKarmaCollected); err != nil {
		return st, err
	}
	return st, nil
}
