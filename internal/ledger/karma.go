package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// Karma balance ledger. A single minter may create and destroy Karma; the
// sum of balances always equals minted minus burned.

// Minter returns the address allowed to mint and burn.
func (t *Tx) Minter() (types.Address, error) {
	return t.role(settingMinter)
}

// KarmaOwner returns the address allowed to reassign the minter.
func (t *Tx) KarmaOwner() (types.Address, error) {
	return t.role(settingKarmaOwner)
}

// SetMinter reassigns mint rights. Only the Karma owner may call it.
func (t *Tx) SetMinter(caller, minter types.Address) error {
	const op = "setMinter"
	owner, err := t.KarmaOwner()
	if err != nil {
		return err
	}
	if owner.IsZero() || caller != owner {
		return fail(CodeUnauthorized, op, "caller is not the karma owner")
	}
	if err := requireAddress(op, minter); err != nil {
		return err
	}
	if err := t.setSetting(settingMinter, string(minter)); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventConfig, Actor: caller, Subject: minter, Detail: "minter"})
}

func (t *Tx) requireMinter(op string, caller types.Address) error {
	minter, err := t.Minter()
	if err != nil {
		return err
	}
	if minter.IsZero() || caller != minter {
		return fail(CodeUnauthorized, op, "caller is not the minter")
	}
	return nil
}

// Mint credits amount to to. Only the minter may mint.
func (t *Tx) Mint(caller, to types.Address, amount *uint256.Int) error {
	const op = "mint"
	if err := t.requireMinter(op, caller); err != nil {
		return err
	}
	if err := requireAddress(op, to); err != nil {
		return err
	}
	amount = orZero(amount)
	if err := t.bumpCounter(op, counterMinted, amount); err != nil {
		return err
	}
	if err := t.credit(op, "karma", to, amount); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventMint, Actor: caller, Subject: to, Amount: amount})
}

// Burn destroys amount from from. Only the minter may burn.
func (t *Tx) Burn(caller, from types.Address, amount *uint256.Int) error {
	const op = "burn"
	if err := t.requireMinter(op, caller); err != nil {
		return err
	}
	amount = orZero(amount)
	if err := t.debit(op, "karma", CodeInsufficientBalance, from, amount); err != nil {
		return err
	}
	if err := t.bumpCounter(op, counterBurned, amount); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventBurn, Actor: caller, Subject: from, Amount: amount})
}

// Transfer moves amount from from to to.
func (t *Tx) Transfer(from, to types.Address, amount *uint256.Int) error {
	return t.move("transfer", from, to, orZero(amount))
}

// TransferFrom moves amount from owner to to on behalf of spender, using up
// the allowance owner granted spender. Allowance is checked before balance.
func (t *Tx) TransferFrom(spender, owner, to types.Address, amount *uint256.Int) error {
	const op = "transferFrom"
	amount = orZero(amount)
	allowance, err := t.Allowance(owner, spender)
	if err != nil {
		return err
	}
	remaining, err := sub(op, CodeInsufficientAllowance, allowance, amount)
	if err != nil {
		return err
	}
	if err := t.move(op, owner, to, amount); err != nil {
		return err
	}
	return t.setAllowance(owner, spender, remaining)
}

func (t *Tx) move(op string, from, to types.Address, amount *uint256.Int) error {
	if err := requireAddress(op, to); err != nil {
		return err
	}
	if err := t.debit(op, "karma", CodeInsufficientBalance, from, amount); err != nil {
		return err
	}
	if err := t.credit(op, "karma", to, amount); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventTransfer, Actor: from, Subject: to, Amount: amount})
}

// BalanceOf returns the Karma balance of addr, zero for unknown accounts.
func (t *Tx) BalanceOf(addr types.Address) (*uint256.Int, error) {
	return t.accountAmount("karma", addr)
}

// Allowance returns what spender may still move out of owner's balance.
func (t *Tx) Allowance(owner, spender types.Address) (*uint256.Int, error) {
	var b []byte
	err := t.queryRow(`SELECT amount FROM allowances WHERE owner = ? AND spender = ?`,
		string(owner), string(spender)).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return zero(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	return decodeAmount(b)
}

func (t *Tx) setAllowance(owner, spender types.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		_, err := t.exec(`DELETE FROM allowances WHERE owner = ? AND spender = ?`, string(owner), string(spender))
		if err != nil {
			return fmt.Errorf("clear allowance: %w", err)
		}
		return nil
	}
	_, err := t.exec(`INSERT INTO allowances (owner, spender, amount) VALUES (?, ?, ?)
		ON CONFLICT(owner, spender) DO UPDATE SET amount = excluded.amount`,
		string(owner), string(spender), encodeAmount(amount))
	if err != nil {
		return fmt.Errorf("write allowance: %w", err)
	}
	return nil
}

// Approve sets the allowance of spender over owner's balance to amount.
func (t *Tx) Approve(owner, spender types.Address, amount *uint256.Int) error {
	const op = "approve"
	if err := requireAddress(op, spender); err != nil {
		return err
	}
	amount = orZero(amount)
	if err := t.ensureAccount(owner); err != nil {
		return err
	}
	if err := t.setAllowance(owner, spender, amount); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventApproval, Actor: owner, Subject: spender, Amount: amount})
}

// IncreaseAllowance adds amount to spender's allowance.
func (t *Tx) IncreaseAllowance(owner, spender types.Address, amount *uint256.Int) error {
	const op = "increaseAllowance"
	if err := requireAddress(op, spender); err != nil {
		return err
	}
	cur, err := t.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next, err := add(op, cur, amount)
	if err != nil {
		return err
	}
	if err := t.ensureAccount(owner); err != nil {
		return err
	}
	if err := t.setAllowance(owner, spender, next); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventApproval, Actor: owner, Subject: spender, Amount: next})
}

// DecreaseAllowance subtracts amount from spender's allowance and fails with
// InsufficientAllowance rather than going below zero.
func (t *Tx) DecreaseAllowance(owner, spender types.Address, amount *uint256.Int) error {
	const op = "decreaseAllowance"
	cur, err := t.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next, err := sub(op, CodeInsufficientAllowance, cur, amount)
	if err != nil {
		return err
	}
	if err := t.setAllowance(owner, spender, next); err != nil {
		return err
	}
	return t.emit(types.Event{Kind: types.EventApproval, Actor: owner, Subject: spender, Amount: next})
}

// Supply reports minted, burned and circulating Karma.
func (t *Tx) Supply() (types.Supply, error) {
	minted, err := t.counter(counterMinted)
	if err != nil {
		return types.Supply{}, err
	}
	burned, err := t.counter(counterBurned)
	if err != nil {
		return types.Supply{}, err
	}
	total, err := sub("supply", CodeOverflow, minted, burned)
	if err != nil {
		return types.Supply{}, err
	}
	return types.Supply{Minted: minted, Burned: burned, Total: total}, nil
}

// TotalSupply is minted minus burned.
func (t *Tx) TotalSupply() (*uint256.Int, error) {
	s, err := t.Supply()
	if err != nil {
		return nil, err
	}
	return s.Total, nil
}
