package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// Tx is one ledger transaction. Operations take the effective sender as an
// explicit argument; only the relay gateway passes a sender other than the
// transport caller.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	params   *Params
	now      time.Time
	readOnly bool
	events   []types.Event

	// sponsor is set while a relayed call runs.
	sponsor *sponsorship
}

var errReadOnly = errors.New("ledger: write in read-only view")

// Params returns the constants in force for this transaction.
func (t *Tx) Params() Params { return *t.params }

// Events returns the events emitted so far.
func (t *Tx) Events() []types.Event { return t.events }

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

func (t *Tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

func (t *Tx) setting(key string) (string, error) {
	var v string
	err := t.queryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return v, nil
}

func (t *Tx) setSetting(key, value string) error {
	_, err := t.exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (t *Tx) role(key string) (types.Address, error) {
	v, err := t.setting(key)
	return types.Address(v), err
}

func (t *Tx) counter(name string) (*uint256.Int, error) {
	var b []byte
	err := t.queryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return zero(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read counter %s: %w", name, err)
	}
	return decodeAmount(b)
}

func (t *Tx) setCounter(name string, v *uint256.Int) error {
	_, err := t.exec(`INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, encodeAmount(v))
	if err != nil {
		return fmt.Errorf("write counter %s: %w", name, err)
	}
	return nil
}

func (t *Tx) bumpCounter(op, name string, delta *uint256.Int) error {
	cur, err := t.counter(name)
	if err != nil {
		return err
	}
	next, err := add(op, cur, delta)
	if err != nil {
		return err
	}
	return t.setCounter(name, next)
}

func (t *Tx) dropCounter(op string, code Code, name string, delta *uint256.Int) error {
	cur, err := t.counter(name)
	if err != nil {
		return err
	}
	next, err := sub(op, code, cur, delta)
	if err != nil {
		return err
	}
	return t.setCounter(name, next)
}

// ensureAccount creates addr lazily. Accounts are never removed.
func (t *Tx) ensureAccount(addr types.Address) error {
	_, err := t.exec(`INSERT INTO accounts (address, karma, settlement) VALUES (?, ?, ?)
		ON CONFLICT(address) DO NOTHING`, string(addr), encodeAmount(nil), encodeAmount(nil))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (t *Tx) accountAmount(column string, addr types.Address) (*uint256.Int, error) {
	var b []byte
	err := t.queryRow(`SELECT `+column+` FROM accounts WHERE address = ?`, string(addr)).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return zero(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", column, err)
	}
	return decodeAmount(b)
}

func (t *Tx) setAccountAmount(column string, addr types.Address, v *uint256.Int) error {
	if err := t.ensureAccount(addr); err != nil {
		return err
	}
	if _, err := t.exec(`UPDATE accounts SET `+column+` = ? WHERE address = ?`, encodeAmount(v), string(addr)); err != nil {
		return fmt.Errorf("write %s: %w", column, err)
	}
	return nil
}

func (t *Tx) credit(op, column string, addr types.Address, amount *uint256.Int) error {
	cur, err := t.accountAmount(column, addr)
	if err != nil {
		return err
	}
	next, err := add(op, cur, amount)
	if err != nil {
		return err
	}
	return t.setAccountAmount(column, addr, next)
}

func (t *Tx) debit(op, column string, code Code, addr types.Address, amount *uint256.Int) error {
	cur, err := t.accountAmount(column, addr)
	if err != nil {
		return err
	}
	next, err := sub(op, code, cur, amount)
	if err != nil {
		return err
	}
	return t.setAccountAmount(column, addr, next)
}

func (t *Tx) creditSettlement(op string, addr types.Address, amount *uint256.Int) error {
	return t.credit(op, "settlement", addr, amount)
}

func (t *Tx) markConnected(addrs ...types.Address) error {
	for _, a := range addrs {
		if err := t.ensureAccount(a); err != nil {
			return err
		}
		if _, err := t.exec(`UPDATE accounts SET connected = 1 WHERE address = ?`, string(a)); err != nil {
			return fmt.Errorf("mark connected: %w", err)
		}
	}
	return nil
}

func requireAddress(op string, addrs ...types.Address) error {
	for _, a := range addrs {
		if !a.Valid() {
			return fail(CodeInvalidAddress, op, "%q", a)
		}
	}
	return nil
}
