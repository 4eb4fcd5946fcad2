package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"karmastakes.app/stakes/internal/types"
)

// StakeUser adds the edge from→target. The staker must hold MinStakeKarma,
// plus the worst case relay share when the call is sponsored. A repeated
// stake is a no-op.
func (t *Tx) StakeUser(from, target types.Address) error {
	const op = "stakeUser"
	if err := requireAddress(op, from, target); err != nil {
		return err
	}
	need := t.params.MinStakeKarma
	if t.Sponsored() {
		share, err := t.params.WorstCaseKarmaShare()
		if err != nil {
			return err
		}
		if need, err = add(op, need, share); err != nil {
			return err
		}
	}
	balance, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Lt(need) {
		return fail(CodeInsufficientKarma, op, "balance %s below stake minimum %s", balance.Dec(), need.Dec())
	}

	res, err := t.exec(`INSERT INTO stakes (staker, target) VALUES (?, ?) ON CONFLICT(staker, target) DO NOTHING`,
		string(from), string(target))
	if err != nil {
		return fmt.Errorf("insert stake: %w", err)
	}
	if err := t.markConnected(from, target); err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return t.emit(types.Event{Kind: types.EventStake, Actor: from, Subject: target})
}

// UnstakeUser removes the edge from→target if it exists.
func (t *Tx) UnstakeUser(from, target types.Address) error {
	res, err := t.exec(`DELETE FROM stakes WHERE staker = ? AND target = ?`, string(from), string(target))
	if err != nil {
		return fmt.Errorf("delete stake: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return t.emit(types.Event{Kind: types.EventUnstake, Actor: from, Subject: target})
}

// IncomingStakes counts the distinct accounts staking addr.
func (t *Tx) IncomingStakes(addr types.Address) (uint64, error) {
	var n int64
	if err := t.queryRow(`SELECT count(*) FROM stakes WHERE target = ?`, string(addr)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count incoming stakes: %w", err)
	}
	return uint64(n), nil
}

// OutgoingStakes lists the accounts addr stakes, oldest stake first.
func (t *Tx) OutgoingStakes(addr types.Address) ([]types.Address, error) {
	rows, err := t.query(`SELECT target FROM stakes WHERE staker = ? ORDER BY id`, string(addr))
	if err != nil {
		return nil, fmt.Errorf("query outgoing stakes: %w", err)
	}
	defer rows.Close()

	out := []types.Address{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		out = append(out, types.Address(target))
	}
	return out, rows.Err()
}

// UpdateUserData stores the display name and avatar reference of from as
// given. An empty name is accepted here.
func (t *Tx) UpdateUserData(from types.Address, name string, pic types.Picture) error {
	const op = "updateUserData"
	if err := requireAddress(op, from); err != nil {
		return err
	}
	if err := t.ensureAccount(from); err != nil {
		return err
	}
	_, err := t.exec(`UPDATE accounts SET name = ?, pic_cid = ?, pic_media_type = ?, has_profile = 1, connected = 1
		WHERE address = ?`, name, pic.CID, pic.MediaType, string(from))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return t.emit(types.Event{Kind: types.EventProfileUpdate, Actor: from, Detail: name})
}

type profileRow struct {
	name, cid, media string
	connected        bool
}

func (t *Tx) profile(addr types.Address) (profileRow, error) {
	var (
		p         profileRow
		connected int
	)
	err := t.queryRow(`SELECT name, pic_cid, pic_media_type, connected FROM accounts WHERE address = ?`,
		string(addr)).Scan(&p.name, &p.cid, &p.media, &connected)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	p.connected = connected != 0
	return p, nil
}

// UserName is the display name of addr, empty for unknown accounts.
func (t *Tx) UserName(addr types.Address) (string, error) {
	p, err := t.profile(addr)
	return p.name, err
}

// UserPic is the avatar reference of addr, empty for unknown accounts.
func (t *Tx) UserPic(addr types.Address) (types.Picture, error) {
	p, err := t.profile(addr)
	return types.Picture{CID: p.cid, MediaType: p.media}, err
}

// UserHasConnected reports whether addr ever staked, was staked or set a
// profile.
func (t *Tx) UserHasConnected(addr types.Address) (bool, error) {
	p, err := t.profile(addr)
	return p.connected, err
}

// UserData gathers the profile and stake counts of addr.
func (t *Tx) UserData(addr types.Address) (types.Profile, error) {
	p, err := t.profile(addr)
	if err != nil {
		return types.Profile{}, err
	}
	in, err := t.IncomingStakes(addr)
	if err != nil {
		return types.Profile{}, err
	}
	var out int64
	if err := t.queryRow(`SELECT count(*) FROM stakes WHERE staker = ?`, string(addr)).Scan(&out); err != nil {
		return types.Profile{}, fmt.Errorf("count outgoing stakes: %w", err)
	}
	return types.Profile{
		Address:   addr,
		Name:      p.name,
		Picture:   types.Picture{CID: p.cid, MediaType: p.media},
		Connected: p.connected,
		Incoming:  in,
		Outgoing:  uint64(out),
	}, nil
}

// SearchForUserName returns accounts whose name contains query, case
// sensitive, in account creation order. offset matches are skipped and at
// most limit are returned, never more than MaxSearchLimit.
func (t *Tx) SearchForUserName(query string, offset, limit int) ([]types.Address, error) {
	if limit <= 0 {
		return []types.Address{}, nil
	}
	if limit > t.params.MaxSearchLimit {
		limit = t.params.MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	// instr is byte-wise, unlike LIKE which folds ASCII case.
	rows, err := t.query(`SELECT address FROM accounts WHERE has_profile = 1 AND instr(name, ?) > 0
		ORDER BY seq LIMIT ? OFFSET ?`, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	defer rows.Close()

	out := []types.Address{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, types.Address(addr))
	}
	return out, rows.Err()
}
