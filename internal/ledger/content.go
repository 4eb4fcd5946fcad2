package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// Content registry. Every item has exactly one owner; payment for a sale and
// the change of owner commit together.

const contentColumns = `token_id, body, price, karma, creator, owner`

func scanContent(row interface{ Scan(...any) error }) (types.ContentItem, error) {
	var (
		item           types.ContentItem
		id             int64
		price, karma   []byte
		creator, owner string
		err            error
	)
	if err = row.Scan(&id, &item.Text, &price, &karma, &creator, &owner); err != nil {
		return item, err
	}
	item.ID = uint64(id)
	item.Creator = types.Address(creator)
	item.Owner = types.Address(owner)
	if item.Price, err = decodeAmount(price); err != nil {
		return item, err
	}
	if item.Karma, err = decodeAmount(karma); err != nil {
		return item, err
	}
	return item, nil
}

// Publish mints a new item owned by from and returns its token id.
func (t *Tx) Publish(from types.Address, text string, price *uint256.Int) (uint64, error) {
	const op = "publish"
	if text == "" {
		return 0, fail(CodeEmptyContent, op, "content text is empty")
	}
	if err := requireAddress(op, from); err != nil {
		return 0, err
	}
	price = orZero(price)
	if err := t.ensureAccount(from); err != nil {
		return 0, err
	}
	res, err := t.exec(`INSERT INTO content (body, price, karma, creator, owner) VALUES (?, ?, ?, ?, ?)`,
		text, encodeAmount(price), encodeAmount(nil), string(from), string(from))
	if err != nil {
		return 0, fmt.Errorf("insert content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("content id: %w", err)
	}
	if err := t.emit(types.Event{Kind: types.EventPublish, Actor: from, TokenID: uint64(id), Amount: price}); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Content returns item id, or NoSuchToken.
func (t *Tx) Content(id uint64) (types.ContentItem, error) {
	item, err := scanContent(t.queryRow(`SELECT `+contentColumns+` FROM content WHERE token_id = ?`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return item, fail(CodeNoSuchToken, "content", "token %d", id)
	}
	if err != nil {
		return item, fmt.Errorf("read content: %w", err)
	}
	return item, nil
}

// OwnerOf returns the owner of item id, or NoSuchToken.
func (t *Tx) OwnerOf(id uint64) (types.Address, error) {
	item, err := t.Content(id)
	if err != nil {
		return "", err
	}
	return item.Owner, nil
}

// AddKarmaTo endorses item id: amount Karma moves from from to the item's
// owner through the allowance from granted ContentAddress, and the item's
// score grows by amount.
func (t *Tx) AddKarmaTo(from types.Address, id uint64, amount *uint256.Int) error {
	const op = "addKarmaTo"
	amount = orZero(amount)
	item, err := t.Content(id)
	if err != nil {
		return err
	}
	if err := t.TransferFrom(types.ContentAddress, from, item.Owner, amount); err != nil {
		return err
	}
	score, err := add(op, item.Karma, amount)
	if err != nil {
		return err
	}
	if _, err := t.exec(`UPDATE content SET karma = ? WHERE token_id = ?`, encodeAmount(score), int64(id)); err != nil {
		return fmt.Errorf("update content score: %w", err)
	}
	return t.emit(types.Event{Kind: types.EventEndorse, Actor: from, Subject: item.Owner, TokenID: id, Amount: amount})
}

// BuyContent pays the current price to the owner and makes from the owner.
// Buying an item one already owns moves no Karma but still requires the
// allowance.
func (t *Tx) BuyContent(from types.Address, id uint64) error {
	item, err := t.Content(id)
	if err != nil {
		return err
	}
	if err := t.TransferFrom(types.ContentAddress, from, item.Owner, item.Price); err != nil {
		return err
	}
	if _, err := t.exec(`UPDATE content SET owner = ? WHERE token_id = ?`, string(from), int64(id)); err != nil {
		return fmt.Errorf("update content owner: %w", err)
	}
	return t.emit(types.Event{Kind: types.EventBuy, Actor: from, Subject: item.Owner, TokenID: id, Amount: item.Price})
}

// SetPrice changes the price of item id. Only its owner may.
func (t *Tx) SetPrice(from types.Address, id uint64, price *uint256.Int) error {
	const op = "setPrice"
	price = orZero(price)
	item, err := t.Content(id)
	if err != nil {
		return err
	}
	if from != item.Owner {
		return fail(CodeUnauthorized, op, "token %d is owned by %s", id, item.Owner.Short())
	}
	if _, err := t.exec(`UPDATE content SET price = ? WHERE token_id = ?`, encodeAmount(price), int64(id)); err != nil {
		return fmt.Errorf("update content price: %w", err)
	}
	return t.emit(types.Event{Kind: types.EventReprice, Actor: from, TokenID: id, Amount: price})
}

// ContentBalanceOf counts the items owned by owner.
func (t *Tx) ContentBalanceOf(owner types.Address) (uint64, error) {
	var n int64
	if err := t.queryRow(`SELECT count(*) FROM content WHERE owner = ?`, string(owner)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return uint64(n), nil
}

// TokenOfOwnerByIndex returns the index-th token of owner, tokens ordered by
// id. An index past the end is NoSuchToken.
func (t *Tx) TokenOfOwnerByIndex(owner types.Address, index uint64) (uint64, error) {
	var id int64
	err := t.queryRow(`SELECT token_id FROM content WHERE owner = ? ORDER BY token_id LIMIT 1 OFFSET ?`,
		string(owner), int64(index)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fail(CodeNoSuchToken, "tokenOfOwnerByIndex", "%s has no token at index %d", owner.Short(), index)
	}
	if err != nil {
		return 0, fmt.Errorf("read owner token: %w", err)
	}
	return uint64(id), nil
}

// ContentCount is the number of items ever published.
func (t *Tx) ContentCount() (uint64, error) {
	var n int64
	if err := t.queryRow(`SELECT count(*) FROM content`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return uint64(n), nil
}

// ListContent pages through the registry. OrderByKarma lists the highest
// score first with ties broken by id.
func (t *Tx) ListContent(q types.ContentQuery) ([]types.ContentItem, error) {
	limit := q.Limit
	if limit <= 0 || limit > t.params.MaxSearchLimit {
		limit = t.params.MaxSearchLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + contentColumns + ` FROM content`
	var args []any
	if !q.Owner.IsZero() {
		query += ` WHERE owner = ?`
		args = append(args, string(q.Owner))
	}
	switch q.Order {
	case types.OrderByKarma:
		query += ` ORDER BY karma DESC, token_id`
	default:
		query += ` ORDER BY token_id`
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	items := []types.ContentItem{}
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
