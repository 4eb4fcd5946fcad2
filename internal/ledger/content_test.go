package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

func publish(t *testing.T, s *Store, from types.Address, text string, price uint64) uint64 {
	t.Helper()
	var id uint64
	mustUpdate(t, s, func(tx *Tx) error {
		var err error
		id, err = tx.Publish(from, text, amount(price))
		return err
	})
	return id
}

func content(t *testing.T, s *Store, id uint64) types.ContentItem {
	t.Helper()
	var item types.ContentItem
	mustView(t, s, func(tx *Tx) error {
		var err error
		item, err = tx.Content(id)
		return err
	})
	return item
}

// X holds 50,000 and publishes at 5,000; Y buys it after approving the
// registry.
func TestPublishAndBuyScenario(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	mint(t, s, x, 50_000)
	mint(t, s, y, 50_000)

	id := publish(t, s, x, "first post", 5_000)
	assert.Equal(t, uint64(1), id)

	item := content(t, s, id)
	assert.Equal(t, uint64(5_000), item.Price.Uint64())
	assert.True(t, item.Karma.IsZero())
	assert.Equal(t, x, item.Creator)
	assert.Equal(t, x, item.Owner)

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.IncreaseAllowance(y, types.ContentAddress, amount(5_000))
	})
	mustUpdate(t, s, func(tx *Tx) error { return tx.BuyContent(y, id) })

	item = content(t, s, id)
	assert.Equal(t, y, item.Owner)
	assert.Equal(t, x, item.Creator)
	assert.Equal(t, uint64(55_000), balance(t, s, x))
	assert.Equal(t, uint64(45_000), balance(t, s, y))
	requireAuditOK(t, s)
}

func TestPublishRejectsEmptyText(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	_, err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.Publish(account("x"), "", amount(1))
		return err
	})
	require.ErrorIs(t, err, ErrEmptyContent)

	mustView(t, s, func(tx *Tx) error {
		n, err := tx.ContentCount()
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
}

func TestBuyContentWithoutAllowanceChangesNothing(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	mint(t, s, y, 10_000)
	id := publish(t, s, x, "for sale", 5_000)

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.IncreaseAllowance(y, types.ContentAddress, amount(4_999))
	})
	_, err := s.Update(context.Background(), func(tx *Tx) error { return tx.BuyContent(y, id) })
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	assert.Equal(t, x, content(t, s, id).Owner)
	assert.Equal(t, uint64(10_000), balance(t, s, y))
	assert.Zero(t, balance(t, s, x))
}

func TestBuyContentUnknownToken(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	_, err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.BuyContent(account("y"), 99)
	})
	require.ErrorIs(t, err, ErrNoSuchToken)

	err = s.View(context.Background(), func(tx *Tx) error {
		_, err := tx.OwnerOf(99)
		return err
	})
	require.ErrorIs(t, err, ErrNoSuchToken)
}

func TestSetPriceRoundTripAndUnauthorized(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	id := publish(t, s, x, "priced", 10)

	mustUpdate(t, s, func(tx *Tx) error { return tx.SetPrice(x, id, amount(777)) })
	assert.Equal(t, uint64(777), content(t, s, id).Price.Uint64())

	_, err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.SetPrice(y, id, amount(1))
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint64(777), content(t, s, id).Price.Uint64())
}

func TestAddKarmaToPaysOwnerAndRaisesScore(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	mint(t, s, y, 100)
	id := publish(t, s, x, "endorse me", 0)

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.IncreaseAllowance(y, types.ContentAddress, amount(60))
	})
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, id, amount(25)) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, id, amount(25)) })

	assert.Equal(t, uint64(50), content(t, s, id).Karma.Uint64())
	assert.Equal(t, uint64(50), balance(t, s, x))

	// Only 10 left in the allowance.
	_, err := s.Update(context.Background(), func(tx *Tx) error { return tx.AddKarmaTo(y, id, amount(11)) })
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, uint64(50), content(t, s, id).Karma.Uint64())

	_, err = s.Update(context.Background(), func(tx *Tx) error { return tx.AddKarmaTo(y, 42, amount(1)) })
	require.ErrorIs(t, err, ErrNoSuchToken)
	requireAuditOK(t, s)
}

func TestScoreSurvivesSale(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	mint(t, s, y, 100)
	id := publish(t, s, x, "keeps its karma", 10)
	mustUpdate(t, s, func(tx *Tx) error {
		return tx.IncreaseAllowance(y, types.ContentAddress, amount(30))
	})
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, id, amount(20)) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.BuyContent(y, id) })

	item := content(t, s, id)
	assert.Equal(t, y, item.Owner)
	assert.Equal(t, uint64(20), item.Karma.Uint64())
}

func TestOwnerEnumeration(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	a := publish(t, s, x, "a", 1)
	publish(t, s, y, "b", 1)
	c := publish(t, s, x, "c", 1)

	mustView(t, s, func(tx *Tx) error {
		n, err := tx.ContentBalanceOf(x)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)

		first, err := tx.TokenOfOwnerByIndex(x, 0)
		require.NoError(t, err)
		assert.Equal(t, a, first)
		second, err := tx.TokenOfOwnerByIndex(x, 1)
		require.NoError(t, err)
		assert.Equal(t, c, second)

		_, err = tx.TokenOfOwnerByIndex(x, 2)
		require.ErrorIs(t, err, ErrNoSuchToken)
		return nil
	})
}

func TestListContentOrders(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	x, y := account("x"), account("y")
	mint(t, s, y, 1_000)
	mustUpdate(t, s, func(tx *Tx) error {
		return tx.IncreaseAllowance(y, types.ContentAddress, amount(1_000))
	})

	one := publish(t, s, x, "one", 1)
	two := publish(t, s, x, "two", 1)
	three := publish(t, s, y, "three", 1)
	four := publish(t, s, x, "four", 1)
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, two, amount(300)) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, four, amount(5)) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.AddKarmaTo(y, three, amount(5)) })

	ids := func(items []types.ContentItem) []uint64 {
		out := make([]uint64, len(items))
		for i, it := range items {
			out[i] = it.ID
		}
		return out
	}

	mustView(t, s, func(tx *Tx) error {
		byID, err := tx.ListContent(types.ContentQuery{})
		require.NoError(t, err)
		assert.Equal(t, []uint64{one, two, three, four}, ids(byID))

		top, err := tx.ListContent(types.ContentQuery{Order: types.OrderByKarma})
		require.NoError(t, err)
		assert.Equal(t, []uint64{two, three, four, one}, ids(top))

		mine, err := tx.ListContent(types.ContentQuery{Owner: x, Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []uint64{two}, ids(mine))

		empty, err := tx.ListContent(types.ContentQuery{Owner: account("nobody")})
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	})
}
