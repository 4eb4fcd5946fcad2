package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

func TestStakeIsIdempotent(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	a, b := account("a"), account("b")
	mint(t, s, a, 10)

	first := mustUpdate(t, s, func(tx *Tx) error { return tx.StakeUser(a, b) })
	second := mustUpdate(t, s, func(tx *Tx) error { return tx.StakeUser(a, b) })
	assert.Len(t, first, 1)
	assert.Empty(t, second)

	mustView(t, s, func(tx *Tx) error {
		in, err := tx.IncomingStakes(b)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), in)

		out, err := tx.OutgoingStakes(a)
		require.NoError(t, err)
		assert.Equal(t, []types.Address{b}, out)

		for _, addr := range []types.Address{a, b} {
			connected, err := tx.UserHasConnected(addr)
			require.NoError(t, err)
			assert.True(t, connected)
		}
		return nil
	})

	mustUpdate(t, s, func(tx *Tx) error { return tx.UnstakeUser(a, b) })
	events := mustUpdate(t, s, func(tx *Tx) error { return tx.UnstakeUser(a, b) })
	assert.Empty(t, events)

	mustView(t, s, func(tx *Tx) error {
		in, err := tx.IncomingStakes(b)
		require.NoError(t, err)
		assert.Zero(t, in)
		// Connection is sticky.
		connected, err := tx.UserHasConnected(b)
		require.NoError(t, err)
		assert.True(t, connected)
		return nil
	})
}

// Z holds no Karma, so staking X is refused and no edge exists.
func TestStakeRequiresMinimumKarma(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	z, x := account("z"), account("x")

	_, err := s.Update(context.Background(), func(tx *Tx) error { return tx.StakeUser(z, x) })
	require.ErrorIs(t, err, ErrInsufficientKarma)

	mustView(t, s, func(tx *Tx) error {
		in, err := tx.IncomingStakes(x)
		require.NoError(t, err)
		assert.Zero(t, in)
		connected, err := tx.UserHasConnected(z)
		require.NoError(t, err)
		assert.False(t, connected)
		return nil
	})
}

func TestOutgoingStakesKeepOrder(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	a := account("a")
	mint(t, s, a, 1)
	targets := []types.Address{account("c"), account("b"), account("d")}
	for _, target := range targets {
		mustUpdate(t, s, func(tx *Tx) error { return tx.StakeUser(a, target) })
	}
	mustView(t, s, func(tx *Tx) error {
		out, err := tx.OutgoingStakes(a)
		require.NoError(t, err)
		assert.Equal(t, targets, out)
		return nil
	})
}

func TestUserDataDefaultsAndUpdates(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	a := account("a")

	mustView(t, s, func(tx *Tx) error {
		name, err := tx.UserName(a)
		require.NoError(t, err)
		assert.Empty(t, name)
		pic, err := tx.UserPic(a)
		require.NoError(t, err)
		assert.Equal(t, types.Picture{}, pic)
		return nil
	})

	pic := types.Picture{CID: "bafkqaaa", MediaType: "image/png"}
	mustUpdate(t, s, func(tx *Tx) error { return tx.UpdateUserData(a, "Ada", pic) })
	// An empty name is stored as given.
	mustUpdate(t, s, func(tx *Tx) error { return tx.UpdateUserData(account("b"), "", types.Picture{}) })

	mustView(t, s, func(tx *Tx) error {
		profile, err := tx.UserData(a)
		require.NoError(t, err)
		assert.Equal(t, "Ada", profile.Name)
		assert.Equal(t, pic, profile.Picture)
		assert.True(t, profile.Connected)

		name, err := tx.UserName(account("b"))
		require.NoError(t, err)
		assert.Empty(t, name)
		return nil
	})
}

func TestSearchForUserName(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	smith, jerry, doe := account("smith"), account("jerry"), account("doe")
	mustUpdate(t, s, func(tx *Tx) error { return tx.UpdateUserData(smith, "John Smith", types.Picture{}) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.UpdateUserData(jerry, "Jerry", types.Picture{}) })
	mustUpdate(t, s, func(tx *Tx) error { return tx.UpdateUserData(doe, "John Doe", types.Picture{}) })

	mustView(t, s, func(tx *Tx) error {
		got, err := tx.SearchForUserName("John", 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []types.Address{smith, doe}, got)

		got, err = tx.SearchForUserName("John", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, []types.Address{doe}, got)

		got, err = tx.SearchForUserName("john", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = tx.SearchForUserName("J", 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []types.Address{smith, jerry}, got)

		got, err = tx.SearchForUserName("J", 0, 0)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		return nil
	})
}
