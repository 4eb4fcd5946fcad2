package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

func account(name string) types.Address {
	return types.ModuleAddress("test/" + name)
}

func amount(n uint64) *uint256.Int { return uint256.NewInt(n) }

var (
	owner     = account("owner")
	forwarder = account("forwarder")
	hub       = account("hub")
)

func openTestStore(t *testing.T, g Genesis) *Store {
	t.Helper()
	s, err := Open(Options{Path: filepath.Join(t.TempDir(), "stakes.db"), Genesis: g})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func defaultGenesis() Genesis {
	return Genesis{
		KarmaOwner:       owner,
		PoolOwner:        owner,
		TrustedForwarder: forwarder,
	}
}

func mustUpdate(t *testing.T, s *Store, fn func(tx *Tx) error) []types.Event {
	t.Helper()
	events, err := s.Update(context.Background(), fn)
	require.NoError(t, err)
	return events
}

func mustView(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func mint(t *testing.T, s *Store, to types.Address, n uint64) {
	t.Helper()
	mustUpdate(t, s, func(tx *Tx) error {
		return tx.Mint(types.PaymasterAddress, to, amount(n))
	})
}

func balance(t *testing.T, s *Store, addr types.Address) uint64 {
	t.Helper()
	var b *uint256.Int
	mustView(t, s, func(tx *Tx) error {
		var err error
		b, err = tx.BalanceOf(addr)
		return err
	})
	return b.Uint64()
}

func requireAuditOK(t *testing.T, s *Store) types.AuditReport {
	t.Helper()
	report, err := s.Audit(context.Background())
	require.NoError(t, err)
	require.Truef(t, report.OK, "audit problems: %v", report.Problems)
	return report
}

func TestOpenAppliesGenesisOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakes.db")
	alice := account("alice")
	g := defaultGenesis()
	g.Settlement = map[types.Address]*uint256.Int{alice: amount(1000)}

	s, err := Open(Options{Path: path, Genesis: g})
	require.NoError(t, err)

	mustView(t, s, func(tx *Tx) error {
		minter, err := tx.Minter()
		require.NoError(t, err)
		assert.Equal(t, types.PaymasterAddress, minter)
		st, err := tx.SettlementOf(alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), st.Uint64())
		return nil
	})
	require.NoError(t, s.Close())

	// A second open with different genesis keeps the existing state.
	g.Settlement = map[types.Address]*uint256.Int{alice: amount(5)}
	s, err = Open(Options{Path: path, Genesis: g})
	require.NoError(t, err)
	defer s.Close()
	mustView(t, s, func(tx *Tx) error {
		st, err := tx.SettlementOf(alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), st.Uint64())
		return nil
	})
	requireAuditOK(t, s)
}

func TestOpenRejectsInvalidGenesisAddress(t *testing.T) {
	_, err := Open(Options{
		Path:    filepath.Join(t.TempDir(), "stakes.db"),
		Genesis: Genesis{PoolOwner: "not-an-address"},
	})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestFailedUpdateLeavesNoEvents(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	alice := account("alice")

	var before uint64
	mustView(t, s, func(tx *Tx) error {
		var err error
		before, err = tx.LastEventSeq()
		return err
	})

	_, err := s.Update(context.Background(), func(tx *Tx) error {
		if err := tx.Mint(types.PaymasterAddress, alice, amount(10)); err != nil {
			return err
		}
		_, err := tx.Publish(alice, "", nil)
		return err
	})
	require.ErrorIs(t, err, ErrEmptyContent)

	assert.Zero(t, balance(t, s, alice))
	mustView(t, s, func(tx *Tx) error {
		after, err := tx.LastEventSeq()
		require.NoError(t, err)
		assert.Equal(t, before, after)
		return nil
	})
}

func TestOnCommitReceivesCommittedEvents(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	alice := account("alice")

	var got [][]types.Event
	s.OnCommit(func(events []types.Event) { got = append(got, events) })

	mint(t, s, alice, 5)
	_, err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.Burn(types.PaymasterAddress, alice, amount(50))
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Equal(t, types.EventMint, got[0][0].Kind)
	assert.NotZero(t, got[0][0].Seq)
}

func TestViewIsReadOnly(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	err := s.View(context.Background(), func(tx *Tx) error {
		return tx.Mint(types.PaymasterAddress, account("alice"), amount(1))
	})
	require.Error(t, err)
	assert.Zero(t, balance(t, s, account("alice")))
}

func TestEventsAfterPages(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	alice := account("alice")
	for i := 0; i < 3; i++ {
		mint(t, s, alice, 1)
	}
	mustView(t, s, func(tx *Tx) error {
		all, err := tx.EventsAfter(0, 0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 3)
		for i := 1; i < len(all); i++ {
			assert.Greater(t, all[i].Seq, all[i-1].Seq)
		}
		last := all[len(all)-1]
		assert.Equal(t, types.EventMint, last.Kind)
		assert.Equal(t, alice, last.Subject)
		assert.Equal(t, uint64(1), last.Amount.Uint64())

		tail, err := tx.EventsAfter(all[len(all)-3].Seq, 1)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, all[len(all)-2].Seq, tail[0].Seq)
		return nil
	})
}

func TestBackupCurrentWritesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Path: filepath.Join(dir, "stakes.db"), Genesis: defaultGenesis()})
	require.NoError(t, err)
	defer s.Close()

	mint(t, s, account("alice"), 7)

	info, err := s.BackupCurrent(3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups"), filepath.Dir(info.Path))
	assert.Equal(t, ".db", filepath.Ext(info.Name))
	assert.Positive(t, info.Size)

	for i := 0; i < 4; i++ {
		_, err := s.BackupCurrent(3)
		require.NoError(t, err)
	}
	backups, err := s.ListBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 3)

	snapshot, err := s.ExportSnapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot)
}

func TestOpenRecoversFromLatestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakes.db")
	alice := account("alice")

	s, err := Open(Options{Path: path, Genesis: defaultGenesis()})
	require.NoError(t, err)
	mint(t, s, alice, 42)
	_, err = s.BackupCurrent(5)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for _, p := range []string{path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o600))

	s, err = Open(Options{Path: path, Genesis: defaultGenesis()})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(42), balance(t, s, alice))
}

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := error(fail(CodeNoSuchToken, "content", "token %d", 9))
	assert.True(t, errors.Is(err, ErrNoSuchToken))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, CodeNoSuchToken, CodeOf(err))
	assert.Equal(t, "content: NoSuchToken: token 9", err.Error())
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}
