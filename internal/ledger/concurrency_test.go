package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

// Buyers race to buy one item while transferring Karma to each other and
// staking the publisher. Readers must never see a half-applied write.
func TestConcurrentWritesStayConsistent(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	publisher := account("publisher")

	const buyers, rounds = 8, 20
	addrs := make([]types.Address, buyers)
	for i := range addrs {
		addrs[i] = account(fmt.Sprintf("buyer-%d", i))
		mint(t, s, addrs[i], 10_000)
		mustUpdate(t, s, func(tx *Tx) error {
			return tx.Approve(addrs[i], types.ContentAddress, amount(10_000))
		})
	}
	id := publish(t, s, publisher, "first post", 10)
	const supply = buyers * 10_000

	ctx := context.Background()
	var wg sync.WaitGroup
	for i, a := range addrs {
		next := addrs[(i+1)%buyers]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, err := s.Update(ctx, func(tx *Tx) error { return tx.BuyContent(a, id) })
				assert.NoError(t, err)
				_, err = s.Update(ctx, func(tx *Tx) error { return tx.Transfer(a, next, amount(3)) })
				assert.NoError(t, err)
				_, err = s.Update(ctx, func(tx *Tx) error { return tx.StakeUser(a, publisher) })
				assert.NoError(t, err)
			}
		}()
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				err := s.View(ctx, func(tx *Tx) error {
					total, err := tx.TotalSupply()
					if err != nil {
						return err
					}
					assert.Equal(t, uint64(supply), total.Uint64())

					var owned uint64
					for _, addr := range append([]types.Address{publisher}, addrs...) {
						n, err := tx.ContentBalanceOf(addr)
						if err != nil {
							return err
						}
						owned += n
					}
					assert.Equal(t, uint64(1), owned)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()

	report := requireAuditOK(t, s)
	assert.Equal(t, 1, report.ContentItems)

	var sum uint64
	for _, addr := range append([]types.Address{publisher}, addrs...) {
		sum += balance(t, s, addr)
	}
	assert.Equal(t, uint64(supply), sum)

	mustView(t, s, func(tx *Tx) error {
		owner, err := tx.OwnerOf(id)
		require.NoError(t, err)
		assert.Contains(t, addrs, owner)
		in, err := tx.IncomingStakes(publisher)
		require.NoError(t, err)
		assert.Equal(t, uint64(buyers), in)
		return nil
	})
}

// A slow hook on one commit must not let a later commit publish first.
func TestOnCommitKeepsCommitOrderUnderConcurrency(t *testing.T) {
	s := openTestStore(t, defaultGenesis())
	alice := account("alice")

	var mu sync.Mutex
	var seqs []uint64
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	s.OnCommit(func(events []types.Event) {
		mu.Lock()
		seqs = append(seqs, events[0].Seq)
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	write := func() {
		defer wg.Done()
		_, err := s.Update(ctx, func(tx *Tx) error {
			return tx.Mint(types.PaymasterAddress, alice, amount(1))
		})
		assert.NoError(t, err)
	}

	wg.Add(1)
	go write()
	<-entered
	wg.Add(1)
	go write()
	// Give the second writer time to overtake if it could.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Len(t, seqs, 2)
	assert.Less(t, seqs[0], seqs[1], "hooks saw %v", seqs)
	assert.Equal(t, uint64(2), balance(t, s, alice))
}
