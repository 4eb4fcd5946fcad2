package feed

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

func TestHubFansOutInOrder(t *testing.T) {
	h := NewHub(nil)
	a := h.Subscribe(4)
	b := h.Subscribe(4)
	defer a.Close()
	defer b.Close()

	var seen []uint64
	require.NoError(t, h.OnEvent(func(ev types.Event) { seen = append(seen, ev.Seq) }))

	h.Publish([]types.Event{{Seq: 1, Kind: types.EventMint}, {Seq: 2, Kind: types.EventTransfer}})

	for _, sub := range []*Subscription{a, b} {
		assert.Equal(t, uint64(1), (<-sub.C).Seq)
		assert.Equal(t, uint64(2), (<-sub.C).Seq)
	}
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestHubDropsLaggingSubscriber(t *testing.T) {
	h := NewHub(nil)
	slow := h.Subscribe(1)

	h.Publish([]types.Event{{Seq: 1}, {Seq: 2}})

	ev, ok := <-slow.C
	require.True(t, ok)
	assert.Equal(t, uint64(1), ev.Seq)
	_, ok = <-slow.C
	assert.False(t, ok)
	assert.True(t, slow.Lagged())
	assert.Zero(t, h.Subscribers())

	// Closing an already dropped subscription is safe.
	slow.Close()
}

func TestSubscriptionClose(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(0)
	assert.Equal(t, 1, h.Subscribers())
	sub.Close()
	sub.Close()
	assert.Zero(t, h.Subscribers())
	h.Publish([]types.Event{{Seq: 1}})
}

func TestServeWSReplaysThenStreams(t *testing.T) {
	store, err := ledger.Open(ledger.Options{Path: filepath.Join(t.TempDir(), "stakes.db")})
	require.NoError(t, err)
	defer store.Close()

	h := NewHub(nil)
	store.OnCommit(h.Publish)

	alice := types.ModuleAddress("test/alice")
	mintOne := func() {
		_, err := store.Update(context.Background(), func(tx *ledger.Tx) error {
			return tx.Mint(types.PaymasterAddress, alice, uint256.NewInt(1))
		})
		require.NoError(t, err)
	}
	mintOne()
	mintOne()

	backlog, err := store.EventsAfter(context.Background(), 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, backlog)

	srv := httptest.NewServer(h.ServeWS(store))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?after=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got []types.Event
	for len(got) < len(backlog) {
		var ev types.Event
		require.NoError(t, conn.ReadJSON(&ev))
		got = append(got, ev)
	}
	for i := range backlog {
		assert.Equal(t, backlog[i].Seq, got[i].Seq)
	}

	// Wait for the handler to register before committing a live event.
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	mintOne()

	var live types.Event
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, backlog[len(backlog)-1].Seq+1, live.Seq)
	assert.Equal(t, types.EventMint, live.Kind)
}

func TestServeWSRejectsBadAfter(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h.ServeWS(nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?after=abc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
