package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/docs"
	"karmastakes.app/stakes/internal/feed"
	"karmastakes.app/stakes/internal/identity"
	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/logger"
	"karmastakes.app/stakes/internal/metrics"
	"karmastakes.app/stakes/internal/relay"
	"karmastakes.app/stakes/internal/types"
)

type testEnv struct {
	svc       *Service
	store     *ledger.Store
	handler   http.Handler
	metrics   *metrics.Collector
	logs      *logger.Logger
	owner     *identity.Identity
	alice     *identity.Identity
	bob       *identity.Identity
	forwarder *identity.Identity
}

func newIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), name+".pem"))
	require.NoError(t, err)
	return id
}

func addrOf(id *identity.Identity) types.Address {
	return types.AddressFromPublicKey(id.PublicKey())
}

// setupTest opens a ledger in a temp dir and mounts the full router.
func setupTest(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		owner:     newIdentity(t, "owner"),
		alice:     newIdentity(t, "alice"),
		bob:       newIdentity(t, "bob"),
		forwarder: newIdentity(t, "forwarder"),
		logs:      logger.New(100),
		metrics:   metrics.NewCollector("stakes"),
	}

	params := ledger.DefaultParams()
	params.RelayFeeEstimate = uint256.NewInt(100)
	params.RelayBaseFee = uint256.NewInt(10)
	params.RelayByteFee = uint256.NewInt(0)
	params.UserShareBps = 10_000
	params.KarmaScale = 2

	store, err := ledger.Open(ledger.Options{
		Path:   filepath.Join(t.TempDir(), "stakes.db"),
		Params: params,
		Logger: env.logs.Named("ledger"),
		Genesis: ledger.Genesis{
			KarmaOwner:       addrOf(env.owner),
			PoolOwner:        addrOf(env.owner),
			TrustedForwarder: addrOf(env.forwarder),
			Settlement: map[types.Address]*uint256.Int{
				addrOf(env.alice): uint256.NewInt(1_000),
			},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	hub := feed.NewHub(env.logs.Named("feed"))
	store.OnCommit(hub.Publish)
	gateway := relay.NewGateway(store, relay.WithLogger(env.logs.Named("relay")), relay.WithObserver(env.metrics))

	env.svc = NewService(store, gateway, env.logs,
		WithHub(hub),
		WithMetrics(env.metrics),
		WithDocs(docs.NewService(docs.Embedded())),
		WithMaxBackups(2),
	)
	env.handler = env.svc.Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	rec := e.do(t, http.MethodGet, path, nil)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// submit signs and posts a direct transaction.
func (e *testEnv) submit(t *testing.T, signer *identity.Identity, txType types.TransactionType, payload any) (int, types.TxResponse) {
	t.Helper()
	tx, err := types.NewTransaction(txType, payload)
	require.NoError(t, err)
	stx, err := tx.Sign(signer)
	require.NoError(t, err)
	raw, err := json.Marshal(stx)
	require.NoError(t, err)

	rec := e.do(t, http.MethodPost, "/api/tx", raw)
	var resp types.TxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

// relayed signs an intent and has forwarder countersign it.
func relayed(t *testing.T, signer, forwarder *identity.Identity, txType types.TransactionType, payload any) []byte {
	t.Helper()
	tx, err := types.NewTransaction(txType, payload)
	require.NoError(t, err)
	stx, err := tx.Sign(signer)
	require.NoError(t, err)
	req, err := types.NewRelayRequest(stx, forwarder)
	require.NoError(t, err)
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return raw
}
