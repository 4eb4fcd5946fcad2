package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

func TestObserveTxAndFees(t *testing.T) {
	c := NewCollector("stakes")
	c.ObserveTx(types.TxStake, true, 0, "")
	c.ObserveTx(types.TxStake, true, 0, "")
	c.ObserveTx(types.TxPublish, false, 4, "EmptyContent")
	c.ObserveRelayFee(types.RelayFee{Fee: uint256.NewInt(30), KarmaShare: uint256.NewInt(15)})
	c.ObserveEvent(types.Event{Kind: types.EventMint})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Transactions.WithLabelValues("stake", "true", "0", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transactions.WithLabelValues("publish", "false", "4", "EmptyContent")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.RelayFees))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.RelayShares))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events.WithLabelValues("mint")))
}

func TestTrackGaugeAndHandler(t *testing.T) {
	c := NewCollector("stakes")
	reserve := uint256.NewInt(1234)
	c.TrackGauge("stakes", "paymaster_reserve", "Reserve.", func() (*uint256.Int, error) { return reserve, nil })
	c.TrackGauge("stakes", "broken", "Always fails.", func() (*uint256.Int, error) { return nil, errors.New("boom") })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "stakes_paymaster_reserve 1234")
	assert.Contains(t, body, "stakes_broken 0")
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector("stakes")
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/content/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/content/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/content/{id}", "404")))

	var sb strings.Builder
	for _, mf := range mustGather(t, c) {
		sb.WriteString(mf)
	}
	assert.Contains(t, sb.String(), "stakes_http_request_duration_seconds")
}

func mustGather(t *testing.T, c *Collector) []string {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}
