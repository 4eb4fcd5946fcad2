package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygenAndAddress(t *testing.T) {
	key := filepath.Join(t.TempDir(), "user.pem")

	out, err := run(t, "keygen", "--key", key)
	require.NoError(t, err)
	addr := strings.TrimSpace(out)
	_, ok := types.ParseAddress(addr)
	assert.True(t, ok, addr)

	out, err = run(t, "address", "--key", key)
	require.NoError(t, err)
	assert.Equal(t, addr, strings.TrimSpace(out))

	_, err = run(t, "keygen", "--key", key)
	assert.ErrorContains(t, err, "already exists")
}

func TestParseTx(t *testing.T) {
	txType, raw, err := parseTx("buy_karma", `{"value":"10"}`)
	require.NoError(t, err)
	assert.Equal(t, types.TxBuyKarma, txType)
	assert.JSONEq(t, `{"value":"10"}`, string(raw))

	_, raw, err = parseTx("withdraw_all", "")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	_, _, err = parseTx("mine", "{}")
	assert.ErrorContains(t, err, "unknown transaction type")

	_, _, err = parseTx("transfer", "[1,2]")
	assert.ErrorContains(t, err, "JSON object")
}

func TestBalance(t *testing.T) {
	addr := strings.Repeat("ab", 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/karma/"+addr+"/balance" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"address":"` + addr + `","balance":"2500"}`))
	}))
	defer srv.Close()

	out, err := run(t, "balance", addr, "--api", srv.URL, "--scale", "2")
	require.NoError(t, err)
	assert.Equal(t, "25", strings.TrimSpace(out))

	out, err = run(t, "balance", addr, "--api", srv.URL, "--raw")
	require.NoError(t, err)
	assert.Equal(t, "2500", strings.TrimSpace(out))

	_, err = run(t, "balance", "xyz", "--api", srv.URL)
	assert.ErrorContains(t, err, "invalid address")
}
