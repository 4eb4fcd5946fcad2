// Package client submits transactions to a stakesd API and reads ledger
// state back. The stakesctl CLI is built on it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/types"
)

// DefaultAddr is the API address used when none is given.
const DefaultAddr = "http://localhost:8080"

// TxError is returned when the daemon answered but did not apply the
// transaction. Resp carries the gateway code and ledger error code.
type TxError struct {
	Status int
	Resp   types.TxResponse
}

func (e *TxError) Error() string {
	if e.Resp.ErrorCode != "" {
		return fmt.Sprintf("transaction failed with code %d (%s): %s", e.Resp.Code, e.Resp.ErrorCode, e.Resp.Log)
	}
	return fmt.Sprintf("transaction failed with code %d: %s", e.Resp.Code, e.Resp.Log)
}

// Client talks to one daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for addr, http://localhost:8080 when empty.
func New(addr string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SubmitTx signs a transaction of txType with signer and applies it.
func (c *Client) SubmitTx(ctx context.Context, signer types.Signer, txType types.TransactionType, payload any) (types.TxResponse, error) {
	signed, err := sign(signer, txType, payload)
	if err != nil {
		return types.TxResponse{}, err
	}
	return c.SubmitSigned(ctx, signed)
}

// SubmitSigned posts an already signed transaction.
func (c *Client) SubmitSigned(ctx context.Context, signed *types.SignedTransaction) (types.TxResponse, error) {
	body, err := json.Marshal(signed)
	if err != nil {
		return types.TxResponse{}, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return c.post(ctx, "/api/tx", body)
}

// SubmitRelay signs an intent with signer, countersigns it as forwarder
// and submits it for sponsored execution.
func (c *Client) SubmitRelay(ctx context.Context, signer, forwarder types.Signer, txType types.TransactionType, payload any) (types.TxResponse, error) {
	signed, err := sign(signer, txType, payload)
	if err != nil {
		return types.TxResponse{}, err
	}
	req, err := types.NewRelayRequest(signed, forwarder)
	if err != nil {
		return types.TxResponse{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return types.TxResponse{}, fmt.Errorf("failed to marshal relay request: %w", err)
	}
	return c.post(ctx, "/api/relay", body)
}

func sign(signer types.Signer, txType types.TransactionType, payload any) (*types.SignedTransaction, error) {
	tx, err := types.NewTransaction(txType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	signed, err := tx.Sign(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (types.TxResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return types.TxResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.TxResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.TxResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	var out types.TxResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w (status %d, body: %s)", err, resp.StatusCode, string(raw))
	}
	if out.Code != 0 {
		return out, &TxError{Status: resp.StatusCode, Resp: out}
	}
	return out, nil
}

// get decodes a JSON read into out. Statuses other than 200 and accept
// become errors.
func (c *Client) get(ctx context.Context, path string, out any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && !slices.Contains(accept, resp.StatusCode) {
		var apiErr struct {
			Error     string `json:"error"`
			ErrorCode string `json:"error_code"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", http.MethodGet, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", http.MethodGet, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Connect returns the ledger view of addr.
func (c *Client) Connect(ctx context.Context, addr types.Address) (types.Connection, error) {
	var conn types.Connection
	err := c.get(ctx, "/api/connect/"+url.PathEscape(string(addr)), &conn)
	return conn, err
}

// Balance returns the Karma balance of addr in base units.
func (c *Client) Balance(ctx context.Context, addr types.Address) (*uint256.Int, error) {
	var out struct {
		Balance *uint256.Int `json:"balance"`
	}
	if err := c.get(ctx, "/api/karma/"+url.PathEscape(string(addr))+"/balance", &out); err != nil {
		return nil, err
	}
	if out.Balance == nil {
		return nil, errors.New("response has no balance")
	}
	return out.Balance, nil
}

// Events returns one page of the event log after seq.
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]types.Event, error) {
	q := url.Values{}
	q.Set("after", fmt.Sprint(after))
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var events []types.Event
	err := c.get(ctx, "/api/events?"+q.Encode(), &events)
	return events, err
}

// Audit runs the ledger audit on the daemon. A failed audit is a report
// with OK false, not an error.
func (c *Client) Audit(ctx context.Context) (types.AuditReport, error) {
	var report types.AuditReport
	err := c.get(ctx, "/api/audit", &report, http.StatusConflict)
	return report, err
}
