// Package relay is the transaction front door of the ledger. It decodes and
// verifies signed transactions, and for relayed intents also the forwarder
// countersignature, before it opens a ledger transaction. Verification is
// pure (CheckTx, CheckRelay); application happens in DeliverTx and
// DeliverRelay, each as one all-or-nothing ledger update.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

const (
	CodeTypeOK            uint32 = 0
	CodeTypeEncodingError uint32 = 1
	CodeTypeAuthError     uint32 = 2
	CodeTypeInvalidTx     uint32 = 3
	CodeTypeRejected      uint32 = 4
	CodeTypeInternalError uint32 = 5
)

// ErrBadSignature is reported for a signature that does not verify.
var ErrBadSignature = errors.New("invalid signature")

// Observer is told about every delivered transaction.
type Observer interface {
	ObserveTx(txType types.TransactionType, relayed bool, code uint32, errorCode string)
	ObserveRelayFee(fee types.RelayFee)
}

// Gateway checks and delivers transactions against a ledger store.
type Gateway struct {
	store    *ledger.Store
	validate *validator.Validate
	log      *zap.Logger
	observer Observer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.log = l.Named("relay") }
}

// WithObserver reports delivery outcomes to o.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway creates a gateway in front of store.
func NewGateway(store *ledger.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		validate: newValidator(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// checked is a transaction that passed CheckTx.
type checked struct {
	signed  types.SignedTransaction
	tx      *types.Transaction
	sender  types.Address
	payload any
}

func reject(code uint32, err error) types.TxResponse {
	return types.TxResponse{Code: code, Log: err.Error()}
}

func (g *Gateway) check(signed types.SignedTransaction) (*checked, types.TxResponse) {
	if !signed.Verify() {
		return nil, reject(CodeTypeAuthError, ErrBadSignature)
	}
	tx, err := signed.GetTransaction()
	if err != nil {
		return nil, reject(CodeTypeEncodingError, fmt.Errorf("decode inner tx: %w", err))
	}
	if tx.ID == uuid.Nil {
		return nil, reject(CodeTypeInvalidTx, errors.New("transaction id is missing"))
	}
	payload, err := decodePayload(tx.Type, tx.Payload)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			return nil, reject(CodeTypeInvalidTx, err)
		}
		return nil, reject(CodeTypeEncodingError, err)
	}
	if err := g.validatePayload(payload); err != nil {
		return nil, reject(CodeTypeInvalidTx, err)
	}
	c := &checked{signed: signed, tx: tx, sender: signed.Sender(), payload: payload}
	return c, types.TxResponse{Code: CodeTypeOK, TxID: tx.ID.String(), Sender: c.sender}
}

func decodeSigned(raw []byte) (types.SignedTransaction, error) {
	var signed types.SignedTransaction
	if err := json.Unmarshal(raw, &signed); err != nil {
		return signed, fmt.Errorf("decode signed tx: %w", err)
	}
	return signed, nil
}

// CheckTx verifies a raw signed transaction without touching state.
func (g *Gateway) CheckTx(raw []byte) types.TxResponse {
	signed, err := decodeSigned(raw)
	if err != nil {
		return reject(CodeTypeEncodingError, err)
	}
	_, resp := g.check(signed)
	return resp
}

// DeliverTx applies a raw signed transaction as its signer.
func (g *Gateway) DeliverTx(ctx context.Context, raw []byte) types.TxResponse {
	signed, err := decodeSigned(raw)
	if err != nil {
		return reject(CodeTypeEncodingError, err)
	}
	c, resp := g.check(signed)
	if c == nil {
		g.observe("", false, resp)
		return resp
	}

	var result any
	events, err := g.store.Update(ctx, func(tx *ledger.Tx) error {
		if err := tx.RecordReceipt(c.tx.ID, c.sender, c.tx.Type, false); err != nil {
			return err
		}
		result, err = dispatch(tx, c.sender, c.tx.Type, c.payload)
		return err
	})
	resp = g.finish(c, resp, result, events, err)
	g.observe(c.tx.Type, false, resp)
	return resp
}

func decodeRelay(raw []byte) (types.RelayRequest, error) {
	var req types.RelayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("decode relay request: %w", err)
	}
	return req, nil
}

func (g *Gateway) checkRelay(req types.RelayRequest) (*checked, types.TxResponse) {
	c, resp := g.check(req.Intent)
	if c == nil {
		return nil, resp
	}
	if !req.VerifyForwarder() {
		return nil, reject(CodeTypeAuthError, fmt.Errorf("forwarder countersignature: %w", ErrBadSignature))
	}
	return c, resp
}

// CheckRelay verifies a raw relay request: the intent as CheckTx does, and
// the forwarder countersignature.
func (g *Gateway) CheckRelay(raw []byte) types.TxResponse {
	req, err := decodeRelay(raw)
	if err != nil {
		return reject(CodeTypeEncodingError, err)
	}
	_, resp := g.checkRelay(req)
	return resp
}

// DeliverRelay applies a relayed intent as the intent signer, with the fee
// sponsored by the paymaster pool. The forwarder must be trusted and the
// signer must repay its Karma share, or nothing is applied.
func (g *Gateway) DeliverRelay(ctx context.Context, raw []byte) types.TxResponse {
	req, err := decodeRelay(raw)
	if err != nil {
		return reject(CodeTypeEncodingError, err)
	}
	c, resp := g.checkRelay(req)
	if c == nil {
		g.observe("", true, resp)
		return resp
	}

	var (
		result any
		fee    types.RelayFee
	)
	events, err := g.store.Update(ctx, func(tx *ledger.Tx) error {
		if err := tx.Sponsor(req.Forwarder()); err != nil {
			return err
		}
		if err := tx.RecordReceipt(c.tx.ID, c.sender, c.tx.Type, true); err != nil {
			return err
		}
		if result, err = dispatch(tx, c.sender, c.tx.Type, c.payload); err != nil {
			return err
		}
		fee, err = tx.ChargeRelay(c.sender, len(req.Intent.Tx))
		return err
	})
	resp = g.finish(c, resp, result, events, err)
	if resp.Code == CodeTypeOK {
		resp.Fee = &fee
		if g.observer != nil {
			g.observer.ObserveRelayFee(fee)
		}
	}
	g.observe(c.tx.Type, true, resp)
	return resp
}

func (g *Gateway) finish(c *checked, resp types.TxResponse, result any, events []types.Event, err error) types.TxResponse {
	log := g.log.With(
		zap.String("tx_id", resp.TxID),
		zap.String("type", string(c.tx.Type)),
		zap.String("sender", c.sender.Short()),
	)
	if err != nil {
		if code := ledger.CodeOf(err); code != "" {
			log.Info("transaction rejected", zap.String("error_code", string(code)), zap.Error(err))
			resp.Code = CodeTypeRejected
			resp.ErrorCode = string(code)
			resp.Log = err.Error()
			return resp
		}
		log.Error("transaction failed", zap.Error(err))
		resp.Code = CodeTypeInternalError
		resp.Log = err.Error()
		return resp
	}
	if result != nil {
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			log.Error("encode result", zap.Error(mErr))
		} else {
			resp.Result = raw
		}
	}
	resp.Events = events
	log.Info("transaction applied", zap.Int("events", len(events)))
	return resp
}

func (g *Gateway) observe(txType types.TransactionType, relayed bool, resp types.TxResponse) {
	if g.observer == nil {
		return
	}
	if txType == "" {
		txType = "unknown"
	}
	g.observer.ObserveTx(txType, relayed, resp.Code, resp.ErrorCode)
}
