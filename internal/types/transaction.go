package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// TransactionType names the ledger entry point a transaction invokes.
type TransactionType string

const (
	TxBuyKarma            TransactionType = "buy_karma"
	TxTransfer            TransactionType = "transfer"
	TxTransferFrom        TransactionType = "transfer_from"
	TxApprove             TransactionType = "approve"
	TxIncreaseAllowance   TransactionType = "increase_allowance"
	TxDecreaseAllowance   TransactionType = "decrease_allowance"
	TxMint                TransactionType = "mint"
	TxBurn                TransactionType = "burn"
	TxSetMinter           TransactionType = "set_minter"
	TxWithdrawAll         TransactionType = "withdraw_all"
	TxSetRelayHub         TransactionType = "set_relay_hub"
	TxSetTrustedForwarder TransactionType = "set_trusted_forwarder"
	TxPublish             TransactionType = "publish"
	TxAddKarma            TransactionType = "add_karma"
	TxBuyContent          TransactionType = "buy_content"
	TxSetPrice            TransactionType = "set_price"
	TxStake               TransactionType = "stake"
	TxUnstake             TransactionType = "unstake"
	TxUpdateUserData      TransactionType = "update_user_data"
)

// TransactionTypes lists every type the gateway accepts.
var TransactionTypes = []TransactionType{
	TxBuyKarma, TxTransfer, TxTransferFrom, TxApprove, TxIncreaseAllowance,
	TxDecreaseAllowance, TxMint, TxBurn, TxSetMinter, TxWithdrawAll,
	TxSetRelayHub, TxSetTrustedForwarder, TxPublish, TxAddKarma, TxBuyContent,
	TxSetPrice, TxStake, TxUnstake, TxUpdateUserData,
}

// Transaction is the unsigned body of a ledger call. ID is unique per
// transaction and is used to reject replays.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Signer produces ed25519 signatures; *identity.Identity satisfies it.
type Signer interface {
	Sign(message []byte) []byte
	PublicKey() ed25519.PublicKey
}

// SignedTransaction carries the exact bytes that were signed.
type SignedTransaction struct {
	PublicKey ed25519.PublicKey `json:"public_key"`
	Tx        []byte            `json:"tx"`
	Signature []byte            `json:"signature"`
}

// NewTransaction builds a transaction with a fresh id and marshalled payload.
func NewTransaction(txType TransactionType, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ID:        uuid.New(),
		Type:      txType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Sign marshals the transaction and signs the resulting bytes.
func (t *Transaction) Sign(s Signer) (*SignedTransaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		PublicKey: s.PublicKey(),
		Tx:        body,
		Signature: s.Sign(body),
	}, nil
}

// Verify checks the signature against the embedded public key.
func (st *SignedTransaction) Verify() bool {
	if len(st.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(st.PublicKey, st.Tx, st.Signature)
}

// GetTransaction decodes the signed body.
func (st *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(st.Tx, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Sender is the address of the signing key.
func (st *SignedTransaction) Sender() Address {
	return AddressFromPublicKey(st.PublicKey)
}

const relayDomain = "karmastakes/relay/v1:"

// RelayRequest wraps a user signed intent with the forwarder's
// countersignature. The forwarder signs the intent signature so it cannot
// be detached and attached to another intent.
type RelayRequest struct {
	Intent             SignedTransaction `json:"intent"`
	ForwarderKey       ed25519.PublicKey `json:"forwarder_key"`
	ForwarderSignature []byte            `json:"forwarder_signature"`
}

// ErrUnsignedIntent is returned when a relay request wraps an intent with no signature.
var ErrUnsignedIntent = errors.New("intent is not signed")

// RelaySigningBytes are the bytes a forwarder signs for intent.
func RelaySigningBytes(intent *SignedTransaction) []byte {
	msg := make([]byte, 0, len(relayDomain)+len(intent.Signature))
	msg = append(msg, relayDomain...)
	return append(msg, intent.Signature...)
}

// NewRelayRequest countersigns intent as forwarder.
func NewRelayRequest(intent *SignedTransaction, forwarder Signer) (*RelayRequest, error) {
	if len(intent.Signature) == 0 {
		return nil, ErrUnsignedIntent
	}
	return &RelayRequest{
		Intent:             *intent,
		ForwarderKey:       forwarder.PublicKey(),
		ForwarderSignature: forwarder.Sign(RelaySigningBytes(intent)),
	}, nil
}

// VerifyForwarder checks the forwarder countersignature.
func (r *RelayRequest) VerifyForwarder() bool {
	if len(r.ForwarderKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(r.ForwarderKey, RelaySigningBytes(&r.Intent), r.ForwarderSignature)
}

// Forwarder is the address of the countersigning key.
func (r *RelayRequest) Forwarder() Address {
	return AddressFromPublicKey(r.ForwarderKey)
}

// TxResponse is returned for every submitted transaction.
type TxResponse struct {
	Code      uint32          `json:"code"`
	Log       string          `json:"log,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	TxID      string          `json:"tx_id,omitempty"`
	Sender    Address         `json:"sender,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Fee       *RelayFee       `json:"fee,omitempty"`
	Events    []Event         `json:"events,omitempty"`
}

// Payloads. Amount fields are decimal strings on the wire.

type BuyKarmaPayload struct {
	Value *uint256.Int `json:"value" validate:"required"`
}

type TransferPayload struct {
	To     Address      `json:"to" validate:"required,address"`
	Amount *uint256.Int `json:"amount" validate:"required"`
}

type TransferFromPayload struct {
	Owner  Address      `json:"owner" validate:"required,address"`
	To     Address      `json:"to" validate:"required,address"`
	Amount *uint256.Int `json:"amount" validate:"required"`
}

// AllowancePayload serves approve, increase_allowance and decrease_allowance.
type AllowancePayload struct {
	Spender Address      `json:"spender" validate:"required,address"`
	Amount  *uint256.Int `json:"amount" validate:"required"`
}

type MintPayload struct {
	To     Address      `json:"to" validate:"required,address"`
	Amount *uint256.Int `json:"amount" validate:"required"`
}

type BurnPayload struct {
	From   Address      `json:"from" validate:"required,address"`
	Amount *uint256.Int `json:"amount" validate:"required"`
}

// AddressPayload serves the role setters.
type AddressPayload struct {
	Address Address `json:"address" validate:"required,address"`
}

type WithdrawAllPayload struct{}

// PublishPayload leaves Text unchecked so the ledger reports EmptyContent.
type PublishPayload struct {
	Text  string       `json:"text" validate:"max=4096"`
	Price *uint256.Int `json:"price" validate:"required"`
}

type AddKarmaPayload struct {
	TokenID uint64       `json:"token_id"`
	Amount  *uint256.Int `json:"amount" validate:"required"`
}

type BuyContentPayload struct {
	TokenID uint64 `json:"token_id"`
}

type SetPricePayload struct {
	TokenID uint64       `json:"token_id"`
	Price   *uint256.Int `json:"price" validate:"required"`
}

type StakePayload struct {
	Target Address `json:"target" validate:"required,address"`
}

type UpdateUserDataPayload struct {
	Name      string `json:"name" validate:"required,max=64"`
	PicCID    string `json:"pic_cid" validate:"omitempty,cid"`
	MediaType string `json:"media_type" validate:"omitempty,max=127"`
}
