// Package types tests exercise transaction signing, relay countersigning,
// address helpers and unit scaling.
package types

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karmastakes.app/stakes/internal/identity"
)

func newIdentity(t *testing.T, name string) *identity.Identity {
	t.Helper()
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Failed to create test identity: %v", err)
	}
	return id
}

func TestTransactionSigning(t *testing.T) {
	id := newIdentity(t, "test_key.pem")

	tx := &Transaction{
		Type:      TxPublish,
		Timestamp: time.Now(),
		Payload:   json.RawMessage(`{"text":"hello","price":"5000"}`),
	}

	signedTx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}

	if !signedTx.Verify() {
		t.Error("Failed to verify transaction signature")
	}
	if signedTx.Sender() != Address(id.PublicKeyHex()) {
		t.Errorf("Sender mismatch. Got %s, want %s", signedTx.Sender(), id.PublicKeyHex())
	}

	extractedTx, err := signedTx.GetTransaction()
	if err != nil {
		t.Fatalf("Failed to extract transaction: %v", err)
	}
	if extractedTx.Type != tx.Type {
		t.Errorf("Transaction type mismatch. Got %s, want %s", extractedTx.Type, tx.Type)
	}
	if extractedTx.ID != tx.ID {
		t.Errorf("Transaction id mismatch. Got %s, want %s", extractedTx.ID, tx.ID)
	}

	signedTx.Tx[len(signedTx.Tx)-2] ^= 0x01
	if signedTx.Verify() {
		t.Error("Tampered transaction verified")
	}
}

func TestTransactionPayloads(t *testing.T) {
	target := Address(newIdentity(t, "target.pem").PublicKeyHex())

	testCases := []struct {
		name    string
		txType  TransactionType
		payload interface{}
	}{
		{
			name:    "BuyKarma",
			txType:  TxBuyKarma,
			payload: BuyKarmaPayload{Value: uint256.NewInt(5000)},
		},
		{
			name:    "Stake",
			txType:  TxStake,
			payload: StakePayload{Target: target},
		},
		{
			name:   "UpdateUserData",
			txType: TxUpdateUserData,
			payload: UpdateUserDataPayload{
				Name:      "John Smith",
				PicCID:    "bafkqaaa",
				MediaType: "image/png",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := NewTransaction(tc.txType, tc.payload)
			if err != nil {
				t.Fatalf("Failed to build transaction: %v", err)
			}

			txBytes, err := json.Marshal(tx)
			if err != nil {
				t.Fatalf("Failed to marshal transaction: %v", err)
			}

			var unmarshalled Transaction
			if err := json.Unmarshal(txBytes, &unmarshalled); err != nil {
				t.Fatalf("Failed to unmarshal transaction: %v", err)
			}

			if unmarshalled.Type != tc.txType {
				t.Errorf("Transaction type mismatch. Got %s, want %s", unmarshalled.Type, tc.txType)
			}
		})
	}
}

func TestAmountsTravelAsDecimalStrings(t *testing.T) {
	raw, err := json.Marshal(TransferPayload{To: StakeAddress, Amount: uint256.NewInt(42)})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"amount":"42"`)

	var p TransferPayload
	require.NoError(t, json.Unmarshal([]byte(`{"to":"`+string(StakeAddress)+`","amount":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}`), &p))
	assert.Equal(t, new(uint256.Int).SetAllOne(), p.Amount)
}

func TestRelayRequestCountersign(t *testing.T) {
	user := newIdentity(t, "user.pem")
	forwarder := newIdentity(t, "forwarder.pem")

	tx, err := NewTransaction(TxStake, StakePayload{Target: PaymasterAddress})
	require.NoError(t, err)
	intent, err := tx.Sign(user)
	require.NoError(t, err)

	req, err := NewRelayRequest(intent, forwarder)
	require.NoError(t, err)
	assert.True(t, req.VerifyForwarder())
	assert.Equal(t, Address(forwarder.PublicKeyHex()), req.Forwarder())

	other, err := NewTransaction(TxUnstake, StakePayload{Target: PaymasterAddress})
	require.NoError(t, err)
	otherIntent, err := other.Sign(user)
	require.NoError(t, err)
	req.Intent = *otherIntent
	assert.False(t, req.VerifyForwarder(), "countersignature must not transfer to another intent")

	_, err = NewRelayRequest(&SignedTransaction{}, forwarder)
	assert.ErrorIs(t, err, ErrUnsignedIntent)
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, PaymasterAddress.Valid())
	assert.NotEqual(t, PaymasterAddress, ContentAddress)
	assert.False(t, Address("").Valid())
	assert.False(t, Address("xyz").Valid())

	upper := "ABCDEF" + string(ContentAddress)[6:]
	a, ok := ParseAddress("  " + upper + " ")
	assert.True(t, ok)
	assert.Equal(t, ContentAddress, a)
}

func TestScaleUpDown(t *testing.T) {
	v, err := ScaleUp("5000", DefaultKarmaScale)
	require.NoError(t, err)
	assert.Equal(t, "5000000000000", v.Dec())
	assert.Equal(t, "5000", ScaleDown(v, DefaultKarmaScale))

	v, err = ScaleUp("0.5", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(500000000), v.Uint64())
	assert.Equal(t, "0.5", ScaleDown(v, 9))

	assert.Equal(t, "0.000000001", ScaleDown(uint256.NewInt(1), 9))
	assert.Equal(t, "0", ScaleDown(nil, 9))

	_, err = ScaleUp("1.0000000001", 9)
	assert.Error(t, err)
	_, err = ScaleUp("12a", 9)
	assert.Error(t, err)
	_, err = ScaleUp("", 9)
	assert.Error(t, err)

	assert.Equal(t, WholeKarma(5000, 9), mustScale(t, "5000"))
}

func mustScale(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := ScaleUp(s, DefaultKarmaScale)
	require.NoError(t, err)
	return v
}
