package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

// ErrUnknownType is returned for a transaction type the gateway does not route.
var ErrUnknownType = errors.New("unknown transaction type")

var payloadFactories = map[types.TransactionType]func() any{
	types.TxBuyKarma:            func() any { return &types.BuyKarmaPayload{} },
	types.TxTransfer:            func() any { return &types.TransferPayload{} },
	types.TxTransferFrom:        func() any { return &types.TransferFromPayload{} },
	types.TxApprove:             func() any { return &types.AllowancePayload{} },
	types.TxIncreaseAllowance:   func() any { return &types.AllowancePayload{} },
	types.TxDecreaseAllowance:   func() any { return &types.AllowancePayload{} },
	types.TxMint:                func() any { return &types.MintPayload{} },
	types.TxBurn:                func() any { return &types.BurnPayload{} },
	types.TxSetMinter:           func() any { return &types.AddressPayload{} },
	types.TxWithdrawAll:         func() any { return &types.WithdrawAllPayload{} },
	types.TxSetRelayHub:         func() any { return &types.AddressPayload{} },
	types.TxSetTrustedForwarder: func() any { return &types.AddressPayload{} },
	types.TxPublish:             func() any { return &types.PublishPayload{} },
	types.TxAddKarma:            func() any { return &types.AddKarmaPayload{} },
	types.TxBuyContent:          func() any { return &types.BuyContentPayload{} },
	types.TxSetPrice:            func() any { return &types.SetPricePayload{} },
	types.TxStake:               func() any { return &types.StakePayload{} },
	types.TxUnstake:             func() any { return &types.StakePayload{} },
	types.TxUpdateUserData:      func() any { return &types.UpdateUserDataPayload{} },
}

// decodePayload parses raw into the payload struct of txType. Unknown
// fields are rejected.
func decodePayload(txType types.TransactionType, raw json.RawMessage) (any, error) {
	factory, ok := payloadFactories[txType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, txType)
	}
	payload := factory()
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", txType, err)
	}
	return payload, nil
}

type mintedResult struct {
	Minted *uint256.Int `json:"minted"`
}

type withdrawnResult struct {
	Withdrawn *uint256.Int `json:"withdrawn"`
}

type publishedResult struct {
	TokenID uint64 `json:"token_id"`
}

// dispatch runs one decoded call as sender and returns its result, if any.
func dispatch(tx *ledger.Tx, sender types.Address, txType types.TransactionType, payload any) (any, error) {
	switch p := payload.(type) {
	case *types.BuyKarmaPayload:
		minted, err := tx.BuyKarma(sender, p.Value)
		if err != nil {
			return nil, err
		}
		return mintedResult{Minted: minted}, nil

	case *types.TransferPayload:
		return nil, tx.Transfer(sender, p.To, p.Amount)

	case *types.TransferFromPayload:
		return nil, tx.TransferFrom(sender, p.Owner, p.To, p.Amount)

	case *types.AllowancePayload:
		switch txType {
		case types.TxApprove:
			return nil, tx.Approve(sender, p.Spender, p.Amount)
		case types.TxIncreaseAllowance:
			return nil, tx.IncreaseAllowance(sender, p.Spender, p.Amount)
		default:
			return nil, tx.DecreaseAllowance(sender, p.Spender, p.Amount)
		}

	case *types.MintPayload:
		return nil, tx.Mint(sender, p.To, p.Amount)

	case *types.BurnPayload:
		return nil, tx.Burn(sender, p.From, p.Amount)

	case *types.AddressPayload:
		switch txType {
		case types.TxSetMinter:
			return nil, tx.SetMinter(sender, p.Address)
		case types.TxSetRelayHub:
			return nil, tx.SetRelayHub(sender, p.Address)
		default:
			return nil, tx.SetTrustedForwarder(sender, p.Address)
		}

	case *types.WithdrawAllPayload:
		withdrawn, err := tx.WithdrawAll(sender)
		if err != nil {
			return nil, err
		}
		return withdrawnResult{Withdrawn: withdrawn}, nil

	case *types.PublishPayload:
		id, err := tx.Publish(sender, p.Text, p.Price)
		if err != nil {
			return nil, err
		}
		return publishedResult{TokenID: id}, nil

	case *types.AddKarmaPayload:
		return nil, tx.AddKarmaTo(sender, p.TokenID, p.Amount)

	case *types.BuyContentPayload:
		return nil, tx.BuyContent(sender, p.TokenID)

	case *types.SetPricePayload:
		return nil, tx.SetPrice(sender, p.TokenID, p.Price)

	case *types.StakePayload:
		if txType == types.TxUnstake {
			return nil, tx.UnstakeUser(sender, p.Target)
		}
		return nil, tx.StakeUser(sender, p.Target)

	case *types.UpdateUserDataPayload:
		return nil, tx.UpdateUserData(sender, p.Name, types.Picture{CID: p.PicCID, MediaType: p.MediaType})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, txType)
}
