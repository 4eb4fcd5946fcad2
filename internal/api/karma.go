package api

import (
	"net/http"

	"github.com/holiman/uint256"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

// @Title: Connect
// @Route: GET /api/connect/{address}
// @Description: Returns the balance, scaled balance, settlement balance, connected flag and module addresses for an identity
// @Response: {"address": "...", "balance": "0", "balance_human": "0", "settlement": "0", "connected": false, "contracts": {...}}
func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "connect", func(tx *ledger.Tx) (any, error) {
		conn := types.Connection{Address: addr}
		var err error
		if conn.Balance, err = tx.BalanceOf(addr); err != nil {
			return nil, err
		}
		if conn.Settlement, err = tx.SettlementOf(addr); err != nil {
			return nil, err
		}
		if conn.Connected, err = tx.UserHasConnected(addr); err != nil {
			return nil, err
		}
		conn.BalanceHuman = types.ScaleDown(conn.Balance, tx.Params().KarmaScale)

		minter, err := tx.Minter()
		if err != nil {
			return nil, err
		}
		forwarder, err := tx.TrustedForwarder()
		if err != nil {
			return nil, err
		}
		conn.Contracts = types.Contracts{
			Minter:    minter,
			Paymaster: types.PaymasterAddress,
			Content:   types.ContentAddress,
			Stake:     types.StakeAddress,
			Forwarder: forwarder,
		}
		return conn, nil
	})
}

// @Title: Get Karma Supply
// @Route: GET /api/karma/supply
// @Description: Returns total minted, burned and circulating Karma in base units
// @Response: {"minted": "0", "burned": "0", "total": "0"}
func (s *Service) HandleSupply(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, "karma supply", func(tx *ledger.Tx) (any, error) {
		return tx.Supply()
	})
}

// @Title: Get Karma Balance
// @Route: GET /api/karma/{address}/balance
// @Description: Returns the Karma balance of an account
// @Response: {"address": "...", "balance": "0"}
func (s *Service) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "karma balance", func(tx *ledger.Tx) (any, error) {
		bal, err := tx.BalanceOf(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "balance": bal}, nil
	})
}

// @Title: Get Karma Allowance
// @Route: GET /api/karma/{owner}/allowance/{spender}
// @Description: Returns how much Karma spender may move on behalf of owner
// @Response: {"owner": "...", "spender": "...", "allowance": "0"}
func (s *Service) HandleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := addressParam(r, "owner")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := addressParam(r, "spender")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "karma allowance", func(tx *ledger.Tx) (any, error) {
		v, err := tx.Allowance(owner, spender)
		if err != nil {
			return nil, err
		}
		return map[string]any{"owner": owner, "spender": spender, "allowance": v}, nil
	})
}

// @Title: Get Settlement Balance
// @Route: GET /api/settlement/{address}
// @Description: Returns the settlement currency balance used to buy Karma
// @Response: {"address": "...", "settlement": "0"}
func (s *Service) HandleSettlement(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "settlement balance", func(tx *ledger.Tx) (any, error) {
		v, err := tx.SettlementOf(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "settlement": v}, nil
	})
}

// paymasterView adds the economics a client needs to price a relayed call.
type paymasterView struct {
	types.PoolState
	KarmaPerUnit     *uint256.Int `json:"karma_per_unit"`
	RelayFeeEstimate *uint256.Int `json:"relay_fee_estimate"`
	UserShareBps     uint64       `json:"user_share_bps"`
	MinReserve       *uint256.Int `json:"min_reserve"`
}

// @Title: Get Paymaster
// @Route: GET /api/paymaster
// @Description: Returns the pool reserve, owner, trusted forwarder, relay hub, fees paid and relay economics
// @Response: {"owner": "...", "trusted_forwarder": "...", "reserve": "0", "fees_paid": "0", ...}
func (s *Service) HandlePaymaster(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, "paymaster", func(tx *ledger.Tx) (any, error) {
		st, err := tx.Pool()
		if err != nil {
			return nil, err
		}
		p := tx.Params()
		return paymasterView{
			PoolState:        st,
			KarmaPerUnit:     p.KarmaPerUnit,
			RelayFeeEstimate: p.RelayFeeEstimate,
			UserShareBps:     p.UserShareBps,
			MinReserve:       p.MinReserve,
		}, nil
	})
}
