package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/types"
)

func (s *Service) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *Service) writeTxResponse(w http.ResponseWriter, resp types.TxResponse) {
	s.writeJSON(w, statusForResponse(resp), resp)
}

// @Title: Submit Transaction
// @Route: POST /api/tx?check=true
// @Description: Applies a signed transaction as its signer. With check=true the transaction is only verified.
// @Response: {"code": 0, "tx_id": "...", "sender": "...", "result": {...}, "events": [...]}
func (s *Service) HandleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("check") == "true" {
		s.writeTxResponse(w, s.gateway.CheckTx(body))
		return
	}
	resp := s.gateway.DeliverTx(r.Context(), body)
	if resp.Code != 0 {
		s.log.Debug("transaction not applied", zap.Uint32("code", resp.Code), zap.String("log", resp.Log))
	}
	s.writeTxResponse(w, resp)
}

// @Title: Submit Relayed Transaction
// @Route: POST /api/relay?check=true
// @Description: Applies a forwarder countersigned intent with the fee sponsored by the paymaster pool. With check=true the request is only verified.
// @Response: {"code": 0, "tx_id": "...", "sender": "...", "fee": {"fee": "0", "karma_share": "0", "paid_to": "..."}, "events": [...]}
func (s *Service) HandleSubmitRelay(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("check") == "true" {
		s.writeTxResponse(w, s.gateway.CheckRelay(body))
		return
	}
	s.writeTxResponse(w, s.gateway.DeliverRelay(r.Context(), body))
}
