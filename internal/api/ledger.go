package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/docs"
	"karmastakes.app/stakes/internal/ledger"
)

// @Title: List Events
// @Route: GET /api/events?after=&limit=
// @Description: Returns a page of the event log with sequence numbers above after
// @Response: [{"seq": 1, "kind": "mint", "actor": "...", "amount": "0", "time": "..."}]
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "after must be an event sequence number")
			return
		}
		after = v
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.view(w, r, "list events", func(tx *ledger.Tx) (any, error) {
		return tx.EventsAfter(after, limit)
	})
}

// @Title: Audit Ledger
// @Route: GET /api/audit
// @Description: Checks the balance sum, settlement and content ownership invariants
// @Response: {"ok": true, "karma_sum": "0", "supply": "0", ...}
func (s *Service) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.Audit(r.Context())
	if err != nil {
		s.writeLedgerError(w, "audit", err)
		return
	}
	status := http.StatusOK
	if !report.OK {
		s.log.Error("ledger audit failed", zap.Strings("problems", report.Problems))
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

// @Title: Get Logs
// @Route: GET /api/logs?n=
// @Description: Returns the most recent log messages, newest first
// @Response: [{"timestamp": "...", "text": "...", "level": "info"}]
func (s *Service) HandleLogs(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.logger.GetRecent(n))
}

// @Title: Get API Docs
// @Route: GET /api/docs
// @Description: Returns this reference rendered from asciidoc as HTML
// @Response: text/html
func (s *Service) HandleDocs(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		s.writeError(w, http.StatusNotFound, "docs are not available")
		return
	}
	html, err := s.docs.GetDoc(r.Context(), docs.APIReference)
	if err != nil {
		if errors.Is(err, docs.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "docs are not available")
			return
		}
		s.log.Error("render docs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to render docs")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(html)); err != nil {
		s.log.Warn("write docs", zap.Error(err))
	}
}
