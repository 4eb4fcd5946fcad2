// Package api serves the ledger over HTTP: JSON reads of every component,
// signed and relayed transaction submission, logs, backups and docs.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/docs"
	"karmastakes.app/stakes/internal/feed"
	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/logger"
	"karmastakes.app/stakes/internal/metrics"
	"karmastakes.app/stakes/internal/relay"
	"karmastakes.app/stakes/internal/types"
)

// maxBodyBytes bounds a submitted transaction.
const maxBodyBytes = 1 << 20

// Service handles API requests
type Service struct {
	store      *ledger.Store
	gateway    *relay.Gateway
	logger     *logger.Logger
	log        *zap.Logger
	hub        *feed.Hub
	metrics    *metrics.Collector
	docs       *docs.Service
	maxBackups int
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithHub serves the websocket event stream from hub.
func WithHub(h *feed.Hub) Option { return func(s *Service) { s.hub = h } }

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(c *metrics.Collector) Option { return func(s *Service) { s.metrics = c } }

// WithDocs serves the rendered API reference.
func WithDocs(d *docs.Service) Option { return func(s *Service) { s.docs = d } }

// WithMaxBackups sets how many backups POST /api/backups keeps.
func WithMaxBackups(n int) Option { return func(s *Service) { s.maxBackups = n } }

// NewService creates a new API service
func NewService(store *ledger.Store, gateway *relay.Gateway, l *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		gateway:    gateway,
		logger:     l,
		log:        l.Named("api"),
		maxBackups: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError reports err with the status of its ledger code. Errors
// without a code are logged and hidden behind a 500.
func (s *Service) writeLedgerError(w http.ResponseWriter, op string, err error) {
	code := ledger.CodeOf(err)
	if code == "" {
		s.log.Error(op, zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, statusForCode(code), map[string]string{
		"error":      err.Error(),
		"error_code": string(code),
	})
}

func statusForCode(code ledger.Code) int {
	switch code {
	case ledger.CodeUnauthorized, ledger.CodeUntrustedForwarder:
		return http.StatusForbidden
	case ledger.CodeNoSuchToken:
		return http.StatusNotFound
	case ledger.CodeInvalidAddress:
		return http.StatusBadRequest
	case ledger.CodeReserveExhausted:
		return http.StatusServiceUnavailable
	case ledger.CodeReplayed:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// statusForResponse maps a gateway result to an HTTP status.
func statusForResponse(resp types.TxResponse) int {
	switch resp.Code {
	case relay.CodeTypeOK:
		return http.StatusOK
	case relay.CodeTypeEncodingError, relay.CodeTypeInvalidTx:
		return http.StatusBadRequest
	case relay.CodeTypeAuthError:
		return http.StatusUnauthorized
	case relay.CodeTypeRejected:
		return statusForCode(ledger.Code(resp.ErrorCode))
	default:
		return http.StatusInternalServerError
	}
}

// addressParam reads and validates the named path parameter.
func addressParam(r *http.Request, name string) (types.Address, error) {
	addr, ok := types.ParseAddress(chi.URLParam(r, name))
	if !ok {
		return "", fmt.Errorf("%s must be a 64 character hex address", name)
	}
	return addr, nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// queryInt reads a non-negative integer query value, def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// view runs fn as a read and writes its result, or the error.
func (s *Service) view(w http.ResponseWriter, r *http.Request, op string, fn func(tx *ledger.Tx) (any, error)) {
	var out any
	err := s.store.View(r.Context(), func(tx *ledger.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}
