package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns the daemon version, build and last event sequence
// @Response: {"version": "...", "status": "ok", "last_event": 0}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	response := map[string]any{
		"version":  types.Version,
		"status":   "ok",
		"hostname": hostname,
		"go_ver":   runtime.Version(),
		"os_arch":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if types.BuildTime != "" {
		response["build_time"] = types.BuildTime
	}

	var last uint64
	err := s.store.View(r.Context(), func(tx *ledger.Tx) error {
		var err error
		last, err = tx.LastEventSeq()
		return err
	})
	if err != nil {
		s.log.Warn("read last event", zap.Error(err))
	} else {
		response["last_event"] = last
	}

	s.writeJSON(w, http.StatusOK, response)
}
