package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/ledger"
)

// @Title: List Backups
// @Route: GET /api/backups
// @Description: Lists the ledger backups, oldest first
// @Response: [{"name": "stakes-....db", "size": 0, "created": "..."}]
func (s *Service) HandleBackupsList(w http.ResponseWriter, r *http.Request) {
	backups, err := s.store.ListBackups()
	if err != nil {
		s.log.Error("list backups", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to list backups")
		return
	}
	if backups == nil {
		backups = []ledger.BackupInfo{}
	}
	s.writeJSON(w, http.StatusOK, backups)
}

// @Title: Create Backup
// @Route: POST /api/backups
// @Description: Writes a consistent copy of the ledger to the backup directory and prunes old copies
// @Response: {"status": "ok", "backup": {"name": "...", "size": 0, "created": "..."}}
func (s *Service) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.BackupCurrent(s.maxBackups)
	if err != nil {
		s.log.Error("create backup", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to save backup")
		return
	}
	s.logger.Info("API: created ledger backup", zap.String("name", info.Name))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"backup": info,
	})
}

// @Title: Download Snapshot
// @Route: GET /api/backups/snapshot
// @Description: Downloads a consistent SQLite copy of the ledger
// @Response: application/vnd.sqlite3 file download
func (s *Service) HandleSnapshotDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportSnapshot()
	if err != nil {
		s.log.Error("export snapshot", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to export snapshot")
		return
	}
	filename := fmt.Sprintf("stakes-%s.db", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.log.Warn("write snapshot", zap.Error(err))
	}
}
