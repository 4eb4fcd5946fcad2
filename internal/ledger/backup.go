package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var errNoBackups = errors.New("no ledger backups available")

// BackupInfo describes one backup file.
type BackupInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// Backup files are named <db stem>-<unix millis><db ext>.
func (s *Store) backupPattern() (prefix, ext string) {
	base := filepath.Base(s.file)
	ext = filepath.Ext(base)
	prefix = strings.TrimSuffix(base, ext)
	if prefix == "" {
		prefix = base
	}
	return prefix + "-", ext
}

// ListBackups returns the backups of this ledger, oldest first.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	prefix, ext := s.backupPattern()
	backups := []BackupInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		created := info.ModTime()
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		if ms, err := strconv.ParseInt(stamp, 10, 64); err == nil {
			created = time.UnixMilli(ms)
		}
		backups = append(backups, BackupInfo{
			Name:    name,
			Path:    filepath.Join(s.backupDir, name),
			Size:    info.Size(),
			Created: created.UTC(),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Name < backups[j].Name
		}
		return backups[i].Created.Before(backups[j].Created)
	})
	return backups, nil
}

// BackupCurrent writes a consistent copy of the ledger into the backup
// directory and keeps at most maxBackups files.
func (s *Store) BackupCurrent(maxBackups int) (BackupInfo, error) {
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return BackupInfo{}, fmt.Errorf("ensure backup directory: %w", err)
	}

	path := s.uniqueBackupPath()
	if err := s.vacuumInto(path); err != nil {
		return BackupInfo{}, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		s.log.Warn("restrict backup permissions", zap.String("path", path), zap.Error(err))
	}
	info, err := os.Stat(path)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("stat backup: %w", err)
	}
	s.pruneBackups(maxBackups)
	s.log.Info("ledger backup written", zap.String("file", filepath.Base(path)), zap.Int64("bytes", info.Size()))
	return BackupInfo{
		Name:    filepath.Base(path),
		Path:    path,
		Size:    info.Size(),
		Created: info.ModTime().UTC(),
	}, nil
}

// ExportSnapshot returns the bytes of a consistent copy of the ledger.
func (s *Store) ExportSnapshot() ([]byte, error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.file), "stakes-export-*.db")
	if err != nil {
		return nil, fmt.Errorf("create temp export file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses an existing target.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := s.vacuumInto(tmpPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	return data, nil
}

func (s *Store) vacuumInto(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errors.New("ledger is closed")
	}
	escaped := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return fmt.Errorf("vacuum into %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) uniqueBackupPath() string {
	prefix, ext := s.backupPattern()
	stamp := time.Now().UnixMilli()
	for {
		path := filepath.Join(s.backupDir, fmt.Sprintf("%s%d%s", prefix, stamp, ext))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		stamp++
	}
}

func (s *Store) pruneBackups(maxBackups int) {
	backups, err := s.ListBackups()
	if err != nil || len(backups) <= maxBackups {
		return
	}
	for _, b := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(b.Path); err != nil {
			s.log.Warn("prune backup", zap.String("file", b.Name), zap.Error(err))
		}
	}
}

// restoreLatestBackup replaces an unreadable database with the newest
// backup and reopens it.
func (s *Store) restoreLatestBackup() error {
	backups, err := s.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return errNoBackups
	}

	latest := backups[len(backups)-1]
	if err := s.resetDatabaseFiles(); err != nil {
		return err
	}
	if err := copyFile(latest.Path, s.file); err != nil {
		return fmt.Errorf("copy backup %s: %w", latest.Name, err)
	}
	s.log.Warn("ledger restored from backup", zap.String("file", latest.Name))
	return s.openDB()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
