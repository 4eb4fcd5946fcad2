// Package ledger hosts the Karma Stakes state machine: the Karma balance
// ledger, the paymaster pool, the content registry and the stake graph, all
// recording into one append-only event log. State lives in SQLite. Every
// mutating operation runs inside a single SQL transaction under the store's
// write lock, so multi-step operations commit as a unit or not at all.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/types"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "stakes.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultMaxBackups    = 20
)

// Options configures Open.
type Options struct {
	Path    string
	Params  Params
	Genesis Genesis
	Logger  *zap.Logger
}

// Store owns the ledger database.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
	params    Params
	log       *zap.Logger

	hookMu sync.RWMutex
	hooks  []func([]types.Event)
	// pubMu is held from the start of a write until its hooks return.
	pubMu sync.Mutex
}

// Open opens (or creates) the ledger at opts.Path, recovering from the
// newest backup when the file cannot be opened, and applies genesis on first
// use.
func Open(opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		path = defaultDBFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	params := opts.Params
	params.fillDefaults()

	s := &Store{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
		params:    params,
		log:       log.Named("ledger"),
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	if err := s.tryOpenOrRecover(); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(); err != nil {
		_ = s.closeDB()
		return nil, err
	}
	if err := s.applyGenesis(opts.Genesis); err != nil {
		_ = s.closeDB()
		return nil, err
	}
	return s, nil
}

// Params returns the economic constants in force.
func (s *Store) Params() Params {
	return s.params
}

// Path is the absolute database file name.
func (s *Store) Path() string {
	return s.file
}

// OnCommit registers fn to receive the events of every committed operation.
// Hooks run after the write lock is released, one commit at a time and in
// commit order. A hook must not call Update.
func (s *Store) OnCommit(fn func([]types.Event)) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

// Update runs fn in one write transaction. Any error from fn rolls back
// every change fn made, events included. The committed events are returned
// and passed to the OnCommit hooks.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) ([]types.Event, error) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	events, err := s.update(ctx, fn)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		s.hookMu.RLock()
		hooks := s.hooks
		s.hookMu.RUnlock()
		for _, h := range hooks {
			h(events)
		}
	}
	return events, nil
}

func (s *Store) update(ctx context.Context, fn func(tx *Tx) error) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, errors.New("ledger is closed")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	t := &Tx{ctx: ctx, tx: sqlTx, params: &s.params, now: time.Now().UTC()}

	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return t.events, nil
}

// View runs fn against a consistent snapshot. fn must not mutate state;
// whatever it writes is rolled back.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errors.New("ledger is closed")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer sqlTx.Rollback()

	t := &Tx{ctx: ctx, tx: sqlTx, params: &s.params, now: time.Now().UTC(), readOnly: true}
	return fn(t)
}

func (s *Store) tryOpenOrRecover() error {
	if err := s.openDB(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			return recErr
		}
	}
	return nil
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		filepath.Clean(s.file), maxBusyTimeoutMs)

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}
	// A quick integrity probe so a truncated file triggers recovery here.
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		db.Close()
		return fmt.Errorf("read sqlite schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) recoverDatabase(openErr error) error {
	s.log.Warn("ledger database unreadable, recovering", zap.Error(openErr))
	if err := s.restoreLatestBackup(); err != nil {
		if errors.Is(err, errNoBackups) {
			if cleanErr := s.resetDatabaseFiles(); cleanErr != nil {
				return fmt.Errorf("reset database after %v: %w", openErr, cleanErr)
			}
			if err := s.openDB(); err != nil {
				return fmt.Errorf("create fresh database after %v: %w", openErr, err)
			}
			return nil
		}
		return fmt.Errorf("restore database after %v: %w", openErr, err)
	}
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) resetDatabaseFiles() error {
	_ = s.closeDB()

	var firstErr error
	for _, path := range []string{s.file, s.file + "-wal", s.file + "-shm"} {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", filepath.Base(path), err)
			}
		}
	}
	return firstErr
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL UNIQUE,
		karma BLOB NOT NULL,
		settlement BLOB NOT NULL,
		connected INTEGER NOT NULL DEFAULT 0,
		has_profile INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		pic_cid TEXT NOT NULL DEFAULT '',
		pic_media_type TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS allowances (
		owner TEXT NOT NULL,
		spender TEXT NOT NULL,
		amount BLOB NOT NULL,
		PRIMARY KEY (owner, spender)
	)`,
	`CREATE TABLE IF NOT EXISTS content (
		token_id INTEGER PRIMARY KEY AUTOINCREMENT,
		body TEXT NOT NULL,
		price BLOB NOT NULL,
		karma BLOB NOT NULL,
		creator TEXT NOT NULL,
		owner TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS content_owner ON content (owner, token_id)`,
	`CREATE INDEX IF NOT EXISTS content_karma ON content (karma DESC, token_id)`,
	`CREATE TABLE IF NOT EXISTS stakes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		staker TEXT NOT NULL,
		target TEXT NOT NULL,
		UNIQUE (staker, target)
	)`,
	`CREATE INDEX IF NOT EXISTS stakes_target ON stakes (target)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		token_id INTEGER NOT NULL DEFAULT 0,
		amount BLOB,
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		tx_id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		kind TEXT NOT NULL,
		relayed INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	return nil
}

const (
	settingKarmaOwner       = "karma_owner"
	settingMinter           = "minter"
	settingPoolOwner        = "pool_owner"
	settingTrustedForwarder = "trusted_forwarder"
	settingRelayHub         = "relay_hub"
	settingGenesis          = "genesis_at"

	counterMinted           = "minted"
	counterBurned           = "burned"
	counterReserve          = "reserve"
	counterFeesPaid         = "fees_paid"
	counterKarmaCollected   = "karma_collected"
	counterSettlementIssued = "settlement_issued"
)

// applyGenesis seeds roles and settlement balances once. A ledger that has
// already been initialised keeps its state regardless of g.
func (s *Store) applyGenesis(g Genesis) error {
	_, err := s.Update(context.Background(), func(tx *Tx) error {
		done, err := tx.setting(settingGenesis)
		if err != nil || done != "" {
			return err
		}

		roles := []struct {
			key  string
			addr types.Address
		}{
			{settingKarmaOwner, g.KarmaOwner},
			{settingMinter, types.PaymasterAddress},
			{settingPoolOwner, g.PoolOwner},
			{settingTrustedForwarder, g.TrustedForwarder},
			{settingRelayHub, g.RelayHub},
		}
		for _, r := range roles {
			if !r.addr.IsZero() && !r.addr.Valid() {
				return fail(CodeInvalidAddress, "genesis", "%s: %q", r.key, r.addr)
			}
			if err := tx.setSetting(r.key, string(r.addr)); err != nil {
				return err
			}
		}

		addrs := make([]types.Address, 0, len(g.Settlement))
		for addr := range g.Settlement {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

		issued := zero()
		for _, addr := range addrs {
			amount := g.Settlement[addr]
			if !addr.Valid() {
				return fail(CodeInvalidAddress, "genesis", "settlement for %q", addr)
			}
			if err := tx.creditSettlement("genesis", addr, amount); err != nil {
				return err
			}
			if issued, err = add("genesis", issued, amount); err != nil {
				return err
			}
			if err := tx.emit(types.Event{Kind: types.EventDeposit, Subject: addr, Amount: amount, Detail: "genesis settlement"}); err != nil {
				return err
			}
		}
		if err := tx.setCounter(counterSettlementIssued, issued); err != nil {
			return err
		}
		if err := tx.emit(types.Event{Kind: types.EventConfig, Actor: g.PoolOwner, Detail: "genesis"}); err != nil {
			return err
		}
		if err := tx.setSetting(settingGenesis, tx.now.Format(time.RFC3339Nano)); err != nil {
			return err
		}
		s.log.Info("ledger genesis applied",
			zap.String("karma_owner", g.KarmaOwner.Short()),
			zap.String("pool_owner", g.PoolOwner.Short()),
			zap.Int("settlement_accounts", len(g.Settlement)))
		return nil
	})
	return err
}
