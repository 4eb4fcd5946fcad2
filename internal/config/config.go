// Package config centralizes runtime configuration for stakesd. It loads a
// JSON or YAML file and exposes a process-wide configuration with defaults.
// A missing file means defaults. STAKES_DB, STAKES_PORT and STAKES_KEY_FILE
// override the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/logger"
	"karmastakes.app/stakes/internal/types"
)

// Economics holds the ledger constants as decimal strings so large values
// survive JSON and YAML unchanged. Empty fields keep the ledger defaults.
type Economics struct {
	KarmaPerUnit     string  `json:"karma_per_unit" yaml:"karma_per_unit"`
	MinStakeKarma    string  `json:"min_stake_karma" yaml:"min_stake_karma"`
	RelayFeeEstimate string  `json:"relay_fee_estimate" yaml:"relay_fee_estimate"`
	RelayBaseFee     string  `json:"relay_base_fee" yaml:"relay_base_fee"`
	RelayByteFee     string  `json:"relay_byte_fee" yaml:"relay_byte_fee"`
	UserShareBps     *uint64 `json:"user_share_bps" yaml:"user_share_bps"`
	FeeKarmaRate     string  `json:"fee_karma_rate" yaml:"fee_karma_rate"`
	MinReserve       string  `json:"min_reserve" yaml:"min_reserve"`
	KarmaScaleFactor *uint   `json:"karma_scale_factor" yaml:"karma_scale_factor"`
	MaxSearchLimit   int     `json:"max_search_limit" yaml:"max_search_limit"`
}

// Config holds configurable options for the stakesd service.
type Config struct {
	Port       int    `json:"port" yaml:"port"`
	DBFile     string `json:"db_file" yaml:"db_file"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	// Owner becomes karma owner and pool owner. Empty means the daemon key.
	Owner            string            `json:"owner" yaml:"owner"`
	TrustedForwarder string            `json:"trusted_forwarder" yaml:"trusted_forwarder"`
	RelayHub         string            `json:"relay_hub" yaml:"relay_hub"`
	Economics        Economics         `json:"economics" yaml:"economics"`
	Settlement       map[string]string `json:"settlement" yaml:"settlement"`
	Log              logger.Options    `json:"log" yaml:"log"`
	LogBuffer        int               `json:"log_buffer" yaml:"log_buffer"`
}

var cfg *Config

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Port:       8080,
		DBFile:     "stakes.db",
		MaxBackups: 10,
		KeyFile:    "stakes_key.pem",
		LogBuffer:  500,
	}
}

// LoadConfig reads path as YAML (.yaml, .yml) or JSON (anything else). A
// missing file, or an empty path, yields defaults. A malformed file is an
// error.
func LoadConfig(path string) (*Config, error) {
	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(path, b, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyEnv(c)
	c.fillDefaults()
	if _, err := c.LedgerParams(); err != nil {
		return nil, err
	}
	if _, err := c.LedgerGenesis(""); err != nil {
		return nil, err
	}
	cfg = c
	return c, nil
}

// Get returns the loaded configuration, or defaults before LoadConfig.
func Get() *Config {
	if cfg == nil {
		c := Defaults()
		applyEnv(c)
		cfg = c
	}
	return cfg
}

func decode(path string, b []byte, c *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, c)
	default:
		return json.Unmarshal(b, c)
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("STAKES_DB"); v != "" {
		c.DBFile = v
	}
	if v := os.Getenv("STAKES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("STAKES_KEY_FILE"); v != "" {
		c.KeyFile = v
	}
}

func (c *Config) fillDefaults() {
	def := Defaults()
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.KeyFile == "" {
		c.KeyFile = def.KeyFile
	}
	if c.LogBuffer <= 0 {
		c.LogBuffer = def.LogBuffer
	}
}

// LedgerParams converts the economics section. Fields left empty take
// ledger.DefaultParams values.
func (c *Config) LedgerParams() (ledger.Params, error) {
	e := c.Economics
	p := ledger.DefaultParams()
	fields := []struct {
		name string
		raw  string
		dst  **uint256.Int
	}{
		{"karma_per_unit", e.KarmaPerUnit, &p.KarmaPerUnit},
		{"min_stake_karma", e.MinStakeKarma, &p.MinStakeKarma},
		{"relay_fee_estimate", e.RelayFeeEstimate, &p.RelayFeeEstimate},
		{"relay_base_fee", e.RelayBaseFee, &p.RelayBaseFee},
		{"relay_byte_fee", e.RelayByteFee, &p.RelayByteFee},
		{"fee_karma_rate", e.FeeKarmaRate, &p.FeeKarmaRate},
		{"min_reserve", e.MinReserve, &p.MinReserve},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := uint256.FromDecimal(strings.TrimSpace(f.raw))
		if err != nil {
			return ledger.Params{}, fmt.Errorf("economics.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	if e.UserShareBps != nil {
		if *e.UserShareBps > 10_000 {
			return ledger.Params{}, fmt.Errorf("economics.user_share_bps: %d exceeds 10000", *e.UserShareBps)
		}
		p.UserShareBps = *e.UserShareBps
	}
	if e.KarmaScaleFactor != nil {
		p.KarmaScale = *e.KarmaScaleFactor
	}
	if e.MaxSearchLimit > 0 {
		p.MaxSearchLimit = e.MaxSearchLimit
	}
	return p, nil
}

// LedgerGenesis resolves the roles and settlement allocations. fallback
// fills the owner (and an unset forwarder) when the file names none.
func (c *Config) LedgerGenesis(fallback types.Address) (ledger.Genesis, error) {
	owner, err := optionalAddress("owner", c.Owner, fallback)
	if err != nil {
		return ledger.Genesis{}, err
	}
	forwarder, err := optionalAddress("trusted_forwarder", c.TrustedForwarder, owner)
	if err != nil {
		return ledger.Genesis{}, err
	}
	hub, err := optionalAddress("relay_hub", c.RelayHub, "")
	if err != nil {
		return ledger.Genesis{}, err
	}

	g := ledger.Genesis{
		KarmaOwner:       owner,
		PoolOwner:        owner,
		TrustedForwarder: forwarder,
		RelayHub:         hub,
		Settlement:       make(map[types.Address]*uint256.Int, len(c.Settlement)),
	}
	for raw, amount := range c.Settlement {
		addr, ok := types.ParseAddress(raw)
		if !ok {
			return ledger.Genesis{}, fmt.Errorf("settlement: invalid address %q", raw)
		}
		v, err := uint256.FromDecimal(strings.TrimSpace(amount))
		if err != nil {
			return ledger.Genesis{}, fmt.Errorf("settlement[%s]: %w", raw, err)
		}
		g.Settlement[addr] = v
	}
	return g, nil
}

func optionalAddress(field, raw string, fallback types.Address) (types.Address, error) {
	if raw == "" {
		return fallback, nil
	}
	addr, ok := types.ParseAddress(raw)
	if !ok {
		return "", fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return addr, nil
}
