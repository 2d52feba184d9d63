package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"healthledger/core/logging"
	"healthledger/core/miner"
	"healthledger/core/storage"
)

// Corruption policies applied when the store fails to load.
const (
	OnCorruptFail   = "fail"
	OnCorruptReinit = "reinit"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGER_"

// DotEnvFiles are read by Load before the environment is consulted. Missing
// files are skipped; variables already set in the process win.
var DotEnvFiles = []string{".env"}

// Config holds every ledger setting.
type Config struct {
	StorePath         string `yaml:"store_path"`
	Backend           string `yaml:"backend"`
	Difficulty        int    `yaml:"difficulty"`
	MaxNonce          uint64 `yaml:"max_nonce"`
	PoolCapacity      int    `yaml:"pool_capacity"`
	OffloadDifficulty int    `yaml:"offload_difficulty"`
	GenesisPath       string `yaml:"genesis_path"`
	AuditLogPath      string `yaml:"audit_log_path"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
	StatusAddr        string `yaml:"status_addr"`
	OnCorrupt         string `yaml:"on_corrupt"`
	DetectedBy        string `yaml:"detected_by"`
	AdminRecipient    string `yaml:"admin_recipient"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		StorePath:         "data/chain.json",
		Backend:           storage.BackendFile,
		Difficulty:        2,
		MaxNonce:          miner.DefaultMaxNonce,
		PoolCapacity:      0,
		OffloadDifficulty: miner.DefaultOffloadDifficulty,
		LogLevel:          "info",
		StatusAddr:        ":8090",
		OnCorrupt:         OnCorruptFail,
		DetectedBy:        "integrity-gate",
		AdminRecipient:    "admin",
	}
}

// Load layers defaults, the optional YAML file at path, DotEnvFiles and
// LEDGER_* environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	for _, f := range DotEnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("STORE_PATH", &c.StorePath)
	str("BACKEND", &c.Backend)
	str("GENESIS_PATH", &c.GenesisPath)
	str("AUDIT_LOG_PATH", &c.AuditLogPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	str("STATUS_ADDR", &c.StatusAddr)
	str("ON_CORRUPT", &c.OnCorrupt)
	str("DETECTED_BY", &c.DetectedBy)
	str("ADMIN_RECIPIENT", &c.AdminRecipient)
	if err := num("DIFFICULTY", &c.Difficulty); err != nil {
		return err
	}
	if err := num("POOL_CAPACITY", &c.PoolCapacity); err != nil {
		return err
	}
	if err := num("OFFLOAD_DIFFICULTY", &c.OffloadDifficulty); err != nil {
		return err
	}
	if v := getenv(EnvPrefix + "MAX_NONCE"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_NONCE: %w", EnvPrefix, err)
		}
		c.MaxNonce = n
	}
	return nil
}

// Validate rejects settings the ledger cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StorePath) == "" {
		errs = append(errs, errors.New("store_path is required"))
	}
	switch c.Backend {
	case storage.BackendFile, storage.BackendLevelDB, storage.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend %q must be one of %s", c.Backend, strings.Join(storage.Backends, ", ")))
	}
	if c.Difficulty < 0 || c.Difficulty > miner.MaxDifficulty {
		errs = append(errs, fmt.Errorf("difficulty %d outside 0..%d", c.Difficulty, miner.MaxDifficulty))
	}
	if c.MaxNonce == 0 {
		errs = append(errs, errors.New("max_nonce must be positive"))
	} else if c.Difficulty >= 0 && c.Difficulty <= miner.MaxDifficulty && !miner.Feasible(c.Difficulty, c.MaxNonce) {
		errs = append(errs, fmt.Errorf("difficulty %d needs about %d hashes per block, more than max_nonce %d allows (%dx headroom)",
			c.Difficulty, miner.ExpectedWork(c.Difficulty), c.MaxNonce, miner.WorkHeadroom))
	}
	if c.PoolCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool_capacity %d must not be negative", c.PoolCapacity))
	}
	if c.OffloadDifficulty < 0 {
		errs = append(errs, fmt.Errorf("offload_difficulty %d must not be negative", c.OffloadDifficulty))
	}
	switch c.OnCorrupt {
	case OnCorruptFail, OnCorruptReinit:
	default:
		errs = append(errs, fmt.Errorf("on_corrupt %q must be %q or %q", c.OnCorrupt, OnCorruptFail, OnCorruptReinit))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
