package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the resolved runtime configuration: file values merged with
// defaults. Command-line flags override individual fields afterwards.
type Settings struct {
	Network string
	ChainID int64
	RPCURL  string

	QuoteURL      string
	FeeURL        string
	PermitURL     string
	BuildTxURL    string
	SlippageURL   string
	InvalidateURL string

	SlippageMode string
	SlippagePct  string

	Timeout time.Duration
	Retries int

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string

	HistoryPath     string
	HistoryLockPath string

	LogProduction bool
	LogLevel      string
}

type fileConfig struct {
	Network string `yaml:"network"`
	ChainID int64  `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`

	Services struct {
		Quote      string `yaml:"quote"`
		Fee        string `yaml:"fee"`
		Permit     string `yaml:"permit"`
		BuildTx    string `yaml:"build_tx"`
		Slippage   string `yaml:"slippage"`
		Invalidate string `yaml:"invalidate"`
	} `yaml:"services"`

	Slippage struct {
		Mode string `yaml:"mode"`
		Pct  string `yaml:"pct"`
	} `yaml:"slippage"`

	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`

	Cache struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"cache"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Logging struct {
		Production *bool  `yaml:"production"`
		Level      string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the YAML config at path (or the default location when path is
// empty) and applies defaults for everything unset. A missing default file
// is not an error.
func Load(path string) (Settings, error) {
	settings := defaults()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return settings, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return Settings{}, fmt.Errorf("parse config file: %w", err)
	}
	return merge(settings, fc)
}

func defaults() Settings {
	stateDir := defaultStateDir()
	return Settings{
		Network:         "mainnet",
		ChainID:         1,
		SlippageMode:    "auto",
		SlippagePct:     "0.5",
		Timeout:         10 * time.Second,
		Retries:         2,
		CacheEnabled:    true,
		CachePath:       filepath.Join(stateDir, "quotes.db"),
		CacheLockPath:   filepath.Join(stateDir, "quotes.lock"),
		HistoryPath:     filepath.Join(stateDir, "history.db"),
		HistoryLockPath: filepath.Join(stateDir, "history.lock"),
		LogLevel:        "info",
	}
}

func merge(settings Settings, fc fileConfig) (Settings, error) {
	if fc.Network != "" {
		settings.Network = fc.Network
	}
	if fc.ChainID != 0 {
		settings.ChainID = fc.ChainID
	}
	if fc.RPCURL != "" {
		settings.RPCURL = fc.RPCURL
	}
	if fc.Services.Quote != "" {
		settings.QuoteURL = fc.Services.Quote
	}
	if fc.Services.Fee != "" {
		settings.FeeURL = fc.Services.Fee
	}
	if fc.Services.Permit != "" {
		settings.PermitURL = fc.Services.Permit
	}
	if fc.Services.BuildTx != "" {
		settings.BuildTxURL = fc.Services.BuildTx
	}
	if fc.Services.Slippage != "" {
		settings.SlippageURL = fc.Services.Slippage
	}
	if fc.Services.Invalidate != "" {
		settings.InvalidateURL = fc.Services.Invalidate
	}
	if fc.Slippage.Mode != "" {
		mode := strings.ToLower(fc.Slippage.Mode)
		if mode != "auto" && mode != "fixed" {
			return Settings{}, fmt.Errorf("slippage mode must be auto or fixed, got %q", fc.Slippage.Mode)
		}
		settings.SlippageMode = mode
	}
	if fc.Slippage.Pct != "" {
		settings.SlippagePct = fc.Slippage.Pct
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil || d <= 0 {
			return Settings{}, fmt.Errorf("timeout must be a positive duration, got %q", fc.Timeout)
		}
		settings.Timeout = d
	}
	if fc.Retries != nil {
		if *fc.Retries < 0 {
			return Settings{}, fmt.Errorf("retries must be >= 0")
		}
		settings.Retries = *fc.Retries
	}
	if fc.Cache.Enabled != nil {
		settings.CacheEnabled = *fc.Cache.Enabled
	}
	if fc.Cache.Path != "" {
		settings.CachePath = fc.Cache.Path
		settings.CacheLockPath = fc.Cache.Path + ".lock"
	}
	if fc.History.Path != "" {
		settings.HistoryPath = fc.History.Path
		settings.HistoryLockPath = fc.History.Path + ".lock"
	}
	if fc.Logging.Production != nil {
		settings.LogProduction = *fc.Logging.Production
	}
	if fc.Logging.Level != "" {
		settings.LogLevel = fc.Logging.Level
	}
	return settings, nil
}

func defaultConfigPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "swap-cli", "config.yaml")
}

func defaultStateDir() string {
	base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return os.TempDir()
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "swap-cli")
}
