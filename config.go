package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pixiechain/mediagate/pkg/orchestrator"
)

const envPrefix = "MEDIAGATE"

type Config struct {
	ListenAddr string
	RPCURL     string
	ChainID    int64

	LogLevel  string
	LogFormat string

	Variants     []string
	RegistryPath string
	JournalPath  string

	TrackerWorkers  int
	TrackerQueue    int
	PollInterval    time.Duration
	RecoveryTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	// StrictStatusCodes answers failures with 4xx/5xx instead of 200.
	StrictStatusCodes bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

var configDefaults = map[string]interface{}{
	"listen_addr":         ":31090",
	"rpc_url":             "http://127.0.0.1:8545",
	"chain_id":            0,
	"log_level":           "info",
	"log_format":          "text",
	"variants":            "media,media1155,mediaA",
	"registry_path":       "",
	"journal_path":        "mediagate.db",
	"tracker_workers":     4,
	"tracker_queue":       256,
	"poll_interval":       time.Second,
	"recovery_timeout":    2 * time.Minute,
	"rate_limit_rps":      0.0,
	"rate_limit_burst":    0,
	"strict_status_codes": false,
	"read_timeout":        10 * time.Second,
	"write_timeout":       5 * time.Minute,
	"idle_timeout":        time.Minute,
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"listen-addr":         "listen_addr",
	"rpc-url":             "rpc_url",
	"chain-id":            "chain_id",
	"log-level":           "log_level",
	"log-format":          "log_format",
	"variants":            "variants",
	"registry":            "registry_path",
	"journal":             "journal_path",
	"tracker-workers":     "tracker_workers",
	"recovery-timeout":    "recovery_timeout",
	"strict-status-codes": "strict_status_codes",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, def := range configDefaults {
		v.SetDefault(key, def)
	}
	return v
}

// bindFlags attaches whichever known flags exist in fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		ListenAddr:        strings.TrimSpace(v.GetString("listen_addr")),
		RPCURL:            strings.TrimSpace(v.GetString("rpc_url")),
		ChainID:           v.GetInt64("chain_id"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		Variants:          parseList(v.Get("variants")),
		RegistryPath:      strings.TrimSpace(v.GetString("registry_path")),
		JournalPath:       strings.TrimSpace(v.GetString("journal_path")),
		TrackerWorkers:    v.GetInt("tracker_workers"),
		TrackerQueue:      v.GetInt("tracker_queue"),
		PollInterval:      v.GetDuration("poll_interval"),
		RecoveryTimeout:   v.GetDuration("recovery_timeout"),
		RateLimitRPS:      v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:    v.GetInt("rate_limit_burst"),
		StrictStatusCodes: v.GetBool("strict_status_codes"),
		ReadTimeout:       v.GetDuration("read_timeout"),
		WriteTimeout:      v.GetDuration("write_timeout"),
		IdleTimeout:       v.GetDuration("idle_timeout"),
	}
	if cfg.ListenAddr == "" {
		return cfg, fmt.Errorf("listen_addr is required")
	}
	if cfg.RPCURL == "" {
		return cfg, fmt.Errorf("rpc_url is required")
	}
	if len(cfg.Variants) == 0 {
		return cfg, fmt.Errorf("at least one variant must be enabled")
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll_interval must be positive")
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = int(cfg.RateLimitRPS) + 1
	}
	return cfg, nil
}

// enabledVariants resolves the configured variant names, rejecting unknown
// and repeated ones.
func (c Config) enabledVariants() ([]*orchestrator.Variant, error) {
	out := make([]*orchestrator.Variant, 0, len(c.Variants))
	seen := make(map[string]bool)
	for _, name := range c.Variants {
		v, err := orchestrator.LookupVariant(name)
		if err != nil {
			return nil, err
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("variant %s listed twice", v.Name)
		}
		seen[v.Name] = true
		out = append(out, v)
	}
	return out, nil
}

// parseList accepts a comma separated string (flags, environment) or a
// list (config file).
func parseList(raw interface{}) []string {
	var parts []string
	switch t := raw.(type) {
	case string:
		parts = strings.Split(t, ",")
	case []string:
		parts = t
	case []interface{}:
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
