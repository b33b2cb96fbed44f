package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"slotmap/storage"
)

// Config is the on-disk configuration of slotmapctl.
type Config struct {
	DataDir       string    `toml:"DataDir"`
	Backend       string    `toml:"Backend"`
	ContractName  string    `toml:"ContractName"`
	Environment   string    `toml:"Environment"`
	LogLevel      string    `toml:"LogLevel"`
	LogFile       string    `toml:"LogFile,omitempty"`
	ListenAddress string    `toml:"ListenAddress"`
	RateLimit     float64   `toml:"RateLimit"`
	RateBurst     int       `toml:"RateBurst"`
	Telemetry     Telemetry `toml:"telemetry"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers,omitempty"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		DataDir:       "./slotmap-data",
		Backend:       storage.BackendLevelDB,
		ContractName:  "slotmap",
		Environment:   "local",
		LogLevel:      "info",
		ListenAddress: "127.0.0.1:8645",
		RateLimit:     50,
		RateBurst:     100,
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load loads the configuration from the given path, writing the default
// configuration there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the CLI cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, c.Backend)
	}
	if strings.TrimSpace(c.ContractName) == "" {
		return fmt.Errorf("ContractName must not be empty")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("RateLimit and RateBurst must not be negative")
	}
	return nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
