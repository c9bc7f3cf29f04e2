package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kutluhann/xordht/constants"
	"github.com/kutluhann/xordht/dht"
	"github.com/kutluhann/xordht/id_tools"
)

// EnvPrefix prefixes every environment override, e.g. XORDHT_NETWORK_PORT.
const EnvPrefix = "XORDHT_"

// Config is the runtime configuration of one node.
type Config struct {
	NodeID      string `yaml:"node_id"` // hex, random when empty
	ListenHost  string `yaml:"listen_host"`
	NetworkPort int    `yaml:"network_port"`
	APIPort     int    `yaml:"api_port"`  // 0 disables the client API
	HTTPAddr    string `yaml:"http_addr"` // empty disables the status server

	K              int           `yaml:"k"`
	Alpha          int           `yaml:"alpha"`
	WakeInterval   time.Duration `yaml:"wake_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EvictionTTL    time.Duration `yaml:"eviction_ttl"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	ValueTTL       time.Duration `yaml:"value_ttl"`

	BootstrapPeers []string      `yaml:"bootstrap_peers"`
	BootstrapDelay time.Duration `yaml:"bootstrap_delay"`

	APIRateLimit float64 `yaml:"api_rate_limit"` // requests per second per source
	APIBurst     int     `yaml:"api_burst"`

	LogLevel      string `yaml:"log_level"`
	LogEncoding   string `yaml:"log_encoding"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

func Default() *Config {
	return &Config{
		ListenHost:     "0.0.0.0",
		NetworkPort:    8080,
		APIPort:        9090,
		HTTPAddr:       "",
		K:              constants.K,
		Alpha:          constants.Alpha,
		WakeInterval:   constants.WakeInterval,
		RequestTimeout: constants.RequestTimeout,
		EvictionTTL:    constants.EvictionTTL,
		LookupTimeout:  constants.LookupTimeout,
		ValueTTL:       constants.ValueTTL,
		BootstrapDelay: 2 * time.Second,
		APIRateLimit:   50,
		APIBurst:       100,
		LogLevel:       "info",
		LogEncoding:    "console",
		LogMaxSizeMB:   100,
		LogMaxBackups:  3,
		LogMaxAgeDays:  28,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then a .env file if one exists, then
// XORDHT_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("NODE_ID", &c.NodeID)
	str("LISTEN_HOST", &c.ListenHost)
	integer("NETWORK_PORT", &c.NetworkPort)
	integer("API_PORT", &c.APIPort)
	str("HTTP_ADDR", &c.HTTPAddr)
	integer("K", &c.K)
	integer("ALPHA", &c.Alpha)
	duration("WAKE_INTERVAL", &c.WakeInterval)
	duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	duration("EVICTION_TTL", &c.EvictionTTL)
	duration("LOOKUP_TIMEOUT", &c.LookupTimeout)
	duration("VALUE_TTL", &c.ValueTTL)
	duration("BOOTSTRAP_DELAY", &c.BootstrapDelay)
	integer("API_BURST", &c.APIBurst)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_ENCODING", &c.LogEncoding)
	str("LOG_FILE", &c.LogFile)

	if v, ok := lookup(EnvPrefix + "BOOTSTRAP_PEERS"); ok {
		c.BootstrapPeers = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.BootstrapPeers = append(c.BootstrapPeers, p)
			}
		}
	}
	if v, ok := lookup(EnvPrefix + "API_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sAPI_RATE_LIMIT: %w", EnvPrefix, err))
		} else {
			c.APIRateLimit = f
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.NodeID != "" {
		if _, err := id_tools.Parse(c.NodeID); err != nil {
			errs = append(errs, fmt.Errorf("node_id: %w", err))
		}
	}
	if c.NetworkPort < 0 || c.NetworkPort > 65535 {
		errs = append(errs, fmt.Errorf("network_port %d out of range", c.NetworkPort))
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("api_port %d out of range", c.APIPort))
	}
	if c.K < 1 {
		errs = append(errs, fmt.Errorf("k must be positive, got %d", c.K))
	}
	if c.Alpha < 1 {
		errs = append(errs, fmt.Errorf("alpha must be positive, got %d", c.Alpha))
	}
	for name, d := range map[string]time.Duration{
		"wake_interval":   c.WakeInterval,
		"request_timeout": c.RequestTimeout,
		"eviction_ttl":    c.EvictionTTL,
		"lookup_timeout":  c.LookupTimeout,
		"value_ttl":       c.ValueTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.BootstrapDelay < 0 {
		errs = append(errs, fmt.Errorf("bootstrap_delay must not be negative"))
	}
	if c.APIRateLimit <= 0 || c.APIBurst < 1 {
		errs = append(errs, fmt.Errorf("api_rate_limit and api_burst must be positive"))
	}
	switch c.LogEncoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_encoding must be console or json, got %q", c.LogEncoding))
	}

	return errors.Join(errs...)
}

// ListenAddr is the node's UDP address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.NetworkPort)
}

// MachineConfig converts the configuration for dht.NewMachine.
func (c *Config) MachineConfig() (dht.MachineConfig, error) {
	mc := dht.DefaultMachineConfig()
	if c.NodeID != "" {
		id, err := id_tools.Parse(c.NodeID)
		if err != nil {
			return mc, fmt.Errorf("node_id: %w", err)
		}
		mc.ID = id
	}
	mc.ListenAddr = c.ListenAddr()
	mc.K = c.K
	mc.Alpha = c.Alpha
	mc.WakeInterval = c.WakeInterval
	mc.RequestTimeout = c.RequestTimeout
	mc.EvictionTTL = c.EvictionTTL
	mc.LookupTimeout = c.LookupTimeout
	mc.ValueTTL = c.ValueTTL
	return mc, nil
}
