package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging   LoggingConfig             `yaml:"logging"`
	Retry     RetryConfig               `yaml:"retry"`
	Polling   PollingConfig             `yaml:"polling"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`

	// FallbackFees is exchange -> asset -> network -> fee, used when the
	// exchange API cannot supply withdrawal fees. Values stay strings:
	// blank or non-numeric entries are dropped at resolution time, not
	// rejected at load time.
	FallbackFees map[string]map[string]map[string]string `yaml:"fallback_fees"`

	// FallbackNetworks is exchange -> asset -> deposit networks, used when
	// the exchange API cannot enumerate them.
	FallbackNetworks map[string]map[string][]string `yaml:"fallback_networks"`

	// Addresses is exchange -> asset -> network -> destination.
	Addresses map[string]map[string]map[string]AddressConfig `yaml:"addresses"`

	// NetworkPriority is asset -> preferred network order, used as the
	// second selection criterion after withdrawal fee.
	NetworkPriority map[string][]string `yaml:"network_priority"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RetryConfig struct {
	MaxAttempts      int   `yaml:"max_attempts"`
	InitialBackoffMs int64 `yaml:"initial_backoff_ms"`
}

type PollingConfig struct {
	IntervalSec int64 `yaml:"interval_sec"`
	MaxWaitSec  int64 `yaml:"max_wait_sec"`
}

type ExchangeConfig struct {
	BaseURL        string `yaml:"base_url"`
	AltBaseURL     string `yaml:"alt_base_url"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	Passphrase     string `yaml:"passphrase"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
	RecvWindowMs   int64  `yaml:"recv_window_ms"`
}

func (e ExchangeConfig) HasSecrets() bool {
	return e.APIKey != "" && e.APISecret != ""
}

type AddressConfig struct {
	Address      string `yaml:"address"`
	Memo         string `yaml:"memo"`
	MemoRequired bool   `yaml:"memo_required"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	exchanges := make(map[string]ExchangeConfig, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		ex.BaseURL = strings.TrimRight(strings.TrimSpace(ex.BaseURL), "/")
		ex.AltBaseURL = strings.TrimRight(strings.TrimSpace(ex.AltBaseURL), "/")
		// Credentials may reference environment variables.
		ex.APIKey = os.ExpandEnv(strings.TrimSpace(ex.APIKey))
		ex.APISecret = os.ExpandEnv(strings.TrimSpace(ex.APISecret))
		ex.Passphrase = os.ExpandEnv(strings.TrimSpace(ex.Passphrase))
		exchanges[strings.ToLower(strings.TrimSpace(name))] = ex
	}
	c.Exchanges = exchanges

	fees := make(map[string]map[string]map[string]string, len(c.FallbackFees))
	for exName, assets := range c.FallbackFees {
		m := make(map[string]map[string]string, len(assets))
		for asset, networks := range assets {
			n := make(map[string]string, len(networks))
			for network, fee := range networks {
				n[strings.ToUpper(strings.TrimSpace(network))] = strings.TrimSpace(fee)
			}
			m[strings.ToUpper(strings.TrimSpace(asset))] = n
		}
		fees[strings.ToLower(strings.TrimSpace(exName))] = m
	}
	c.FallbackFees = fees

	nets := make(map[string]map[string][]string, len(c.FallbackNetworks))
	for exName, assets := range c.FallbackNetworks {
		m := make(map[string][]string, len(assets))
		for asset, list := range assets {
			out := make([]string, 0, len(list))
			for _, network := range list {
				out = append(out, strings.ToUpper(strings.TrimSpace(network)))
			}
			m[strings.ToUpper(strings.TrimSpace(asset))] = out
		}
		nets[strings.ToLower(strings.TrimSpace(exName))] = m
	}
	c.FallbackNetworks = nets

	addrs := make(map[string]map[string]map[string]AddressConfig, len(c.Addresses))
	for exName, assets := range c.Addresses {
		m := make(map[string]map[string]AddressConfig, len(assets))
		for asset, networks := range assets {
			n := make(map[string]AddressConfig, len(networks))
			for network, addr := range networks {
				addr.Address = strings.TrimSpace(addr.Address)
				addr.Memo = strings.TrimSpace(addr.Memo)
				n[strings.ToUpper(strings.TrimSpace(network))] = addr
			}
			m[strings.ToUpper(strings.TrimSpace(asset))] = n
		}
		addrs[strings.ToLower(strings.TrimSpace(exName))] = m
	}
	c.Addresses = addrs

	prio := make(map[string][]string, len(c.NetworkPriority))
	for asset, list := range c.NetworkPriority {
		out := make([]string, 0, len(list))
		for _, network := range list {
			out = append(out, strings.ToUpper(strings.TrimSpace(network)))
		}
		prio[strings.ToUpper(strings.TrimSpace(asset))] = out
	}
	c.NetworkPriority = prio
}

func (c *Config) applyDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = 500
	}
	if c.Polling.IntervalSec == 0 {
		c.Polling.IntervalSec = 10
	}
	if c.Polling.MaxWaitSec == 0 {
		c.Polling.MaxWaitSec = 900
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for name, ex := range c.Exchanges {
		if ex.HTTPTimeoutSec == 0 {
			ex.HTTPTimeoutSec = 15
		}
		if ex.RecvWindowMs == 0 {
			ex.RecvWindowMs = 5000
		}
		c.Exchanges[name] = ex
	}
}

func (c Config) Validate() error {
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10")
	}
	if c.Retry.InitialBackoffMs < 1 || c.Retry.InitialBackoffMs > 60000 {
		return fmt.Errorf("retry.initial_backoff_ms must be between 1 and 60000")
	}
	if c.Polling.IntervalSec < 1 || c.Polling.IntervalSec > 3600 {
		return fmt.Errorf("polling.interval_sec must be between 1 and 3600")
	}
	if c.Polling.MaxWaitSec < 1 || c.Polling.MaxWaitSec > 86400 {
		return fmt.Errorf("polling.max_wait_sec must be between 1 and 86400")
	}
	if c.Polling.MaxWaitSec < c.Polling.IntervalSec {
		return fmt.Errorf("polling.max_wait_sec must be >= polling.interval_sec")
	}
	for name, ex := range c.Exchanges {
		if ex.BaseURL != "" {
			if err := validateURL(ex.BaseURL, "http", "https"); err != nil {
				return fmt.Errorf("exchanges.%s.base_url %v", name, err)
			}
		}
		if ex.AltBaseURL != "" {
			if err := validateURL(ex.AltBaseURL, "http", "https"); err != nil {
				return fmt.Errorf("exchanges.%s.alt_base_url %v", name, err)
			}
		}
		if ex.HTTPTimeoutSec < 1 || ex.HTTPTimeoutSec > 120 {
			return fmt.Errorf("exchanges.%s.http_timeout_sec must be between 1 and 120", name)
		}
		if ex.RecvWindowMs < 1 || ex.RecvWindowMs > 60000 {
			return fmt.Errorf("exchanges.%s.recv_window_ms must be between 1 and 60000", name)
		}
	}
	for exName, assets := range c.Addresses {
		for asset, networks := range assets {
			for network, addr := range networks {
				if strings.TrimSpace(addr.Address) == "" {
					return fmt.Errorf("addresses.%s.%s.%s.address is required", exName, asset, network)
				}
			}
		}
	}
	return nil
}

// Exchange returns the configuration for a normalized exchange name.
func (c Config) Exchange(name string) (ExchangeConfig, bool) {
	ex, ok := c.Exchanges[strings.ToLower(name)]
	return ex, ok
}

// FallbackFeeTable returns the static network->fee strings for an
// (exchange, asset) pair, or nil.
func (c Config) FallbackFeeTable(exchange, asset string) map[string]string {
	assets, ok := c.FallbackFees[strings.ToLower(exchange)]
	if !ok {
		return nil
	}
	return assets[strings.ToUpper(asset)]
}

// FallbackNetworkList returns the static deposit network list for an
// (exchange, asset) pair, or nil.
func (c Config) FallbackNetworkList(exchange, asset string) []string {
	assets, ok := c.FallbackNetworks[strings.ToLower(exchange)]
	if !ok {
		return nil
	}
	return assets[strings.ToUpper(asset)]
}

// DepositAddress returns the configured destination for
// (exchange, asset, network), matching the network by canonical token
// comparison done by the caller; lookup here is literal on config keys.
func (c Config) DepositAddress(exchange, asset, network string) (AddressConfig, bool) {
	assets, ok := c.Addresses[strings.ToLower(exchange)]
	if !ok {
		return AddressConfig{}, false
	}
	networks, ok := assets[strings.ToUpper(asset)]
	if !ok {
		return AddressConfig{}, false
	}
	addr, ok := networks[strings.ToUpper(network)]
	return addr, ok
}

// AddressTable returns every configured destination for an
// (exchange, asset) pair keyed by the network label as written in
// config, or nil. Callers match labels by canonical token.
func (c Config) AddressTable(exchange, asset string) map[string]AddressConfig {
	assets, ok := c.Addresses[strings.ToLower(exchange)]
	if !ok {
		return nil
	}
	return assets[strings.ToUpper(asset)]
}

// PriorityList returns the configured network preference order for an asset.
func (c Config) PriorityList(asset string) []string {
	return c.NetworkPriority[strings.ToUpper(asset)]
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
