// Package config loads the bridge configuration file and layers environment
// variables and command-line overrides on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML, TOML and JSON unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses durations for TOML and flag values.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return d.UnmarshalText([]byte(text))
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or seconds")
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

// File mirrors the on-disk configuration. The secret_key and account_address
// keys match the layout of the exchange SDK's config.json, so an existing file
// can be reused as is.
type File struct {
	Network          string   `yaml:"network" toml:"network" json:"network"`
	ExchangeURL      string   `yaml:"exchange_url" toml:"exchange_url" json:"exchange_url"`
	RPCURL           string   `yaml:"rpc_url" toml:"rpc_url" json:"rpc_url"`
	ChainID          uint64   `yaml:"chain_id" toml:"chain_id" json:"chain_id"`
	SignatureChainID uint64   `yaml:"signature_chain_id" toml:"signature_chain_id" json:"signature_chain_id"`
	SecretKey        string   `yaml:"secret_key" toml:"secret_key" json:"secret_key"`
	KeystorePath     string   `yaml:"keystore_path" toml:"keystore_path" json:"keystore_path"`
	AccountAddress   string   `yaml:"account_address" toml:"account_address" json:"account_address"`
	WalletAddress    string   `yaml:"wallet_address" toml:"wallet_address" json:"wallet_address"`
	USDCAddress      string   `yaml:"usdc_address" toml:"usdc_address" json:"usdc_address"`
	BridgeAddress    string   `yaml:"bridge_address" toml:"bridge_address" json:"bridge_address"`
	WithdrawFee      string   `yaml:"withdraw_fee" toml:"withdraw_fee" json:"withdraw_fee"`
	MinTransfer      string   `yaml:"min_transfer" toml:"min_transfer" json:"min_transfer"`
	Tolerance        string   `yaml:"tolerance" toml:"tolerance" json:"tolerance"`
	PollInterval     Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
	DepositTimeout   Duration `yaml:"deposit_timeout" toml:"deposit_timeout" json:"deposit_timeout"`
	WithdrawTimeout  Duration `yaml:"withdraw_timeout" toml:"withdraw_timeout" json:"withdraw_timeout"`
	ReceiptTimeout   Duration `yaml:"receipt_timeout" toml:"receipt_timeout" json:"receipt_timeout"`
	Env              string   `yaml:"env" toml:"env" json:"env"`
	LogFile          string   `yaml:"log_file" toml:"log_file" json:"log_file"`
	LogLevel         string   `yaml:"log_level" toml:"log_level" json:"log_level"`
	PushgatewayURL   string   `yaml:"pushgateway_url" toml:"pushgateway_url" json:"pushgateway_url"`
}

// Load reads the configuration file at path. TOML files are recognised by
// their extension; anything else is decoded as YAML, which also accepts JSON.
// An empty path yields an empty File.
func Load(path string) (File, error) {
	var cfg File
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	return cfg, nil
}
