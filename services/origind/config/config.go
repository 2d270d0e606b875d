package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"rwalend/ledger"
)

// Duration wraps time.Duration to support YAML unmarshalling.
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
	raw := value.Value
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

// Config captures the runtime settings for the origination daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	RPC           RPCConfig       `yaml:"rpc"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimits    RateLimitConfig `yaml:"rate_limits"`
	Database      DatabaseConfig  `yaml:"database"`
	Metadata      MetadataConfig  `yaml:"metadata"`
	SettleDelay   Duration        `yaml:"settle_delay"`
	TierCatalog   string          `yaml:"tier_catalog"`
	Networks      []NetworkConfig `yaml:"networks"`
}

// RPCConfig points at the execution-layer node.
type RPCConfig struct {
	Endpoint     string `yaml:"endpoint"`
	SignerKeyEnv string `yaml:"signer_key_env"`
}

// AuthConfig lists the bearer tokens accepted on mutating routes.
type AuthConfig struct {
	APITokens []string `yaml:"api_tokens"`
}

// RateLimitConfig is the per-client request budget for the API route group.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// DatabaseConfig locates the display cache. An empty path means in-memory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetadataConfig bounds off-chain document resolution.
type MetadataConfig struct {
	Timeout          Duration `yaml:"timeout"`
	FetchesPerSecond float64  `yaml:"fetches_per_second"`
}

// NetworkConfig pins the contract addresses and tokens for one chain.
type NetworkConfig struct {
	ChainID         uint64        `yaml:"chain_id"`
	LendingContract string        `yaml:"lending_contract"`
	TokenRegistry   string        `yaml:"token_registry"`
	Tokens          []TokenConfig `yaml:"tokens"`
}

// TokenConfig describes one accepted loan currency.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8660"
	}
	cfg.RPC.Endpoint = strings.TrimSpace(cfg.RPC.Endpoint)
	cfg.RPC.SignerKeyEnv = strings.TrimSpace(cfg.RPC.SignerKeyEnv)
	if cfg.RPC.SignerKeyEnv == "" {
		cfg.RPC.SignerKeyEnv = "ORIGIND_SIGNER_KEY"
	}
	cfg.TierCatalog = strings.TrimSpace(cfg.TierCatalog)
	cfg.Database.Path = strings.TrimSpace(cfg.Database.Path)
	if cfg.RateLimits.RequestsPerMinute <= 0 {
		cfg.RateLimits.RequestsPerMinute = 600
	}
	if cfg.RateLimits.Burst <= 0 {
		cfg.RateLimits.Burst = 20
	}
	if cfg.Metadata.Timeout.Duration <= 0 {
		cfg.Metadata.Timeout = Duration{5 * time.Second}
	}
	if cfg.Metadata.FetchesPerSecond <= 0 {
		cfg.Metadata.FetchesPerSecond = 4
	}
	if cfg.SettleDelay.Duration < 0 {
		cfg.SettleDelay = Duration{}
	}

	tokens := make([]string, 0, len(cfg.Auth.APITokens))
	for _, token := range cfg.Auth.APITokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	cfg.Auth.APITokens = tokens

	for i := range cfg.Networks {
		network := &cfg.Networks[i]
		network.LendingContract = strings.TrimSpace(network.LendingContract)
		network.TokenRegistry = strings.TrimSpace(network.TokenRegistry)
		for j := range network.Tokens {
			token := &network.Tokens[j]
			token.Address = strings.TrimSpace(token.Address)
			token.Symbol = strings.ToUpper(strings.TrimSpace(token.Symbol))
		}
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.RPC.Endpoint == "" {
		return fmt.Errorf("rpc: endpoint required")
	}
	if len(cfg.Auth.APITokens) == 0 {
		return fmt.Errorf("auth: at least one api token must be configured")
	}
	if len(cfg.Networks) == 0 {
		return fmt.Errorf("networks: at least one network must be configured")
	}
	seen := make(map[uint64]struct{}, len(cfg.Networks))
	for _, network := range cfg.Networks {
		if network.ChainID == 0 {
			return fmt.Errorf("networks: chain_id required")
		}
		if _, dup := seen[network.ChainID]; dup {
			return fmt.Errorf("networks: duplicate chain id %d", network.ChainID)
		}
		seen[network.ChainID] = struct{}{}
		if !common.IsHexAddress(network.LendingContract) {
			return fmt.Errorf("networks: chain %d: lending_contract must be a hex address", network.ChainID)
		}
		if network.TokenRegistry != "" && !common.IsHexAddress(network.TokenRegistry) {
			return fmt.Errorf("networks: chain %d: token_registry must be a hex address", network.ChainID)
		}
		if len(network.Tokens) == 0 {
			return fmt.Errorf("networks: chain %d: at least one token must be configured", network.ChainID)
		}
		for _, token := range network.Tokens {
			if !common.IsHexAddress(token.Address) {
				return fmt.Errorf("networks: chain %d: token address %q must be a hex address", network.ChainID, token.Address)
			}
			if token.Symbol == "" {
				return fmt.Errorf("networks: chain %d: token symbol required", network.ChainID)
			}
		}
	}
	return nil
}

// NetworkContexts converts the configured networks into ledger contexts.
func (cfg Config) NetworkContexts() []ledger.NetworkContext {
	contexts := make([]ledger.NetworkContext, 0, len(cfg.Networks))
	for _, network := range cfg.Networks {
		ctx := ledger.NetworkContext{
			ChainID:         network.ChainID,
			LendingContract: common.HexToAddress(network.LendingContract),
		}
		if network.TokenRegistry != "" {
			ctx.TokenRegistry = common.HexToAddress(network.TokenRegistry)
		}
		for _, token := range network.Tokens {
			ctx.Tokens = append(ctx.Tokens, ledger.TokenInfo{
				Address:  common.HexToAddress(token.Address),
				Symbol:   token.Symbol,
				Decimals: token.Decimals,
			})
		}
		contexts = append(contexts, ctx)
	}
	return contexts
}
