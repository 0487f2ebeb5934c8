package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Chain     ChainConfig
	Paymaster PaymasterConfig
	Pinning   PinningConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	ChainID       int64  `mapstructure:"chain_id"`
	SignerKey     string `mapstructure:"signer_key"`
	GasPerPubdata int64  `mapstructure:"gas_per_pubdata"`
}

type PaymasterConfig struct {
	GeneralAddress    string        `mapstructure:"general_address"`
	ERC20Address      string        `mapstructure:"erc20_address"`
	NFTAddress        string        `mapstructure:"nft_address"`
	ReadingLogAddress string        `mapstructure:"reading_log_address"`
	CounterAddress    string        `mapstructure:"counter_address"`
	PollIntervalMS    int64         `mapstructure:"poll_interval_ms"`
	Tokens            []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig describes a fee token accepted by the approval-based paymaster.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Decimals uint8  `mapstructure:"decimals"`
}

type PinningConfig struct {
	APIURL     string `mapstructure:"api_url"`
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	GatewayURL string `mapstructure:"gateway_url"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("chain.gas_per_pubdata", 50000)
	v.SetDefault("paymaster.poll_interval_ms", 3000)
	v.SetDefault("pinning.api_url", "https://api.pinata.cloud")
	v.SetDefault("pinning.gateway_url", "https://gateway.pinata.cloud/ipfs/")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":                   "PORT",
		"redis.addr":                    "REDIS_ADDR",
		"redis.password":                "REDIS_PASSWORD",
		"chain.rpc_url":                 "RPC_URL",
		"chain.chain_id":                "CHAIN_ID",
		"chain.signer_key":              "SIGNER_KEY",
		"chain.gas_per_pubdata":         "GAS_PER_PUBDATA",
		"paymaster.general_address":     "PAYMASTER_ADDRESS",
		"paymaster.erc20_address":       "ERC20_PAYMASTER_ADDRESS",
		"paymaster.nft_address":         "NFT_ADDRESS",
		"paymaster.reading_log_address": "READING_LOG_ADDRESS",
		"paymaster.counter_address":     "COUNTER_ADDRESS",
		"paymaster.poll_interval_ms":    "POLL_INTERVAL_MS",
		"pinning.api_url":               "PINATA_API_URL",
		"pinning.api_key":               "PINATA_API_KEY",
		"pinning.secret_key":            "PINATA_SECRET_API_KEY",
		"pinning.gateway_url":           "PINATA_GATEWAY_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.SignerKey, "SIGNER_KEY"},
		{c.Paymaster.GeneralAddress, "PAYMASTER_ADDRESS"},
		{c.Paymaster.ERC20Address, "ERC20_PAYMASTER_ADDRESS"},
		{c.Paymaster.NFTAddress, "NFT_ADDRESS"},
		{c.Pinning.APIKey, "PINATA_API_KEY"},
		{c.Pinning.SecretKey, "PINATA_SECRET_API_KEY"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
