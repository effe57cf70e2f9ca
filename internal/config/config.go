package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SWAPSIM_RPC.
const EnvPrefix = "SWAPSIM"

// Config holds configuration for the simulate command.
type Config struct {
	RPCURL            string
	Snapshot          string
	Assets            string
	TestName          string
	AdapterCode       string
	TokenCode         string
	Tokens            []string
	Out               string
	Parquet           string
	PGDSN             string
	StateCache        string
	Concurrency       int
	SkipBalanceCheck  bool
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	TempCacheSize     int
	MinimumGas        uint64
	TradingFee        string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":                "./data",
		"concurrency":        4,
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": false,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"trading-fee":        "0",
		"log-level":          "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Snapshot:          v.GetString("snapshot"),
		Assets:            v.GetString("assets"),
		TestName:          v.GetString("test"),
		AdapterCode:       v.GetString("adapter-code"),
		TokenCode:         v.GetString("token-code"),
		Tokens:            getStringSlice(v, "token"),
		Out:               v.GetString("out"),
		Parquet:           v.GetString("parquet"),
		PGDSN:             v.GetString("pg-dsn"),
		StateCache:        v.GetString("state-cache"),
		Concurrency:       v.GetInt("concurrency"),
		SkipBalanceCheck:  v.GetBool("skip-balance-check"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		TempCacheSize:     v.GetInt("temp-cache-size"),
		MinimumGas:        v.GetUint64("minimum-gas"),
		TradingFee:        v.GetString("trading-fee"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// newViper layers defaults, the config file, SWAPSIM_* variables and flags.
// Without an explicit file, a missing ./config.* is not an error.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
