package config

import (
	"time"

	"github.com/spf13/pflag"
)

// LimitsConfig holds configuration for the limits command.
type LimitsConfig struct {
	RPCURL       string
	Snapshot     string
	Pool         string
	AdapterCode  string
	TokenCode    string
	StateCache   string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadLimits merges config file, environment variables, and flags into LimitsConfig.
func LoadLimits(cfgFile string, flags *pflag.FlagSet) (LimitsConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return LimitsConfig{}, err
	}

	return LimitsConfig{
		RPCURL:       v.GetString("rpc"),
		Snapshot:     v.GetString("snapshot"),
		Pool:         v.GetString("pool"),
		AdapterCode:  v.GetString("adapter-code"),
		TokenCode:    v.GetString("token-code"),
		StateCache:   v.GetString("state-cache"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
