package config

import (
	"time"

	"github.com/dmitrijs2005/ledgersync/internal/confx"
	"github.com/dmitrijs2005/ledgersync/internal/flagx"
	"github.com/dmitrijs2005/ledgersync/internal/timex"
)

// fileConfig is the DTO for JSON and TOML config files. Pointer fields tell
// "absent" apart from a zero value, so a file only overrides what it names.
type fileConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr" toml:"server_endpoint_addr"`
	AccessToken         *string         `json:"access_token" toml:"access_token"`
	DBPath              *string         `json:"db_path" toml:"db_path"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" toml:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval" toml:"sync_interval"`
	ConflictPolicy      *string         `json:"conflict_policy" toml:"conflict_policy"`
	MaxAttempts         *int            `json:"max_attempts" toml:"max_attempts"`
	BackoffMin          *timex.Duration `json:"backoff_min" toml:"backoff_min"`
	BackoffMax          *timex.Duration `json:"backoff_max" toml:"backoff_max"`
	RemoteCallTimeout   *timex.Duration `json:"remote_call_timeout" toml:"remote_call_timeout"`
	LogLevel            *string         `json:"log_level" toml:"log_level"`
}

// parseFile overlays cfg with values from the file named by -c/-config.
// Panics on read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	var fc fileConfig
	if err := confx.DecodeFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	setString(&cfg.AccessToken, fc.AccessToken)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.ConflictPolicy, fc.ConflictPolicy)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.MaxAttempts != nil {
		cfg.MaxAttempts = *fc.MaxAttempts
	}

	for _, d := range []struct {
		dst *time.Duration
		src *timex.Duration
	}{
		{&cfg.OnlineCheckInterval, fc.OnlineCheckInterval},
		{&cfg.SyncInterval, fc.SyncInterval},
		{&cfg.BackoffMin, fc.BackoffMin},
		{&cfg.BackoffMax, fc.BackoffMax},
		{&cfg.RemoteCallTimeout, fc.RemoteCallTimeout},
	} {
		if d.src != nil {
			*d.dst = d.src.Duration
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
