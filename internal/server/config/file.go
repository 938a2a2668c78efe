package config

import (
	"github.com/dmitrijs2005/ledgersync/internal/confx"
	"github.com/dmitrijs2005/ledgersync/internal/flagx"
	"github.com/dmitrijs2005/ledgersync/internal/timex"
)

// fileConfig is an intermediate DTO used only for reading config files.
// Pointer fields are left nil for absent keys, which keep earlier values.
type fileConfig struct {
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc" toml:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn" toml:"database_dsn"`
	SecretKey                   *string         `json:"secret_key" toml:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration" toml:"access_token_validity_duration"`
	LogLevel                    *string         `json:"log_level" toml:"log_level"`
}

// parseFile loads the file named by -c or -config into config.
// If the file cannot be read or decoded, the function panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	c := &fileConfig{}
	if err := confx.DecodeFile(path, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrGRPC != nil {
		config.EndpointAddrGRPC = *c.EndpointAddrGRPC
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
}
