package config

import "time"

// Config holds runtime settings for the ledgersync client.
//
// Units: all intervals and timeouts are time.Duration values.
type Config struct {
	ServerEndpointAddr  string
	AccessToken         string
	DBPath              string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	ConflictPolicy      string
	MaxAttempts         int
	BackoffMin          time.Duration
	BackoffMax          time.Duration
	RemoteCallTimeout   time.Duration
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.AccessToken = ""
	c.DBPath = "ledgersync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.ConflictPolicy = "server-wins"
	c.MaxAttempts = 10
	c.BackoffMin = 2 * time.Second
	c.BackoffMax = 5 * time.Minute
	c.RemoteCallTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
