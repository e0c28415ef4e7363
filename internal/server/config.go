package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/storage"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerSettings   `hcl:"server,block"`
	Storage *StorageSettings `hcl:"storage,block"`
	Events  *EventSettings   `hcl:"events,block"`
	Game    *GameSettings    `hcl:"game,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address   string  `hcl:"address,optional"`
	Port      int     `hcl:"port,optional"`
	LogLevel  string  `hcl:"log_level,optional"`
	RateLimit float64 `hcl:"rate_limit,optional"`
	RateBurst int     `hcl:"rate_burst,optional"`
}

// StorageSettings selects and configures the storage backend
type StorageSettings struct {
	Driver      string `hcl:"driver,optional"`
	DSN         string `hcl:"dsn,optional"`
	AutoMigrate *bool  `hcl:"auto_migrate,optional"`
}

// EventSettings configures the optional Redis event fan-out
type EventSettings struct {
	RedisAddr string `hcl:"redis_addr,optional"`
	Channel   string `hcl:"channel,optional"`
}

// GameSettings holds game engine settings
type GameSettings struct {
	// Seed makes deck shuffles reproducible. Zero picks a random seed.
	Seed int64 `hcl:"seed,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// LoadConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 50
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 100
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = string(storage.DriverSQLite)
	}
	if c.Storage.DSN == "" {
		switch storage.Driver(c.Storage.Driver) {
		case storage.DriverSQLite:
			c.Storage.DSN = "blackjack.db"
		case storage.DriverFiles:
			c.Storage.DSN = "blackjack-data"
		}
	}
	if c.Storage.AutoMigrate == nil {
		autoMigrate := true
		c.Storage.AutoMigrate = &autoMigrate
	}

	if c.Events == nil {
		c.Events = &EventSettings{}
	}
	if c.Events.Channel == "" {
		c.Events.Channel = events.DefaultChannel
	}

	if c.Game == nil {
		c.Game = &GameSettings{}
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %v", c.Server.RateLimit)
	}
	if c.Server.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive, got %d", c.Server.RateBurst)
	}

	driver, err := storage.ParseDriver(c.Storage.Driver)
	if err != nil {
		return err
	}
	if driver != storage.DriverMemory && c.Storage.DSN == "" {
		return fmt.Errorf("storage driver %s requires a dsn", driver)
	}
	return nil
}

// Address returns the full listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// StorageConfig converts the storage block into a storage.Config.
func (c *Config) StorageConfig() *storage.Config {
	cfg := storage.DefaultConfig(storage.Driver(c.Storage.Driver), c.Storage.DSN)
	cfg.AutoMigrate = *c.Storage.AutoMigrate
	return cfg
}
