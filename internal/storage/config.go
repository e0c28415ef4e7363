package storage

import (
	"fmt"
	"time"
)

// Driver selects a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverFiles    Driver = "files"
)

// Config holds storage configuration settings.
type Config struct {
	// Driver is one of memory, sqlite, postgres or files.
	Driver Driver

	// DSN is the sqlite file path, the postgres connection URL or the
	// directory of the files backend. Unused by memory.
	DSN string

	// MaxOpenConns sets the maximum number of open connections.
	// Default: 25 (postgres), 1 (sqlite)
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum amount of time a connection may be reused.
	// Default: 5 minutes
	ConnMaxLifetime time.Duration

	// BusyTimeout sets how long sqlite waits when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// AutoMigrate runs pending schema migrations on Open.
	AutoMigrate bool
}

// DefaultConfig returns a Config for driver with sensible default values.
func DefaultConfig(driver Driver, dsn string) *Config {
	maxOpen := 25
	if driver == DriverSQLite {
		// sqlite serializes writers
		maxOpen = 1
	}
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		AutoMigrate:     true,
	}
}

// ParseDriver validates a driver name.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(s); d {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverFiles:
		return d, nil
	default:
		return "", fmt.Errorf("unknown storage driver %q (want memory, sqlite, postgres or files)", s)
	}
}
