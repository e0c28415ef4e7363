package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/storage"
)

// MigrateCmd applies or rolls back the schema of a sqlite or postgres store
type MigrateCmd struct {
	Action  string `kong:"arg,enum='up,down,version',help='up applies pending migrations, down rolls back every migration, version prints the current one'"`
	Config  string `kong:"name='server-config',default='blackjack.hcl',help='Path to HCL server configuration'"`
	Storage string `kong:"help='Storage driver: sqlite or postgres (overrides config)'"`
	DSN     string `kong:"help='Storage DSN (overrides config)'"`
	Yes     bool   `kong:"help='Confirm rolling back every migration'"`

	out io.Writer
}

func (c *MigrateCmd) Run() error {
	if c.Action == "down" && !c.Yes {
		return errors.New("migrate down drops every table; pass --yes to confirm")
	}

	server := &ServerCmd{Config: c.Config, Storage: c.Storage, DSN: c.DSN}
	cfg, err := server.loadConfig()
	if err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, false)
	driver := storage.Driver(cfg.Storage.Driver)

	mgr, err := storage.NewMigrationManager(driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	switch c.Action {
	case "up":
		if err := mgr.Up(); err != nil {
			return err
		}
		logger.Info("Applied migrations", "driver", driver)
	case "down":
		if err := mgr.Down(); err != nil {
			return err
		}
		logger.Warn("Rolled back every migration", "driver", driver)
	}

	version, dirty, err := mgr.Version()
	if err != nil {
		return err
	}
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
	return err
}
