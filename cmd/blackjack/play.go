package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lox/blackjack/cmd/blackjack/shared"
	"github.com/lox/blackjack/internal/client/commands"
	"github.com/lox/blackjack/internal/tui"
)

// PlayCmd opens the terminal client
type PlayCmd struct {
	URL     string `kong:"help='Server URL (overrides --server and config)'"`
	Name    string `kong:"help='Player name (defaults to the config, then $USER)'"`
	LogFile string `kong:"default='blackjack-client.log',help='Where to write client logs'"`
}

func (c *PlayCmd) Run(flags *commands.GlobalFlags) error {
	if c.URL != "" {
		flags.Server = c.URL
	}

	api, cfg, logger, cleanup, err := commands.SetupClientWithFileLogging(flags, c.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = cfg.PlayerName()
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		return fmt.Errorf("player name is required, pass --name")
	}

	ctx := shared.SetupSignalHandler()
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("server %s is not reachable: %w", api.URL(), err)
	}

	logger.Info("Starting play session", "player", name, "server", api.URL())
	if err := tui.Run(ctx, api, name, logger); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	return nil
}
